package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gembridge/gembridge/pkg/config"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "c", "./config.yaml", "config file path")
	flag.Parse()

	logrus.Infof("Using config file: %s", configFile)
	conf, err := config.Read(configFile)
	if err != nil {
		logrus.WithError(err).Fatal("failed to read config file")
	}
	if conf.LogLevel != "" {
		lvl, err := logrus.ParseLevel(conf.LogLevel)
		if err != nil {
			logrus.WithError(err).Fatal("invalid log level")
		}
		logrus.SetLevel(lvl)
	}
	logrus.AddHook(RequestIDHook{})

	s, err := NewServer(conf)
	if err != nil {
		logrus.WithError(err).Fatal("failed to build server")
	}
	auth := NewBearerKeyMW(conf.Auth.APIKeys)

	r := gin.Default()
	r.Use(gzip.Gzip(gzip.DefaultCompression), RequestIDMW())

	// Register routes
	v1 := r.Group("/v1", auth.Handle())
	v1.POST("/chat/completions", s.gateway.ChatCompletions())
	v1.GET("/models", s.gateway.ListModels())
	v1.GET("/models/:model", s.gateway.RetrieveModel())
	v1.POST("/embeddings", s.gateway.Embeddings())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		err := config.Watch(ctx, configFile, func(newConf *config.Config) {
			if err := s.UpdateFromConfig(newConf); err != nil {
				logrus.WithError(err).Warn("failed to apply reloaded config")
				return
			}
			auth.UpdateKeys(newConf.Auth.APIKeys)
		})
		if err != nil {
			logrus.WithError(err).Warn("config watcher stopped")
		}
	}()

	srv := &http.Server{Addr: conf.Listen, Handler: r}
	go func() {
		logrus.Infof("listening %s", conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("forced shutdown")
	}
}
