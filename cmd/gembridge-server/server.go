package main

import (
	"github.com/gembridge/gembridge/pkg/balance"
	"github.com/gembridge/gembridge/pkg/config"
	"github.com/gembridge/gembridge/pkg/gembridge"
	"github.com/gembridge/gembridge/pkg/keypool"
	"github.com/gembridge/gembridge/pkg/metrics"
	"github.com/gembridge/gembridge/pkg/upstream"
	"github.com/prometheus/client_golang/prometheus"
)

type Server struct {
	pool     *keypool.Pool
	registry *prometheus.Registry
	gateway  *gembridge.Server
}

func NewServer(conf *config.Config) (*Server, error) {
	pool, err := keypool.New(conf.Upstream.APIKeys, conf.KeyCooldown())
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	mets := metrics.New(registry)

	httpClient := upstream.NewHTTPClient(conf.Upstream.HTTPProxy)
	factory := upstream.NewFactory(conf.Upstream.BaseURL, httpClient, conf.Upstream.ExtraHeaders)
	exec := balance.New(pool, conf.Retry.MaxAttempts, mets)

	return &Server{
		pool:     pool,
		registry: registry,
		gateway:  gembridge.NewServer(exec, factory, conf.RequestRewrites, mets),
	}, nil
}

// UpdateFromConfig applies a reloaded config. Only the credential set is
// swapped at runtime; listen address and upstream wiring need a restart.
func (s *Server) UpdateFromConfig(conf *config.Config) error {
	return s.pool.UpdateKeys(conf.Upstream.APIKeys)
}
