package upstream

import (
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// NewHTTPClient builds the shared transport for upstream calls. proxyURL may
// be empty; if it fails to parse, the client falls back to no proxy.
func NewHTTPClient(proxyURL string) *http.Client {
	baseTr := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			logrus.WithError(err).Warnf("[upstream] invalid http proxy %q, proxy disabled", proxyURL)
		} else {
			baseTr.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{Transport: baseTr}
}
