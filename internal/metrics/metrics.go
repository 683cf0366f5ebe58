// Package metrics exposes the ambient Prometheus endpoint the cache's
// hit/miss/fill counters are registered against, mirroring the
// teacher's NewCache registering its MetricSet with a
// prometheus.Registerer at construction time.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server serves /metrics on its own listener, separate from the RESP
// port, so a metrics scraper never competes with cache traffic for
// connection-handling resources.
type Server struct {
	httpServer *http.Server
}

// NewServer returns a metrics Server bound to addr, scraping reg.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Serve runs the metrics HTTP server until it is shut down. It always
// returns a non-nil error, matching net/http.Server.Serve's contract.
func (s *Server) Serve() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("metrics: error during shutdown")
		return err
	}
	return nil
}
