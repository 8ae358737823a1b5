package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/plotterd/plotterd/pkg/metrics"
)

// MetricsServer exposes the prometheus registry on its own listener so
// scrapes never contend with API traffic.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
}

func NewMetricsServer(address string, listener net.Listener) *MetricsServer {
	router := chi.NewRouter()
	router.Handle("/metrics", metrics.NewPrometheusMetricsHandler().Handler())

	return &MetricsServer{
		listener: listener,
		server:   &http.Server{Addr: address, Handler: router},
	}
}

func (m *MetricsServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		m.server.SetKeepAlivesEnabled(false)
		_ = m.server.Shutdown(shutdownCtx)
	}()

	zap.S().Named("metrics_server").Infof("serving metrics on %s", m.server.Addr)
	if err := m.server.Serve(m.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	zap.S().Named("metrics_server").Info("metrics server stopped")
	return nil
}
