package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"com.aviebrantz.statistics/pkg/config"
	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/apex/log"
	"go.opencensus.io/stats/view"
)

// Exporter serves the registered opencensus views as a Prometheus scrape
// endpoint.
type Exporter struct {
	server *http.Server
	logger *log.Entry
}

// StartMetricsExporter registers views and serves /metrics on the configured
// port.
func StartMetricsExporter(cfg config.MetricsConfig, views ...*view.View) (*Exporter, error) {
	if err := view.Register(views...); err != nil {
		return nil, err
	}

	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", pe)
	e := &Exporter{
		server: &http.Server{Addr: ":" + strconv.Itoa(cfg.Port), Handler: mux},
		logger: log.WithField("module", "metrics"),
	}

	go func() {
		e.logger.Infof("serving metrics on %s", e.server.Addr)
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Errorf("Failed to run Prometheus scrape endpoint: %v", err)
		}
	}()
	return e, nil
}

func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.server.Shutdown(ctx)
}
