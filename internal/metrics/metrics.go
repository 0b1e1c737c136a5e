// Package metrics exposes per-region run outcomes as Prometheus metrics, so
// a region that failed to fetch can be told apart from one with no sales.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sold-crawler/pkg/models"
)

// Recorder implements engine.Reporter on a private registry.
type Recorder struct {
	Registry *prometheus.Registry

	regionsTotal    *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	rowsTotal       prometheus.Counter
	droppedTotal    prometheus.Counter
	sinkErrorsTotal *prometheus.CounterVec
	fetchDuration   prometheus.Histogram
	lastRegion      prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		Registry: reg,
		regionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sold_crawler_regions_total",
				Help: "Regions processed, by outcome",
			},
			[]string{"status"},
		),
		failuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sold_crawler_fetch_failures_total",
				Help: "Failed region fetches, by cause",
			},
			[]string{"cause"},
		),
		rowsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sold_crawler_rows_written_total",
			Help: "Normalized rows written",
		}),
		droppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sold_crawler_records_dropped_total",
			Help: "Records dropped for lacking an address",
		}),
		sinkErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sold_crawler_sink_errors_total",
				Help: "Failed batch saves, by sink",
			},
			[]string{"sink"},
		),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sold_crawler_fetch_duration_seconds",
			Help:    "Time to fetch and decode one region",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		lastRegion: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sold_crawler_last_region",
			Help: "Most recently processed region id",
		}),
	}
}

func (r *Recorder) Report(rep models.RegionReport) {
	r.regionsTotal.WithLabelValues(rep.Status.String()).Inc()
	if rep.Status == models.StatusFetchFailed {
		cause := rep.Cause
		if cause == "" {
			cause = "unknown"
		}
		r.failuresTotal.WithLabelValues(cause).Inc()
	}
	r.rowsTotal.Add(float64(rep.Rows))
	r.droppedTotal.Add(float64(rep.Dropped))
	r.fetchDuration.Observe(rep.Duration.Seconds())
	r.lastRegion.Set(float64(rep.Region))
}

// SinkError counts a failed save on a named sink.
func (r *Recorder) SinkError(sink string, _ error) {
	r.sinkErrorsTotal.WithLabelValues(sink).Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}

// ServeAsync serves /metrics on addr until ctx is done.
func (r *Recorder) ServeAsync(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	log.Printf("Serving metrics on %s/metrics", addr)
}
