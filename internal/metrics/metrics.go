// Package metrics defines the pipeline's prometheus collectors and the
// optional /metrics listener.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "ytfilter"

// Metrics holds every collector the pipeline updates
type Metrics struct {
	Passes        prometheus.Counter
	PassDuration  prometheus.Histogram
	Classified    *prometheus.CounterVec // mark
	CacheHits     prometheus.Counter
	RelayCalls    *prometheus.CounterVec // outcome: ok, error, malformed
	RelayDuration prometheus.Histogram
	Scores        prometheus.Histogram
	TopicClicks   *prometheus.CounterVec // outcome: recorded, null, error
}

// New registers the collectors with reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Passes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Pipeline passes executed",
		}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of a pipeline pass including sequential scoring",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}),
		Classified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_classified_total",
			Help:      "Feed handles stamped with a mark",
		}, []string{"mark"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_cache_hits_total",
			Help:      "Scores served from the session cache",
		}),
		RelayCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_calls_total",
			Help:      "Scoring calls made through the relay",
		}, []string{"outcome"}),
		RelayDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_duration_seconds",
			Help:      "Duration of scoring calls",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),
		Scores: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scores",
			Help:      "Distribution of scores applied to items",
			Buckets:   []float64{20, 40, 50, 60, 70, 80, 90, 100},
		}),
		TopicClicks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topic_clicks_total",
			Help:      "Click-throughs sent to the topic endpoint",
		}, []string{"outcome"}),
	}
}

// Serve exposes g on addr at /metrics until ctx is cancelled
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
