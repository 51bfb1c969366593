// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "curve_lp_lab"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Collection metrics
	SamplesProcessed   prometheus.Counter
	SamplesSkipped     prometheus.Counter
	ObservationsAdded  prometheus.Counter
	ObservationsKept   prometheus.Counter
	Flushes            *prometheus.CounterVec
	ReadFaults         *prometheus.CounterVec
	CollectorRuns      *prometheus.CounterVec
	SampleDuration     prometheus.Histogram
	LastSampleObserved prometheus.Gauge

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Storage metrics
	StoreDuration *prometheus.HistogramVec
	StoreErrors   *prometheus.CounterVec

	// Revenue metrics
	RevenueRuns   *prometheus.CounterVec
	RevenuePoints prometheus.Counter

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SamplesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "samples_processed_total",
			Help:      "Total number of samples whose pool state was read",
		}),
		SamplesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "samples_skipped_total",
			Help:      "Total number of samples skipped because every pool was already recorded",
		}),
		ObservationsAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "observations_added_total",
			Help:      "Total number of observations appended to the result table",
		}),
		ObservationsKept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "observations_skipped_total",
			Help:      "Total number of pool observations skipped because they were already recorded",
		}),
		Flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "flushes_total",
			Help:      "Total number of result table flushes by outcome",
		}, []string{"outcome"}),
		ReadFaults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "read_faults_total",
			Help:      "Total number of read faults by stage",
		}, []string{"stage"}),
		CollectorRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "runs_total",
			Help:      "Total number of collection runs by status",
		}, []string{"status"}),
		SampleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "sample_duration_seconds",
			Help:      "Time spent reading one sample",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		LastSampleObserved: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "last_sample_observed",
			Help:      "Block number of the last sample read",
		}),

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "Ethereum RPC call latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),

		StoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Observation store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_errors_total",
			Help:      "Total number of failed observation store operations",
		}, []string{"backend", "operation"}),

		RevenueRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "revenue",
			Name:      "runs_total",
			Help:      "Total number of revenue derivation runs by status",
		}, []string{"status"}),
		RevenuePoints: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "revenue",
			Name:      "points_derived_total",
			Help:      "Total number of revenue points derived",
		}),

		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful collection run",
		}),
	}
}

// Handler returns an HTTP handler serving metrics from g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// RecordSample records one sample that was read.
func (m *Metrics) RecordSample(block uint64, added int, seconds float64) {
	if m == nil {
		return
	}
	m.SamplesProcessed.Inc()
	m.ObservationsAdded.Add(float64(added))
	m.SampleDuration.Observe(seconds)
	m.LastSampleObserved.Set(float64(block))
}

// RecordSampleSkipped records a sample with nothing left to read.
func (m *Metrics) RecordSampleSkipped() {
	if m == nil {
		return
	}
	m.SamplesSkipped.Inc()
}

// RecordObservationsSkipped records pool observations that were already present.
func (m *Metrics) RecordObservationsSkipped(n int) {
	if m == nil {
		return
	}
	m.ObservationsKept.Add(float64(n))
}

// RecordFlush records a result table flush with outcome ok or error.
func (m *Metrics) RecordFlush(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Flushes.WithLabelValues(outcome).Inc()
}

// RecordReadFault records a read fault at the given stage.
func (m *Metrics) RecordReadFault(stage string) {
	if m == nil {
		return
	}
	m.ReadFaults.WithLabelValues(stage).Inc()
}

// RecordCollectorRun records a finished collection run.
func (m *Metrics) RecordCollectorRun(status string) {
	if m == nil {
		return
	}
	m.CollectorRuns.WithLabelValues(status).Inc()
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, seconds float64) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordStoreOp records observation store operation metrics.
func (m *Metrics) RecordStoreOp(backend, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.StoreDuration.WithLabelValues(backend, operation).Observe(seconds)
	if err != nil {
		m.StoreErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordRevenueRun records a revenue derivation run.
func (m *Metrics) RecordRevenueRun(status string, points int) {
	if m == nil {
		return
	}
	m.RevenueRuns.WithLabelValues(status).Inc()
	m.RevenuePoints.Add(float64(points))
}

// MarkSuccess sets the last successful run timestamp.
func (m *Metrics) MarkSuccess(t time.Time) {
	if m == nil {
		return
	}
	m.LastSuccessfulRun.Set(float64(t.Unix()))
}
