package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordSample(100, 3, 0.2)
	m.RecordSample(101, 2, 0.1)
	m.RecordSampleSkipped()
	m.RecordObservationsSkipped(4)
	m.RecordFlush(nil)
	m.RecordFlush(errors.New("rename failed"))
	m.RecordReadFault("batch_read")
	m.RecordCollectorRun("completed")
	m.RecordStoreOp("parquet", "save", 0.01, nil)
	m.RecordStoreOp("parquet", "save", 0.01, errors.New("disk full"))
	m.RecordRevenueRun("completed", 7)
	m.MarkSuccess(time.Unix(1700000000, 0))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SamplesProcessed))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ObservationsAdded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SamplesSkipped))
	assert.Equal(t, 101.0, testutil.ToFloat64(m.LastSampleObserved))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ObservationsKept))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Flushes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Flushes.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReadFaults.WithLabelValues("batch_read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollectorRuns.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("parquet", "save")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.RevenuePoints))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastSuccessfulRun))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordSample(1, 1, 0)
		m.RecordSampleSkipped()
		m.RecordObservationsSkipped(1)
		m.RecordFlush(nil)
		m.RecordReadFault("metadata")
		m.RecordCollectorRun("aborted")
		m.RecordRPCLatency("eth_call", 0.1)
		m.RecordStoreOp("memory", "load", 0, nil)
		m.RecordRevenueRun("completed", 0)
		m.MarkSuccess(time.Now())
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	m.RecordSampleSkipped()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_collector_samples_skipped_total 1"))
}
