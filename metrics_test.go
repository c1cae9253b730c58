package authcore

import (
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunehub/authcore/session"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.operation("login", "success")
		m.renewal(RenewalRenewed)
		m.session("clear_all_sessions", session.OutcomeApplied)
	})
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	const goroutines = 32
	const perG = 500

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.renewal(RenewalValid)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(goroutines*perG), counter(t, reg, "test_renewals_total", map[string]string{"state": "valid"}))
}

func TestEngineMetrics(t *testing.T) {
	h := newHarness(t)
	cookies := h.register(t, "10.0.0.1", "alice")

	h.engine.Renew(ipCtx("10.0.0.1"), httptest.NewRecorder(), requestWith(cookies))
	h.engine.Renew(ipCtx("10.0.0.1"), httptest.NewRecorder(), requestWith(nil))

	assert.Equal(t, 1.0, counter(t, h.registry, "authcore_operations_total", map[string]string{"operation": "register", "outcome": "success"}))
	assert.Equal(t, 1.0, counter(t, h.registry, "authcore_renewals_total", map[string]string{"state": "valid"}))
	assert.Equal(t, 1.0, counter(t, h.registry, "authcore_renewals_total", map[string]string{"state": "absent"}))
	assert.Equal(t, 1.0, counter(t, h.registry, "authcore_session_writes_total", map[string]string{"operation": "upsert_refresh_token", "outcome": "applied"}))
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	reg := prometheus.NewRegistry()

	engine, err := New().
		WithConfig(cfg).
		WithUserStore(newHarness(t).users).
		WithSessionRepository(session.NewMemoryRepository()).
		WithMetrics(reg).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	engine.Renew(ipCtx("10.0.0.1"), httptest.NewRecorder(), requestWith(nil))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}
