package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freshRegistry registers the collectors with a new registry regardless of
// what earlier tests registered.
func freshRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	return reg
}

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := freshRegistry(t)
	// idempotent: calling again should be no-op
	require.NoError(t, Register(reg))

	IncTick()
	IncProbe("running")
	IncBridgeStart()
	IncBridgeStop()
	IncBridgeExit(true)
	IncRegistration(true)
	IncUnregistration()
	ObserveStartupWait(2)
	SetBridgeRunning(true)
	RecordStatusTransition("unknown", "started")
	SetRuntimeStatus("started")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	wantNames := map[string]bool{
		"socktainerd_monitor_ticks_total":              false,
		"socktainerd_runtime_probes_total":             false,
		"socktainerd_runtime_status":                   false,
		"socktainerd_runtime_status_transitions_total": false,
		"socktainerd_bridge_starts_total":              false,
		"socktainerd_bridge_stops_total":               false,
		"socktainerd_bridge_exits_total":               false,
		"socktainerd_bridge_running":                   false,
		"socktainerd_bridge_startup_wait_seconds":      false,
		"socktainerd_connection_registrations_total":   false,
		"socktainerd_connection_unregistrations_total": false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
			assert.NotEmpty(t, mf.GetMetric(), mf.GetName())
		}
	}
	for n, ok := range wantNames {
		assert.True(t, ok, "expected to find metric %s", n)
	}
}

func TestRuntimeStatusIsOneHot(t *testing.T) {
	freshRegistry(t)
	SetRuntimeStatus("ready")
	SetRuntimeStatus("stopped")

	for _, s := range RuntimeStatuses {
		want := 0.0
		if s == "stopped" {
			want = 1
		}
		assert.Equal(t, want, testutil.ToFloat64(runtimeStatus.WithLabelValues(s)), s)
	}
}

func TestBridgeRunningGauge(t *testing.T) {
	freshRegistry(t)
	SetBridgeRunning(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(bridgeRunning))
	SetBridgeRunning(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(bridgeRunning))
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := freshRegistry(t)
	IncTick()

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), "socktainerd_monitor_ticks_total")
}

func TestConcurrentIncrements(t *testing.T) {
	reg := freshRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncTick()
			IncBridgeStart()
			IncRegistration(false)
		}()
	}
	wg.Wait()
	// Ensure gather succeeds under race detector
	_, err := reg.Gather()
	require.NoError(t, err)
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// These should be no-ops and not panic when called before Register
	IncTick()
	IncTickFailure()
	IncProbe("x")
	SetRuntimeStatus("ready")
	RecordStatusTransition("a", "b")
	IncBridgeStart()
	IncBridgeSpawnFailure()
	IncBridgeStop()
	IncBridgeExit(false)
	SetBridgeRunning(true)
	IncRegistration(true)
	IncUnregistration()
	ObserveStartupWait(1)
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{})
	require.Error(t, err)
	assert.Equal(t, "test registration error", err.Error())
	assert.False(t, regOK.Load())
}

// Custom registerer for testing error handling
type errorRegisterer struct{}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}
func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
