package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/socktainerd/internal/host"
	"github.com/loykin/socktainerd/internal/monitor"
	"github.com/loykin/socktainerd/internal/process"
)

type stubMonitor struct {
	status    monitor.Status
	connected bool
}

func (s stubMonitor) Status() monitor.Status { return s.status }
func (s stubMonitor) Connected() bool        { return s.connected }

type stubBridge struct {
	snap  process.Status
	stats process.Stats
	err   error
}

func (s stubBridge) Snapshot() process.Status      { return s.snap }
func (s stubBridge) Stats() (process.Stats, error) { return s.stats, s.err }

func setupRouter(t *testing.T, base string, deps Deps) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(deps, base).Handler()
}

func doGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newLocalHost(t *testing.T) *host.Local {
	t.Helper()
	h := host.NewLocal()
	p, err := h.CreateProvider(host.ProviderOptions{
		ID: "apple-container", Name: "Apple", Status: host.ProviderStarted,
		Images: host.Images{Icon: "./icon.png", Logo: "./logo.png"},
	})
	require.NoError(t, err)
	_, err = p.RegisterConnection(host.Descriptor{
		Name: "Apple", Type: "docker", SocketPath: "/Users/me/.socktainer/container.sock",
		Status: func() host.ConnectionStatus { return host.ConnectionStarted },
	})
	require.NoError(t, err)
	return h
}

func TestStatusEndpoint(t *testing.T) {
	h := setupRouter(t, "/api/", Deps{
		ProviderID: "apple-container",
		Monitor:    stubMonitor{status: monitor.Started, connected: true},
		Bridge:     stubBridge{snap: process.Status{Name: "socktainer", Running: true, PID: 77, Starts: 1}},
	})
	rec := doGet(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "apple-container", resp.Provider)
	assert.Equal(t, monitor.Started, resp.Status)
	assert.True(t, resp.Connected)
	assert.Equal(t, 77, resp.Bridge.PID)
	assert.True(t, resp.Bridge.Running)
}

func TestStatusWithoutMonitor(t *testing.T) {
	h := setupRouter(t, "", Deps{})
	rec := doGet(t, h, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, monitor.Unknown, resp.Status)
	assert.False(t, resp.Connected)
}

func TestConnectionsEndpoint(t *testing.T) {
	h := setupRouter(t, "/api", Deps{Host: newLocalHost(t)})
	rec := doGet(t, h, "/api/connections")
	require.Equal(t, http.StatusOK, rec.Code)

	var conns []host.ConnectionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conns))
	require.Len(t, conns, 1)
	assert.Equal(t, "docker", conns[0].Type)
	assert.Equal(t, host.ConnectionStarted, conns[0].Status)
	assert.Equal(t, "apple-container", conns[0].Provider)
}

func TestEmptyListsAreArrays(t *testing.T) {
	h := setupRouter(t, "", Deps{})
	assert.JSONEq(t, "[]", doGet(t, h, "/connections").Body.String())
	assert.JSONEq(t, "[]", doGet(t, h, "/providers").Body.String())
}

func TestProvidersEndpoint(t *testing.T) {
	h := setupRouter(t, "/api", Deps{Host: newLocalHost(t)})
	rec := doGet(t, h, "/api/providers")
	require.Equal(t, http.StatusOK, rec.Code)

	var ps []host.ProviderInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ps))
	require.Len(t, ps, 1)
	assert.Equal(t, "Apple", ps[0].Name)
	assert.Equal(t, host.ProviderStarted, ps[0].Status)
	assert.Equal(t, "./logo.png", ps[0].Images.Logo)
	assert.Equal(t, 1, ps[0].Connections)
}

func TestBridgeStatsEndpoint(t *testing.T) {
	h := setupRouter(t, "", Deps{Bridge: stubBridge{stats: process.Stats{PID: 9, MemoryRSS: 1024}}})
	rec := doGet(t, h, "/bridge/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var st process.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.EqualValues(t, 9, st.PID)

	h = setupRouter(t, "", Deps{Bridge: stubBridge{err: process.ErrNotStarted}})
	assert.Equal(t, http.StatusNotFound, doGet(t, h, "/bridge/stats").Code)

	h = setupRouter(t, "", Deps{Bridge: stubBridge{err: errors.New("gopsutil failed")}})
	assert.Equal(t, http.StatusInternalServerError, doGet(t, h, "/bridge/stats").Code)

	h = setupRouter(t, "", Deps{})
	assert.Equal(t, http.StatusNotFound, doGet(t, h, "/bridge/stats").Code)
}

func TestUnknownRoute(t *testing.T) {
	h := setupRouter(t, "/api", Deps{})
	assert.Equal(t, http.StatusNotFound, doGet(t, h, "/status").Code)
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":       "",
		"/":      "",
		"api":    "/api",
		"/api/":  "/api",
		" /v1 ":  "/v1",
		"/a/b//": "/a/b",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeBase(in), "input %q", in)
	}
}
