package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/socktainerd/internal/host"
	"github.com/loykin/socktainerd/internal/monitor"
	"github.com/loykin/socktainerd/internal/process"
)

// Router provides read-only HTTP handlers over the monitor state.
// Endpoints:
//
//	GET {basePath}/status        runtime status, registration flag, bridge snapshot
//	GET {basePath}/connections   connections registered with the host
//	GET {basePath}/providers     providers and their statuses
//	GET {basePath}/bridge/stats  resource usage of the live bridge process
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	deps     Deps
	basePath string
}

// Monitor is the part of the status monitor the API reads.
type Monitor interface {
	Status() monitor.Status
	Connected() bool
}

// Bridge is the part of the process supervisor the API reads.
type Bridge interface {
	Snapshot() process.Status
	Stats() (process.Stats, error)
}

// HostView lists what the host currently holds.
type HostView interface {
	Providers() []host.ProviderInfo
	Connections() []host.ConnectionInfo
}

// Deps are the sources the router reads from.
type Deps struct {
	ProviderID string
	Monitor    Monitor
	Bridge     Bridge
	Host       HostView
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Provider  string         `json:"provider"`
	Status    monitor.Status `json:"status"`
	Connected bool           `json:"connected"`
	Bridge    process.Status `json:"bridge"`
}

type errorResp struct {
	Error string `json:"error"`
}

// NewRouter constructs a Router serving under basePath.
func NewRouter(deps Deps, basePath string) *Router {
	return &Router{deps: deps, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/connections", r.handleConnections)
	group.GET("/providers", r.handleProviders)
	group.GET("/bridge/stats", r.handleBridgeStats)
	return g
}

// NewServer starts a standalone HTTP server on addr using r.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server failed", "addr", addr, "error", err)
		}
	}()
	return server
}

// Shutdown stops s, waiting at most timeout for in-flight requests.
func Shutdown(s *http.Server, timeout time.Duration) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		_ = s.Close()
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := StatusResponse{Provider: r.deps.ProviderID, Status: monitor.Unknown}
	if r.deps.Monitor != nil {
		resp.Status = r.deps.Monitor.Status()
		resp.Connected = r.deps.Monitor.Connected()
	}
	if r.deps.Bridge != nil {
		resp.Bridge = r.deps.Bridge.Snapshot()
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleConnections(c *gin.Context) {
	conns := []host.ConnectionInfo{}
	if r.deps.Host != nil {
		conns = append(conns, r.deps.Host.Connections()...)
	}
	writeJSON(c, http.StatusOK, conns)
}

func (r *Router) handleProviders(c *gin.Context) {
	ps := []host.ProviderInfo{}
	if r.deps.Host != nil {
		ps = append(ps, r.deps.Host.Providers()...)
	}
	writeJSON(c, http.StatusOK, ps)
}

func (r *Router) handleBridgeStats(c *gin.Context) {
	if r.deps.Bridge == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no bridge supervisor"})
		return
	}
	st, err := r.deps.Bridge.Stats()
	if errors.Is(err, process.ErrNotStarted) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}
