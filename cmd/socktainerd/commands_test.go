package main

import (
	"bytes"
	"context"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/socktainerd/internal/config"
	"github.com/loykin/socktainerd/internal/host"
	"github.com/loykin/socktainerd/internal/monitor"
	"github.com/loykin/socktainerd/internal/process"
	"github.com/loykin/socktainerd/internal/server"
	"github.com/loykin/socktainerd/pkg/client"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string, mode os.FileMode) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), mode))
	return p
}

func TestHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "socktainerd")
	for _, sub := range []string{"run", "probe", "status", "bridge-path"} {
		assert.Contains(t, out, sub)
	}
}

func TestProbeCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	dir := t.TempDir()
	cli := writeFile(t, dir, "container", `#!/bin/sh
if [ "$2" = "--version" ]; then echo "container CLI version 0.5.0"; exit 0; fi
exit 1
`, 0o755)
	cfg := writeFile(t, dir, "c.toml", "[runtime]\nbinary = \""+cli+"\"\n", 0o644)

	out, err := execute(t, "--config", cfg, "probe")
	require.NoError(t, err)
	assert.Contains(t, out, "installed: true")
	assert.Contains(t, out, "running:   false")
	assert.Contains(t, out, "container CLI version 0.5.0")

	out, err = execute(t, "--config", cfg, "probe", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"installed":true,"running":false,"version":"container CLI version 0.5.0"}`, out)
}

func TestProbeCommandMissingRuntime(t *testing.T) {
	t.Setenv("SOCKTAINERD_RUNTIME_BINARY", filepath.Join(t.TempDir(), "missing"))
	out, err := execute(t, "probe")
	require.NoError(t, err)
	assert.Contains(t, out, "installed: false")
	assert.Contains(t, out, "version:   -")
}

func TestBridgePathCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg := writeFile(t, t.TempDir(), "c.toml", "[bridge]\nmode = \"development\"\nbase_dir = \"/src/ext/out\"\n", 0o644)

	out, err := execute(t, "--config", cfg, "bridge-path")
	require.NoError(t, err)
	assert.Contains(t, out, "bridge: /src/ext/dist/bin/socktainer")
	assert.Contains(t, out, "missing")
	assert.Contains(t, out, "socket: "+filepath.Join(home, ".socktainer", "container.sock"))
}

func TestBadConfig(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "c.toml", "[bridge]\nmode = \"weird\"\n", 0o644)
	_, err := execute(t, "--config", cfg, "bridge-path")
	assert.ErrorContains(t, err, "bridge.mode")
}

type okMonitor struct{}

func (okMonitor) Status() monitor.Status { return monitor.Started }
func (okMonitor) Connected() bool        { return true }

type okBridge struct{}

func (okBridge) Snapshot() process.Status {
	return process.Status{Name: "socktainer", Running: true, PID: 55, Starts: 1}
}
func (okBridge) Stats() (process.Stats, error) { return process.Stats{}, nil }

func TestStatusCommand(t *testing.T) {
	gin.SetMode(gin.TestMode)
	local := host.NewLocal()
	p, err := local.CreateProvider(host.ProviderOptions{ID: "apple-container", Name: "Apple"})
	require.NoError(t, err)
	_, err = p.RegisterConnection(host.Descriptor{
		Name: "Apple", Type: "docker", SocketPath: "/tmp/container.sock",
		Status: func() host.ConnectionStatus { return host.ConnectionStarted },
	})
	require.NoError(t, err)
	r := server.NewRouter(server.Deps{ProviderID: "apple-container", Monitor: okMonitor{}, Bridge: okBridge{}, Host: local}, "/api")
	ts := httptest.NewServer(r.Handler())
	defer ts.Close()

	out, err := execute(t, "status", "--api-url", ts.URL+"/api")
	require.NoError(t, err)
	assert.Contains(t, out, "started")
	assert.Contains(t, out, "running (pid 55, starts 1)")
	assert.Contains(t, out, "/tmp/container.sock")

	var buf bytes.Buffer
	require.NoError(t, runStatus(context.Background(), &buf, client.New(client.Config{BaseURL: ts.URL + "/api"}), true))
	assert.Contains(t, buf.String(), `"connections"`)
}

func TestStatusCommandUnreachable(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()
	_, err := execute(t, "status", "--api-url", url, "--api-timeout", "500ms")
	assert.ErrorContains(t, err, "not reachable")
}

func TestRunDaemonShutsDownOnCancel(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c := config.Defaults()
	c.Runtime.Binary = filepath.Join(t.TempDir(), "missing-container")
	c.Bridge.Binary = filepath.Join(t.TempDir(), "missing-socktainer")
	c.Server.Listen = "127.0.0.1:0"
	c.Telemetry.DSN = "sqlite://:memory:"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var logs bytes.Buffer
	go func() { done <- runDaemon(ctx, &c, &logs) }()

	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runDaemon did not return")
	}
}

func TestBuildSink(t *testing.T) {
	s, closeFn, err := buildSink("")
	require.NoError(t, err)
	assert.NotNil(t, s)
	closeFn()

	_, _, err = buildSink("bogus://x")
	assert.Error(t, err)
}

func TestDaemonArgs(t *testing.T) {
	in := []string{"run", "--daemonize", "--pidfile", "/tmp/p", "--logfile=/tmp/l", "--config", "c.toml"}
	assert.Equal(t, []string{"run", "--pidfile", "/tmp/p", "--config", "c.toml"}, daemonArgs(in))

	in = []string{"run", "--daemonize=true", "--logfile", "/tmp/l", "--pidfile=/tmp/p"}
	assert.Equal(t, []string{"run", "--pidfile=/tmp/p"}, daemonArgs(in))

	assert.Equal(t, []string{"run"}, daemonArgs([]string{"run", "--daemonize=false"}))
}

func TestRunDaemonReleasesMetricsListenerOnError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	addr := freeAddr(t)
	c := config.Defaults()
	c.Metrics.Listen = addr
	c.Server.Listen = ""
	c.Bridge.Binary = filepath.Join(t.TempDir(), "socktainer")
	c.Bridge.Files = []string{filepath.Join(t.TempDir(), "missing.env")}

	var logs bytes.Buffer
	require.Error(t, runDaemon(context.Background(), &c, &logs))

	// the listener is free again once runDaemon returns
	require.Eventually(t, func() bool {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		_ = l.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestPidFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "d.pid")
	require.NoError(t, writePidFile(p, 1234))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(1234), strings.TrimSpace(string(b)))
	require.NoError(t, removePidFile(p))
	assert.NoError(t, removePidFile(""))
}
