package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// helper to close non-nil closers and ignore errors
func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestWriters_WithDirOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	require.True(t, cfg.Enabled())
	outW, errW := cfg.Writers("socktainer")
	require.NotNil(t, outW)
	require.NotNil(t, errW)
	_, _ = outW.Write([]byte("hello-out\n"))
	_, _ = errW.Write([]byte("hello-err\n"))
	closeIf(outW)
	closeIf(errW)

	for _, p := range []string{"socktainer.stdout.log", "socktainer.stderr.log"} {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Fatalf("log not created at %s: %v", p, err)
		}
	}
}

func TestWriters_ExplicitPathsOverrideDir(t *testing.T) {
	dir := t.TempDir()
	sp := filepath.Join(dir, "s.out.log")
	cfg := Config{Dir: filepath.Join(dir, "unused"), StdoutPath: sp}
	outW, errW := cfg.Writers("x")
	defer closeIf(outW)
	defer closeIf(errW)

	lo, ok := outW.(*lj.Logger)
	require.True(t, ok)
	assert.Equal(t, sp, lo.Filename)
	le, ok := errW.(*lj.Logger)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "unused", "x.stderr.log"), le.Filename)
}

func TestWriters_DefaultsApplied(t *testing.T) {
	cfg := Config{StdoutPath: filepath.Join(t.TempDir(), "o.log"), MaxBackups: 9}
	outW, errW := cfg.Writers("x")
	defer closeIf(outW)
	assert.Nil(t, errW)
	lo := outW.(*lj.Logger)
	assert.Equal(t, DefaultMaxSizeMB, lo.MaxSize)
	assert.Equal(t, 9, lo.MaxBackups)
	assert.Equal(t, DefaultMaxAgeDays, lo.MaxAge)
}

func TestDisabledConfig(t *testing.T) {
	var cfg Config
	assert.False(t, cfg.Enabled())
	outW, errW := cfg.Writers("x")
	assert.Nil(t, outW)
	assert.Nil(t, errW)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info", FormatJSON)
	require.NoError(t, err)
	l.Info("probe", "installed", true)
	assert.Contains(t, buf.String(), `"installed":true`)

	buf.Reset()
	l, err = New(&buf, "debug", FormatColor)
	require.NoError(t, err)
	l.With("component", "monitor").Error("boom")
	out := buf.String()
	assert.Contains(t, out, "\033[31mERROR")
	assert.Contains(t, out, "component=monitor")

	buf.Reset()
	l, err = New(&buf, "warn", FormatText)
	require.NoError(t, err)
	l.Info("hidden")
	assert.False(t, strings.Contains(buf.String(), "hidden"))

	_, err = New(&buf, "info", "xml")
	assert.Error(t, err)
}
