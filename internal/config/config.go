package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/socktainerd/internal/env"
	"github.com/loykin/socktainerd/internal/logger"
	"github.com/loykin/socktainerd/internal/monitor"
	"github.com/loykin/socktainerd/internal/probe"
)

// Bridge binary layouts.
const (
	ModePackaged    = "packaged"
	ModeDevelopment = "development"
)

// EnvPrefix prefixes environment overrides, e.g. SOCKTAINERD_MONITOR_POLL_INTERVAL.
const EnvPrefix = "SOCKTAINERD"

// BridgeBinaryName is the file name of the bridge executable.
const BridgeBinaryName = "socktainer"

// Config is the top-level TOML structure.
type Config struct {
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type RuntimeConfig struct {
	Binary  string        `mapstructure:"binary"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type BridgeConfig struct {
	Mode       string        `mapstructure:"mode"`
	BaseDir    string        `mapstructure:"base_dir"` // empty means the executable's directory
	Binary     string        `mapstructure:"binary"`   // explicit override of the layout
	Log        logger.Config `mapstructure:"log"`
	env.Source `mapstructure:",squash"`
}

type MonitorConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	StartupGrace   time.Duration `mapstructure:"startup_grace"`
	ReadinessCheck bool          `mapstructure:"readiness_check"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"` // empty disables the API
	BasePath string `mapstructure:"base_path"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // empty disables /metrics
}

type TelemetryConfig struct {
	DSN string `mapstructure:"dsn"` // empty logs usage events only
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults returns a runnable configuration that needs no file.
func Defaults() Config {
	return Config{
		Runtime: RuntimeConfig{Binary: probe.DefaultBinary, Timeout: probe.DefaultTimeout},
		Bridge:  BridgeConfig{Mode: ModePackaged},
		Monitor: MonitorConfig{
			PollInterval: monitor.DefaultPollInterval,
			StartupGrace: monitor.DefaultStartupGrace,
		},
		Server: ServerConfig{Listen: "127.0.0.1:8721", BasePath: "/api"},
		Log:    LogConfig{Level: "info", Format: logger.FormatText},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("runtime.binary", d.Runtime.Binary)
	v.SetDefault("runtime.timeout", d.Runtime.Timeout)
	v.SetDefault("bridge.mode", d.Bridge.Mode)
	v.SetDefault("bridge.base_dir", "")
	v.SetDefault("bridge.binary", "")
	v.SetDefault("bridge.use_os_env", false)
	v.SetDefault("bridge.env", []string{})
	v.SetDefault("bridge.env_files", []string{})
	v.SetDefault("bridge.log.dir", "")
	v.SetDefault("bridge.log.stdout", "")
	v.SetDefault("bridge.log.stderr", "")
	v.SetDefault("bridge.log.max_size_mb", 0)
	v.SetDefault("bridge.log.max_backups", 0)
	v.SetDefault("bridge.log.max_age_days", 0)
	v.SetDefault("bridge.log.compress", false)
	v.SetDefault("monitor.poll_interval", d.Monitor.PollInterval)
	v.SetDefault("monitor.startup_grace", d.Monitor.StartupGrace)
	v.SetDefault("monitor.readiness_check", false)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads the TOML file at path, if any, and applies SOCKTAINERD_*
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Bridge.Mode {
	case ModePackaged, ModeDevelopment:
	default:
		return fmt.Errorf("bridge.mode must be %q or %q, got %q", ModePackaged, ModeDevelopment, c.Bridge.Mode)
	}
	if c.Runtime.Binary == "" {
		return errors.New("runtime.binary must not be empty")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive, got %s", c.Monitor.PollInterval)
	}
	if c.Monitor.StartupGrace < 0 {
		return fmt.Errorf("monitor.startup_grace must not be negative, got %s", c.Monitor.StartupGrace)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// BridgePath returns the bridge binary location for one of the two layouts:
// packaged builds ship it under <base>/bin, development builds find it in the
// download directory next to the sources.
func BridgePath(mode, baseDir string) (string, error) {
	switch mode {
	case ModePackaged, "":
		return filepath.Join(baseDir, "bin", BridgeBinaryName), nil
	case ModeDevelopment:
		return filepath.Join(baseDir, "..", "dist", "bin", BridgeBinaryName), nil
	default:
		return "", fmt.Errorf("unknown bridge mode %q", mode)
	}
}

// ResolveBridgePath applies the explicit binary override or the layout of
// the configured mode.
func (b BridgeConfig) ResolveBridgePath() (string, error) {
	if b.Binary != "" {
		return b.Binary, nil
	}
	base := b.BaseDir
	if base == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("failed to locate executable: %w", err)
		}
		base = filepath.Dir(exe)
	}
	return BridgePath(b.Mode, base)
}

// SocketPath is where the bridge serves the Docker-compatible API. It is
// fixed and not configurable.
func SocketPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".socktainer", "container.sock"), nil
}
