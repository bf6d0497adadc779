// Package config provides configuration types, defaults, and file loading
// for agentpool.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/zjrosen/agentpool/internal/log"
	"github.com/zjrosen/agentpool/pool"
)

// Config holds every user-tunable setting for an agentpool process.
type Config struct {
	Name        string        `mapstructure:"name"`
	Size        int           `mapstructure:"size"`
	MaxOverflow int           `mapstructure:"max_overflow"`
	Strategy    string        `mapstructure:"strategy"` // "lifo" (default) or "fifo"
	LivenessTTL time.Duration `mapstructure:"liveness_ttl"`
	InboxSize   int           `mapstructure:"inbox_size"`
	Serve       ServeConfig   `mapstructure:"serve"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// ServeConfig configures the "serve" subcommand's listener.
type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// MetricsConfig configures OpenTelemetry export for pool status.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"` // "stdout" (default) or "otlp"
	Endpoint string `mapstructure:"endpoint"` // used when exporter is "otlp"
}

// Defaults returns the recommended Config, mirroring pool.Defaults().
func Defaults() Config {
	d := pool.Defaults()
	return Config{
		Name:        "agentpool",
		Size:        d.Size,
		MaxOverflow: d.MaxOverflow,
		Strategy:    "lifo",
		LivenessTTL: d.LivenessTTL,
		InboxSize:   d.InboxSize,
		Serve:       ServeConfig{Addr: ":7421"},
		Metrics:     MetricsConfig{Enabled: true, Exporter: "stdout"},
	}
}

// PoolStrategy resolves the configured strategy name to a pool.Strategy,
// defaulting to pool.LIFO for anything unrecognized.
func (c Config) PoolStrategy() pool.Strategy {
	if c.Strategy == "fifo" {
		return pool.FIFO
	}
	return pool.LIFO
}

// ToPoolConfig builds a pool.Config from c, leaving Supervisor and
// Dispatcher for the caller to fill in.
func (c Config) ToPoolConfig() pool.Config {
	return pool.Config{
		Name:        c.Name,
		Size:        c.Size,
		MaxOverflow: c.MaxOverflow,
		Strategy:    c.PoolStrategy(),
		LivenessTTL: c.LivenessTTL,
		InboxSize:   c.InboxSize,
	}
}

// Load reads configuration from cfgFile if set, or from the usual search
// path otherwise, falling back to a freshly written default file when none
// is found. It returns the resolved Config and the *viper.Viper used to
// load it, so callers can attach a hot-reload watcher via Watch.
func Load(cfgFile string) (Config, *viper.Viper, error) {
	v := viper.New()
	defaults := Defaults()
	v.SetDefault("name", defaults.Name)
	v.SetDefault("size", defaults.Size)
	v.SetDefault("max_overflow", defaults.MaxOverflow)
	v.SetDefault("strategy", defaults.Strategy)
	v.SetDefault("liveness_ttl", defaults.LivenessTTL)
	v.SetDefault("inbox_size", defaults.InboxSize)
	v.SetDefault("serve.addr", defaults.Serve.Addr)
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.exporter", defaults.Metrics.Exporter)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if _, err := os.Stat(".agentpool/config.yaml"); err == nil {
			v.SetConfigFile(".agentpool/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			v.AddConfigPath(filepath.Join(home, ".config", "agentpool"))
			v.SetConfigName("config")
			v.SetConfigType("yaml")
		}
	}

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			defaultPath := ".agentpool/config.yaml"
			if writeErr := WriteDefaultConfig(defaultPath); writeErr == nil {
				v.SetConfigFile(defaultPath)
				_ = v.ReadInConfig()
				log.Info(log.CatConfig, "config loaded", "path", defaultPath)
			}
		} else {
			return cfg, nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		log.Info(log.CatConfig, "config loaded", "path", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, v, nil
}

// Watch registers a callback invoked every time the loaded config file
// changes on disk, re-unmarshalling into a fresh Config. Only Strategy and
// MaxOverflow are meant to be hot-reloaded by callers; a Size change is
// passed through in the new Config but takes effect only on a restart.
func Watch(v *viper.Viper, onChange func(Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			log.ErrorErr(log.CatConfig, "config reload failed", err, "path", e.Name)
			return
		}
		log.Info(log.CatConfig, "config reloaded", "path", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
}

// WriteDefaultConfig writes a commented default configuration file to
// configPath, creating its parent directory if needed.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfigTemplate), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "created default config", "path", configPath)
	return nil
}

const defaultConfigTemplate = `# agentpool configuration
name: agentpool
size: 5
max_overflow: 10
strategy: lifo      # lifo or fifo
liveness_ttl: 30s
inbox_size: 256

serve:
  addr: ":7421"

metrics:
  enabled: true
  exporter: stdout  # stdout or otlp
  endpoint: ""
`
