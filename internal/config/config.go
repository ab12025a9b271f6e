// Package config loads upstairsd's region and network configuration with
// viper and can watch the file for changes with fsnotify, handing each
// reloaded Config to a callback.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is upstairsd's daemon configuration.
type Config struct {
	RegionDir        string        `mapstructure:"region_dir"`
	ExtentSizeBlocks uint64        `mapstructure:"extent_size_blocks"`
	ExtentCount      uint64        `mapstructure:"extent_count"`
	Targets          [3]string     `mapstructure:"targets"`
	SocketPath       string        `mapstructure:"socket_path"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	LogPath          string        `mapstructure:"log_path"`
	LogLevel         string        `mapstructure:"log_level"`
	ReconnectInitial time.Duration `mapstructure:"reconnect_initial"`
	ReconnectMax     time.Duration `mapstructure:"reconnect_max"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("extent_size_blocks", 131072)
	v.SetDefault("extent_count", 128)
	v.SetDefault("socket_path", "./upstairs.sock")
	v.SetDefault("metrics_addr", "127.0.0.1:9100")
	v.SetDefault("log_level", "info")
	v.SetDefault("reconnect_initial", 100*time.Millisecond)
	v.SetDefault("reconnect_max", 30*time.Second)
}

// Load reads configuration from the defaults above, the file at path (if
// non-empty), and environment variables prefixed UPSTAIRS_. Environment
// variables override the file, and the file overrides the defaults.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("upstairs")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, v, nil
}

// WatchAndReload installs an fsnotify-backed watch on the loaded config
// file, invoking onChange with the freshly unmarshaled Config whenever it
// is edited. Errors while reloading are logged but don't stop the watch.
func WatchAndReload(v *viper.Viper, log *slog.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			log.Error("config reload failed", "error", err, "event", e.Name)
			return
		}
		log.Info("config reloaded", "file", e.Name)
		onChange(&cfg)
	})
	v.WatchConfig()
}
