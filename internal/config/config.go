// Package config loads and validates the daemon's TOML configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/openeuc/wheelcore/internal/protocol"
)

type Config struct {
	Wheel     WheelConfig     `toml:"wheel"`
	Transport TransportConfig `toml:"transport"`
	Reconnect ReconnectConfig `toml:"reconnect"`
	Redis     RedisConfig     `toml:"redis"`
	Feed      FeedConfig      `toml:"feed"`
}

type WheelConfig struct {
	// Addr is the wheel's link address (BLE MAC or bridge identifier).
	Addr string `toml:"addr"`
	// Name is the advertised device name; detection and per-model scaling
	// key off it.
	Name string `toml:"name"`
	// Type pins the protocol family, bypassing detection. Empty means auto.
	Type string `toml:"type"`
	// BetterPercents selects the piecewise battery curve.
	BetterPercents bool `toml:"better_percents"`
	// DataTimeoutSec is the no-data window before the link is declared lost.
	DataTimeoutSec int `toml:"data_timeout_sec"`
}

type TransportConfig struct {
	// Kind selects the link driver; "serial" is the only built-in.
	Kind string `toml:"kind"`
	// Port is the serial device path, e.g. /dev/rfcomm0.
	Port string `toml:"port"`
	Baud int    `toml:"baud"`
}

type ReconnectConfig struct {
	Enabled         bool `toml:"enabled"`
	ConnectOnStart  bool `toml:"connect_on_start"`
	SettleWindowSec int  `toml:"settle_window_sec"`
}

type RedisConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	// Channel is the pubsub channel telemetry updates are announced on.
	Channel string `toml:"channel"`
	// Key is the hash key holding the latest telemetry snapshot.
	Key string `toml:"key"`
}

type FeedConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

func Load(path string) (Config, error) {
	var cfg Config
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = "serial"
	}
	if cfg.Transport.Baud == 0 {
		cfg.Transport.Baud = 115200
	}
	if cfg.Wheel.DataTimeoutSec == 0 {
		cfg.Wheel.DataTimeoutSec = 15
	}
	if cfg.Reconnect.SettleWindowSec == 0 {
		cfg.Reconnect.SettleWindowSec = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "wheel"
	}
	if cfg.Redis.Key == "" {
		cfg.Redis.Key = "wheel:state"
	}
	if cfg.Feed.Addr == "" {
		cfg.Feed.Addr = ":8080"
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Wheel.Addr) == "" {
		return fmt.Errorf("wheel config missing addr")
	}
	if t := strings.TrimSpace(cfg.Wheel.Type); t != "" {
		if protocol.ParseWheelType(t) == protocol.Unknown {
			return fmt.Errorf("wheel config unknown type: %s", t)
		}
	}
	if cfg.Wheel.DataTimeoutSec < 0 {
		return fmt.Errorf("wheel config negative data_timeout_sec")
	}
	switch cfg.Transport.Kind {
	case "serial":
		if strings.TrimSpace(cfg.Transport.Port) == "" {
			return fmt.Errorf("transport config missing port")
		}
		if cfg.Transport.Baud <= 0 {
			return fmt.Errorf("transport config invalid baud: %d", cfg.Transport.Baud)
		}
	default:
		return fmt.Errorf("transport config unknown kind: %s", cfg.Transport.Kind)
	}
	if cfg.Reconnect.SettleWindowSec < 0 {
		return fmt.Errorf("reconnect config negative settle_window_sec")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return fmt.Errorf("redis config missing addr")
	}
	if cfg.Feed.Enabled && strings.TrimSpace(cfg.Feed.Addr) == "" {
		return fmt.Errorf("feed config missing addr")
	}
	return nil
}
