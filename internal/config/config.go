// Package config loads the runtime configuration shared by the master and
// worker commands: a TOML file discovered next to the binary or under the
// user config dir, every key overridable by flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = "mxload"
)

// Config is the resolved runtime configuration.
type Config struct {
	// HomeserverURL is the target chat server every virtual client talks
	// to.
	HomeserverURL string

	// ListenAddr is where the master serves its websocket and /metrics.
	// MasterURL is where workers dial it.
	ListenAddr string
	MasterURL  string

	// WorkerCount is how many workers the master partitions the roster
	// for.
	WorkerCount int

	RosterPath  string
	TokensPath  string
	RoomsPath   string
	ProfilePath string

	SyncTimeout time.Duration
	RunDuration time.Duration

	MaxClients int
	SpawnRate  float64
	Seed       int64
}

func setDefaults(cfg *viper.Viper) {
	cfg.SetDefault("homeserver.url", "http://127.0.0.1:8008")
	cfg.SetDefault("master.listen", "127.0.0.1:5557")
	cfg.SetDefault("master.url", "ws://127.0.0.1:5557/ws")
	cfg.SetDefault("master.workers", 1)
	cfg.SetDefault("files.roster", "users.csv")
	cfg.SetDefault("files.tokens", "tokens.csv")
	cfg.SetDefault("files.rooms", "rooms.json")
	cfg.SetDefault("files.profile", "")
	cfg.SetDefault("run.sync_timeout", "30s")
	cfg.SetDefault("run.duration", "0s")
	cfg.SetDefault("run.max_clients", 0)
	cfg.SetDefault("run.spawn_rate", 3.0)
	cfg.SetDefault("run.seed", 0)
}

// Load reads the configuration. path, when non-empty, names an explicit
// config file and a read failure is fatal; otherwise the default search
// locations are tried and a missing file just means defaults.
func Load(cfg *viper.Viper, path string) (Config, error) {
	if cfg == nil {
		cfg = viper.New()
	}
	setDefaults(cfg)

	if path != "" {
		cfg.SetConfigFile(path)
		if err := cfg.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		cfg.SetConfigName(configName)
		cfg.SetConfigType(configType)
		cfg.AddConfigPath(".")
		if configHome, err := os.UserConfigDir(); err == nil {
			cfg.AddConfigPath(filepath.Join(configHome, configDir))
		}
		if err := cfg.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	out := Config{
		HomeserverURL: cfg.GetString("homeserver.url"),
		ListenAddr:    cfg.GetString("master.listen"),
		MasterURL:     cfg.GetString("master.url"),
		WorkerCount:   cfg.GetInt("master.workers"),
		RosterPath:    cfg.GetString("files.roster"),
		TokensPath:    cfg.GetString("files.tokens"),
		RoomsPath:     cfg.GetString("files.rooms"),
		ProfilePath:   cfg.GetString("files.profile"),
		SyncTimeout:   cfg.GetDuration("run.sync_timeout"),
		RunDuration:   cfg.GetDuration("run.duration"),
		MaxClients:    cfg.GetInt("run.max_clients"),
		SpawnRate:     cfg.GetFloat64("run.spawn_rate"),
		Seed:          cfg.GetInt64("run.seed"),
	}
	return out, out.validate()
}

func (c Config) validate() error {
	if c.HomeserverURL == "" {
		return errors.New("homeserver.url is required")
	}
	if c.WorkerCount < 1 {
		return errors.New("master.workers must be at least 1")
	}
	if c.SyncTimeout <= 0 {
		return errors.New("run.sync_timeout must be positive")
	}
	if c.SpawnRate < 0 {
		return errors.New("run.spawn_rate must not be negative")
	}
	return nil
}
