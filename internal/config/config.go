// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package config loads daemon configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full daemon configuration.
type Config struct {
	Supabase SupabaseConfig `mapstructure:"supabase"`
	Database DatabaseConfig `mapstructure:"database"`
	Sync     SyncConfig     `mapstructure:"sync"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
}

// SupabaseConfig points at the hosted remote store.
type SupabaseConfig struct {
	URL         string `mapstructure:"url"`
	AnonKey     string `mapstructure:"anon_key"`
	AccessToken string `mapstructure:"access_token"` // optional; empty = anonymous
}

// DatabaseConfig locates the local store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SyncConfig tunes the orchestrator and scheduler.
type SyncConfig struct {
	RunHour int           `mapstructure:"run_hour"` // local hour of the daily window
	Budget  time.Duration `mapstructure:"budget"`   // background execution ceiling
}

// HTTPConfig configures the local admin surface.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // optional rotating log file
}

// Load reads configuration from the given file path (optional; "" searches
// the working directory for qolsync.yaml) with QOLSYNC_* environment
// overrides, e.g. QOLSYNC_SUPABASE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.path", "qolsync.db")
	v.SetDefault("sync.run_hour", 4)
	v.SetDefault("sync.budget", 5*time.Minute)
	v.SetDefault("http.addr", "127.0.0.1:8787")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("QOLSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("qolsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Missing default config is fine; env vars can carry everything.
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Supabase.URL == "" {
		return nil, fmt.Errorf("supabase.url must be configured")
	}
	if cfg.Supabase.AnonKey == "" {
		return nil, fmt.Errorf("supabase.anon_key must be configured")
	}
	return &cfg, nil
}
