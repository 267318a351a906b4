// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the dispatch server configuration.
//
// All settings can be supplied as flags (bound by the command tree),
// environment variables prefixed with DISPATCH_, or left at their
// defaults. Only three inputs are required for a working server: where
// to listen, where to keep durable state, and the auth secret.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults for settings that are usually left alone.
const (
	DefaultListenAddress  = "127.0.0.1:8787"
	DefaultIdleThreshold  = 2 * time.Minute
	DefaultCloseGrace     = 5 * time.Second
	DefaultClientQueueCap = 256
	DefaultEmitQueueCap   = 512
)

// Config holds the dispatch server configuration.
type Config struct {
	// ListenAddress is the host:port the HTTP/WS server binds to.
	ListenAddress string

	// DataDir is the directory holding the event store database.
	DataDir string

	// WorkspaceRoot is the default root for resolving relative
	// workspace paths.
	WorkspaceRoot string

	// AuthSecret signs and verifies transport credentials. Consumed by
	// the auth collaborator, never logged.
	AuthSecret string

	// IdleThreshold is how long a session may be inactive before it is
	// advisorily marked idle.
	IdleThreshold time.Duration

	// CloseGrace is how long adapters get to shut down and return
	// resume state before being force-closed.
	CloseGrace time.Duration

	// ClientQueueCap bounds each subscription's outbound queue.
	ClientQueueCap int

	// EmitQueueCap bounds each session's emit queue.
	EmitQueueCap int

	// Debug enables debug logging.
	Debug bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen-address", DefaultListenAddress)
	v.SetDefault("idle-threshold", DefaultIdleThreshold)
	v.SetDefault("close-grace", DefaultCloseGrace)
	v.SetDefault("client-queue-cap", DefaultClientQueueCap)
	v.SetDefault("emit-queue-cap", DefaultEmitQueueCap)
	v.SetDefault("debug", false)
}

// Load reads configuration from the shared viper instance, applying
// defaults and validating the result.
func Load() (*Config, error) {
	return load(viper.GetViper())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("dispatch")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		ListenAddress:  v.GetString("listen-address"),
		DataDir:        v.GetString("data-dir"),
		WorkspaceRoot:  v.GetString("workspace-root"),
		AuthSecret:     v.GetString("auth-secret"),
		IdleThreshold:  v.GetDuration("idle-threshold"),
		CloseGrace:     v.GetDuration("close-grace"),
		ClientQueueCap: v.GetInt("client-queue-cap"),
		EmitQueueCap:   v.GetInt("emit-queue-cap"),
		Debug:          v.GetBool("debug"),
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving default data dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".dispatch")
	}
	if cfg.WorkspaceRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving default workspace root: %w", err)
		}
		cfg.WorkspaceRoot = wd
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen-address must not be empty")
	}
	if !filepath.IsAbs(c.DataDir) {
		return fmt.Errorf("data-dir must be an absolute path, got %q", c.DataDir)
	}
	if !filepath.IsAbs(c.WorkspaceRoot) {
		return fmt.Errorf("workspace-root must be an absolute path, got %q", c.WorkspaceRoot)
	}
	if c.ClientQueueCap <= 0 {
		return fmt.Errorf("client-queue-cap must be positive, got %d", c.ClientQueueCap)
	}
	if c.EmitQueueCap <= 0 {
		return fmt.Errorf("emit-queue-cap must be positive, got %d", c.EmitQueueCap)
	}
	return nil
}

// DatabasePath returns the path of the SQLite database inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "dispatch.db")
}
