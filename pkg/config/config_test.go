// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	v.Set("data-dir", t.TempDir())
	v.Set("workspace-root", t.TempDir())

	cfg, err := load(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddress, cfg.ListenAddress)
	assert.Equal(t, DefaultIdleThreshold, cfg.IdleThreshold)
	assert.Equal(t, DefaultCloseGrace, cfg.CloseGrace)
	assert.Equal(t, DefaultClientQueueCap, cfg.ClientQueueCap)
	assert.Equal(t, DefaultEmitQueueCap, cfg.EmitQueueCap)
	assert.False(t, cfg.Debug)
}

func TestLoadOverrides(t *testing.T) {
	dataDir := t.TempDir()
	v := viper.New()
	v.Set("listen-address", "0.0.0.0:9999")
	v.Set("data-dir", dataDir)
	v.Set("workspace-root", t.TempDir())
	v.Set("idle-threshold", 30*time.Second)
	v.Set("client-queue-cap", 16)

	cfg, err := load(v)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9999", cfg.ListenAddress)
	assert.Equal(t, 30*time.Second, cfg.IdleThreshold)
	assert.Equal(t, 16, cfg.ClientQueueCap)
	assert.Equal(t, filepath.Join(dataDir, "dispatch.db"), cfg.DatabasePath())
}

func TestLoadRejectsRelativePaths(t *testing.T) {
	v := viper.New()
	v.Set("data-dir", "relative/dir")
	v.Set("workspace-root", t.TempDir())

	_, err := load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data-dir")
}

func TestLoadRejectsNonPositiveQueueCaps(t *testing.T) {
	v := viper.New()
	v.Set("data-dir", t.TempDir())
	v.Set("workspace-root", t.TempDir())
	v.Set("emit-queue-cap", 0)

	_, err := load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "emit-queue-cap")
}
