// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	prev := Get()
	Set(zap.New(core).Sugar())
	t.Cleanup(func() { Set(prev) })
	return logs
}

func TestPackageFunctionsRouteToSingleton(t *testing.T) {
	logs := newObserved(t)

	Debug("debug msg")
	Infof("hello %s", "world")
	Warnw("warned", "key", "value")
	Error("boom")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "debug msg", entries[0].Message)
	assert.Equal(t, "hello world", entries[1].Message)
	assert.Equal(t, "warned", entries[2].Message)
	assert.Equal(t, "value", entries[2].ContextMap()["key"])
	assert.Equal(t, "boom", entries[3].Message)
}

func TestWithScopesFields(t *testing.T) {
	logs := newObserved(t)

	scoped := With("session_id", "abc123")
	scoped.Info("scoped message")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "abc123", entries[0].ContextMap()["session_id"])
}

func TestInitializeReplacesDefault(t *testing.T) {
	prev := Get()
	t.Cleanup(func() { Set(prev) })

	Initialize()
	require.NotNil(t, Get())
}
