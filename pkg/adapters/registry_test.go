// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopAdapter struct{}

func (*nopAdapter) Start(context.Context, Config, EmitFunc) error { return nil }
func (*nopAdapter) Write(context.Context, []byte) error           { return nil }
func (*nopAdapter) Close(context.Context) ([]byte, error)         { return nil, nil }

func TestRegisterAndLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register("pty", func() Adapter { return &nopAdapter{} }))

	factory, ok := r.Factory("pty")
	require.True(t, ok)
	assert.NotNil(t, factory())

	_, ok = r.Factory("unknown")
	assert.False(t, ok)
}

func TestRegisterDuplicateKind(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	factory := func() Adapter { return &nopAdapter{} }
	require.NoError(t, r.Register("ai", factory))
	assert.Error(t, r.Register("ai", factory))
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.Error(t, r.Register("", func() Adapter { return &nopAdapter{} }))
	assert.Error(t, r.Register("pty", nil))
}

func TestKindsSorted(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	factory := func() Adapter { return &nopAdapter{} }
	require.NoError(t, r.Register("web-view", factory))
	require.NoError(t, r.Register("ai", factory))
	require.NoError(t, r.Register("pty", factory))

	assert.Equal(t, []string{"ai", "pty", "web-view"}, r.Kinds())
}
