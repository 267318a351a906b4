// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsValidUUID(t *testing.T) {
	t.Parallel()

	id := NewID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.True(t, ValidID(id))
}

func TestValidID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"uuid", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", true},
		{"legacy", "pty-1700000000000-a1b2c3", true},
		{"empty", "", false},
		{"too long", string(make([]byte, 65)), false},
		{"spaces", "has space", false},
		{"slash", "a/b", false},
		{"dots and tildes", "a.b~c_d-e", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ValidID(tt.id))
		})
	}
}

func TestParseLegacyID(t *testing.T) {
	t.Parallel()

	millis := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC).UnixMilli()

	legacy, ok := ParseLegacyID("pty-1700000000000-a1b2c3")
	require.True(t, ok)
	assert.Equal(t, "pty", legacy.Kind)
	assert.Equal(t, millis, legacy.Timestamp.UnixMilli())
	assert.Equal(t, "a1b2c3", legacy.Nonce)
}

func TestParseLegacyIDKindWithDashes(t *testing.T) {
	t.Parallel()

	legacy, ok := ParseLegacyID("web-view-1700000000000-ff00aa")
	require.True(t, ok)
	assert.Equal(t, "web-view", legacy.Kind)
	assert.Equal(t, "ff00aa", legacy.Nonce)
}

func TestParseLegacyIDRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
	}{
		{"uuid", uuid.NewString()},
		{"too few parts", "pty-123"},
		{"bad timestamp", "pty-notanumber-abc"},
		{"zero timestamp", "pty-0-abc"},
		{"empty nonce", "pty-1700000000000-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok := ParseLegacyID(tt.id)
			assert.False(t, ok)
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusClosed.Terminal())
	assert.False(t, StatusError.Terminal())

	assert.True(t, StatusStarting.Live())
	assert.True(t, StatusRunning.Live())
	assert.True(t, StatusIdle.Live())
	assert.False(t, StatusError.Live())
	assert.False(t, StatusClosed.Live())

	assert.True(t, StatusRunning.Valid())
	assert.False(t, Status("bogus").Valid())
}

func TestMarshalPayload(t *testing.T) {
	t.Parallel()

	raw, err := MarshalPayload(StatusPayload{Status: StatusRunning})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"running"}`, string(raw))

	raw, err = MarshalPayload(nil)
	require.NoError(t, err)
	assert.Nil(t, raw)
}
