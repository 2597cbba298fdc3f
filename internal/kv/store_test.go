package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name     string
		parts    []string
		expected string
	}{
		{
			name:     "state key",
			parts:    []string{"state", "100", "200"},
			expected: "state:100:200",
		},
		{
			name:     "single part",
			parts:    []string{"token"},
			expected: "token",
		},
		{
			name:     "geocode key with spaces preserved",
			parts:    []string{"geocode", "dallas, tx"},
			expected: "geocode:dallas, tx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Key(tt.parts...))
		})
	}
}

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	data, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, data, "absent key should read as nil without error")

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

	data, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)

	require.NoError(t, store.Delete(ctx, "k"))

	data, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 10*time.Minute))

	now = now.Add(9 * time.Minute)
	data, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data, "entry should survive until its ttl")

	now = now.Add(time.Minute)
	data, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, data, "entry should expire once the ttl elapses")
	assert.Equal(t, 0, store.Len())
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))

	now = now.Add(24 * 365 * time.Hour)
	data, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	original := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", original, 0))
	original[0] = 'x'

	data, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data, "stored value must not alias the caller's slice")

	data[0] = 'z'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}
