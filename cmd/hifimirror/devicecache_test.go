package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *DeviceCache {
	t.Helper()
	cache, err := OpenDeviceCache(filepath.Join(t.TempDir(), "devices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestDeviceCache_UpsertAndGet(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()
	seen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, cache.Upsert(ctx, "bluetooth", "Pixel 8 Pro", "", seen))

	got, err := cache.Get(ctx, "bluetooth")
	require.NoError(t, err)
	assert.Equal(t, "Pixel 8 Pro", got.DeviceName)
	assert.Equal(t, "bluetooth", got.Source)

	// Upsert replaces, one row per source.
	require.NoError(t, cache.Upsert(ctx, "bluetooth", "MacBook Air", "", seen.Add(time.Hour)))
	got, err = cache.Get(ctx, "bluetooth")
	require.NoError(t, err)
	assert.Equal(t, "MacBook Air", got.DeviceName)

	all, err := cache.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeviceCache_AllOrdersByRecency(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()
	seen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, cache.Upsert(ctx, "bluetooth", "Pixel 8 Pro", "", seen))
	require.NoError(t, cache.Upsert(ctx, "snapclient", "kitchen-pi", "10.0.0.7", seen.Add(time.Hour)))

	all, err := cache.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "snapclient", all[0].Source)
	assert.Equal(t, "10.0.0.7", all[0].Host)
	assert.Equal(t, "bluetooth", all[1].Source)
}

func TestDeviceCache_GetMissing(t *testing.T) {
	cache := openTestCache(t)

	_, err := cache.Get(context.Background(), "airplay")
	assert.Error(t, err)
}
