package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flood-watcher/internal/fetcher"
	"flood-watcher/internal/storage"
)

func TestBuildSnapshotPrimaryPreferred(t *testing.T) {
	registry := qaRegistry(t)
	ts := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	latest := map[string]storage.Reading{
		"HatYai": {Timestamp: ts, StationID: "HatYai", LevelM: 9.8},
		"Sadao":  {Timestamp: ts.Add(-time.Minute), StationID: "Sadao", LevelM: 4.2},
	}

	snap := BuildSnapshot(registry, latest, nil)

	require.True(t, snap.HasPrimary())
	assert.Equal(t, 9.8, *snap.PrimaryLevel)
	assert.Equal(t, "HatYai", snap.PrimaryStation)
	assert.Equal(t, "X.90", snap.PrimaryCode)
	assert.False(t, snap.IsFallback)
	assert.Equal(t, ts, snap.Timestamp)
}

func TestBuildSnapshotUpstreamFallback(t *testing.T) {
	registry := qaRegistry(t)
	ts := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	latest := map[string]storage.Reading{
		"Sadao": {Timestamp: ts, StationID: "Sadao", LevelM: 4.2},
	}

	snap := BuildSnapshot(registry, latest, nil)

	require.True(t, snap.HasPrimary())
	assert.Equal(t, 4.2, *snap.PrimaryLevel)
	assert.Equal(t, "Sadao", snap.PrimaryStation)
	assert.True(t, snap.IsFallback)
}

func TestBuildSnapshotDropsZombieReadings(t *testing.T) {
	registry := qaRegistry(t)
	ts := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	latest := map[string]storage.Reading{
		"HatYai": {Timestamp: ts, StationID: "HatYai", LevelM: 9.8},
	}
	outages := map[string]fetcher.OutageStatus{
		"HatYai": {StationID: "HatYai", Offline: true, Detail: "sensor fault"},
	}

	snap := BuildSnapshot(registry, latest, outages)

	// The stored value exists, but the outage cross-reference marks it
	// zombie data: no primary, no fallback.
	assert.False(t, snap.HasPrimary())
	_, ok := snap.Level("HatYai")
	assert.False(t, ok)
}

func TestBuildSnapshotDropsInvalidLevels(t *testing.T) {
	registry := qaRegistry(t)
	ts := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	latest := map[string]storage.Reading{
		"HatYai": {Timestamp: ts, StationID: "HatYai", LevelM: -5.0},
	}

	snap := BuildSnapshot(registry, latest, nil)

	assert.False(t, snap.HasPrimary())
	assert.Empty(t, snap.Levels)
}

func TestBuildSnapshotNoData(t *testing.T) {
	snap := BuildSnapshot(qaRegistry(t), nil, nil)

	assert.False(t, snap.HasPrimary())
	assert.True(t, snap.IsFallback)
}
