package analysis

import (
	"time"

	"flood-watcher/internal/fetcher"
	"flood-watcher/internal/stations"
	"flood-watcher/internal/storage"
)

// BankInfo carries provider-side station extras used by the QA
// validator for cross-source consistency checks.
type BankInfo struct {
	SituationLevel *int
	GroundLevel    *float64
}

// Snapshot is the latest known reading per station plus the designated
// primary level. It is a derived view, recomputed every cycle, never
// persisted.
type Snapshot struct {
	Levels         map[string]float64
	BankInfo       map[string]BankInfo
	PrimaryLevel   *float64
	PrimaryStation string
	PrimaryCode    string
	IsFallback     bool
	Timestamp      time.Time
}

// HasPrimary reports whether any usable primary (or fallback) level exists.
func (s Snapshot) HasPrimary() bool {
	return s.PrimaryLevel != nil
}

// Level returns a station's current level if present.
func (s Snapshot) Level(stationID string) (float64, bool) {
	v, ok := s.Levels[stationID]
	return v, ok
}

// BuildSnapshot assembles a Snapshot from the latest stored readings,
// discarding zombie readings that an independent outage signal marks
// unreliable. The primary station's level is preferred; the upstream
// station serves as fallback, and the is-fallback flag records which
// one actually backs the level.
func BuildSnapshot(registry *stations.Registry, latest map[string]storage.Reading, outages map[string]fetcher.OutageStatus) Snapshot {
	snap := Snapshot{
		Levels:     make(map[string]float64),
		BankInfo:   make(map[string]BankInfo),
		IsFallback: true,
	}

	for id, r := range latest {
		if st, ok := outages[id]; ok && st.Offline {
			continue
		}
		if !registry.ValidLevel(id, r.LevelM) {
			continue
		}
		snap.Levels[id] = r.LevelM
		if r.Timestamp.After(snap.Timestamp) {
			snap.Timestamp = r.Timestamp
		}
	}

	primary := registry.Primary()
	if level, ok := snap.Levels[primary.ID]; ok {
		snap.PrimaryLevel = &level
		snap.PrimaryStation = primary.ID
		snap.PrimaryCode = primary.Code
		snap.IsFallback = false
		return snap
	}

	upstream := registry.Upstream()
	if level, ok := snap.Levels[upstream.ID]; ok {
		snap.PrimaryLevel = &level
		snap.PrimaryStation = upstream.ID
		snap.PrimaryCode = upstream.Code
	}

	return snap
}
