package stations

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"flood-watcher/internal/config"
)

// Station is static reference metadata for one monitored gauge.
type Station struct {
	ID                string
	Code              string
	Name              string
	ProviderID        int
	Latitude          float64
	Longitude         float64
	GroundLevel       float64
	BankFullCapacity  float64
	CriticalThreshold float64
	WarningThreshold  float64
	MinValidLevel     float64
}

// Registry is the read-only station table, loaded once from configuration.
type Registry struct {
	byID       map[string]Station
	byProvider map[int]Station
	order      []string
	primary    string
	upstream   string
}

// NewRegistry builds a Registry from basin configuration.
func NewRegistry(cfg config.BasinConfig) (*Registry, error) {
	r := &Registry{
		byID:       make(map[string]Station, len(cfg.Stations)),
		byProvider: make(map[int]Station, len(cfg.Stations)),
		primary:    cfg.PrimaryStation,
		upstream:   cfg.UpstreamStation,
	}
	for _, sc := range cfg.Stations {
		if _, dup := r.byID[sc.ID]; dup {
			return nil, fmt.Errorf("duplicate station id %q", sc.ID)
		}
		st := Station{
			ID:                sc.ID,
			Code:              sc.Code,
			Name:              sc.Name,
			ProviderID:        sc.ProviderID,
			Latitude:          sc.Latitude,
			Longitude:         sc.Longitude,
			GroundLevel:       sc.GroundLevel,
			BankFullCapacity:  sc.BankFullCapacity,
			CriticalThreshold: sc.CriticalThreshold,
			WarningThreshold:  sc.WarningThreshold,
			MinValidLevel:     sc.MinValidLevel,
		}
		r.byID[st.ID] = st
		if st.ProviderID != 0 {
			r.byProvider[st.ProviderID] = st
		}
		r.order = append(r.order, st.ID)
	}
	return r, nil
}

// Get returns the station by id.
func (r *Registry) Get(id string) (Station, bool) {
	st, ok := r.byID[id]
	return st, ok
}

// ByProviderID resolves a station from its upstream API numeric id.
func (r *Registry) ByProviderID(id int) (Station, bool) {
	st, ok := r.byProvider[id]
	return st, ok
}

// IDs returns station ids in configuration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Primary returns the designated primary (downstream) station.
func (r *Registry) Primary() Station {
	return r.byID[r.primary]
}

// Upstream returns the designated upstream station.
func (r *Registry) Upstream() Station {
	return r.byID[r.upstream]
}

// Sanitize converts a raw telemetry value to a level in meters MSL.
// The gauge provider emits a deeply negative sentinel for "no data";
// anything at or below the station's minimum valid level is rejected,
// as is any value that fails numeric conversion. Returns ok=false for
// a rejected reading.
func (r *Registry) Sanitize(raw string, stationID string) (float64, bool) {
	st, known := r.byID[stationID]
	if !known {
		return 0, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	level := d.InexactFloat64()
	if level <= st.MinValidLevel {
		return 0, false
	}
	return level, true
}

// ValidLevel re-applies the sanitizer's floor to an already-numeric level.
// The store uses this at read time so a row can never resurrect a sentinel.
func (r *Registry) ValidLevel(stationID string, level float64) bool {
	st, known := r.byID[stationID]
	if !known {
		return false
	}
	return level > st.MinValidLevel
}
