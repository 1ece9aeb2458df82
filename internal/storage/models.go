package storage

import "time"

// Reading is one persisted gauge observation. Rows are append-only and
// unique per (timestamp, station).
type Reading struct {
	Timestamp time.Time
	StationID string
	LevelM    float64
	CreatedAt time.Time
}

// Assessment captures one risk-analysis outcome for the audit log.
type Assessment struct {
	ID         int64
	AssessedAt time.Time
	Rain3DMM   float64
	LevelM     *float64
	RiskScore  float64
	AlertTier  string
	DataSource string
	CreatedAt  time.Time
}

// Provenance records one external fetch for traceability.
type Provenance struct {
	ID           int64
	Source       string
	Endpoint     string
	StationIDs   []string
	FetchedAt    time.Time
	Status       string
	Fingerprint  string
	PayloadBytes int
	CreatedAt    time.Time
}
