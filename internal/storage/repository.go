package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	// Callers must treat this differently from an empty result set:
	// rate-of-change and QA both depend on history being reachable.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertReadingSQL = `INSERT INTO water_levels (
        bucket_ts,
        station_id,
        level_m
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (bucket_ts, station_id) DO NOTHING;`

	listReadingsSinceSQL = `SELECT
        bucket_ts,
        station_id,
        level_m,
        created_at
    FROM water_levels
    WHERE bucket_ts >= $1
    ORDER BY bucket_ts;`

	listReadingsBetweenSQL = `SELECT
        bucket_ts,
        station_id,
        level_m,
        created_at
    FROM water_levels
    WHERE bucket_ts >= $1 AND bucket_ts < $2
    ORDER BY bucket_ts;`

	latestReadingsSQL = `SELECT DISTINCT ON (station_id)
        bucket_ts,
        station_id,
        level_m,
        created_at
    FROM water_levels
    WHERE bucket_ts >= $1
    ORDER BY station_id, bucket_ts DESC;`

	countReadingsSQL = `SELECT COUNT(*) FROM water_levels;`

	insertAssessmentSQL = `INSERT INTO risk_assessments (
        assessed_at,
        rain_3d_mm,
        level_m,
        risk_score,
        alert_tier,
        data_source
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    ) RETURNING id, created_at;`

	listRecentAssessmentsSQL = `SELECT
        id,
        assessed_at,
        rain_3d_mm,
        level_m,
        risk_score,
        alert_tier,
        data_source,
        created_at
    FROM risk_assessments
    ORDER BY assessed_at DESC
    LIMIT $1;`

	insertProvenanceSQL = `INSERT INTO fetch_provenance (
        source,
        endpoint,
        station_ids,
        fetched_at,
        status,
        fingerprint,
        payload_bytes
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	deleteReadingsBeforeSQL = `DELETE FROM water_levels WHERE bucket_ts < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ReadingStore defines time-series persistence for gauge readings.
type ReadingStore interface {
	RecordReading(ctx context.Context, r Reading) error
	ReadingsSince(ctx context.Context, window time.Duration) ([]Reading, error)
	LatestReadings(ctx context.Context, within time.Duration) (map[string]Reading, error)
	CountReadings(ctx context.Context) (int64, error)
}

// AssessmentStore defines operations for the risk audit log.
type AssessmentStore interface {
	AppendAssessment(ctx context.Context, a Assessment) (Assessment, error)
	ListRecentAssessments(ctx context.Context, limit int) ([]Assessment, error)
}

// ProvenanceStore records external fetch attribution.
type ProvenanceStore interface {
	RecordProvenance(ctx context.Context, p Provenance) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// ReadingPruner trims stored readings past the retention horizon.
type ReadingPruner interface {
	DeleteReadingsBefore(ctx context.Context, olderThan time.Time) error
}

// LevelValidator re-checks a stored level against station thresholds at
// read time; stored rows may predate a threshold change.
type LevelValidator func(stationID string, level float64) bool

// Store aggregates access to readings, assessments, and provenance.
type Store struct {
	pool     *pgxpool.Pool
	validate LevelValidator
}

// NewStore wires a pgx pool into a Store. validate may be nil, in which
// case readings are returned unfiltered.
func NewStore(pool *pgxpool.Pool, validate LevelValidator) *Store {
	return &Store{pool: pool, validate: validate}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// RecordReading inserts a reading if the (timestamp, station) pair is absent.
// Re-inserting an already-stored observation is a no-op.
func (s *Store) RecordReading(ctx context.Context, r Reading) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertReadingSQL, r.Timestamp, r.StationID, r.LevelM); execErr != nil {
		return fmt.Errorf("record reading: %w", execErr)
	}
	return nil
}

// ReadingsSince lists readings within the trailing window, ascending by
// timestamp, with the per-station validity floor re-applied.
func (s *Store) ReadingsSince(ctx context.Context, window time.Duration) ([]Reading, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().Add(-window)
	rows, queryErr := pool.Query(ctx, listReadingsSinceSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list readings since: %w", queryErr)
	}
	defer rows.Close()

	readings := make([]Reading, 0)
	for rows.Next() {
		var r Reading
		if scanErr := rows.Scan(&r.Timestamp, &r.StationID, &r.LevelM, &r.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		if s.validate != nil && !s.validate(r.StationID, r.LevelM) {
			continue
		}
		readings = append(readings, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return readings, nil
}

// ReadingsBetween lists readings in [from, to), ascending by timestamp.
func (s *Store) ReadingsBetween(ctx context.Context, from, to time.Time) ([]Reading, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listReadingsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list readings between: %w", queryErr)
	}
	defer rows.Close()

	readings := make([]Reading, 0)
	for rows.Next() {
		var r Reading
		if scanErr := rows.Scan(&r.Timestamp, &r.StationID, &r.LevelM, &r.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		if s.validate != nil && !s.validate(r.StationID, r.LevelM) {
			continue
		}
		readings = append(readings, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return readings, nil
}

// LatestReadings returns the most recent reading per station, restricted
// to the given freshness window.
func (s *Store) LatestReadings(ctx context.Context, within time.Duration) (map[string]Reading, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().Add(-within)
	rows, queryErr := pool.Query(ctx, latestReadingsSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("latest readings: %w", queryErr)
	}
	defer rows.Close()

	latest := make(map[string]Reading)
	for rows.Next() {
		var r Reading
		if scanErr := rows.Scan(&r.Timestamp, &r.StationID, &r.LevelM, &r.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		if s.validate != nil && !s.validate(r.StationID, r.LevelM) {
			continue
		}
		latest[r.StationID] = r
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return latest, nil
}

// CountReadings counts stored readings.
func (s *Store) CountReadings(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countReadingsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count readings: %w", scanErr)
	}
	return count, nil
}

// AppendAssessment persists one risk-analysis outcome.
func (s *Store) AppendAssessment(ctx context.Context, a Assessment) (Assessment, error) {
	pool, err := s.getPool()
	if err != nil {
		return Assessment{}, err
	}

	var level interface{}
	if a.LevelM != nil {
		level = *a.LevelM
	}

	row := pool.QueryRow(ctx, insertAssessmentSQL,
		a.AssessedAt,
		a.Rain3DMM,
		level,
		a.RiskScore,
		a.AlertTier,
		a.DataSource,
	)
	if scanErr := row.Scan(&a.ID, &a.CreatedAt); scanErr != nil {
		return Assessment{}, fmt.Errorf("append assessment: %w", scanErr)
	}
	return a, nil
}

// ListRecentAssessments lists the most recent audit-log rows.
func (s *Store) ListRecentAssessments(ctx context.Context, limit int) ([]Assessment, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAssessmentsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent assessments: %w", queryErr)
	}
	defer rows.Close()

	assessments := make([]Assessment, 0, limit)
	for rows.Next() {
		var a Assessment
		var level *float64
		if err := rows.Scan(
			&a.ID,
			&a.AssessedAt,
			&a.Rain3DMM,
			&level,
			&a.RiskScore,
			&a.AlertTier,
			&a.DataSource,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		a.LevelM = level
		assessments = append(assessments, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return assessments, nil
}

// RecordProvenance appends one fetch attribution row.
func (s *Store) RecordProvenance(ctx context.Context, p Provenance) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertProvenanceSQL,
		p.Source,
		p.Endpoint,
		p.StationIDs,
		p.FetchedAt,
		p.Status,
		p.Fingerprint,
		p.PayloadBytes,
	); execErr != nil {
		return fmt.Errorf("record provenance: %w", execErr)
	}
	return nil
}

// DeleteReadingsBefore trims history past the retention horizon.
func (s *Store) DeleteReadingsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteReadingsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete readings before: %w", execErr)
	}
	return nil
}
