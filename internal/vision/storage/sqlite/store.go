// Package sqlite persists pipeline runs: fused objects per step, the identity
// registry for restart recovery, and end-of-run diagnostic counters.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/warren-data/habitat.report/internal/vision"
)

// Store wraps a sqlite database holding monitoring run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer; WAL keeps report readers from blocking the pipeline.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// BeginRun records the start of a monitoring run and returns its ID.
func (s *Store) BeginRun(startedAt time.Time, cameras []string) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, started_at, cameras) VALUES (?, ?, ?)`,
		runID, startedAt.UnixNano(), strings.Join(cameras, ","),
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return runID, nil
}

// EndRun marks a run as finished.
func (s *Store) EndRun(runID string, endedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE runs SET ended_at = ? WHERE run_id = ?`,
		endedAt.UnixNano(), runID,
	)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	return nil
}

// RecordStep persists one synchronized step's fused objects and their member
// tracks in a single transaction.
func (s *Store) RecordStep(runID string, step int64, objects []vision.FusedObject) error {
	if len(objects) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	defer tx.Rollback()

	for _, obj := range objects {
		result, err := tx.Exec(
			`INSERT INTO fused_objects (run_id, step, ts_unix_nanos, global_id, member_count, confidence)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			runID, step, obj.Timestamp.UnixNano(), obj.GlobalID, len(obj.Members), float64(obj.AggregateConfidence),
		)
		if err != nil {
			return fmt.Errorf("insert fused object %s: %w", obj.GlobalID, err)
		}
		objectID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("get fused object insert ID: %w", err)
		}

		for _, m := range obj.Members {
			box := m.Track.Box
			_, err := tx.Exec(
				`INSERT INTO fused_members (object_id, camera_id, local_id, confidence, x1, y1, x2, y2)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				objectID, m.CameraID, m.Track.LocalID, float64(m.Track.Confidence),
				float64(box.X1), float64(box.Y1), float64(box.X2), float64(box.Y2),
			)
			if err != nil {
				return fmt.Errorf("insert member %s/%d: %w", m.CameraID, m.Track.LocalID, err)
			}
		}
	}
	return tx.Commit()
}

// SaveRegistry replaces the stored registry snapshot for a run. Prototypes
// and camera bindings are stored as JSON.
func (s *Store) SaveRegistry(runID string, snap vision.RegistrySnapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM identities WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear identities: %w", err)
	}

	for i, id := range snap.Identities {
		prototype, bindings, err := encodeIdentity(id)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO identities (run_id, position, global_id, created_at, prototype, bindings)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			runID, i, id.GlobalID, id.CreatedAt.UnixNano(), prototype, bindings,
		)
		if err != nil {
			return fmt.Errorf("insert identity %s: %w", id.GlobalID, err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO registry_state (run_id, next_id) VALUES (?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET next_id = excluded.next_id`,
		runID, snap.NextID,
	)
	if err != nil {
		return fmt.Errorf("save registry state: %w", err)
	}
	return tx.Commit()
}

// LoadRegistry returns the stored registry snapshot for a run. A run with no
// stored registry yields an empty snapshot.
func (s *Store) LoadRegistry(runID string) (vision.RegistrySnapshot, error) {
	var snap vision.RegistrySnapshot

	err := s.db.QueryRow(
		`SELECT next_id FROM registry_state WHERE run_id = ?`, runID,
	).Scan(&snap.NextID)
	if err == sql.ErrNoRows {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("load registry state: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT global_id, created_at, prototype, bindings
		 FROM identities WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return snap, fmt.Errorf("load identities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        vision.IdentitySnapshot
			createdAt int64
			prototype sql.NullString
			bindings  sql.NullString
		)
		if err := rows.Scan(&id.GlobalID, &createdAt, &prototype, &bindings); err != nil {
			return snap, fmt.Errorf("scan identity: %w", err)
		}
		id.CreatedAt = time.Unix(0, createdAt).UTC()
		if err := decodeIdentity(&id, prototype, bindings); err != nil {
			return snap, err
		}
		snap.Identities = append(snap.Identities, id)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("load identities: %w", err)
	}
	return snap, nil
}

// RecordStats stores end-of-run diagnostic counters, replacing any previous
// record for the run.
func (s *Store) RecordStats(runID string, snap vision.StatsSnapshot) error {
	_, err := s.db.Exec(
		`INSERT INTO run_stats (
			run_id, frames_buffered, frames_dropped, frames_purged,
			synced_sets, sync_failures, avg_sync_error_ms,
			steps_processed, identities_created, reid_matches, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			frames_buffered = excluded.frames_buffered,
			frames_dropped = excluded.frames_dropped,
			frames_purged = excluded.frames_purged,
			synced_sets = excluded.synced_sets,
			sync_failures = excluded.sync_failures,
			avg_sync_error_ms = excluded.avg_sync_error_ms,
			steps_processed = excluded.steps_processed,
			identities_created = excluded.identities_created,
			reid_matches = excluded.reid_matches,
			recorded_at = excluded.recorded_at`,
		runID, snap.FramesBuffered, snap.FramesDropped, snap.FramesPurged,
		snap.SyncedSets, snap.SyncFailures, snap.AvgSyncErrorMs,
		snap.StepsProcessed, snap.IdentitiesCreated, snap.ReIDMatches,
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

// Stats loads a run's stored diagnostic counters.
func (s *Store) Stats(runID string) (vision.StatsSnapshot, error) {
	var snap vision.StatsSnapshot
	var recordedAt int64
	err := s.db.QueryRow(
		`SELECT frames_buffered, frames_dropped, frames_purged,
		        synced_sets, sync_failures, avg_sync_error_ms,
		        steps_processed, identities_created, reid_matches, recorded_at
		 FROM run_stats WHERE run_id = ?`, runID,
	).Scan(
		&snap.FramesBuffered, &snap.FramesDropped, &snap.FramesPurged,
		&snap.SyncedSets, &snap.SyncFailures, &snap.AvgSyncErrorMs,
		&snap.StepsProcessed, &snap.IdentitiesCreated, &snap.ReIDMatches,
		&recordedAt,
	)
	if err != nil {
		return snap, fmt.Errorf("load stats: %w", err)
	}
	snap.Since = time.Unix(0, recordedAt).UTC()
	return snap, nil
}

// RunInfo describes one stored monitoring run.
type RunInfo struct {
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time // zero when the run never ended cleanly
	Cameras   []string
}

// Runs lists stored runs, newest first.
func (s *Store) Runs() ([]RunInfo, error) {
	rows, err := s.db.Query(
		`SELECT run_id, started_at, ended_at, cameras FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var (
			info      RunInfo
			startedAt int64
			endedAt   sql.NullInt64
			cameras   string
		)
		if err := rows.Scan(&info.RunID, &startedAt, &endedAt, &cameras); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		info.StartedAt = time.Unix(0, startedAt).UTC()
		if endedAt.Valid {
			info.EndedAt = time.Unix(0, endedAt.Int64).UTC()
		}
		if cameras != "" {
			info.Cameras = strings.Split(cameras, ",")
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// StepPoint is one step's aggregate for time-series reporting.
type StepPoint struct {
	Step           int64
	TSUnixNanos    int64
	Objects        int64
	MeanConfidence float64
}

// StepSeries returns per-step object counts and mean confidence for a run.
func (s *Store) StepSeries(runID string) ([]StepPoint, error) {
	rows, err := s.db.Query(
		`SELECT step, MIN(ts_unix_nanos), COUNT(*), AVG(confidence)
		 FROM fused_objects WHERE run_id = ? GROUP BY step ORDER BY step`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("step series: %w", err)
	}
	defer rows.Close()

	var series []StepPoint
	for rows.Next() {
		var p StepPoint
		if err := rows.Scan(&p.Step, &p.TSUnixNanos, &p.Objects, &p.MeanConfidence); err != nil {
			return nil, fmt.Errorf("scan step point: %w", err)
		}
		series = append(series, p)
	}
	return series, rows.Err()
}

// IdentitySummary is one identity's aggregate presence across a run.
type IdentitySummary struct {
	GlobalID       string
	Appearances    int64
	FirstStep      int64
	LastStep       int64
	MeanConfidence float64
	MaxMembers     int64
}

// IdentitySummaries aggregates each identity's appearances across a run.
func (s *Store) IdentitySummaries(runID string) ([]IdentitySummary, error) {
	rows, err := s.db.Query(
		`SELECT global_id, COUNT(*), MIN(step), MAX(step), AVG(confidence), MAX(member_count)
		 FROM fused_objects WHERE run_id = ? GROUP BY global_id ORDER BY MIN(step)`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("identity summaries: %w", err)
	}
	defer rows.Close()

	var summaries []IdentitySummary
	for rows.Next() {
		var sum IdentitySummary
		if err := rows.Scan(&sum.GlobalID, &sum.Appearances, &sum.FirstStep, &sum.LastStep, &sum.MeanConfidence, &sum.MaxMembers); err != nil {
			return nil, fmt.Errorf("scan identity summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func encodeIdentity(id vision.IdentitySnapshot) (prototype, bindings sql.NullString, err error) {
	if len(id.Prototype) > 0 {
		raw, err := json.Marshal(id.Prototype)
		if err != nil {
			return prototype, bindings, fmt.Errorf("encode prototype for %s: %w", id.GlobalID, err)
		}
		prototype = sql.NullString{String: string(raw), Valid: true}
	}
	if len(id.CameraBindings) > 0 {
		raw, err := json.Marshal(id.CameraBindings)
		if err != nil {
			return prototype, bindings, fmt.Errorf("encode bindings for %s: %w", id.GlobalID, err)
		}
		bindings = sql.NullString{String: string(raw), Valid: true}
	}
	return prototype, bindings, nil
}

func decodeIdentity(id *vision.IdentitySnapshot, prototype, bindings sql.NullString) error {
	if prototype.Valid {
		if err := json.Unmarshal([]byte(prototype.String), &id.Prototype); err != nil {
			return fmt.Errorf("decode prototype for %s: %w", id.GlobalID, err)
		}
	}
	if bindings.Valid {
		if err := json.Unmarshal([]byte(bindings.String), &id.CameraBindings); err != nil {
			return fmt.Errorf("decode bindings for %s: %w", id.GlobalID, err)
		}
	}
	return nil
}
