// Package store persists assigned material coordinates and embedding runs
// in SQLite. Assignments are write-once per fitted geometry fingerprint so
// material coordinates stay stable under re-evaluation; a refit changes the
// fingerprint and starts a fresh assignment space.
package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/scaffoldtools/dataembedder/embedder"
	"github.com/scaffoldtools/dataembedder/scaffold"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed coordinate store. It implements
// embedder.CoordinateStore.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for migrations and inspection.
func (s *Store) DB() *sql.DB { return s.db }

// Run records one embedding run and the input fingerprints it used.
type Run struct {
	RunID        string `json:"run_id"`
	ScaffoldSHA  string `json:"scaffold_sha"`
	FittedSHA    string `json:"fitted_sha"`
	DataSHA      string `json:"data_sha"`
	GroupCount   int    `json:"group_count"`
	PointCount   int    `json:"point_count"`
	CreatedAtNs  int64  `json:"created_at_ns"`
	FinishedAtNs *int64 `json:"finished_at_ns,omitempty"`
}

// BeginRun inserts a new run record. If run.RunID is empty, a new UUID is
// generated.
func (s *Store) BeginRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAtNs == 0 {
		run.CreatedAtNs = time.Now().UnixNano()
	}

	query := `
		INSERT INTO embed_runs (
			run_id, scaffold_sha, fitted_sha, data_sha,
			group_count, point_count, created_at_ns, finished_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err := s.db.Exec(query,
		run.RunID,
		run.ScaffoldSHA,
		run.FittedSHA,
		run.DataSHA,
		run.GroupCount,
		run.PointCount,
		run.CreatedAtNs,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stamps a run with its final group and point counts.
func (s *Store) FinishRun(runID string, groupCount, pointCount int) error {
	query := `
		UPDATE embed_runs
		SET group_count = ?, point_count = ?, finished_at_ns = ?
		WHERE run_id = ?
	`
	result, err := s.db.Exec(query, groupCount, pointCount, time.Now().UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT run_id, scaffold_sha, fitted_sha, data_sha,
		       group_count, point_count, created_at_ns, finished_at_ns
		FROM embed_runs
		ORDER BY created_at_ns DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var finishedAtNs sql.NullInt64
		err := rows.Scan(
			&run.RunID,
			&run.ScaffoldSHA,
			&run.FittedSHA,
			&run.DataSHA,
			&run.GroupCount,
			&run.PointCount,
			&run.CreatedAtNs,
			&finishedAtNs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		if finishedAtNs.Valid {
			v := finishedAtNs.Int64
			run.FinishedAtNs = &v
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// SaveCoordinate stores an assignment. An existing assignment for the same
// key wins: INSERT OR IGNORE keeps the first material coordinate permanent.
func (s *Store) SaveCoordinate(fittedFingerprint, group string, domain scaffold.Domain, objectID int, loc *embedder.StoredLocation) error {
	xiJSON, err := json.Marshal(loc.Xi)
	if err != nil {
		return fmt.Errorf("encode xi: %w", err)
	}
	materialJSON, err := json.Marshal(loc.Material)
	if err != nil {
		return fmt.Errorf("encode material coordinates: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO material_coordinates (
			fitted_sha, group_name, domain, object_id,
			element_id, xi_json, material_json, residual, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query,
		fittedFingerprint,
		group,
		string(domain),
		objectID,
		loc.ElementID,
		string(xiJSON),
		string(materialJSON),
		loc.Residual,
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save coordinate: %w", err)
	}
	return nil
}

// LookupCoordinate returns a previously assigned location, if any.
func (s *Store) LookupCoordinate(fittedFingerprint, group string, domain scaffold.Domain, objectID int) (*embedder.StoredLocation, bool, error) {
	query := `
		SELECT element_id, xi_json, material_json, residual
		FROM material_coordinates
		WHERE fitted_sha = ? AND group_name = ? AND domain = ? AND object_id = ?
	`
	var loc embedder.StoredLocation
	var xiJSON, materialJSON string
	err := s.db.QueryRow(query, fittedFingerprint, group, string(domain), objectID).Scan(
		&loc.ElementID,
		&xiJSON,
		&materialJSON,
		&loc.Residual,
	)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup coordinate: %w", err)
	}
	if err := json.Unmarshal([]byte(xiJSON), &loc.Xi); err != nil {
		return nil, false, fmt.Errorf("decode xi: %w", err)
	}
	if err := json.Unmarshal([]byte(materialJSON), &loc.Material); err != nil {
		return nil, false, fmt.Errorf("decode material coordinates: %w", err)
	}
	return &loc, true, nil
}

// PurgeFitted removes every assignment made against a fitted geometry
// fingerprint. Call after a refit when the old assignments should not
// linger.
func (s *Store) PurgeFitted(fittedFingerprint string) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM material_coordinates WHERE fitted_sha = ?`, fittedFingerprint)
	if err != nil {
		return 0, fmt.Errorf("purge fitted coordinates: %w", err)
	}
	return result.RowsAffected()
}
