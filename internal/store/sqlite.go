package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/KingRainbow44/modpack-installer/internal/model"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrRunNotFound is returned when a run id is unknown
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore records install history in a SQLite database
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dataPath string, logger *zap.Logger) (*SQLiteStore, error) {
	dbPath := filepath.Join(dataPath, "installer.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Workers record results concurrently; a single connection serializes writers.
	db.SetMaxOpenConns(1)

	// Initialize schema
	if _, err := db.Exec(model.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record
func (s *SQLiteStore) CreateRun(run *model.DBRun) error {
	query := `
		INSERT INTO runs (id, modpack, version, target, server, requested, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.Exec(
		query,
		run.ID,
		run.Modpack,
		run.Version,
		run.Target,
		run.Server,
		run.Requested,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// FinishRun stores the final counters of a run
func (s *SQLiteStore) FinishRun(run *model.DBRun) error {
	query := `
		UPDATE runs SET
			downloaded = ?,
			present = ?,
			skipped = ?,
			failed = ?,
			finished_at = ?
		WHERE id = ?
	`

	run.FinishedAt = time.Now()
	res, err := s.db.Exec(
		query,
		run.Downloaded,
		run.Present,
		run.Skipped,
		run.Failed,
		run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}

	return nil
}

// AddArtifact records a file written or found present during a run
func (s *SQLiteStore) AddArtifact(artifact *model.DBArtifact) error {
	query := `
		INSERT INTO artifacts (run_id, project_id, filename, path, size, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now()
	}
	err := s.db.QueryRow(
		query,
		artifact.RunID,
		artifact.ProjectID,
		artifact.Filename,
		artifact.Path,
		artifact.Size,
		artifact.Outcome,
		artifact.CreatedAt,
	).Scan(&artifact.ID)

	if err != nil {
		return fmt.Errorf("failed to add artifact: %w", err)
	}

	return nil
}

// AddFailure records a package that could not be installed
func (s *SQLiteStore) AddFailure(failure *model.DBFailure) error {
	query := `
		INSERT INTO failures (run_id, package, error, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`

	if failure.CreatedAt.IsZero() {
		failure.CreatedAt = time.Now()
	}
	err := s.db.QueryRow(
		query,
		failure.RunID,
		failure.Package,
		failure.Error,
		failure.CreatedAt,
	).Scan(&failure.ID)

	if err != nil {
		return fmt.Errorf("failed to add failure: %w", err)
	}

	return nil
}

// GetRun gets a run by id
func (s *SQLiteStore) GetRun(id string) (*model.DBRun, error) {
	query := `SELECT * FROM runs WHERE id = ?`
	run, err := scanRun(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns gets the most recent runs, newest first
func (s *SQLiteStore) ListRuns(limit int) ([]*model.DBRun, error) {
	query := `SELECT * FROM runs ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.DBRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// ListArtifacts gets all artifacts of a run in insertion order
func (s *SQLiteStore) ListArtifacts(runID string) ([]*model.DBArtifact, error) {
	query := `SELECT * FROM artifacts WHERE run_id = ? ORDER BY id`
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*model.DBArtifact
	for rows.Next() {
		artifact := &model.DBArtifact{}
		err := rows.Scan(
			&artifact.ID,
			&artifact.RunID,
			&artifact.ProjectID,
			&artifact.Filename,
			&artifact.Path,
			&artifact.Size,
			&artifact.Outcome,
			&artifact.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, artifact)
	}

	return artifacts, rows.Err()
}

// ListFailures gets all failures of a run in insertion order
func (s *SQLiteStore) ListFailures(runID string) ([]*model.DBFailure, error) {
	query := `SELECT * FROM failures WHERE run_id = ? ORDER BY id`
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var failures []*model.DBFailure
	for rows.Next() {
		failure := &model.DBFailure{}
		err := rows.Scan(
			&failure.ID,
			&failure.RunID,
			&failure.Package,
			&failure.Error,
			&failure.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		failures = append(failures, failure)
	}

	return failures, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.DBRun, error) {
	run := &model.DBRun{}
	var finished sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.Modpack,
		&run.Version,
		&run.Target,
		&run.Server,
		&run.Requested,
		&run.Downloaded,
		&run.Present,
		&run.Skipped,
		&run.Failed,
		&run.StartedAt,
		&finished,
	)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, nil
}
