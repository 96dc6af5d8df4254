package model

import (
	"time"
)

// DBRun represents one install run in the database
type DBRun struct {
	ID         string    `db:"id"`
	Modpack    string    `db:"modpack"`
	Version    string    `db:"version"`
	Target     string    `db:"target"`
	Server     bool      `db:"server"`
	Requested  int       `db:"requested"`
	Downloaded int64     `db:"downloaded"`
	Present    int64     `db:"present"`
	Skipped    int64     `db:"skipped"`
	Failed     int64     `db:"failed"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

// DBArtifact represents a file written (or found present) during a run
type DBArtifact struct {
	ID        int64     `db:"id"`
	RunID     string    `db:"run_id"`
	ProjectID string    `db:"project_id"`
	Filename  string    `db:"filename"`
	Path      string    `db:"path"`
	Size      int64     `db:"size"`
	Outcome   string    `db:"outcome"`
	CreatedAt time.Time `db:"created_at"`
}

// DBFailure represents a package that could not be installed
type DBFailure struct {
	ID        int64     `db:"id"`
	RunID     string    `db:"run_id"`
	Package   string    `db:"package"`
	Error     string    `db:"error"`
	CreatedAt time.Time `db:"created_at"`
}

// Schema contains the SQL schema for the database
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    modpack TEXT NOT NULL,
    version TEXT NOT NULL,
    target TEXT NOT NULL,
    server INTEGER NOT NULL DEFAULT 0,
    requested INTEGER NOT NULL DEFAULT 0,
    downloaded INTEGER NOT NULL DEFAULT 0,
    present INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS artifacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    filename TEXT NOT NULL,
    path TEXT NOT NULL,
    size INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS failures (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    package TEXT NOT NULL,
    error TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_artifacts_run_id ON artifacts(run_id);
CREATE INDEX IF NOT EXISTS idx_failures_run_id ON failures(run_id);
`
