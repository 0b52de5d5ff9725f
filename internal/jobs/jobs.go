// Package jobs persists download-job state in a local SQLite database so a
// restarted process can tell finished work from interrupted work.
package jobs

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Job states.
const (
	StateRunning  = "running"
	StateComplete = "complete"
	StateFailed   = "failed"
)

// ErrNotFound is returned when no job exists for the given id.
var ErrNotFound = errors.New("job not found")

// Job is one download job's persisted state.
type Job struct {
	ID          string
	PlaylistURL string
	State       string
	CachePath   string
	Error       string
	UpdatedAt   time.Time
}

// Ledger records download-job state.
type Ledger struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS download_jobs (
	job_id       TEXT PRIMARY KEY,
	playlist_url TEXT NOT NULL,
	state        TEXT NOT NULL,
	cache_path   TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMP NOT NULL
);`

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening job database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating job table: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Begin marks a job as running, replacing any previous record for the id.
func (l *Ledger) Begin(jobID, playlistURL string) error {
	_, err := l.db.Exec(`
		INSERT INTO download_jobs (job_id, playlist_url, state, cache_path, error, updated_at)
		VALUES (?, ?, ?, '', '', ?)
		ON CONFLICT(job_id) DO UPDATE SET
			playlist_url = excluded.playlist_url,
			state        = excluded.state,
			cache_path   = '',
			error        = '',
			updated_at   = excluded.updated_at`,
		jobID, playlistURL, StateRunning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording job start: %w", err)
	}
	return nil
}

// Complete marks a job as finished with its cache path.
func (l *Ledger) Complete(jobID, cachePath string) error {
	return l.setState(jobID, StateComplete, cachePath, "")
}

// Fail marks a job as failed with the error message.
func (l *Ledger) Fail(jobID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return l.setState(jobID, StateFailed, "", msg)
}

func (l *Ledger) setState(jobID, state, cachePath, errMsg string) error {
	res, err := l.db.Exec(`
		UPDATE download_jobs
		SET state = ?, cache_path = ?, error = ?, updated_at = ?
		WHERE job_id = ?`,
		state, cachePath, errMsg, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("updating job state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the job for id, or ErrNotFound.
func (l *Ledger) Get(jobID string) (Job, error) {
	var j Job
	err := l.db.QueryRow(`
		SELECT job_id, playlist_url, state, cache_path, error, updated_at
		FROM download_jobs WHERE job_id = ?`, jobID).
		Scan(&j.ID, &j.PlaylistURL, &j.State, &j.CachePath, &j.Error, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("reading job: %w", err)
	}
	return j, nil
}

// List returns all jobs, most recently updated first.
func (l *Ledger) List() ([]Job, error) {
	rows, err := l.db.Query(`
		SELECT job_id, playlist_url, state, cache_path, error, updated_at
		FROM download_jobs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.PlaylistURL, &j.State, &j.CachePath, &j.Error, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
