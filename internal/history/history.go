// Package history persists an append-only audit trail of retired jobs and
// reconcile actions to SQLite, for post-incident review of what an
// Upstairs actually did. It follows the same reconnect-guarded access
// pattern as the teacher's SQLite storage layer: every query holds a read
// lock so a concurrent reopen can't close the connection mid-statement.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/basinlabs/upstairs/internal/types"
)

func init() {
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(wazero.NewCompilationCache())
}

// Store is the audit log backend.
type Store struct {
	db          *sql.DB
	closed      atomic.Bool
	reconnectMu sync.RWMutex
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=30000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS retired_jobs (
			job_id INTEGER PRIMARY KEY,
			guest_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			acked INTEGER NOT NULL,
			result TEXT,
			retired_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS reconcile_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			extent INTEGER NOT NULL,
			kind TEXT NOT NULL,
			source_client INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate history db: %w", err)
	}
	return nil
}

// Close closes the database, safe to call more than once.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// RecordRetiredJob appends one row per job retired by retire_check.
func (s *Store) RecordRetiredJob(ctx context.Context, jobID types.JobId, guestID types.GuestWorkId, kind types.IOopKind, acked bool, result error) error {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	var resultText string
	if result != nil {
		resultText = result.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retired_jobs (job_id, guest_id, kind, acked, result)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO NOTHING
	`, uint64(jobID), uint64(guestID), kind.String(), acked, resultText)
	if err != nil {
		return fmt.Errorf("record retired job %s: %w", jobID, err)
	}
	return nil
}

// RecordReconcileAction appends one row per reconcile_task_list entry
// that was driven to completion or aborted.
func (s *Store) RecordReconcileAction(ctx context.Context, extent types.Extent, kind string, source types.ClientId, outcome string) error {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconcile_actions (extent, kind, source_client, outcome)
		VALUES (?, ?, ?, ?)
	`, uint64(extent), kind, int(source), outcome)
	if err != nil {
		return fmt.Errorf("record reconcile action: %w", err)
	}
	return nil
}

// RetiredJobRecord is one row read back from retired_jobs.
type RetiredJobRecord struct {
	JobID     types.JobId
	GuestID   types.GuestWorkId
	Kind      string
	Acked     bool
	Result    string
	RetiredAt time.Time
}

// RecentRetiredJobs returns the most recently retired jobs, newest first.
func (s *Store) RecentRetiredJobs(ctx context.Context, limit int) ([]RetiredJobRecord, error) {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, guest_id, kind, acked, result, retired_at
		FROM retired_jobs ORDER BY retired_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent retired jobs: %w", err)
	}
	defer rows.Close()

	var out []RetiredJobRecord
	for rows.Next() {
		var r RetiredJobRecord
		var jobID, guestID uint64
		if err := rows.Scan(&jobID, &guestID, &r.Kind, &r.Acked, &r.Result, &r.RetiredAt); err != nil {
			return nil, fmt.Errorf("scan retired job row: %w", err)
		}
		r.JobID = types.JobId(jobID)
		r.GuestID = types.GuestWorkId(guestID)
		out = append(out, r)
	}
	return out, rows.Err()
}
