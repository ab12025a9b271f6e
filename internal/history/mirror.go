package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/dolthub/driver"
	_ "github.com/go-sql-driver/mysql"
)

// Mirror replicates retired-job records to a remote MySQL-protocol store
// (Dolt or plain MySQL) for durability beyond the region's local disk.
// It is optional: upstairsd runs fine without one configured.
type Mirror struct {
	db *sql.DB
}

// OpenMirror opens a mirror target. driverName is "mysql" for a plain
// MySQL/Dolt-SQL-server endpoint, or "dolt" to open an embedded Dolt
// database directly via its database/sql driver.
func OpenMirror(driverName, dsn string) (*Mirror, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open mirror (%s): %w", driverName, err)
	}
	m := &Mirror{db: db}
	if err := m.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Mirror) migrate() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS retired_jobs (
			job_id BIGINT UNSIGNED PRIMARY KEY,
			guest_id BIGINT UNSIGNED NOT NULL,
			kind VARCHAR(32) NOT NULL,
			acked BOOL NOT NULL,
			result TEXT,
			retired_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate mirror: %w", err)
	}
	return nil
}

// Close closes the mirror connection.
func (m *Mirror) Close() error { return m.db.Close() }

// Replicate upserts a batch of retired-job records into the mirror.
func (m *Mirror) Replicate(ctx context.Context, records []RetiredJobRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mirror tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO retired_jobs (job_id, guest_id, kind, acked, result, retired_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE result = VALUES(result)
	`)
	if err != nil {
		return fmt.Errorf("prepare mirror insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, uint64(r.JobID), uint64(r.GuestID), r.Kind, r.Acked, r.Result, r.RetiredAt); err != nil {
			return fmt.Errorf("replicate job %s: %w", r.JobID, err)
		}
	}
	return tx.Commit()
}
