package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var (
	_ Store   = (*SQLite)(nil)
	_ Querier = (*SQLite)(nil)
)

// SQLite mirrors samples into a local database, tagged with the run that
// produced them, so several runs can share one file.
type SQLite struct {
	db     *sql.DB
	insert *sql.Stmt
	runID  string
	log    *zap.Logger
}

// NewSQLite opens (or creates) the SQLite file at dbPath and runs the
// migration that creates the `samples` table if it does not exist.
// Rows appended through the returned store carry runID.
// The caller must call Close() when the program shuts down.
func NewSQLite(dbPath, runID string, log *zap.Logger) (*SQLite, error) {
	// The modernc.org driver is pure-go and works without CGO.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}
	s := &SQLite{db: db, runID: runID, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}

	s.insert, err = db.Prepare(`INSERT INTO samples (run_id, ts, cpu, mem, disk) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	const stmt = `
CREATE TABLE IF NOT EXISTS samples (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id  TEXT NOT NULL,
    ts      INTEGER NOT NULL,
    cpu     REAL NOT NULL,
    mem     REAL NOT NULL,
    disk    REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_run_ts ON samples(run_id, ts);
`
	_, err := s.db.Exec(stmt)
	if err != nil {
		return fmt.Errorf("create samples table: %w", err)
	}
	s.log.Debug("SQLite migration applied")
	return nil
}

// Append implements Store.
func (s *SQLite) Append(ctx context.Context, smp Sample) error {
	_, err := s.insert.ExecContext(ctx, s.runID, smp.Timestamp.UnixNano(),
		smp.CPUUsagePercent, smp.MemoryUsagePercent, smp.DiskUsagePercent)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	s.log.Debug("sample persisted", zap.Time("ts", smp.Timestamp))
	return nil
}

// Query implements Querier.
func (s *SQLite) Query(ctx context.Context, runID string, from, to time.Time) ([]SampleRecord, error) {
	q := `SELECT id, run_id, ts, cpu, mem, disk FROM samples WHERE ts BETWEEN ? AND ?`
	args := []any{from.UnixNano(), to.UnixNano()}
	if runID != "" {
		q += ` AND run_id = ?`
		args = append(args, runID)
	}
	q += ` ORDER BY ts ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []SampleRecord
	for rows.Next() {
		var (
			rec SampleRecord
			ts  int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &ts,
			&rec.CPUUsagePercent, &rec.MemoryUsagePercent, &rec.DiskUsagePercent); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

// Close shuts down the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	if s.insert != nil {
		_ = s.insert.Close()
	}
	err := s.db.Close()
	s.db = nil
	return err
}
