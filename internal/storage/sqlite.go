package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"appkit/pkg/logx"
)

//go:embed migrations.sql
var migrations string

// keepReports bounds the table; older rows are pruned every pruneEvery inserts.
const (
	keepReports = 10_000
	pruneEvery  = 500
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	inserts atomic.Uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendReport(ctx context.Context, r ReportRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	var phases any
	if len(r.Phases) > 0 {
		b, err := json.Marshal(r.Phases)
		if err != nil {
			return err
		}
		phases = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports(at, window_start, requests, errors, async, timed_out, total_ms, max_ms, slowest_path, phases, summary)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		r.At.UTC().Format(time.RFC3339Nano), r.WindowStart.UTC().Format(time.RFC3339Nano),
		r.Requests, r.Errors, r.Async, r.TimedOut, r.TotalMS, r.MaxMS,
		nullStr(r.SlowestPath), phases, nullStr(r.Summary),
	)
	if err == nil && s.inserts.Add(1)%pruneEvery == 0 {
		if perr := s.prune(ctx); perr != nil {
			s.log.Debug("report prune failed", logx.Err(perr))
		}
	}
	return err
}

func (s *sqliteStore) RecentReports(ctx context.Context, limit int) ([]ReportRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, window_start, requests, errors, async, timed_out, total_ms, max_ms, slowest_path, phases, summary
		 FROM reports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportRecord
	for rows.Next() {
		var (
			r                    ReportRecord
			at, windowStart      string
			slowest, ph, summary sql.NullString
		)
		if err := rows.Scan(&at, &windowStart, &r.Requests, &r.Errors, &r.Async, &r.TimedOut,
			&r.TotalMS, &r.MaxMS, &slowest, &ph, &summary); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		r.WindowStart, _ = time.Parse(time.RFC3339Nano, windowStart)
		r.SlowestPath = slowest.String
		r.Summary = summary.String
		if ph.Valid && ph.String != "" {
			if err := json.Unmarshal([]byte(ph.String), &r.Phases); err != nil {
				return nil, fmt.Errorf("decode phases: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reports WHERE id <= (SELECT MAX(id) FROM reports) - ?`, keepReports)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
