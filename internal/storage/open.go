package storage

import (
	"context"
	"errors"
	"strings"

	"appkit/pkg/logx"
)

// Store is the persistence API used by the report job.
type Store interface {
	AppendReport(ctx context.Context, r ReportRecord) error
	// RecentReports returns up to limit records, newest first.
	RecentReports(ctx context.Context, limit int) ([]ReportRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
