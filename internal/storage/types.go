package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ReportRecord summarizes the requests timed during one report window.
// Keep it compact and schema-stable.
type ReportRecord struct {
	At          time.Time        `json:"at"`
	WindowStart time.Time        `json:"window_start"`
	Requests    int              `json:"requests"`
	Errors      int              `json:"errors"`
	Async       int              `json:"async"`
	TimedOut    int              `json:"timed_out"`
	TotalMS     int64            `json:"total_ms"`
	MaxMS       int64            `json:"max_ms"`
	SlowestPath string           `json:"slowest_path,omitempty"`
	Phases      map[string]int64 `json:"phases,omitempty"` // phase -> total ms
	Summary     string           `json:"summary,omitempty"`
}
