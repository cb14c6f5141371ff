package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"appkit/pkg/logx"
)

func record(i int) ReportRecord {
	at := time.Date(2025, 3, 1, 12, 0, i, 0, time.UTC)
	return ReportRecord{
		At:          at,
		WindowStart: at.Add(-time.Minute),
		Requests:    i,
		TotalMS:     int64(10 * i),
		MaxMS:       int64(i),
		SlowestPath: "GET /x",
		Phases:      map[string]int64{"handle": int64(10 * i)},
		Summary:     "StopWatch 'requests': running time (millis) = 10",
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: st=%v err=%v", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestDrivers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		driver string
		path   string
	}{
		{"file", "reports"},
		{"sqlite", "appkit.db"},
	}
	for _, tc := range cases {
		t.Run(tc.driver, func(t *testing.T) {
			t.Parallel()

			cfg := Config{Driver: tc.driver, Path: filepath.Join(t.TempDir(), "data", tc.path), BusyTimeout: time.Second}
			st, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer st.Close()

			ctx := context.Background()
			for i := 1; i <= 4; i++ {
				if err := st.AppendReport(ctx, record(i)); err != nil {
					t.Fatalf("append %d: %v", i, err)
				}
			}

			got, err := st.RecentReports(ctx, 2)
			if err != nil {
				t.Fatalf("recent: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("len=%d want 2", len(got))
			}
			if got[0].Requests != 4 || got[1].Requests != 3 {
				t.Fatalf("order: %d, %d", got[0].Requests, got[1].Requests)
			}
			if got[0].Phases["handle"] != 40 || got[0].SlowestPath != "GET /x" {
				t.Fatalf("fields: %+v", got[0])
			}
			if !got[0].At.Equal(record(4).At) {
				t.Fatalf("at=%v", got[0].At)
			}

			if none, err := st.RecentReports(ctx, 0); err != nil || len(none) != 0 {
				t.Fatalf("limit 0: %v %v", none, err)
			}
		})
	}
}
