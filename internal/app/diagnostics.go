package app

import (
	"encoding/json"
	"io"
	"net/http"

	"appkit/internal/observability/pprof"
	"appkit/internal/runtime/supervisor"
)

type diagnosticsBody struct {
	Features   []string               `json:"features"`
	Beans      []string               `json:"beans"`
	Goroutines []supervisor.TaskStats `json:"goroutines"`
	BusDropped uint64                 `json:"bus_dropped"`
}

// mountDiagnostics adds the startup breakdown and runtime state next to
// the profiles.
func (a *App) mountDiagnostics(d *pprof.Service) {
	d.Handle("startup", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, a.timer.PrettyPrint())
	}))
	d.Handle("state", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		body := diagnosticsBody{
			Features:   a.Features(),
			Beans:      a.reg.Names(),
			BusDropped: a.bus.Dropped(),
		}
		if a.sup != nil {
			body.Goroutines = a.sup.Stats()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
}
