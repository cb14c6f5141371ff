package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"appkit/internal/accept"
	"appkit/internal/beans"
	"appkit/internal/config"
	"appkit/internal/runtime/supervisor"
	"appkit/internal/storage"
	"appkit/internal/web"
	"appkit/pkg/stopwatch"
)

// producible is what every endpoint can render.
var producible = []accept.MediaType{accept.ApplicationJSON, accept.TextPlain}

const (
	defaultWorkDelay = 50 * time.Millisecond
	maxReports       = 100
)

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", web.HandlerFunc(a.handleHealth))
	mux.Handle("GET /api/status", web.HandlerFunc(a.handleStatus))
	mux.Handle("GET /api/work", web.HandlerFunc(a.handleWork))
	mux.Handle("GET /api/reports", web.HandlerFunc(a.handleReports))
	return mux
}

// texter renders a body for text/plain.
type texter interface {
	Text() string
}

// render writes body in the negotiated media type.
func render(w http.ResponseWriter, r *http.Request, status int, body texter) error {
	mt, ok := web.Negotiate(r, producible...)
	if !ok {
		return web.Status(http.StatusNotAcceptable, &accept.NotAcceptableError{
			Reason:    "no producible media type",
			Supported: producible,
		})
	}
	if mt.Equal(accept.TextPlain) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, err := fmt.Fprintln(w, body.Text())
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

type healthBody struct {
	OK  bool   `json:"ok"`
	Err string `json:"err,omitempty"`
}

func (b healthBody) Text() string {
	if b.OK {
		return "ok"
	}
	return "unhealthy: " + b.Err
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) error {
	if err := a.Err(); err != nil {
		return render(w, r, http.StatusServiceUnavailable, healthBody{Err: err.Error()})
	}
	return render(w, r, http.StatusOK, healthBody{OK: true})
}

type statusBody struct {
	Features    []string               `json:"features"`
	Uptime      string                 `json:"uptime"`
	RateLimited uint64                 `json:"rate_limited"`
	Startup     stopwatch.Report       `json:"startup"`
	Goroutines  []supervisor.TaskStats `json:"goroutines,omitempty"`
	Negotiated  []string               `json:"negotiated"`
}

func (b statusBody) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "features: %s\n", strings.Join(b.Features, ", "))
	fmt.Fprintf(&sb, "uptime: %s\n", b.Uptime)
	fmt.Fprintf(&sb, "rate limited: %d\n", b.RateLimited)
	fmt.Fprintf(&sb, "startup: %d components in %s", b.Startup.TaskCount, b.Startup.Total)
	for _, g := range b.Goroutines {
		fmt.Fprintf(&sb, "\n  %s running=%d starts=%d", g.Name, g.Running, g.Starts)
	}
	return sb.String()
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) error {
	body := statusBody{
		Features: a.Features(),
		Startup:  a.timer.Report(),
	}
	if !a.started.IsZero() {
		body.Uptime = time.Since(a.started).Round(time.Second).String()
	}
	if a.limiter != nil {
		body.RateLimited = a.limiter.Rejected()
	}
	if a.sup != nil {
		body.Goroutines = a.sup.Stats()
	}
	for _, mt := range web.NegotiatedMediaTypes(r) {
		body.Negotiated = append(body.Negotiated, mt.String())
	}
	return render(w, r, http.StatusOK, body)
}

type workBody struct {
	Delay    string `json:"delay"`
	Dispatch string `json:"dispatch"`
}

func (b workBody) Text() string {
	return fmt.Sprintf("worked %s (%s dispatch)", b.Delay, strings.ToLower(b.Dispatch))
}

// handleWork simulates a slow backend call on a separate goroutine and
// answers through an async dispatch.
func (a *App) handleWork(w http.ResponseWriter, r *http.Request) error {
	delay, err := config.ParseDurationOrDefault("delay", r.URL.Query().Get("delay"), defaultWorkDelay)
	if err != nil {
		return web.Status(http.StatusBadRequest, err)
	}
	ar, err := web.StartAsync(r)
	if err != nil {
		return err
	}
	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ar.Context().Done():
			return
		case <-t.C:
		}
		ar.Complete(func(w http.ResponseWriter, r *http.Request) error {
			return render(w, r, http.StatusOK, workBody{
				Delay:    delay.String(),
				Dispatch: web.DispatchTypeOf(r).String(),
			})
		})
	}()
	return nil
}

type reportsBody struct {
	Source  string                 `json:"source"`
	Reports []storage.ReportRecord `json:"reports"`
}

func (b reportsBody) Text() string {
	if len(b.Reports) == 0 {
		return "no reports yet"
	}
	var sb strings.Builder
	for i, rep := range b.Reports {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s requests=%d errors=%d max=%dms\n%s",
			rep.At.Format(time.RFC3339), rep.Requests, rep.Errors, rep.MaxMS, strings.TrimRight(rep.Summary, "\n"))
	}
	return sb.String()
}

func (a *App) handleReports(w http.ResponseWriter, r *http.Request) error {
	if a.reporter == nil || a.reporter.Reporter == nil {
		return web.Status(http.StatusNotFound, errors.New("report feature disabled"))
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return web.Status(http.StatusBadRequest, fmt.Errorf("limit: invalid %q", raw))
		}
		limit = min(n, maxReports)
	}

	if sc, err := beans.Lookup[*storeComponent](a.reg, beanStore); err == nil && sc.store != nil {
		recs, err := sc.store.RecentReports(r.Context(), limit)
		if err != nil {
			return err
		}
		return render(w, r, http.StatusOK, reportsBody{Source: "storage", Reports: recs})
	}

	recs := a.reporter.Recent()
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return render(w, r, http.StatusOK, reportsBody{Source: "memory", Reports: recs})
}
