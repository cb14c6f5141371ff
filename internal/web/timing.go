package web

import (
	"net/http"
	"time"

	"appkit/pkg/logx"
	"appkit/pkg/stopwatch"
)

const attrStopWatch = "web.stopwatch"

// Phase names recorded by TimingInterceptor.
const (
	PhaseHandle   = "handle"
	PhaseAsync    = "async"
	PhaseComplete = "complete"
)

// StatusClientClosed is recorded for async requests whose client went away
// before a response was written.
const StatusClientClosed = 499

// RequestTiming is emitted once per finished exchange.
type RequestTiming struct {
	At       time.Time        `json:"at"`
	Method   string           `json:"method"`
	Path     string           `json:"path"`
	Status   int              `json:"status"`
	Async    bool             `json:"async"`
	TimedOut bool             `json:"timed_out,omitempty"`
	Err      string           `json:"err,omitempty"`
	Report   stopwatch.Report `json:"report"`
}

// TimingInterceptor times each exchange phase by phase with a stopwatch:
// "handle" for the initial dispatch, then "async" and "complete" when the
// handler went async.
type TimingInterceptor struct {
	Log logx.Logger
	// Slow requests are logged at warn level. Zero disables.
	Slow time.Duration
	// Sink receives every finished exchange. Optional.
	Sink func(RequestTiming)
	// Now overrides the stopwatch clock (tests).
	Now func() time.Time
}

// Order puts timing outermost so it covers the other interceptors.
func (t *TimingInterceptor) Order() int { return -10_000 }

func (t *TimingInterceptor) stopWatch(r *http.Request) *stopwatch.StopWatch {
	v, ok := Attribute(r, attrStopWatch)
	if !ok {
		return nil
	}
	sw, _ := v.(*stopwatch.StopWatch)
	return sw
}

func (t *TimingInterceptor) PreHandle(_ http.ResponseWriter, r *http.Request, _ http.Handler) (bool, error) {
	if DispatchTypeOf(r) == DispatchAsync {
		if sw := t.stopWatch(r); sw != nil {
			_ = sw.Stop()
			_ = sw.Start(PhaseComplete)
		}
		return true, nil
	}
	var opts []stopwatch.Option
	if t.Now != nil {
		opts = append(opts, stopwatch.WithClock(t.Now))
	}
	sw := stopwatch.New(r.Method+" "+r.URL.Path, opts...)
	_ = sw.Start(PhaseHandle)
	SetAttribute(r, attrStopWatch, sw)
	return true, nil
}

func (t *TimingInterceptor) PostHandle(http.ResponseWriter, *http.Request, http.Handler) error {
	return nil
}

func (t *TimingInterceptor) AfterConcurrentHandlingStarted(w http.ResponseWriter, r *http.Request, _ http.Handler) error {
	sw := t.stopWatch(r)
	if sw == nil {
		return nil
	}
	_ = sw.Stop()
	_ = sw.Start(PhaseAsync)
	if a, ok := AsyncRequestFrom(r); ok {
		a.OnTimeout(func() {
			_ = sw.Stop()
			t.finish(sw, r, http.StatusServiceUnavailable, true, true, ErrAsyncTimeout)
		})
		a.OnAbort(func(cause error) {
			_ = sw.Stop()
			t.finish(sw, r, StatusClientClosed, true, false, cause)
		})
	}
	return nil
}

func (t *TimingInterceptor) AfterCompletion(w http.ResponseWriter, r *http.Request, _ http.Handler, err error) error {
	sw := t.stopWatch(r)
	if sw == nil || !sw.IsRunning() {
		return nil
	}
	if err := sw.Stop(); err != nil {
		return err
	}
	status := StatusOf(w)
	if status == 0 {
		status = http.StatusOK
	}
	t.finish(sw, r, status, DispatchTypeOf(r) == DispatchAsync, false, err)
	return nil
}

func (t *TimingInterceptor) finish(sw *stopwatch.StopWatch, r *http.Request, status int, async, timedOut bool, err error) {
	rt := RequestTiming{
		At:       time.Now(),
		Method:   r.Method,
		Path:     r.URL.Path,
		Status:   status,
		Async:    async,
		TimedOut: timedOut,
		Report:   sw.Snapshot(),
	}
	if err != nil {
		rt.Err = err.Error()
	}

	log := t.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	fields := []logx.Field{
		logx.String("method", rt.Method),
		logx.String("path", rt.Path),
		logx.Int("status", rt.Status),
		logx.Duration("took", sw.TotalTime()),
		logx.Bool("async", rt.Async),
	}
	if t.Slow > 0 && sw.TotalTime() >= t.Slow {
		log.Warn("slow request", append(fields, logx.String("breakdown", sw.String()))...)
	} else {
		log.Debug("request done", fields...)
	}

	if t.Sink != nil {
		t.Sink(rt)
	}
}
