// Package report aggregates request timings into periodic summaries.
//
// Timings arrive from the web layer through an eventbus. A cron schedule
// flushes the current window: the per-phase totals are replayed through a
// stopwatch so the summary reads like any other stopwatch breakdown, then
// the record is logged and handed to storage.
package report

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"appkit/internal/config"
	"appkit/internal/eventbus"
	"appkit/internal/storage"
	"appkit/internal/web"
	"appkit/pkg/logx"
	"appkit/pkg/stopwatch"
)

// recentReports bounds the in-memory list returned by Recent.
const recentReports = 32

type Options struct {
	Log    logx.Logger
	Store  storage.Store
	Source *eventbus.Bus[web.RequestTiming]
	// History bounds the timings buffered per window. Oldest are dropped.
	History int
	Now     func() time.Time
}

type Reporter struct {
	log    logx.Logger
	store  storage.Store
	sub    <-chan web.RequestTiming
	unsub  func()
	now    func() time.Time

	mu          sync.Mutex
	history     int
	window      []web.RequestTiming
	windowStart time.Time
	dropped     int
	recent      []storage.ReportRecord

	cmu  sync.Mutex
	c    *cron.Cron
	spec string
}

func New(opts Options) *Reporter {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.History <= 0 {
		opts.History = config.DefaultReportHistory
	}
	r := &Reporter{
		log:         opts.Log,
		store:       opts.Store,
		now:         opts.Now,
		history:     opts.History,
		windowStart: opts.Now(),
	}
	// Subscribe now so timings published before Run starts are queued.
	if opts.Source != nil {
		r.sub, r.unsub = opts.Source.Subscribe(256)
	}
	return r
}

// SetHistory changes the window bound; extra buffered timings are dropped.
func (r *Reporter) SetHistory(n int) {
	if n <= 0 {
		n = config.DefaultReportHistory
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = n
	if over := len(r.window) - n; over > 0 {
		r.window = slices.Delete(r.window, 0, over)
		r.dropped += over
	}
}

// Observe buffers one timing.
func (r *Reporter) Observe(t web.RequestTiming) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.window) >= r.history {
		r.window = slices.Delete(r.window, 0, 1)
		r.dropped++
	}
	r.window = append(r.window, t)
}

// Pending reports how many timings wait for the next flush.
func (r *Reporter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.window)
}

// Flush closes the current window. It returns false when the window was
// empty; nothing is logged or stored then.
func (r *Reporter) Flush(ctx context.Context) (storage.ReportRecord, bool, error) {
	now := r.now()
	r.mu.Lock()
	batch := r.window
	start := r.windowStart
	dropped := r.dropped
	r.window = nil
	r.windowStart = now
	r.dropped = 0
	r.mu.Unlock()

	if len(batch) == 0 {
		return storage.ReportRecord{}, false, nil
	}

	rec, sw := Summarize(batch, start, now)
	r.mu.Lock()
	r.recent = append(r.recent, rec)
	if over := len(r.recent) - recentReports; over > 0 {
		r.recent = slices.Delete(r.recent, 0, over)
	}
	r.mu.Unlock()

	r.log.Info("request report",
		logx.Int("requests", rec.Requests),
		logx.Int("errors", rec.Errors),
		logx.Int("async", rec.Async),
		logx.Int("timed_out", rec.TimedOut),
		logx.Int64("max_ms", rec.MaxMS),
		logx.String("slowest", rec.SlowestPath),
		logx.Int("dropped", dropped),
		logx.String("breakdown", sw.String()),
	)

	if r.store == nil {
		return rec, true, nil
	}
	if err := r.store.AppendReport(ctx, rec); err != nil {
		return rec, true, err
	}
	return rec, true, nil
}

// Recent returns the latest in-memory reports, newest first.
func (r *Reporter) Recent() []storage.ReportRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.recent)
	slices.Reverse(out)
	return out
}

// Run consumes the source bus until ctx is done, drains what is queued
// and unsubscribes.
// Without a source it only waits for cancellation.
func (r *Reporter) Run(ctx context.Context) error {
	if r.sub == nil {
		<-ctx.Done()
		return nil
	}
	defer r.unsub()
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case t, ok := <-r.sub:
			if !ok {
				return nil
			}
			r.Observe(t)
		}
	}
}

// drain observes what is already queued without waiting for more, so the
// final flush sees timings published just before shutdown.
func (r *Reporter) drain() {
	for {
		select {
		case t, ok := <-r.sub:
			if !ok {
				return
			}
			r.Observe(t)
		default:
			return
		}
	}
}

// Schedule (re)starts the cron trigger. An empty spec stops it.
func (r *Reporter) Schedule(spec, timezone string) error {
	spec = strings.TrimSpace(spec)
	r.cmu.Lock()
	defer r.cmu.Unlock()

	if spec == "" {
		r.stopLocked(context.Background())
		r.spec = ""
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return err
		}
		loc = l
	}

	c := cron.New(cron.WithParser(config.ScheduleParser), cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, r.tick); err != nil {
		return err
	}
	r.stopLocked(context.Background())
	r.c = c
	r.spec = spec
	c.Start()
	r.log.Info("report scheduled", logx.String("schedule", spec), logx.String("tz", loc.String()))
	return nil
}

// Stop stops the trigger and flushes what is left.
func (r *Reporter) Stop(ctx context.Context) error {
	r.cmu.Lock()
	r.stopLocked(ctx)
	r.cmu.Unlock()

	_, _, err := r.Flush(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Reporter) stopLocked(ctx context.Context) {
	if r.c == nil {
		return
	}
	select {
	case <-r.c.Stop().Done():
	case <-ctx.Done():
	}
	r.c = nil
}

func (r *Reporter) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, _, err := r.Flush(ctx); err != nil {
		r.log.Warn("report store failed", logx.Err(err))
	}
}

// Summarize folds timings into a record. The returned stopwatch holds one
// task per phase carrying that phase's total duration.
func Summarize(batch []web.RequestTiming, start, end time.Time) (storage.ReportRecord, *stopwatch.StopWatch) {
	rec := storage.ReportRecord{At: end, WindowStart: start, Requests: len(batch)}
	phases := map[string]time.Duration{}
	var names []string
	var maxTotal time.Duration

	for _, t := range batch {
		if t.Err != "" || t.Status >= 500 {
			rec.Errors++
		}
		if t.Async {
			rec.Async++
		}
		if t.TimedOut {
			rec.TimedOut++
		}
		rec.TotalMS += t.Report.Total.Milliseconds()
		if t.Report.Total > maxTotal || rec.SlowestPath == "" {
			maxTotal = t.Report.Total
			rec.SlowestPath = t.Method + " " + t.Path
		}
		for _, task := range t.Report.Tasks {
			if _, ok := phases[task.Name]; !ok {
				names = append(names, task.Name)
			}
			phases[task.Name] += task.Duration
		}
	}
	rec.MaxMS = maxTotal.Milliseconds()

	slices.SortStableFunc(names, func(a, b string) int { return phaseRank(a) - phaseRank(b) })

	// Replay the totals on a synthetic clock.
	var clock time.Time
	sw := stopwatch.New("requests "+start.Format(time.RFC3339), stopwatch.WithClock(func() time.Time { return clock }))
	if len(names) > 0 {
		rec.Phases = make(map[string]int64, len(names))
	}
	for _, name := range names {
		_ = sw.Start(name)
		clock = clock.Add(phases[name])
		_ = sw.Stop()
		rec.Phases[name] = phases[name].Milliseconds()
	}
	rec.Summary = sw.PrettyPrint()
	return rec, sw
}

func phaseRank(name string) int {
	switch name {
	case web.PhaseHandle:
		return 0
	case web.PhaseAsync:
		return 1
	case web.PhaseComplete:
		return 2
	default:
		return 3
	}
}
