package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"appkit/internal/accept"
)

func TestNegotiationInterceptor(t *testing.T) {
	t.Parallel()
	b := accept.NewBuilder()
	b.ParameterResolver().MediaType("json", accept.ApplicationJSON)
	b.HeaderResolver()

	c := NewChain().Use(&NegotiationInterceptor{
		Resolver: b.Build(),
		Produces: []accept.MediaType{accept.ApplicationJSON, accept.TextPlain},
	})
	h := c.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, ok := Negotiate(r, accept.ApplicationJSON, accept.TextPlain)
		if !ok {
			t.Error("Negotiate found no match after interceptor passed")
		}
		_, _ = io.WriteString(w, mt.String())
	}))

	tests := []struct {
		name   string
		target string
		accept string
		code   int
		body   string
	}{
		{name: "parameter", target: "/?format=json", accept: "text/plain", code: 200, body: "application/json"},
		{name: "header", target: "/", accept: "text/plain", code: 200, body: "text/plain"},
		{name: "no preference", target: "/", code: 200, body: "application/json"},
		{name: "unknown parameter", target: "/?format=bogus-thing", code: http.StatusNotAcceptable},
		{name: "not producible", target: "/", accept: "image/png", code: http.StatusNotAcceptable},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				r.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.code, rec.Body.String())
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.body)
			}
			if rec.Header().Get("Vary") != "Accept" {
				t.Fatalf("Vary = %q", rec.Header().Get("Vary"))
			}
		})
	}
}

func TestRateLimitInterceptor(t *testing.T) {
	t.Parallel()
	rl := NewRateLimitInterceptor(1, 2)
	h := NewChain().Use(rl).Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(h, "/").Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
	if rl.Rejected() != 1 {
		t.Fatalf("Rejected = %d", rl.Rejected())
	}

	rl.Apply(0, 0)
	if code := serve(h, "/").Code; code != 200 {
		t.Fatalf("unlimited code = %d", code)
	}
}

// stepClock returns t0, t0+step, t0+2*step, ...
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.t
	c.t = c.t.Add(c.step)
	return cur
}

func TestTimingInterceptorAsyncPhases(t *testing.T) {
	t.Parallel()
	clk := &stepClock{t: time.Unix(0, 0), step: 10 * time.Millisecond}
	var got []RequestTiming
	ti := &TimingInterceptor{Now: clk.now, Sink: func(rt RequestTiming) { got = append(got, rt) }}

	h := NewChain().Use(ti).Wrap(HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		a, err := StartAsync(r)
		if err != nil {
			return err
		}
		go a.Complete(func(w http.ResponseWriter, _ *http.Request) error {
			w.WriteHeader(http.StatusAccepted)
			return nil
		})
		return nil
	}))

	if code := serve(h, "/job").Code; code != http.StatusAccepted {
		t.Fatalf("code = %d", code)
	}
	if len(got) != 1 {
		t.Fatalf("timings = %d", len(got))
	}
	rt := got[0]
	if !rt.Async || rt.Status != http.StatusAccepted || rt.Path != "/job" {
		t.Fatalf("timing = %+v", rt)
	}
	if rt.Report.TaskCount != 3 {
		t.Fatalf("task count = %d", rt.Report.TaskCount)
	}
	names := []string{rt.Report.Tasks[0].Name, rt.Report.Tasks[1].Name, rt.Report.Tasks[2].Name}
	if names[0] != PhaseHandle || names[1] != PhaseAsync || names[2] != PhaseComplete {
		t.Fatalf("phases = %v", names)
	}
	if rt.Report.Total != 30*time.Millisecond {
		t.Fatalf("total = %v", rt.Report.Total)
	}
}

func TestTimingInterceptorTimeout(t *testing.T) {
	t.Parallel()
	done := make(chan RequestTiming, 1)
	ti := &TimingInterceptor{Sink: func(rt RequestTiming) { done <- rt }}
	h := NewChain(WithAsyncTimeout(10 * time.Millisecond)).Use(ti).Wrap(HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		_, err := StartAsync(r)
		return err
	}))

	if code := serve(h, "/hang").Code; code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", code)
	}
	select {
	case rt := <-done:
		if !rt.TimedOut || rt.Status != http.StatusServiceUnavailable {
			t.Fatalf("timing = %+v", rt)
		}
	default:
		t.Fatal("no timing emitted on timeout")
	}
}

func TestTimingInterceptorClientAbort(t *testing.T) {
	t.Parallel()
	done := make(chan RequestTiming, 1)
	timedOut := make(chan struct{}, 1)
	ti := &TimingInterceptor{Sink: func(rt RequestTiming) { done <- rt }}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewChain(WithAsyncTimeout(5 * time.Second)).Use(ti).Wrap(HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		a, err := StartAsync(r)
		if err != nil {
			return err
		}
		a.OnTimeout(func() { timedOut <- struct{}{} })
		cancel()
		return nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/gone", nil).WithContext(ctx)
	h.ServeHTTP(httptest.NewRecorder(), req)

	select {
	case rt := <-done:
		if rt.TimedOut || rt.Status != StatusClientClosed || !rt.Async {
			t.Fatalf("timing = %+v", rt)
		}
		if rt.Err != context.Canceled.Error() {
			t.Fatalf("err = %q", rt.Err)
		}
	default:
		t.Fatal("no timing emitted on client abort")
	}
	select {
	case <-timedOut:
		t.Fatal("OnTimeout ran for a client abort")
	default:
	}
}
