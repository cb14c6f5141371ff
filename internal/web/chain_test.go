package web

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type traceLog struct {
	mu     sync.Mutex
	events []string
}

func (l *traceLog) add(s string) {
	l.mu.Lock()
	l.events = append(l.events, s)
	l.mu.Unlock()
}

func (l *traceLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.events, ",")
}

type tracer struct {
	log   *traceLog
	name  string
	ord   int
	block bool
}

func (t *tracer) Order() int { return t.ord }

func (t *tracer) PreHandle(w http.ResponseWriter, r *http.Request, _ http.Handler) (bool, error) {
	t.log.add(t.name + ".pre(" + DispatchTypeOf(r).String() + ")")
	if t.block {
		http.Error(w, "blocked", http.StatusForbidden)
		return false, nil
	}
	return true, nil
}

func (t *tracer) PostHandle(http.ResponseWriter, *http.Request, http.Handler) error {
	t.log.add(t.name + ".post")
	return nil
}

func (t *tracer) AfterCompletion(_ http.ResponseWriter, _ *http.Request, _ http.Handler, err error) error {
	if err != nil {
		t.log.add(t.name + ".after(err)")
	} else {
		t.log.add(t.name + ".after")
	}
	return nil
}

type asyncTracer struct{ tracer }

func (t *asyncTracer) AfterConcurrentHandlingStarted(http.ResponseWriter, *http.Request, http.Handler) error {
	t.log.add(t.name + ".concurrent")
	return nil
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestChainSyncOrder(t *testing.T) {
	t.Parallel()
	var tl traceLog
	c := NewChain().Use(
		&tracer{log: &tl, name: "b", ord: 2},
		&tracer{log: &tl, name: "a", ord: 1},
	)
	h := c.Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		tl.add("handler")
		_, _ = io.WriteString(w, "ok")
	}))

	rec := serve(h, "/")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
	want := "a.pre(REQUEST),b.pre(REQUEST),handler,b.post,a.post,b.after,a.after"
	if tl.String() != want {
		t.Fatalf("events:\n got %s\nwant %s", tl.String(), want)
	}
}

func TestChainPreHandleStops(t *testing.T) {
	t.Parallel()
	var tl traceLog
	c := NewChain().Use(
		&tracer{log: &tl, name: "a", ord: 1},
		&tracer{log: &tl, name: "gate", ord: 2, block: true},
		&tracer{log: &tl, name: "c", ord: 3},
	)
	h := c.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { tl.add("handler") }))

	rec := serve(h, "/")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code = %d", rec.Code)
	}
	if want := "a.pre(REQUEST),gate.pre(REQUEST),a.after"; tl.String() != want {
		t.Fatalf("events:\n got %s\nwant %s", tl.String(), want)
	}
}

func TestChainHandlerError(t *testing.T) {
	t.Parallel()
	var tl traceLog
	c := NewChain().Use(&tracer{log: &tl, name: "a"})
	h := c.Wrap(HandlerFunc(func(http.ResponseWriter, *http.Request) error {
		return Status(http.StatusTeapot, errors.New("short and stout"))
	}))

	rec := serve(h, "/")
	if rec.Code != http.StatusTeapot || !strings.Contains(rec.Body.String(), "short and stout") {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
	if want := "a.pre(REQUEST),a.after(err)"; tl.String() != want {
		t.Fatalf("events = %s", tl.String())
	}
}

func TestChainRecoversPanic(t *testing.T) {
	t.Parallel()
	c := NewChain()
	h := c.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("kaboom") }))
	if rec := serve(h, "/"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestChainAsyncDispatch(t *testing.T) {
	t.Parallel()
	var tl traceLog
	c := NewChain(WithAsyncTimeout(2*time.Second)).Use(
		&asyncTracer{tracer{log: &tl, name: "async", ord: 1}},
		&tracer{log: &tl, name: "sync", ord: 2},
	)
	h := c.Wrap(HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		if DispatchTypeOf(r) == DispatchAsync {
			t.Error("handler must not run on the async dispatch")
		}
		a, err := StartAsync(r)
		if err != nil {
			return err
		}
		if _, err := StartAsync(r); !errors.Is(err, ErrAsyncStarted) {
			t.Errorf("second StartAsync: %v", err)
		}
		tl.add("handler")
		go func() {
			a.Complete(func(w http.ResponseWriter, r *http.Request) error {
				tl.add("complete(" + DispatchTypeOf(r).String() + ")")
				_, _ = io.WriteString(w, "later")
				return nil
			})
		}()
		return nil
	}))

	rec := serve(h, "/slow")
	if rec.Code != http.StatusOK || rec.Body.String() != "later" {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
	want := strings.Join([]string{
		"async.pre(REQUEST)", "sync.pre(REQUEST)", "handler", "async.concurrent",
		"async.pre(ASYNC)", "sync.pre(ASYNC)", "complete(ASYNC)",
		"sync.post", "async.post", "sync.after", "async.after",
	}, ",")
	if tl.String() != want {
		t.Fatalf("events:\n got %s\nwant %s", tl.String(), want)
	}
}

func TestChainAsyncTimeout(t *testing.T) {
	t.Parallel()
	var tl traceLog
	timedOut := make(chan struct{})
	c := NewChain(WithAsyncTimeout(20 * time.Millisecond)).Use(&asyncTracer{tracer{log: &tl, name: "a"}})
	var handle *AsyncRequest
	h := c.Wrap(HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		a, err := StartAsync(r)
		if err != nil {
			return err
		}
		handle = a
		a.OnTimeout(func() { close(timedOut) })
		return nil
	}))

	rec := serve(h, "/never")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", rec.Code)
	}
	select {
	case <-timedOut:
	default:
		t.Fatal("OnTimeout callback not called")
	}
	if handle.Context().Err() == nil {
		t.Fatal("async context should be cancelled after timeout")
	}
	if handle.Complete(nil) {
		t.Fatal("Complete after timeout should lose")
	}
	if want := "a.pre(REQUEST),a.concurrent"; tl.String() != want {
		t.Fatalf("events = %s", tl.String())
	}
}

func TestStartAsyncOutsideChain(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := StartAsync(r); !errors.Is(err, ErrNotInChain) {
		t.Fatalf("err = %v", err)
	}
}
