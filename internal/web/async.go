package web

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
)

var (
	ErrNotInChain        = errors.New("web: request is not served by a Chain")
	ErrAsyncStarted      = errors.New("web: async handling already started")
	ErrAsyncDispatch     = errors.New("web: cannot start async during an async dispatch")
	ErrAsyncTimeout      = errors.New("web: async request timed out")
	ErrAsyncNotCompleted = errors.New("web: async request not completed")
)

// AsyncRequest is the handle for work continuing outside the handler.
type AsyncRequest struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	once sync.Once
	done chan struct{}

	mu        sync.Mutex
	result    func(w http.ResponseWriter, r *http.Request) error
	onTimeout []func()
	onAbort   []func(cause error)
}

// StartAsync switches r to concurrent handling. The handler should return
// promptly and finish the exchange later with Complete or Fail.
func StartAsync(r *http.Request) (*AsyncRequest, error) {
	st := stateFrom(r)
	if st == nil {
		return nil, ErrNotInChain
	}
	if DispatchTypeOf(r) == DispatchAsync {
		return nil, ErrAsyncDispatch
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.async != nil {
		return nil, ErrAsyncStarted
	}
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(r.Context()))
	a := &AsyncRequest{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	st.async = a
	return a, nil
}

// AsyncRequestFrom returns the async handle for r, if any.
func AsyncRequestFrom(r *http.Request) (*AsyncRequest, bool) {
	st := stateFrom(r)
	if st == nil {
		return nil, false
	}
	a := st.asyncRequest()
	return a, a != nil
}

// Context is cancelled when the request times out or the client goes away.
func (a *AsyncRequest) Context() context.Context { return a.ctx }

// Complete records the function that writes the response during the async
// dispatch. Only the first call (or timeout) wins; later calls return false.
func (a *AsyncRequest) Complete(fn func(w http.ResponseWriter, r *http.Request) error) bool {
	if fn == nil {
		fn = func(http.ResponseWriter, *http.Request) error { return nil }
	}
	won := false
	a.once.Do(func() {
		a.mu.Lock()
		a.result = fn
		a.mu.Unlock()
		won = true
		close(a.done)
	})
	return won
}

// Fail completes the request with err.
func (a *AsyncRequest) Fail(err error) bool {
	return a.Complete(func(http.ResponseWriter, *http.Request) error { return err })
}

// OnTimeout registers fn to run if the request times out before completing.
func (a *AsyncRequest) OnTimeout(fn func()) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	a.onTimeout = append(a.onTimeout, fn)
	a.mu.Unlock()
}

// OnAbort registers fn to run if the client goes away before the request
// completes. Timeouts do not trigger it.
func (a *AsyncRequest) OnAbort(fn func(cause error)) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	a.onAbort = append(a.onAbort, fn)
	a.mu.Unlock()
}

// expire ends the request without a result. A cause matching
// ErrAsyncTimeout runs the OnTimeout callbacks, anything else the OnAbort
// ones. It reports false if Complete won.
func (a *AsyncRequest) expire(cause error) bool {
	expired := false
	a.once.Do(func() {
		expired = true
		close(a.done)
	})
	if !expired {
		return false
	}
	a.cancel(cause)
	a.mu.Lock()
	timeouts := slices.Clone(a.onTimeout)
	aborts := slices.Clone(a.onAbort)
	a.mu.Unlock()
	if errors.Is(cause, ErrAsyncTimeout) {
		for _, fn := range timeouts {
			fn()
		}
		return true
	}
	for _, fn := range aborts {
		fn(cause)
	}
	return true
}

func (a *AsyncRequest) resultFunc() func(w http.ResponseWriter, r *http.Request) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}
