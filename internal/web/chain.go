package web

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"appkit/pkg/logx"
	"appkit/pkg/order"
)

const DefaultAsyncTimeout = 30 * time.Second

type Option func(*Chain)

func WithLogger(log logx.Logger) Option {
	return func(c *Chain) { c.log = log }
}

// WithAsyncTimeout bounds how long an async request may take. <=0 keeps the default.
func WithAsyncTimeout(d time.Duration) Option {
	return func(c *Chain) {
		if d > 0 {
			c.asyncTimeout = d
		}
	}
}

// Chain is an ordered interceptor list. Configure it with Use before
// serving; Wrap handlers are safe for concurrent requests.
type Chain struct {
	mu           sync.RWMutex
	interceptors []Interceptor
	asyncTimeout time.Duration
	log          logx.Logger
}

func NewChain(opts ...Option) *Chain {
	c := &Chain{asyncTimeout: DefaultAsyncTimeout}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c
}

// Use appends interceptors. The chain keeps them sorted by order.Of; ties
// stay in the order they were added.
func (c *Chain) Use(in ...Interceptor) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, i := range in {
		if i != nil {
			c.interceptors = append(c.interceptors, i)
		}
	}
	order.Sort(c.interceptors)
	return c
}

func (c *Chain) snapshot() []Interceptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.interceptors)
}

// SetAsyncTimeout changes the timeout for requests started afterwards.
func (c *Chain) SetAsyncTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultAsyncTimeout
	}
	c.mu.Lock()
	c.asyncTimeout = d
	c.mu.Unlock()
}

func (c *Chain) timeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.asyncTimeout
}

// Wrap returns h behind the chain.
func (c *Chain) Wrap(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.serve(w, r, h)
	})
}

func (c *Chain) serve(w http.ResponseWriter, r *http.Request, h http.Handler) {
	st := &requestState{}
	rw := wrapResponseWriter(w)
	interceptors := c.snapshot()

	req := withDispatch(r, st, DispatchRequest)
	c.dispatch(interceptors, rw, req, h, func(w http.ResponseWriter, r *http.Request) error {
		h.ServeHTTP(w, r)
		return st.takeHandlerErr()
	})

	a := st.asyncRequest()
	if a == nil {
		return
	}

	timer := time.NewTimer(c.timeout())
	defer timer.Stop()
	select {
	case <-a.done:
	case <-timer.C:
		if a.expire(ErrAsyncTimeout) {
			c.log.Warn("async request timed out",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Duration("timeout", c.timeout()),
			)
			WriteError(rw, ErrAsyncTimeout)
			return
		}
	case <-r.Context().Done():
		if a.expire(r.Context().Err()) {
			c.log.Debug("client gone during async request", logx.String("path", r.URL.Path))
			return
		}
	}

	result := a.resultFunc()
	if result == nil {
		// expired concurrently with a late Complete
		return
	}
	areq := withDispatch(r, st, DispatchAsync)
	c.dispatch(interceptors, rw, areq, h, result)
}

// dispatch runs one pass of the interceptor protocol around invoke.
func (c *Chain) dispatch(interceptors []Interceptor, w *responseWriter, r *http.Request, h http.Handler,
	invoke func(w http.ResponseWriter, r *http.Request) error) {
	passed := 0
	for _, in := range interceptors {
		ok, err := in.PreHandle(w, r, h)
		if err != nil {
			WriteError(w, err)
			c.afterCompletion(interceptors[:passed], w, r, h, err)
			return
		}
		if !ok {
			c.afterCompletion(interceptors[:passed], w, r, h, nil)
			return
		}
		passed++
	}

	err := c.invoke(w, r, invoke)

	if DispatchTypeOf(r) == DispatchRequest && IsAsyncStarted(r) {
		if err != nil {
			// The handler failed after starting async work; finish through
			// the async dispatch so the callbacks still pair up.
			if a, ok := AsyncRequestFrom(r); ok {
				a.Fail(err)
			}
		}
		c.concurrentHandlingStarted(interceptors, w, r, h)
		return
	}

	if err == nil {
		for i := len(interceptors) - 1; i >= 0; i-- {
			if perr := interceptors[i].PostHandle(w, r, h); perr != nil {
				err = perr
				break
			}
		}
	}
	if err != nil {
		c.log.Debug("request failed", logx.String("path", r.URL.Path), logx.Err(err))
		WriteError(w, err)
	}
	c.afterCompletion(interceptors, w, r, h, err)
}

func (c *Chain) invoke(w http.ResponseWriter, r *http.Request, fn func(w http.ResponseWriter, r *http.Request) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if p == http.ErrAbortHandler {
				panic(p)
			}
			c.log.Error("handler panicked",
				logx.String("path", r.URL.Path),
				logx.Any("panic", p),
				logx.Stack(string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(w, r)
}

func (c *Chain) afterCompletion(passed []Interceptor, w http.ResponseWriter, r *http.Request, h http.Handler, err error) {
	for i := len(passed) - 1; i >= 0; i-- {
		if aerr := passed[i].AfterCompletion(w, r, h, err); aerr != nil {
			c.log.Warn("interceptor AfterCompletion failed",
				logx.String("interceptor", fmt.Sprintf("%T", passed[i])),
				logx.Err(aerr),
			)
		}
	}
}

func (c *Chain) concurrentHandlingStarted(interceptors []Interceptor, w http.ResponseWriter, r *http.Request, h http.Handler) {
	for i := len(interceptors) - 1; i >= 0; i-- {
		ai, ok := interceptors[i].(AsyncInterceptor)
		if !ok {
			continue
		}
		if err := ai.AfterConcurrentHandlingStarted(w, r, h); err != nil {
			c.log.Warn("interceptor AfterConcurrentHandlingStarted failed",
				logx.String("interceptor", fmt.Sprintf("%T", ai)),
				logx.Err(err),
			)
		}
	}
}
