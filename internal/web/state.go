package web

import (
	"context"
	"net/http"
	"sync"
)

type DispatchType int

const (
	DispatchRequest DispatchType = iota
	DispatchAsync
)

func (d DispatchType) String() string {
	if d == DispatchAsync {
		return "ASYNC"
	}
	return "REQUEST"
}

type stateKey struct{}
type dispatchKey struct{}

// requestState lives for the whole exchange, across async dispatches.
type requestState struct {
	mu         sync.Mutex
	attrs      map[string]any
	async      *AsyncRequest
	handlerErr error
}

func stateFrom(r *http.Request) *requestState {
	st, _ := r.Context().Value(stateKey{}).(*requestState)
	return st
}

func (st *requestState) setHandlerErr(err error) {
	st.mu.Lock()
	st.handlerErr = err
	st.mu.Unlock()
}

func (st *requestState) takeHandlerErr() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	err := st.handlerErr
	st.handlerErr = nil
	return err
}

func (st *requestState) asyncRequest() *AsyncRequest {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.async
}

func withDispatch(r *http.Request, st *requestState, d DispatchType) *http.Request {
	ctx := context.WithValue(r.Context(), stateKey{}, st)
	ctx = context.WithValue(ctx, dispatchKey{}, d)
	return r.WithContext(ctx)
}

// DispatchTypeOf reports whether r is the initial dispatch or the one that
// follows completion of async work.
func DispatchTypeOf(r *http.Request) DispatchType {
	d, _ := r.Context().Value(dispatchKey{}).(DispatchType)
	return d
}

// SetAttribute stores a value for the rest of the exchange (including the
// async dispatch). It is a no-op outside a Chain.
func SetAttribute(r *http.Request, key string, v any) {
	st := stateFrom(r)
	if st == nil {
		return
	}
	st.mu.Lock()
	if st.attrs == nil {
		st.attrs = map[string]any{}
	}
	st.attrs[key] = v
	st.mu.Unlock()
}

func Attribute(r *http.Request, key string) (any, bool) {
	st := stateFrom(r)
	if st == nil {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	v, ok := st.attrs[key]
	return v, ok
}

// IsAsyncStarted reports whether the handler called StartAsync.
func IsAsyncStarted(r *http.Request) bool {
	st := stateFrom(r)
	return st != nil && st.asyncRequest() != nil
}
