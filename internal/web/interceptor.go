// Package web runs HTTP handlers behind an ordered chain of interceptors.
//
// Interceptors see every request before the handler (PreHandle), after it
// (PostHandle, reverse order) and once the request is finished
// (AfterCompletion, reverse order, only for interceptors whose PreHandle
// passed).
//
// A handler may hand its work to another goroutine with StartAsync. The
// initial dispatch then ends without PostHandle/AfterCompletion; instead
// AsyncInterceptor.AfterConcurrentHandlingStarted is called. When the work
// completes the chain dispatches again with DispatchAsync and the regular
// callbacks run. An async request that times out gets a 503 and no further
// callbacks; register AsyncRequest.OnTimeout to observe it.
package web

import "net/http"

type Interceptor interface {
	// PreHandle returns false to stop processing; the interceptor is then
	// expected to have written the response.
	PreHandle(w http.ResponseWriter, r *http.Request, h http.Handler) (bool, error)
	PostHandle(w http.ResponseWriter, r *http.Request, h http.Handler) error
	// AfterCompletion receives the handler or interceptor error, if any.
	AfterCompletion(w http.ResponseWriter, r *http.Request, h http.Handler, err error) error
}

// AsyncInterceptor is notified when a handler starts concurrent handling.
// Use it to release per-goroutine state before the work moves elsewhere.
type AsyncInterceptor interface {
	Interceptor
	AfterConcurrentHandlingStarted(w http.ResponseWriter, r *http.Request, h http.Handler) error
}

// InterceptorBase is embeddable; every callback is a no-op that lets the
// request through.
type InterceptorBase struct{}

func (InterceptorBase) PreHandle(http.ResponseWriter, *http.Request, http.Handler) (bool, error) {
	return true, nil
}

func (InterceptorBase) PostHandle(http.ResponseWriter, *http.Request, http.Handler) error {
	return nil
}

func (InterceptorBase) AfterCompletion(http.ResponseWriter, *http.Request, http.Handler, error) error {
	return nil
}

func (InterceptorBase) AfterConcurrentHandlingStarted(http.ResponseWriter, *http.Request, http.Handler) error {
	return nil
}

// HandlerFunc is an http.Handler that can fail. Inside a Chain the error
// is passed to AfterCompletion and rendered with WriteError.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := f(w, r)
	if err == nil {
		return
	}
	if st := stateFrom(r); st != nil {
		st.setHandlerErr(err)
		return
	}
	WriteError(w, err)
}
