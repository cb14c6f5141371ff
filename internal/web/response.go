package web

import (
	"errors"
	"net/http"
)

// StatusError carries an HTTP status for WriteError.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return http.StatusText(e.Code)
	}
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error { return e.Err }

// Status wraps err with an HTTP status code.
func Status(code int, err error) error { return &StatusError{Code: code, Err: err} }

// StatusCode returns the status WriteError would use for err.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) && se.Code > 0 {
		return se.Code
	}
	if errors.Is(err, ErrAsyncTimeout) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError writes a plain-text error response unless one was already started.
// Only StatusError messages are echoed to the client.
func WriteError(w http.ResponseWriter, err error) {
	if rw, ok := w.(*responseWriter); ok && rw.wrote {
		return
	}
	code := StatusCode(err)
	msg := http.StatusText(code)
	var se *StatusError
	if errors.As(err, &se) && se.Err != nil {
		msg = se.Err.Error()
	}
	http.Error(w, msg, code)
}

// responseWriter remembers the status so interceptors can report it.
type responseWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
	bytes  int64
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w}
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if !w.wrote {
		w.status = http.StatusOK
		w.wrote = true
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.wrote {
			w.status = http.StatusOK
			w.wrote = true
		}
		f.Flush()
	}
}

// StatusOf returns the status written so far through a Chain, 0 if none.
func StatusOf(w http.ResponseWriter) int {
	if rw, ok := w.(*responseWriter); ok {
		return rw.status
	}
	return 0
}

// Written reports whether a response has been started through a Chain.
func Written(w http.ResponseWriter) bool {
	rw, ok := w.(*responseWriter)
	return ok && rw.wrote
}
