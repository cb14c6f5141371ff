// Package stopwatch times a sequence of named tasks.
//
// A StopWatch holds at most one running task. Start/Stop must alternate;
// misuse is reported as an error wrapping ErrIllegalState.
//
// StopWatch is not safe for concurrent use. It is meant for development-time
// diagnostics and per-request timing where one goroutine owns the instance.
package stopwatch
