// Package logx configures appkit's structured logging.
//
// logx.Logger is a small value-type wrapper over zerolog:
//   - console output stays readable (short timestamp, file:line caller)
//   - file output is JSON lines
//   - a Service swaps sinks and level at runtime without invalidating
//     loggers handed out earlier
package logx
