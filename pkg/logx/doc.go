// Package logx configures dailydispatch's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, one file per day when the path has {date}
//   - Components decoupled from any global logger (loggers are passed in)
package logx
