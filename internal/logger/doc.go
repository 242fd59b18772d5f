// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with console or JSON output,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Services accept a context and extract the logger from it, so every cycle of
// the watcher logs with the channel it is watching attached.
package logger
