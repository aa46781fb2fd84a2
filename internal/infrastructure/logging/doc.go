// Package logging provides structured logging for the Venstar bridge.
//
// This package wraps Go's standard log/slog package. Every entry carries
// the service and version fields. The level can be changed while running
// through SetLevel, which the controller drives with SET_LOGLEVEL using
// its numeric levels (10 debug, 20 info, 30 warning, 40 error).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("polling started", "thermostats", 2)
package logging
