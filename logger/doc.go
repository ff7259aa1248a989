// Package logger provides structured logging backed by zerolog.
//
// Loggers are scoped by component and carry request and trace identifiers
// pulled from the context:
//
//	log := logger.New(&cfg.Logging, "whisperd").WithComponent("workerpool")
//	log.Info("worker loaded", logger.Fields("worker_id", 0))
package logger
