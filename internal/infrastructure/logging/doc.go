// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Level and mode come from LOG_LEVEL and LOG_DEV. Components receive a
// *zap.Logger and name their own child; PTY and registry logs carry session_id:
//
//	logger := logging.MustNew(logging.FromAppConfig(cfg.Logging))
//	reg := session.NewRegistry(store, opts, logger.Logger)
//	logger.ForSession(id).Info("Process started", zap.Int("pid", pid))
package logging
