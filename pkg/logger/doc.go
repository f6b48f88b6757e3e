// Package logger provides the structured logging interface used across grokfav.
//
// It wraps zerolog with:
//   - leveled logging (Debug, Info, Warn, Error) with attached fields
//   - a coloured console writer or JSON output, optionally teed to a file
//   - a process-wide logger (Initialize, GetLogger)
//   - helpers for harvest passes, submissions, run summaries and component
//     lifecycle
//   - StatusSink, which mirrors run status events into the log
//   - TestLogger and NewNopLogger for tests
//
// Usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("component", "harvester")
//	log.InfoWithFields("Harvest finished", map[string]interface{}{
//	    "groups": 42,
//	})
package logger
