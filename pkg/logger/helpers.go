package logger

import (
	"grokfav/pkg/status"
)

// LogRequest logs the outcome of a media transfer request
func LogRequest(l Logger, method, url string, statusCode int, durationMs float64) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": durationMs,
	}

	switch {
	case statusCode >= 500:
		l.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogHarvestPass logs one scroll pass of the harvester
func LogHarvestPass(l Logger, pass, rendered, collected, stableGeometry, stableMedia int) {
	l.DebugWithFields("Harvest pass", map[string]interface{}{
		"pass":            pass,
		"rendered":        rendered,
		"collected":       collected,
		"stable_geometry": stableGeometry,
		"stable_media":    stableMedia,
	})
}

// LogSubmission logs one download submission made by the orchestrator
func LogSubmission(l Logger, runID uint64, url, target string, success bool, message string) {
	fields := map[string]interface{}{
		"run_id":  runID,
		"url":     url,
		"target":  target,
		"success": success,
	}
	if message != "" {
		fields["message"] = message
	}

	if success {
		l.DebugWithFields("Submission accepted", fields)
	} else {
		l.WarnWithFields("Submission failed", fields)
	}
}

// LogRunSummary logs the terminal summary of a run
func LogRunSummary(l Logger, runID uint64, successes, failures int, sessionFolder string) {
	l.InfoWithFields("Run finished", map[string]interface{}{
		"run_id":         runID,
		"successes":      successes,
		"failures":       failures,
		"session_folder": sessionFolder,
	})
}

// LogComponentStart logs that a long-lived component (browser, worker
// pool) came up with the given settings
func LogComponentStart(l Logger, component string, settings map[string]interface{}) {
	l = l.WithField("component", component)
	if len(settings) > 0 {
		l = l.WithFields(settings)
	}
	l.Info("Component started")
}

// LogComponentStop logs that a component shut down
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// StatusSink mirrors status events into a logger
type StatusSink struct {
	Logger Logger
}

// Publish implements status.Sink
func (s StatusSink) Publish(e status.Event) {
	if s.Logger == nil {
		return
	}
	fields := map[string]interface{}{"state": string(e.State)}
	if e.Progress != nil {
		fields["completed"] = e.Progress.Completed
		fields["total"] = e.Progress.Total
	}

	switch e.State {
	case status.StateDebug:
		s.Logger.DebugWithFields(e.Text, fields)
	case status.StateError:
		s.Logger.WarnWithFields(e.Text, fields)
	default:
		s.Logger.InfoWithFields(e.Text, fields)
	}
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
