// Package report persists the session record of a run.
//
// After finalization the run summary, the latest outcome per URL and the
// reversal index are written as run-report.json (or run-report.yaml) into the
// session folder. A later unfavorite pass is appended to the same file with
// RecordReversal. Writes go through the storage manager, so they are atomic
// and cannot leave the output directory.
package report
