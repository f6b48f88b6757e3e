// Package ui renders run status in the terminal.
//
// Console prints status events as lipgloss-styled lines, ProgressSink drives
// a progressbar from the progress carried by those events, and Notifier
// raises desktop notifications for run summaries and errors. All three are
// status.Sink implementations and are usually combined with status.Multi.
//
// ParseSelection and PromptReversal implement the unfavorite picker shown
// after downloads complete.
package ui
