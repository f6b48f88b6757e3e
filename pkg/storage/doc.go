// Package storage writes downloaded media and run reports beneath the output
// directory.
//
// Targets are relative, slash-separated paths such as
// "grok-favorites/2024-05-01_10-00-00/3-video.mp4". Manager.Resolve rejects
// absolute paths and paths that climb out of the base directory, and Save
// writes through a temporary file followed by a rename so a partial transfer
// never leaves a truncated file behind.
package storage
