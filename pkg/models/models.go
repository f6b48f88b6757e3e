package models

import (
	"strconv"
	"strings"
	"time"
)

// Kind classifies a harvested media element
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindOther Kind = "other"
)

// MediaType summarises which kinds a favorite card holds
type MediaType string

const (
	MediaTypeImageOnly MediaType = "image-only"
	MediaTypeVideoOnly MediaType = "video-only"
	MediaTypeBoth      MediaType = "both"
	MediaTypeUnknown   MediaType = "unknown"
)

// HarvestedRecord is one unique media reference found on the gallery page.
// ContainerKey only has meaning within the harvest pass that produced it.
type HarvestedRecord struct {
	URL          string `json:"url" yaml:"url"`
	Kind         Kind   `json:"kind" yaml:"kind"`
	PosterURL    string `json:"poster_url,omitempty" yaml:"poster_url,omitempty"`
	ContainerKey string `json:"-" yaml:"-"`
}

// MediaGroup is one favorite card. GroupID is its 1-based position on the page.
type MediaGroup struct {
	GroupID int               `json:"group_id" yaml:"group_id"`
	Records []HarvestedRecord `json:"records" yaml:"records"`
}

// QueueEntry is one file to download
type QueueEntry struct {
	URL        string `json:"url" yaml:"url"`
	Kind       Kind   `json:"kind" yaml:"kind"`
	TargetPath string `json:"target_path" yaml:"target_path"`
	Label      string `json:"label" yaml:"label"`
	GroupID    int    `json:"group_id" yaml:"group_id"`
}

// DisplayName returns the most human-friendly identifier of the entry
func (q QueueEntry) DisplayName() string {
	switch {
	case q.Label != "":
		return q.Label
	case q.TargetPath != "":
		return q.TargetPath
	default:
		return q.URL
	}
}

// ReversalEntry describes one favorite card that can be unfavorited.
// Index is the 0-based position used by the undo UI; GroupID is 1-based.
type ReversalEntry struct {
	Index        int       `json:"index" yaml:"index"`
	GroupID      int       `json:"group_id" yaml:"group_id"`
	ImageURL     string    `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	VideoURL     string    `json:"video_url,omitempty" yaml:"video_url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty" yaml:"thumbnail_url,omitempty"`
	MediaType    MediaType `json:"media_type" yaml:"media_type"`
	Label        string    `json:"label" yaml:"label"`
}

// HasImage reports whether the card holds an image
func (r ReversalEntry) HasImage() bool {
	return r.ImageURL != ""
}

// HasVideo reports whether the card holds a video
func (r ReversalEntry) HasVideo() bool {
	return r.VideoURL != ""
}

// DownloadRequest is what gets handed to the download facility
type DownloadRequest struct {
	URL        string
	TargetPath string
}

// Outcome is the facility's answer to a submission
type Outcome struct {
	Success bool
	Message string
}

// Result records the latest outcome for a queued URL
type Result struct {
	URL     string `json:"url" yaml:"url"`
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Progress tracks primary-pass completion
type Progress struct {
	Total     int `json:"total" yaml:"total"`
	Completed int `json:"completed" yaml:"completed"`
}

// Summary is the terminal report of a finished run
type Summary struct {
	RunID             uint64          `json:"run_id" yaml:"run_id"`
	SessionFolder     string          `json:"session_folder" yaml:"session_folder"`
	Successes         int             `json:"successes" yaml:"successes"`
	Failures          int             `json:"failures" yaml:"failures"`
	PermanentFailures []string        `json:"permanent_failures,omitempty" yaml:"permanent_failures,omitempty"`
	Results           []Result        `json:"results" yaml:"results"`
	ReversalEntries   []ReversalEntry `json:"reversal_entries,omitempty" yaml:"reversal_entries,omitempty"`
	StartedAt         time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt        time.Time       `json:"finished_at" yaml:"finished_at"`
}

// ReversalReport is the outcome of an unfavorite pass. Logs holds one line
// per requested position.
type ReversalReport struct {
	Succeeded int      `json:"succeeded" yaml:"succeeded"`
	Failed    int      `json:"failed" yaml:"failed"`
	Logs      []string `json:"logs,omitempty" yaml:"logs,omitempty"`
}

// FormatPositions renders page positions as "1, 4, 9"
func FormatPositions(positions []int) string {
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}
