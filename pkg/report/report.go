package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	errs "grokfav/pkg/errors"
	"grokfav/pkg/logger"
	"grokfav/pkg/models"
)

// Version of the on-disk report layout
const Version = 1

// Report is the session record written next to the downloaded files
type Report struct {
	Version           int                    `json:"version" yaml:"version"`
	RunID             uint64                 `json:"run_id" yaml:"run_id"`
	SessionFolder     string                 `json:"session_folder" yaml:"session_folder"`
	StartedAt         time.Time              `json:"started_at" yaml:"started_at"`
	FinishedAt        time.Time              `json:"finished_at" yaml:"finished_at"`
	Successes         int                    `json:"successes" yaml:"successes"`
	Failures          int                    `json:"failures" yaml:"failures"`
	PermanentFailures []string               `json:"permanent_failures,omitempty" yaml:"permanent_failures,omitempty"`
	Results           []models.Result        `json:"results" yaml:"results"`
	ReversalEntries   []models.ReversalEntry `json:"reversal_entries,omitempty" yaml:"reversal_entries,omitempty"`
	Reversal          *models.ReversalReport `json:"reversal,omitempty" yaml:"reversal,omitempty"`
	UpdatedAt         time.Time              `json:"updated_at" yaml:"updated_at"`
}

// FromSummary builds a report from a finished run
func FromSummary(s models.Summary) *Report {
	return &Report{
		Version:           Version,
		RunID:             s.RunID,
		SessionFolder:     s.SessionFolder,
		StartedAt:         s.StartedAt,
		FinishedAt:        s.FinishedAt,
		Successes:         s.Successes,
		Failures:          s.Failures,
		PermanentFailures: s.PermanentFailures,
		Results:           s.Results,
		ReversalEntries:   s.ReversalEntries,
	}
}

// Store is the slice of the storage manager the writer needs
type Store interface {
	Resolve(rel string) (string, error)
	WriteFile(rel string, data []byte) error
}

// Format selects the encoding of the report file
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", errs.New(errs.ErrorTypeInvalidRequest, "unknown report format %q", s)
	}
}

// FileName returns the report file name for format
func (f Format) FileName() string {
	if f == FormatYAML {
		return "run-report.yaml"
	}
	return "run-report.json"
}

// Writer persists session reports through a Store
type Writer struct {
	store  Store
	format Format
	logger logger.Logger
}

// NewWriter creates a report writer
func NewWriter(store Store, format Format, log logger.Logger) *Writer {
	if log == nil {
		log = logger.GetLogger()
	}
	if format == "" {
		format = FormatJSON
	}
	return &Writer{
		store:  store,
		format: format,
		logger: log.WithField("component", "report"),
	}
}

// PathFor returns the report location for a session folder, relative to the
// store root.
func (w *Writer) PathFor(sessionFolder string) string {
	return path.Join(sessionFolder, w.format.FileName())
}

// Save writes r atomically into its session folder
func (w *Writer) Save(r *Report) (string, error) {
	if r.SessionFolder == "" {
		return "", errs.New(errs.ErrorTypeInvalidRequest, "report has no session folder")
	}
	r.Version = Version
	r.UpdatedAt = time.Now()

	data, err := encode(r, w.format)
	if err != nil {
		return "", err
	}

	rel := w.PathFor(r.SessionFolder)
	if err := w.store.WriteFile(rel, data); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	w.logger.DebugWithFields("Report saved", map[string]interface{}{
		"run_id": r.RunID,
		"path":   rel,
	})
	return rel, nil
}

// WriteSummary saves the report for a finished run
func (w *Writer) WriteSummary(s models.Summary) (string, error) {
	return w.Save(FromSummary(s))
}

// RecordReversal loads the session's report, attaches the unfavorite
// outcome and saves it again.
func (w *Writer) RecordReversal(sessionFolder string, rr models.ReversalReport) error {
	abs, err := w.store.Resolve(w.PathFor(sessionFolder))
	if err != nil {
		return err
	}
	r, err := Load(abs)
	if err != nil {
		return err
	}
	if r == nil {
		r = &Report{SessionFolder: sessionFolder}
	}
	r.Reversal = &rr
	_, err = w.Save(r)
	return err
}

// Load reads a report from an absolute path. The encoding follows the file
// extension. A missing file yields nil, nil.
func Load(file string) (*Report, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r Report
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &r)
	default:
		err = json.Unmarshal(data, &r)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}

func encode(r *Report, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
		return data, nil
	default:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
		return append(data, '\n'), nil
	}
}
