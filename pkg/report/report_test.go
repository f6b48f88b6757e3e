package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "grokfav/pkg/errors"
	"grokfav/pkg/logger"
	"grokfav/pkg/models"
	"grokfav/pkg/storage"
)

func sampleSummary() models.Summary {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return models.Summary{
		RunID:         4,
		SessionFolder: "grok-favorites/2026-03-01_10-00-00",
		Successes:     2,
		Failures:      1,
		Results: []models.Result{
			{URL: "https://cdn/a.png", Success: true, Message: "Download started (ID 1)."},
			{URL: "https://cdn/b.mp4", Success: true, Message: "Download started (ID 3)."},
			{URL: "https://cdn/c.png", Success: false, Message: "404"},
		},
		PermanentFailures: []string{"https://cdn/c.png"},
		ReversalEntries: []models.ReversalEntry{
			{Index: 0, GroupID: 1, ImageURL: "https://cdn/a.png", MediaType: models.MediaTypeImageOnly, Label: "Favorite 1"},
		},
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{" yml ", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.True(t, errs.IsType(err, errs.ErrorTypeInvalidRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteSummaryRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			store, err := storage.NewManager(t.TempDir())
			require.NoError(t, err)
			w := NewWriter(store, format, logger.NewNopLogger())

			rel, err := w.WriteSummary(sampleSummary())
			require.NoError(t, err)
			assert.Equal(t, "grok-favorites/2026-03-01_10-00-00/"+format.FileName(), rel)

			abs, err := store.Resolve(rel)
			require.NoError(t, err)
			loaded, err := Load(abs)
			require.NoError(t, err)
			require.NotNil(t, loaded)

			assert.Equal(t, Version, loaded.Version)
			assert.Equal(t, uint64(4), loaded.RunID)
			assert.Equal(t, 2, loaded.Successes)
			assert.Len(t, loaded.Results, 3)
			assert.Equal(t, []string{"https://cdn/c.png"}, loaded.PermanentFailures)
			require.Len(t, loaded.ReversalEntries, 1)
			assert.Equal(t, "Favorite 1", loaded.ReversalEntries[0].Label)
			assert.Nil(t, loaded.Reversal)
		})
	}
}

func TestRecordReversal(t *testing.T) {
	store, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	w := NewWriter(store, FormatJSON, logger.NewNopLogger())

	s := sampleSummary()
	_, err = w.WriteSummary(s)
	require.NoError(t, err)

	rr := models.ReversalReport{Succeeded: 1, Failed: 0, Logs: []string{"✓ Clicked position 1"}}
	require.NoError(t, w.RecordReversal(s.SessionFolder, rr))

	abs, err := store.Resolve(w.PathFor(s.SessionFolder))
	require.NoError(t, err)
	loaded, err := Load(abs)
	require.NoError(t, err)
	require.NotNil(t, loaded.Reversal)
	assert.Equal(t, 1, loaded.Reversal.Succeeded)
	assert.Equal(t, 2, loaded.Successes, "summary fields survive the update")
}

func TestRecordReversalWithoutReport(t *testing.T) {
	store, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	w := NewWriter(store, FormatYAML, logger.NewNopLogger())

	require.NoError(t, w.RecordReversal("grok-favorites/s1", models.ReversalReport{Failed: 2}))

	abs, err := store.Resolve("grok-favorites/s1/run-report.yaml")
	require.NoError(t, err)
	loaded, err := Load(abs)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Reversal.Failed)
}

func TestSaveRequiresSessionFolder(t *testing.T) {
	store, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	w := NewWriter(store, FormatJSON, logger.NewNopLogger())

	_, err = w.Save(&Report{})
	assert.True(t, errs.IsType(err, errs.ErrorTypeInvalidRequest))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	r, err := Load(filepath.Join(dir, "missing.json"))
	assert.NoError(t, err)
	assert.Nil(t, r)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)
}
