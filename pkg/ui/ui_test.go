package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grokfav/pkg/config"
	errs "grokfav/pkg/errors"
	"grokfav/pkg/models"
	"grokfav/pkg/status"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		n       int
		want    []int
		wantErr bool
	}{
		{"empty", "", 5, nil, false},
		{"none", " None ", 5, nil, false},
		{"all", "all", 3, []int{0, 1, 2}, false},
		{"list", "0,2", 5, []int{0, 2}, false},
		{"range", "5-7", 8, []int{5, 6, 7}, false},
		{"mixed with dupes", "3, 0-1 ,1,3", 4, []int{0, 1, 3}, false},
		{"trailing comma", "2,", 3, []int{2}, false},
		{"out of range", "0,9", 5, nil, true},
		{"reversed range", "4-2", 5, nil, true},
		{"garbage", "two", 5, nil, true},
		{"bad range end", "1-x", 5, nil, true},
		{"negative", "-1", 5, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSelection(tt.input, tt.n)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.IsType(err, errs.ErrorTypeInvalidRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPromptReversal(t *testing.T) {
	entries := []models.ReversalEntry{
		{Index: 0, GroupID: 1, Label: "Favorite 1", MediaType: models.MediaTypeImageOnly, ThumbnailURL: "https://cdn/1.png"},
		{Index: 1, GroupID: 2, Label: "Favorite 2", MediaType: models.MediaTypeBoth, ThumbnailURL: "https://cdn/2.png"},
	}

	var out bytes.Buffer
	got, err := PromptReversal(entries, strings.NewReader("1\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got)
	assert.Contains(t, out.String(), "[1] Favorite 2")

	got, err = PromptReversal(entries, strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = PromptReversal(nil, strings.NewReader("all\n"), &out)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConsoleFiltering(t *testing.T) {
	tests := []struct {
		name  string
		opts  ConsoleOptions
		want  []string
		avoid []string
	}{
		{
			name:  "default hides debug",
			opts:  ConsoleOptions{NoColor: true},
			want:  []string{"Downloading 1 of 2…", "✓ All downloads complete! Success: 2."},
			avoid: []string{"scroll pass 1"},
		},
		{
			name: "debug shown",
			opts: ConsoleOptions{NoColor: true, ShowDebug: true},
			want: []string{"scroll pass 1"},
		},
		{
			name:  "quiet keeps terminal events",
			opts:  ConsoleOptions{NoColor: true, Quiet: true},
			want:  []string{"✓ All downloads complete! Success: 2.", "Gallery not ready"},
			avoid: []string{"Downloading 1 of 2…"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			c := NewConsole(&buf, tt.opts)
			c.Publish(status.Event{Text: "scroll pass 1", State: status.StateDebug})
			c.Publish(status.Event{Text: "Downloading 1 of 2…", State: status.StateRunning})
			c.Publish(status.Event{Text: "Gallery not ready", State: status.StateError})
			c.Publish(status.Event{Text: "✓ All downloads complete! Success: 2.", State: status.StateIdle})

			out := buf.String()
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, a := range tt.avoid {
				assert.NotContains(t, out, a)
			}
		})
	}
}

func TestConsoleNoColorIsPlain(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, ConsoleOptions{NoColor: true})
	c.Info("Session", "grok-favorites/x")
	c.Error("Harvest failed", errors.New("boom"))

	assert.Equal(t, "Session: grok-favorites/x\nHarvest failed: boom\n", buf.String())
}

func TestProgressSink(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressSink(&buf, "")

	p.Publish(status.Event{Text: "no progress", State: status.StateRunning})
	assert.Equal(t, 0, p.Completed())

	p.Publish(status.Event{State: status.StateRunning, Progress: &models.Progress{Total: 4, Completed: 1}})
	p.Publish(status.Event{State: status.StateRunning, Progress: &models.Progress{Total: 4, Completed: 3}})
	p.Publish(status.Event{State: status.StateRunning, Progress: &models.Progress{Total: 4, Completed: 2}})
	assert.Equal(t, 3, p.Completed(), "bar never moves backwards")
	assert.False(t, p.Finished())

	p.Publish(status.Event{State: status.StateIdle, Progress: &models.Progress{Total: 4, Completed: 4}})
	assert.Equal(t, 4, p.Completed())
	assert.True(t, p.Finished())

	// a new run starts a fresh bar
	p.Publish(status.Event{State: status.StateRunning, Progress: &models.Progress{Total: 2, Completed: 1}})
	assert.Equal(t, 1, p.Completed())
	assert.False(t, p.Finished())
}

type recordingSender struct {
	sent []string
	err  error
}

func (r *recordingSender) Send(title, message string) error {
	r.sent = append(r.sent, title+"|"+message)
	return r.err
}

func TestNotifier(t *testing.T) {
	enabled := config.NotificationConfig{Enabled: true, Desktop: true, OnComplete: true, OnError: true}

	tests := []struct {
		name  string
		cfg   config.NotificationConfig
		event status.Event
		sent  bool
	}{
		{"summary", enabled, status.Event{Text: "✓ Downloads complete. Success: 1, Failed: 1.", State: status.StateIdle}, true},
		{"plain idle", enabled, status.Event{Text: "Unfavorite skipped.", State: status.StateIdle}, false},
		{"error", enabled, status.Event{Text: "No media found", State: status.StateError}, true},
		{"running", enabled, status.Event{Text: "Downloading 1 of 3…", State: status.StateRunning}, false},
		{"errors off", config.NotificationConfig{Enabled: true, Desktop: true, OnComplete: true}, status.Event{Text: "x", State: status.StateError}, false},
		{"desktop off", config.NotificationConfig{Enabled: true, OnComplete: true, OnError: true}, status.Event{Text: "✓ done", State: status.StateIdle}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{}
			NewNotifier(sender, tt.cfg).Publish(tt.event)
			if tt.sent {
				require.Len(t, sender.sent, 1)
				assert.Equal(t, NotificationTitle+"|"+tt.event.Text, sender.sent[0])
			} else {
				assert.Empty(t, sender.sent)
			}
		})
	}
}

func TestNotifierReportsSendErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("no daemon")}
	n := NewNotifier(sender, config.NotificationConfig{Enabled: true, Desktop: true, OnError: true})

	var got error
	n.OnSendError = func(err error) { got = err }
	n.Publish(status.Event{Text: "boom", State: status.StateError})
	assert.EqualError(t, got, "no daemon")

	// nil sender is a no-op
	NewNotifier(nil, config.NotificationConfig{Enabled: true, Desktop: true, OnError: true}).
		Publish(status.Event{Text: "boom", State: status.StateError})
}

func TestEscaping(t *testing.T) {
	assert.Equal(t, `"say \"hi\" \\ bye"`, appleQuote(`say "hi" \ bye`))
	assert.Equal(t, "a &amp; &lt;b&gt;", xmlEscape("a & <b>"))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h1m", FormatDuration(61*time.Minute))

	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))

	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
}
