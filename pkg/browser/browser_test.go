package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grokfav/pkg/config"
	errs "grokfav/pkg/errors"
	"grokfav/pkg/harvest"
	"grokfav/pkg/logger"
	"grokfav/pkg/models"
)

func TestNewLauncherFlags(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.BrowserConfig
		has    []flags.Flag
		hasNot []flags.Flag
	}{
		{
			name:   "headless with profile",
			cfg:    config.BrowserConfig{Headless: true, UserDataDir: "/tmp/grokfav-profile", BrowserPath: "/usr/bin/chromium"},
			has:    []flags.Flag{flags.Headless, flags.UserDataDir, flags.Bin},
			hasNot: []flags.Flag{"start-maximized", "disable-blink-features"},
		},
		{
			name:   "visible stealth sandboxless",
			cfg:    config.BrowserConfig{Headless: false, Stealth: true, NoSandbox: true},
			has:    []flags.Flag{"disable-blink-features", flags.NoSandbox, "start-maximized"},
			hasNot: []flags.Flag{flags.Headless},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLauncher(tt.cfg)
			for _, f := range tt.has {
				assert.True(t, l.Has(f), "expected flag %s", f)
			}
			for _, f := range tt.hasNot {
				assert.False(t, l.Has(f), "unexpected flag %s", f)
			}
		})
	}

	l := newLauncher(config.BrowserConfig{UserDataDir: "/tmp/grokfav-profile", Stealth: true})
	assert.Equal(t, "/tmp/grokfav-profile", l.Get(flags.UserDataDir))
	assert.Equal(t, "AutomationControlled", l.Get("disable-blink-features"))
}

func TestToHTTPCookies(t *testing.T) {
	in := []*proto.NetworkCookie{
		{Name: "sso", Value: "abc", Domain: ".grok.com", Path: "/", Secure: true, HTTPOnly: true},
		{Name: "theme", Value: "dark", Domain: "grok.com"},
		{Name: "", Value: "ignored"},
		nil,
	}

	out := toHTTPCookies(in)
	require.Len(t, out, 2)
	assert.Equal(t, "sso", out[0].Name)
	assert.True(t, out[0].Secure)
	assert.True(t, out[0].HttpOnly)
	assert.Equal(t, "/", out[1].Path)
}

func TestOrigin(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://grok.com/imagine/favorites", "https://grok.com", false},
		{"http://localhost:8080/a?b=c", "http://localhost:8080", false},
		{"/imagine", "", true},
		{"::", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Origin(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Origin("/relative")
	assert.True(t, errs.IsType(err, errs.ErrorTypeInvalidRequest))
}

func TestToMediaNodes(t *testing.T) {
	nodes := toMediaNodes([]rawMedia{
		{URL: "https://cdn/a.png", Kind: "image", Handle: 1},
		{URL: "https://cdn/b.mp4", Kind: "video", Poster: "https://cdn/b.jpg", Handle: 2},
		{URL: "", Kind: "image", Handle: 3},
		{URL: "https://cdn/c", Kind: "canvas", Handle: 4},
	})

	require.Len(t, nodes, 3)
	assert.Equal(t, models.KindImage, nodes[0].Kind)
	assert.Equal(t, "1", nodes[0].Handle)
	assert.Equal(t, models.KindVideo, nodes[1].Kind)
	assert.Equal(t, "https://cdn/b.jpg", nodes[1].PosterURL)
	assert.Equal(t, models.KindImage, nodes[2].Kind)
}

func TestContainerKeyRequiresHandle(t *testing.T) {
	r := &CardResolver{}
	_, err := r.ContainerKey(context.Background(), harvest.MediaNode{URL: "https://cdn/a.png"})
	assert.True(t, errs.IsType(err, errs.ErrorTypeNotFound))
}

// galleryPage renders a scrollable favorites grid of n cards; every third
// card also carries a video.
func galleryPage(n int) string {
	var b strings.Builder
	b.WriteString(`<html><body style="margin:0"><div id="scroll" style="height:600px;overflow-y:scroll">`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<div class="card" style="height:300px">`)
		fmt.Fprintf(&b, `<img alt="Generated image %d" src="/media/%d.png">`, i, i)
		if i%3 == 0 {
			fmt.Fprintf(&b, `<video src="/media/%d.mp4" poster="/media/%d.jpg"></video>`, i, i)
		}
		fmt.Fprintf(&b, `<button aria-label="Unsave" onclick="this.parentElement.dataset.removed='1'">x</button></div>`)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

// TestLiveGallery drives a real browser against a local page. It needs a
// Chromium install and GROKFAV_BROWSER_TESTS=1.
func TestLiveGallery(t *testing.T) {
	if testing.Short() || os.Getenv("GROKFAV_BROWSER_TESTS") != "1" {
		t.Skip("set GROKFAV_BROWSER_TESTS=1 to run browser tests")
	}
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no browser found")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/media/") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, galleryPage(12))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Browser.Headless = true
	cfg.Browser.NoSandbox = true
	cfg.Browser.UserDataDir = t.TempDir()
	cfg.Harvest.ContextSegment = "/imagine"

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	session, err := Launch(ctx, cfg.Browser, logger.NewNopLogger())
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.Open(ctx, srv.URL+"/imagine/favorites"))

	opts := harvest.OptionsFromConfig(cfg.Harvest)
	h := harvest.New(session.Surface(cfg.Harvest), session.Resolver(cfg.Harvest), opts, logger.NewNopLogger())
	h.SetDelayer(harvest.NoDelay{})

	res, err := h.Harvest(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, harvest.StatusOK, res.Status)
	assert.Len(t, res.Groups, 12)
	assert.Len(t, res.Records(), 16)

	u := session.Unfavoriter(cfg.Harvest, config.ReversalConfig{})
	u.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	report, err := u.Remove(ctx, []int{1, 12, 40})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Logs, "✗ Position 40: out of range")
}
