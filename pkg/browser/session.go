package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"grokfav/pkg/config"
	errs "grokfav/pkg/errors"
	"grokfav/pkg/logger"
)

// Session owns the automated browser and the single gallery tab
type Session struct {
	cfg      config.BrowserConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	logger   logger.Logger
}

// newLauncher builds the launcher flags for cfg without starting anything
func newLauncher(cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("lang", "en-US").
		Devtools(false)

	if cfg.BrowserPath != "" {
		l = l.Bin(cfg.BrowserPath)
	} else if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}

	// Persist the signed-in profile between runs
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}

	if cfg.Stealth {
		l = l.Set("disable-blink-features", "AutomationControlled").
			Set("exclude-switches", "enable-automation")
	}

	if cfg.NoSandbox {
		l = l.NoSandbox(true)
	}

	if !cfg.Headless {
		l = l.Set("start-maximized")
	}

	return l
}

// Launch starts the browser and opens one tab
func Launch(ctx context.Context, cfg config.BrowserConfig, log logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	l := newLauncher(cfg).Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	var page *rod.Page
	if cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  cfg.ViewportWidth,
			Height: cfg.ViewportHeight,
		}); err != nil {
			log.WithError(err).Warn("Failed to set viewport")
		}
	}

	logger.LogComponentStart(log, "browser", map[string]interface{}{
		"headless":      cfg.Headless,
		"stealth":       cfg.Stealth,
		"user_data_dir": cfg.UserDataDir,
	})
	log = log.WithField("component", "browser")

	return &Session{
		cfg:      cfg,
		launcher: l,
		browser:  b,
		page:     page,
		logger:   log,
	}, nil
}

// Open navigates the tab to target and waits for the load event
func (s *Session) Open(ctx context.Context, target string) error {
	if target == "" {
		target = s.cfg.GalleryURL
	}

	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := s.page.Context(ctx)
	if err := p.Navigate(target); err != nil {
		return errs.New(errs.ErrorTypeNetwork, "navigation to %s failed: %v", target, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for load: %w", err)
	}

	s.logger.InfoWithFields("Gallery opened", map[string]interface{}{"url": target})
	return nil
}

// Location returns the URL currently shown in the tab
func (s *Session) Location(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.URL, nil
}

// Surface exposes the tab to the harvester
func (s *Session) Surface(hc config.HarvestConfig) *PageSurface {
	return &PageSurface{
		eval:            evaluator{page: s.page, timeout: s.cfg.EvalTimeout},
		mediaSelector:   hc.MediaSelector,
		gallerySelector: hc.GallerySelector,
	}
}

// Resolver groups media by the card that holds the remove control
func (s *Session) Resolver(hc config.HarvestConfig) *CardResolver {
	return &CardResolver{
		eval:          evaluator{page: s.page, timeout: s.cfg.EvalTimeout},
		removeControl: hc.RemoveControlSelector,
	}
}

// Unfavoriter returns the live reversal executor for this tab
func (s *Session) Unfavoriter(hc config.HarvestConfig, rc config.ReversalConfig) *Unfavoriter {
	return NewUnfavoriter(evaluator{page: s.page, timeout: s.cfg.EvalTimeout}, hc.RemoveControlSelector, rc, s.logger)
}

// Cookies exports the tab's cookies for target so the media client can reuse
// the signed-in session.
func (s *Session) Cookies(ctx context.Context, target string) ([]*http.Cookie, error) {
	if target == "" {
		target = s.cfg.GalleryURL
	}
	cookies, err := s.page.Context(ctx).Cookies([]string{target})
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	return toHTTPCookies(cookies), nil
}

// Origin returns scheme://host of u, the scope cookies are installed under
func Origin(u string) (string, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errs.New(errs.ErrorTypeInvalidRequest, "URL %q has no scheme or host", u)
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

func toHTTPCookies(in []*proto.NetworkCookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil || c.Name == "" {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out
}

// Close shuts the browser down. The profile directory is left in place.
func (s *Session) Close() error {
	if s.browser == nil {
		return nil
	}
	b := s.browser
	s.browser = nil
	err := b.Close()
	if s.launcher != nil {
		s.launcher.Kill()
	}
	reason := "closed"
	if err != nil {
		reason = err.Error()
	}
	logger.LogComponentStop(s.logger, "browser", reason)
	return err
}
