package browser

import (
	"context"
	"strconv"

	errs "grokfav/pkg/errors"
	"grokfav/pkg/harvest"
	"grokfav/pkg/models"
)

// PageSurface implements harvest.Surface on a live tab
type PageSurface struct {
	eval            evaluator
	mediaSelector   string
	gallerySelector string
}

var _ harvest.Surface = (*PageSurface)(nil)

// Location implements harvest.Surface
func (s *PageSurface) Location(ctx context.Context) (string, error) {
	res, err := s.eval.run(ctx, `() => location.href`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// HasMedia implements harvest.Surface
func (s *PageSurface) HasMedia(ctx context.Context) (bool, error) {
	return s.eval.boolean(ctx, `(sel) => !!document.querySelector(sel)`, s.mediaSelector)
}

// HasGallery implements harvest.Surface
func (s *PageSurface) HasGallery(ctx context.Context) (bool, error) {
	return s.eval.boolean(ctx, `(sel) => !!document.querySelector(sel)`, s.gallerySelector)
}

// FindScrollContainer implements harvest.Surface
func (s *PageSurface) FindScrollContainer(ctx context.Context) (bool, error) {
	return s.eval.boolean(ctx, withContainer("", `
  window.__grokfavScroll = null;
  return grokfavContainer() !== null;
`))
}

// ScrollToTop implements harvest.Surface
func (s *PageSurface) ScrollToTop(ctx context.Context) error {
	_, err := s.eval.run(ctx, withContainer("", `
  const c = grokfavContainer();
  if (c) c.scrollTop = 0;
  return true;
`))
	return err
}

// ScrollStep implements harvest.Surface
func (s *PageSurface) ScrollStep(ctx context.Context, floor int, ratio float64) error {
	_, err := s.eval.run(ctx, withContainer("floor, ratio", `
  grokfavStep(grokfavContainer(), floor, ratio);
  return true;
`), floor, ratio)
	return err
}

// Snapshot implements harvest.Surface
func (s *PageSurface) Snapshot(ctx context.Context) (harvest.Snapshot, error) {
	var raw struct {
		Height float64 `json:"height"`
		Top    float64 `json:"top"`
	}
	err := s.eval.decode(ctx, &raw, withContainer("", `
  const c = grokfavContainer();
  if (!c) return { height: 0, top: 0 };
  return { height: c.scrollHeight || 0, top: c.scrollTop || 0 };
`))
	if err != nil {
		return harvest.Snapshot{}, err
	}
	return harvest.Snapshot{Height: raw.Height, Top: raw.Top}, nil
}

// MediaCount implements harvest.Surface
func (s *PageSurface) MediaCount(ctx context.Context) (int, error) {
	return s.eval.integer(ctx, `(sel) => document.querySelectorAll(sel).length`, s.mediaSelector)
}

type rawMedia struct {
	URL    string `json:"url"`
	Kind   string `json:"kind"`
	Poster string `json:"poster"`
	Handle int    `json:"handle"`
}

// visibleMediaJS tags every rendered media node with a stable handle so the
// card resolver can find it again.
const visibleMediaJS = `(sel) => {
  window.__grokfavMediaSeq = window.__grokfavMediaSeq || 0;
  const out = [];
  document.querySelectorAll(sel).forEach((node) => {
    if (!node || !node.src) return;
    const url = node.currentSrc || node.src;
    if (!url) return;
    let handle = node.getAttribute('data-grokfav-media');
    if (!handle) {
      handle = String(++window.__grokfavMediaSeq);
      node.setAttribute('data-grokfav-media', handle);
    }
    const kind = node.tagName.toLowerCase() === 'video' ? 'video' : 'image';
    const poster = kind === 'video' ? (node.poster || node.getAttribute('poster') || '') : '';
    out.push({ url, kind, poster, handle: Number(handle) });
  });
  return out;
}`

// VisibleMedia implements harvest.Surface
func (s *PageSurface) VisibleMedia(ctx context.Context) ([]harvest.MediaNode, error) {
	var raw []rawMedia
	if err := s.eval.decode(ctx, &raw, visibleMediaJS, s.mediaSelector); err != nil {
		return nil, err
	}
	return toMediaNodes(raw), nil
}

func toMediaNodes(raw []rawMedia) []harvest.MediaNode {
	nodes := make([]harvest.MediaNode, 0, len(raw))
	for _, m := range raw {
		if m.URL == "" {
			continue
		}
		kind := models.KindImage
		if m.Kind == string(models.KindVideo) {
			kind = models.KindVideo
		}
		nodes = append(nodes, harvest.MediaNode{
			URL:       m.URL,
			Kind:      kind,
			PosterURL: m.Poster,
			Handle:    strconv.Itoa(m.Handle),
		})
	}
	return nodes
}

// nextPageSelectors are tried in order before the text fallback
var nextPageSelectors = []string{
	`button[aria-label*="Next" i]:not([disabled])`,
	`button[data-testid*="next" i]:not([disabled])`,
	`button[aria-disabled="false"][data-testid*="pagination"]`,
	`a[rel="next"]`,
}

const advancePageJS = `(selectors) => {
  for (const selector of selectors) {
    const control = document.querySelector(selector);
    if (control) {
      control.click();
      return { advanced: true, strategy: selector };
    }
  }
  const fallback = Array.from(document.querySelectorAll('button, a')).find((el) => {
    if (el.disabled || el.getAttribute('aria-disabled') === 'true') return false;
    const label = (el.getAttribute('aria-label') || '').trim();
    const text = (el.textContent || '').trim();
    return /^(next|older|more)$/i.test(label || text) || /^[>›»]+$/.test(text);
  });
  if (fallback) {
    fallback.click();
    return { advanced: true, strategy: 'fallback control' };
  }
  return { advanced: false, strategy: '' };
}`

// AdvancePage implements harvest.Surface
func (s *PageSurface) AdvancePage(ctx context.Context) (string, bool, error) {
	var raw struct {
		Advanced bool   `json:"advanced"`
		Strategy string `json:"strategy"`
	}
	if err := s.eval.decode(ctx, &raw, advancePageJS, nextPageSelectors); err != nil {
		return "", false, err
	}
	return raw.Strategy, raw.Advanced, nil
}

// CardResolver implements harvest.ContainerResolver by walking up from a
// media node to the nearest ancestor holding a remove control. Cards are
// numbered in first-seen order.
type CardResolver struct {
	eval          evaluator
	removeControl string
}

var _ harvest.ContainerResolver = (*CardResolver)(nil)

const containerKeyJS = `(handle, removeSel) => {
  const node = document.querySelector('[data-grokfav-media="' + handle + '"]');
  if (!node) return '';
  let container = node.parentElement;
  while (container && container !== document.body) {
    if (container.querySelector(removeSel)) break;
    container = container.parentElement;
  }
  if (!container || container === document.body) container = node.parentElement;
  if (!container) return '';
  window.__grokfavCardSeq = window.__grokfavCardSeq || 0;
  let id = container.getAttribute('data-grokfav-card');
  if (!id) {
    id = String(++window.__grokfavCardSeq);
    container.setAttribute('data-grokfav-card', id);
  }
  return 'card:' + id;
}`

// ContainerKey implements harvest.ContainerResolver
func (r *CardResolver) ContainerKey(ctx context.Context, node harvest.MediaNode) (string, error) {
	if node.Handle == "" {
		return "", errs.New(errs.ErrorTypeNotFound, "media node %s has no handle", node.URL)
	}
	res, err := r.eval.run(ctx, containerKeyJS, node.Handle, r.removeControl)
	if err != nil {
		return "", err
	}
	key := res.Value.Str()
	if key == "" {
		return "", errs.New(errs.ErrorTypeNotFound, "media node %s is no longer rendered", node.Handle)
	}
	return key, nil
}
