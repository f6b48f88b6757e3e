// Package harvest collects media records from a virtualized, paginated
// gallery. It scrolls until both the scroll geometry and the rendered media
// count have been stable for several passes, escalates to pagination, and
// groups what it saw by favorite card.
package harvest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"grokfav/pkg/config"
	"grokfav/pkg/logger"
	"grokfav/pkg/models"
)

// Status is the structural outcome of a harvest
type Status string

const (
	StatusOK       Status = "ok"
	StatusNotReady Status = "not_ready"
)

// Result is what a harvest produced. Diagnostics is only filled in debug mode.
type Result struct {
	Status      Status
	Groups      []models.MediaGroup
	Diagnostics []string
}

// Records returns the grouped records flattened in group order
func (r *Result) Records() []models.HarvestedRecord {
	var out []models.HarvestedRecord
	for _, g := range r.Groups {
		out = append(out, g.Records...)
	}
	return out
}

// Options tunes the scroll loop
type Options struct {
	ContextSegment      string
	ReadyAttempts       int
	MaxPasses           int
	MaxPaginationCycles int
	StabilityThreshold  int
	ScrollStepFloor     int
	ScrollStepRatio     float64

	InitialSettle config.Jitter
	ReadyDelay    config.Jitter
	NudgeDelay    config.Jitter
	SettleDelay   config.Jitter
	PageDelay     config.Jitter
	PostPageDelay config.Jitter
}

// OptionsFromConfig reads the harvest section of the configuration
func OptionsFromConfig(hc config.HarvestConfig) Options {
	return Options{
		ContextSegment:      hc.ContextSegment,
		ReadyAttempts:       hc.ReadyAttempts,
		MaxPasses:           hc.MaxPasses,
		MaxPaginationCycles: hc.MaxPaginationCycles,
		StabilityThreshold:  hc.StabilityThreshold,
		ScrollStepFloor:     hc.ScrollStepFloor,
		ScrollStepRatio:     hc.ScrollStepRatio,
		InitialSettle:       config.Jitter{Min: hc.InitialSettle, Max: hc.InitialSettle},
		ReadyDelay:          hc.ReadyDelay,
		NudgeDelay:          hc.NudgeDelay,
		SettleDelay:         hc.SettleDelay,
		PageDelay:           hc.PageDelay,
		PostPageDelay:       hc.PostPageDelay,
	}
}

// Harvester drives one Surface
type Harvester struct {
	surface  Surface
	resolver ContainerResolver
	delayer  Delayer
	opts     Options
	logger   logger.Logger
}

// New creates a harvester. A nil resolver puts every element in its own card.
func New(surface Surface, resolver ContainerResolver, opts Options, log logger.Logger) *Harvester {
	if resolver == nil {
		resolver = ContainerResolverFunc(func(_ context.Context, n MediaNode) (string, error) {
			return n.URL, nil
		})
	}
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.StabilityThreshold < 1 {
		opts.StabilityThreshold = 3
	}
	return &Harvester{
		surface:  surface,
		resolver: resolver,
		delayer:  RandomDelayer{},
		opts:     opts,
		logger:   log.WithField("component", "harvester"),
	}
}

// SetDelayer replaces the randomized waits, e.g. with NoDelay in tests
func (h *Harvester) SetDelayer(d Delayer) {
	h.delayer = d
}

// pass holds the mutable state of one Harvest call
type pass struct {
	h       *Harvester
	debug   bool
	lines   []string
	seen    map[string]struct{}
	records []models.HarvestedRecord
}

func (p *pass) logf(format string, args ...interface{}) {
	if p.debug {
		p.lines = append(p.lines, fmt.Sprintf(format, args...))
	}
}

// Harvest scrolls the whole gallery. Surface errors are returned as errors;
// a page that is not in an extractable state yields StatusNotReady.
func (h *Harvester) Harvest(ctx context.Context, debug bool) (*Result, error) {
	p := &pass{h: h, debug: debug, seen: make(map[string]struct{})}
	notReady := func() (*Result, error) {
		return &Result{Status: StatusNotReady, Diagnostics: p.lines}, nil
	}

	location, err := h.surface.Location(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page location: %w", err)
	}
	if h.opts.ContextSegment != "" && !strings.Contains(location, h.opts.ContextSegment) {
		p.logf("URL missing %s segment; aborting scrape.", h.opts.ContextSegment)
		return notReady()
	}

	ready, err := p.awaitGrid(ctx)
	if err != nil {
		return nil, err
	}
	if !ready {
		return notReady()
	}

	found, err := h.surface.FindScrollContainer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to locate scroll container: %w", err)
	}
	if !found {
		p.logf("Could not find scrollable container")
		return notReady()
	}

	if err := h.surface.ScrollToTop(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset scroll position: %w", err)
	}
	if err := h.delayer.Delay(ctx, h.opts.InitialSettle); err != nil {
		return nil, err
	}

	if err := p.scrollLoop(ctx); err != nil {
		return nil, err
	}

	if err := p.collect(ctx); err != nil {
		return nil, err
	}
	p.logf("Final collection: %d total unique media items", len(p.records))

	groups := GroupRecords(p.records)
	p.logf("Processed %d media items into %d favorite groups.", len(p.records), len(groups))
	if debug && len(groups) > 0 {
		p.logf("Group size distribution: %s", sizeDistribution(groups))
	}

	h.logger.InfoWithFields("Harvest finished", map[string]interface{}{
		"records": len(p.records),
		"groups":  len(groups),
	})
	return &Result{Status: StatusOK, Groups: groups, Diagnostics: p.lines}, nil
}

// awaitGrid polls until a media element is rendered. A gallery without
// media gets a scroll nudge between polls.
func (p *pass) awaitGrid(ctx context.Context) (bool, error) {
	h := p.h
	for attempt := 0; attempt < h.opts.ReadyAttempts; attempt++ {
		hasMedia, err := h.surface.HasMedia(ctx)
		if err != nil {
			return false, fmt.Errorf("readiness probe failed: %w", err)
		}
		hasGallery, err := h.surface.HasGallery(ctx)
		if err != nil {
			return false, fmt.Errorf("readiness probe failed: %w", err)
		}
		p.logf("ensureGrid attempt %d: media=%s, gallery=%s", attempt+1, yesNo(hasMedia), yesNo(hasGallery))

		if hasMedia {
			p.logf("Media element detected; grid ready for scraping.")
			return true, nil
		}

		delay := h.opts.ReadyDelay
		if hasGallery {
			p.logf("Gallery container present but media missing; performing additional scroll.")
			if found, err := h.surface.FindScrollContainer(ctx); err == nil && found {
				if err := h.surface.ScrollStep(ctx, h.opts.ScrollStepFloor, h.opts.ScrollStepRatio); err != nil {
					return false, fmt.Errorf("scroll nudge failed: %w", err)
				}
			}
			delay = h.opts.NudgeDelay
		}
		if err := h.delayer.Delay(ctx, delay); err != nil {
			return false, err
		}
	}

	p.logf("Failed to detect favorites grid after repeated attempts.")
	return false, nil
}

func (p *pass) scrollLoop(ctx context.Context) error {
	h := p.h
	threshold := h.opts.StabilityThreshold

	last, err := h.surface.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read scroll geometry: %w", err)
	}
	lastCount, err := h.surface.MediaCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to count media: %w", err)
	}

	stableGeometry, stableMedia, paginationCycles := 0, 0, 0
	for attempt := 0; attempt < h.opts.MaxPasses; attempt++ {
		if err := p.collect(ctx); err != nil {
			return err
		}
		if err := h.surface.ScrollStep(ctx, h.opts.ScrollStepFloor, h.opts.ScrollStepRatio); err != nil {
			return fmt.Errorf("scroll step failed: %w", err)
		}
		if err := h.delayer.Delay(ctx, h.opts.SettleDelay); err != nil {
			return err
		}

		current, err := h.surface.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to read scroll geometry: %w", err)
		}
		count, err := h.surface.MediaCount(ctx)
		if err != nil {
			return fmt.Errorf("failed to count media: %w", err)
		}
		p.logf("scroll pass %d: media=%d, height=%.0f, scrollTop=%.0f, collected=%d, stableHeight=%d, stableMedia=%d",
			attempt+1, count, current.Height, current.Top, len(p.records), stableGeometry, stableMedia)
		logger.LogHarvestPass(h.logger, attempt+1, count, len(p.records), stableGeometry, stableMedia)

		if current == last {
			stableGeometry++
		} else {
			stableGeometry = 0
		}
		if count == lastCount {
			stableMedia++
		} else {
			stableMedia = 0
		}
		last, lastCount = current, count

		if count == 0 {
			continue
		}
		if stableGeometry < threshold || stableMedia < threshold {
			continue
		}

		if paginationCycles >= h.opts.MaxPaginationCycles {
			return nil
		}
		strategy, advanced, err := h.surface.AdvancePage(ctx)
		if err != nil {
			return fmt.Errorf("pagination failed: %w", err)
		}
		if !advanced {
			return nil
		}
		p.logf("Advancing pagination via %s", strategy)
		if err := h.delayer.Delay(ctx, h.opts.PageDelay); err != nil {
			return err
		}

		paginationCycles++
		stableGeometry, stableMedia = 0, 0
		if last, err = h.surface.Snapshot(ctx); err != nil {
			return fmt.Errorf("failed to read scroll geometry: %w", err)
		}
		if lastCount, err = h.surface.MediaCount(ctx); err != nil {
			return fmt.Errorf("failed to count media: %w", err)
		}
		if err := h.delayer.Delay(ctx, h.opts.PostPageDelay); err != nil {
			return err
		}
	}
	return nil
}

// collect records every rendered element whose URL has not been seen yet
func (p *pass) collect(ctx context.Context) error {
	nodes, err := p.h.surface.VisibleMedia(ctx)
	if err != nil {
		return fmt.Errorf("failed to read rendered media: %w", err)
	}

	for _, node := range nodes {
		if node.URL == "" {
			continue
		}
		if _, dup := p.seen[node.URL]; dup {
			continue
		}
		p.seen[node.URL] = struct{}{}

		key, err := p.h.resolver.ContainerKey(ctx, node)
		if err != nil || key == "" {
			p.h.logger.WithError(err).DebugWithFields("Container lookup failed", map[string]interface{}{"url": node.URL})
			key = "url:" + node.URL
		}

		kind := node.Kind
		if kind != models.KindVideo {
			kind = models.KindImage
		}
		poster := ""
		if kind == models.KindVideo {
			poster = node.PosterURL
		}
		p.records = append(p.records, models.HarvestedRecord{
			URL:          node.URL,
			Kind:         kind,
			PosterURL:    poster,
			ContainerKey: key,
		})
	}
	return nil
}

// GroupRecords numbers distinct container keys 1..N in first-seen order and
// groups records under them, keeping each group's records in input order.
func GroupRecords(records []models.HarvestedRecord) []models.MediaGroup {
	index := make(map[string]int)
	var groups []models.MediaGroup

	for _, rec := range records {
		i, ok := index[rec.ContainerKey]
		if !ok {
			i = len(groups)
			index[rec.ContainerKey] = i
			groups = append(groups, models.MediaGroup{GroupID: i + 1})
		}
		groups[i].Records = append(groups[i].Records, rec)
	}
	return groups
}

func sizeDistribution(groups []models.MediaGroup) string {
	counts := make(map[int]int)
	for _, g := range groups {
		counts[len(g.Records)]++
	}
	sizes := make([]int, 0, len(counts))
	for size := range counts {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)

	parts := make([]string, 0, len(sizes))
	for _, size := range sizes {
		parts = append(parts, fmt.Sprintf("%d groups with %d items", counts[size], size))
	}
	return strings.Join(parts, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
