package browser

import (
	"context"
	"fmt"
	"time"

	"grokfav/pkg/config"
	"grokfav/pkg/logger"
	"grokfav/pkg/models"
	"grokfav/pkg/retry"
)

// Unfavoriter clicks the remove control of gallery cards by page position.
// Positions are 1-based in document order of the collected controls.
type Unfavoriter struct {
	eval          evaluator
	removeControl string
	cfg           config.ReversalConfig
	logger        logger.Logger

	// Sleep is replaced in tests
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewUnfavoriter creates an unfavoriter on a live tab
func NewUnfavoriter(eval evaluator, removeControl string, cfg config.ReversalConfig, log logger.Logger) *Unfavoriter {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.MaxScrollAttempts <= 0 {
		cfg.MaxScrollAttempts = 100
	}
	if cfg.ScrollStepRatio <= 0 {
		cfg.ScrollStepRatio = 0.85
	}
	return &Unfavoriter{
		eval:          eval,
		removeControl: removeControl,
		cfg:           cfg,
		logger:        log.WithField("component", "unfavoriter"),
		Sleep:         retry.Wait,
	}
}

const resetRemoveJS = `() => {
  window.__grokfavRemove = [];
  window.__grokfavRemoveSeen = new Set();
  return true;
}`

// collectRemoveJS appends newly rendered controls; detached ones stay in the
// list so positions remain stable across virtualization.
const collectRemoveJS = `(sel) => {
  const list = window.__grokfavRemove || (window.__grokfavRemove = []);
  const seen = window.__grokfavRemoveSeen || (window.__grokfavRemoveSeen = new Set());
  document.querySelectorAll(sel).forEach((btn) => {
    if (!seen.has(btn)) {
      seen.add(btn);
      list.push(btn);
    }
  });
  return list.length;
}`

const focusRemoveJS = `(i) => {
  const btn = (window.__grokfavRemove || [])[i];
  if (!btn) return false;
  btn.scrollIntoView({ block: 'center', behavior: 'instant' });
  return true;
}`

const clickRemoveJS = `(i) => {
  const btn = (window.__grokfavRemove || [])[i];
  if (!btn) return false;
  btn.click();
  return true;
}`

// Remove unfavorites the cards at positions. A position outside the
// collected range is reported and counted as failed; the pass continues.
func (u *Unfavoriter) Remove(ctx context.Context, positions []int) (models.ReversalReport, error) {
	report := models.ReversalReport{}
	report.Logs = append(report.Logs, fmt.Sprintf("Finding buttons for positions: %s", models.FormatPositions(positions)))

	found, err := u.eval.boolean(ctx, withContainer("", `
  window.__grokfavScroll = null;
  const c = grokfavContainer();
  if (c) c.scrollTop = 0;
  return c !== null;
`))
	if err != nil {
		return report, err
	}
	if !found {
		report.Failed = len(positions)
		report.Logs = append(report.Logs, "No scroll container found")
		return report, nil
	}
	if err := u.Sleep(ctx, 500*time.Millisecond); err != nil {
		return report, err
	}

	total, err := u.collect(ctx)
	if err != nil {
		return report, err
	}
	report.Logs = append(report.Logs, fmt.Sprintf("Collected %d total buttons", total))
	u.logger.DebugWithFields("Remove controls collected", map[string]interface{}{"count": total})

	for _, pos := range positions {
		idx := pos - 1
		if idx < 0 || idx >= total {
			report.Logs = append(report.Logs, fmt.Sprintf("✗ Position %d: out of range", pos))
			report.Failed++
			continue
		}

		ok, err := u.eval.boolean(ctx, focusRemoveJS, idx)
		if err != nil {
			return report, err
		}
		if err := u.Sleep(ctx, u.cfg.FocusDelay); err != nil {
			return report, err
		}
		if ok {
			ok, err = u.eval.boolean(ctx, clickRemoveJS, idx)
			if err != nil {
				return report, err
			}
		}
		if !ok {
			report.Logs = append(report.Logs, fmt.Sprintf("✗ Position %d: control missing", pos))
			report.Failed++
			continue
		}

		report.Logs = append(report.Logs, fmt.Sprintf("✓ Clicked position %d", pos))
		report.Succeeded++
		if err := u.Sleep(ctx, u.cfg.ClickDelay); err != nil {
			return report, err
		}
	}

	u.logger.InfoWithFields("Unfavorite pass finished", map[string]interface{}{
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	})
	return report, nil
}

// collect scrolls the gallery from the top, gathering every remove control
// until the container stops moving or the attempt budget runs out.
func (u *Unfavoriter) collect(ctx context.Context) (int, error) {
	if _, err := u.eval.run(ctx, resetRemoveJS); err != nil {
		return 0, err
	}

	total := 0
	for attempt := 0; attempt < u.cfg.MaxScrollAttempts; attempt++ {
		n, err := u.eval.integer(ctx, collectRemoveJS, u.removeControl)
		if err != nil {
			return total, err
		}
		total = n

		moved, err := u.eval.boolean(ctx, withContainer("floor, ratio", `
  return grokfavStep(grokfavContainer(), floor, ratio);
`), 280, u.cfg.ScrollStepRatio)
		if err != nil {
			return total, err
		}
		if !moved {
			break
		}
		if err := u.Sleep(ctx, u.cfg.ScrollDelay); err != nil {
			return total, err
		}
	}
	return total, nil
}
