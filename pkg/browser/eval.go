package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// evaluator runs page scripts bound to a caller context and a per-call
// timeout. Scripts use rod's arrow-function form.
type evaluator struct {
	page    *rod.Page
	timeout time.Duration
}

func (e evaluator) run(ctx context.Context, js string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := e.page.Context(ctx)
	if e.timeout > 0 {
		p = p.Timeout(e.timeout)
		defer p.CancelTimeout()
	}
	res, err := p.Eval(js, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("page script failed: %w", err)
	}
	return res, nil
}

func (e evaluator) boolean(ctx context.Context, js string, args ...interface{}) (bool, error) {
	res, err := e.run(ctx, js, args...)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (e evaluator) integer(ctx context.Context, js string, args ...interface{}) (int, error) {
	res, err := e.run(ctx, js, args...)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (e evaluator) decode(ctx context.Context, v interface{}, js string, args ...interface{}) error {
	res, err := e.run(ctx, js, args...)
	if err != nil {
		return err
	}
	if err := res.Value.Unmarshal(v); err != nil {
		return fmt.Errorf("failed to decode script result: %w", err)
	}
	return nil
}

// scrollContainerJS resolves the gallery's scroll container: the first div
// with overflow scroll and at least 100px of hidden content. It is cached on
// window so later scripts address the same element.
const scrollContainerJS = `
const grokfavContainer = () => {
  const cached = window.__grokfavScroll;
  if (cached && cached.isConnected) return cached;
  const found = Array.from(document.querySelectorAll('div')).find((el) => {
    const style = getComputedStyle(el);
    const overflow = style.overflowY === 'scroll' || style.overflow === 'scroll';
    return overflow && el.scrollHeight > el.clientHeight + 100;
  }) || null;
  window.__grokfavScroll = found;
  return found;
};
const grokfavStep = (container, floor, ratio) => {
  if (!container) return false;
  const step = Math.max(floor, Math.floor((window.innerHeight || 900) * ratio));
  const oldTop = container.scrollTop || 0;
  const newTop = Math.min(oldTop + step, container.scrollHeight - container.clientHeight);
  container.scrollTop = newTop;
  return newTop !== oldTop;
};
`

// withContainer wraps body in an arrow function that has the container
// helpers in scope.
func withContainer(params, body string) string {
	return "(" + params + ") => {" + scrollContainerJS + body + "}"
}
