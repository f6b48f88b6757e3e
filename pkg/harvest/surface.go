package harvest

import (
	"context"

	"grokfav/pkg/config"
	"grokfav/pkg/models"
	"grokfav/pkg/retry"
)

// MediaNode is one rendered media element. Handle lets the surface and the
// container resolver refer back to the element; it is opaque to the
// harvester.
type MediaNode struct {
	URL       string
	Kind      models.Kind
	PosterURL string
	Handle    string
}

// Snapshot is the scroll geometry of the gallery container
type Snapshot struct {
	Height float64
	Top    float64
}

// Surface is the live gallery page as the harvester sees it
type Surface interface {
	// Location returns the current page URL
	Location(ctx context.Context) (string, error)
	HasMedia(ctx context.Context) (bool, error)
	HasGallery(ctx context.Context) (bool, error)
	// FindScrollContainer locates the scrollable gallery element
	FindScrollContainer(ctx context.Context) (bool, error)
	ScrollToTop(ctx context.Context) error
	// ScrollStep advances by max(floor, viewport height * ratio)
	ScrollStep(ctx context.Context, floor int, ratio float64) error
	Snapshot(ctx context.Context) (Snapshot, error)
	MediaCount(ctx context.Context) (int, error)
	VisibleMedia(ctx context.Context) ([]MediaNode, error)
	// AdvancePage activates a next-page control, reporting the strategy
	// that found it.
	AdvancePage(ctx context.Context) (strategy string, advanced bool, err error)
}

// ContainerResolver maps a media element to the card it belongs to. Keys are
// only comparable within one harvest.
type ContainerResolver interface {
	ContainerKey(ctx context.Context, node MediaNode) (string, error)
}

// ContainerResolverFunc adapts a function to ContainerResolver
type ContainerResolverFunc func(ctx context.Context, node MediaNode) (string, error)

// ContainerKey implements ContainerResolver
func (f ContainerResolverFunc) ContainerKey(ctx context.Context, node MediaNode) (string, error) {
	return f(ctx, node)
}

// Delayer performs the harvester's randomized waits
type Delayer interface {
	Delay(ctx context.Context, bound config.Jitter) error
}

// RandomDelayer waits a uniformly random duration within each bound
type RandomDelayer struct{}

// Delay implements Delayer
func (RandomDelayer) Delay(ctx context.Context, bound config.Jitter) error {
	return retry.Between(ctx, bound.Min, bound.Max)
}

// NoDelay returns immediately unless ctx is done
type NoDelay struct{}

// Delay implements Delayer
func (NoDelay) Delay(ctx context.Context, _ config.Jitter) error {
	return ctx.Err()
}
