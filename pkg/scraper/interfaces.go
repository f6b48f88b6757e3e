package scraper

import (
	"context"

	"grokfav/pkg/harvest"
	"grokfav/pkg/models"
)

// ReversalExecutor unfavorites gallery cards by 1-based page position
type ReversalExecutor interface {
	Remove(ctx context.Context, positions []int) (models.ReversalReport, error)
}

// Page is an attached gallery page
type Page struct {
	Surface  harvest.Surface
	Resolver harvest.ContainerResolver
	Reverser ReversalExecutor
}
