// Package collector provides background workers that read local repositories
// and emit actions describing them.
package collector

import (
	"context"

	"github.com/grovetools/repostore/pkg/actions"
)

// Collector is a background worker that fetches data and emits actions.
type Collector interface {
	// Name returns the collector's name for logging.
	Name() string

	// Run starts the collector. It should block until context is canceled.
	// It emits actions via the out channel.
	Run(ctx context.Context, out chan<- actions.Action) error
}

// emit sends a on out unless ctx is done first.
func emit(ctx context.Context, out chan<- actions.Action, a actions.Action) bool {
	select {
	case out <- a:
		return true
	case <-ctx.Done():
		return false
	}
}
