// Package daemon provides a client for the repostore daemon (repostored).
// It implements a transparent fallback pattern: if the daemon is running, use
// its HTTP API; if not, scan and answer from an in-process store.
package daemon

import (
	"context"

	"github.com/grovetools/repostore/pkg/actions"
	"github.com/grovetools/repostore/pkg/models"
)

// Client defines the interface for interacting with the repostore daemon.
// Both RemoteClient and LocalClient implement this interface.
type Client interface {
	// State returns the serialisable store state.
	State(ctx context.Context) (*State, error)

	// Dispatch sends an action to the store.
	Dispatch(ctx context.Context, a actions.Action) error

	// Reset empties every collection.
	Reset(ctx context.Context) error

	// Stream subscribes to change notifications. The channel is closed when
	// ctx is cancelled or the connection is lost.
	Stream(ctx context.Context) (<-chan Change, error)

	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}

// Change is a store change notification.
type Change struct {
	Seq  uint64       `json:"seq"`
	Kind actions.Kind `json:"kind"`
}

// Collection is a keyed collection as serialised by the store.
type Collection[V any] struct {
	Content map[string]V `json:"content"`
}

// RefCollection is a branch or tag collection with its parallel error map.
type RefCollection[T any] struct {
	Content map[string][]T              `json:"content"`
	Errors  map[string]*models.APIError `json:"errors"`
}

// RepoCollection holds repository objects, list results and cloning flags.
type RepoCollection struct {
	Content     map[string]*models.Repo     `json:"content"`
	ListContent map[string]*models.RepoList `json:"listContent"`
	Cloning     map[string]bool             `json:"cloning"`
}

// State mirrors the daemon's /api/state document. Keys are "repo@" or
// "repo@rev" as produced by the store.
type State struct {
	Repos        RepoCollection                 `json:"repos"`
	ResolvedRevs Collection[string]             `json:"resolvedRevs"`
	Resolutions  Collection[*models.Resolution] `json:"resolutions"`
	Branches     RefCollection[*models.Branch]  `json:"branches"`
	Tags         RefCollection[*models.Tag]     `json:"tags"`
	Inventory    Collection[*models.Inventory]  `json:"inventory"`
}
