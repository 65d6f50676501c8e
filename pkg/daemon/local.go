package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/grovetools/repostore/internal/daemon/store"
	"github.com/grovetools/repostore/pkg/actions"
)

// Scanner produces actions on demand, such as a one-shot repository scan.
type Scanner interface {
	Scan(ctx context.Context, out chan<- actions.Action)
}

// LocalClient implements Client against an in-process store.
// This is used when the daemon is not running, providing the same API
// but executing all operations in-process.
type LocalClient struct {
	store   *store.Store
	scanner Scanner
}

// NewLocalClient creates a LocalClient over st. When scanner is non-nil,
// State refreshes the store from it before answering.
func NewLocalClient(st *store.Store, scanner Scanner) *LocalClient {
	return &LocalClient{store: st, scanner: scanner}
}

// Refresh runs the scanner once and applies every action it produces.
func (c *LocalClient) Refresh(ctx context.Context) {
	if c.scanner == nil {
		return
	}
	out := make(chan actions.Action, 64)
	go func() {
		defer close(out)
		c.scanner.Scan(ctx, out)
	}()
	for a := range out {
		c.store.Handle(a)
	}
}

// State refreshes the store and returns its serialisable view.
func (c *LocalClient) State(ctx context.Context) (*State, error) {
	c.Refresh(ctx)

	data, err := json.Marshal(c.store.ToJSON())
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &state, nil
}

// Dispatch applies a directly.
func (c *LocalClient) Dispatch(ctx context.Context, a actions.Action) error {
	c.store.Handle(a)
	return nil
}

// Reset empties the store.
func (c *LocalClient) Reset(ctx context.Context) error {
	c.store.Reset()
	return nil
}

// Stream relays the store's notifications until ctx is cancelled.
func (c *LocalClient) Stream(ctx context.Context) (<-chan Change, error) {
	sub := c.store.Subscribe()
	ch := make(chan Change, 10)
	go func() {
		defer close(ch)
		defer c.store.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-sub:
				if !ok {
					return
				}
				select {
				case ch <- Change{Seq: change.Seq, Kind: change.Kind}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// IsRunning always returns false for LocalClient.
func (c *LocalClient) IsRunning() bool {
	return false
}

// Close is a no-op for LocalClient.
func (c *LocalClient) Close() error {
	return nil
}

// Ensure LocalClient implements Client interface.
var _ Client = (*LocalClient)(nil)
