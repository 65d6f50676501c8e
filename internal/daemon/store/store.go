package store

import (
	"sync"

	"github.com/grovetools/repostore/pkg/actions"
	"github.com/grovetools/repostore/pkg/models"
)

// Store is the in-memory repository state store for the daemon.
// Writes replace whole collections; readers on any goroutine see either the
// collections before an action or after it, never a partial merge.
type Store struct {
	mu          sync.RWMutex
	snap        Snapshot
	seq         uint64
	buffer      int
	subscribers map[chan Change]struct{}
}

// DefaultSubscriberBuffer is the capacity of a subscription channel.
const DefaultSubscriberBuffer = 100

// New creates a new Store instance with empty collections.
func New() *Store {
	s := &Store{
		buffer:      DefaultSubscriberBuffer,
		subscribers: make(map[chan Change]struct{}),
	}
	s.Reset()
	return s
}

// Reset replaces every collection with an empty one.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{
		Repos:        newRepos(),
		ResolvedRevs: &ResolvedRevs{newKeyed[string]()},
		Resolutions:  &Resolutions{newKeyed[*models.Resolution]()},
		Commits:      &Commits{newKeyed[*models.Commit]()},
		Inventory:    &Inventories{newKeyed[*models.Inventory]()},
		Branches:     &Branches{newRefs[*models.Branch]()},
		Tags:         &Tags{newRefs[*models.Tag]()},
	}
}

// Get returns the current snapshot.
func (s *Store) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// ToJSON returns the serialisable view of the current snapshot.
func (s *Store) ToJSON() State {
	snap := s.Get()
	return State{
		Repos:        snap.Repos,
		ResolvedRevs: snap.ResolvedRevs,
		Resolutions:  snap.Resolutions,
		Branches:     snap.Branches,
		Tags:         snap.Tags,
		Inventory:    snap.Inventory,
	}
}

func (s *Store) Repos() *Repos               { return s.Get().Repos }
func (s *Store) ResolvedRevs() *ResolvedRevs { return s.Get().ResolvedRevs }
func (s *Store) Resolutions() *Resolutions   { return s.Get().Resolutions }
func (s *Store) Commits() *Commits           { return s.Get().Commits }
func (s *Store) Inventory() *Inventories     { return s.Get().Inventory }
func (s *Store) Branches() *Branches         { return s.Get().Branches }
func (s *Store) Tags() *Tags                 { return s.Get().Tags }

// Name identifies the store as an action handler.
func (s *Store) Name() string { return "repos" }

// Handle merges a dispatched action into the store and notifies subscribers
// once. Actions that are not repository actions change nothing and notify no one.
func (s *Store) Handle(a actions.Action) {
	ra, ok := a.(actions.RepoAction)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := apply(s.snap, ra)
	if !ok {
		return
	}
	s.snap = next
	s.seq++
	s.broadcast(Change{Seq: s.seq, Kind: ra.Kind()})
}

// apply returns the snapshot that results from a. Only the collections a
// touches are replaced; the rest are carried over unchanged.
func apply(snap Snapshot, a actions.RepoAction) (Snapshot, bool) {
	switch a := a.(type) {
	case actions.ReposFetched:
		snap.Repos = snap.Repos.withList(a.Querystring, a.Data)

	case actions.ResolvedRev:
		snap.ResolvedRevs = &ResolvedRevs{snap.ResolvedRevs.with(Key(a.Repo, a.Rev), a.CommitID)}

	case actions.FetchedCommit:
		snap.Commits = &Commits{snap.Commits.with(Key(a.Repo, a.Rev), a.Commit)}

	case actions.FetchedRepo:
		snap.Repos = snap.Repos.withContent(a.Repo, a.RepoObj)

	case actions.FetchedInventory:
		snap.Inventory = &Inventories{snap.Inventory.with(Key(a.Repo, a.CommitID), a.Inventory)}

	case actions.RepoCloning:
		snap.Repos = snap.Repos.withCloning(a.Repo, a.IsCloning)

	case actions.RepoResolved:
		snap.Resolutions = &Resolutions{snap.Resolutions.with(Key(a.Repo, ""), a.Resolution)}

	case actions.RepoCreated:
		snap.Repos = snap.Repos.withContent(a.Repo, a.RepoObj)
		if !a.RepoObj.HasError() {
			// Keep the resolution consistent with the new repo without a refetch.
			uri := ""
			if a.RepoObj != nil {
				uri = a.RepoObj.URI
			}
			resolution := &models.Resolution{Result: &models.ResolutionResult{Repo: uri}}
			snap.Resolutions = &Resolutions{snap.Resolutions.with(Key(a.Repo, ""), resolution)}
		}

	case actions.FetchedBranches:
		snap.Branches = &Branches{snap.Branches.with(a.Repo, a.Branches, a.Err)}

	case actions.FetchedTags:
		snap.Tags = &Tags{snap.Tags.with(a.Repo, a.Tags, a.Err)}

	default:
		return snap, false
	}
	return snap, true
}

// Subscribe creates a new subscription channel for change notifications.
func (s *Store) Subscribe() chan Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Change, s.buffer)
	s.subscribers[ch] = struct{}{}
	return ch
}

// SetSubscriberBuffer sets the capacity of subscriptions opened after the
// call. Values below 1 restore the default.
func (s *Store) SetSubscriberBuffer(n int) {
	if n < 1 {
		n = DefaultSubscriberBuffer
	}
	s.mu.Lock()
	s.buffer = n
	s.mu.Unlock()
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; !ok {
		return
	}
	delete(s.subscribers, ch)
	close(ch)
}

// broadcast must be called with mu held.
func (s *Store) broadcast(c Change) {
	for ch := range s.subscribers {
		select {
		case ch <- c:
		default:
			// Non-blocking send so a slow reader cannot stall dispatch
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
