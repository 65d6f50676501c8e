// Package store provides the in-memory repository state store for the daemon.
package store

import (
	"encoding/json"

	"github.com/grovetools/repostore/pkg/actions"
	"github.com/grovetools/repostore/pkg/models"
)

// Key derives the lookup key for a repository and an optional revision or
// commit ID. An absent revision leaves the suffix empty.
func Key(repo, rev string) string {
	return repo + "@" + rev
}

// with returns a copy of m with key set to v. m itself is never modified.
func with[V any](m map[string]V, key string, v V) map[string]V {
	out := make(map[string]V, len(m)+1)
	for k, old := range m {
		out[k] = old
	}
	out[key] = v
	return out
}

// keyed is an immutable map from key to value.
type keyed[V any] struct {
	content map[string]V
}

func newKeyed[V any]() keyed[V] {
	return keyed[V]{content: map[string]V{}}
}

func (k keyed[V]) get(key string) V {
	return k.content[key]
}

func (k keyed[V]) with(key string, v V) keyed[V] {
	return keyed[V]{content: with(k.content, key, v)}
}

// Len returns the number of stored entries.
func (k keyed[V]) Len() int {
	return len(k.content)
}

func (k keyed[V]) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Content map[string]V `json:"content"`
	}{k.content})
}

// Repos holds repository objects, list query results and clone status.
type Repos struct {
	content     map[string]*models.Repo
	listContent map[string]*models.RepoList
	cloning     map[string]bool
}

func newRepos() *Repos {
	return &Repos{
		content:     map[string]*models.Repo{},
		listContent: map[string]*models.RepoList{},
		cloning:     map[string]bool{},
	}
}

// Get returns the repo object for repo, or nil.
func (r *Repos) Get(repo string) *models.Repo {
	return r.content[Key(repo, "")]
}

// List returns the cached result of a list query, or nil.
func (r *Repos) List(querystring string) *models.RepoList {
	return r.listContent[querystring]
}

// IsCloning reports whether repo was last seen cloning.
func (r *Repos) IsCloning(repo string) bool {
	return r.cloning[Key(repo, "")]
}

// Len returns the number of repo objects.
func (r *Repos) Len() int {
	return len(r.content)
}

func (r *Repos) withContent(repo string, obj *models.Repo) *Repos {
	next := *r
	next.content = with(r.content, Key(repo, ""), obj)
	return &next
}

func (r *Repos) withList(querystring string, data *models.RepoList) *Repos {
	next := *r
	next.listContent = with(r.listContent, querystring, data)
	return &next
}

func (r *Repos) withCloning(repo string, cloning bool) *Repos {
	next := *r
	next.cloning = with(r.cloning, Key(repo, ""), cloning)
	return &next
}

func (r *Repos) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Content     map[string]*models.Repo     `json:"content"`
		ListContent map[string]*models.RepoList `json:"listContent"`
		Cloning     map[string]bool             `json:"cloning"`
	}{r.content, r.listContent, r.cloning})
}

// ResolvedRevs maps repo@rev to absolute commit IDs.
type ResolvedRevs struct{ keyed[string] }

// Get returns the commit ID rev resolved to, or "".
func (c *ResolvedRevs) Get(repo, rev string) string {
	return c.get(Key(repo, rev))
}

// Resolutions maps repositories to their resolution results.
type Resolutions struct{ keyed[*models.Resolution] }

// Get returns the resolution for repo, or nil.
func (c *Resolutions) Get(repo string) *models.Resolution {
	return c.get(Key(repo, ""))
}

// Commits maps repo@rev to commit objects.
type Commits struct{ keyed[*models.Commit] }

// Get returns the commit fetched for rev, or nil.
func (c *Commits) Get(repo, rev string) *models.Commit {
	return c.get(Key(repo, rev))
}

// Inventories maps repo@commitID to tree inventories.
type Inventories struct{ keyed[*models.Inventory] }

// Get returns the inventory at commitID, or nil.
func (c *Inventories) Get(repo, commitID string) *models.Inventory {
	return c.get(Key(repo, commitID))
}

// refs holds a per-repo listing next to the error from the fetch that produced it.
type refs[T any] struct {
	content map[string][]T
	errors  map[string]*models.APIError
}

func newRefs[T any]() refs[T] {
	return refs[T]{
		content: map[string][]T{},
		errors:  map[string]*models.APIError{},
	}
}

// List returns the listing for repo, or nil. Callers must not modify it.
func (r refs[T]) List(repo string) []T {
	return r.content[Key(repo, "")]
}

// Error returns the error recorded with the last listing for repo, or nil.
func (r refs[T]) Error(repo string) *models.APIError {
	return r.errors[Key(repo, "")]
}

// Both fields are always written: a later fetch replaces an earlier error
// even when it carries none, and vice versa.
func (r refs[T]) with(repo string, list []T, err *models.APIError) refs[T] {
	key := Key(repo, "")
	return refs[T]{
		content: with(r.content, key, list),
		errors:  with(r.errors, key, err),
	}
}

func (r refs[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Content map[string][]T              `json:"content"`
		Errors  map[string]*models.APIError `json:"errors"`
	}{r.content, r.errors})
}

// Branches maps repositories to branch listings.
type Branches struct{ refs[*models.Branch] }

// Tags maps repositories to tag listings.
type Tags struct{ refs[*models.Tag] }

// Snapshot is the set of collections at one instant. Every collection in it is
// immutable; a later dispatch replaces collections rather than changing them.
type Snapshot struct {
	Repos        *Repos
	ResolvedRevs *ResolvedRevs
	Resolutions  *Resolutions
	Commits      *Commits
	Inventory    *Inventories
	Branches     *Branches
	Tags         *Tags
}

// State is the serialisable view of the store. Commits are looked up
// individually and are not part of it.
type State struct {
	Repos        *Repos        `json:"repos"`
	ResolvedRevs *ResolvedRevs `json:"resolvedRevs"`
	Resolutions  *Resolutions  `json:"resolutions"`
	Branches     *Branches     `json:"branches"`
	Tags         *Tags         `json:"tags"`
	Inventory    *Inventories  `json:"inventory"`
}

// Change is sent to subscribers after each recognised action. It carries no
// state; subscribers re-read through the accessors.
type Change struct {
	Seq  uint64       `json:"seq"`
	Kind actions.Kind `json:"kind"`
}
