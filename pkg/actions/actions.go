// Package actions defines the repository actions delivered to the store.
//
// RepoAction is a closed set: only the types in this file implement it, so a
// type switch over them in a handler covers every repository action. Actions
// from other domains travel through the same dispatcher as Foreign values and
// are ignored by the repository store.
package actions

import "github.com/grovetools/repostore/pkg/models"

// Kind names an action variant. It is also the "type" of the wire envelope.
type Kind string

const (
	KindReposFetched     Kind = "ReposFetched"
	KindResolvedRev      Kind = "ResolvedRev"
	KindFetchedCommit    Kind = "FetchedCommit"
	KindFetchedRepo      Kind = "FetchedRepo"
	KindFetchedInventory Kind = "FetchedInventory"
	KindRepoCloning      Kind = "RepoCloning"
	KindRepoResolved     Kind = "RepoResolved"
	KindRepoCreated      Kind = "RepoCreated"
	KindFetchedBranches  Kind = "FetchedBranches"
	KindFetchedTags      Kind = "FetchedTags"
)

// Action is anything that can be dispatched.
type Action interface {
	Kind() Kind
}

// RepoAction is an action understood by the repository store.
type RepoAction interface {
	Action
	repoAction()
}

// ReposFetched carries the result of a repository list query.
type ReposFetched struct {
	Querystring string           `json:"querystring"`
	Data        *models.RepoList `json:"data"`
}

// ResolvedRev maps a revision specifier to an absolute commit ID.
type ResolvedRev struct {
	Repo     string `json:"repo"`
	Rev      string `json:"rev"`
	CommitID string `json:"commitID"`
}

// FetchedCommit carries a commit looked up by revision.
type FetchedCommit struct {
	Repo   string         `json:"repo"`
	Rev    string         `json:"rev"`
	Commit *models.Commit `json:"commit"`
}

// FetchedRepo carries a repository object.
type FetchedRepo struct {
	Repo    string       `json:"repo"`
	RepoObj *models.Repo `json:"repoObj"`
}

// FetchedInventory carries the inventory of a tree at a commit.
type FetchedInventory struct {
	Repo      string            `json:"repo"`
	CommitID  string            `json:"commitID"`
	Inventory *models.Inventory `json:"inventory"`
}

// RepoCloning reports whether a repository is still being cloned.
type RepoCloning struct {
	Repo      string `json:"repo"`
	IsCloning bool   `json:"isCloning"`
}

// RepoResolved carries the resolution of a repository path.
type RepoResolved struct {
	Repo       string             `json:"repo"`
	Resolution *models.Resolution `json:"resolution"`
}

// RepoCreated carries a freshly created repository object.
type RepoCreated struct {
	Repo    string       `json:"repo"`
	RepoObj *models.Repo `json:"repoObj"`
}

// FetchedBranches carries a branch listing or the error that replaced it.
type FetchedBranches struct {
	Repo     string           `json:"repo"`
	Branches []*models.Branch `json:"branches"`
	Err      *models.APIError `json:"err"`
}

// FetchedTags carries a tag listing or the error that replaced it.
type FetchedTags struct {
	Repo string           `json:"repo"`
	Tags []*models.Tag    `json:"tags"`
	Err  *models.APIError `json:"err"`
}

// Foreign is an action of a kind this package does not define.
type Foreign struct {
	Type    Kind        `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

func (ReposFetched) Kind() Kind     { return KindReposFetched }
func (ResolvedRev) Kind() Kind      { return KindResolvedRev }
func (FetchedCommit) Kind() Kind    { return KindFetchedCommit }
func (FetchedRepo) Kind() Kind      { return KindFetchedRepo }
func (FetchedInventory) Kind() Kind { return KindFetchedInventory }
func (RepoCloning) Kind() Kind      { return KindRepoCloning }
func (RepoResolved) Kind() Kind     { return KindRepoResolved }
func (RepoCreated) Kind() Kind      { return KindRepoCreated }
func (FetchedBranches) Kind() Kind  { return KindFetchedBranches }
func (FetchedTags) Kind() Kind      { return KindFetchedTags }
func (f Foreign) Kind() Kind        { return f.Type }

func (ReposFetched) repoAction()     {}
func (ResolvedRev) repoAction()      {}
func (FetchedCommit) repoAction()    {}
func (FetchedRepo) repoAction()      {}
func (FetchedInventory) repoAction() {}
func (RepoCloning) repoAction()      {}
func (RepoResolved) repoAction()     {}
func (RepoCreated) repoAction()      {}
func (FetchedBranches) repoAction()  {}
func (FetchedTags) repoAction()      {}
