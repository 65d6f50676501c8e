// Package models defines the repository data carried by actions and held in the store.
package models

import "time"

// Repo describes a repository as returned by the backend.
// A non-empty Error marks a repo object that failed to be created or fetched.
type Repo struct {
	URI           string     `json:"URI"`
	Description   string     `json:"Description,omitempty"`
	DefaultBranch string     `json:"DefaultBranch,omitempty"`
	HTTPCloneURL  string     `json:"HTTPCloneURL,omitempty"`
	Language      string     `json:"Language,omitempty"`
	Private       bool       `json:"Private,omitempty"`
	Fork          bool       `json:"Fork,omitempty"`
	Mirror        bool       `json:"Mirror,omitempty"`
	CreatedAt     *time.Time `json:"CreatedAt,omitempty"`
	UpdatedAt     *time.Time `json:"UpdatedAt,omitempty"`
	Error         string     `json:"Error,omitempty"`
}

// HasError reports whether the repo object carries an error marker.
func (r *Repo) HasError() bool {
	return r != nil && r.Error != ""
}

// RepoList is the result of a repository list query.
type RepoList struct {
	Repos []*Repo `json:"Repos"`
}

// Resolution is the outcome of resolving a repository path.
type Resolution struct {
	Result *ResolutionResult `json:"Result,omitempty"`
	Error  string            `json:"Error,omitempty"`
}

// ResolutionResult names either a local repo or a remote one that can be mirrored.
type ResolutionResult struct {
	Repo       string      `json:"Repo,omitempty"`
	RemoteRepo *RemoteRepo `json:"RemoteRepo,omitempty"`
}

// RemoteRepo is a repository known to a code host but not yet present locally.
type RemoteRepo struct {
	Owner       string `json:"Owner"`
	Name        string `json:"Name"`
	HTTPURL     string `json:"HTTPURL,omitempty"`
	Description string `json:"Description,omitempty"`
}
