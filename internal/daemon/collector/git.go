package collector

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/grovetools/repostore/errors"
	"github.com/grovetools/repostore/pkg/actions"
	"github.com/grovetools/repostore/pkg/models"
	"github.com/moby/patternmatcher"
	"github.com/sirupsen/logrus"
)

// GitOptions configures a GitCollector.
type GitOptions struct {
	// Roots are directories searched for git repositories.
	Roots []string
	// Exclude holds .dockerignore-style patterns, relative to each root, for
	// directories that are never searched.
	Exclude []string
	// Revs are resolved in every repository. Defaults to HEAD.
	Revs []string
	// Interval between scans. Defaults to 30 seconds.
	Interval time.Duration
}

// GitCollector reads local git repositories and emits the actions a backend
// would produce for them.
type GitCollector struct {
	roots    []string
	exclude  *patternmatcher.PatternMatcher
	revs     []string
	interval time.Duration
	logger   *logrus.Entry
}

// NewGitCollector creates a new GitCollector.
func NewGitCollector(opts GitOptions, logger *logrus.Entry) (*GitCollector, error) {
	pm, err := patternmatcher.New(opts.Exclude)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid collector exclude pattern")
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if len(opts.Revs) == 0 {
		opts.Revs = []string{"HEAD"}
	}
	return &GitCollector{
		roots:    opts.Roots,
		exclude:  pm,
		revs:     opts.Revs,
		interval: opts.Interval,
		logger:   logger,
	}, nil
}

// Name returns the collector's name.
func (c *GitCollector) Name() string { return "git" }

// Run scans immediately and then on every tick until ctx is canceled.
func (c *GitCollector) Run(ctx context.Context, out chan<- actions.Action) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Scan(ctx, out)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Scan(ctx, out)
		}
	}
}

// Scan emits actions for every repository found under the configured roots.
func (c *GitCollector) Scan(ctx context.Context, out chan<- actions.Action) {
	start := time.Now()
	found := 0
	for _, root := range c.roots {
		for _, dir := range c.discover(root) {
			if ctx.Err() != nil {
				return
			}
			found++
			c.scanRepo(ctx, out, repoURI(root, dir), dir)
		}
	}
	c.logger.WithFields(logrus.Fields{
		"repos":    found,
		"duration": time.Since(start),
	}).Debug("Git scan complete")
}

// discover returns the working directories of repositories under root.
// Repositories nested inside another repository are not descended into.
func (c *GitCollector) discover(root string) []string {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			c.logger.WithError(err).WithField("path", path).Debug("Skipping unreadable path")
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return fs.SkipDir
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr == nil && rel != "." {
			excluded, matchErr := c.exclude.MatchesOrParentMatches(filepath.ToSlash(rel))
			if matchErr == nil && excluded {
				return fs.SkipDir
			}
		}

		if _, statErr := os.Stat(filepath.Join(path, ".git")); statErr == nil {
			dirs = append(dirs, path)
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("root", root).Warn("Failed to walk collector root")
	}
	return dirs
}

func (c *GitCollector) scanRepo(ctx context.Context, out chan<- actions.Action, uri, dir string) {
	logger := c.logger.WithField("repo", uri)

	if !emit(ctx, out, actions.RepoCloning{Repo: uri, IsCloning: false}) {
		return
	}

	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		openErr := errors.RepoOpenFailed(dir, err)
		logger.WithError(openErr).Warn("Failed to open repository")
		emit(ctx, out, actions.FetchedRepo{Repo: uri, RepoObj: &models.Repo{URI: uri, Error: openErr.Error()}})
		return
	}

	repoObj := &models.Repo{URI: uri}
	if remote, err := repo.Remote("origin"); err == nil && len(remote.Config().URLs) > 0 {
		repoObj.HTTPCloneURL = remote.Config().URLs[0]
	}
	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		repoObj.DefaultBranch = head.Name().Short()
	}

	var inventories []*models.Inventory
	resolved := make([]actions.Action, 0, len(c.revs)*3)
	seen := make(map[plumbing.Hash]*models.Inventory)
	for _, rev := range c.revs {
		hash, err := repo.ResolveRevision(plumbing.Revision(rev))
		if err != nil {
			logger.WithError(err).WithField("rev", rev).Debug("Failed to resolve revision")
			continue
		}
		commit, err := repo.CommitObject(*hash)
		if err != nil {
			logger.WithError(err).WithField("rev", rev).Debug("Failed to read commit")
			continue
		}
		resolved = append(resolved,
			actions.ResolvedRev{Repo: uri, Rev: rev, CommitID: hash.String()},
			actions.FetchedCommit{Repo: uri, Rev: rev, Commit: convertCommit(commit)},
		)

		inv, ok := seen[*hash]
		if !ok {
			inv, err = inventory(commit)
			if err != nil {
				logger.WithError(err).WithField("rev", rev).Debug("Failed to build inventory")
				continue
			}
			seen[*hash] = inv
			inventories = append(inventories, inv)
		}
		resolved = append(resolved, actions.FetchedInventory{Repo: uri, CommitID: hash.String(), Inventory: inv})
	}
	if len(inventories) > 0 && len(inventories[0].Languages) > 0 {
		repoObj.Language = inventories[0].Languages[0].Name
	}

	batch := []actions.Action{
		actions.FetchedRepo{Repo: uri, RepoObj: repoObj},
		actions.RepoResolved{Repo: uri, Resolution: &models.Resolution{Result: &models.ResolutionResult{Repo: uri}}},
	}
	batch = append(batch, resolved...)

	branches, err := listBranches(repo)
	batch = append(batch, actions.FetchedBranches{Repo: uri, Branches: branches, Err: models.NewAPIError(err)})

	tags, err := listTags(repo)
	batch = append(batch, actions.FetchedTags{Repo: uri, Tags: tags, Err: models.NewAPIError(err)})

	for _, a := range batch {
		if !emit(ctx, out, a) {
			return
		}
	}
}

func listBranches(repo *gogit.Repository) ([]*models.Branch, error) {
	iter, err := repo.Branches()
	if err != nil {
		return nil, err
	}
	var branches []*models.Branch
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		branches = append(branches, &models.Branch{
			Name: ref.Name().Short(),
			Head: ref.Hash().String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

func listTags(repo *gogit.Repository) ([]*models.Tag, error) {
	iter, err := repo.Tags()
	if err != nil {
		return nil, err
	}
	var tags []*models.Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		commitID := ref.Hash().String()
		// Annotated tags point at a tag object rather than the commit
		if tagObj, err := repo.TagObject(ref.Hash()); err == nil {
			if commit, err := tagObj.Commit(); err == nil {
				commitID = commit.Hash.String()
			}
		}
		tags = append(tags, &models.Tag{Name: ref.Name().Short(), CommitID: commitID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func convertCommit(c *object.Commit) *models.Commit {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	out := &models.Commit{
		ID:      c.Hash.String(),
		Author:  models.Signature{Name: c.Author.Name, Email: c.Author.Email, Date: c.Author.When},
		Message: c.Message,
		Parents: parents,
	}
	if c.Committer.Email != c.Author.Email || !c.Committer.When.Equal(c.Author.When) {
		out.Committer = &models.Signature{Name: c.Committer.Name, Email: c.Committer.Email, Date: c.Committer.When}
	}
	return out
}

// repoURI names a repository by its path below the collector root.
func repoURI(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return filepath.ToSlash(filepath.Base(dir))
	}
	return strings.TrimSuffix(filepath.ToSlash(rel), ".git")
}
