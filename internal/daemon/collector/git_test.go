package collector

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/grovetools/repostore/pkg/actions"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

// initRepo creates a repository with one commit containing files and returns
// the commit hash.
func initRepo(t *testing.T, dir string, files map[string]string) (*gogit.Repository, plumbing.Hash) {
	t.Helper()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		full := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
		_, err = wt.Add(name)
		require.NoError(t, err)
	}

	hash, err := wt.Commit("Initial commit", &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  time.Date(2016, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	})
	require.NoError(t, err)
	return repo, hash
}

func collect(t *testing.T, c *GitCollector) []actions.Action {
	t.Helper()
	out := make(chan actions.Action, 1000)
	c.Scan(context.Background(), out)
	close(out)

	var got []actions.Action
	for a := range out {
		got = append(got, a)
	}
	return got
}

func TestGitCollector_Scan(t *testing.T) {
	root := t.TempDir()
	repo, hash := initRepo(t, filepath.Join(root, "org", "project"), map[string]string{
		"main.go":   "package main\n\nfunc main() {}\n",
		"README.md": "# project\n",
		"data.bin":  "\x00\x01",
	})

	_, err := repo.CreateTag("v1.0.0", hash, nil)
	require.NoError(t, err)
	_, err = repo.CreateTag("v1.0.1", hash, &gogit.CreateTagOptions{
		Message: "release",
		Tagger:  &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	c, err := NewGitCollector(GitOptions{Roots: []string{root}}, testLogger())
	require.NoError(t, err)

	got := collect(t, c)
	byKind := make(map[actions.Kind][]actions.Action)
	for _, a := range got {
		byKind[a.Kind()] = append(byKind[a.Kind()], a)
	}

	require.Len(t, byKind[actions.KindFetchedRepo], 1)
	fetched := byKind[actions.KindFetchedRepo][0].(actions.FetchedRepo)
	assert.Equal(t, "org/project", fetched.Repo)
	assert.Equal(t, "org/project", fetched.RepoObj.URI)
	assert.Empty(t, fetched.RepoObj.Error)
	assert.Equal(t, "Go", fetched.RepoObj.Language)

	require.Len(t, byKind[actions.KindResolvedRev], 1)
	rev := byKind[actions.KindResolvedRev][0].(actions.ResolvedRev)
	assert.Equal(t, "HEAD", rev.Rev)
	assert.Equal(t, hash.String(), rev.CommitID)

	require.Len(t, byKind[actions.KindFetchedCommit], 1)
	commit := byKind[actions.KindFetchedCommit][0].(actions.FetchedCommit)
	assert.Equal(t, hash.String(), commit.Commit.ID)
	assert.Equal(t, "Test User", commit.Commit.Author.Name)
	assert.Empty(t, commit.Commit.Parents)

	require.Len(t, byKind[actions.KindFetchedInventory], 1)
	inv := byKind[actions.KindFetchedInventory][0].(actions.FetchedInventory)
	assert.Equal(t, hash.String(), inv.CommitID)
	require.Len(t, inv.Inventory.Languages, 2)
	assert.Equal(t, "Go", inv.Inventory.Languages[0].Name)
	assert.Equal(t, "Markdown", inv.Inventory.Languages[1].Name)

	require.Len(t, byKind[actions.KindFetchedBranches], 1)
	branches := byKind[actions.KindFetchedBranches][0].(actions.FetchedBranches)
	assert.Nil(t, branches.Err)
	require.Len(t, branches.Branches, 1)
	assert.Equal(t, hash.String(), branches.Branches[0].Head)

	require.Len(t, byKind[actions.KindFetchedTags], 1)
	tags := byKind[actions.KindFetchedTags][0].(actions.FetchedTags)
	assert.Nil(t, tags.Err)
	require.Len(t, tags.Tags, 2)
	assert.Equal(t, "v1.0.0", tags.Tags[0].Name)
	assert.Equal(t, hash.String(), tags.Tags[0].CommitID)
	assert.Equal(t, "v1.0.1", tags.Tags[1].Name)
	assert.Equal(t, hash.String(), tags.Tags[1].CommitID, "annotated tags resolve to their commit")

	assert.Equal(t, actions.KindRepoCloning, got[0].Kind())
}

func TestGitCollector_Exclude(t *testing.T) {
	root := t.TempDir()
	initRepo(t, filepath.Join(root, "keep"), map[string]string{"a.go": "package a\n"})
	initRepo(t, filepath.Join(root, "vendor", "dep"), map[string]string{"b.go": "package b\n"})

	c, err := NewGitCollector(GitOptions{Roots: []string{root}, Exclude: []string{"vendor"}}, testLogger())
	require.NoError(t, err)

	var repos []string
	for _, a := range collect(t, c) {
		if f, ok := a.(actions.FetchedRepo); ok {
			repos = append(repos, f.Repo)
		}
	}
	assert.Equal(t, []string{"keep"}, repos)
}

func TestGitCollector_UnresolvableRev(t *testing.T) {
	root := t.TempDir()
	initRepo(t, filepath.Join(root, "r"), map[string]string{"a.go": "package a\n"})

	c, err := NewGitCollector(GitOptions{Roots: []string{root}, Revs: []string{"HEAD", "does-not-exist"}}, testLogger())
	require.NoError(t, err)

	var revs []string
	for _, a := range collect(t, c) {
		if r, ok := a.(actions.ResolvedRev); ok {
			revs = append(revs, r.Rev)
		}
	}
	assert.Equal(t, []string{"HEAD"}, revs)
}

func TestNewGitCollector_InvalidPattern(t *testing.T) {
	_, err := NewGitCollector(GitOptions{Exclude: []string{"["}}, testLogger())
	assert.Error(t, err)
}

func TestRepoURI(t *testing.T) {
	assert.Equal(t, "a/b", repoURI("/src", "/src/a/b"))
	assert.Equal(t, "mirror", repoURI("/src", "/src/mirror.git"))
	assert.Equal(t, "src", repoURI("/src", "/src"))
}
