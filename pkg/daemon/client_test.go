package daemon

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/repostore/errors"
	"github.com/grovetools/repostore/internal/daemon/server"
	"github.com/grovetools/repostore/internal/daemon/store"
	"github.com/grovetools/repostore/pkg/actions"
	"github.com/grovetools/repostore/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeDispatcher struct {
	store *store.Store
	err   error
}

func (d *storeDispatcher) Dispatch(_ context.Context, a actions.Action) error {
	if d.err != nil {
		return d.err
	}
	d.store.Handle(a)
	return nil
}

func (d *storeDispatcher) Reset(context.Context) error {
	if d.err != nil {
		return d.err
	}
	d.store.Reset()
	return nil
}

func newServer(t *testing.T) (*server.Server, *store.Store, *storeDispatcher) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	st := store.New()
	d := &storeDispatcher{store: st}
	return server.New(logger.WithField("component", "server"), st, d), st, d
}

func newHTTPClient(t *testing.T) (*RemoteClient, *store.Store, *storeDispatcher) {
	t.Helper()
	srv, st, d := newServer(t)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := NewRemoteClient(ts.URL)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, st, d
}

func TestRemoteClient_DispatchAndState(t *testing.T) {
	c, _, _ := newHTTPClient(t)
	ctx := context.Background()

	assert.True(t, c.IsRunning())

	require.NoError(t, c.Dispatch(ctx, actions.RepoCreated{Repo: "r", RepoObj: &models.Repo{URI: "r"}}))
	require.NoError(t, c.Dispatch(ctx, actions.ResolvedRev{Repo: "r", Rev: "main", CommitID: "c1"}))
	require.NoError(t, c.Dispatch(ctx, actions.FetchedBranches{
		Repo: "r",
		Err:  &models.APIError{Status: 500, Message: "boom"},
	}))

	state, err := c.State(ctx)
	require.NoError(t, err)
	require.Contains(t, state.Repos.Content, "r@")
	assert.Equal(t, "r", state.Repos.Content["r@"].URI)
	assert.Equal(t, "c1", state.ResolvedRevs.Content["r@main"])
	require.NotNil(t, state.Resolutions.Content["r@"])
	assert.Equal(t, "r", state.Resolutions.Content["r@"].Result.Repo)
	require.NotNil(t, state.Branches.Errors["r@"])
	assert.Equal(t, "boom", state.Branches.Errors["r@"].Message)

	require.NoError(t, c.Reset(ctx))
	state, err = c.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Repos.Content)
}

func TestRemoteClient_Config(t *testing.T) {
	srv, _, _ := newServer(t)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	c, err := NewRemoteClient(ts.URL)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Config(context.Background())
	require.Error(t, err)

	srv.SetRunningConfig(&server.RunningConfig{QueueSize: 7, CollectorRoots: []string{"/src"}})
	cfg, err := c.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.QueueSize)
	assert.Equal(t, []string{"/src"}, cfg.CollectorRoots)
}

func TestRemoteClient_DispatchError(t *testing.T) {
	c, _, d := newHTTPClient(t)
	d.err = errors.DispatchFailed("RepoCloning", context.Canceled)

	err := c.Dispatch(context.Background(), actions.RepoCloning{Repo: "r"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDispatchFailed))
}

func TestRemoteClient_Stream(t *testing.T) {
	c, st, _ := newHTTPClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.Stream(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return st.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	st.Handle(actions.FetchedTags{Repo: "r"})

	select {
	case change := <-ch:
		assert.Equal(t, actions.KindFetchedTags, change.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no change received")
	}
}

func TestRemoteClient_Watch(t *testing.T) {
	c, st, _ := newHTTPClient(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := c.Watch(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return st.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	st.Handle(actions.RepoCloning{Repo: "r", IsCloning: true})

	select {
	case change := <-ch:
		assert.Equal(t, actions.KindRepoCloning, change.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no change received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRemoteClient_UnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "rs")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	socket := filepath.Join(dir, "repostored.sock")

	srv, _, _ := newServer(t)
	go srv.ListenAndServe(socket)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	c, err := NewRemoteClient("unix://" + socket)
	require.NoError(t, err)
	defer c.Close()

	require.Eventually(t, c.IsRunning, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Dispatch(context.Background(), actions.RepoCloning{Repo: "r", IsCloning: true}))

	state, err := c.State(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Repos.Cloning["r@"])
}

func TestConnect_NotRunning(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")

	_, err := Connect(socket)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDaemonNotRunning))
}

func TestNew_FallsBackToLocal(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")
	local := NewLocalClient(store.New(), nil)

	c, err := New(socket, local)
	require.NoError(t, err)
	assert.Same(t, local, c)

	c, err = New(socket, nil)
	require.NoError(t, err)
	assert.IsType(t, &RemoteClient{}, c)
	assert.False(t, c.IsRunning())
}

func TestNewRemoteClient_Empty(t *testing.T) {
	_, err := NewRemoteClient("unix://")
	require.Error(t, err)
}

type fakeScanner struct{}

func (fakeScanner) Scan(ctx context.Context, out chan<- actions.Action) {
	out <- actions.FetchedRepo{Repo: "local", RepoObj: &models.Repo{URI: "local"}}
	out <- actions.FetchedTags{Repo: "local", Tags: []*models.Tag{{Name: "v1", CommitID: "c1"}}}
}

func TestLocalClient(t *testing.T) {
	st := store.New()
	c := NewLocalClient(st, fakeScanner{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.False(t, c.IsRunning())

	ch, err := c.Stream(ctx)
	require.NoError(t, err)

	state, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "local", state.Repos.Content["local@"].URI)
	require.Len(t, state.Tags.Content["local@"], 1)
	assert.Equal(t, "v1", state.Tags.Content["local@"][0].Name)

	first := <-ch
	assert.Equal(t, actions.KindFetchedRepo, first.Kind)
	assert.Equal(t, uint64(1), first.Seq)

	require.NoError(t, c.Dispatch(ctx, actions.RepoCloning{Repo: "x", IsCloning: true}))
	assert.True(t, st.Repos().IsCloning("x"))

	require.NoError(t, c.Reset(ctx))
	assert.Nil(t, st.Repos().Get("local"))
}
