package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grovetools/repostore/config"
	"github.com/grovetools/repostore/errors"
	"github.com/grovetools/repostore/internal/daemon/pidfile"
	"github.com/grovetools/repostore/internal/daemon/server"
	"github.com/grovetools/repostore/internal/daemon/store"
	"github.com/grovetools/repostore/logging"
	"github.com/grovetools/repostore/pkg/actions"
	"github.com/grovetools/repostore/pkg/daemon"
	"github.com/grovetools/repostore/pkg/paths"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every repostore path at a fresh short-lived directory.
func isolate(t *testing.T) string {
	t.Helper()
	home, err := os.MkdirTemp("", "rs")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(home) })
	t.Setenv("REPOSTORE_HOME", home)
	t.Setenv("REPOSTORE_LOG_LEVEL", "")
	chdir(t, home)
	logging.Apply(logging.Config{Format: logging.FormatConfig{StructuredToStderr: "never"}})
	return home
}

type storeDispatcher struct{ store *store.Store }

func (d storeDispatcher) Dispatch(_ context.Context, a actions.Action) error {
	d.store.Handle(a)
	return nil
}

func (d storeDispatcher) Reset(context.Context) error {
	d.store.Reset()
	return nil
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "cmd-test")
}

func newAPI(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	st := store.New()
	srv := server.New(testLogger(), st, storeDispatcher{st})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDispatchAndStateAgainstDaemon(t *testing.T) {
	isolate(t)
	ts, st := newAPI(t)

	out, err := run(t, "", "dispatch", "RepoCloning", `{"repo":"github.com/a/b","isCloning":true}`, "--endpoint", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Dispatched RepoCloning")
	assert.True(t, st.Repos().IsCloning("github.com/a/b"))

	_, err = run(t, `{"repo":"github.com/a/b","rev":"main","commitID":"c1"}`, "dispatch", "ResolvedRev", "-", "--endpoint", ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "c1", st.ResolvedRevs().Get("github.com/a/b", "main"))

	out, err = run(t, "", "state", "--json", "--endpoint", ts.URL)
	require.NoError(t, err)
	var state daemon.State
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, "c1", state.ResolvedRevs.Content["github.com/a/b@main"])

	out, err = run(t, "", "state", "--endpoint", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Source:             daemon")
	assert.Contains(t, out, "Resolved revisions: 1")
	assert.Contains(t, out, "Cloning:            1")

	out, err = run(t, "", "reset", "--endpoint", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Store reset queued")
	assert.Equal(t, "", st.ResolvedRevs().Get("github.com/a/b", "main"))
}

func TestDispatchNotesForeignActions(t *testing.T) {
	isolate(t)
	ts, st := newAPI(t)
	before := st.Get()

	out, err := run(t, "", "dispatch", "SearchPatternTyped", `{"pattern":"x"}`, "--endpoint", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Dispatched SearchPatternTyped")
	assert.Contains(t, out, "not a repository action type")
	assert.Same(t, before.Repos, st.Get().Repos)

	out, err = run(t, "", "dispatch", "RepoCloning", `{"repo":"r","isCloning":true}`, "--endpoint", ts.URL)
	require.NoError(t, err)
	assert.NotContains(t, out, "not a repository action type")
}

func TestDispatchRejectsBadInput(t *testing.T) {
	isolate(t)
	ts, _ := newAPI(t)

	_, err := run(t, "", "dispatch", "RepoCloning", `{not json`, "--endpoint", ts.URL)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = run(t, "", "dispatch", "RepoCloning", `[1,2]`, "--endpoint", ts.URL)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidAction))

	_, err = run(t, "", "dispatch", "RepoCloning", `{}`, "--endpoint", filepath.Join(t.TempDir(), "none.sock"))
	assert.True(t, errors.Is(err, errors.ErrCodeDaemonNotRunning))
}

func TestStateFallsBackToLocal(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "state", "--endpoint", filepath.Join(t.TempDir(), "none.sock"))
	require.NoError(t, err)
	assert.Contains(t, out, "Source:             local scan")
	assert.Contains(t, out, "Repositories:       0")
}

func TestWatchPrintsChanges(t *testing.T) {
	isolate(t)
	ts, st := newAPI(t)

	root := NewRootCmd()
	pr, pw := io.Pipe()
	root.SetOut(pw)
	root.SetArgs([]string{"watch", "--json", "--endpoint", ts.URL})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- root.ExecuteContext(ctx)
		pw.Close()
	}()

	require.Eventually(t, func() bool { return st.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	st.Handle(actions.FetchedTags{Repo: "r"})

	line, err := readLine(pr)
	require.NoError(t, err)
	var change daemon.Change
	require.NoError(t, json.Unmarshal([]byte(line), &change))
	assert.Equal(t, actions.KindFetchedTags, change.Kind)

	cancel()
	go io.Copy(io.Discard, pr)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func readLine(r io.Reader) (string, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		if _, err := r.Read(buf); err != nil {
			return string(line), err
		}
		if buf[0] == '\n' {
			return string(line), nil
		}
		line = append(line, buf[0])
	}
}

func TestActionsAndConfigCommands(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "actions")
	require.NoError(t, err)
	assert.Contains(t, out, "FetchedInventory")
	assert.Len(t, strings.Fields(out), len(actions.Kinds()))

	out, err = run(t, "", "config", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"collector"`)

	out, err = run(t, "", "config", "schema", "--logging")
	require.NoError(t, err)
	assert.Contains(t, out, `"structured_to_stderr"`)

	out, err = run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "defaults")
	assert.Contains(t, out, "queue_size: 100")

	path := filepath.Join(t.TempDir(), "repostore.yml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  queue_size: -4\n"), 0644))
	_, err = run(t, "", "config", "validate", path)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigValidation))
}

func TestStatusWhenStopped(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "status")
	assert.Contains(t, out, "Stopped")
	assert.True(t, errors.Is(err, errors.ErrCodeDaemonNotRunning))

	out, err = run(t, "", "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "not running")
}

func TestDaemonRunServesAndShutsDown(t *testing.T) {
	isolate(t)

	cfg, source, err := config.LoadOrDefault("", testLogger())
	require.NoError(t, err)
	var logs bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logs)
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	d, err := newDaemon(cfg, source, logger.WithField("component", "repostored"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()

	client, err := daemon.NewRemoteClient(paths.SocketPath())
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)

	running, pid, err := pidfile.IsRunning(paths.PidFilePath())
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, client.Dispatch(ctx, actions.RepoCloning{Repo: "r", IsCloning: true}))
	require.NoError(t, client.Dispatch(ctx, actions.ResolvedRev{Repo: "r", Rev: "main", CommitID: "c1"}))
	require.Eventually(t, func() bool { return d.store.ResolvedRevs().Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, d.store.Repos().IsCloning("r"))

	rc, err := client.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultQueueSize, rc.QueueSize)
	assert.False(t, rc.CollectorEnabled)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	_, err = os.Stat(paths.PidFilePath())
	assert.True(t, os.IsNotExist(err))
	assert.Contains(t, logs.String(), `msg="Daemon stopped"`)
	assert.Contains(t, logs.String(), "resolved_revs=1")
}

func TestDaemonReload(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "repostore.yml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  queue_size: 4\n"), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	d, err := newDaemon(cfg, path, testLogger())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  queue_size: 9\nserver:\n  stream_buffer: 3\n"), 0644))
	d.reload(path)

	ts := httptest.NewServer(d.server.Handler())
	defer ts.Close()
	client, err := daemon.NewRemoteClient(ts.URL)
	require.NoError(t, err)
	defer client.Close()

	rc, err := client.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, rc.QueueSize)
	assert.Equal(t, path, rc.ConfigFile)

	// An invalid file keeps the previous settings.
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  queue_size: nope\n"), 0644))
	d.reload(path)
	rc, err = client.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, rc.QueueSize)
}
