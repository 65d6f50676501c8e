package engine

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/repostore/errors"
	"github.com/grovetools/repostore/pkg/actions"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	name string
	mu   sync.Mutex
	log  *[]string
	seen []actions.Action
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Handle(a actions.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, a)
	*r.log = append(*r.log, r.name+":"+string(a.Kind()))
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

type staticCollector struct {
	actions []actions.Action
}

func (c *staticCollector) Name() string { return "static" }

func (c *staticCollector) Run(ctx context.Context, out chan<- actions.Action) error {
	for _, a := range c.actions {
		out <- a
	}
	<-ctx.Done()
	return nil
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func TestEngine_DeliversInOrderToAllHandlers(t *testing.T) {
	var mu sync.Mutex
	var log []string
	first := &recorder{name: "first", log: &log}
	second := &recorder{name: "second", log: &log}

	e := New(testLogger(), 10)
	e.AddHandler(lockedRecorder{first, &mu})
	e.AddHandler(lockedRecorder{second, &mu})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Start(ctx)

	require.NoError(t, e.Dispatch(ctx, actions.ResolvedRev{Repo: "r", Rev: "v1", CommitID: "c1"}))
	require.NoError(t, e.Dispatch(ctx, actions.RepoCloning{Repo: "r", IsCloning: true}))

	assert.Eventually(t, func() bool { return second.count() == 2 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"first:ResolvedRev",
		"second:ResolvedRev",
		"first:RepoCloning",
		"second:RepoCloning",
	}, log)
}

// lockedRecorder serialises writes to the shared log between recorders.
type lockedRecorder struct {
	*recorder
	mu *sync.Mutex
}

func (l lockedRecorder) Handle(a actions.Action) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recorder.Handle(a)
}

func TestEngine_CollectorActionsReachHandlers(t *testing.T) {
	var log []string
	rec := &recorder{name: "store", log: &log}

	e := New(testLogger(), 0)
	e.AddHandler(rec)
	e.Register(&staticCollector{actions: []actions.Action{
		actions.FetchedTags{Repo: "r"},
		actions.FetchedBranches{Repo: "r"},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	go e.Start(ctx)

	assert.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-e.Stopped():
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestEngine_DispatchAfterStop(t *testing.T) {
	e := New(testLogger(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Start(ctx)

	err := e.Dispatch(context.Background(), actions.RepoCloning{Repo: "r"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDispatchFailed))
}

func TestEngine_DispatchHonoursContext(t *testing.T) {
	e := New(testLogger(), 1)
	require.NoError(t, e.Dispatch(context.Background(), actions.RepoCloning{Repo: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := e.Dispatch(ctx, actions.RepoCloning{Repo: "b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDispatchFailed))
}

// resettable records resets alongside the actions it sees.
type resettable struct {
	*recorder
}

func (r resettable) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.log = append(*r.log, r.name+":reset")
}

func TestEngine_ResetIsDeliveredInQueueOrder(t *testing.T) {
	var mu sync.Mutex
	var log []string
	store := resettable{&recorder{name: "store", log: &log}}
	plain := &recorder{name: "plain", log: &log}

	e := New(testLogger(), 10)
	e.AddHandler(lockedResettable{store, &mu})
	e.AddHandler(lockedRecorder{plain, &mu})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Queue before starting so the consumer sees all three in one run.
	require.NoError(t, e.Dispatch(ctx, actions.FetchedTags{Repo: "r"}))
	require.NoError(t, e.Reset(ctx))
	require.NoError(t, e.Dispatch(ctx, actions.FetchedBranches{Repo: "r"}))
	go e.Start(ctx)

	assert.Eventually(t, func() bool { return plain.count() == 2 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"store:FetchedTags",
		"plain:FetchedTags",
		"store:reset",
		"store:FetchedBranches",
		"plain:FetchedBranches",
	}, log)
}

type lockedResettable struct {
	resettable
	mu *sync.Mutex
}

func (l lockedResettable) Handle(a actions.Action) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resettable.Handle(a)
}

func (l lockedResettable) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resettable.Reset()
}

func TestEngine_ResetAfterStop(t *testing.T) {
	e := New(testLogger(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Start(ctx)

	err := e.Reset(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeDispatchFailed))
}
