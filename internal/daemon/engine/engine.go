// Package engine delivers dispatched actions to handlers and runs the
// collectors that produce them.
package engine

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/grovetools/repostore/errors"
	"github.com/grovetools/repostore/internal/daemon/collector"
	"github.com/grovetools/repostore/pkg/actions"
	"github.com/sirupsen/logrus"
)

// DefaultQueueSize is used when New is given a non-positive queue size.
const DefaultQueueSize = 100

var errStopped = stderrors.New("engine stopped")

// Handler receives every dispatched action.
type Handler interface {
	Name() string
	Handle(a actions.Action)
}

// Resetter is implemented by handlers that can drop all of their state.
type Resetter interface {
	Reset()
}

// resetRequest travels through the queue so a reset is ordered with the
// actions dispatched around it.
type resetRequest struct{}

func (resetRequest) Kind() actions.Kind { return "reset" }

// Engine owns the action queue. A single consumer goroutine delivers actions
// in dispatch order, and each action reaches every handler before the next
// one is taken off the queue.
type Engine struct {
	handlers   []Handler
	collectors []collector.Collector
	queue      chan actions.Action
	stopped    chan struct{}
	stopOnce   sync.Once
	logger     *logrus.Entry
}

// New creates a new Engine instance.
func New(logger *logrus.Entry, queueSize int) *Engine {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Engine{
		queue:   make(chan actions.Action, queueSize),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// AddHandler registers a handler. Handlers are called in registration order.
// It must be called before Start.
func (e *Engine) AddHandler(h Handler) {
	e.handlers = append(e.handlers, h)
}

// Register adds a collector to the engine. It must be called before Start.
func (e *Engine) Register(c collector.Collector) {
	e.collectors = append(e.collectors, c)
}

// Dispatch queues an action. It blocks while the queue is full and fails if
// the engine has stopped or ctx is done first.
func (e *Engine) Dispatch(ctx context.Context, a actions.Action) error {
	select {
	case <-e.stopped:
		return errors.DispatchFailed(string(a.Kind()), errStopped)
	default:
	}

	select {
	case e.queue <- a:
		return nil
	case <-e.stopped:
		return errors.DispatchFailed(string(a.Kind()), errStopped)
	case <-ctx.Done():
		return errors.DispatchFailed(string(a.Kind()), ctx.Err())
	}
}

// Reset queues a reset of every handler that implements Resetter. Actions
// queued before it are delivered first; actions queued after it land on the
// emptied handlers.
func (e *Engine) Reset(ctx context.Context) error {
	return e.Dispatch(ctx, resetRequest{})
}

// Start runs the consumer and all collectors and blocks until ctx is canceled.
func (e *Engine) Start(ctx context.Context) {
	defer e.stopOnce.Do(func() { close(e.stopped) })

	var wg sync.WaitGroup

	// 1. Start Action Consumer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case a := <-e.queue:
				e.deliver(a)
			}
		}
	}()

	// 2. Start Collectors
	for _, c := range e.collectors {
		wg.Add(1)
		go func(col collector.Collector) {
			defer wg.Done()
			e.logger.WithField("collector", col.Name()).Info("Starting collector")
			if err := col.Run(ctx, e.queue); err != nil {
				e.logger.WithField("collector", col.Name()).WithError(err).Error("Collector failed")
			}
		}(c)
	}

	wg.Wait()
}

// Stopped is closed once Start has returned.
func (e *Engine) Stopped() <-chan struct{} {
	return e.stopped
}

func (e *Engine) deliver(a actions.Action) {
	if _, ok := a.(resetRequest); ok {
		e.logger.Info("Resetting handlers")
		for _, h := range e.handlers {
			if r, ok := h.(Resetter); ok {
				r.Reset()
			}
		}
		return
	}
	e.logger.WithField("action", a.Kind()).Debug("Dispatching action")
	for _, h := range e.handlers {
		h.Handle(a)
	}
}
