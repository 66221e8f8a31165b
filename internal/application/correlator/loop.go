package correlator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/dispatch-register/internal/application/port"
	"go.uber.org/zap"
)

// ErrLoopStopped is returned for work submitted to a loop that is not running
var ErrLoopStopped = errors.New("event loop is not running")

// Loop is the single goroutine that owns all engine state. Transport
// callbacks, API handlers and timers hand it closures; nothing else touches
// the stores.
type Loop struct {
	tasks  chan func()
	logger *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
	handled   atomic.Int64
}

// NewLoop creates a loop with room for buffer queued tasks
func NewLoop(buffer int, logger *zap.Logger) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		tasks:  make(chan func(), buffer),
		logger: logger,
	}
}

// Name returns the worker name for identification
func (l *Loop) Name() string {
	return "EventLoop"
}

// Start runs the loop in a background goroutine until ctx is cancelled or Stop is called
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isRunning {
		return fmt.Errorf("event loop already running")
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.isRunning = true

	go l.run(ctx, l.done)

	l.logger.Info("Event loop started", zap.Int("buffer", cap(l.tasks)))
	return nil
}

// Stop ends the loop and waits for the task in progress to finish
func (l *Loop) Stop() error {
	l.mu.Lock()
	if !l.isRunning {
		l.mu.Unlock()
		return nil
	}
	l.isRunning = false
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done

	l.logger.Info("Event loop stopped", zap.Int64("handled", l.handled.Load()))
	return nil
}

// IsRunning returns whether the loop accepts work
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isRunning
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-l.tasks:
			l.execute(task)
		}
	}
}

func (l *Loop) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Event loop task panicked", zap.Any("panic", r))
		}
	}()
	task()
	l.handled.Add(1)
}

// Post queues a task without waiting for it. It gives up when the loop
// exits, even if the queue is full.
func (l *Loop) Post(ctx context.Context, task func()) error {
	l.mu.Lock()
	running, done := l.isRunning, l.done
	l.mu.Unlock()
	if !running {
		return ErrLoopStopped
	}

	select {
	case l.tasks <- task:
		return nil
	case <-done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop and waits for it to complete
func (l *Loop) Do(ctx context.Context, fn func()) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	finished := make(chan struct{})
	if err := l.Post(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule runs task on the loop after delay. The returned function cancels
// the task and reports false if it already ran.
func (l *Loop) Schedule(delay time.Duration, task func()) port.CancelFunc {
	var cancelled atomic.Bool
	var ran atomic.Bool

	timer := time.AfterFunc(delay, func() {
		err := l.Post(context.Background(), func() {
			if cancelled.Load() {
				return
			}
			ran.Store(true)
			task()
		})
		if err != nil {
			l.logger.Warn("Scheduled task dropped", zap.Error(err))
		}
	})

	return func() bool {
		if ran.Load() {
			return false
		}
		cancelled.Store(true)
		timer.Stop()
		return true
	}
}
