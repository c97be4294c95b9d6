// Package bridge serialises camera work onto a single goroutine so that
// synchronous callers never touch the camera session concurrently.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dogfinder/internal/camera"
	"dogfinder/internal/logger"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("bridge closed")

// Operation is a unit of camera work run on the bridge goroutine.
type Operation func(ctx context.Context, session *camera.Session) (any, error)

type job struct {
	op   Operation
	done chan result
}

type result struct {
	value any
	err   error
}

// Bridge owns the camera session and runs one operation at a time, in
// submission order.
type Bridge struct {
	session *camera.Session
	logger  *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	jobs chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts the bridge goroutine.
func New(session *camera.Session, logger *logger.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		session: session,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(chan job, 64),
	}

	b.wg.Add(1)
	go b.loop()
	return b
}

func (b *Bridge) loop() {
	defer b.wg.Done()
	for j := range b.jobs {
		value, err := b.run(j.op)
		j.done <- result{value: value, err: err}
	}
}

func (b *Bridge) run(op Operation) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered panic in camera operation: %v", r)
			err = fmt.Errorf("camera operation panicked: %v", r)
		}
	}()
	return op(b.ctx, b.session)
}

// Submit enqueues op and blocks until it has run.
func (b *Bridge) Submit(op Operation) (any, error) {
	done, err := b.enqueue(op)
	if err != nil {
		return nil, err
	}
	res := <-done
	return res.value, res.err
}

func (b *Bridge) enqueue(op Operation) (chan result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	done := make(chan result, 1)
	b.jobs <- job{op: op, done: done}
	return done, nil
}

// Do submits op and returns its typed result.
func Do[T any](b *Bridge, op func(ctx context.Context, session *camera.Session) (T, error)) (T, error) {
	value, err := b.Submit(func(ctx context.Context, s *camera.Session) (any, error) {
		return op(ctx, s)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, _ := value.(T)
	return typed, nil
}

// Snapshot fetches a frame through the bridge.
func (b *Bridge) Snapshot() ([]byte, error) {
	return Do(b, func(ctx context.Context, s *camera.Session) ([]byte, error) {
		return s.Snapshot(ctx)
	})
}

// PTZ sends a motion command through the bridge.
func (b *Bridge) PTZ(cmd camera.PTZCommand) error {
	_, err := b.Submit(func(ctx context.Context, s *camera.Session) (any, error) {
		return nil, s.SendPTZ(ctx, cmd)
	})
	return err
}

// Channel returns the camera channel of the owned session.
func (b *Bridge) Channel() int {
	return b.session.Channel()
}

// State reports the session state without queueing behind camera work.
func (b *Bridge) State() camera.State {
	return b.session.State()
}

// Close stops accepting work, lets queued jobs finish and, when logout is
// true, logs the session out on the way down.
func (b *Bridge) Close(logout bool) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.jobs)
	b.mu.Unlock()

	b.wg.Wait()
	defer b.cancel()

	if logout {
		return b.session.Close(b.ctx)
	}
	return nil
}
