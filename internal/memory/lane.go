// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package memory

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	engramerr "github.com/engram-dev/engram/pkg/errors"
)

const laneQueueSize = 64

type laneTask struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan<- error
}

// lane runs the tasks of one key one at a time, in submission order.
type lane struct {
	key     string
	logger  *slog.Logger
	tasks   chan laneTask
	closing chan struct{}
	done    chan struct{}
	once    sync.Once

	// pending counts callers between Do and task completion. Guarded by the
	// pool mutex.
	pending int
	release func(*lane)
}

func newLane(key string, logger *slog.Logger, release func(*lane)) *lane {
	l := &lane{
		key:     key,
		logger:  logger,
		tasks:   make(chan laneTask, laneQueueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		release: release,
	}
	go l.loop()
	return l
}

func (l *lane) loop() {
	defer close(l.done)
	for {
		select {
		case t := <-l.tasks:
			l.run(t)
		case <-l.closing:
			for {
				select {
				case t := <-l.tasks:
					l.run(t)
				default:
					return
				}
			}
		}
	}
}

func (l *lane) run(t laneTask) {
	defer l.finish()
	if err := t.ctx.Err(); err != nil {
		t.result <- err
		return
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("lane task panicked",
					"session_id", l.key,
					"panic", r,
					"stack", string(debug.Stack()))
				err = engramerr.Errorf(engramerr.CodeMemoryCompressFailure, "task panic: %v", r)
			}
		}()
		err = t.fn(t.ctx)
	}()
	t.result <- err
}

// submit queues fn and waits for its result. Tasks whose context ends before
// they start are not run.
func (l *lane) submit(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		l.finish()
		return err
	}

	result := make(chan error, 1)
	select {
	case <-ctx.Done():
		l.finish()
		return ctx.Err()
	case <-l.closing:
		l.finish()
		return engramerr.New(engramerr.CodeMemoryLaneClosed, "lane is closed", engramerr.FieldSessionID(l.key))
	case l.tasks <- laneTask{ctx: ctx, fn: fn, result: result}:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// finish hands a finished or abandoned task back to the pool.
func (l *lane) finish() {
	if l.release != nil {
		l.release(l)
	}
}

func (l *lane) stop() {
	l.once.Do(func() { close(l.closing) })
}

func (l *lane) close() {
	l.stop()
	<-l.done
}

// LanePool serializes work per key (a session id) while letting different
// keys run concurrently. A lane is stopped once no caller is waiting on it.
type LanePool struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	logger *slog.Logger
}

func NewLanePool(logger *slog.Logger) *LanePool {
	if logger == nil {
		logger = slog.Default()
	}
	return &LanePool{lanes: make(map[string]*lane), logger: logger}
}

// Do runs fn on the lane of key and returns its error.
func (p *LanePool) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return engramerr.New(engramerr.CodeMemoryLaneClosed, "lane pool is closed", engramerr.FieldSessionID(key))
	}
	l, ok := p.lanes[key]
	if !ok {
		l = newLane(key, p.logger, p.release)
		p.lanes[key] = l
	}
	l.pending++
	p.mu.Unlock()

	return l.submit(ctx, fn)
}

func (p *LanePool) release(l *lane) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l.pending--
	if l.pending == 0 && p.lanes[l.key] == l {
		delete(p.lanes, l.key)
		l.stop()
	}
}

// Len reports how many lanes are open, i.e. keys with work queued or running.
func (p *LanePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// Close drains and stops every lane. Later calls to Do fail.
func (p *LanePool) Close() {
	p.mu.Lock()
	lanes := p.lanes
	p.lanes = make(map[string]*lane)
	p.closed = true
	p.mu.Unlock()

	for _, l := range lanes {
		l.close()
	}
}
