// Package supervisor owns the program's task graph: it builds the relays
// and queues named in configuration, spawns one goroutine per configured
// task, and on shutdown (the caller cancelling the root context) waits for
// them all to return.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/martinmarsh/helm/internal/logger"
	"github.com/martinmarsh/helm/internal/relay"
)

// ByteQueue is a single-consumer, multi-producer channel of raw NMEA lines.
// An unbounded queue never blocks Put; this implementation is bounded and
// applies back-pressure once full, matching the spec's fallback policy.
type ByteQueue struct {
	ch chan []byte
}

func NewByteQueue(capacity int) *ByteQueue {
	return &ByteQueue{ch: make(chan []byte, capacity)}
}

func (q *ByteQueue) Put(line []byte) { q.ch <- line }
func (q *ByteQueue) Get() []byte {
	line, ok := <-q.ch
	if !ok {
		return nil
	}
	return line
}
func (q *ByteQueue) Close() { close(q.ch) }

// Task is one named unit of work the supervisor owns for the life of the
// process. Each task receives the supervisor's root context explicitly,
// rather than reading it from a package-level context variable.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervisor owns the queues, relays and spawned tasks for the life of the
// process.
type Supervisor struct {
	Queues map[string]*ByteQueue
	Relays map[string]*relay.Relay

	wg     sync.WaitGroup
	cancel context.CancelFunc
	errs   chan error
}

// New constructs queues from the given names and relays from a
// name->target-queue-names map.
func New(queueNames []string, relayDefs map[string][]string) *Supervisor {
	s := &Supervisor{
		Queues: make(map[string]*ByteQueue),
		Relays: make(map[string]*relay.Relay),
		errs:   make(chan error, 16),
	}
	for _, name := range queueNames {
		s.Queues[name] = NewByteQueue(256)
	}
	for relayName, targetNames := range relayDefs {
		targets := make(map[string]relay.Queue, len(targetNames))
		for _, qn := range targetNames {
			if q, ok := s.Queues[qn]; ok {
				targets[qn] = q
			}
		}
		s.Relays[relayName] = relay.New(relayName, targets, targetNames)
	}
	return s
}

// Spawn starts a task on its own goroutine, rooted at ctx. Every task must
// release its owned I/O on ctx cancellation.
func (s *Supervisor) Spawn(ctx context.Context, t Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log := logger.WithTask(t.Name)
		log.Info("task started")
		if err := t.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("task exited with error", zap.Error(err))
			select {
			case s.errs <- fmt.Errorf("%s: %w", t.Name, err):
			default:
			}
		}
		log.Info("task stopped")
	}()
}

// Wait blocks until every spawned task has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Errs returns the channel of unexpected task-exit errors, for the top
// level to log or treat as a startup fault.
func (s *Supervisor) Errs() <-chan error {
	return s.errs
}
