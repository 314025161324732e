// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/absmach/fluxtopic/topic/codec"
)

// Executor runs record functions in backend transactions. Each partition has
// one worker goroutine, so operations on a partition are applied one at a time
// in submission order while partitions proceed in parallel.
type Executor struct {
	backend Backend
	codec   *codec.Codec
	logger  *slog.Logger
	workers []*partitionWorker

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

type job struct {
	fn   func(Records) error
	done chan error
}

type partitionWorker struct {
	id   int
	jobs chan job
}

// NewExecutor starts one worker per partition over backend.
func NewExecutor(backend Backend, c *codec.Codec, partitions, queueSize int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = codec.New()
	}
	if partitions <= 0 {
		partitions = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	e := &Executor{
		backend: backend,
		codec:   c,
		logger:  logger,
		workers: make([]*partitionWorker, partitions),
		stopCh:  make(chan struct{}),
	}
	for i := range e.workers {
		w := &partitionWorker{id: i, jobs: make(chan job, queueSize)}
		e.workers[i] = w
		e.wg.Add(1)
		go e.run(w)
	}
	return e
}

// Partitions returns the number of partitions served.
func (e *Executor) Partitions() int {
	return len(e.workers)
}

// Codec returns the codec used for stored records.
func (e *Executor) Codec() *codec.Codec {
	return e.codec
}

// Execute applies fn to a partition in a single transaction. If ctx ends after
// the function was queued, Execute returns ctx.Err() and the function may
// still be applied.
func (e *Executor) Execute(ctx context.Context, partition int, fn func(Records) error) error {
	if partition < 0 || partition >= len(e.workers) {
		return fmt.Errorf("%w: %d", ErrInvalidPartition, partition)
	}
	select {
	case <-e.stopCh:
		return ErrClosed
	default:
	}

	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case e.workers[partition].jobs <- j:
	case <-e.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopCh:
		// The worker either finished the job or drained it before exiting.
		e.wg.Wait()
		select {
		case err := <-j.done:
			return err
		default:
			return ErrClosed
		}
	}
}

func (e *Executor) run(w *partitionWorker) {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			e.drain(w)
			return
		case j := <-w.jobs:
			j.done <- e.apply(w.id, j.fn)
		}
	}
}

// drain fails jobs queued before shutdown.
func (e *Executor) drain(w *partitionWorker) {
	for {
		select {
		case j := <-w.jobs:
			j.done <- ErrClosed
		default:
			return
		}
	}
}

func (e *Executor) apply(partition int, fn func(Records) error) error {
	err := e.backend.Update(func(txn Txn) error {
		return fn(NewRecords(txn, e.codec, partition))
	})
	if err != nil {
		e.logger.Debug("partition transaction aborted", slog.Int("partition", partition), slog.String("error", err.Error()))
	}
	return err
}

// Close stops the workers and closes the backend.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()
	return e.backend.Close()
}
