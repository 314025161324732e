// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package pebble provides a Pebble-backed storage backend. Each transaction is
// an indexed batch, so reads observe the batch's own writes.
package pebble

import (
	"errors"
	"fmt"
	"time"

	"github.com/absmach/fluxtopic/topic/codec"
	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/cockroachdb/pebble"
)

var _ storage.Backend = (*Store)(nil)

// FsyncMode defines durability behavior of committed transactions.
type FsyncMode int

const (
	// FsyncInterval group-commits WAL syncs within FsyncInterval.
	FsyncInterval FsyncMode = iota
	// FsyncAlways syncs the WAL on every commit.
	FsyncAlways
	// FsyncNever leaves WAL syncs to Pebble.
	FsyncNever
)

// ParseFsyncMode maps a configuration name to an FsyncMode.
func ParseFsyncMode(name string) (FsyncMode, error) {
	switch name {
	case "", "interval":
		return FsyncInterval, nil
	case "always":
		return FsyncAlways, nil
	case "never":
		return FsyncNever, nil
	default:
		return 0, fmt.Errorf("unknown fsync mode %q", name)
	}
}

// Options configures the Pebble store.
type Options struct {
	Dir           string
	Fsync         FsyncMode
	FsyncInterval time.Duration
}

// Store is a Pebble-backed storage backend.
type Store struct {
	db    *pebble.DB
	write *pebble.WriteOptions
}

// Open creates or opens a Pebble database.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("pebble: Options.Dir is required")
	}

	po := &pebble.Options{}
	write := pebble.NoSync
	switch opts.Fsync {
	case FsyncAlways:
		write = pebble.Sync
	case FsyncNever:
	default:
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
		write = pebble.Sync
	}

	db, err := pebble.Open(opts.Dir, po)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", opts.Dir, err)
	}
	return &Store{db: db, write: write}, nil
}

// Update runs fn in an indexed batch and commits it on success.
func (s *Store) Update(fn func(storage.Txn) error) error {
	b := s.db.NewIndexedBatch()
	defer b.Close()

	if err := fn(&txn{b: b}); err != nil {
		return err
	}
	if b.Empty() {
		return nil
	}
	return b.Commit(s.write)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type txn struct {
	b *pebble.Batch
}

func (t *txn) Get(key []byte) ([]byte, error) {
	v, closer, err := t.b.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (t *txn) Set(key, value []byte) error {
	return t.b.Set(key, value, nil)
}

func (t *txn) Delete(key []byte) error {
	return t.b.Delete(key, nil)
}

func (t *txn) Scan(prefix []byte, fn func(key, value []byte) error) error {
	it, err := t.b.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: codec.PrefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	for it.First(); it.Valid(); it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			it.Close()
			return err
		}
	}
	return it.Close()
}
