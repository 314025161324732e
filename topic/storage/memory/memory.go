// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package memory provides an in-memory storage backend. Transactions work on a
// copy-on-write clone of an ordered B-tree that replaces the committed tree
// when the transaction succeeds.
package memory

import (
	"bytes"
	"sync"

	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/google/btree"
)

const degree = 32

var _ storage.Backend = (*Store)(nil)

type item struct {
	key   []byte
	value []byte
}

func less(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Store is an in-memory backend.
type Store struct {
	mu     sync.Mutex
	tree   *btree.BTreeG[item]
	closed bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{tree: btree.NewG(degree, less)}
}

// Update runs fn against a clone of the tree and commits it on success.
func (s *Store) Update(fn func(storage.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	t := &txn{tree: s.tree.Clone()}
	if err := fn(t); err != nil {
		return err
	}
	s.tree = t.tree
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len()
}

// Close releases the tree.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tree = btree.NewG(degree, less)
	return nil
}

type txn struct {
	tree *btree.BTreeG[item]
}

func (t *txn) Get(key []byte) ([]byte, error) {
	it, ok := t.tree.Get(item{key: key})
	if !ok {
		return nil, storage.ErrNotFound
	}
	return it.value, nil
}

func (t *txn) Set(key, value []byte) error {
	t.tree.ReplaceOrInsert(item{
		key:   bytes.Clone(key),
		value: bytes.Clone(value),
	})
	return nil
}

func (t *txn) Delete(key []byte) error {
	t.tree.Delete(item{key: key})
	return nil
}

func (t *txn) Scan(prefix []byte, fn func(key, value []byte) error) error {
	var err error
	t.tree.AscendGreaterOrEqual(item{key: prefix}, func(it item) bool {
		if !bytes.HasPrefix(it.key, prefix) {
			return false
		}
		err = fn(it.key, it.value)
		return err == nil
	})
	return err
}
