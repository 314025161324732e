// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"testing"

	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend(t *testing.T) {
	storagetest.Run(t, func(*testing.T) storage.Backend {
		return New()
	})
}

func TestCommittedTreeUntouchedByAbortedTxn(t *testing.T) {
	s := New()
	require.NoError(t, s.Update(func(txn storage.Txn) error {
		return txn.Set([]byte("a"), []byte("1"))
	}))
	_ = s.Update(func(txn storage.Txn) error {
		_ = txn.Set([]byte("b"), []byte("2"))
		return storage.ErrNotFound
	})
	assert.Equal(t, 1, s.Len())
}

func TestClosed(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	err := s.Update(func(storage.Txn) error { return nil })
	assert.ErrorIs(t, err, storage.ErrClosed)
}
