// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package pebble

import (
	"testing"

	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend(t *testing.T) {
	for _, mode := range []FsyncMode{FsyncInterval, FsyncAlways, FsyncNever} {
		storagetest.Run(t, func(t *testing.T) storage.Backend {
			s, err := Open(Options{Dir: t.TempDir(), Fsync: mode})
			require.NoError(t, err)
			return s
		})
	}
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

func TestParseFsyncMode(t *testing.T) {
	cases := map[string]FsyncMode{"": FsyncInterval, "interval": FsyncInterval, "always": FsyncAlways, "never": FsyncNever}
	for name, want := range cases {
		got, err := ParseFsyncMode(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFsyncMode("sometimes")
	assert.Error(t, err)
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Dir: dir, Fsync: FsyncAlways})
	require.NoError(t, err)
	require.NoError(t, s.Update(func(txn storage.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}))
	require.NoError(t, s.Close())

	s, err = Open(Options{Dir: dir})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Update(func(txn storage.Txn) error {
		v, err := txn.Get([]byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), v)
		return nil
	}))
}
