// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier(t *testing.T) {
	n := NewNotifier()
	a := n.Register()
	b := n.Register()
	require.NotZero(t, a.Token)
	require.NotEqual(t, a.Token, b.Token)
	assert.Equal(t, 2, n.Len())

	assert.Equal(t, 1, n.Fire([]int64{a.Token, 999}))
	assert.Equal(t, 1, n.Fire([]int64{a.Token}), "second signal coalesces")
	assert.Len(t, a.C, 1)
	assert.Empty(t, b.C)
	<-a.C

	b.Close()
	assert.Zero(t, n.Fire([]int64{b.Token}))
	assert.Equal(t, 1, n.Len())
	assert.Zero(t, n.Fire(nil))
}

func TestNotifierBuffer(t *testing.T) {
	n := NewNotifierWithBuffer(3)
	w := n.Register()
	defer w.Close()
	for range 5 {
		n.Fire([]int64{w.Token})
	}
	assert.Len(t, w.C, 3)

	assert.Equal(t, 1, NewNotifierWithBuffer(0).buffer)
}
