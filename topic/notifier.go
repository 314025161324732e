// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"sync"
	"sync/atomic"
)

// Notifier hands out wake-up tokens and signals their waiters. Offer and Poll
// park tokens in partition records; the operation that frees space or adds
// data returns them, and the Service fires them here.
type Notifier struct {
	mu      sync.RWMutex
	next    atomic.Int64
	buffer  int
	waiters map[int64]chan struct{}
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return NewNotifierWithBuffer(1)
}

// NewNotifierWithBuffer creates a notifier whose waiters hold up to buffer
// pending signals.
func NewNotifierWithBuffer(buffer int) *Notifier {
	if buffer < 1 {
		buffer = 1
	}
	return &Notifier{buffer: buffer, waiters: make(map[int64]chan struct{})}
}

// Waiter is a registered token. Signals beyond the buffer are dropped.
type Waiter struct {
	Token int64
	C     <-chan struct{}
	n     *Notifier
}

// Register allocates a token. Tokens are never zero.
func (n *Notifier) Register() *Waiter {
	token := n.next.Add(1)
	ch := make(chan struct{}, n.buffer)
	n.mu.Lock()
	n.waiters[token] = ch
	n.mu.Unlock()
	return &Waiter{Token: token, C: ch, n: n}
}

// Close unregisters the token. A signal fired afterwards is dropped.
func (w *Waiter) Close() {
	w.n.mu.Lock()
	delete(w.n.waiters, w.Token)
	w.n.mu.Unlock()
}

// Fire signals the waiters of tokens without blocking and returns how many
// tokens were still registered.
func (n *Notifier) Fire(tokens []int64) int {
	if len(tokens) == 0 {
		return 0
	}
	fired := 0
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, t := range tokens {
		ch, ok := n.waiters[t]
		if !ok {
			continue
		}
		fired++
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return fired
}

// Len returns the number of registered tokens.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.waiters)
}
