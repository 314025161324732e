// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import "errors"

var (
	// ErrCorruptState reports records that contradict each other, such as a
	// channel usage without its tail page.
	ErrCorruptState     = errors.New("corrupt partition state")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrUnexpectedResult = errors.New("unexpected operation result")
	ErrClosed           = errors.New("topic service closed")

	// ErrUnknownSubscriber is returned by subscriber loops that must re-run
	// EnsureSubscription before reading again.
	ErrUnknownSubscriber = errors.New("subscriber not registered")
	ErrNotAllocated      = errors.New("channel not allocated to subscriber")
)
