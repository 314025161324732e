// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

import "errors"

// Errors reported inside operation results. They cross the wire as codes.
var (
	ErrNilElement           = errors.New("element is nil")
	ErrElementTooLarge      = errors.New("element exceeds maximum size")
	ErrInvalidChannel       = errors.New("channel out of range")
	ErrSubscriptionConflict = errors.New("subscription exists with a different filter or converter")
	ErrInvalidFilter        = errors.New("invalid filter expression")
	ErrInvalidConverter     = errors.New("invalid converter expression")
	ErrNoSubscription       = errors.New("subscription does not exist")
	ErrEnsureSubscription   = errors.New("ensure subscription failed")
	ErrInvalidPhase         = errors.New("invalid ensure subscription phase")
	ErrMissingPages         = errors.New("advance pages do not cover every channel")
)
