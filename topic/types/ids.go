// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package types holds the records, keys and operation shapes of the paged topic engine.
package types

import (
	"bytes"
	"cmp"
	"fmt"

	"github.com/google/uuid"
)

// Position addresses one element of a channel: the page it lives in and its offset
// within that page. Offset -1 means "before the first element of Page".
type Position struct {
	Page   int64
	Offset int32
}

// PositionNone is the position that sorts before every real position.
var PositionNone = Position{Page: -1, Offset: -1}

// Compare orders positions by page, then offset.
func (p Position) Compare(o Position) int {
	if c := cmp.Compare(p.Page, o.Page); c != 0 {
		return c
	}
	return cmp.Compare(p.Offset, o.Offset)
}

// Less reports whether p sorts before o.
func (p Position) Less(o Position) bool {
	return p.Compare(o) < 0
}

// IsNone reports whether p does not address any page.
func (p Position) IsNone() bool {
	return p.Page < 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Page, p.Offset)
}

// MaxPosition returns the greater of two positions.
func MaxPosition(a, b Position) Position {
	if a.Less(b) {
		return b
	}
	return a
}

// MinPosition returns the lesser of two positions.
func MinPosition(a, b Position) Position {
	if b.Less(a) {
		return b
	}
	return a
}

// SubscriberID identifies one physical subscriber instance. Member is the cluster
// member id of the owning node, Local is unique within that member, and OwnerUUID is
// the member's incarnation at the time the subscriber was created.
type SubscriberID struct {
	Member    int32
	Local     int64
	OwnerUUID uuid.UUID
}

// NullSubscriber addresses every subscriber of a group where an operation accepts it.
var NullSubscriber = SubscriberID{}

// IsNull reports whether s is the null subscriber.
func (s SubscriberID) IsNull() bool {
	return s == NullSubscriber
}

// Compare orders subscribers by member, local id and owner UUID.
func (s SubscriberID) Compare(o SubscriberID) int {
	if c := cmp.Compare(s.Member, o.Member); c != 0 {
		return c
	}
	if c := cmp.Compare(s.Local, o.Local); c != 0 {
		return c
	}
	return bytes.Compare(s.OwnerUUID[:], o.OwnerUUID[:])
}

func (s SubscriberID) String() string {
	if s.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%d/%d/%s", s.Member, s.Local, s.OwnerUUID)
}

// PageKey addresses a page of one channel of a topic.
type PageKey struct {
	Topic   string
	Channel int
	Page    int64
}

// UsageKey addresses the publication bookkeeping of one channel of a topic.
type UsageKey struct {
	Topic   string
	Channel int
}

// SubscriptionKey addresses the cursor state of a subscriber group on one channel.
type SubscriptionKey struct {
	Topic   string
	Channel int
	Group   string
}

// SubscriberKey addresses one subscriber's liveness record within a group.
type SubscriberKey struct {
	Topic      string
	Group      string
	Subscriber SubscriberID
}
