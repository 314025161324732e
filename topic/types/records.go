// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// NoPage marks an unlinked page reference.
const NoPage int64 = -1

// Page is the append unit of a channel.
type Page struct {
	Key       PageKey
	Elements  [][]byte
	UsedBytes int
	Sealed    bool
	Prev      int64
	Next      int64
	CreatedAt time.Time
}

// NewPage creates an empty, unsealed page linked to prev.
func NewPage(key PageKey, prev int64, now time.Time) *Page {
	return &Page{
		Key:       key,
		Prev:      prev,
		Next:      NoPage,
		CreatedAt: now,
	}
}

// Len returns the number of elements in the page.
func (p *Page) Len() int {
	return len(p.Elements)
}

// Append adds an element and accounts for its size.
func (p *Page) Append(element []byte) int32 {
	p.Elements = append(p.Elements, element)
	p.UsedBytes += len(element)
	return int32(len(p.Elements) - 1)
}

// Fits reports whether an element of size n can be appended within capacity.
// An empty page accepts a single element of any size.
func (p *Page) Fits(n, capacity int) bool {
	if len(p.Elements) == 0 {
		return true
	}
	return p.UsedBytes+n <= capacity
}

// FreeBytes returns the remaining byte budget of the page.
func (p *Page) FreeBytes(capacity int) int {
	if p.Sealed || p.UsedBytes >= capacity {
		return 0
	}
	return capacity - p.UsedBytes
}

// Last returns the position of the last element, or offset -1 for an empty page.
func (p *Page) Last() Position {
	return Position{Page: p.Key.Page, Offset: int32(len(p.Elements) - 1)}
}

// Clone returns a copy that shares element payloads but not the element slice.
func (p *Page) Clone() *Page {
	c := *p
	c.Elements = slices.Clone(p.Elements)
	return &c
}

// Usage is the publication bookkeeping of one channel in a partition.
type Usage struct {
	Key             UsageKey
	PublicationTail int64
	// Oldest is the lowest page id still stored for the channel.
	Oldest             int64
	WaitingPublishers  []int64
	WaitingSubscribers []int64
}

// NewUsage creates usage for a channel whose first page is 0.
func NewUsage(key UsageKey) *Usage {
	return &Usage{Key: key}
}

// Clone returns a deep copy of u.
func (u *Usage) Clone() *Usage {
	c := *u
	c.WaitingPublishers = slices.Clone(u.WaitingPublishers)
	c.WaitingSubscribers = slices.Clone(u.WaitingSubscribers)
	return &c
}

// park records a notification token once.
func park(tokens []int64, token int64) []int64 {
	if token == 0 || slices.Contains(tokens, token) {
		return tokens
	}
	return append(tokens, token)
}

// ParkPublisher records a publisher waiting for space.
func (u *Usage) ParkPublisher(token int64) {
	u.WaitingPublishers = park(u.WaitingPublishers, token)
}

// ParkSubscriber records a subscriber waiting for data.
func (u *Usage) ParkSubscriber(token int64) {
	u.WaitingSubscribers = park(u.WaitingSubscribers, token)
}

// ReleasePublishers returns and clears parked publisher tokens.
func (u *Usage) ReleasePublishers() []int64 {
	t := u.WaitingPublishers
	u.WaitingPublishers = nil
	return t
}

// ReleaseSubscribers returns and clears parked subscriber tokens.
func (u *Usage) ReleaseSubscribers() []int64 {
	t := u.WaitingSubscribers
	u.WaitingSubscribers = nil
	return t
}

// Subscription is the durable cursor of a subscriber group on one channel.
type Subscription struct {
	Key            SubscriptionKey
	SubscriptionID uuid.UUID
	Head           int64
	Committed      Position
	// Read is the position of the last element handed out to the owner.
	Read      Position
	Owner     SubscriberID
	Filter    string
	Converter string
	CreatedAt time.Time
}

// NewSubscription creates a subscription whose cursor sits before the first element of head.
func NewSubscription(key SubscriptionKey, id uuid.UUID, head int64, now time.Time) *Subscription {
	start := Position{Page: head, Offset: -1}
	return &Subscription{
		Key:            key,
		SubscriptionID: id,
		Head:           head,
		Committed:      start,
		Read:           start,
		CreatedAt:      now,
	}
}

// Clone returns a copy of s.
func (s *Subscription) Clone() *Subscription {
	c := *s
	return &c
}

// Rewind moves the read cursor back to the committed position.
func (s *Subscription) Rewind() {
	s.Read = s.Committed
	if s.Committed.Page >= 0 && s.Committed.Page < s.Head {
		s.Head = s.Committed.Page
	}
}

// RetainedFrom returns the lowest page this subscription still needs.
func (s *Subscription) RetainedFrom() int64 {
	return min(s.Head, s.Committed.Page)
}

// SubscriberInfo is the liveness record of one subscriber.
type SubscriberInfo struct {
	Key            SubscriberKey
	OwnerUUID      uuid.UUID
	SubscriptionID uuid.UUID
	LastHeartbeat  time.Time
	ConnectedAt    time.Time
}

// Clone returns a copy of i.
func (i *SubscriberInfo) Clone() *SubscriberInfo {
	c := *i
	return &c
}

// Member is a membership snapshot entry of a cluster node.
type Member struct {
	ID       int32
	UUID     uuid.UUID
	JoinedAt time.Time
}
