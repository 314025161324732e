// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"sort"
)

// OfferStatus is the outcome of an Offer.
type OfferStatus uint8

const (
	OfferSuccess OfferStatus = iota
	OfferPageSealed
	OfferTopicFull
)

func (s OfferStatus) String() string {
	switch s {
	case OfferSuccess:
		return "Success"
	case OfferPageSealed:
		return "PageSealed"
	case OfferTopicFull:
		return "TopicFull"
	default:
		return fmt.Sprintf("OfferStatus(%d)", uint8(s))
	}
}

// Poll sentinels as they appear on the wire in place of a remaining count.
const (
	Exhausted           = -1
	UnknownSubscriber   = -2
	NotAllocatedChannel = -3
)

// PollStatus is the outcome of a Poll or Seek.
type PollStatus uint8

const (
	PollOK PollStatus = iota
	PollExhausted
	PollUnknownSubscriber
	PollNotAllocatedChannel
)

func (s PollStatus) String() string {
	switch s {
	case PollOK:
		return "OK"
	case PollExhausted:
		return "Exhausted"
	case PollUnknownSubscriber:
		return "UnknownSubscriber"
	case PollNotAllocatedChannel:
		return "NotAllocatedChannel"
	default:
		return fmt.Sprintf("PollStatus(%d)", uint8(s))
	}
}

// Code folds a status and a remaining count into the integer wire form.
func (s PollStatus) Code(remaining int) int {
	switch s {
	case PollExhausted:
		return Exhausted
	case PollUnknownSubscriber:
		return UnknownSubscriber
	case PollNotAllocatedChannel:
		return NotAllocatedChannel
	default:
		return remaining
	}
}

// PollStatusFromCode is the inverse of Code.
func PollStatusFromCode(code int) (PollStatus, int) {
	switch code {
	case Exhausted:
		return PollExhausted, 0
	case UnknownSubscriber:
		return PollUnknownSubscriber, 0
	case NotAllocatedChannel:
		return PollNotAllocatedChannel, 0
	default:
		return PollOK, code
	}
}

// CommitStatus is the outcome of a Commit.
type CommitStatus uint8

const (
	CommitCommitted CommitStatus = iota
	CommitAlreadyCommitted
	CommitNotAllocatedChannel
	CommitNoSubscription
)

// Success reports whether the commit position is durable after the call.
func (s CommitStatus) Success() bool {
	return s == CommitCommitted || s == CommitAlreadyCommitted
}

func (s CommitStatus) String() string {
	switch s {
	case CommitCommitted:
		return "Committed"
	case CommitAlreadyCommitted:
		return "AlreadyCommitted"
	case CommitNotAllocatedChannel:
		return "NotAllocatedChannel"
	case CommitNoSubscription:
		return "NoSubscription"
	default:
		return fmt.Sprintf("CommitStatus(%d)", uint8(s))
	}
}

// EnsurePhase selects what EnsureSubscription does.
type EnsurePhase uint8

const (
	PhaseInquire EnsurePhase = iota
	PhasePin
	PhaseAdvance
)

func (p EnsurePhase) String() string {
	switch p {
	case PhaseInquire:
		return "INQUIRE"
	case PhasePin:
		return "PIN"
	case PhaseAdvance:
		return "ADVANCE"
	default:
		return fmt.Sprintf("EnsurePhase(%d)", uint8(p))
	}
}

// EvictionReason explains why a subscriber was removed by cleanup.
type EvictionReason uint8

const (
	EvictMemberDeparted EvictionReason = iota
	EvictMemberRestarted
	EvictStaleSession
	EvictHeartbeatExpired
)

func (r EvictionReason) String() string {
	switch r {
	case EvictMemberDeparted:
		return "member_departed"
	case EvictMemberRestarted:
		return "member_restarted"
	case EvictStaleSession:
		return "stale_session"
	case EvictHeartbeatExpired:
		return "heartbeat_expired"
	default:
		return fmt.Sprintf("eviction_reason(%d)", uint8(r))
	}
}

// SeekResult is the outcome of a successful Seek.
type SeekResult struct {
	Head     int64
	Position *Position
}

// CompareSeekResults orders seek results from different partitions. Nil results and
// nil positions sort last; otherwise results order by head, then position.
func CompareSeekResults(a, b *SeekResult) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if a.Head != b.Head {
		if a.Head < b.Head {
			return -1
		}
		return 1
	}
	switch {
	case a.Position == nil && b.Position == nil:
		return 0
	case a.Position == nil:
		return 1
	case b.Position == nil:
		return -1
	}
	return a.Position.Compare(*b.Position)
}

// ChannelPage is one channel's outcome of EnsureSubscription.
type ChannelPage struct {
	Channel int
	Page    int64
	Err     error
}

// ChannelPages is the channel-indexed outcome of EnsureSubscription.
type ChannelPages []ChannelPage

// AssertPages returns the page of every channel indexed by channel, or the first
// channel error found.
func (cp ChannelPages) AssertPages() ([]int64, error) {
	pages := make([]int64, len(cp))
	for i, c := range cp {
		if c.Err != nil {
			return nil, fmt.Errorf("%w: channel %d: %w", ErrEnsureSubscription, c.Channel, c.Err)
		}
		pages[i] = c.Page
	}
	return pages, nil
}

// GetPages returns the pages of the channels that succeeded.
func (cp ChannelPages) GetPages() map[int]int64 {
	pages := make(map[int]int64, len(cp))
	for _, c := range cp {
		if c.Err == nil {
			pages[c.Channel] = c.Page
		}
	}
	return pages
}

// Failed reports whether any channel carries an error.
func (cp ChannelPages) Failed() bool {
	for _, c := range cp {
		if c.Err != nil {
			return true
		}
	}
	return false
}

// Eviction is one subscriber removed by cleanup.
type Eviction struct {
	Topic      string
	Group      string
	Subscriber SubscriberID
	Reason     EvictionReason
}

// Evictions is the outcome of a cleanup sweep.
type Evictions []Eviction

// ByMember groups evictions by the member that owned the subscriber.
func (e Evictions) ByMember() map[int32]Evictions {
	out := make(map[int32]Evictions)
	for _, ev := range e {
		out[ev.Subscriber.Member] = append(out[ev.Subscriber.Member], ev)
	}
	return out
}

// ByGroup groups evictions by "topic/group".
func (e Evictions) ByGroup() map[string]Evictions {
	out := make(map[string]Evictions)
	for _, ev := range e {
		k := ev.Topic + "/" + ev.Group
		out[k] = append(out[k], ev)
	}
	return out
}

// Members returns the sorted distinct member ids of the evictions.
func (e Evictions) Members() []int32 {
	seen := make(map[int32]struct{})
	var ids []int32
	for _, ev := range e {
		if _, ok := seen[ev.Subscriber.Member]; !ok {
			seen[ev.Subscriber.Member] = struct{}{}
			ids = append(ids, ev.Subscriber.Member)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
