// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"encoding/binary"
	"hash/fnv"
	"slices"

	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/types"
)

// Allocator assigns every channel of a group to one of its live subscribers.
// Implementations must be deterministic in their inputs so that every
// partition computes the same ownership.
type Allocator interface {
	Allocate(channels int, subscribers []types.SubscriberID) []types.SubscriberID
}

// RoundRobinAllocator sorts subscribers and deals channels out in turn.
type RoundRobinAllocator struct{}

// Allocate assigns channel c to the (c mod n)-th subscriber.
func (RoundRobinAllocator) Allocate(channels int, subscribers []types.SubscriberID) []types.SubscriberID {
	owners := make([]types.SubscriberID, channels)
	if len(subscribers) == 0 {
		return owners
	}
	subs := slices.Clone(subscribers)
	slices.SortFunc(subs, types.SubscriberID.Compare)
	for c := range owners {
		owners[c] = subs[c%len(subs)]
	}
	return owners
}

// HashAllocator uses rendezvous hashing so that a subscriber joining or leaving
// moves only the channels it gains or loses.
type HashAllocator struct{}

// Allocate assigns each channel to the subscriber with the highest weight.
func (HashAllocator) Allocate(channels int, subscribers []types.SubscriberID) []types.SubscriberID {
	owners := make([]types.SubscriberID, channels)
	for c := range owners {
		var best uint64
		for i, s := range subscribers {
			w := rendezvousWeight(s, c)
			if i == 0 || w > best || (w == best && s.Compare(owners[c]) < 0) {
				best, owners[c] = w, s
			}
		}
	}
	return owners
}

func rendezvousWeight(s types.SubscriberID, channel int) uint64 {
	var buf [4 + 8 + 16 + 4]byte
	binary.BigEndian.PutUint32(buf[0:], uint32(s.Member))
	binary.BigEndian.PutUint64(buf[4:], uint64(s.Local))
	copy(buf[12:], s.OwnerUUID[:])
	binary.BigEndian.PutUint32(buf[28:], uint32(channel))
	h := fnv.New64a()
	h.Write(buf[:])
	return h.Sum64()
}

func (e *Engine) allocator(cfg types.TopicConfig) Allocator {
	if a, ok := e.allocators[cfg.Allocation]; ok {
		return a
	}
	return RoundRobinAllocator{}
}

// reallocate recomputes channel ownership of a group. A channel whose owner
// changes has its read cursor rewound to the committed position so the new
// owner redelivers everything not yet acknowledged.
func (e *Engine) reallocate(rec storage.Records, cfg types.TopicConfig, topic, group string) error {
	infos, err := rec.Subscribers(topic, group)
	if err != nil {
		return err
	}
	ids := make([]types.SubscriberID, len(infos))
	for i, info := range infos {
		ids[i] = info.Key.Subscriber
	}
	moved, err := e.reassign(rec, cfg, topic, group, ids)
	if err != nil {
		return err
	}
	return putSubscriptions(rec, moved)
}

// reassign returns the subscriptions of a group whose owner changes when its
// channels are dealt to ids. It does not write.
func (e *Engine) reassign(rec storage.Records, cfg types.TopicConfig, topic, group string, ids []types.SubscriberID) ([]*types.Subscription, error) {
	owners := e.allocator(cfg).Allocate(cfg.Channels, ids)

	subs, err := rec.GroupSubscriptions(topic, group)
	if err != nil {
		return nil, err
	}
	var moved []*types.Subscription
	for _, sub := range subs {
		c := sub.Key.Channel
		if c < 0 || c >= len(owners) || sub.Owner == owners[c] {
			continue
		}
		sub.Owner = owners[c]
		sub.Rewind()
		moved = append(moved, sub)
	}
	return moved, nil
}

func putSubscriptions(rec storage.Records, subs []*types.Subscription) error {
	for _, sub := range subs {
		if err := rec.PutSubscription(sub); err != nil {
			return err
		}
	}
	return nil
}
