// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"testing"

	"github.com/absmach/fluxtopic/topic/types"
	"github.com/stretchr/testify/assert"
)

func subscribers(n int) []types.SubscriberID {
	out := make([]types.SubscriberID, n)
	for i := range out {
		out[i] = types.SubscriberID{Member: int32(i%2 + 1), Local: int64(i + 1), OwnerUUID: memberUUID}
	}
	return out
}

func TestRoundRobinAllocator(t *testing.T) {
	subs := subscribers(2)
	reversed := []types.SubscriberID{subs[1], subs[0]}

	cases := []struct {
		desc     string
		channels int
		subs     []types.SubscriberID
		want     []types.SubscriberID
	}{
		{
			desc:     "no subscribers",
			channels: 3,
			want:     []types.SubscriberID{types.NullSubscriber, types.NullSubscriber, types.NullSubscriber},
		},
		{
			desc:     "deals channels in sorted order",
			channels: 5,
			subs:     reversed,
			want:     []types.SubscriberID{subs[0], subs[1], subs[0], subs[1], subs[0]},
		},
		{
			desc:     "more subscribers than channels",
			channels: 1,
			subs:     subscribers(3),
			want:     []types.SubscriberID{subs[0]},
		},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, RoundRobinAllocator{}.Allocate(tc.channels, tc.subs))
		})
	}
	assert.Equal(t, subs[1], reversed[0], "input must not be reordered")
}

func TestHashAllocatorMovesOnlyGainedChannels(t *testing.T) {
	const channels = 64
	subs := subscribers(4)

	before := HashAllocator{}.Allocate(channels, subs[:3])
	assert.Equal(t, before, HashAllocator{}.Allocate(channels, []types.SubscriberID{subs[2], subs[0], subs[1]}))

	after := HashAllocator{}.Allocate(channels, subs)
	moved := 0
	for c := range after {
		if after[c] != before[c] {
			assert.Equal(t, subs[3], after[c])
			moved++
		}
	}
	assert.Positive(t, moved)

	used := make(map[types.SubscriberID]bool)
	for _, o := range before {
		used[o] = true
	}
	assert.Len(t, used, 3)
}

func TestEngineUsesConfiguredAllocator(t *testing.T) {
	cfg := smallConfig()
	cfg.Allocation = types.AllocateHash
	h := newHarness(t, cfg)
	h.pin("G", subA)
	h.pin("G", subB)

	want := HashAllocator{}.Allocate(cfg.Channels, []types.SubscriberID{subA, subB})
	for c := range cfg.Channels {
		assert.Equal(t, want[c], h.subscription(c, "G").Owner)
	}
}
