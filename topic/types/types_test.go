// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Position
		want int
	}{
		{"equal", Position{1, 2}, Position{1, 2}, 0},
		{"page wins", Position{1, 9}, Position{2, 0}, -1},
		{"offset breaks tie", Position{3, 4}, Position{3, 1}, 1},
		{"none sorts first", PositionNone, Position{0, -1}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
		})
	}

	assert.Equal(t, Position{2, 0}, MaxPosition(Position{1, 5}, Position{2, 0}))
	assert.Equal(t, Position{1, 5}, MinPosition(Position{1, 5}, Position{2, 0}))
	assert.True(t, PositionNone.IsNone())
}

func TestSubscriberIDOrdering(t *testing.T) {
	u1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	u2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	ids := []SubscriberID{
		{Member: 2, Local: 1, OwnerUUID: u1},
		{Member: 1, Local: 5, OwnerUUID: u2},
		{Member: 1, Local: 5, OwnerUUID: u1},
		{Member: 1, Local: 3, OwnerUUID: u2},
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })

	assert.Equal(t, int64(3), ids[0].Local)
	assert.Equal(t, u1, ids[1].OwnerUUID)
	assert.Equal(t, u2, ids[2].OwnerUUID)
	assert.Equal(t, int32(2), ids[3].Member)

	assert.True(t, NullSubscriber.IsNull())
	assert.False(t, ids[0].IsNull())
	assert.Equal(t, "null", NullSubscriber.String())
}

func TestCompareSeekResults(t *testing.T) {
	p := func(page int64, off int32) *Position { return &Position{Page: page, Offset: off} }

	results := []*SeekResult{
		nil,
		{Head: 3, Position: p(3, 1)},
		{Head: 1, Position: nil},
		{Head: 1, Position: p(1, 7)},
		{Head: 1, Position: p(0, 2)},
	}
	sort.SliceStable(results, func(i, j int) bool { return CompareSeekResults(results[i], results[j]) < 0 })

	require.NotNil(t, results[0])
	assert.Equal(t, p(0, 2), results[0].Position)
	assert.Equal(t, p(1, 7), results[1].Position)
	assert.Nil(t, results[2].Position)
	assert.Equal(t, int64(3), results[3].Head)
	assert.Nil(t, results[4])

	assert.Equal(t, 0, CompareSeekResults(nil, nil))
}

func TestChannelPages(t *testing.T) {
	boom := errors.New("boom")
	cp := ChannelPages{
		{Channel: 0, Page: 4},
		{Channel: 1, Err: boom},
		{Channel: 2, Page: 6},
	}

	_, err := cp.AssertPages()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnsureSubscription)
	assert.ErrorIs(t, err, boom)
	assert.True(t, cp.Failed())
	assert.Equal(t, map[int]int64{0: 4, 2: 6}, cp.GetPages())

	ok := ChannelPages{{Channel: 0, Page: 1}, {Channel: 1, Page: 2}}
	pages, err := ok.AssertPages()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, pages)
	assert.False(t, ok.Failed())
}

func TestPollStatusCode(t *testing.T) {
	for _, s := range []PollStatus{PollExhausted, PollUnknownSubscriber, PollNotAllocatedChannel} {
		got, rem := PollStatusFromCode(s.Code(42))
		assert.Equal(t, s, got)
		assert.Zero(t, rem)
	}

	got, rem := PollStatusFromCode(PollOK.Code(7))
	assert.Equal(t, PollOK, got)
	assert.Equal(t, 7, rem)
	assert.Equal(t, Exhausted, PollExhausted.Code(0))
	assert.Equal(t, UnknownSubscriber, PollUnknownSubscriber.Code(0))
	assert.Equal(t, NotAllocatedChannel, PollNotAllocatedChannel.Code(0))
}

func TestCommitStatusSuccess(t *testing.T) {
	assert.True(t, CommitCommitted.Success())
	assert.True(t, CommitAlreadyCommitted.Success())
	assert.False(t, CommitNotAllocatedChannel.Success())
	assert.False(t, CommitNoSubscription.Success())
}

func TestTopicConfig(t *testing.T) {
	cfg := DefaultTopicConfig()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		modify func(*TopicConfig)
	}{
		{"no channels", func(c *TopicConfig) { c.Channels = 0 }},
		{"no capacity", func(c *TopicConfig) { c.PageCapacity = 0 }},
		{"negative pages", func(c *TopicConfig) { c.MaxPages = -1 }},
		{"unknown allocation", func(c *TopicConfig) { c.Allocation = "random" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultTopicConfig()
			tt.modify(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}

	merged := cfg.Merge(TopicConfig{Channels: 3, MaxPages: 10, SubscriberTimeout: time.Second})
	assert.Equal(t, 3, merged.Channels)
	assert.Equal(t, int64(10), merged.MaxPages)
	assert.Equal(t, time.Second, merged.SubscriberTimeout)
	assert.Equal(t, cfg.PageCapacity, merged.PageCapacity)
}

func TestPageAccounting(t *testing.T) {
	p := NewPage(PageKey{Topic: "t", Channel: 0, Page: 2}, 1, time.Now())
	assert.Equal(t, NoPage, p.Next)
	assert.True(t, p.Fits(100, 10), "empty page accepts an oversize element")

	assert.Equal(t, int32(0), p.Append([]byte("abcd")))
	assert.Equal(t, 4, p.UsedBytes)
	assert.True(t, p.Fits(6, 10))
	assert.False(t, p.Fits(7, 10))
	assert.Equal(t, 6, p.FreeBytes(10))
	assert.Equal(t, Position{Page: 2, Offset: 0}, p.Last())

	c := p.Clone()
	c.Append([]byte("x"))
	assert.Equal(t, 1, p.Len())

	p.Sealed = true
	assert.Zero(t, p.FreeBytes(10))
}

func TestUsageParking(t *testing.T) {
	u := NewUsage(UsageKey{Topic: "t"})
	u.ParkPublisher(7)
	u.ParkPublisher(7)
	u.ParkPublisher(0)
	u.ParkSubscriber(9)

	assert.Equal(t, []int64{7}, u.ReleasePublishers())
	assert.Empty(t, u.WaitingPublishers)
	assert.Equal(t, []int64{9}, u.ReleaseSubscribers())
}

func TestSubscriptionRewind(t *testing.T) {
	s := NewSubscription(SubscriptionKey{Topic: "t", Group: "g"}, uuid.New(), 2, time.Now())
	assert.Equal(t, Position{Page: 2, Offset: -1}, s.Committed)

	s.Committed = Position{Page: 3, Offset: 1}
	s.Read = Position{Page: 5, Offset: 4}
	s.Head = 5
	s.Rewind()
	assert.Equal(t, s.Committed, s.Read)
	assert.Equal(t, int64(3), s.Head)
	assert.Equal(t, int64(3), s.RetainedFrom())
}

func TestEvictionsGrouping(t *testing.T) {
	ev := Evictions{
		{Topic: "t", Group: "a", Subscriber: SubscriberID{Member: 2, Local: 1}},
		{Topic: "t", Group: "b", Subscriber: SubscriberID{Member: 1, Local: 2}},
		{Topic: "t", Group: "a", Subscriber: SubscriberID{Member: 2, Local: 3}},
	}

	assert.Len(t, ev.ByMember()[2], 2)
	assert.Len(t, ev.ByGroup()["t/a"], 2)
	assert.Equal(t, []int32{1, 2}, ev.Members())
}

func TestValidateNames(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"orders", true},
		{"a/b/c", true},
		{"ünïcode", true},
		{"", false},
		{"bad\x00name", false},
		{string([]byte{0xff, 0xfe}), false},
		{strings.Repeat("x", MaxNameLength), true},
		{strings.Repeat("x", MaxNameLength+1), false},
	}
	for _, c := range cases {
		err := ValidateTopic(c.name)
		gerr := ValidateGroup(c.name)
		if c.valid {
			assert.NoError(t, err, "%q", c.name)
			assert.NoError(t, gerr, "%q", c.name)
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidName, "%q", c.name)
		assert.ErrorIs(t, gerr, ErrInvalidName, "%q", c.name)
	}
}
