// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/absmach/fluxtopic/topic/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPage() *types.Page {
	p := types.NewPage(types.PageKey{Topic: "orders", Channel: 3, Page: 7}, 6, time.Unix(1700000000, 0))
	p.Append([]byte("alpha"))
	p.Append([]byte("beta"))
	p.Append(bytes.Repeat([]byte("x"), 4096))
	p.Sealed = true
	p.Next = 8
	return p
}

func TestPageRoundTrip(t *testing.T) {
	for _, comp := range []Compression{CompressionNone, CompressionS2, CompressionZstd} {
		t.Run(comp.String(), func(t *testing.T) {
			c := New(WithCompression(comp))
			p := testPage()

			data, err := c.EncodePage(p)
			require.NoError(t, err)

			got, err := c.DecodePage(data)
			require.NoError(t, err)
			assert.Equal(t, p.Key, got.Key)
			assert.Equal(t, p.Elements, got.Elements)
			assert.Equal(t, p.UsedBytes, got.UsedBytes)
			assert.True(t, got.Sealed)
			assert.Equal(t, int64(6), got.Prev)
			assert.Equal(t, int64(8), got.Next)
			assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
		})
	}
}

func TestPageCompressionShrinksRepetitiveElements(t *testing.T) {
	p := testPage()
	plain, err := New().EncodePage(p)
	require.NoError(t, err)
	packed, err := New(WithCompression(CompressionZstd)).EncodePage(p)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(plain))
}

func TestPageChecksumFailure(t *testing.T) {
	c := New()
	data, err := c.EncodePage(testPage())
	require.NoError(t, err)

	idx := bytes.Index(data, []byte("alpha"))
	require.Positive(t, idx)
	data[idx] = 'A'

	_, err = c.DecodePage(data)
	assert.ErrorIs(t, err, ErrChecksumFailure)
}

func TestTruncatedRecord(t *testing.T) {
	c := New()
	data, err := c.EncodePage(testPage())
	require.NoError(t, err)

	_, err = c.DecodePage(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = c.DecodePage(nil)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestUnknownVersion(t *testing.T) {
	_, err := NewReader([]byte{0})
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestOlderWriterDefaultsNewFields(t *testing.T) {
	sub := types.NewSubscription(
		types.SubscriptionKey{Topic: "orders", Channel: 1, Group: "billing"},
		uuid.New(), 4, time.Now(),
	)
	sub.Filter = "size(value) > 3"
	sub.Converter = "value"
	sub.Owner = types.SubscriberID{Member: 2, Local: 9, OwnerUUID: uuid.New()}

	v1 := New(WithVersion(Version1))
	data, err := v1.EncodeSubscription(sub)
	require.NoError(t, err)

	got, err := New().DecodeSubscription(data)
	require.NoError(t, err)
	assert.Equal(t, sub.Key, got.Key)
	assert.Equal(t, sub.SubscriptionID, got.SubscriptionID)
	assert.Equal(t, sub.Committed, got.Committed)
	assert.Equal(t, sub.Read, got.Read)
	assert.Equal(t, sub.Owner, got.Owner)
	assert.Empty(t, got.Filter)
	assert.Empty(t, got.Converter)
	assert.True(t, got.CreatedAt.IsZero())
}

func TestReaderSkipsUnknownFields(t *testing.T) {
	info := &types.SubscriberInfo{
		Key: types.SubscriberKey{
			Topic:      "orders",
			Group:      "billing",
			Subscriber: types.SubscriberID{Member: 1, Local: 2, OwnerUUID: uuid.New()},
		},
		OwnerUUID:      uuid.New(),
		SubscriptionID: uuid.New(),
		LastHeartbeat:  time.Unix(1700000000, 500),
	}
	data, err := New().EncodeSubscriberInfo(info)
	require.NoError(t, err)

	// A future writer appends fields this reader has never seen.
	w := &Writer{version: CurrentVersion + 1, buf: NewBufferWriter(len(data) + 32), scratch: NewBufferWriter(16)}
	w.buf.WriteRawBytes(data)
	w.String(99, "from the future")
	w.Int(100, 42)

	got, err := New().DecodeSubscriberInfo(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, info.Key, got.Key)
	assert.Equal(t, info.OwnerUUID, got.OwnerUUID)
	assert.Equal(t, info.SubscriptionID, got.SubscriptionID)
	assert.True(t, info.LastHeartbeat.Equal(got.LastHeartbeat))
}

func TestUsageRoundTrip(t *testing.T) {
	u := types.NewUsage(types.UsageKey{Topic: "orders", Channel: 2})
	u.PublicationTail = 12
	u.Oldest = 9
	u.ParkPublisher(5)
	u.ParkSubscriber(6)
	u.ParkSubscriber(7)

	c := New()
	data, err := c.EncodeUsage(u)
	require.NoError(t, err)
	got, err := c.DecodeUsage(data)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestForPeer(t *testing.T) {
	c := New()
	assert.Equal(t, CurrentVersion, c.Version())
	assert.Same(t, c, c.ForPeer(0))
	assert.Same(t, c, c.ForPeer(CurrentVersion))
	assert.Equal(t, Version1, c.ForPeer(Version1).Version())
	assert.Equal(t, CurrentVersion, New(WithVersion(9)).Version())
}

func TestRequestRoundTrip(t *testing.T) {
	sub := types.SubscriberID{Member: 3, Local: 11, OwnerUUID: uuid.New()}
	id := uuid.New()
	now := time.Unix(1700000000, 0)

	cases := []types.Request{
		&types.OfferRequest{Topic: "t", Channel: 2, Elements: [][]byte{[]byte("a"), {}}, NotifyOnSpace: 4, SealAfter: true},
		&types.PollRequest{Topic: "t", Channel: 1, Group: "g", Page: 3, MaxElements: 10, NotifyOnEmpty: 8, Subscriber: sub},
		&types.SeekRequest{Topic: "t", Channel: 1, Group: "g", Target: types.Position{Page: 2, Offset: 5}, Subscriber: sub},
		&types.CommitRequest{Topic: "t", Channel: 1, Group: "g", Position: types.Position{Page: 2, Offset: 0}, Subscriber: sub},
		&types.EnsureSubscriptionRequest{
			Topic: "t", Group: "g", Subscriber: sub, SubscriptionID: id, Phase: types.PhaseAdvance,
			Reconnect: true, FromBeginning: true, Filter: "true", Converter: "value",
			Pages: []int64{1, 2, 3}, ConnectedAt: now,
		},
		&types.HeadAdvanceRequest{Topic: "t", Channel: 4, Group: "g", Proposed: 9},
		&types.TailAdvanceRequest{Topic: "t", Channel: 4, Proposed: 9},
		&types.InitialiseRequest{Topic: "t"},
		&types.HeartbeatRequest{Topic: "t", Group: "g", Subscriber: sub, SubscriptionID: id, ConnectedAt: now},
		&types.EvictRequest{Topic: "t", Group: "g", Subscriber: sub},
		&types.CleanupRequest{Members: []types.Member{{ID: 1, UUID: uuid.New(), JoinedAt: now}, {ID: 2, UUID: uuid.New()}}},
		&types.CloseSubscriptionRequest{Topic: "t", Group: "g", Subscriber: types.NullSubscriber},
		&types.DestroySubscriptionRequest{Topic: "t", Group: "g", SubscriptionID: id},
	}

	c := New()
	for _, req := range cases {
		t.Run(req.Op().String(), func(t *testing.T) {
			data, err := c.EncodeRequest(req)
			require.NoError(t, err)
			got, err := c.DecodeRequest(data)
			require.NoError(t, err)
			assert.Equal(t, req, got)
		})
	}
}

func TestEnsureRequestForOlderPeer(t *testing.T) {
	req := &types.EnsureSubscriptionRequest{
		Topic: "t", Group: "g", Phase: types.PhasePin, Filter: "true",
		Converter: "value", FromBeginning: true, ConnectedAt: time.Now(),
	}
	c := New().ForPeer(Version1)
	data, err := c.EncodeRequest(req)
	require.NoError(t, err)

	got, err := New().DecodeRequest(data)
	require.NoError(t, err)
	ensure := got.(*types.EnsureSubscriptionRequest)
	assert.Equal(t, "true", ensure.Filter)
	assert.Empty(t, ensure.Converter)
	assert.False(t, ensure.FromBeginning)
	assert.True(t, ensure.ConnectedAt.IsZero())
}

func TestResponseRoundTrip(t *testing.T) {
	pos := types.Position{Page: 4, Offset: 2}
	cases := []types.Response{
		&types.OfferResponse{Status: types.OfferPageSealed, Page: 2, Accepted: 3, PageFreeBytes: 0, FirstOffset: 5, Notify: []int64{7}},
		&types.PollResponse{
			Status: types.PollOK, Remaining: 2, NextOffset: 3, Head: 1, NextPage: types.NoPage,
			Elements: []types.Element{{Position: types.Position{Page: 1, Offset: 0}, Value: []byte("a")}},
		},
		&types.PollResponse{Status: types.PollExhausted, Head: 1, NextPage: 2},
		&types.SeekResponse{Status: types.PollOK, Result: &types.SeekResult{Head: 4, Position: &pos}},
		&types.SeekResponse{Status: types.PollOK, Result: &types.SeekResult{Head: 4}},
		&types.SeekResponse{Status: types.PollNotAllocatedChannel},
		&types.CommitResponse{Status: types.CommitAlreadyCommitted, Committed: pos, Head: 4},
		types.NewAdvanceResponse(types.OpHeadAdvance, 3),
		&types.InitialiseResponse{Tails: []int64{0, 0, 1}},
		&types.HeartbeatResponse{},
		&types.EvictResponse{Removed: true},
		&types.CleanupResponse{
			Evicted: types.Evictions{{Topic: "t", Group: "g", Subscriber: types.SubscriberID{Member: 1}, Reason: types.EvictHeartbeatExpired}},
			Failed:  []string{"broken"},
		},
		&types.CloseSubscriptionResponse{Closed: 2},
		&types.DestroySubscriptionResponse{Destroyed: 17, Notify: []int64{3, 4}},
	}

	c := New()
	for i, resp := range cases {
		t.Run(fmt.Sprintf("%s/%d", resp.Op(), i), func(t *testing.T) {
			data, err := c.EncodeResponse(resp)
			require.NoError(t, err)
			got, err := c.DecodeResponse(data)
			require.NoError(t, err)
			assert.Equal(t, resp, got)
		})
	}
}

func TestResponseErrors(t *testing.T) {
	c := New()
	offer := &types.OfferResponse{
		Status:      types.OfferSuccess,
		FirstOffset: -1,
		Errors: map[int]error{
			0: types.ErrNilElement,
			2: fmt.Errorf("%w: 20 > 10", types.ErrElementTooLarge),
			3: errors.New("disk on fire"),
		},
	}
	data, err := c.EncodeResponse(offer)
	require.NoError(t, err)
	got, err := c.DecodeResponse(data)
	require.NoError(t, err)

	errs := got.(*types.OfferResponse).Errors
	require.Len(t, errs, 3)
	assert.Equal(t, types.ErrNilElement, errs[0])
	assert.ErrorIs(t, errs[2], types.ErrElementTooLarge)
	assert.Equal(t, "element exceeds maximum size: 20 > 10", errs[2].Error())
	assert.EqualError(t, errs[3], "disk on fire")

	ensure := &types.EnsureSubscriptionResponse{
		SubscriptionID: uuid.New(),
		Channels: types.ChannelPages{
			{Channel: 0, Page: 3},
			{Channel: 1, Page: types.NoPage, Err: types.ErrSubscriptionConflict},
		},
	}
	data, err = c.EncodeResponse(ensure)
	require.NoError(t, err)
	resp, err := c.DecodeResponse(data)
	require.NoError(t, err)
	pages := resp.(*types.EnsureSubscriptionResponse).Channels
	require.Len(t, pages, 2)
	assert.NoError(t, pages[0].Err)
	assert.ErrorIs(t, pages[1].Err, types.ErrSubscriptionConflict)
}

func TestUnknownOp(t *testing.T) {
	w := NewWriter(CurrentVersion)
	w.Int(opTag, 200)
	_, err := New().DecodeRequest(w.Bytes())
	assert.ErrorIs(t, err, ErrUnknownOpType)
	_, err = New().DecodeResponse(w.Bytes())
	assert.ErrorIs(t, err, ErrUnknownOpType)
}

func TestKeyOrdering(t *testing.T) {
	var keys [][]byte
	for _, page := range []int64{300, 2, 1, 256, 0} {
		keys = append(keys, PageKey(1, types.PageKey{Topic: "t", Channel: 1, Page: page}))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	prefix := PagePrefix(1, "t", 1)
	want := []int64{0, 1, 2, 256, 300}
	for i, k := range keys {
		require.True(t, bytes.HasPrefix(k, prefix))
		assert.Equal(t, PageKey(1, types.PageKey{Topic: "t", Channel: 1, Page: want[i]}), k)
	}

	other := PageKey(1, types.PageKey{Topic: "t", Channel: 2, Page: 0})
	assert.False(t, bytes.HasPrefix(other, prefix))
	assert.False(t, bytes.HasPrefix(PageKey(2, types.PageKey{Topic: "t", Channel: 1}), prefix))

	// A topic that extends another topic's name stays outside its prefix.
	assert.False(t, bytes.HasPrefix(
		SubscriptionKey(0, types.SubscriptionKey{Topic: "tt", Group: "g"}),
		SubscriptionTopicPrefix(0, "t"),
	))
	assert.True(t, bytes.HasPrefix(
		SubscriberKey(0, types.SubscriberKey{Topic: "t", Group: "g", Subscriber: types.SubscriberID{Member: 1}}),
		SubscriberGroupPrefix(0, "t", "g"),
	))
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte{'a', 'c'}, PrefixEnd([]byte{'a', 'b'}))
	assert.Equal(t, []byte{'b'}, PrefixEnd([]byte{'a', 0xff}))
	assert.Nil(t, PrefixEnd([]byte{0xff, 0xff}))
}
