// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"testing"

	"github.com/absmach/fluxtopic/topic/codec"
	"github.com/absmach/fluxtopic/topic/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	svc := newTestService(t, smallConfig(), 2)
	ctx := testContext(t)
	c := codec.New()
	h := NewHandler(svc, c)

	payload, err := c.EncodeRequest(&types.OfferRequest{Topic: testTopic, Channel: 1, Elements: [][]byte{[]byte("x"), nil}})
	require.NoError(t, err)
	out, err := h.Handle(ctx, 1, payload, codec.CurrentVersion)
	require.NoError(t, err)

	resp, err := c.DecodeResponse(out)
	require.NoError(t, err)
	offer, ok := resp.(*types.OfferResponse)
	require.True(t, ok)
	assert.Equal(t, 1, offer.Accepted)
	assert.ErrorIs(t, offer.Errors[1], types.ErrNilElement)

	payload, err = c.EncodeRequest(&types.EnsureSubscriptionRequest{Topic: testTopic, Group: "G", Subscriber: subA, Phase: types.PhasePin})
	require.NoError(t, err)
	out, err = h.Handle(ctx, 0, payload, codec.Version1)
	require.NoError(t, err)
	r, err := codec.NewReader(out)
	require.NoError(t, err)
	assert.Equal(t, codec.Version1, r.Version())

	_, err = h.Handle(ctx, 0, []byte{1, 2, 3}, codec.CurrentVersion)
	assert.ErrorIs(t, err, codec.ErrCorrupt)
}
