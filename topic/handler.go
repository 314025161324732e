// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"context"
	"fmt"

	"github.com/absmach/fluxtopic/topic/codec"
)

// Handler executes encoded operations received from cluster peers.
type Handler struct {
	svc   *Service
	codec *codec.Codec
}

// NewHandler creates a handler encoding with c.
func NewHandler(svc *Service, c *codec.Codec) *Handler {
	if c == nil {
		c = codec.New()
	}
	return &Handler{svc: svc, codec: c}
}

// Handle decodes a request addressed to a partition, executes it and encodes
// the response so that a peer speaking peerVersion can read it.
func (h *Handler) Handle(ctx context.Context, partition int, payload []byte, peerVersion uint16) ([]byte, error) {
	req, err := h.codec.DecodeRequest(payload)
	if err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	resp, err := h.svc.Execute(ctx, partition, req)
	if err != nil {
		return nil, err
	}
	out, err := h.codec.ForPeer(peerVersion).EncodeResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("encode %s response: %w", req.Op(), err)
	}
	return out, nil
}
