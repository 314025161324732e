// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/types"
)

// commit acknowledges every element of a channel up to and including a
// position. Committing at or behind the committed position succeeds without
// effect, so retried commits are safe.
func (e *Engine) commit(rec storage.Records, req *types.CommitRequest) (*types.CommitResponse, error) {
	cfg := e.Config(req.Topic)
	if err := checkChannel(cfg, req.Channel); err != nil {
		return nil, err
	}
	sub, status, err := member(rec, req.Topic, req.Channel, req.Group, req.Subscriber)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &types.CommitResponse{
			Status:    types.CommitNoSubscription,
			Committed: types.PositionNone,
			Head:      types.NoPage,
		}, nil
	}

	// Only the registered owner of the current generation may commit.
	resp := &types.CommitResponse{Committed: sub.Committed, Head: sub.Head}
	if status != types.PollOK || req.Subscriber.IsNull() {
		resp.Status = types.CommitNotAllocatedChannel
		return resp, nil
	}

	u, err := e.ensureChannel(rec, req.Topic, req.Channel)
	if err != nil {
		return nil, err
	}
	upper, err := lastWritten(rec, u)
	if err != nil {
		return nil, err
	}
	pos := types.MinPosition(req.Position, upper)
	if !sub.Committed.Less(pos) {
		resp.Status = types.CommitAlreadyCommitted
		return resp, nil
	}

	sub.Committed = pos
	if sub.Read.Less(pos) {
		sub.Read = pos
	}
	if err := rec.PutSubscription(sub); err != nil {
		return nil, err
	}
	notify, err := e.retain(rec, cfg, u)
	if err != nil {
		return nil, err
	}
	if err := rec.PutUsage(u); err != nil {
		return nil, err
	}

	resp.Status = types.CommitCommitted
	resp.Committed = pos
	resp.Notify = notify
	return resp, nil
}
