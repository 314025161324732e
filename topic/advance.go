// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/types"
)

// advanceIfGreater stores proposed only if it is strictly greater than the
// current value and returns the value held before the call. A caller won the
// advance when the returned value is lower than its proposal, so a retried
// advance never moves the pointer twice.
func advanceIfGreater(current *int64, proposed int64) int64 {
	prev := *current
	if proposed > prev {
		*current = proposed
	}
	return prev
}

func (e *Engine) tailAdvance(rec storage.Records, req *types.TailAdvanceRequest) (*types.AdvanceResponse, error) {
	cfg := e.Config(req.Topic)
	if err := checkChannel(cfg, req.Channel); err != nil {
		return nil, err
	}
	u, err := e.ensureChannel(rec, req.Topic, req.Channel)
	if err != nil {
		return nil, err
	}

	prev := advanceIfGreater(&u.PublicationTail, req.Proposed)
	resp := types.NewAdvanceResponse(types.OpTailAdvance, prev)
	if req.Proposed <= prev {
		return resp, nil
	}

	old, err := rec.Page(types.PageKey{Topic: req.Topic, Channel: req.Channel, Page: prev})
	if err != nil {
		return nil, err
	}
	if old != nil {
		old.Sealed = true
		old.Next = req.Proposed
		if err := rec.PutPage(old); err != nil {
			return nil, err
		}
	}

	key := types.PageKey{Topic: req.Topic, Channel: req.Channel, Page: req.Proposed}
	next, err := rec.Page(key)
	if err != nil {
		return nil, err
	}
	if next == nil {
		if err := rec.PutPage(types.NewPage(key, prev, e.now())); err != nil {
			return nil, err
		}
	}

	released, err := e.retain(rec, cfg, u)
	if err != nil {
		return nil, err
	}
	// Subscribers parked on the sealed page can move on to the new one.
	resp.Notify = append(released, u.ReleaseSubscribers()...)
	if err := rec.PutUsage(u); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) headAdvance(rec storage.Records, req *types.HeadAdvanceRequest) (*types.AdvanceResponse, error) {
	cfg := e.Config(req.Topic)
	if err := checkChannel(cfg, req.Channel); err != nil {
		return nil, err
	}
	key := types.SubscriptionKey{Topic: req.Topic, Channel: req.Channel, Group: req.Group}
	sub, err := rec.Subscription(key)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		// Destroyed concurrently; nothing to advance.
		return types.NewAdvanceResponse(types.OpHeadAdvance, types.NoPage), nil
	}

	prev, notify, err := e.advanceHead(rec, cfg, sub, req.Proposed)
	if err != nil {
		return nil, err
	}
	resp := types.NewAdvanceResponse(types.OpHeadAdvance, prev)
	resp.Notify = notify
	return resp, nil
}

// advanceHead moves a subscription head forward, drags the read cursor along
// and applies retention to the channel.
func (e *Engine) advanceHead(rec storage.Records, cfg types.TopicConfig, sub *types.Subscription, proposed int64) (int64, []int64, error) {
	prev := advanceIfGreater(&sub.Head, proposed)
	if proposed <= prev {
		return prev, nil, nil
	}
	if sub.Read.Page < proposed {
		sub.Read = types.Position{Page: proposed, Offset: -1}
	}
	if err := rec.PutSubscription(sub); err != nil {
		return prev, nil, err
	}

	u, err := e.ensureChannel(rec, sub.Key.Topic, sub.Key.Channel)
	if err != nil {
		return prev, nil, err
	}
	notify, err := e.retain(rec, cfg, u)
	if err != nil {
		return prev, nil, err
	}
	if err := rec.PutUsage(u); err != nil {
		return prev, nil, err
	}
	return prev, notify, nil
}

func (e *Engine) initialise(rec storage.Records, req *types.InitialiseRequest) (*types.InitialiseResponse, error) {
	cfg := e.Config(req.Topic)
	tails := make([]int64, cfg.Channels)
	for c := range tails {
		u, err := e.ensureChannel(rec, req.Topic, c)
		if err != nil {
			return nil, err
		}
		tails[c] = u.PublicationTail
	}
	return &types.InitialiseResponse{Tails: tails}, nil
}
