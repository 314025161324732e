// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"slices"

	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/types"
)

// member resolves the subscription of a channel and checks that subscriber is
// registered in the current generation and owns the channel.
func member(rec storage.Records, topic string, channel int, group string, subscriber types.SubscriberID) (*types.Subscription, types.PollStatus, error) {
	sub, err := rec.Subscription(types.SubscriptionKey{Topic: topic, Channel: channel, Group: group})
	if err != nil || sub == nil {
		return sub, types.PollUnknownSubscriber, err
	}
	info, err := rec.SubscriberInfo(types.SubscriberKey{Topic: topic, Group: group, Subscriber: subscriber})
	if err != nil {
		return nil, types.PollUnknownSubscriber, err
	}
	if info == nil || info.SubscriptionID != sub.SubscriptionID {
		return sub, types.PollUnknownSubscriber, nil
	}
	if sub.Owner != subscriber {
		return sub, types.PollNotAllocatedChannel, nil
	}
	return sub, types.PollOK, nil
}

func (e *Engine) poll(rec storage.Records, req *types.PollRequest) (*types.PollResponse, error) {
	cfg := e.Config(req.Topic)
	if err := checkChannel(cfg, req.Channel); err != nil {
		return nil, err
	}
	sub, status, err := member(rec, req.Topic, req.Channel, req.Group, req.Subscriber)
	if err != nil {
		return nil, err
	}
	resp := &types.PollResponse{Status: status, Head: types.NoPage, NextPage: types.NoPage}
	if sub != nil {
		resp.Head = sub.Head
	}
	if status != types.PollOK {
		return resp, nil
	}

	u, err := e.ensureChannel(rec, req.Topic, req.Channel)
	if err != nil {
		return nil, err
	}
	switch {
	case req.Page < sub.Head:
		resp.Status = types.PollExhausted
		resp.NextPage = sub.Head
		return resp, nil
	case req.Page > sub.Head:
		// The head was moved back by a rewind or seek; the caller follows Head.
		return resp, nil
	}

	page, err := rec.Page(types.PageKey{Topic: req.Topic, Channel: req.Channel, Page: req.Page})
	if err != nil {
		return nil, err
	}
	if page == nil {
		if req.Page < u.PublicationTail {
			next, err := nextPageAfter(rec, req.Topic, req.Channel, req.Page, u.PublicationTail)
			if err != nil {
				return nil, err
			}
			resp.Status = types.PollExhausted
			resp.NextPage = next
			return resp, nil
		}
		// Not written yet.
		return resp, e.parkSubscriber(rec, u, req.NotifyOnEmpty)
	}

	start := 0
	switch {
	case sub.Read.Page == req.Page:
		start = int(sub.Read.Offset) + 1
	case sub.Read.Page > req.Page:
		start = page.Len()
	}
	resp.NextOffset = int32(start)

	if start >= page.Len() {
		if page.Sealed {
			resp.Status = types.PollExhausted
			resp.NextPage = page.Next
			if page.Next == types.NoPage {
				// Successor not linked yet; publishers always propose
				// the page after a sealed tail.
				resp.NextPage = page.Key.Page + 1
			}
			return resp, nil
		}
		return resp, e.parkSubscriber(rec, u, req.NotifyOnEmpty)
	}

	view, err := e.exprs.view(sub)
	if err != nil {
		return nil, err
	}
	limit := req.MaxElements
	if limit <= 0 {
		limit = page.Len()
	}
	i := start
	for ; i < page.Len() && len(resp.Elements) < limit; i++ {
		pos := types.Position{Page: req.Page, Offset: int32(i)}
		if v, ok := view.apply(pos, req.Channel, page.Elements[i]); ok {
			resp.Elements = append(resp.Elements, types.Element{Position: pos, Value: v})
		}
	}
	resp.NextOffset = int32(i)
	resp.Remaining = page.Len() - i

	sub.Read = types.Position{Page: req.Page, Offset: int32(i - 1)}
	if err := rec.PutSubscription(sub); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) parkSubscriber(rec storage.Records, u *types.Usage, token int64) error {
	if token == 0 || slices.Contains(u.WaitingSubscribers, token) {
		return nil
	}
	u.ParkSubscriber(token)
	return rec.PutUsage(u)
}

// nextPageAfter returns the lowest stored page of a channel above page, or the
// tail when every page in between was dropped.
func nextPageAfter(rec storage.Records, topic string, channel int, page, tail int64) (int64, error) {
	ids, err := rec.PageIDs(topic, channel)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if id > page {
			return id, nil
		}
	}
	return tail, nil
}

// seek moves the group's read cursor of a channel. The target is clamped to
// [committed, last written]; the element after the resulting position is the
// next one handed out, and the head follows the cursor's page.
func (e *Engine) seek(rec storage.Records, req *types.SeekRequest) (*types.SeekResponse, error) {
	cfg := e.Config(req.Topic)
	if err := checkChannel(cfg, req.Channel); err != nil {
		return nil, err
	}
	sub, status, err := member(rec, req.Topic, req.Channel, req.Group, req.Subscriber)
	if err != nil {
		return nil, err
	}
	if status != types.PollOK {
		return &types.SeekResponse{Status: status}, nil
	}

	u, err := e.ensureChannel(rec, req.Topic, req.Channel)
	if err != nil {
		return nil, err
	}
	upper, err := lastWritten(rec, u)
	if err != nil {
		return nil, err
	}

	target := types.MaxPosition(sub.Committed, types.MinPosition(req.Target, upper))
	if target.Page < upper.Page {
		page, err := rec.Page(types.PageKey{Topic: req.Topic, Channel: req.Channel, Page: target.Page})
		if err != nil {
			return nil, err
		}
		if page != nil && target.Offset > page.Last().Offset {
			target.Offset = page.Last().Offset
		}
		target = types.MaxPosition(sub.Committed, target)
	}

	sub.Read = target
	sub.Head = target.Page
	if err := rec.PutSubscription(sub); err != nil {
		return nil, err
	}
	return &types.SeekResponse{
		Status: types.PollOK,
		Result: &types.SeekResult{Head: sub.Head, Position: &target},
	}, nil
}
