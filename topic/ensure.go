// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"fmt"
	"log/slog"

	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/types"
	"github.com/google/uuid"
)

// ensureSubscription drives a group through INQUIRE, PIN and ADVANCE on every
// channel of the partition. Failures are reported per channel.
func (e *Engine) ensureSubscription(rec storage.Records, req *types.EnsureSubscriptionRequest) (*types.EnsureSubscriptionResponse, error) {
	cfg := e.Config(req.Topic)
	resp := &types.EnsureSubscriptionResponse{
		SubscriptionID: req.SubscriptionID,
		Channels:       make(types.ChannelPages, cfg.Channels),
	}
	for c := range resp.Channels {
		resp.Channels[c] = types.ChannelPage{Channel: c, Page: types.NoPage}
	}

	var err error
	switch req.Phase {
	case types.PhaseInquire:
		err = e.inquire(rec, req, resp)
	case types.PhasePin:
		err = e.pin(rec, cfg, req, resp)
	case types.PhaseAdvance:
		err = e.advance(rec, cfg, req, resp)
	default:
		for c := range resp.Channels {
			resp.Channels[c].Err = fmt.Errorf("%w: %d", types.ErrInvalidPhase, req.Phase)
		}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) inquire(rec storage.Records, req *types.EnsureSubscriptionRequest, resp *types.EnsureSubscriptionResponse) error {
	for c := range resp.Channels {
		sub, err := rec.Subscription(types.SubscriptionKey{Topic: req.Topic, Channel: c, Group: req.Group})
		if err != nil {
			return err
		}
		if sub != nil {
			resp.Channels[c].Page = sub.Head
			resp.SubscriptionID = sub.SubscriptionID
		}
	}
	return nil
}

func (e *Engine) pin(rec storage.Records, cfg types.TopicConfig, req *types.EnsureSubscriptionRequest, resp *types.EnsureSubscriptionResponse) error {
	if err := e.exprs.validate(req.Filter, req.Converter); err != nil {
		for c := range resp.Channels {
			resp.Channels[c].Err = err
		}
		return nil
	}
	others, err := otherSubscribers(rec, req.Topic, req.Group, req.Subscriber)
	if err != nil {
		return err
	}

	subs := make([]*types.Subscription, cfg.Channels)
	id, recreate := req.SubscriptionID, false
	for c := range subs {
		sub, err := rec.Subscription(types.SubscriptionKey{Topic: req.Topic, Channel: c, Group: req.Group})
		if err != nil || sub == nil {
			if err != nil {
				return err
			}
			continue
		}
		subs[c] = sub
		switch {
		case sub.Filter == req.Filter && sub.Converter == req.Converter:
			if !recreate {
				id = sub.SubscriptionID
			}
		case others > 0:
			resp.Channels[c].Err = types.ErrSubscriptionConflict
		case !recreate:
			recreate = true
			if id == uuid.Nil || id == sub.SubscriptionID {
				id = nextGeneration(sub.SubscriptionID, req.Filter, req.Converter)
			}
		}
	}
	if id == uuid.Nil {
		id = firstGeneration(req.Topic, req.Group)
	}

	for c, sub := range subs {
		if resp.Channels[c].Err != nil {
			continue
		}
		key := types.SubscriptionKey{Topic: req.Topic, Channel: c, Group: req.Group}
		u, err := e.ensureChannel(rec, req.Topic, c)
		if err != nil {
			return err
		}
		switch {
		case sub == nil || (recreate && sub.SubscriptionID != id):
			head := u.PublicationTail
			if req.FromBeginning {
				head = u.Oldest
			}
			sub = types.NewSubscription(key, id, head, e.now())
			sub.Filter = req.Filter
			sub.Converter = req.Converter
		case req.Reconnect && sub.Owner == req.Subscriber:
			sub.Rewind()
		}
		if err := rec.PutSubscription(sub); err != nil {
			return err
		}
		resp.Channels[c].Page = sub.Head
	}
	resp.SubscriptionID = id
	if recreate {
		e.logger.Info("subscription group recreated with new expressions",
			slog.String("topic", req.Topic),
			slog.String("group", req.Group),
			slog.String("subscription_id", id.String()))
	}

	if !req.CreateGroupOnly && !req.Subscriber.IsNull() && !resp.Channels.Failed() {
		if _, err := e.upsertSubscriber(rec, req.Topic, req.Group, req.Subscriber, id, req.ConnectedAt); err != nil {
			return err
		}
	}
	return e.reallocate(rec, cfg, req.Topic, req.Group)
}

// firstGeneration derives the id of a group's first generation, so every
// partition agrees on it without coordination.
func firstGeneration(topic, group string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("topic:"+topic+"/"+group))
}

// nextGeneration derives the id of the generation that replaces prev.
func nextGeneration(prev uuid.UUID, filter, converter string) uuid.UUID {
	return uuid.NewSHA1(prev, []byte(filter+"\x00"+converter))
}

func (e *Engine) advance(rec storage.Records, cfg types.TopicConfig, req *types.EnsureSubscriptionRequest, resp *types.EnsureSubscriptionResponse) error {
	if len(req.Pages) != cfg.Channels {
		err := fmt.Errorf("%w: got %d pages for %d channels", types.ErrMissingPages, len(req.Pages), cfg.Channels)
		for c := range resp.Channels {
			resp.Channels[c].Err = err
		}
		return nil
	}
	for c := range resp.Channels {
		sub, err := rec.Subscription(types.SubscriptionKey{Topic: req.Topic, Channel: c, Group: req.Group})
		if err != nil {
			return err
		}
		if sub == nil {
			resp.Channels[c].Err = types.ErrNoSubscription
			continue
		}
		if _, _, err := e.advanceHead(rec, cfg, sub, req.Pages[c]); err != nil {
			return err
		}
		resp.Channels[c].Page = sub.Head
		resp.SubscriptionID = sub.SubscriptionID
	}
	return nil
}

// otherSubscribers counts the group's subscribers other than s.
func otherSubscribers(rec storage.Records, topic, group string, s types.SubscriberID) (int, error) {
	infos, err := rec.Subscribers(topic, group)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, i := range infos {
		if i.Key.Subscriber != s {
			n++
		}
	}
	return n, nil
}
