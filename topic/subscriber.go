// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"context"
	"fmt"
	"time"

	"github.com/absmach/fluxtopic/topic/types"
)

// Subscriber reads one channel of one partition for a registered group
// member. It follows the subscription head, advances it past exhausted pages
// and blocks while the channel has nothing new.
type Subscriber struct {
	svc       *Service
	topic     string
	group     string
	id        types.SubscriberID
	partition int
	channel   int
	page      int64
	batch     int
	retry     time.Duration
	waiter    *Waiter
}

// NewSubscriber creates a reader of a channel. The subscriber must already be
// pinned with Subscribe. Batch bounds the elements returned per Receive.
func (s *Service) NewSubscriber(topic, group string, id types.SubscriberID, partition, channel, batch int) *Subscriber {
	return &Subscriber{
		svc:       s,
		topic:     topic,
		group:     group,
		id:        id,
		partition: partition,
		channel:   channel,
		page:      types.NoPage,
		batch:     batch,
		retry:     DefaultRetryInterval,
		waiter:    s.notifier.Register(),
	}
}

// Receive blocks until elements are available and returns them. It fails
// with ErrUnknownSubscriber or ErrNotAllocated when the caller must
// re-establish the subscription or re-resolve channel ownership.
func (s *Subscriber) Receive(ctx context.Context) ([]types.Element, error) {
	idle := false
	for {
		if s.page == types.NoPage {
			if err := s.resolveHead(ctx); err != nil {
				return nil, err
			}
		}
		resp, err := execute[*types.PollResponse](ctx, s.svc, s.partition, &types.PollRequest{
			Topic:         s.topic,
			Channel:       s.channel,
			Group:         s.group,
			Page:          s.page,
			MaxElements:   s.batch,
			NotifyOnEmpty: s.waiter.Token,
			Subscriber:    s.id,
		})
		if err != nil {
			return nil, err
		}

		switch resp.Status {
		case types.PollUnknownSubscriber:
			return nil, fmt.Errorf("%w: %s", ErrUnknownSubscriber, s.id)
		case types.PollNotAllocatedChannel:
			return nil, fmt.Errorf("%w: channel %d", ErrNotAllocated, s.channel)
		case types.PollExhausted:
			req := &types.HeadAdvanceRequest{Topic: s.topic, Channel: s.channel, Group: s.group, Proposed: resp.NextPage}
			if _, err := execute[*types.AdvanceResponse](ctx, s.svc, s.partition, req); err != nil {
				return nil, err
			}
			s.page = max(resp.NextPage, resp.Head)
			continue
		}

		if resp.Head != s.page {
			s.page = resp.Head
			continue
		}
		if len(resp.Elements) > 0 {
			return resp.Elements, nil
		}
		// Elements rejected by the filter still move the cursor; look again
		// once before parking.
		if resp.Remaining > 0 || !idle {
			idle = true
			continue
		}
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		idle = false
	}
}

func (s *Subscriber) resolveHead(ctx context.Context) error {
	resp, err := execute[*types.EnsureSubscriptionResponse](ctx, s.svc, s.partition, &types.EnsureSubscriptionRequest{
		Topic: s.topic,
		Group: s.group,
		Phase: types.PhaseInquire,
	})
	if err != nil {
		return err
	}
	if s.channel >= len(resp.Channels) || resp.Channels[s.channel].Page == types.NoPage {
		return fmt.Errorf("%w: %s/%s", types.ErrNoSubscription, s.topic, s.group)
	}
	s.page = resp.Channels[s.channel].Page
	return nil
}

func (s *Subscriber) wait(ctx context.Context) error {
	timer := time.NewTimer(s.retry)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.waiter.C:
	case <-timer.C:
	}
	return nil
}

// Commit acknowledges every element up to and including pos.
func (s *Subscriber) Commit(ctx context.Context, pos types.Position) (types.Position, error) {
	resp, err := execute[*types.CommitResponse](ctx, s.svc, s.partition, &types.CommitRequest{
		Topic:      s.topic,
		Channel:    s.channel,
		Group:      s.group,
		Position:   pos,
		Subscriber: s.id,
	})
	if err != nil {
		return types.PositionNone, err
	}
	switch resp.Status {
	case types.CommitNoSubscription:
		return resp.Committed, fmt.Errorf("%w: %s/%s", types.ErrNoSubscription, s.topic, s.group)
	case types.CommitNotAllocatedChannel:
		return resp.Committed, fmt.Errorf("%w: channel %d", ErrNotAllocated, s.channel)
	}
	return resp.Committed, nil
}

// Seek moves the read cursor; the next Receive returns the element after the
// resulting position.
func (s *Subscriber) Seek(ctx context.Context, target types.Position) (*types.SeekResult, error) {
	resp, err := execute[*types.SeekResponse](ctx, s.svc, s.partition, &types.SeekRequest{
		Topic:      s.topic,
		Channel:    s.channel,
		Group:      s.group,
		Target:     target,
		Subscriber: s.id,
	})
	if err != nil {
		return nil, err
	}
	switch resp.Status {
	case types.PollUnknownSubscriber:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubscriber, s.id)
	case types.PollNotAllocatedChannel:
		return nil, fmt.Errorf("%w: channel %d", ErrNotAllocated, s.channel)
	}
	s.page = resp.Result.Head
	return resp.Result, nil
}

// Close releases the subscriber's notification token.
func (s *Subscriber) Close() {
	s.waiter.Close()
}
