// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"context"
	"time"

	"github.com/absmach/fluxtopic/topic/types"
)

// DefaultRetryInterval is the fallback wake-up of a blocked publisher or
// subscriber in case a notification is missed.
const DefaultRetryInterval = 100 * time.Millisecond

// Publisher appends elements to one channel of one partition, advancing the
// tail when pages fill up and blocking while the topic is full.
type Publisher struct {
	svc       *Service
	topic     string
	partition int
	channel   int
	retry     time.Duration
	waiter    *Waiter
}

// PublishResult reports where each element went. Positions and Errors are
// indexed like the published elements; an element has either a position or
// an error.
type PublishResult struct {
	Positions []types.Position
	Errors    map[int]error
}

// NewPublisher creates a publisher for a topic channel on the partition the
// key routes to.
func (s *Service) NewPublisher(topic, key string, channel int) *Publisher {
	return &Publisher{
		svc:       s,
		topic:     topic,
		partition: s.Route(key),
		channel:   channel,
		retry:     DefaultRetryInterval,
		waiter:    s.notifier.Register(),
	}
}

// Partition returns the partition the publisher writes to.
func (p *Publisher) Partition() int {
	return p.partition
}

// Publish appends all elements in order. It returns once every element is
// either stored or rejected, or when ctx ends.
func (p *Publisher) Publish(ctx context.Context, elements [][]byte) (PublishResult, error) {
	if err := types.ValidateTopic(p.topic); err != nil {
		return PublishResult{}, err
	}
	res := PublishResult{Positions: make([]types.Position, len(elements))}
	for i := range res.Positions {
		res.Positions[i] = types.PositionNone
	}

	base := 0
	for base < len(elements) {
		resp, err := execute[*types.OfferResponse](ctx, p.svc, p.partition, &types.OfferRequest{
			Topic:         p.topic,
			Channel:       p.channel,
			Elements:      elements[base:],
			NotifyOnSpace: p.waiter.Token,
		})
		if err != nil {
			return res, err
		}

		done := resp.Accepted + len(resp.Errors)
		offset := resp.FirstOffset
		for i := range done {
			if err, ok := resp.Errors[i]; ok {
				if res.Errors == nil {
					res.Errors = make(map[int]error)
				}
				res.Errors[base+i] = err
				continue
			}
			res.Positions[base+i] = types.Position{Page: resp.Page, Offset: offset}
			offset++
		}
		base += done

		switch resp.Status {
		case types.OfferPageSealed:
			req := &types.TailAdvanceRequest{Topic: p.topic, Channel: p.channel, Proposed: resp.Page + 1}
			if _, err := execute[*types.AdvanceResponse](ctx, p.svc, p.partition, req); err != nil {
				return res, err
			}
		case types.OfferTopicFull:
			if err := p.wait(ctx); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

func (p *Publisher) wait(ctx context.Context) error {
	timer := time.NewTimer(p.retry)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.waiter.C:
	case <-timer.C:
	}
	return nil
}

// Close releases the publisher's notification token.
func (p *Publisher) Close() {
	p.waiter.Close()
}
