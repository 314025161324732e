// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package topic implements the partition-local engine of a paged, channelled
// publish/subscribe topic, and the host components that route operations to
// partitions and turn the non-blocking operations into blocking publish and
// subscribe loops.
package topic

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/types"
)

// Engine applies atomic operations to the records of one partition. It holds
// no per-partition state, so a single Engine serves every partition.
type Engine struct {
	configs    types.TopicConfigs
	allocators map[types.AllocationStrategy]Allocator
	exprs      *exprCache
	now        func() time.Time
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTopicConfigs sets the topic configuration resolver.
func WithTopicConfigs(c types.TopicConfigs) EngineOption {
	return func(e *Engine) { e.configs = c }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithAllocator registers the allocator used for a strategy.
func WithAllocator(s types.AllocationStrategy, a Allocator) EngineOption {
	return func(e *Engine) { e.allocators[s] = a }
}

// NewEngine creates an engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		configs: types.TopicConfigs{Defaults: types.DefaultTopicConfig()},
		allocators: map[types.AllocationStrategy]Allocator{
			types.AllocateRoundRobin: RoundRobinAllocator{},
			types.AllocateHash:       HashAllocator{},
		},
		exprs: newExprCache(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Config returns the effective configuration of a topic.
func (e *Engine) Config(topic string) types.TopicConfig {
	return e.configs.For(topic)
}

// Apply executes one request against a partition's records. Capacity and
// protocol conditions are reported in the response; an error means the
// operation must be rolled back.
func (e *Engine) Apply(rec storage.Records, req types.Request) (types.Response, error) {
	switch r := req.(type) {
	case *types.OfferRequest:
		return e.offer(rec, r)
	case *types.PollRequest:
		return e.poll(rec, r)
	case *types.SeekRequest:
		return e.seek(rec, r)
	case *types.CommitRequest:
		return e.commit(rec, r)
	case *types.EnsureSubscriptionRequest:
		return e.ensureSubscription(rec, r)
	case *types.HeadAdvanceRequest:
		return e.headAdvance(rec, r)
	case *types.TailAdvanceRequest:
		return e.tailAdvance(rec, r)
	case *types.InitialiseRequest:
		return e.initialise(rec, r)
	case *types.HeartbeatRequest:
		return e.heartbeat(rec, r)
	case *types.EvictRequest:
		return e.evict(rec, r)
	case *types.CleanupRequest:
		return e.cleanup(rec, r)
	case *types.CloseSubscriptionRequest:
		return e.closeSubscription(rec, r)
	case *types.DestroySubscriptionRequest:
		return e.destroySubscription(rec, r)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownOperation, req)
	}
}

func checkChannel(cfg types.TopicConfig, channel int) error {
	if channel < 0 || channel >= cfg.Channels {
		return fmt.Errorf("%w: %d not in [0, %d)", types.ErrInvalidChannel, channel, cfg.Channels)
	}
	return nil
}

// ensureChannel returns the usage of a channel, creating it and the first tail
// page on first use.
func (e *Engine) ensureChannel(rec storage.Records, topic string, channel int) (*types.Usage, error) {
	key := types.UsageKey{Topic: topic, Channel: channel}
	u, err := rec.Usage(key)
	if err != nil || u != nil {
		return u, err
	}

	u = types.NewUsage(key)
	pk := types.PageKey{Topic: topic, Channel: channel, Page: u.PublicationTail}
	p, err := rec.Page(pk)
	if err != nil {
		return nil, err
	}
	if p == nil {
		if err := rec.PutPage(types.NewPage(pk, types.NoPage, e.now())); err != nil {
			return nil, err
		}
	}
	if err := rec.PutUsage(u); err != nil {
		return nil, err
	}
	return u, nil
}

// tailPage loads the page a channel's publishers target.
func tailPage(rec storage.Records, u *types.Usage) (*types.Page, error) {
	key := types.PageKey{Topic: u.Key.Topic, Channel: u.Key.Channel, Page: u.PublicationTail}
	p, err := rec.Page(key)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: tail page %d of %s/%d missing", ErrCorruptState, key.Page, key.Topic, key.Channel)
	}
	return p, nil
}

// lastWritten returns the position of the last element written to a channel.
func lastWritten(rec storage.Records, u *types.Usage) (types.Position, error) {
	p, err := tailPage(rec, u)
	if err != nil {
		return types.PositionNone, err
	}
	return p.Last(), nil
}
