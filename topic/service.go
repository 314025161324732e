// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"context"
	"fmt"
	"hash"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Hash pool for partition routing.
var hashPool = sync.Pool{
	New: func() any {
		return fnv.New32a()
	},
}

// Observer receives the outcome of every executed operation.
type Observer interface {
	Observe(ctx context.Context, partition int, req types.Request, resp types.Response, err error, elapsed time.Duration)
}

// Service executes engine operations on the partitions of a store and wakes
// the publishers and subscribers whose tokens an operation released.
type Service struct {
	exec     *storage.Executor
	engine   *Engine
	notifier *Notifier
	observer Observer
	owned    func() []int
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithObserver sets the operation observer.
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithOwnedPartitions sets the function listing partitions owned by this
// node. By default every partition is owned.
func WithOwnedPartitions(fn func() []int) ServiceOption {
	return func(s *Service) { s.owned = fn }
}

// WithNotifier shares a notifier between services.
func WithNotifier(n *Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// NewService creates a service over an executor.
func NewService(exec *storage.Executor, engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{
		exec:   exec,
		engine: engine,
	}
	for _, o := range opts {
		o(s)
	}
	if s.engine == nil {
		s.engine = NewEngine()
	}
	if s.notifier == nil {
		s.notifier = NewNotifier()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.owned == nil {
		s.owned = s.allPartitions
	}
	return s
}

// Engine returns the engine applied to every partition.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Notifier returns the token registry fired by the service.
func (s *Service) Notifier() *Notifier {
	return s.notifier
}

// Partitions returns the number of partitions.
func (s *Service) Partitions() int {
	return s.exec.Partitions()
}

// OwnedPartitions returns the partitions this node owns.
func (s *Service) OwnedPartitions() []int {
	return s.owned()
}

func (s *Service) allPartitions() []int {
	ps := make([]int, s.exec.Partitions())
	for i := range ps {
		ps[i] = i
	}
	return ps
}

// Route returns the partition a key is stored in.
func (s *Service) Route(key string) int {
	hasher := hashPool.Get().(hash.Hash32)
	defer func() {
		hasher.Reset()
		hashPool.Put(hasher)
	}()

	hasher.Write([]byte(key))
	return int(hasher.Sum32() % uint32(s.exec.Partitions()))
}

// Execute applies one request to a partition and fires the tokens it released.
func (s *Service) Execute(ctx context.Context, partition int, req types.Request) (types.Response, error) {
	start := time.Now()
	var resp types.Response
	err := s.exec.Execute(ctx, partition, func(rec storage.Records) error {
		r, err := s.engine.Apply(rec, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if s.observer != nil {
		s.observer.Observe(ctx, partition, req, resp, err, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("%s on partition %d: %w", req.Op(), partition, err)
	}
	s.notifier.Fire(notifyTokens(resp))
	return resp, nil
}

func notifyTokens(resp types.Response) []int64 {
	switch r := resp.(type) {
	case *types.OfferResponse:
		return r.Notify
	case *types.CommitResponse:
		return r.Notify
	case *types.AdvanceResponse:
		return r.Notify
	case *types.DestroySubscriptionResponse:
		return r.Notify
	default:
		return nil
	}
}

// execute runs a request and asserts the response type.
func execute[T types.Response](ctx context.Context, s *Service, partition int, req types.Request) (T, error) {
	var zero T
	resp, err := s.Execute(ctx, partition, req)
	if err != nil {
		return zero, err
	}
	out, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T for %s", ErrUnexpectedResult, resp, req.Op())
	}
	return out, nil
}

// fanOut runs a request on every partition and returns the responses indexed
// by partition.
func fanOut[T types.Response](ctx context.Context, s *Service, req types.Request) ([]T, error) {
	out := make([]T, s.exec.Partitions())
	g, ctx := errgroup.WithContext(ctx)
	for p := range out {
		g.Go(func() error {
			resp, err := execute[T](ctx, s, p, req)
			if err != nil {
				return err
			}
			out[p] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Initialise prepares every channel of a topic on every partition and returns
// the tails indexed by partition and channel.
func (s *Service) Initialise(ctx context.Context, topic string) ([][]int64, error) {
	if err := types.ValidateTopic(topic); err != nil {
		return nil, err
	}
	resps, err := fanOut[*types.InitialiseResponse](ctx, s, &types.InitialiseRequest{Topic: topic})
	if err != nil {
		return nil, err
	}
	tails := make([][]int64, len(resps))
	for p, r := range resps {
		tails[p] = r.Tails
	}
	return tails, nil
}

// EnsureSubscription runs one phase of the subscription state machine on every
// partition. Channel failures are left in the responses.
func (s *Service) EnsureSubscription(ctx context.Context, req *types.EnsureSubscriptionRequest) ([]*types.EnsureSubscriptionResponse, error) {
	return fanOut[*types.EnsureSubscriptionResponse](ctx, s, req)
}

// Subscribe pins a subscriber on every partition and returns the subscription
// id every partition agreed on.
func (s *Service) Subscribe(ctx context.Context, req types.EnsureSubscriptionRequest) (uuid.UUID, error) {
	if err := types.ValidateTopic(req.Topic); err != nil {
		return uuid.Nil, err
	}
	if err := types.ValidateGroup(req.Group); err != nil {
		return uuid.Nil, err
	}
	req.Phase = types.PhasePin
	if req.ConnectedAt.IsZero() {
		req.ConnectedAt = time.Now()
	}
	resps, err := s.EnsureSubscription(ctx, &req)
	if err != nil {
		return uuid.Nil, err
	}
	id := uuid.Nil
	for p, r := range resps {
		if _, err := r.Channels.AssertPages(); err != nil {
			return uuid.Nil, fmt.Errorf("partition %d: %w", p, err)
		}
		switch {
		case id == uuid.Nil:
			id = r.SubscriptionID
		case id != r.SubscriptionID:
			return uuid.Nil, fmt.Errorf("%w: partition %d reports subscription %s, expected %s", ErrUnexpectedResult, p, r.SubscriptionID, id)
		}
	}
	s.logger.Debug("subscriber pinned",
		slog.String("topic", req.Topic),
		slog.String("group", req.Group),
		slog.String("subscriber", req.Subscriber.String()),
		slog.String("subscription_id", id.String()))
	return id, nil
}

// Heartbeat refreshes a subscriber on every partition.
func (s *Service) Heartbeat(ctx context.Context, req *types.HeartbeatRequest) error {
	_, err := fanOut[*types.HeartbeatResponse](ctx, s, req)
	return err
}

// Evict removes a subscriber from every partition and reports whether any
// partition knew it.
func (s *Service) Evict(ctx context.Context, req *types.EvictRequest) (bool, error) {
	resps, err := fanOut[*types.EvictResponse](ctx, s, req)
	if err != nil {
		return false, err
	}
	removed := false
	for _, r := range resps {
		removed = removed || r.Removed
	}
	return removed, nil
}

// CloseSubscription detaches a subscriber, or every subscriber of the group
// with NullSubscriber, on every partition.
func (s *Service) CloseSubscription(ctx context.Context, req *types.CloseSubscriptionRequest) (int, error) {
	resps, err := fanOut[*types.CloseSubscriptionResponse](ctx, s, req)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, r := range resps {
		closed += r.Closed
	}
	return closed, nil
}

// DestroySubscription deletes a group's subscription on every partition and
// returns the number of channel records removed.
func (s *Service) DestroySubscription(ctx context.Context, req *types.DestroySubscriptionRequest) (int, error) {
	resps, err := fanOut[*types.DestroySubscriptionResponse](ctx, s, req)
	if err != nil {
		return 0, err
	}
	destroyed := 0
	for _, r := range resps {
		destroyed += r.Destroyed
	}
	return destroyed, nil
}

// Cleanup sweeps one partition against a membership snapshot.
func (s *Service) Cleanup(ctx context.Context, partition int, members []types.Member) (*types.CleanupResponse, error) {
	return execute[*types.CleanupResponse](ctx, s, partition, &types.CleanupRequest{Members: members})
}

// Close stops the executor and its backend.
func (s *Service) Close() error {
	return s.exec.Close()
}
