// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"log/slog"
	"time"

	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/types"
	"github.com/google/uuid"
)

// upsertSubscriber refreshes a subscriber's liveness record and reports whether
// the subscriber was not registered before.
func (e *Engine) upsertSubscriber(rec storage.Records, topic, group string, s types.SubscriberID, id uuid.UUID, connectedAt time.Time) (bool, error) {
	key := types.SubscriberKey{Topic: topic, Group: group, Subscriber: s}
	info, err := rec.SubscriberInfo(key)
	if err != nil {
		return false, err
	}
	created := info == nil
	if created {
		info = &types.SubscriberInfo{Key: key, ConnectedAt: connectedAt}
	}
	info.OwnerUUID = s.OwnerUUID
	info.SubscriptionID = id
	info.LastHeartbeat = e.now()
	if !connectedAt.IsZero() {
		info.ConnectedAt = connectedAt
	}
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = info.LastHeartbeat
	}
	return created, rec.PutSubscriberInfo(info)
}

func (e *Engine) heartbeat(rec storage.Records, req *types.HeartbeatRequest) (*types.HeartbeatResponse, error) {
	created, err := e.upsertSubscriber(rec, req.Topic, req.Group, req.Subscriber, req.SubscriptionID, req.ConnectedAt)
	if err != nil {
		return nil, err
	}
	if created {
		if err := e.reallocate(rec, e.Config(req.Topic), req.Topic, req.Group); err != nil {
			return nil, err
		}
	}
	return &types.HeartbeatResponse{}, nil
}

func (e *Engine) evict(rec storage.Records, req *types.EvictRequest) (*types.EvictResponse, error) {
	key := types.SubscriberKey{Topic: req.Topic, Group: req.Group, Subscriber: req.Subscriber}
	info, err := rec.SubscriberInfo(key)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return &types.EvictResponse{}, nil
	}
	if err := rec.DeleteSubscriberInfo(key); err != nil {
		return nil, err
	}
	if err := e.reallocate(rec, e.Config(req.Topic), req.Topic, req.Group); err != nil {
		return nil, err
	}
	return &types.EvictResponse{Removed: true}, nil
}

func (e *Engine) closeSubscription(rec storage.Records, req *types.CloseSubscriptionRequest) (*types.CloseSubscriptionResponse, error) {
	infos, err := rec.Subscribers(req.Topic, req.Group)
	if err != nil {
		return nil, err
	}
	closed := 0
	for _, info := range infos {
		if !req.Subscriber.IsNull() && info.Key.Subscriber != req.Subscriber {
			continue
		}
		if err := rec.DeleteSubscriberInfo(info.Key); err != nil {
			return nil, err
		}
		closed++
	}
	if closed > 0 {
		if err := e.reallocate(rec, e.Config(req.Topic), req.Topic, req.Group); err != nil {
			return nil, err
		}
	}
	return &types.CloseSubscriptionResponse{Closed: closed}, nil
}

func (e *Engine) destroySubscription(rec storage.Records, req *types.DestroySubscriptionRequest) (*types.DestroySubscriptionResponse, error) {
	cfg := e.Config(req.Topic)
	subs, err := rec.GroupSubscriptions(req.Topic, req.Group)
	if err != nil {
		return nil, err
	}

	resp := &types.DestroySubscriptionResponse{}
	var channels []int
	for _, sub := range subs {
		if req.SubscriptionID != uuid.Nil && sub.SubscriptionID != req.SubscriptionID {
			continue
		}
		if err := rec.DeleteSubscription(sub.Key); err != nil {
			return nil, err
		}
		channels = append(channels, sub.Key.Channel)
		resp.Destroyed++
	}
	if resp.Destroyed == 0 {
		return resp, nil
	}

	infos, err := rec.Subscribers(req.Topic, req.Group)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if err := rec.DeleteSubscriberInfo(info.Key); err != nil {
			return nil, err
		}
	}
	for _, c := range channels {
		u, err := rec.Usage(types.UsageKey{Topic: req.Topic, Channel: c})
		if err != nil {
			return nil, err
		}
		if u == nil {
			continue
		}
		notify, err := e.retain(rec, cfg, u)
		if err != nil {
			return nil, err
		}
		if err := rec.PutUsage(u); err != nil {
			return nil, err
		}
		resp.Notify = append(resp.Notify, notify...)
	}
	return resp, nil
}

// evictionReason checks a subscriber against a membership snapshot.
func evictionReason(info *types.SubscriberInfo, members map[int32]types.Member, timeout time.Duration, now time.Time) (types.EvictionReason, bool) {
	m, ok := members[info.Key.Subscriber.Member]
	switch {
	case !ok:
		return types.EvictMemberDeparted, true
	case m.UUID != info.OwnerUUID:
		return types.EvictMemberRestarted, true
	case !m.JoinedAt.IsZero() && m.JoinedAt.After(info.LastHeartbeat):
		return types.EvictStaleSession, true
	case timeout > 0 && now.Sub(info.LastHeartbeat) > timeout:
		return types.EvictHeartbeatExpired, true
	}
	return 0, false
}

// cleanup removes subscribers fenced by a membership snapshot from every topic
// of the partition. A topic that fails is logged and skipped.
func (e *Engine) cleanup(rec storage.Records, req *types.CleanupRequest) (*types.CleanupResponse, error) {
	members := make(map[int32]types.Member, len(req.Members))
	for _, m := range req.Members {
		members[m.ID] = m
	}
	topics, err := rec.SubscriberTopics()
	if err != nil {
		return nil, err
	}

	resp := &types.CleanupResponse{}
	now := e.now()
	for _, topic := range topics {
		evicted, err := e.cleanupTopic(rec, topic, members, now)
		if err != nil {
			e.logger.Warn("subscriber cleanup failed",
				slog.Int("partition", rec.Partition()),
				slog.String("topic", topic),
				slog.String("error", err.Error()))
			resp.Failed = append(resp.Failed, topic)
			continue
		}
		resp.Evicted = append(resp.Evicted, evicted...)
	}
	for _, ev := range resp.Evicted {
		e.logger.Info("subscriber evicted",
			slog.Int("partition", rec.Partition()),
			slog.String("topic", ev.Topic),
			slog.String("group", ev.Group),
			slog.String("subscriber", ev.Subscriber.String()),
			slog.String("reason", ev.Reason.String()))
	}
	return resp, nil
}

func (e *Engine) cleanupTopic(rec storage.Records, topic string, members map[int32]types.Member, now time.Time) (types.Evictions, error) {
	cfg := e.Config(topic)
	infos, err := rec.TopicSubscribers(topic)
	if err != nil {
		return nil, err
	}

	var evicted types.Evictions
	groups := make(map[string][]types.SubscriberID)
	for _, info := range infos {
		g := info.Key.Group
		if _, ok := groups[g]; !ok {
			groups[g] = nil
		}
		reason, ok := evictionReason(info, members, cfg.SubscriberTimeout, now)
		if !ok {
			groups[g] = append(groups[g], info.Key.Subscriber)
			continue
		}
		evicted = append(evicted, types.Eviction{
			Topic:      topic,
			Group:      g,
			Subscriber: info.Key.Subscriber,
			Reason:     reason,
		})
	}
	if len(evicted) == 0 {
		return nil, nil
	}

	// Nothing is written until every group has been planned.
	var moved []*types.Subscription
	for _, ev := range evicted {
		if _, ok := groups[ev.Group]; !ok {
			continue
		}
		subs, err := e.reassign(rec, cfg, topic, ev.Group, groups[ev.Group])
		if err != nil {
			return nil, err
		}
		moved = append(moved, subs...)
		delete(groups, ev.Group)
	}
	for _, ev := range evicted {
		if err := rec.DeleteSubscriberInfo(types.SubscriberKey{Topic: topic, Group: ev.Group, Subscriber: ev.Subscriber}); err != nil {
			return nil, err
		}
	}
	if err := putSubscriptions(rec, moved); err != nil {
		return nil, err
	}
	return evicted, nil
}
