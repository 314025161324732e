// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/absmach/fluxtopic/topic/codec"
	"github.com/absmach/fluxtopic/topic/types"
)

var _ Records = (*kvRecords)(nil)

// kvRecords maps records onto a transaction using the codec keyspace.
type kvRecords struct {
	txn       Txn
	codec     *codec.Codec
	partition int
}

// NewRecords returns the typed view of a partition over txn.
func NewRecords(txn Txn, c *codec.Codec, partition int) Records {
	return &kvRecords{txn: txn, codec: c, partition: partition}
}

func (r *kvRecords) Partition() int {
	return r.partition
}

func (r *kvRecords) get(key []byte) ([]byte, error) {
	v, err := r.txn.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func (r *kvRecords) Page(key types.PageKey) (*types.Page, error) {
	v, err := r.get(codec.PageKey(r.partition, key))
	if err != nil || v == nil {
		return nil, err
	}
	p, err := r.codec.DecodePage(v)
	if err != nil {
		return nil, fmt.Errorf("failed to decode page %s/%d/%d: %w", key.Topic, key.Channel, key.Page, err)
	}
	return p, nil
}

func (r *kvRecords) PutPage(p *types.Page) error {
	v, err := r.codec.EncodePage(p)
	if err != nil {
		return err
	}
	return r.txn.Set(codec.PageKey(r.partition, p.Key), v)
}

func (r *kvRecords) DeletePage(key types.PageKey) error {
	return r.txn.Delete(codec.PageKey(r.partition, key))
}

func (r *kvRecords) PageIDs(topic string, channel int) ([]int64, error) {
	prefix := codec.PagePrefix(r.partition, topic, channel)
	var ids []int64
	err := r.txn.Scan(prefix, func(key, _ []byte) error {
		if len(key) != len(prefix)+8 {
			return fmt.Errorf("%w: page key length %d", codec.ErrCorrupt, len(key))
		}
		ids = append(ids, int64(binary.BigEndian.Uint64(key[len(prefix):])))
		return nil
	})
	return ids, err
}

func (r *kvRecords) Usage(key types.UsageKey) (*types.Usage, error) {
	v, err := r.get(codec.UsageKey(r.partition, key))
	if err != nil || v == nil {
		return nil, err
	}
	return r.codec.DecodeUsage(v)
}

func (r *kvRecords) PutUsage(u *types.Usage) error {
	v, err := r.codec.EncodeUsage(u)
	if err != nil {
		return err
	}
	return r.txn.Set(codec.UsageKey(r.partition, u.Key), v)
}

func (r *kvRecords) Subscription(key types.SubscriptionKey) (*types.Subscription, error) {
	v, err := r.get(codec.SubscriptionKey(r.partition, key))
	if err != nil || v == nil {
		return nil, err
	}
	return r.codec.DecodeSubscription(v)
}

func (r *kvRecords) PutSubscription(s *types.Subscription) error {
	v, err := r.codec.EncodeSubscription(s)
	if err != nil {
		return err
	}
	return r.txn.Set(codec.SubscriptionKey(r.partition, s.Key), v)
}

func (r *kvRecords) DeleteSubscription(key types.SubscriptionKey) error {
	return r.txn.Delete(codec.SubscriptionKey(r.partition, key))
}

func (r *kvRecords) scanSubscriptions(prefix []byte) ([]*types.Subscription, error) {
	var subs []*types.Subscription
	err := r.txn.Scan(prefix, func(_, value []byte) error {
		s, err := r.codec.DecodeSubscription(value)
		if err != nil {
			return err
		}
		subs = append(subs, s)
		return nil
	})
	return subs, err
}

func (r *kvRecords) Subscriptions(topic string) ([]*types.Subscription, error) {
	return r.scanSubscriptions(codec.SubscriptionTopicPrefix(r.partition, topic))
}

func (r *kvRecords) GroupSubscriptions(topic, group string) ([]*types.Subscription, error) {
	return r.scanSubscriptions(codec.SubscriptionGroupPrefix(r.partition, topic, group))
}

func (r *kvRecords) SubscriberInfo(key types.SubscriberKey) (*types.SubscriberInfo, error) {
	v, err := r.get(codec.SubscriberKey(r.partition, key))
	if err != nil || v == nil {
		return nil, err
	}
	return r.codec.DecodeSubscriberInfo(v)
}

func (r *kvRecords) PutSubscriberInfo(i *types.SubscriberInfo) error {
	v, err := r.codec.EncodeSubscriberInfo(i)
	if err != nil {
		return err
	}
	return r.txn.Set(codec.SubscriberKey(r.partition, i.Key), v)
}

func (r *kvRecords) DeleteSubscriberInfo(key types.SubscriberKey) error {
	return r.txn.Delete(codec.SubscriberKey(r.partition, key))
}

func (r *kvRecords) scanSubscribers(prefix []byte) ([]*types.SubscriberInfo, error) {
	var infos []*types.SubscriberInfo
	err := r.txn.Scan(prefix, func(_, value []byte) error {
		i, err := r.codec.DecodeSubscriberInfo(value)
		if err != nil {
			return err
		}
		infos = append(infos, i)
		return nil
	})
	return infos, err
}

func (r *kvRecords) Subscribers(topic, group string) ([]*types.SubscriberInfo, error) {
	return r.scanSubscribers(codec.SubscriberGroupPrefix(r.partition, topic, group))
}

func (r *kvRecords) TopicSubscribers(topic string) ([]*types.SubscriberInfo, error) {
	return r.scanSubscribers(codec.SubscriberTopicPrefix(r.partition, topic))
}

func (r *kvRecords) SubscriberTopics() ([]string, error) {
	prefix := codec.SubscriberPrefix(r.partition)
	var topics []string
	err := r.txn.Scan(prefix, func(key, _ []byte) error {
		rest := key[len(prefix):]
		end := bytes.IndexByte(rest, 0)
		if end < 0 {
			return fmt.Errorf("%w: subscriber key without topic", codec.ErrCorrupt)
		}
		if topic := string(rest[:end]); len(topics) == 0 || topics[len(topics)-1] != topic {
			topics = append(topics, topic)
		}
		return nil
	})
	return topics, err
}
