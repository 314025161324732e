// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package storage persists topic records in a sorted key-value backend and
// serialises operations per partition.
package storage

import (
	"errors"

	"github.com/absmach/fluxtopic/topic/types"
)

var (
	ErrNotFound         = errors.New("key not found")
	ErrClosed           = errors.New("store closed")
	ErrInvalidPartition = errors.New("partition out of range")
)

// Txn is a read-write view of the backend. Reads observe the transaction's own
// writes. Values passed to callbacks must not be retained.
type Txn interface {
	// Get returns the value of key or ErrNotFound.
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Scan visits keys with the given prefix in ascending order. fn must not
	// modify the transaction.
	Scan(prefix []byte, fn func(key, value []byte) error) error
}

// Backend is a sorted key-value store with atomic read-write transactions.
type Backend interface {
	// Update runs fn in a transaction. Writes are committed only if fn returns nil.
	Update(fn func(Txn) error) error
	Close() error
}

// Records is the typed view of one partition inside a transaction. Getters
// return nil without error when the record does not exist.
type Records interface {
	Partition() int

	Page(key types.PageKey) (*types.Page, error)
	PutPage(p *types.Page) error
	DeletePage(key types.PageKey) error
	// PageIDs lists the stored page ids of a channel in ascending order.
	PageIDs(topic string, channel int) ([]int64, error)

	Usage(key types.UsageKey) (*types.Usage, error)
	PutUsage(u *types.Usage) error

	Subscription(key types.SubscriptionKey) (*types.Subscription, error)
	PutSubscription(s *types.Subscription) error
	DeleteSubscription(key types.SubscriptionKey) error
	// Subscriptions lists the channel subscriptions of every group of a topic.
	Subscriptions(topic string) ([]*types.Subscription, error)
	// GroupSubscriptions lists the channel subscriptions of a group.
	GroupSubscriptions(topic, group string) ([]*types.Subscription, error)

	SubscriberInfo(key types.SubscriberKey) (*types.SubscriberInfo, error)
	PutSubscriberInfo(i *types.SubscriberInfo) error
	DeleteSubscriberInfo(key types.SubscriberKey) error
	// Subscribers lists the subscribers of a group ordered by id.
	Subscribers(topic, group string) ([]*types.SubscriberInfo, error)
	// SubscriberTopics lists the topics that have subscriber records, without
	// decoding the records.
	SubscriberTopics() ([]string, error)
	// TopicSubscribers lists the subscribers of every group of a topic.
	TopicSubscribers(topic string) ([]*types.SubscriberInfo, error)
}
