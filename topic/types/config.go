// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"errors"
	"time"
)

// ErrInvalidConfig indicates an invalid topic configuration.
var ErrInvalidConfig = errors.New("invalid topic configuration")

// AllocationStrategy selects how channels are distributed over a group's subscribers.
type AllocationStrategy string

const (
	AllocateRoundRobin AllocationStrategy = "round_robin"
	AllocateHash       AllocationStrategy = "hash"
)

// Topic defaults.
const (
	DefaultChannels          = 17
	DefaultPageCapacity      = 1024 * 1024
	DefaultMaxElementSize    = 16 * 1024 * 1024
	DefaultSubscriberTimeout = 5 * time.Minute
)

// TopicConfig defines the per-topic limits applied by the engine.
type TopicConfig struct {
	// Channels is the number of independent ordered sub-streams per partition.
	Channels int
	// PageCapacity is the byte budget of a page.
	PageCapacity int
	// MaxPages bounds the pages retained per channel (0 = unbounded).
	MaxPages int64
	// MaxElementSize rejects larger elements individually.
	MaxElementSize int
	// SubscriberTimeout evicts subscribers whose heartbeat is older (0 = never).
	SubscriberTimeout time.Duration
	// RetainConsumed keeps pages after every group has moved past them.
	RetainConsumed bool
	Allocation     AllocationStrategy
}

// DefaultTopicConfig returns default topic configuration.
func DefaultTopicConfig() TopicConfig {
	return TopicConfig{
		Channels:          DefaultChannels,
		PageCapacity:      DefaultPageCapacity,
		MaxElementSize:    DefaultMaxElementSize,
		SubscriberTimeout: DefaultSubscriberTimeout,
		Allocation:        AllocateRoundRobin,
	}
}

// Validate validates topic configuration.
func (c *TopicConfig) Validate() error {
	switch {
	case c.Channels <= 0:
		return ErrInvalidConfig
	case c.PageCapacity <= 0:
		return ErrInvalidConfig
	case c.MaxPages < 0:
		return ErrInvalidConfig
	case c.MaxElementSize <= 0:
		return ErrInvalidConfig
	case c.SubscriberTimeout < 0:
		return ErrInvalidConfig
	}
	switch c.Allocation {
	case "", AllocateRoundRobin, AllocateHash:
	default:
		return ErrInvalidConfig
	}
	return nil
}

// Merge returns c with every non-zero field of override applied.
func (c TopicConfig) Merge(override TopicConfig) TopicConfig {
	if override.Channels > 0 {
		c.Channels = override.Channels
	}
	if override.PageCapacity > 0 {
		c.PageCapacity = override.PageCapacity
	}
	if override.MaxPages > 0 {
		c.MaxPages = override.MaxPages
	}
	if override.MaxElementSize > 0 {
		c.MaxElementSize = override.MaxElementSize
	}
	if override.SubscriberTimeout > 0 {
		c.SubscriberTimeout = override.SubscriberTimeout
	}
	if override.RetainConsumed {
		c.RetainConsumed = true
	}
	if override.Allocation != "" {
		c.Allocation = override.Allocation
	}
	return c
}

// TopicConfigs resolves the configuration of a topic from defaults and
// per-topic overrides.
type TopicConfigs struct {
	Defaults TopicConfig
	Topics   map[string]TopicConfig
}

// For returns the effective configuration of a topic.
func (c TopicConfigs) For(topic string) TopicConfig {
	if o, ok := c.Topics[topic]; ok {
		return c.Defaults.Merge(o)
	}
	return c.Defaults
}
