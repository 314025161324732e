// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/binary"

	"github.com/absmach/fluxtopic/topic/types"
)

// Keyspace layout (byte-wise, lexicographically sortable):
//   - p/{part_be4}/g/{topic}\x00{channel_be4}{page_be8}           page
//   - p/{part_be4}/u/{topic}\x00{channel_be4}                     usage
//   - p/{part_be4}/s/{topic}\x00{group}\x00{channel_be4}          subscription
//   - p/{part_be4}/i/{topic}\x00{group}\x00{member_be4}{local_be8}{uuid}  subscriber

const (
	kindPage         byte = 'g'
	kindUsage        byte = 'u'
	kindSubscription byte = 's'
	kindSubscriber   byte = 'i'
	sep              byte = 0
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// PartitionPrefix returns the prefix of every key of a partition.
func PartitionPrefix(partition int) []byte {
	k := make([]byte, 0, 8)
	k = append(k, 'p', '/')
	k = appendBE4(k, uint32(partition))
	return append(k, '/')
}

func kindPrefix(partition int, kind byte) []byte {
	k := PartitionPrefix(partition)
	return append(k, kind, '/')
}

// PageKey builds the key of a page.
func PageKey(partition int, key types.PageKey) []byte {
	k := kindPrefix(partition, kindPage)
	k = append(k, key.Topic...)
	k = append(k, sep)
	k = appendBE4(k, uint32(key.Channel))
	return appendBE8(k, uint64(key.Page))
}

// PagePrefix returns the prefix of every page of a channel, in page order.
func PagePrefix(partition int, topic string, channel int) []byte {
	k := kindPrefix(partition, kindPage)
	k = append(k, topic...)
	k = append(k, sep)
	return appendBE4(k, uint32(channel))
}

// UsageKey builds the key of channel usage.
func UsageKey(partition int, key types.UsageKey) []byte {
	k := kindPrefix(partition, kindUsage)
	k = append(k, key.Topic...)
	k = append(k, sep)
	return appendBE4(k, uint32(key.Channel))
}

// SubscriptionKey builds the key of a subscription.
func SubscriptionKey(partition int, key types.SubscriptionKey) []byte {
	k := SubscriptionGroupPrefix(partition, key.Topic, key.Group)
	return appendBE4(k, uint32(key.Channel))
}

// SubscriptionTopicPrefix returns the prefix of every subscription of a topic.
func SubscriptionTopicPrefix(partition int, topic string) []byte {
	k := kindPrefix(partition, kindSubscription)
	k = append(k, topic...)
	return append(k, sep)
}

// SubscriptionGroupPrefix returns the prefix of every channel subscription of a group.
func SubscriptionGroupPrefix(partition int, topic, group string) []byte {
	k := SubscriptionTopicPrefix(partition, topic)
	k = append(k, group...)
	return append(k, sep)
}

// SubscriberKey builds the key of a subscriber liveness record.
func SubscriberKey(partition int, key types.SubscriberKey) []byte {
	k := SubscriberGroupPrefix(partition, key.Topic, key.Group)
	k = appendBE4(k, uint32(key.Subscriber.Member))
	k = appendBE8(k, uint64(key.Subscriber.Local))
	return append(k, key.Subscriber.OwnerUUID[:]...)
}

// SubscriberPrefix returns the prefix of every subscriber record of a partition.
func SubscriberPrefix(partition int) []byte {
	return kindPrefix(partition, kindSubscriber)
}

// SubscriberTopicPrefix returns the prefix of every subscriber record of a topic.
func SubscriberTopicPrefix(partition int, topic string) []byte {
	k := SubscriberPrefix(partition)
	k = append(k, topic...)
	return append(k, sep)
}

// SubscriberGroupPrefix returns the prefix of every subscriber record of a group.
func SubscriberGroupPrefix(partition int, topic, group string) []byte {
	k := SubscriberTopicPrefix(partition, topic)
	k = append(k, group...)
	return append(k, sep)
}

// PrefixEnd returns the smallest key greater than every key starting with prefix.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
