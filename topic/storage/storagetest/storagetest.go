// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/absmach/fluxtopic/topic/codec"
	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAbort = errors.New("abort")

// Run exercises a backend created by newBackend. The backend is closed by Run.
func Run(t *testing.T, newBackend func(t *testing.T) storage.Backend) {
	t.Run("ReadYourWrites", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		err := b.Update(func(txn storage.Txn) error {
			require.NoError(t, txn.Set([]byte("k1"), []byte("v1")))
			v, err := txn.Get([]byte("k1"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), v)

			require.NoError(t, txn.Delete([]byte("k1")))
			_, err = txn.Get([]byte("k1"))
			assert.ErrorIs(t, err, storage.ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		require.NoError(t, b.Update(func(txn storage.Txn) error {
			return txn.Set([]byte("kept"), []byte("1"))
		}))
		err := b.Update(func(txn storage.Txn) error {
			require.NoError(t, txn.Set([]byte("dropped"), []byte("1")))
			require.NoError(t, txn.Delete([]byte("kept")))
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		require.NoError(t, b.Update(func(txn storage.Txn) error {
			_, err := txn.Get([]byte("dropped"))
			assert.ErrorIs(t, err, storage.ErrNotFound)
			v, err := txn.Get([]byte("kept"))
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), v)
			return nil
		}))
	})

	t.Run("ScanPrefixOrder", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		require.NoError(t, b.Update(func(txn storage.Txn) error {
			for _, k := range []string{"a/3", "a/1", "b/1", "a/2", "a"} {
				require.NoError(t, txn.Set([]byte(k), []byte(k)))
			}
			return nil
		}))
		require.NoError(t, b.Update(func(txn storage.Txn) error {
			require.NoError(t, txn.Set([]byte("a/0"), []byte("a/0")))
			var keys []string
			err := txn.Scan([]byte("a/"), func(k, v []byte) error {
				assert.Equal(t, k, v)
				keys = append(keys, string(k))
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"a/0", "a/1", "a/2", "a/3"}, keys)
			return nil
		}))
	})

	t.Run("ScanStopsOnError", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		require.NoError(t, b.Update(func(txn storage.Txn) error {
			for i := range 5 {
				require.NoError(t, txn.Set(fmt.Appendf(nil, "k/%d", i), []byte{byte(i)}))
			}
			return nil
		}))
		seen := 0
		err := b.Update(func(txn storage.Txn) error {
			return txn.Scan([]byte("k/"), func(_, _ []byte) error {
				seen++
				if seen == 2 {
					return errAbort
				}
				return nil
			})
		})
		assert.ErrorIs(t, err, errAbort)
		assert.Equal(t, 2, seen)
	})

	t.Run("Records", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		testRecords(t, b)
	})
}

func testRecords(t *testing.T, b storage.Backend) {
	c := codec.New(codec.WithCompression(codec.CompressionS2))
	now := time.Unix(1700000000, 0)
	owner := uuid.New()
	subA := types.SubscriberID{Member: 1, Local: 1, OwnerUUID: owner}
	subB := types.SubscriberID{Member: 1, Local: 2, OwnerUUID: owner}

	require.NoError(t, b.Update(func(txn storage.Txn) error {
		r := storage.NewRecords(txn, c, 3)
		assert.Equal(t, 3, r.Partition())

		for _, id := range []int64{2, 0, 1, 300} {
			p := types.NewPage(types.PageKey{Topic: "t", Channel: 1, Page: id}, id-1, now)
			p.Append([]byte("payload"))
			require.NoError(t, r.PutPage(p))
		}
		other := types.NewPage(types.PageKey{Topic: "t", Channel: 2, Page: 5}, types.NoPage, now)
		require.NoError(t, r.PutPage(other))

		u := types.NewUsage(types.UsageKey{Topic: "t", Channel: 1})
		u.PublicationTail = 300
		require.NoError(t, r.PutUsage(u))

		for _, g := range []string{"g1", "g2"} {
			for ch := range 2 {
				key := types.SubscriptionKey{Topic: "t", Channel: ch, Group: g}
				require.NoError(t, r.PutSubscription(types.NewSubscription(key, uuid.New(), 0, now)))
			}
		}
		for _, s := range []types.SubscriberID{subB, subA} {
			require.NoError(t, r.PutSubscriberInfo(&types.SubscriberInfo{
				Key:           types.SubscriberKey{Topic: "t", Group: "g1", Subscriber: s},
				OwnerUUID:     owner,
				LastHeartbeat: now,
			}))
		}
		return nil
	}))

	require.NoError(t, b.Update(func(txn storage.Txn) error {
		r := storage.NewRecords(txn, c, 3)

		ids, err := r.PageIDs("t", 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 1, 2, 300}, ids)

		p, err := r.Page(types.PageKey{Topic: "t", Channel: 1, Page: 2})
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, [][]byte{[]byte("payload")}, p.Elements)
		assert.Equal(t, int64(1), p.Prev)

		missing, err := r.Page(types.PageKey{Topic: "t", Channel: 1, Page: 7})
		require.NoError(t, err)
		assert.Nil(t, missing)

		require.NoError(t, r.DeletePage(types.PageKey{Topic: "t", Channel: 1, Page: 0}))
		ids, err = r.PageIDs("t", 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 300}, ids)

		u, err := r.Usage(types.UsageKey{Topic: "t", Channel: 1})
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, int64(300), u.PublicationTail)

		none, err := r.Usage(types.UsageKey{Topic: "t", Channel: 9})
		require.NoError(t, err)
		assert.Nil(t, none)

		subs, err := r.Subscriptions("t")
		require.NoError(t, err)
		assert.Len(t, subs, 4)

		group, err := r.GroupSubscriptions("t", "g2")
		require.NoError(t, err)
		require.Len(t, group, 2)
		assert.Equal(t, 0, group[0].Key.Channel)
		assert.Equal(t, 1, group[1].Key.Channel)

		require.NoError(t, r.DeleteSubscription(group[0].Key))
		group, err = r.GroupSubscriptions("t", "g2")
		require.NoError(t, err)
		assert.Len(t, group, 1)

		infos, err := r.Subscribers("t", "g1")
		require.NoError(t, err)
		require.Len(t, infos, 2)
		assert.Equal(t, subA, infos[0].Key.Subscriber)
		assert.Equal(t, subB, infos[1].Key.Subscriber)

		require.NoError(t, r.DeleteSubscriberInfo(infos[0].Key))
		require.NoError(t, r.PutSubscriberInfo(&types.SubscriberInfo{
			Key: types.SubscriberKey{Topic: "u", Group: "g1", Subscriber: subA},
		}))

		topics, err := r.SubscriberTopics()
		require.NoError(t, err)
		assert.Equal(t, []string{"t", "u"}, topics)

		infos, err = r.TopicSubscribers("t")
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, subB, infos[0].Key.Subscriber)
		return nil
	}))

	// Partitions do not see each other's records.
	require.NoError(t, b.Update(func(txn storage.Txn) error {
		r := storage.NewRecords(txn, c, 4)
		ids, err := r.PageIDs("t", 1)
		require.NoError(t, err)
		assert.Empty(t, ids)
		return nil
	}))
}
