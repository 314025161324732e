// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/absmach/fluxtopic/topic"
	"github.com/absmach/fluxtopic/topic/membership"
	"github.com/absmach/fluxtopic/topic/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Cleaner = (*topic.Service)(nil)

var errPartition = errors.New("partition unavailable")

type fakeCleaner struct {
	mu    sync.Mutex
	owned []int
	calls []int
	fail  map[int]bool
}

func (f *fakeCleaner) OwnedPartitions() []int { return f.owned }

func (f *fakeCleaner) Cleanup(_ context.Context, partition int, members []types.Member) (*types.CleanupResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, partition)
	if f.fail[partition] {
		return nil, errPartition
	}
	return &types.CleanupResponse{
		Evicted: types.Evictions{{
			Topic:      "t",
			Group:      "g",
			Subscriber: types.SubscriberID{Member: int32(partition + 10), Local: 1},
			Reason:     types.EvictMemberDeparted,
		}},
		Failed: []string{"broken"},
	}, nil
}

func (f *fakeCleaner) Calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

type emptyDirectory struct{ membership.Static }

func (*emptyDirectory) Members(context.Context) ([]types.Member, error) { return nil, nil }

func newDirectory(t *testing.T) *membership.Static {
	t.Helper()
	self := types.Member{ID: 1, UUID: uuid.New()}
	dir, err := membership.NewStatic(self, types.Member{ID: 2, UUID: uuid.New()})
	require.NoError(t, err)
	return dir
}

func TestSweepOwnedPartitions(t *testing.T) {
	// Ownership comes from the cleaner, not from the directory snapshot.
	cleaner := &fakeCleaner{owned: []int{1, 3, 4}, fail: map[int]bool{3: true}}
	s := New(cleaner, newDirectory(t), Config{Interval: time.Hour, Rate: 1000, Burst: 1}, nil)

	evicted, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, cleaner.Calls())
	assert.Equal(t, []int32{11, 14}, evicted.Members())
	assert.Len(t, evicted.ByGroup()["t/g"], 2)
}

func TestSweepSkipsEmptySnapshot(t *testing.T) {
	cleaner := &fakeCleaner{owned: []int{0, 1, 2}}
	s := New(cleaner, &emptyDirectory{}, Config{}, nil)

	_, err := s.Sweep(context.Background())
	assert.ErrorIs(t, err, ErrEmptySnapshot)
	assert.Empty(t, cleaner.Calls())
}

func TestSweepHonoursContext(t *testing.T) {
	cleaner := &fakeCleaner{owned: []int{0, 1, 2, 3, 4, 5, 6, 7}}
	s := New(cleaner, newDirectory(t), Config{Rate: 0.001, Burst: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Sweep(ctx)
	assert.Error(t, err)
	assert.Equal(t, []int{0}, cleaner.Calls())
}

func TestRun(t *testing.T) {
	cleaner := &fakeCleaner{owned: []int{0}}
	dir, err := membership.NewStatic(types.Member{ID: 1, UUID: uuid.New()})
	require.NoError(t, err)
	s := New(cleaner, dir, Config{Interval: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(cleaner.Calls()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
