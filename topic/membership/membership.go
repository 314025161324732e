// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package membership tells the topic service which cluster members are alive,
// in which incarnation, and which partitions this node owns.
package membership

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/absmach/fluxtopic/topic/types"
)

var (
	ErrDuplicateMember = errors.New("duplicate member id")
	ErrClosed          = errors.New("membership directory closed")
)

// Directory lists the live members of the cluster.
type Directory interface {
	// Self returns the local member.
	Self() types.Member
	// Members returns a snapshot of live members sorted by id.
	Members(ctx context.Context) ([]types.Member, error)
	Close() error
}

// Owned returns the partitions assigned to member self when partitions are
// dealt out over the sorted member ids.
func Owned(members []types.Member, self int32, partitions int) []int {
	ids := make([]int32, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	slices.Sort(ids)
	idx := slices.Index(ids, self)
	if idx < 0 {
		return nil
	}
	var owned []int
	for p := idx; p < partitions; p += len(ids) {
		owned = append(owned, p)
	}
	return owned
}

// Static is a fixed directory, for single node deployments and tests.
type Static struct {
	mu      sync.RWMutex
	self    types.Member
	members []types.Member
}

var _ Directory = (*Static)(nil)

// NewStatic creates a directory of self and peers.
func NewStatic(self types.Member, peers ...types.Member) (*Static, error) {
	s := &Static{self: self}
	if err := s.Set(append([]types.Member{self}, peers...)); err != nil {
		return nil, err
	}
	return s, nil
}

// Set replaces the member list.
func (s *Static) Set(members []types.Member) error {
	sorted := slices.Clone(members)
	slices.SortFunc(sorted, func(a, b types.Member) int { return int(a.ID) - int(b.ID) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].ID == sorted[i-1].ID {
			return ErrDuplicateMember
		}
	}
	s.mu.Lock()
	s.members = sorted
	s.mu.Unlock()
	return nil
}

func (s *Static) Self() types.Member {
	return s.self
}

func (s *Static) Members(context.Context) ([]types.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.members), nil
}

func (s *Static) Close() error {
	return nil
}
