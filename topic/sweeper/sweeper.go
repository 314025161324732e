// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package sweeper periodically removes subscribers fenced by cluster
// membership from the partitions this node owns.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/absmach/fluxtopic/topic/membership"
	"github.com/absmach/fluxtopic/topic/types"
	"golang.org/x/time/rate"
)

// ErrEmptySnapshot is returned when the directory lists no members. Sweeping
// against it would evict every subscriber.
var ErrEmptySnapshot = errors.New("membership snapshot is empty")

// Cleaner runs the cleanup operation on a partition. OwnedPartitions is the
// same ownership the node serves requests with.
type Cleaner interface {
	OwnedPartitions() []int
	Cleanup(ctx context.Context, partition int, members []types.Member) (*types.CleanupResponse, error)
}

// Config holds sweeper settings.
type Config struct {
	Interval time.Duration
	// Rate is the number of partitions swept per second.
	Rate  float64
	Burst int
}

// Sweeper runs cleanup over locally owned partitions on a fixed interval.
type Sweeper struct {
	cleaner  Cleaner
	dir      membership.Directory
	interval time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a sweeper.
func New(cleaner Cleaner, dir membership.Directory, cfg Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Sweeper{
		cleaner:  cleaner,
		dir:      dir,
		interval: cfg.Interval,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		logger:   logger,
	}
}

// Run sweeps every interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("subscriber sweep skipped", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep runs one pass and returns the evictions. A partition that fails is
// logged and skipped.
func (s *Sweeper) Sweep(ctx context.Context) (types.Evictions, error) {
	members, err := s.dir.Members(ctx)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrEmptySnapshot
	}

	owned := s.cleaner.OwnedPartitions()
	var evicted types.Evictions
	for _, p := range owned {
		if err := s.limiter.Wait(ctx); err != nil {
			return evicted, err
		}
		resp, err := s.cleaner.Cleanup(ctx, p, members)
		if err != nil {
			s.logger.Warn("partition cleanup failed",
				slog.Int("partition", p),
				slog.String("error", err.Error()))
			continue
		}
		for _, topic := range resp.Failed {
			s.logger.Warn("topic cleanup skipped",
				slog.Int("partition", p),
				slog.String("topic", topic))
		}
		evicted = append(evicted, resp.Evicted...)
	}
	s.report(evicted, len(owned))
	return evicted, nil
}

func (s *Sweeper) report(evicted types.Evictions, partitions int) {
	if len(evicted) == 0 {
		s.logger.Debug("subscriber sweep completed", slog.Int("partitions", partitions))
		return
	}
	byMember := evicted.ByMember()
	for _, m := range evicted.Members() {
		s.logger.Info("subscribers evicted for member",
			slog.Int("member", int(m)),
			slog.Int("count", len(byMember[m])))
	}
	byGroup := evicted.ByGroup()
	groups := make([]string, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		s.logger.Info("subscribers evicted from group",
			slog.String("group", g),
			slog.Int("count", len(byGroup[g])))
	}
}
