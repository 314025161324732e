// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/absmach/fluxtopic/config"
	"github.com/absmach/fluxtopic/telemetry"
	"github.com/absmach/fluxtopic/topic"
	"github.com/absmach/fluxtopic/topic/codec"
	"github.com/absmach/fluxtopic/topic/membership"
	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/storage/badger"
	"github.com/absmach/fluxtopic/topic/storage/memory"
	"github.com/absmach/fluxtopic/topic/storage/pebble"
	"github.com/absmach/fluxtopic/topic/sweeper"
	"github.com/absmach/fluxtopic/topic/types"
)

const (
	shutdownTimeout   = 30 * time.Second
	membershipTimeout = 2 * time.Second
)

// run starts a node and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	self, err := cfg.Node.Member(time.Now())
	if err != nil {
		return err
	}
	logger.Info("Starting topic node",
		slog.String("version", version),
		slog.Int("node_id", int(self.ID)),
		slog.String("node_uuid", self.UUID.String()),
		slog.String("storage", cfg.Storage.Type),
		slog.Int("partitions", cfg.Engine.Partitions),
		slog.String("membership", cfg.Membership.Type))

	var observer topic.Observer
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitProvider(cfg.Telemetry, strconv.Itoa(int(self.ID)))
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Error("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
		metrics, err := telemetry.NewMetrics()
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
		observer = metrics
		logger.Info("OpenTelemetry enabled",
			slog.String("endpoint", cfg.Telemetry.Endpoint),
			slog.Bool("traces", cfg.Telemetry.TracesEnabled))
	}

	comp, err := codec.ParseCompression(cfg.Storage.Compression)
	if err != nil {
		return err
	}
	c := codec.New(codec.WithCompression(comp))

	backend, err := openBackend(cfg.Storage, logger)
	if err != nil {
		return err
	}

	dir, err := openDirectory(ctx, cfg.Membership, self, logger)
	if err != nil {
		_ = backend.Close()
		return err
	}
	defer func() {
		if err := dir.Close(); err != nil {
			logger.Error("membership close failed", slog.String("error", err.Error()))
		}
	}()

	exec := storage.NewExecutor(backend, c, cfg.Engine.Partitions, cfg.Engine.QueueSize, logger)
	engine := topic.NewEngine(
		topic.WithTopicConfigs(cfg.Topics.TopicConfigs()),
		topic.WithLogger(logger),
	)
	opts := []topic.ServiceOption{
		topic.WithServiceLogger(logger),
		topic.WithNotifier(topic.NewNotifierWithBuffer(cfg.Engine.NotifyBuffer)),
		topic.WithOwnedPartitions(ownedPartitions(dir, cfg.Engine.Partitions, logger)),
	}
	if observer != nil {
		opts = append(opts, topic.WithObserver(observer))
	}
	svc := topic.NewService(exec, engine, opts...)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("storage close failed", slog.String("error", err.Error()))
		}
	}()

	sw := sweeper.New(svc, dir, sweeper.Config{
		Interval: cfg.Engine.SweepInterval,
		Rate:     cfg.Engine.SweepRate,
		Burst:    cfg.Engine.SweepBurst,
	}, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sw.Run(ctx)
	}()

	logger.Info("Topic node started", slog.Any("owned_partitions", svc.OwnedPartitions()))
	<-ctx.Done()
	logger.Info("Shutting down topic node")
	<-done
	return nil
}

func openBackend(cfg config.StorageConfig, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.Type {
	case "memory":
		logger.Info("Using in-memory storage")
		return memory.New(), nil
	case "badger":
		store, err := badger.New(badger.Config{
			Dir:        cfg.Dir,
			SyncWrites: cfg.Fsync == "always",
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize BadgerDB storage: %w", err)
		}
		logger.Info("Using BadgerDB persistent storage", slog.String("dir", cfg.Dir))
		return store, nil
	case "pebble":
		mode, err := pebble.ParseFsyncMode(cfg.Fsync)
		if err != nil {
			return nil, err
		}
		store, err := pebble.Open(pebble.Options{
			Dir:           cfg.Dir,
			Fsync:         mode,
			FsyncInterval: cfg.FsyncInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Pebble storage: %w", err)
		}
		logger.Info("Using Pebble persistent storage", slog.String("dir", cfg.Dir), slog.String("fsync", cfg.Fsync))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func openDirectory(ctx context.Context, cfg config.MembershipConfig, self types.Member, logger *slog.Logger) (membership.Directory, error) {
	switch cfg.Type {
	case "static":
		return membership.NewStatic(self)
	case "etcd":
		dir, err := membership.NewEtcd(ctx, membership.EtcdConfig{
			Endpoints:   cfg.Endpoints,
			Prefix:      cfg.Prefix,
			LeaseTTL:    cfg.LeaseTTL,
			DialTimeout: cfg.DialTimeout,
			Logger:      logger,
		}, self)
		if err != nil {
			return nil, fmt.Errorf("failed to join etcd membership: %w", err)
		}
		logger.Info("Joined etcd membership", slog.Any("endpoints", cfg.Endpoints))
		return dir, nil
	default:
		return nil, fmt.Errorf("unknown membership type %q", cfg.Type)
	}
}

// ownedPartitions lists the partitions assigned to this node by the current
// membership snapshot. A failed lookup owns nothing.
func ownedPartitions(dir membership.Directory, partitions int, logger *slog.Logger) func() []int {
	return func() []int {
		ctx, cancel := context.WithTimeout(context.Background(), membershipTimeout)
		defer cancel()
		members, err := dir.Members(ctx)
		if err != nil {
			logger.Warn("membership lookup failed", slog.String("error", err.Error()))
			return nil
		}
		return membership.Owned(members, dir.Self().ID, partitions)
	}
}
