// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/absmach/fluxtopic/topic/types"
	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const defaultPrefix = "/fluxtopic/members/"

// EtcdConfig configures the etcd directory.
type EtcdConfig struct {
	Endpoints   []string
	Prefix      string
	LeaseTTL    time.Duration
	DialTimeout time.Duration
	Logger      *slog.Logger
}

type memberRecord struct {
	ID       int32     `json:"id"`
	UUID     string    `json:"uuid"`
	JoinedAt time.Time `json:"joined_at"`
}

// Etcd registers the local member under a lease and lists members from a key
// prefix. A member whose node stops renewing its lease drops out of the
// snapshot once the lease expires.
type Etcd struct {
	client *clientv3.Client
	owns   bool
	prefix string
	lease  clientv3.LeaseID
	self   types.Member
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Directory = (*Etcd)(nil)

// NewEtcd connects to etcd and registers self.
func NewEtcd(ctx context.Context, cfg EtcdConfig, self types.Member) (*Etcd, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	d, err := NewEtcdWithClient(ctx, client, cfg, self)
	if err != nil {
		client.Close()
		return nil, err
	}
	d.owns = true
	return d, nil
}

// NewEtcdWithClient registers self through an existing client. The client is
// not closed by Close.
func NewEtcdWithClient(ctx context.Context, client *clientv3.Client, cfg EtcdConfig, self types.Member) (*Etcd, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if !strings.HasSuffix(cfg.Prefix, "/") {
		cfg.Prefix += "/"
	}
	if cfg.LeaseTTL < time.Second {
		cfg.LeaseTTL = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if self.JoinedAt.IsZero() {
		self.JoinedAt = time.Now()
	}

	leaseResp, err := client.Grant(ctx, int64(cfg.LeaseTTL/time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to create lease: %w", err)
	}

	data, err := json.Marshal(memberRecord{ID: self.ID, UUID: self.UUID.String(), JoinedAt: self.JoinedAt})
	if err != nil {
		return nil, err
	}
	key := cfg.Prefix + strconv.FormatInt(int64(self.ID), 10)
	if _, err := client.Put(ctx, key, string(data), clientv3.WithLease(leaseResp.ID)); err != nil {
		return nil, fmt.Errorf("failed to register member %d: %w", self.ID, err)
	}

	keepCtx, cancel := context.WithCancel(context.Background())
	ch, err := client.KeepAlive(keepCtx, leaseResp.ID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to keep lease alive: %w", err)
	}

	d := &Etcd{
		client: client,
		prefix: cfg.Prefix,
		lease:  leaseResp.ID,
		self:   self,
		logger: cfg.Logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go d.keepAlive(keepCtx, ch)
	return d, nil
}

func (d *Etcd) keepAlive(ctx context.Context, ch <-chan *clientv3.LeaseKeepAliveResponse) {
	defer close(d.done)
	for range ch {
	}
	if ctx.Err() == nil {
		d.logger.Error("membership lease lost",
			slog.Int("member", int(d.self.ID)),
			slog.String("lease", strconv.FormatInt(int64(d.lease), 16)))
	}
}

func (d *Etcd) Self() types.Member {
	return d.self
}

// Members lists the registered members. Records that fail to parse are
// logged and skipped.
func (d *Etcd) Members(ctx context.Context) ([]types.Member, error) {
	resp, err := d.client.Get(ctx, d.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	members := make([]types.Member, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		m, err := parseMember(kv.Value)
		if err != nil {
			d.logger.Warn("skipping malformed member record",
				slog.String("key", string(kv.Key)),
				slog.String("error", err.Error()))
			continue
		}
		members = append(members, m)
	}
	slices.SortFunc(members, func(a, b types.Member) int { return int(a.ID) - int(b.ID) })
	return members, nil
}

func parseMember(data []byte) (types.Member, error) {
	var rec memberRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return types.Member{}, err
	}
	id, err := uuid.Parse(rec.UUID)
	if err != nil {
		return types.Member{}, err
	}
	return types.Member{ID: rec.ID, UUID: id, JoinedAt: rec.JoinedAt}, nil
}

// Close revokes the lease, removing the local member immediately.
func (d *Etcd) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	<-d.done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := d.client.Revoke(ctx, d.lease)
	if d.owns {
		if cerr := d.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
