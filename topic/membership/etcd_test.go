// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package membership

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/server/v3/embed"
)

func freeURL(t *testing.T) url.URL {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	u, err := url.Parse("http://" + addr)
	require.NoError(t, err)
	return *u
}

func startEtcd(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("embedded etcd skipped in short mode")
	}
	cfg := embed.NewConfig()
	cfg.Name = "membership-test"
	cfg.Dir = t.TempDir()
	cfg.Logger = "zap"
	cfg.LogLevel = "error"

	peer, client := freeURL(t), freeURL(t)
	cfg.ListenPeerUrls = []url.URL{peer}
	cfg.AdvertisePeerUrls = []url.URL{peer}
	cfg.ListenClientUrls = []url.URL{client}
	cfg.AdvertiseClientUrls = []url.URL{client}
	cfg.InitialCluster = fmt.Sprintf("%s=%s", cfg.Name, peer.String())

	e, err := embed.StartEtcd(cfg)
	require.NoError(t, err)
	t.Cleanup(e.Close)

	select {
	case <-e.Server.ReadyNotify():
	case <-time.After(30 * time.Second):
		e.Server.Stop()
		t.Fatal("etcd server took too long to start")
	}
	return client.Host
}

func TestEtcdDirectory(t *testing.T) {
	endpoint := startEtcd(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := EtcdConfig{Endpoints: []string{endpoint}, Prefix: "/test/members", LeaseTTL: 5 * time.Second}
	first, err := NewEtcd(ctx, cfg, member(2))
	require.NoError(t, err)
	defer first.Close()
	second, err := NewEtcd(ctx, cfg, member(1))
	require.NoError(t, err)

	members, err := first.Members(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, []int32{1, 2}, []int32{members[0].ID, members[1].ID})
	assert.Equal(t, second.Self().UUID, members[0].UUID)
	assert.True(t, second.Self().JoinedAt.Equal(members[0].JoinedAt))

	client, err := clientv3.New(clientv3.Config{Endpoints: []string{endpoint}, DialTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer client.Close()
	_, err = client.Put(ctx, "/test/members/9", "garbage")
	require.NoError(t, err)

	require.NoError(t, second.Close())
	require.NoError(t, second.Close())

	members, err = first.Members(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, first.Self().ID, members[0].ID)
	assert.Equal(t, first.Self().UUID, members[0].UUID)
}
