// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/fluxtopic/topic/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "badger", cfg.Storage.Type)
	assert.Equal(t, 16, cfg.Engine.Partitions)
	assert.Equal(t, time.Minute, cfg.Engine.SweepInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "static", cfg.Membership.Type)
	assert.Equal(t, types.DefaultChannels, cfg.Topics.Defaults.Channels)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config is valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid node uuid",
			modify:  func(c *Config) { c.Node.UUID = "not-a-uuid" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Log.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "unknown storage type",
			modify:  func(c *Config) { c.Storage.Type = "bolt" },
			wantErr: true,
		},
		{
			name:    "pebble without dir",
			modify:  func(c *Config) { c.Storage.Type = "pebble"; c.Storage.Dir = "" },
			wantErr: true,
		},
		{
			name:    "memory without dir",
			modify:  func(c *Config) { c.Storage.Type = "memory"; c.Storage.Dir = "" },
			wantErr: false,
		},
		{
			name:    "unknown fsync mode",
			modify:  func(c *Config) { c.Storage.Fsync = "sometimes" },
			wantErr: true,
		},
		{
			name:    "unknown compression",
			modify:  func(c *Config) { c.Storage.Compression = "gzip" },
			wantErr: true,
		},
		{
			name:    "zero partitions",
			modify:  func(c *Config) { c.Engine.Partitions = 0 },
			wantErr: true,
		},
		{
			name:    "sweep interval too short",
			modify:  func(c *Config) { c.Engine.SweepInterval = 100 * time.Millisecond },
			wantErr: true,
		},
		{
			name:    "unlimited sweep rate",
			modify:  func(c *Config) { c.Engine.SweepRate = 0; c.Engine.SweepBurst = 0 },
			wantErr: false,
		},
		{
			name:    "single page topic",
			modify:  func(c *Config) { c.Topics.Defaults.MaxPages = 1 },
			wantErr: true,
		},
		{
			name: "override with unknown allocation",
			modify: func(c *Config) {
				c.Topics.Overrides["orders"] = TopicConfig{Allocation: "random"}
			},
			wantErr: true,
		},
		{
			name: "partial override",
			modify: func(c *Config) {
				c.Topics.Overrides["orders"] = TopicConfig{Channels: 4}
			},
			wantErr: false,
		},
		{
			name:    "etcd without endpoints",
			modify:  func(c *Config) { c.Membership.Type = "etcd" },
			wantErr: true,
		},
		{
			name:    "sample rate out of range",
			modify:  func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.TraceSampleRate = 1.5 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadNonExistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
storage:
  type: pebble
  dir: /var/lib/fluxtopic
  compression: zstd
topics:
  overrides:
    orders:
      channels: 4
      max_pages: 64
      allocation: hash
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pebble", cfg.Storage.Type)
	assert.Equal(t, "zstd", cfg.Storage.Compression)
	assert.Equal(t, "interval", cfg.Storage.Fsync, "unset fields keep defaults")

	topics := cfg.Topics.TopicConfigs()
	orders := topics.For("orders")
	assert.Equal(t, 4, orders.Channels)
	assert.Equal(t, int64(64), orders.MaxPages)
	assert.Equal(t, types.AllocateHash, orders.Allocation)
	assert.Equal(t, types.DefaultPageCapacity, orders.PageCapacity)
	assert.Equal(t, types.DefaultChannels, topics.For("other").Channels)
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  partitions: 0\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "engine.partitions")
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Engine.Partitions = 4
	cfg.Log.Level = "debug"
	cfg.Node.UUID = uuid.NewString()

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestNodeMember(t *testing.T) {
	now := time.Unix(1700000000, 0)
	id := uuid.New()

	m, err := NodeConfig{ID: 3, UUID: id.String()}.Member(now)
	require.NoError(t, err)
	assert.Equal(t, types.Member{ID: 3, UUID: id, JoinedAt: now}, m)

	random, err := NodeConfig{ID: 3}.Member(now)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, random.UUID)

	_, err = NodeConfig{UUID: "x"}.Member(now)
	assert.Error(t, err)
}
