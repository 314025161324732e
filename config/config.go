// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/absmach/fluxtopic/topic/types"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds the node configuration.
type Config struct {
	Node       NodeConfig       `yaml:"node"`
	Log        LogConfig        `yaml:"log"`
	Storage    StorageConfig    `yaml:"storage"`
	Engine     EngineConfig     `yaml:"engine"`
	Topics     TopicsConfig     `yaml:"topics"`
	Membership MembershipConfig `yaml:"membership"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// NodeConfig identifies this node in the membership snapshot.
type NodeConfig struct {
	ID int32 `yaml:"id"`
	// UUID changes on every restart when left empty, so subscribers
	// registered by a previous incarnation are swept.
	UUID string `yaml:"uuid"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	Type          string        `yaml:"type"` // memory, badger, pebble
	Dir           string        `yaml:"dir"`
	Fsync         string        `yaml:"fsync"` // always, interval, never
	FsyncInterval time.Duration `yaml:"fsync_interval"`
	Compression   string        `yaml:"compression"` // none, s2, zstd
}

// EngineConfig holds partition execution settings.
type EngineConfig struct {
	Partitions    int           `yaml:"partitions"`
	QueueSize     int           `yaml:"queue_size"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepRate     float64       `yaml:"sweep_rate"` // partitions per second, 0 = unlimited
	SweepBurst    int           `yaml:"sweep_burst"`
	NotifyBuffer  int           `yaml:"notify_buffer"`
}

// TopicConfig holds the per-topic limits. Zero fields in an override inherit
// the defaults.
type TopicConfig struct {
	Channels          int           `yaml:"channels"`
	PageCapacity      int           `yaml:"page_capacity"`
	MaxPages          int64         `yaml:"max_pages"`
	MaxElementSize    int           `yaml:"max_element_size"`
	SubscriberTimeout time.Duration `yaml:"subscriber_timeout"`
	RetainConsumed    bool          `yaml:"retain_consumed"`
	Allocation        string        `yaml:"allocation"` // round_robin, hash
}

// TopicsConfig holds default topic limits and per-topic overrides.
type TopicsConfig struct {
	Defaults  TopicConfig            `yaml:"defaults"`
	Overrides map[string]TopicConfig `yaml:"overrides"`
}

// MembershipConfig selects the membership directory.
type MembershipConfig struct {
	Type        string        `yaml:"type"` // static, etcd
	Endpoints   []string      `yaml:"endpoints"`
	Prefix      string        `yaml:"prefix"`
	LeaseTTL    time.Duration `yaml:"lease_ttl"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Endpoint        string  `yaml:"endpoint"`
	ServiceName     string  `yaml:"service_name"`
	ServiceVersion  string  `yaml:"service_version"`
	TracesEnabled   bool    `yaml:"traces_enabled"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	td := types.DefaultTopicConfig()
	return &Config{
		Node: NodeConfig{
			ID: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Type:          "badger",
			Dir:           "/tmp/fluxtopic/data",
			Fsync:         "interval",
			FsyncInterval: 5 * time.Millisecond,
			Compression:   "none",
		},
		Engine: EngineConfig{
			Partitions:    16,
			QueueSize:     64,
			SweepInterval: time.Minute,
			SweepRate:     10,
			SweepBurst:    1,
			NotifyBuffer:  1,
		},
		Topics: TopicsConfig{
			Defaults: TopicConfig{
				Channels:          td.Channels,
				PageCapacity:      td.PageCapacity,
				MaxElementSize:    td.MaxElementSize,
				SubscriberTimeout: td.SubscriberTimeout,
				Allocation:        string(td.Allocation),
			},
			Overrides: map[string]TopicConfig{},
		},
		Membership: MembershipConfig{
			Type:        "static",
			Prefix:      "/fluxtopic/members/",
			LeaseTTL:    10 * time.Second,
			DialTimeout: 5 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			ServiceName:     "fluxtopic",
			ServiceVersion:  "1.0.0",
			TracesEnabled:   false,
			TraceSampleRate: 0.1,
		},
	}
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Node.ID < 0 {
		return fmt.Errorf("node.id cannot be negative")
	}
	if c.Node.UUID != "" {
		if _, err := uuid.Parse(c.Node.UUID); err != nil {
			return fmt.Errorf("node.uuid is not a valid UUID: %w", err)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	validStorage := map[string]bool{"memory": true, "badger": true, "pebble": true}
	if !validStorage[c.Storage.Type] {
		return fmt.Errorf("storage.type must be one of: memory, badger, pebble")
	}
	if c.Storage.Type != "memory" && c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir required when type is %s", c.Storage.Type)
	}
	validFsync := map[string]bool{"always": true, "interval": true, "never": true}
	if !validFsync[c.Storage.Fsync] {
		return fmt.Errorf("storage.fsync must be one of: always, interval, never")
	}
	if c.Storage.Fsync == "interval" && c.Storage.FsyncInterval <= 0 {
		return fmt.Errorf("storage.fsync_interval must be positive when fsync is interval")
	}
	validCompression := map[string]bool{"none": true, "s2": true, "zstd": true}
	if !validCompression[c.Storage.Compression] {
		return fmt.Errorf("storage.compression must be one of: none, s2, zstd")
	}

	if c.Engine.Partitions < 1 {
		return fmt.Errorf("engine.partitions must be at least 1")
	}
	if c.Engine.QueueSize < 1 {
		return fmt.Errorf("engine.queue_size must be at least 1")
	}
	if c.Engine.SweepInterval < time.Second {
		return fmt.Errorf("engine.sweep_interval must be at least 1 second")
	}
	if c.Engine.SweepRate < 0 {
		return fmt.Errorf("engine.sweep_rate cannot be negative")
	}
	if c.Engine.SweepRate > 0 && c.Engine.SweepBurst < 1 {
		return fmt.Errorf("engine.sweep_burst must be at least 1 when sweep_rate is set")
	}
	if c.Engine.NotifyBuffer < 1 {
		return fmt.Errorf("engine.notify_buffer must be at least 1")
	}

	if err := validateTopic("topics.defaults", c.Topics.Defaults); err != nil {
		return err
	}
	if c.Topics.Defaults.Channels < 1 || c.Topics.Defaults.PageCapacity < 1 || c.Topics.Defaults.MaxElementSize < 1 {
		return fmt.Errorf("topics.defaults must set channels, page_capacity and max_element_size")
	}
	for name, o := range c.Topics.Overrides {
		if name == "" {
			return fmt.Errorf("topics.overrides cannot contain an empty topic name")
		}
		if err := validateTopic("topics.overrides."+name, o); err != nil {
			return err
		}
	}

	switch c.Membership.Type {
	case "static":
	case "etcd":
		if len(c.Membership.Endpoints) == 0 {
			return fmt.Errorf("membership.endpoints required when type is etcd")
		}
		if c.Membership.LeaseTTL < time.Second {
			return fmt.Errorf("membership.lease_ttl must be at least 1 second")
		}
	default:
		return fmt.Errorf("membership.type must be one of: static, etcd")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return fmt.Errorf("telemetry.service_name cannot be empty when telemetry enabled")
		}
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint cannot be empty when telemetry enabled")
		}
		if c.Telemetry.TraceSampleRate < 0.0 || c.Telemetry.TraceSampleRate > 1.0 {
			return fmt.Errorf("telemetry.trace_sample_rate must be between 0.0 and 1.0")
		}
	}

	return nil
}

func validateTopic(path string, t TopicConfig) error {
	if t.Channels < 0 {
		return fmt.Errorf("%s.channels cannot be negative", path)
	}
	if t.PageCapacity < 0 {
		return fmt.Errorf("%s.page_capacity cannot be negative", path)
	}
	if t.MaxPages < 0 {
		return fmt.Errorf("%s.max_pages cannot be negative", path)
	}
	if t.MaxPages == 1 {
		return fmt.Errorf("%s.max_pages must be 0 or at least 2", path)
	}
	if t.MaxElementSize < 0 {
		return fmt.Errorf("%s.max_element_size cannot be negative", path)
	}
	if t.SubscriberTimeout < 0 {
		return fmt.Errorf("%s.subscriber_timeout cannot be negative", path)
	}
	switch types.AllocationStrategy(t.Allocation) {
	case "", types.AllocateRoundRobin, types.AllocateHash:
	default:
		return fmt.Errorf("%s.allocation must be one of: round_robin, hash", path)
	}
	return nil
}

// Limits converts a topic section to engine limits.
func (t TopicConfig) Limits() types.TopicConfig {
	return types.TopicConfig{
		Channels:          t.Channels,
		PageCapacity:      t.PageCapacity,
		MaxPages:          t.MaxPages,
		MaxElementSize:    t.MaxElementSize,
		SubscriberTimeout: t.SubscriberTimeout,
		RetainConsumed:    t.RetainConsumed,
		Allocation:        types.AllocationStrategy(t.Allocation),
	}
}

// TopicConfigs builds the engine's topic configuration resolver.
func (c TopicsConfig) TopicConfigs() types.TopicConfigs {
	out := types.TopicConfigs{
		Defaults: c.Defaults.Limits(),
		Topics:   make(map[string]types.TopicConfig, len(c.Overrides)),
	}
	for name, o := range c.Overrides {
		out.Topics[name] = o.Limits()
	}
	return out
}

// Member returns this node's membership entry. A random UUID is generated
// when none is configured.
func (c NodeConfig) Member(joinedAt time.Time) (types.Member, error) {
	id := uuid.New()
	if c.UUID != "" {
		parsed, err := uuid.Parse(c.UUID)
		if err != nil {
			return types.Member{}, fmt.Errorf("node.uuid: %w", err)
		}
		id = parsed
	}
	return types.Member{ID: c.ID, UUID: id, JoinedAt: joinedAt}, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
