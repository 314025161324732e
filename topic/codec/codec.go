// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package codec encodes topic records and operations as versioned records with
// positionally tagged fields. Readers skip fields they do not know and default
// fields that an older writer did not send.
package codec

import (
	"fmt"

	"github.com/absmach/fluxtopic/topic/types"
)

// Codec encodes records for one schema version.
type Codec struct {
	version     uint16
	compression Compression
}

// Option configures a Codec.
type Option func(*Codec)

// WithVersion sets the schema version written by the codec.
func WithVersion(v uint16) Option {
	return func(c *Codec) { c.version = v }
}

// WithCompression sets the compression applied to page element blocks.
func WithCompression(comp Compression) Option {
	return func(c *Codec) { c.compression = comp }
}

// New returns a codec writing CurrentVersion unless configured otherwise.
func New(opts ...Option) *Codec {
	c := &Codec{version: CurrentVersion}
	for _, o := range opts {
		o(c)
	}
	if c.version == 0 || c.version > CurrentVersion {
		c.version = CurrentVersion
	}
	return c
}

// Version returns the schema version written by the codec.
func (c *Codec) Version() uint16 {
	return c.version
}

// ForPeer returns a codec that writes no field a peer of the given version cannot read.
func (c *Codec) ForPeer(peer uint16) *Codec {
	if peer == 0 || peer >= c.version {
		return c
	}
	return &Codec{version: peer, compression: c.compression}
}

// Page fields.
const (
	pageTopic uint32 = iota + 1
	pageChannel
	pageID
	pageUsed
	pageSealed
	pagePrev
	pageNext
	pageElements
	pageCompression
	pageChecksum
	pageCreatedAt // v2
)

// EncodePage encodes a page.
func (c *Codec) EncodePage(p *types.Page) ([]byte, error) {
	block := NewBufferWriter(p.UsedBytes + 8*len(p.Elements) + 8)
	block.WriteUvarint(uint64(len(p.Elements)))
	for _, e := range p.Elements {
		block.WriteBytes(e)
	}
	raw := block.Bytes()
	compressed, err := Compress(c.compression, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to compress page %d: %w", p.Key.Page, err)
	}

	w := NewWriter(c.version)
	w.String(pageTopic, p.Key.Topic)
	w.Int(pageChannel, int64(p.Key.Channel))
	w.Int(pageID, p.Key.Page)
	w.Int(pageUsed, int64(p.UsedBytes))
	w.Bool(pageSealed, p.Sealed)
	w.Int(pagePrev, p.Prev)
	w.Int(pageNext, p.Next)
	w.Raw(pageElements, compressed)
	w.Int(pageCompression, int64(c.compression))
	w.Int(pageChecksum, int64(Checksum(raw)))
	if w.Version() >= Version2 {
		w.Time(pageCreatedAt, p.CreatedAt)
	}
	return w.Bytes(), nil
}

// DecodePage decodes a page.
func (c *Codec) DecodePage(data []byte) (*types.Page, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}
	p := &types.Page{
		Key: types.PageKey{
			Topic:   r.String(pageTopic),
			Channel: int(r.Int(pageChannel, 0)),
			Page:    r.Int(pageID, 0),
		},
		UsedBytes: int(r.Int(pageUsed, 0)),
		Sealed:    r.Bool(pageSealed),
		Prev:      r.Int(pagePrev, types.NoPage),
		Next:      r.Int(pageNext, types.NoPage),
	}
	if r.Version() >= Version2 {
		p.CreatedAt = r.Time(pageCreatedAt)
	}
	comp := Compression(r.Int(pageCompression, 0))
	sum := uint32(r.Int(pageChecksum, 0))
	if err := r.Err(); err != nil {
		return nil, err
	}

	raw, err := Decompress(comp, r.Raw(pageElements))
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", ErrCorrupt, p.Key.Page, err)
	}
	if r.Has(pageChecksum) && Checksum(raw) != sum {
		return nil, fmt.Errorf("%w: page %d", ErrChecksumFailure, p.Key.Page)
	}
	br := NewBufferReader(raw)
	n, err := br.ReadUvarint()
	if err != nil {
		return nil, fmt.Errorf("%w: page %d elements: %w", ErrCorrupt, p.Key.Page, err)
	}
	if n > uint64(len(raw)) {
		return nil, fmt.Errorf("%w: page %d element count %d", ErrCorrupt, p.Key.Page, n)
	}
	p.Elements = make([][]byte, 0, n)
	for range n {
		e, err := br.ReadBytes()
		if err != nil {
			return nil, fmt.Errorf("%w: page %d elements: %w", ErrCorrupt, p.Key.Page, err)
		}
		p.Elements = append(p.Elements, e)
	}
	return p, nil
}

// Usage fields.
const (
	usageTopic uint32 = iota + 1
	usageChannel
	usageTail
	usageOldest
	usageWaitingPublishers
	usageWaitingSubscribers
)

// EncodeUsage encodes channel usage.
func (c *Codec) EncodeUsage(u *types.Usage) ([]byte, error) {
	w := NewWriter(c.version)
	w.String(usageTopic, u.Key.Topic)
	w.Int(usageChannel, int64(u.Key.Channel))
	w.Int(usageTail, u.PublicationTail)
	w.Int(usageOldest, u.Oldest)
	if len(u.WaitingPublishers) > 0 {
		w.Ints(usageWaitingPublishers, u.WaitingPublishers)
	}
	if len(u.WaitingSubscribers) > 0 {
		w.Ints(usageWaitingSubscribers, u.WaitingSubscribers)
	}
	return w.Bytes(), nil
}

// DecodeUsage decodes channel usage.
func (c *Codec) DecodeUsage(data []byte) (*types.Usage, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}
	u := &types.Usage{
		Key: types.UsageKey{
			Topic:   r.String(usageTopic),
			Channel: int(r.Int(usageChannel, 0)),
		},
		PublicationTail:    r.Int(usageTail, 0),
		Oldest:             r.Int(usageOldest, 0),
		WaitingPublishers:  r.Ints(usageWaitingPublishers),
		WaitingSubscribers: r.Ints(usageWaitingSubscribers),
	}
	return u, r.Err()
}

// Subscription fields.
const (
	subTopic uint32 = iota + 1
	subChannel
	subGroup
	subID
	subHead
	subCommitted
	subRead
	subOwner
	subFilter    // v2
	subConverter // v2
	subCreatedAt // v2
)

// EncodeSubscription encodes a subscription.
func (c *Codec) EncodeSubscription(s *types.Subscription) ([]byte, error) {
	w := NewWriter(c.version)
	w.String(subTopic, s.Key.Topic)
	w.Int(subChannel, int64(s.Key.Channel))
	w.String(subGroup, s.Key.Group)
	w.UUID(subID, s.SubscriptionID)
	w.Int(subHead, s.Head)
	w.Position(subCommitted, s.Committed)
	w.Position(subRead, s.Read)
	if !s.Owner.IsNull() {
		w.Subscriber(subOwner, s.Owner)
	}
	if w.Version() >= Version2 {
		w.String(subFilter, s.Filter)
		w.String(subConverter, s.Converter)
		w.Time(subCreatedAt, s.CreatedAt)
	}
	return w.Bytes(), nil
}

// DecodeSubscription decodes a subscription.
func (c *Codec) DecodeSubscription(data []byte) (*types.Subscription, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}
	s := &types.Subscription{
		Key: types.SubscriptionKey{
			Topic:   r.String(subTopic),
			Channel: int(r.Int(subChannel, 0)),
			Group:   r.String(subGroup),
		},
		SubscriptionID: r.UUID(subID),
		Head:           r.Int(subHead, 0),
		Owner:          r.Subscriber(subOwner),
	}
	start := types.Position{Page: s.Head, Offset: -1}
	s.Committed = r.Position(subCommitted, start)
	s.Read = r.Position(subRead, s.Committed)
	if r.Version() >= Version2 {
		s.Filter = r.String(subFilter)
		s.Converter = r.String(subConverter)
		s.CreatedAt = r.Time(subCreatedAt)
	}
	return s, r.Err()
}

// SubscriberInfo fields.
const (
	infoTopic uint32 = iota + 1
	infoGroup
	infoSubscriber
	infoOwnerUUID
	infoSubscriptionID
	infoLastHeartbeat
	infoConnectedAt // v2
)

// EncodeSubscriberInfo encodes a subscriber liveness record.
func (c *Codec) EncodeSubscriberInfo(i *types.SubscriberInfo) ([]byte, error) {
	w := NewWriter(c.version)
	w.String(infoTopic, i.Key.Topic)
	w.String(infoGroup, i.Key.Group)
	w.Subscriber(infoSubscriber, i.Key.Subscriber)
	w.UUID(infoOwnerUUID, i.OwnerUUID)
	w.UUID(infoSubscriptionID, i.SubscriptionID)
	w.Time(infoLastHeartbeat, i.LastHeartbeat)
	if w.Version() >= Version2 {
		w.Time(infoConnectedAt, i.ConnectedAt)
	}
	return w.Bytes(), nil
}

// DecodeSubscriberInfo decodes a subscriber liveness record.
func (c *Codec) DecodeSubscriberInfo(data []byte) (*types.SubscriberInfo, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}
	i := &types.SubscriberInfo{
		Key: types.SubscriberKey{
			Topic:      r.String(infoTopic),
			Group:      r.String(infoGroup),
			Subscriber: r.Subscriber(infoSubscriber),
		},
		OwnerUUID:      r.UUID(infoOwnerUUID),
		SubscriptionID: r.UUID(infoSubscriptionID),
		LastHeartbeat:  r.Time(infoLastHeartbeat),
	}
	if r.Version() >= Version2 {
		i.ConnectedAt = r.Time(infoConnectedAt)
	}
	return i, r.Err()
}
