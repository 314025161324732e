// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"

	"github.com/absmach/fluxtopic/topic/types"
)

const opTag uint32 = 1

// EncodeRequest encodes an operation request.
func (c *Codec) EncodeRequest(req types.Request) ([]byte, error) {
	w := NewWriter(c.version)
	w.Int(opTag, int64(req.Op()))

	switch r := req.(type) {
	case *types.OfferRequest:
		w.String(2, r.Topic)
		w.Int(3, int64(r.Channel))
		w.BytesList(4, r.Elements)
		w.Int(5, r.NotifyOnSpace)
		w.Bool(6, r.SealAfter)
	case *types.PollRequest:
		w.String(2, r.Topic)
		w.Int(3, int64(r.Channel))
		w.String(4, r.Group)
		w.Int(5, r.Page)
		w.Int(6, int64(r.MaxElements))
		w.Int(7, r.NotifyOnEmpty)
		w.Subscriber(8, r.Subscriber)
	case *types.SeekRequest:
		w.String(2, r.Topic)
		w.Int(3, int64(r.Channel))
		w.String(4, r.Group)
		w.Position(5, r.Target)
		w.Subscriber(6, r.Subscriber)
	case *types.CommitRequest:
		w.String(2, r.Topic)
		w.Int(3, int64(r.Channel))
		w.String(4, r.Group)
		w.Position(5, r.Position)
		w.Subscriber(6, r.Subscriber)
	case *types.EnsureSubscriptionRequest:
		w.String(2, r.Topic)
		w.String(3, r.Group)
		w.Subscriber(4, r.Subscriber)
		w.UUID(5, r.SubscriptionID)
		w.Int(6, int64(r.Phase))
		w.Bool(7, r.Reconnect)
		w.Bool(8, r.CreateGroupOnly)
		w.String(9, r.Filter)
		if r.Pages != nil {
			w.Ints(10, r.Pages)
		}
		if w.Version() >= Version2 {
			w.String(11, r.Converter)
			w.Bool(12, r.FromBeginning)
			w.Time(13, r.ConnectedAt)
		}
	case *types.HeadAdvanceRequest:
		w.String(2, r.Topic)
		w.Int(3, int64(r.Channel))
		w.String(4, r.Group)
		w.Int(5, r.Proposed)
	case *types.TailAdvanceRequest:
		w.String(2, r.Topic)
		w.Int(3, int64(r.Channel))
		w.Int(5, r.Proposed)
	case *types.InitialiseRequest:
		w.String(2, r.Topic)
	case *types.HeartbeatRequest:
		w.String(2, r.Topic)
		w.String(3, r.Group)
		w.Subscriber(4, r.Subscriber)
		w.UUID(5, r.SubscriptionID)
		if w.Version() >= Version2 {
			w.Time(6, r.ConnectedAt)
		}
	case *types.EvictRequest:
		w.String(2, r.Topic)
		w.String(3, r.Group)
		w.Subscriber(4, r.Subscriber)
	case *types.CleanupRequest:
		w.List(2, len(r.Members), func(i int, n *Writer) {
			m := r.Members[i]
			n.Int(1, int64(m.ID))
			n.UUID(2, m.UUID)
			n.Time(3, m.JoinedAt)
		})
	case *types.CloseSubscriptionRequest:
		w.String(2, r.Topic)
		w.String(3, r.Group)
		w.Subscriber(4, r.Subscriber)
	case *types.DestroySubscriptionRequest:
		w.String(2, r.Topic)
		w.String(3, r.Group)
		w.UUID(4, r.SubscriptionID)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownOpType, req)
	}
	return w.Bytes(), nil
}

// DecodeRequest decodes an operation request.
func (c *Codec) DecodeRequest(data []byte) (types.Request, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}

	var req types.Request
	switch op := types.OpType(r.Int(opTag, 0)); op {
	case types.OpOffer:
		req = &types.OfferRequest{
			Topic:         r.String(2),
			Channel:       int(r.Int(3, 0)),
			Elements:      r.BytesList(4),
			NotifyOnSpace: r.Int(5, 0),
			SealAfter:     r.Bool(6),
		}
	case types.OpPoll:
		req = &types.PollRequest{
			Topic:         r.String(2),
			Channel:       int(r.Int(3, 0)),
			Group:         r.String(4),
			Page:          r.Int(5, 0),
			MaxElements:   int(r.Int(6, 0)),
			NotifyOnEmpty: r.Int(7, 0),
			Subscriber:    r.Subscriber(8),
		}
	case types.OpSeek:
		req = &types.SeekRequest{
			Topic:      r.String(2),
			Channel:    int(r.Int(3, 0)),
			Group:      r.String(4),
			Target:     r.Position(5, types.PositionNone),
			Subscriber: r.Subscriber(6),
		}
	case types.OpCommit:
		req = &types.CommitRequest{
			Topic:      r.String(2),
			Channel:    int(r.Int(3, 0)),
			Group:      r.String(4),
			Position:   r.Position(5, types.PositionNone),
			Subscriber: r.Subscriber(6),
		}
	case types.OpEnsureSubscription:
		e := &types.EnsureSubscriptionRequest{
			Topic:           r.String(2),
			Group:           r.String(3),
			Subscriber:      r.Subscriber(4),
			SubscriptionID:  r.UUID(5),
			Phase:           types.EnsurePhase(r.Int(6, 0)),
			Reconnect:       r.Bool(7),
			CreateGroupOnly: r.Bool(8),
			Filter:          r.String(9),
			Pages:           r.Ints(10),
		}
		if r.Version() >= Version2 {
			e.Converter = r.String(11)
			e.FromBeginning = r.Bool(12)
			e.ConnectedAt = r.Time(13)
		}
		req = e
	case types.OpHeadAdvance:
		req = &types.HeadAdvanceRequest{
			Topic:    r.String(2),
			Channel:  int(r.Int(3, 0)),
			Group:    r.String(4),
			Proposed: r.Int(5, 0),
		}
	case types.OpTailAdvance:
		req = &types.TailAdvanceRequest{
			Topic:    r.String(2),
			Channel:  int(r.Int(3, 0)),
			Proposed: r.Int(5, 0),
		}
	case types.OpInitialise:
		req = &types.InitialiseRequest{Topic: r.String(2)}
	case types.OpHeartbeat:
		h := &types.HeartbeatRequest{
			Topic:          r.String(2),
			Group:          r.String(3),
			Subscriber:     r.Subscriber(4),
			SubscriptionID: r.UUID(5),
		}
		if r.Version() >= Version2 {
			h.ConnectedAt = r.Time(6)
		}
		req = h
	case types.OpEvict:
		req = &types.EvictRequest{
			Topic:      r.String(2),
			Group:      r.String(3),
			Subscriber: r.Subscriber(4),
		}
	case types.OpCleanup:
		cr := &types.CleanupRequest{}
		for _, n := range r.List(2) {
			cr.Members = append(cr.Members, types.Member{
				ID:       int32(n.Int(1, 0)),
				UUID:     n.UUID(2),
				JoinedAt: n.Time(3),
			})
			if n.Err() != nil {
				return nil, n.Err()
			}
		}
		req = cr
	case types.OpCloseSubscription:
		req = &types.CloseSubscriptionRequest{
			Topic:      r.String(2),
			Group:      r.String(3),
			Subscriber: r.Subscriber(4),
		}
	case types.OpDestroySubscription:
		req = &types.DestroySubscriptionRequest{
			Topic:          r.String(2),
			Group:          r.String(3),
			SubscriptionID: r.UUID(4),
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownOpType, op)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

// EncodeResponse encodes an operation response.
func (c *Codec) EncodeResponse(resp types.Response) ([]byte, error) {
	w := NewWriter(c.version)
	w.Int(opTag, int64(resp.Op()))

	switch r := resp.(type) {
	case *types.OfferResponse:
		w.Int(2, int64(r.Status))
		w.Int(3, r.Page)
		w.Int(4, int64(r.Accepted))
		w.Int(5, int64(r.PageFreeBytes))
		w.Int(6, int64(r.FirstOffset))
		if len(r.Errors) > 0 {
			idx := make([]int, 0, len(r.Errors))
			for i := range r.Errors {
				idx = append(idx, i)
			}
			w.List(7, len(idx), func(i int, n *Writer) {
				n.Int(1, int64(idx[i]))
				writeError(n, 2, 3, r.Errors[idx[i]])
			})
		}
		if len(r.Notify) > 0 {
			w.Ints(8, r.Notify)
		}
	case *types.PollResponse:
		w.Int(2, int64(r.Code()))
		w.Int(3, int64(r.NextOffset))
		w.List(4, len(r.Elements), func(i int, n *Writer) {
			n.Position(1, r.Elements[i].Position)
			n.Raw(2, r.Elements[i].Value)
		})
		w.Int(5, r.Head)
		w.Int(6, r.NextPage)
	case *types.SeekResponse:
		w.Int(2, int64(r.Status))
		if r.Result != nil {
			w.Bool(5, true)
			w.Int(3, r.Result.Head)
			if r.Result.Position != nil {
				w.Position(4, *r.Result.Position)
			}
		}
	case *types.CommitResponse:
		w.Int(2, int64(r.Status))
		w.Position(3, r.Committed)
		w.Int(4, r.Head)
		if len(r.Notify) > 0 {
			w.Ints(5, r.Notify)
		}
	case *types.EnsureSubscriptionResponse:
		w.UUID(2, r.SubscriptionID)
		w.List(3, len(r.Channels), func(i int, n *Writer) {
			ch := r.Channels[i]
			n.Int(1, int64(ch.Channel))
			n.Int(2, ch.Page)
			writeError(n, 3, 4, ch.Err)
		})
	case *types.AdvanceResponse:
		w.Int(2, r.Previous)
		if len(r.Notify) > 0 {
			w.Ints(3, r.Notify)
		}
	case *types.InitialiseResponse:
		w.Ints(2, r.Tails)
	case *types.HeartbeatResponse:
	case *types.EvictResponse:
		w.Bool(2, r.Removed)
	case *types.CleanupResponse:
		w.List(2, len(r.Evicted), func(i int, n *Writer) {
			ev := r.Evicted[i]
			n.String(1, ev.Topic)
			n.String(2, ev.Group)
			n.Subscriber(3, ev.Subscriber)
			n.Int(4, int64(ev.Reason))
		})
		if len(r.Failed) > 0 {
			failed := make([][]byte, len(r.Failed))
			for i, t := range r.Failed {
				failed[i] = []byte(t)
			}
			w.BytesList(3, failed)
		}
	case *types.CloseSubscriptionResponse:
		w.Int(2, int64(r.Closed))
	case *types.DestroySubscriptionResponse:
		w.Int(2, int64(r.Destroyed))
		if len(r.Notify) > 0 {
			w.Ints(3, r.Notify)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownOpType, resp)
	}
	return w.Bytes(), nil
}

// DecodeResponse decodes an operation response.
func (c *Codec) DecodeResponse(data []byte) (types.Response, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}

	var resp types.Response
	switch op := types.OpType(r.Int(opTag, 0)); op {
	case types.OpOffer:
		o := &types.OfferResponse{
			Status:        types.OfferStatus(r.Int(2, 0)),
			Page:          r.Int(3, 0),
			Accepted:      int(r.Int(4, 0)),
			PageFreeBytes: int(r.Int(5, 0)),
			FirstOffset:   int32(r.Int(6, -1)),
			Notify:        r.Ints(8),
		}
		if items := r.List(7); len(items) > 0 {
			o.Errors = make(map[int]error, len(items))
			for _, n := range items {
				o.Errors[int(n.Int(1, 0))] = readError(n, 2, 3)
			}
		}
		resp = o
	case types.OpPoll:
		status, remaining := types.PollStatusFromCode(int(r.Int(2, 0)))
		p := &types.PollResponse{
			Status:     status,
			Remaining:  remaining,
			NextOffset: int32(r.Int(3, 0)),
			Head:       r.Int(5, 0),
			NextPage:   r.Int(6, types.NoPage),
		}
		for _, n := range r.List(4) {
			p.Elements = append(p.Elements, types.Element{
				Position: n.Position(1, types.PositionNone),
				Value:    n.Raw(2),
			})
		}
		resp = p
	case types.OpSeek:
		s := &types.SeekResponse{Status: types.PollStatus(r.Int(2, 0))}
		if r.Bool(5) {
			s.Result = &types.SeekResult{Head: r.Int(3, 0)}
			if r.Has(4) {
				pos := r.Position(4, types.PositionNone)
				s.Result.Position = &pos
			}
		}
		resp = s
	case types.OpCommit:
		resp = &types.CommitResponse{
			Status:    types.CommitStatus(r.Int(2, 0)),
			Committed: r.Position(3, types.PositionNone),
			Head:      r.Int(4, 0),
			Notify:    r.Ints(5),
		}
	case types.OpEnsureSubscription:
		e := &types.EnsureSubscriptionResponse{SubscriptionID: r.UUID(2)}
		for _, n := range r.List(3) {
			e.Channels = append(e.Channels, types.ChannelPage{
				Channel: int(n.Int(1, 0)),
				Page:    n.Int(2, types.NoPage),
				Err:     readError(n, 3, 4),
			})
		}
		resp = e
	case types.OpHeadAdvance, types.OpTailAdvance:
		a := types.NewAdvanceResponse(op, r.Int(2, 0))
		a.Notify = r.Ints(3)
		resp = a
	case types.OpInitialise:
		resp = &types.InitialiseResponse{Tails: r.Ints(2)}
	case types.OpHeartbeat:
		resp = &types.HeartbeatResponse{}
	case types.OpEvict:
		resp = &types.EvictResponse{Removed: r.Bool(2)}
	case types.OpCleanup:
		cr := &types.CleanupResponse{}
		for _, n := range r.List(2) {
			cr.Evicted = append(cr.Evicted, types.Eviction{
				Topic:      n.String(1),
				Group:      n.String(2),
				Subscriber: n.Subscriber(3),
				Reason:     types.EvictionReason(n.Int(4, 0)),
			})
		}
		for _, t := range r.BytesList(3) {
			cr.Failed = append(cr.Failed, string(t))
		}
		resp = cr
	case types.OpCloseSubscription:
		resp = &types.CloseSubscriptionResponse{Closed: int(r.Int(2, 0))}
	case types.OpDestroySubscription:
		resp = &types.DestroySubscriptionResponse{Destroyed: int(r.Int(2, 0)), Notify: r.Ints(3)}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownOpType, op)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}
