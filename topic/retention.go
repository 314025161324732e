// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/types"
)

// retainedFrom returns the lowest page of a channel that some group still
// needs. Without subscriptions nothing below the tail is needed.
func retainedFrom(rec storage.Records, u *types.Usage) (int64, error) {
	subs, err := rec.Subscriptions(u.Key.Topic)
	if err != nil {
		return 0, err
	}
	floor := u.PublicationTail
	for _, s := range subs {
		if s.Key.Channel == u.Key.Channel {
			floor = min(floor, s.RetainedFrom())
		}
	}
	return max(floor, 0), nil
}

// full reports whether opening the page after the tail would exceed MaxPages.
func full(cfg types.TopicConfig, u *types.Usage, floor int64) bool {
	return cfg.MaxPages > 0 && u.PublicationTail+1-floor+1 > cfg.MaxPages
}

// retain drops pages no group needs and returns the tokens of publishers that
// were waiting for space when the channel is no longer full. Consumed pages are
// kept when RetainConsumed is set, unless MaxPages forces them out oldest first.
func (e *Engine) retain(rec storage.Records, cfg types.TopicConfig, u *types.Usage) ([]int64, error) {
	floor, err := retainedFrom(rec, u)
	if err != nil {
		return nil, err
	}
	ids, err := rec.PageIDs(u.Key.Topic, u.Key.Channel)
	if err != nil {
		return nil, err
	}

	stored := int64(len(ids))
	for _, id := range ids {
		if id >= floor || id >= u.PublicationTail {
			break
		}
		if cfg.RetainConsumed && (cfg.MaxPages == 0 || stored <= cfg.MaxPages) {
			break
		}
		if err := rec.DeletePage(types.PageKey{Topic: u.Key.Topic, Channel: u.Key.Channel, Page: id}); err != nil {
			return nil, err
		}
		stored--
		ids = ids[1:]
	}
	if len(ids) > 0 {
		u.Oldest = ids[0]
	} else {
		u.Oldest = u.PublicationTail
	}

	if full(cfg, u, floor) || len(u.WaitingPublishers) == 0 {
		return nil, nil
	}
	return u.ReleasePublishers(), nil
}
