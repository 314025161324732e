// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"fmt"

	"github.com/absmach/fluxtopic/topic/storage"
	"github.com/absmach/fluxtopic/topic/types"
)

// offer appends elements to the tail page of a channel. Elements are taken in
// order until the page runs out of space; elements that are individually
// invalid are reported by index and skipped. The caller resumes a partial
// offer at index Accepted+len(Errors).
func (e *Engine) offer(rec storage.Records, req *types.OfferRequest) (*types.OfferResponse, error) {
	cfg := e.Config(req.Topic)
	if err := checkChannel(cfg, req.Channel); err != nil {
		return nil, err
	}
	u, err := e.ensureChannel(rec, req.Topic, req.Channel)
	if err != nil {
		return nil, err
	}
	page, err := tailPage(rec, u)
	if err != nil {
		return nil, err
	}

	resp := &types.OfferResponse{
		Status:      types.OfferSuccess,
		Page:        page.Key.Page,
		FirstOffset: -1,
	}
	dirty := false

	if page.Sealed {
		if resp.Status, err = e.noSpace(rec, cfg, u, req.NotifyOnSpace); err != nil {
			return nil, err
		}
	} else {
		for i, el := range req.Elements {
			if err := validateElement(cfg, el); err != nil {
				if resp.Errors == nil {
					resp.Errors = make(map[int]error)
				}
				resp.Errors[i] = err
				continue
			}
			if !page.Fits(len(el), cfg.PageCapacity) {
				page.Sealed = true
				dirty = true
				if resp.Status, err = e.noSpace(rec, cfg, u, req.NotifyOnSpace); err != nil {
					return nil, err
				}
				break
			}
			off := page.Append(el)
			if resp.FirstOffset < 0 {
				resp.FirstOffset = off
			}
			resp.Accepted++
			dirty = true
		}
		if resp.Status == types.OfferSuccess && req.SealAfter && !page.Sealed {
			page.Sealed = true
			dirty = true
		}
	}

	if page.Sealed {
		resp.PageFreeBytes = cfg.PageCapacity
	} else {
		resp.PageFreeBytes = page.FreeBytes(cfg.PageCapacity)
	}

	if dirty {
		if err := rec.PutPage(page); err != nil {
			return nil, err
		}
	}
	if resp.Accepted > 0 && len(u.WaitingSubscribers) > 0 {
		resp.Notify = u.ReleaseSubscribers()
	}
	if resp.Accepted > 0 || resp.Status == types.OfferTopicFull {
		if err := rec.PutUsage(u); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func validateElement(cfg types.TopicConfig, el []byte) error {
	if el == nil {
		return types.ErrNilElement
	}
	if len(el) > cfg.MaxElementSize {
		return fmt.Errorf("%w: %d > %d", types.ErrElementTooLarge, len(el), cfg.MaxElementSize)
	}
	return nil
}

// noSpace decides between PageSealed and TopicFull for a sealed tail page and
// parks the publisher's token when the topic is full.
func (e *Engine) noSpace(rec storage.Records, cfg types.TopicConfig, u *types.Usage, token int64) (types.OfferStatus, error) {
	if cfg.MaxPages == 0 {
		return types.OfferPageSealed, nil
	}
	floor, err := retainedFrom(rec, u)
	if err != nil {
		return 0, err
	}
	if !full(cfg, u, floor) {
		return types.OfferPageSealed, nil
	}
	u.ParkPublisher(token)
	return types.OfferTopicFull, nil
}
