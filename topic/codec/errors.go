// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"

	"github.com/absmach/fluxtopic/topic/types"
)

// Error codes of result errors on the wire. Code 0 carries only a message.
var errorCodes = []error{
	nil,
	types.ErrNilElement,
	types.ErrElementTooLarge,
	types.ErrInvalidChannel,
	types.ErrSubscriptionConflict,
	types.ErrInvalidFilter,
	types.ErrInvalidConverter,
	types.ErrNoSubscription,
	types.ErrInvalidPhase,
	types.ErrMissingPages,
}

// remoteError is a decoded result error. It matches its sentinel with errors.Is
// and keeps the sender's message.
type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.sentinel }

func errorCode(err error) int64 {
	for code, sentinel := range errorCodes {
		if sentinel != nil && errors.Is(err, sentinel) {
			return int64(code)
		}
	}
	return 0
}

func writeError(w *Writer, codeTag, msgTag uint32, err error) {
	if err == nil {
		return
	}
	w.Int(codeTag, errorCode(err))
	w.String(msgTag, err.Error())
}

func readError(r *Reader, codeTag, msgTag uint32) error {
	if !r.Has(codeTag) && !r.Has(msgTag) {
		return nil
	}
	code := r.Int(codeTag, 0)
	msg := r.String(msgTag)
	if code <= 0 || code >= int64(len(errorCodes)) {
		return errors.New(msg)
	}
	sentinel := errorCodes[code]
	if msg == "" || msg == sentinel.Error() {
		return sentinel
	}
	return &remoteError{sentinel: sentinel, msg: msg}
}
