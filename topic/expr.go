// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topic

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/absmach/fluxtopic/topic/types"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

// Subscription filters and converters are CEL expressions over one element:
//
//	value   bytes   the element payload
//	text    string  the payload as a string
//	json    dyn     the payload parsed as JSON, null if it is not JSON
//	size    int     payload length in bytes
//	channel int     channel of the element
//	page    int     page id of the element
//	offset  int     offset within the page
//
// A filter evaluates to bool; a converter evaluates to bytes or string.

type exprKind uint8

const (
	exprFilter exprKind = iota
	exprConverter
)

type exprKey struct {
	kind exprKind
	expr string
}

type exprCache struct {
	mu    sync.Mutex
	env   *cel.Env
	err   error
	progs map[exprKey]cel.Program
}

func newExprCache() *exprCache {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.BytesType),
		cel.Variable("text", cel.StringType),
		cel.Variable("json", cel.DynType),
		cel.Variable("size", cel.IntType),
		cel.Variable("channel", cel.IntType),
		cel.Variable("page", cel.IntType),
		cel.Variable("offset", cel.IntType),
	)
	return &exprCache{env: env, err: err, progs: make(map[exprKey]cel.Program)}
}

func (c *exprCache) compile(kind exprKind, expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	sentinel := types.ErrInvalidFilter
	if kind == exprConverter {
		sentinel = types.ErrInvalidConverter
	}
	cacheKey := exprKey{kind: kind, expr: expr}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel, c.err)
	}
	if p, ok := c.progs[cacheKey]; ok {
		return p, nil
	}

	ast, iss := c.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %w", sentinel, iss.Err())
	}
	out := ast.OutputType()
	switch kind {
	case exprFilter:
		if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("%w: result type %s is not bool", sentinel, out)
		}
	case exprConverter:
		if !out.IsExactType(cel.BytesType) && !out.IsExactType(cel.StringType) && !out.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("%w: result type %s is not bytes or string", sentinel, out)
		}
	}
	p, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel, err)
	}
	c.progs[cacheKey] = p
	return p, nil
}

// validate compiles both expressions of a subscription.
func (c *exprCache) validate(filter, converter string) error {
	if _, err := c.compile(exprFilter, filter); err != nil {
		return err
	}
	_, err := c.compile(exprConverter, converter)
	return err
}

// elementView evaluates a subscription's expressions against elements.
type elementView struct {
	filter    cel.Program
	converter cel.Program
}

func (c *exprCache) view(sub *types.Subscription) (elementView, error) {
	f, err := c.compile(exprFilter, sub.Filter)
	if err != nil {
		return elementView{}, err
	}
	conv, err := c.compile(exprConverter, sub.Converter)
	if err != nil {
		return elementView{}, err
	}
	return elementView{filter: f, converter: conv}, nil
}

func (v elementView) activation(pos types.Position, channel int, value []byte) map[string]any {
	var doc any
	if json.Unmarshal(value, &doc) != nil {
		doc = nil
	}
	return map[string]any{
		"value":   value,
		"text":    string(value),
		"json":    doc,
		"size":    int64(len(value)),
		"channel": int64(channel),
		"page":    pos.Page,
		"offset":  int64(pos.Offset),
	}
}

// apply returns the value to hand out and whether the element passes the
// filter. A filter that fails to evaluate rejects the element; a converter that
// fails leaves the value unchanged.
func (v elementView) apply(pos types.Position, channel int, value []byte) ([]byte, bool) {
	if v.filter == nil && v.converter == nil {
		return value, true
	}
	act := v.activation(pos, channel, value)
	if v.filter != nil {
		out, _, err := v.filter.Eval(act)
		if err != nil {
			return nil, false
		}
		if b, ok := out.Value().(bool); !ok || !b {
			return nil, false
		}
	}
	if v.converter != nil {
		out, _, err := v.converter.Eval(act)
		if err != nil {
			return value, true
		}
		if converted, ok := convertedBytes(out); ok {
			return converted, true
		}
	}
	return value, true
}

func convertedBytes(out ref.Val) ([]byte, bool) {
	switch v := out.Value().(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}
