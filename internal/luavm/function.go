// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luavm

import (
	"slices"

	"lua51vm.256lights.llc/vm/internal/luacode"
)

// GoFunction is a callback for a Lua function implemented in Go. It
// receives its arguments in direct order and returns its results in
// direct order, or a non-nil error to raise a Lua error carrying the
// error's message as a string value.
type GoFunction func(*Interp, []value) ([]value, error)

type function interface {
	value
	functionID() uint64
}

var (
	_ function = (*goFunction)(nil)
	_ function = (*luaFunction)(nil)
)

type goFunction struct {
	id   uint64
	name string
	cb   GoFunction
}

func newGoFunction(name string, cb GoFunction) *goFunction {
	return &goFunction{id: nextID(), name: name, cb: cb}
}

func (f *goFunction) valueType() Type    { return TypeFunction }
func (f *goFunction) functionID() uint64 { return f.id }

type luaFunction struct {
	id       uint64
	proto    *luacode.Prototype
	upvalues []*upvalue
}

func (f *luaFunction) valueType() Type    { return TypeFunction }
func (f *luaFunction) functionID() uint64 { return f.id }

// An upvalue is a variable captured by a closure from an enclosing
// function's registers. It is "open" while it still refers to a live
// stack slot and "closed" once that slot has gone out of scope, at which
// point its value is copied into storage.
type upvalue struct {
	stackIndex int
	storage    value
}

func (uv *upvalue) isOpen() bool {
	return uv.stackIndex >= 0
}

func closedUpvalue(v value) *upvalue {
	return &upvalue{stackIndex: -1, storage: v}
}

// openUpvalues tracks upvalues in an interpreter that still refer to a
// live register, so that two closures capturing the same variable share
// a single cell.
type openUpvalues struct {
	list []*upvalue
}

// stackUpvalue returns the [*upvalue] for absolute stack index i,
// creating and recording one if this is the first closure to capture it.
func (o *openUpvalues) stackUpvalue(i int) *upvalue {
	idx := slices.IndexFunc(o.list, func(uv *upvalue) bool { return uv.stackIndex == i })
	if idx != -1 {
		return o.list[idx]
	}
	uv := &upvalue{stackIndex: i}
	o.list = append(o.list, uv)
	return uv
}

// close detaches every open upvalue whose stack index is at or above
// bottom, copying its current value into off-stack storage. This is the
// semantics of the Lua 5.1 CLOSE instruction: it applies to every
// upvalue referring to a register about to go out of scope, not just the
// single register named by the instruction's A operand.
func (o *openUpvalues) close(stack []value, bottom int) {
	n := 0
	for _, uv := range o.list {
		if uv.isOpen() && uv.stackIndex >= bottom {
			uv.storage = stack[uv.stackIndex]
			uv.stackIndex = -1
		} else {
			o.list[n] = uv
			n++
		}
	}
	clear(o.list[n:])
	o.list = o.list[:n]
}

func (o *openUpvalues) resolve(stack []value, uv *upvalue) *value {
	if uv.isOpen() {
		return &stack[uv.stackIndex]
	}
	return &uv.storage
}
