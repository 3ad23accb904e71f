// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luavm

import (
	"fmt"

	"lua51vm.256lights.llc/vm/internal/luacode"
)

// RuntimeError is an error raised by the interpreter itself (as opposed
// to one raised by a Lua script calling error()). Value holds the Lua
// value that was raised; for interpreter-raised errors this is always a
// stringValue. Where is the "source:line" the error occurred at, filled
// in by the innermost [Interp.callLua] frame that produced the error;
// it holds only the source name (or "?") if the chunk carries no line
// debug information.
type RuntimeError struct {
	Value   value
	Message string
	Where   string
}

func (e *RuntimeError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = toDisplayString(e.Value)
	}
	if e.Where == "" {
		return msg
	}
	return e.Where + ": " + msg
}

func runtimeErrorf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return &RuntimeError{Value: stringValue(msg), Message: msg}
}

// LuaError wraps a Lua value raised via the error() built-in (faults the
// interpreter itself detects are [RuntimeError]s), letting Go callers recover the original Lua value with
// [AsLuaValue]. Where carries the same "source:line" meaning as
// [RuntimeError.Where].
type LuaError struct {
	Value value
	Where string
}

func (e *LuaError) Error() string {
	msg := toDisplayString(e.Value)
	if e.Where == "" {
		return msg
	}
	return e.Where + ": " + msg
}

func errorValue(v value) error {
	return &LuaError{Value: v}
}

// AsLuaValue returns the Lua value carried by err, formatting err's
// message as a string value if err did not originate from a [LuaError]
// or [RuntimeError].
func AsLuaValue(err error) any {
	switch err := err.(type) {
	case *LuaError:
		return displayAny(err.Value)
	case *RuntimeError:
		return displayAny(err.Value)
	default:
		return err.Error()
	}
}

// sourceLocation formats proto's source name and the line that produced
// the instruction at pc as "source:line", matching luac's own
// diagnostic prefix. Line information is omitted (leaving just the
// source name) if the chunk was compiled with debug information
// stripped or pc falls outside the recorded range.
func sourceLocation(proto *luacode.Prototype, pc int) string {
	name := proto.Source
	if name == "" {
		name = "?"
	}
	if pc >= 0 && pc < len(proto.LineInfo) {
		return fmt.Sprintf("%s:%d", name, proto.LineInfo[pc])
	}
	return name
}

// locate attaches proto's source location for pc to err, if err is one
// of the interpreter's own error types and doesn't already carry a
// location. Errors are located by the innermost frame that produced
// them, not by every frame they unwind through.
func locate(err error, proto *luacode.Prototype, pc int) {
	switch e := err.(type) {
	case *RuntimeError:
		if e.Where == "" {
			e.Where = sourceLocation(proto, pc)
		}
	case *LuaError:
		if e.Where == "" {
			e.Where = sourceLocation(proto, pc)
		}
	}
}

func displayAny(v value) any {
	switch v := v.(type) {
	case nil:
		return nil
	case booleanValue:
		return bool(v)
	case numberValue:
		return float64(v)
	case stringValue:
		return string(v)
	default:
		return toDisplayString(v)
	}
}
