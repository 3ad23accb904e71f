// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import "fmt"

// DecodeError describes why a byte stream could not be decoded as a Lua
// 5.1 binary chunk.
type DecodeError struct {
	Offset int64
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode lua chunk: offset %d: %s", e.Offset, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newDecodeError(offset int64, format string, args ...any) error {
	return &DecodeError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

func wrapDecodeError(offset int64, err error, format string, args ...any) error {
	return &DecodeError{Offset: offset, Reason: fmt.Sprintf(format, args...), Err: err}
}

var (
	// errBadSignature is returned when the chunk does not begin with
	// [Signature].
	errBadSignature = fmt.Errorf("not a lua binary chunk (bad signature)")

	// errUnsupportedVersion is returned when the chunk's version byte is
	// not 0x51 (Lua 5.1).
	errUnsupportedVersion = fmt.Errorf("unsupported lua bytecode version (only 5.1 / 0x51 is supported)")

	// errUnsupportedFormat is returned when the chunk's format byte is
	// nonzero, i.e. not the official format.
	errUnsupportedFormat = fmt.Errorf("unsupported lua bytecode format (only official format 0 is supported)")

	// errUnknownConstantTag is returned when a prototype's constant table
	// contains a type tag the decoder does not recognize. The reference
	// decoder this package was ported from silently ignores unknown
	// constant tags, which corrupts every later constant index; this
	// package treats it as fatal instead.
	errUnknownConstantTag = fmt.Errorf("unknown constant tag")

	// errUnsupportedSize is returned when the chunk declares integer, size_t,
	// or lua_Number widths this package cannot decode.
	errUnsupportedSize = fmt.Errorf("unsupported integer, size_t, or number width")
)
