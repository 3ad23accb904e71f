// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

// Package luacode decodes the binary chunk format produced by the
// reference Lua 5.1 compiler (luac, version 0x51, format 0) into a tree
// of [Prototype] values: instructions, constants, nested prototypes, and
// debug metadata. It does not compile Lua source; it only reads the
// compiler's output.
package luacode

// Signature is the four-byte magic that begins every Lua binary chunk.
const Signature = "\x1bLua"

const (
	luaVersion51 = 0x51
	luaFormat0   = 0
)

// FieldsPerFlush is the number of array elements SETLIST assigns per
// instruction before needing another SETLIST.
const FieldsPerFlush = 50
