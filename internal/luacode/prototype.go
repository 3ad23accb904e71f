// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

// Prototype is a compiled Lua function: the instructions, constants, and
// nested function prototypes produced by luac for a single function body,
// plus whatever debug metadata the chunk retained.
type Prototype struct {
	// Source is the chunk name the compiler recorded for this prototype, or
	// "" if the chunk was compiled with debug information stripped. Only
	// the top-level prototype normally carries one in the chunk; [Decode]
	// gives a nested prototype that records no name its parent's Source.
	Source string

	LineDefined     int64
	LastLineDefined int64

	NumParams     uint8
	IsVararg      VarArgFlags
	MaxStackSize  uint8
	NumUpvalues   uint8

	Code      []Instruction
	Constants []Value
	Functions []*Prototype

	// LineInfo maps each instruction in Code to the source line that
	// produced it. Empty if debug information was stripped.
	LineInfo []int64

	// Locals describes the local variables visible at some point during
	// execution, for disassembly and debugging purposes only; the
	// interpreter does not consult it.
	Locals []LocalVariable

	// UpvalueNames holds the debug name of each upvalue, parallel to the
	// closure's upvalue list. Empty if debug information was stripped.
	UpvalueNames []string
}

// LocalVariable is one entry of a prototype's local variable debug table.
type LocalVariable struct {
	Name    string
	StartPC int64
	EndPC   int64
}

// VarArgFlags are the bit flags luac stores in a prototype's is_vararg
// byte. Lua 5.1 only ever sets VarArgIsVararg on the top-level chunk and on
// functions declared with "...", but the decoder preserves whatever bits
// were present.
type VarArgFlags uint8

const (
	VarArgHasArg VarArgFlags = 1 << iota
	VarArgIsVararg
	VarArgNeedsArg
)

// IsVararg reports whether the function accepts a variable number of
// arguments.
func (f VarArgFlags) IsVararg() bool {
	return f&VarArgIsVararg != 0
}
