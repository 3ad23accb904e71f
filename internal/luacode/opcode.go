// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

// OpCode is one of the 38 Lua 5.1 instruction opcodes. Its numeric value
// matches the reference implementation's encoding, which is load-bearing:
// the decoder reads the low 6 bits of each instruction word directly into
// an OpCode.
type OpCode uint8

// The 38 Lua 5.1 opcodes, in their on-the-wire numeric order.
const (
	OpMove OpCode = iota
	OpLoadK
	OpLoadBool
	OpLoadNil
	OpGetUpval
	OpGetGlobal
	OpGetTable
	OpSetGlobal
	OpSetUpval
	OpSetTable
	OpNewTable
	OpSelf
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpUnm
	OpNot
	OpLen
	OpConcat
	OpJmp
	OpEq
	OpLt
	OpLe
	OpTest
	OpTestSet
	OpCall
	OpTailCall
	OpReturn
	OpForLoop
	OpForPrep
	OpTForLoop
	OpSetList
	OpClose
	OpClosure
	OpVararg

	numOpCodes
)

// OpMode describes how an instruction's operand fields are laid out.
type OpMode uint8

const (
	// OpModeABC is the iABC layout: 6-bit opcode, 8-bit A, 9-bit C, 9-bit B.
	OpModeABC OpMode = iota
	// OpModeABx is the iABx layout: 6-bit opcode, 8-bit A, 18-bit unsigned Bx.
	OpModeABx
	// OpModeAsBx is the iAsBx layout: 6-bit opcode, 8-bit A, 18-bit signed sBx.
	OpModeAsBx
)

// opModes gives the operand layout for each opcode. The mapping is part of
// the bytecode format, not a free choice.
var opModes = [numOpCodes]OpMode{
	OpMove:     OpModeABC,
	OpLoadK:    OpModeABx,
	OpLoadBool: OpModeABC,
	OpLoadNil:  OpModeABC,
	OpGetUpval: OpModeABC,
	OpGetGlobal: OpModeABx,
	OpGetTable: OpModeABC,
	OpSetGlobal: OpModeABx,
	OpSetUpval: OpModeABC,
	OpSetTable: OpModeABC,
	OpNewTable: OpModeABC,
	OpSelf:     OpModeABC,
	OpAdd:      OpModeABC,
	OpSub:      OpModeABC,
	OpMul:      OpModeABC,
	OpDiv:      OpModeABC,
	OpMod:      OpModeABC,
	OpPow:      OpModeABC,
	OpUnm:      OpModeABC,
	OpNot:      OpModeABC,
	OpLen:      OpModeABC,
	OpConcat:   OpModeABC,
	OpJmp:      OpModeAsBx,
	OpEq:       OpModeABC,
	OpLt:       OpModeABC,
	OpLe:       OpModeABC,
	OpTest:     OpModeABC,
	OpTestSet:  OpModeABC,
	OpCall:     OpModeABC,
	OpTailCall: OpModeABC,
	OpReturn:   OpModeABC,
	OpForLoop:  OpModeAsBx,
	OpForPrep:  OpModeAsBx,
	OpTForLoop: OpModeABC,
	OpSetList:  OpModeABC,
	OpClose:    OpModeABC,
	OpClosure:  OpModeABx,
	OpVararg:   OpModeABC,
}

// Mode reports how op's operands are encoded. It panics if op is not a
// valid opcode; callers that decoded op from a bytecode stream should
// check [OpCode.Valid] first.
func (op OpCode) Mode() OpMode {
	return opModes[op]
}

// Valid reports whether op is one of the 38 defined Lua 5.1 opcodes.
func (op OpCode) Valid() bool {
	return op < numOpCodes
}
