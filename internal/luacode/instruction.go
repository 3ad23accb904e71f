// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import "fmt"

// sBxBias is subtracted from the raw unsigned Bx field to recover a signed
// sBx value for iAsBx instructions.
const sBxBias = 131071

// Instruction is a single decoded Lua 5.1 bytecode word. The bit layout,
// low bits first, is:
//
//	bits  0– 5  opcode  (6 bits)
//	bits  6–13  A       (8 bits)
//	bits 14–22  C       (9 bits)   [iABC only]
//	bits 23–31  B       (9 bits)   [iABC only]
//	bits 14–31  Bx      (18 bits)  [iABx]
//	bits 14–31  sBx     (18 bits, biased by 131071) [iAsBx]
type Instruction uint32

// NewABC builds an iABC-mode instruction. Tests use it to assemble
// bytecode by hand.
func NewABC(op OpCode, a, b, c uint16) Instruction {
	return Instruction(uint32(op)&0x3f | uint32(a&0xff)<<6 | uint32(c&0x1ff)<<14 | uint32(b&0x1ff)<<23)
}

// NewABx builds an iABx-mode instruction.
func NewABx(op OpCode, a uint8, bx uint32) Instruction {
	return Instruction(uint32(op)&0x3f | uint32(a)<<6 | (bx&0x3ffff)<<14)
}

// NewAsBx builds an iAsBx-mode instruction.
func NewAsBx(op OpCode, a uint8, sbx int32) Instruction {
	return Instruction(uint32(op)&0x3f | uint32(a)<<6 | (uint32(sbx+sBxBias)&0x3ffff)<<14)
}

// OpCode returns the instruction's opcode, the low 6 bits of the word.
func (i Instruction) OpCode() OpCode {
	return OpCode(i & 0x3f)
}

// Mode returns the operand layout for the instruction's opcode.
func (i Instruction) Mode() OpMode {
	return i.OpCode().Mode()
}

// A returns the 8-bit A operand, present in every instruction mode.
func (i Instruction) A() uint8 {
	return uint8(i>>6) & 0xff
}

// B returns the 9-bit B operand. Only meaningful in iABC mode.
func (i Instruction) B() uint16 {
	return uint16(i>>23) & 0x1ff
}

// C returns the 9-bit C operand. Only meaningful in iABC mode.
func (i Instruction) C() uint16 {
	return uint16(i>>14) & 0x1ff
}

// Bx returns the 18-bit unsigned Bx operand. Only meaningful in iABx mode.
func (i Instruction) Bx() uint32 {
	return uint32(i>>14) & 0x3ffff
}

// SBx returns the signed sBx operand (Bx biased by -131071). Only
// meaningful in iAsBx mode.
func (i Instruction) SBx() int32 {
	return int32(i.Bx()) - sBxBias
}

// IsConstant reports whether an RK operand (a B or C field) refers to the
// constant table rather than a register: true when the field is >= 256.
func IsConstant(rk uint16) bool {
	return rk >= 256
}

// ConstantIndex returns the constant-table index encoded by an RK operand
// for which [IsConstant] is true.
func ConstantIndex(rk uint16) int {
	return int(rk) - 256
}

func (i Instruction) String() string {
	switch i.Mode() {
	case OpModeABx:
		return fmt.Sprintf("%-10s %d %d", i.OpCode(), i.A(), i.Bx())
	case OpModeAsBx:
		return fmt.Sprintf("%-10s %d %d", i.OpCode(), i.A(), i.SBx())
	default:
		return fmt.Sprintf("%-10s %d %d %d", i.OpCode(), i.A(), i.B(), i.C())
	}
}
