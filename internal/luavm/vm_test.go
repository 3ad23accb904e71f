// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luavm

import (
	"bytes"
	"strings"
	"testing"

	"lua51vm.256lights.llc/vm/internal/luacode"
)

// rk returns the RK operand encoding of constant index k (the high bit
// scheme described in spec.md's RK operand glossary entry).
func rk(k uint16) uint16 { return 256 + k }

func runProto(t *testing.T, proto *luacode.Prototype, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	interp := NewInterp()
	interp.OpenBase(&BaseOptions{Output: &out})
	_, err := interp.Run(proto, args...)
	return out.String(), err
}

// TestPrintHello builds the bytecode a compiler would emit for
// `print("hello")` by hand and checks the captured stdout.
func TestPrintHello(t *testing.T) {
	proto := &luacode.Prototype{
		Constants: []luacode.Value{
			luacode.StringValue("print"),
			luacode.StringValue("hello"),
		},
		Code: []luacode.Instruction{
			luacode.NewABx(luacode.OpGetGlobal, 0, 0),
			luacode.NewABx(luacode.OpLoadK, 1, 1),
			luacode.NewABC(luacode.OpCall, 0, 2, 1),
			luacode.NewABC(luacode.OpReturn, 0, 1, 0),
		},
		MaxStackSize: 2,
	}
	out, err := runProto(t, proto)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "hello\n" {
		t.Errorf("output = %q, want %q", out, "hello\n")
	}
}

// TestArithmeticPrecedence builds `local x = 1 + 2 * 3 ; print(x)`.
func TestArithmeticPrecedence(t *testing.T) {
	proto := &luacode.Prototype{
		Constants: []luacode.Value{
			luacode.NumberValue(1),
			luacode.NumberValue(2),
			luacode.NumberValue(3),
			luacode.StringValue("print"),
		},
		Code: []luacode.Instruction{
			luacode.NewABC(luacode.OpMul, 0, rk(1), rk(2)), // R0 = 2*3
			luacode.NewABC(luacode.OpAdd, 0, rk(0), 0),     // R0 = 1+R0
			luacode.NewABx(luacode.OpGetGlobal, 1, 3),
			luacode.NewABC(luacode.OpMove, 2, 0, 0),
			luacode.NewABC(luacode.OpCall, 1, 2, 1),
			luacode.NewABC(luacode.OpReturn, 0, 1, 0),
		},
		MaxStackSize: 3,
	}
	out, err := runProto(t, proto)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "7\n" {
		t.Errorf("output = %q, want %q", out, "7\n")
	}
}

// TestTableConstructorAndIndex builds `local t = {10,20,30} ; print(t[2])`.
func TestTableConstructorAndIndex(t *testing.T) {
	proto := &luacode.Prototype{
		Constants: []luacode.Value{
			luacode.NumberValue(10),
			luacode.NumberValue(20),
			luacode.NumberValue(30),
			luacode.StringValue("print"),
			luacode.NumberValue(2), // index key
		},
		Code: []luacode.Instruction{
			luacode.NewABC(luacode.OpNewTable, 0, 0, 0),
			luacode.NewABx(luacode.OpLoadK, 1, 0),
			luacode.NewABx(luacode.OpLoadK, 2, 1),
			luacode.NewABx(luacode.OpLoadK, 3, 2),
			luacode.NewABC(luacode.OpSetList, 0, 3, 1),
			luacode.NewABx(luacode.OpGetGlobal, 1, 3),
			luacode.NewABC(luacode.OpGetTable, 2, 0, rk(4)),
			luacode.NewABC(luacode.OpCall, 1, 2, 1),
			luacode.NewABC(luacode.OpReturn, 0, 1, 0),
		},
		MaxStackSize: 4,
	}
	out, err := runProto(t, proto)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "20\n" {
		t.Errorf("output = %q, want %q", out, "20\n")
	}
}

// TestNumericForLoop builds:
//
//	local sum = 0 ; for i=1,5 do sum = sum + i end ; print(sum)
func TestNumericForLoop(t *testing.T) {
	proto := &luacode.Prototype{
		Constants: []luacode.Value{
			luacode.NumberValue(0),
			luacode.NumberValue(1),
			luacode.NumberValue(5),
			luacode.StringValue("print"),
		},
		Code: []luacode.Instruction{
			luacode.NewABx(luacode.OpLoadK, 4, 0), // R4 = sum = 0
			luacode.NewABx(luacode.OpLoadK, 0, 1), // R0 = init = 1
			luacode.NewABx(luacode.OpLoadK, 1, 2), // R1 = limit = 5
			luacode.NewABx(luacode.OpLoadK, 2, 1), // R2 = step = 1
			luacode.NewAsBx(luacode.OpForPrep, 0, 1),
			luacode.NewABC(luacode.OpAdd, 4, 4, 3), // sum += i
			luacode.NewAsBx(luacode.OpForLoop, 0, -2),
			luacode.NewABx(luacode.OpGetGlobal, 0, 3),
			luacode.NewABC(luacode.OpMove, 1, 4, 0),
			luacode.NewABC(luacode.OpCall, 0, 2, 1),
			luacode.NewABC(luacode.OpReturn, 0, 1, 0),
		},
		MaxStackSize: 5,
	}
	out, err := runProto(t, proto)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "15\n" {
		t.Errorf("output = %q, want %q", out, "15\n")
	}
}

// TestClosureCapturesParameter builds:
//
//	local function f(x) return function() return x end end
//	print(f(42)())
func TestClosureCapturesParameter(t *testing.T) {
	inner := &luacode.Prototype{
		NumUpvalues:  1,
		MaxStackSize: 1,
		Code: []luacode.Instruction{
			luacode.NewABC(luacode.OpGetUpval, 0, 0, 0),
			luacode.NewABC(luacode.OpReturn, 0, 2, 0),
		},
	}
	outer := &luacode.Prototype{
		NumParams:    1,
		MaxStackSize: 2,
		Functions:    []*luacode.Prototype{inner},
		Code: []luacode.Instruction{
			luacode.NewABx(luacode.OpClosure, 1, 0),
			luacode.NewABC(luacode.OpMove, 0, 0, 0), // pseudo: capture R0 (x)
			luacode.NewABC(luacode.OpReturn, 1, 2, 0),
		},
	}
	main := &luacode.Prototype{
		Constants: []luacode.Value{
			luacode.NumberValue(42),
			luacode.StringValue("print"),
		},
		Functions: []*luacode.Prototype{outer},
		Code: []luacode.Instruction{
			luacode.NewABx(luacode.OpClosure, 0, 0),
			luacode.NewABx(luacode.OpLoadK, 1, 0),
			luacode.NewABC(luacode.OpCall, 0, 2, 2), // R0 = f(42)
			luacode.NewABC(luacode.OpCall, 0, 1, 2), // R0 = R0()
			luacode.NewABx(luacode.OpGetGlobal, 1, 1),
			luacode.NewABC(luacode.OpMove, 2, 0, 0),
			luacode.NewABC(luacode.OpCall, 1, 2, 1),
			luacode.NewABC(luacode.OpReturn, 0, 1, 0),
		},
		MaxStackSize: 3,
	}
	out, err := runProto(t, main)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "42\n" {
		t.Errorf("output = %q, want %q", out, "42\n")
	}
}

// TestSharedUpvalueMutation is the counter idiom from spec.md's design
// notes: two calls through the same closure must observe each other's
// SETUPVAL writes, because the upvalue is a shared cell, not a
// value-copy snapshot.
//
//	local function make() local x = 0 ; return function() x = x+1 ; return x end end
//	local c = make() ; c() ; print(c())
func TestSharedUpvalueMutation(t *testing.T) {
	counter := &luacode.Prototype{
		Constants:    []luacode.Value{luacode.NumberValue(1)},
		NumUpvalues:  1,
		MaxStackSize: 1,
		Code: []luacode.Instruction{
			luacode.NewABC(luacode.OpGetUpval, 0, 0, 0),
			luacode.NewABC(luacode.OpAdd, 0, 0, rk(0)),
			luacode.NewABC(luacode.OpSetUpval, 0, 0, 0),
			luacode.NewABC(luacode.OpReturn, 0, 2, 0),
		},
	}
	make_ := &luacode.Prototype{
		Constants:    []luacode.Value{luacode.NumberValue(0)},
		Functions:    []*luacode.Prototype{counter},
		MaxStackSize: 2,
		Code: []luacode.Instruction{
			luacode.NewABx(luacode.OpLoadK, 0, 0), // R0 = x = 0
			luacode.NewABx(luacode.OpClosure, 1, 0),
			luacode.NewABC(luacode.OpMove, 0, 0, 0), // pseudo: capture R0
			luacode.NewABC(luacode.OpReturn, 1, 2, 0),
		},
	}
	main := &luacode.Prototype{
		Constants: []luacode.Value{luacode.StringValue("print")},
		Functions: []*luacode.Prototype{make_},
		Code: []luacode.Instruction{
			luacode.NewABx(luacode.OpClosure, 0, 0),
			luacode.NewABC(luacode.OpCall, 0, 1, 2),  // R0 = c = make()
			luacode.NewABC(luacode.OpMove, 1, 0, 0),  // R1 = c
			luacode.NewABC(luacode.OpCall, 1, 1, 1),  // c() -- discard result
			luacode.NewABC(luacode.OpMove, 1, 0, 0),  // R1 = c
			luacode.NewABC(luacode.OpCall, 1, 1, 2),  // R1 = c()
			luacode.NewABx(luacode.OpGetGlobal, 2, 0),
			luacode.NewABC(luacode.OpMove, 3, 1, 0),
			luacode.NewABC(luacode.OpCall, 2, 2, 1),
			luacode.NewABC(luacode.OpReturn, 0, 1, 0),
		},
		MaxStackSize: 4,
	}
	out, err := runProto(t, main)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "2\n" {
		t.Errorf("output = %q, want %q (closures must share one upvalue cell)", out, "2\n")
	}
}

// TestToStringBuiltin builds
// `print(tostring(nil), tostring(true), tostring(3.5))`.
func TestToStringBuiltin(t *testing.T) {
	proto := &luacode.Prototype{
		Constants: []luacode.Value{
			luacode.StringValue("print"),
			luacode.StringValue("tostring"),
			luacode.BoolValue(true),
			luacode.NumberValue(3.5),
		},
		Code: []luacode.Instruction{
			luacode.NewABx(luacode.OpGetGlobal, 0, 0), // R0 = print
			luacode.NewABx(luacode.OpGetGlobal, 1, 1), // R1 = tostring
			luacode.NewABC(luacode.OpLoadNil, 2, 2, 0),
			luacode.NewABC(luacode.OpCall, 1, 2, 2), // R1 = tostring(nil)
			luacode.NewABx(luacode.OpGetGlobal, 2, 1),
			luacode.NewABC(luacode.OpLoadBool, 3, 1, 0),
			luacode.NewABC(luacode.OpCall, 2, 2, 2), // R2 = tostring(true)
			luacode.NewABx(luacode.OpGetGlobal, 3, 1),
			luacode.NewABx(luacode.OpLoadK, 4, 3),
			luacode.NewABC(luacode.OpCall, 3, 2, 2), // R3 = tostring(3.5)
			luacode.NewABC(luacode.OpCall, 0, 4, 1),
			luacode.NewABC(luacode.OpReturn, 0, 1, 0),
		},
		MaxStackSize: 5,
	}
	out, err := runProto(t, proto)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "nil\ttrue\t3.5\n" {
		t.Errorf("output = %q, want %q", out, "nil\ttrue\t3.5\n")
	}
}

func TestCallNonFunctionIsError(t *testing.T) {
	proto := &luacode.Prototype{
		Constants:    []luacode.Value{luacode.NumberValue(1)},
		MaxStackSize: 1,
		Code: []luacode.Instruction{
			luacode.NewABx(luacode.OpLoadK, 0, 0),
			luacode.NewABC(luacode.OpCall, 0, 1, 1),
			luacode.NewABC(luacode.OpReturn, 0, 1, 0),
		},
	}
	_, err := runProto(t, proto)
	if err == nil {
		t.Fatal("expected an error calling a number value")
	}
	if !strings.Contains(err.Error(), "call a number value") {
		t.Errorf("error = %v, want mention of calling a number value", err)
	}
}

func TestRestrictGlobalWrites(t *testing.T) {
	proto := &luacode.Prototype{
		Constants: []luacode.Value{luacode.StringValue("x"), luacode.NumberValue(1)},
		Code: []luacode.Instruction{
			luacode.NewABx(luacode.OpLoadK, 0, 1),
			luacode.NewABx(luacode.OpSetGlobal, 0, 0),
			luacode.NewABC(luacode.OpReturn, 0, 1, 0),
		},
		MaxStackSize: 1,
	}
	interp := NewInterp()
	interp.RestrictGlobalWrites(nil)
	_, err := interp.Run(proto)
	if err == nil {
		t.Fatal("expected a restricted-global error")
	}
	if !strings.Contains(err.Error(), "restricted global") {
		t.Errorf("error = %v, want mention of a restricted global", err)
	}
}
