// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

// Package luavm is a register-based interpreter for compiled Lua 5.1
// functions, as decoded by [lua51vm.256lights.llc/vm/internal/luacode].
package luavm

import (
	"math"

	"lua51vm.256lights.llc/vm/internal/luacode"
	"lua51vm.256lights.llc/vm/sets"
)

// Interp is a single Lua execution context: a shared register stack, an
// open-upvalue table, and a global environment. It is not safe for
// concurrent use.
type Interp struct {
	globals  *table
	stack    []value
	upvals   openUpvalues
	allowSet sets.Set[string]
}

// NewInterp returns a new interpreter with an empty global environment.
func NewInterp() *Interp {
	return &Interp{
		globals: newTable(0),
		stack:   make([]value, 0, 256),
	}
}

// RestrictGlobalWrites limits SETGLOBAL to only assign the names in
// allowed; any other global write is a runtime error instead of being
// applied. This is a host-side sandboxing affordance, not part of the
// Lua 5.1 semantics the interpreter otherwise implements: with no
// allow-list installed (the default), every global write succeeds.
func (i *Interp) RestrictGlobalWrites(allowed sets.Set[string]) {
	i.allowSet = allowed.Clone()
}

// SetGlobal assigns a Go value to a named entry of the global table,
// converting nil, bool, float64, and string into their Lua equivalents.
func (i *Interp) SetGlobal(name string, v any) {
	i.globals.set(stringValue(name), importGo(v))
}

func importGo(v any) value {
	switch v := v.(type) {
	case nil:
		return nil
	case bool:
		return booleanValue(v)
	case float64:
		return numberValue(v)
	case int:
		return numberValue(v)
	case string:
		return stringValue(v)
	default:
		return nil
	}
}

// importConstant converts a decoded bytecode constant into a runtime
// value.
func importConstant(v luacode.Value) value {
	switch {
	case v.IsNil():
		return nil
	case v.IsBoolean():
		return booleanValue(v.Bool())
	case v.IsNumber():
		return numberValue(v.Float64())
	case v.IsString():
		return stringValue(v.StringValue())
	default:
		panic("luavm: unhandled constant kind")
	}
}

// Run executes proto as a top-level vararg chunk with the given
// arguments and returns whatever it returns.
func (i *Interp) Run(proto *luacode.Prototype, args ...string) ([]string, error) {
	vals := make([]value, len(args))
	for idx, a := range args {
		vals[idx] = stringValue(a)
	}
	fn := &luaFunction{id: nextID(), proto: proto}
	results, err := i.callLua(fn, vals)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(results))
	for idx, v := range results {
		out[idx] = toDisplayString(v)
	}
	return out, nil
}

func (i *Interp) callValue(fn value, args []value) ([]value, error) {
	switch f := fn.(type) {
	case *goFunction:
		return f.cb(i, args)
	case *luaFunction:
		return i.callLua(f, args)
	default:
		return nil, runtimeErrorf("attempt to call a %s value", valueType(fn))
	}
}

// rk resolves a register-or-constant operand.
func (i *Interp) rk(base int, proto *luacode.Prototype, rk uint16) value {
	if luacode.IsConstant(rk) {
		return importConstant(proto.Constants[luacode.ConstantIndex(rk)])
	}
	return i.stack[base+int(rk)]
}

func (i *Interp) ensure(n int) {
	for len(i.stack) < n {
		i.stack = append(i.stack, nil)
	}
}

// callLua executes f's bytecode, growing i.stack to host a new register
// window, and truncating it (after closing any upvalues that escaped
// into it) before returning.
func (i *Interp) callLua(f *luaFunction, args []value) (results []value, err error) {
	proto := f.proto
	base := len(i.stack)
	frameSize := int(proto.MaxStackSize)
	if frameSize < int(proto.NumParams)+2 {
		frameSize = int(proto.NumParams) + 2
	}
	i.stack = append(i.stack, make([]value, frameSize)...)
	defer func() {
		i.upvals.close(i.stack, base)
		i.stack = i.stack[:base]
	}()

	np := int(proto.NumParams)
	for idx := 0; idx < np; idx++ {
		if idx < len(args) {
			i.stack[base+idx] = args[idx]
		}
	}
	var varargs []value
	if proto.IsVararg.IsVararg() && len(args) > np {
		varargs = append(varargs, args[np:]...)
	}

	code := proto.Code
	pc := 0
	top := base + frameSize

	// Attach this frame's source location to an error at the point it
	// first unwinds out of it, so a diagnostic reads "source:line:
	// message" rather than just the message. pc has already moved past
	// the failing instruction by the time a case returns, hence pc-1.
	defer func() {
		if err != nil {
			locate(err, proto, pc-1)
		}
	}()

	for {
		inst := code[pc]
		pc++
		switch inst.OpCode() {
		case luacode.OpMove:
			i.stack[base+int(inst.A())] = i.stack[base+int(inst.B())]

		case luacode.OpLoadK:
			i.stack[base+int(inst.A())] = importConstant(proto.Constants[inst.Bx()])

		case luacode.OpLoadBool:
			i.stack[base+int(inst.A())] = booleanValue(inst.B() != 0)
			if inst.C() != 0 {
				pc++
			}

		case luacode.OpLoadNil:
			a, b := int(inst.A()), int(inst.B())
			for r := a; r <= b; r++ {
				i.stack[base+r] = nil
			}

		case luacode.OpGetUpval:
			i.stack[base+int(inst.A())] = *i.upvals.resolve(i.stack, f.upvalues[inst.B()])

		case luacode.OpSetUpval:
			*i.upvals.resolve(i.stack, f.upvalues[inst.B()]) = i.stack[base+int(inst.A())]

		case luacode.OpGetGlobal:
			key := importConstant(proto.Constants[inst.Bx()])
			i.stack[base+int(inst.A())] = i.globals.get(key)

		case luacode.OpSetGlobal:
			key := importConstant(proto.Constants[inst.Bx()])
			if i.allowSet != nil {
				name, ok := key.(stringValue)
				if !ok || !i.allowSet.Has(string(name)) {
					return nil, runtimeErrorf("attempt to set restricted global %q", toDisplayString(key))
				}
			}
			i.globals.set(key, i.stack[base+int(inst.A())])

		case luacode.OpGetTable:
			t := i.stack[base+int(inst.B())]
			key := i.rk(base, proto, inst.C())
			v, err := indexGet(t, key)
			if err != nil {
				return nil, err
			}
			i.stack[base+int(inst.A())] = v

		case luacode.OpSetTable:
			t := i.stack[base+int(inst.A())]
			key := i.rk(base, proto, inst.B())
			val := i.rk(base, proto, inst.C())
			if err := indexSet(t, key, val); err != nil {
				return nil, err
			}

		case luacode.OpNewTable:
			i.stack[base+int(inst.A())] = newTable(0)

		case luacode.OpSelf:
			t := i.stack[base+int(inst.B())]
			key := i.rk(base, proto, inst.C())
			v, err := indexGet(t, key)
			if err != nil {
				return nil, err
			}
			a := int(inst.A())
			i.stack[base+a+1] = t
			i.stack[base+a] = v

		case luacode.OpAdd:
			v, err := arith(func(a, b float64) float64 { return a + b }, "add", i.rk(base, proto, inst.B()), i.rk(base, proto, inst.C()))
			if err != nil {
				return nil, err
			}
			i.stack[base+int(inst.A())] = v
		case luacode.OpSub:
			v, err := arith(func(a, b float64) float64 { return a - b }, "sub", i.rk(base, proto, inst.B()), i.rk(base, proto, inst.C()))
			if err != nil {
				return nil, err
			}
			i.stack[base+int(inst.A())] = v
		case luacode.OpMul:
			v, err := arith(func(a, b float64) float64 { return a * b }, "mul", i.rk(base, proto, inst.B()), i.rk(base, proto, inst.C()))
			if err != nil {
				return nil, err
			}
			i.stack[base+int(inst.A())] = v
		case luacode.OpDiv:
			v, err := arith(func(a, b float64) float64 { return a / b }, "div", i.rk(base, proto, inst.B()), i.rk(base, proto, inst.C()))
			if err != nil {
				return nil, err
			}
			i.stack[base+int(inst.A())] = v
		case luacode.OpMod:
			v, err := arith(luaMod, "mod", i.rk(base, proto, inst.B()), i.rk(base, proto, inst.C()))
			if err != nil {
				return nil, err
			}
			i.stack[base+int(inst.A())] = v
		case luacode.OpPow:
			v, err := arith(luaPow, "pow", i.rk(base, proto, inst.B()), i.rk(base, proto, inst.C()))
			if err != nil {
				return nil, err
			}
			i.stack[base+int(inst.A())] = v

		case luacode.OpUnm:
			v, err := unm(i.stack[base+int(inst.B())])
			if err != nil {
				return nil, err
			}
			i.stack[base+int(inst.A())] = v

		case luacode.OpNot:
			// Lua 5.1's "not" applies truthiness to its operand regardless
			// of type and always produces a boolean.
			i.stack[base+int(inst.A())] = booleanValue(!toBoolean(i.stack[base+int(inst.B())]))

		case luacode.OpLen:
			switch v := i.stack[base+int(inst.B())].(type) {
			case stringValue:
				i.stack[base+int(inst.A())] = numberValue(len(v))
			case *table:
				i.stack[base+int(inst.A())] = v.length()
			default:
				return nil, runtimeErrorf("attempt to get length of a %s value", valueType(v))
			}

		case luacode.OpConcat:
			b, c := int(inst.B()), int(inst.C())
			vals := make([]value, 0, c-b+1)
			for r := b; r <= c; r++ {
				vals = append(vals, i.stack[base+r])
			}
			v, err := concat(vals)
			if err != nil {
				return nil, err
			}
			i.stack[base+int(inst.A())] = v

		case luacode.OpJmp:
			pc += int(inst.SBx())

		case luacode.OpEq:
			eq := valuesEqual(i.rk(base, proto, inst.B()), i.rk(base, proto, inst.C()))
			if eq != (inst.A() != 0) {
				pc++
			}
		case luacode.OpLt:
			lt, err := lessThan(i.rk(base, proto, inst.B()), i.rk(base, proto, inst.C()))
			if err != nil {
				return nil, err
			}
			if lt != (inst.A() != 0) {
				pc++
			}
		case luacode.OpLe:
			le, err := lessEqual(i.rk(base, proto, inst.B()), i.rk(base, proto, inst.C()))
			if err != nil {
				return nil, err
			}
			if le != (inst.A() != 0) {
				pc++
			}

		case luacode.OpTest:
			// Truthiness of R[A] itself decides the branch, for any type.
			if toBoolean(i.stack[base+int(inst.A())]) != (inst.C() != 0) {
				pc++
			}
		case luacode.OpTestSet:
			v := i.stack[base+int(inst.B())]
			if toBoolean(v) == (inst.C() != 0) {
				i.stack[base+int(inst.A())] = v
			} else {
				pc++
			}

		case luacode.OpCall:
			a, nargs := int(inst.A()), int(inst.B())
			var callArgs []value
			if nargs == 0 {
				callArgs = append([]value(nil), i.stack[base+a+1:top]...)
			} else {
				callArgs = append([]value(nil), i.stack[base+a+1:base+a+nargs]...)
			}
			results, err := i.callValue(i.stack[base+a], callArgs)
			if err != nil {
				return nil, err
			}
			nresults := int(inst.C())
			if nresults == 0 {
				i.ensure(base + a + len(results))
				for idx, v := range results {
					i.stack[base+a+idx] = v
				}
				top = base + a + len(results)
			} else {
				for idx := 0; idx < nresults-1; idx++ {
					if idx < len(results) {
						i.stack[base+a+idx] = results[idx]
					} else {
						i.stack[base+a+idx] = nil
					}
				}
			}

		case luacode.OpTailCall:
			a, nargs := int(inst.A()), int(inst.B())
			var callArgs []value
			if nargs == 0 {
				callArgs = append([]value(nil), i.stack[base+a+1:top]...)
			} else {
				callArgs = append([]value(nil), i.stack[base+a+1:base+a+nargs]...)
			}
			results, err := i.callValue(i.stack[base+a], callArgs)
			if err != nil {
				return nil, err
			}
			return results, nil

		case luacode.OpReturn:
			a, b := int(inst.A()), int(inst.B())
			if b == 0 {
				return append([]value(nil), i.stack[base+a:top]...), nil
			}
			return append([]value(nil), i.stack[base+a:base+a+b-1]...), nil

		case luacode.OpForPrep:
			a := int(inst.A())
			initN, ok1 := toNumber(i.stack[base+a])
			limitN, ok2 := toNumber(i.stack[base+a+1])
			stepN, ok3 := toNumber(i.stack[base+a+2])
			if !ok1 || !ok2 || !ok3 {
				return nil, runtimeErrorf("'for' initial value, limit, or step must be a number")
			}
			i.stack[base+a] = initN - stepN
			i.stack[base+a+1] = limitN
			i.stack[base+a+2] = stepN
			pc += int(inst.SBx())

		case luacode.OpForLoop:
			a := int(inst.A())
			step := i.stack[base+a+2].(numberValue)
			limit := i.stack[base+a+1].(numberValue)
			idx := i.stack[base+a].(numberValue) + step
			cont := (step > 0 && idx <= limit) || (step <= 0 && idx >= limit)
			if cont {
				i.stack[base+a] = idx
				i.stack[base+a+3] = idx
				pc += int(inst.SBx())
			}

		case luacode.OpTForLoop:
			a := int(inst.A())
			results, err := i.callValue(i.stack[base+a], []value{i.stack[base+a+1], i.stack[base+a+2]})
			if err != nil {
				return nil, err
			}
			c := int(inst.C())
			for idx := 0; idx < c; idx++ {
				if idx < len(results) {
					i.stack[base+a+3+idx] = results[idx]
				} else {
					i.stack[base+a+3+idx] = nil
				}
			}
			if len(results) > 0 && results[0] != nil {
				i.stack[base+a+2] = results[0]
			} else {
				pc++ // skip the JMP back to the loop body, ending the loop
			}

		case luacode.OpSetList:
			a, b, c := int(inst.A()), int(inst.B()), int(inst.C())
			if c == 0 {
				c = int(code[pc])
				pc++
			}
			if b == 0 {
				// Flush every value pushed onto the stack since the call
				// or vararg expansion that produced the table's tail, not
				// just a fixed count.
				b = top - (base + a + 1)
			}
			tbl := i.stack[base+a].(*table)
			for idx := 1; idx <= b; idx++ {
				tbl.set(numberValue(luacode.FieldsPerFlush*(c-1)+idx), i.stack[base+a+idx])
			}

		case luacode.OpClose:
			i.upvals.close(i.stack, base+int(inst.A()))

		case luacode.OpClosure:
			a := int(inst.A())
			childProto := proto.Functions[inst.Bx()]
			upvals := make([]*upvalue, childProto.NumUpvalues)
			for u := range upvals {
				pseudo := code[pc]
				pc++
				switch pseudo.OpCode() {
				case luacode.OpMove:
					upvals[u] = i.upvals.stackUpvalue(base + int(pseudo.B()))
				case luacode.OpGetUpval:
					upvals[u] = f.upvalues[pseudo.B()]
				default:
					return nil, runtimeErrorf("malformed closure upvalue encoding")
				}
			}
			i.stack[base+a] = &luaFunction{id: nextID(), proto: childProto, upvalues: upvals}

		case luacode.OpVararg:
			a, b := int(inst.A()), int(inst.B())
			if b == 0 {
				i.ensure(base + a + len(varargs))
				for idx, v := range varargs {
					i.stack[base+a+idx] = v
				}
				top = base + a + len(varargs)
			} else {
				for idx := 0; idx < b-1; idx++ {
					if idx < len(varargs) {
						i.stack[base+a+idx] = varargs[idx]
					} else {
						i.stack[base+a+idx] = nil
					}
				}
			}

		default:
			return nil, runtimeErrorf("unimplemented opcode %v", inst.OpCode())
		}
	}
}

// luaMod implements Lua's "%", which is a floored modulo (the result
// always has the same sign as the divisor), unlike Go's "%" on floats.
func luaMod(a, b float64) float64 {
	return a - math.Floor(a/b)*b
}

func luaPow(a, b float64) float64 {
	return math.Pow(a, b)
}
