// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luavm

import "lua51vm.256lights.llc/vm/internal/luanum"

// arith applies a binary arithmetic opcode to two operands, coercing
// numeric strings the way the reference implementation's arithmetic does.
func arith(op func(a, b float64) float64, opName string, a, b value) (value, error) {
	an, ok := toNumber(a)
	if !ok {
		return nil, runtimeErrorf("attempt to perform arithmetic on a %s value", valueType(a))
	}
	bn, ok := toNumber(b)
	if !ok {
		return nil, runtimeErrorf("attempt to perform arithmetic on a %s value", valueType(b))
	}
	return numberValue(op(float64(an), float64(bn))), nil
}

func unm(a value) (value, error) {
	an, ok := toNumber(a)
	if !ok {
		return nil, runtimeErrorf("attempt to perform arithmetic on a %s value", valueType(a))
	}
	return -an, nil
}

// valuesEqual implements Lua's raw equality: values of differing types
// are never equal, nil equals only nil, and tables/functions compare by
// identity.
func valuesEqual(a, b value) bool {
	switch a := a.(type) {
	case nil:
		return b == nil
	case booleanValue:
		b, ok := b.(booleanValue)
		return ok && a == b
	case numberValue:
		b, ok := b.(numberValue)
		return ok && float64(a) == float64(b)
	case stringValue:
		b, ok := b.(stringValue)
		return ok && a == b
	case *table:
		b, ok := b.(*table)
		return ok && a == b
	case function:
		b, ok := b.(function)
		return ok && a.functionID() == b.functionID()
	default:
		return false
	}
}

// lessThan implements Lua's "<" on raw values: only numbers compare with
// numbers and strings compare with strings lexicographically.
func lessThan(a, b value) (bool, error) {
	switch a := a.(type) {
	case numberValue:
		b, ok := b.(numberValue)
		if !ok {
			return false, runtimeErrorf("attempt to compare number with %s", valueType(b))
		}
		return a < b, nil
	case stringValue:
		b, ok := b.(stringValue)
		if !ok {
			return false, runtimeErrorf("attempt to compare string with %s", valueType(b))
		}
		return a < b, nil
	default:
		return false, runtimeErrorf("attempt to compare two %s values", valueType(a))
	}
}

func lessEqual(a, b value) (bool, error) {
	switch a := a.(type) {
	case numberValue:
		b, ok := b.(numberValue)
		if !ok {
			return false, runtimeErrorf("attempt to compare number with %s", valueType(b))
		}
		return a <= b, nil
	case stringValue:
		b, ok := b.(stringValue)
		if !ok {
			return false, runtimeErrorf("attempt to compare string with %s", valueType(b))
		}
		return a <= b, nil
	default:
		return false, runtimeErrorf("attempt to compare two %s values", valueType(a))
	}
}

func concatString(v value) (string, bool) {
	switch v := v.(type) {
	case stringValue:
		return string(v), true
	case numberValue:
		return luanum.Format(float64(v)), true
	default:
		return "", false
	}
}

// concat implements CONCAT over the whole register range R[B..C],
// associating right to left, unlike a naive pairwise implementation.
func concat(values []value) (value, error) {
	result := values[len(values)-1]
	for k := len(values) - 2; k >= 0; k-- {
		ls, lok := concatString(values[k])
		rs, rok := concatString(result)
		if !lok {
			return nil, runtimeErrorf("attempt to concatenate a %s value", valueType(values[k]))
		}
		if !rok {
			return nil, runtimeErrorf("attempt to concatenate a %s value", valueType(result))
		}
		result = stringValue(ls + rs)
	}
	return result, nil
}

func indexGet(t value, key value) (value, error) {
	tab, ok := t.(*table)
	if !ok {
		return nil, runtimeErrorf("attempt to index a %s value", valueType(t))
	}
	return tab.get(key), nil
}

func indexSet(t value, key, v value) error {
	tab, ok := t.(*table)
	if !ok {
		return runtimeErrorf("attempt to index a %s value", valueType(t))
	}
	if key == nil {
		return runtimeErrorf("table index is nil")
	}
	if n, ok := key.(numberValue); ok && isNaN(n) {
		return runtimeErrorf("table index is NaN")
	}
	tab.set(key, v)
	return nil
}

func isNaN(n numberValue) bool {
	return n != n
}
