// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

// Package luanum converts between Lua's textual number syntax and float64,
// the single number representation used by the Lua 5.1 value model.
package luanum

import (
	"errors"
	"strconv"
	"strings"
)

// Parse converts s to a 64-bit floating-point number according to the
// [lexical rules of Lua]. Surrounding whitespace is permitted. This is the
// coercion rule used when arithmetic operators or tonumber encounter a
// string operand: "the string is parsed as a double."
//
// [lexical rules of Lua]: https://lua.org/manual/5.1/manual.html#2.1
func Parse(s string) (float64, bool) {
	s = trimSpace(s)
	if s == "" {
		return 0, false
	}
	_, withoutSign := cutSign(s)
	if strings.EqualFold(withoutSign, "inf") ||
		strings.EqualFold(withoutSign, "infinity") ||
		strings.EqualFold(withoutSign, "nan") {
		return 0, false
	}

	toParse := s
	if rest, isHex := cutHexPrefix(withoutSign); isHex {
		if rest == "" {
			return 0, false
		}
		if !strings.ContainsAny(s, ".pP") {
			i, err := parseHexInt(s)
			if err != nil {
				return 0, false
			}
			return float64(i), true
		}
		if !strings.ContainsAny(s, "pP") {
			// Go hex float literals require an exponent.
			toParse = s + "p0"
		}
	}

	f, err := strconv.ParseFloat(toParse, 64)
	if err != nil {
		if !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
	}
	return f, true
}

func parseHexInt(s string) (int64, error) {
	neg, withoutSign := cutSign(s)
	rest, _ := cutHexPrefix(withoutSign)
	x, err := strconv.ParseUint(rest, 16, 64)
	if err != nil {
		return 0, err
	}
	if neg {
		return -int64(x), nil
	}
	return int64(x), nil
}

func cutHexPrefix(s string) (rest string, hex bool) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:], true
	}
	return s, false
}

func cutSign(s string) (neg bool, rest string) {
	switch {
	case len(s) == 0:
		return false, s
	case s[0] == '+':
		return false, s[1:]
	case s[0] == '-':
		return true, s[1:]
	default:
		return false, s
	}
}

func trimSpace(s string) string {
	for len(s) > 0 && isSpace(s[0]) {
		s = s[1:]
	}
	for len(s) > 0 && isSpace(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r' || c == '\f' || c == '\v'
}

// Format renders a Lua number the way the reference implementation's
// tostring does: %.14g, with integral values printed without a decimal
// point or exponent suffix beyond what %g already supplies.
func Format(x float64) string {
	return strconv.FormatFloat(x, 'g', 14, 64)
}
