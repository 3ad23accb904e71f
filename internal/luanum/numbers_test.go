// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luanum

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		s    string
		want float64
		ok   bool
	}{
		{"42", 42, true},
		{"  42  ", 42, true},
		{"3.5", 3.5, true},
		{"-3.5", -3.5, true},
		{"0x1A", 26, true},
		{"1e10", 1e10, true},
		{"nan", 0, false},
		{"inf", 0, false},
		{"not a number", 0, false},
		{"", 0, false},
	}
	for _, test := range tests {
		got, ok := Parse(test.s)
		if ok != test.ok || (ok && got != test.want) {
			t.Errorf("Parse(%q) = %v, %v; want %v, %v", test.s, got, ok, test.want, test.ok)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		x    float64
		want string
	}{
		{7, "7"},
		{20, "20"},
		{15, "15"},
		{42, "42"},
		{3.5, "3.5"},
	}
	for _, test := range tests {
		if got := Format(test.x); got != test.want {
			t.Errorf("Format(%v) = %q; want %q", test.x, got, test.want)
		}
	}
}
