// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luavm

import (
	"io"
	"os"
)

// BaseOptions configures the minimal global environment installed by
// [OpenBase]: only print, tostring, and error, per the reduced Lua 5.1
// surface this interpreter targets.
type BaseOptions struct {
	// Output is where the "print" function writes. Defaults to
	// [os.Stdout].
	Output io.Writer
}

// OpenBase installs print, tostring, and error into the interpreter's
// global table.
func (i *Interp) OpenBase(opts *BaseOptions) {
	if opts == nil {
		opts = new(BaseOptions)
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	i.globals.set(stringValue("print"), newGoFunction("print", basePrint(out)))
	i.globals.set(stringValue("tostring"), newGoFunction("tostring", baseToString))
	i.globals.set(stringValue("error"), newGoFunction("error", baseError))
}

func basePrint(out io.Writer) GoFunction {
	return func(_ *Interp, args []value) ([]value, error) {
		for i, v := range args {
			if i > 0 {
				io.WriteString(out, "\t")
			}
			io.WriteString(out, toDisplayString(v))
		}
		io.WriteString(out, "\n")
		return nil, nil
	}
}

func baseToString(_ *Interp, args []value) ([]value, error) {
	var v value
	if len(args) > 0 {
		v = args[0]
	}
	return []value{stringValue(toDisplayString(v))}, nil
}

// baseError raises its first argument as a Lua error, matching Lua's
// error() for a string message with no error level handling (level
// information requires call-stack line tracking this interpreter does
// not retain).
func baseError(_ *Interp, args []value) ([]value, error) {
	var v value
	if len(args) > 0 {
		v = args[0]
	}
	return nil, errorValue(v)
}
