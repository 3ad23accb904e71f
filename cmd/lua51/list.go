// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lua51vm.256lights.llc/vm/internal/luacode"
	"lua51vm.256lights.llc/vm/sortedset"
)

type listOptions struct {
	only sortedset.Set[string]
}

func newListCommand() *cobra.Command {
	opts := new(listOptions)
	c := &cobra.Command{
		Use:                   "list CHUNK [CHUNK ...]",
		Short:                 "disassemble one or more compiled Lua 5.1 chunks",
		Args:                  cobra.MinimumNArgs(1),
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.Flags().Func("only", "only list instructions for the named `opcode` (can be repeated)", func(s string) error {
		opts.only.Add(strings.ToUpper(s))
		return nil
	})
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runList(args, opts)
	}
	return c
}

// runList decodes every path concurrently (disassembly is read-only and
// each chunk is independent of the others) and then prints the results
// in argument order, so output stays deterministic regardless of which
// decode finishes first.
func runList(paths []string, opts *listOptions) error {
	protos := make([]*luacode.Prototype, len(paths))
	grp, _ := errgroup.WithContext(context.Background())
	for i, path := range paths {
		i, path := i, path
		grp.Go(func() error {
			proto, err := decodeFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			protos[i] = proto
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}
	for i, path := range paths {
		if len(paths) > 1 {
			fmt.Printf("== %s ==\n", path)
		}
		printFunction(protos[i], opts)
	}
	return nil
}

func decodeFile(path string) (*luacode.Prototype, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return luacode.Decode(f)
}

func printFunction(p *luacode.Prototype, opts *listOptions) {
	fmt.Printf("function <%s:%d,%d> (%s instructions)\n", p.Source, p.LineDefined, p.LastLineDefined, humanize.Comma(int64(len(p.Code))))
	for pc, inst := range p.Code {
		op := inst.OpCode()
		if opts.only.Len() > 0 && !opts.only.Has(op.String()) {
			continue
		}
		line := "?"
		if pc < len(p.LineInfo) {
			line = fmt.Sprintf("%d", p.LineInfo[pc])
		}
		fmt.Printf("\t%d\t[%s]\t%s\n", pc+1, line, inst)
	}
	for _, child := range p.Functions {
		printFunction(child, opts)
	}
}
