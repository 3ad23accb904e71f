// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

// Command lua51 decodes and runs Lua 5.1 binary chunks produced by luac.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"zombiezen.com/go/bass/sigterm"
	"zombiezen.com/go/log"
)

func main() {
	rootCommand := &cobra.Command{
		Use:           "lua51",
		Short:         "run and inspect Lua 5.1 bytecode",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	showDebug := rootCommand.PersistentFlags().Bool("debug", false, "show debugging output")
	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogging(*showDebug)
		return nil
	}

	rootCommand.AddCommand(
		newRunCommand(),
		newListCommand(),
		newServeCommand(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), sigterm.Signals()...)
	err := rootCommand.ExecuteContext(ctx)
	cancel()
	if err != nil {
		initLogging(*showDebug)
		log.Errorf(context.Background(), "%s", diagnostic(err))
		os.Exit(1)
	}
}

// diagnostic formats a top-level command error, wrapping it in a red
// ANSI escape when standard error is attached to a terminal so a
// decode or runtime failure stands out from ordinary log output.
func diagnostic(err error) string {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return err.Error()
	}
	const red, reset = "\x1b[31m", "\x1b[0m"
	return fmt.Sprintf("%s%v%s", red, err, reset)
}

var initLogOnce sync.Once

func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "lua51: ", log.StdFlags, nil),
		})
	})
}
