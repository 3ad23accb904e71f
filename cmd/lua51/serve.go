// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/spf13/cobra"
	"github.com/tailscale/hujson"
	"go4.org/xdgdir"
	"golang.org/x/sync/errgroup"
	"zombiezen.com/go/log"
	"zombiezen.com/go/xcontext"

	"lua51vm.256lights.llc/vm/internal/luaserve"
)

func newServeCommand() *cobra.Command {
	var configPath string
	c := &cobra.Command{
		Use:                   "serve [--config FILE]",
		Short:                 "run an HTTP service that executes submitted Lua 5.1 chunks",
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.Flags().StringVar(&configPath, "config", "", "`path` to a JSONC configuration file")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), configPath)
	}
	return c
}

func defaultConfig() *luaserve.Config {
	return &luaserve.Config{
		ListenAddr:   "localhost:8080",
		DatabasePath: filepath.Join(xdgdir.Cache.Path(), "lua51vm", "runs.db"),
	}
}

func loadConfig(path string) (*luaserve.Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := jsonv2.Unmarshal(standardized, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Opening the run-history database and binding the listening socket
	// are independent; run them concurrently so a slow database open
	// doesn't delay reserving the port (or vice versa).
	var srv *luaserve.Server
	var listener net.Listener
	grp, _ := errgroup.WithContext(ctx)
	grp.Go(func() error {
		var err error
		srv, err = luaserve.New(cfg)
		return err
	})
	grp.Go(func() error {
		var err error
		listener, err = net.Listen("tcp", cfg.ListenAddr)
		return err
	})
	if err := grp.Wait(); err != nil {
		if srv != nil {
			srv.Close()
		}
		if listener != nil {
			listener.Close()
		}
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{Handler: srv}

	// Ensure the listener and any in-flight connections are torn down
	// promptly when the process receives a termination signal, rather
	// than waiting for ListenAndServe's caller to notice.
	stopWatching := xcontext.CloseWhenDone(ctx, httpServer)
	defer stopWatching.Close()

	log.Infof(ctx, "listening on %s", listener.Addr())
	err = httpServer.Serve(listener)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
