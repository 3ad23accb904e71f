// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

// Package luaserve is a small HTTP service that executes Lua 5.1 bytecode
// chunks submitted over the network, recording each run so its output
// can be fetched later by ID.
package luaserve

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"zombiezen.com/go/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
	"zombiezen.com/go/uritemplate"

	"lua51vm.256lights.llc/vm/bytebuffer"
	"lua51vm.256lights.llc/vm/internal/luacode"
	"lua51vm.256lights.llc/vm/internal/luavm"
)

// inMemoryOutputLimit bounds how much of a run's captured stdout is held
// in memory before it spills to a temp file created by
// [spillBufferCreator]. Lua chunks submitted to the service are
// untrusted, so print output cannot be allowed to grow a single
// in-memory buffer without bound.
const inMemoryOutputLimit = 1 << 20

// spillBufferCreator creates the removed-on-close temp file a run's
// captured output spills into once it exceeds inMemoryOutputLimit.
var spillBufferCreator bytebuffer.Creator = bytebuffer.TempFileCreator{Pattern: "lua51vm-run-*.out"}

// Config holds the settings for a [Server]. It is typically decoded from
// a JSONC file via [hujson](tailscale.com/hujson).
type Config struct {
	// ListenAddr is the TCP address the server listens on.
	ListenAddr string `json:"listen"`
	// DatabasePath is the path to the SQLite database used to store run
	// history. [New] passes it to SQLite unchanged; the lua51 serve
	// command defaults it to a file under the user cache directory.
	DatabasePath string `json:"database"`
}

// Server executes Lua chunks submitted via HTTP and records the result
// of each run in a SQLite-backed history.
type Server struct {
	db  *sqlite.Conn
	mux *http.ServeMux
}

// New opens (creating if necessary) the run-history database named by
// cfg and returns a [Server] ready to be used as an [http.Handler].
func New(cfg *Config) (*Server, error) {
	conn, err := sqlite.OpenConn(cfg.DatabasePath, sqlite.OpenReadWrite, sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("luaserve: open database: %w", err)
	}
	if err := sqlitex.ExecuteTransient(conn, `CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		output TEXT NOT NULL,
		error TEXT
	);`, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("luaserve: create schema: %w", err)
	}

	srv := &Server{db: conn, mux: http.NewServeMux()}
	srv.mux.Handle("/runs", handlers.MethodHandler{
		http.MethodPost: http.HandlerFunc(srv.handleCreateRun),
	})
	srv.mux.Handle("/runs/{id}", handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(srv.handleShowRun),
	})
	return srv, nil
}

// Close releases the server's database connection.
func (srv *Server) Close() error {
	return srv.db.Close()
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handlers.CombinedLoggingHandler(logWriter{}, srv.mux).ServeHTTP(w, r)
}

// runResult is the JSON representation of a chunk execution, including a
// HAL-style self link.
type runResult struct {
	ID     string  `json:"id"`
	Output string  `json:"output"`
	Error  string  `json:"error,omitempty"`
	Links  runLinks `json:"_links"`
}

type runLinks struct {
	Self link `json:"self"`
}

type link struct {
	HRef string `json:"href"`
}

func selfLink(id string) (link, error) {
	href, err := uritemplate.Expand("/runs/{id}", map[string]any{"id": id})
	if err != nil {
		return link{}, err
	}
	return link{HRef: href}, nil
}

func (srv *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chunk, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	proto, err := luacode.Decode(bytes.NewReader(chunk))
	if err != nil {
		http.Error(w, fmt.Sprintf("decode chunk: %v", err), http.StatusBadRequest)
		return
	}

	out := newSpillingBuffer()
	defer out.Close()
	interp := luavm.NewInterp()
	interp.OpenBase(&luavm.BaseOptions{Output: out})

	_, runErr := interp.Run(proto)

	id := uuid.New().String()
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	outputText, err := out.String()
	if err != nil {
		log.Errorf(ctx, "luaserve: read captured output for run %s: %v", id, err)
	}
	if err := srv.recordRun(id, outputText, errMsg); err != nil {
		log.Errorf(ctx, "luaserve: record run %s: %v", id, err)
	}

	self, err := selfLink(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	result := runResult{ID: id, Output: outputText, Error: errMsg, Links: runLinks{Self: self}}
	writeJSON(w, http.StatusCreated, result)
}

func (srv *Server) handleShowRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	output, errMsg, ok, err := srv.lookupRun(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	self, err := selfLink(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runResult{ID: id, Output: output, Error: errMsg, Links: runLinks{Self: self}})
}

func (srv *Server) recordRun(id, output, errMsg string) error {
	return sqlitex.Execute(srv.db, `INSERT INTO runs (id, output, error) VALUES (?, ?, ?);`, &sqlitex.ExecOptions{
		Args: []any{id, output, errMsg},
	})
}

func (srv *Server) lookupRun(id string) (output, errMsg string, ok bool, err error) {
	err = sqlitex.Execute(srv.db, `SELECT output, error FROM runs WHERE id = ?;`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ok = true
			output = stmt.GetText("output")
			errMsg = stmt.GetText("error")
			return nil
		},
	})
	return
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := jsonv2.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/hal+json")
	w.WriteHeader(status)
	w.Write(data)
}

type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Infof(context.Background(), "%s", p)
	return len(p), nil
}
