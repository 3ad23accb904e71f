// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package luaserve

import (
	"io"

	"lua51vm.256lights.llc/vm/bytebuffer"
)

// spillingBuffer captures a run's print output, starting in memory and
// spilling to a removed-on-close temp file once inMemoryOutputLimit is
// exceeded. Lua chunks submitted to the service are untrusted, so their
// output must not be allowed to grow an in-memory buffer without bound.
type spillingBuffer struct {
	written int64
	active  bytebuffer.ReadWriteSeekCloser
	spilled bool
}

func newSpillingBuffer() *spillingBuffer {
	buf, err := (bytebuffer.BufferCreator{Limit: -1}).CreateBuffer(0)
	if err != nil {
		// BufferCreator with no limit and a zero initial size never fails.
		panic(err)
	}
	return &spillingBuffer{active: buf}
}

func (b *spillingBuffer) Write(p []byte) (int, error) {
	if !b.spilled && b.written+int64(len(p)) > inMemoryOutputLimit {
		if err := b.spillToFile(); err != nil {
			return 0, err
		}
	}
	n, err := b.active.Write(p)
	b.written += int64(n)
	return n, err
}

func (b *spillingBuffer) spillToFile() error {
	file, err := spillBufferCreator.CreateBuffer(-1)
	if err != nil {
		return err
	}
	if _, err := b.active.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return err
	}
	if _, err := io.Copy(file, b.active); err != nil {
		file.Close()
		return err
	}
	b.active.Close()
	b.active = file
	b.spilled = true
	return nil
}

// String returns the captured output in full, seeking the underlying
// buffer back to its start first.
func (b *spillingBuffer) String() (string, error) {
	if _, err := b.active.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	data, err := io.ReadAll(b.active)
	return string(data), err
}

// Close releases any temp file the buffer spilled to.
func (b *spillingBuffer) Close() error {
	return b.active.Close()
}
