// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// rotateSuffixLayout names the archived file each rotation produces:
// "<path>.<timestamp>".
const rotateSuffixLayout = "20060102T150405"

// TraceEvent is one JSONL record in the compressed trace log. It is
// diagnostic only: nothing in the running process ever reads it back, so
// its presence does not reintroduce persisted router/session state.
type TraceEvent struct {
	Time      time.Time `json:"time"`
	Subsystem string    `json:"subsystem"` // "chat" or "rudp"
	PeerID    string    `json:"peer_id"`
	Kind      string    `json:"kind"` // e.g. "DATA", "ACK", "CHAT", "HELLO"
	Seq       int       `json:"seq,omitempty"`
	Size      int       `json:"size"`
}

// TraceRecorder appends TraceEvents to a compressed JSONL file. Safe for
// concurrent use; callers must call Close to flush the compressor.
type TraceRecorder struct {
	mu    sync.Mutex
	path  string
	codec string
	f     *os.File
	zw    io.WriteCloser
	enc   *json.Encoder
}

// NewTraceRecorder opens path and wraps it with the requested codec
// ("gzip" or "zstd"; anything else defaults to gzip).
func NewTraceRecorder(path, codec string) (*TraceRecorder, error) {
	t := &TraceRecorder{path: path, codec: codec}
	if err := t.open(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *TraceRecorder) open() error {
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening trace log: %w", err)
	}

	var zw io.WriteCloser
	switch t.codec {
	case "zstd":
		enc, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return fmt.Errorf("creating zstd writer: %w", err)
		}
		zw = enc
	default:
		zw = pgzip.NewWriter(f)
	}

	t.f = f
	t.zw = zw
	t.enc = json.NewEncoder(zw)
	return nil
}

// Record appends ev as one JSONL line, stamping it with the current time
// when ev.Time is zero.
func (t *TraceRecorder) Record(ev TraceEvent) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enc.Encode(ev)
}

// Rotate closes the active compressed segment, renames it aside with a
// timestamp suffix, and opens a fresh segment at the recorder's original
// path. Intended to run off the housekeeping scheduler, not inline with
// Record.
func (t *TraceRecorder) Rotate() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.zw.Close(); err != nil {
		return fmt.Errorf("flushing trace log before rotation: %w", err)
	}
	if err := t.f.Close(); err != nil {
		return fmt.Errorf("closing trace log before rotation: %w", err)
	}

	archived := fmt.Sprintf("%s.%s", t.path, time.Now().UTC().Format(rotateSuffixLayout))
	if err := os.Rename(t.path, archived); err != nil {
		return fmt.Errorf("archiving trace log: %w", err)
	}
	return t.open()
}

// Close flushes the compressor and closes the underlying file.
func (t *TraceRecorder) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.zw.Close(); err != nil {
		t.f.Close()
		return err
	}
	return t.f.Close()
}
