// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package observability

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readTraceEvents(t *testing.T, path string) []TraceEvent {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	var events []TraceEvent
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		var ev TraceEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("unmarshal trace line: %v", err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	return events
}

func TestTraceRecorderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl.gz")
	rec, err := NewTraceRecorder(path, "gzip")
	if err != nil {
		t.Fatal(err)
	}

	if err := rec.Record(TraceEvent{Subsystem: "chat", PeerID: "conn-1", Kind: "in:HELLO", Size: 50}); err != nil {
		t.Fatal(err)
	}
	if err := rec.Record(TraceEvent{Subsystem: "rudp", PeerID: "sess-1", Kind: "out:DATA", Seq: 3, Size: 514}); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	events := readTraceEvents(t, path)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Subsystem != "chat" || events[0].Kind != "in:HELLO" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Subsystem != "rudp" || events[1].Seq != 3 {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

func TestTraceRecorderRotateArchivesAndContinues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl.gz")
	rec, err := NewTraceRecorder(path, "gzip")
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	if err := rec.Record(TraceEvent{Subsystem: "chat", Kind: "in:HELLO"}); err != nil {
		t.Fatal(err)
	}
	if err := rec.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if err := rec.Record(TraceEvent{Subsystem: "chat", Kind: "in:EXIT"}); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one archived segment, got %v", matches)
	}

	archived := readTraceEvents(t, matches[0])
	if len(archived) != 1 || archived[0].Kind != "in:HELLO" {
		t.Fatalf("archived segment = %+v, want one in:HELLO event", archived)
	}

	current := readTraceEvents(t, path)
	if len(current) != 1 || current[0].Kind != "in:EXIT" {
		t.Fatalf("current segment = %+v, want one in:EXIT event", current)
	}
}
