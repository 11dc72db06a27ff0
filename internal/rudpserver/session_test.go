// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package rudpserver

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/epark-labs/netlab/internal/rudpclient"
)

func newLoopbackServer(t *testing.T, opts ...Option) (*Server, *net.UDPAddr, func()) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(conn, logger, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	cleanup := func() {
		cancel()
		conn.Close()
		<-done
	}
	return srv, conn.LocalAddr().(*net.UDPAddr), cleanup
}

func fetchFile(t *testing.T, serverAddr *net.UDPAddr, window byte, filename string) []byte {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res, err := rudpclient.Fetch(conn, serverAddr, window, filename, logger)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	return res.Data
}

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	// The server resolves RRQ filenames against its working directory and
	// the RRQ filename field holds at most 19 bytes, so the test runs from
	// the temp dir and requests the bare name.
	t.Chdir(dir)
	return filepath.Base(path)
}

func TestS5ShortFileSinglePacket(t *testing.T) {
	path := writeTempFile(t, 100)
	_, addr, cleanup := newLoopbackServer(t)
	defer cleanup()

	got := fetchFile(t, addr, 4, path)
	want, _ := os.ReadFile(path)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %d bytes, want %d bytes matching source", len(got), len(want))
	}
}

func TestS7MissingFileAborts(t *testing.T) {
	_, addr, cleanup := newLoopbackServer(t)
	defer cleanup()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err = rudpclient.Fetch(conn, addr, 4, "missing.bin", logger)
	if err != rudpclient.ErrServerError {
		t.Fatalf("got %v, want ErrServerError", err)
	}
}

func TestExactMultipleOf512Terminates(t *testing.T) {
	// Open question #1 resolution: total_packets = ceil(filesize/512) with
	// no empty trailing chunk. 2048 is an exact multiple of 512 (4 chunks);
	// the client's idle-deadline fallback must still terminate correctly
	// since no short (<514-byte) datagram is ever sent.
	path := writeTempFile(t, 2048)
	_, addr, cleanup := newLoopbackServer(t)
	defer cleanup()

	got := fetchFile(t, addr, 2, path)
	want, _ := os.ReadFile(path)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %d bytes, want %d bytes matching source", len(got), len(want))
	}
}

// dropOnceWriter drops the first DATA packet for a specific seqno, then
// passes every subsequent write through untouched. It simulates S6's
// channel loss at the server's send path.
type dropOnceWriter struct {
	w       io.Writer
	seqno   byte
	dropped bool
}

func (d *dropOnceWriter) Write(p []byte) (int, error) {
	if !d.dropped && len(p) >= 2 && p[0] == 2 /* DATA */ && p[1] == d.seqno {
		d.dropped = true
		return len(p), nil // pretend success; the datagram never leaves
	}
	return d.w.Write(p)
}

func TestS6MultiWindowWithLoss(t *testing.T) {
	path := writeTempFile(t, 2048)
	_, addr, cleanup := newLoopbackServer(t, WithPacer(func(w io.Writer) io.Writer {
		return &dropOnceWriter{w: w, seqno: 0}
	}))
	defer cleanup()

	got := fetchFile(t, addr, 2, path)
	want, _ := os.ReadFile(path)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %d bytes, want %d bytes matching source (after retransmit of seq 0)", len(got), len(want))
	}
}

func TestZeroByteFileCompletesWithNoDataPackets(t *testing.T) {
	path := writeTempFile(t, 0)
	_, addr, cleanup := newLoopbackServer(t)
	defer cleanup()

	got := fetchFile(t, addr, 4, path)
	if len(got) != 0 {
		t.Fatalf("got %d bytes, want 0", len(got))
	}
}

// fakeMetrics records every call a session makes against the Metrics
// interface, so tests can assert the counters are actually fed instead of
// sitting registered-but-untouched.
type fakeMetrics struct {
	mu            sync.Mutex
	activeHistory []bool
	retransmits   int
	timeoutAborts int
	packets       map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{packets: make(map[string]int)}
}

func (f *fakeMetrics) SetSessionActive(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeHistory = append(f.activeHistory, active)
}

func (f *fakeMetrics) IncRetransmit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retransmits++
}

func (f *fakeMetrics) IncTimeoutAbort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeoutAborts++
}

func (f *fakeMetrics) IncPacket(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packets[kind]++
}

func (f *fakeMetrics) snapshot() (history []bool, retransmits, timeoutAborts int, packets map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	packets = make(map[string]int, len(f.packets))
	for k, v := range f.packets {
		packets[k] = v
	}
	return append([]bool(nil), f.activeHistory...), f.retransmits, f.timeoutAborts, packets
}

func TestMetricsWiredThroughSuccessfulTransfer(t *testing.T) {
	path := writeTempFile(t, 100)
	fm := newFakeMetrics()
	_, addr, cleanup := newLoopbackServer(t, WithMetrics(fm))
	defer cleanup()

	fetchFile(t, addr, 4, path)

	// Give the server goroutine a moment to record SetSessionActive(false)
	// after runSession returns.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if history, _, _, _ := fm.snapshot(); len(history) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	history, _, _, packets := fm.snapshot()
	if len(history) < 2 || history[0] != true || history[len(history)-1] != false {
		t.Fatalf("active history = %v, want it to start true and end false", history)
	}
	if packets["RRQ"] != 1 {
		t.Fatalf("RRQ packets = %d, want 1", packets["RRQ"])
	}
	if packets["DATA"] != 1 {
		t.Fatalf("DATA packets = %d, want 1 (single-packet S5 transfer)", packets["DATA"])
	}
	if packets["ACK"] != 1 {
		t.Fatalf("ACK packets = %d, want 1", packets["ACK"])
	}
}

func TestMetricsWiredOnTimeoutAbort(t *testing.T) {
	path := writeTempFile(t, 100)
	fm := newFakeMetrics()
	_, addr, cleanup := newLoopbackServer(t, WithMetrics(fm))
	defer cleanup()

	// Send a raw RRQ without running the client loop, so the server never
	// receives an ACK and exhausts its timeout budget. The 3s ACK timeout
	// times maxTimeoutsInRow makes this test slow but deterministic.
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	rrq := []byte{1, 4}
	nameField := make([]byte, 20)
	copy(nameField, filepath.Base(path))
	rrq = append(rrq, nameField...)
	if _, err := conn.WriteToUDP(rrq, addr); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		if _, _, aborts, _ := fm.snapshot(); aborts >= 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("expected IncTimeoutAbort to fire after 5 consecutive ACK timeouts")
}

