// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package chatrouter

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/epark-labs/netlab/internal/chatframe"
)

func newTestRouter(t *testing.T, opts ...Option) (*Router, net.Listener, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(ln, logger, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cleanup := func() {
		cancel()
		ln.Close()
		<-done
	}
	return r, ln, cleanup
}

func dialAndSend(t *testing.T, addr string, f chatframe.Frame) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := chatframe.Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(buf); err != nil {
		t.Fatal(err)
	}
	return conn
}

func readFrame(t *testing.T, conn net.Conn) chatframe.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	header := make([]byte, chatframe.HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.Fatalf("reading header: %v", err)
	}
	f, err := chatframe.Decode(header)
	if err == nil {
		return f
	}
	// Header-only decode failed because length > 0; read the body too.
	length := int(header[45]) | int(header[44])<<8 | int(header[43])<<16 | int(header[42])<<24
	full := make([]byte, chatframe.HeaderSize+length)
	copy(full, header)
	if _, err := io.ReadFull(conn, full[chatframe.HeaderSize:]); err != nil {
		t.Fatalf("reading body: %v", err)
	}
	f, err = chatframe.Decode(full)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return f
}

func TestEndToEndS1HelloAndList(t *testing.T) {
	r, ln, cleanup := newTestRouter(t)
	_ = r
	defer cleanup()

	conn := dialAndSend(t, ln.Addr().String(), chatframe.Frame{
		Type: chatframe.HELLO, Source: "alice", Destination: "Server",
	})
	defer conn.Close()

	ack := readFrame(t, conn)
	if ack.Type != chatframe.HELLOAck {
		t.Fatalf("got type %v, want HELLOAck", ack.Type)
	}
	list := readFrame(t, conn)
	if list.Type != chatframe.ClientList || string(list.Data) != "alice\x00" {
		t.Fatalf("got %+v, want ClientList with body \"alice\\x00\"", list)
	}
}

func TestEndToEndS3ChatRelay(t *testing.T) {
	_, ln, cleanup := newTestRouter(t)
	defer cleanup()

	c1 := dialAndSend(t, ln.Addr().String(), chatframe.Frame{Type: chatframe.HELLO, Source: "alice", Destination: "Server"})
	defer c1.Close()
	readFrame(t, c1) // HELLO_ACK
	readFrame(t, c1) // CLIENT_LIST

	c2 := dialAndSend(t, ln.Addr().String(), chatframe.Frame{Type: chatframe.HELLO, Source: "bob", Destination: "Server"})
	defer c2.Close()
	readFrame(t, c2) // HELLO_ACK
	readFrame(t, c2) // CLIENT_LIST

	buf, err := chatframe.Encode(chatframe.Frame{
		Type: chatframe.Chat, Source: "alice", Destination: "bob", MsgID: 7, Data: []byte("hi!"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c1.Write(buf); err != nil {
		t.Fatal(err)
	}

	got := readFrame(t, c2)
	if got.Type != chatframe.Chat || got.Source != "alice" || got.Destination != "bob" ||
		got.MsgID != 7 || string(got.Data) != "hi!" {
		t.Fatalf("bob received %+v, want the forwarded CHAT frame", got)
	}
}

func TestEndToEndS2DuplicateHelloClosesConnection(t *testing.T) {
	_, ln, cleanup := newTestRouter(t)
	defer cleanup()

	c1 := dialAndSend(t, ln.Addr().String(), chatframe.Frame{Type: chatframe.HELLO, Source: "alice", Destination: "Server"})
	defer c1.Close()
	readFrame(t, c1)
	readFrame(t, c1)

	c2 := dialAndSend(t, ln.Addr().String(), chatframe.Frame{Type: chatframe.HELLO, Source: "alice", Destination: "Server"})
	defer c2.Close()

	errFrame := readFrame(t, c2)
	if errFrame.Type != chatframe.ClientAlreadyPresentError {
		t.Fatalf("got type %v, want ClientAlreadyPresentError", errFrame.Type)
	}

	c2.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if n, err := c2.Read(buf); n != 0 || err != io.EOF {
		t.Fatalf("expected connection closed (EOF), got n=%d err=%v", n, err)
	}
}

func TestIngressStaleSweepDisconnectsPartialFrame(t *testing.T) {
	_, ln, cleanup := newTestRouter(t, WithIngressStaleSweep(50*time.Millisecond))
	defer cleanup()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Write only a partial header; never completes a frame.
	if _, err := conn.Write([]byte{0, 1, 'a', 'l', 'i', 'c', 'e'}); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if n, err := conn.Read(buf); n != 0 || err != io.EOF {
		t.Fatalf("expected the sweep to close the stalled connection, got n=%d err=%v", n, err)
	}
}
