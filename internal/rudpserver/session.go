// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package rudpserver implements the RUDP server session state machine:
// WAIT_RRQ -> LOADING -> SENDING -> {DONE, ABORTED}.
package rudpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/epark-labs/netlab/internal/idgen"
	"github.com/epark-labs/netlab/internal/rudpproto"
)

// Outcome is how a session ended.
type Outcome int

const (
	Done Outcome = iota
	Aborted
	FileNotFound
)

func (o Outcome) String() string {
	switch o {
	case Done:
		return "DONE"
	case Aborted:
		return "ABORTED"
	case FileNotFound:
		return "FILE_NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

const (
	ackTimeout        = 3 * time.Second
	maxTimeoutsInRow  = 5
	maxTotalPackets   = 256 // sequence numbers are single bytes
)

// Tracer receives one call per packet sent or received, for optional
// diagnostic recording. sessionID correlates packets with the session's
// log lines; it never appears on the wire.
type Tracer interface {
	TraceRUDPPacket(sessionID, direction, kind string, seqno int, size int)
}

// Metrics receives the session lifecycle and packet events the opt-in
// Prometheus endpoint exposes: whether a session is currently in
// progress, window retransmissions, timeout-limit aborts, and one count
// per packet type sent or received. Implementations must not block.
type Metrics interface {
	// SetSessionActive reports whether a session is currently being
	// served (true from just after the RRQ is accepted, before LOADING,
	// until the session reaches DONE/ABORTED/FILE_NOT_FOUND).
	SetSessionActive(active bool)
	// IncRetransmit is called once per window retransmission (a 3s ACK
	// timeout that does not hit the abort limit).
	IncRetransmit()
	// IncTimeoutAbort is called once when a session aborts after
	// maxTimeoutsInRow consecutive ACK timeouts.
	IncTimeoutAbort()
	// IncPacket is called once per packet sent or received, kind being
	// "RRQ", "DATA", "ACK", or "ERROR".
	IncPacket(kind string)
}

// Server drives the RUDP state machine over a single bound UDP socket. It
// services one session at a time, exactly as the reference design: the
// listening socket is also used to talk to the bound client during
// SENDING.
type Server struct {
	conn    *net.UDPConn
	logger  *slog.Logger
	pacer   func(io.Writer) io.Writer
	tracer  Tracer
	metrics Metrics
}

// Option configures a Server.
type Option func(*Server)

func WithPacer(pacer func(io.Writer) io.Writer) Option {
	return func(s *Server) { s.pacer = pacer }
}

func WithTracer(t Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithMetrics installs the Prometheus-backed session/packet counters.
func WithMetrics(m Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer builds a Server bound to an already-listening UDP socket.
func NewServer(conn *net.UDPConn, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{conn: conn, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run services sessions sequentially until ctx is cancelled or the socket
// fails.
func (s *Server) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		rrq, clientAddr, err := s.waitRRQ(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("waiting for RRQ: %w", err)
		}
		sessionID := idgen.New()
		s.logger.Info("rudp session starting",
			"session_id", sessionID, "client", clientAddr.String(), "filename", rrq.Filename, "window_size", rrq.WindowSize)

		if s.metrics != nil {
			s.metrics.SetSessionActive(true)
		}
		outcome, total, err := s.runSession(ctx, sessionID, rrq, clientAddr)
		if s.metrics != nil {
			s.metrics.SetSessionActive(false)
		}
		if err != nil {
			s.logger.Error("rudp session error", "session_id", sessionID, "client", clientAddr.String(), "err", err)
		}
		s.logger.Info("rudp session ended",
			"session_id", sessionID, "client", clientAddr.String(), "filename", rrq.Filename, "outcome", outcome.String(), "total_packets", total)

		// After DONE or ABORTED, clear any deadline and return to WAIT_RRQ.
		s.conn.SetReadDeadline(time.Time{})
	}
}

func (s *Server) waitRRQ(ctx context.Context) (rudpproto.DecodedRRQ, *net.UDPAddr, error) {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return rudpproto.DecodedRRQ{}, nil, ctx.Err()
		}
		s.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return rudpproto.DecodedRRQ{}, nil, err
		}
		rrq, err := rudpproto.DecodeRRQ(buf[:n])
		if err != nil {
			s.logger.Warn("ignoring malformed RRQ", "from", addr.String(), "err", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.IncPacket("RRQ")
		}
		return rrq, addr, nil
	}
}

// runSession drives LOADING and SENDING for one bound client.
func (s *Server) runSession(ctx context.Context, sessionID string, rrq rudpproto.DecodedRRQ, clientAddr *net.UDPAddr) (Outcome, int, error) {
	data, err := os.ReadFile(rrq.Filename)
	if err != nil {
		s.logger.Warn("rudp file not accessible", "filename", rrq.Filename, "err", err)
		if _, werr := s.conn.WriteToUDP(rudpproto.EncodeERROR(), clientAddr); werr != nil {
			return FileNotFound, 0, fmt.Errorf("sending ERROR: %w", werr)
		}
		s.incPacket("ERROR")
		return FileNotFound, 0, nil
	}

	if len(data) == 0 {
		// Nothing to send: the wire format has no representation for a
		// zero-byte DATA payload, so a zero-byte file completes with no
		// DATA packets at all. The client's idle-deadline fallback
		// terminates its receive loop and writes an empty file.
		return Done, 0, nil
	}

	totalPackets := (len(data) + rudpproto.DataChunkSize - 1) / rudpproto.DataChunkSize
	if totalPackets > maxTotalPackets {
		s.logger.Warn("rudp file exceeds representable sequence space, refusing",
			"filename", rrq.Filename, "size", len(data), "total_packets", totalPackets)
		if _, werr := s.conn.WriteToUDP(rudpproto.EncodeERROR(), clientAddr); werr != nil {
			return FileNotFound, totalPackets, fmt.Errorf("sending ERROR: %w", werr)
		}
		s.incPacket("ERROR")
		return FileNotFound, totalPackets, nil
	}

	chunk := func(i int) []byte {
		start := i * rudpproto.DataChunkSize
		end := start + rudpproto.DataChunkSize
		if end > len(data) {
			end = len(data)
		}
		return data[start:end]
	}

	ack := -1
	winstart := 0
	timeoutsInRow := 0
	windowSize := int(rrq.WindowSize)
	if windowSize < 1 {
		windowSize = 1
	}

	var writer io.Writer = udpClientWriter{conn: s.conn, addr: clientAddr}
	if s.pacer != nil {
		writer = s.pacer(writer)
	}

	recvBuf := make([]byte, rudpproto.MaxDataPacketSize+16)

	for {
		if ctx.Err() != nil {
			return Aborted, totalPackets, ctx.Err()
		}

		winend := winstart + windowSize - 1
		if winend > totalPackets-1 {
			winend = totalPackets - 1
		}
		for i := winstart; i <= winend; i++ {
			pkt, err := rudpproto.EncodeDATA(byte(i), chunk(i))
			if err != nil {
				return Aborted, totalPackets, fmt.Errorf("encoding DATA seq %d: %w", i, err)
			}
			if _, err := writer.Write(pkt); err != nil {
				return Aborted, totalPackets, fmt.Errorf("sending DATA seq %d: %w", i, err)
			}
			if s.tracer != nil {
				s.tracer.TraceRUDPPacket(sessionID, "out", "DATA", i, len(pkt))
			}
			s.incPacket("DATA")
		}

		s.conn.SetReadDeadline(time.Now().Add(ackTimeout))
		n, addr, err := s.conn.ReadFromUDP(recvBuf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				timeoutsInRow++
				if timeoutsInRow >= maxTimeoutsInRow {
					if s.metrics != nil {
						s.metrics.IncTimeoutAbort()
					}
					return Aborted, totalPackets, nil
				}
				if s.metrics != nil {
					s.metrics.IncRetransmit()
				}
				continue // retransmit the same window
			}
			return Aborted, totalPackets, fmt.Errorf("receiving ACK: %w", err)
		}

		if !sameAddr(addr, clientAddr) {
			continue // not expected to demultiplex concurrent sessions
		}

		ackSeq, err := rudpproto.DecodeACK(recvBuf[:n])
		if err != nil {
			continue // malformed/unexpected packet, ignore
		}
		s.incPacket("ACK")
		if s.tracer != nil {
			s.tracer.TraceRUDPPacket(sessionID, "in", "ACK", int(ackSeq), n)
		}

		if int(ackSeq) <= ack {
			continue // duplicate/stale ACK: ignored, does not reset timeoutsInRow
		}

		ack = int(ackSeq)
		timeoutsInRow = 0
		winstart = ack + 1

		if ack == totalPackets-1 {
			return Done, totalPackets, nil
		}
	}
}

func sameAddr(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

func (s *Server) incPacket(kind string) {
	if s.metrics != nil {
		s.metrics.IncPacket(kind)
	}
}

type udpClientWriter struct {
	conn *net.UDPConn
	addr *net.UDPAddr
}

func (w udpClientWriter) Write(p []byte) (int, error) {
	return w.conn.WriteToUDP(p, w.addr)
}
