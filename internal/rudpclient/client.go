// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package rudpclient implements the RUDP client: one RRQ, a receive loop
// assembling DATA packets by sequence number, and per-packet ACKs.
package rudpclient

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/epark-labs/netlab/internal/rudpproto"
)

// ErrServerError is returned when the server sends an ERROR packet
// (requested file not accessible, or too large for the sequence space).
var ErrServerError = errors.New("rudpclient: server reported an error")

// maxDatagram is the largest a DATA/ACK/ERROR datagram can legitimately be
// (2-byte header + full 512-byte chunk).
const maxDatagram = rudpproto.MaxDataPacketSize

// idleDeadline bounds how long the client waits for each datagram, the
// first one included. §4.6 terminates on a short (<514-byte) datagram;
// that rule never fires when the file size is an exact multiple of 512, so
// this deadline is the fallback that guarantees termination in that case
// too (see the server's §9 open-question resolution: total_packets =
// ceil(filesize/512) with no empty trailing chunk).
const idleDeadline = 2 * ackServerTimeout

const ackServerTimeout = 3 * time.Second

// Result is what a successful transfer produced.
type Result struct {
	Data     []byte
	Filename string
}

// Fetch requests filename from serverAddr with the given window size and
// returns the assembled file bytes.
func Fetch(conn *net.UDPConn, serverAddr *net.UDPAddr, windowSize byte, filename string, logger *slog.Logger) (Result, error) {
	rrq, err := rudpproto.EncodeRRQ(windowSize, filename)
	if err != nil {
		return Result{}, fmt.Errorf("encoding RRQ: %w", err)
	}
	if _, err := conn.WriteToUDP(rrq, serverAddr); err != nil {
		return Result{}, fmt.Errorf("sending RRQ: %w", err)
	}

	a := newAssembler()

	buf := make([]byte, maxDatagram+16)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(idleDeadline)); err != nil {
			return Result{}, fmt.Errorf("setting read deadline: %w", err)
		}
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				logger.Info("rudp client idle timeout, assuming transfer complete", "bytes", a.size())
				break
			}
			return Result{}, fmt.Errorf("receiving datagram: %w", err)
		}
		if !sameAddr(addr, serverAddr) {
			continue
		}

		pkt := buf[:n]
		typ, err := rudpproto.PeekType(pkt)
		if err != nil {
			continue
		}

		switch typ {
		case rudpproto.ERROR:
			if err := rudpproto.DecodeERROR(pkt); err == nil {
				logger.Warn("rudp server reported error, aborting")
				return Result{}, ErrServerError
			}
		case rudpproto.DATA:
			d, err := rudpproto.DecodeDATA(pkt)
			if err != nil {
				continue
			}
			if int(d.Seqno) == a.expected() {
				a.accept(d.Seqno, d.Payload)
				ack := rudpproto.EncodeACK(d.Seqno)
				if _, err := conn.WriteToUDP(ack, serverAddr); err != nil {
					return Result{}, fmt.Errorf("sending ACK: %w", err)
				}
				logger.Debug("rudp client accepted DATA", "seq", d.Seqno, "size", len(d.Payload))
			} else {
				logger.Debug("rudp client dropped out-of-order/duplicate DATA", "seq", d.Seqno, "expected", a.expected())
			}

			if n < 514 {
				// A short datagram (§4.6) signals the last packet.
				return Result{Data: a.bytes(), Filename: filename}, nil
			}
		default:
			continue
		}
	}

	return Result{Data: a.bytes(), Filename: filename}, nil
}

func sameAddr(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
