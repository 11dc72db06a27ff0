// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package rudpproto implements the four RUDP datagram layouts: RRQ, DATA,
// ACK, ERROR. All fields are single bytes; there is no endianness to get
// wrong, unlike the chat frame codec.
package rudpproto

import (
	"bytes"
	"errors"
	"fmt"
)

// Type is the single-byte packet type tag at offset 0.
type Type byte

const (
	RRQ   Type = 1
	DATA  Type = 2
	ACK   Type = 3
	ERROR Type = 4
)

const (
	// FilenameFieldSize is the fixed width of the RRQ filename slot.
	FilenameFieldSize = 20
	// RRQSize is the exact wire size of an RRQ packet.
	RRQSize = 2 + FilenameFieldSize
	// DataChunkSize is the maximum payload size of a DATA packet.
	DataChunkSize = 512
	// MaxDataPacketSize is the largest a DATA packet may be on the wire.
	MaxDataPacketSize = 2 + DataChunkSize
	// ACKSize is the exact wire size of an ACK packet.
	ACKSize = 2
	// ErrorSize is the exact wire size of an ERROR packet.
	ErrorSize = 1
)

// ErrMalformed is returned by the decoders when a buffer does not hold the
// expected packet layout for its type.
var ErrMalformed = errors.New("rudpproto: malformed packet")

// ErrFilenameTooLong is returned by EncodeRRQ when filename exceeds the
// 19-byte usable capacity of the 20-byte NUL-terminated field.
var ErrFilenameTooLong = errors.New("rudpproto: filename exceeds field capacity")

// EncodeRRQ builds an RRQ packet requesting filename with the given window
// size (1..255, caller-validated; this never clamps silently).
func EncodeRRQ(windowSize byte, filename string) ([]byte, error) {
	if len(filename) >= FilenameFieldSize {
		return nil, ErrFilenameTooLong
	}
	buf := make([]byte, RRQSize)
	buf[0] = byte(RRQ)
	buf[1] = windowSize
	copy(buf[2:], filename)
	return buf, nil
}

// DecodedRRQ is a parsed RRQ packet.
type DecodedRRQ struct {
	WindowSize byte
	Filename   string
}

// DecodeRRQ parses buf as an RRQ packet.
func DecodeRRQ(buf []byte) (DecodedRRQ, error) {
	if len(buf) != RRQSize || Type(buf[0]) != RRQ {
		return DecodedRRQ{}, fmt.Errorf("%w: RRQ", ErrMalformed)
	}
	field := buf[2:]
	nul := bytes.IndexByte(field, 0)
	name := field
	if nul >= 0 {
		name = field[:nul]
	}
	return DecodedRRQ{WindowSize: buf[1], Filename: string(name)}, nil
}

// EncodeDATA builds a DATA packet with the given sequence number and
// payload (1..512 bytes).
func EncodeDATA(seqno byte, payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > DataChunkSize {
		return nil, fmt.Errorf("%w: DATA payload size %d out of [1,512]", ErrMalformed, len(payload))
	}
	buf := make([]byte, 2+len(payload))
	buf[0] = byte(DATA)
	buf[1] = seqno
	copy(buf[2:], payload)
	return buf, nil
}

// DecodedDATA is a parsed DATA packet.
type DecodedDATA struct {
	Seqno   byte
	Payload []byte
}

// DecodeDATA parses buf as a DATA packet.
func DecodeDATA(buf []byte) (DecodedDATA, error) {
	if len(buf) < 3 || len(buf) > MaxDataPacketSize || Type(buf[0]) != DATA {
		return DecodedDATA{}, fmt.Errorf("%w: DATA", ErrMalformed)
	}
	payload := make([]byte, len(buf)-2)
	copy(payload, buf[2:])
	return DecodedDATA{Seqno: buf[1], Payload: payload}, nil
}

// EncodeACK builds an ACK packet for seqno.
func EncodeACK(seqno byte) []byte {
	return []byte{byte(ACK), seqno}
}

// DecodeACK parses buf as an ACK packet.
func DecodeACK(buf []byte) (byte, error) {
	if len(buf) != ACKSize || Type(buf[0]) != ACK {
		return 0, fmt.Errorf("%w: ACK", ErrMalformed)
	}
	return buf[1], nil
}

// EncodeERROR builds the single-byte ERROR packet.
func EncodeERROR() []byte {
	return []byte{byte(ERROR)}
}

// DecodeERROR validates buf as an ERROR packet.
func DecodeERROR(buf []byte) error {
	if len(buf) != ErrorSize || Type(buf[0]) != ERROR {
		return fmt.Errorf("%w: ERROR", ErrMalformed)
	}
	return nil
}

// PeekType returns the packet type tag at offset 0 without validating the
// rest of the layout, for dispatch before a type-specific decode.
func PeekType(buf []byte) (Type, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("%w: empty packet", ErrMalformed)
	}
	return Type(buf[0]), nil
}
