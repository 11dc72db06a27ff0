// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package chatframe implements the fixed-layout CHAT wire frame: a 50-byte
// header (type, source, destination, length, msg_id) followed by a 0..400
// byte body.
package chatframe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Type enumerates the CHAT frame type codes.
type Type uint16

const (
	HELLO                       Type = 1
	HELLOAck                    Type = 2
	ListRequest                 Type = 3
	ClientList                  Type = 4
	Chat                        Type = 5
	Exit                        Type = 6
	ClientAlreadyPresentError   Type = 7
	CannotDeliverError          Type = 8
)

const (
	// HeaderSize is the fixed size of a CHAT frame header.
	HeaderSize = 50
	// NameSize is the width of the source and destination fields.
	NameSize = 20
	// MaxDataSize is the largest body a frame may carry.
	MaxDataSize = 400
	// MaxFrameSize is the largest a whole encoded frame may be.
	MaxFrameSize = HeaderSize + MaxDataSize
)

// ErrNameTooLong is returned by Encode when a source or destination name
// does not fit in NameSize bytes.
var ErrNameTooLong = errors.New("chatframe: name exceeds 20 bytes")

// ErrDataTooLong is returned by Encode when the body exceeds MaxDataSize.
var ErrDataTooLong = errors.New("chatframe: data exceeds 400 bytes")

// ErrTruncated is returned by Decode when the buffer does not hold a
// complete, well-formed frame.
var ErrTruncated = errors.New("chatframe: truncated or malformed frame")

// Frame is the decoded, in-memory representation of a CHAT wire frame.
type Frame struct {
	Type        Type
	Source      string
	Destination string
	MsgID       uint32
	Data        []byte
}

// Complete reports whether buf holds exactly one fully-framed CHAT message,
// per the §4.1 completeness predicate. It never panics on short input.
func Complete(buf []byte) bool {
	l := len(buf)
	if l < HeaderSize {
		return false
	}
	length := binary.BigEndian.Uint32(buf[42:46])
	if l == HeaderSize {
		return length == 0
	}
	if l <= MaxFrameSize {
		return uint32(l-HeaderSize) == length
	}
	return false
}

// Encode renders f as its exact wire representation: 50+len(f.Data) bytes.
func Encode(f Frame) ([]byte, error) {
	if len(f.Data) > MaxDataSize {
		return nil, ErrDataTooLong
	}
	srcField, err := padName(f.Source)
	if err != nil {
		return nil, err
	}
	dstField, err := padName(f.Destination)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, HeaderSize+len(f.Data))
	binary.BigEndian.PutUint16(buf[0:2], uint16(f.Type))
	copy(buf[2:22], srcField)
	copy(buf[22:42], dstField)
	binary.BigEndian.PutUint32(buf[42:46], uint32(len(f.Data)))
	binary.BigEndian.PutUint32(buf[46:50], f.MsgID)
	copy(buf[50:], f.Data)
	return buf, nil
}

// Decode parses a single complete frame from buf. buf must hold exactly one
// frame (as Complete would report); a too-short or length-mismatched buffer
// is an error.
func Decode(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, ErrTruncated
	}
	typ := binary.BigEndian.Uint16(buf[0:2])
	src := unpadName(buf[2:22])
	dst := unpadName(buf[22:42])
	length := binary.BigEndian.Uint32(buf[42:46])
	msgID := binary.BigEndian.Uint32(buf[46:50])

	if length > MaxDataSize {
		return Frame{}, fmt.Errorf("%w: length %d exceeds max", ErrTruncated, length)
	}
	if len(buf) != HeaderSize+int(length) {
		return Frame{}, ErrTruncated
	}

	data := make([]byte, length)
	copy(data, buf[HeaderSize:])

	return Frame{
		Type:        Type(typ),
		Source:      src,
		Destination: dst,
		MsgID:       msgID,
		Data:        data,
	}, nil
}

func padName(name string) ([]byte, error) {
	if len(name) > NameSize {
		return nil, ErrNameTooLong
	}
	field := make([]byte, NameSize)
	copy(field, name)
	return field, nil
}

func unpadName(field []byte) string {
	return string(bytes.TrimRight(field, "\x00"))
}

// NulTerminatedNames concatenates names as NUL-terminated strings, the body
// format the dispatcher uses for CLIENT_LIST frames.
func NulTerminatedNames(names []string) []byte {
	var buf bytes.Buffer
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}
