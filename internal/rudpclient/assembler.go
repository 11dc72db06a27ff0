// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package rudpclient

import "github.com/epark-labs/netlab/internal/rudpproto"

// assembler is the client-side receive buffer: a slot per sequence number,
// written at most once. The client only ever ACKs in-order (seqno ==
// expected), so slots are always filled contiguously from 0.
type assembler struct {
	chunks [][]byte
	acked  int // highest contiguous sequence number accepted, -1 if none
}

func newAssembler() *assembler {
	return &assembler{acked: -1}
}

// expected is the next sequence number the assembler will accept.
func (a *assembler) expected() int {
	return a.acked + 1
}

// accept records payload for seqno. It ignores any seqno other than
// expected(), so an out-of-order or duplicate call neither skips a gap nor
// overwrites an existing slot.
func (a *assembler) accept(seqno byte, payload []byte) {
	idx := int(seqno)
	if idx != a.acked+1 {
		return
	}
	chunk := make([]byte, len(payload))
	copy(chunk, payload)
	if idx == len(a.chunks) {
		a.chunks = append(a.chunks, chunk)
	} else if idx < len(a.chunks) {
		if a.chunks[idx] == nil {
			a.chunks[idx] = chunk
		}
	}
	a.acked = idx
}

// bytes concatenates all accepted chunks in sequence order.
func (a *assembler) bytes() []byte {
	out := make([]byte, 0, rudpproto.DataChunkSize*len(a.chunks))
	for _, c := range a.chunks {
		out = append(out, c...)
	}
	return out
}

func (a *assembler) size() int {
	return len(a.bytes())
}
