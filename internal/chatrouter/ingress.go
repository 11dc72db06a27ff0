// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package chatrouter

import (
	"errors"

	"github.com/epark-labs/netlab/internal/chatframe"
)

// ErrIngressOverflow is returned when a connection sends more bytes than a
// single frame could ever need, a protocol violation.
var ErrIngressOverflow = errors.New("chatrouter: ingress buffer overflow")

// ingressBuffer accumulates bytes for one connection until a complete CHAT
// frame is present. At most one frame's worth of bytes is ever retained
// between ticks.
type ingressBuffer struct {
	buf []byte
}

func (b *ingressBuffer) append(p []byte) error {
	if len(b.buf)+len(p) > chatframe.MaxFrameSize {
		return ErrIngressOverflow
	}
	b.buf = append(b.buf, p...)
	return nil
}

func (b *ingressBuffer) complete() bool {
	return chatframe.Complete(b.buf)
}

func (b *ingressBuffer) reset() {
	b.buf = b.buf[:0]
}

func (b *ingressBuffer) bytes() []byte {
	return b.buf
}
