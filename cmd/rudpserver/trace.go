// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package main

import (
	"github.com/epark-labs/netlab/internal/observability"
)

// traceAdapter adapts observability.TraceRecorder to rudpserver.Tracer.
type traceAdapter struct {
	rec *observability.TraceRecorder
}

func (t traceAdapter) TraceRUDPPacket(sessionID, direction, kind string, seqno int, size int) {
	t.rec.Record(observability.TraceEvent{
		Subsystem: "rudp",
		PeerID:    sessionID,
		Kind:      direction + ":" + kind,
		Seq:       seqno,
		Size:      size,
	})
}
