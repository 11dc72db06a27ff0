// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/epark-labs/netlab/internal/chatframe"
	"github.com/epark-labs/netlab/internal/chatrouter"
	"github.com/epark-labs/netlab/internal/observability"
)

// traceAdapter adapts observability.TraceRecorder to chatrouter.Tracer.
type traceAdapter struct {
	rec *observability.TraceRecorder
}

func (t traceAdapter) TraceChatFrame(connID uint64, direction string, f chatframe.Frame) {
	t.rec.Record(observability.TraceEvent{
		Subsystem: "chat",
		PeerID:    fmt.Sprintf("conn-%d", connID),
		Kind:      direction + ":" + frameKindName(f.Type),
		Seq:       int(f.MsgID),
		Size:      chatframe.HeaderSize + len(f.Data),
	})
}

func frameKindName(t chatframe.Type) string {
	switch t {
	case chatframe.HELLO:
		return "HELLO"
	case chatframe.HELLOAck:
		return "HELLO_ACK"
	case chatframe.ListRequest:
		return "LIST_REQUEST"
	case chatframe.ClientList:
		return "CLIENT_LIST"
	case chatframe.Chat:
		return "CHAT"
	case chatframe.Exit:
		return "EXIT"
	case chatframe.ClientAlreadyPresentError:
		return "CLIENT_ALREADY_PRESENT_ERROR"
	case chatframe.CannotDeliverError:
		return "CANNOT_DELIVER_ERROR"
	default:
		return "UNKNOWN"
	}
}

// reportMetrics periodically folds router stats into the Prometheus gauges,
// turning Snapshot's cumulative FramesIn/FramesOut counters into the
// monotonic increments ChatFramesTotal expects.
func reportMetrics(ctx context.Context, router *chatrouter.Router, m *observability.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	var lastIn, lastOut uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := router.Snapshot()
			m.ChatActiveConnections.Set(float64(s.ActiveConnections))
			m.ChatDirectorySize.Set(float64(s.DirectorySize))
			m.ChatFramesTotal.WithLabelValues("in").Add(float64(s.FramesIn - lastIn))
			m.ChatFramesTotal.WithLabelValues("out").Add(float64(s.FramesOut - lastOut))
			lastIn, lastOut = s.FramesIn, s.FramesOut
		}
	}
}
