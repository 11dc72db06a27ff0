// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package observability carries the ambient instrumentation shared by the
// chat router and the RUDP server/client: write pacing, host stats
// sampling, a compressed trace log, scheduled housekeeping, and an opt-in
// metrics endpoint. None of it touches wire formats or state machines.
package observability

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurstSize caps the token bucket's burst regardless of configured
// rate or explicit burst override, so a misconfigured value cannot
// reserve an unbounded burst.
const maxBurstSize = 256 * 1024

// ThrottledWriter wraps an io.Writer with token-bucket rate limiting. It
// backs two call sites with different burst shapes — the chat router's
// frequent, small per-connection frame writes and the RUDP sender's
// larger per-window DATA bursts — so burst size is an explicit, separate
// knob rather than implicitly tied to the rate.
type ThrottledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	burst   int
	ctx     context.Context
}

// NewThrottledWriter caps w to bytesPerSec bytes/second with a token
// bucket burst of burstBytes. If bytesPerSec <= 0 it returns w unchanged
// (bypass) — pacing is opt-in. A non-positive burstBytes falls back to
// bytesPerSec, matching a single combined rate/burst knob for callers
// that don't need to size them independently.
func NewThrottledWriter(ctx context.Context, w io.Writer, bytesPerSec, burstBytes int) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}

	burst := burstBytes
	if burst <= 0 {
		burst = bytesPerSec
	}
	if burst > maxBurstSize {
		burst = maxBurstSize
	}

	return &ThrottledWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		burst:   burst,
		ctx:     ctx,
	}
}

// Write implements io.Writer, splitting writes larger than the burst size
// so token consumption is gradual rather than one huge reservation.
func (tw *ThrottledWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.burst {
			chunk = tw.burst
		}
		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return total, err
		}
		n, err := tw.w.Write(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}
