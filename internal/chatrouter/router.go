// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package chatrouter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/epark-labs/netlab/internal/chatframe"
	"github.com/epark-labs/netlab/internal/idgen"
)

// DefaultMaxConnections bounds the number of simultaneously open
// connections (and so of ingress buffers, which grow on demand), per the
// implementation-defined resource budget.
const DefaultMaxConnections = 1024

// Tracer receives one call per frame that crosses the wire, for optional
// diagnostic recording. Implementations must not block the router.
type Tracer interface {
	TraceChatFrame(connID uint64, direction string, f chatframe.Frame)
}

// Stats receives periodic counters from the router for a stats reporter.
type Stats struct {
	ActiveConnections int
	DirectorySize     int
	FramesIn          uint64
	FramesOut         uint64
	Disconnects       uint64
}

type connState struct {
	conn         net.Conn
	ingress      ingressBuffer
	label        string // idgen-minted tracing label, internal only
	lastActivity time.Time
}

// Router owns the listener, the connection table, and the directory, and
// runs the single-threaded readiness loop described in §4.2: a listener
// goroutine and one reader goroutine per connection feed a fan-in channel
// that the loop goroutine alone consumes, so decoding, dispatch, and
// directory access all happen on one goroutine without locks — the Go
// rendering of "whatever the host platform's readiness primitive is".
type Router struct {
	listener net.Listener
	logger   *slog.Logger
	dir      *Directory
	maxConns int
	pacer    func(net.Conn) io.Writer
	tracer   Tracer

	// ingressStaleAfter, when nonzero, bounds how long a connection may sit
	// with a partial (incomplete) frame buffered before the sweep disconnects
	// it. Zero disables the sweep.
	ingressStaleAfter time.Duration

	conns  map[ConnID]*connState
	nextID ConnID

	events chan event

	framesIn    atomic.Uint64
	framesOut   atomic.Uint64
	disconnects atomic.Uint64
}

type event struct {
	id   ConnID
	data []byte
	err  error
}

// Option configures a Router.
type Option func(*Router)

// WithMaxConnections overrides DefaultMaxConnections.
func WithMaxConnections(n int) Option {
	return func(r *Router) { r.maxConns = n }
}

// WithPacer installs a per-connection write wrapper (used for send pacing).
func WithPacer(pacer func(net.Conn) io.Writer) Option {
	return func(r *Router) { r.pacer = pacer }
}

// WithTracer installs a frame tracer.
func WithTracer(t Tracer) Option {
	return func(r *Router) { r.tracer = t }
}

// WithIngressStaleSweep enables the periodic housekeeping sweep that
// disconnects any connection sitting on a partial frame for longer than
// maxIdle. A zero maxIdle disables the sweep (the default).
func WithIngressStaleSweep(maxIdle time.Duration) Option {
	return func(r *Router) { r.ingressStaleAfter = maxIdle }
}

// NewRouter builds a Router bound to an already-listening socket.
func NewRouter(ln net.Listener, logger *slog.Logger, opts ...Option) *Router {
	r := &Router{
		listener: ln,
		logger:   logger,
		dir:      NewDirectory(),
		maxConns: DefaultMaxConnections,
		conns:    make(map[ConnID]*connState),
		events:   make(chan event, 256),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns a point-in-time Stats reading.
func (r *Router) Snapshot() Stats {
	return Stats{
		ActiveConnections: len(r.conns),
		DirectorySize:     r.dir.Len(),
		FramesIn:          r.framesIn.Load(),
		FramesOut:         r.framesOut.Load(),
		Disconnects:       r.disconnects.Load(),
	}
}

// Run accepts connections and services frames until ctx is cancelled or the
// listener fails.
func (r *Router) Run(ctx context.Context) error {
	acceptCh := make(chan net.Conn)
	acceptErrCh := make(chan error, 1)

	go func() {
		for {
			conn, err := r.listener.Accept()
			if err != nil {
				acceptErrCh <- err
				return
			}
			select {
			case acceptCh <- conn:
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	var sweepCh <-chan time.Time
	if r.ingressStaleAfter > 0 {
		ticker := time.NewTicker(r.ingressStaleAfter)
		defer ticker.Stop()
		sweepCh = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return nil
		case err := <-acceptErrCh:
			if errors.Is(err, net.ErrClosed) {
				r.closeAll()
				return nil
			}
			return err
		case conn := <-acceptCh:
			r.accept(ctx, conn)
		case ev := <-r.events:
			r.handleEvent(ev)
		case <-sweepCh:
			r.sweepStaleIngress()
		}
	}
}

// sweepStaleIngress disconnects any connection that has been sitting on a
// partial (incomplete) frame for longer than ingressStaleAfter. A
// connection with an empty ingress buffer is never stale, however long it
// has been idle — waiting for the next frame is normal.
func (r *Router) sweepStaleIngress() {
	cutoff := time.Now().Add(-r.ingressStaleAfter)
	for id, cs := range r.conns {
		if len(cs.ingress.bytes()) == 0 {
			continue
		}
		if cs.lastActivity.After(cutoff) {
			continue
		}
		r.logger.Warn("chat ingress buffer stale, disconnecting",
			"conn_id", uint64(id), "trace_label", cs.label, "buffered", len(cs.ingress.bytes()))
		r.disconnect(id, "stale partial frame")
	}
}

func (r *Router) accept(ctx context.Context, conn net.Conn) {
	if len(r.conns) >= r.maxConns {
		r.logger.Warn("chat connection rejected: at capacity", "max", r.maxConns)
		conn.Close()
		return
	}
	id := r.nextID
	r.nextID++
	label := idgen.New()
	r.conns[id] = &connState{conn: conn, label: label, lastActivity: time.Now()}
	r.logger.Info("chat connection accepted", "conn_id", uint64(id), "trace_label", label, "remote", conn.RemoteAddr())
	go r.readLoop(ctx, id, conn)
}

func (r *Router) readLoop(ctx context.Context, id ConnID, conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case r.events <- event{id: id, data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case r.events <- event{id: id, err: err}:
			case <-ctx.Done():
			}
			return
		}
	}
}

func (r *Router) handleEvent(ev event) {
	cs, ok := r.conns[ev.id]
	if !ok {
		return // already disconnected
	}
	if ev.err != nil {
		r.disconnect(ev.id, "read error")
		return
	}

	if err := cs.ingress.append(ev.data); err != nil {
		r.logger.Warn("chat protocol violation", "conn_id", uint64(ev.id), "err", err)
		r.disconnect(ev.id, "ingress overflow")
		return
	}
	cs.lastActivity = time.Now()
	if !cs.ingress.complete() {
		return
	}

	frame, err := chatframe.Decode(cs.ingress.bytes())
	cs.ingress.reset()
	if err != nil {
		r.logger.Warn("chat protocol violation", "conn_id", uint64(ev.id), "err", err)
		r.disconnect(ev.id, "malformed frame")
		return
	}
	r.framesIn.Add(1)
	if r.tracer != nil {
		r.tracer.TraceChatFrame(uint64(ev.id), "in", frame)
	}

	replies, directive := Dispatch(frame, ev.id, r.dir)
	for _, rep := range replies {
		r.send(rep.To, rep.Frame)
	}
	if directive == Disconnect {
		r.disconnect(ev.id, "dispatcher directive")
	}
}

func (r *Router) send(to ConnID, f chatframe.Frame) {
	cs, ok := r.conns[to]
	if !ok {
		return
	}
	buf, err := chatframe.Encode(f)
	if err != nil {
		r.logger.Error("failed to encode outbound chat frame", "conn_id", uint64(to), "err", err)
		return
	}

	var w io.Writer = cs.conn
	if r.pacer != nil {
		w = r.pacer(cs.conn)
	}
	if _, err := w.Write(buf); err != nil {
		r.logger.Warn("chat write failed", "conn_id", uint64(to), "err", err)
		r.disconnect(to, "write error")
		return
	}
	r.framesOut.Add(1)
	if r.tracer != nil {
		r.tracer.TraceChatFrame(uint64(to), "out", f)
	}
}

func (r *Router) disconnect(id ConnID, reason string) {
	cs, ok := r.conns[id]
	if !ok {
		return
	}
	delete(r.conns, id)
	r.dir.Unregister(id)
	cs.conn.Close()
	r.disconnects.Add(1)
	r.logger.Info("chat connection closed", "conn_id", uint64(id), "trace_label", cs.label, "reason", reason, "directory_size", r.dir.Len())
}

func (r *Router) closeAll() {
	for id, cs := range r.conns {
		cs.conn.Close()
		delete(r.conns, id)
	}
}

// StartStatsReporter logs a Stats snapshot every interval until ctx is
// cancelled. The frame and disconnect counters are cumulative; they are
// never reset between reports.
func (r *Router) StartStatsReporter(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := r.Snapshot()
				r.logger.Info("chat stats",
					"active_connections", s.ActiveConnections,
					"directory_size", s.DirectorySize,
					"frames_in", s.FramesIn,
					"frames_out", s.FramesOut,
					"disconnects", s.Disconnects,
				)
			}
		}
	}()
}
