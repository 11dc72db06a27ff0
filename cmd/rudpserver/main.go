// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Command rudpserver runs the RUDP file-transfer server: rudpserver <port>.
// Files are read relative to the process's current working directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/epark-labs/netlab/internal/config"
	"github.com/epark-labs/netlab/internal/logging"
	"github.com/epark-labs/netlab/internal/observability"
	"github.com/epark-labs/netlab/internal/rudpserver"
)

func main() {
	configPath := flag.String("config", "", "path to optional ambient tuning YAML file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: rudpserver <port>")
		os.Exit(1)
	}
	port, err := strconv.Atoi(flag.Arg(0))
	if err != nil || port <= 0 || port > 65535 {
		fmt.Fprintln(os.Stderr, "usage: rudpserver <port>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		logger.Error("failed to bind", "port", port, "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
		conn.Close()
	}()

	var opts []rudpserver.Option
	if cfg.Pacing.BytesPerSecond > 0 {
		opts = append(opts, rudpserver.WithPacer(func(w io.Writer) io.Writer {
			return observability.NewThrottledWriter(ctx, w, cfg.Pacing.BytesPerSecond, cfg.Pacing.Burst)
		}))
	}

	sched := observability.NewScheduler()
	defer sched.Stop()

	if cfg.Trace.Enabled {
		rec, err := observability.NewTraceRecorder(cfg.Trace.Path, cfg.Trace.Codec)
		if err != nil {
			logger.Error("failed to open trace log", "err", err)
			os.Exit(1)
		}
		defer rec.Close()
		opts = append(opts, rudpserver.WithTracer(traceAdapter{rec}))

		if err := sched.AddJob(cfg.Schedule.TraceRotationCron, func() {
			if err := rec.Rotate(); err != nil {
				logger.Warn("rudp trace log rotation failed", "err", err)
			}
		}); err != nil {
			logger.Error("failed to schedule trace rotation", "err", err)
			os.Exit(1)
		}
	}
	sched.Start()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
		opts = append(opts, rudpserver.WithMetrics(metricsAdapter{metrics}))
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil && ctx.Err() == nil {
				logger.Warn("metrics server stopped", "err", err)
			}
		}()
	}

	server := rudpserver.NewServer(conn, logger, opts...)

	if cfg.HostStats.Enabled {
		observability.StartHostStatsReporter(ctx, logger, "rudp host stats", cfg.HostStats.Path, cfg.HostStats.Interval)
	}

	logger.Info("rudpserver listening", "addr", conn.LocalAddr().String())
	if err := server.Run(ctx); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

// metricsAdapter adapts observability.Metrics to rudpserver.Metrics.
type metricsAdapter struct {
	m *observability.Metrics
}

func (a metricsAdapter) SetSessionActive(active bool) {
	v := 0.0
	if active {
		v = 1
	}
	a.m.RUDPActiveSessions.Set(v)
}

func (a metricsAdapter) IncRetransmit() {
	a.m.RUDPRetransmits.Inc()
}

func (a metricsAdapter) IncTimeoutAbort() {
	a.m.RUDPTimeoutAborts.Inc()
}

func (a metricsAdapter) IncPacket(kind string) {
	a.m.RUDPPacketsTotal.WithLabelValues(kind).Inc()
}
