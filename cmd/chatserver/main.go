// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Command chatserver runs the CHAT frame router: chatserver <port>.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/epark-labs/netlab/internal/chatrouter"
	"github.com/epark-labs/netlab/internal/config"
	"github.com/epark-labs/netlab/internal/logging"
	"github.com/epark-labs/netlab/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to optional ambient tuning YAML file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: chatserver <port>")
		os.Exit(1)
	}
	port := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	ln, err := net.Listen("tcp", net.JoinHostPort("", port))
	if err != nil {
		logger.Error("failed to bind/listen", "port", port, "err", err)
		os.Exit(1)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
		ln.Close()
	}()

	var routerOpts []chatrouter.Option

	if cfg.Pacing.BytesPerSecond > 0 {
		routerOpts = append(routerOpts, chatrouter.WithPacer(func(conn net.Conn) io.Writer {
			return observability.NewThrottledWriter(ctx, conn, cfg.Pacing.BytesPerSecond, cfg.Pacing.Burst)
		}))
	}

	if cfg.Schedule.IngressStaleAfter > 0 {
		routerOpts = append(routerOpts, chatrouter.WithIngressStaleSweep(cfg.Schedule.IngressStaleAfter))
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
		routerOpts = append(routerOpts, chatrouter.WithTracer(traceAdapter{rec}))

		if err := sched.AddJob(cfg.Schedule.TraceRotationCron, func() {
			if err := rec.Rotate(); err != nil {
				logger.Warn("chat trace log rotation failed", "err", err)
			}
		}); err != nil {
			logger.Error("failed to schedule trace rotation", "err", err)
			os.Exit(1)
		}
	}
	sched.Start()

	router := chatrouter.NewRouter(ln, logger, routerOpts...)
	router.StartStatsReporter(ctx, cfg.StatsInterval)

	if cfg.HostStats.Enabled {
		observability.StartHostStatsReporter(ctx, logger, "chat host stats", cfg.HostStats.Path, cfg.HostStats.Interval)
	}

	if cfg.Metrics.Enabled {
		m := observability.NewMetrics()
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen); err != nil && ctx.Err() == nil {
				logger.Warn("metrics server stopped", "err", err)
			}
		}()
		go reportMetrics(ctx, router, m)
	}

	logger.Info("chatserver listening", "addr", ln.Addr().String())
	if err := router.Run(ctx); err != nil {
		logger.Error("router error", "err", err)
		os.Exit(1)
	}
}
