// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Command rudpclient retrieves a file over RUDP:
// rudpclient <host-ip> <port> <window-size 1..255> <filename>.
// The retrieved file is written to ./DST/<filename>.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/epark-labs/netlab/internal/config"
	"github.com/epark-labs/netlab/internal/logging"
	"github.com/epark-labs/netlab/internal/rudpclient"
)

func main() {
	configPath := flag.String("config", "", "path to optional ambient tuning YAML file")
	flag.Parse()

	if flag.NArg() != 4 {
		usage()
	}
	host := flag.Arg(0)
	port, err := strconv.Atoi(flag.Arg(1))
	if err != nil || port <= 0 || port > 65535 {
		usage()
	}
	window, err := strconv.Atoi(flag.Arg(2))
	if err != nil || window < 1 || window > 255 {
		usage()
	}
	filename := flag.Arg(3)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	serverAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		logger.Error("failed to resolve server address", "host", host, "port", port, "err", err)
		os.Exit(1)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		logger.Error("failed to open client socket", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	result, err := rudpclient.Fetch(conn, serverAddr, byte(window), filename, logger)
	if err != nil {
		logger.Error("transfer failed", "filename", filename, "err", err)
		os.Exit(1)
	}

	if err := os.MkdirAll("./DST", 0755); err != nil {
		logger.Error("failed to create destination directory", "err", err)
		os.Exit(1)
	}
	dest := filepath.Join("DST", result.Filename)
	if err := os.WriteFile(dest, result.Data, 0644); err != nil {
		logger.Error("failed to write destination file", "dest", dest, "err", err)
		os.Exit(1)
	}

	logger.Info("rudp transfer complete", "filename", filename, "bytes", len(result.Data), "dest", dest)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rudpclient <host-ip> <port> <window-size 1..255> <filename>")
	os.Exit(1)
}
