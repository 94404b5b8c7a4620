// Command distfsnode runs one storage-plane node (spec §6): it loads a
// JSON config file, wires up the node, and serves until a termination
// signal triggers a graceful shutdown. Exit code 0 on clean shutdown, 1
// on any initialization failure, matching spec §6.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/distfs/distfs/config"
	"github.com/distfs/distfs/internal/nlog"
	"github.com/distfs/distfs/node"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "/etc/distfs/node.json", "path to node configuration file")
	flag.Parse()

	defer nlog.Flush()

	cfg, err := config.Load(*configPath)
	if err != nil {
		nlog.Errorf("distfsnode: load config: %v", err)
		return 1
	}

	n, err := node.New(cfg)
	if err != nil {
		nlog.Errorf("distfsnode: init: %v", err)
		return 1
	}

	if cfg.PIDFile != "" {
		if err := writePIDFile(cfg.PIDFile); err != nil {
			nlog.Errorf("distfsnode: write pid file: %v", err)
			return 1
		}
		defer os.Remove(cfg.PIDFile)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- n.Serve() }()

	select {
	case sig := <-sigCh:
		nlog.Infof("distfsnode: received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			nlog.Errorf("distfsnode: serve: %v", err)
			return 1
		}
	}

	if err := n.Shutdown(); err != nil {
		nlog.Errorf("distfsnode: shutdown: %v", err)
		return 1
	}
	return 0
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
