// Package main implements the PBSM node process: the executable that
// bootstraps one site of a proxy-based shared memory cluster, connects to
// every peer, and serves coherence and barrier traffic until it receives a
// shutdown signal.
//
// Configuration:
//   - argv[1]: this node's id, 0..N-1 (0 is the coordinator)
//   - PBSM_HOSTS_FILE: path to the peer list (default: /etc/pbsm/hosts.conf)
//
// Example usage:
//
//	echo -e "10.0.0.1\n10.0.0.2\n10.0.0.3" > hosts.conf
//	PBSM_HOSTS_FILE=hosts.conf ./pbsm-node 0
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/northgate-labs/pbsm/internal/config"
	"github.com/northgate-labs/pbsm/internal/runtime"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	selfID, err := config.ParseSelfID(os.Args[1:])
	if err != nil {
		logFatal("%v", err)
		return
	}

	hosts, err := config.LoadHosts(config.HostsPath())
	if err != nil {
		logFatal("%v", err)
		return
	}
	if err := config.Validate(selfID, hosts); err != nil {
		logFatal("%v", err)
		return
	}

	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	ctx := runtime.New(selfID, hosts, logger)

	logger.Printf("node[%d] connecting to %d peers", selfID, len(hosts))
	if err := ctx.Start(); err != nil {
		logFatal("start: %v", err)
		return
	}
	logger.Printf("node[%d] ready", selfID)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Printf("node[%d] shutting down", selfID)
	ctx.Stop()
	logger.Printf("node[%d] stopped", selfID)
}
