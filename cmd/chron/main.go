// Command chron is a personal job supervisor: it launches and restarts
// background processes and runs shell commands on a cron schedule,
// exposing an HTTP control plane and hot-reloading its job definitions
// from a chronfile (spec.md §6).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/netresearch/chron/config"
	"github.com/netresearch/chron/core"
	"github.com/netresearch/chron/store"
	"github.com/netresearch/chron/web"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: chron <chronfile.toml>")
		return 1
	}
	chronfile := os.Args[1]

	port, err := parsePort(os.Getenv("PORT"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	home := os.Getenv("HOME")
	chronDir := filepath.Join(home, ".local", "share", "chron")

	logger := core.NewLogrusAdapter(logrus.InfoLevel)
	clock := core.NewRealClock()

	runStore, err := store.NewRunStatusStore(filepath.Join(chronDir, "jobStatus.json"))
	if err != nil {
		logger.Criticalf("open run-status store: %v", err)
		return 1
	}
	mailbox, err := store.NewMailbox(filepath.Join(chronDir, "mailbox.json"))
	if err != nil {
		logger.Criticalf("open mailbox: %v", err)
		return 1
	}

	supervisor := core.NewSupervisor(logger, clock, runStore, mailbox, chronDir, port)

	if err := config.Load(supervisor, chronfile); err != nil {
		logger.Criticalf("load %s: %v", chronfile, err)
		return 1
	}

	watcher, err := config.NewWatcher(chronfile, supervisor, logger)
	if err != nil {
		logger.Criticalf("watch %s: %v", chronfile, err)
		return 1
	}
	defer watcher.Close()

	server := web.NewServer(fmt.Sprintf(":%d", port), supervisor, logger, filepath.Join(chronDir, "logs"))
	server.Start()
	defer server.Shutdown()

	logger.Noticef("chron started, watching %s, control plane on port %d", chronfile, port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Noticef("shutting down, terminating running jobs")
	supervisor.Reset()
	return 0
}

// parsePort requires PORT to be set and to parse to a non-negative
// integer (spec.md §6).
func parsePort(raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("PORT environment variable is required")
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 0 {
		return 0, fmt.Errorf("PORT must be a non-negative integer, got %q", raw)
	}
	return port, nil
}
