// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-trustgate.
//
// go-trustgate is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jeremyhahn/go-trustgate/internal/config"
	"github.com/jeremyhahn/go-trustgate/internal/server"
	"github.com/jeremyhahn/go-trustgate/pkg/logging"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/trustgate/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-trustgate trustd\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("TRUSTGATE_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	logger := logging.DefaultLogger()
	logger.Info("Starting trustd", "config", *configPath, "version", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Info("Configuration loaded",
		"storage", cfg.Storage.Backend,
		"key_provider", cfg.KeyProvider.Type,
		"lockout_threshold", cfg.Lockout.Threshold,
		"lockout_window", cfg.Lockout.Window.String())

	srv, err := server.New(cfg)
	if err != nil {
		logger.Fatalf("Failed to create server: %v", err)
	}

	// Setup signal handler for graceful shutdown
	shutdownCtx := server.SetupSignalHandler()

	if err := srv.Start(); err != nil {
		_ = srv.Shutdown()
		logger.Fatalf("Failed to start server: %v", err)
	}

	<-shutdownCtx.Done()

	if err := srv.Shutdown(); err != nil {
		logger.Fatalf("Error during shutdown: %v", err)
	}

	logger.Info("Server stopped successfully")
}
