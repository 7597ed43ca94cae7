// riskmesh - AI-assisted asset risk scoring service
package main

import (
	"context"
	"os"

	"github.com/mbd888/riskmesh/internal/config"
	"github.com/mbd888/riskmesh/internal/logging"
	"github.com/mbd888/riskmesh/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, closer := logging.NewWithFile(cfg.LogLevel, cfg.LogFormat, logging.FileOptions{Path: cfg.LogFile})
	defer func() { _ = closer.Close() }()

	logger.Info("starting riskmesh",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
		"payouts", cfg.PayoutsEnabled(),
	)

	server.Version = Version
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
