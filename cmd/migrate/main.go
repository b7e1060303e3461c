package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/padhaihub/backend/internal/config"
	"github.com/padhaihub/backend/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.New()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := store.RunMigrations(context.Background(), cfg.DatabaseURL, command); err != nil {
		slog.Error("Migration failed", "command", command, "error", err)
		os.Exit(1)
	}
	slog.Info("Migration complete", "command", command)
}
