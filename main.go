package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/xhsnap/xhsnap/internal/cli"
)

func main() {
	// Opportunistic: a missing .env is fine.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	})))

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
