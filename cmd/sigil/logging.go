package main

import (
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// setupLogging installs the process-wide slog default. Production gets
// JSON on stdout, anything else gets colorized tint output with source
// locations.
func setupLogging(levelStr string) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}

	var h slog.Handler
	switch os.Getenv("SIGIL_ENV") {
	case "prod", "production":
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: utcTimestamps,
		})
	default:
		h = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			AddSource:  true,
			TimeFormat: "15:04:05.000",
		})
	}

	slog.SetDefault(slog.New(h))

	// Route the stdlib logger through slog so dependencies that still
	// use log.Printf end up in the same stream.
	log.SetFlags(0)
	log.SetOutput(slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo).Writer())
}

func utcTimestamps(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.String("ts", a.Value.Time().UTC().Format(time.RFC3339Nano))
	}
	return a
}
