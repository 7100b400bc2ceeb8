package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"vpnshield/pkg/config"

	"github.com/lmittmann/tint"
)

// New builds a logger writing to w in the configured format.
func New(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: cfg.Level,
		})), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: cfg.Level,
		})), nil
	case "pretty":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      cfg.Level,
			TimeFormat: time.DateTime,
		})), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}

func Init(cfg config.LoggingConfig) {
	logger, err := New(cfg, os.Stdout)
	if err != nil {
		slog.Error("unsupported log format", "format", cfg.Format)
		os.Exit(1)
	}
	slog.SetDefault(logger)
}
