package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vincentbai/behaviortrace/internal/config"
	"github.com/vincentbai/behaviortrace/internal/replay"
	"github.com/vincentbai/behaviortrace/internal/tracker"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(os.Args[1:]); err != nil {
		slog.Error("behaviortrace-replay failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("behaviortrace-replay", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file")
	pagePath := fs.String("page", "", "HTML page to load")
	scriptPath := fs.String("script", "", "YAML signal script")
	endpoint := fs.String("endpoint", "", "Collection endpoint (overrides config and "+config.EnvEndpoint+")")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pagePath == "" || *scriptPath == "" {
		fs.Usage()
		return errors.New("-page and -script are required")
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	opts := cfg.Tracker
	if *endpoint != "" {
		opts.Endpoint = *endpoint
	}

	script, err := replay.LoadScript(*scriptPath)
	if err != nil {
		return err
	}
	page, err := os.Open(*pagePath)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := replay.Run(ctx, page, script, tracker.WithOptions(opts))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"sessionId": result.SessionID,
		"products":  result.Products,
		"steps":     result.Steps,
		"elapsedMs": result.Elapsed.Milliseconds(),
		"session":   result.Snapshot,
	})
}
