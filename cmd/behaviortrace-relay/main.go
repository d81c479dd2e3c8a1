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
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/vincentbai/behaviortrace/internal/config"
	"github.com/vincentbai/behaviortrace/internal/database"
	"github.com/vincentbai/behaviortrace/internal/server"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serveCommand(args)
	case "validate":
		err = validateCommand(args)
	case "events":
		err = eventsCommand(args)
	case "help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		slog.Error("behaviortrace-relay failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: behaviortrace-relay [command] [flags]

commands:
  serve     run the relay (default)
  validate  check a configuration file
  events    print the stored envelopes of one session`)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// defaultDatabasePath is the platform-specific application data location.
func defaultDatabasePath() (string, error) {
	homeDirectory, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get user home directory: %w", err)
	}

	var applicationDirectory string
	switch runtime.GOOS {
	case "darwin":
		applicationDirectory = filepath.Join(homeDirectory, "Library", "Application Support", "BehaviorTrace")
	case "windows":
		applicationDirectory = filepath.Join(homeDirectory, "AppData", "Roaming", "BehaviorTrace")
	default: // linux and others
		applicationDirectory = filepath.Join(homeDirectory, ".local", "share", "BehaviorTrace")
	}
	if err := os.MkdirAll(applicationDirectory, 0o755); err != nil {
		return "", fmt.Errorf("create application directory: %w", err)
	}
	return filepath.Join(applicationDirectory, "events.db"), nil
}

func openStore(cfg *config.Config, disabled bool) (*database.Database, error) {
	if disabled {
		return nil, nil
	}
	path := cfg.Relay.Database
	if path == "" {
		var err error
		if path, err = defaultDatabasePath(); err != nil {
			return nil, err
		}
	}
	db, err := database.NewDatabase(path)
	if err != nil {
		return nil, err
	}
	slog.Info("event store opened", "path", path)
	return db, nil
}

func serveCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file")
	address := fs.String("address", "", "Listen address (overrides config and "+config.EnvAddress+")")
	noStore := fs.Bool("no-store", false, "Relay only; do not persist envelopes")
	staticDir := fs.String("static", "", "Directory served under /static/")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *address != "" {
		cfg.Relay.Address = *address
	}
	if *staticDir != "" {
		cfg.Relay.StaticDir = *staticDir
	}

	db, err := openStore(cfg, *noStore)
	if err != nil {
		return err
	}
	var store server.EventStore
	if db != nil {
		defer db.Close()
		store = db
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(store, cfg.Relay.Address, server.Options{
		ReadTimeout:     cfg.Relay.ReadTimeout,
		WriteTimeout:    cfg.Relay.WriteTimeout,
		ShutdownTimeout: cfg.Relay.ShutdownTimeout,
		ListenerBuffer:  cfg.Relay.ListenerBuffer,
		StaticDir:       cfg.Relay.StaticDir,
	})
	return srv.Start(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cfgPath == "" {
		return errors.New("-config is required")
	}
	if _, err := config.Load(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func eventsCommand(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file")
	sessionID := fs.String("session", "", "Session id to print")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sessionID == "" {
		return errors.New("-session is required")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	envelopes, err := db.SessionEvents(context.Background(), *sessionID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(envelopes)
}
