// Command taskmasterd serves the Taskmaster REST API and SSE event stream
// over the configured store directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/GoCodeAlone/taskmaster/activity"
	"github.com/GoCodeAlone/taskmaster/config"
	"github.com/GoCodeAlone/taskmaster/internal/logging"
	"github.com/GoCodeAlone/taskmaster/internal/version"
	"github.com/GoCodeAlone/taskmaster/server"
	"github.com/GoCodeAlone/taskmaster/tracker"
)

var (
	configPath = flag.String("config", "", "path to YAML config file")
	hashPass   = flag.String("hash-password", "", "print the bcrypt hash for auth.admin_pass and exit")
)

func main() {
	flag.Parse()

	if *hashPass != "" {
		h, err := server.HashPassword(*hashPass)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(h)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Writer: os.Stdout,
	})
	if err != nil {
		log.Fatalf("Failed to init logging: %v", err)
	}
	defer logger.Close() //nolint:errcheck

	logger.Info("starting taskmasterd",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.String("store", cfg.Store.Dir))

	policy, err := cfg.Policy()
	if err != nil {
		log.Fatalf("Invalid transitions: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.ActivityPath()), 0o755); err != nil {
		log.Fatalf("Failed to create store dir: %v", err)
	}
	actLog, err := activity.OpenSQLite(cfg.ActivityPath())
	if err != nil {
		log.Fatalf("Failed to open activity log: %v", err)
	}
	defer actLog.Close() //nolint:errcheck

	svc := tracker.New(tracker.Options{
		TasksPath:   cfg.TasksPath(),
		AgentsPath:  cfg.AgentsPath(),
		SprintsPath: cfg.SprintsPath(),
		Policy:      policy,
		Log:         actLog,
		Logger:      logger.Logger,
	})

	srv := server.New(*cfg, svc, svc.Bus(), version.Version, logger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := svc.WatchAndPublish(ctx); err != nil {
			logger.Warn("file watcher stopped", slog.Any("err", err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Printf("Taskmaster server running on %s\n", cfg.Server.Addr)
	fmt.Printf("Version: %s (%s)\n", version.Version, version.Commit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		logger.Error("server error", slog.Any("err", err))
	}

	fmt.Println("Shutting down...")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server stop error", slog.Any("err", err))
	}
	fmt.Println("Shutdown complete")
}
