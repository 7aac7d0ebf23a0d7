package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/product-ingest/internal/api"
	"github.com/ignite/product-ingest/internal/config"
	"github.com/ignite/product-ingest/internal/ingest"
	"github.com/ignite/product-ingest/internal/pkg/logger"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w\n"+
			"  Hint: Run 'lsof -i' to find the blocking process", addr, err)
	}
	return ln.Close()
}

func main() {
	log := logger.With("component", "server")

	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if err := cfg.Source.CheckExposed(); err != nil {
		log.Error("Unsafe source config", "error", err)
		os.Exit(1)
	}

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		log.Error("Pre-flight check failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, _, err := ingest.Bootstrap(ctx, cfg, logger.Default())
	if err != nil {
		log.Error("Failed to build ingestion service", "error", err)
		os.Exit(1)
	}
	server := api.NewServer(cfg.Server, svc, svc.Runs())

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("Starting server", "addr", addr, "bus", cfg.Publish.Bus, "sources", cfg.Source.Schemes)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	log.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", "error", err)
	}
	log.Info("Server stopped")
}
