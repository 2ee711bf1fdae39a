// The server binary runs the HTTP API with the job worker in-process. At the
// target scale a single process owns both; extract cmd/worker to a separate
// deployment when queue depth demands it.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"evalforge/internal/app"
	"evalforge/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg, app.Options{HTTP: true, Worker: true})
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Seed defaults on startup; idempotent.
	if _, err := application.Seeder.SeedAll(context.Background()); err != nil {
		application.Logger.Error("Seeding failed", "error", err)
	}

	application.StartWorker()

	go func() {
		if err := application.Server.Start(); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	application.Logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		application.Logger.Error("Shutdown error", "error", err)
	}
}
