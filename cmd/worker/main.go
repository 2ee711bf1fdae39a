// The worker binary runs the background job worker without the HTTP API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"evalforge/internal/app"
	"evalforge/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Workers do not run migrations; the server owns the schema.
	cfg.Database.AutoMigrate = false

	application, err := app.New(cfg, app.Options{Worker: true})
	if err != nil {
		log.Fatalf("Failed to initialize worker: %v", err)
	}

	application.StartWorker()
	application.Logger.Info("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		application.Logger.Error("Shutdown error", "error", err)
	}
}
