package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lumifax/internal/api"
	"lumifax/internal/api/handlers"
	"lumifax/internal/repository"
	"lumifax/internal/service"
	"lumifax/pkg/config"
	"lumifax/pkg/logger"
	"lumifax/pkg/postgres"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := logger.New(cfg.Logger.Level)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting lumifax service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	docRepo := repository.NewDocumentRepository(db, appLogger)

	// Process-wide session state and progress delivery, constructed once and
	// shared by every component that needs them.
	sessionStore := service.NewSessionStore()
	emitter := service.NewProgressEmitter(cfg.Stream, appLogger)

	engine := service.NewAzureEngine(&cfg.Analysis, appLogger)
	batchService := service.NewBatchService(sessionStore, emitter, engine, docRepo, *cfg, appLogger)

	// Initialize handlers
	batchHandler := handlers.NewBatchHandler(batchService, sessionStore, emitter, appLogger)
	docHandler := handlers.NewDocumentHandler(docRepo, appLogger)

	// Setup router
	app := api.SetupRouter(batchHandler, docHandler)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
