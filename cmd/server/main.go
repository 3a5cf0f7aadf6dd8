package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/healthbot/healthbot/internal/api"
	"github.com/healthbot/healthbot/internal/auth"
	"github.com/healthbot/healthbot/internal/config"
	"github.com/healthbot/healthbot/internal/core"
	"github.com/healthbot/healthbot/internal/logger"
	"github.com/healthbot/healthbot/internal/store"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging
	zl, err := logger.New(config.AppConfig.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		zl.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	// Initialize LLM service
	llmService, err := core.NewLLMService(context.Background(), config.AppConfig.GeminiAPIKey, zl)
	if err != nil {
		zl.Fatal("failed to initialize LLM service", zap.Error(err))
	}
	defer llmService.Close()

	tokens, err := auth.NewTokenService(config.AppConfig.SecretKey)
	if err != nil {
		zl.Fatal("failed to initialize token service", zap.Error(err))
	}

	classifier := core.NewEmbeddingClassifier(llmService, nil)
	authService := core.NewAuthService(dbStore, tokens, zl)
	chatService := core.NewChatService(dbStore, classifier, llmService, zl)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(authService, chatService, zl)
	router := api.NewRouter(apiHandler, zl)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // classification plus generation can be slow
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		zl.Info("starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
		return
	}

	zl.Info("server exiting gracefully")
}
