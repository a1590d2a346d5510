package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wenwu/saas-platform/provisioning-service/internal/client"
	"github.com/wenwu/saas-platform/provisioning-service/internal/config"
	"github.com/wenwu/saas-platform/provisioning-service/internal/db"
	"github.com/wenwu/saas-platform/provisioning-service/internal/http"
	"github.com/wenwu/saas-platform/provisioning-service/internal/repository"
	"github.com/wenwu/saas-platform/provisioning-service/internal/service"
)

func main() {
	log.Println("Starting Provisioning Service...")

	// Load configuration
	cfg := config.Load()

	// Run migrations before opening the pool
	if err := db.RunMigrations(cfg.Database.DSN(), cfg.Database.Schema); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize database
	pool, err := db.NewPool(cfg.Database.DSN(), cfg.Database.Schema)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Initialize repositories
	provisionRepo := repository.NewProvisionRepository(pool)
	accountRepo := repository.NewAccountRepository(pool)
	inboundRepo := repository.NewInboundRepository(pool)
	logRepo := repository.NewProvisionLogRepository(pool)

	// Initialize panel gateway
	panelClient := client.NewPanelClient(
		cfg.Panel.BaseURL,
		cfg.Panel.Username,
		cfg.Panel.Password,
		cfg.Panel.Timeout,
	)

	// Startup connectivity check; provisioning still comes up if the panel
	// is down, the first unit will just fail retryably.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := panelClient.Login(ctx); err != nil {
		log.Printf("Warning: panel login check failed: %v", err)
	}
	cancel()

	// Initialize services
	provisionService := service.NewProvisionService(
		cfg,
		provisionRepo,
		accountRepo,
		inboundRepo,
		logRepo,
		panelClient,
	)

	accountService := service.NewAccountService(provisionRepo, accountRepo)

	// Initialize HTTP server
	server := http.NewServer(cfg, pool, provisionService, accountService)

	// Start server in goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Printf("Server starting on %s", addr)
		if err := server.Run(addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	log.Println("Server exited")
}
