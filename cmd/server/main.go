package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/leadflow/internal/api"
	"github.com/ignite/leadflow/internal/app"
	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/ingest"
	"github.com/ignite/leadflow/internal/pkg/httpretry"
	"github.com/ignite/leadflow/internal/pkg/logger"
	"github.com/ignite/leadflow/internal/repository/postgres"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  Leadflow automation server (cmd/server/main.go)           ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	if cfg.Automation.Enabled {
		a.Engine.Start()
		logger.Info("automation engine started", "interval", cfg.Automation.Interval().String(), "batch", cfg.Automation.BatchSize)
	} else {
		log.Println("Automation timer disabled; events are still evaluated on demand")
	}

	// Webhook import
	auth := ingest.NewAuthenticator(postgres.NewAPIKeyRepo(a.DB), cfg.Ingest.HMACSecret, cfg.Ingest.JWTSecret)
	importer, err := ingest.NewHandler(auth, postgres.NewImportRepo(a.DB))
	if err != nil {
		log.Fatalf("Failed to initialize importer: %v", err)
	}
	importer.SetEventSink(a.Engine)
	if cfg.Ingest.MatchFunctionURL != "" {
		client := httpretry.NewRetryClient(&http.Client{Timeout: 30 * time.Second}, 3)
		importer.SetForwarder(ingest.NewMatchForwarder(cfg.Ingest.MatchFunctionURL, cfg.Ingest.MatchToken, client))
		log.Println("Auto-match forwarding enabled")
	}
	if archiver := a.ImportArchiver(); archiver != nil {
		importer.SetArchiver(archiver)
		log.Printf("Import payloads archived to s3://%s", cfg.Ingest.ArchiveBucket)
	}
	limiter := ingest.NewIPRateLimiter(cfg.Ingest.RatePerMinute)
	defer limiter.Close()

	handlers := api.NewHandlers(a.Rules, a.Resolver)
	handlers.SetEventHandler(a.Engine)
	handlers.SetInboundRecorder(a.Leads)

	health := api.NewHealthChecker(a.DB, a.Redis)
	if cfg.Automation.Enabled {
		health.SetEngine(a.Engine, 3*cfg.Automation.Interval())
	}

	router := api.SetupRoutes(handlers, health, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		APIToken:       cfg.Server.APIToken,
		Import:         importer,
		ImportLimiter:  limiter,
	})
	server := api.NewServer(router)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized, server is ready")

	<-done
	log.Println("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
