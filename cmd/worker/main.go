package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/leadflow/internal/app"
	"github.com/ignite/leadflow/internal/config"
)

// The worker runs the due-timer sweep and the inbound reply consumer, for
// deployments that keep the HTTP server and the background work on separate
// hosts. Per-lead locks keep several workers from evaluating the same lead.
func main() {
	log.Println("Starting leadflow automation worker...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	// One sweep at startup so a restart does not wait a full interval.
	n := a.Engine.ProcessDue(ctx)
	log.Printf("Initial sweep handled %d conversations", n)

	a.Engine.Start()
	log.Printf("Automation engine started (interval %s, batch %d)", cfg.Automation.Interval(), cfg.Automation.BatchSize)

	consumer := a.InboundConsumer()
	if consumer != nil {
		consumer.Start(ctx)
	} else {
		log.Println("Inbound reply queue not configured (INBOUND_QUEUE_URL not set)")
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !a.Engine.IsHealthy() {
					log.Printf("Worker heartbeat - last sweep at %s FAILED", a.Engine.LastRunAt().Format(time.RFC3339))
					continue
				}
				log.Printf("Worker heartbeat - last sweep at %s", a.Engine.LastRunAt().Format(time.RFC3339))
			}
		}
	}()

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	if consumer != nil {
		consumer.Stop()
	}
	a.Engine.Stop()

	// Give any in-flight lead evaluation time to finish.
	time.Sleep(2 * time.Second)

	log.Println("Worker stopped")
}
