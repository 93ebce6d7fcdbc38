package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/yuantus/backend/internal/application/services"
	"github.com/yuantus/backend/internal/config"
	"github.com/yuantus/backend/internal/domain/events"
	"github.com/yuantus/backend/internal/infrastructure/database"
	"github.com/yuantus/backend/internal/infrastructure/persistence"
)

// workflowd ensures the schema and runs the background stall sweep. The
// orchestration engine itself is a library; embedding applications construct
// it via services.NewWorkflowService.
func main() {
	cfg := config.Load()

	conn, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()
	log.Println("✅ Database connection established")

	db := conn.DB()
	if err := persistence.EnsureSchema(context.Background(), db); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	log.Println("✅ Schema ensured")

	txManager := persistence.NewTransactionManager(db)
	processes := persistence.NewProcessRepository(db)
	activities := persistence.NewActivityRepository(db)

	eventBus := services.NewEventBus()
	eventBus.Subscribe(events.ProcessStalled, func(ctx context.Context, payload interface{}) error {
		log.Printf("⚠️ Stall recorded: %+v", payload)
		return nil
	})

	detector := services.NewStallDetectorService(
		txManager, activities, processes, eventBus,
		cfg.StallSweepSchedule, cfg.StallGracePeriod)
	if err := detector.Start(); err != nil {
		log.Fatalf("Failed to start stall detector: %v", err)
	}

	log.Println("🚀 Workflow daemon started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	detector.Stop()
	log.Println("🛑 Stall detector stopped")
}
