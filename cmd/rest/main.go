package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"zkcred-be/internal/bootstrap"
	"zkcred-be/internal/config"
	"zkcred-be/internal/server"
	"zkcred-be/internal/tracer"
	"zkcred-be/pkg/database"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.Tracing)
	defer shutdownTracer(context.Background())

	// 3. Initialize Database (optional)
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.IsProduction())
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		defer database.Close(db)
		gormDB = db
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Sessions outlive the signal so in-flight proofs can finish; they are
	// cancelled only once the shutdown grace period is over.
	sessionsCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	// 4. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(sessionsCtx, gormDB, cfg)
	if err != nil {
		log.Fatalf("Bootstrap failed: %v", err)
	}
	defer container.Close()

	// 5. Start Background Services
	if err := container.ConsumerService.Consume(sessionsCtx); err != nil {
		log.Fatalf("Audit consumer failed to start: %v", err)
	}
	if container.NotificationService != nil {
		if err := container.NotificationService.Start(hubCtx); err != nil {
			container.Logger.Error("Main", "Notification service failed to start", map[string]interface{}{"error": err.Error()})
		}
	}

	// 6. Initialize Server
	srv := server.New(cfg, container)

	g, ctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		return container.WebSocketHub.Run(hubCtx)
	})
	g.Go(srv.Run)
	g.Go(func() error {
		<-ctx.Done()
		container.Logger.Info("Main", "Shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			container.Logger.Warn("Main", "HTTP shutdown", map[string]interface{}{"error": err.Error()})
		}
		// Closing every channel aborts extractions; proofs keep running.
		stopHub()
		if err := container.Orchestrator.Wait(shutdownCtx); err != nil {
			container.Logger.Error("Main", "Sessions still running at shutdown deadline", map[string]interface{}{"error": err.Error()})
		}
		cancelSessions()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		container.Logger.Error("Main", "Server stopped with error", map[string]interface{}{"error": err.Error()})
	}
}
