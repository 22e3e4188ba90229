package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkushnerov/tg-harvester/internal/backup"
	"github.com/mkushnerov/tg-harvester/internal/config"
	"github.com/mkushnerov/tg-harvester/internal/database"
	"github.com/mkushnerov/tg-harvester/internal/exporter"
	"github.com/mkushnerov/tg-harvester/internal/harvester"
	"github.com/mkushnerov/tg-harvester/internal/logger"
	"github.com/mkushnerov/tg-harvester/internal/nats"
	"github.com/mkushnerov/tg-harvester/internal/publisher"
	"github.com/mkushnerov/tg-harvester/internal/repository"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Msg("starting telegram harvester service")

	// 3. Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// 4. Connect to database and migrate
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// 5. Check accounts (loaded by config.Load from ACCOUNTS_FILE)
	if len(cfg.Accounts) == 0 {
		log.Warn().Str("path", cfg.AccountsFile).Msg("no accounts configured, harvesting disabled")
	} else {
		log.Info().Int("accounts", len(cfg.Accounts)).Msg("accounts loaded")
	}

	// 6. Connect to NATS
	nc, err := nats.New(cfg.NatsURL)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
	} else {
		defer nc.Close()
		if err := nc.EnsureHarvestStream(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to ensure harvest stream")
		}
	}

	var pub harvester.EventPublisher
	if nc != nil {
		pub = publisher.NewNATSPublisher(nc.Conn)
	}

	// 7. Initialize repository, exporter and backup
	usersRepo := repository.NewUsersRepository(db.GORM)
	csvExporter := exporter.NewCSV(cfg.ReplyDir)
	store := backup.New(db.SQLitePath, cfg.BackupDir)

	// 8. Initialize harvest service, manager and handler
	svc := harvester.NewService(cfg, usersRepo, pub, csvExporter, store.Run, harvester.Connect(cfg))
	runManager := harvester.NewRunManager(svc, cfg.Accounts)
	handler := harvester.NewHandler(runManager, usersRepo, csvExporter)

	// 9. Start HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: harvester.NewRouter(handler),
	}

	log.Info().Int("port", cfg.HTTPPort).Msg("starting http server")
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// 10. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}
