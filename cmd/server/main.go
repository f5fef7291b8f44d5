package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"

	"ledger-service/internal/config"
	"ledger-service/internal/database"
	"ledger-service/internal/events"
	"ledger-service/internal/handlers"
	"ledger-service/internal/logger"
	"ledger-service/internal/repositories"
	"ledger-service/internal/services"
)

func main() {
	migrateCmd := flag.String("migrate", "", "Migration command (up/down/version)")
	steps := flag.Int("steps", 0, "Number of migration steps (0 means all)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel).With().Str("service", "ledger").Str("env", cfg.Environment).Logger()

	db, err := database.NewConnection(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	defer db.Close()

	if *migrateCmd != "" {
		handleMigration(cfg, log, *migrateCmd, *steps)
		return
	}

	transactionRepo := repositories.NewTransactionRepository(db)
	historicalRepo := repositories.NewHistoricalRepository(db)
	platformRepo := repositories.NewPlatformRepository(db)
	propertyRepo := repositories.NewPropertyRepository(db)
	runRepo := repositories.NewRebuildRunRepository(db)

	normalizer := services.NewNormalizerService(transactionRepo, propertyRepo, log)
	rebuilder := services.NewRebuildService(
		[]repositories.SourceReader{historicalRepo, platformRepo},
		normalizer,
		transactionRepo,
		runRepo,
		log,
	)
	statements := services.NewStatementService(transactionRepo)
	balances := services.NewBalanceReportService(statements, transactionRepo, propertyRepo, log)

	dispatcher := events.NewDispatcher(rebuilder, cfg.Rebuild.Backdate, log)
	queue := events.NewQueue(cfg.Rebuild.QueueSize, cfg.Rebuild.Workers, dispatcher, log)

	ingestion := services.NewDataIngestionService(db, historicalRepo, platformRepo, queue, log)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if err := queue.Start(workerCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start notification queue")
	}

	router := handlers.SetupRouter(handlers.Handlers{
		Data:      handlers.NewDataHandler(ingestion),
		Rebuild:   handlers.NewRebuildHandler(queue, rebuilder),
		Statement: handlers.NewStatementHandler(statements, normalizer),
		Balance:   handlers.NewBalanceHandler(balances, cfg.Balance.DueThreshold),
	}, log)

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.ServerAddress).Msg("Server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	// no new notifications arrive once the server is down
	if err := queue.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("Notification queue did not drain")
	}
	log.Info().Msg("Server exited gracefully")
}

func handleMigration(cfg *config.Config, log zerolog.Logger, command string, steps int) {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", cfg.Migration.Dir),
		cfg.GetMigrationDBURL(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "no change") {
			log.Info().Msg("No migration changes to apply")
			return
		}
		log.Fatal().Err(err).Msg("Failed to initialize migrate")
	}
	defer m.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verErr := m.Version()
		if verErr != nil {
			if errors.Is(verErr, migrate.ErrNilVersion) {
				log.Info().Msg("No migrations have been applied yet")
				return
			}
			log.Fatal().Err(verErr).Msg("Failed to get version")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current migration version")
		return
	default:
		log.Fatal().Str("command", command).Msg("Invalid migration command")
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("No migration changes to apply")
			return
		}
		log.Fatal().Err(err).Msg("Migration failed")
	}

	log.Info().Msg("Migration completed successfully")
}
