package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codebymuri/DeFiYield/internal/clients/custody"
	"github.com/codebymuri/DeFiYield/internal/config"
	"github.com/codebymuri/DeFiYield/internal/database"
	"github.com/codebymuri/DeFiYield/internal/domain"
	"github.com/codebymuri/DeFiYield/internal/events"
	"github.com/codebymuri/DeFiYield/internal/modules/admin"
	"github.com/codebymuri/DeFiYield/internal/modules/rebalancing"
	"github.com/codebymuri/DeFiYield/internal/modules/registry"
	"github.com/codebymuri/DeFiYield/internal/modules/settings"
	"github.com/codebymuri/DeFiYield/internal/modules/vault"
	"github.com/codebymuri/DeFiYield/internal/scheduler"
	"github.com/codebymuri/DeFiYield/internal/server"
	"github.com/codebymuri/DeFiYield/pkg/logger"
)

// systemClock is the production logical clock: unix seconds
type systemClock struct{}

func (systemClock) Now() int64 { return time.Now().Unix() }

func main() {
	// Load configuration first so the logger honors LOG_LEVEL
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting DeFiYield engine")

	// Engine state lives in engine.db; the append-only rebalance history and
	// event log live in ledger.db under the durable profile
	engineDB, err := database.New(database.Config{Path: cfg.EngineDBPath, Name: "engine"})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open engine database")
	}
	defer engineDB.Close()

	ledgerDB, err := database.New(database.Config{
		Path:    cfg.LedgerDBPath,
		Name:    "ledger",
		Profile: database.ProfileLedger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	if err := engineDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate engine database")
	}
	if err := ledgerDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate ledger database")
	}

	// Repositories
	authRepo := registry.NewRepository(engineDB.Conn(), log)
	settingsRepo := settings.NewRepository(engineDB.Conn(), log)
	poolRepo := vault.NewPoolRepository(engineDB.Conn(), log)
	positionRepo := vault.NewPositionRepository(engineDB.Conn(), log)
	rebalanceRepo := rebalancing.NewRepository(engineDB.Conn(), log)
	historyRepo := rebalancing.NewHistoryRepository(ledgerDB.Conn(), log)
	recorder := events.NewRecorder(ledgerDB.Conn(), log)

	// Bootstrap the owner and the scheduler's agent account; grants are
	// idempotent
	if err := authRepo.Grant(cfg.OwnerAccount, registry.RoleOwner, time.Now().Unix()); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap owner account")
	}
	if err := authRepo.Grant(cfg.SchedulerAccount, registry.RoleAgent, time.Now().Unix()); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap scheduler agent account")
	}

	// Custody transfer capability
	var transfers domain.TransferCapability
	if cfg.CustodyServiceURL != "" {
		transfers = custody.NewClient(cfg.CustodyServiceURL, log)
	} else {
		log.Warn().Msg("No custody service configured, transfers are unbacked")
		transfers = custody.NewUnbacked(log)
	}

	clock := systemClock{}

	// Services
	vaultSvc := vault.NewService(
		engineDB, poolRepo, positionRepo,
		transfers, authRepo, clock, settingsRepo, recorder, log,
	)
	rebalanceSvc := rebalancing.NewService(
		rebalanceRepo, historyRepo, vaultSvc,
		authRepo, clock, settingsRepo, recorder, log,
	)
	adminSvc := admin.NewService(settingsRepo, authRepo, authRepo, clock, recorder, log)

	// Scheduler
	sched := scheduler.New(log)
	checkJob := scheduler.NewRebalanceCheckJob(rebalanceSvc, cfg.SchedulerAccount, log)
	if err := sched.AddJob(cfg.RebalanceSchedule, checkJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register rebalancing check job")
	}
	cleanupJob := scheduler.NewAdvisoryCleanupJob(rebalanceRepo, clock, log)
	if err := sched.AddJob("@daily", cleanupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register advisory cleanup job")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:     cfg.Port,
		Log:      log,
		EngineDB: engineDB,
		LedgerDB: ledgerDB,
		DevMode:  cfg.DevMode,
		Modules: []server.RouteRegistrar{
			vault.NewHandlers(vaultSvc, log),
			rebalancing.NewHandlers(rebalanceSvc, log),
			admin.NewHandlers(adminSvc, log),
		},
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Flush WAL pages before exit
	if err := engineDB.WALCheckpoint("TRUNCATE"); err != nil {
		log.Error().Err(err).Msg("Engine WAL checkpoint failed")
	}
	if err := ledgerDB.WALCheckpoint("TRUNCATE"); err != nil {
		log.Error().Err(err).Msg("Ledger WAL checkpoint failed")
	}

	log.Info().Msg("Server stopped")
}
