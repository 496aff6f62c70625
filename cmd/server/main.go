// Package main is the entry point for the zakat obligation tracking service.
// It watches each user's wealth against the nisab threshold, opens a lunar
// year (Hawl) record when wealth crosses it, and manages the record lifecycle
// through finalization with a tamper-evident audit trail.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mizanhq/mizan/internal/clients/metalprice"
	"github.com/mizanhq/mizan/internal/config"
	"github.com/mizanhq/mizan/internal/crypto"
	"github.com/mizanhq/mizan/internal/database"
	"github.com/mizanhq/mizan/internal/domain"
	"github.com/mizanhq/mizan/internal/modules/audit"
	"github.com/mizanhq/mizan/internal/modules/hawl"
	"github.com/mizanhq/mizan/internal/modules/nisab"
	nisabhandlers "github.com/mizanhq/mizan/internal/modules/nisab/handlers"
	"github.com/mizanhq/mizan/internal/modules/records"
	recordhandlers "github.com/mizanhq/mizan/internal/modules/records/handlers"
	"github.com/mizanhq/mizan/internal/modules/settings"
	settingshandlers "github.com/mizanhq/mizan/internal/modules/settings/handlers"
	"github.com/mizanhq/mizan/internal/modules/wealth"
	wealthhandlers "github.com/mizanhq/mizan/internal/modules/wealth/handlers"
	"github.com/mizanhq/mizan/internal/pricecache"
	"github.com/mizanhq/mizan/internal/reliability"
	"github.com/mizanhq/mizan/internal/scheduler"
	"github.com/mizanhq/mizan/internal/server"
	"github.com/mizanhq/mizan/internal/version"
	"github.com/mizanhq/mizan/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info", false)
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(cfg.LogLevel, cfg.DevMode)

	log.Info().Str("version", version.Version).Msg("Starting mizan")

	// Databases: the audit trail gets the ledger profile (synchronous FULL,
	// append-only), records the standard profile, prices the cache profile.
	recordsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "records.db"),
		Profile: database.ProfileStandard,
		Name:    "records",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open records database")
	}
	defer recordsDB.Close()

	auditDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "audit.db"),
		Profile: database.ProfileLedger,
		Name:    "audit",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audit database")
	}
	defer auditDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{recordsDB, auditDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to migrate database")
		}
	}

	// Encryption for asset snapshots, notes, and audit payloads.
	var cipher crypto.Cipher
	if cfg.EncryptionKeyHex != "" {
		cipher, err = crypto.NewAEADCipher(cfg.EncryptionKeyHex)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize cipher")
		}
	} else {
		if !cfg.DevMode {
			log.Fatal().Msg("ENCRYPTION_KEY is required outside dev mode")
		}
		log.Warn().Msg("No encryption key configured, storing sensitive fields unencrypted (dev mode)")
		cipher = crypto.NoopCipher{}
	}

	// Repositories and services.
	cacheRepo := pricecache.NewRepository(cacheDB.Conn())
	priceClient := metalprice.NewClient(cfg.PriceAPIURL, cfg.PriceAPIKey, cfg.PriceCacheTTL, cacheRepo, log)
	nisabService := nisab.NewService(priceClient, log)

	assetStore := wealth.NewStore(recordsDB.Conn(), log)
	auditRepo := audit.NewRepository(auditDB.Conn(), cipher, log)
	recordRepo := records.NewRepository(recordsDB.Conn(), cipher, log)
	lifecycle := records.NewLifecycle(recordRepo, auditRepo, assetStore, nisabService, log)

	defaultBasis := domain.NisabBasis(cfg.DefaultNisabBasis)
	prefsRepo := settings.NewRepository(recordsDB.Conn(), defaultBasis, cfg.DefaultCurrency, log)

	engine := hawl.NewEngine(lifecycle, assetStore, nisabService, prefsRepo, log)

	// Off-site backups, enabled only when a bucket is configured.
	var backupService *reliability.BackupService
	if cfg.Backup != nil && cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			Bucket:          cfg.Backup.Bucket,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage client")
		}
		backupService = reliability.NewBackupService(
			s3Client,
			[]*database.DB{recordsDB, auditDB},
			cfg.DataDir,
			cfg.Backup.RetentionDays,
			log,
		)
	} else {
		log.Info().Msg("Off-site backups disabled (no bucket configured)")
	}

	// Background jobs.
	sched := scheduler.New(log)

	detectionJob := scheduler.NewDetectionJob(engine, assetStore, cfg.DetectionUserTimeout, log)
	if err := sched.AddJob(cfg.DetectionSchedule, detectionJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register detection job")
	}

	if err := sched.AddJob("@daily", scheduler.NewCacheCleanupJob(cacheRepo, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache cleanup job")
	}

	if backupService != nil {
		if err := sched.AddJob("@daily", scheduler.NewBackupJob(backupService, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server.
	srv := server.New(server.Config{
		Log:              log,
		Port:             cfg.Port,
		DevMode:          cfg.DevMode,
		NisabHandlers:    nisabhandlers.NewHandler(nisabService, defaultBasis, cfg.DefaultCurrency, log),
		RecordHandlers:   recordhandlers.NewHandler(lifecycle, engine, prefsRepo, log),
		WealthHandlers:   wealthhandlers.NewHandler(assetStore, log),
		SettingsHandlers: settingshandlers.NewHandler(prefsRepo, log),
		SystemHandlers:   server.NewSystemHandlers(log, []*database.DB{recordsDB, auditDB, cacheDB}, backupService),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
