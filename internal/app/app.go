package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"por-go/internal/cache"
	"por-go/internal/config"
	"por-go/internal/database"
	"por-go/internal/encryption"
	"por-go/internal/fetch"
	"por-go/internal/messaging"
	"por-go/internal/netsafe"
	"por-go/internal/por"
	"por-go/internal/prover"
	"por-go/internal/server"
	"por-go/internal/vault"
)

// PORApp is the application layer between the CLI and the verification
// service. It constructs all dependencies from config and manages their
// lifecycle on Close.
type PORApp struct {
	cfg      *config.Config
	store    *database.SQLiteStore
	service  *por.Service
	server   *server.Server
	notifier por.Notifier
	logFile  *os.File
	logger   por.Logger
}

// NewPORApp creates a fully wired PORApp from the given config.
// The caller must call Close when done.
func NewPORApp(cfg *config.Config) (*PORApp, error) {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	if cfg.Database.Type == "memory" {
		if err := store.MigrateUp(); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrating in-memory database: %w", err)
		}
	} else if err := store.CheckMigrations(); err != nil {
		store.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	cleanup := func() {
		store.Close()
		logFile.Close()
	}

	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	} else if err := os.MkdirAll(tempDir, 0755); err != nil {
		cleanup()
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}

	resolver := netsafe.NewResolver(cfg.Fetch.AllowPrivateHosts)
	fetcher := fetch.NewFetcher(
		resolver,
		tempDir,
		time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second,
		cfg.Fetch.MaxSizeBytes,
		por.UUIDGenerator{},
		log,
	)

	oracle := prover.NewOracle(
		cfg.Prover.Binary,
		time.Duration(cfg.Prover.VerifyTimeoutSeconds)*time.Second,
		cfg.Prover.UpdateCommand,
		log,
	)

	v, err := vault.NewVaultFromConfig(context.Background(), cfg.Vault)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	if v != nil {
		if err := v.ValidateSetup(); err != nil {
			cleanup()
			return nil, fmt.Errorf("validating vault: %w", err)
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	var notifier por.Notifier
	if cfg.Events.NATSURL != "" {
		n, err := messaging.NewNATSNotifier(cfg.Events.NATSURL, cfg.Events.Subject, log)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("creating notifier: %w", err)
		}
		notifier = n
	}

	respCache := cache.NewResponseCache(
		cfg.Cache.MaxEntries,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second,
	)

	svc := por.NewService(por.ServiceDeps{
		Store:     store,
		Fetcher:   fetcher,
		Oracle:    oracle,
		Manifests: prover.ManifestParser{},
		Cache:     respCache,
		Vault:     v,
		Encryptor: enc,
		Notifier:  notifier,
		Logger:    log,
		Clock:     por.RealClock{},
	}, cfg.Queue.Concurrency)

	srv := server.NewServer(svc, cfg.Server.Host, cfg.Server.Port,
		cfg.Server.APIKey, cfg.Server.AdminAPIKey, log)

	return &PORApp{
		cfg:      cfg,
		store:    store,
		service:  svc,
		server:   srv,
		notifier: notifier,
		logFile:  logFile,
		logger:   log,
	}, nil
}

// Serve runs the HTTP server until ctx is canceled, then drains in-flight
// jobs and shuts down gracefully.
func (a *PORApp) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown failed", "error", err)
	}

	a.service.DrainQueue()
	return <-errCh
}

// Service exposes the underlying verification service.
func (a *PORApp) Service() *por.Service { return a.service }

// Store exposes the underlying store, for maintenance commands.
func (a *PORApp) Store() *database.SQLiteStore { return a.store }

// Logger exposes the application logger.
func (a *PORApp) Logger() por.Logger { return a.logger }

// Close releases all resources.
func (a *PORApp) Close() error {
	var firstErr error

	if a.notifier != nil {
		a.notifier.Close()
	}

	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
