package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/api"
	"github.com/leafsii/leafsii-vault/internal/config"
	"github.com/leafsii/leafsii-vault/internal/denylist"
	"github.com/leafsii/leafsii-vault/internal/guardian"
	"github.com/leafsii/leafsii-vault/internal/log"
	"github.com/leafsii/leafsii-vault/internal/metrics"
	"github.com/leafsii/leafsii-vault/internal/repository"
	"github.com/leafsii/leafsii-vault/internal/store"
	"github.com/leafsii/leafsii-vault/internal/token"
	"github.com/leafsii/leafsii-vault/internal/vault"
	"github.com/leafsii/leafsii-vault/internal/ws"
	"github.com/leafsii/leafsii-vault/pkg/kv"
	_ "github.com/leafsii/leafsii-vault/pkg/kv/memory"
	_ "github.com/leafsii/leafsii-vault/pkg/kv/redis"
	"go.uber.org/zap"
)

const keyPrefix = "lfs"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting vault API server",
		"env", cfg.Env,
		"network", cfg.Network,
		"addr", cfg.HTTPAddr,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("leafsii-vault")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	params, err := cfg.VaultParams()
	if err != nil {
		logger.Fatalw("Invalid vault parameters", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// State backend for vault records, checkpoints and the fallback journal
	kvStore, err := kv.NewStoreFromConfig(kv.Config{
		Backend:          kv.Backend(cfg.State.Backend),
		RedisURL:         cfg.State.RedisURL,
		FallbackToMemory: cfg.State.FallbackToMemory,
		Logger:           logger,
	})
	if err != nil {
		logger.Fatalw("Failed to open state backend", "error", err)
	}
	defer kvStore.Close()

	// Collaborators
	registryAdmin := cfg.RegistryAdminAddress()
	roles := guardian.NewRegistry(params.RoleRegistryID, registryAdmin, logger)
	deny := denylist.NewRegistry(registryAdmin, roles, params.RoleRegistryID, logger).
		WithAssets(params.BaseAsset, params.ShareAsset)
	assets := token.NewLedger(logger)
	assets.SetTransferHook(deny)

	faucet := account.ProgramAddress("leafsii-faucet")
	if err := assets.CreateAsset(params.BaseAsset, cfg.Vault.BaseDecimals, faucet); err != nil {
		logger.Fatalw("Failed to create base asset", "error", err)
	}
	if err := assets.CreateAsset(params.ShareAsset, cfg.Vault.ShareDecimals, params.Authority()); err != nil {
		logger.Fatalw("Failed to create share asset", "error", err)
	}

	checkpoints := store.NewCheckpointer(kvStore, keyPrefix, logger).
		Register("roles", roles).
		Register("denylist", deny).
		Register(vault.AssetSnapshot, assets)
	restored, err := checkpoints.Restore(ctx)
	if err != nil {
		logger.Fatalw("Failed to restore checkpoints", "error", err)
	}
	logger.Infow("Collaborator state restored", "snapshots", restored)

	// collateral listed after the last checkpoint is registered on top of it
	for _, id := range params.Collateral {
		err := assets.CreateAsset(id, cfg.Vault.CollateralDecimals, faucet)
		if err != nil && !errors.Is(err, token.ErrAssetExists) {
			logger.Fatalw("Failed to create collateral asset", "asset", id, "error", err)
		}
	}
	// collateral deposits mint base through the vault authority
	if err := assets.AddMinter(params.BaseAsset, faucet, params.Authority()); err != nil {
		logger.Fatalw("Failed to authorize vault as base minter", "error", err)
	}

	// Setup Redis cache
	cache, err := store.NewCache(cfg.Cache.RedisAddr, logger, metricsObj)
	if err != nil {
		logger.Fatalw("Failed to setup cache", "error", err)
	}
	defer cache.Close()

	journal, closeJournal, err := openJournal(ctx, cfg, kvStore, logger)
	if err != nil {
		logger.Fatalw("Failed to open event journal", "error", err)
	}
	defer closeJournal()

	v, err := vault.New(ctx, params, roles, deny, assets,
		store.NewVaultStore(kvStore, params.Authority(), logger).WithCheckpoints(checkpoints), logger,
		vault.WithEventSinks(journal, store.NewEventPublisher(cache, logger)),
		vault.WithObserver(metricsObj),
	)
	if err != nil {
		logger.Fatalw("Failed to open vault", "error", err)
	}
	logger.Infow("Vault ready",
		"authority", v.Authority(),
		"base_asset", params.BaseAsset,
		"share_asset", params.ShareAsset,
	)

	api.WarnUnauthenticatedCaller(logger, cfg.Env, cfg.IsDev())

	svcOpts := []api.ServiceOption{api.WithCheckpointer(v)}
	if cfg.IsDev() {
		svcOpts = append(svcOpts, api.WithFaucet(faucet))
		logger.Infow("Token faucet enabled", "authority", faucet)
	}
	svc := api.NewService(v, roles, deny, assets, journal, cache, logger, svcOpts...)

	// Setup WebSocket hub and SSE handler
	wsHub := ws.NewHub(cache, cfg.Security.CORSAllowedOrigins, logger, metricsObj)
	sseHandler := ws.NewSSEHandler(cache, logger)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go wsHub.Run(hubCtx)

	// Setup API handler and middleware
	handler := api.NewHandler(svc, wsHub, sseHandler, logger, metricsObj)
	middleware := api.NewMiddleware(logger, metricsObj)
	router := handler.Routes(middleware, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)
	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	router.Handle("/metrics", metricsHandler)

	// WriteTimeout stays unset so SSE and websocket streams are not cut off;
	// request handlers are bounded by the router timeout.
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())
		hubCancel()

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}
		if err := v.Checkpoint(ctx); err != nil {
			logger.Errorw("Final checkpoint failed", "error", err)
		}

		logger.Infow("Server stopped")
	}
}

// openJournal uses Postgres when a DSN is configured, otherwise the state
// backend.
func openJournal(ctx context.Context, cfg *config.Config, kvStore kv.Store, logger *zap.SugaredLogger) (repository.Journal, func(), error) {
	if cfg.Database.PostgresDSN == "" {
		logger.Infow("Event journal kept in the state backend")
		return repository.NewKVJournal(kvStore, keyPrefix, logger), func() {}, nil
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	repo := repository.NewRepository(db, logger)
	if err := repo.Ping(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Infow("Event journal connected to Postgres")
	return repo, func() { db.Close() }, nil
}
