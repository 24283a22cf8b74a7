package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"offramp.backend/internal/config"
	"offramp.backend/internal/domain/entities"
	"offramp.backend/internal/infrastructure/blockchain"
	pgsource "offramp.backend/internal/infrastructure/datasources/postgres"
	"offramp.backend/internal/infrastructure/identity"
	"offramp.backend/internal/infrastructure/jobs"
	"offramp.backend/internal/infrastructure/metrics"
	"offramp.backend/internal/infrastructure/oracle"
	"offramp.backend/internal/infrastructure/provider"
	"offramp.backend/internal/infrastructure/repositories"
	"offramp.backend/internal/infrastructure/settlement"
	"offramp.backend/internal/interfaces/http/handlers"
	"offramp.backend/internal/interfaces/http/middleware"
	"offramp.backend/internal/usecases"
	"offramp.backend/pkg/crypto"
	"offramp.backend/pkg/jwt"
	"offramp.backend/pkg/logger"
	"offramp.backend/pkg/redis"
	"offramp.backend/pkg/utils"
)

const (
	chainlinkStaleAfter = time.Hour
	sweepLockWait       = 5 * time.Second
	shutdownTimeout     = 15 * time.Second
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(cfg config.DatabaseConfig) (*gorm.DB, error) {
		sqlDB, err := pgsource.NewConnection(cfg)
		if err != nil {
			return nil, err
		}
		return gorm.Open(postgres.New(postgres.Config{
			Conn:                 sqlDB,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	newVault = func(cfg config.SecurityConfig) (usecases.KeyVault, error) {
		return crypto.NewVault([]byte(cfg.MasterSecret),
			crypto.WithIterations(cfg.KDFIterations),
			crypto.WithKDFWorkers(cfg.KDFWorkers),
		)
	}
	runServer         = func(srv *http.Server) error { return srv.ListenAndServe() }
	getStdDB          = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
	metricsRegisterer = prometheus.DefaultRegisterer
	metricsGatherer   = prometheus.DefaultGatherer
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	// Load .env file
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	defer logger.Sync()
	ctx := context.Background()
	logger.Info(ctx, "Logger initialized", zap.String("env", cfg.Server.Env))

	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(ctx, "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(ctx, "Redis initialized")

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()
	logger.Info(ctx, "Connected to PostgreSQL via GORM")

	if err := metrics.Register(metricsRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	vault, err := newVault(cfg.Security)
	if err != nil {
		return fmt.Errorf("failed to initialize key vault: %w", err)
	}

	jwtService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)

	// Repositories
	addressRepo := repositories.NewDepositAddressRepository(db)
	depositRepo := repositories.NewOnchainDepositRepository(db)
	sponsorRepo := repositories.NewGasSponsorWalletRepository(db)
	quoteRepo := repositories.NewQuoteRepository(db)
	payoutRepo := repositories.NewPayoutRepository(db)
	uow := repositories.NewUnitOfWork(db)

	chains := make([]entities.Chain, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		chains = append(chains, c.Entity())
	}
	chainRegistry := blockchain.NewRegistry(chains)
	defer chainRegistry.Close()

	prices, err := newPriceOracle(cfg.Pricing, chainRegistry)
	if err != nil {
		return err
	}
	fx := oracle.NewFX(provider.New("fx", cfg.Pricing.FXURL, cfg.Pricing.FXTimeout,
		provider.WithHeader("Authorization", bearer(cfg.Pricing.FXAPIKey))))
	settlementClient := settlement.NewClient(
		provider.New("settlement", cfg.Settlement.ProviderURL, cfg.Settlement.Timeout,
			provider.WithHeader("Authorization", bearer(cfg.Settlement.APIKey))),
		cfg.Settlement.SigningSecret,
		cfg.Settlement.CallbackTolerance,
	)
	identityClient := identity.NewClient(provider.New("identity", cfg.Identity.URL, cfg.Identity.Timeout,
		provider.WithHeader("Authorization", bearer(cfg.Identity.APIKey))))

	var sweepLocker usecases.LeaseLocker = utils.NewKeyedMutex()
	if cfg.Sweep.UseRedisLock {
		sweepLocker = redis.NewLocker("lock:sweep", cfg.Sweep.LockTTL, sweepLockWait)
	}

	// Usecases
	walletFactory := usecases.NewWalletFactory(addressRepo, chainRegistry, vault)
	tracker := usecases.NewDepositTracker(addressRepo, depositRepo, chainRegistry)
	sponsor := usecases.NewGasSponsor(sponsorRepo, chainRegistry, vault)
	sweeper := usecases.NewSweeper(depositRepo, addressRepo, chainRegistry, vault, sponsor, sweepLocker, usecases.SweeperConfig{
		MaxAttempts:   cfg.Sweep.MaxAttempts,
		Workers:       cfg.Sweep.Workers,
		GasTopUpRatio: cfg.Sweep.GasTopUpRatio,
	})
	rateEngine := usecases.NewRateEngine(quoteRepo, chainRegistry, prices, fx, usecases.PricingConfig{
		SpreadBps:       cfg.Pricing.SpreadBps,
		FlatFee:         cfg.Pricing.FlatFee,
		VariableFeeBps:  cfg.Pricing.VariableFeeBps,
		SlippageBps:     cfg.Pricing.SlippageBps,
		QuoteLock:       cfg.Pricing.QuoteLock,
		CacheTTL:        cfg.Pricing.CacheTTL,
		DefaultCurrency: cfg.Settlement.DefaultCurrency,
	}, usecases.WithSharedCache(redis.NewCacheStore(cfg.Pricing.SharedCachePrefix)))
	dispatcher := usecases.NewSettlementDispatcher(quoteRepo, payoutRepo, uow, rateEngine, chainRegistry, settlementClient, identityClient, usecases.SettlementConfig{
		ReconcileMinAge:    cfg.Settlement.ReconcileMinAge,
		ReconcileWindow:    cfg.Settlement.ReconcileWindow,
		NotFoundAnomalyAge: cfg.Settlement.NotFoundAnomaly,
		ReconcileBatch:     cfg.Settlement.ReconcileBatch,
		TierLimits:         cfg.Settlement.TierLimits,
		RequireTreasury:    cfg.Settlement.RequireTreasury,
	})

	// Handlers
	walletHandler := handlers.NewWalletHandler(walletFactory)
	depositHandler := handlers.NewDepositHandler(tracker)
	quoteHandler := handlers.NewQuoteHandler(rateEngine, dispatcher)
	payoutHandler := handlers.NewPayoutHandler(dispatcher)
	webhookHandler := handlers.NewWebhookHandler(tracker, dispatcher)
	adminHandler := handlers.NewAdminHandler(tracker, sweeper, sponsor, dispatcher)

	// Background jobs
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	background := []jobs.Job{
		jobs.NewDepositConfirmationJob(tracker, cfg.Jobs.DepositPollInterval),
		jobs.NewSweepJob(sweeper, cfg.Jobs.SweepInterval, cfg.Sweep.BatchSize),
		jobs.NewPayoutReconcileJob(dispatcher, cfg.Jobs.ReconcileInterval),
		jobs.NewQuoteExpiryJob(rateEngine, cfg.Jobs.QuoteExpiryInterval),
	}
	if cfg.Jobs.ListenerEnabled {
		background = append(background, pgsource.NewDepositListener(cfg.Database.ListenerDSN(), tracker))
	}
	for _, job := range background {
		go job.Start(jobCtx)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())

	applyCORSMiddleware(r)
	registerHealthRoute(r)
	r.GET("/metrics", metrics.Handler(metricsGatherer))
	registerAPIV1Routes(r, routeDeps{
		walletHandler:  walletHandler,
		depositHandler: depositHandler,
		quoteHandler:   quoteHandler,
		payoutHandler:  payoutHandler,
		webhookHandler: webhookHandler,
		adminHandler:   adminHandler,
		authMiddleware: middleware.AuthMiddleware(jwtService),
		webhookAuth:    middleware.RequireWebhookSecret(cfg.Server.WebhookSecret),
	})

	for _, route := range r.Routes() {
		logger.Debug(ctx, "Route registered", zap.String("method", route.Method), zap.String("path", route.Path))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case <-jobCtx.Done():
			return
		}
		logger.Info(ctx, "Shutting down server")
		for _, job := range background {
			job.Stop()
		}
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "Server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info(ctx, "Offramp backend starting",
		zap.String("port", cfg.Server.Port),
		zap.Int("chains", len(chains)),
	)
	if err := runServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// newPriceOracle builds CoinGecko with an optional Chainlink fallback read over an EVM RPC
func newPriceOracle(cfg config.PricingConfig, chainRegistry *blockchain.Registry) (usecases.PriceOracle, error) {
	primary := oracle.NewCoinGecko(
		provider.New("coingecko", cfg.OracleURL, cfg.OracleTimeout, provider.WithHeader("x-cg-pro-api-key", cfg.OracleAPIKey)),
		cfg.OracleAssetIDs,
	)
	if cfg.FallbackRPCURL == "" || len(cfg.FallbackFeeds) == 0 {
		return oracle.NewFallback(primary, nil), nil
	}

	client, err := chainRegistry.GetEVMClient(cfg.FallbackRPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect fallback oracle rpc: %w", err)
	}
	secondary, err := oracle.NewChainlink(client, cfg.FallbackFeeds, chainlinkStaleAfter)
	if err != nil {
		return nil, err
	}
	return oracle.NewFallback(primary, secondary), nil
}

func bearer(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}
