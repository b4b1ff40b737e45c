package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/zhouzirui/companion-academy/backend/internal/config"
	"github.com/zhouzirui/companion-academy/backend/internal/handler"
	"github.com/zhouzirui/companion-academy/backend/internal/identity"
	"github.com/zhouzirui/companion-academy/backend/internal/metrics"
	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/service/catalog"
	companionService "github.com/zhouzirui/companion-academy/backend/internal/service/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/service/history"
	"github.com/zhouzirui/companion-academy/backend/internal/service/quota"
	"github.com/zhouzirui/companion-academy/backend/internal/service/tutor"
	"github.com/zhouzirui/companion-academy/backend/internal/storage/breaker"
	"github.com/zhouzirui/companion-academy/backend/internal/storage/sqlite"
	supabaseStore "github.com/zhouzirui/companion-academy/backend/internal/storage/supabase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Warn("failed to load .env file, continuing with system environment variables only", zap.Error(envErr))
	}

	store, closer, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("failed to open record store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close record store", zap.Error(err))
		}
	}()

	provider, err := newIdentityProvider(cfg.Auth, logger)
	if err != nil {
		logger.Fatal("failed to create identity provider", zap.Error(err))
	}

	tiers, err := loadTiers(cfg.Quota)
	if err != nil {
		logger.Fatal("failed to load quota tiers", zap.Error(err))
	}

	collector := metrics.NewCollector("companion_academy")

	// Initialize tutor service
	var tutorService *tutor.Service
	if cfg.AI.Enabled() {
		tutorService, err = tutor.NewService(ctx, cfg.AI, logger.Named("tutor"))
		if err != nil {
			logger.Warn("failed to initialize tutor service, continuing without lessons - 请检查 Ark 模型相关环境变量", zap.Error(err))
			tutorService = nil
		} else {
			logger.Info("tutor service initialized")
		}
	} else {
		logger.Info("Ark 凭证未配置，跳过课程功能初始化")
	}

	router := handler.NewRouter(handler.Services{
		Catalog:  catalog.NewEngine(store),
		History:  history.NewAggregator(store),
		Quota:    quota.NewEnforcer(store, tiers, collector),
		Writer:   companionService.NewWriter(store, collector),
		Tutor:    tutorService,
		Identity: provider,
		Metrics:  collector,
	}, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore builds the configured record store, guarded by the breaker when enabled.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (companion.Store, io.Closer, error) {
	var (
		store  companion.Store
		closer io.Closer = nopCloser{}
	)

	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store, closer = db, db
	case config.DriverSupabase:
		remote, err := supabaseStore.Open(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, nil, err
		}
		store = remote
	default:
		store = companion.NewSeededMemoryStore(cfg.SeedAuthor)
	}
	logger.Info("record store opened", zap.String("driver", cfg.Driver))

	if !cfg.Breaker.Enabled {
		return store, closer, nil
	}
	guarded := breaker.Wrap(store, breaker.Config{
		Name:             "record-store",
		MaxRequests:      cfg.Breaker.MaxRequests,
		Interval:         cfg.Breaker.Interval,
		Timeout:          cfg.Breaker.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		MinRequests:      cfg.Breaker.MinRequests,
	}, logger.Named("breaker"))
	return guarded, closer, nil
}

// newIdentityProvider returns nil when no credentials are configured; every
// request is then anonymous.
func newIdentityProvider(cfg config.AuthConfig, logger *zap.Logger) (identity.Provider, error) {
	if !cfg.Enabled() {
		logger.Warn("identity provider not configured, authenticated routes will reject every request",
			zap.String("provider", cfg.Provider))
		return nil, nil
	}

	switch cfg.Provider {
	case config.AuthSupabase:
		client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, nil)
		if err != nil {
			return nil, fmt.Errorf("create supabase client: %w", err)
		}
		return identity.NewSupabaseProvider(client), nil
	default:
		provider, err := identity.NewJWTProvider(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			return nil, err
		}
		return provider, nil
	}
}

func loadTiers(cfg config.QuotaConfig) (quota.Tiers, error) {
	if path := strings.TrimSpace(cfg.RulesFile); path != "" {
		return quota.LoadTiers(path)
	}
	tiers := quota.DefaultTiers()
	tiers.UnlimitedPlan = cfg.UnlimitedPlan
	return tiers, tiers.Validate()
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("companion academy backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
