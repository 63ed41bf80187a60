package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"package-billing-service/internal/adapters/cache"
	"package-billing-service/internal/adapters/memory"
	"package-billing-service/internal/adapters/notify"
	"package-billing-service/internal/adapters/repositories"
	"package-billing-service/internal/api"
	"package-billing-service/internal/config"
	"package-billing-service/internal/platform/db"
	"package-billing-service/internal/platform/obs"
	"package-billing-service/internal/ports"
	"package-billing-service/internal/services"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// stores is the set of ports the services need, backed by one concrete store.
type stores struct {
	Packages ports.PackageDirectory
	Rules    ports.FeeRuleRepository
	DutyFees ports.DutyFeeRepository
	Invoices ports.InvoiceRepository
	Settings ports.SettingsRepository
	Audit    ports.AuditLog

	seed  repositories.SeedTarget
	close func() error
}

// main is the application composition root.
// It wires concrete adapters behind ports and starts the HTTP server.
func main() {
	cfg, loaded, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := obs.NewLogger(cfg.LogEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if !loaded {
		log.Info("no .env file found (using environment variables)")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	if cfg.SeedPath != "" {
		if err := repositories.SeedFromJSON(ctx, st.seed, cfg.SeedPath); err != nil {
			return fmt.Errorf("run: %w", err)
		}
		log.Info("seed loaded", zap.String("path", cfg.SeedPath))
	}

	client, err := openRedis(ctx, cfg, log)
	if err != nil {
		return err
	}

	var notifier ports.Notifier = notify.LogNotifier{}
	if client != nil {
		defer func() { _ = client.Close() }()
		notifier = notify.NewRedisNotifier(client, cfg.NotifyChannel)
		st.Settings = cache.NewSettingsCache(client, st.Settings, cache.DefaultSettingsTTL)
	}

	invoices := &services.InvoiceService{
		Packages:      st.Packages,
		Rules:         st.Rules,
		DutyFees:      st.DutyFees,
		Invoices:      st.Invoices,
		Settings:      st.Settings,
		Audit:         st.Audit,
		Notifier:      notifier,
		NotifyTimeout: cfg.NotifyTimeout,
	}
	router := api.NewRouter(api.Services{
		FeeRules: &services.FeeRuleService{Rules: st.Rules, Audit: st.Audit},
		DutyFees: &services.DutyFeeLedger{Packages: st.Packages, Fees: st.DutyFees, Audit: st.Audit},
		Invoices: invoices,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Store))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("run: listen: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("run: shutdown: %w", err)
	}

	invoices.WaitNotifications()
	return nil
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.Store {
	case config.StoreMemory:
		m := memory.NewStore()
		return &stores{
			Packages: m, Rules: m, DutyFees: m, Invoices: m, Settings: m, Audit: m,
			seed:  m,
			close: func() error { return nil },
		}, nil

	case config.StorePostgres:
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return sqlStores(ctx, sqlDB, repositories.Postgres)

	default:
		sqlDB, err := db.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return sqlStores(ctx, sqlDB, repositories.SQLite)
	}
}

func sqlStores(ctx context.Context, sqlDB *sql.DB, dialect repositories.Dialect) (*stores, error) {
	if err := repositories.InitSchema(ctx, sqlDB, dialect); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	repos := repositories.New(sqlDB, dialect)
	return &stores{
		Packages: repos.Packages,
		Rules:    repos.FeeRules,
		DutyFees: repos.DutyFees,
		Invoices: repos.Invoices,
		Settings: repos.Settings,
		Audit:    repos.Audit,
		seed:     repos,
		close:    sqlDB.Close,
	}, nil
}

// openRedis connects when REDIS_ADDR is set. A nil client means notifications
// are logged and settings are read without a cache.
func openRedis(ctx context.Context, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open redis: ping %s: %w", cfg.RedisAddr, err)
	}

	log.Info("redis connected",
		zap.String("addr", cfg.RedisAddr),
		zap.String("notify_channel", cfg.NotifyChannel),
	)
	return client, nil
}
