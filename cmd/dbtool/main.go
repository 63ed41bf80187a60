package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"package-billing-service/internal/adapters/repositories"
	"package-billing-service/internal/config"
	"package-billing-service/internal/platform/db"
	"package-billing-service/internal/platform/obs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// dbtool creates the schema and loads the seed file into the configured SQL store.
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

	sqlDB, dialect, err := open(cfg)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer sqlDB.Close()

	seedPath := cfg.SeedPath
	if seedPath == "" {
		seedPath = "data/seeds/billing.json"
	}
	if err := initAndSeed(context.Background(), log, sqlDB, dialect, seedPath); err != nil {
		log.Fatal("dbtool failed", zap.Error(err))
	}
}

func open(cfg config.Config) (*sql.DB, repositories.Dialect, error) {
	switch cfg.Store {
	case config.StorePostgres:
		sqlDB, err := db.Open(cfg.DatabaseURL)
		return sqlDB, repositories.Postgres, err
	case config.StoreSQLite:
		sqlDB, err := db.OpenSQLite(cfg.DBPath)
		return sqlDB, repositories.SQLite, err
	default:
		return nil, 0, fmt.Errorf("dbtool: STORE=%s has no database to initialise", cfg.Store)
	}
}

func initAndSeed(ctx context.Context, log *zap.Logger, sqlDB *sql.DB, dialect repositories.Dialect, seedPath string) error {
	log.Info("initializing database schema", zap.Stringer("dialect", dialect))
	if err := repositories.InitSchema(ctx, sqlDB, dialect); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}
	log.Info("schema ready")

	log.Info("seeding database", zap.String("path", seedPath))
	if err := repositories.SeedFromJSON(ctx, repositories.New(sqlDB, dialect), seedPath); err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	log.Info("seeding complete")

	return nil
}
