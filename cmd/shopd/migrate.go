package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Zhima-Mochi/guestshop/internal/config"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/logging"
)

func migrateCmd(configPath *string) *cobra.Command {
	var skipSeed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema and upsert the configured catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runMigrate(ctx, cfg, !skipSeed)
		},
	}
	cmd.Flags().BoolVar(&skipSeed, "skip-seed", false, "only create the schema")
	return cmd
}

func runMigrate(ctx context.Context, cfg *config.Config, seed bool) error {
	if cfg.Database.URL == "" {
		return errors.New("migrate: database.url is not set")
	}
	baseLogger, err := logging.New(loggingOptions(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = baseLogger.Sync() }()
	log := logging.System(baseLogger)

	pool, err := postgres.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	log.Info("schema_ready")

	if !seed {
		return nil
	}
	records, err := catalogRecords(cfg.Catalog)
	if err != nil {
		return err
	}
	store := postgres.NewStore(pool)
	for _, rec := range records {
		if err := store.UpsertProduct(ctx, rec); err != nil {
			return err
		}
	}
	log.Info("catalog_seeded", zap.Int("products", len(records)))
	return nil
}
