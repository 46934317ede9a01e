package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fadedreams/repairshop/repair-service/domain"
	"fadedreams/repairshop/repair-service/logging"
)

func newIndexesCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "Create the MongoDB indexes used by the listing queries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, logFile, err := logging.NewLogger(cfg.Log.Path, cfg.Log.Level)
			if err != nil {
				return err
			}
			defer logFile.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := connectToMongoDB(ctx, cfg.Mongo, logger)
			if err != nil {
				return err
			}
			defer client.Disconnect(context.Background())

			if err := domain.NewMongoRepository(client, cfg.Mongo.Database).EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("failed to ensure indexes: %w", err)
			}
			logger.Info("Indexes ensured", "database", cfg.Mongo.Database)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")
	return cmd
}
