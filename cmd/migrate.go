package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"githubrank/config"
	"githubrank/service"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the repositories table and its indexes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service, cfg *config.Config, log *zap.Logger) error {
			if err := svc.Migrate(ctx); err != nil {
				log.Error("Migration failed", zap.Error(err))
				return err
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
