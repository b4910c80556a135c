package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"githubrank/api"
	"githubrank/config"
	"githubrank/service"
)

var serveNoIngest bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the leaderboard API and ingest on a schedule",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoIngest, "no-ingest", false, "only serve the API, do not run the ingestion scheduler")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *service.Service, cfg *config.Config, log *zap.Logger) error {
		if err := svc.Migrate(ctx); err != nil {
			return err
		}

		server := api.NewServer(svc, api.Options{
			Port:  cfg.HTTPPort,
			TopN:  cfg.TopN,
			Debug: cfg.LogLevel == "debug",
		}, svc.Gatherer(), svc.Metrics(), log.Named("api"))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return server.Run(gctx)
		})
		if !serveNoIngest {
			g.Go(func() error {
				svc.StartScheduler(gctx)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			log.Error("Server stopped with error", zap.Error(err))
			return err
		}
		log.Info("Shutdown complete")
		return nil
	})
}
