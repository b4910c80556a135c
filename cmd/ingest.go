package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"githubrank/config"
	"githubrank/service"
)

var ingestLoop bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run an ingestion cycle and recompute the leaderboard",
	Long: `Walk the repository listing, store every repository detail that can be
fetched and recompute leaderboard positions once the pass is over.

With --loop the cycle repeats every INGEST_INTERVAL seconds until the
process is interrupted.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestLoop, "loop", false, "keep ingesting every INGEST_INTERVAL seconds")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *service.Service, cfg *config.Config, log *zap.Logger) error {
		if err := svc.Migrate(ctx); err != nil {
			return err
		}

		if ingestLoop {
			svc.StartScheduler(ctx)
			return nil
		}

		report, err := svc.RunOnce(ctx)
		if err != nil {
			log.Error("Ingestion cycle failed", zap.String("run_id", report.RunID), zap.Error(err))
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	})
}
