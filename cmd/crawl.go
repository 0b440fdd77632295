package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/creatorcrawl/internal/server"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs every configured query
// once and exits.
func newCrawlCmd() *cobra.Command {
	var (
		addr   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one incremental crawl",
		Long: `Paginates every configured search term and category feed, visits each
creator not yet checkpointed and appends accepted creators to the result store.
Interrupting the command is safe: the next run skips every creator already
dispatched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				e.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("dry-run") {
				e.cfg.DryRun = dryRun
			}
			return runCrawl(cmd.Context(), e)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "serve status and metrics on this address while crawling")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "keep notifications and exports in memory")
	return cmd
}

func runCrawl(ctx context.Context, e *env) error {
	app, err := server.Build(ctx, e.cfg, Version, e.logger)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer app.Close(context.WithoutCancel(ctx))

	summary, err := app.Run(ctx)
	e.logger.Info("crawl finished",
		zap.String("run_id", summary.RunID),
		zap.String("state", summary.State),
		zap.Int("queries_done", summary.QueriesDone),
		zap.Int("queries_failed", summary.QueriesFailed),
		zap.Int("discovered", summary.Discovered),
		zap.Int("skipped", summary.Skipped),
		zap.Int("accepted", summary.Accepted),
		zap.Int("rejected", summary.Rejected),
		zap.Int("failed", summary.Failed),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawl: %w", err)
	}
	return nil
}
