package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/creatorcrawl/internal/checkpoint"
	"github.com/JakeFAU/creatorcrawl/internal/config"
	"github.com/JakeFAU/creatorcrawl/internal/crawler"
	"github.com/JakeFAU/creatorcrawl/internal/results"
	pgstore "github.com/JakeFAU/creatorcrawl/internal/storage/postgres"
)

// statsReport summarizes the persisted crawl state.
type statsReport struct {
	Checkpointed int            `json:"checkpointed"`
	Accepted     int            `json:"accepted"`
	ByProvenance map[string]int `json:"by_provenance"`
	ByPlatform   map[string]int `json:"by_affiliate_platform"`
	ByLocale     map[string]int `json:"by_locale"`
	ByReason     map[string]int `json:"by_reason"`
}

// newStatsCmd creates the 'stats' subcommand, which reads the stores without
// modifying them.
func newStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarizes the checkpoint and result stores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			report, err := loadStats(cmd.Context(), e.cfg)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return writeStats(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func loadStats(ctx context.Context, cfg config.Config) (statsReport, error) {
	if cfg.Storage.Backend == config.BackendPostgres {
		pg := cfg.Storage.Postgres
		pool, err := pgstore.Connect(ctx, pgstore.Config{DSN: pg.DSN, MaxConns: pg.MaxConns})
		if err != nil {
			return statsReport{}, err
		}
		defer pool.Close()
		cps, err := pgstore.LoadCheckpointStore(ctx, pool, pg.CheckpointTable)
		if err != nil {
			return statsReport{}, err
		}
		res, err := pgstore.LoadResultStore(ctx, pool, pg.ResultTable)
		if err != nil {
			return statsReport{}, err
		}
		return summarize(cps.Len(), res.Entries()), nil
	}

	seen, err := checkpoint.ReadOnly(cfg.Storage.CheckpointPath)
	if err != nil {
		return statsReport{}, err
	}
	entries, err := results.Read(cfg.Storage.ResultsPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return statsReport{}, err
	}
	return summarize(len(seen), entries), nil
}

func summarize(checkpointed int, entries []crawler.Entry) statsReport {
	report := statsReport{
		Checkpointed: checkpointed,
		Accepted:     len(entries),
		ByProvenance: map[string]int{},
		ByPlatform:   map[string]int{},
		ByLocale:     map[string]int{},
		ByReason:     map[string]int{},
	}
	for _, e := range entries {
		report.ByProvenance[string(e.Provenance)]++
		report.ByReason[e.Reason]++
		if e.AffiliatePlatform != "" {
			report.ByPlatform[e.AffiliatePlatform]++
		}
		if e.Locale != "" {
			report.ByLocale[e.Locale]++
		}
	}
	return report
}

func writeStats(w io.Writer, r statsReport) error {
	if _, err := fmt.Fprintf(w, "checkpointed: %d\naccepted: %d\n", r.Checkpointed, r.Accepted); err != nil {
		return err
	}
	sections := []struct {
		title  string
		counts map[string]int
	}{
		{"provenance", r.ByProvenance},
		{"affiliate platform", r.ByPlatform},
		{"locale", r.ByLocale},
		{"reason", r.ByReason},
	}
	for _, s := range sections {
		if len(s.counts) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s:\n", s.title); err != nil {
			return err
		}
		keys := make([]string, 0, len(s.counts))
		for k := range s.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := fmt.Fprintf(w, "  %-20s %d\n", k, s.counts[k]); err != nil {
				return err
			}
		}
	}
	return nil
}
