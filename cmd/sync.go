package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Bloop-Tech/users-also-buy/internal/enrich"
	"github.com/Bloop-Tech/users-also-buy/internal/pipeline"
	"github.com/Bloop-Tech/users-also-buy/internal/resilience"
	"github.com/Bloop-Tech/users-also-buy/pkg/anthropic"
	"github.com/Bloop-Tech/users-also-buy/pkg/marketplacer"
)

var (
	syncSince  string
	syncLimit  int
	syncDryRun bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one incremental enrichment pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ckpt, err := initCheckpointStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init checkpoint store")
		}
		defer ckpt.Close()

		if cfg.Marketplacer.Endpoint == "" {
			return eris.New("marketplacer.endpoint is not configured")
		}
		catalog := marketplacer.NewClient(
			cfg.Marketplacer.Endpoint,
			cfg.Marketplacer.Token,
			marketplacer.WithRateLimit(cfg.Marketplacer.RateLimit, cfg.Marketplacer.Burst),
		)

		variant := enrich.PromptVariant(cfg.Pipeline.PromptVariant)
		if !variant.Valid() {
			return eris.Errorf("unknown prompt variant %q", cfg.Pipeline.PromptVariant)
		}
		dispatcher := enrich.NewDispatcher(anthropic.NewClient(cfg.Anthropic.Key), enrich.Config{
			Model:       cfg.Anthropic.Model,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Concurrency: cfg.Pipeline.Concurrency,
			Variant:     variant,
		})

		retry := resilience.DefaultRetryConfig()
		retry.MaxAttempts = cfg.Pipeline.RetryAttempts
		applier := pipeline.NewApplier(catalog, retry)

		epoch, err := cfg.Pipeline.EpochTime()
		if err != nil {
			return err
		}

		p := pipeline.New(
			ckpt,
			pipeline.NewPaginator(catalog, cfg.Marketplacer.PageSize),
			dispatcher,
			applier,
			epoch,
			cfg.Anthropic.Model,
		)

		opts := pipeline.Options{
			Limit:   syncLimit,
			Limited: cmd.Flags().Changed("limit"),
			DryRun:  syncDryRun,
		}
		if syncSince != "" {
			since, err := parseSince(syncSince)
			if err != nil {
				return err
			}
			opts.Since = &since
		}

		summary, runErr := p.Run(ctx, opts)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(summary); encErr != nil {
			zap.L().Warn("failed to print summary", zap.Error(encErr))
		}

		if runErr != nil {
			return eris.Wrap(runErr, "sync")
		}
		exitCode = summary.Outcome.ExitCode()
		return nil
	},
}

// parseSince accepts an RFC3339 timestamp or a bare date.
func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, eris.Errorf("invalid --since value %q (want RFC3339 or YYYY-MM-DD)", s)
	}
	return t.UTC(), nil
}

func init() {
	syncCmd.Flags().StringVar(&syncSince, "since", "", "start bound override (RFC3339 or YYYY-MM-DD); bypasses the checkpoint")
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "max products to process this run")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "enrich but skip writeback and checkpoint advancement")
	rootCmd.AddCommand(syncCmd)
}
