package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/secdb/internal/config"
	"github.com/sells-group/secdb/internal/feed"
	"github.com/sells-group/secdb/internal/model"
	"github.com/sells-group/secdb/internal/pipeline"
)

var (
	buildCIK          int64
	buildWorkers      int
	buildRecompute    bool
	buildStoreFacts   bool
	buildCreateTables bool
)

var buildCmd = &cobra.Command{
	Use:   "build <feed>...",
	Short: "Compute statements and ratios for the filings in XBRL feeds",
	Long:  "Reads EDGAR monthly XBRL RSS feeds (globs allowed), keeps the 10-K and 10-Q filings of companies with a ticker and computes their statements and ratios from the instance snapshots in the filings directory.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyBuildFlags(cmd, cfg)
		if err := cfg.Validate("build"); err != nil {
			return err
		}

		res, err := runBuild(ctx, cfg, args)
		if err != nil {
			return err
		}
		zap.L().Info("build complete",
			zap.Int64("processed", res.Processed),
			zap.Int64("skipped", res.Skipped),
			zap.Int64("failed", res.Failed),
		)
		return nil
	},
}

func init() {
	f := buildCmd.Flags()
	f.Int64Var(&buildCIK, "cik", 0, "only process filings of this CIK")
	f.IntVar(&buildWorkers, "workers", 0, "number of companies processed in parallel (default from config)")
	f.BoolVar(&buildRecompute, "recompute", false, "recompute filings that were already processed")
	f.BoolVar(&buildStoreFacts, "store-fact-mappings", false, "store the fact to line item audit trail")
	f.BoolVar(&buildCreateTables, "create-tables", false, "create tables and import tickers before building")
	rootCmd.AddCommand(buildCmd)
}

// applyBuildFlags overrides configuration with the flags set on cmd.
func applyBuildFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("cik") {
		c.Build.CIK = buildCIK
	}
	if flags.Changed("workers") {
		c.Build.MaxWorkers = buildWorkers
	}
	if flags.Changed("recompute") {
		c.Build.Recompute = buildRecompute
	}
	if flags.Changed("store-fact-mappings") {
		c.Build.StoreFactMappings = buildStoreFacts
	}
}

// expandFeeds resolves glob patterns to a sorted list of feed files.
func expandFeeds(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, eris.Wrapf(err, "build: invalid feed pattern %q", p)
		}
		if len(matches) == 0 {
			return nil, eris.Errorf("build: no feed matches %q", p)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func runBuild(ctx context.Context, c *config.Config, patterns []string) (*model.RunResult, error) {
	feeds, err := expandFeeds(patterns)
	if err != nil {
		return nil, err
	}

	st, defs, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	if buildCreateTables {
		if err := migrate(ctx, st, c.Build.TickersFile); err != nil {
			return nil, err
		}
	}

	tickers, err := st.Tickers(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "build: load tickers")
	}
	if len(tickers) == 0 {
		zap.L().Warn("no tickers in database, reading ticker file", zap.String("path", c.Build.TickersFile))
		if tickers, err = feed.LoadTickersFile(c.Build.TickersFile); err != nil {
			return nil, err
		}
	}

	var filings []model.Filing
	for _, path := range feeds {
		entries, err := feed.ReadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		selected := feed.Select(entries, tickers, c.Build.CIK)
		zap.L().Info("selected filings from feed",
			zap.String("feed", filepath.Base(path)),
			zap.Int("entries", len(entries)),
			zap.Int("filings", len(selected)),
		)
		filings = append(filings, selected...)
	}

	names := make([]string, len(feeds))
	for i, p := range feeds {
		names[i] = filepath.Base(p)
	}

	proc := pipeline.NewProcessor(c.Build, st, defs, nil)
	return pipeline.NewBatch(proc, st, c.Build.MaxWorkers).Run(ctx, filings, names)
}
