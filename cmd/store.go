package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/secdb/internal/config"
	"github.com/sells-group/secdb/internal/feed"
	"github.com/sells-group/secdb/internal/report"
	"github.com/sells-group/secdb/internal/store"
)

// initStore loads the report definitions and opens the configured store.
func initStore(ctx context.Context, c *config.Config) (store.Store, *report.Set, error) {
	defs, err := report.LoadDir(c.Build.ReportsDir)
	if err != nil {
		return nil, nil, eris.Wrap(err, "load report definitions")
	}

	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: c.Store.MaxConns,
		MinConns: c.Store.MinConns,
	}, defs)
	if err != nil {
		return nil, nil, eris.Wrap(err, "open store")
	}
	return st, defs, nil
}

// migrate creates the tables and loads the ticker file when it exists.
func migrate(ctx context.Context, st store.Store, tickersFile string) error {
	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}

	if tickersFile == "" {
		return nil
	}
	if _, err := os.Stat(tickersFile); os.IsNotExist(err) {
		zap.L().Warn("ticker file not found, skipping ticker import", zap.String("path", tickersFile))
		return nil
	}
	tickers, err := feed.LoadTickersFile(tickersFile)
	if err != nil {
		return err
	}
	if err := st.InsertTickers(ctx, tickers); err != nil {
		return eris.Wrap(err, "insert tickers")
	}
	zap.L().Info("imported tickers", zap.Int("count", len(tickers)), zap.String("path", tickersFile))
	return nil
}
