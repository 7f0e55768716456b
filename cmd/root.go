package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sells-group/secdb/internal/config"
)

var cfg *config.Config

// rootFlagKeys maps persistent flags onto the configuration keys they override.
var rootFlagKeys = map[string]string{
	"db":          "store.database_url",
	"driver":      "store.driver",
	"filings-dir": "build.filings_dir",
	"log-level":   "log.level",
	"log-format":  "log.format",
}

var rootCmd = &cobra.Command{
	Use:          "secdb",
	Short:        "Standardized financial statements from SEC XBRL filings",
	Long:         "Reads EDGAR monthly XBRL feeds, maps each filing onto canonical balance sheet, income and cash flow statements, computes ratios and serves them over HTTP.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		zap.L().Debug("configuration loaded",
			zap.String("command", cmd.Name()),
			zap.String("driver", cfg.Store.Driver),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// loadConfig layers the persistent flags set on cmd over the config file,
// SECDB_ environment and defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	for name, key := range rootFlagKeys {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(name)); err != nil {
			return nil, eris.Wrapf(err, "bind flag --%s", name)
		}
	}
	c, err := config.LoadWith(v)
	if err != nil {
		return nil, eris.Wrap(err, "load config")
	}
	return c, nil
}

func init() {
	addRootFlags(rootCmd)
}

func addRootFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("db", "", "database URL or SQLite path (default from config)")
	f.String("driver", "", "store driver: sqlite or postgres (default from config)")
	f.String("filings-dir", "", "directory of instance snapshots (default from config)")
	f.String("log-level", "", "log level: debug, info, warn or error (default from config)")
	f.String("log-format", "", "log format: json or console (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
