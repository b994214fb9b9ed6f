package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/docsearch-mcp/internal/config"
	"github.com/dshills/docsearch-mcp/internal/engine"
	"github.com/dshills/docsearch-mcp/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath string
	dbPath     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "docsearch",
	Short: "Versioned documentation search over SQLite",
	Long: `docsearch stores library documentation per version and answers queries
with hybrid full-text and vector ranking. Run "docsearch serve" to expose it
to MCP clients over stdio.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to TOML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config and "+config.EnvDBPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	return "~/.docsearch/config.toml"
}

// loadConfig reads the config file and applies command line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// newLogger writes to stderr; stdout is reserved for results and MCP
func newLogger(cmd *cobra.Command, cfg *config.Config) (zerolog.Logger, error) {
	return logging.New(cfg.Log, cmd.ErrOrStderr())
}

// openEngine builds the engine for one command
func openEngine(ctx context.Context, cmd *cobra.Command) (*engine.Engine, zerolog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	eng, err := engine.New(ctx, cfg, engine.WithLogger(logger))
	if err != nil {
		return nil, logger, fmt.Errorf("failed to open engine: %w", err)
	}
	return eng, logger, nil
}
