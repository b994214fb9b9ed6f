package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/docsearch-mcp/internal/config"
	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/engine"
	"github.com/dshills/docsearch-mcp/internal/searcher"
	"github.com/dshills/docsearch-mcp/internal/storage"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Report the embedding provider and search mode",
	Long: `Resolves the configured embedding model, checks credentials and probes the
vector dimension without touching the database.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	spec, err := embedder.ParseModelSpec(cfg.Embedding.Model)
	if err != nil {
		return err
	}

	probeCfg := *cfg
	probeCfg.Store.Path = config.MemoryPath
	eng, err := engine.New(cmd.Context(), &probeCfg, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	capability := eng.Capability()
	mode := searcher.SearchModeFullText
	if capability.Enabled {
		mode = searcher.SearchModeHybrid
	}

	cmd.Printf("Model:       %s\n", spec)
	cmd.Printf("Credentials: %v\n", embedder.CredentialsAvailable(spec.Provider, cfg.Embedding.APIKey))
	cmd.Printf("Dimension:   %d (store %d)\n", capability.Dimension, storage.VectorDimension)
	cmd.Printf("Search mode: %s\n", mode)
	if capability.Reason != "" {
		cmd.Printf("Reason:      %s\n", capability.Reason)
	}
	return nil
}
