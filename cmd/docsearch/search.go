package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

var (
	searchVersion string
	searchLimit   int
	searchJSON    bool
	searchChunks  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <library> <query>",
	Short: "Search indexed documentation",
	Long: `Searches one library version with hybrid ranking. Combines keyword (BM25)
and semantic (vector) results with Reciprocal Rank Fusion, then expands each page's
hits into a readable excerpt. Without embedding credentials only BM25 is used.`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchVersion, "version", "", "library version or semver range (default latest)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchChunks, "chunks", false, "print ranked chunks instead of assembled pages")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	library, query := args[0], args[1]
	ctx := cmd.Context()

	eng, _, err := openEngine(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	match, err := eng.FindBestVersion(ctx, library, searchVersion)
	if err != nil {
		return err
	}

	if searchChunks {
		hits, err := eng.FindByContent(ctx, library, match.BestMatch, query, searchLimit)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if searchJSON {
			return outputJSON(cmd, hits)
		}
		outputHits(cmd, hits)
		return nil
	}

	results, err := eng.Search(ctx, library, match.BestMatch, query, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if searchJSON {
		return outputJSON(cmd, results)
	}
	outputResults(cmd, results)
	return nil
}

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputResults(cmd *cobra.Command, results []types.AssembledResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		cmd.Printf("[%d] %s (%.4f)\n", i+1, title, r.Score)
		cmd.Printf("    %s\n", r.URL)
		for _, line := range strings.Split(r.Content, "\n") {
			cmd.Printf("    %s\n", line)
		}
		cmd.Println()
	}
}

func outputHits(cmd *cobra.Command, hits []types.SearchHit) {
	if len(hits) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, h := range hits {
		cmd.Printf("[%d] chunk %d (%.4f) %s vec=%s fts=%s\n", i+1, h.Chunk.ID, h.Score, h.Signals(), rank(h.VecRank), rank(h.FTSRank))
		cmd.Printf("    %s  %s\n", h.Chunk.URL, h.Chunk.Metadata.PathString())
	}
}

func rank(r *int) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *r)
}
