package main

import (
	"time"

	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed libraries and versions",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	eng, _, err := openEngine(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	libraries, err := eng.ListLibraries(ctx)
	if err != nil {
		return err
	}
	if listJSON {
		return outputJSON(cmd, libraries)
	}

	if len(libraries) == 0 {
		cmd.Println("No libraries indexed.")
		return nil
	}
	for _, lib := range libraries {
		cmd.Println(lib.Name)
		for _, v := range lib.Versions {
			name := v.Name
			if name == "" {
				name = "(unversioned)"
			}
			indexed := "never"
			if v.IndexedAt != nil {
				indexed = v.IndexedAt.Local().Format(time.DateTime)
			}
			cmd.Printf("  %-16s %-12s %6d docs %4d pages  indexed %s\n",
				name, v.Status, v.DocumentCount, v.UniqueURLCount, indexed)
		}
	}
	return nil
}
