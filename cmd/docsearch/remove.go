package main

import (
	"github.com/spf13/cobra"
)

var removeKeepLibrary bool

var removeCmd = &cobra.Command{
	Use:   "remove <library> [version]",
	Short: "Remove the documentation of a library version",
	Long: `Deletes one version with all of its pages, chunks and vectors. Without a
version argument the unversioned entry is removed. The library row goes too
once its last version is gone, unless --keep-library is set.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().BoolVar(&removeKeepLibrary, "keep-library", false, "keep the library when no versions remain")
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	library := args[0]
	version := ""
	if len(args) == 2 {
		version = args[1]
	}

	ctx := cmd.Context()
	eng, _, err := openEngine(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	result, err := eng.RemoveVersion(ctx, library, version, !removeKeepLibrary)
	if err != nil {
		return err
	}
	if !result.VersionDeleted {
		cmd.Println("Nothing to remove.")
		return nil
	}
	cmd.Printf("Removed %d documents.\n", result.DocumentsDeleted)
	if result.LibraryDeleted {
		cmd.Printf("Library %s removed.\n", library)
	}
	return nil
}
