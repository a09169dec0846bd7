package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Index course documents into the knowledge base",
	Long: `Index a markdown or text file, or every .md/.markdown/.txt file under a
directory. Re-ingesting a file replaces its previous passages.

Examples:
  smartkb ingest docs/physics.md
  smartkb ingest ./courseware`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("path not found: %w", err)
	}

	a, err := newApp(os.Stderr, false, true, false)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.indexer.IndexPath(cmd.Context(), path)
	if err != nil {
		return err
	}
	renderIndexResults(cmd.OutOrStdout(), results)
	return nil
}
