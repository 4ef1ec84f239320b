package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"pawbot/internal/knowledge"
)

// NewIngestCmd creates the ingest command.
func NewIngestCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Load knowledge documents into the index",
		Long: `Synchronize the knowledge index with the documents directory.

Without arguments every supported file (.md, .markdown, .txt, .json) under
knowledge.docs_dir is read and documents whose files are gone are removed.
With arguments only the given files are re-read.`,
		Example: `  # Full sync
  pawbot ingest

  # Re-read two files
  pawbot ingest ~/.pawbot/knowledge/hours.md ~/.pawbot/knowledge/docs.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			comps, err := cliCtx.GetComponents()
			if err != nil {
				return err
			}

			var stats knowledge.IngestStats
			if len(args) == 0 {
				stats, err = comps.Ingester.Sync(cmd.Context())
			} else {
				paths := make([]string, len(args))
				for i, a := range args {
					if paths[i], err = filepath.Abs(a); err != nil {
						return err
					}
				}
				stats, err = comps.Ingester.IngestFiles(cmd.Context(), paths)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return json.NewEncoder(out).Encode(stats)
			}
			fmt.Fprintf(out, "Documents: %s\n", comps.DocsDir)
			fmt.Fprintf(out, "  Files:   %d\n", stats.Files)
			fmt.Fprintf(out, "  Updated: %d\n", stats.Updated)
			fmt.Fprintf(out, "  Skipped: %d\n", stats.Skipped)
			fmt.Fprintf(out, "  Removed: %d\n", stats.Removed)
			fmt.Fprintf(out, "  Chunks:  %d\n", comps.Index.Size())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}
