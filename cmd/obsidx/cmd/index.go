package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var incremental bool
	var offline bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the vault",
		Long: `Build or refresh the vault index.

By default every matching note is scanned; unchanged files (by content
hash) are skipped cheaply. With --incremental only the files the change
detector reports are reprocessed, falling back to a full run when the
change set is too large or no prior index exists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, incremental, offline)
		},
	}

	cmd.Flags().BoolVar(&incremental, "incremental", false, "Reprocess only detected changes")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no Ollama required)")

	return cmd
}

func runIndex(cmd *cobra.Command, incremental, offline bool) error {
	p, err := buildPipeline(offline)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := cmd.Context()

	if incremental {
		res, err := p.orch.ReindexChanged(ctx)
		if err != nil {
			return fmt.Errorf("incremental index failed: %w", err)
		}
		if res.FullFallback {
			fmt.Fprintf(cmd.OutOrStdout(), "Fell back to full index: %s\n", res.FallbackReason)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Changes: %d added, %d modified, %d deleted, %d renamed\n",
				res.Added, res.Modified, res.Deleted, res.Renamed)
		}
		printRunSummary(cmd, &res.IndexingResult)
		return nil
	}

	res, err := p.orch.IndexAll(ctx)
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}
	printRunSummary(cmd, res)
	return nil
}
