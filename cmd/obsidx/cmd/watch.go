package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidx/obsidx/internal/index"
)

func newWatchCmd() *cobra.Command {
	var offline bool
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the vault and keep the index current",
		Long: `Run an initial incremental pass, then watch the vault for note
changes and reindex after each burst of activity settles.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, offline, debounce)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no Ollama required)")
	cmd.Flags().DurationVar(&debounce, "debounce", index.DefaultDebounceWindow,
		"How long file activity must settle before reindexing")

	return cmd
}

func runWatch(cmd *cobra.Command, offline bool, debounce time.Duration) error {
	p, err := buildPipeline(offline)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catch up before watching so the first watcher trigger starts from
	// a known state.
	res, err := p.orch.ReindexChanged(ctx)
	if err != nil {
		return fmt.Errorf("initial index failed: %w", err)
	}
	printRunSummary(cmd, &res.IndexingResult)

	trigger := func(ctx context.Context) error {
		res, err := p.orch.ReindexChanged(ctx)
		if err != nil {
			return err
		}
		printRunSummary(cmd, &res.IndexingResult)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", vaultRoot())

	watcher := index.NewWatcher(vaultRoot(), p.cfg, debounce)
	err = watcher.Run(ctx, trigger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
