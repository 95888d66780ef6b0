// Package cmd provides the CLI commands for obsidx.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidx/obsidx/internal/config"
	"github.com/obsidx/obsidx/internal/embed"
	"github.com/obsidx/obsidx/internal/history"
	"github.com/obsidx/obsidx/internal/index"
	"github.com/obsidx/obsidx/internal/logging"
	"github.com/obsidx/obsidx/internal/store"
	"github.com/obsidx/obsidx/internal/vault"
	"github.com/obsidx/obsidx/internal/version"
)

var (
	vaultPath      string
	logLevel       string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the obsidx CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "obsidx",
		Short: "Incremental semantic indexer for Obsidian vaults",
		Long: `obsidx chunks the notes of an Obsidian vault along their heading
structure, embeds the chunks, and keeps the index in sync with the vault
incrementally (via git history when available, content hashing otherwise).

Run 'obsidx index' inside a vault to build the index, then
'obsidx watch' to keep it current while you write.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("obsidx version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&vaultPath, "vault", ".", "Vault root directory")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newInitCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging(*cobra.Command, []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         level,
		FilePath:      filepath.Join(config.DataDir(vaultRoot()), "logs", "obsidx.log"),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	})
	if err != nil {
		// File logging is best effort: fall back to stderr only.
		logger, cleanup, err = logging.Setup(logging.Config{Level: level})
		if err != nil {
			return err
		}
	}

	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}

func vaultRoot() string {
	abs, err := filepath.Abs(vaultPath)
	if err != nil {
		return vaultPath
	}
	return abs
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(vaultRoot())
	if err != nil {
		return nil, fmt.Errorf("failed to load vault config: %w", err)
	}
	return cfg, nil
}

// pipeline bundles everything a run needs plus its cleanup.
type pipeline struct {
	cfg      *config.Config
	orch     *index.Orchestrator
	store    *store.VaultStore
	embedder embed.Embedder
}

func (p *pipeline) Close() {
	if p.embedder != nil {
		_ = p.embedder.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

// buildPipeline assembles the indexing pipeline for the vault. With
// offline set, the static hash embedder replaces the configured
// provider.
func buildPipeline(offline bool) (*pipeline, error) {
	root := vaultRoot()
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("vault root %s is not a directory", root)
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var embedder embed.Embedder
	if offline {
		embedder = embed.NewStaticEmbedder()
	} else {
		embedder, err = embed.NewFromConfig(cfg.Embeddings)
		if err != nil {
			return nil, err
		}
	}

	scanner, err := vault.NewScanner(root)
	if err != nil {
		embedder.Close()
		return nil, err
	}

	dataDir := config.DataDir(root)
	st, err := store.Open(dataDir, embedder.Dimensions())
	if err != nil {
		embedder.Close()
		return nil, err
	}

	detector := version.NewDetector(scanner, history.NewGitProvider(root), vault.ScanOptions{
		Extensions:  cfg.Vault.Extensions,
		ExcludeDirs: cfg.Vault.ExcludeDirs,
		MaxFileSize: cfg.Vault.MaxFileSize,
	})

	orch, err := index.New(index.Dependencies{
		Config:   cfg,
		Scanner:  scanner,
		Store:    st,
		Embedder: embedder,
		Tracker:  version.NewTracker(dataDir),
		Detector: detector,
		DataDir:  dataDir,
	})
	if err != nil {
		embedder.Close()
		st.Close()
		return nil, err
	}

	return &pipeline{cfg: cfg, orch: orch, store: st, embedder: embedder}, nil
}

const timeRound = 10 * time.Millisecond

// printRunSummary writes the human-readable outcome of a run.
func printRunSummary(cmd *cobra.Command, res *index.IndexingResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %d file(s), skipped %d, failed %d (%d chunks) in %s\n",
		res.Indexed, res.Skipped, res.Failed, res.TotalChunks, res.Duration.Round(timeRound))

	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	for _, f := range res.Files {
		if f.Status == index.FileFailed {
			fmt.Fprintf(out, "  failed: %s: %v\n", f.Path, f.Err)
		}
	}
}
