package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidx/obsidx/internal/config"
	"github.com/obsidx/obsidx/internal/embed"
	"github.com/obsidx/obsidx/internal/store"
	"github.com/obsidx/obsidx/internal/version"
)

// statusInfo is the machine-readable status payload.
type statusInfo struct {
	Vault          string    `json:"vault"`
	Indexed        bool      `json:"indexed"`
	IndexedAt      time.Time `json:"indexed_at,omitempty"`
	LastSnapshotID string    `json:"last_snapshot_id,omitempty"`
	TotalDocuments int       `json:"total_documents"`
	TotalChunks    int       `json:"total_chunks"`
	StoredChunks   int       `json:"stored_chunks"`
	Embedder       string    `json:"embedder"`
	EmbedderReady  bool      `json:"embedder_ready"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index state for the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	root := vaultRoot()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	info := statusInfo{Vault: root, Embedder: cfg.Embeddings.Provider}

	dataDir := config.DataDir(root)
	if v := version.NewTracker(dataDir).Load(); v != nil {
		info.Indexed = true
		info.IndexedAt = v.IndexedAt
		info.LastSnapshotID = v.LastSnapshotID
		info.TotalDocuments = v.TotalDocuments
		info.TotalChunks = v.TotalChunks
	}

	if info.Indexed {
		st, err := store.Open(dataDir, cfg.Embeddings.Dimensions)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		info.StoredChunks, err = st.Count(cmd.Context())
		st.Close()
		if err != nil {
			return err
		}
	}

	if embedder, err := embed.NewFromConfig(cfg.Embeddings); err == nil {
		info.EmbedderReady = embedder.Available(cmd.Context())
		embedder.Close()
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(out, "Vault: %s\n", info.Vault)
	if !info.Indexed {
		fmt.Fprintln(out, "Index: never built (run 'obsidx index')")
		return nil
	}
	fmt.Fprintf(out, "Indexed at: %s\n", info.IndexedAt.Format(time.RFC3339))
	if info.LastSnapshotID != "" {
		fmt.Fprintf(out, "Snapshot: %s\n", info.LastSnapshotID)
	}
	fmt.Fprintf(out, "Documents: %d\n", info.TotalDocuments)
	fmt.Fprintf(out, "Chunks: %d (stored: %d)\n", info.TotalChunks, info.StoredChunks)
	fmt.Fprintf(out, "Embedder: %s (ready: %v)\n", info.Embedder, info.EmbedderReady)
	return nil
}
