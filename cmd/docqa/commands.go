package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"docqa/internal/config"
	"docqa/internal/ingest"
	"docqa/internal/ollama"
	"docqa/internal/rag"
	"docqa/internal/retrieval"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Index documentation files into the local vector store",
	Long: `Index documentation files into the local vector store.

The path can be a single file or a directory; directories are walked
recursively. Supported formats: markdown, plain text, PDF, HTML.

Examples:
  docqa ingest ./docs
  docqa ingest ./README.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		initLogging(cfg)

		eng := ollama.New(cfg.Ollama.BaseURL)
		if err := ensureReady(cmd.Context(), eng, cfg, os.Stderr); err != nil {
			return err
		}

		store, err := retrieval.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening vector store: %w", err)
		}
		defer store.Close()

		embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)
		ing := ingest.New(store, embedder)

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		start := time.Now()
		if info.IsDir() {
			stats, err := ing.IngestDir(cmd.Context(), path)
			if err != nil {
				return err
			}
			printSuccess("Indexed %d files (%d chunks) in %s", stats.Files, stats.Chunks, time.Since(start).Round(time.Millisecond))
			return nil
		}

		n, err := ing.IngestFile(cmd.Context(), "", path)
		if err != nil {
			return err
		}
		printSuccess("Indexed %s (%d chunks) in %s", path, n, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the running server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := args[0]
		for _, a := range args[1:] {
			question += " " + a
		}
		conversationID, _ := cmd.Flags().GetString("conversation")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/api/chat", map[string]any{
			"message":         question,
			"conversation_id": conversationID,
		})
		if err != nil {
			return err
		}

		var result struct {
			Response       string            `json:"response"`
			Sources        []sourceView      `json:"sources"`
			ConversationID string            `json:"conversation_id"`
			Attempts       int               `json:"attempts"`
			Analysis       rag.QueryAnalysis `json:"query_analysis"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Response)
		if len(result.Sources) > 0 {
			fmt.Fprintln(os.Stderr)
			printStep("Sources (%d attempts):", result.Attempts)
			for _, s := range result.Sources {
				if s.Section != "" {
					printStatus(s.Ref, "%s", s.Section)
				} else {
					printStatus(s.Ref, "%s", s.Kind)
				}
			}
		}
		printStep("conversation: %s", result.ConversationID)
		return nil
	},
}

type sourceView struct {
	Ref     string `json:"source"`
	Section string `json:"section,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func init() {
	askCmd.Flags().String("conversation", "", "conversation id to continue")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and engine status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		eng := ollama.New(cfg.Ollama.BaseURL)
		if eng.IsRunning(cmd.Context()) {
			printStatus("ollama", "running at %s", cfg.Ollama.BaseURL)
		} else {
			printWarning("ollama not reachable at %s", cfg.Ollama.BaseURL)
		}

		// Prefer the running server; fall back to opening the store directly.
		if client, err := newAPIClient(); err == nil {
			if resp, herr := client.get("/api/health"); herr == nil {
				var health struct {
					Status        string `json:"status"`
					IndexedChunks int    `json:"indexed_chunks"`
				}
				if derr := decodeJSON(resp, &health); derr == nil {
					printStatus("server", "%s on port %d", health.Status, cfg.Server.Port)
					printStatus("indexed chunks", "%d", health.IndexedChunks)
					return nil
				}
			}
		}
		printStatus("server", "not running")

		store, err := retrieval.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening vector store: %w", err)
		}
		defer store.Close()

		count, err := store.Count()
		if err != nil {
			return err
		}
		docs, err := store.DocIDs()
		if err != nil {
			return err
		}
		printStatus("indexed chunks", "%d", count)
		printStatus("documents", "%d", len(docs))
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
