package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"docqa/internal/api"
	"docqa/internal/config"
	"docqa/internal/conversation"
	"docqa/internal/engine"
	"docqa/internal/ollama"
	"docqa/internal/rag"
	"docqa/internal/reranking"
	"docqa/internal/retrieval"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docqa server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "docqa version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := ollama.New(cfg.Ollama.BaseURL)
	if err := ensureReady(ctx, eng, cfg, os.Stderr); err != nil {
		return err
	}

	store, err := retrieval.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing vector store: %v\n", err)
		}
	}()

	orch, aggregator := buildPipeline(eng, store, cfg)
	conversations := conversation.NewStore(0, cfg.Conversation.MaxHistoryTurns)

	handler := api.NewHandler(api.Deps{
		Runner:        orch,
		Conversations: conversations,
		Index:         store,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over streamable HTTP on its own port.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Runner:   orch,
		Searcher: aggregator,
	})
	mcpHTTP := mcpserver.NewStreamableHTTPServer(mcpSrv)
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	go func() {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := mcpHTTP.Start(mcpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("MCP server error", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "docqa listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mcpHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Warn("MCP server shutdown", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func initLogging(cfg config.Config) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// buildPipeline assembles the retrieval and answering stack from config.
func buildPipeline(eng engine.Engine, store *retrieval.SQLiteStore, cfg config.Config) (*rag.Orchestrator, *retrieval.Aggregator) {
	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	aggregator := retrieval.NewAggregator(embedder, store,
		cfg.Retrieval.TopK, cfg.Retrieval.ComprehensiveTopK, cfg.Retrieval.FinalTopK)

	var scorer reranking.Scorer
	if cfg.Rerank.Enabled {
		scorer = reranking.NewEngineScorer(eng, cfg.Ollama.Model)
	}
	rerankTimeout, err := time.ParseDuration(cfg.Rerank.Timeout)
	if err != nil {
		slog.Warn("invalid rerank timeout, using default 20s", "value", cfg.Rerank.Timeout, "error", err)
		rerankTimeout = 20 * time.Second
	}
	reranker := reranking.New(scorer, rerankTimeout, cfg.Rerank.TopK, cfg.Rerank.ComprehensiveTopK)

	orch := rag.NewOrchestrator(eng, aggregator, reranker, cfg.Ollama.Model, cfg.RAG.MaxAttempts)
	return orch, aggregator
}

// ensureReady verifies the inference engine is reachable and warns about
// missing models. Missing models are not fatal: ollama pulls on first use.
func ensureReady(ctx context.Context, eng engine.Engine, cfg config.Config, out io.Writer) error {
	if !eng.IsRunning(ctx) {
		return fmt.Errorf("ollama is not reachable at %s; start it with `ollama serve`", cfg.Ollama.BaseURL)
	}

	models, err := eng.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(out, "warning: could not list models: %v\n", err)
		return nil
	}
	for _, want := range []string{cfg.Ollama.Model, cfg.Ollama.EmbedModel} {
		if !hasModel(models, want) {
			printWarning("model %q not found; run `ollama pull %s`", want, want)
		}
	}
	return nil
}

func hasModel(models []string, name string) bool {
	for _, m := range models {
		if m == name || strings.HasPrefix(m, name+":") {
			return true
		}
	}
	return false
}
