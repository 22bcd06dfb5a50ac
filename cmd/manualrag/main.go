// Command manualrag demonstrates the ingest-then-generate path end to end:
// parse and embed a maintenance manual into the vector store, then
// synthesize a checksheet or work-instructions artifact from it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/wbaines/manualrag"
	"github.com/wbaines/manualrag/ingest"
	"github.com/wbaines/manualrag/llm"
	"github.com/wbaines/manualrag/progress"
	"github.com/wbaines/manualrag/promptlib"
	"github.com/wbaines/manualrag/vectorstore"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "ingest":
		err = runIngest(ctx, os.Args[2:])
	case "generate":
		err = runGenerate(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: manualrag <ingest|generate> [flags]")
}

func runIngest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (JSON)")
	path := fs.String("file", "", "path to the document to ingest")
	force := fs.Bool("force", false, "re-parse and re-embed (ingest does this on every run, with or without this flag)")
	fs.Parse(args)

	if *path == "" {
		return fmt.Errorf("manualrag ingest: -file is required")
	}

	cfg := loadConfig(*configPath)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		return fmt.Errorf("manualrag ingest: creating embedding provider: %w", err)
	}

	ig := ingest.New(store, embedder, ingest.Config{})

	var opts []ingest.Option
	if *force {
		opts = append(opts, ingest.WithForceReparse())
	}

	hash, err := ig.Ingest(ctx, *path, opts...)
	if err != nil {
		return fmt.Errorf("manualrag ingest: %w", err)
	}
	slog.Info("ingest complete", "file", *path, "contentHash", hash)
	return nil
}

func runGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (JSON)")
	docIDsCSV := fs.String("doc-ids", "", "comma-separated absolute paths of ingested documents to generate from")
	useCase := fs.String("use-case", "checksheet", "checksheet or work_instructions")
	queryText := fs.String("query", "", "optional query text to drive nearest-neighbor retrieval")
	fs.Parse(args)

	if *docIDsCSV == "" {
		return fmt.Errorf("manualrag generate: -doc-ids is required")
	}
	docIDs := splitCSV(*docIDsCSV)

	cfg := loadConfig(*configPath)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	orch, err := manualrag.New(cfg, store, promptlib.New(nil), manualrag.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("manualrag generate: %w", err)
	}

	var genOpts []manualrag.GenerationOption
	if *queryText != "" {
		genOpts = append(genOpts, manualrag.WithQueryText(*queryText))
	}
	genOpts = append(genOpts, manualrag.WithProgress(progress.LogReporter{Logger: slog.Default()}))

	result, err := orch.Generate(ctx, docIDs, manualrag.UseCase(*useCase), genOpts...)
	if err != nil {
		return fmt.Errorf("manualrag generate: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// loadConfig starts from DefaultConfig, overlays an optional JSON file, then
// MANUALRAG_*-prefixed environment variables, mirroring the teacher's
// flag-then-env override order.
func loadConfig(path string) manualrag.Config {
	cfg := manualrag.DefaultConfig()

	if path != "" {
		if f, err := os.Open(path); err == nil {
			defer f.Close()
			if err := json.NewDecoder(f).Decode(&cfg); err != nil {
				slog.Error("parsing config", "path", path, "error", err)
				os.Exit(1)
			}
		} else {
			slog.Error("opening config", "path", path, "error", err)
			os.Exit(1)
		}
	}

	if v := os.Getenv("MANUALRAG_DB_PATH"); v != "" {
		cfg.VectorStore.DBPath = v
	}
	if v := os.Getenv("MANUALRAG_VECTOR_BACKEND"); v != "" {
		cfg.VectorStore.Backend = v
	}
	if v := os.Getenv("MANUALRAG_QDRANT_HOST"); v != "" {
		cfg.VectorStore.QdrantHost = v
	}
	if v := os.Getenv("MANUALRAG_CHAT_PROVIDER"); v != "" {
		cfg.Chat.Provider = v
	}
	if v := os.Getenv("MANUALRAG_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("MANUALRAG_CHAT_BASE_URL"); v != "" {
		cfg.Chat.BaseURL = v
	}
	if v := os.Getenv("MANUALRAG_CHAT_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("MANUALRAG_EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("MANUALRAG_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("MANUALRAG_EMBED_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("MANUALRAG_EMBED_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}

	// Fallback: check the well-known provider env var for an API key.
	if cfg.Chat.APIKey == "" && cfg.Chat.Provider == "openai" {
		cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return cfg
}

// openStore constructs the configured vectorstore.Store backend. The
// embedder passed to it is the configured embedding provider, since both
// backends need one for queryText-driven search.
func openStore(ctx context.Context, cfg manualrag.Config) (vectorstore.Store, error) {
	embedder, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	switch cfg.VectorStore.Backend {
	case "qdrant":
		return vectorstore.NewQdrantStore(ctx, vectorstore.QdrantConfig{
			Host:             cfg.VectorStore.QdrantHost,
			Port:             cfg.VectorStore.QdrantPort,
			APIKey:           cfg.VectorStore.QdrantAPIKey,
			CollectionName:   cfg.VectorStore.QdrantCollectionName,
			EmbeddingDim:     cfg.VectorStore.EmbeddingDim,
			InitializeSchema: true,
		}, embedder)
	default:
		return vectorstore.NewSQLiteStore(cfg.VectorStore.DBPath, cfg.VectorStore.EmbeddingDim, embedder)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
