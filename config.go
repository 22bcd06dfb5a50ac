package manualrag

// Config holds all configuration for the Orchestrator and the ingestion
// path that feeds it.
type Config struct {
	// VectorStore selects and configures the Vector Store Adapter backend.
	VectorStore VectorStoreConfig `json:"vector_store" yaml:"vector_store"`

	// Chat is the LLM provider used for artifact generation.
	Chat LLMConfig `json:"chat" yaml:"chat"`

	// Embedding is the LLM provider used to embed chunks and query text.
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// MaxContextChars bounds the retrieved context window (§3 ContextWindow).
	MaxContextChars int `json:"max_context_chars" yaml:"max_context_chars"`

	// TopK is the default number of chunks requested from the vector store.
	TopK int `json:"top_k" yaml:"top_k"`

	// PartitionTargetChars is the target piece size the Context Partitioner
	// aims for before applying the minimum-pieces floor.
	PartitionTargetChars int `json:"partition_target_chars" yaml:"partition_target_chars"`

	// MinPieces is the floor on the number of pieces a single generation
	// partitions its context window into, regardless of window size.
	MinPieces int `json:"min_pieces" yaml:"min_pieces"`

	// MaxItemsPerPiece caps checksheet items requested from a single piece.
	MaxItemsPerPiece int `json:"max_items_per_piece" yaml:"max_items_per_piece"`

	// MaxStepsPerPiece caps work-instruction steps requested from a single
	// piece.
	MaxStepsPerPiece int `json:"max_steps_per_piece" yaml:"max_steps_per_piece"`

	// MaxTokensPerPiece caps the LLM's max_tokens for each sub-request.
	MaxTokensPerPiece int `json:"max_tokens_per_piece" yaml:"max_tokens_per_piece"`

	// Temperature is passed to every generation sub-request.
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// RequestsPerSecond and Burst configure the rate limiter wrapping the
	// chat provider during generation. RequestsPerSecond is derived from
	// LLM_RATE_LIMIT_RPM (default 50 RPM ≈ 0.83 req/s) by DefaultConfig;
	// both knobs are exposed since callers may want burst control the RPM
	// figure alone doesn't give them.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`

	// MaxRetries bounds the exponential-backoff retry budget for
	// transient LLM failures.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// VectorStoreConfig selects between the SQLite and Qdrant backends.
type VectorStoreConfig struct {
	// Backend is "sqlite" or "qdrant".
	Backend string `json:"backend" yaml:"backend"`

	// SQLite backend settings.
	DBPath string `json:"db_path" yaml:"db_path"`

	// Qdrant backend settings.
	QdrantHost           string `json:"qdrant_host" yaml:"qdrant_host"`
	QdrantPort           int    `json:"qdrant_port" yaml:"qdrant_port"`
	QdrantAPIKey         string `json:"qdrant_api_key" yaml:"qdrant_api_key"`
	QdrantCollectionName string `json:"qdrant_collection_name" yaml:"qdrant_collection_name"`

	// EmbeddingDim must match the configured Embedding provider's output
	// dimension. At connect time both backends reject only a non-positive
	// value; neither compares it with the provider or with an existing
	// index. An upserted embedding of a different length is rejected with
	// ErrDimensionMismatch.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, openai, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with sensible defaults for local inference
// against an Ollama instance and a SQLite-backed vector store.
func DefaultConfig() Config {
	return Config{
		VectorStore: VectorStoreConfig{
			Backend:      "sqlite",
			DBPath:       "manualrag.db",
			EmbeddingDim: 768,
		},
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		MaxContextChars:      4000,
		TopK:                 10,
		PartitionTargetChars: 300,
		MinPieces:            15,
		MaxItemsPerPiece:     8,
		MaxStepsPerPiece:     2,
		MaxTokensPerPiece:    8000,
		Temperature:          0.3,
		RequestsPerSecond:    50.0 / 60.0, // LLM_RATE_LIMIT_RPM default 50
		Burst:                2,
		MaxRetries:           3,
	}
}
