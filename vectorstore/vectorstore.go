// Package vectorstore implements the Vector Store Adapter described by the
// orchestrator specification: a uniform query interface over one of two
// backend vector databases, plus the ingestion write path that populates
// them.
package vectorstore

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned at connect time when the configured
// embedding dimension is not positive, and by Upsert when an embedding's
// length differs from the configured dimension. The configured dimension
// is not compared with an existing index at connect time.
var ErrDimensionMismatch = errors.New("vectorstore: embedding dimension mismatch")

// Chunk is a retrieval-unit text fragment returned by a Store, carrying the
// source metadata the orchestrator needs for attribution.
type Chunk struct {
	ID         string
	Text       string
	Score      float64
	FileID     string
	FileName   string
	ChunkIndex int
	// PageNumber is the user-facing page number. Zero means "unknown";
	// callers must check HasPage before trusting the value.
	PageNumber int
	HasPage    bool
	PageRange  string
}

// Document is a row of ingestion bookkeeping: one per ingested file.
type Document struct {
	ID          string
	Path        string
	Filename    string
	Format      string
	ContentHash string
	Status      string
	Metadata    string
}

// IngestedChunk is the write-side counterpart of Chunk, produced by the
// ingestion path before embedding and upsert.
type IngestedChunk struct {
	ID            string
	DocumentID    string
	Content       string
	Heading       string
	PageNumber    int
	HasPage       bool
	PositionInDoc int
	TokenCount    int
}

// Store is the contract consumed by the orchestrator. Both the SQLite and
// Qdrant backends implement it identically; the orchestrator never branches
// on which one is wired in.
type Store interface {
	// QueryByDocumentIDs returns up to topK chunks whose FileID is one of
	// docIDs. If queryText is non-empty the adapter embeds it and performs
	// nearest-neighbor search; otherwise it returns an arbitrary sample of
	// matching chunks. Results always carry FileName and, when available,
	// PageNumber.
	QueryByDocumentIDs(ctx context.Context, docIDs []string, queryText string, topK int) ([]Chunk, error)

	// Upsert stores a document and its chunks together with their
	// embeddings. Chunks and embeddings must be the same length and
	// index-aligned.
	Upsert(ctx context.Context, doc Document, chunks []IngestedChunk, embeddings [][]float32) error

	// Close releases the underlying connection.
	Close() error
}

// Embedder computes text embeddings. Both backends need one to support
// queryText-driven search and to embed ingested chunks; it is supplied by
// the caller (normally the llm.Provider already in use for generation) so
// the vector store package has no opinion about which model produces
// vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
