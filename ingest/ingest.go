// Package ingest implements the write path of the Vector Store Adapter:
// parse a document, split it into chunks, embed them, and upsert the
// result. It is ambient to the Retrieval-Augmented Generation Orchestrator
// — exercised by the CLI demonstrator so the module has something to
// retrieve against, never called by Orchestrator.Generate itself.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wbaines/manualrag/parser"
	"github.com/wbaines/manualrag/vectorstore"
)

// Config controls chunking behavior. Zero-value fields fall back to
// defaults sized for maintenance-manual prose.
type Config struct {
	MaxChunkChars int // target character count per chunk
	Overlap       int // character overlap between consecutive chunks
}

func (c Config) withDefaults() Config {
	if c.MaxChunkChars == 0 {
		c.MaxChunkChars = 2000
	}
	if c.Overlap == 0 {
		c.Overlap = 200
	}
	return c
}

// Option configures a single Ingest call.
type Option func(*options)

type options struct {
	forceReparse bool
	metadata     map[string]string
}

// WithForceReparse asks for the document to be re-parsed and re-embedded.
// Ingest does that on every call and never compares content hashes, so
// this option does not change its behavior.
func WithForceReparse() Option {
	return func(o *options) { o.forceReparse = true }
}

// WithMetadata attaches caller-supplied metadata to the document record.
func WithMetadata(md map[string]string) Option {
	return func(o *options) { o.metadata = md }
}

// Ingester parses, chunks, embeds, and upserts documents into a
// vectorstore.Store. It keeps no state of its own beyond its dependencies,
// matching the injected-dependency shape used throughout this module.
type Ingester struct {
	store    vectorstore.Store
	embedder vectorstore.Embedder
	parsers  *parser.Registry
	cfg      Config
}

// New returns an Ingester backed by the given store and embedder.
func New(store vectorstore.Store, embedder vectorstore.Embedder, cfg Config) *Ingester {
	return &Ingester{
		store:    store,
		embedder: embedder,
		parsers:  parser.NewRegistry(),
		cfg:      cfg.withDefaults(),
	}
}

// Ingest parses the file at path, chunks and embeds its content, and
// upserts it into the underlying store. It returns the document's content
// hash so callers can decide whether anything changed.
//
// The file is parsed, chunked, and embedded on every call, whether or not
// its content hash matches a previously ingested copy; this package does
// not track document-by-path history. The store replaces any chunks it
// already holds for the same path.
func (ig *Ingester) Ingest(ctx context.Context, path string, opts ...Option) (string, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("ingest: resolving path: %w", err)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return "", fmt.Errorf("ingest: hashing file: %w", err)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), "."))
	filename := filepath.Base(absPath)

	slog.Info("ingest: parsing document", "file", filename, "format", ext)
	parseStart := time.Now()

	p, err := ig.parsers.Get(ext)
	if err != nil {
		return "", fmt.Errorf("ingest: %w", err)
	}

	parsed, err := p.Parse(ctx, absPath)
	if err != nil {
		return "", fmt.Errorf("ingest: parsing %s: %w", filename, err)
	}

	slog.Info("ingest: parsing complete", "file", filename, "method", parsed.Method,
		"sections", len(parsed.Sections), "elapsed", time.Since(parseStart).Round(time.Millisecond))

	var metadataJSON string
	if o.metadata != nil {
		data, _ := json.Marshal(o.metadata)
		metadataJSON = string(data)
	}

	docID := hash
	doc := vectorstore.Document{
		ID:          docID,
		Path:        absPath,
		Filename:    filename,
		Format:      ext,
		ContentHash: hash,
		Status:      "processing",
		Metadata:    metadataJSON,
	}

	chunkStart := time.Now()
	chunks := ig.chunkSections(docID, parsed.Sections)
	slog.Info("ingest: chunking complete", "file", filename, "chunks", len(chunks),
		"max_chars", ig.cfg.MaxChunkChars, "overlap", ig.cfg.Overlap,
		"elapsed", time.Since(chunkStart).Round(time.Millisecond))

	if len(chunks) == 0 {
		return "", fmt.Errorf("ingest: %s produced no chunks", filename)
	}

	embedStart := time.Now()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		prefix := ""
		if c.Heading != "" {
			prefix = c.Heading + ": "
		}
		texts[i] = truncateForEmbed(prefix + c.Content)
	}

	embeddings, err := ig.embedder.Embed(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("ingest: embedding chunks: %w", err)
	}
	slog.Info("ingest: embeddings complete", "file", filename, "chunks", len(chunks),
		"elapsed", time.Since(embedStart).Round(time.Millisecond))

	if err := ig.store.Upsert(ctx, doc, chunks, embeddings); err != nil {
		return "", fmt.Errorf("ingest: upserting %s: %w", filename, err)
	}

	return hash, nil
}

// chunkSections flattens parsed sections into fixed-size, slightly
// overlapping chunks, splitting any section whose content exceeds
// MaxChunkChars. Each chunk keeps its originating section's heading and
// page number for attribution.
func (ig *Ingester) chunkSections(docID string, sections []parser.Section) []vectorstore.IngestedChunk {
	var chunks []vectorstore.IngestedChunk
	pos := 0

	for _, sec := range sections {
		content := strings.TrimSpace(sec.Content)
		if content == "" {
			continue
		}

		for _, piece := range splitWithOverlap(content, ig.cfg.MaxChunkChars, ig.cfg.Overlap) {
			chunks = append(chunks, vectorstore.IngestedChunk{
				ID:            fmt.Sprintf("%s-%d", docID, pos),
				DocumentID:    docID,
				Content:       piece,
				Heading:       sec.Heading,
				PageNumber:    sec.PageNumber,
				HasPage:       sec.PageNumber > 0,
				PositionInDoc: pos,
				TokenCount:    estimateTokens(piece),
			})
			pos++
		}
	}

	return chunks
}

// splitWithOverlap breaks text into slices of at most maxChars, each
// overlapping the previous by overlap characters, so no single slice
// crosses a word's boundary where it can be avoided.
func splitWithOverlap(text string, maxChars, overlap int) []string {
	if len(text) <= maxChars {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			pieces = append(pieces, text[start:])
			break
		}
		if space := strings.LastIndexByte(text[start:end], ' '); space > 0 {
			end = start + space
		}
		pieces = append(pieces, text[start:end])
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}

// estimateTokens approximates token count at roughly four characters per
// token, the same rough ratio the teacher uses for chunk sizing.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// truncateForEmbed caps the text handed to the embedding model, since most
// embedding APIs reject inputs beyond a few thousand characters.
func truncateForEmbed(s string) string {
	const maxEmbedChars = 8000
	if len(s) <= maxEmbedChars {
		return s
	}
	return s[:maxEmbedChars]
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
