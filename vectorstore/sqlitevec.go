package vectorstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

const rrfK = 60 // Reciprocal Rank Fusion constant, standard literature value.

// SQLiteStore is the local, document-resident Vector Store Adapter backend:
// SQLite with the sqlite-vec extension for ANN search and FTS5 for lexical
// search, fused by Reciprocal Rank Fusion. It requires cgo.
type SQLiteStore struct {
	db           *sql.DB
	embeddingDim int
	embedder     Embedder
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and
// initialises the schema. embeddingDim must match the dimension produced
// by embedder; a mismatch against an already-populated index is caught the
// first time a query or upsert runs into a dimension-sized vec0 column.
func NewSQLiteStore(dbPath string, embeddingDim int, embedder Embedder) (*SQLiteStore, error) {
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("vectorstore: %w: embeddingDim must be positive", ErrDimensionMismatch)
	}

	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &SQLiteStore{db: db, embeddingDim: embeddingDim, embedder: embedder}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert stores a document and its chunks together with their embeddings in
// a single transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, doc Document, chunks []IngestedChunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("vectorstore: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO documents (path, filename, format, content_hash, status, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				filename = excluded.filename,
				format = excluded.format,
				content_hash = excluded.content_hash,
				status = excluded.status,
				metadata = excluded.metadata,
				updated_at = CURRENT_TIMESTAMP
		`, doc.Path, doc.Filename, doc.Format, doc.ContentHash, doc.Status, doc.Metadata)
		if err != nil {
			return err
		}
		docID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if docID == 0 {
			row := tx.QueryRowContext(ctx, "SELECT id FROM documents WHERE path = ?", doc.Path)
			if err := row.Scan(&docID); err != nil {
				return err
			}
		}

		// Replace this document's existing chunks wholesale: ingestion is
		// re-run on content change, not incrementally patched.
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", docID); err != nil {
			return err
		}

		chunkStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (document_id, content, heading, page_number, has_page, position_in_doc, token_count, content_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer chunkStmt.Close()

		vecStmt, err := tx.PrepareContext(ctx,
			"INSERT OR REPLACE INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer vecStmt.Close()

		for i, c := range chunks {
			hash := sha256.Sum256([]byte(c.Content))
			contentHash := hex.EncodeToString(hash[:])

			hasPage := 0
			if c.HasPage {
				hasPage = 1
			}

			res, err := chunkStmt.ExecContext(ctx, docID, c.Content, c.Heading,
				c.PageNumber, hasPage, c.PositionInDoc, c.TokenCount, contentHash)
			if err != nil {
				return err
			}
			chunkID, err := res.LastInsertId()
			if err != nil {
				return err
			}

			if len(embeddings[i]) != s.embeddingDim {
				return fmt.Errorf("vectorstore: chunk %d: %w (got %d, want %d)",
					i, ErrDimensionMismatch, len(embeddings[i]), s.embeddingDim)
			}
			if _, err := vecStmt.ExecContext(ctx, chunkID, serializeFloat32(embeddings[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

// QueryByDocumentIDs implements vectorstore.Store. When queryText is
// non-empty it fuses a vector ANN search and an FTS5 lexical search with
// Reciprocal Rank Fusion; otherwise it returns an arbitrary sample of
// matching chunks ordered by position_in_doc.
func (s *SQLiteStore) QueryByDocumentIDs(ctx context.Context, docIDs []string, queryText string, topK int) ([]Chunk, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}

	if strings.TrimSpace(queryText) == "" {
		return s.sampleByDocumentIDs(ctx, docIDs, topK)
	}

	var vecResults, ftsResults []sqliteResult
	if s.embedder != nil {
		vecs, err := s.embedder.Embed(ctx, []string{queryText})
		if err == nil && len(vecs) == 1 {
			vr, err := s.vectorSearch(ctx, vecs[0], docIDs, topK*4)
			if err == nil {
				vecResults = vr
			}
		}
		// Embedding failure degrades to lexical-only search rather than
		// failing the call; the Orchestrator decides what an empty result
		// set means, not this adapter.
	}

	fr, err := s.ftsSearch(ctx, queryText, docIDs, topK*4)
	if err == nil {
		ftsResults = fr
	}

	fused := fuseRRF(vecResults, ftsResults, 1.0, 1.0, topK)
	return toChunks(fused), nil
}

type sqliteResult struct {
	chunkID    int64
	docID      int64
	content    string
	heading    string
	pageNumber int
	hasPage    bool
	posInDoc   int
	filename   string
	path       string
	score      float64
}

func (s *SQLiteStore) sampleByDocumentIDs(ctx context.Context, docIDs []string, topK int) ([]Chunk, error) {
	ids, args := placeholdersForPaths(docIDs)
	query := fmt.Sprintf(`
		SELECT c.id, c.document_id, c.content, c.heading, c.page_number, c.has_page,
			c.position_in_doc, d.filename, d.path
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.path IN (%s)
		ORDER BY c.position_in_doc
		LIMIT ?`, ids)
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var r sqliteResult
		var hasPage int
		if err := rows.Scan(&r.chunkID, &r.docID, &r.content, &r.heading,
			&r.pageNumber, &hasPage, &r.posInDoc, &r.filename, &r.path); err != nil {
			return nil, err
		}
		r.hasPage = hasPage != 0
		out = append(out, toChunk(r))
	}
	return out, rows.Err()
}

func (s *SQLiteStore) vectorSearch(ctx context.Context, queryEmbedding []float32, docIDs []string, k int) ([]sqliteResult, error) {
	ids, args := placeholdersForPaths(docIDs)
	query := fmt.Sprintf(`
		SELECT v.chunk_id, v.distance, c.document_id, c.content, c.heading,
			c.page_number, c.has_page, c.position_in_doc, d.filename, d.path
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE v.embedding MATCH ? AND k = ? AND d.path IN (%s)
		ORDER BY v.distance`, ids)

	queryArgs := append([]interface{}{serializeFloat32(queryEmbedding), k}, args...)

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []sqliteResult
	for rows.Next() {
		var r sqliteResult
		var distance float64
		var hasPage int
		if err := rows.Scan(&r.chunkID, &distance, &r.docID, &r.content, &r.heading,
			&r.pageNumber, &hasPage, &r.posInDoc, &r.filename, &r.path); err != nil {
			return nil, err
		}
		r.hasPage = hasPage != 0
		r.score = 1.0 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) ftsSearch(ctx context.Context, queryText string, docIDs []string, limit int) ([]sqliteResult, error) {
	ids, args := placeholdersForPaths(docIDs)
	query := fmt.Sprintf(`
		SELECT f.rowid, f.rank, c.document_id, c.content, c.heading,
			c.page_number, c.has_page, c.position_in_doc, d.filename, d.path
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		JOIN documents d ON d.id = c.document_id
		WHERE chunks_fts MATCH ? AND d.path IN (%s)
		ORDER BY f.rank
		LIMIT ?`, ids)

	queryArgs := append([]interface{}{queryText}, args...)
	queryArgs = append(queryArgs, limit)

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []sqliteResult
	for rows.Next() {
		var r sqliteResult
		var rank float64
		var hasPage int
		if err := rows.Scan(&r.chunkID, &rank, &r.docID, &r.content, &r.heading,
			&r.pageNumber, &hasPage, &r.posInDoc, &r.filename, &r.path); err != nil {
			return nil, err
		}
		r.hasPage = hasPage != 0
		r.score = -rank // FTS5 rank is negative; lower is better.
		results = append(results, r)
	}
	return results, rows.Err()
}

// fuseRRF combines vector and lexical rankings via Reciprocal Rank Fusion:
// score = sum(weight_i / (k + rank_i)). Adapted from the teacher's
// multi-method fusion (vector + FTS + graph); graph is dropped here since
// nothing in this adapter's contract performs graph traversal.
func fuseRRF(vecResults, ftsResults []sqliteResult, weightVec, weightFTS float64, maxResults int) []sqliteResult {
	type fusedEntry struct {
		result sqliteResult
		score  float64
	}
	fused := make(map[int64]*fusedEntry)

	for rank, r := range vecResults {
		e, ok := fused[r.chunkID]
		if !ok {
			e = &fusedEntry{result: r}
			fused[r.chunkID] = e
		}
		e.score += weightVec / float64(rrfK+rank+1)
	}
	for rank, r := range ftsResults {
		e, ok := fused[r.chunkID]
		if !ok {
			e = &fusedEntry{result: r}
			fused[r.chunkID] = e
		}
		e.score += weightFTS / float64(rrfK+rank+1)
	}

	entries := make([]*fusedEntry, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].score > entries[j].score })

	if maxResults > 0 && len(entries) > maxResults {
		entries = entries[:maxResults]
	}

	out := make([]sqliteResult, len(entries))
	for i, e := range entries {
		out[i] = e.result
		out[i].score = e.score
	}
	return out
}

func toChunk(r sqliteResult) Chunk {
	c := Chunk{
		ID:         strconv.FormatInt(r.chunkID, 10),
		Text:       r.content,
		Score:      r.score,
		FileID:     r.path,
		FileName:   r.filename,
		ChunkIndex: r.posInDoc,
		PageNumber: r.pageNumber,
		HasPage:    r.hasPage,
	}
	return c
}

func toChunks(results []sqliteResult) []Chunk {
	out := make([]Chunk, len(results))
	for i, r := range results {
		out[i] = toChunk(r)
	}
	return out
}

func placeholdersForPaths(docIDs []string) (string, []interface{}) {
	args := make([]interface{}, len(docIDs))
	for i, id := range docIDs {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(docIDs)), ", "), args
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

var _ Store = (*SQLiteStore)(nil)
