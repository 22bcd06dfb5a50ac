package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Payload keys used to round-trip Chunk fields through Qdrant's point
// payload, since Qdrant itself is schemaless about anything but the vector.
const (
	payloadContent    = "content"
	payloadFileID     = "file_id"
	payloadFileName   = "file_name"
	payloadChunkIndex = "chunk_index"
	payloadPageNumber = "page_number"
	payloadHasPage    = "has_page"
)

// QdrantStore is the network-service Vector Store Adapter backend: a
// collection in a Qdrant instance reached over gRPC.
type QdrantStore struct {
	client         *qdrant.Client
	collectionName string
	embeddingDim   int
	embedder       Embedder
}

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	Host             string
	Port             int
	APIKey           string
	CollectionName   string
	EmbeddingDim     int
	InitializeSchema bool
}

// NewQdrantStore connects to a Qdrant instance and, if InitializeSchema is
// set, creates the collection when it does not already exist.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, embedder Embedder) (*QdrantStore, error) {
	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("vectorstore: %w: embeddingDim must be positive", ErrDimensionMismatch)
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("vectorstore: qdrant collection name is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connecting to qdrant: %w", err)
	}

	store := &QdrantStore{
		client:         client,
		collectionName: cfg.CollectionName,
		embeddingDim:   cfg.EmbeddingDim,
		embedder:       embedder,
	}

	if cfg.InitializeSchema {
		if err := store.ensureCollection(ctx); err != nil {
			return nil, err
		}
	}

	return store, nil
}

func (q *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("vectorstore: checking collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.embeddingDim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: creating collection %s: %w", q.collectionName, err)
	}
	return nil
}

func (q *QdrantStore) Close() error {
	return q.client.Close()
}

// Upsert stores each chunk, with the caller-supplied embedding at the same
// index, as a Qdrant point carrying the chunk's attribution metadata as
// payload.
func (q *QdrantStore) Upsert(ctx context.Context, doc Document, chunks []IngestedChunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("vectorstore: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		if len(embeddings[i]) != q.embeddingDim {
			return fmt.Errorf("vectorstore: chunk %d: %w (got %d, want %d)",
				i, ErrDimensionMismatch, len(embeddings[i]), q.embeddingDim)
		}

		pointID := c.ID
		if pointID == "" {
			pointID = uuid.NewString()
		}

		payload, err := qdrant.TryValueMap(map[string]any{
			payloadContent:    c.Content,
			payloadFileID:     doc.Path,
			payloadFileName:   doc.Filename,
			payloadChunkIndex: c.PositionInDoc,
			payloadPageNumber: c.PageNumber,
			payloadHasPage:    c.HasPage,
		})
		if err != nil {
			return fmt.Errorf("vectorstore: building payload for chunk %d: %w", i, err)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: payload,
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: upserting %d points to %s: %w", len(points), q.collectionName, err)
	}
	return nil
}

// QueryByDocumentIDs implements vectorstore.Store with a payload match
// filter restricting the search to the given fileIDs.
func (q *QdrantStore) QueryByDocumentIDs(ctx context.Context, docIDs []string, queryText string, topK int) ([]Chunk, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}

	filter := fileIDFilter(docIDs)

	queryPoints := &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Filter:         filter,
		Limit:          ptrUint64(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	vector, err := q.queryVector(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embedding query text: %w", err)
	}
	queryPoints.Query = qdrant.NewQuery(vector...)

	scored, err := q.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: querying collection %s: %w", q.collectionName, err)
	}

	return pointsToChunks(scored), nil
}

// queryVector embeds queryText, or returns a zero vector when queryText is
// empty — the degenerate "arbitrary sample" case the spec explicitly
// allows a backend to implement this way.
func (q *QdrantStore) queryVector(ctx context.Context, queryText string) ([]float32, error) {
	if queryText == "" || q.embedder == nil {
		return make([]float32, q.embeddingDim), nil
	}
	vecs, err := q.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("vectorstore: expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}

func fileIDFilter(docIDs []string) *qdrant.Filter {
	should := make([]*qdrant.Condition, len(docIDs))
	for i, id := range docIDs {
		should[i] = qdrant.NewMatch(payloadFileID, id)
	}
	return &qdrant.Filter{Should: should}
}

func pointsToChunks(points []*qdrant.ScoredPoint) []Chunk {
	chunks := make([]Chunk, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		c := Chunk{
			ID:    pointIDString(p.GetId()),
			Score: float64(p.GetScore()),
		}
		if payload != nil {
			c.Text = payload[payloadContent].GetStringValue()
			c.FileID = payload[payloadFileID].GetStringValue()
			c.FileName = payload[payloadFileName].GetStringValue()
			c.ChunkIndex = int(payload[payloadChunkIndex].GetIntegerValue())
			c.PageNumber = int(payload[payloadPageNumber].GetIntegerValue())
			c.HasPage = payload[payloadHasPage].GetBoolValue()
		}
		chunks = append(chunks, c)
	}
	return chunks
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func ptrUint64(v uint64) *uint64 { return &v }

var _ Store = (*QdrantStore)(nil)
