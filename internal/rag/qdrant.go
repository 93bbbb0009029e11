package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys written by the loader and read back by Search.
const (
	PayloadContent      = "content"
	PayloadDocumentName = "document_name"
	PayloadPage         = "page"
	PayloadChunkIndex   = "chunk_index"
	PayloadSourceType   = "source_type"
	PayloadDateCreated  = "date_created"
)

// DefaultCollection is the collection queried when none is configured.
const DefaultCollection = "DefaultDocuments"

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the collection name (default: DefaultDocuments).
	Collection string

	// VectorSize is the embedding dimension, used when the collection has to
	// be created.
	VectorSize uint64

	// APIKey is the optional API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// StoredChunk is a chunk together with its embedding, ready to be upserted.
type StoredChunk struct {
	Chunk
	// CreatedAt is recorded in the payload as date_created.
	CreatedAt time.Time
}

// QdrantIndex implements VectorIndex on top of a Qdrant collection using
// cosine distance.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration.
	cfg *QdrantConfig
}

// NewQdrantIndex connects to Qdrant and makes sure the collection and its
// keyword payload indexes exist.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

// Client exposes the gRPC client for readiness probes.
func (q *QdrantIndex) Client() *qdrant.Client { return q.client }

// Collection returns the collection this index reads and writes.
func (q *QdrantIndex) Collection() string { return q.cfg.Collection }

// ensureCollection creates the collection and the filterable payload
// indexes if they do not already exist.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	if q.cfg.VectorSize == 0 {
		return fmt.Errorf("qdrant: collection %q does not exist and no vector size was given", q.cfg.Collection)
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}

	for _, field := range []string{PayloadDocumentName, PayloadSourceType} {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.cfg.Collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to index payload field %q: %w", field, err)
		}
	}
	return nil
}

// Search runs a cosine nearest-neighbour query. Qdrant reports cosine
// similarity as the score; it is turned back into a cosine distance
// (1 - score) so Chunk.Distance keeps index semantics. Similarity is left
// for the caller to derive with SimilarityFromDistance.
func (q *QdrantIndex) Search(ctx context.Context, req SearchRequest) ([]Chunk, error) {
	limit := uint64(req.K) //nolint:gosec // K is validated positive by callers
	query := &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(req.Vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         buildFilter(req.Filter),
	}
	if req.WithVectors {
		query.WithVectors = qdrant.NewWithVectors(true)
	}

	results, err := q.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		c := chunkFromPayload(r.GetPayload())
		c.ID = pointID(r.GetId())
		c.Distance = Float64(1 - float64(r.GetScore()))
		if req.WithVectors {
			c.Vector = r.GetVectors().GetVector().GetData()
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Upsert stores chunks with their embeddings. vectors[i] belongs to chunks[i].
func (q *QdrantIndex) Upsert(ctx context.Context, chunks []StoredChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("qdrant: upsert: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				PayloadContent:      c.Content,
				PayloadDocumentName: c.DocumentName,
				PayloadPage:         int64(c.Page),
				PayloadChunkIndex:   int64(c.ChunkIndex),
				PayloadSourceType:   c.SourceType,
				PayloadDateCreated:  created.Format(time.RFC3339),
			}),
		})
	}

	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// DeleteDocument removes every point belonging to documentName.
func (q *QdrantIndex) DeleteDocument(ctx context.Context, documentName string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(buildFilter(Filter{DocumentName: documentName})),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete %q failed: %w", documentName, err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// buildFilter translates a Filter into Qdrant must-match conditions.
// Returns nil for the zero filter.
func buildFilter(f Filter) *qdrant.Filter {
	if f.IsZero() {
		return nil
	}
	var must []*qdrant.Condition
	if f.DocumentName != "" {
		must = append(must, qdrant.NewMatch(PayloadDocumentName, f.DocumentName))
	}
	if f.SourceType != "" {
		must = append(must, qdrant.NewMatch(PayloadSourceType, f.SourceType))
	}
	return &qdrant.Filter{Must: must}
}

// chunkFromPayload reads the chunk fields out of a point payload.
func chunkFromPayload(p map[string]*qdrant.Value) Chunk {
	var c Chunk
	if p == nil {
		return c
	}
	c.Content = p[PayloadContent].GetStringValue()
	c.DocumentName = p[PayloadDocumentName].GetStringValue()
	c.SourceType = p[PayloadSourceType].GetStringValue()
	c.Page = int(p[PayloadPage].GetIntegerValue())
	c.ChunkIndex = int(p[PayloadChunkIndex].GetIntegerValue())
	return c
}

// pointID renders a point ID regardless of whether it is a UUID or a number.
func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}
