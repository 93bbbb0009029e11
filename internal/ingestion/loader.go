// Package ingestion loads pre-chunked documents into the vector index.
// Input is JSON Lines, one chunk per line; the loader embeds chunks in
// batches and upserts them under deterministic point IDs, so reloading the
// same file overwrites rather than duplicates. Parsing and chunking of the
// source documents happen upstream. This loader is invoked by
// `docarag load`.
package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/docarag-go/internal/logging"
	"github.com/54b3r/docarag-go/internal/rag"
)

// pointNamespace scopes the name-based UUIDs of stored chunks.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/54b3r/docarag-go/chunks"))

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 4 << 20

// Record is one pre-chunked line of a load file.
type Record struct {
	// DocumentName identifies the source document; file-scoped queries match
	// against it. Required.
	DocumentName string `json:"document_name"`

	// Page is the page or offset marker within the document.
	Page int `json:"page"`

	// Content is the chunk text. Records with blank content are skipped.
	Content string `json:"content"`

	// SourceType is pdf, docx, html, txt or md. Inferred from DocumentName
	// when absent.
	SourceType string `json:"source_type,omitempty"`

	// ChunkIndex is the position within the document. When absent, records
	// are numbered in file order per document.
	ChunkIndex *int `json:"chunk_index,omitempty"`
}

// Index is the write side of the vector index.
type Index interface {
	Upsert(ctx context.Context, chunks []rag.StoredChunk, vectors [][]float32) error
	DeleteDocument(ctx context.Context, documentName string) error
}

// Config holds the configuration for the loader.
type Config struct {
	// BatchSize is the number of chunks embedded and upserted per call.
	// Defaults to 32 if zero.
	BatchSize int

	// Replace deletes every existing point of a document before its chunks
	// are loaded.
	Replace bool

	// Now stamps date_created. Defaults to time.Now.
	Now func() time.Time
}

// Stats summarises a load.
type Stats struct {
	Records   int
	Skipped   int
	Documents int
	Batches   int
}

// Loader embeds and upserts chunk records.
type Loader struct {
	// embedder converts chunk text into dense vectors.
	embedder rag.Embedder

	// index persists the embedded chunks.
	index Index

	// cfg holds the resolved loader configuration.
	cfg *Config
}

// NewLoader constructs a Loader from the provided dependencies and config.
func NewLoader(embedder rag.Embedder, index Index, cfg *Config) (*Loader, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loader{embedder: embedder, index: index, cfg: cfg}, nil
}

// LoadFile opens path and loads it. See Load.
func (l *Loader) LoadFile(ctx context.Context, path string, progress func(msg string)) (Stats, error) {
	f, err := os.Open(path) //nolint:gosec // path is an operator-supplied CLI argument
	if err != nil {
		return Stats{}, fmt.Errorf("ingestion: open %s: %w", path, err)
	}
	defer f.Close()
	return l.Load(ctx, f, progress)
}

// Load reads every record from r, then embeds and upserts them batch by
// batch. The whole input is validated before anything is written, so a
// malformed line leaves the index untouched. Progress is reported via the
// optional progress callback.
func (l *Loader) Load(ctx context.Context, r io.Reader, progress func(msg string)) (Stats, error) {
	if progress == nil {
		progress = func(string) {}
	}
	log := logging.FromContext(ctx)

	records, err := ReadRecords(r)
	if err != nil {
		return Stats{}, err
	}

	chunks, docs, skipped := l.toChunks(records)
	stats := Stats{Records: len(records), Skipped: skipped, Documents: len(docs)}
	if skipped > 0 {
		log.Warn("ingestion: skipped records with blank content", slog.Int("skipped", skipped))
	}
	progress(fmt.Sprintf("read %d records for %d documents", len(records), len(docs)))

	if l.cfg.Replace {
		for _, doc := range docs {
			if err := l.index.DeleteDocument(ctx, doc); err != nil {
				return stats, fmt.Errorf("ingestion: replace %s: %w", doc, err)
			}
			progress(fmt.Sprintf("deleted existing chunks of %s", doc))
		}
	}

	for start := 0; start < len(chunks); start += l.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		batch := chunks[start:min(start+l.cfg.BatchSize, len(chunks))]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := l.embedder.Embed(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("ingestion: embedding failed for batch at record %d: %w", start, err)
		}
		if err := l.index.Upsert(ctx, batch, vectors); err != nil {
			return stats, fmt.Errorf("ingestion: upsert failed for batch at record %d: %w", start, err)
		}

		stats.Batches++
		progress(fmt.Sprintf("loaded %d/%d chunks", start+len(batch), len(chunks)))
	}

	log.Info("ingestion: load complete",
		slog.Int("records", stats.Records),
		slog.Int("documents", stats.Documents),
		slog.Int("batches", stats.Batches),
	)
	return stats, nil
}

// toChunks converts records into stored chunks, returning the distinct
// document names in order of first appearance and the number of blank
// records dropped.
func (l *Loader) toChunks(records []Record) ([]rag.StoredChunk, []string, int) {
	now := l.cfg.Now().UTC()
	next := make(map[string]int)
	var (
		chunks  []rag.StoredChunk
		docs    []string
		skipped int
	)
	for _, rec := range records {
		if _, seen := next[rec.DocumentName]; !seen {
			next[rec.DocumentName] = 0
			docs = append(docs, rec.DocumentName)
		}
		idx := next[rec.DocumentName]
		if rec.ChunkIndex != nil {
			idx = *rec.ChunkIndex
		}
		next[rec.DocumentName] = idx + 1

		if strings.TrimSpace(rec.Content) == "" {
			skipped++
			continue
		}

		sourceType := NormaliseSourceType(rec.SourceType)
		if sourceType == "" {
			sourceType = InferSourceType(rec.DocumentName)
		}
		chunks = append(chunks, rag.StoredChunk{
			Chunk: rag.Chunk{
				ID:           ChunkID(rec.DocumentName, idx),
				Content:      rec.Content,
				DocumentName: rec.DocumentName,
				Page:         rec.Page,
				ChunkIndex:   idx,
				SourceType:   sourceType,
			},
			CreatedAt: now,
		})
	}
	return chunks, docs, skipped
}

// ReadRecords parses JSON Lines from r. Blank lines are ignored. Errors name
// the offending line.
func ReadRecords(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []Record
	for line := 1; sc.Scan(); line++ {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("ingestion: line %d: %w", line, err)
		}
		if strings.TrimSpace(rec.DocumentName) == "" {
			return nil, fmt.Errorf("ingestion: line %d: document_name is required", line)
		}
		if rec.ChunkIndex != nil && *rec.ChunkIndex < 0 {
			return nil, fmt.Errorf("ingestion: line %d: chunk_index must not be negative", line)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ingestion: read: %w", err)
	}
	return records, nil
}

// ChunkID returns the deterministic point ID of a document's chunk.
func ChunkID(documentName string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%s#%d", documentName, chunkIndex)).String()
}
