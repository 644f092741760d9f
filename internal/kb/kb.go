// Package kb ingests the runbook knowledge base into an in-process vector
// index and answers nearest-neighbour queries against it.
package kb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/dshills/incidentreasoner/internal/embed"
	"github.com/dshills/incidentreasoner/internal/schema"
	"github.com/dshills/incidentreasoner/internal/textutil"
)

const (
	DefaultCollection   = "kb"
	DefaultChunkSize    = 900
	DefaultChunkOverlap = 150

	metaSource     = "source"
	metaChunkIndex = "chunk_index"
)

// ErrInvalidConfig indicates invalid store configuration.
var ErrInvalidConfig = errors.New("kb: invalid configuration")

// Document is one knowledge base file.
type Document struct {
	Source string
	Text   string
}

// LoadDir reads every *.md file in dir in lexical order. A missing directory
// is not an error: it yields no documents and a warning.
func LoadDir(dir string, logger *zap.Logger) ([]Document, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("knowledge base directory not found", zap.String("dir", dir))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kb: stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("kb: %s is not a directory", dir)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("kb: glob: %w", err)
	}
	sort.Strings(paths)

	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("kb: read %s: %w", p, err)
		}
		docs = append(docs, Document{Source: p, Text: string(data)})
	}
	return docs, nil
}

// Config configures a Store. An empty Path keeps the index in memory.
type Config struct {
	Path       string
	Compress   bool
	Collection string
}

// Store is a chromem-go backed index of knowledge base chunks.
type Store struct {
	db       *chromem.DB
	coll     *chromem.Collection
	embedder embed.Embedder
	logger   *zap.Logger
}

// NewStore opens (or creates) the index described by cfg.
func NewStore(cfg Config, embedder embed.Embedder, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("kb: creating directory %s: %w", cfg.Path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("kb: opening chromem DB: %w", err)
		}
	}

	coll, err := db.GetOrCreateCollection(cfg.Collection, nil, noTextQueries)
	if err != nil {
		return nil, fmt.Errorf("kb: collection %s: %w", cfg.Collection, err)
	}

	logger.Info("knowledge base index opened",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection),
		zap.Int("chunks", coll.Count()),
	)
	return &Store{db: db, coll: coll, embedder: embedder, logger: logger}, nil
}

// The store always receives precomputed vectors; chromem must never embed.
func noTextQueries(context.Context, string) ([]float32, error) {
	return nil, errors.New("kb: text queries are not supported; pass an embedding")
}

// Count returns the number of indexed chunks.
func (s *Store) Count() int { return s.coll.Count() }

// Ingest chunks each document, embeds the chunks as passages and adds them to
// the index. It returns the number of chunks added.
func (s *Store) Ingest(ctx context.Context, docs []Document, chunkSize, overlap int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var texts []string
	var metas []map[string]string
	for _, d := range docs {
		for i, ch := range textutil.Chunk(d.Text, chunkSize, overlap) {
			texts = append(texts, ch)
			metas = append(metas, map[string]string{
				metaSource:     d.Source,
				metaChunkIndex: strconv.Itoa(i),
			})
		}
	}
	if len(texts) == 0 {
		s.logger.Warn("no knowledge base chunks to ingest", zap.Int("documents", len(docs)))
		return 0, nil
	}

	s.logger.Info("embedding knowledge base chunks", zap.Int("chunks", len(texts)))
	vecs, err := s.embedder.Embed(ctx, texts, embed.RolePassage)
	if err != nil {
		return 0, fmt.Errorf("kb: embedding chunks: %w", err)
	}
	if len(vecs) != len(texts) {
		return 0, fmt.Errorf("kb: embedder returned %d vectors for %d chunks", len(vecs), len(texts))
	}

	chromemDocs := make([]chromem.Document, len(texts))
	for i := range texts {
		chromemDocs[i] = chromem.Document{
			ID:        uuid.NewString(),
			Content:   texts[i],
			Metadata:  metas[i],
			Embedding: vecs[i],
		}
	}
	// Embeddings are precomputed, so one worker is enough.
	if err := s.coll.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return 0, fmt.Errorf("kb: adding documents: %w", err)
	}

	s.logger.Debug("added knowledge base chunks", zap.Int("count", len(chromemDocs)))
	return len(chromemDocs), nil
}

// IngestDir loads dir and ingests its documents.
func (s *Store) IngestDir(ctx context.Context, dir string, chunkSize, overlap int) (int, error) {
	docs, err := LoadDir(dir, s.logger)
	if err != nil {
		return 0, err
	}
	return s.Ingest(ctx, docs, chunkSize, overlap)
}

// Query returns up to topK chunks closest to vec, nearest first. Distance is
// 1 - cosine similarity. An empty index yields an empty slice.
func (s *Store) Query(ctx context.Context, vec []float32, topK int) ([]schema.ContextItem, error) {
	if topK <= 0 {
		return []schema.ContextItem{}, nil
	}
	// chromem requires nResults <= document count.
	n := s.coll.Count()
	if n == 0 {
		return []schema.ContextItem{}, nil
	}
	if topK > n {
		topK = n
	}

	results, err := s.coll.QueryEmbedding(ctx, vec, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("kb: query: %w", err)
	}

	items := make([]schema.ContextItem, len(results))
	for i, r := range results {
		ordinal, err := strconv.Atoi(r.Metadata[metaChunkIndex])
		if err != nil {
			ordinal = -1
		}
		source := strings.TrimSpace(r.Metadata[metaSource])
		if source == "" {
			source = "unknown"
		}
		items[i] = schema.ContextItem{
			Text:     r.Content,
			Source:   source,
			Ordinal:  ordinal,
			Distance: 1 - float64(r.Similarity),
			Origin:   schema.OriginKB,
		}
	}
	return items, nil
}
