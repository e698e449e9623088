package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chatpdf/internal/pkg/pdfextract"
	"chatpdf/internal/platform/pinecone"
)

const defaultEmbedConcurrency = 8

var (
	ErrInvalidInput = errors.New("invalid input")
)

// DocumentFetcher downloads a stored document to a local file the caller
// must remove, and builds public URLs for stored keys.
type DocumentFetcher interface {
	Fetch(ctx context.Context, fileKey, resourceType string) (string, error)
	URL(fileKey, resourceType string) string
}

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex upserts chunk vectors into a per-document namespace and
// queries them by similarity.
type VectorIndex interface {
	Upsert(ctx context.Context, fileKey string, records []pinecone.Record) error
	Query(ctx context.Context, fileKey string, vector []float32, topK int) ([]pinecone.Match, error)
}

// IngestService runs the ingestion pipeline: fetch, extract, chunk, embed,
// upsert. A failure at any stage aborts the whole document's ingestion;
// nothing is committed partially.
type IngestService struct {
	fetcher      DocumentFetcher
	embedder     Embedder
	index        VectorIndex
	extractPages func(path string) ([]pdfextract.PageBlock, error)
	concurrency  int
	log          *zap.Logger
}

func NewIngestService(fetcher DocumentFetcher, embedder Embedder, index VectorIndex, log *zap.Logger) *IngestService {
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestService{
		fetcher:      fetcher,
		embedder:     embedder,
		index:        index,
		extractPages: pdfextract.PagesFromFile,
		concurrency:  defaultEmbedConcurrency,
		log:          log,
	}
}

// Ingest downloads the document behind fileKey, chunks its pages, embeds
// every chunk, and upserts the vectors into the document's namespace.
// Returns the number of records written. Chunk embeddings run concurrently
// with join-all, fail-fast semantics: the first failure cancels the rest
// and nothing is upserted.
func (s *IngestService) Ingest(ctx context.Context, fileKey, resourceType string) (int, error) {
	path, err := s.fetcher.Fetch(ctx, fileKey, resourceType)
	if err != nil {
		return 0, fmt.Errorf("fetch document failed: %w", err)
	}
	defer os.Remove(path)

	pages, err := s.extractPages(path)
	if err != nil {
		return 0, fmt.Errorf("extract document failed: %w", err)
	}

	var chunks []Chunk
	for _, page := range pages {
		chunks = append(chunks, ChunkPage(page)...)
	}
	if len(chunks) == 0 {
		s.log.Warn("document produced no chunks",
			zap.String("file_key", fileKey),
			zap.Int("pages", len(pages)))
		return 0, nil
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range chunks {
		i := i
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("embed chunk %s failed: %w", chunks[i].Hash, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	records := make([]pinecone.Record, len(chunks))
	for i, c := range chunks {
		records[i] = pinecone.Record{
			ID:     c.Hash,
			Values: vectors[i],
			Metadata: pinecone.Metadata{
				Text:       c.Text,
				PageNumber: c.PageNumber,
			},
		}
	}
	if err := s.index.Upsert(ctx, fileKey, records); err != nil {
		return 0, err
	}

	s.log.Info("document ingested",
		zap.String("file_key", fileKey),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(records)))
	return len(records), nil
}
