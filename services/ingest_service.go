package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"docllama/internal/logger"
	"docllama/internal/storage"
	"docllama/internal/telemetry"
	"docllama/internal/vectorindex"
	"docllama/models"
	"docllama/utils"
)

type IngestOptions struct {
	// Timeout bounds each document's pipeline. 0 disables it.
	Timeout time.Duration
	// Model overrides the embedding service default.
	Model   string
	Metrics *telemetry.Metrics
}

// IngestService runs the per-document pipeline: store, extract, segment,
// embed, upsert.
type IngestService struct {
	store      storage.Store
	extractor  TextExtractor
	segmenter  *Segmenter
	embeddings *EmbeddingService
	index      vectorindex.Index
	opts       IngestOptions
}

func NewIngestService(
	store storage.Store,
	extractor TextExtractor,
	segmenter *Segmenter,
	embeddings *EmbeddingService,
	index vectorindex.Index,
	opts IngestOptions,
) *IngestService {
	return &IngestService{
		store:      store,
		extractor:  extractor,
		segmenter:  segmenter,
		embeddings: embeddings,
		index:      index,
		opts:       opts,
	}
}

// Ingest processes documents in order. A failing document never aborts the
// ones after it; results[i] describes docs[i].
func (s *IngestService) Ingest(ctx context.Context, docs []models.Document) []models.IngestResult {
	results := make([]models.IngestResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, s.IngestDocument(ctx, doc))
	}
	return results
}

// IngestDocument runs the full pipeline for one upload.
func (s *IngestService) IngestDocument(ctx context.Context, doc models.Document) models.IngestResult {
	doc.Filename = utils.SafeName(doc.Filename)
	if !utils.IsPDFContentType(doc.ContentType) {
		logger.Info("Skipping non-PDF upload", "file", doc.Filename, "content_type", doc.ContentType)
		return models.IngestResult{File: doc.Filename, Status: models.IngestStatusSkipped}
	}

	return s.run(ctx, doc.Filename, func(ctx context.Context) (*models.IngestStats, error) {
		pdfPath, err := s.store.Put(ctx, storage.PDFs, doc.Filename, doc.Content)
		if err != nil {
			return nil, fmt.Errorf("store pdf: %w", err)
		}
		return s.process(ctx, doc.Filename, pdfPath, doc.Content)
	})
}

// ProcessStored runs the pipeline for a PDF that was already persisted, as
// queued by the async ingest endpoint.
func (s *IngestService) ProcessStored(ctx context.Context, payload models.IngestTaskPayload) models.IngestResult {
	name := utils.SafeName(payload.Filename)
	return s.run(ctx, name, func(ctx context.Context) (*models.IngestStats, error) {
		content, err := s.store.Get(ctx, storage.PDFs, name)
		if err != nil {
			return nil, fmt.Errorf("load pdf: %w", err)
		}
		return s.process(ctx, name, payload.PDFPath, content)
	})
}

// StorePDF persists an upload ahead of queued processing.
func (s *IngestService) StorePDF(ctx context.Context, doc models.Document) (models.IngestTaskPayload, error) {
	name := utils.SafeName(doc.Filename)
	if !utils.IsPDFContentType(doc.ContentType) {
		return models.IngestTaskPayload{Filename: name}, fmt.Errorf("%w: %s is not a PDF", models.ErrValidation, name)
	}
	location, err := s.store.Put(ctx, storage.PDFs, name, doc.Content)
	if err != nil {
		return models.IngestTaskPayload{Filename: name}, fmt.Errorf("store pdf: %w", err)
	}
	return models.IngestTaskPayload{Filename: name, ContentType: doc.ContentType, PDFPath: location}, nil
}

func (s *IngestService) run(ctx context.Context, name string, pipeline func(context.Context) (*models.IngestStats, error)) models.IngestResult {
	start := time.Now()
	ctx, cancel := utils.WithOptionalTimeout(ctx, s.opts.Timeout)
	defer cancel()

	stats, err := pipeline(ctx)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("ingest timed out after %s: %w", s.opts.Timeout, err)
		}
		logger.Error("Document ingestion failed", "file", name, "duration", elapsed, "error", err)
		s.opts.Metrics.RecordIngest(elapsed.Seconds(), models.IngestStatusFailed, 0)
		return models.IngestResult{File: name, Status: models.IngestStatusFailed, Error: err.Error()}
	}

	logger.Info("Document ingested",
		"file", name,
		"pages", stats.Pages,
		"chunks", stats.ChunkCount,
		"indexed", stats.Indexed,
		"duration", elapsed)
	s.opts.Metrics.RecordIngest(elapsed.Seconds(), models.IngestStatusOK, stats.Indexed)
	return models.IngestResult{File: name, Status: models.IngestStatusOK, IngestStats: stats}
}

func (s *IngestService) process(ctx context.Context, name, pdfPath string, content []byte) (*models.IngestStats, error) {
	pages, err := s.extractor.ExtractPages(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	text := strings.Join(pages, "\n\n")
	stem := utils.Stem(name)
	textPath, err := s.store.Put(ctx, storage.Text, stem+".txt", []byte(text))
	if err != nil {
		return nil, fmt.Errorf("store text: %w", err)
	}

	chunks := s.segmenter.Segment(name, pages)
	chunkPath, err := s.store.Put(ctx, storage.Chunks, stem+".chunks.jsonl", encodeChunks(chunks))
	if err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	stats := &models.IngestStats{
		Pages:      len(pages),
		Chars:      utf8.RuneCountInString(text),
		PDFPath:    pdfPath,
		TextPath:   textPath,
		ChunkCount: len(chunks),
		ChunkPath:  chunkPath,
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := s.embeddings.Embed(ctx, texts, s.opts.Model)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}

		entries := make([]vectorindex.Entry, len(chunks))
		for i, c := range chunks {
			entries[i] = vectorindex.Entry{
				ID:       c.ID,
				Vector:   vectors[i],
				Text:     c.Text,
				Metadata: c.Metadata(),
			}
		}
		if err := s.index.Upsert(ctx, entries); err != nil {
			return nil, fmt.Errorf("index chunks: %w", err)
		}
		stats.Indexed = len(entries)
	}

	// Drop entries left behind by an earlier, different version of the file.
	removed, err := s.index.Prune(ctx, name, ids)
	if err != nil {
		logger.Warn("Failed to prune stale chunks", "file", name, "error", err)
	} else if removed > 0 {
		logger.Info("Pruned stale chunks", "file", name, "removed", removed)
	}

	return stats, nil
}

// encodeChunks renders one {id, page, text} JSON object per line.
func encodeChunks(chunks []models.Chunk) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, c := range chunks {
		// ChunkRecord holds only strings and ints, Encode cannot fail.
		_ = enc.Encode(models.ChunkRecord{ID: c.ID, Page: c.Page, Text: c.Text})
	}
	return buf.Bytes()
}
