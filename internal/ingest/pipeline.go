package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docent-ai/docent/internal/index"
)

// BatchEmbedder produces embeddings for a batch of texts, preserving
// order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline ingests files into an index.
type Pipeline struct {
	idx       index.Index
	embedder  BatchEmbedder
	chunkSize int
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline. chunkSize <= 0 uses
// DefaultChunkSize.
func NewPipeline(idx index.Index, embedder BatchEmbedder, chunkSize int) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Pipeline{
		idx:       idx,
		embedder:  embedder,
		chunkSize: chunkSize,
		logger:    slog.Default(),
	}
}

// Report summarizes one ingested file.
type Report struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Chunks     int    `json:"chunks"`
}

// IngestFile reads, chunks, embeds and stores one file. The document
// embedding is the centroid of its chunk embeddings.
func (p *Pipeline) IngestFile(ctx context.Context, path string, tags []string) (Report, error) {
	src, err := ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	drafts := Split(src, p.chunkSize)
	if len(drafts) == 0 {
		return Report{}, fmt.Errorf("no text extracted from %s", path)
	}

	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Report{}, fmt.Errorf("embedding %s: %w", path, err)
	}

	tagsJSON := "[]"
	if len(tags) > 0 {
		b, err := json.Marshal(tags)
		if err != nil {
			return Report{}, fmt.Errorf("encoding tags: %w", err)
		}
		tagsJSON = string(b)
	}

	docID := uuid.NewString()
	chunks := make([]index.Chunk, len(drafts))
	for i, d := range drafts {
		chunks[i] = index.Chunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			PageStart:  d.PageStart,
			PageEnd:    d.PageEnd,
			Offset:     d.Offset,
			Text:       d.Text,
			Tags:       tagsJSON,
			Embedding:  vectors[i],
		}
	}

	doc := index.Document{
		ID:          docID,
		Title:       src.Title,
		PublishedAt: time.Now().UTC(),
		Embedding:   centroid(vectors),
	}
	if err := p.idx.InsertDocument(ctx, doc); err != nil {
		return Report{}, fmt.Errorf("storing document: %w", err)
	}
	if err := p.idx.InsertChunks(ctx, chunks); err != nil {
		return Report{}, fmt.Errorf("storing chunks: %w", err)
	}

	p.logger.Info("ingested file", "path", path, "document", docID, "chunks", len(chunks))
	return Report{DocumentID: docID, Title: src.Title, Chunks: len(chunks)}, nil
}

// centroid averages the vectors component-wise. Vectors of unexpected
// length are skipped.
func centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float32, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			sum[i] += x
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float32(n)
	}
	return sum
}
