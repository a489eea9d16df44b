package indexing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailpulse/internal/logger"
	apperrors "mailpulse/pkg/errors"
	"mailpulse/pkg/metrics"
	"mailpulse/pkg/tracing"
)

const sinkPostgres = "postgres"

// Pipeline indexes in process: chunk, embed, then replace the document's
// rows in the vector store.
type Pipeline struct {
	chunker  Chunker
	embedder Embedder
	store    VectorStore
	logger   logger.Logger
}

func NewPipeline(chunker Chunker, embedder Embedder, store VectorStore, log logger.Logger) *Pipeline {
	return &Pipeline{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		logger:   log,
	}
}

func (p *Pipeline) Index(ctx context.Context, documentID, text string, metadata map[string]interface{}) (err error) {
	ctx, span := tracing.GetTracer("indexing").Start(ctx, "indexing.pipeline")
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	if strings.TrimSpace(documentID) == "" {
		return apperrors.ErrValidation.WithDetail("field", "document_id")
	}

	pieces := p.chunker.Split(text)
	if len(pieces) == 0 {
		metrics.IncIndexedDocument(sinkPostgres, "empty")
		p.logger.DebugwCtx(ctx, "Document has no text, skipping", "document_id", documentID)
		return nil
	}

	vectors, err := p.embedder.Embed(ctx, pieces)
	if err != nil {
		metrics.IncIndexedDocument(sinkPostgres, "error")
		return fmt.Errorf("embedding document %s: %w", documentID, err)
	}
	if len(vectors) != len(pieces) {
		metrics.IncIndexedDocument(sinkPostgres, "error")
		return apperrors.ErrInternal.WithDetails(map[string]interface{}{
			"document_id": documentID,
			"chunks":      len(pieces),
			"vectors":     len(vectors),
		})
	}

	chunks := make([]Chunk, len(pieces))
	for i := range pieces {
		chunks[i] = Chunk{Index: i, Content: pieces[i], Embedding: vectors[i]}
	}

	meta := make(map[string]interface{}, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["chunk_count"] = len(chunks)
	meta["upload_date"] = time.Now().UTC().Format(time.RFC3339)

	if err := p.store.Replace(ctx, documentID, meta, chunks); err != nil {
		metrics.IncIndexedDocument(sinkPostgres, "error")
		return apperrors.ErrTransient.WithDetail("document_id", documentID).WithCause(err)
	}

	metrics.IncIndexedDocument(sinkPostgres, "success")
	metrics.AddIndexedChunks(len(chunks))
	p.logger.InfowCtx(ctx, "Document indexed",
		"document_id", documentID,
		"chunks", len(chunks),
	)
	return nil
}
