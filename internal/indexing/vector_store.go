package indexing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mailpulse/internal/constants"
	"mailpulse/pkg/metrics"
)

// Chunk is one embedded window of a document.
type Chunk struct {
	Index     int
	Content   string
	Embedding []float64
}

// VectorStore replaces everything stored for a document in one step.
type VectorStore interface {
	Replace(ctx context.Context, documentID string, metadata map[string]interface{}, chunks []Chunk) error
}

// PostgresVectorStore writes to the documents and document_chunks tables.
type PostgresVectorStore struct {
	db *sqlx.DB
}

func NewPostgresVectorStore(db *sqlx.DB) *PostgresVectorStore {
	return &PostgresVectorStore{db: db}
}

func (s *PostgresVectorStore) Replace(ctx context.Context, documentID string, metadata map[string]interface{}, chunks []Chunk) (err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.IncDatabaseQuery(constants.ServiceName, constants.StorePostgres, "replace_document", status)
		metrics.ObserveDatabaseQueryDuration(constants.ServiceName, constants.StorePostgres, "replace_document", time.Since(start))
	}()

	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (document_id, metadata, chunk_count, indexed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (document_id) DO UPDATE SET
			metadata = excluded.metadata,
			chunk_count = excluded.chunk_count,
			indexed_at = excluded.indexed_at
	`, documentID, meta, len(chunks))
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO document_chunks (document_id, chunk_index, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err = stmt.ExecContext(ctx, documentID, c.Index, c.Content, pq.Array(c.Embedding), meta); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Index, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}
	return nil
}

// ChunkCount returns how many chunks are stored for documentID.
func (s *PostgresVectorStore) ChunkCount(ctx context.Context, documentID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}
