package indexing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/internal/testinfra"
)

func TestPostgresVectorStore_ReplaceIsIdempotent(t *testing.T) {
	db := testinfra.Postgres(t)
	store := NewPostgresVectorStore(db)
	ctx := context.Background()

	chunks := []Chunk{
		{Index: 0, Content: "first", Embedding: []float64{0.1, 0.2}},
		{Index: 1, Content: "second", Embedding: []float64{0.3, 0.4}},
	}
	meta := map[string]interface{}{"subject": "Hi"}

	require.NoError(t, store.Replace(ctx, "msg-1", meta, chunks))
	require.NoError(t, store.Replace(ctx, "msg-1", meta, chunks))

	n, err := store.ChunkCount(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Replace(ctx, "msg-1", meta, chunks[:1]))
	n, err = store.ChunkCount(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var count int
	require.NoError(t, db.GetContext(ctx, &count, "SELECT chunk_count FROM documents WHERE document_id = $1", "msg-1"))
	assert.Equal(t, 1, count)
}
