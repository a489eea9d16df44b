// Package indexing chunks, embeds and stores extracted message text.
package indexing

import "context"

// Indexer accepts one document. Implementations are safe for concurrent
// use and idempotent per documentID: indexing the same id twice leaves a
// single copy.
type Indexer interface {
	Index(ctx context.Context, documentID, text string, metadata map[string]interface{}) error
}

// IndexerFunc adapts a function to Indexer.
type IndexerFunc func(ctx context.Context, documentID, text string, metadata map[string]interface{}) error

func (f IndexerFunc) Index(ctx context.Context, documentID, text string, metadata map[string]interface{}) error {
	return f(ctx, documentID, text, metadata)
}
