package subscription

import (
	"context"
	"sync"

	apperrors "mailpulse/pkg/errors"
)

// Store persists the current record so restarts can renew instead of
// recreating. Load returns ErrNotFound when nothing is stored.
type Store interface {
	Load(ctx context.Context, resource string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, resource string) error
}

// Lister is implemented by stores that can enumerate every record, used by
// the status command to report stale entries.
type Lister interface {
	List(ctx context.Context) ([]Record, error)
}

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Load(_ context.Context, resource string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[resource]
	if !ok {
		return nil, apperrors.ErrNotFound.WithDetail("resource", resource)
	}
	return &rec, nil
}

func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	s.records[rec.Resource] = *rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, resource string) error {
	s.mu.Lock()
	delete(s.records, resource)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}
