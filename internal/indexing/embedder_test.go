package indexing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/internal/config"
	apperrors "mailpulse/pkg/errors"
)

func embeddingServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		var resp embeddingResponse
		resp.Data = make([]struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}, len(req.Input))
		// reversed to check ordering by index
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			resp.Data[i].Index = j
			resp.Data[i].Embedding = []float64{float64(len(req.Input[j]))}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPEmbedder_BatchesAndOrders(t *testing.T) {
	var calls int32
	srv := embeddingServer(t, &calls)
	defer srv.Close()

	e := NewHTTPEmbedder(config.EmbeddingConfig{
		URL:       srv.URL,
		APIKey:    "secret",
		Model:     "text-embedding-3-small",
		BatchSize: 2,
		Timeout:   time.Second,
	}, config.CircuitBreakerConfig{})

	vectors, err := e.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}, {2}, {3}, {4}, {5}}, vectors)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPEmbedder_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		class  apperrors.Class
	}{
		{"rate limited", http.StatusTooManyRequests, apperrors.ClassRetryable},
		{"server error", http.StatusBadGateway, apperrors.ClassRetryable},
		{"bad key", http.StatusUnauthorized, apperrors.ClassFatal},
		{"bad request", http.StatusBadRequest, apperrors.ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			e := NewHTTPEmbedder(config.EmbeddingConfig{URL: srv.URL}, config.CircuitBreakerConfig{})
			_, err := e.Embed(context.Background(), []string{"x"})
			require.Error(t, err)
			assert.Equal(t, tt.class, apperrors.Classify(err))
		})
	}
}

func TestHTTPEmbedder_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(config.EmbeddingConfig{URL: srv.URL}, config.CircuitBreakerConfig{})
	_, err := e.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}
