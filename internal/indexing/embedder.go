package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"mailpulse/internal/config"
	"mailpulse/internal/constants"
	"mailpulse/pkg/circuitbreaker"
	apperrors "mailpulse/pkg/errors"
	"mailpulse/pkg/metrics"
	"mailpulse/pkg/tracing"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

type embeddingRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint.
type HTTPEmbedder struct {
	url       string
	apiKey    string
	model     string
	batchSize int
	client    *http.Client
	breaker   *circuitbreaker.Wrapper
}

func NewHTTPEmbedder(cfg config.EmbeddingConfig, cbCfg config.CircuitBreakerConfig) *HTTPEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 16
	}

	e := &HTTPEmbedder{
		url:       cfg.URL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		batchSize: batch,
		client: &http.Client{
			Transport: tracing.Transport(nil),
			Timeout:   timeout,
		},
	}
	if cbCfg.Enabled {
		e.breaker = circuitbreaker.NewWrapper(circuitbreaker.FromSettings("embedding", cbCfg))
	}
	return e
}

func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *HTTPEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float64, error) {
	call := func() ([][]float64, error) {
		start := time.Now()
		vectors, err := e.post(ctx, batch)
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.ObserveEmbeddingDuration(time.Since(start), status)
		return vectors, err
	}

	if e.breaker == nil {
		return call()
	}
	return circuitbreaker.Do(ctx, e.breaker, call)
}

func (e *HTTPEmbedder) post(ctx context.Context, batch []string) ([][]float64, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: batch})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperrors.ErrTransient.WithDetail("service", "embedding").WithCause(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, apperrors.ErrTransient.WithDetail("service", "embedding").WithCause(err)
	}

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		details := map[string]interface{}{"service": "embedding", "status_code": resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, apperrors.ErrTransient.WithDetails(details)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, apperrors.ErrAuthFailure.WithDetails(details)
		}
		return nil, apperrors.ErrValidation.WithDetails(details)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, apperrors.ErrInternal.WithDetail("service", "embedding").WithCause(err)
	}
	if len(parsed.Data) != len(batch) {
		return nil, apperrors.ErrInternal.WithDetails(map[string]interface{}{
			"service":  "embedding",
			"expected": len(batch),
			"received": len(parsed.Data),
		})
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	vectors := make([][]float64, len(parsed.Data))
	for i, d := range parsed.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
