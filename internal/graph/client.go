package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"mailpulse/internal/config"
	"mailpulse/internal/constants"
	"mailpulse/internal/logger"
	"mailpulse/pkg/circuitbreaker"
	"mailpulse/pkg/metrics"
	"mailpulse/pkg/tracing"
)

const maxErrorBody = 64 << 10

// Client is a stateless adapter over the provider's subscription and
// message endpoints. All methods are safe for concurrent use.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	fetchBreaker *circuitbreaker.Wrapper
	logger       logger.Logger
}

// NewClient authenticates with OAuth2 client credentials against the
// tenant's token endpoint.
func NewClient(cfg config.GraphConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL(),
		Scopes:       []string{constants.GraphDefaultScope},
	}

	base := &http.Client{Transport: tracing.Transport(nil), Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := cc.Client(ctx)
	httpClient.Timeout = timeout

	return NewClientWithHTTP(cfg.BaseURL, httpClient, cbCfg, log)
}

// NewClientWithHTTP uses an already authenticated HTTP client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client, cbCfg config.CircuitBreakerConfig, log logger.Logger) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     log,
	}
	if cbCfg.Enabled {
		c.fetchBreaker = circuitbreaker.NewWrapper(circuitbreaker.FromSettings("graph-fetch", cbCfg))
	}
	return c
}

func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	body := createBody{
		ChangeType:         req.ChangeType,
		NotificationURL:    req.NotificationURL,
		Resource:           req.Resource,
		ExpirationDateTime: formatTime(req.ExpiresAt),
		ClientState:        req.ClientState,
	}

	var sub Subscription
	if err := c.do(ctx, opCreate, http.MethodPost, c.baseURL+"/subscriptions", body, &sub); err != nil {
		return nil, err
	}

	c.logger.InfowCtx(ctx, "Created subscription",
		"subscription_id", sub.ID,
		"resource", sub.Resource,
		"expires_at", sub.ExpirationDateTime,
	)
	return &sub, nil
}

// RenewSubscription extends id to expiresAt and returns the expiry the
// provider granted.
func (c *Client) RenewSubscription(ctx context.Context, id string, expiresAt time.Time) (time.Time, error) {
	var sub Subscription
	endpoint := c.baseURL + "/subscriptions/" + url.PathEscape(id)
	if err := c.do(ctx, opRenew, http.MethodPatch, endpoint, renewBody{ExpirationDateTime: formatTime(expiresAt)}, &sub); err != nil {
		return time.Time{}, err
	}

	if sub.ExpirationDateTime.IsZero() {
		return expiresAt, nil
	}
	return sub.ExpirationDateTime, nil
}

func (c *Client) DeleteSubscription(ctx context.Context, id string) error {
	endpoint := c.baseURL + "/subscriptions/" + url.PathEscape(id)
	return c.do(ctx, opDelete, http.MethodDelete, endpoint, nil, nil)
}

// ListSubscriptions follows @odata.nextLink until every page is read.
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var out []Subscription
	next := c.baseURL + "/subscriptions"
	for next != "" {
		var page listResponse
		if err := c.do(ctx, opList, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Value...)
		next = page.NextLink
	}
	return out, nil
}

// FetchMessage reads the message a notification's resource path points at.
func (c *Client) FetchMessage(ctx context.Context, resource string) (*Message, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(resource, "/") + "?$select=" + messageSelect

	fetch := func() (*Message, error) {
		var msg Message
		if err := c.do(ctx, opFetch, http.MethodGet, endpoint, nil, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	}

	if c.fetchBreaker == nil {
		return fetch()
	}
	return circuitbreaker.Do(ctx, c.fetchBreaker, fetch)
}

func (c *Client) do(ctx context.Context, op operation, method, endpoint string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveSubscriptionOperationDuration(string(op), time.Since(start))
	if err != nil {
		return classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		classified := classifyResponse(op, resp, body)
		c.logger.DebugwCtx(ctx, "Provider call failed",
			"operation", op,
			"status_code", resp.StatusCode,
			"error", classified,
		)
		return classified
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return classifyTransportError(op, fmt.Errorf("failed to decode %s response: %w", op, err))
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.0000000Z")
}
