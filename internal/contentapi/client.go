// Package contentapi is the client for the remote reading-list content API.
package contentapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"k8s.io/utils/clock"
)

const (
	// DefaultTimeout bounds a single API request
	DefaultTimeout = 30 * time.Second

	listPath        = "/api/v3/list/"
	maxErrorBodyLen = 4096
	userAgent       = "readlist-sync"
)

// Client lists and fetches documents of a user's remote library. Every method
// is exactly one remote request; implementations must not retry internally,
// since each retry would consume the shared per-user request budget.
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/readlist/readlist-sync/internal/contentapi Client
type Client interface {
	// ListDocuments returns one page of documents for a location.
	ListDocuments(ctx context.Context, token string, params ListParams) (*ListResponse, error)
	// GetDocument fetches a single document including its full content.
	GetDocument(ctx context.Context, token, id string) (*Document, error)
}

// HTTPClient is the net/http implementation of Client
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	clock      clock.PassiveClock
}

// ClientOption configures an HTTPClient
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// WithClock sets the clock used to interpret HTTP-date Retry-After values
func WithClock(c clock.PassiveClock) ClientOption {
	return func(h *HTTPClient) {
		h.clock = c
	}
}

// NewHTTPClient creates a client for the API at baseURL. A zero timeout uses
// DefaultTimeout.
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...ClientOption) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		clock:      clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListDocuments implements Client
func (c *HTTPClient) ListDocuments(ctx context.Context, token string, params ListParams) (*ListResponse, error) {
	q := url.Values{}
	q.Set("location", params.Location.RemoteName())
	if params.UpdatedAfter != nil {
		q.Set("updatedAfter", params.UpdatedAfter.UTC().Format(time.RFC3339Nano))
	}
	if params.PageCursor != "" {
		q.Set("pageCursor", params.PageCursor)
	}
	if params.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(params.PageSize))
	}
	if params.WithContent {
		q.Set("withHtmlContent", "true")
	}

	var out ListResponse
	if err := c.getJSON(ctx, token, q, &out); err != nil {
		return nil, fmt.Errorf("list %s documents: %w", params.Location, err)
	}
	return &out, nil
}

// GetDocument implements Client
func (c *HTTPClient) GetDocument(ctx context.Context, token, id string) (*Document, error) {
	q := url.Values{}
	q.Set("id", id)
	q.Set("withHtmlContent", "true")

	var out ListResponse
	if err := c.getJSON(ctx, token, q, &out); err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	for i := range out.Results {
		if out.Results[i].ID == id {
			return &out.Results[i], nil
		}
	}
	return nil, fmt.Errorf("get document %s: %w", id, ErrDocumentNotFound)
}

func (c *HTTPClient) getJSON(ctx context.Context, token string, query url.Values, out any) error {
	endpoint := c.baseURL + listPath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyLen))
		return &RateLimitedError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.clock.Now()),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			URL:        req.URL.Redacted(),
		}
	}

	if err := json.NewDecoder(resp.Body).DecodeContext(ctx, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
