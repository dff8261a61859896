// Package platform implements the HTTP contract with the hosted backend that
// owns authentication, relational storage, and change notification. The
// provider is a black box; this package only speaks its wire protocol and
// maps failures onto sentinel errors.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/library-portal/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// Config carries the connection parameters for the hosted backend.
type Config struct {
	// BaseURL is the root of the provider deployment, without trailing slash.
	BaseURL string
	// APIKey is the publishable (anonymous) key sent with every request.
	APIKey string
	// HTTPClient overrides the transport; nil selects a default with a timeout.
	HTTPClient *http.Client
	// Logger receives request-level diagnostics; nil selects slog.Default.
	Logger *slog.Logger
	// Now supplies the current time for expiry bookkeeping; nil selects
	// time.Now.
	Now func() time.Time
}

// Client is a thin, stateless wrapper over the provider's REST surface.
// Per-identity state (tokens, profiles) lives with the callers.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// New validates the configuration and constructs a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("platform: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("platform: invalid base URL: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("platform: API key is required")
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpc:   httpc,
		logger:  logger,
		now:     now,
	}, nil
}

// do issues one JSON request against the provider. An empty accessToken sends
// only the anonymous key; out may be nil when the response body is irrelevant.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, accessToken string, body, out any) error {
	start := time.Now()
	err := c.roundTrip(ctx, method, path, query, accessToken, body, out)
	metrics.ObservePlatformRequest(operation, err, start)
	if err != nil {
		c.logger.ErrorContext(ctx, "platform request failed",
			"operation", operation,
			"method", method,
			"path", path,
			"error", err,
			"error_kind", ErrorKind(err),
		)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("platform: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("platform: build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if out != nil && (method == http.MethodPost || method == http.MethodPatch) {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("platform: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(payload) > 0 {
		_ = json.Unmarshal(payload, apiErr)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
