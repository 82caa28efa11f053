package dse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/bcmmbaga/wealthfolio/internal/market"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=dse_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the DSE API service. Base URL defaults to
// http://localhost:9090 and can be overridden by the DSE_API_URL
// environment variable or WithBaseURL.
type Client struct {
	// baseURL is the base URL for the API, without trailing slash.
	baseURL string
	// apiKey is sent as X-API-Key on every request when set.
	apiKey string
	// httpClient is the HTTP client used for all requests.
	httpClient HTTPClient
}

// ClientOption is a configuration option for the DSE API client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new DSE API client.
func NewClient(apiKey string, options ...ClientOption) *Client {
	baseURL := defaultBaseURL
	if v := os.Getenv("DSE_API_URL"); v != "" {
		baseURL = v
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// errorResponse is the {error|message} shape the service uses for
// non-2xx bodies.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// get performs a GET against path with auth and shared error mapping:
// 429 is RateLimited, 401 is a credential ProviderError, any other
// non-2xx tries the error body for a readable message before falling
// back to "HTTP <status> - <body>".
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &market.ProviderError{Provider: ProviderID, Message: fmt.Sprintf("building request: %v", err)}
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &market.TimeoutError{Provider: ProviderID}
		}
		return nil, &market.ProviderError{Provider: ProviderID, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, &market.RateLimitedError{Provider: ProviderID}
	case http.StatusUnauthorized:
		return nil, &market.ProviderError{Provider: ProviderID, Message: "invalid or missing API key"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &market.ProviderError{Provider: ProviderID, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		if json.Unmarshal(body, &er) == nil {
			if msg := er.Error; msg != "" {
				return nil, &market.ProviderError{Provider: ProviderID, Message: msg}
			}
			if msg := er.Message; msg != "" {
				return nil, &market.ProviderError{Provider: ProviderID, Message: msg}
			}
		}
		return nil, &market.ProviderError{Provider: ProviderID, Message: fmt.Sprintf("HTTP %d - %s", resp.StatusCode, body)}
	}

	return body, nil
}

// unmarshal decodes a vendor body, mapping decode failures to a
// readable ProviderError.
func unmarshal(body []byte, v any, what string) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &market.ProviderError{Provider: ProviderID, Message: fmt.Sprintf("failed to parse %s response: %v", what, err)}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
