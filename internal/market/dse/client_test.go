package dse_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/bcmmbaga/wealthfolio/internal/market"
	"github.com/bcmmbaga/wealthfolio/internal/market/dse"
)

func quoteBody(t *testing.T) io.ReadCloser {
	t.Helper()
	buffer := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buffer).Encode(map[string]any{
		"symbol": "TCC",
		"close":  17000.0,
	}))
	return io.NopCloser(buffer)
}

func TestClientWithHTTPClient(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       quoteBody(t),
			}, nil
		}).
		Times(1)

	// Arrange: create an adapter backed by the mocked client.
	p := dse.New("test", dse.WithClientOptions(dse.WithHTTPClient(httpClient)))

	// Act: fetch a quote through the mock.
	_, err := p.LatestQuote(context.Background(), market.QuoteContext{}, market.Equity("TCC"))
	require.NoError(t, err)
}

func TestClientWithBaseURL(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Arrange: define a base url
	baseURL := "http://dse.internal:8080"

	// Assert: stub the Do method and check the request URL.
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), baseURL), "expected url to start with base url, received: %s", req.URL.String())
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       quoteBody(t),
			}, nil
		}).
		Times(1)

	// Arrange: create an adapter with the overridden base URL.
	p := dse.New("test", dse.WithClientOptions(
		dse.WithHTTPClient(httpClient),
		dse.WithBaseURL(baseURL+"/")))

	// Act: fetch a quote with the overridden base URL.
	_, err := p.LatestQuote(context.Background(), market.QuoteContext{}, market.Equity("TCC"))
	require.NoError(t, err)
}

func TestClientSetsAPIKeyHeader(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method and check the auth header.
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "secret", req.Header.Get("X-API-Key"))
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       quoteBody(t),
			}, nil
		}).
		Times(1)

	// Arrange: create an adapter with a pre-built client, which New
	// must use instead of building its own.
	p := dse.New("", dse.WithClient(dse.NewClient("secret", dse.WithHTTPClient(httpClient))))

	// Act: fetch a quote with the key attached.
	_, err := p.LatestQuote(context.Background(), market.QuoteContext{}, market.Equity("TCC"))
	require.NoError(t, err)
}

func TestClientEnvBaseURL(t *testing.T) {
	// Arrange: point the client at an env-provided base URL.
	t.Setenv("DSE_API_URL", "http://env.internal:9999")

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), "http://env.internal:9999"), "expected env base url, received: %s", req.URL.String())
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       quoteBody(t),
			}, nil
		}).
		Times(1)

	p := dse.New("test", dse.WithClientOptions(dse.WithHTTPClient(httpClient)))

	// Act: fetch a quote against the env-configured endpoint.
	_, err := p.LatestQuote(context.Background(), market.QuoteContext{}, market.Equity("TCC"))
	require.NoError(t, err)
}
