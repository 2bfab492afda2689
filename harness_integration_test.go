//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smeagol-wiki/smeagol-client/internal/app"
	"github.com/smeagol-wiki/smeagol-client/internal/config"
	"github.com/smeagol-wiki/smeagol-client/internal/server"
	"github.com/smeagol-wiki/smeagol-client/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

// APITestHarness runs the sidecar routes against a mock wiki API.
type APITestHarness struct {
	Server   *httptest.Server
	WikiMock *testhelpers.MockWikiServer
	State    *app.State
}

// APITestHarnessOption configures the API test harness.
type APITestHarnessOption func(*config.Config)

// WithStaleThreshold shortens or lengthens how long entries stay fresh.
func WithStaleThreshold(millis int) APITestHarnessOption {
	return func(cfg *config.Config) {
		cfg.Store.StaleThresholdMillis = millis
	}
}

// NewAPITestHarness creates the mock wiki API and the sidecar server in
// front of it. Cleanup is handled automatically via t.Cleanup().
func NewAPITestHarness(t *testing.T, options ...APITestHarnessOption) *APITestHarness {
	t.Helper()
	testhelpers.SetupLogger(t)
	hooks := server.ShutdownHooks{}

	t.Cleanup(func() {
		_ = hooks.Execute(t.Context())
	})

	harness := &APITestHarness{
		WikiMock: testhelpers.SetupMockWikiServer(t),
	}
	hooks.Add("wiki", func(_ context.Context) error {
		harness.WikiMock.Close()
		return nil
	})

	cfg := config.Config{
		Wiki: config.WikiConfig{
			APIURL:    harness.WikiMock.Server.URL,
			LoginPath: "/api/v1/authc",
		},
		Store: config.StoreConfig{
			StaleThresholdMillis: 10000,
			MaximumSize:          1000,
			PrefetchConcurrency:  4,
		},
		Observe: config.ObserveConfig{
			Enabled: false, // Disable observability for tests
		},
	}

	for _, opt := range options {
		opt(&cfg)
	}

	state, err := app.New(cfg, nil)
	require.NoError(t, err)
	harness.State = state

	harness.Server = httptest.NewServer(configureServerRoutes(state))
	hooks.Add("api-server", func(_ context.Context) error {
		harness.Server.Close()
		return nil
	})
	hooks.AddWait("store fetches", state)

	return harness
}

func (h *APITestHarness) Client() *TestClient {
	return &TestClient{
		baseURL: h.Server.URL,
		client:  http.DefaultClient,
	}
}

// APIError represents a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       []byte
	Message    string // parsed from JSON error response if available
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// TestClient provides typed access to the sidecar endpoints for testing.
type TestClient struct {
	baseURL string
	client  *http.Client
}

// Response wraps raw HTTP response for low-level assertions.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Request performs a low-level HTTP request and returns the raw response.
// location, when set, is sent as the presentation layer's current URL.
func (c *TestClient) Request(method, path, location string, body io.Reader) (*Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if location != "" {
		req.Header.Set(currentLocationHeader, location)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
		Headers:    resp.Header,
	}, nil
}

// EntryResult is the decoded entry view returned by the read routes.
type EntryResult struct {
	Entry struct {
		State string          `json:"state"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	} `json:"entry"`
	Dispatched bool `json:"dispatched"`
}

// Entry reads a resource through one of the read routes.
func (c *TestClient) Entry(path string) (*EntryResult, error) {
	resp, err := c.Request(http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result EntryResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", err)
	}
	return &result, nil
}

// Mutate posts a mutation for the page at path.
func (c *TestClient) Mutate(path string, req map[string]string) (*mutationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.Request(http.MethodPost, "/api/pages/"+path, "", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result mutationResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal mutation: %w", err)
	}
	return &result, nil
}

// Session returns the pending login redirect, or "" when there is none.
func (c *TestClient) Session() (string, error) {
	resp, err := c.Request(http.MethodGet, "/api/session", "", nil)
	if err != nil {
		return "", err
	}

	switch resp.StatusCode {
	case http.StatusNoContent:
		return "", nil
	case http.StatusOK:
		var result sessionResponse
		if err := json.Unmarshal(resp.Body, &result); err != nil {
			return "", fmt.Errorf("unmarshal session: %w", err)
		}
		return result.Redirect, nil
	default:
		return "", c.parseError(resp)
	}
}

func (c *TestClient) parseError(resp *Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(resp.Body, &errResp); err == nil {
		apiErr.Message = errResp.Error
	}

	return apiErr
}
