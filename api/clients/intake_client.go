package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ruteri/form-intake-backend/api"
)

// IntakeClient posts submissions to the ingestion endpoint.
type IntakeClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewIntakeClient creates a client for the service at baseURL.
func NewIntakeClient(baseURL string, timeout ...time.Duration) *IntakeClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}
	return &IntakeClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

// Submit posts data as JSON to the named endpoint.
//
// Parameters:
//   - ctx: Request context
//   - endpointName: Logical form name
//   - data: Any value that encodes to a JSON object
//   - headers: Optional extra request headers (e.g. User-Agent)
//
// Returns:
//   - Ingestion response with the new submission id
//   - *APIError if the submission is rejected
func (c *IntakeClient) Submit(ctx context.Context, endpointName string, data any, headers http.Header) (*api.IngestResponse, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}
	return c.SubmitRaw(ctx, endpointName, body, headers)
}

// SubmitRaw posts body unchanged.
func (c *IntakeClient) SubmitRaw(ctx context.Context, endpointName string, body []byte, headers http.Header) (*api.IngestResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(endpointName)), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	for k, values := range headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, newAPIError(resp)
	}

	var result api.IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse submit response: %w", err)
	}
	return &result, nil
}
