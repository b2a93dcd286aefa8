package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/ruteri/form-intake-backend/analytics"
	"github.com/ruteri/form-intake-backend/api"
	"github.com/ruteri/form-intake-backend/interfaces"
)

// AdminClient provides methods for interacting with the operator API.
// The session cookie obtained by Login is kept in the client's cookie jar.
type AdminClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAdminClient creates a new admin client for interacting with the operator API.
//
// Parameters:
//   - baseURL: The base URL of the service (e.g., "http://localhost:8080")
//   - timeout: Request timeout duration (optional, default 30 seconds)
//
// Returns:
//   - Configured AdminClient instance
func NewAdminClient(baseURL string, timeout ...time.Duration) (*AdminClient, error) {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &AdminClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: clientTimeout,
			Jar:     jar,
			// Interactive routes redirect to the login page; surface that instead.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Login exchanges credentials for a session cookie.
func (c *AdminClient) Login(ctx context.Context, username, password string) error {
	var result api.LoginResponse
	return c.do(ctx, http.MethodPost, "/api/admin/login", api.LoginRequest{Username: username, Password: password}, &result)
}

// Logout discards the session.
func (c *AdminClient) Logout(ctx context.Context) error {
	var result api.LoginResponse
	return c.do(ctx, http.MethodPost, "/api/admin/logout", nil, &result)
}

// Session returns the current session.
func (c *AdminClient) Session(ctx context.Context) (*api.SessionResponse, error) {
	var result api.SessionResponse
	if err := c.do(ctx, http.MethodGet, "/api/admin/session", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListSubmissions fetches one page of submissions.
func (c *AdminClient) ListSubmissions(ctx context.Context, query interfaces.SubmissionQuery) (*api.SubmissionsResponse, error) {
	params := url.Values{}
	if query.Endpoint != "" {
		params.Set("endpoint", query.Endpoint)
	}
	if query.Search != "" {
		params.Set("q", query.Search)
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		params.Set("offset", strconv.Itoa(query.Offset))
	}

	path := "/api/admin/submissions"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var result api.SubmissionsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSubmission fetches one submission.
func (c *AdminClient) GetSubmission(ctx context.Context, id string) (*interfaces.Submission, error) {
	var result interfaces.Submission
	if err := c.do(ctx, http.MethodGet, "/api/admin/submissions/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteSubmission deletes one submission.
func (c *AdminClient) DeleteSubmission(ctx context.Context, id string) error {
	var result api.SuccessResponse
	return c.do(ctx, http.MethodDelete, "/api/admin/submissions/"+url.PathEscape(id), nil, &result)
}

// Endpoints fetches every endpoint summary for the logged in operator.
func (c *AdminClient) Endpoints(ctx context.Context) (*api.EndpointsResponse, error) {
	var result api.EndpointsResponse
	if err := c.do(ctx, http.MethodGet, "/api/admin/endpoints", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkViewed records that the operator looked at the endpoint.
func (c *AdminClient) MarkViewed(ctx context.Context, endpointName string) (*api.EndpointViewResponse, error) {
	var result api.EndpointViewResponse
	path := fmt.Sprintf("/api/admin/endpoints/%s/view", url.PathEscape(endpointName))
	if err := c.do(ctx, http.MethodPut, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExportCSV downloads the CSV export of an endpoint.
func (c *AdminClient) ExportCSV(ctx context.Context, endpointName string) (string, error) {
	path := fmt.Sprintf("/api/admin/endpoints/%s/export", url.PathEscape(endpointName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("could not initialize request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("export request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newAPIError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("could not read export: %w", err)
	}
	return string(body), nil
}

// Analytics fetches the report for the last days days.
func (c *AdminClient) Analytics(ctx context.Context, days int) (*analytics.Report, error) {
	var result analytics.Report
	if err := c.do(ctx, http.MethodGet, "/api/admin/analytics?days="+strconv.Itoa(days), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *AdminClient) do(ctx context.Context, method, path string, reqBody any, result any) error {
	var body io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp)
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}
