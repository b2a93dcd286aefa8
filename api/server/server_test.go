package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ruteri/form-intake-backend/analytics"
	"github.com/ruteri/form-intake-backend/api"
	"github.com/ruteri/form-intake-backend/api/admin"
	"github.com/ruteri/form-intake-backend/api/clients"
	"github.com/ruteri/form-intake-backend/api/intake"
	"github.com/ruteri/form-intake-backend/freshness"
	"github.com/ruteri/form-intake-backend/ingest"
	"github.com/ruteri/form-intake-backend/interfaces"
	"github.com/ruteri/form-intake-backend/session"
	"github.com/ruteri/form-intake-backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newTestServer(t *testing.T, cfg *api.HTTPServerConfig) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Log = logger

	store := storage.NewMemoryStore(logger)
	gate := session.NewGate(session.Config{
		Secret:   []byte("test-secret"),
		Username: "admin",
		Password: "password",
	}, logger)

	intakeHandler := intake.NewHandler(ingest.NewService(ingest.NewValidator(), store, logger), logger)
	adminHandler := admin.NewHandler(store, gate, freshness.NewTracker(store, logger), analytics.NewEngine(store, logger), false, logger)

	srv, err := New(cfg, store, intakeHandler, adminHandler)
	require.NoError(t, err)
	t.Cleanup(func() {
		if srv.limiter != nil {
			srv.limiter.Stop()
		}
	})
	return srv
}

func TestEndToEnd_SubmitListAnalyze(t *testing.T) {
	srv := newTestServer(t, &api.HTTPServerConfig{DrainDuration: time.Millisecond})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx := context.Background()

	intakeClient := clients.NewIntakeClient(ts.URL, 5*time.Second)
	resp, err := intakeClient.Submit(ctx, "contact",
		map[string]string{"name": "Jane", "email": "jane@x.com"},
		http.Header{"User-Agent": {chromeUA}})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, api.MsgSubmissionSaved, resp.Message)
	assert.NotEmpty(t, resp.ID)

	adminClient, err := clients.NewAdminClient(ts.URL, 5*time.Second)
	require.NoError(t, err)

	_, err = adminClient.ListSubmissions(ctx, interfaces.SubmissionQuery{})
	assert.True(t, clients.IsUnauthorized(err), "expected 401 before login, got %v", err)

	err = adminClient.Login(ctx, "admin", "wrong")
	assert.True(t, clients.IsUnauthorized(err))
	require.NoError(t, adminClient.Login(ctx, "admin", "password"))

	page, err := adminClient.ListSubmissions(ctx, interfaces.SubmissionQuery{Endpoint: "contact"})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)
	require.Len(t, page.Submissions, 1)

	sub := page.Submissions[0]
	assert.Equal(t, resp.ID, sub.ID)
	data, err := sub.DataMap()
	require.NoError(t, err)
	assert.Equal(t, "Jane", data["name"])
	assert.Equal(t, chromeUA, sub.BrowserInfo.Get(interfaces.BrowserInfoUserAgent))

	report, err := adminClient.Analytics(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, report.TimeSeries, 2)
	assert.Equal(t, 1, report.Summary.TotalSubmissions)
	assert.Contains(t, report.Browsers, analytics.BrowserCount{Name: analytics.BrowserChrome, Count: 1})
	assert.Contains(t, report.Devices, analytics.DeviceCount{Type: analytics.DeviceDesktop, Count: 1})
	assert.Equal(t, []analytics.EndpointCount{{Endpoint: "contact", Count: 1}}, report.Endpoints)

	endpoints, err := adminClient.Endpoints(ctx)
	require.NoError(t, err)
	require.Len(t, endpoints.Endpoints, 1)
	assert.True(t, endpoints.Endpoints[0].HasUnseen)

	_, err = adminClient.MarkViewed(ctx, "contact")
	require.NoError(t, err)
	endpoints, err = adminClient.Endpoints(ctx)
	require.NoError(t, err)
	assert.False(t, endpoints.Endpoints[0].HasUnseen)

	csv, err := adminClient.ExportCSV(ctx, "contact")
	require.NoError(t, err)
	assert.Contains(t, csv, `"jane@x.com"`)

	require.NoError(t, adminClient.DeleteSubmission(ctx, resp.ID))
	_, err = adminClient.GetSubmission(ctx, resp.ID)
	assert.True(t, clients.IsNotFound(err))

	require.NoError(t, adminClient.Logout(ctx))
	_, err = adminClient.Session(ctx)
	assert.True(t, clients.IsUnauthorized(err))
}

func TestIngestRejections(t *testing.T) {
	srv := newTestServer(t, &api.HTTPServerConfig{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	intakeClient := clients.NewIntakeClient(ts.URL, 5*time.Second)
	_, err := intakeClient.SubmitRaw(context.Background(), "contact", []byte(`[1,2]`), nil)
	require.Error(t, err)

	apiErr, ok := err.(*clients.APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Data must be a JSON object", apiErr.Message)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, &api.HTTPServerConfig{})
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/contact", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization, X-Requested-With", rr.Header().Get("Access-Control-Allow-Headers"))

	req = httptest.NewRequest(http.MethodGet, "/contact", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndDrain(t *testing.T) {
	srv := newTestServer(t, &api.HTTPServerConfig{DrainDuration: time.Millisecond})
	handler := srv.Handler()

	get := func(path string) (int, string) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		var body map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		return rr.Code, body["status"]
	}

	code, status := get("/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", status)

	code, status = get("/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", status)

	_, status = get("/drain")
	assert.Equal(t, "draining", status)
	_, status = get("/drain")
	assert.Equal(t, "already draining", status)

	code, _ = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	_, status = get("/undrain")
	assert.Equal(t, "ready", status)
	code, _ = get("/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestIngestRateLimit(t *testing.T) {
	srv := newTestServer(t, &api.HTTPServerConfig{IngestRateLimit: 0.001, IngestRateBurst: 2})
	handler := srv.Handler()

	submit := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(`{"name":"Jane"}`))
		req.RemoteAddr = remoteAddr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusCreated, submit("203.0.113.7:40000").Code)
	assert.Equal(t, http.StatusCreated, submit("203.0.113.7:40001").Code)

	limited := submit("203.0.113.7:40002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusCreated, submit("198.51.100.4:40000").Code)

	// Operator routes are not limited.
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/session", nil)
	req.RemoteAddr = "203.0.113.7:40003"
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestIngestRateLimit_IgnoresSpoofedForwardedFor(t *testing.T) {
	srv := newTestServer(t, &api.HTTPServerConfig{IngestRateLimit: 0.001, IngestRateBurst: 1})
	handler := srv.Handler()

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(`{"name":"Jane"}`))
		req.RemoteAddr = "192.0.2.50:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.9.8.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.7.6.%d", i))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{
		http.StatusCreated,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
	}, codes)
}

func TestIngestRateLimit_TrustedProxy(t *testing.T) {
	srv := newTestServer(t, &api.HTTPServerConfig{
		IngestRateLimit: 0.001,
		IngestRateBurst: 1,
		TrustedProxies:  []string{"10.0.0.0/8"},
	})
	handler := srv.Handler()

	submit := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(`{"name":"Jane"}`))
		req.RemoteAddr = "10.1.2.3:40000"
		req.Header.Set("X-Forwarded-For", client)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	// Clients behind the same proxy get separate buckets.
	assert.Equal(t, http.StatusCreated, submit("203.0.113.7"))
	assert.Equal(t, http.StatusCreated, submit("198.51.100.4"))
	assert.Equal(t, http.StatusTooManyRequests, submit("203.0.113.7"))
}

func TestNew_InvalidTrustedProxy(t *testing.T) {
	cfg := &api.HTTPServerConfig{
		ListenAddr:      "127.0.0.1:0",
		Log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		IngestRateLimit: 1,
		IngestRateBurst: 1,
		TrustedProxies:  []string{"not-an-address"},
	}
	_, err := New(cfg, nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-an-address")
}

func TestClientKey(t *testing.T) {
	rl := NewIPRateLimiter(1, 1, nil)
	t.Cleanup(rl.Stop)

	req := httptest.NewRequest(http.MethodPost, "/contact", nil)
	req.RemoteAddr = "192.0.2.1:51234"
	assert.Equal(t, "192.0.2.1", rl.clientKey(req))

	// Forwarding headers from an untrusted peer are ignored.
	req.Header.Set("X-Real-IP", "198.51.100.9")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "192.0.2.1", rl.clientKey(req))

	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", rl.clientKey(req))
}

func TestClientKey_TrustedProxy(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", "::ffff:172.16.0.1"})
	require.NoError(t, err)
	rl := NewIPRateLimiter(1, 1, trusted)
	t.Cleanup(rl.Stop)

	req := httptest.NewRequest(http.MethodPost, "/contact", nil)
	req.RemoteAddr = "192.0.2.1:51234"
	assert.Equal(t, "192.0.2.1", rl.clientKey(req))

	req.Header.Set("X-Real-IP", "198.51.100.9")
	assert.Equal(t, "198.51.100.9", rl.clientKey(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", rl.clientKey(req))

	req.RemoteAddr = "10.200.0.5:8080"
	assert.Equal(t, "203.0.113.7", rl.clientKey(req))

	req.RemoteAddr = "172.16.0.1:8080"
	assert.Equal(t, "203.0.113.7", rl.clientKey(req))

	req.RemoteAddr = "192.0.2.2:51234"
	assert.Equal(t, "192.0.2.2", rl.clientKey(req))
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{"10.0.0.1/8", "2001:db8::1", ""})
	require.NoError(t, err)
	require.Len(t, prefixes, 2)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "2001:db8::1/128", prefixes[1].String())

	_, err = ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
}
