// Package admin serves the operator API. Every route except login and logout
// requires a valid session.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/form-intake-backend/analytics"
	"github.com/ruteri/form-intake-backend/api"
	"github.com/ruteri/form-intake-backend/export"
	"github.com/ruteri/form-intake-backend/freshness"
	"github.com/ruteri/form-intake-backend/ingest"
	"github.com/ruteri/form-intake-backend/interfaces"
	"github.com/ruteri/form-intake-backend/metrics"
	"github.com/ruteri/form-intake-backend/session"
)

const maxLoginBodySize = 64 * 1024

// APILoginPath accepts operator credentials.
const APILoginPath = "/api/admin/login"

// Handler processes operator requests.
type Handler struct {
	store         interfaces.Store
	gate          *session.Gate
	tracker       *freshness.Tracker
	engine        *analytics.Engine
	secureCookies bool
	now           func() time.Time
	log           *slog.Logger
}

// NewHandler creates the operator API handler.
//
// Parameters:
//   - store: Submission store
//   - gate: Session gate used for login and for every protected route
//   - tracker: Freshness tracker for endpoint summaries and view markers
//   - engine: Analytics engine
//   - secureCookies: Whether session cookies are marked Secure
//   - log: Structured logger for operational insights
func NewHandler(store interfaces.Store, gate *session.Gate, tracker *freshness.Tracker, engine *analytics.Engine, secureCookies bool, log *slog.Logger) *Handler {
	return &Handler{
		store:         store,
		gate:          gate,
		tracker:       tracker,
		engine:        engine,
		secureCookies: secureCookies,
		now:           time.Now,
		log:           log,
	}
}

// RegisterRoutes configures the router with the operator endpoints:
//   - POST /api/admin/login - Exchange credentials for a session cookie
//   - POST /api/admin/logout - Discard the session
//   - GET /api/admin/session - Current session
//   - GET /api/admin/submissions - Paginated, searchable listing
//   - GET /api/admin/submissions/{id} - One submission
//   - DELETE /api/admin/submissions/{id} - Delete one submission
//   - GET /api/admin/endpoints - Endpoint summaries for the operator
//   - PUT /api/admin/endpoints/{endpoint}/view - Mark an endpoint viewed
//   - GET /api/admin/endpoints/{endpoint}/export - CSV export
//   - GET /api/admin/analytics - Analytics report
//   - GET /admin/export/{endpoint} - CSV download for browsers, redirects to login
//   - GET /admin/login - Tells redirected browsers where to post credentials
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get(session.LoginPath, h.HandleLoginInfo)
	r.Post(APILoginPath, h.HandleLogin)
	r.Post("/api/admin/logout", h.HandleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAPI)

		r.Get("/api/admin/session", h.HandleSession)
		r.Get("/api/admin/submissions", h.HandleListSubmissions)
		r.Get("/api/admin/submissions/{id}", h.HandleGetSubmission)
		r.Delete("/api/admin/submissions/{id}", h.HandleDeleteSubmission)
		r.Get("/api/admin/endpoints", h.HandleListEndpoints)
		r.Put("/api/admin/endpoints/{endpoint}/view", h.HandleMarkViewed)
		r.Get("/api/admin/endpoints/{endpoint}/export", h.HandleExport)
		r.Get("/api/admin/analytics", h.HandleAnalytics)
	})

	r.With(h.gate.RequireInteractive(h.secureCookies)).Get("/admin/export/{endpoint}", h.HandleExport)
}

// HandleLoginInfo serves the page unauthenticated browsers are redirected to.
func (h *Handler) HandleLoginInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, api.LoginInfoResponse{
		Message: api.MsgLoginRequired,
		Method:  http.MethodPost,
		Login:   APILoginPath,
	})
}

// HandleLogin checks credentials and sets the session cookie.
//
// Status codes:
//   - 200 OK: Session issued
//   - 400 Bad Request: Unreadable body
//   - 401 Unauthorized: Credentials do not match
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxLoginBodySize)).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.MsgInvalidRequestBody)
		return
	}

	token, claims, err := h.gate.Issue(r.Context(), req.Username, req.Password)
	if errors.Is(err, session.ErrInvalidCredentials) {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		h.log.Info("Rejected login")
		api.WriteError(w, http.StatusUnauthorized, api.MsgInvalidCredentials)
		return
	}
	if err != nil {
		h.log.Error("Failed to issue session", "err", err)
		api.WriteError(w, http.StatusInternalServerError, api.MsgInternalServerError)
		return
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	h.log.Info("Operator logged in", slog.String("username", claims.Username))

	session.SetSessionCookie(w, token, claims, h.secureCookies)
	h.writeJSON(w, http.StatusOK, api.LoginResponse{Success: true, Message: api.MsgLoginSuccessful})
}

// HandleLogout clears the session cookie and, when revocation is enabled,
// revokes the presented token.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if claims, err := h.gate.Authorize(r.Context(), session.TokenFromRequest(r)); err == nil {
		if err := h.gate.Revoke(r.Context(), claims); err != nil {
			h.log.Error("Failed to revoke session", "err", err)
		}
	}

	session.ClearSessionCookie(w, h.secureCookies)
	h.writeJSON(w, http.StatusOK, api.LoginResponse{Success: true, Message: api.MsgLoggedOut})
}

func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	claims := session.ClaimsFromContext(r.Context())
	resp := api.SessionResponse{Username: claims.Username, Role: claims.Role}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleListSubmissions returns one page of submissions, newest first.
//
// Query parameters:
//   - endpoint: Endpoint name, "all" or empty for every endpoint
//   - limit: Page size, default 100, at most 1000
//   - offset: Number of submissions to skip
//   - q: Case-insensitive search over values, ip address and timestamp
func (h *Handler) HandleListSubmissions(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := interfaces.SubmissionQuery{
		Endpoint: params.Get("endpoint"),
		Search:   params.Get("q"),
		Limit:    intParam(params.Get("limit")),
		Offset:   intParam(params.Get("offset")),
	}.Normalize()

	subs, total, err := h.store.ListSubmissions(r.Context(), query)
	if err != nil {
		h.internalError(w, "Failed to list submissions", err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.SubmissionsResponse{
		Submissions: subs,
		TotalCount:  total,
		Limit:       query.Limit,
		Offset:      query.Offset,
	})
}

func (h *Handler) HandleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.store.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, interfaces.ErrSubmissionNotFound) {
		api.WriteError(w, http.StatusNotFound, api.MsgSubmissionNotFound)
		return
	}
	if err != nil {
		h.internalError(w, "Failed to get submission", err)
		return
	}
	h.writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) HandleDeleteSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.store.DeleteSubmission(r.Context(), id)
	if errors.Is(err, interfaces.ErrSubmissionNotFound) {
		api.WriteError(w, http.StatusNotFound, api.MsgSubmissionNotFound)
		return
	}
	if err != nil {
		h.internalError(w, "Failed to delete submission", err)
		return
	}

	h.log.Info("Deleted submission",
		slog.String("id", id),
		slog.String("username", session.ClaimsFromContext(r.Context()).Username))
	h.writeJSON(w, http.StatusOK, api.SuccessResponse{Success: true})
}

// HandleListEndpoints returns every endpoint with the operator's freshness markers.
func (h *Handler) HandleListEndpoints(w http.ResponseWriter, r *http.Request) {
	claims := session.ClaimsFromContext(r.Context())
	summaries, err := h.tracker.Summarize(r.Context(), claims.Username)
	if err != nil {
		h.internalError(w, "Failed to summarize endpoints", err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.EndpointsResponse{
		Endpoints: summaries,
		Stats:     freshness.SummarizeOverview(summaries),
	})
}

// HandleMarkViewed records that the operator opened the endpoint's submissions.
func (h *Handler) HandleMarkViewed(w http.ResponseWriter, r *http.Request) {
	endpointName := chi.URLParam(r, "endpoint")
	if err := ingest.ValidateEndpointName(endpointName); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	claims := session.ClaimsFromContext(r.Context())
	at, err := h.tracker.MarkViewed(r.Context(), claims.Username, endpointName)
	if err != nil {
		h.internalError(w, "Failed to mark endpoint viewed", err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.EndpointViewResponse{EndpointName: endpointName, LastViewedAt: at})
}

// HandleExport streams every submission of an endpoint as CSV.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	endpointName := chi.URLParam(r, "endpoint")
	if err := ingest.ValidateEndpointName(endpointName); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	subs, err := h.allSubmissions(r.Context(), endpointName)
	if err != nil {
		h.internalError(w, "Failed to export submissions", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(endpointName, h.now())))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, export.SubmissionsCSV(subs))
}

// HandleAnalytics returns the analytics report for ?days= (default 30).
func (h *Handler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	days := analytics.DefaultWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, analytics.ErrInvalidWindow.Error())
			return
		}
		days = parsed
	}
	if err := analytics.ValidateWindow(days); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.engine.Aggregate(r.Context(), days)
	if err != nil {
		h.internalError(w, "Failed to aggregate analytics", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// allSubmissions pages through the store until every submission is read.
func (h *Handler) allSubmissions(ctx context.Context, endpointName string) ([]interfaces.Submission, error) {
	var all []interfaces.Submission
	query := interfaces.SubmissionQuery{Endpoint: endpointName, Limit: interfaces.MaxQueryLimit}
	for {
		page, total, err := h.store.ListSubmissions(ctx, query)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		query.Offset += len(page)
		if len(page) == 0 || query.Offset >= total {
			return all, nil
		}
	}
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.log.Error(msg, "err", err)
	api.WriteError(w, http.StatusInternalServerError, api.MsgInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	if err := api.WriteJSON(w, status, v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// intParam parses a query parameter, treating anything unparsable as unset.
func intParam(raw string) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}
