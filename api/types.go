package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ruteri/form-intake-backend/freshness"
	"github.com/ruteri/form-intake-backend/interfaces"
)

// Client-visible messages.
const (
	MsgSubmissionSaved     = "Form submission saved successfully"
	MsgLoginSuccessful     = "Login successful"
	MsgLoggedOut           = "Logged out"
	MsgMethodNotAllowed    = "Method not allowed"
	MsgInvalidCredentials  = "Invalid credentials"
	MsgUnauthorized        = "Unauthorized"
	MsgSubmissionNotFound  = "Submission not found"
	MsgInternalServerError = "Internal server error"
	MsgInvalidRequestBody  = "Invalid request body"
	MsgLoginRequired       = "Sign in by posting credentials to the login endpoint"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IngestResponse is returned for an accepted submission.
type IngestResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// LoginRequest carries operator credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LoginInfoResponse tells a redirected browser how to obtain a session.
type LoginInfoResponse struct {
	Message string `json:"message"`
	Method  string `json:"method"`
	Login   string `json:"login"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// SubmissionsResponse is one page of a submission listing.
type SubmissionsResponse struct {
	Submissions []interfaces.Submission `json:"submissions"`
	TotalCount  int                     `json:"totalCount"`
	Limit       int                     `json:"limit"`
	Offset      int                     `json:"offset"`
}

// EndpointsResponse lists every endpoint as seen by the current operator.
type EndpointsResponse struct {
	Endpoints []interfaces.EndpointSummary `json:"endpoints"`
	Stats     freshness.Overview           `json:"stats"`
}

type EndpointViewResponse struct {
	EndpointName string    `json:"endpoint_name"`
	LastViewedAt time.Time `json:"last_viewed_at"`
}

// SessionResponse describes the authenticated operator.
type SessionResponse struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": message} with the given status.
func WriteError(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message})
}
