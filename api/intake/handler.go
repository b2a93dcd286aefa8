// Package intake serves the open ingestion endpoint. Requests never pass
// through the session gate.
package intake

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/form-intake-backend/api"
	"github.com/ruteri/form-intake-backend/ingest"
	"github.com/ruteri/form-intake-backend/interfaces"
)

// Handler accepts submissions for any endpoint name.
type Handler struct {
	svc *ingest.Service
	log *slog.Logger
}

// NewHandler creates the ingestion handler.
//
// Parameters:
//   - svc: Ingestion service that validates and persists submissions
//   - log: Structured logger for operational insights
func NewHandler(svc *ingest.Service, log *slog.Logger) *Handler {
	return &Handler{
		svc: svc,
		log: log,
	}
}

// RegisterRoutes configures the router with the ingestion endpoints:
//   - POST /{endpoint} - Store a submission
//   - POST /api/{endpoint} - Same, under the API prefix
//
// Every other method on these paths is answered with 405.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.HandleFunc("/{endpoint}", h.HandleSubmission)
	r.HandleFunc("/api/{endpoint}", h.HandleSubmission)
}

// HandleSubmission validates and stores one submission.
//
// Status codes:
//   - 201 Created: Submission stored
//   - 400 Bad Request: Invalid endpoint name or JSON payload
//   - 405 Method Not Allowed: Any method other than POST
//   - 413 Request Entity Too Large: Body over 1 MiB
//   - 500 Internal Server Error: Storage failure
func (h *Handler) HandleSubmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		api.WriteError(w, http.StatusMethodNotAllowed, api.MsgMethodNotAllowed)
		return
	}

	endpointName := chi.URLParam(r, "endpoint")
	if err := ingest.ValidateEndpointName(endpointName); err != nil {
		h.writeRejection(w, err)
		return
	}

	// Read one byte past the limit so oversize bodies are detected without
	// buffering them completely.
	body, err := io.ReadAll(io.LimitReader(r.Body, interfaces.MaxBodySize+1))
	if err != nil {
		h.log.Warn("Failed to read request body", "err", err)
		api.WriteError(w, http.StatusBadRequest, api.MsgInvalidRequestBody)
		return
	}

	sub, err := h.svc.Ingest(r.Context(), endpointName, body, r.Header)
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	if err := api.WriteJSON(w, http.StatusCreated, api.IngestResponse{
		Success: true,
		ID:      sub.ID,
		Message: api.MsgSubmissionSaved,
	}); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeRejection(w http.ResponseWriter, err error) {
	if rejection, ok := ingest.AsRejection(err); ok {
		api.WriteError(w, rejection.StatusCode(), rejection.Message)
		return
	}
	if !errors.Is(err, interfaces.ErrStorage) {
		h.log.Error("Unexpected ingestion failure", "err", err)
	}
	api.WriteError(w, http.StatusInternalServerError, api.MsgInternalServerError)
}
