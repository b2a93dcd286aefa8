package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ruteri/form-intake-backend/interfaces"
	"github.com/ruteri/form-intake-backend/metrics"
)

// Service validates and persists submissions.
type Service struct {
	validator *Validator
	store     interfaces.SubmissionStore
	log       *slog.Logger
}

// NewService creates an ingestion service backed by store.
func NewService(validator *Validator, store interfaces.SubmissionStore, log *slog.Logger) *Service {
	return &Service{
		validator: validator,
		store:     store,
		log:       log,
	}
}

// Ingest validates the request and stores it.
// Rejections are returned as *RejectionError before the store is touched;
// store failures are returned wrapping interfaces.ErrStorage.
func (s *Service) Ingest(ctx context.Context, endpointName string, body []byte, headers http.Header) (*interfaces.Submission, error) {
	sub, err := s.validator.Validate(endpointName, body, headers)
	if err != nil {
		if rejection, ok := AsRejection(err); ok {
			metrics.SubmissionsRejected.WithLabelValues(string(rejection.Reason)).Inc()
			s.log.Debug("Rejected submission",
				slog.String("endpoint", truncate(endpointName, 64)),
				slog.String("reason", string(rejection.Reason)))
		}
		return nil, err
	}

	stored, err := s.store.CreateSubmission(ctx, sub)
	if err != nil {
		s.log.Error("Failed to store submission", "err", err, slog.String("endpoint", endpointName))
		if !errors.Is(err, interfaces.ErrStorage) {
			err = interfaces.StorageError("create submission", err)
		}
		return nil, err
	}

	metrics.SubmissionsAccepted.Inc()
	s.log.Info("Accepted submission",
		slog.String("id", stored.ID),
		slog.String("endpoint", endpointName),
		slog.String("ip", stored.IPAddress))
	return stored, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
