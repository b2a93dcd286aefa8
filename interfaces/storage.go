package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultQueryLimit is used when a listing does not specify a page size.
	DefaultQueryLimit = 100

	// MaxQueryLimit caps the page size of any listing.
	MaxQueryLimit = 1000

	// AllEndpoints selects submissions of every endpoint in a SubmissionQuery.
	AllEndpoints = "all"
)

var (
	// ErrSubmissionNotFound is returned when a submission id does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrStorage marks failures of the persistence layer itself.
	// Callers surface it as a generic internal error.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidLocationURI is returned when a store location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid store location URI")
)

// StorageError wraps a driver error so that errors.Is(err, ErrStorage) holds
// while the original cause stays available for logging.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// SubmissionQuery selects a page of submissions, newest first.
type SubmissionQuery struct {
	// Endpoint restricts results to one endpoint; "" or "all" selects every endpoint.
	Endpoint string

	// Search is a case-insensitive substring matched against data values,
	// browser info values, the ip address and the creation timestamp.
	Search string

	Limit  int
	Offset int
}

// Normalize applies the default and maximum page size and clamps the offset.
func (q SubmissionQuery) Normalize() SubmissionQuery {
	if q.Endpoint == AllEndpoints {
		q.Endpoint = ""
	}
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Limit > MaxQueryLimit {
		q.Limit = MaxQueryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// Matches reports whether a submission satisfies the endpoint and search criteria.
func (q SubmissionQuery) Matches(s *Submission) bool {
	if q.Endpoint != "" && q.Endpoint != AllEndpoints && s.EndpointName != q.Endpoint {
		return false
	}
	if q.Search == "" {
		return true
	}
	needle := strings.ToLower(q.Search)

	if data, err := s.DataMap(); err == nil {
		for _, v := range data {
			if strings.Contains(strings.ToLower(fmt.Sprint(v)), needle) {
				return true
			}
		}
	}
	for key := range s.BrowserInfo {
		if strings.Contains(strings.ToLower(s.BrowserInfo.Get(key)), needle) {
			return true
		}
	}
	if strings.Contains(strings.ToLower(s.IPAddress), needle) {
		return true
	}
	return strings.Contains(strings.ToLower(s.CreatedAt.UTC().Format(time.RFC3339)), needle)
}

// SubmissionStore persists submissions.
type SubmissionStore interface {
	// CreateSubmission stores a validated submission, assigning its id and creation time.
	CreateSubmission(ctx context.Context, sub *NewSubmission) (*Submission, error)

	// GetSubmission returns ErrSubmissionNotFound if the id does not exist.
	GetSubmission(ctx context.Context, id string) (*Submission, error)

	// DeleteSubmission returns ErrSubmissionNotFound if the id does not exist.
	DeleteSubmission(ctx context.Context, id string) error

	// ListSubmissions returns one page of matching submissions and the total match count.
	ListSubmissions(ctx context.Context, query SubmissionQuery) ([]Submission, int, error)

	// SubmissionsSince returns every submission created at or after since, oldest first.
	SubmissionsSince(ctx context.Context, since time.Time) ([]Submission, error)

	// EndpointStats groups submissions by endpoint name.
	EndpointStats(ctx context.Context) ([]EndpointStat, error)
}

// EndpointViewStore persists per-operator last-viewed markers.
type EndpointViewStore interface {
	// EndpointViews returns the operator's markers keyed by endpoint name.
	EndpointViews(ctx context.Context, username string) (map[string]time.Time, error)

	// UpsertEndpointView creates or overwrites the marker in a single atomic operation.
	// Concurrent views by the same operator are last write wins.
	UpsertEndpointView(ctx context.Context, endpointName, username string, at time.Time) error
}

// Store is the full data-access contract used by the service.
type Store interface {
	SubmissionStore
	EndpointViewStore

	// Ping checks if the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

// StoreLocation represents the URI of a store backend.
type StoreLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
}

// NewStoreLocation creates a store location from a URI string with validation.
func NewStoreLocation(uri string) (StoreLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StoreLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "memory", "sqlite", "postgres", "postgresql":
	default:
		return StoreLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StoreLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
	}, nil
}

// String returns the original URI string.
func (loc StoreLocation) String() string {
	return loc.Raw
}

// IsMemory checks if this is an in-process store location.
func (loc StoreLocation) IsMemory() bool {
	return loc.Scheme == "memory"
}

// IsSQLite checks if this is a SQLite store location.
func (loc StoreLocation) IsSQLite() bool {
	return loc.Scheme == "sqlite"
}

// IsPostgres checks if this is a PostgreSQL store location.
func (loc StoreLocation) IsPostgres() bool {
	return loc.Scheme == "postgres" || loc.Scheme == "postgresql"
}
