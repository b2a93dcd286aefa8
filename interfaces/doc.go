// Package interfaces defines the domain types and contracts of the form
// intake service, separating them from their implementations.
//
// # Domain Types
//
// Submission: One accepted JSON payload with its server-assigned id, creation
// time, client ip address and header-derived BrowserInfo.
//
// EndpointView: One operator's last-viewed marker for an endpoint, keyed by the
// (endpoint name, username) pair.
//
// EndpointSummary: An endpoint as seen by one operator, including whether it
// received submissions since the operator last looked.
//
// # Storage Interfaces
//
// SubmissionStore: Creates, reads, deletes and lists submissions, and provides
// the window and per-endpoint groupings used by analytics and freshness.
//
// EndpointViewStore: Reads and atomically upserts last-viewed markers.
//
// Store: Both of the above plus Ping and Close. Backends are selected by a
// StoreLocation URI (memory://, sqlite://, postgres://).
//
// # Errors
//
// ErrSubmissionNotFound is returned for unknown ids. Backend failures wrap
// ErrStorage via StorageError so callers can tell them apart from client errors
// with errors.Is.
package interfaces
