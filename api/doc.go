/*
Package api provides the HTTP surface of the form intake service.

This package is organized into the following subpackages:

1. intake - The open ingestion endpoint that accepts form submissions
2. admin - The session-gated operator API (submissions, endpoints, analytics, export)
3. server - HTTP server configuration, middleware and lifecycle management
4. clients - Client libraries for API interaction

The ingestion and operator surfaces are separate handlers mounted side by side.
They share no authorization code path: intake never consults the session gate,
and every admin route is wrapped by it.

# Key Functionality

- Validation and storage of arbitrary JSON form submissions
- Cookie-based operator sessions with optional revocation
- Paginated and searchable submission listings
- Per-operator "new since last view" tracking
- Analytics reports and CSV export
- Health monitoring, draining and graceful shutdown

# Response Conventions

Successful responses are JSON documents described by the types in this package.
Failures are JSON objects of the form {"error": "..."} with no internal detail.
*/
package api
