/*
Package clients provides client libraries for interacting with the form intake API.

# Client Types

1. IntakeClient - Posts submissions to the open ingestion endpoint
2. AdminClient - Operator API client holding the session cookie

# AdminClient Features

AdminClient keeps the session cookie in a cookie jar after Login, so every
subsequent call is authenticated the same way a browser would be:

- Login / Logout / Session - Session management
- ListSubmissions / GetSubmission / DeleteSubmission - Submission management
- Endpoints / MarkViewed - Endpoint summaries and freshness markers
- ExportCSV - CSV export of one endpoint
- Analytics - Analytics report for a day window

# Errors

Non-success responses are returned as *APIError carrying the HTTP status and
the server's error message.
*/
package clients
