package interfaces

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Limits applied to untrusted ingestion input.
const (
	// MaxEndpointNameLength is the maximum endpoint name length in characters.
	MaxEndpointNameLength = 255

	// MaxBodySize is the maximum accepted submission body size in bytes (1MiB).
	MaxBodySize = 1024 * 1024

	// MaxDataKeys is the maximum number of top-level keys in a submission payload.
	MaxDataKeys = 30

	// MaxIPLength fits the textual form of an IPv6 address.
	MaxIPLength = 45

	// Unknown is recorded for any caller metadata that could not be determined.
	Unknown = "Unknown"
)

// Keys of BrowserInfo populated at ingestion.
const (
	BrowserInfoUserAgent      = "userAgent"
	BrowserInfoAcceptLanguage = "acceptLanguage"
	BrowserInfoReferer        = "referer"
	BrowserInfoIPAddress      = "ipAddress"
	BrowserInfoTimestamp      = "timestamp"
	BrowserInfoCountry        = "country"
	BrowserInfoPlatform       = "platform"
	BrowserInfoMobile         = "mobile"
)

// BrowserInfo captures caller context derived from request headers.
// It is never populated from the caller's JSON body.
type BrowserInfo map[string]any

// Get returns the value stored under key as a string, or "" if absent.
// Non-string values are formatted with their JSON representation.
func (b BrowserInfo) Get(key string) string {
	v, ok := b[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(encoded)
	}
}

// NewSubmission is a validated submission ready to be persisted.
// Id and creation time are assigned by the store.
type NewSubmission struct {
	EndpointName string
	Data         json.RawMessage
	BrowserInfo  BrowserInfo
	IPAddress    string
}

// Submission is one accepted payload as stored.
type Submission struct {
	ID           string          `json:"id"`
	EndpointName string          `json:"endpoint_name"`
	Data         json.RawMessage `json:"data"`
	BrowserInfo  BrowserInfo     `json:"browser_info"`
	IPAddress    string          `json:"ip_address"`
	CreatedAt    time.Time       `json:"created_at"`
}

// DataMap decodes the submission payload into a map.
// Numbers are kept as json.Number so no precision is lost.
func (s *Submission) DataMap() (map[string]any, error) {
	out := map[string]any{}
	if len(s.Data) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(s.Data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode submission data: %w", err)
	}
	return out, nil
}

// EndpointStat is the per-endpoint grouping returned by the store.
type EndpointStat struct {
	EndpointName       string
	Count              int
	LatestSubmissionAt time.Time
}

// EndpointView is one operator's last-viewed marker for an endpoint.
type EndpointView struct {
	EndpointName string    `json:"endpoint_name"`
	Username     string    `json:"username"`
	LastViewedAt time.Time `json:"last_viewed_at"`
}

// EndpointSummary describes an endpoint from the point of view of one operator.
type EndpointSummary struct {
	EndpointName       string     `json:"endpoint_name"`
	Count              int        `json:"count"`
	LatestSubmissionAt *time.Time `json:"latest_submission_at"`
	LastViewedAt       *time.Time `json:"last_viewed_at"`
	HasUnseen          bool       `json:"has_unseen"`
}
