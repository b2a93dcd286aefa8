// Package ingest validates untrusted form submissions and turns them into
// canonical records ready to be stored.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ruteri/form-intake-backend/interfaces"
)

// Reason identifies why a submission was rejected.
type Reason string

const (
	ReasonEndpointName  Reason = "endpoint_name"
	ReasonBodyTooLarge  Reason = "body_too_large"
	ReasonMalformedJSON Reason = "malformed_json"
	ReasonNotObject     Reason = "not_object"
	ReasonTooManyKeys   Reason = "too_many_keys"
)

// RejectionError is returned for input that fails validation.
// Its message is safe to show to the caller and never contains the payload.
type RejectionError struct {
	Reason  Reason
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// StatusCode maps the rejection to an HTTP status.
func (e *RejectionError) StatusCode() int {
	if e.Reason == ReasonBodyTooLarge {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func reject(reason Reason, message string) *RejectionError {
	return &RejectionError{Reason: reason, Message: message}
}

// AsRejection extracts a RejectionError from err, if any.
func AsRejection(err error) (*RejectionError, bool) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}

// Validator checks submissions against the ingestion limits.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// WithClock replaces the clock used for the browser info timestamp.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate checks an ingestion request and builds the record to persist.
//
// Checks run in order: endpoint name, body size, JSON syntax, object shape,
// key count. The first failure is returned as a *RejectionError.
func (v *Validator) Validate(endpointName string, body []byte, headers http.Header) (*interfaces.NewSubmission, error) {
	if err := ValidateEndpointName(endpointName); err != nil {
		return nil, err
	}

	if len(body) > interfaces.MaxBodySize {
		return nil, reject(ReasonBodyTooLarge, "Request body too large")
	}

	data, err := parseObject(body)
	if err != nil {
		return nil, err
	}

	browserInfo := BrowserInfoFromHeaders(headers, v.now())
	return &interfaces.NewSubmission{
		EndpointName: endpointName,
		Data:         data,
		BrowserInfo:  browserInfo,
		IPAddress:    browserInfo.Get(interfaces.BrowserInfoIPAddress),
	}, nil
}

// ValidateEndpointName rejects empty names and names over the length limit.
// The limit counts Unicode code points.
func ValidateEndpointName(endpointName string) error {
	if endpointName == "" {
		return reject(ReasonEndpointName, "Endpoint name is required")
	}
	if utf8.RuneCountInString(endpointName) > interfaces.MaxEndpointNameLength {
		return reject(ReasonEndpointName, "Endpoint name too long")
	}
	if !utf8.ValidString(endpointName) {
		return reject(ReasonEndpointName, "Invalid endpoint name")
	}
	return nil
}

// parseObject requires a single JSON object with at most MaxDataKeys keys and
// returns it compacted.
func parseObject(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	// json.Valid does not check the encoding inside strings.
	if len(trimmed) == 0 || !utf8.Valid(trimmed) || !json.Valid(trimmed) {
		return nil, reject(ReasonMalformedJSON, "Invalid JSON data")
	}
	if trimmed[0] != '{' {
		return nil, reject(ReasonNotObject, "Data must be a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, reject(ReasonMalformedJSON, "Invalid JSON data")
	}
	if len(fields) > interfaces.MaxDataKeys {
		return nil, reject(ReasonTooManyKeys, fmt.Sprintf("Too many fields (maximum %d)", interfaces.MaxDataKeys))
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, reject(ReasonMalformedJSON, "Invalid JSON data")
	}
	return compact.Bytes(), nil
}

// ResolveIP returns the caller address from proxy headers, or "Unknown".
// The first X-Forwarded-For entry wins over X-Real-IP. Values longer than
// MaxIPLength bytes are treated as absent.
func ResolveIP(headers http.Header) string {
	ip := ""
	if forwarded := headers.Get("X-Forwarded-For"); forwarded != "" {
		ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if ip == "" {
		ip = strings.TrimSpace(headers.Get("X-Real-IP"))
	}
	if ip == "" || len(ip) > interfaces.MaxIPLength {
		return interfaces.Unknown
	}
	return ip
}

// BrowserInfoFromHeaders captures caller context from request headers only.
func BrowserInfoFromHeaders(headers http.Header, at time.Time) interfaces.BrowserInfo {
	info := interfaces.BrowserInfo{
		interfaces.BrowserInfoUserAgent:      headerOrUnknown(headers, "User-Agent"),
		interfaces.BrowserInfoAcceptLanguage: headerOrUnknown(headers, "Accept-Language"),
		interfaces.BrowserInfoReferer:        headerOrUnknown(headers, "Referer"),
		interfaces.BrowserInfoIPAddress:      ResolveIP(headers),
		interfaces.BrowserInfoTimestamp:      at.UTC().Format(time.RFC3339Nano),
	}

	for _, name := range []string{"CF-IPCountry", "X-Vercel-IP-Country", "X-Country-Code"} {
		if country := strings.TrimSpace(headers.Get(name)); country != "" {
			info[interfaces.BrowserInfoCountry] = country
			break
		}
	}
	if platform := strings.Trim(strings.TrimSpace(headers.Get("Sec-CH-UA-Platform")), `"`); platform != "" {
		info[interfaces.BrowserInfoPlatform] = platform
	}
	switch strings.TrimSpace(headers.Get("Sec-CH-UA-Mobile")) {
	case "?1":
		info[interfaces.BrowserInfoMobile] = "true"
	case "?0":
		info[interfaces.BrowserInfoMobile] = "false"
	}

	return info
}

func headerOrUnknown(headers http.Header, name string) string {
	if v := strings.TrimSpace(headers.Get(name)); v != "" {
		return v
	}
	return interfaces.Unknown
}
