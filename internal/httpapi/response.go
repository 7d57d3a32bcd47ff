// Package httpapi wires the claims engine's domain services onto HTTP: a
// chi router carrying the public/customer/admin route groups, the
// outer-to-inner middleware chain (recovery, timeout, body limit, security
// headers, CORS, logging, metrics, auth), and the JSON request/response
// envelope every handler uses.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flightclaims/claims-engine/internal/platform/apierr"
	"github.com/flightclaims/claims-engine/internal/platform/logging"
)

// envelope is the success response shape: data alongside the trace ID the
// client can quote back when reporting an issue.
type envelope struct {
	Data    interface{} `json:"data"`
	TraceID string      `json:"trace_id,omitempty"`
}

// errorEnvelope mirrors apierr.Error's public fields plus the trace ID.
type errorEnvelope struct {
	Code    apierr.Code            `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

// WriteJSON writes data as a status-coded JSON envelope.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	traceID := logging.TraceID(r.Context())
	if traceID != "" {
		w.Header().Set("X-Trace-ID", traceID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data, TraceID: traceID})
}

// WriteError maps err onto its apierr.Error HTTP status and code (defaulting
// to an opaque 500 for anything that isn't already an *apierr.Error) and
// writes the error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierr.As(err)
	if apiErr == nil {
		apiErr = apierr.Internal("an unexpected error occurred", err)
	}

	traceID := logging.TraceID(r.Context())
	if traceID != "" {
		w.Header().Set("X-Trace-ID", traceID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
		TraceID: traceID,
	})
}

// DecodeJSON decodes r's body into v, writing and returning a validation
// error on failure so callers can just `if !DecodeJSON(...) { return }`.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, r, apierr.FileTooLarge(maxErr.Limit))
			return false
		}
		WriteError(w, r, apierr.InvalidInput("body", "malformed JSON"))
		return false
	}
	return true
}
