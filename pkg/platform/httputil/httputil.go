// Package httputil centralizes JSON response writing and the translation of
// gateway errors into wire responses. Every rejection the gateway
// synthesizes goes through here so the envelope shape stays uniform.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	dErrors "edgegate/pkg/domain-errors"
)

// ErrorResponse is the uniform rejection envelope. Stage-specific context
// (rate limit info, proxy error codes) rides along in optional fields.
type ErrorResponse struct {
	Success   bool           `json:"success"`
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	RateLimit *RateLimitInfo `json:"rateLimitInfo,omitempty"`
	Detail    string         `json:"detail,omitempty"` // never populated in production
}

// RateLimitInfo discloses the caller's consumed budget on 429 responses.
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Current   int       `json:"current"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
}

// NewErrorResponse builds the envelope with the timestamp already stamped.
func NewErrorResponse(code dErrors.Code, message string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     string(code),
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore
	// encoding errors. The body may be incomplete but headers are already sent.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError translates a gateway error into an HTTP response. Unknown
// errors collapse to a bare 500 so internals never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	var gw *dErrors.Error
	if errors.As(err, &gw) {
		resp := NewErrorResponse(gw.Code, gw.Message)
		WriteJSON(w, CodeToStatus(gw.Code), resp)
		return
	}
	WriteJSON(w, http.StatusInternalServerError,
		NewErrorResponse(dErrors.CodeInternal, "internal server error"))
}

// CodeToStatus maps gateway error codes to HTTP status codes.
func CodeToStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput,
		dErrors.CodeMaliciousInput, dErrors.CodeInvalidProxyPath:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case dErrors.CodeAdmissionDenied:
		return http.StatusTooManyRequests
	case dErrors.CodeGatewayTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeProxyError, dErrors.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
