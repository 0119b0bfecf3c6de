// Package httputil holds the JSON response helpers shared by every handler.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "certify/pkg/domain-errors"
)

// WriteJSON writes response with status. Encoding errors after the header
// is sent cannot change the status and are dropped.
func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// ErrorResponse is the JSON body of every error answer.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type errorMapping struct {
	status int
	code   string
}

// mappings translates domain codes to HTTP. Infrastructure codes name the
// ledger so clients can tell a retryable outage from a rejected call.
var mappings = map[dErrors.Code]errorMapping{
	dErrors.CodeNotFound:     {http.StatusNotFound, "not_found"},
	dErrors.CodeBadRequest:   {http.StatusBadRequest, "bad_request"},
	dErrors.CodeInvalidInput: {http.StatusBadRequest, "bad_request"},
	dErrors.CodeValidation:   {http.StatusBadRequest, "validation_error"},
	dErrors.CodeConflict:     {http.StatusConflict, "conflict"},
	dErrors.CodeUnauthorized: {http.StatusUnauthorized, "unauthorized"},
	dErrors.CodeForbidden:    {http.StatusForbidden, "forbidden"},
	dErrors.CodeTimeout:      {http.StatusGatewayTimeout, "ledger_timeout"},
	dErrors.CodeUnavailable:  {http.StatusServiceUnavailable, "ledger_unavailable"},
}

var internalMapping = errorMapping{http.StatusInternalServerError, "internal_error"}

func mappingFor(code dErrors.Code) errorMapping {
	if m, ok := mappings[code]; ok {
		return m
	}
	return internalMapping
}

// StatusFor returns the HTTP status for a domain code.
func StatusFor(code dErrors.Code) int {
	return mappingFor(code).status
}

// ErrorCodeFor returns the "error" field for a domain code.
func ErrorCodeFor(code dErrors.Code) string {
	return mappingFor(code).code
}

// WriteError translates err into a JSON error answer. Errors without a
// domain code are reported as internal without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		WriteJSON(w, internalMapping.status, ErrorResponse{Error: internalMapping.code})
		return
	}
	m := mappingFor(domainErr.Code)
	WriteJSON(w, m.status, ErrorResponse{Error: m.code, ErrorDescription: domainErr.Message})
}

// WritePayloadTooLarge answers 413.
func WritePayloadTooLarge(w http.ResponseWriter, description string) {
	WriteJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
		Error:            "payload_too_large",
		ErrorDescription: description,
	})
}

// WriteUnsupportedMediaType answers 415 naming the expected media type.
func WriteUnsupportedMediaType(w http.ResponseWriter, want string) {
	WriteJSON(w, http.StatusUnsupportedMediaType, ErrorResponse{
		Error:            "invalid_content_type",
		ErrorDescription: "Content-Type must be " + want,
	})
}
