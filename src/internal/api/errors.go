package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/maksimkurb/tunroute/src/internal/config"
	"github.com/maksimkurb/tunroute/src/internal/errors"
)

// ErrorCode represents standard API error codes.
type ErrorCode string

const (
	// ErrCodeInvalidRequest indicates malformed or invalid request data.
	ErrCodeInvalidRequest ErrorCode = "invalid_request"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"

	// ErrCodeInternalError indicates an internal server error.
	ErrCodeInternalError ErrorCode = "internal_error"

	// ErrCodeValidationFailed indicates request validation failed.
	ErrCodeValidationFailed ErrorCode = "validation_failed"

	// ErrCodeUnresolvable indicates a route node could not be resolved to an interface.
	ErrCodeUnresolvable ErrorCode = "unresolvable"

	// ErrCodeUnavailable indicates the route manager is shut down.
	ErrCodeUnavailable ErrorCode = "unavailable"

	// ErrCodeRouteTableError indicates the OS route table rejected a change.
	ErrCodeRouteTableError ErrorCode = "route_table_error"
)

// APIError represents a structured API error response.
type APIError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps an APIError for JSON responses.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// NewAPIError creates a new APIError with the given code and message.
func NewAPIError(code ErrorCode, message string) APIError {
	return APIError{
		Code:    code,
		Message: message,
		Details: nil,
	}
}

// WithDetails adds details to an APIError.
func (e APIError) WithDetails(details map[string]interface{}) APIError {
	e.Details = details
	return e
}

// WriteError writes an error response to the HTTP response writer.
func WriteError(w http.ResponseWriter, statusCode int, err APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err})
}

// WriteInvalidRequest writes a 400 Bad Request error.
func WriteInvalidRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, NewAPIError(ErrCodeInvalidRequest, message))
}

// WriteNotFound writes a 404 Not Found error.
func WriteNotFound(w http.ResponseWriter, resource string) {
	WriteError(w, http.StatusNotFound, NewAPIError(ErrCodeNotFound, resource+" not found"))
}

// WriteInternalError writes a 500 Internal Server Error.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, NewAPIError(ErrCodeInternalError, message))
}

// WriteValidationError writes a 400 Bad Request with validation details.
func WriteValidationError(w http.ResponseWriter, message string, details map[string]interface{}) {
	err := NewAPIError(ErrCodeValidationFailed, message).WithDetails(details)
	WriteError(w, http.StatusBadRequest, err)
}

// WriteRouteError maps an error returned by the route manager to a response.
func WriteRouteError(w http.ResponseWriter, err error) {
	var verrs config.ValidationErrors
	if stderrors.As(err, &verrs) {
		details := make(map[string]interface{}, len(verrs))
		for _, e := range verrs {
			details[e.FieldPath] = e.Message
		}
		WriteValidationError(w, "Route validation failed", details)
		return
	}

	code := errors.CodeOf(err)
	details := map[string]interface{}{"cause": string(code)}

	switch code {
	case errors.ErrCodeValidation:
		WriteError(w, http.StatusBadRequest, NewAPIError(ErrCodeValidationFailed, err.Error()))
	case errors.ErrCodeNoDefaultRoute, errors.ErrCodeDeviceNameNotFound, errors.ErrCodeDeviceGatewayNotFound:
		WriteError(w, http.StatusUnprocessableEntity, NewAPIError(ErrCodeUnresolvable, err.Error()).WithDetails(details))
	case errors.ErrCodeManagerClosed:
		WriteError(w, http.StatusServiceUnavailable, NewAPIError(ErrCodeUnavailable, err.Error()))
	case errors.ErrCodeRouteTable:
		WriteError(w, http.StatusBadGateway, NewAPIError(ErrCodeRouteTableError, err.Error()))
	default:
		WriteInternalError(w, err.Error())
	}
}
