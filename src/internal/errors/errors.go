// Package errors provides domain-specific error types for the tunroute route manager.
//
// Every failure surfaced to a caller carries an ErrorCode so that callers can tell
// resolution failures (no default route, unknown device, unknown gateway) apart from
// OS route-table failures without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a category of error that can occur in the application.
type ErrorCode string

const (
	// ErrCodeNoDefaultRoute indicates that no default route exists for the address family.
	ErrCodeNoDefaultRoute ErrorCode = "NO_DEFAULT_ROUTE"

	// ErrCodeDeviceNameNotFound indicates that a device alias or encoded id matched no interface.
	ErrCodeDeviceNameNotFound ErrorCode = "DEVICE_NAME_NOT_FOUND"

	// ErrCodeDeviceGatewayNotFound indicates that no enabled interface has the requested gateway.
	ErrCodeDeviceGatewayNotFound ErrorCode = "DEVICE_GATEWAY_NOT_FOUND"

	// ErrCodeRouteTable indicates that creating, deleting or listing OS routes failed.
	ErrCodeRouteTable ErrorCode = "ROUTE_TABLE_ERROR"

	// ErrCodeInterface indicates an error related to network interfaces.
	ErrCodeInterface ErrorCode = "INTERFACE_ERROR"

	// ErrCodeSubscribe indicates that subscribing to OS change notifications failed.
	ErrCodeSubscribe ErrorCode = "SUBSCRIBE_ERROR"

	// ErrCodeConfig indicates a configuration-related error.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeValidation indicates a validation error.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeManagerClosed indicates use of a route manager after teardown.
	ErrCodeManagerClosed ErrorCode = "MANAGER_CLOSED"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrNoDefaultRoute        = New(ErrCodeNoDefaultRoute, "no default route found")
	ErrDeviceNameNotFound    = New(ErrCodeDeviceNameNotFound, "the device name was not found")
	ErrDeviceGatewayNotFound = New(ErrCodeDeviceGatewayNotFound, "could not find device gateway")
	ErrManagerClosed         = New(ErrCodeManagerClosed, "route manager is closed")
)

// Error represents a domain-specific error with an error code and optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new domain error with the specified code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewRouteTableError creates a new OS route-table error.
func NewRouteTableError(message string, cause error) *Error {
	return Wrap(ErrCodeRouteTable, message, cause)
}

// NewInterfaceError creates a new interface-related error.
func NewInterfaceError(message string, cause error) *Error {
	return Wrap(ErrCodeInterface, message, cause)
}

// NewSubscribeError creates a new change-notification subscription error.
func NewSubscribeError(message string, cause error) *Error {
	return Wrap(ErrCodeSubscribe, message, cause)
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, cause error) *Error {
	return Wrap(ErrCodeConfig, message, cause)
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, cause error) *Error {
	return Wrap(ErrCodeValidation, message, cause)
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCodeInternal, message, cause)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join returns an error that wraps the given errors, or nil if all of them are nil.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
