// Package errors defines the error taxonomy shared by the sale engine and
// its HTTP and JSON-RPC surfaces.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is an error with a stable machine-readable code.
// Two APIErrors match under errors.Is when their codes are equal, so a
// WithMessage copy still matches its sentinel.
type APIError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	StatusCode int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches APIErrors by code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of the error with a different message.
func (e *APIError) WithMessage(msg string) *APIError {
	cp := *e
	cp.Message = msg
	return &cp
}

// WithMessagef is WithMessage with formatting.
func (e *APIError) WithMessagef(format string, args ...any) *APIError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error carrying details.
func (e *APIError) WithDetails(details map[string]string) *APIError {
	cp := *e
	cp.Details = details
	return &cp
}

// Generic errors.
var (
	ErrBadRequest   = &APIError{Code: "bad_request", Message: "Bad request", StatusCode: http.StatusBadRequest}
	ErrUnauthorized = &APIError{Code: "unauthorized", Message: "Unauthorized", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &APIError{Code: "forbidden", Message: "Forbidden", StatusCode: http.StatusForbidden}
	ErrNotFound     = &APIError{Code: "not_found", Message: "Not found", StatusCode: http.StatusNotFound}
	ErrConflict     = &APIError{Code: "conflict", Message: "Conflict", StatusCode: http.StatusConflict}
	ErrValidation   = &APIError{Code: "validation_error", Message: "Validation failed", StatusCode: http.StatusUnprocessableEntity}
	ErrRateLimited  = &APIError{Code: "rate_limited", Message: "Rate limit exceeded", StatusCode: http.StatusTooManyRequests}
	ErrInternal     = &APIError{Code: "internal_error", Message: "Internal server error", StatusCode: http.StatusInternalServerError}
)

// Sale errors.
var (
	ErrInvalidRequest      = &APIError{Code: "invalid_request", Message: "Invalid request", StatusCode: http.StatusBadRequest}
	ErrTierOutOfRange      = &APIError{Code: "tier_out_of_range", Message: "Tier out of range", StatusCode: http.StatusBadRequest}
	ErrSaleWindowClosed    = &APIError{Code: "sale_window_closed", Message: "Sale window closed", StatusCode: http.StatusConflict}
	ErrPriceNotConfigured  = &APIError{Code: "price_not_configured", Message: "Price not configured", StatusCode: http.StatusConflict}
	ErrExceedAllowance     = &APIError{Code: "exceed_allowance", Message: "Exceeds allowance", StatusCode: http.StatusConflict}
	ErrInvalidProof        = &APIError{Code: "invalid_proof", Message: "Invalid merkle proof", StatusCode: http.StatusForbidden}
	ErrInvalidURI          = &APIError{Code: "invalid_uri", Message: "Invalid URI", StatusCode: http.StatusBadRequest}
	ErrAddressZeroRejected = &APIError{Code: "address_zero_rejected", Message: "Zero address rejected", StatusCode: http.StatusBadRequest}

	ErrInsufficientBalance   = &APIError{Code: "insufficient_balance", Message: "Insufficient payment token balance", StatusCode: http.StatusPaymentRequired}
	ErrInsufficientAllowance = &APIError{Code: "insufficient_allowance", Message: "Insufficient payment token allowance", StatusCode: http.StatusPaymentRequired}
	ErrNonTransferable       = &APIError{Code: "non_transferable", Message: "Licenses are not transferable", StatusCode: http.StatusForbidden}
)

// NewValidationError creates a validation error for a single field.
func NewValidationError(field, message string) *APIError {
	return ErrValidation.WithDetails(map[string]string{field: message})
}

// NewValidationErrors creates a validation error for several fields.
func NewValidationErrors(fields map[string]string) *APIError {
	return ErrValidation.WithDetails(fields)
}

// NewNotFoundError creates a not found error for a resource.
func NewNotFoundError(resource string) *APIError {
	return ErrNotFound.WithMessage(resource + " not found")
}

// NewConflictError creates a conflict error.
func NewConflictError(message string) *APIError {
	return ErrConflict.WithMessage(message)
}

// AsAPIError returns the APIError in err's chain, or ErrInternal.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal
}
