// Package jsonrpc provides the JSON-RPC 2.0 surface of the license sale.
package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"

	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
)

// JSON-RPC 2.0 Error Codes
const (
	// Standard JSON-RPC errors
	ParseError     = -32700 // Invalid JSON
	InvalidRequest = -32600 // Not a valid request object
	MethodNotFound = -32601 // Method does not exist
	InvalidParams  = -32602 // Invalid method parameters
	InternalError  = -32603 // Internal JSON-RPC error

	// Server errors (-32000 to -32099)
	ServerError       = -32000 // Generic server error
	ResourceNotFound  = -32001 // Requested resource not found
	TransactionError  = -32010 // Transaction reverted
	UnauthorizedError = -32021 // Not authorized for this operation
	RateLimitError    = -32029 // Rate limit exceeded
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data == nil {
		return fmt.Sprintf("jsonrpc %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("jsonrpc %d: %s: %v", e.Code, e.Message, e.Data)
}

// NewError creates a new JSON-RPC error.
func NewError(code int, message string, data interface{}) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// Constructors for the codes the handler raises itself.

func ErrParseError(data interface{}) *Error     { return NewError(ParseError, "Parse error", data) }
func ErrInvalidRequest(data interface{}) *Error { return NewError(InvalidRequest, "Invalid Request", data) }
func ErrMethodNotFound(method string) *Error    { return NewError(MethodNotFound, "Method not found", method) }
func ErrInvalidParams(data interface{}) *Error  { return NewError(InvalidParams, "Invalid params", data) }
func ErrInternal(data interface{}) *Error       { return NewError(InternalError, "Internal error", data) }
func ErrUnauthorized(data interface{}) *Error   { return NewError(UnauthorizedError, "Unauthorized", data) }

// ErrorData is attached to errors raised by the sale so clients can switch
// on the stable reason code.
type ErrorData struct {
	Reason  string            `json:"reason"`
	Detail  string            `json:"detail,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// FromError converts an engine error into a JSON-RPC error.
func FromError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	apiErr := apierrors.AsAPIError(err)
	if apiErr == apierrors.ErrInternal {
		return ErrInternal(nil)
	}
	data := ErrorData{Reason: apiErr.Code, Details: apiErr.Details}
	if msg := err.Error(); msg != apiErr.Error() {
		data.Detail = msg
	}
	return NewError(codeFor(apiErr), apiErr.Message, data)
}

func codeFor(apiErr *apierrors.APIError) int {
	switch {
	case errors.Is(apiErr, apierrors.ErrUnauthorized), errors.Is(apiErr, apierrors.ErrForbidden):
		return UnauthorizedError
	case errors.Is(apiErr, apierrors.ErrNotFound):
		return ResourceNotFound
	case errors.Is(apiErr, apierrors.ErrRateLimited):
		return RateLimitError
	case errors.Is(apiErr, apierrors.ErrInvalidRequest),
		errors.Is(apiErr, apierrors.ErrTierOutOfRange),
		errors.Is(apiErr, apierrors.ErrValidation),
		errors.Is(apiErr, apierrors.ErrBadRequest),
		errors.Is(apiErr, apierrors.ErrInvalidURI),
		errors.Is(apiErr, apierrors.ErrAddressZeroRejected):
		return InvalidParams
	default:
		return TransactionError
	}
}

// BatchRequest is a slice of requests for batch processing.
type BatchRequest []Request

// BatchResponse is a slice of responses for batch processing.
type BatchResponse []Response

// Validate checks if the request is valid JSON-RPC 2.0.
func (r *Request) Validate() *Error {
	if r.JSONRPC != "2.0" {
		return ErrInvalidRequest("jsonrpc must be '2.0'")
	}
	if r.Method == "" {
		return ErrInvalidRequest("method is required")
	}
	// ID can be string, number, or null (for notifications)
	return nil
}
