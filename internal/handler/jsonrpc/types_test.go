package jsonrpc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantReason string
	}{
		{"invalid request", apierrors.ErrInvalidRequest, InvalidParams, "invalid_request"},
		{"tier out of range", apierrors.ErrTierOutOfRange, InvalidParams, "tier_out_of_range"},
		{"invalid uri", apierrors.ErrInvalidURI, InvalidParams, "invalid_uri"},
		{"zero address", apierrors.ErrAddressZeroRejected, InvalidParams, "address_zero_rejected"},
		{"unauthorized", apierrors.ErrUnauthorized.WithMessage("not owner"), UnauthorizedError, "unauthorized"},
		{"not found", apierrors.NewNotFoundError("License"), ResourceNotFound, "not_found"},
		{"window closed", apierrors.ErrSaleWindowClosed, TransactionError, "sale_window_closed"},
		{"exceed allowance", apierrors.ErrExceedAllowance, TransactionError, "exceed_allowance"},
		{"invalid proof", apierrors.ErrInvalidProof, TransactionError, "invalid_proof"},
		{"price not configured", apierrors.ErrPriceNotConfigured, TransactionError, "price_not_configured"},
		{"wrapped payment failure", fmt.Errorf("payment failed: %w", apierrors.ErrInsufficientBalance), TransactionError, "insufficient_balance"},
		{"rate limited", apierrors.ErrRateLimited, RateLimitError, "rate_limited"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpcErr := FromError(tt.err)
			assert.Equal(t, tt.wantCode, rpcErr.Code)
			data, ok := rpcErr.Data.(ErrorData)
			if assert.True(t, ok) {
				assert.Equal(t, tt.wantReason, data.Reason)
			}
		})
	}
}

func TestFromError_WrappedKeepsDetail(t *testing.T) {
	rpcErr := FromError(fmt.Errorf("payment failed: %w", apierrors.ErrInsufficientAllowance))
	data := rpcErr.Data.(ErrorData)
	assert.Contains(t, data.Detail, "payment failed")
}

func TestFromError_Internal(t *testing.T) {
	rpcErr := FromError(errors.New("disk on fire"))
	assert.Equal(t, InternalError, rpcErr.Code)
	assert.Nil(t, rpcErr.Data, "internal errors are not leaked")
}

func TestFromError_PassesThroughRPCErrors(t *testing.T) {
	orig := ErrInvalidParams("bad")
	assert.Same(t, orig, FromError(orig))
}

func TestRequestValidate(t *testing.T) {
	assert.NotNil(t, (&Request{JSONRPC: "1.0", Method: "x"}).Validate())
	assert.NotNil(t, (&Request{JSONRPC: "2.0"}).Validate())
	assert.Nil(t, (&Request{JSONRPC: "2.0", Method: "sale_settings"}).Validate())
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "jsonrpc -32601: Method not found: foo", ErrMethodNotFound("foo").Error())
	assert.Equal(t, "jsonrpc -32603: Internal error", NewError(InternalError, "Internal error", nil).Error())
}
