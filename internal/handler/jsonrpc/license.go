package jsonrpc

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/licensesale/internal/executor"
	"github.com/Bidon15/licensesale/internal/token"
)

// LicenseHandler handles the license_* methods.
type LicenseHandler struct {
	exec     *executor.Executor
	registry *token.Registry
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(exec *executor.Executor, registry *token.Registry) *LicenseHandler {
	return &LicenseHandler{exec: exec, registry: registry}
}

type transferParams struct {
	From    string `json:"from" validate:"required,eth_addr"`
	To      string `json:"to" validate:"required,eth_addr"`
	TokenID uint64 `json:"token_id" validate:"required"`
}

type tokenIDParams struct {
	TokenID uint64 `json:"token_id" validate:"required"`
}

type ownerParams struct {
	Owner string `json:"owner" validate:"required,eth_addr"`
}

// LicenseResult describes a license.
type LicenseResult struct {
	TokenID uint64         `json:"token_id"`
	Owner   common.Address `json:"owner"`
	URI     string         `json:"uri,omitempty"`
}

// HandleTransfer implements license_transfer. Only the current owner may
// move a license, and only while licenses are transferable.
func (h *LicenseHandler) HandleTransfer(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	caller, rpcErr := callerFrom(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var p transferParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}

	to := common.HexToAddress(p.To)
	_, err := h.exec.Execute(ctx, MethodLicenseTransfer, func(ctx context.Context) error {
		return h.registry.Transfer(ctx, caller, common.HexToAddress(p.From), to, p.TokenID)
	})
	if err != nil {
		return nil, FromError(err)
	}
	return LicenseResult{TokenID: p.TokenID, Owner: to}, nil
}

// HandleTokenURI implements license_tokenURI.
func (h *LicenseHandler) HandleTokenURI(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p tokenIDParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	var res LicenseResult
	var err error
	h.exec.View(func() {
		res.TokenID = p.TokenID
		if res.Owner, err = h.registry.OwnerOf(p.TokenID); err != nil {
			return
		}
		res.URI, err = h.registry.TokenURI(p.TokenID)
	})
	if err != nil {
		return nil, FromError(err)
	}
	return res, nil
}

// HandleOwnerOf implements license_ownerOf.
func (h *LicenseHandler) HandleOwnerOf(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p tokenIDParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	var owner common.Address
	var err error
	h.exec.View(func() {
		owner, err = h.registry.OwnerOf(p.TokenID)
	})
	if err != nil {
		return nil, FromError(err)
	}
	return LicenseResult{TokenID: p.TokenID, Owner: owner}, nil
}

// HandleBalanceOf implements license_balanceOf.
func (h *LicenseHandler) HandleBalanceOf(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p ownerParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	owner := common.HexToAddress(p.Owner)
	return executor.Read(h.exec, func() uint64 { return h.registry.BalanceOf(owner) }), nil
}
