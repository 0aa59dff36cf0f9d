package jsonrpc

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/licensesale/internal/executor"
	"github.com/Bidon15/licensesale/internal/models"
	"github.com/Bidon15/licensesale/internal/sale"
)

// SaleHandler handles the sale_* methods.
type SaleHandler struct {
	exec   *executor.Executor
	engine *sale.Engine
}

// NewSaleHandler creates a new sale handler.
func NewSaleHandler(exec *executor.Executor, engine *sale.Engine) *SaleHandler {
	return &SaleHandler{exec: exec, engine: engine}
}

type publicClaimParams struct {
	Tier     uint16 `json:"tier"`
	Receiver string `json:"receiver" validate:"required,eth_addr"`
	Amount   uint64 `json:"amount"`
	Memo     string `json:"memo" validate:"max=256"`
}

type whitelistClaimParams struct {
	Tier          uint16   `json:"tier"`
	Receiver      string   `json:"receiver" validate:"required,eth_addr"`
	Amount        uint64   `json:"amount"`
	MaxAllocation uint64   `json:"max_allocation"`
	Proof         []string `json:"proof" validate:"dive,len=66,hexadecimal"`
}

type tierParams struct {
	Tier uint16 `json:"tier"`
}

type countParams struct {
	Mode     string `json:"mode" validate:"required,oneof=public whitelist"`
	Tier     uint16 `json:"tier"`
	Claimant string `json:"claimant,omitempty" validate:"omitempty,eth_addr"`
}

// CountResult is returned by the ledger counter reads.
type CountResult struct {
	Mode     models.Mode     `json:"mode"`
	Tier     models.Tier     `json:"tier"`
	Claimant *common.Address `json:"claimant,omitempty"`
	Count    uint64          `json:"count"`
}

// SettingsResult is returned by sale_settings.
type SettingsResult struct {
	models.Settings
	Spender common.Address `json:"spender"`
}

// HandlePublicClaim implements sale_publicClaim. The signed caller pays
// and is the claimant.
// Parameters: [{tier, receiver, amount, memo}]
func (h *SaleHandler) HandlePublicClaim(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	caller, rpcErr := callerFrom(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var p publicClaimParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}

	res, err := executor.Run(ctx, h.exec, MethodPublicClaim, func(ctx context.Context) (*sale.ClaimResult, error) {
		return h.engine.PublicClaim(ctx, caller, sale.PublicClaimRequest{
			Tier:     models.Tier(p.Tier),
			Receiver: common.HexToAddress(p.Receiver),
			Amount:   p.Amount,
			Memo:     p.Memo,
		})
	})
	if err != nil {
		return nil, FromError(err)
	}
	return res, nil
}

// HandleWhitelistClaim implements sale_whitelistClaim. The proof must
// authenticate the signed caller's allocation.
// Parameters: [{tier, receiver, amount, max_allocation, proof}]
func (h *SaleHandler) HandleWhitelistClaim(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	caller, rpcErr := callerFrom(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var p whitelistClaimParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}

	res, err := executor.Run(ctx, h.exec, MethodWhitelistClaim, func(ctx context.Context) (*sale.ClaimResult, error) {
		return h.engine.WhitelistClaim(ctx, caller, sale.WhitelistClaimRequest{
			Tier:          models.Tier(p.Tier),
			Receiver:      common.HexToAddress(p.Receiver),
			Amount:        p.Amount,
			MaxAllocation: p.MaxAllocation,
			Proof:         parseProof(p.Proof),
		})
	})
	if err != nil {
		return nil, FromError(err)
	}
	return res, nil
}

// HandleGetPublicConfig implements sale_getPublicConfig.
func (h *SaleHandler) HandleGetPublicConfig(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p tierParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	var cfg models.PublicSaleConfig
	var err error
	h.exec.View(func() {
		cfg, err = h.engine.Store().PublicConfig(models.Tier(p.Tier))
	})
	if err != nil {
		return nil, FromError(err)
	}
	return cfg, nil
}

// HandleGetWhitelistConfig implements sale_getWhitelistConfig.
func (h *SaleHandler) HandleGetWhitelistConfig(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p tierParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	var cfg models.WhitelistSaleConfig
	var err error
	h.exec.View(func() {
		cfg, err = h.engine.Store().WhitelistConfig(models.Tier(p.Tier))
	})
	if err != nil {
		return nil, FromError(err)
	}
	return cfg, nil
}

// HandleMintedPerTier implements sale_mintedPerTier.
func (h *SaleHandler) HandleMintedPerTier(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p countParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	tier, rpcErr := parseTier(p.Tier)
	if rpcErr != nil {
		return nil, rpcErr
	}
	mode := models.Mode(p.Mode)
	count := executor.Read(h.exec, func() uint64 {
		return h.engine.Ledger().MintedPerTier(mode, tier)
	})
	return CountResult{Mode: mode, Tier: tier, Count: count}, nil
}

// HandleMintedPerUser implements sale_mintedPerUser.
func (h *SaleHandler) HandleMintedPerUser(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p countParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.Claimant == "" {
		return nil, ErrInvalidParams(map[string]string{"claimant": "failed required"})
	}
	tier, rpcErr := parseTier(p.Tier)
	if rpcErr != nil {
		return nil, rpcErr
	}
	mode := models.Mode(p.Mode)
	claimant := common.HexToAddress(p.Claimant)
	count := executor.Read(h.exec, func() uint64 {
		return h.engine.Ledger().MintedPerUser(mode, tier, claimant)
	})
	return CountResult{Mode: mode, Tier: tier, Claimant: &claimant, Count: count}, nil
}

// HandleSettings implements sale_settings.
func (h *SaleHandler) HandleSettings(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	settings := executor.Read(h.exec, h.engine.Settings)
	return SettingsResult{Settings: settings, Spender: h.engine.Spender()}, nil
}
