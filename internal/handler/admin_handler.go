package handler

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Bidon15/licensesale/internal/executor"
	"github.com/Bidon15/licensesale/internal/models"
	"github.com/Bidon15/licensesale/internal/pkg/response"
	"github.com/Bidon15/licensesale/internal/sale"
)

// AdminHandler exposes the owner-only configuration setters.
// Every route expects a signed caller.
type AdminHandler struct {
	exec     *executor.Executor
	admin    *sale.Admin
	store    *sale.ConfigStore
	settings func() models.Settings
	validate *validator.Validate
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(exec *executor.Executor, admin *sale.Admin, engine *sale.Engine) *AdminHandler {
	return &AdminHandler{
		exec:     exec,
		admin:    admin,
		store:    engine.Store(),
		settings: engine.Settings,
		validate: newValidator(),
	}
}

// Routes returns the admin router with all routes registered.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Put("/settings/base-uri", h.SetBaseURI)
	r.Put("/settings/fund-receiver", h.SetFundReceiver)
	r.Put("/settings/payment-token", h.SetPaymentToken)
	r.Put("/settings/transferable", h.SetTransferable)
	r.Put("/settings/owner", h.TransferOwnership)

	r.Put("/tiers/{tier}/public", h.SetPublicConfig)
	r.Put("/tiers/{tier}/whitelist", h.SetWhitelistConfig)

	r.Post("/faucet", h.MintPaymentToken)

	return r
}

// BaseURIRequest represents the request body for setting the base URI.
type BaseURIRequest struct {
	BaseURI string `json:"base_uri" validate:"max=2048"`
}

// AddressRequest represents a request body carrying a single address.
type AddressRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

// TransferableRequest represents the request body for the transferable flag.
type TransferableRequest struct {
	Transferable *bool `json:"transferable" validate:"required"`
}

// PublicConfigRequest is the full public sale configuration of a tier.
type PublicConfigRequest struct {
	Price      string `json:"price" validate:"required,number"`
	MaxPerTier uint64 `json:"max_per_tier"`
	MaxPerUser uint64 `json:"max_per_user"`
	Start      uint64 `json:"start"`
	End        uint64 `json:"end"`
}

// WhitelistConfigRequest is the full whitelist sale configuration of a tier.
type WhitelistConfigRequest struct {
	MerkleRoot string `json:"merkle_root" validate:"required,len=66,hexadecimal"`
	MaxPerTier uint64 `json:"max_per_tier"`
	Start      uint64 `json:"start"`
	End        uint64 `json:"end"`
}

// FaucetRequest represents a payment token mint.
type FaucetRequest struct {
	Token  string `json:"token,omitempty" validate:"omitempty,eth_addr"`
	To     string `json:"to" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required,number"`
}

// run decodes the body into req, then runs fn as a transaction for the
// signed caller and answers with the resulting settings.
func (h *AdminHandler) run(w http.ResponseWriter, r *http.Request, name string, req any, fn func(ctx context.Context, caller common.Address) error) bool {
	caller, err := requireCaller(r)
	if err != nil {
		response.Error(w, err)
		return false
	}
	if req != nil {
		if err := decodeJSON(r, h.validate, req); err != nil {
			response.Error(w, err)
			return false
		}
	}
	if _, err := h.exec.Execute(r.Context(), name, func(ctx context.Context) error {
		return fn(ctx, caller)
	}); err != nil {
		response.Error(w, err)
		return false
	}
	return true
}

func (h *AdminHandler) okSettings(w http.ResponseWriter) {
	response.OK(w, executor.Read(h.exec, h.settings))
}

// SetBaseURI handles base URI updates.
// PUT /v1/admin/settings/base-uri
func (h *AdminHandler) SetBaseURI(w http.ResponseWriter, r *http.Request) {
	var req BaseURIRequest
	if h.run(w, r, "admin_setBaseURI", &req, func(ctx context.Context, caller common.Address) error {
		return h.admin.SetBaseURI(ctx, caller, req.BaseURI)
	}) {
		h.okSettings(w)
	}
}

// SetFundReceiver handles fund receiver updates.
// PUT /v1/admin/settings/fund-receiver
func (h *AdminHandler) SetFundReceiver(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	if h.run(w, r, "admin_setFundReceiver", &req, func(ctx context.Context, caller common.Address) error {
		return h.admin.SetFundReceiver(ctx, caller, common.HexToAddress(req.Address))
	}) {
		h.okSettings(w)
	}
}

// SetPaymentToken handles payment token updates.
// PUT /v1/admin/settings/payment-token
func (h *AdminHandler) SetPaymentToken(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	if h.run(w, r, "admin_setPaymentToken", &req, func(ctx context.Context, caller common.Address) error {
		return h.admin.SetPaymentToken(ctx, caller, common.HexToAddress(req.Address))
	}) {
		h.okSettings(w)
	}
}

// SetTransferable handles the transferability flag.
// PUT /v1/admin/settings/transferable
func (h *AdminHandler) SetTransferable(w http.ResponseWriter, r *http.Request) {
	var req TransferableRequest
	if h.run(w, r, "admin_setTransferable", &req, func(ctx context.Context, caller common.Address) error {
		return h.admin.SetTransferable(ctx, caller, *req.Transferable)
	}) {
		h.okSettings(w)
	}
}

// TransferOwnership hands the sale to a new owner.
// PUT /v1/admin/settings/owner
func (h *AdminHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	if h.run(w, r, "admin_transferOwnership", &req, func(ctx context.Context, caller common.Address) error {
		return h.admin.TransferOwnership(ctx, caller, common.HexToAddress(req.Address))
	}) {
		h.okSettings(w)
	}
}

// SetPublicConfig overwrites the public sale configuration of a tier.
// PUT /v1/admin/tiers/{tier}/public
func (h *AdminHandler) SetPublicConfig(w http.ResponseWriter, r *http.Request) {
	tier, err := parseTier(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req PublicConfigRequest
	if !h.run(w, r, "admin_setPublicConfig", &req, func(ctx context.Context, caller common.Address) error {
		price, _ := new(big.Int).SetString(req.Price, 10)
		return h.admin.SetPublicConfig(ctx, caller, tier, models.PublicSaleConfig{
			Price:      price,
			MaxPerTier: req.MaxPerTier,
			MaxPerUser: req.MaxPerUser,
			Start:      req.Start,
			End:        req.End,
		})
	}) {
		return
	}

	var cfg models.PublicSaleConfig
	h.exec.View(func() { cfg, err = h.store.PublicConfig(tier) })
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, cfg)
}

// SetWhitelistConfig overwrites the whitelist sale configuration of a tier.
// PUT /v1/admin/tiers/{tier}/whitelist
func (h *AdminHandler) SetWhitelistConfig(w http.ResponseWriter, r *http.Request) {
	tier, err := parseTier(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req WhitelistConfigRequest
	if !h.run(w, r, "admin_setWhitelistConfig", &req, func(ctx context.Context, caller common.Address) error {
		return h.admin.SetWhitelistConfig(ctx, caller, tier, models.WhitelistSaleConfig{
			MerkleRoot: common.HexToHash(req.MerkleRoot),
			MaxPerTier: req.MaxPerTier,
			Start:      req.Start,
			End:        req.End,
		})
	}) {
		return
	}

	var cfg models.WhitelistSaleConfig
	h.exec.View(func() { cfg, err = h.store.WhitelistConfig(tier) })
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, cfg)
}

// MintPaymentToken credits payment tokens from the development faucet.
// POST /v1/admin/faucet
func (h *AdminHandler) MintPaymentToken(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	var tokenAddr common.Address
	var amount *big.Int
	if !h.run(w, r, "admin_mintPaymentToken", &req, func(ctx context.Context, caller common.Address) error {
		tokenAddr = common.HexToAddress(req.Token)
		if req.Token == "" {
			tokenAddr = h.settings().PaymentToken
		}
		amount, _ = new(big.Int).SetString(req.Amount, 10)
		return h.admin.MintPaymentToken(ctx, caller, tokenAddr, common.HexToAddress(req.To), amount)
	}) {
		return
	}
	response.Created(w, map[string]any{
		"token":  tokenAddr,
		"to":     common.HexToAddress(req.To),
		"amount": amount,
	})
}
