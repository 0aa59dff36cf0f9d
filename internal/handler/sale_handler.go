package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Bidon15/licensesale/internal/executor"
	"github.com/Bidon15/licensesale/internal/models"
	"github.com/Bidon15/licensesale/internal/pkg/response"
	"github.com/Bidon15/licensesale/internal/sale"
)

// SaleHandler serves read-only views of the sale.
type SaleHandler struct {
	exec   *executor.Executor
	engine *sale.Engine
}

// NewSaleHandler creates a new sale handler.
func NewSaleHandler(exec *executor.Executor, engine *sale.Engine) *SaleHandler {
	return &SaleHandler{exec: exec, engine: engine}
}

// Routes returns the sale router with all routes registered.
func (h *SaleHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/settings", h.GetSettings)
	r.Get("/tiers/{tier}", h.GetTier)
	return r
}

// TierView is the combined view of one tier in both modes.
type TierView struct {
	Tier      models.Tier                `json:"tier"`
	Public    models.PublicSaleConfig    `json:"public"`
	Whitelist models.WhitelistSaleConfig `json:"whitelist"`
}

// GetTier returns both configurations of a tier.
// GET /v1/tiers/{tier}
func (h *SaleHandler) GetTier(w http.ResponseWriter, r *http.Request) {
	tier, err := parseTier(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	view := TierView{Tier: tier}
	h.exec.View(func() {
		if view.Public, err = h.engine.Store().PublicConfig(tier); err != nil {
			return
		}
		view.Whitelist, err = h.engine.Store().WhitelistConfig(tier)
	})
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, view)
}

// GetSettings returns the sale-wide settings.
// GET /v1/settings
func (h *SaleHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings := executor.Read(h.exec, h.engine.Settings)
	response.OK(w, map[string]any{
		"settings": settings,
		"spender":  h.engine.Spender(),
	})
}
