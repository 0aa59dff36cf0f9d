package sale

import (
	"github.com/Bidon15/licensesale/internal/models"
	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
	"github.com/Bidon15/licensesale/internal/state"
)

// ConfigStore holds the per-tier configuration of both sale modes.
//
// Setters overwrite every field and perform no cross-field validation;
// sanity checks on windows, roots and caps belong to the offline linter.
// TotalMinted in a returned config always reflects the ledger.
type ConfigStore struct {
	st *state.State
}

// NewConfigStore creates a store over st.
func NewConfigStore(st *state.State) *ConfigStore {
	return &ConfigStore{st: st}
}

// PublicConfig returns the public config of a tier. A tier that was never
// configured yields the zero config.
func (c *ConfigStore) PublicConfig(tier models.Tier) (models.PublicSaleConfig, error) {
	if !tier.Valid() {
		return models.PublicSaleConfig{}, tierOutOfRange(tier)
	}
	return c.public(tier), nil
}

// WhitelistConfig returns the whitelist config of a tier.
func (c *ConfigStore) WhitelistConfig(tier models.Tier) (models.WhitelistSaleConfig, error) {
	if !tier.Valid() {
		return models.WhitelistSaleConfig{}, tierOutOfRange(tier)
	}
	return c.whitelist(tier), nil
}

// SetPublicConfig overwrites the public config of a tier.
func (c *ConfigStore) SetPublicConfig(tier models.Tier, cfg models.PublicSaleConfig) error {
	if !tier.Valid() {
		return tierOutOfRange(tier)
	}
	cfg = cfg.Copy()
	cfg.TotalMinted = 0
	c.st.SetPublicConfig(tier, cfg)

	view := c.public(tier)
	c.st.AddLog(models.NewEvent(models.EventConfigChanged, models.ConfigChanged{
		Mode:   models.ModePublic,
		Tier:   tier,
		Public: &view,
	}))
	return nil
}

// SetWhitelistConfig overwrites the whitelist config of a tier.
func (c *ConfigStore) SetWhitelistConfig(tier models.Tier, cfg models.WhitelistSaleConfig) error {
	if !tier.Valid() {
		return tierOutOfRange(tier)
	}
	cfg.TotalMinted = 0
	c.st.SetWhitelistConfig(tier, cfg)

	view := c.whitelist(tier)
	c.st.AddLog(models.NewEvent(models.EventConfigChanged, models.ConfigChanged{
		Mode:      models.ModeWhitelist,
		Tier:      tier,
		Whitelist: &view,
	}))
	return nil
}

func (c *ConfigStore) public(tier models.Tier) models.PublicSaleConfig {
	cfg, _ := c.st.PublicConfig(tier)
	cfg = cfg.Copy()
	cfg.TotalMinted = c.st.MintedPerTier(state.TierKey{Mode: models.ModePublic, Tier: tier})
	return cfg
}

func (c *ConfigStore) whitelist(tier models.Tier) models.WhitelistSaleConfig {
	cfg, _ := c.st.WhitelistConfig(tier)
	cfg.TotalMinted = c.st.MintedPerTier(state.TierKey{Mode: models.ModeWhitelist, Tier: tier})
	return cfg
}

func tierOutOfRange(tier models.Tier) error {
	return apierrors.ErrTierOutOfRange.WithMessagef("tier %d is outside [1, %d]", tier, models.MaxTier)
}
