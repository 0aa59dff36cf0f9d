package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/licensesale/internal/models"
)

// ChangeSet holds the final values of every key touched by a transaction,
// plus the events it emitted. A full image of the state uses the same shape.
type ChangeSet struct {
	PublicConfigs    map[models.Tier]models.PublicSaleConfig
	WhitelistConfigs map[models.Tier]models.WhitelistSaleConfig
	MintedPerTier    map[TierKey]uint64
	MintedPerUser    map[UserKey]uint64
	Owners           map[uint64]common.Address
	Balances         map[BalanceKey]*big.Int
	Allowances       map[AllowanceKey]*big.Int
	Settings         *models.Settings
	Events           []models.Event
}

// NewChangeSet returns an empty change set.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		PublicConfigs:    make(map[models.Tier]models.PublicSaleConfig),
		WhitelistConfigs: make(map[models.Tier]models.WhitelistSaleConfig),
		MintedPerTier:    make(map[TierKey]uint64),
		MintedPerUser:    make(map[UserKey]uint64),
		Owners:           make(map[uint64]common.Address),
		Balances:         make(map[BalanceKey]*big.Int),
		Allowances:       make(map[AllowanceKey]*big.Int),
	}
}

// Empty reports whether the change set carries no writes and no events.
func (c *ChangeSet) Empty() bool {
	return len(c.PublicConfigs) == 0 &&
		len(c.WhitelistConfigs) == 0 &&
		len(c.MintedPerTier) == 0 &&
		len(c.MintedPerUser) == 0 &&
		len(c.Owners) == 0 &&
		len(c.Balances) == 0 &&
		len(c.Allowances) == 0 &&
		c.Settings == nil &&
		len(c.Events) == 0
}

// Commit finalizes pending mutations and returns what changed. The journal,
// dirty set and pending log are cleared.
func (s *State) Commit() *ChangeSet {
	cs := NewChangeSet()
	for tier := range s.dirty.public {
		if cfg, ok := s.publicConfigs[tier]; ok {
			cs.PublicConfigs[tier] = cfg.Copy()
		}
	}
	for tier := range s.dirty.whitelist {
		if cfg, ok := s.whitelistConfigs[tier]; ok {
			cs.WhitelistConfigs[tier] = cfg
		}
	}
	for key := range s.dirty.tiers {
		cs.MintedPerTier[key] = s.mintedPerTier[key]
	}
	for key := range s.dirty.users {
		cs.MintedPerUser[key] = s.mintedPerUser[key]
	}
	for id := range s.dirty.owners {
		if owner, ok := s.owners[id]; ok {
			cs.Owners[id] = owner
		}
	}
	for key := range s.dirty.balances {
		cs.Balances[key] = copyInt(s.balances[key])
	}
	for key := range s.dirty.allowances {
		cs.Allowances[key] = copyInt(s.allowances[key])
	}
	if s.dirty.settings {
		settings := s.settings
		cs.Settings = &settings
	}
	cs.Events = s.logs

	s.logs = nil
	s.journal = nil
	s.dirty = newDirtySet()
	return cs
}

// Image returns a full copy of the committed state. It must be called with
// no pending mutations.
func (s *State) Image() *ChangeSet {
	cs := NewChangeSet()
	for tier, cfg := range s.publicConfigs {
		cs.PublicConfigs[tier] = cfg.Copy()
	}
	for tier, cfg := range s.whitelistConfigs {
		cs.WhitelistConfigs[tier] = cfg
	}
	for k, v := range s.mintedPerTier {
		cs.MintedPerTier[k] = v
	}
	for k, v := range s.mintedPerUser {
		cs.MintedPerUser[k] = v
	}
	for k, v := range s.owners {
		cs.Owners[k] = v
	}
	for k, v := range s.balances {
		cs.Balances[k] = copyInt(v)
	}
	for k, v := range s.allowances {
		cs.Allowances[k] = copyInt(v)
	}
	settings := s.settings
	cs.Settings = &settings
	return cs
}

// Apply loads a change set into the state without journaling. It is used
// to restore persisted state at startup.
func (s *State) Apply(cs *ChangeSet) {
	for tier, cfg := range cs.PublicConfigs {
		s.publicConfigs[tier] = cfg.Copy()
	}
	for tier, cfg := range cs.WhitelistConfigs {
		s.whitelistConfigs[tier] = cfg
	}
	for k, v := range cs.MintedPerTier {
		s.mintedPerTier[k] = v
	}
	for k, v := range cs.MintedPerUser {
		s.mintedPerUser[k] = v
	}
	for k, v := range cs.Owners {
		s.owners[k] = v
	}
	for k, v := range cs.Balances {
		s.balances[k] = copyInt(v)
	}
	for k, v := range cs.Allowances {
		s.allowances[k] = copyInt(v)
	}
	if cs.Settings != nil {
		s.settings = *cs.Settings
		if s.settings.NextTokenID == 0 {
			s.settings.NextTokenID = 1
		}
	}
}
