// Package state holds the sale's mutable world state behind an undo journal.
//
// Every mutation records an undo entry. Snapshot/RevertToSnapshot give call
// frames all-or-nothing semantics, and Commit drains the journal into a
// ChangeSet for persistence. State is not safe for concurrent use; the
// executor serializes access.
package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/licensesale/internal/models"
)

// TierKey addresses a per-tier ledger counter.
type TierKey struct {
	Mode models.Mode
	Tier models.Tier
}

// UserKey addresses a per-claimant ledger counter.
type UserKey struct {
	Mode     models.Mode
	Tier     models.Tier
	Claimant common.Address
}

// BalanceKey addresses a payment token balance.
type BalanceKey struct {
	Token  common.Address
	Holder common.Address
}

// AllowanceKey addresses a payment token allowance.
type AllowanceKey struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
}

type dirtySet struct {
	public     map[models.Tier]struct{}
	whitelist  map[models.Tier]struct{}
	tiers      map[TierKey]struct{}
	users      map[UserKey]struct{}
	owners     map[uint64]struct{}
	balances   map[BalanceKey]struct{}
	allowances map[AllowanceKey]struct{}
	settings   bool
}

func newDirtySet() dirtySet {
	return dirtySet{
		public:     make(map[models.Tier]struct{}),
		whitelist:  make(map[models.Tier]struct{}),
		tiers:      make(map[TierKey]struct{}),
		users:      make(map[UserKey]struct{}),
		owners:     make(map[uint64]struct{}),
		balances:   make(map[BalanceKey]struct{}),
		allowances: make(map[AllowanceKey]struct{}),
	}
}

// State is the journaled world state.
type State struct {
	publicConfigs    map[models.Tier]models.PublicSaleConfig
	whitelistConfigs map[models.Tier]models.WhitelistSaleConfig
	mintedPerTier    map[TierKey]uint64
	mintedPerUser    map[UserKey]uint64
	owners           map[uint64]common.Address
	balances         map[BalanceKey]*big.Int
	allowances       map[AllowanceKey]*big.Int
	settings         models.Settings
	logs             []models.Event

	journal []func()
	dirty   dirtySet
}

// New returns an empty state with the given settings. NextTokenID starts
// at 1 when left zero.
func New(settings models.Settings) *State {
	if settings.NextTokenID == 0 {
		settings.NextTokenID = 1
	}
	return &State{
		publicConfigs:    make(map[models.Tier]models.PublicSaleConfig),
		whitelistConfigs: make(map[models.Tier]models.WhitelistSaleConfig),
		mintedPerTier:    make(map[TierKey]uint64),
		mintedPerUser:    make(map[UserKey]uint64),
		owners:           make(map[uint64]common.Address),
		balances:         make(map[BalanceKey]*big.Int),
		allowances:       make(map[AllowanceKey]*big.Int),
		settings:         settings,
		dirty:            newDirtySet(),
	}
}

// Snapshot returns an identifier for the current journal position.
func (s *State) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot undoes every mutation made after the snapshot was taken.
func (s *State) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i]()
	}
	s.journal = s.journal[:id]
}

// Discard reverts every uncommitted mutation.
func (s *State) Discard() {
	s.RevertToSnapshot(0)
	s.dirty = newDirtySet()
}

// Pending reports whether there are uncommitted mutations.
func (s *State) Pending() bool {
	return len(s.journal) > 0
}

func (s *State) record(undo func()) {
	s.journal = append(s.journal, undo)
}

// PublicConfig returns the public config of a tier and whether it was ever set.
func (s *State) PublicConfig(tier models.Tier) (models.PublicSaleConfig, bool) {
	cfg, ok := s.publicConfigs[tier]
	return cfg.Copy(), ok
}

// SetPublicConfig overwrites the public config of a tier.
func (s *State) SetPublicConfig(tier models.Tier, cfg models.PublicSaleConfig) {
	prev, existed := s.publicConfigs[tier]
	s.record(func() {
		if existed {
			s.publicConfigs[tier] = prev
		} else {
			delete(s.publicConfigs, tier)
		}
	})
	s.publicConfigs[tier] = cfg.Copy()
	s.dirty.public[tier] = struct{}{}
}

// WhitelistConfig returns the whitelist config of a tier and whether it was ever set.
func (s *State) WhitelistConfig(tier models.Tier) (models.WhitelistSaleConfig, bool) {
	cfg, ok := s.whitelistConfigs[tier]
	return cfg, ok
}

// SetWhitelistConfig overwrites the whitelist config of a tier.
func (s *State) SetWhitelistConfig(tier models.Tier, cfg models.WhitelistSaleConfig) {
	prev, existed := s.whitelistConfigs[tier]
	s.record(func() {
		if existed {
			s.whitelistConfigs[tier] = prev
		} else {
			delete(s.whitelistConfigs, tier)
		}
	})
	s.whitelistConfigs[tier] = cfg
	s.dirty.whitelist[tier] = struct{}{}
}

// MintedPerTier returns the tier counter.
func (s *State) MintedPerTier(key TierKey) uint64 {
	return s.mintedPerTier[key]
}

// SetMintedPerTier sets the tier counter.
func (s *State) SetMintedPerTier(key TierKey, v uint64) {
	prev := s.mintedPerTier[key]
	s.record(func() { s.mintedPerTier[key] = prev })
	s.mintedPerTier[key] = v
	s.dirty.tiers[key] = struct{}{}
}

// MintedPerUser returns the claimant counter.
func (s *State) MintedPerUser(key UserKey) uint64 {
	return s.mintedPerUser[key]
}

// SetMintedPerUser sets the claimant counter.
func (s *State) SetMintedPerUser(key UserKey, v uint64) {
	prev := s.mintedPerUser[key]
	s.record(func() { s.mintedPerUser[key] = prev })
	s.mintedPerUser[key] = v
	s.dirty.users[key] = struct{}{}
}

// OwnerOf returns the owner of a license, or the zero address.
func (s *State) OwnerOf(id uint64) common.Address {
	return s.owners[id]
}

// SetOwner records the owner of a license.
func (s *State) SetOwner(id uint64, owner common.Address) {
	prev, existed := s.owners[id]
	s.record(func() {
		if existed {
			s.owners[id] = prev
		} else {
			delete(s.owners, id)
		}
	})
	s.owners[id] = owner
	s.dirty.owners[id] = struct{}{}
}

// LicenseCount returns how many licenses owner holds.
func (s *State) LicenseCount(owner common.Address) uint64 {
	var n uint64
	for _, o := range s.owners {
		if o == owner {
			n++
		}
	}
	return n
}

// Balance returns a copy of a payment token balance.
func (s *State) Balance(key BalanceKey) *big.Int {
	return copyInt(s.balances[key])
}

// SetBalance sets a payment token balance.
func (s *State) SetBalance(key BalanceKey, v *big.Int) {
	prev, existed := s.balances[key]
	s.record(func() {
		if existed {
			s.balances[key] = prev
		} else {
			delete(s.balances, key)
		}
	})
	s.balances[key] = copyInt(v)
	s.dirty.balances[key] = struct{}{}
}

// Allowance returns a copy of a payment token allowance.
func (s *State) Allowance(key AllowanceKey) *big.Int {
	return copyInt(s.allowances[key])
}

// SetAllowance sets a payment token allowance.
func (s *State) SetAllowance(key AllowanceKey, v *big.Int) {
	prev, existed := s.allowances[key]
	s.record(func() {
		if existed {
			s.allowances[key] = prev
		} else {
			delete(s.allowances, key)
		}
	})
	s.allowances[key] = copyInt(v)
	s.dirty.allowances[key] = struct{}{}
}

// Settings returns the sale settings.
func (s *State) Settings() models.Settings {
	return s.settings
}

// SetSettings replaces the sale settings.
func (s *State) SetSettings(settings models.Settings) {
	prev := s.settings
	s.record(func() { s.settings = prev })
	s.settings = settings
	s.dirty.settings = true
}

// AddLog appends an event to the pending log.
func (s *State) AddLog(ev models.Event) {
	n := len(s.logs)
	s.record(func() { s.logs = s.logs[:n] })
	s.logs = append(s.logs, ev)
}

// Logs returns the pending events.
func (s *State) Logs() []models.Event {
	out := make([]models.Event, len(s.logs))
	copy(out, s.logs)
	return out
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
