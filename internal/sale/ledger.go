package sale

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/licensesale/internal/merkle"
	"github.com/Bidon15/licensesale/internal/models"
	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
	"github.com/Bidon15/licensesale/internal/state"
)

// ReserveRequest asks the ledger for Amount licenses in a tier.
// MaxAllocation and Proof are only read in whitelist mode.
type ReserveRequest struct {
	Mode          models.Mode
	Tier          models.Tier
	Claimant      common.Address
	Receiver      common.Address
	Amount        uint64
	MaxAllocation uint64
	Proof         []common.Hash
}

// Reservation is the outcome of a successful reserve.
type Reservation struct {
	UserCount uint64
	TierCount uint64
	// Price is the unit price of a public reservation, zero for whitelist.
	Price *big.Int
}

// Ledger tracks minted counts per tier and per claimant for both modes.
// Counters only grow, and only through Reserve.
type Ledger struct {
	st    *state.State
	store *ConfigStore
	now   Clock
}

// NewLedger creates a ledger over st.
func NewLedger(st *state.State, store *ConfigStore, now Clock) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{st: st, store: store, now: now}
}

// MintedPerTier returns the tier counter of a mode.
func (l *Ledger) MintedPerTier(mode models.Mode, tier models.Tier) uint64 {
	return l.st.MintedPerTier(state.TierKey{Mode: mode, Tier: tier})
}

// MintedPerUser returns the claimant counter of a mode and tier.
func (l *Ledger) MintedPerUser(mode models.Mode, tier models.Tier, claimant common.Address) uint64 {
	return l.st.MintedPerUser(state.UserKey{Mode: mode, Tier: tier, Claimant: claimant})
}

// Reserve checks a claim against the tier configuration and, when every
// check passes, increments both counters by req.Amount.
//
// Checks run in a fixed order and the first failure wins: request shape,
// sale window, price (public), per-user cap, per-tier cap, merkle proof
// (whitelist). A rejected reserve mutates nothing.
func (l *Ledger) Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	if err := validateReserve(req); err != nil {
		return nil, err
	}

	var (
		window     models.Window
		price      = new(big.Int)
		userCap    uint64
		maxPerTier uint64
		root       common.Hash
	)
	switch req.Mode {
	case models.ModePublic:
		cfg := l.store.public(req.Tier)
		window, price, userCap, maxPerTier = cfg.Window(), cfg.PriceOrZero(), cfg.MaxPerUser, cfg.MaxPerTier
	case models.ModeWhitelist:
		cfg := l.store.whitelist(req.Tier)
		window, userCap, maxPerTier, root = cfg.Window(), req.MaxAllocation, cfg.MaxPerTier, cfg.MerkleRoot
	}

	if !window.Contains(l.now()) {
		return nil, apierrors.ErrSaleWindowClosed.WithMessagef("tier %d %s sale is open from %d to %d", req.Tier, req.Mode, window.Start, window.End)
	}

	if req.Mode == models.ModePublic && price.Sign() == 0 {
		return nil, apierrors.ErrPriceNotConfigured.WithMessagef("tier %d has no public price", req.Tier)
	}

	userKey := state.UserKey{Mode: req.Mode, Tier: req.Tier, Claimant: req.Claimant}
	userCount, ok := addWithin(l.st.MintedPerUser(userKey), req.Amount, userCap)
	if !ok {
		return nil, apierrors.ErrExceedAllowance.WithMessagef("claimant allowance of %d exceeded", userCap)
	}

	tierKey := state.TierKey{Mode: req.Mode, Tier: req.Tier}
	tierCount, ok := addWithin(l.st.MintedPerTier(tierKey), req.Amount, maxPerTier)
	if !ok {
		return nil, apierrors.ErrExceedAllowance.WithMessagef("tier %d cap of %d exceeded", req.Tier, maxPerTier)
	}

	if req.Mode == models.ModeWhitelist {
		claim := models.AllocationClaim{Claimant: req.Claimant, MaxAllocation: req.MaxAllocation}
		if !merkle.Verify(root, claim, req.Proof) {
			return nil, apierrors.ErrInvalidProof
		}
	}

	l.st.SetMintedPerUser(userKey, userCount)
	l.st.SetMintedPerTier(tierKey, tierCount)
	l.st.AddLog(models.NewEvent(models.EventCountUpdated, models.CountUpdated{
		Claimant:  req.Claimant,
		Tier:      req.Tier,
		Mode:      req.Mode,
		UserCount: userCount,
		TierCount: tierCount,
	}))

	return &Reservation{UserCount: userCount, TierCount: tierCount, Price: price}, nil
}

func validateReserve(req ReserveRequest) error {
	switch {
	case !req.Mode.Valid():
		return apierrors.ErrInvalidRequest.WithMessagef("unknown sale mode %q", req.Mode)
	case req.Amount == 0:
		return apierrors.ErrInvalidRequest.WithMessage("amount must be positive")
	case !req.Tier.Valid():
		return apierrors.ErrInvalidRequest.WithMessagef("tier %d is outside [1, %d]", req.Tier, models.MaxTier)
	case req.Receiver == (common.Address{}):
		return apierrors.ErrInvalidRequest.WithMessage("receiver is the zero address")
	case req.Claimant == (common.Address{}):
		return apierrors.ErrInvalidRequest.WithMessage("claimant is the zero address")
	}
	return nil
}

// addWithin returns used+amount and whether it stays within limit.
// Overflow is treated as exceeding the limit.
func addWithin(used, amount, limit uint64) (uint64, bool) {
	sum := used + amount
	if sum < used || sum > limit {
		return 0, false
	}
	return sum, true
}
