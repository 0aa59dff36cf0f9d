package sale

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/licensesale/internal/models"
	"github.com/Bidon15/licensesale/internal/state"
)

// PublicClaimRequest is a paid claim in the public sale.
type PublicClaimRequest struct {
	Tier     models.Tier
	Receiver common.Address
	Amount   uint64
	Memo     string
}

// WhitelistClaimRequest is a free claim backed by a merkle proof of the
// caller's allocation.
type WhitelistClaimRequest struct {
	Tier          models.Tier
	Receiver      common.Address
	Amount        uint64
	MaxAllocation uint64
	Proof         []common.Hash
}

// ClaimResult describes a successful claim.
type ClaimResult struct {
	TokenIDs  []uint64 `json:"token_ids"`
	Payment   *big.Int `json:"payment"`
	UserCount uint64   `json:"user_count"`
	TierCount uint64   `json:"tier_count"`
}

// Engine runs claims. Each claim reserves ledger capacity first, then
// settles payment, then issues licenses.
type Engine struct {
	st       *state.State
	store    *ConfigStore
	ledger   *Ledger
	payments PaymentTokens
	issuer   Issuer
	spender  common.Address
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	clock  Clock
	logger *slog.Logger
}

// WithClock sets the clock used for sale windows.
func WithClock(c Clock) EngineOption {
	return func(o *engineOptions) {
		o.clock = c
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = l
	}
}

// NewEngine creates an engine. spender is the address the sale uses when
// pulling payment, so claimants approve it on the payment token.
func NewEngine(st *state.State, payments PaymentTokens, issuer Issuer, spender common.Address, opts ...EngineOption) *Engine {
	o := engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	store := NewConfigStore(st)
	return &Engine{
		st:       st,
		store:    store,
		ledger:   NewLedger(st, store, o.clock),
		payments: payments,
		issuer:   issuer,
		spender:  spender,
		logger:   o.logger,
	}
}

// Store returns the configuration store.
func (e *Engine) Store() *ConfigStore {
	return e.store
}

// Ledger returns the accounting ledger.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Spender returns the address that pulls payment.
func (e *Engine) Spender() common.Address {
	return e.spender
}

// Settings returns the sale settings.
func (e *Engine) Settings() models.Settings {
	return e.st.Settings()
}

// PublicClaim sells req.Amount licenses of a tier to caller at the tier
// price. Payment is pulled from caller to the fund receiver; the licenses
// go to req.Receiver.
func (e *Engine) PublicClaim(ctx context.Context, caller common.Address, req PublicClaimRequest) (res *ClaimResult, err error) {
	snap := e.st.Snapshot()
	defer func() {
		if err != nil {
			e.st.RevertToSnapshot(snap)
		}
	}()

	r, err := e.ledger.Reserve(ctx, ReserveRequest{
		Mode:     models.ModePublic,
		Tier:     req.Tier,
		Claimant: caller,
		Receiver: req.Receiver,
		Amount:   req.Amount,
	})
	if err != nil {
		return nil, err
	}

	payment := new(big.Int).Mul(r.Price, new(big.Int).SetUint64(req.Amount))
	settings := e.st.Settings()
	if err := e.payments(settings.PaymentToken).TransferFrom(ctx, e.spender, caller, settings.FundReceiver, payment); err != nil {
		return nil, fmt.Errorf("payment of %s failed: %w", payment, err)
	}

	ids, err := e.issue(ctx, caller, req.Receiver, req.Tier, models.ModePublic, r.Price, req.Memo, req.Amount)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("public claim",
		slog.String("caller", caller.Hex()),
		slog.Int("tier", int(req.Tier)),
		slog.Uint64("amount", req.Amount),
		slog.String("payment", payment.String()),
	)
	return &ClaimResult{TokenIDs: ids, Payment: payment, UserCount: r.UserCount, TierCount: r.TierCount}, nil
}

// WhitelistClaim issues req.Amount free licenses of a tier to req.Receiver
// when caller proves an allocation in the tier's allowlist.
func (e *Engine) WhitelistClaim(ctx context.Context, caller common.Address, req WhitelistClaimRequest) (res *ClaimResult, err error) {
	snap := e.st.Snapshot()
	defer func() {
		if err != nil {
			e.st.RevertToSnapshot(snap)
		}
	}()

	r, err := e.ledger.Reserve(ctx, ReserveRequest{
		Mode:          models.ModeWhitelist,
		Tier:          req.Tier,
		Claimant:      caller,
		Receiver:      req.Receiver,
		Amount:        req.Amount,
		MaxAllocation: req.MaxAllocation,
		Proof:         req.Proof,
	})
	if err != nil {
		return nil, err
	}

	ids, err := e.issue(ctx, caller, req.Receiver, req.Tier, models.ModeWhitelist, r.Price, "", req.Amount)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("whitelist claim",
		slog.String("caller", caller.Hex()),
		slog.Int("tier", int(req.Tier)),
		slog.Uint64("amount", req.Amount),
	)
	return &ClaimResult{TokenIDs: ids, Payment: new(big.Int), UserCount: r.UserCount, TierCount: r.TierCount}, nil
}

func (e *Engine) issue(ctx context.Context, sender, receiver common.Address, tier models.Tier, mode models.Mode, price *big.Int, memo string, amount uint64) ([]uint64, error) {
	ids := make([]uint64, 0, amount)
	for i := uint64(0); i < amount; i++ {
		id, err := e.issuer.Issue(ctx, receiver)
		if err != nil {
			return nil, fmt.Errorf("issuing license %d of %d: %w", i+1, amount, err)
		}
		ids = append(ids, id)
		e.st.AddLog(models.NewEvent(models.EventTokenIssued, models.TokenIssued{
			Sender:   sender,
			Receiver: receiver,
			Tier:     tier,
			TokenID:  id,
			Price:    new(big.Int).Set(price),
			Mode:     mode,
			Memo:     memo,
		}))
	}
	return ids, nil
}
