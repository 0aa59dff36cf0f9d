package sale

import (
	"context"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/licensesale/internal/models"
	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
	"github.com/Bidon15/licensesale/internal/state"
)

// Admin exposes the privileged setters. Every call is authorized before
// any input is looked at.
type Admin struct {
	st     *state.State
	store  *ConfigStore
	authz  Authorizer
	faucet Faucet
}

// NewAdmin creates the admin interface. faucet may be nil, in which case
// MintPaymentToken is rejected.
func NewAdmin(st *state.State, store *ConfigStore, authz Authorizer, faucet Faucet) *Admin {
	return &Admin{st: st, store: store, authz: authz, faucet: faucet}
}

// frame runs fn as a call frame after authorizing caller for action.
func (a *Admin) frame(ctx context.Context, caller common.Address, action Action, fn func() error) (err error) {
	if err := a.authz.Authorize(ctx, caller, action); err != nil {
		return err
	}
	snap := a.st.Snapshot()
	defer func() {
		if err != nil {
			a.st.RevertToSnapshot(snap)
		}
	}()
	return fn()
}

// SetBaseURI sets the prefix of license metadata URIs.
func (a *Admin) SetBaseURI(ctx context.Context, caller common.Address, uri string) error {
	return a.frame(ctx, caller, ActionSetBaseURI, func() error {
		if uri == "" {
			return apierrors.ErrInvalidURI.WithMessage("base URI must not be empty")
		}
		a.updateSettings("base_uri", uri, func(s *models.Settings) { s.BaseURI = uri })
		return nil
	})
}

// SetFundReceiver sets the address that receives public sale payments.
func (a *Admin) SetFundReceiver(ctx context.Context, caller common.Address, addr common.Address) error {
	return a.frame(ctx, caller, ActionSetFundReceiver, func() error {
		if addr == (common.Address{}) {
			return apierrors.ErrAddressZeroRejected.WithMessage("fund receiver must not be the zero address")
		}
		a.updateSettings("fund_receiver", addr.Hex(), func(s *models.Settings) { s.FundReceiver = addr })
		return nil
	})
}

// SetPaymentToken sets the ERC-20 token public claims are paid in.
func (a *Admin) SetPaymentToken(ctx context.Context, caller common.Address, addr common.Address) error {
	return a.frame(ctx, caller, ActionSetPaymentToken, func() error {
		if addr == (common.Address{}) {
			return apierrors.ErrAddressZeroRejected.WithMessage("payment token must not be the zero address")
		}
		a.updateSettings("payment_token", addr.Hex(), func(s *models.Settings) { s.PaymentToken = addr })
		return nil
	})
}

// SetPublicConfig overwrites the public config of a tier.
func (a *Admin) SetPublicConfig(ctx context.Context, caller common.Address, tier models.Tier, cfg models.PublicSaleConfig) error {
	return a.frame(ctx, caller, ActionSetPublicConfig, func() error {
		return a.store.SetPublicConfig(tier, cfg)
	})
}

// SetWhitelistConfig overwrites the whitelist config of a tier.
func (a *Admin) SetWhitelistConfig(ctx context.Context, caller common.Address, tier models.Tier, cfg models.WhitelistSaleConfig) error {
	return a.frame(ctx, caller, ActionSetWhitelistConfig, func() error {
		return a.store.SetWhitelistConfig(tier, cfg)
	})
}

// SetTransferable toggles whether issued licenses may change custody.
// Issuance is unaffected.
func (a *Admin) SetTransferable(ctx context.Context, caller common.Address, transferable bool) error {
	return a.frame(ctx, caller, ActionSetTransferable, func() error {
		a.updateSettings("transferable", strconv.FormatBool(transferable), func(s *models.Settings) { s.Transferable = transferable })
		return nil
	})
}

// TransferOwnership hands the admin role to newOwner.
func (a *Admin) TransferOwnership(ctx context.Context, caller common.Address, newOwner common.Address) error {
	return a.frame(ctx, caller, ActionTransferOwnership, func() error {
		if newOwner == (common.Address{}) {
			return apierrors.ErrAddressZeroRejected.WithMessage("new owner must not be the zero address")
		}
		a.updateSettings("owner", newOwner.Hex(), func(s *models.Settings) { s.Owner = newOwner })
		return nil
	})
}

// MintPaymentToken credits payment tokens to an account.
func (a *Admin) MintPaymentToken(ctx context.Context, caller common.Address, tokenAddr, to common.Address, amount *big.Int) error {
	return a.frame(ctx, caller, ActionMintPaymentToken, func() error {
		if a.faucet == nil {
			return apierrors.ErrForbidden.WithMessage("payment token faucet is disabled")
		}
		return a.faucet.Mint(tokenAddr, to, amount)
	})
}

func (a *Admin) updateSettings(field, value string, mutate func(*models.Settings)) {
	s := a.st.Settings()
	mutate(&s)
	a.st.SetSettings(s)
	a.st.AddLog(models.NewEvent(models.EventSettingsChanged, models.SettingsChanged{
		Field: field,
		Value: value,
	}))
}
