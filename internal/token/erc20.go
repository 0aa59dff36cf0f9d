// Package token provides the in-process token collaborators of the sale:
// an ERC-20 style payment book and the license registry.
package token

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/licensesale/internal/models"
	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
	"github.com/Bidon15/licensesale/internal/state"
)

// ERC20Book keeps balances and allowances of any number of payment tokens,
// keyed by token address, inside the journaled state.
type ERC20Book struct {
	st *state.State
}

// NewERC20Book creates a payment book over st.
func NewERC20Book(st *state.State) *ERC20Book {
	return &ERC20Book{st: st}
}

// At returns the token living at addr.
func (b *ERC20Book) At(addr common.Address) *ERC20 {
	return &ERC20{st: b.st, addr: addr}
}

// Mint credits amount of the token at addr to holder.
func (b *ERC20Book) Mint(addr, to common.Address, amount *big.Int) error {
	if addr == (common.Address{}) {
		return apierrors.ErrAddressZeroRejected.WithMessage("payment token is the zero address")
	}
	return b.At(addr).Mint(to, amount)
}

// ERC20 is a handle on a single payment token.
type ERC20 struct {
	st   *state.State
	addr common.Address
}

// Address returns the token address.
func (t *ERC20) Address() common.Address {
	return t.addr
}

// BalanceOf returns the balance of holder.
func (t *ERC20) BalanceOf(holder common.Address) *big.Int {
	return t.st.Balance(state.BalanceKey{Token: t.addr, Holder: holder})
}

// Allowance returns how much spender may move on behalf of owner.
func (t *ERC20) Allowance(owner, spender common.Address) *big.Int {
	return t.st.Allowance(state.AllowanceKey{Token: t.addr, Owner: owner, Spender: spender})
}

// Approve sets spender's allowance over owner's tokens.
func (t *ERC20) Approve(owner, spender common.Address, amount *big.Int) error {
	if spender == (common.Address{}) {
		return apierrors.ErrInvalidRequest.WithMessage("spender is the zero address")
	}
	if amount == nil || amount.Sign() < 0 {
		return apierrors.ErrInvalidRequest.WithMessage("amount must be non-negative")
	}
	t.st.SetAllowance(state.AllowanceKey{Token: t.addr, Owner: owner, Spender: spender}, amount)
	return nil
}

// Mint credits amount to holder.
func (t *ERC20) Mint(to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return apierrors.ErrAddressZeroRejected
	}
	if amount == nil || amount.Sign() <= 0 {
		return apierrors.ErrInvalidRequest.WithMessage("amount must be positive")
	}
	key := state.BalanceKey{Token: t.addr, Holder: to}
	t.st.SetBalance(key, new(big.Int).Add(t.st.Balance(key), amount))
	t.st.AddLog(models.NewEvent(models.EventPaymentTransferred, models.PaymentTransferred{
		Token:  t.addr,
		To:     to,
		Amount: new(big.Int).Set(amount),
	}))
	return nil
}

// Transfer moves amount from the caller's own balance.
func (t *ERC20) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return t.move(from, to, amount)
}

// TransferFrom moves amount from one holder to another using spender's
// allowance. It fails without side effects on insufficient balance or
// allowance.
func (t *ERC20) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return apierrors.ErrInvalidRequest.WithMessage("amount must be non-negative")
	}
	allowKey := state.AllowanceKey{Token: t.addr, Owner: from, Spender: spender}
	allowance := t.st.Allowance(allowKey)
	if allowance.Cmp(amount) < 0 {
		return apierrors.ErrInsufficientAllowance.WithMessagef("allowance %s, required %s", allowance, amount)
	}
	fromKey := state.BalanceKey{Token: t.addr, Holder: from}
	if t.st.Balance(fromKey).Cmp(amount) < 0 {
		return apierrors.ErrInsufficientBalance.WithMessagef("balance %s, required %s", t.st.Balance(fromKey), amount)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	t.st.SetAllowance(allowKey, new(big.Int).Sub(allowance, amount))
	return nil
}

func (t *ERC20) move(from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return apierrors.ErrInvalidRequest.WithMessage("recipient is the zero address")
	}
	if amount == nil || amount.Sign() < 0 {
		return apierrors.ErrInvalidRequest.WithMessage("amount must be non-negative")
	}
	fromKey := state.BalanceKey{Token: t.addr, Holder: from}
	balance := t.st.Balance(fromKey)
	if balance.Cmp(amount) < 0 {
		return apierrors.ErrInsufficientBalance.WithMessagef("balance %s, required %s", balance, amount)
	}
	toKey := state.BalanceKey{Token: t.addr, Holder: to}
	t.st.SetBalance(fromKey, new(big.Int).Sub(balance, amount))
	t.st.SetBalance(toKey, new(big.Int).Add(t.st.Balance(toKey), amount))
	t.st.AddLog(models.NewEvent(models.EventPaymentTransferred, models.PaymentTransferred{
		Token:  t.addr,
		From:   from,
		To:     to,
		Amount: new(big.Int).Set(amount),
	}))
	return nil
}
