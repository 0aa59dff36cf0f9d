// Package sale implements the tiered license sale: the per-tier
// configuration store, the accounting ledger, the claim engine and the
// owner-gated admin setters.
//
// Every entry point mutates a journaled state.State and runs as a call
// frame. A failing call reverts to the snapshot taken on entry, so a
// rejected nested call leaves no trace while the enclosing call keeps its
// own effects. The engine mutates the ledger before it calls any
// collaborator, which is what makes reentrant claims observe the updated
// counters.
package sale

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/licensesale/internal/token"
)

// PaymentToken is the ERC-20 collaborator used to settle public claims.
type PaymentToken interface {
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
}

// PaymentTokens resolves the payment token living at an address.
type PaymentTokens func(addr common.Address) PaymentToken

// BookPayments resolves payment tokens from an in-process ERC-20 book.
func BookPayments(book *token.ERC20Book) PaymentTokens {
	return func(addr common.Address) PaymentToken {
		return book.At(addr)
	}
}

// Issuer is the license registry. It owns sequential id assignment.
type Issuer interface {
	Issue(ctx context.Context, owner common.Address) (uint64, error)
}

// Faucet credits payment tokens. Only the admin reaches it.
type Faucet interface {
	Mint(tokenAddr, to common.Address, amount *big.Int) error
}

// Action names a privileged operation.
type Action string

// Admin actions.
const (
	ActionSetBaseURI         Action = "set_base_uri"
	ActionSetFundReceiver    Action = "set_fund_receiver"
	ActionSetPaymentToken    Action = "set_payment_token"
	ActionSetPublicConfig    Action = "set_public_config"
	ActionSetWhitelistConfig Action = "set_whitelist_config"
	ActionSetTransferable    Action = "set_transferable"
	ActionTransferOwnership  Action = "transfer_ownership"
	ActionMintPaymentToken   Action = "mint_payment_token"
)

// Actions lists every admin action.
var Actions = []Action{
	ActionSetBaseURI,
	ActionSetFundReceiver,
	ActionSetPaymentToken,
	ActionSetPublicConfig,
	ActionSetWhitelistConfig,
	ActionSetTransferable,
	ActionTransferOwnership,
	ActionMintPaymentToken,
}

// Authorizer decides whether caller may perform action. It returns an
// Unauthorized error when it may not.
type Authorizer interface {
	Authorize(ctx context.Context, caller common.Address, action Action) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, caller common.Address, action Action) error

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, caller common.Address, action Action) error {
	return f(ctx, caller, action)
}

// Clock returns the current time.
type Clock func() time.Time
