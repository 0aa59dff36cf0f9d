package jsonrpc

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/licensesale/internal/executor"
	"github.com/Bidon15/licensesale/internal/sale"
	"github.com/Bidon15/licensesale/internal/token"
)

// TokenHandler handles the token_* methods of the payment token book.
// The token defaults to the sale's payment token and the spender to the
// sale spender, so approving the sale takes only an amount.
type TokenHandler struct {
	exec   *executor.Executor
	book   *token.ERC20Book
	engine *sale.Engine
}

// NewTokenHandler creates a new token handler.
func NewTokenHandler(exec *executor.Executor, book *token.ERC20Book, engine *sale.Engine) *TokenHandler {
	return &TokenHandler{exec: exec, book: book, engine: engine}
}

type approveParams struct {
	Token   string `json:"token,omitempty" validate:"omitempty,eth_addr"`
	Spender string `json:"spender,omitempty" validate:"omitempty,eth_addr"`
	Amount  string `json:"amount" validate:"required,number"`
}

type balanceParams struct {
	Token  string `json:"token,omitempty" validate:"omitempty,eth_addr"`
	Holder string `json:"holder" validate:"required,eth_addr"`
}

type allowanceParams struct {
	Token   string `json:"token,omitempty" validate:"omitempty,eth_addr"`
	Owner   string `json:"owner" validate:"required,eth_addr"`
	Spender string `json:"spender,omitempty" validate:"omitempty,eth_addr"`
}

// AmountResult is a token amount keyed by the accounts it belongs to.
type AmountResult struct {
	Token   common.Address  `json:"token"`
	Holder  *common.Address `json:"holder,omitempty"`
	Owner   *common.Address `json:"owner,omitempty"`
	Spender *common.Address `json:"spender,omitempty"`
	Amount  *big.Int        `json:"amount"`
}

func (h *TokenHandler) paymentToken() common.Address {
	return executor.Read(h.exec, func() common.Address { return h.engine.Settings().PaymentToken })
}

// HandleApprove implements token_approve for the signed caller.
func (h *TokenHandler) HandleApprove(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	caller, rpcErr := callerFrom(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var p approveParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	spender := optionalAddress(p.Spender, h.engine.Spender())
	var tokenAddr common.Address
	_, err := h.exec.Execute(ctx, MethodTokenApprove, func(ctx context.Context) error {
		tokenAddr = optionalAddress(p.Token, h.engine.Settings().PaymentToken)
		return h.book.At(tokenAddr).Approve(caller, spender, amount)
	})
	if err != nil {
		return nil, FromError(err)
	}
	return AmountResult{Token: tokenAddr, Owner: &caller, Spender: &spender, Amount: amount}, nil
}

// HandleBalanceOf implements token_balanceOf.
func (h *TokenHandler) HandleBalanceOf(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p balanceParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	tokenAddr := optionalAddress(p.Token, h.paymentToken())
	holder := common.HexToAddress(p.Holder)
	amount := executor.Read(h.exec, func() *big.Int { return h.book.At(tokenAddr).BalanceOf(holder) })
	return AmountResult{Token: tokenAddr, Holder: &holder, Amount: amount}, nil
}

// HandleAllowance implements token_allowance.
func (h *TokenHandler) HandleAllowance(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p allowanceParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	tokenAddr := optionalAddress(p.Token, h.paymentToken())
	owner := common.HexToAddress(p.Owner)
	spender := optionalAddress(p.Spender, h.engine.Spender())
	amount := executor.Read(h.exec, func() *big.Int { return h.book.At(tokenAddr).Allowance(owner, spender) })
	return AmountResult{Token: tokenAddr, Owner: &owner, Spender: &spender, Amount: amount}, nil
}
