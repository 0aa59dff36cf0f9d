package sale

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/licensesale/internal/merkle"
	"github.com/Bidon15/licensesale/internal/models"
	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
	"github.com/Bidon15/licensesale/internal/state"
	"github.com/Bidon15/licensesale/internal/token"
)

var (
	owner    = common.HexToAddress("0x000000000000000000000000000000000000a11a")
	treasury = common.HexToAddress("0x0000000000000000000000000000000000007eaf")
	usdc     = common.HexToAddress("0x0000000000000000000000000000000000005dc0")
	saleAddr = common.HexToAddress("0x0000000000000000000000000000000000005a1e")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

const baseTime int64 = 1_700_000_000

type fixture struct {
	st       *state.State
	book     *token.ERC20Book
	registry *token.Registry
	engine   *Engine
	admin    *Admin
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithPayments(t, nil)
}

// newFixtureWithPayments builds a sale with an owner-only authorizer. When
// wrap is non-nil it decorates the payment token resolved by the engine.
func newFixtureWithPayments(t *testing.T, wrap func(PaymentToken) PaymentToken) *fixture {
	t.Helper()

	f := &fixture{now: time.Unix(baseTime, 0)}
	f.st = state.New(models.Settings{
		Owner:        owner,
		BaseURI:      "ipfs://licenses/",
		FundReceiver: treasury,
		PaymentToken: usdc,
	})
	f.book = token.NewERC20Book(f.st)
	f.registry = token.NewRegistry(f.st)

	payments := BookPayments(f.book)
	if wrap != nil {
		inner := payments
		payments = func(addr common.Address) PaymentToken { return wrap(inner(addr)) }
	}
	f.engine = NewEngine(f.st, payments, f.registry, saleAddr, WithClock(func() time.Time { return f.now }))

	authz := AuthorizerFunc(func(ctx context.Context, caller common.Address, action Action) error {
		if caller != f.st.Settings().Owner {
			return apierrors.ErrUnauthorized.WithMessagef("%s may not %s", caller.Hex(), action)
		}
		return nil
	})
	f.admin = NewAdmin(f.st, f.engine.Store(), authz, f.book)
	return f
}

// fund mints payment tokens to who and approves the sale for all of them.
func (f *fixture) fund(t *testing.T, who common.Address, amount int64) {
	t.Helper()
	require.NoError(t, f.book.Mint(usdc, who, big.NewInt(amount)))
	require.NoError(t, f.book.At(usdc).Approve(who, saleAddr, big.NewInt(amount)))
}

func (f *fixture) setPublic(t *testing.T, tier models.Tier, cfg models.PublicSaleConfig) {
	t.Helper()
	require.NoError(t, f.admin.SetPublicConfig(context.Background(), owner, tier, cfg))
}

func (f *fixture) setWhitelist(t *testing.T, tier models.Tier, cfg models.WhitelistSaleConfig) {
	t.Helper()
	require.NoError(t, f.admin.SetWhitelistConfig(context.Background(), owner, tier, cfg))
}

func (f *fixture) window(seconds uint64) (uint64, uint64) {
	start := uint64(f.now.Unix())
	return start, start + seconds
}

func (f *fixture) balance(who common.Address) int64 {
	return f.book.At(usdc).BalanceOf(who).Int64()
}

func mustTree(t *testing.T, claims ...models.AllocationClaim) *merkle.Tree {
	t.Helper()
	tree, err := merkle.Build(claims)
	require.NoError(t, err)
	return tree
}

func mustProof(t *testing.T, tree *merkle.Tree, who common.Address) []common.Hash {
	t.Helper()
	proof, err := tree.Proof(who)
	require.NoError(t, err)
	return proof
}
