package sale

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/licensesale/internal/models"
	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
)

func TestReserve_CheckOrder(t *testing.T) {
	tree := mustTree(t,
		models.AllocationClaim{Claimant: alice, MaxAllocation: 5},
		models.AllocationClaim{Claimant: bob, MaxAllocation: 5},
	)
	proof, err := tree.Proof(alice)
	require.NoError(t, err)

	open := uint64(baseTime)
	tests := []struct {
		name    string
		public  *models.PublicSaleConfig
		wl      *models.WhitelistSaleConfig
		req     ReserveRequest
		wantErr error
	}{
		{
			name:    "zero amount beats closed window",
			req:     ReserveRequest{Mode: models.ModePublic, Tier: 1, Claimant: alice, Receiver: alice},
			wantErr: apierrors.ErrInvalidRequest,
		},
		{
			name:    "tier out of range",
			req:     ReserveRequest{Mode: models.ModePublic, Tier: models.MaxTier + 1, Claimant: alice, Receiver: alice, Amount: 1},
			wantErr: apierrors.ErrInvalidRequest,
		},
		{
			name:    "tier zero",
			req:     ReserveRequest{Mode: models.ModeWhitelist, Claimant: alice, Receiver: alice, Amount: 1},
			wantErr: apierrors.ErrInvalidRequest,
		},
		{
			name:    "zero receiver",
			req:     ReserveRequest{Mode: models.ModePublic, Tier: 1, Claimant: alice, Amount: 1},
			wantErr: apierrors.ErrInvalidRequest,
		},
		{
			name:    "unknown mode",
			req:     ReserveRequest{Mode: "auction", Tier: 1, Claimant: alice, Receiver: alice, Amount: 1},
			wantErr: apierrors.ErrInvalidRequest,
		},
		{
			name:    "closed window beats unset price",
			public:  &models.PublicSaleConfig{MaxPerTier: 0, Start: open + 10, End: open + 20},
			req:     ReserveRequest{Mode: models.ModePublic, Tier: 1, Claimant: alice, Receiver: alice, Amount: 1},
			wantErr: apierrors.ErrSaleWindowClosed,
		},
		{
			name:    "unset price beats caps",
			public:  &models.PublicSaleConfig{Start: open, End: open + 20},
			req:     ReserveRequest{Mode: models.ModePublic, Tier: 1, Claimant: alice, Receiver: alice, Amount: 1},
			wantErr: apierrors.ErrPriceNotConfigured,
		},
		{
			name:    "user cap",
			public:  &models.PublicSaleConfig{Price: big.NewInt(1), MaxPerTier: 10, MaxPerUser: 1, Start: open, End: open},
			req:     ReserveRequest{Mode: models.ModePublic, Tier: 1, Claimant: alice, Receiver: alice, Amount: 2},
			wantErr: apierrors.ErrExceedAllowance,
		},
		{
			name:    "tier cap",
			public:  &models.PublicSaleConfig{Price: big.NewInt(1), MaxPerTier: 1, MaxPerUser: 10, Start: open, End: open},
			req:     ReserveRequest{Mode: models.ModePublic, Tier: 1, Claimant: alice, Receiver: alice, Amount: 2},
			wantErr: apierrors.ErrExceedAllowance,
		},
		{
			name:    "amount at the uint64 limit",
			public:  &models.PublicSaleConfig{Price: big.NewInt(1), MaxPerTier: math.MaxUint64, MaxPerUser: math.MaxUint64, Start: open, End: open},
			req:     ReserveRequest{Mode: models.ModePublic, Tier: 1, Claimant: alice, Receiver: alice, Amount: math.MaxUint64},
			wantErr: nil,
		},
		{
			name:    "cap beats bad proof",
			wl:      &models.WhitelistSaleConfig{MerkleRoot: tree.Root(), MaxPerTier: 100, Start: open, End: open},
			req:     ReserveRequest{Mode: models.ModeWhitelist, Tier: 1, Claimant: alice, Receiver: alice, Amount: 6, MaxAllocation: 5},
			wantErr: apierrors.ErrExceedAllowance,
		},
		{
			name:    "bad proof",
			wl:      &models.WhitelistSaleConfig{MerkleRoot: tree.Root(), MaxPerTier: 100, Start: open, End: open},
			req:     ReserveRequest{Mode: models.ModeWhitelist, Tier: 1, Claimant: bob, Receiver: bob, Amount: 1, MaxAllocation: 5, Proof: proof},
			wantErr: apierrors.ErrInvalidProof,
		},
		{
			name: "valid whitelist reserve",
			wl:   &models.WhitelistSaleConfig{MerkleRoot: tree.Root(), MaxPerTier: 100, Start: open, End: open},
			req:  ReserveRequest{Mode: models.ModeWhitelist, Tier: 1, Claimant: alice, Receiver: bob, Amount: 5, MaxAllocation: 5, Proof: proof},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.public != nil {
				f.setPublic(t, 1, *tt.public)
			}
			if tt.wl != nil {
				f.setWhitelist(t, 1, *tt.wl)
			}

			r, err := f.engine.Ledger().Reserve(context.Background(), tt.req)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Nil(t, r)
				assert.Equal(t, uint64(0), f.engine.Ledger().MintedPerTier(models.ModePublic, 1))
				assert.Equal(t, uint64(0), f.engine.Ledger().MintedPerTier(models.ModeWhitelist, 1))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.req.Amount, r.UserCount)
			assert.Equal(t, tt.req.Amount, r.TierCount)
		})
	}
}

func TestReserve_OverflowIsABreach(t *testing.T) {
	f := newFixture(t)
	f.setPublic(t, 1, models.PublicSaleConfig{
		Price: big.NewInt(1), MaxPerTier: math.MaxUint64, MaxPerUser: math.MaxUint64,
		Start: uint64(baseTime), End: uint64(baseTime),
	})
	ledger := f.engine.Ledger()
	req := ReserveRequest{Mode: models.ModePublic, Tier: 1, Claimant: alice, Receiver: alice, Amount: 2}

	_, err := ledger.Reserve(context.Background(), req)
	require.NoError(t, err)

	req.Amount = math.MaxUint64 - 1
	_, err = ledger.Reserve(context.Background(), req)
	assert.True(t, errors.Is(err, apierrors.ErrExceedAllowance))
	assert.Equal(t, uint64(2), ledger.MintedPerUser(models.ModePublic, 1, alice))
}

func TestReserve_ModesAreIndependent(t *testing.T) {
	f := newFixture(t)
	tree := mustTree(t, models.AllocationClaim{Claimant: alice, MaxAllocation: 3})
	f.setPublic(t, 5, models.PublicSaleConfig{Price: big.NewInt(1), MaxPerTier: 3, MaxPerUser: 3, Start: 0, End: math.MaxUint64})
	f.setWhitelist(t, 5, models.WhitelistSaleConfig{MerkleRoot: tree.Root(), MaxPerTier: 3, Start: 0, End: math.MaxUint64})

	ctx := context.Background()
	_, err := f.engine.Ledger().Reserve(ctx, ReserveRequest{Mode: models.ModePublic, Tier: 5, Claimant: alice, Receiver: alice, Amount: 3})
	require.NoError(t, err)
	_, err = f.engine.Ledger().Reserve(ctx, ReserveRequest{Mode: models.ModeWhitelist, Tier: 5, Claimant: alice, Receiver: alice, Amount: 3, MaxAllocation: 3})
	require.NoError(t, err, "a single-leaf tree verifies with an empty proof")

	assert.Equal(t, uint64(3), f.engine.Ledger().MintedPerTier(models.ModePublic, 5))
	assert.Equal(t, uint64(3), f.engine.Ledger().MintedPerTier(models.ModeWhitelist, 5))
	assert.Equal(t, uint64(0), f.engine.Ledger().MintedPerTier(models.ModePublic, 6))
}

func TestNewLedger_DefaultsToWallClock(t *testing.T) {
	f := newFixture(t)
	l := NewLedger(f.st, f.engine.Store(), nil)
	now := uint64(time.Now().Unix())
	f.setPublic(t, 1, models.PublicSaleConfig{Price: big.NewInt(1), MaxPerTier: 1, MaxPerUser: 1, Start: now - 60, End: now + 3600})

	_, err := l.Reserve(context.Background(), ReserveRequest{Mode: models.ModePublic, Tier: 1, Claimant: alice, Receiver: common.HexToAddress("0x01"), Amount: 1})
	require.NoError(t, err)
}
