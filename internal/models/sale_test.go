package models

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTier_Valid(t *testing.T) {
	tests := []struct {
		tier Tier
		want bool
	}{
		{0, false},
		{1, true},
		{MaxTier, true},
		{MaxTier + 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.tier.Valid(), "tier %d", tt.tier)
	}
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, Tier(12), tier)

	_, err = ParseTier("abc")
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Whitelist")
	require.NoError(t, err)
	assert.Equal(t, ModeWhitelist, m)
	assert.Equal(t, uint8(1), m.Index())
	assert.Equal(t, uint8(0), ModePublic.Index())

	_, err = ParseMode("presale")
	assert.Error(t, err)
}

func TestWindow_Contains(t *testing.T) {
	w := Window{Start: 100, End: 200}

	assert.False(t, w.Contains(time.Unix(99, 0)))
	assert.True(t, w.Contains(time.Unix(100, 0)))
	assert.True(t, w.Contains(time.Unix(150, 0)))
	assert.True(t, w.Contains(time.Unix(200, 0)))
	assert.False(t, w.Contains(time.Unix(201, 0)))
	assert.False(t, w.Contains(time.Unix(-1, 0)))
}

func TestPublicSaleConfig_Copy(t *testing.T) {
	cfg := PublicSaleConfig{Price: big.NewInt(100), MaxPerTier: 2}
	cp := cfg.Copy()
	cp.Price.SetInt64(5)

	assert.Equal(t, int64(100), cfg.Price.Int64())
	assert.Equal(t, 0, PublicSaleConfig{}.PriceOrZero().Sign())
}

func TestEventKind_Topic(t *testing.T) {
	for kind, sig := range eventSignatures {
		assert.Equal(t, crypto.Keccak256Hash([]byte(sig)), kind.Topic(), string(kind))
	}

	ev := NewEvent(EventCountUpdated, CountUpdated{Tier: 1})
	assert.Equal(t, EventCountUpdated.Topic(), ev.Topic)
}
