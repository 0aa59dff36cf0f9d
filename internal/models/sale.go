// Package models contains data models for the license sale.
package models

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MaxTier is the highest tier number accepted by the sale.
const MaxTier Tier = 38

// Tier identifies an independent sale bucket. Valid tiers are 1..MaxTier.
type Tier uint16

// Valid reports whether the tier is inside [1, MaxTier].
func (t Tier) Valid() bool {
	return t != 0 && t <= MaxTier
}

// ParseTier parses a decimal tier number without range checking.
func ParseTier(s string) (Tier, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid tier %q: %w", s, err)
	}
	return Tier(n), nil
}

// Mode is a sale mode.
type Mode string

// Sale modes.
const (
	ModePublic    Mode = "public"
	ModeWhitelist Mode = "whitelist"
)

// Valid reports whether m is a known sale mode.
func (m Mode) Valid() bool {
	return m == ModePublic || m == ModeWhitelist
}

// Index returns the numeric mode used in event payloads (public=0, whitelist=1).
func (m Mode) Index() uint8 {
	if m == ModeWhitelist {
		return 1
	}
	return 0
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown sale mode %q", s)
	}
	return m, nil
}

// PublicSaleConfig is the per-tier configuration of the public sale.
// Price is in payment-token base units per license; zero means unset.
type PublicSaleConfig struct {
	Price       *big.Int `json:"price" yaml:"price"`
	MaxPerTier  uint64   `json:"max_per_tier" yaml:"max_per_tier"`
	MaxPerUser  uint64   `json:"max_per_user" yaml:"max_per_user"`
	TotalMinted uint64   `json:"total_minted" yaml:"total_minted"`
	Start       uint64   `json:"start" yaml:"start"`
	End         uint64   `json:"end" yaml:"end"`
}

// PriceOrZero returns the configured price, or zero when unset.
func (c PublicSaleConfig) PriceOrZero() *big.Int {
	if c.Price == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(c.Price)
}

// Copy returns a deep copy of the config.
func (c PublicSaleConfig) Copy() PublicSaleConfig {
	c.Price = c.PriceOrZero()
	return c
}

// Window returns the sale window.
func (c PublicSaleConfig) Window() Window {
	return Window{Start: c.Start, End: c.End}
}

// WhitelistSaleConfig is the per-tier configuration of the whitelist sale.
// The allowlist itself lives only behind MerkleRoot.
type WhitelistSaleConfig struct {
	MerkleRoot  common.Hash `json:"merkle_root" yaml:"merkle_root"`
	MaxPerTier  uint64      `json:"max_per_tier" yaml:"max_per_tier"`
	TotalMinted uint64      `json:"total_minted" yaml:"total_minted"`
	Start       uint64      `json:"start" yaml:"start"`
	End         uint64      `json:"end" yaml:"end"`
}

// Window returns the sale window.
func (c WhitelistSaleConfig) Window() Window {
	return Window{Start: c.Start, End: c.End}
}

// Window is an inclusive [Start, End] range of unix seconds.
type Window struct {
	Start uint64
	End   uint64
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	unix := t.Unix()
	if unix < 0 {
		return false
	}
	now := uint64(unix)
	return now >= w.Start && now <= w.End
}

// AllocationClaim is the payload committed to by a whitelist merkle leaf.
type AllocationClaim struct {
	Claimant      common.Address `json:"claimant" yaml:"claimant"`
	MaxAllocation uint64         `json:"max_allocation" yaml:"max_allocation"`
}

// Settings holds the sale-wide administrative settings.
type Settings struct {
	Owner        common.Address `json:"owner"`
	BaseURI      string         `json:"base_uri"`
	FundReceiver common.Address `json:"fund_receiver"`
	PaymentToken common.Address `json:"payment_token"`
	Transferable bool           `json:"transferable"`
	NextTokenID  uint64         `json:"next_token_id"`
}
