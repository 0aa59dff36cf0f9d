// Package tierfile reads offline tier configuration files and lints them.
// The sale accepts any configuration the owner sets; these checks only
// warn about configurations that are likely mistakes.
package tierfile

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"

	"github.com/Bidon15/licensesale/internal/models"
)

// PublicTier is one public tier as written in a tier file.
type PublicTier struct {
	Price      string `yaml:"price" json:"price"`
	MaxPerTier uint64 `yaml:"max_per_tier" json:"max_per_tier"`
	MaxPerUser uint64 `yaml:"max_per_user" json:"max_per_user"`
	Start      uint64 `yaml:"start" json:"start"`
	End        uint64 `yaml:"end" json:"end"`
}

// WhitelistTier is one whitelist tier as written in a tier file.
type WhitelistTier struct {
	MerkleRoot string `yaml:"merkle_root" json:"merkle_root"`
	MaxPerTier uint64 `yaml:"max_per_tier" json:"max_per_tier"`
	Start      uint64 `yaml:"start" json:"start"`
	End        uint64 `yaml:"end" json:"end"`
}

// File maps tier numbers to their configurations:
//
//	public:
//	  1: {price: "100000000", max_per_tier: 500, max_per_user: 5, start: 1735689600, end: 1738368000}
//	whitelist:
//	  1: {merkle_root: "0x...", max_per_tier: 100, start: 1735000000, end: 1735689599}
type File struct {
	Public    map[uint16]PublicTier    `yaml:"public" json:"public"`
	Whitelist map[uint16]WhitelistTier `yaml:"whitelist" json:"whitelist"`
}

// Parse decodes a YAML or JSON tier file.
func Parse(data []byte) (*File, error) {
	var f File
	if json.Valid(data) {
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode tier file: %w", err)
		}
		return &f, nil
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode tier file: %w", err)
	}
	return &f, nil
}

// PublicConfig converts a public tier to the engine's config.
func (t PublicTier) PublicConfig() (models.PublicSaleConfig, error) {
	price := new(big.Int)
	if t.Price != "" {
		if _, ok := price.SetString(t.Price, 10); !ok || price.Sign() < 0 {
			return models.PublicSaleConfig{}, fmt.Errorf("invalid price %q", t.Price)
		}
	}
	return models.PublicSaleConfig{
		Price:      price,
		MaxPerTier: t.MaxPerTier,
		MaxPerUser: t.MaxPerUser,
		Start:      t.Start,
		End:        t.End,
	}, nil
}

// WhitelistConfig converts a whitelist tier to the engine's config.
func (t WhitelistTier) WhitelistConfig() (models.WhitelistSaleConfig, error) {
	var root common.Hash
	if t.MerkleRoot != "" {
		b, err := hexutil.Decode(t.MerkleRoot)
		if err != nil || len(b) != common.HashLength {
			return models.WhitelistSaleConfig{}, fmt.Errorf("invalid merkle_root %q", t.MerkleRoot)
		}
		root = common.BytesToHash(b)
	}
	return models.WhitelistSaleConfig{
		MerkleRoot: root,
		MaxPerTier: t.MaxPerTier,
		Start:      t.Start,
		End:        t.End,
	}, nil
}

// Warning is a single lint finding.
type Warning struct {
	Mode    models.Mode `json:"mode"`
	Tier    uint16      `json:"tier"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s tier %d: %s", w.Mode, w.Tier, w.Message)
}

// Lint reports every suspicious setting in f, ordered by mode then tier.
func Lint(f *File) []Warning {
	var warnings []Warning
	warn := func(mode models.Mode, tier uint16, format string, args ...any) {
		warnings = append(warnings, Warning{Mode: mode, Tier: tier, Message: fmt.Sprintf(format, args...)})
	}

	for _, tier := range sortedKeys(f.Public) {
		t := f.Public[tier]
		if !models.Tier(tier).Valid() {
			warn(models.ModePublic, tier, "tier outside 1..%d", models.MaxTier)
		}
		cfg, err := t.PublicConfig()
		switch {
		case err != nil:
			warn(models.ModePublic, tier, "%v", err)
		case cfg.Price.Sign() == 0:
			warn(models.ModePublic, tier, "price not set, claims will fail")
		}
		lintWindow(t.Start, t.End, func(msg string) { warn(models.ModePublic, tier, "%s", msg) })
		if t.MaxPerTier == 0 {
			warn(models.ModePublic, tier, "max_per_tier is 0, nothing can be claimed")
		}
		if t.MaxPerUser == 0 {
			warn(models.ModePublic, tier, "max_per_user is 0, nothing can be claimed")
		}
		if t.MaxPerUser > t.MaxPerTier {
			warn(models.ModePublic, tier, "max_per_user %d exceeds max_per_tier %d", t.MaxPerUser, t.MaxPerTier)
		}
	}

	for _, tier := range sortedKeys(f.Whitelist) {
		t := f.Whitelist[tier]
		if !models.Tier(tier).Valid() {
			warn(models.ModeWhitelist, tier, "tier outside 1..%d", models.MaxTier)
		}
		cfg, err := t.WhitelistConfig()
		switch {
		case err != nil:
			warn(models.ModeWhitelist, tier, "%v", err)
		case cfg.MerkleRoot == (common.Hash{}):
			warn(models.ModeWhitelist, tier, "merkle_root not set, every proof will fail")
		}
		lintWindow(t.Start, t.End, func(msg string) { warn(models.ModeWhitelist, tier, "%s", msg) })
		if t.MaxPerTier == 0 {
			warn(models.ModeWhitelist, tier, "max_per_tier is 0, nothing can be claimed")
		}
	}
	return warnings
}

func lintWindow(start, end uint64, warn func(string)) {
	switch {
	case start == 0 && end == 0:
		warn("sale window not set, the tier is closed")
	case start > end:
		warn(fmt.Sprintf("start %d is after end %d, the tier can never open", start, end))
	case start == end:
		warn(fmt.Sprintf("start equals end, the tier is open for a single second at %d", start))
	}
}

func sortedKeys[V any](m map[uint16]V) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
