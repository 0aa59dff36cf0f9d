package merkle

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/Bidon15/licensesale/internal/models"
)

// Format is the version tag written into proof dumps.
const Format = "licensesale-merkle-v1"

// Dump is the distribution format of a built tree: the root to publish via
// the admin setter and one proof per claimant.
type Dump struct {
	Format  string      `json:"format"`
	Root    common.Hash `json:"root"`
	Entries []DumpEntry `json:"entries"`
}

// DumpEntry is the proof bundle handed to a single claimant.
type DumpEntry struct {
	Claimant      common.Address `json:"claimant"`
	MaxAllocation uint64         `json:"max_allocation"`
	Leaf          common.Hash    `json:"leaf"`
	Proof         []common.Hash  `json:"proof"`
}

// Dump renders the tree with a proof for every leaf.
func (t *Tree) Dump() *Dump {
	d := &Dump{
		Format:  Format,
		Root:    t.Root(),
		Entries: make([]DumpEntry, 0, len(t.claims)),
	}
	for _, c := range t.claims {
		proof, _ := t.Proof(c.Claimant)
		d.Entries = append(d.Entries, DumpEntry{
			Claimant:      c.Claimant,
			MaxAllocation: c.MaxAllocation,
			Leaf:          LeafHash(c),
			Proof:         proof,
		})
	}
	return d
}

// Entry looks up a claimant's entry in the dump.
func (d *Dump) Entry(claimant common.Address) (DumpEntry, bool) {
	for _, e := range d.Entries {
		if e.Claimant == claimant {
			return e, true
		}
	}
	return DumpEntry{}, false
}

// Verify checks every entry of the dump against its root.
func (d *Dump) Verify() error {
	for _, e := range d.Entries {
		claim := models.AllocationClaim{Claimant: e.Claimant, MaxAllocation: e.MaxAllocation}
		if LeafHash(claim) != e.Leaf {
			return fmt.Errorf("leaf mismatch for %s", e.Claimant.Hex())
		}
		if !Verify(d.Root, claim, e.Proof) {
			return fmt.Errorf("proof does not verify for %s", e.Claimant.Hex())
		}
	}
	return nil
}

// MarshalIndent renders the dump as indented JSON.
func (d *Dump) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

type allowlistEntry struct {
	Address       string `yaml:"address" json:"address"`
	MaxAllocation string `yaml:"max_allocation" json:"max_allocation"`
}

type allowlistFile struct {
	Entries []allowlistEntry `yaml:"allowlist" json:"allowlist"`
}

// ParseAllowlist decodes an allowlist document. YAML and JSON are both
// accepted, either as a bare list or under an "allowlist" key:
//
//	allowlist:
//	  - address: 0x...
//	    max_allocation: 10
func ParseAllowlist(data []byte) ([]models.AllocationClaim, error) {
	var entries []allowlistEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		var file allowlistFile
		if ferr := yaml.Unmarshal(data, &file); ferr != nil {
			return nil, fmt.Errorf("decode allowlist: %w", ferr)
		}
		entries = file.Entries
	}
	if len(entries) == 0 {
		return nil, ErrEmptyTree
	}

	claims := make([]models.AllocationClaim, 0, len(entries))
	for i, e := range entries {
		if !common.IsHexAddress(e.Address) {
			return nil, fmt.Errorf("entry %d: invalid address %q", i, e.Address)
		}
		maxAlloc, err := strconv.ParseUint(e.MaxAllocation, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %d: invalid max_allocation %q: %w", i, e.MaxAllocation, err)
		}
		claims = append(claims, models.AllocationClaim{
			Claimant:      common.HexToAddress(e.Address),
			MaxAllocation: maxAlloc,
		})
	}
	return claims, nil
}
