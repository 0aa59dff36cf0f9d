// Package merkle builds and verifies allowlist merkle trees over
// (claimant, max allocation) pairs.
//
// Leaves are keccak256(keccak256(abi.encode(address, uint256))). The double
// hash keeps a leaf from ever equalling an internal node, whose preimage is the
// 64-byte concatenation of two child hashes. Internal nodes hash the sorted
// pair, so a proof is a plain list of siblings without left/right flags.
//
// Offline tooling and the sale engine must share this package; a hashing
// mismatch makes every proof fail.
package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Bidon15/licensesale/internal/models"
)

var (
	// ErrEmptyTree is returned when building a tree without claims.
	ErrEmptyTree = errors.New("merkle: no claims")
	// ErrDuplicateClaimant is returned when a claimant appears twice.
	ErrDuplicateClaimant = errors.New("merkle: duplicate claimant")
	// ErrNotFound is returned when a claimant has no leaf in the tree.
	ErrNotFound = errors.New("merkle: claimant not found")
)

var leafArguments = mustLeafArguments()

func mustLeafArguments() abi.Arguments {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uintType, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: addressType}, {Type: uintType}}
}

// EncodeClaim returns abi.encode(claimant, maxAllocation).
func EncodeClaim(claim models.AllocationClaim) []byte {
	packed, err := leafArguments.Pack(claim.Claimant, new(big.Int).SetUint64(claim.MaxAllocation))
	if err != nil {
		// Both argument types are fixed; Pack cannot fail for them.
		panic(fmt.Sprintf("merkle: encode claim: %v", err))
	}
	return packed
}

// LeafHash returns the double-hashed leaf of a claim.
func LeafHash(claim models.AllocationClaim) common.Hash {
	inner := crypto.Keccak256(EncodeClaim(claim))
	return crypto.Keccak256Hash(inner)
}

// hashPair hashes two nodes in byte order.
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// Tree is an allowlist merkle tree. Layers[0] holds the leaves in claim order
// and the last layer holds the root.
type Tree struct {
	claims []models.AllocationClaim
	index  map[common.Address]int
	layers [][]common.Hash
}

// Build constructs a tree from claims in the given order. Nodes are paired
// left to right on each level; an unpaired last node moves up unchanged.
func Build(claims []models.AllocationClaim) (*Tree, error) {
	if len(claims) == 0 {
		return nil, ErrEmptyTree
	}

	t := &Tree{
		claims: make([]models.AllocationClaim, len(claims)),
		index:  make(map[common.Address]int, len(claims)),
	}
	copy(t.claims, claims)

	leaves := make([]common.Hash, len(claims))
	for i, c := range claims {
		if _, dup := t.index[c.Claimant]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateClaimant, c.Claimant.Hex())
		}
		t.index[c.Claimant] = i
		leaves[i] = LeafHash(c)
	}

	current := leaves
	t.layers = append(t.layers, current)
	for len(current) > 1 {
		next := make([]common.Hash, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, hashPair(current[i], current[i+1]))
			} else {
				next = append(next, current[i])
			}
		}
		t.layers = append(t.layers, next)
		current = next
	}
	return t, nil
}

// Root returns the root digest.
func (t *Tree) Root() common.Hash {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.claims)
}

// Claims returns a copy of the claims in leaf order.
func (t *Tree) Claims() []models.AllocationClaim {
	out := make([]models.AllocationClaim, len(t.claims))
	copy(out, t.claims)
	return out
}

// Claim returns the claim recorded for claimant.
func (t *Tree) Claim(claimant common.Address) (models.AllocationClaim, bool) {
	i, ok := t.index[claimant]
	if !ok {
		return models.AllocationClaim{}, false
	}
	return t.claims[i], true
}

// Proof returns the sibling path of claimant's leaf, bottom-up.
func (t *Tree) Proof(claimant common.Address) ([]common.Hash, error) {
	idx, ok := t.index[claimant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, claimant.Hex())
	}

	proof := make([]common.Hash, 0, len(t.layers))
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := idx ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		idx /= 2
	}
	return proof, nil
}

// Verify recomputes the root from claim and proof and compares it to root.
func Verify(root common.Hash, claim models.AllocationClaim, proof []common.Hash) bool {
	return ProcessProof(LeafHash(claim), proof) == root
}

// ProcessProof folds proof into leaf and returns the resulting root.
func ProcessProof(leaf common.Hash, proof []common.Hash) common.Hash {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed
}
