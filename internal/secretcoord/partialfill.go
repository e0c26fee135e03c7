package secretcoord

import (
	"fmt"
	"math/big"
	"time"

	"github.com/fusionswap/relayer/internal/cryptoutil"
	"github.com/fusionswap/relayer/internal/errs"
	"github.com/fusionswap/relayer/internal/types"
)

// PartialFillInfo is the result of CoordinatePartialReveal (spec.md §4.3
// coordinatePartialReveal()): the revealed plaintext plus its Merkle proof,
// bundled in one round trip rather than requiring a separate Reveal call.
type PartialFillInfo struct {
	OrderID    string
	LeafIndex  int
	FillAmount *big.Int
	Plaintext  [32]byte
	Proof      []cryptoutil.ProofStep
}

// SetupPartialFill generates maxFills+1 secrets (the extra "completion" leaf
// covers any uncovered remainder), builds a Merkle tree over their hashes,
// and stores each ciphertext under its leaf index (spec.md §4.3
// setupPartialFill()).
//
// Grounded on the teacher's internal/fusion/partialfill.go PartialFillManager,
// replacing its time.Now().UnixNano()%256 per-byte secret generator with
// cryptoutil.GenerateSecret and its concatenate-then-hash root with
// cryptoutil.BuildMerkleTree.
func (c *Coordinator) SetupPartialFill(orderID string, totalAmount *big.Int, maxFills int) (*types.MerkleSecretTree, error) {
	if maxFills < 1 {
		return nil, errs.New(errs.Invalid, orderID, "maxFills must be >= 1")
	}
	if totalAmount == nil || totalAmount.Sign() <= 0 {
		return nil, errs.New(errs.Invalid, orderID, "totalAmount must be positive")
	}

	c.mu.Lock()
	if _, exists := c.merkles[orderID]; exists {
		c.mu.Unlock()
		return nil, errs.New(errs.Duplicate, orderID, "partial-fill tree already set up")
	}
	c.mu.Unlock()

	totalParts := maxFills + 1
	leaves := make([][32]byte, totalParts)
	leafData := make([][]byte, totalParts)
	secrets := make([][32]byte, totalParts)
	for i := 0; i < totalParts; i++ {
		s, err := cryptoutil.GenerateSecret()
		if err != nil {
			return nil, errs.Wrap(errs.Invalid, orderID, "generate secret", err)
		}
		secrets[i] = s
		leaves[i] = cryptoutil.HashSecret(s[:])
		leafData[i] = leaves[i][:]
	}

	// The tree commits to each secret's hash commitment (not the raw
	// preimage), so a published Root/proof never leaks unrevealed secrets.
	tree, err := cryptoutil.BuildMerkleTree(leafData)
	if err != nil {
		return nil, errs.Wrap(errs.Invalid, orderID, "build merkle tree", err)
	}

	c.mu.Lock()
	for i, s := range secrets {
		key := secretKey{orderID, i}
		if _, exists := c.secrets[key]; exists {
			c.mu.Unlock()
			return nil, errs.New(errs.Duplicate, orderID, fmt.Sprintf("secret index %d already stored", i))
		}
		idx := i
		ciphertext, err := cryptoutil.SealSecret(c.cfg.MasterKey, orderID, i, s[:])
		if err != nil {
			c.mu.Unlock()
			return nil, errs.Wrap(errs.Invalid, orderID, "seal secret", err)
		}
		c.secrets[key] = &types.StoredSecret{
			OrderID:          orderID,
			Index:            i,
			Hash:             leaves[i],
			Ciphertext:       ciphertext,
			Status:           types.SecretPending,
			PartialFillIndex: &idx,
			CreatedAt:        time.Now(),
		}
	}

	meta := types.MerkleSecretTree{
		OrderID:    orderID,
		Root:       tree.Root(),
		LeafHashes: leaves,
		CreatedAt:  time.Now(),
	}
	c.merkles[orderID] = &partialFillEntry{
		tree:         tree,
		meta:         meta,
		totalParts:   totalParts,
		used:         make(map[int]bool),
		totalAmount:  new(big.Int).Set(totalAmount),
		filledAmount: big.NewInt(0),
	}
	c.mu.Unlock()

	out := meta
	return &out, nil
}

// CoordinatePartialReveal reveals the leaf secret covering a cumulative fill
// and returns its plaintext plus authentication path, so a resolver can
// verify the revealed preimage against the published root without a second
// round trip (spec.md §4.3 coordinatePartialReveal()). fillAmount is checked
// against the order's remaining unfilled amount and, once the reveal
// succeeds, accrued into the tree's filled total. Each leaf index may only be
// used once across the order's fills.
//
// Grounded on the teacher's internal/fusion/partialfill.go
// ExecuteFill/calculateSecretIndex amount bookkeeping (RemainingAmount/
// FilledAmount), adapted from the teacher's percentage-derived index onto
// spec.md's explicit (fillIndex, fillAmount) pair.
func (c *Coordinator) CoordinatePartialReveal(orderID string, leafIndex int, fillAmount *big.Int, delay *time.Duration) (*PartialFillInfo, error) {
	if fillAmount == nil || fillAmount.Sign() <= 0 {
		return nil, errs.New(errs.Invalid, orderID, "fillAmount must be positive")
	}

	c.mu.Lock()
	entry, ok := c.merkles[orderID]
	if !ok {
		c.mu.Unlock()
		return nil, errs.New(errs.NotFound, orderID, "no partial-fill tree for order")
	}
	if leafIndex < 0 || leafIndex >= entry.totalParts {
		c.mu.Unlock()
		return nil, errs.New(errs.Invalid, orderID, "leaf index out of range")
	}
	if entry.used[leafIndex] {
		c.mu.Unlock()
		return nil, errs.New(errs.Duplicate, orderID, fmt.Sprintf("leaf %d already revealed", leafIndex))
	}
	remaining := new(big.Int).Sub(entry.totalAmount, entry.filledAmount)
	if fillAmount.Cmp(remaining) > 0 {
		c.mu.Unlock()
		return nil, errs.New(errs.Invalid, orderID, fmt.Sprintf("fillAmount %s exceeds remaining %s", fillAmount, remaining))
	}
	entry.used[leafIndex] = true
	proof, err := entry.tree.Proof(leafIndex)
	c.mu.Unlock()
	if err != nil {
		return nil, errs.Wrap(errs.Invalid, orderID, "build proof", err)
	}

	if err := c.ScheduleReveal(orderID, leafIndex, delay); err != nil {
		return nil, err
	}
	plaintext, err := c.Reveal(orderID, leafIndex)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	entry.filledAmount.Add(entry.filledAmount, fillAmount)
	c.mu.Unlock()

	return &PartialFillInfo{
		OrderID:    orderID,
		LeafIndex:  leafIndex,
		FillAmount: new(big.Int).Set(fillAmount),
		Plaintext:  plaintext,
		Proof:      proof,
	}, nil
}
