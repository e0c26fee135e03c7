// Package cryptoutil holds the cryptographic primitives the relayer core
// needs: real keccak-256 event-signature hashing, authenticated encryption
// for stored secrets, and a genuine binary Merkle tree with per-leaf proofs.
//
// None of these replicate the simplified/stubbed versions spec.md §9 calls
// out: no XOR cipher, no fixed stub hash, no "every other leaf is the proof"
// pseudo-Merkle-tree.
package cryptoutil

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Canonical EVM event signatures the monitor decodes logs against (spec.md §6).
const (
	SigEscrowCreated = "EscrowCreated(bytes32,address,uint256,bytes32,uint256)"
	SigRedeemed      = "Redeemed(bytes32,bytes32,address)"
	SigRefunded      = "Refunded(bytes32,address)"
)

// Keccak256Topic returns the keccak-256 hash of a canonical event signature
// string, i.e. the value that appears as topics[0] of a matching log.
func Keccak256Topic(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}

// EscrowCreatedTopic, RedeemedTopic, RefundedTopic are computed once and
// reused by the Event Monitor's log filters and decoders.
var (
	EscrowCreatedTopic = Keccak256Topic(SigEscrowCreated)
	RedeemedTopic      = Keccak256Topic(SigRedeemed)
	RefundedTopic      = Keccak256Topic(SigRefunded)
)

// HashSecret returns the domain hash H(plaintext) used to verify that a
// revealed preimage matches the committed secretHash (spec.md invariant:
// "a StoredSecret in revealed status must have hash == H(plaintext)").
func HashSecret(plaintext []byte) common.Hash {
	return crypto.Keccak256Hash(plaintext)
}
