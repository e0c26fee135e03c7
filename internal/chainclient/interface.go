// Package chainclient provides the minimal, uniform chain interfaces the
// relayer core needs (spec.md §4.1): block tip, logs-in-range,
// transaction-by-hash, confirmations, raw broadcast. Escrow-level
// create/withdraw/cancel operations are explicitly out of core scope
// (spec.md §1) and are not part of this interface.
//
// Grounded on the teacher's internal/adapters.ChainAdapter
// (internal/adapters/interface.go) shape, narrowed to the read-oriented
// operation set spec.md names.
package chainclient

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fusionswap/relayer/internal/errs"
)

// Log is a decoded-agnostic EVM log entry, close enough to
// github.com/ethereum/go-ethereum/core/types.Log for the monitor's purposes
// without forcing every caller to import go-ethereum directly.
type Log struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// TxReceipt is the minimal receipt shape the monitor needs from an EVM chain.
type TxReceipt struct {
	BlockHeight *uint64
	Success     bool
}

// TxInfo is the minimal transaction-lookup result the monitor needs from a
// UTXO chain.
type TxInfo struct {
	BlockHeight   *uint64
	Confirmations uint64
}

// EVMClient is the thin request/response wrapper over an EVM JSON-RPC
// endpoint (spec.md §4.1/§6). Operations are idempotent. The implementation
// wraps every RPC error as errs.Transient; no RPC error is classified as
// permanent.
type EVMClient interface {
	TipHeight(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, fromHeight, toHeight uint64, addresses []common.Address, topics []common.Hash) ([]Log, error)
	GetTxReceipt(ctx context.Context, hash common.Hash) (*TxReceipt, error)
	GetBlockHash(ctx context.Context, height uint64) (common.Hash, error)
	Broadcast(ctx context.Context, rawTx []byte) (common.Hash, error)
	Close()
}

// UTXOClient is the thin request/response wrapper over a UTXO chain's
// JSON-RPC endpoint (spec.md §4.1/§6).
type UTXOClient interface {
	TipHeight(ctx context.Context) (uint64, error)
	GetTx(ctx context.Context, txid string) (*TxInfo, error)
	GetBlockHash(ctx context.Context, height uint64) (string, error)
	Broadcast(ctx context.Context, rawTx []byte) (string, error)
	Close()
}

// GasPriceHint is a placeholder for fee-estimation values collaborators
// (the off-core signer) may want; the core itself never constructs or signs
// transactions (spec.md §1 Non-goals).
type GasPriceHint struct {
	SuggestedGwei *big.Int
}

// classifyTransient wraps any raw RPC error as errs.Transient, without
// inspecting it, so the monitor's backoff queue retries every failure.
// Malformed requests and 4xx responses are not told apart from network
// errors, and no server-suggested retry delay is read.
func classifyTransient(op string, err error) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.Transient, "", op, err)
}
