// Package database is the relayer core's optional persistence layer
// (spec.md §6: "Persisted state layout. Optional and implementer's
// choice"). Grounded on the teacher's internal/database/orders.go
// (database/sql + lib/pq, raw parameterized SQL, scanOrder big.Int-from-
// string pattern), restructured onto the new chain-agnostic SwapState and
// extended with the MonitoredTx/cursor tables spec.md §6 requires as the
// minimum recoverable state.
package database

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/fusionswap/relayer/internal/types"
)

// SwapStateRepository persists SwapState snapshots. The Order Manager
// remains the sole owner of SwapState (spec.md §3); this repository only
// durably mirrors what it's told to save. The Order Manager has no method
// to be seeded from these snapshots, so they are not replayed into it on
// restart.
type SwapStateRepository struct {
	db *sql.DB
}

// NewSwapStateRepository creates a new SwapStateRepository.
func NewSwapStateRepository(db *sql.DB) *SwapStateRepository {
	return &SwapStateRepository{db: db}
}

// Upsert writes the full current state for an orderId, matching the
// teacher's scanOrder round-trip pattern (amounts stored as decimal
// strings, since Postgres NUMERIC has no native big.Int binding via
// database/sql).
func (r *SwapStateRepository) Upsert(s *types.SwapState) error {
	_, err := r.db.Exec(`
		INSERT INTO swap_states (
			order_id, status, src_chain, dst_chain, maker, resolver,
			maker_amount, taker_amount, src_escrow_addr, dst_escrow_addr,
			src_timelock, dst_timelock, expires_at, secret_hash,
			failure_reason, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status,
			resolver = EXCLUDED.resolver,
			src_escrow_addr = EXCLUDED.src_escrow_addr,
			dst_escrow_addr = EXCLUDED.dst_escrow_addr,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = EXCLUDED.updated_at`,
		s.OrderID, string(s.Status), string(s.SrcChain), string(s.DstChain), s.Maker, s.Resolver,
		s.MakerAmount.String(), s.TakerAmount.String(), s.SrcEscrowAddr, s.DstEscrowAddr,
		s.SrcTimelock, s.DstTimelock, s.ExpiresAt, s.SecretHash[:],
		s.FailureReason, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert swap state %s: %w", s.OrderID, err)
	}
	return nil
}

// LoadAll reconstructs every persisted SwapState. cmd/relayer calls it at
// startup only to log how many were found; the result is not fed back into
// the Order Manager.
func (r *SwapStateRepository) LoadAll() ([]*types.SwapState, error) {
	rows, err := r.db.Query(`
		SELECT order_id, status, src_chain, dst_chain, maker, resolver,
			   maker_amount, taker_amount, src_escrow_addr, dst_escrow_addr,
			   src_timelock, dst_timelock, expires_at, secret_hash,
			   failure_reason, created_at, updated_at
		FROM swap_states`)
	if err != nil {
		return nil, fmt.Errorf("load swap states: %w", err)
	}
	defer rows.Close()

	var out []*types.SwapState
	for rows.Next() {
		s := &types.SwapState{}
		var status, srcChain, dstChain, makerAmount, takerAmount string
		var secretHash []byte
		if err := rows.Scan(
			&s.OrderID, &status, &srcChain, &dstChain, &s.Maker, &s.Resolver,
			&makerAmount, &takerAmount, &s.SrcEscrowAddr, &s.DstEscrowAddr,
			&s.SrcTimelock, &s.DstTimelock, &s.ExpiresAt, &secretHash,
			&s.FailureReason, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan swap state: %w", err)
		}
		s.Status = types.SwapStatus(status)
		s.SrcChain = types.ChainID(srcChain)
		s.DstChain = types.ChainID(dstChain)
		amt, ok := new(big.Int).SetString(makerAmount, 10)
		if !ok {
			return nil, fmt.Errorf("parse maker amount for %s", s.OrderID)
		}
		s.MakerAmount = amt
		amt, ok = new(big.Int).SetString(takerAmount, 10)
		if !ok {
			return nil, fmt.Errorf("parse taker amount for %s", s.OrderID)
		}
		s.TakerAmount = amt
		copy(s.SecretHash[:], secretHash)
		out = append(out, s)
	}
	return out, nil
}
