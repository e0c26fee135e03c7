package database

import (
	"database/sql"
	"fmt"

	"github.com/fusionswap/relayer/internal/types"
)

// MonitorRepository persists the Event Monitor's per-chain cursor and
// registered MonitoredTx set, the one piece of state spec.md §6 names as a
// hard recovery requirement rather than an optional nicety.
type MonitorRepository struct {
	db *sql.DB
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(db *sql.DB) *MonitorRepository {
	return &MonitorRepository{db: db}
}

// SaveCursor upserts the tip cursor for one chain.
func (r *MonitorRepository) SaveCursor(chainID types.ChainID, height uint64) error {
	_, err := r.db.Exec(`
		INSERT INTO monitor_cursors (chain_id, height) VALUES ($1, $2)
		ON CONFLICT (chain_id) DO UPDATE SET height = EXCLUDED.height`,
		string(chainID), height)
	if err != nil {
		return fmt.Errorf("save cursor for %s: %w", chainID, err)
	}
	return nil
}

// LoadCursor returns the last saved cursor for a chain, or (0, false) if
// none was ever saved (fresh start).
func (r *MonitorRepository) LoadCursor(chainID types.ChainID) (uint64, bool, error) {
	var height uint64
	err := r.db.QueryRow(`SELECT height FROM monitor_cursors WHERE chain_id = $1`, string(chainID)).Scan(&height)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load cursor for %s: %w", chainID, err)
	}
	return height, true, nil
}

// SaveTx upserts a single MonitoredTx, matching spec.md §8's idempotent
// register() law — repeated saves of the same (chainID, txHash) overwrite
// rather than duplicate.
func (r *MonitorRepository) SaveTx(tx *types.MonitoredTx) error {
	_, err := r.db.Exec(`
		INSERT INTO monitored_txs (
			chain_id, tx_hash, order_id, event_type, required_confs,
			confs, block_height, status, registered_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (chain_id, tx_hash) DO UPDATE SET
			confs = EXCLUDED.confs,
			block_height = EXCLUDED.block_height,
			status = EXCLUDED.status`,
		string(tx.ChainID), tx.TxHash, tx.OrderID, tx.EventType, tx.RequiredConfs,
		tx.Confs, tx.BlockHeight, string(tx.Status), tx.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("save monitored tx %s: %w", tx.TxHash, err)
	}
	return nil
}

// LoadAllTxs returns every persisted MonitoredTx across both chains, for the
// Event Monitor to restore into memory at startup (spec.md §6).
func (r *MonitorRepository) LoadAllTxs() ([]types.MonitoredTx, error) {
	rows, err := r.db.Query(`
		SELECT chain_id, tx_hash, order_id, event_type, required_confs,
			   confs, block_height, status, registered_at
		FROM monitored_txs`)
	if err != nil {
		return nil, fmt.Errorf("load monitored txs: %w", err)
	}
	defer rows.Close()

	var out []types.MonitoredTx
	for rows.Next() {
		var tx types.MonitoredTx
		var chainID, status string
		var blockHeight sql.NullInt64
		if err := rows.Scan(
			&chainID, &tx.TxHash, &tx.OrderID, &tx.EventType, &tx.RequiredConfs,
			&tx.Confs, &blockHeight, &status, &tx.RegisteredAt,
		); err != nil {
			return nil, fmt.Errorf("scan monitored tx: %w", err)
		}
		tx.ChainID = types.ChainID(chainID)
		tx.Status = types.MonitoredTxStatus(status)
		if blockHeight.Valid {
			h := uint64(blockHeight.Int64)
			tx.BlockHeight = &h
		}
		out = append(out, tx)
	}
	return out, nil
}
