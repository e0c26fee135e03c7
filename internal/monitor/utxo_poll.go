package monitor

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fusionswap/relayer/internal/types"
)

const utxoChain types.ChainID = "utxo"

// hashFromHex adapts a UTXO block-hash hex string to the common.Hash type
// blockRef uses for both chains, purely as an opaque equality-comparable
// key — the core never interprets UTXO hash byte order itself.
func hashFromHex(hex string) common.Hash {
	return common.HexToHash(hex)
}

// pollUTXOOnce runs a single iteration of the UTXO loop. The UTXO chain
// interface is narrower than the EVM one (spec.md §4.1/§6: no log
// filtering, confirmations come from gettransaction directly), so this
// loop only advances confirmation tracking and reorg detection; it does
// not decode SwapEvents from blocks the way the EVM loop does, since HTLC
// script/witness decoding lives outside the core (spec.md §1).
func (m *Monitor) pollUTXOOnce(ctx context.Context) {
	var tip uint64
	if err := m.withRetry(utxoChain, "getblockcount", func() error {
		var err error
		tip, err = m.utxo.TipHeight(ctx)
		return err
	}); err != nil {
		return
	}

	if m.detectUTXOReorg(ctx, tip) {
		return
	}

	m.advanceUTXOConfirmations(ctx, tip)

	hash, err := m.utxo.GetBlockHash(ctx, tip)
	if err == nil {
		m.utxoWindow.Append(blockRef{Height: tip, Hash: hashFromHex(hash)})
	}
	m.utxoCursor = tip
}

// detectUTXOReorg mirrors detectEVMReorg: it re-fetches the block hash at
// the retained window's head height and, if it differs from the stored
// hash, rewinds to the deepest common ancestor within maxReorgDepth
// (spec.md §4.2 Reorg handling, UTXO variant). Parent hashes are not read.
func (m *Monitor) detectUTXOReorg(ctx context.Context, tip uint64) bool {
	head, ok := m.utxoWindow.Head()
	if !ok {
		return false
	}
	currentHashHex, err := m.utxo.GetBlockHash(ctx, head.Height)
	if err != nil {
		return false
	}
	currentHash := hashFromHex(currentHashHex)
	if currentHash == head.Hash {
		return false
	}

	for depth := uint64(1); depth <= m.cfg.MaxReorgDepth; depth++ {
		height := head.Height - depth
		want, known := m.utxoWindow.HashAt(height)
		if !known {
			continue
		}
		gotHex, err := m.utxo.GetBlockHash(ctx, height)
		if err != nil {
			continue
		}
		if hashFromHex(gotHex) == want {
			m.utxoWindow.Rewind(height + 1)
			m.utxoCursor = height
			m.emit(types.SwapEvent{
				Type:      types.EventReorg,
				ChainID:   utxoChain,
				Data:      types.ReorgData{FromHeight: height + 1},
				Timestamp: time.Now(),
			})
			return true
		}
	}
	m.emit(types.SwapEvent{
		Type:      types.EventMonitoringError,
		ChainID:   utxoChain,
		Data:      "reorg exceeds maxReorgDepth; halting cursor for manual resolution",
		Timestamp: time.Now(),
	})
	return true
}

func (m *Monitor) advanceUTXOConfirmations(ctx context.Context, tip uint64) {
	m.mu.Lock()
	pending := make([]*types.MonitoredTx, 0)
	for _, tx := range m.monitoredTx {
		if tx.ChainID == utxoChain && tx.Status == types.TxPending {
			pending = append(pending, tx)
		}
	}
	m.mu.Unlock()

	for _, tx := range pending {
		info, err := m.utxo.GetTx(ctx, tx.TxHash)
		if err != nil || info.BlockHeight == nil {
			continue
		}
		m.mu.Lock()
		tx.Confs = info.Confirmations
		tx.BlockHeight = info.BlockHeight
		reached := info.Confirmations >= tx.RequiredConfs && tx.Status == types.TxPending
		if reached {
			tx.Status = types.TxConfirmed
		}
		m.mu.Unlock()
		if reached {
			m.emit(types.SwapEvent{
				Type:        types.EventTxConfirmed,
				OrderID:     tx.OrderID,
				ChainID:     utxoChain,
				TxHash:      tx.TxHash,
				BlockHeight: *info.BlockHeight,
				Timestamp:   time.Now(),
			})
		}
	}
}
