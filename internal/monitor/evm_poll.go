package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fusionswap/relayer/internal/cryptoutil"
	"github.com/fusionswap/relayer/internal/types"
)

// pollEVMOnce runs a single iteration of the EVM loop (spec.md §4.2
// Algorithm): read tip, pull logs in [cursor+1, min(cursor+batch, tip)],
// decode into SwapEvents in (height, logIndex) order, advance confirmation
// tracking, detect reorgs, persist the cursor.
func (m *Monitor) pollEVMOnce(ctx context.Context) {
	var tip uint64
	if err := m.withRetry(evmChain, "eth_blockNumber", func() error {
		var err error
		tip, err = m.evm.TipHeight(ctx)
		return err
	}); err != nil {
		return
	}

	if m.detectEVMReorg(ctx, tip) {
		return // cursor was rewound; resume decoding next tick
	}

	if m.evmCursor+1 > tip {
		return
	}
	from := m.evmCursor + 1
	to := tip
	if to-from+1 > m.cfg.EVMBatchBlocks {
		to = from + m.cfg.EVMBatchBlocks - 1
	}

	var logs []evmLog
	if err := m.withRetry(evmChain, "eth_getLogs", func() error {
		raw, err := m.evm.GetLogs(ctx, from, to, m.cfg.EVMAddresses, nil)
		if err != nil {
			return err
		}
		logs = make([]evmLog, len(raw))
		for i, l := range raw {
			logs[i] = evmLog(l)
		}
		return nil
	}); err != nil {
		return
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].LogIndex < logs[j].LogIndex
	})

	for _, l := range logs {
		ev, ok := decodeEVMLog(l)
		if !ok {
			continue // decoding error: log skipped, cursor still advances
		}
		m.emit(ev)
	}

	m.advanceEVMConfirmations(ctx, tip)

	// Retain a header for reorg comparisons on subsequent polls.
	var hash common.Hash
	if err := m.withRetry(evmChain, "eth_getBlockByNumber", func() error {
		var err error
		hash, err = m.evm.GetBlockHash(ctx, to)
		return err
	}); err == nil {
		m.evmWindow.Append(blockRef{Height: to, Hash: hash})
	}

	m.evmCursor = to
}

const evmChain types.ChainID = "evm"

type evmLog struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// decodeEVMLog decodes a log against the three canonical event signatures
// (spec.md §6). Unknown topics[0] values are skipped, not errors — the
// monitor must not fail on logs it doesn't recognize.
func decodeEVMLog(l evmLog) (types.SwapEvent, bool) {
	if len(l.Topics) == 0 {
		return types.SwapEvent{}, false
	}
	base := types.SwapEvent{
		ChainID:     evmChain,
		Timestamp:   time.Now(),
		BlockHeight: l.BlockNumber,
		TxHash:      l.TxHash.Hex(),
	}
	switch l.Topics[0] {
	case cryptoutil.EscrowCreatedTopic:
		if len(l.Topics) < 2 {
			return types.SwapEvent{}, false
		}
		base.Type = types.EventEscrowCreated
		base.OrderID = l.Topics[1].Hex()
		return base, true
	case cryptoutil.RedeemedTopic:
		if len(l.Topics) < 3 {
			return types.SwapEvent{}, false
		}
		base.Type = types.EventFundsRedeemed
		base.OrderID = l.Topics[1].Hex()
		base.Data = types.SecretRevealedData{Plaintext: l.Topics[2], Source: types.SecretSourceEVMClaim}
		return base, true
	case cryptoutil.RefundedTopic:
		if len(l.Topics) < 2 {
			return types.SwapEvent{}, false
		}
		base.Type = types.EventSwapRefunded
		base.OrderID = l.Topics[1].Hex()
		return base, true
	default:
		return types.SwapEvent{}, false
	}
}

// detectEVMReorg re-fetches the block hash at the retained window's head
// height and compares it with the stored one; on mismatch it walks back
// within maxReorgDepth to the deepest height whose hash still matches,
// rewinds the cursor there and emits Reorg (spec.md §4.2 Reorg handling).
// Block hashes from tracked txs' receipts are not compared.
func (m *Monitor) detectEVMReorg(ctx context.Context, tip uint64) bool {
	head, ok := m.evmWindow.Head()
	if !ok {
		return false
	}
	currentHash, err := m.evm.GetBlockHash(ctx, head.Height)
	if err != nil || currentHash == head.Hash {
		return false
	}

	// Walk backwards within maxReorgDepth to find the deepest common ancestor.
	for depth := uint64(1); depth <= m.cfg.MaxReorgDepth; depth++ {
		height := head.Height - depth
		want, known := m.evmWindow.HashAt(height)
		if !known {
			continue
		}
		got, err := m.evm.GetBlockHash(ctx, height)
		if err != nil {
			continue
		}
		if got == want {
			m.evmWindow.Rewind(height + 1)
			m.evmCursor = height
			m.emit(types.SwapEvent{
				Type:      types.EventReorg,
				ChainID:   evmChain,
				Data:      types.ReorgData{FromHeight: height + 1},
				Timestamp: time.Now(),
			})
			return true
		}
	}
	// Beyond maxReorgDepth: halt the cursor for manual resolution
	// (spec.md §8 boundary behavior) by emitting MonitoringError and not
	// advancing.
	m.emit(types.SwapEvent{
		Type:      types.EventMonitoringError,
		ChainID:   evmChain,
		Data:      "reorg exceeds maxReorgDepth; halting cursor for manual resolution",
		Timestamp: time.Now(),
	})
	return true
}

// advanceEVMConfirmations recomputes confirmations for every pending
// MonitoredTx on the EVM chain and emits TxConfirmed exactly once per tx
// (spec.md §4.2 step 5).
func (m *Monitor) advanceEVMConfirmations(ctx context.Context, tip uint64) {
	m.mu.Lock()
	pending := make([]*types.MonitoredTx, 0)
	for _, tx := range m.monitoredTx {
		if tx.ChainID == evmChain && tx.Status == types.TxPending {
			pending = append(pending, tx)
		}
	}
	m.mu.Unlock()

	for _, tx := range pending {
		hash := common.HexToHash(tx.TxHash)
		receipt, err := m.evm.GetTxReceipt(ctx, hash)
		if err != nil || receipt.BlockHeight == nil {
			continue
		}
		confs := tip - *receipt.BlockHeight + 1
		m.mu.Lock()
		tx.Confs = confs
		tx.BlockHeight = receipt.BlockHeight
		reached := confs >= tx.RequiredConfs && tx.Status == types.TxPending
		if reached {
			tx.Status = types.TxConfirmed
		}
		m.mu.Unlock()
		if reached {
			m.emit(types.SwapEvent{
				Type:        types.EventTxConfirmed,
				OrderID:     tx.OrderID,
				ChainID:     evmChain,
				TxHash:      tx.TxHash,
				BlockHeight: *receipt.BlockHeight,
				Timestamp:   time.Now(),
			})
		}
	}
}
