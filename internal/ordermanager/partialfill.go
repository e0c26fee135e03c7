package ordermanager

import (
	"math/big"

	"github.com/fusionswap/relayer/internal/errs"
	"github.com/fusionswap/relayer/internal/types"
)

// AdvancePartialFill records a resolver's use of one Merkle leaf toward an
// order's total fill amount, without creating a second SwapState (spec.md
// §4.5 "each partial fill advances an independent sub-state ... but never
// creates a second SwapState").
func (m *Manager) AdvancePartialFill(orderID string, leafIndex int, amount *big.Int) (*types.PartialFillState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.orders[orderID]
	if !ok {
		return nil, errs.New(errs.NotFound, orderID, "order not found")
	}
	if state.Partial == nil {
		return nil, errs.New(errs.Invalid, orderID, "order does not enable partial fills")
	}
	if state.Partial.UsedIndexes[leafIndex] {
		return nil, errs.New(errs.Duplicate, orderID, "leaf index already used")
	}
	if leafIndex < 0 || leafIndex > state.Partial.MaxFills {
		return nil, errs.New(errs.Invalid, orderID, "leaf index out of range")
	}

	state.Partial.UsedIndexes[leafIndex] = true
	state.Partial.FilledAmount = new(big.Int).Add(state.Partial.FilledAmount, amount)
	if leafIndex == state.Partial.MaxFills {
		state.Partial.CompletionUsed = true
	}
	out := *state.Partial
	return &out, nil
}
