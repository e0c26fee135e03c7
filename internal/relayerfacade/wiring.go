package relayerfacade

import (
	"go.uber.org/zap"

	"github.com/fusionswap/relayer/internal/auctionengine"
	"github.com/fusionswap/relayer/internal/ordermanager"
	"github.com/fusionswap/relayer/internal/types"
)

// handleMonitorEvent drives Order Manager transitions from chain events
// (spec.md §4.5's graph is triggered by EscrowCreated/confs-reached/
// Redeemed/Reorg, all of which originate from the monitor).
func (f *Facade) handleMonitorEvent(ev types.SwapEvent) {
	switch ev.Type {
	case types.EventEscrowCreated:
		leg := ordermanager.ReorgLegSrc
		trigger := ordermanager.TriggerEscrowCreatedSrc
		if ev.ChainID != f.srcChainOf(ev.OrderID) {
			leg, trigger = ordermanager.ReorgLegDst, ordermanager.TriggerEscrowCreatedDst
		}
		f.orders.RecordTx(ev.OrderID, leg, types.TxRef{TxHash: ev.TxHash, ChainID: ev.ChainID, BlockHeight: ev.BlockHeight, ObservedAt: ev.Timestamp})
		f.tryTransition(ev.OrderID, trigger)
	case types.EventTxConfirmed:
		leg := ordermanager.ReorgLegSrc
		trigger := ordermanager.TriggerConfsReachedSrc
		if ev.ChainID != f.srcChainOf(ev.OrderID) {
			leg, trigger = ordermanager.ReorgLegDst, ordermanager.TriggerConfsReachedDst
		}
		f.orders.RecordTx(ev.OrderID, leg, types.TxRef{TxHash: ev.TxHash, ChainID: ev.ChainID, BlockHeight: ev.BlockHeight, ObservedAt: ev.Timestamp})
		f.tryTransition(ev.OrderID, trigger)
	case types.EventFundsRedeemed:
		trigger := ordermanager.TriggerRedeemedDst
		if ev.ChainID == f.srcChainOf(ev.OrderID) {
			trigger = ordermanager.TriggerRedeemedSrc
		}
		f.tryTransition(ev.OrderID, trigger)
	case types.EventSwapRefunded:
		trigger := ordermanager.TriggerRefundedDst
		if ev.ChainID == f.srcChainOf(ev.OrderID) {
			trigger = ordermanager.TriggerRefundedSrc
		}
		f.tryTransition(ev.OrderID, trigger)
	case types.EventReorg:
		// Reorg events are scoped to a chain, not an order (spec.md §4.2);
		// look up every order whose tracked src/dst tx on that chain was
		// observed at or above fromHeight and downgrade it one leg (spec.md
		// §4.2 "downgrading ... from Funded back to Pending", resolved per
		// §8 scenario 4 to the preceding named state — see DESIGN.md).
		data, ok := ev.Data.(types.ReorgData)
		if !ok {
			return
		}
		for orderID, leg := range f.orders.OrdersAffectedByReorg(ev.ChainID, data.FromHeight) {
			trigger := ordermanager.TriggerReorgSrc
			if leg == ordermanager.ReorgLegDst {
				trigger = ordermanager.TriggerReorgDst
			}
			f.tryTransition(orderID, trigger)
		}
	}
}

// handleAuctionEvent drives the Order Manager's ResolverChosen transition
// (and Failed on no-winner) from Auction Engine settlement.
func (f *Facade) handleAuctionEvent(ev types.SwapEvent) {
	if ev.Type != types.EventAuctionSettled {
		return
	}
	result, ok := ev.Data.(auctionengine.Result)
	if !ok {
		return
	}
	if result.Winner == "" {
		_, _ = f.orders.Fail(ev.OrderID, "auction settled with no winner")
		return
	}
	if _, err := f.orders.ChooseResolver(ev.OrderID, result.Winner); err != nil {
		f.log.Debug("resolver-chosen transition rejected",
			zap.String("orderID", ev.OrderID),
			zap.String("resolver", result.Winner),
			zap.Error(err))
	}
}

func (f *Facade) tryTransition(orderID string, trigger ordermanager.Trigger) {
	if orderID == "" {
		return
	}
	if _, err := f.orders.Transition(orderID, trigger); err != nil {
		f.log.Debug("transition rejected",
			zap.String("orderID", orderID),
			zap.String("trigger", string(trigger)),
			zap.Error(err))
	}
}

// srcChainOf looks up an order's source chain so monitor events (which only
// carry the chain they occurred on) can be classified as "src leg" or "dst
// leg" for the state machine.
func (f *Facade) srcChainOf(orderID string) types.ChainID {
	state, ok := f.orders.Get(orderID)
	if !ok {
		return ""
	}
	return state.SrcChain
}
