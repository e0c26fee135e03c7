package ordermanager

import "github.com/fusionswap/relayer/internal/types"

// Trigger names the cause of a transition, so the table stays explicit about
// which leg (src/dst) and which role an event applies to — the teacher's
// validTransitions table conflates role into the Description string instead.
type Trigger string

const (
	TriggerAuctionStarted     Trigger = "auction_started"
	TriggerResolverChosen     Trigger = "auction_settled_winner"
	TriggerEscrowCreatedSrc   Trigger = "escrow_created_src"
	TriggerConfsReachedSrc    Trigger = "confs_reached_src"
	TriggerEscrowCreatedDst   Trigger = "escrow_created_dst"
	TriggerConfsReachedDst    Trigger = "confs_reached_dst"
	TriggerSecretScheduled    Trigger = "secret_scheduled"
	TriggerSecretRevealed     Trigger = "secret_revealed"
	TriggerRedeemedDst        Trigger = "redeemed_dst"
	TriggerRedeemedSrc        Trigger = "redeemed_src"
	TriggerTimelockElapsedDst Trigger = "timelock_elapsed_dst"
	TriggerRefundedDst        Trigger = "refunded_dst"
	TriggerRefundedSrc        Trigger = "refunded_src"
	TriggerReorgSrc           Trigger = "reorg_src"
	TriggerReorgDst           Trigger = "reorg_dst"
)

// happyPath is the graph in spec.md §4.5. "Any non-terminal" rows are not
// enumerated per source state: timelock_elapsed is handled in applyTrigger,
// expiresAt by sweepExpired (cleanup.go), and failures by Fail/failLocked.
var happyPath = map[types.SwapStatus]map[Trigger]types.SwapStatus{
	types.StatusCreated: {
		TriggerAuctionStarted: types.StatusAuctionStarted,
	},
	types.StatusAuctionStarted: {
		TriggerResolverChosen: types.StatusResolverChosen,
	},
	types.StatusResolverChosen: {
		TriggerEscrowCreatedSrc: types.StatusSrcPending,
	},
	types.StatusSrcPending: {
		TriggerConfsReachedSrc: types.StatusSrcFunded,
		TriggerReorgSrc:        types.StatusResolverChosen,
	},
	types.StatusSrcFunded: {
		TriggerEscrowCreatedDst: types.StatusDstPending,
		// A reorg can retract the src-funding tx after it already reached
		// required confirmations, not only while still pending (spec.md §8
		// scenario 4: Reorg injected after SrcFunded, expect ResolverChosen).
		TriggerReorgSrc: types.StatusResolverChosen,
	},
	types.StatusDstPending: {
		TriggerConfsReachedDst: types.StatusDstFunded,
		TriggerReorgDst:        types.StatusSrcFunded,
	},
	types.StatusDstFunded: {
		TriggerSecretScheduled: types.StatusSecretReady,
		// Symmetric with StatusSrcFunded above: a reorg can retract the
		// dst-funding tx after confirmation too.
		TriggerReorgDst: types.StatusSrcFunded,
	},
	types.StatusSecretReady: {
		TriggerSecretRevealed: types.StatusSecretRevealed,
	},
	types.StatusSecretRevealed: {
		TriggerRedeemedDst: types.StatusDstRedeemed,
	},
	types.StatusDstRedeemed: {
		TriggerRedeemedSrc: types.StatusCompleted,
	},
	types.StatusRefunding: {
		TriggerRefundedDst: types.StatusRefunded,
		TriggerRefundedSrc: types.StatusRefunded,
	},
}

// applyTrigger resolves the next status for (current, trigger), or false if
// the transition is not valid from current. The cross-cutting
// timelock_elapsed_dst trigger is valid from any non-terminal state and is
// checked before the happy-path table.
func applyTrigger(current types.SwapStatus, trigger Trigger) (types.SwapStatus, bool) {
	if current.IsTerminal() {
		return "", false
	}
	if trigger == TriggerTimelockElapsedDst {
		return types.StatusRefunding, true
	}
	row, ok := happyPath[current]
	if !ok {
		return "", false
	}
	to, ok := row[trigger]
	return to, ok
}
