// Package ordermanager owns SwapState, validates incoming orders, drives
// transitions from events, and surfaces current state to queries (spec.md
// §4.5).
//
// Grounded on the teacher's internal/fusion/statemachine.go
// (FusionStateMachine, validTransitions table, StateEvent/StateCallback
// shape), restructured onto spec.md's 15-state graph (transitions.go)
// instead of the teacher's Eth/Sui-specific 4-phase table, and its
// in-memory map onto maker/resolver/status indexes (indexes.go) plus an
// earliest-timelock ordering computed on demand (EarliestTimelocks).
package ordermanager

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fusionswap/relayer/internal/errs"
	"github.com/fusionswap/relayer/internal/types"
)

// Config holds order-level validation defaults.
type Config struct {
	MaxOrderLifetime time.Duration
	MinAmount        map[types.ChainID]int64
	SupportedChains  map[types.ChainID]bool
	CleanupInterval  time.Duration // default 5m
	// SafetyBuffer is the minimum gap enforced between SrcTimelock and
	// DstTimelock (spec.md §3 invariant "srcTimelock >= dstTimelock +
	// safetyBuffer"). Default 1h.
	SafetyBuffer time.Duration
	// SafetyDepositBps is the winning resolver's posted bond, in basis
	// points of MakerAmount (grounded on the teacher's
	// internal/fusion/safety.go SafetyDepositConfig). Default 1000 (10%).
	SafetyDepositBps int
	// SafetyDepositClaimWindow sets a posted deposit's ClaimableAt (posting
	// time plus this window). Default 24h. Settlement does not consult it:
	// settleSafetyDeposit marks the deposit on the Completed/Refunded
	// transitions.
	SafetyDepositClaimWindow time.Duration
	// ExclusiveWithdrawWindow is how long after SecretRevealed the winning
	// resolver has sole claim to the destination redemption before it opens
	// to the public (grounded on the teacher's internal/fusion/timelock.go
	// TimelockManager exclusive-withdrawal phase). Default 10m.
	ExclusiveWithdrawWindow time.Duration
}

// Manager is the Order Manager component.
type Manager struct {
	cfg Config
	log *zap.Logger

	mu     sync.RWMutex
	orders map[string]*types.SwapState

	idx indexes

	events chan types.SwapEvent
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Manager.
func New(cfg Config, log *zap.Logger) *Manager {
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.SafetyBuffer == 0 {
		cfg.SafetyBuffer = time.Hour
	}
	if cfg.SafetyDepositBps == 0 {
		cfg.SafetyDepositBps = 1000
	}
	if cfg.SafetyDepositClaimWindow == 0 {
		cfg.SafetyDepositClaimWindow = 24 * time.Hour
	}
	if cfg.ExclusiveWithdrawWindow == 0 {
		cfg.ExclusiveWithdrawWindow = 10 * time.Minute
	}
	return &Manager{
		cfg:    cfg,
		log:    log.Named("ordermanager"),
		orders: make(map[string]*types.SwapState),
		idx:    newIndexes(),
		events: make(chan types.SwapEvent, 256),
		stopCh: make(chan struct{}),
	}
}

func (m *Manager) Events() <-chan types.SwapEvent { return m.events }

func (m *Manager) emit(ev types.SwapEvent) {
	select {
	case m.events <- ev:
	default:
		select {
		case m.events <- types.SwapEvent{Type: types.EventSubscriberLagged, Timestamp: time.Now()}:
		default:
		}
	}
}

// CreateOrder validates and registers a new order at status Created (spec.md
// §4.5 "Validation on create").
func (m *Manager) CreateOrder(order types.SwapOrder) (*types.SwapState, error) {
	if err := m.validate(order); err != nil {
		return nil, err
	}

	now := time.Now()
	state := &types.SwapState{
		OrderID:     order.OrderID,
		Status:      types.StatusCreated,
		SrcChain:    order.MakerChain,
		DstChain:    order.TakerChain,
		Maker:       order.Maker,
		MakerAmount: order.MakerAmount,
		TakerAmount: order.TakerAmount,
		// order.Timelock is the destination-chain deadline the maker
		// signed over; the source escrow (created first, refunded last)
		// is always given a longer deadline so the resolver can never be
		// caught holding a redeemed destination and an un-refundable
		// source (spec.md §3 invariant srcTimelock >= dstTimelock +
		// safetyBuffer).
		SrcTimelock: order.Timelock.Add(m.cfg.SafetyBuffer),
		DstTimelock: order.Timelock,
		ExpiresAt:   order.ExpiresAt,
		SecretHash:  order.SecretHash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if order.EnablePartial {
		state.Partial = &types.PartialFillState{
			TotalAmount:  order.MakerAmount,
			MaxFills:     order.MaxPartialFills,
			FilledAmount: big.NewInt(0),
			UsedIndexes:  make(map[int]bool),
		}
	}

	m.mu.Lock()
	if _, exists := m.orders[order.OrderID]; exists {
		m.mu.Unlock()
		return nil, errs.New(errs.Duplicate, order.OrderID, "order already exists")
	}
	m.orders[order.OrderID] = state
	m.idx.add(state)
	m.mu.Unlock()

	out := *state
	m.emit(types.SwapEvent{Type: types.EventOrderCreated, OrderID: order.OrderID, Data: out, Timestamp: now})
	return &out, nil
}

func (m *Manager) validate(o types.SwapOrder) error {
	if o.OrderID == "" || o.Maker == "" || o.MakerChain == "" || o.TakerChain == "" {
		return errs.New(errs.Invalid, o.OrderID, "missing required fields")
	}
	if o.SecretHash == ([32]byte{}) {
		return errs.New(errs.Invalid, o.OrderID, "secretHash must be set")
	}
	if o.MakerAmount == nil || o.MakerAmount.Sign() <= 0 || o.TakerAmount == nil || o.TakerAmount.Sign() <= 0 {
		return errs.New(errs.Invalid, o.OrderID, "amounts must be positive")
	}
	if o.MakerChain == o.TakerChain {
		return errs.New(errs.Invalid, o.OrderID, "src and dst chain must differ")
	}
	if m.cfg.SupportedChains != nil {
		if !m.cfg.SupportedChains[o.MakerChain] || !m.cfg.SupportedChains[o.TakerChain] {
			return errs.New(errs.Invalid, o.OrderID, "unsupported chain")
		}
	}
	now := time.Now()
	if !o.Timelock.After(now) {
		return errs.New(errs.Invalid, o.OrderID, "timelock must be in the future")
	}
	if !o.ExpiresAt.After(now) {
		return errs.New(errs.Invalid, o.OrderID, "expiresAt must be in the future")
	}
	if min, ok := m.cfg.MinAmount[o.MakerChain]; ok && o.MakerAmount.Int64() < min {
		return errs.New(errs.Invalid, o.OrderID, "makerAmount below chain minimum")
	}
	// Non-fatal warnings: lifetime and signature are logged, not rejected.
	if m.cfg.MaxOrderLifetime > 0 && o.ExpiresAt.Sub(now) > m.cfg.MaxOrderLifetime {
		m.log.Warn("order lifetime exceeds maxOrderLifetime", zap.String("orderID", o.OrderID))
	}
	if len(o.Signature) == 0 {
		m.log.Warn("order has no signature", zap.String("orderID", o.OrderID))
	}
	return nil
}

// Transition applies trigger to an order's current state, updating indexes
// atomically with the status change (spec.md §4.5 "Indexes ... must be
// updated atomically with status changes").
func (m *Manager) Transition(orderID string, trigger Trigger) (*types.SwapState, error) {
	m.mu.Lock()
	state, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return nil, errs.New(errs.NotFound, orderID, "order not found")
	}

	next, valid := applyTrigger(state.Status, trigger)
	if !valid {
		m.mu.Unlock()
		// Invariant violation: mark Failed and report DesyncError rather
		// than crash (spec.md §4.5 Failure semantics).
		m.failLocked(state, fmt.Sprintf("invalid transition %s from %s", trigger, state.Status))
		return nil, errs.New(errs.Desync, orderID, fmt.Sprintf("invalid transition %s from %s", trigger, state.Status))
	}

	m.idx.remove(state)
	state.Status = next
	state.UpdatedAt = time.Now()
	settleSafetyDeposit(state, next)
	if next == types.StatusSecretRevealed {
		state.ExclusiveWithdrawEnd = state.UpdatedAt.Add(m.cfg.ExclusiveWithdrawWindow)
	}
	m.idx.add(state)
	out := *state
	m.mu.Unlock()

	m.emitForStatus(out)
	return &out, nil
}

// IsExclusiveWithdrawWindow reports whether orderID's destination redemption
// is still inside the winning resolver's exclusive window (grounded on the
// teacher's internal/fusion/timelock.go TimelockManager
// ExclusiveWithdrawStart/End phase): a caller deciding whether a non-winning
// party may submit the dst redemption checks this first. ok is false if the
// order is unknown; exclusive is only meaningful while ok is true and the
// order is at SecretRevealed — any other status means the window question no
// longer applies.
func (m *Manager) IsExclusiveWithdrawWindow(orderID string) (resolver string, exclusive bool, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, exists := m.orders[orderID]
	if !exists {
		return "", false, false
	}
	if s.Status != types.StatusSecretRevealed {
		return s.Resolver, false, true
	}
	return s.Resolver, !s.PublicWithdrawOpen && time.Now().Before(s.ExclusiveWithdrawEnd), true
}

// ChooseResolver transitions an order from AuctionStarted to ResolverChosen
// and records the winning resolver's safety deposit (spec.md SUPPLEMENTED
// FEATURES "resolver safety deposits", grounded on the teacher's
// internal/fusion/safety.go SafetyDepositManager.RecordDeposit). Unlike
// Transition, this one carries the winner's identity, which the bare Trigger
// enum has no room for.
func (m *Manager) ChooseResolver(orderID, resolver string) (*types.SwapState, error) {
	m.mu.Lock()
	state, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return nil, errs.New(errs.NotFound, orderID, "order not found")
	}

	next, valid := applyTrigger(state.Status, TriggerResolverChosen)
	if !valid {
		m.mu.Unlock()
		m.failLocked(state, fmt.Sprintf("invalid transition %s from %s", TriggerResolverChosen, state.Status))
		return nil, errs.New(errs.Desync, orderID, fmt.Sprintf("invalid transition %s from %s", TriggerResolverChosen, state.Status))
	}

	m.idx.remove(state)
	state.Status = next
	state.Resolver = resolver
	state.SafetyDeposit = &types.SafetyDeposit{
		Resolver:    resolver,
		Amount:      safetyDepositAmount(state.MakerAmount, m.cfg.SafetyDepositBps),
		PostedAt:    time.Now(),
		ClaimableAt: time.Now().Add(m.cfg.SafetyDepositClaimWindow),
	}
	state.UpdatedAt = time.Now()
	m.idx.add(state)
	out := *state
	m.mu.Unlock()

	m.emitForStatus(out)
	return &out, nil
}

// settleSafetyDeposit marks a posted deposit claimed or refunded once its
// order reaches the corresponding terminal status: claimed on a completed
// swap (the resolver executed the redemption), refunded on a refunded one
// (the resolver never delivered, or a reorg/timelock forced recovery).
func settleSafetyDeposit(state *types.SwapState, next types.SwapStatus) {
	if state.SafetyDeposit == nil {
		return
	}
	switch next {
	case types.StatusCompleted:
		state.SafetyDeposit.Claimed = true
	case types.StatusRefunded:
		state.SafetyDeposit.Refunded = true
	}
}

// safetyDepositAmount computes bps basis points of makerAmount, grounded on
// the teacher's SafetyDepositManager.CalculateIncentive.
func safetyDepositAmount(makerAmount *big.Int, bps int) *big.Int {
	if makerAmount == nil || bps <= 0 {
		return big.NewInt(0)
	}
	amt := new(big.Int).Mul(makerAmount, big.NewInt(int64(bps)))
	return amt.Div(amt, big.NewInt(10000))
}

func (m *Manager) failLocked(state *types.SwapState, reason string) {
	m.mu.Lock()
	m.idx.remove(state)
	state.Status = types.StatusFailed
	state.FailureReason = reason
	state.UpdatedAt = time.Now()
	m.idx.add(state)
	out := *state
	m.mu.Unlock()
	m.emit(types.SwapEvent{Type: types.EventMonitoringError, OrderID: state.OrderID, Data: out, Timestamp: time.Now()})
}

// Fail marks an order Failed directly, e.g. on auction_settled with no
// winner (spec.md §4.5 "Any non-terminal -> auction_settled(no winner) |
// validation failure -> Failed").
func (m *Manager) Fail(orderID, reason string) (*types.SwapState, error) {
	m.mu.Lock()
	state, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return nil, errs.New(errs.NotFound, orderID, "order not found")
	}
	if state.Status.IsTerminal() {
		m.mu.Unlock()
		return nil, errs.New(errs.Invalid, orderID, "order already terminal")
	}
	m.idx.remove(state)
	state.Status = types.StatusFailed
	state.FailureReason = reason
	state.UpdatedAt = time.Now()
	m.idx.add(state)
	out := *state
	m.mu.Unlock()
	m.emit(types.SwapEvent{Type: types.EventMonitoringError, OrderID: orderID, Data: out, Timestamp: time.Now()})
	return &out, nil
}

func (m *Manager) emitForStatus(state types.SwapState) {
	var t types.SwapEventType
	switch state.Status {
	case types.StatusCompleted:
		t = types.EventSwapCompleted
	case types.StatusRefunded:
		t = types.EventSwapRefunded
	case types.StatusExpired:
		t = types.EventSwapExpired
	default:
		return
	}
	m.emit(types.SwapEvent{Type: t, OrderID: state.OrderID, Data: state, Timestamp: time.Now()})
}

// Get returns a snapshot of an order's current state.
func (m *Manager) Get(orderID string) (*types.SwapState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.orders[orderID]
	if !ok {
		return nil, false
	}
	out := *s
	return &out, true
}

// ReorgLeg identifies which leg of a SwapState a reorg-affected order
// should be downgraded on.
type ReorgLeg int

const (
	ReorgLegSrc ReorgLeg = iota
	ReorgLegDst
)

// RecordTx appends an observed transaction reference to the named leg of an
// order's SwapState (spec.md §3 SrcTxs/DstTxs), so a later Reorg on that
// chain can be matched back to the orders it affects via
// OrdersAffectedByReorg. A no-op if the order is unknown.
func (m *Manager) RecordTx(orderID string, leg ReorgLeg, ref types.TxRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.orders[orderID]
	if !ok {
		return
	}
	if leg == ReorgLegSrc {
		s.SrcTxs = append(s.SrcTxs, ref)
	} else {
		s.DstTxs = append(s.DstTxs, ref)
	}
	s.UpdatedAt = time.Now()
}

// OrdersAffectedByReorg returns, for a Reorg observed on chainID at
// fromHeight, the order IDs whose tracked src or dst tx on that chain was
// observed at or above fromHeight (spec.md §4.2 "downgrading any SwapState
// whose advancing tx was observed at or above fromHeight"), paired with
// which leg was affected so the caller can fire the matching trigger.
func (m *Manager) OrdersAffectedByReorg(chainID types.ChainID, fromHeight uint64) map[string]ReorgLeg {
	m.mu.RLock()
	defer m.mu.RUnlock()
	affected := make(map[string]ReorgLeg)
	for id, s := range m.orders {
		if s.Status.IsTerminal() {
			continue
		}
		if s.SrcChain == chainID && txAtOrAbove(s.SrcTxs, fromHeight) {
			affected[id] = ReorgLegSrc
		}
		if s.DstChain == chainID && txAtOrAbove(s.DstTxs, fromHeight) {
			affected[id] = ReorgLegDst
		}
	}
	return affected
}

func txAtOrAbove(txs []types.TxRef, fromHeight uint64) bool {
	for _, tx := range txs {
		if tx.BlockHeight >= fromHeight {
			return true
		}
	}
	return false
}

// ByMaker, ByResolver, ByStatus return order IDs from the corresponding
// index (spec.md §4.5 Indexes).
func (m *Manager) ByMaker(maker string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx.byMakerSnapshot(maker)
}

func (m *Manager) ByResolver(resolver string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx.byResolverSnapshot(resolver)
}

func (m *Manager) ByStatus(status types.SwapStatus) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx.byStatusSnapshot(status)
}

// EarliestTimelocks returns order IDs for non-terminal orders, sorted by
// ascending earliest timelock (spec.md §4.5 "by earliest-timelock (sorted
// by expiry bucket)"). Computed on demand rather than kept as a standing
// index: re-sorting on every Transition would be needless work for a query
// the cleanup sweep and diagnostics use, not the hot path.
func (m *Manager) EarliestTimelocks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type entry struct {
		id       string
		timelock time.Time
	}
	entries := make([]entry, 0, len(m.orders))
	for id, s := range m.orders {
		if s.Status.IsTerminal() {
			continue
		}
		tl := s.SrcTimelock
		if s.DstTimelock.Before(tl) {
			tl = s.DstTimelock
		}
		entries = append(entries, entry{id, tl})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].timelock.Before(entries[j].timelock) })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}
