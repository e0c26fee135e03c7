package ordermanager_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fusionswap/relayer/internal/errs"
	"github.com/fusionswap/relayer/internal/ordermanager"
	"github.com/fusionswap/relayer/internal/types"
)

func baseOrder(id string) types.SwapOrder {
	return types.SwapOrder{
		OrderID:     id,
		Maker:       "maker-1",
		MakerChain:  types.ChainID("evm"),
		MakerAmount: big.NewInt(1000),
		TakerChain:  types.ChainID("utxo"),
		TakerAmount: big.NewInt(990),
		SecretHash:  [32]byte{1},
		Timelock:    time.Now().Add(2 * time.Hour),
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func newManager(t *testing.T) *ordermanager.Manager {
	t.Helper()
	return ordermanager.New(ordermanager.Config{}, zap.NewNop())
}

func TestCreateOrderRejectsMissingFields(t *testing.T) {
	m := newManager(t)
	o := baseOrder("order-1")
	o.Maker = ""
	_, err := m.CreateOrder(o)
	require.Error(t, err)
	require.Equal(t, errs.Invalid, errs.KindOf(err))
}

func TestCreateOrderDerivesSrcTimelockWithSafetyBuffer(t *testing.T) {
	m := ordermanager.New(ordermanager.Config{SafetyBuffer: 90 * time.Minute}, zap.NewNop())
	o := baseOrder("order-1")
	state, err := m.CreateOrder(o)
	require.NoError(t, err)
	require.True(t, state.SrcTimelock.Equal(o.Timelock.Add(90*time.Minute)))
	require.True(t, state.DstTimelock.Equal(o.Timelock))
	require.True(t, !state.SrcTimelock.Before(state.DstTimelock.Add(90*time.Minute)))
}

func TestCreateOrderRejectsSameChain(t *testing.T) {
	m := newManager(t)
	o := baseOrder("order-1")
	o.TakerChain = o.MakerChain
	_, err := m.CreateOrder(o)
	require.Error(t, err)
}

func TestCreateOrderRejectsPastTimelock(t *testing.T) {
	m := newManager(t)
	o := baseOrder("order-1")
	o.Timelock = time.Now().Add(-time.Minute)
	_, err := m.CreateOrder(o)
	require.Error(t, err)
}

func TestCreateOrderRejectsZeroSecretHash(t *testing.T) {
	m := newManager(t)
	o := baseOrder("order-1")
	o.SecretHash = [32]byte{}
	_, err := m.CreateOrder(o)
	require.Error(t, err)
}

func TestCreateOrderRejectsDuplicate(t *testing.T) {
	m := newManager(t)
	_, err := m.CreateOrder(baseOrder("order-1"))
	require.NoError(t, err)
	_, err = m.CreateOrder(baseOrder("order-1"))
	require.Error(t, err)
	require.Equal(t, errs.Duplicate, errs.KindOf(err))
}

func TestHappyPathTransitionsToCompleted(t *testing.T) {
	m := newManager(t)
	_, err := m.CreateOrder(baseOrder("order-1"))
	require.NoError(t, err)

	steps := []ordermanager.Trigger{
		ordermanager.TriggerAuctionStarted,
		ordermanager.TriggerResolverChosen,
		ordermanager.TriggerEscrowCreatedSrc,
		ordermanager.TriggerConfsReachedSrc,
		ordermanager.TriggerEscrowCreatedDst,
		ordermanager.TriggerConfsReachedDst,
		ordermanager.TriggerSecretScheduled,
		ordermanager.TriggerSecretRevealed,
		ordermanager.TriggerRedeemedDst,
		ordermanager.TriggerRedeemedSrc,
	}
	for _, trig := range steps {
		_, err := m.Transition("order-1", trig)
		require.NoError(t, err, "trigger %s should be valid", trig)
	}

	state, ok := m.Get("order-1")
	require.True(t, ok)
	require.Equal(t, types.StatusCompleted, state.Status)
}

func TestReorgRewindsToPriorState(t *testing.T) {
	m := newManager(t)
	_, err := m.CreateOrder(baseOrder("order-1"))
	require.NoError(t, err)
	_, err = m.Transition("order-1", ordermanager.TriggerAuctionStarted)
	require.NoError(t, err)
	_, err = m.Transition("order-1", ordermanager.TriggerResolverChosen)
	require.NoError(t, err)
	_, err = m.Transition("order-1", ordermanager.TriggerEscrowCreatedSrc)
	require.NoError(t, err)

	state, err := m.Transition("order-1", ordermanager.TriggerReorgSrc)
	require.NoError(t, err)
	require.Equal(t, types.StatusResolverChosen, state.Status)
}

func TestReorgRewindsSrcFundedToResolverChosen(t *testing.T) {
	m := newManager(t)
	_, err := m.CreateOrder(baseOrder("order-1"))
	require.NoError(t, err)
	for _, trig := range []ordermanager.Trigger{
		ordermanager.TriggerAuctionStarted,
		ordermanager.TriggerResolverChosen,
		ordermanager.TriggerEscrowCreatedSrc,
		ordermanager.TriggerConfsReachedSrc,
	} {
		_, err := m.Transition("order-1", trig)
		require.NoError(t, err)
	}
	state, ok := m.Get("order-1")
	require.True(t, ok)
	require.Equal(t, types.StatusSrcFunded, state.Status)

	state, rerr := m.Transition("order-1", ordermanager.TriggerReorgSrc)
	require.NoError(t, rerr)
	require.Equal(t, types.StatusResolverChosen, state.Status)
}

func TestOrdersAffectedByReorgMatchesOnBlockHeight(t *testing.T) {
	m := newManager(t)
	_, err := m.CreateOrder(baseOrder("order-1"))
	require.NoError(t, err)
	m.RecordTx("order-1", ordermanager.ReorgLegSrc, types.TxRef{TxHash: "0xabc", ChainID: "evm", BlockHeight: 100})

	affected := m.OrdersAffectedByReorg("evm", 100)
	require.Equal(t, ordermanager.ReorgLegSrc, affected["order-1"])

	none := m.OrdersAffectedByReorg("evm", 101)
	require.Empty(t, none)

	none = m.OrdersAffectedByReorg("utxo", 100)
	require.Empty(t, none)
}

func TestInvalidTransitionMarksFailedAndReturnsDesync(t *testing.T) {
	m := newManager(t)
	_, err := m.CreateOrder(baseOrder("order-1"))
	require.NoError(t, err)

	_, err = m.Transition("order-1", ordermanager.TriggerRedeemedSrc)
	require.Error(t, err)
	require.Equal(t, errs.Desync, errs.KindOf(err))

	state, ok := m.Get("order-1")
	require.True(t, ok)
	require.Equal(t, types.StatusFailed, state.Status)
}

func TestTimelockElapsedValidFromAnyNonTerminalState(t *testing.T) {
	m := newManager(t)
	_, err := m.CreateOrder(baseOrder("order-1"))
	require.NoError(t, err)
	_, err = m.Transition("order-1", ordermanager.TriggerAuctionStarted)
	require.NoError(t, err)

	state, err := m.Transition("order-1", ordermanager.TriggerTimelockElapsedDst)
	require.NoError(t, err)
	require.Equal(t, types.StatusRefunding, state.Status)

	state, err = m.Transition("order-1", ordermanager.TriggerRefundedDst)
	require.NoError(t, err)
	require.Equal(t, types.StatusRefunded, state.Status)
}

func TestTransitionRejectedAfterTerminal(t *testing.T) {
	m := newManager(t)
	_, err := m.CreateOrder(baseOrder("order-1"))
	require.NoError(t, err)
	_, err = m.Transition("order-1", ordermanager.TriggerTimelockElapsedDst)
	require.NoError(t, err)
	_, err = m.Transition("order-1", ordermanager.TriggerRefundedDst)
	require.NoError(t, err)

	_, err = m.Transition("order-1", ordermanager.TriggerAuctionStarted)
	require.Error(t, err)
}

func TestFailRejectsAlreadyTerminalOrder(t *testing.T) {
	m := newManager(t)
	_, err := m.CreateOrder(baseOrder("order-1"))
	require.NoError(t, err)
	_, err = m.Transition("order-1", ordermanager.TriggerTimelockElapsedDst)
	require.NoError(t, err)
	_, err = m.Transition("order-1", ordermanager.TriggerRefundedDst)
	require.NoError(t, err)

	_, err = m.Fail("order-1", "late failure")
	require.Error(t, err)
}

func TestIndexesUpdateAtomicallyWithStatus(t *testing.T) {
	m := newManager(t)
	o := baseOrder("order-1")
	_, err := m.CreateOrder(o)
	require.NoError(t, err)

	require.Contains(t, m.ByMaker("maker-1"), "order-1")
	require.Contains(t, m.ByStatus(types.StatusCreated), "order-1")

	_, err = m.Transition("order-1", ordermanager.TriggerAuctionStarted)
	require.NoError(t, err)

	require.NotContains(t, m.ByStatus(types.StatusCreated), "order-1")
	require.Contains(t, m.ByStatus(types.StatusAuctionStarted), "order-1")
}

func TestEarliestTimelocksSortsAscendingAndSkipsTerminal(t *testing.T) {
	m := newManager(t)
	near := baseOrder("order-near")
	near.Timelock = time.Now().Add(30 * time.Minute)
	far := baseOrder("order-far")
	far.Timelock = time.Now().Add(3 * time.Hour)

	_, err := m.CreateOrder(near)
	require.NoError(t, err)
	_, err = m.CreateOrder(far)
	require.NoError(t, err)

	order := m.EarliestTimelocks()
	require.Equal(t, []string{"order-near", "order-far"}, order)

	_, err = m.Transition("order-near", ordermanager.TriggerTimelockElapsedDst)
	require.NoError(t, err)
	_, err = m.Transition("order-near", ordermanager.TriggerRefundedDst)
	require.NoError(t, err)

	order = m.EarliestTimelocks()
	require.Equal(t, []string{"order-far"}, order)
}
