package relayerfacade_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fusionswap/relayer/internal/auctionengine"
	"github.com/fusionswap/relayer/internal/monitor"
	"github.com/fusionswap/relayer/internal/ordermanager"
	"github.com/fusionswap/relayer/internal/relayerfacade"
	"github.com/fusionswap/relayer/internal/secretcoord"
	"github.com/fusionswap/relayer/internal/types"
)

type fixedRate struct{ rate *big.Int }

func (f fixedRate) ExpectedRate(string) (*big.Int, error) { return f.rate, nil }

func newFacade(t *testing.T, confirmedDst func(string) bool) (*relayerfacade.Facade, *ordermanager.Manager, *auctionengine.Engine) {
	t.Helper()
	log := zap.NewNop()
	orders := ordermanager.New(ordermanager.Config{}, log)
	auctions := auctionengine.New(auctionengine.Config{ReserveRatio: 0.95, BidTimeoutWindow: time.Hour}, fixedRate{big.NewInt(100)}, log)
	auctions.RegisterResolver("resolver-a", true)
	secrets := secretcoord.New(secretcoord.Config{
		MasterKey:          []byte("0123456789abcdef0123456789abcdef"),
		DefaultRevealDelay: 0,
		MaxSecretAge:       time.Hour,
	}, confirmedDst, log)
	mon := monitor.New(monitor.Config{
		EVMPollInterval:  time.Hour,
		UTXOPollInterval: time.Hour,
		MaxReorgDepth:    5,
	}, nil, nil, log)

	f := relayerfacade.New(orders, auctions, secrets, mon, log)
	return f, orders, auctions
}

func baseOrder(id string) types.SwapOrder {
	return types.SwapOrder{
		OrderID:     id,
		Maker:       "maker-1",
		MakerChain:  types.ChainID("evm"),
		MakerAmount: big.NewInt(1000),
		TakerChain:  types.ChainID("utxo"),
		TakerAmount: big.NewInt(990),
		SecretHash:  [32]byte{9},
		Timelock:    time.Now().Add(2 * time.Hour),
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func drainUntil(t *testing.T, ch <-chan types.SwapEvent, want types.SwapEventType, timeout time.Duration) types.SwapEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", want)
		}
	}
}

func TestFacadeAuctionSettlementDrivesResolverChosen(t *testing.T) {
	f, orders, auctions := newFacade(t, func(string) bool { return true })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)
	defer f.Stop(time.Second)

	sub := f.Subscribe()

	_, err := f.CreateOrder(baseOrder("order-1"))
	require.NoError(t, err)
	drainUntil(t, sub, types.EventOrderCreated, time.Second)

	_, err = orders.Transition("order-1", ordermanager.TriggerAuctionStarted)
	require.NoError(t, err)

	_, err = f.StartAuction("order-1", &auctionengine.Params{
		StartingPrice: big.NewInt(110),
		EndingPrice:   big.NewInt(100),
		Duration:      time.Minute,
		PriceFn:       types.PriceCurveLinear,
	})
	require.NoError(t, err)

	require.NoError(t, f.PlaceBid("order-1", "resolver-a", big.NewInt(110), nil))

	result, err := auctions.Settle("order-1")
	require.NoError(t, err)
	require.Equal(t, "resolver-a", result.Winner)

	drainUntil(t, sub, types.EventAuctionSettled, time.Second)

	state, ok := f.GetOrder("order-1")
	require.True(t, ok)
	require.Equal(t, types.StatusResolverChosen, state.Status)
}

func TestCancelOrderFailsOrderAndCancelsAuction(t *testing.T) {
	f, _, _ := newFacade(t, func(string) bool { return true })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)
	defer f.Stop(time.Second)

	_, err := f.CreateOrder(baseOrder("order-1"))
	require.NoError(t, err)

	_, err = f.StartAuction("order-1", &auctionengine.Params{
		StartingPrice: big.NewInt(110),
		EndingPrice:   big.NewInt(100),
		Duration:      time.Minute,
		PriceFn:       types.PriceCurveLinear,
	})
	require.NoError(t, err)

	require.NoError(t, f.CancelOrder("order-1", "maker withdrew"))

	state, ok := f.GetOrder("order-1")
	require.True(t, ok)
	require.Equal(t, types.StatusFailed, state.Status)

	// The cancelled auction no longer accepts bids.
	require.Error(t, f.PlaceBid("order-1", "resolver-a", big.NewInt(110), nil))
}

func TestSubscribersAreIndependentlyBounded(t *testing.T) {
	f, _, _ := newFacade(t, func(string) bool { return true })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)
	defer f.Stop(time.Second)

	slow := f.Subscribe()
	fast := f.Subscribe()

	for i := 0; i < 10; i++ {
		_, err := f.CreateOrder(baseOrder("order-" + string(rune('a'+i))))
		require.NoError(t, err)
	}

	// Drain only the fast subscriber; the slow one's backlog must not block
	// the fast one or the facade's pump.
	count := 0
	deadline := time.After(time.Second)
loop:
	for {
		select {
		case <-fast:
			count++
			if count >= 10 {
				break loop
			}
		case <-deadline:
			break loop
		}
	}
	require.Equal(t, 10, count)
	_ = slow
}
