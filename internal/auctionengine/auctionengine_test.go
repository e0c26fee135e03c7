package auctionengine_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fusionswap/relayer/internal/auctionengine"
	"github.com/fusionswap/relayer/internal/errs"
	"github.com/fusionswap/relayer/internal/types"
)

func newEngine(t *testing.T, cfg auctionengine.Config) *auctionengine.Engine {
	t.Helper()
	e := auctionengine.New(cfg, nil, zap.NewNop())
	e.RegisterResolver("resolver-a", true)
	e.RegisterResolver("resolver-b", true)
	e.RegisterResolver("resolver-unkyced", false)
	return e
}

func baseParams() *auctionengine.Params {
	return &auctionengine.Params{
		StartingPrice: big.NewInt(1100),
		EndingPrice:   big.NewInt(1010),
		Duration:      time.Minute,
		PriceFn:       types.PriceCurveLinear,
	}
}

func TestStartAuctionRejectsDuplicate(t *testing.T) {
	e := newEngine(t, auctionengine.Config{ReserveRatio: 0.98})
	_, err := e.StartAuction("order-1", baseParams())
	require.NoError(t, err)
	_, err = e.StartAuction("order-1", baseParams())
	require.Error(t, err)
	require.Equal(t, errs.Duplicate, errs.KindOf(err))
}

func TestStartAuctionRespectsCapacity(t *testing.T) {
	e := newEngine(t, auctionengine.Config{ReserveRatio: 0.98, MaxConcurrentAuctions: 1})
	_, err := e.StartAuction("order-1", baseParams())
	require.NoError(t, err)
	_, err = e.StartAuction("order-2", baseParams())
	require.Error(t, err)
	require.Equal(t, errs.Capacity, errs.KindOf(err))
}

func TestReservePriceClampsCurrentPrice(t *testing.T) {
	e := newEngine(t, auctionengine.Config{ReserveRatio: 0.98})
	params := baseParams()
	params.Duration = time.Millisecond // force elapsed > duration quickly
	a, err := e.StartAuction("order-1", params)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	price, err := e.CurrentPrice("order-1")
	require.NoError(t, err)
	require.True(t, price.Cmp(a.ReservePrice) >= 0, "price must never fall below reserve")
	require.Equal(t, 0, price.Cmp(a.ReservePrice))
}

func TestPlaceBidRejectsBelowReserve(t *testing.T) {
	e := newEngine(t, auctionengine.Config{ReserveRatio: 0.98, BidTimeoutWindow: time.Second})
	_, err := e.StartAuction("order-1", baseParams())
	require.NoError(t, err)

	err = e.PlaceBid("order-1", "resolver-a", big.NewInt(1), nil)
	require.Error(t, err)
	require.Equal(t, errs.Invalid, errs.KindOf(err))
}

func TestPlaceBidRejectsUnapprovedResolver(t *testing.T) {
	e := newEngine(t, auctionengine.Config{ReserveRatio: 0.98})
	_, err := e.StartAuction("order-1", baseParams())
	require.NoError(t, err)

	err = e.PlaceBid("order-1", "resolver-unkyced", big.NewInt(1100), nil)
	require.Error(t, err)
}

func TestPlaceBidEnforcesMinIncrement(t *testing.T) {
	e := newEngine(t, auctionengine.Config{ReserveRatio: 0.98, MinBidIncrement: big.NewInt(10), BidTimeoutWindow: time.Second})
	_, err := e.StartAuction("order-1", baseParams())
	require.NoError(t, err)

	require.NoError(t, e.PlaceBid("order-1", "resolver-a", big.NewInt(1100), nil))
	err = e.PlaceBid("order-1", "resolver-b", big.NewInt(1105), nil)
	require.Error(t, err, "bid only 5 above best, increment requires 10")

	require.NoError(t, e.PlaceBid("order-1", "resolver-b", big.NewInt(1110), nil))
}

func TestSettlePicksHighestNonExpiredBid(t *testing.T) {
	e := newEngine(t, auctionengine.Config{ReserveRatio: 0.90, BidTimeoutWindow: time.Second})
	_, err := e.StartAuction("order-1", baseParams())
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	require.NoError(t, e.PlaceBid("order-1", "resolver-a", big.NewInt(1100), &future))
	require.NoError(t, e.PlaceBid("order-1", "resolver-b", big.NewInt(1105), &future))

	result, err := e.Settle("order-1")
	require.NoError(t, err)
	require.Equal(t, "resolver-b", result.Winner)
	require.Equal(t, 0, result.FinalPrice.Cmp(big.NewInt(1105)))
	require.Equal(t, 2, result.Participants)
}

func TestSettleNoBidsYieldsNoWinner(t *testing.T) {
	e := newEngine(t, auctionengine.Config{ReserveRatio: 0.98})
	_, err := e.StartAuction("order-1", baseParams())
	require.NoError(t, err)

	result, err := e.Settle("order-1")
	require.NoError(t, err)
	require.Empty(t, result.Winner)
}

func TestCancelRejectedAfterSettle(t *testing.T) {
	e := newEngine(t, auctionengine.Config{ReserveRatio: 0.98})
	_, err := e.StartAuction("order-1", baseParams())
	require.NoError(t, err)
	_, err = e.Settle("order-1")
	require.NoError(t, err)

	err = e.Cancel("order-1", "too late")
	require.Error(t, err)
}
