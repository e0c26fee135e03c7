package auctionengine

import (
	"fmt"
	"math/big"

	"github.com/fusionswap/relayer/internal/types"
)

// OrderLookup is the read-only slice of the Order Manager this package
// depends on: enough to derive a rate from an order's amounts, nothing else
// (spec.md §3 "Order Manager → {Auction, Secret} (by id)" — the dependency
// runs order-manager-to-auction-engine, never the reverse, so this is
// satisfied by *ordermanager.Manager without an import cycle).
type OrderLookup interface {
	Get(orderID string) (*types.SwapState, bool)
}

// AmountRateSource is the default RateSource: it derives a "market rate"
// from the order's own maker/taker amounts and applies a fixed premium,
// matching the teacher's FusionOrder.CalculateCurrentRate starting-price
// derivation. spec.md §9 flags this as possibly just a placeholder and
// requires the rate source to be swappable; callers that want a real price
// oracle provide their own RateSource to auctionengine.New instead.
type AmountRateSource struct {
	orders  OrderLookup
	premium *big.Rat // multiplier, e.g. 102/100 for a 2% premium
}

// NewAmountRateSource builds the default rate source with a 2% premium over
// the order's taker/maker amount ratio, as the teacher's auction starting
// price derivation did.
func NewAmountRateSource(orders OrderLookup) *AmountRateSource {
	return &AmountRateSource{orders: orders, premium: big.NewRat(102, 100)}
}

// ExpectedRate returns takerAmount/makerAmount scaled by the premium, with
// the result expressed in the same integer units as TakerAmount (i.e. "price"
// here means taker-asset units per unit of maker-asset, rounded down).
func (s *AmountRateSource) ExpectedRate(orderID string) (*big.Int, error) {
	st, ok := s.orders.Get(orderID)
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	if st.MakerAmount == nil || st.MakerAmount.Sign() <= 0 {
		return nil, fmt.Errorf("order %s has no maker amount to derive a rate from", orderID)
	}
	rate := new(big.Rat).SetFrac(st.TakerAmount, st.MakerAmount)
	rate.Mul(rate, s.premium)
	out := new(big.Int).Quo(rate.Num(), rate.Denom())
	return out, nil
}
