// Package auctionengine runs independent Dutch auctions per order and
// reports the winner (spec.md §4.4).
//
// Grounded on the teacher's internal/fusion/auction.go (AuctionEngine,
// ActiveAuction, Resolver, event-channel shape), generalized from its
// single linear-interpolation FusionOrder.CalculateCurrentRate (ported from
// the now-deleted internal/types/order.go) into the two named decay
// functions spec.md specifies, and from its "first bid at or above current
// rate wins immediately" rule into the spec's highest-price-wins settlement
// with explicit tie-breaking.
package auctionengine

import (
	"context"
	"math"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fusionswap/relayer/internal/errs"
	"github.com/fusionswap/relayer/internal/types"
)

// RateSource supplies the off-chain expected exchange rate for an order when
// the caller does not override start params (spec.md §9 Open Question:
// expectedRate is an injected dependency, not something the core computes).
type RateSource interface {
	ExpectedRate(orderID string) (*big.Int, error)
}

// Params overrides the defaults start() would otherwise compute.
type Params struct {
	StartingPrice *big.Int
	EndingPrice   *big.Int
	Duration      time.Duration
	PriceFn       types.PriceCurveFn
}

// Config holds engine-wide defaults and limits.
type Config struct {
	DefaultDuration     time.Duration
	ReserveRatio        float64 // reservePrice = startingPrice * ReserveRatio
	MaxConcurrentAuctions int
	BidTimeoutWindow    time.Duration
	MinBidIncrement     *big.Int
	TickInterval        time.Duration // default 10s
	CleanupInterval     time.Duration // default 60s
	CleanupAge          time.Duration // default 1h
}

// Resolver mirrors the teacher's KYC-gated resolver registry (spec.md's
// supplemented "resolver KYC" feature).
type Resolver struct {
	ID           string
	KYCApproved  bool
	LastActivity time.Time
}

// Engine is the Auction Engine component.
type Engine struct {
	cfg  Config
	rate RateSource
	log  *zap.Logger

	mu        sync.RWMutex
	auctions  map[string]*types.Auction
	resolvers map[string]*Resolver

	events chan types.SwapEvent
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs an Engine.
func New(cfg Config, rate RateSource, log *zap.Logger) *Engine {
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 10 * time.Second
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 60 * time.Second
	}
	if cfg.CleanupAge == 0 {
		cfg.CleanupAge = time.Hour
	}
	if cfg.MinBidIncrement == nil {
		cfg.MinBidIncrement = big.NewInt(0)
	}
	return &Engine{
		cfg:       cfg,
		rate:      rate,
		log:       log.Named("auctionengine"),
		auctions:  make(map[string]*types.Auction),
		resolvers: make(map[string]*Resolver),
		events:    make(chan types.SwapEvent, 128),
		stopCh:    make(chan struct{}),
	}
}

func (e *Engine) Events() <-chan types.SwapEvent { return e.events }

// RegisterResolver marks a resolver as KYC-approved (or not); bids from
// unapproved or unknown resolvers are rejected by PlaceBid.
func (e *Engine) RegisterResolver(id string, kycApproved bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolvers[id] = &Resolver{ID: id, KYCApproved: kycApproved, LastActivity: time.Now()}
}

// Start launches the recompute and cleanup tickers.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(2)
	go e.runTicker(ctx)
	go e.runCleanup(ctx)
}

func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
	close(e.events)
}

func (e *Engine) emit(ev types.SwapEvent) {
	select {
	case e.events <- ev:
	default:
		select {
		case e.events <- types.SwapEvent{Type: types.EventSubscriberLagged, Timestamp: time.Now()}:
		default:
		}
	}
}

// StartAuction begins a Dutch auction for an order (spec.md §4.4 start()).
func (e *Engine) StartAuction(orderID string, params *Params) (*types.Auction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.auctions[orderID]; exists {
		return nil, errs.New(errs.Duplicate, orderID, "auction already exists")
	}
	if e.cfg.MaxConcurrentAuctions > 0 && len(e.auctions) >= e.cfg.MaxConcurrentAuctions {
		return nil, errs.New(errs.Capacity, orderID, "max concurrent auctions reached")
	}

	var starting, ending *big.Int
	duration := e.cfg.DefaultDuration
	priceFn := types.PriceCurveLinear

	if params != nil && params.StartingPrice != nil {
		starting = params.StartingPrice
		ending = params.EndingPrice
		if params.Duration > 0 {
			duration = params.Duration
		}
		if params.PriceFn != "" {
			priceFn = params.PriceFn
		}
	} else {
		if e.rate == nil {
			return nil, errs.New(errs.Invalid, orderID, "no rate source configured and no params override given")
		}
		expected, err := e.rate.ExpectedRate(orderID)
		if err != nil {
			return nil, errs.Wrap(errs.Invalid, orderID, "expected rate lookup", err)
		}
		starting = mulFloat(expected, 1.10)
		ending = mulFloat(expected, 1.01)
	}

	reserve := mulFloat(starting, e.cfg.ReserveRatio)

	now := time.Now()
	auction := &types.Auction{
		OrderID:       orderID,
		StartingPrice: starting,
		EndingPrice:   ending,
		ReservePrice:  reserve,
		Duration:      duration,
		PriceFn:       priceFn,
		StartTime:     now,
		EndTime:       now.Add(duration),
		Status:        types.AuctionActive,
	}
	e.auctions[orderID] = auction

	out := *auction
	e.emit(types.SwapEvent{Type: types.EventAuctionStarted, OrderID: orderID, Data: out, Timestamp: now})
	return &out, nil
}

// CurrentPrice is a pure function of elapsed time since start (spec.md §4.4
// currentPrice()).
func (e *Engine) CurrentPrice(orderID string) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.auctions[orderID]
	if !ok {
		return nil, errs.New(errs.NotFound, orderID, "auction not found")
	}
	return currentPriceLocked(a, time.Now()), nil
}

func currentPriceLocked(a *types.Auction, now time.Time) *big.Int {
	elapsed := now.Sub(a.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	T := a.Duration
	t := elapsed
	if t > T {
		t = T
	}

	start := new(big.Float).SetInt(a.StartingPrice)
	end := new(big.Float).SetInt(a.EndingPrice)
	var price *big.Float

	switch a.PriceFn {
	case types.PriceCurveExponential:
		k := 3.0
		ratio := float64(t) / float64(T)
		decay := math.Exp(-k * ratio)
		diff := new(big.Float).Sub(start, end)
		price = new(big.Float).Add(end, new(big.Float).Mul(diff, big.NewFloat(decay)))
	default: // linear
		ratio := float64(t) / float64(T)
		diff := new(big.Float).Sub(start, end)
		price = new(big.Float).Sub(start, new(big.Float).Mul(diff, big.NewFloat(ratio)))
	}

	result, _ := price.Int(nil)
	reserve := a.ReservePrice
	if reserve != nil && result.Cmp(reserve) < 0 {
		return new(big.Int).Set(reserve)
	}
	return result
}

// PlaceBid validates and records a resolver's bid (spec.md §4.4 placeBid()).
func (e *Engine) PlaceBid(orderID, resolverID string, price *big.Int, expiresAt *time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	resolver, ok := e.resolvers[resolverID]
	if !ok || !resolver.KYCApproved {
		return errs.New(errs.Invalid, orderID, "resolver unknown or not KYC-approved")
	}

	a, ok := e.auctions[orderID]
	if !ok {
		return errs.New(errs.NotFound, orderID, "auction not found")
	}

	now := time.Now()
	withinTimeout := a.Status == types.AuctionEnded && now.Before(a.EndTime.Add(e.cfg.BidTimeoutWindow))
	if a.Status != types.AuctionActive && !withinTimeout {
		return errs.New(errs.Invalid, orderID, "auction not accepting bids")
	}

	current := currentPriceLocked(a, now)
	if price.Cmp(a.ReservePrice) < 0 || price.Cmp(current) < 0 {
		return errs.New(errs.Invalid, orderID, "bid below reserve or current price")
	}
	if a.BestBid != nil {
		min := new(big.Int).Add(a.BestBid.Price, e.cfg.MinBidIncrement)
		if price.Cmp(min) < 0 {
			return errs.New(errs.Invalid, orderID, "bid does not beat best bid by minBidIncrement")
		}
	}

	exp := now.Add(e.cfg.BidTimeoutWindow)
	if expiresAt != nil {
		exp = *expiresAt
	}
	bid := types.Bid{Resolver: resolverID, Price: price, Timestamp: now, ExpiresAt: exp}
	a.Bids = append(a.Bids, bid)
	resolver.LastActivity = now

	if a.BestBid == nil || bidWins(bid, *a.BestBid) {
		b := bid
		a.BestBid = &b
	}

	e.emit(types.SwapEvent{Type: types.EventBidPlaced, OrderID: orderID, Data: bid, Timestamp: now})

	if withinTimeout {
		e.settleLocked(a)
	}
	return nil
}

// bidWins reports whether candidate beats incumbent: higher price; tie
// broken by earlier timestamp, then by earlier bid-list position (caller
// supplies candidate after incumbent is already in the list, so equal
// timestamps fall through to "incumbent keeps its earlier position").
func bidWins(candidate, incumbent types.Bid) bool {
	if candidate.Price.Cmp(incumbent.Price) > 0 {
		return true
	}
	if candidate.Price.Cmp(incumbent.Price) < 0 {
		return false
	}
	return candidate.Timestamp.Before(incumbent.Timestamp)
}

// Result is the outcome of settling an auction.
type Result struct {
	Winner       string
	FinalPrice   *big.Int
	Participants int
	Duration     time.Duration
}

// Settle picks the highest-price bid among those not yet expired (spec.md
// §4.4 settle()).
func (e *Engine) Settle(orderID string) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.auctions[orderID]
	if !ok {
		return nil, errs.New(errs.NotFound, orderID, "auction not found")
	}
	return e.settleLocked(a), nil
}

func (e *Engine) settleLocked(a *types.Auction) *Result {
	now := time.Now()
	var winner *types.Bid
	for i := range a.Bids {
		b := &a.Bids[i]
		if b.ExpiresAt.Before(now) {
			continue
		}
		if winner == nil || bidWins(*b, *winner) {
			winner = b
		}
	}

	result := &Result{
		Participants: len(a.Bids),
		Duration:     now.Sub(a.StartTime),
	}
	if winner != nil {
		result.Winner = winner.Resolver
		result.FinalPrice = winner.Price
		a.Resolver = winner.Resolver
	} else {
		result.FinalPrice = currentPriceLocked(a, now)
	}
	a.Status = types.AuctionSettled

	e.emit(types.SwapEvent{Type: types.EventAuctionSettled, OrderID: a.OrderID, Data: *result, Timestamp: now})
	return result
}

// Cancel ends an auction before settlement (spec.md §4.4 cancel()).
func (e *Engine) Cancel(orderID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.auctions[orderID]
	if !ok {
		return errs.New(errs.NotFound, orderID, "auction not found")
	}
	if a.Status == types.AuctionSettled {
		return errs.New(errs.Invalid, orderID, "auction already settled")
	}
	a.Status = types.AuctionCancelled
	return nil
}

func mulFloat(v *big.Int, factor float64) *big.Int {
	f := new(big.Float).SetInt(v)
	f.Mul(f, big.NewFloat(factor))
	out, _ := f.Int(nil)
	return out
}
