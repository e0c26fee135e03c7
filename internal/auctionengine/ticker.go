package auctionengine

import (
	"context"
	"time"

	"github.com/fusionswap/relayer/internal/types"
)

// runTicker recomputes nothing eagerly (currentPrice is pure and computed
// on demand) but flips active auctions past their endTime to ended, per
// spec.md §4.4 "A 10s ticker ... flips active -> ended at endTime".
func (e *Engine) runTicker(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.expireEnded()
		}
	}
}

func (e *Engine) expireEnded() {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range e.auctions {
		if a.Status == types.AuctionActive && !now.Before(a.EndTime) {
			a.Status = types.AuctionEnded
		}
		// Past the bid timeout window with no further bids expected, settle
		// even without a winner (spec.md §8 scenario 2: "At t=60+
		// bidTimeoutWindow: AuctionSettled(no winner)").
		if a.Status == types.AuctionEnded && now.After(a.EndTime.Add(e.cfg.BidTimeoutWindow)) {
			e.settleLocked(a)
		}
	}
}

// runCleanup drops settled/cancelled auctions older than cleanupAge
// (spec.md §4.4 "A 60s cleanup drops settled/cancelled auctions older than
// 1 hour").
func (e *Engine) runCleanup(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.sweepOld()
		}
	}
}

func (e *Engine) sweepOld() {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, a := range e.auctions {
		if (a.Status == types.AuctionSettled || a.Status == types.AuctionCancelled) &&
			now.Sub(a.EndTime) > e.cfg.CleanupAge {
			delete(e.auctions, id)
		}
	}
}
