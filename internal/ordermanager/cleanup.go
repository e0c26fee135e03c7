package ordermanager

import (
	"context"
	"time"

	"github.com/fusionswap/relayer/internal/types"
)

// Start launches the periodic expiry sweep (spec.md §4.5 Cleanup).
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.runCleanup(ctx)
}

func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	close(m.events)
}

func (m *Manager) runCleanup(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepExpired()
			m.sweepExclusiveWindow()
		}
	}
}

// sweepExclusiveWindow opens the public withdrawal window for any
// SecretRevealed order whose ExclusiveWithdrawEnd has elapsed unclaimed,
// grounded on the teacher's internal/fusion/timelock.go TimelockManager
// scheduled exclusive-expiry task, adapted here onto the periodic sweep
// rather than a per-order time.AfterFunc.
func (m *Manager) sweepExclusiveWindow() {
	now := time.Now()
	m.mu.Lock()
	var opened []types.SwapState
	for _, s := range m.orders {
		if s.Status == types.StatusSecretRevealed && !s.PublicWithdrawOpen && !s.ExclusiveWithdrawEnd.IsZero() && now.After(s.ExclusiveWithdrawEnd) {
			s.PublicWithdrawOpen = true
			s.UpdatedAt = now
			opened = append(opened, *s)
		}
	}
	m.mu.Unlock()

	for _, s := range opened {
		m.emit(types.SwapEvent{Type: types.EventPublicWithdrawOpened, OrderID: s.OrderID, Data: s, Timestamp: now})
	}
}

// sweepExpired transitions non-terminal orders whose expiresAt has elapsed
// to Expired (spec.md §4.5 Cleanup: "transitions non-terminal orders ...
// to Expired"). This is a direct status assignment rather than a
// Transition() call: "expiresAt reached" is valid from any non-terminal
// state, so it bypasses the happy-path table by design — the same reasoning
// applyTrigger uses for the Refunding edge on timelock_elapsed.
func (m *Manager) sweepExpired() {
	now := time.Now()
	m.mu.Lock()
	var expired []types.SwapState
	for _, s := range m.orders {
		if s.Status.IsTerminal() {
			continue
		}
		if !s.ExpiresAt.IsZero() && !s.ExpiresAt.After(now) {
			m.idx.remove(s)
			s.Status = types.StatusExpired
			s.UpdatedAt = now
			m.idx.add(s)
			expired = append(expired, *s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.emit(types.SwapEvent{Type: types.EventSwapExpired, OrderID: s.OrderID, Data: s, Timestamp: now})
	}
}
