package secretcoord

import (
	"context"
	"time"

	"github.com/fusionswap/relayer/internal/types"
)

// runRevealScheduler polls every tickInterval for secrets whose revealAt has
// elapsed and whose destination confirmation gate is satisfied, revealing
// them and publishing SecretRevealed events (spec.md §4.3 "the scheduler,
// not the caller, performs the actual reveal once both conditions hold").
//
// Grounded on the teacher's internal/fusion/secrets.go scheduleSecretSharing
// ticker lifecycle.
func (c *Coordinator) runRevealScheduler(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.revealDue()
		}
	}
}

func (c *Coordinator) revealDue() {
	now := time.Now()
	c.mu.RLock()
	var due []secretKey
	for k, s := range c.secrets {
		if s.Status == types.SecretReady && !now.Before(s.RevealAt) {
			if c.confirmedDst == nil || c.confirmedDst(k.orderID) {
				due = append(due, k)
			}
		}
	}
	c.mu.RUnlock()

	for _, k := range due {
		plaintext, err := c.Reveal(k.orderID, k.index)
		if err != nil {
			continue // not yet actually revealable (race with confirmedDst flipping); retry next tick
		}
		// The published event only announces that a reveal happened; the
		// preimage itself never leaves the coordinator (spec.md §5 "never
		// sent to subscribers"). The secret is now revealed, so a later
		// Reveal call for it fails; the plaintext returned here is zeroed
		// below and is not handed to any caller.
		c.emit(types.SwapEvent{
			Type:      types.EventSecretRevealed,
			OrderID:   k.orderID,
			Data:      types.SecretRevealedData{Index: k.index, Source: types.SecretSourceManual},
			Timestamp: time.Now(),
		})
		for i := range plaintext {
			plaintext[i] = 0
		}
	}
}

// runCleanup periodically expires secrets past maxSecretAge and discards
// (zeroes ciphertext reference) those past 2x maxSecretAge, bounding how
// long unrevealed preimages linger in memory.
func (c *Coordinator) runCleanup(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *Coordinator) sweepExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, s := range c.secrets {
		age := now.Sub(s.CreatedAt)
		switch {
		case age >= 2*c.cfg.MaxSecretAge:
			delete(c.secrets, k)
		case age >= c.cfg.MaxSecretAge && s.Status != types.SecretRevealed:
			s.Status = types.SecretExpired
		}
	}
}

func (c *Coordinator) emit(ev types.SwapEvent) {
	select {
	case c.events <- ev:
	default:
		select {
		case c.events <- types.SwapEvent{Type: types.EventSubscriberLagged, Timestamp: time.Now()}:
		default:
		}
	}
}
