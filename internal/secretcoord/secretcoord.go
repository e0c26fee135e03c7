// Package secretcoord implements the Secret Coordinator (spec.md §4.3):
// store/scheduleReveal/reveal for single secrets, and
// setupPartialFill/coordinatePartialReveal for Merkle-tree partial fills.
//
// Grounded on the teacher's internal/fusion/secrets.go (SecretManager,
// StoredSecret, scheduleSecretSharing ticker lifecycle) and
// internal/fusion/partialfill.go (PartialFillManager, ExecuteFill,
// calculateSecretIndex), unified into one component per spec.md's single
// Secret Coordinator contract. Replaces the teacher's plaintext-in-map
// storage with cryptoutil.SealSecret/OpenSecret, its naive
// concatenate-then-hash Merkle root with cryptoutil.BuildMerkleTree, and
// partialfill.go's insecure time.Now().UnixNano()%256 secret generator with
// cryptoutil.GenerateSecret (crypto/rand).
package secretcoord

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fusionswap/relayer/internal/cryptoutil"
	"github.com/fusionswap/relayer/internal/errs"
	"github.com/fusionswap/relayer/internal/types"
)

// Config configures the reveal scheduler and cleanup cadence.
type Config struct {
	MasterKey          []byte
	DefaultRevealDelay time.Duration
	MaxSecretAge       time.Duration
	TickInterval       time.Duration // reveal-scheduler tick, default ~10s
	CleanupInterval    time.Duration // default ~1h
}

type secretKey struct {
	orderID string
	index   int
}

// partialFillEntry tracks the live Merkle tree object (needed to produce
// proofs on demand) alongside the published metadata.
type partialFillEntry struct {
	tree         *cryptoutil.MerkleTree
	meta         types.MerkleSecretTree
	totalParts   int
	used         map[int]bool
	totalAmount  *big.Int
	filledAmount *big.Int
}

// Coordinator is the Secret Coordinator component.
type Coordinator struct {
	cfg Config
	log *zap.Logger

	mu       sync.RWMutex
	secrets  map[secretKey]*types.StoredSecret
	merkles  map[string]*partialFillEntry // keyed by orderID

	// confirmedDst reports whether a destination escrow has reached required
	// confirmations for an orderId; the reveal scheduler only reveals a
	// secret once both the delay has elapsed AND this returns true
	// (spec.md §4.3 "Secret leakage policy" — both conditions required).
	confirmedDst func(orderID string) bool

	events chan types.SwapEvent

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Coordinator. confirmedDst is injected by the caller
// (typically the Order Manager / Relayer Facade wiring) rather than the
// Secret Coordinator reaching into the Event Monitor directly, per spec.md
// §9's ban on cyclic component references.
func New(cfg Config, confirmedDst func(orderID string) bool, log *zap.Logger) *Coordinator {
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 10 * time.Second
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	return &Coordinator{
		cfg:          cfg,
		log:          log.Named("secretcoord"),
		secrets:      make(map[secretKey]*types.StoredSecret),
		merkles:      make(map[string]*partialFillEntry),
		confirmedDst: confirmedDst,
		events:       make(chan types.SwapEvent, 128),
		stopCh:       make(chan struct{}),
	}
}

// Events returns the coordinator's event stream (secret lifecycle events
// forwarded onward by the Relayer Facade).
func (c *Coordinator) Events() <-chan types.SwapEvent { return c.events }

// Start launches the reveal scheduler and cleanup tickers.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(2)
	go c.runRevealScheduler(ctx)
	go c.runCleanup(ctx)
}

// Stop signals both tickers to exit and waits for them.
func (c *Coordinator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	close(c.events)
}

// Store persists an encrypted preimage keyed by (orderId, index)
// (spec.md §4.3 store()). Rejects unless len(secret)==32 and the key is
// unseen.
func (c *Coordinator) Store(orderID string, secret [32]byte, index int, partialFillIndex *int) (*types.StoredSecret, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := secretKey{orderID, index}
	if _, exists := c.secrets[key]; exists {
		return nil, errs.New(errs.Duplicate, orderID, fmt.Sprintf("secret index %d already stored", index))
	}

	ciphertext, err := cryptoutil.SealSecret(c.cfg.MasterKey, orderID, index, secret[:])
	if err != nil {
		return nil, errs.Wrap(errs.Invalid, orderID, "seal secret", err)
	}

	stored := &types.StoredSecret{
		OrderID:          orderID,
		Index:            index,
		Hash:             cryptoutil.HashSecret(secret[:]),
		Ciphertext:       ciphertext,
		Status:           types.SecretPending,
		PartialFillIndex: partialFillIndex,
		CreatedAt:        time.Now(),
	}
	c.secrets[key] = stored
	return cloneSecret(stored), nil
}

// ScheduleReveal sets revealAt and flips status to ready (spec.md §4.3
// scheduleReveal()).
func (c *Coordinator) ScheduleReveal(orderID string, index int, delay *time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.secrets[secretKey{orderID, index}]
	if !ok {
		return errs.New(errs.NotFound, orderID, "secret not found")
	}
	if s.Status != types.SecretPending {
		return errs.New(errs.Invalid, orderID, "secret is not pending")
	}
	d := c.cfg.DefaultRevealDelay
	if delay != nil {
		d = *delay
	}
	s.RevealAt = time.Now().Add(d)
	s.Status = types.SecretReady
	return nil
}

// Reveal returns the plaintext and flips status to revealed (spec.md §4.3
// reveal()). Requires status ready (see DESIGN.md Open Question decision);
// an already-revealed or expired secret fails.
func (c *Coordinator) Reveal(orderID string, index int) ([32]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero [32]byte
	s, ok := c.secrets[secretKey{orderID, index}]
	if !ok {
		return zero, errs.New(errs.NotFound, orderID, "secret not found")
	}
	if s.Status != types.SecretReady {
		return zero, errs.New(errs.Invalid, orderID, fmt.Sprintf("secret not ready (status=%s)", s.Status))
	}
	if time.Now().Before(s.RevealAt) {
		return zero, errs.New(errs.Invalid, orderID, "reveal delay has not elapsed")
	}
	if c.confirmedDst != nil && !c.confirmedDst(orderID) {
		return zero, errs.New(errs.Invalid, orderID, "destination escrow not yet confirmed")
	}

	plaintext, err := cryptoutil.OpenSecret(c.cfg.MasterKey, orderID, index, s.Ciphertext)
	if err != nil {
		return zero, errs.Wrap(errs.Desync, orderID, "open secret", err)
	}
	var out [32]byte
	copy(out[:], plaintext)
	for i := range plaintext {
		plaintext[i] = 0
	}
	s.Status = types.SecretRevealed
	s.RevealedAt = time.Now()
	return out, nil
}

func cloneSecret(s *types.StoredSecret) *types.StoredSecret {
	c := *s
	return &c
}
