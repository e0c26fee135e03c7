// Package monitor implements the Event Monitor (spec.md §4.2): one loop per
// chain that advances a cursor, decodes known events into typed
// types.SwapEvent values, tracks confirmations for registered
// types.MonitoredTx entries, and detects reorgs.
//
// Grounded on the teacher's internal/adapters/anvil.go Watch ticker-loop
// skeleton (poll on a time.Ticker, respect ctx.Done()) generalized to
// decode real logs instead of a stub log line, and on
// other_examples/Shubhaankar-Sharma-ethkit/ethmonitor.go's retained
// canonical-chain window for local reorg detection (chain_window.go).
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/fusionswap/relayer/internal/chainclient"
	"github.com/fusionswap/relayer/internal/errs"
	"github.com/fusionswap/relayer/internal/types"
)

// Config configures one Monitor instance.
type Config struct {
	EVMAddresses   []common.Address
	EVMPollInterval time.Duration
	EVMBatchBlocks  uint64

	UTXOPollInterval time.Duration

	MaxReorgDepth  uint64
	RetentionDepth int // local chain-window retention, independent of MaxReorgDepth

	RetryMaxAttempts  int
	RetryBaseDelay    time.Duration
	RetryBackoffMul   float64
}

// Monitor is the Event Monitor component.
type Monitor struct {
	cfg Config
	log *zap.Logger

	evm  chainclient.EVMClient
	utxo chainclient.UTXOClient

	mu          sync.RWMutex
	monitoredTx map[string]*types.MonitoredTx // key: chainID+":"+txHash

	evmCursor  uint64
	utxoCursor uint64
	evmWindow  *chainWindow
	utxoWindow *chainWindow

	events chan types.SwapEvent

	stopCh chan struct{}
	doneWg sync.WaitGroup
}

// New constructs a Monitor. evm/utxo may be nil to run only one chain's loop
// (useful for tests).
func New(cfg Config, evm chainclient.EVMClient, utxo chainclient.UTXOClient, log *zap.Logger) *Monitor {
	if cfg.RetentionDepth == 0 {
		cfg.RetentionDepth = int(cfg.MaxReorgDepth) + 32
	}
	return &Monitor{
		cfg:         cfg,
		log:         log.Named("monitor"),
		evm:         evm,
		utxo:        utxo,
		monitoredTx: make(map[string]*types.MonitoredTx),
		evmWindow:   newChainWindow(cfg.RetentionDepth),
		utxoWindow:  newChainWindow(cfg.RetentionDepth),
		events:      make(chan types.SwapEvent, 256),
		stopCh:      make(chan struct{}),
	}
}

// Subscribe returns the single, serialized output stream of the monitor
// (spec.md §4.2 subscribe() contract).
func (m *Monitor) Subscribe() <-chan types.SwapEvent {
	return m.events
}

// Register begins tracking a broadcast transaction for confirmations
// (spec.md §4.2 register()). Idempotent: re-registering the same txHash is
// a no-op (spec.md §8 round-trip law).
func (m *Monitor) Register(txHash string, chainID types.ChainID, eventType, orderID string, requiredConfs uint64) {
	key := string(chainID) + ":" + txHash
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.monitoredTx[key]; exists {
		return
	}
	m.monitoredTx[key] = &types.MonitoredTx{
		TxHash:        txHash,
		ChainID:       chainID,
		OrderID:       orderID,
		EventType:     eventType,
		RequiredConfs: requiredConfs,
		Status:        types.TxPending,
		RegisteredAt:  time.Now(),
	}
}

// StatusOf is a non-blocking read of a tracked transaction's status
// (spec.md §4.2 statusOf()).
func (m *Monitor) StatusOf(txHash string, chainID types.ChainID) (types.MonitoredTx, bool) {
	key := string(chainID) + ":" + txHash
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.monitoredTx[key]
	if !ok {
		return types.MonitoredTx{}, false
	}
	return *tx, true
}

// Start launches the per-chain poll loops. It returns once both loops have
// been spawned; call Stop (or cancel ctx) to end them.
func (m *Monitor) Start(ctx context.Context) {
	if m.evm != nil {
		m.doneWg.Add(1)
		go m.runEVMLoop(ctx)
	}
	if m.utxo != nil {
		m.doneWg.Add(1)
		go m.runUTXOLoop(ctx)
	}
}

// Stop signals both loops to exit and waits for them, within a bounded
// grace period, matching the teacher's scheduler.go shutdown discipline and
// spec.md §5's "complete in-flight work or abort cleanly within a bounded
// grace period (default 5s)".
func (m *Monitor) Stop(grace time.Duration) {
	close(m.stopCh)
	done := make(chan struct{})
	go func() {
		m.doneWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		m.log.Warn("monitor shutdown grace period elapsed; loops may still be finishing")
	}
	close(m.events)
}

func (m *Monitor) emit(ev types.SwapEvent) {
	select {
	case m.events <- ev:
	default:
		// Backpressure: drop with SubscriberLagged rather than block producers
		// (spec.md §5 Backpressure).
		m.log.Warn("event stream full, dropping event and signalling lag", zap.String("type", string(ev.Type)))
		select {
		case m.events <- types.SwapEvent{Type: types.EventSubscriberLagged, Timestamp: time.Now()}:
		default:
		}
	}
}

func (m *Monitor) runEVMLoop(ctx context.Context) {
	defer m.doneWg.Done()
	ticker := time.NewTicker(m.cfg.EVMPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.pollEVMOnce(ctx)
		}
	}
}

func (m *Monitor) runUTXOLoop(ctx context.Context) {
	defer m.doneWg.Done()
	ticker := time.NewTicker(m.cfg.UTXOPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.pollUTXOOnce(ctx)
		}
	}
}

// withRetry executes op with capped exponential backoff on Transient
// errors (spec.md §4.2 Failure semantics). After exhaustion it emits
// MonitoringError and returns the last error so the loop can continue at
// the next tick; it never abandons the loop.
func (m *Monitor) withRetry(chainID types.ChainID, opName string, op func() error) error {
	delay := m.cfg.RetryBaseDelay
	var lastErr error
	attempts := m.cfg.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	for attempt := 0; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !errs.Is(lastErr, errs.Transient) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		time.Sleep(delay)
		delay = time.Duration(float64(delay) * m.cfg.RetryBackoffMul)
	}
	m.emit(types.SwapEvent{
		Type:      types.EventMonitoringError,
		ChainID:   chainID,
		Data:      lastErr.Error(),
		Timestamp: time.Now(),
	})
	return lastErr
}
