package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fusionswap/relayer/internal/chainclient"
	"github.com/fusionswap/relayer/internal/cryptoutil"
	"github.com/fusionswap/relayer/internal/errs"
	"github.com/fusionswap/relayer/internal/types"
)

// fakeEVMClient is a deterministic, in-memory stand-in for
// chainclient.EVMClient, letting poll iterations be driven one tip/log-set
// at a time instead of against a live node.
type fakeEVMClient struct {
	tip        uint64
	logsByCall [][]chainclient.Log
	callIndex  int
	hashes     map[uint64]common.Hash
	receipts   map[common.Hash]*chainclient.TxReceipt
	tipErr     error
}

func newFakeEVMClient() *fakeEVMClient {
	return &fakeEVMClient{
		hashes:   make(map[uint64]common.Hash),
		receipts: make(map[common.Hash]*chainclient.TxReceipt),
	}
}

func (f *fakeEVMClient) TipHeight(ctx context.Context) (uint64, error) {
	if f.tipErr != nil {
		return 0, f.tipErr
	}
	return f.tip, nil
}

func (f *fakeEVMClient) GetLogs(ctx context.Context, from, to uint64, addresses []common.Address, topics []common.Hash) ([]chainclient.Log, error) {
	if f.callIndex >= len(f.logsByCall) {
		return nil, nil
	}
	out := f.logsByCall[f.callIndex]
	f.callIndex++
	return out, nil
}

func (f *fakeEVMClient) GetTxReceipt(ctx context.Context, hash common.Hash) (*chainclient.TxReceipt, error) {
	r, ok := f.receipts[hash]
	if !ok {
		return nil, errs.New(errs.NotFound, "", "no receipt")
	}
	return r, nil
}

func (f *fakeEVMClient) GetBlockHash(ctx context.Context, height uint64) (common.Hash, error) {
	h, ok := f.hashes[height]
	if !ok {
		return common.Hash{}, errs.New(errs.NotFound, "", "no hash")
	}
	return h, nil
}

func (f *fakeEVMClient) Broadcast(ctx context.Context, rawTx []byte) (common.Hash, error) {
	return common.Hash{}, nil
}

func (f *fakeEVMClient) Close() {}

func testConfig() Config {
	return Config{
		EVMPollInterval:  time.Hour,
		EVMBatchBlocks:   100,
		UTXOPollInterval: time.Hour,
		MaxReorgDepth:    5,
		RetryMaxAttempts: 1,
		RetryBaseDelay:   time.Millisecond,
		RetryBackoffMul:  1,
	}
}

func TestPollEVMOnceDecodesEscrowCreated(t *testing.T) {
	orderTopic := common.HexToHash("0xabc")
	fake := newFakeEVMClient()
	fake.tip = 10
	fake.logsByCall = [][]chainclient.Log{
		{{Topics: []common.Hash{cryptoutil.EscrowCreatedTopic, orderTopic}, BlockNumber: 5, LogIndex: 0}},
	}

	m := New(testConfig(), fake, nil, zap.NewNop())
	m.pollEVMOnce(context.Background())

	select {
	case ev := <-m.events:
		require.Equal(t, types.EventEscrowCreated, ev.Type)
		require.Equal(t, orderTopic.Hex(), ev.OrderID)
	default:
		t.Fatal("expected an EscrowCreated event")
	}
	require.Equal(t, uint64(10), m.evmCursor)
}

func TestPollEVMOnceSkipsUnknownTopics(t *testing.T) {
	fake := newFakeEVMClient()
	fake.tip = 3
	fake.logsByCall = [][]chainclient.Log{
		{{Topics: []common.Hash{common.HexToHash("0xdeadbeef")}, BlockNumber: 1}},
	}

	m := New(testConfig(), fake, nil, zap.NewNop())
	m.pollEVMOnce(context.Background())

	select {
	case ev := <-m.events:
		t.Fatalf("expected no event for unknown topic, got %v", ev.Type)
	default:
	}
	require.Equal(t, uint64(3), m.evmCursor, "cursor still advances past unrecognized logs")
}

func TestAdvanceEVMConfirmationsEmitsOnceAtThreshold(t *testing.T) {
	txHash := common.HexToHash("0x1")
	height := uint64(90)
	fake := newFakeEVMClient()
	fake.receipts[txHash] = &chainclient.TxReceipt{BlockHeight: &height}

	m := New(testConfig(), fake, nil, zap.NewNop())
	m.Register(txHash.Hex(), evmChain, "escrow_created", "order-1", 3)

	// tip=91 -> 2 confs, not yet reached
	m.advanceEVMConfirmations(context.Background(), 91)
	select {
	case ev := <-m.events:
		t.Fatalf("should not confirm yet, got %v", ev.Type)
	default:
	}

	// tip=92 -> 3 confs, reached
	m.advanceEVMConfirmations(context.Background(), 92)
	select {
	case ev := <-m.events:
		require.Equal(t, types.EventTxConfirmed, ev.Type)
	default:
		t.Fatal("expected TxConfirmed once threshold reached")
	}

	// A further poll must not re-emit.
	m.advanceEVMConfirmations(context.Background(), 93)
	select {
	case ev := <-m.events:
		t.Fatalf("must emit TxConfirmed only once, got second %v", ev.Type)
	default:
	}
}

func TestDetectEVMReorgRewindsToCommonAncestor(t *testing.T) {
	fake := newFakeEVMClient()
	m := New(testConfig(), fake, nil, zap.NewNop())

	// Seed the window as if blocks 8,9,10 were observed with one hash set.
	m.evmWindow.Append(blockRef{Height: 8, Hash: common.HexToHash("0x08")})
	m.evmWindow.Append(blockRef{Height: 9, Hash: common.HexToHash("0x09")})
	m.evmWindow.Append(blockRef{Height: 10, Hash: common.HexToHash("0x10")})
	m.evmCursor = 10

	// The chain now reports a different hash at 10 (reorg), but still
	// agrees at height 9.
	fake.hashes[10] = common.HexToHash("0x10b")
	fake.hashes[9] = common.HexToHash("0x09")

	reorged := m.detectEVMReorg(context.Background(), 12)
	require.True(t, reorged)
	require.Equal(t, uint64(9), m.evmCursor)

	select {
	case ev := <-m.events:
		require.Equal(t, types.EventReorg, ev.Type)
		data, ok := ev.Data.(types.ReorgData)
		require.True(t, ok)
		require.Equal(t, uint64(10), data.FromHeight)
	default:
		t.Fatal("expected a Reorg event")
	}
}

func TestDetectEVMReorgBeyondMaxDepthHaltsCursor(t *testing.T) {
	fake := newFakeEVMClient()
	cfg := testConfig()
	cfg.MaxReorgDepth = 1
	m := New(cfg, fake, nil, zap.NewNop())

	m.evmWindow.Append(blockRef{Height: 10, Hash: common.HexToHash("0x10")})
	m.evmCursor = 10
	fake.hashes[10] = common.HexToHash("0x10b") // mismatch, no common ancestor within depth 1

	reorged := m.detectEVMReorg(context.Background(), 12)
	require.True(t, reorged)
	require.Equal(t, uint64(10), m.evmCursor, "cursor halts rather than guessing past maxReorgDepth")

	select {
	case ev := <-m.events:
		require.Equal(t, types.EventMonitoringError, ev.Type)
	default:
		t.Fatal("expected a MonitoringError event")
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	fake := newFakeEVMClient()
	m := New(testConfig(), fake, nil, zap.NewNop())
	m.Register("0xabc", evmChain, "escrow_created", "order-1", 3)
	m.Register("0xabc", evmChain, "escrow_created", "order-2", 99)

	tx, ok := m.StatusOf("0xabc", evmChain)
	require.True(t, ok)
	require.Equal(t, "order-1", tx.OrderID, "second Register call must be a no-op")
}

func TestWithRetryRetriesTransientAndGivesUp(t *testing.T) {
	m := New(testConfig(), newFakeEVMClient(), nil, zap.NewNop())
	attempts := 0
	err := m.withRetry(evmChain, "op", func() error {
		attempts++
		return errs.New(errs.Transient, "", "rpc timeout")
	})
	require.Error(t, err)
	require.Equal(t, m.cfg.RetryMaxAttempts+1, attempts)

	select {
	case ev := <-m.events:
		require.Equal(t, types.EventMonitoringError, ev.Type)
	default:
		t.Fatal("expected MonitoringError after retry exhaustion")
	}
}

func TestWithRetryDoesNotRetryInvalid(t *testing.T) {
	m := New(testConfig(), newFakeEVMClient(), nil, zap.NewNop())
	attempts := 0
	err := m.withRetry(evmChain, "op", func() error {
		attempts++
		return errs.New(errs.Invalid, "", "bad request")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts, "non-transient errors must not be retried")
}

func TestSnapshotAndRestoreRoundTrip(t *testing.T) {
	m := New(testConfig(), newFakeEVMClient(), nil, zap.NewNop())
	m.evmCursor = 42
	m.utxoCursor = 7
	m.Register("0xabc", evmChain, "escrow_created", "order-1", 3)

	evmCursor, utxoCursor, txs := m.Snapshot()
	require.Equal(t, uint64(42), evmCursor)
	require.Equal(t, uint64(7), utxoCursor)
	require.Len(t, txs, 1)

	m2 := New(testConfig(), newFakeEVMClient(), nil, zap.NewNop())
	m2.Restore(evmCursor, utxoCursor, txs)
	require.Equal(t, uint64(42), m2.evmCursor)
	require.Equal(t, uint64(7), m2.utxoCursor)
	status, ok := m2.StatusOf("0xabc", evmChain)
	require.True(t, ok)
	require.Equal(t, "order-1", status.OrderID)
}
