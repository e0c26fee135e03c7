package chainclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// rpcEVMClient is the real EVMClient, replacing the teacher's
// internal/adapters/anvil.go stub (which fabricated LockReceipts and never
// decoded a real log). Grounded on the teacher's Connect/Validate/Close
// lifecycle shape, wired to ethclient instead of fabricated data.
type rpcEVMClient struct {
	eth *ethclient.Client
	rpc *rpc.Client
}

// DialEVM connects to an EVM JSON-RPC endpoint.
func DialEVM(ctx context.Context, url string) (EVMClient, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc %s: %w", url, err)
	}
	return &rpcEVMClient{eth: ethclient.NewClient(rc), rpc: rc}, nil
}

func (c *rpcEVMClient) TipHeight(ctx context.Context) (uint64, error) {
	h, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, classifyTransient("eth_blockNumber", err)
	}
	return h, nil
}

// GetLogs batches the range in the caller's request directly; the Event
// Monitor is responsible for splitting a wider range into ≤100-block
// batches per spec.md §4.1 before calling this.
func (c *rpcEVMClient) GetLogs(ctx context.Context, fromHeight, toHeight uint64, addresses []common.Address, topics []common.Hash) ([]Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromHeight),
		ToBlock:   new(big.Int).SetUint64(toHeight),
		Addresses: addresses,
	}
	if len(topics) > 0 {
		query.Topics = [][]common.Hash{topics}
	}
	raw, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, classifyTransient("eth_getLogs", err)
	}
	logs := make([]Log, 0, len(raw))
	for _, l := range raw {
		logs = append(logs, Log{
			Address:     l.Address,
			Topics:      l.Topics,
			Data:        l.Data,
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash,
			LogIndex:    l.Index,
		})
	}
	return logs, nil
}

func (c *rpcEVMClient) GetTxReceipt(ctx context.Context, hash common.Hash) (*TxReceipt, error) {
	r, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, classifyTransient("eth_getTransactionReceipt", err)
	}
	height := r.BlockNumber.Uint64()
	return &TxReceipt{BlockHeight: &height, Success: r.Status == 1}, nil
}

func (c *rpcEVMClient) GetBlockHash(ctx context.Context, height uint64) (common.Hash, error) {
	hdr, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return common.Hash{}, classifyTransient("eth_getBlockByNumber", err)
	}
	return hdr.Hash(), nil
}

// Broadcast is used only by external collaborators (spec.md §4.1); the core
// itself issues no broadcasts. Exposed here so a collaborator can reuse the
// same dialed client rather than opening a second connection.
func (c *rpcEVMClient) Broadcast(ctx context.Context, rawTx []byte) (common.Hash, error) {
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendRawTransaction", "0x"+common.Bytes2Hex(rawTx)); err != nil {
		return common.Hash{}, classifyTransient("eth_sendRawTransaction", err)
	}
	return hash, nil
}

func (c *rpcEVMClient) Close() {
	c.eth.Close()
}
