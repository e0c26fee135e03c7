package chainclient

import (
	"fmt"

	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
)

// rpcUTXOClient is the UTXO-chain counterpart to rpcEVMClient, new relative
// to the teacher (which paired Ethereum with Sui, a non-UTXO chain).
// Grounded on Klingon-tech-klingdex/coordinator_types.go's
// backend.Backend/chain.Network abstraction for a chain-symbol-scoped
// client, wired here to github.com/btcsuite/btcd/rpcclient's
// getblockcount/getblockhash/gettransaction calls (spec.md §6).
type rpcUTXOClient struct {
	client *rpcclient.Client
}

// DialUTXO connects to a UTXO chain's JSON-RPC endpoint (bitcoind-compatible).
func DialUTXO(host, user, pass string) (UTXOClient, error) {
	cfg := &rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	c, err := rpcclient.New(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("dial utxo rpc %s: %w", host, err)
	}
	return &rpcUTXOClient{client: c}, nil
}

func (c *rpcUTXOClient) TipHeight(ctx context.Context) (uint64, error) {
	h, err := c.client.GetBlockCount()
	if err != nil {
		return 0, classifyTransient("getblockcount", err)
	}
	return uint64(h), nil
}

func (c *rpcUTXOClient) GetTx(ctx context.Context, txid string) (*TxInfo, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("parse txid %s: %w", txid, err)
	}
	tx, err := c.client.GetTransaction(hash)
	if err != nil {
		return nil, classifyTransient("gettransaction", err)
	}
	info := &TxInfo{Confirmations: uint64(tx.Confirmations)}
	if tx.BlockHeight > 0 {
		h := uint64(tx.BlockHeight)
		info.BlockHeight = &h
	}
	return info, nil
}

func (c *rpcUTXOClient) GetBlockHash(ctx context.Context, height uint64) (string, error) {
	hash, err := c.client.GetBlockHash(int64(height))
	if err != nil {
		return "", classifyTransient("getblockhash", err)
	}
	return hash.String(), nil
}

func (c *rpcUTXOClient) Broadcast(ctx context.Context, rawTx []byte) (string, error) {
	return "", fmt.Errorf("utxo broadcast: not implemented by the core; raw tx construction and signing is an external collaborator")
}

func (c *rpcUTXOClient) Close() {
	c.client.Shutdown()
}
