// Package bitcoin implements Bitcoin-specific chain access and normalization.
package bitcoin

import (
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"go.uber.org/ratelimit"
)

type (
	// RPCMetrics records metrics for RPC calls.
	RPCMetrics interface {
		Observe(operation string, err error, started time.Time)
	}
)

// RPCClient wraps btc rpcclient with metrics instrumentation and an outbound
// rate cap so scans cannot overload the node.
type RPCClient struct {
	client     *rpcclient.Client
	rpcMetrics RPCMetrics
	rl         ratelimit.Limiter
}

// NewRPCClient constructs an instrumented, rate-limited RPC client. rps caps
// outbound calls per second.
func NewRPCClient(client *rpcclient.Client, rpcMetrics RPCMetrics, rps int) *RPCClient {
	if rps < 1 {
		rps = 1
	}
	return &RPCClient{
		client:     client,
		rpcMetrics: rpcMetrics,
		rl:         ratelimit.New(rps),
	}
}

// GetBlockCount returns the latest block count.
func (r *RPCClient) GetBlockCount() (count int64, err error) {
	started := r.begin()
	defer func() {
		r.rpcMetrics.Observe("get_block_count", err, started)
	}()
	return r.client.GetBlockCount()
}

// GetBlockHash returns the block hash for a height.
func (r *RPCClient) GetBlockHash(blockHeight int64) (hash *chainhash.Hash, err error) {
	started := r.begin()
	defer func() {
		r.rpcMetrics.Observe("get_block_hash", err, started)
	}()
	return r.client.GetBlockHash(blockHeight)
}

// GetBlockVerboseTx returns a verbose block with transactions.
func (r *RPCClient) GetBlockVerboseTx(blockHash *chainhash.Hash) (res *btcjson.GetBlockVerboseTxResult, err error) {
	started := r.begin()
	defer func() {
		r.rpcMetrics.Observe("get_block_verbose_tx", err, started)
	}()
	return r.client.GetBlockVerboseTx(blockHash)
}

// GetBlockHeaderVerbose returns a decoded block header.
func (r *RPCClient) GetBlockHeaderVerbose(blockHash *chainhash.Hash) (res *btcjson.GetBlockHeaderVerboseResult, err error) {
	started := r.begin()
	defer func() {
		r.rpcMetrics.Observe("get_block_header_verbose", err, started)
	}()
	return r.client.GetBlockHeaderVerbose(blockHash)
}

// GetRawTransactionVerbose returns a decoded transaction.
func (r *RPCClient) GetRawTransactionVerbose(txHash *chainhash.Hash) (res *btcjson.TxRawResult, err error) {
	started := r.begin()
	defer func() {
		r.rpcMetrics.Observe("get_raw_transaction_verbose", err, started)
	}()
	return r.client.GetRawTransactionVerbose(txHash)
}

// ValidateAddress asks the node whether an address is valid for its network.
func (r *RPCClient) ValidateAddress(address btcutil.Address) (res *btcjson.ValidateAddressWalletResult, err error) {
	started := r.begin()
	defer func() {
		r.rpcMetrics.Observe("validate_address", err, started)
	}()
	return r.client.ValidateAddress(address)
}

// GetReceivedByAddressMinConf returns the total received by an address with
// at least minConfirms confirmations, in base units.
func (r *RPCClient) GetReceivedByAddressMinConf(address btcutil.Address, minConfirms int) (amount btcutil.Amount, err error) {
	started := r.begin()
	defer func() {
		r.rpcMetrics.Observe("get_received_by_address", err, started)
	}()
	return r.client.GetReceivedByAddressMinConf(address, minConfirms)
}

// GetRawMempoolVerbose returns the node's pending transaction pool.
func (r *RPCClient) GetRawMempoolVerbose() (res map[string]btcjson.GetRawMempoolVerboseResult, err error) {
	started := r.begin()
	defer func() {
		r.rpcMetrics.Observe("get_raw_mempool_verbose", err, started)
	}()
	return r.client.GetRawMempoolVerbose()
}

func (r *RPCClient) begin() time.Time {
	r.rl.Take()
	return time.Now()
}
