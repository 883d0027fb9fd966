package bitcoin

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscope/explorer-backend/internal/clock"
	"github.com/chainscope/explorer-backend/internal/model"
	"github.com/chainscope/explorer-backend/pkg/safe"
)

const retryDelay = 250 * time.Millisecond

type (
	// NodeClient is the node RPC surface the source consumes.
	NodeClient interface {
		GetBlockCount() (int64, error)
		GetBlockHash(blockHeight int64) (*chainhash.Hash, error)
		GetBlockVerboseTx(blockHash *chainhash.Hash) (*btcjson.GetBlockVerboseTxResult, error)
		GetBlockHeaderVerbose(blockHash *chainhash.Hash) (*btcjson.GetBlockHeaderVerboseResult, error)
		GetRawTransactionVerbose(txHash *chainhash.Hash) (*btcjson.TxRawResult, error)
		ValidateAddress(address btcutil.Address) (*btcjson.ValidateAddressWalletResult, error)
		GetReceivedByAddressMinConf(address btcutil.Address, minConfirms int) (btcutil.Amount, error)
		GetRawMempoolVerbose() (map[string]btcjson.GetRawMempoolVerboseResult, error)
	}
)

// Source reads normalized chain data from a Bitcoin node. It holds no state
// beyond its collaborators and is safe for concurrent use.
type Source struct {
	rpc        NodeClient
	normalizer *Normalizer
	logger     *zap.Logger
}

// NewSource constructs a Source.
func NewSource(rpc NodeClient, normalizer *Normalizer, logger *zap.Logger) *Source {
	return &Source{
		rpc:        rpc,
		normalizer: normalizer,
		logger:     logger,
	}
}

// LatestHeight returns the node's current chain height.
func (s *Source) LatestHeight(ctx context.Context) (uint64, error) {
	var count int64
	err := s.withRetry(ctx, "get_block_count", func() error {
		var err error
		count, err = s.rpc.GetBlockCount()
		return err
	})
	if err != nil {
		return 0, err
	}
	height, err := safe.Uint64(count)
	if err != nil {
		return 0, fmt.Errorf("%w: block count %d", model.ErrMalformedUpstreamData, count)
	}
	return height, nil
}

// BlockByHeight fetches and normalizes the block at a height.
func (s *Source) BlockByHeight(ctx context.Context, height uint64) (model.BlockSummary, error) {
	rpcHeight, err := safe.Int64(height)
	if err != nil {
		return model.BlockSummary{}, fmt.Errorf("%w: height %d exceeds rpc limit", model.ErrInvalidInput, height)
	}
	if err := ctx.Err(); err != nil {
		return model.BlockSummary{}, err
	}

	hash, err := s.rpc.GetBlockHash(rpcHeight)
	if err != nil {
		return model.BlockSummary{}, fmt.Errorf("get block hash at height %d: %w", height, err)
	}
	return s.blockByChainHash(ctx, hash)
}

// BlockByHash fetches and normalizes the block with the given hex hash.
func (s *Source) BlockByHash(ctx context.Context, hexHash string) (model.BlockSummary, error) {
	hash, err := chainhash.NewHashFromStr(hexHash)
	if err != nil {
		return model.BlockSummary{}, fmt.Errorf("%w: block hash %q", model.ErrInvalidInput, hexHash)
	}
	if err := ctx.Err(); err != nil {
		return model.BlockSummary{}, err
	}
	return s.blockByChainHash(ctx, hash)
}

func (s *Source) blockByChainHash(_ context.Context, hash *chainhash.Hash) (model.BlockSummary, error) {
	src, err := s.rpc.GetBlockVerboseTx(hash)
	if err != nil {
		return model.BlockSummary{}, fmt.Errorf("get block %s: %w", hash, err)
	}
	return s.normalizer.BlockSummary(src)
}

// TransactionByID fetches and normalizes one transaction. For confirmed
// transactions the containing block header supplies the height. The source
// itself resolves previous outputs, so input values are present when the
// node still has the funding transactions.
func (s *Source) TransactionByID(ctx context.Context, txid string) (model.TransactionSummary, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return model.TransactionSummary{}, fmt.Errorf("%w: txid %q", model.ErrInvalidInput, txid)
	}
	if err := ctx.Err(); err != nil {
		return model.TransactionSummary{}, err
	}

	src, err := s.rpc.GetRawTransactionVerbose(hash)
	if err != nil {
		return model.TransactionSummary{}, fmt.Errorf("get transaction %s: %w", txid, err)
	}

	var blockHeight uint64
	if src.BlockHash != "" && src.Confirmations > 0 {
		blockHeight, err = s.headerHeight(src.BlockHash)
		if err != nil {
			return model.TransactionSummary{}, err
		}
	}

	return s.normalizer.TransactionSummary(ctx, src, blockHeight, s)
}

// PrevOutput implements PrevOutSource by fetching the funding transaction
// and reading the referenced output.
func (s *Source) PrevOutput(ctx context.Context, txid string, vout uint32) (model.OutputSummary, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return model.OutputSummary{}, fmt.Errorf("%w: prev txid %q", model.ErrMalformedUpstreamData, txid)
	}
	if err := ctx.Err(); err != nil {
		return model.OutputSummary{}, err
	}

	prev, err := s.rpc.GetRawTransactionVerbose(hash)
	if err != nil {
		return model.OutputSummary{}, fmt.Errorf("get prev transaction %s: %w", txid, err)
	}
	if int(vout) >= len(prev.Vout) {
		return model.OutputSummary{}, fmt.Errorf("%w: tx %s has no output %d", model.ErrMalformedUpstreamData, txid, vout)
	}

	out := prev.Vout[vout]
	value, err := s.normalizer.amountFromBTC(out.Value)
	if err != nil {
		return model.OutputSummary{}, fmt.Errorf("%w: tx %s output %d value: %v", model.ErrMalformedUpstreamData, txid, vout, err)
	}
	return model.OutputSummary{
		Value:   value,
		Address: s.normalizer.outputAddress(out),
		Type:    out.ScriptPubKey.Type,
	}, nil
}

// MempoolTxIDs returns the identifiers of all pending transactions. The
// node reports them unordered.
func (s *Source) MempoolTxIDs(ctx context.Context) ([]string, error) {
	var pool map[string]btcjson.GetRawMempoolVerboseResult
	err := s.withRetry(ctx, "get_raw_mempool_verbose", func() error {
		var err error
		pool, err = s.rpc.GetRawMempoolVerbose()
		return err
	})
	if err != nil {
		return nil, err
	}
	txids := make([]string, 0, len(pool))
	for txid := range pool {
		txids = append(txids, txid)
	}
	return txids, nil
}

// AddressReceived returns the confirmed total ever received by an address,
// in the display unit.
func (s *Source) AddressReceived(ctx context.Context, address string) (decimal.Decimal, error) {
	decoded, err := btcutil.DecodeAddress(address, s.normalizer.Params())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: address %q", model.ErrInvalidInput, address)
	}
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	validation, err := s.rpc.ValidateAddress(decoded)
	if err != nil {
		return decimal.Zero, fmt.Errorf("validate address %s: %w", address, err)
	}
	if validation == nil || !validation.IsValid {
		return decimal.Zero, fmt.Errorf("%w: address %q rejected by node", model.ErrInvalidInput, address)
	}

	amount, err := s.rpc.GetReceivedByAddressMinConf(decoded, 1)
	if err != nil {
		return decimal.Zero, fmt.Errorf("received by address %s: %w", address, err)
	}
	return s.normalizer.amountFromBTC(amount.ToBTC())
}

func (s *Source) headerHeight(blockHash string) (uint64, error) {
	hash, err := chainhash.NewHashFromStr(blockHash)
	if err != nil {
		return 0, fmt.Errorf("%w: block hash %q", model.ErrMalformedUpstreamData, blockHash)
	}
	header, err := s.rpc.GetBlockHeaderVerbose(hash)
	if err != nil {
		return 0, fmt.Errorf("get block header %s: %w", blockHash, err)
	}
	height, err := safe.Uint64(header.Height)
	if err != nil {
		return 0, fmt.Errorf("%w: header height %d", model.ErrMalformedUpstreamData, header.Height)
	}
	return height, nil
}

// withRetry runs fn and retries once after a short backoff on transient
// failure. Cancellation wins over the retry.
func (s *Source) withRetry(ctx context.Context, operation string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := fn()
	if err == nil {
		return nil
	}
	s.logger.Warn("node call failed, retrying once",
		zap.String("operation", operation),
		zap.Error(err),
	)
	if sleepErr := clock.SleepWithContext(ctx, retryDelay); sleepErr != nil {
		return err
	}
	return fn()
}
