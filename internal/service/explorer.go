// Package service ties the classifier, the chain source and the aggregator
// together behind one explorer facade.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscope/explorer-backend/internal/explorer/aggregate"
	"github.com/chainscope/explorer-backend/internal/explorer/bitcoin"
	"github.com/chainscope/explorer-backend/internal/explorer/identifier"
	"github.com/chainscope/explorer-backend/internal/explorer/unit"
	"github.com/chainscope/explorer-backend/internal/model"
)

// DefaultMinerWindow is the scan window used when a caller does not ask for
// one. 144 blocks is roughly one day of mainnet work.
const DefaultMinerWindow = 144

// MaxMinerWindow bounds a single scan.
const MaxMinerWindow = 10_000

// Explorer answers read queries against a single network. It holds no
// per-call state; aggregators are built fresh for every scan.
type Explorer struct {
	chain   ChainReader
	units   *unit.Registry
	params  *chaincfg.Params
	logger  *zap.Logger
	scans   aggregate.ScanMetrics
	workers int
}

// NewExplorer builds the service for the given network.
func NewExplorer(
	chain ChainReader,
	units *unit.Registry,
	network model.Network,
	workers int,
	logger *zap.Logger,
	scans aggregate.ScanMetrics,
) (*Explorer, error) {
	params, err := bitcoin.ChainParams(network)
	if err != nil {
		return nil, err
	}
	return &Explorer{
		chain:   chain,
		units:   units,
		params:  params,
		logger:  logger,
		scans:   scans,
		workers: workers,
	}, nil
}

// AddressBalance is the resolved view of an address.
type AddressBalance struct {
	Address       string
	TotalReceived decimal.Decimal
	Unit          string
}

// ResolvedIdentifier is the outcome of a search. Exactly one of the payload
// fields is set unless Kind is invalid.
type ResolvedIdentifier struct {
	Kind        identifier.Kind
	Block       *model.BlockSummary
	Transaction *model.TransactionSummary
	Address     *AddressBalance
}

// ResolveIdentifier classifies the token without touching the node, then
// performs the single lookup the classification calls for. A token that
// parses as a padded hex height is tried as a height first and falls back to
// the hash interpretation when no block exists at that height.
func (e *Explorer) ResolveIdentifier(ctx context.Context, token string) (ResolvedIdentifier, error) {
	c := identifier.Classify(token, e.params)

	switch c.Kind {
	case identifier.Height:
		blk, err := e.chain.BlockByHeight(ctx, c.Height)
		if err == nil {
			return ResolvedIdentifier{Kind: identifier.Height, Block: &blk}, nil
		}
		if c.Hex == "" || !isNotFound(err) {
			return ResolvedIdentifier{}, e.mapLookupErr(err, "block height %d", c.Height)
		}
		e.logger.Debug("height interpretation missed, retrying as hash",
			zap.Uint64("height", c.Height),
			zap.String("hex", c.Hex))
		return e.resolveHashOrTxid(ctx, c.Hex)

	case identifier.HashOrTxid:
		return e.resolveHashOrTxid(ctx, c.Hex)

	case identifier.Address:
		received, err := e.chain.AddressReceived(ctx, c.Address)
		if err != nil {
			return ResolvedIdentifier{}, e.mapLookupErr(err, "address %s", c.Address)
		}
		return ResolvedIdentifier{
			Kind: identifier.Address,
			Address: &AddressBalance{
				Address:       c.Address,
				TotalReceived: received,
				Unit:          e.units.Default().Name,
			},
		}, nil

	default:
		return ResolvedIdentifier{}, fmt.Errorf("%w: %s", model.ErrInvalidInput, c.Reason)
	}
}

func (e *Explorer) resolveHashOrTxid(ctx context.Context, hexToken string) (ResolvedIdentifier, error) {
	blk, err := e.chain.BlockByHash(ctx, hexToken)
	if err == nil {
		return ResolvedIdentifier{Kind: identifier.HashOrTxid, Block: &blk}, nil
	}
	if !isNotFound(err) {
		return ResolvedIdentifier{}, e.mapLookupErr(err, "block %s", hexToken)
	}

	tx, err := e.chain.TransactionByID(ctx, hexToken)
	if err != nil {
		return ResolvedIdentifier{}, e.mapLookupErr(err, "transaction %s", hexToken)
	}
	return ResolvedIdentifier{Kind: identifier.HashOrTxid, Transaction: &tx}, nil
}

// Block fetches one block by height or hash.
func (e *Explorer) Block(ctx context.Context, token string) (model.BlockSummary, error) {
	c := identifier.Classify(token, e.params)
	switch c.Kind {
	case identifier.Height:
		blk, err := e.chain.BlockByHeight(ctx, c.Height)
		if err != nil {
			return model.BlockSummary{}, e.mapLookupErr(err, "block height %d", c.Height)
		}
		return blk, nil
	case identifier.HashOrTxid:
		blk, err := e.chain.BlockByHash(ctx, c.Hex)
		if err != nil {
			return model.BlockSummary{}, e.mapLookupErr(err, "block %s", c.Hex)
		}
		return blk, nil
	default:
		return model.BlockSummary{}, fmt.Errorf("%w: %q is not a block height or hash", model.ErrInvalidInput, token)
	}
}

// Transaction fetches one transaction by txid.
func (e *Explorer) Transaction(ctx context.Context, txid string) (model.TransactionSummary, error) {
	tx, err := e.chain.TransactionByID(ctx, txid)
	if err != nil {
		return model.TransactionSummary{}, e.mapLookupErr(err, "transaction %s", txid)
	}
	return tx, nil
}

// Blocks returns a page of recent blocks, newest first.
func (e *Explorer) Blocks(ctx context.Context, offset uint64, limit int) (aggregate.BlocksPage, error) {
	latest, err := e.chain.LatestHeight(ctx)
	if err != nil {
		return aggregate.BlocksPage{}, fmt.Errorf("%w: latest height: %v", model.ErrUpstreamUnavailable, err)
	}
	return e.aggregator().ListBlocksPage(ctx, latest, offset, limit)
}

// MinerStats scans the most recent blocks and ranks miners by blocks found.
// A zero window selects DefaultMinerWindow.
func (e *Explorer) MinerStats(ctx context.Context, window uint64, limit int) (aggregate.MinerStatsResult, error) {
	if window == 0 {
		window = DefaultMinerWindow
	}
	if window > MaxMinerWindow {
		return aggregate.MinerStatsResult{}, fmt.Errorf("%w: window %d exceeds maximum %d", model.ErrInvalidInput, window, MaxMinerWindow)
	}
	latest, err := e.chain.LatestHeight(ctx)
	if err != nil {
		return aggregate.MinerStatsResult{}, fmt.Errorf("%w: latest height: %v", model.ErrUpstreamUnavailable, err)
	}
	return e.aggregator().ScanMinerStats(ctx, latest, window, limit)
}

// Mempool returns pending transactions in deterministic txid order.
func (e *Explorer) Mempool(ctx context.Context, limit int) (aggregate.MempoolPage, error) {
	return e.aggregator().ListLatestTransactions(ctx, limit)
}

// UnitValue is one denomination of a converted amount.
type UnitValue struct {
	Unit   string
	Symbol string
	Value  decimal.Decimal
}

// Conversion is the result of rendering one amount in every known unit.
type Conversion struct {
	Amount    decimal.Decimal
	Unit      string
	BaseUnits int64
	Values    []UnitValue
}

// ConvertAmount parses an amount in the named unit and renders it in every
// unit of the registry. Exchanged units without a usable rate are omitted
// rather than failing the whole conversion.
func (e *Explorer) ConvertAmount(amountToken, unitToken string) (Conversion, error) {
	amount, err := decimal.NewFromString(amountToken)
	if err != nil {
		return Conversion{}, fmt.Errorf("%w: %q is not a decimal amount", model.ErrInvalidAmount, amountToken)
	}
	src, err := e.units.Resolve(unitToken)
	if err != nil {
		return Conversion{}, err
	}
	base, err := e.units.ToBase(amount, src)
	if err != nil {
		return Conversion{}, err
	}

	table := e.units.Units()
	values := make([]UnitValue, 0, len(table))
	for _, u := range table {
		v, err := e.units.FromBase(base, u)
		if err != nil {
			if errors.Is(err, model.ErrRateUnavailable) {
				e.logger.Debug("skipping unit without rate", zap.String("unit", u.Name))
				continue
			}
			return Conversion{}, err
		}
		values = append(values, UnitValue{Unit: u.Name, Symbol: u.Symbol, Value: v})
	}

	return Conversion{
		Amount:    amount,
		Unit:      src.Name,
		BaseUnits: base,
		Values:    values,
	}, nil
}

func (e *Explorer) aggregator() *aggregate.Aggregator {
	return aggregate.New(e.chain, e.logger, e.scans, aggregate.WithWorkers(e.workers))
}

// mapLookupErr folds node "no such object" responses into ErrNotFound and
// leaves taxonomy errors untouched.
func (e *Explorer) mapLookupErr(err error, format string, args ...any) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: "+format, append([]any{model.ErrNotFound}, args...)...)
	}
	if errors.Is(err, model.ErrInvalidInput) || errors.Is(err, model.ErrMalformedUpstreamData) {
		return err
	}
	return fmt.Errorf("%w: "+format+": %v", append(append([]any{model.ErrUpstreamUnavailable}, args...), err)...)
}

func isNotFound(err error) bool {
	if errors.Is(err, model.ErrNotFound) {
		return true
	}
	var rpcErr *btcjson.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	if rpcErr.Code == btcjson.ErrRPCBlockNotFound || rpcErr.Code == btcjson.ErrRPCNoTxInfo ||
		rpcErr.Code == btcjson.ErrRPCInvalidAddressOrKey || rpcErr.Code == btcjson.ErrRPCOutOfRange {
		return true
	}
	return false
}
