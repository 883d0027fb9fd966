package bitcoin

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/shopspring/decimal"

	"github.com/chainscope/explorer-backend/internal/explorer/subsidy"
	"github.com/chainscope/explorer-backend/internal/explorer/unit"
	"github.com/chainscope/explorer-backend/internal/model"
	"github.com/chainscope/explorer-backend/pkg/safe"
)

type (
	// PrevOutSource resolves the output spent by a transaction input. A nil
	// source means input values are unavailable; summaries are then marked
	// partial instead of failing.
	PrevOutSource interface {
		PrevOutput(ctx context.Context, txid string, vout uint32) (model.OutputSummary, error)
	}
)

// Normalizer turns raw verbose node objects into domain summaries. Amounts
// are expressed in the registry's default unit.
type Normalizer struct {
	params          *chaincfg.Params
	units           *unit.Registry
	display         unit.Unit
	schedule        *subsidy.Schedule
	halvingInterval uint64
}

// NewNormalizer builds a normalizer for one network.
func NewNormalizer(network model.Network, units *unit.Registry, schedule *subsidy.Schedule, halvingInterval uint64) (*Normalizer, error) {
	params, err := ChainParams(network)
	if err != nil {
		return nil, err
	}
	return &Normalizer{
		params:          params,
		units:           units,
		display:         units.Default(),
		schedule:        schedule,
		halvingInterval: halvingInterval,
	}, nil
}

// Params exposes the chain parameters the normalizer was built for.
func (n *Normalizer) Params() *chaincfg.Params { return n.params }

// BlockSummary normalizes a verbose block. The miner address comes from the
// coinbase's first output when transaction detail is present; it is left
// empty otherwise. The miner reward falls back to the schedule subsidy when
// coinbase detail is unavailable, which ignores collected fees but always
// yields a figure.
func (n *Normalizer) BlockSummary(src *btcjson.GetBlockVerboseTxResult) (model.BlockSummary, error) {
	if src == nil || src.Hash == "" {
		return model.BlockSummary{}, fmt.Errorf("%w: block without hash", model.ErrMalformedUpstreamData)
	}
	height, err := safe.Uint64(src.Height)
	if err != nil {
		return model.BlockSummary{}, fmt.Errorf("%w: block %s height %d", model.ErrMalformedUpstreamData, src.Hash, src.Height)
	}
	if src.Bits == "" || src.MerkleRoot == "" {
		return model.BlockSummary{}, fmt.Errorf("%w: block %s missing header fields", model.ErrMalformedUpstreamData, src.Hash)
	}

	summary := model.BlockSummary{
		Height:        height,
		Hash:          src.Hash,
		PreviousHash:  src.PreviousHash,
		NextHash:      src.NextHash,
		Timestamp:     time.Unix(src.Time, 0).UTC(),
		Difficulty:    src.Difficulty,
		MerkleRoot:    src.MerkleRoot,
		Size:          src.Size,
		Weight:        src.Weight,
		Version:       src.Version,
		Confirmations: src.Confirmations,
		Nonce:         src.Nonce,
		Bits:          src.Bits,
	}

	for _, tx := range src.Tx {
		if tx.Txid == "" {
			return model.BlockSummary{}, fmt.Errorf("%w: block %s contains tx without txid", model.ErrMalformedUpstreamData, src.Hash)
		}
		summary.TxIDs = append(summary.TxIDs, tx.Txid)
	}

	coinbase := coinbaseOf(src.Tx)
	if coinbase != nil && len(coinbase.Vout) > 0 {
		first := coinbase.Vout[0]
		reward, err := n.amountFromBTC(first.Value)
		if err != nil {
			return model.BlockSummary{}, fmt.Errorf("%w: block %s coinbase value: %v", model.ErrMalformedUpstreamData, src.Hash, err)
		}
		summary.MinerReward = reward
		summary.MinerAddress = n.outputAddress(first)
		return summary, nil
	}

	fallback, err := n.schedule.RewardAtHeight(height, n.halvingInterval)
	if err != nil {
		return model.BlockSummary{}, err
	}
	summary.MinerReward = fallback
	return summary, nil
}

// TransactionSummary normalizes a verbose transaction. blockHeight is the
// height of the containing block, zero for pending transactions. Inputs whose
// previous output cannot be resolved are excluded from TotalInput and mark
// the summary partial; the fee is then reported as not applicable rather
// than a misleading figure. A coinbase never has a fee.
func (n *Normalizer) TransactionSummary(ctx context.Context, src *btcjson.TxRawResult, blockHeight uint64, prevOuts PrevOutSource) (model.TransactionSummary, error) {
	if src == nil || src.Txid == "" {
		return model.TransactionSummary{}, fmt.Errorf("%w: transaction without txid", model.ErrMalformedUpstreamData)
	}

	summary := model.TransactionSummary{
		TxID:          src.Txid,
		Hash:          src.Hash,
		BlockHash:     src.BlockHash,
		Confirmations: src.Confirmations,
		Version:       src.Version,
		Size:          src.Size,
		VSize:         src.Vsize,
		Weight:        src.Weight,
		LockTime:      src.LockTime,
		TotalInput:    decimal.Zero,
		TotalOutput:   decimal.Zero,
		Fee:           decimal.Zero,
		Status:        model.TxPending,
	}
	if src.Confirmations > 0 {
		summary.Status = model.TxConfirmed
		summary.BlockHeight = blockHeight
	}

	for idx, vout := range src.Vout {
		value, err := n.amountFromBTC(vout.Value)
		if err != nil {
			return model.TransactionSummary{}, fmt.Errorf("%w: tx %s output %d value: %v", model.ErrMalformedUpstreamData, src.Txid, idx, err)
		}
		out := model.OutputSummary{
			Value:   value,
			Address: n.outputAddress(vout),
			Type:    vout.ScriptPubKey.Type,
		}
		summary.Outputs = append(summary.Outputs, out)
		summary.TotalOutput = summary.TotalOutput.Add(value)
	}

	for idx, vin := range src.Vin {
		if vin.IsCoinBase() {
			summary.Coinbase = true
			summary.Inputs = append(summary.Inputs, model.InputSummary{Coinbase: true})
			continue
		}
		if vin.Txid == "" {
			return model.TransactionSummary{}, fmt.Errorf("%w: tx %s input %d without prev txid", model.ErrMalformedUpstreamData, src.Txid, idx)
		}

		input := model.InputSummary{}
		if prevOuts != nil {
			prev, err := prevOuts.PrevOutput(ctx, vin.Txid, vin.Vout)
			if err == nil {
				input.Value = prev.Value
				input.Address = prev.Address
				input.Resolved = true
				summary.TotalInput = summary.TotalInput.Add(prev.Value)
			}
		}
		if !input.Resolved {
			summary.Partial = true
		}
		summary.Inputs = append(summary.Inputs, input)
	}

	if !summary.Coinbase && !summary.Partial {
		summary.Fee = summary.TotalInput.Sub(summary.TotalOutput)
		summary.FeeApplicable = true
	}

	return summary, nil
}

// amountFromBTC converts a node-reported BTC float into an exact display
// amount, passing through integral base units so no float arithmetic leaks
// into the result.
func (n *Normalizer) amountFromBTC(value float64) (decimal.Decimal, error) {
	amt, err := btcutil.NewAmount(value)
	if err != nil {
		return decimal.Zero, err
	}
	if amt < 0 {
		return decimal.Zero, fmt.Errorf("negative amount: %d", amt)
	}
	return n.units.FromBase(int64(amt), n.display)
}

// outputAddress extracts the first decodable address of an output, or empty
// when the script pays to no standard address.
func (n *Normalizer) outputAddress(vout btcjson.Vout) string {
	if len(vout.ScriptPubKey.Addresses) > 0 {
		return vout.ScriptPubKey.Addresses[0]
	}
	if vout.ScriptPubKey.Address != "" {
		return vout.ScriptPubKey.Address
	}
	if vout.ScriptPubKey.Hex == "" {
		return ""
	}

	scriptBytes, err := hex.DecodeString(vout.ScriptPubKey.Hex)
	if err != nil {
		return ""
	}
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(scriptBytes, n.params)
	if err != nil || len(addrs) == 0 {
		return ""
	}
	return addrs[0].EncodeAddress()
}

func coinbaseOf(txs []btcjson.TxRawResult) *btcjson.TxRawResult {
	if len(txs) == 0 {
		return nil
	}
	first := &txs[0]
	if len(first.Vin) == 0 || !first.Vin[0].IsCoinBase() {
		return nil
	}
	return first
}
