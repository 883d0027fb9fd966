package bitcoin

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/shopspring/decimal"

	"github.com/chainscope/explorer-backend/internal/explorer/subsidy"
	"github.com/chainscope/explorer-backend/internal/explorer/unit"
	"github.com/chainscope/explorer-backend/internal/model"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(model.Mainnet, unit.Bitcoin(nil), subsidy.Bitcoin(), subsidy.BitcoinHalvingInterval)
	if err != nil {
		t.Fatalf("NewNormalizer() error = %v", err)
	}
	return n
}

func coinbaseTx(txid string, outValue float64, address string) btcjson.TxRawResult {
	return btcjson.TxRawResult{
		Txid: txid,
		Vin:  []btcjson.Vin{{Coinbase: "04ffff001d0104"}},
		Vout: []btcjson.Vout{{
			Value: outValue,
			ScriptPubKey: btcjson.ScriptPubKeyResult{
				Address: address,
				Type:    "pubkeyhash",
			},
		}},
	}
}

func verboseBlock(height int64, txs ...btcjson.TxRawResult) *btcjson.GetBlockVerboseTxResult {
	return &btcjson.GetBlockVerboseTxResult{
		Hash:          "00000000000000000001a7c0aaa2630fbb2c0e476aadc04d57d0d7e600eb1b7e",
		Height:        height,
		MerkleRoot:    "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b",
		Bits:          "1d00ffff",
		Time:          1695000000,
		Confirmations: 12,
		Size:          285,
		Weight:        1140,
		Version:       1,
		Nonce:         2083236893,
		Difficulty:    1.0,
		PreviousHash:  "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f",
		Tx:            txs,
	}
}

func TestNormalizer_BlockSummary(t *testing.T) {
	n := newTestNormalizer(t)

	t.Run("miner attribution from coinbase", func(t *testing.T) {
		cb := coinbaseTx("c0ffee", 25.1, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
		spend := btcjson.TxRawResult{
			Txid: "deadbeef",
			Vin:  []btcjson.Vin{{Txid: "c0ffee", Vout: 0}},
			Vout: []btcjson.Vout{{Value: 1}},
		}
		got, err := n.BlockSummary(verboseBlock(420_000, cb, spend))
		if err != nil {
			t.Fatalf("BlockSummary() error = %v", err)
		}
		if got.Height != 420_000 {
			t.Fatalf("height = %d, want 420000", got.Height)
		}
		if got.MinerAddress != "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa" {
			t.Fatalf("miner address = %q", got.MinerAddress)
		}
		if !got.MinerReward.Equal(decimal.RequireFromString("25.1")) {
			t.Fatalf("miner reward = %s, want 25.1", got.MinerReward)
		}
		if len(got.TxIDs) != 2 || got.TxIDs[0] != "c0ffee" || got.TxIDs[1] != "deadbeef" {
			t.Fatalf("tx order not preserved: %v", got.TxIDs)
		}
	})

	t.Run("schedule fallback without coinbase detail", func(t *testing.T) {
		got, err := n.BlockSummary(verboseBlock(420_000))
		if err != nil {
			t.Fatalf("BlockSummary() error = %v", err)
		}
		if got.MinerAddress != "" {
			t.Fatalf("miner address fabricated: %q", got.MinerAddress)
		}
		if !got.MinerReward.Equal(decimal.RequireFromString("12.5")) {
			t.Fatalf("miner reward = %s, want schedule subsidy 12.5", got.MinerReward)
		}
	})

	t.Run("first tx not coinbase uses fallback", func(t *testing.T) {
		plain := btcjson.TxRawResult{
			Txid: "deadbeef",
			Vin:  []btcjson.Vin{{Txid: "c0ffee", Vout: 0}},
			Vout: []btcjson.Vout{{Value: 3}},
		}
		got, err := n.BlockSummary(verboseBlock(100, plain))
		if err != nil {
			t.Fatalf("BlockSummary() error = %v", err)
		}
		if !got.MinerReward.Equal(decimal.NewFromInt(50)) {
			t.Fatalf("miner reward = %s, want 50", got.MinerReward)
		}
	})

	t.Run("malformed blocks rejected", func(t *testing.T) {
		noHash := verboseBlock(1)
		noHash.Hash = ""
		negHeight := verboseBlock(-1)
		noBits := verboseBlock(1)
		noBits.Bits = ""
		coinbaseNegative := verboseBlock(1, coinbaseTx("c0ffee", -5, ""))

		for name, src := range map[string]*btcjson.GetBlockVerboseTxResult{
			"nil block":         nil,
			"missing hash":      noHash,
			"negative height":   negHeight,
			"missing bits":      noBits,
			"negative coinbase": coinbaseNegative,
		} {
			if _, err := n.BlockSummary(src); !errors.Is(err, model.ErrMalformedUpstreamData) {
				t.Fatalf("%s: error = %v, want ErrMalformedUpstreamData", name, err)
			}
		}
	})
}

type stubPrevOuts struct {
	outputs map[string]map[uint32]model.OutputSummary
	err     error
}

func (s *stubPrevOuts) PrevOutput(_ context.Context, txid string, vout uint32) (model.OutputSummary, error) {
	if s.err != nil {
		return model.OutputSummary{}, s.err
	}
	out, ok := s.outputs[txid][vout]
	if !ok {
		return model.OutputSummary{}, errors.New("unknown prevout")
	}
	return out, nil
}

func TestNormalizer_TransactionSummary(t *testing.T) {
	n := newTestNormalizer(t)
	ctx := context.Background()

	prevOuts := &stubPrevOuts{outputs: map[string]map[uint32]model.OutputSummary{
		"aa11": {0: {Value: decimal.NewFromInt(60), Address: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"}},
		"bb22": {1: {Value: decimal.NewFromInt(40)}},
	}}

	spend := &btcjson.TxRawResult{
		Txid:          "cc33",
		Hash:          "cc33",
		BlockHash:     "00000000000000000001a7c0aaa2630fbb2c0e476aadc04d57d0d7e600eb1b7e",
		Confirmations: 3,
		Version:       2,
		Size:          225,
		Vsize:         144,
		Weight:        573,
		Vin: []btcjson.Vin{
			{Txid: "aa11", Vout: 0},
			{Txid: "bb22", Vout: 1},
		},
		Vout: []btcjson.Vout{
			{Value: 99.49, ScriptPubKey: btcjson.ScriptPubKeyResult{Address: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", Type: "witness_v0_keyhash"}},
			{Value: 0.5, ScriptPubKey: btcjson.ScriptPubKeyResult{Type: "witness_v0_keyhash"}},
		},
	}

	t.Run("fee from resolved inputs", func(t *testing.T) {
		got, err := n.TransactionSummary(ctx, spend, 810_000, prevOuts)
		if err != nil {
			t.Fatalf("TransactionSummary() error = %v", err)
		}
		if got.Status != model.TxConfirmed || got.BlockHeight != 810_000 {
			t.Fatalf("status = %s height = %d, want confirmed at 810000", got.Status, got.BlockHeight)
		}
		if !got.TotalInput.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("total input = %s, want 100", got.TotalInput)
		}
		if !got.TotalOutput.Equal(decimal.RequireFromString("99.99")) {
			t.Fatalf("total output = %s, want 99.99", got.TotalOutput)
		}
		if !got.FeeApplicable || !got.Fee.Equal(decimal.RequireFromString("0.01")) {
			t.Fatalf("fee = %s (applicable %t), want 0.01", got.Fee, got.FeeApplicable)
		}
		if got.Partial {
			t.Fatal("summary marked partial with all inputs resolved")
		}
	})

	t.Run("unresolvable input marks partial, fee withheld", func(t *testing.T) {
		got, err := n.TransactionSummary(ctx, spend, 810_000, &stubPrevOuts{
			outputs: map[string]map[uint32]model.OutputSummary{
				"aa11": {0: {Value: decimal.NewFromInt(60)}},
			},
		})
		if err != nil {
			t.Fatalf("TransactionSummary() error = %v", err)
		}
		if !got.Partial {
			t.Fatal("expected partial summary")
		}
		if !got.TotalInput.Equal(decimal.NewFromInt(60)) {
			t.Fatalf("total input = %s, want 60 (unresolved input excluded)", got.TotalInput)
		}
		if got.FeeApplicable {
			t.Fatal("fee must not be reported from partial inputs")
		}
	})

	t.Run("no prevout source marks partial", func(t *testing.T) {
		got, err := n.TransactionSummary(ctx, spend, 810_000, nil)
		if err != nil {
			t.Fatalf("TransactionSummary() error = %v", err)
		}
		if !got.Partial || got.FeeApplicable {
			t.Fatalf("partial = %t feeApplicable = %t, want partial without fee", got.Partial, got.FeeApplicable)
		}
	})

	t.Run("coinbase fee is not applicable", func(t *testing.T) {
		cb := coinbaseTx("c0ffee", 6.25, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
		cb.Confirmations = 1
		got, err := n.TransactionSummary(ctx, &cb, 700_000, prevOuts)
		if err != nil {
			t.Fatalf("TransactionSummary() error = %v", err)
		}
		if !got.Coinbase {
			t.Fatal("coinbase not detected")
		}
		if got.FeeApplicable {
			t.Fatal("coinbase fee must be not applicable")
		}
		if !got.Fee.IsZero() {
			t.Fatalf("coinbase fee = %s, want zero (never a large negative)", got.Fee)
		}
		if got.Partial {
			t.Fatal("coinbase must not be marked partial")
		}
	})

	t.Run("pending transaction", func(t *testing.T) {
		pending := *spend
		pending.Confirmations = 0
		pending.BlockHash = ""
		got, err := n.TransactionSummary(ctx, &pending, 0, prevOuts)
		if err != nil {
			t.Fatalf("TransactionSummary() error = %v", err)
		}
		if got.Status != model.TxPending {
			t.Fatalf("status = %s, want pending", got.Status)
		}
		if got.BlockHeight != 0 || got.Confirmations != 0 {
			t.Fatalf("pending tx carries block metadata: height %d conf %d", got.BlockHeight, got.Confirmations)
		}
	})

	t.Run("malformed transactions rejected", func(t *testing.T) {
		noTxid := *spend
		noTxid.Txid = ""
		noPrevTxid := *spend
		noPrevTxid.Vin = []btcjson.Vin{{}}

		for name, src := range map[string]*btcjson.TxRawResult{
			"nil tx":             nil,
			"missing txid":       &noTxid,
			"input without txid": &noPrevTxid,
		} {
			if _, err := n.TransactionSummary(ctx, src, 0, prevOuts); !errors.Is(err, model.ErrMalformedUpstreamData) {
				t.Fatalf("%s: error = %v, want ErrMalformedUpstreamData", name, err)
			}
		}
	})
}
