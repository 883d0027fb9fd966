package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscope/explorer-backend/internal/explorer/aggregate"
	"github.com/chainscope/explorer-backend/internal/model"
	"github.com/chainscope/explorer-backend/internal/service"
)

type errorBody struct {
	Error string `json:"error"`
}

type blockBody struct {
	Height        uint64          `json:"height"`
	Hash          string          `json:"hash"`
	PreviousHash  string          `json:"previous_hash,omitempty"`
	NextHash      string          `json:"next_hash,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Difficulty    float64         `json:"difficulty"`
	MerkleRoot    string          `json:"merkle_root"`
	Size          int32           `json:"size"`
	Weight        int32           `json:"weight"`
	Version       int32           `json:"version"`
	Confirmations int64           `json:"confirmations"`
	Nonce         uint32          `json:"nonce"`
	Bits          string          `json:"bits"`
	TxCount       int             `json:"tx_count"`
	TxIDs         []string        `json:"txids,omitempty"`
	MinerAddress  string          `json:"miner_address,omitempty"`
	MinerReward   decimal.Decimal `json:"miner_reward"`
}

type inputBody struct {
	Value    decimal.Decimal `json:"value"`
	Address  string          `json:"address,omitempty"`
	Coinbase bool            `json:"coinbase,omitempty"`
	Resolved bool            `json:"resolved"`
}

type outputBody struct {
	Value   decimal.Decimal `json:"value"`
	Address string          `json:"address,omitempty"`
	Type    string          `json:"type,omitempty"`
}

type transactionBody struct {
	TxID          string           `json:"txid"`
	Hash          string           `json:"hash,omitempty"`
	BlockHash     string           `json:"block_hash,omitempty"`
	BlockHeight   *uint64          `json:"block_height,omitempty"`
	Confirmations uint64           `json:"confirmations"`
	Version       uint32           `json:"version"`
	Size          int32            `json:"size"`
	VSize         int32            `json:"vsize"`
	Weight        int32            `json:"weight"`
	LockTime      uint32           `json:"lock_time"`
	Inputs        []inputBody      `json:"inputs"`
	Outputs       []outputBody     `json:"outputs"`
	TotalInput    decimal.Decimal  `json:"total_input"`
	TotalOutput   decimal.Decimal  `json:"total_output"`
	Fee           *decimal.Decimal `json:"fee,omitempty"`
	Coinbase      bool             `json:"coinbase"`
	Partial       bool             `json:"partial,omitempty"`
	Status        model.TxStatus   `json:"status"`
}

type blocksPageBody struct {
	Items   []blockBody `json:"items"`
	Total   uint64      `json:"total"`
	Skipped int         `json:"skipped"`
	Partial bool        `json:"partial,omitempty"`
}

type mempoolPageBody struct {
	Items   []transactionBody `json:"items"`
	Skipped int               `json:"skipped"`
	Partial bool              `json:"partial,omitempty"`
}

type minerStatBody struct {
	Address         string          `json:"address"`
	BlocksFound     uint64          `json:"blocks_found"`
	TotalRewards    decimal.Decimal `json:"total_rewards"`
	FirstSeenHeight uint64          `json:"first_seen_height"`
	LastSeenHeight  uint64          `json:"last_seen_height"`
}

type minerStatsBody struct {
	Miners  []minerStatBody `json:"miners"`
	Window  int             `json:"window"`
	Skipped int             `json:"skipped"`
	Partial bool            `json:"partial,omitempty"`
}

type addressBody struct {
	Address       string          `json:"address"`
	TotalReceived decimal.Decimal `json:"total_received"`
	Unit          string          `json:"unit"`
}

type searchBody struct {
	Type        string           `json:"type"`
	Block       *blockBody       `json:"block,omitempty"`
	Transaction *transactionBody `json:"transaction,omitempty"`
	Address     *addressBody     `json:"address,omitempty"`
}

type unitValueBody struct {
	Unit   string          `json:"unit"`
	Symbol string          `json:"symbol,omitempty"`
	Value  decimal.Decimal `json:"value"`
}

type conversionBody struct {
	Amount    decimal.Decimal `json:"amount"`
	Unit      string          `json:"unit"`
	BaseUnits int64           `json:"base_units"`
	Values    []unitValueBody `json:"values"`
}

func blockResponse(b model.BlockSummary) blockBody {
	return blockBody{
		Height:        b.Height,
		Hash:          b.Hash,
		PreviousHash:  b.PreviousHash,
		NextHash:      b.NextHash,
		Timestamp:     b.Timestamp,
		Difficulty:    b.Difficulty,
		MerkleRoot:    b.MerkleRoot,
		Size:          b.Size,
		Weight:        b.Weight,
		Version:       b.Version,
		Confirmations: b.Confirmations,
		Nonce:         b.Nonce,
		Bits:          b.Bits,
		TxCount:       len(b.TxIDs),
		TxIDs:         b.TxIDs,
		MinerAddress:  b.MinerAddress,
		MinerReward:   b.MinerReward,
	}
}

func transactionResponse(tx model.TransactionSummary) transactionBody {
	inputs := make([]inputBody, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		inputs = append(inputs, inputBody(in))
	}
	outputs := make([]outputBody, 0, len(tx.Outputs))
	for _, out := range tx.Outputs {
		outputs = append(outputs, outputBody(out))
	}

	body := transactionBody{
		TxID:          tx.TxID,
		Hash:          tx.Hash,
		BlockHash:     tx.BlockHash,
		Confirmations: tx.Confirmations,
		Version:       tx.Version,
		Size:          tx.Size,
		VSize:         tx.VSize,
		Weight:        tx.Weight,
		LockTime:      tx.LockTime,
		Inputs:        inputs,
		Outputs:       outputs,
		TotalInput:    tx.TotalInput,
		TotalOutput:   tx.TotalOutput,
		Coinbase:      tx.Coinbase,
		Partial:       tx.Partial,
		Status:        tx.Status,
	}
	if tx.Status == model.TxConfirmed {
		height := tx.BlockHeight
		body.BlockHeight = &height
	}
	if tx.FeeApplicable {
		fee := tx.Fee
		body.Fee = &fee
	}
	return body
}

func blocksPageResponse(page aggregate.BlocksPage) blocksPageBody {
	items := make([]blockBody, 0, len(page.Items))
	for _, blk := range page.Items {
		items = append(items, blockResponse(blk))
	}
	return blocksPageBody{
		Items:   items,
		Total:   page.Total,
		Skipped: page.Skipped,
		Partial: page.Partial,
	}
}

func mempoolPageResponse(page aggregate.MempoolPage) mempoolPageBody {
	items := make([]transactionBody, 0, len(page.Items))
	for _, tx := range page.Items {
		items = append(items, transactionResponse(tx))
	}
	return mempoolPageBody{
		Items:   items,
		Skipped: page.Skipped,
		Partial: page.Partial,
	}
}

func minerStatsResponse(res aggregate.MinerStatsResult) minerStatsBody {
	miners := make([]minerStatBody, 0, len(res.Stats))
	for _, stat := range res.Stats {
		miners = append(miners, minerStatBody(stat))
	}
	return minerStatsBody{
		Miners:  miners,
		Window:  res.Window,
		Skipped: res.Skipped,
		Partial: res.Partial,
	}
}

func searchResponse(res service.ResolvedIdentifier) searchBody {
	body := searchBody{Type: string(res.Kind)}
	if res.Block != nil {
		blk := blockResponse(*res.Block)
		body.Block = &blk
	}
	if res.Transaction != nil {
		tx := transactionResponse(*res.Transaction)
		body.Transaction = &tx
	}
	if res.Address != nil {
		body.Address = &addressBody{
			Address:       res.Address.Address,
			TotalReceived: res.Address.TotalReceived,
			Unit:          res.Address.Unit,
		}
	}
	return body
}

func conversionResponse(conv service.Conversion) conversionBody {
	values := make([]unitValueBody, 0, len(conv.Values))
	for _, v := range conv.Values {
		values = append(values, unitValueBody(v))
	}
	return conversionBody{
		Amount:    conv.Amount,
		Unit:      conv.Unit,
		BaseUnits: conv.BaseUnits,
		Values:    values,
	}
}

func (h *ExplorerHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *ExplorerHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidInput),
		errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrUnitNotFound):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrUpstreamUnavailable),
		errors.Is(err, model.ErrMalformedUpstreamData):
		status = http.StatusBadGateway
	case errors.Is(err, model.ErrRateUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, errorBody{Error: err.Error()})
}
