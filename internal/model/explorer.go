// Package model holds the explorer domain types shared across packages.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Network identifies the chain the node is running on.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
	Signet  Network = "signet"
)

// TxStatus reports whether a transaction is included in a block.
type TxStatus string

const (
	TxConfirmed TxStatus = "confirmed"
	TxPending   TxStatus = "pending"
)

// BlockSummary is a normalized block as served to explorer pages. Monetary
// values are expressed in the network's default unit.
type BlockSummary struct {
	Height        uint64
	Hash          string
	PreviousHash  string
	NextHash      string
	Timestamp     time.Time
	Difficulty    float64
	MerkleRoot    string
	Size          int32
	Weight        int32
	Version       int32
	Confirmations int64
	Nonce         uint32
	Bits          string
	// TxIDs preserves the node-reported order; index 0 is the coinbase
	// transaction when transaction detail was available.
	TxIDs []string
	// MinerAddress is empty when the coinbase output carries no decodable
	// address. It is never fabricated.
	MinerAddress string
	// MinerReward is the first coinbase output value when present, else the
	// schedule subsidy for Height.
	MinerReward decimal.Decimal
}

// InputSummary is one normalized transaction input.
type InputSummary struct {
	Value    decimal.Decimal
	Address  string
	Coinbase bool
	// Resolved is false when the previous output backing this input could
	// not be fetched; the value is then zero and excluded from TotalInput.
	Resolved bool
}

// OutputSummary is one normalized transaction output.
type OutputSummary struct {
	Value   decimal.Decimal
	Address string
	Type    string
}

// TransactionSummary is a normalized transaction.
type TransactionSummary struct {
	TxID          string
	Hash          string
	BlockHash     string
	BlockHeight   uint64
	Confirmations uint64
	Version       uint32
	Size          int32
	VSize         int32
	Weight        int32
	LockTime      uint32
	Inputs        []InputSummary
	Outputs       []OutputSummary
	TotalInput    decimal.Decimal
	TotalOutput   decimal.Decimal
	// Fee is TotalInput minus TotalOutput. It is only meaningful when
	// FeeApplicable: a coinbase has no fee by definition, and a transaction
	// with unresolved inputs would report a misleading figure.
	Fee           decimal.Decimal
	FeeApplicable bool
	Coinbase      bool
	// Partial is set when one or more input values could not be resolved.
	Partial bool
	Status  TxStatus
}

// MinerStat accumulates per-miner results over one aggregation window.
// Instances live for a single scan; nothing is cached across calls.
type MinerStat struct {
	Address         string
	BlocksFound     uint64
	TotalRewards    decimal.Decimal
	FirstSeenHeight uint64
	LastSeenHeight  uint64
}
