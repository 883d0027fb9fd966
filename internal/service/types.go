package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/chainscope/explorer-backend/internal/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// ChainReader is the node-facing surface the explorer service needs.
	// bitcoin.Source implements it.
	ChainReader interface {
		LatestHeight(ctx context.Context) (uint64, error)
		BlockByHeight(ctx context.Context, height uint64) (model.BlockSummary, error)
		BlockByHash(ctx context.Context, hexHash string) (model.BlockSummary, error)
		TransactionByID(ctx context.Context, txid string) (model.TransactionSummary, error)
		MempoolTxIDs(ctx context.Context) ([]string, error)
		AddressReceived(ctx context.Context, address string) (decimal.Decimal, error)
	}
)
