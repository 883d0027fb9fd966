package aggregate

import (
	"context"
	"time"

	"github.com/chainscope/explorer-backend/internal/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// ChainSource supplies normalized chain data for one scan.
	ChainSource interface {
		BlockByHeight(ctx context.Context, height uint64) (model.BlockSummary, error)
		MempoolTxIDs(ctx context.Context) ([]string, error)
		TransactionByID(ctx context.Context, txid string) (model.TransactionSummary, error)
	}

	// ScanMetrics records metrics for aggregation scans.
	ScanMetrics interface {
		ObserveScan(operation string, err error, items int, started time.Time)
	}
)
