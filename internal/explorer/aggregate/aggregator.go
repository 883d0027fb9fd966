// Package aggregate scans bounded block ranges and folds them into miner and
// network statistics. Aggregators are cheap, carry no state between calls
// and are meant to be constructed, used and discarded by the caller; there
// is no shared cache to invalidate.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/chainscope/explorer-backend/internal/model"
	"github.com/chainscope/explorer-backend/pkg/workerpool"
)

const (
	// DefaultLimit is used when a caller passes a non-positive limit.
	DefaultLimit = 10
	// MaxLimit is the hard cap on items returned by any aggregation.
	MaxLimit = 100

	defaultWorkerCount = 8
)

// MinerStatsResult is the outcome of one miner scan. Skipped counts heights
// that failed to fetch; Partial is set when the scan was cut short by the
// caller's deadline.
type MinerStatsResult struct {
	Stats   []model.MinerStat
	Window  int
	Skipped int
	Partial bool
}

// BlocksPage is one page of recent blocks, newest first.
type BlocksPage struct {
	Items   []model.BlockSummary
	Total   uint64
	Skipped int
	Partial bool
}

// MempoolPage is a bounded snapshot of pending transactions.
type MempoolPage struct {
	Items   []model.TransactionSummary
	Skipped int
	Partial bool
}

// Aggregator folds per-height fetches into deterministic summaries. All
// fan-out results are explicitly sorted; completion order never leaks into
// the output.
type Aggregator struct {
	source  ChainSource
	logger  *zap.Logger
	metrics ScanMetrics
	workers int
}

// Option adjusts aggregator construction.
type Option func(*Aggregator)

// WithWorkers sets the fan-out width for per-height fetches.
func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

// New constructs an Aggregator.
func New(source ChainSource, logger *zap.Logger, metrics ScanMetrics, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:  source,
		logger:  logger,
		metrics: metrics,
		workers: defaultWorkerCount,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ScanMinerStats scans the windowSize most recent blocks ending at
// latestHeight and ranks miners by blocks found. Heights that fail to fetch
// are logged, skipped and counted; they never abort the scan.
func (a *Aggregator) ScanMinerStats(ctx context.Context, latestHeight, windowSize uint64, limit int) (res MinerStatsResult, err error) {
	started := time.Now()
	defer func() {
		a.metrics.ObserveScan("miner_stats", err, res.Window, started)
	}()

	if windowSize == 0 {
		return MinerStatsResult{}, fmt.Errorf("%w: zero scan window", model.ErrInvalidInput)
	}
	limit = clampLimit(limit)

	heights := heightsDescending(latestHeight, windowSize)
	blocks, skipped, partial := a.fetchBlocks(ctx, heights)

	byAddress := make(map[string]*model.MinerStat)
	for _, blk := range blocks {
		if blk == nil || blk.MinerAddress == "" {
			continue
		}
		stat, ok := byAddress[blk.MinerAddress]
		if !ok {
			stat = &model.MinerStat{
				Address:         blk.MinerAddress,
				FirstSeenHeight: blk.Height,
				LastSeenHeight:  blk.Height,
			}
			byAddress[blk.MinerAddress] = stat
		}
		stat.BlocksFound++
		stat.TotalRewards = stat.TotalRewards.Add(blk.MinerReward)
		if blk.Height < stat.FirstSeenHeight {
			stat.FirstSeenHeight = blk.Height
		}
		if blk.Height > stat.LastSeenHeight {
			stat.LastSeenHeight = blk.Height
		}
	}

	stats := make([]model.MinerStat, 0, len(byAddress))
	for _, stat := range byAddress {
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].BlocksFound != stats[j].BlocksFound {
			return stats[i].BlocksFound > stats[j].BlocksFound
		}
		if cmp := stats[i].TotalRewards.Cmp(stats[j].TotalRewards); cmp != 0 {
			return cmp > 0
		}
		return stats[i].Address < stats[j].Address
	})
	if len(stats) > limit {
		stats = stats[:limit]
	}

	return MinerStatsResult{
		Stats:   stats,
		Window:  len(heights),
		Skipped: skipped,
		Partial: partial,
	}, nil
}

// ListBlocksPage returns up to limit blocks descending from
// latestHeight-offset. Total reports the number of blocks the chain has
// available for paging.
func (a *Aggregator) ListBlocksPage(ctx context.Context, latestHeight, offset uint64, limit int) (page BlocksPage, err error) {
	started := time.Now()
	defer func() {
		a.metrics.ObserveScan("blocks_page", err, len(page.Items), started)
	}()

	limit = clampLimit(limit)
	total := latestHeight + 1
	if offset >= total {
		return BlocksPage{Total: total}, nil
	}

	start := latestHeight - offset
	window := uint64(limit)
	if window > start+1 {
		window = start + 1
	}
	heights := heightsDescending(start, window)
	blocks, skipped, partial := a.fetchBlocks(ctx, heights)

	items := make([]model.BlockSummary, 0, len(blocks))
	for _, blk := range blocks {
		if blk != nil {
			items = append(items, *blk)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Height > items[j].Height
	})

	return BlocksPage{
		Items:   items,
		Total:   total,
		Skipped: skipped,
		Partial: partial,
	}, nil
}

// ListLatestTransactions returns up to limit pending transactions. The
// mempool is unordered at the source, so txids are sorted before and after
// fetching for deterministic pages.
func (a *Aggregator) ListLatestTransactions(ctx context.Context, limit int) (page MempoolPage, err error) {
	started := time.Now()
	defer func() {
		a.metrics.ObserveScan("latest_transactions", err, len(page.Items), started)
	}()

	limit = clampLimit(limit)

	txids, err := a.source.MempoolTxIDs(ctx)
	if err != nil {
		return MempoolPage{}, fmt.Errorf("%w: mempool fetch: %v", model.ErrUpstreamUnavailable, err)
	}
	sort.Strings(txids)
	if len(txids) > limit {
		txids = txids[:limit]
	}

	results := make([]*model.TransactionSummary, len(txids))
	poolErr := workerpool.ForEach(ctx, a.workers, indexed(txids), func(ctx context.Context, item indexedItem[string]) error {
		tx, fetchErr := a.source.TransactionByID(ctx, item.value)
		if fetchErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("skipping pending transaction",
				zap.String("txid", item.value),
				zap.Error(fetchErr),
			)
			return nil
		}
		results[item.index] = &tx
		return nil
	})
	partial := isCancellation(poolErr)

	page = MempoolPage{Partial: partial}
	for _, tx := range results {
		if tx == nil {
			page.Skipped++
			continue
		}
		page.Items = append(page.Items, *tx)
	}
	sort.Slice(page.Items, func(i, j int) bool {
		return page.Items[i].TxID < page.Items[j].TxID
	})
	return page, nil
}

// fetchBlocks fans out per-height fetches and returns results indexed by the
// input order. Item failures are logged and counted; cancellation stops the
// fetch and marks the result partial.
func (a *Aggregator) fetchBlocks(ctx context.Context, heights []uint64) (blocks []*model.BlockSummary, skipped int, partial bool) {
	blocks = make([]*model.BlockSummary, len(heights))
	poolErr := workerpool.ForEach(ctx, a.workers, indexed(heights), func(ctx context.Context, item indexedItem[uint64]) error {
		blk, fetchErr := a.source.BlockByHeight(ctx, item.value)
		if fetchErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("skipping block",
				zap.Uint64("height", item.value),
				zap.Error(fetchErr),
			)
			return nil
		}
		blocks[item.index] = &blk
		return nil
	})
	partial = isCancellation(poolErr)

	// On cancellation this also counts heights that were never attempted;
	// the Partial flag tells the two cases apart for the caller.
	for _, blk := range blocks {
		if blk == nil {
			skipped++
		}
	}
	return blocks, skipped, partial
}

type indexedItem[T any] struct {
	index int
	value T
}

func indexed[T any](values []T) []indexedItem[T] {
	items := make([]indexedItem[T], len(values))
	for i, v := range values {
		items[i] = indexedItem[T]{index: i, value: v}
	}
	return items
}

func heightsDescending(latest, window uint64) []uint64 {
	start := uint64(0)
	if latest+1 > window {
		start = latest - window + 1
	}
	heights := make([]uint64, 0, latest-start+1)
	for h := latest; ; h-- {
		heights = append(heights, h)
		if h == start {
			break
		}
	}
	return heights
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func isCancellation(err error) bool {
	return err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
