// Package subsidy provides the deterministic block-reward schedule: a
// precomputed halving-era table with a fixed terminal length.
package subsidy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chainscope/explorer-backend/internal/model"
)

// fractionalDigits is the precision each halving step is rounded to. Rounding
// happens at every step, not only at the end, so the error never exceeds the
// half-up guarantee of a single division.
const fractionalDigits = 8

// BitcoinHalvingInterval is the number of blocks per era on Bitcoin networks.
const BitcoinHalvingInterval uint64 = 210_000

const bitcoinEraCount = 33

var two = decimal.NewFromInt(2)

// Schedule is an immutable per-era reward table. Safe for concurrent use.
type Schedule struct {
	eras []decimal.Decimal
}

// New precomputes the era table from the initial subsidy. Era i is era i-1
// halved, rounded half-up to 8 fractional digits; beyond eraCount the reward
// is zero. Construction is a pure function of its arguments: rebuilding
// yields bit-identical eras.
func New(initial decimal.Decimal, eraCount int) (*Schedule, error) {
	if eraCount <= 0 {
		return nil, fmt.Errorf("%w: era count %d", model.ErrInvalidSchedule, eraCount)
	}
	if initial.IsNegative() || initial.IsZero() {
		return nil, fmt.Errorf("%w: initial subsidy %s", model.ErrInvalidSchedule, initial)
	}
	eras := make([]decimal.Decimal, eraCount)
	current := initial
	for i := range eras {
		eras[i] = current
		current = current.DivRound(two, fractionalDigits)
	}
	return &Schedule{eras: eras}, nil
}

// Bitcoin returns the canonical Bitcoin schedule: 50 BTC initial reward over
// 33 eras. The arguments are constants, so failure is a programming error.
func Bitcoin() *Schedule {
	s, err := New(decimal.NewFromInt(50), bitcoinEraCount)
	if err != nil {
		panic("subsidy: bitcoin schedule invalid: " + err.Error())
	}
	return s
}

// RewardAtHeight returns the subsidy for a block at the given height. Heights
// past the terminal era earn zero. A zero halving interval is rejected rather
// than dividing by it.
func (s *Schedule) RewardAtHeight(height, halvingInterval uint64) (decimal.Decimal, error) {
	if halvingInterval == 0 {
		return decimal.Zero, fmt.Errorf("%w: halving interval is zero", model.ErrInvalidSchedule)
	}
	era := height / halvingInterval
	if era >= uint64(len(s.eras)) {
		return decimal.Zero, nil
	}
	return s.eras[era], nil
}

// EraCount reports the terminal length of the table.
func (s *Schedule) EraCount() int { return len(s.eras) }
