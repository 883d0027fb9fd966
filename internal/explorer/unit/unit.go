// Package unit defines the denominations of the native currency and converts
// raw base-unit amounts between them with exact decimal arithmetic.
package unit

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chainscope/explorer-backend/internal/model"
)

// Kind distinguishes on-chain denominations from fiat-style quote units.
type Kind string

const (
	Native    Kind = "native"
	Exchanged Kind = "exchanged"
)

// Unit is a single denomination. MultiplierFromBase is the number of base
// units per 1 of this unit; for exchanged units the multiplier is resolved at
// call time through a RateSource keyed by ExchangeKey.
type Unit struct {
	Kind               Kind
	Name               string
	MultiplierFromBase decimal.Decimal
	ExchangeKey        string
	DecimalPlaces      int32
	Aliases            []string
	IsDefault          bool
	Symbol             string
}

// RateSource resolves the base-units-per-unit multiplier for exchanged units.
// Implementations live at the edge of the system; a nil source means rates
// are unavailable.
type RateSource interface {
	Rate(key string) (decimal.Decimal, error)
}

// Registry is the immutable unit table for one network. Built once at
// startup; safe for concurrent use.
type Registry struct {
	units   []Unit
	byAlias map[string]int
	base    int
	def     int
	rates   RateSource
}

// NewRegistry validates and indexes the unit table. Exactly one native unit
// must have multiplier 1 (the base unit) and aliases must be unique
// case-insensitively across the whole table.
func NewRegistry(units []Unit, rates RateSource) (*Registry, error) {
	r := &Registry{
		units:   append([]Unit(nil), units...),
		byAlias: make(map[string]int),
		base:    -1,
		def:     -1,
		rates:   rates,
	}
	one := decimal.NewFromInt(1)
	for i, u := range r.units {
		if u.Name == "" {
			return nil, fmt.Errorf("unit %d has no name", i)
		}
		if u.DecimalPlaces < 0 {
			return nil, fmt.Errorf("unit %s has negative decimal places", u.Name)
		}
		if u.Kind == Native && u.MultiplierFromBase.Equal(one) {
			if r.base >= 0 {
				return nil, fmt.Errorf("duplicate base unit %s", u.Name)
			}
			r.base = i
		}
		if u.IsDefault {
			if r.def >= 0 {
				return nil, fmt.Errorf("duplicate default unit %s", u.Name)
			}
			r.def = i
		}
		for _, alias := range append([]string{u.Name}, u.Aliases...) {
			key := strings.ToLower(alias)
			if _, dup := r.byAlias[key]; dup {
				return nil, fmt.Errorf("duplicate unit alias %q", alias)
			}
			r.byAlias[key] = i
		}
	}
	if r.base < 0 {
		return nil, fmt.Errorf("no native base unit with multiplier 1")
	}
	if r.def < 0 {
		r.def = r.base
	}
	return r, nil
}

// Bitcoin returns the static unit table for Bitcoin-family networks. The
// table is compile-time constant, so construction failure is a programming
// error and panics.
func Bitcoin(rates RateSource) *Registry {
	r, err := NewRegistry([]Unit{
		{
			Kind:               Native,
			Name:               "BTC",
			MultiplierFromBase: decimal.New(1, 8),
			DecimalPlaces:      8,
			Aliases:            []string{"bitcoin", "xbt"},
			IsDefault:          true,
			Symbol:             "₿",
		},
		{
			Kind:               Native,
			Name:               "mBTC",
			MultiplierFromBase: decimal.New(1, 5),
			DecimalPlaces:      5,
			Aliases:            []string{"millibit", "millibitcoin"},
		},
		{
			Kind:               Native,
			Name:               "bit",
			MultiplierFromBase: decimal.New(1, 2),
			DecimalPlaces:      2,
			Aliases:            []string{"bits", "microbitcoin"},
		},
		{
			Kind:               Native,
			Name:               "satoshi",
			MultiplierFromBase: decimal.New(1, 0),
			DecimalPlaces:      0,
			Aliases:            []string{"sat", "sats"},
		},
		{
			Kind:          Exchanged,
			Name:          "USD",
			ExchangeKey:   "btc-usd",
			DecimalPlaces: 2,
			Aliases:       []string{"dollar"},
			Symbol:        "$",
		},
	}, rates)
	if err != nil {
		panic("unit: bitcoin table invalid: " + err.Error())
	}
	return r
}

// Resolve finds a unit by name or alias, case-insensitively.
func (r *Registry) Resolve(token string) (Unit, error) {
	i, ok := r.byAlias[strings.ToLower(strings.TrimSpace(token))]
	if !ok {
		return Unit{}, fmt.Errorf("%w: %q", model.ErrUnitNotFound, token)
	}
	return r.units[i], nil
}

// Units returns the unit table in declaration order.
func (r *Registry) Units() []Unit { return append([]Unit(nil), r.units...) }

// Base returns the smallest indivisible unit.
func (r *Registry) Base() Unit { return r.units[r.base] }

// Default returns the unit amounts are displayed in.
func (r *Registry) Default() Unit { return r.units[r.def] }

// FromBase converts an integral base-unit amount into the target unit. For
// native units the division is exact decimal arithmetic rounded half-up once
// at the unit's final digit, so integral amounts round-trip. Exchanged units
// require a rate; without one the call fails rather than fabricate a number.
func (r *Registry) FromBase(amountBase int64, target Unit) (decimal.Decimal, error) {
	if amountBase < 0 {
		return decimal.Zero, fmt.Errorf("%w: negative base amount %d", model.ErrInvalidAmount, amountBase)
	}
	mult, err := r.multiplier(target)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(amountBase).DivRound(mult, target.DecimalPlaces), nil
}

// ToBase converts an amount in the given native unit back to base units. The
// result must be integral and non-negative.
func (r *Registry) ToBase(amount decimal.Decimal, source Unit) (int64, error) {
	if source.Kind != Native {
		return 0, fmt.Errorf("%w: cannot derive base amount from %s", model.ErrRateUnavailable, source.Name)
	}
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", model.ErrInvalidAmount, amount)
	}
	base := amount.Mul(source.MultiplierFromBase)
	if !base.IsInteger() {
		return 0, fmt.Errorf("%w: %s %s is not a whole number of base units", model.ErrInvalidAmount, amount, source.Name)
	}
	return base.IntPart(), nil
}

func (r *Registry) multiplier(u Unit) (decimal.Decimal, error) {
	if u.Kind == Native {
		return u.MultiplierFromBase, nil
	}
	if r.rates == nil {
		return decimal.Zero, fmt.Errorf("%w: no rate source for %s", model.ErrRateUnavailable, u.Name)
	}
	rate, err := r.rates.Rate(u.ExchangeKey)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", model.ErrRateUnavailable, u.Name, err)
	}
	if rate.IsZero() || rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: non-positive rate for %s", model.ErrRateUnavailable, u.Name)
	}
	return rate, nil
}
