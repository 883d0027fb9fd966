package model

import "errors"

// Error taxonomy shared across explorer components. Callers match with
// errors.Is; transport maps the categories onto HTTP status codes.
var (
	// ErrInvalidInput marks caller mistakes: malformed identifiers, amounts
	// or units, out-of-range paging arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstreamUnavailable marks a failed primary node lookup. The whole
	// operation aborts; there is no partial result to return.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedUpstreamData marks a fetched object missing fields this
	// layer depends on. Inside scans the offending item is skipped instead.
	ErrMalformedUpstreamData = errors.New("malformed upstream data")

	// ErrNotFound marks an identifier that classified fine but matched
	// nothing on the node.
	ErrNotFound = errors.New("not found")

	ErrUnitNotFound    = errors.New("unit not found")
	ErrRateUnavailable = errors.New("exchange rate unavailable")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidSchedule = errors.New("invalid subsidy schedule")
)
