// Package identifier disambiguates free-form user tokens (search box input)
// into a height, a block hash / txid, or an address before any node call is
// made. Classification is pure and must run ahead of every RPC lookup.
//
// Display code historically zero-padded hashes to 128 hex characters with a
// 0x prefix; all of that normalization lives here. Note one inherited
// ambiguity: an over-long zero-padded hex token whose numeric value fits a
// plausible block-height range is classified as a height, which can
// misclassify a genuine hash that happens to be numerically small. The
// two-path behavior is kept as-is.
package identifier

import (
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Kind enumerates the possible classifications.
type Kind string

const (
	Height     Kind = "height"
	HashOrTxid Kind = "hash_or_txid"
	Address    Kind = "address"
	Invalid    Kind = "invalid"
)

// hashHexLen is the canonical length of a block hash or txid in hex.
const hashHexLen = 64

// paddedHexLen is the widest zero-padded form produced by legacy display
// code.
const paddedHexLen = 128

// maxPlausibleHeight bounds the height reinterpretation of padded hex
// tokens. Matches the consensus cutoff below which a locktime is a height.
const maxPlausibleHeight = 500_000_000

// Classification is the result of classifying one token. Exactly the field
// matching Kind is meaningful.
type Classification struct {
	Kind    Kind
	Height  uint64
	Hex     string
	Address string
	Reason  string
}

// Classify resolves a user token, first match wins: decimal digits are a
// height, 64 hex characters (optionally 0x-prefixed, optionally zero-padded)
// are a hash or txid, anything decoding as an address for the given network
// is an address.
func Classify(token string, params *chaincfg.Params) Classification {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return invalid("empty token")
	}

	if isDigits(trimmed) {
		height, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return invalid("numeric token out of height range")
		}
		return Classification{Kind: Height, Height: height}
	}

	if c, ok := classifyHex(trimmed); ok {
		return c
	}

	if _, err := btcutil.DecodeAddress(trimmed, params); err == nil {
		return Classification{Kind: Address, Address: trimmed}
	}

	return invalid("not a recognized identifier")
}

func classifyHex(token string) (Classification, bool) {
	hexPart := strings.TrimPrefix(strings.TrimPrefix(token, "0x"), "0X")
	if !isHex(hexPart) {
		return Classification{}, false
	}

	switch {
	case len(hexPart) == hashHexLen:
		return Classification{Kind: HashOrTxid, Hex: strings.ToLower(hexPart)}, true

	case len(hexPart) > hashHexLen && len(hexPart) <= paddedHexLen && len(hexPart)%2 == 0:
		// Legacy padded form: the leading bytes must all be zero, the true
		// hash is the trailing 64 characters.
		padding := hexPart[:len(hexPart)-hashHexLen]
		if strings.Trim(padding, "0") != "" {
			return Classification{}, false
		}
		normalized := strings.ToLower(hexPart[len(hexPart)-hashHexLen:])
		if height, ok := smallHexValue(normalized); ok {
			// Hex keeps the hash reading alive so callers can fall back
			// when no block exists at this height.
			return Classification{Kind: Height, Height: height, Hex: normalized}, true
		}
		return Classification{Kind: HashOrTxid, Hex: normalized}, true
	}
	return Classification{}, false
}

// smallHexValue reports the numeric value of a 64-hex token when it fits the
// plausible height range.
func smallHexValue(hexToken string) (uint64, bool) {
	significant := strings.TrimLeft(hexToken, "0")
	if significant == "" {
		return 0, true
	}
	if len(significant) > 16 {
		return 0, false
	}
	value, err := strconv.ParseUint(significant, 16, 64)
	if err != nil || value > maxPlausibleHeight {
		return 0, false
	}
	return value, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func invalid(reason string) Classification {
	return Classification{Kind: Invalid, Reason: reason}
}
