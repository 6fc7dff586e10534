package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error definitions for instrument validation
var (
	ErrNoInstruments      = errors.New("zero instruments configured")
	ErrTooManyInstruments = errors.New("too many instruments configured")
)

// quoteSuffixes lists the quote currencies the exchange denominates
// pairs in, longest first so "usdt" wins over "usd" when trimming.
var quoteSuffixes = []string{"usdt", "usdc", "usd", "eur", "gbp", "btc", "eth"}

// ValidateInstrument checks that an instrument identifier is a
// plausible lowercase base+quote concatenation such as "btcusd".
//
// The tracked-instrument set is fixed for the lifetime of the process,
// so validation happens once at startup.
func ValidateInstrument(pair string) error {
	if pair == "" {
		return errors.New("instrument cannot be empty")
	}

	if pair != strings.ToLower(pair) {
		return fmt.Errorf("instrument must be lowercase: %q", pair)
	}

	for _, quote := range quoteSuffixes {
		if strings.HasSuffix(pair, quote) && len(pair) > len(quote) {
			return nil
		}
	}

	return fmt.Errorf("instrument %q has no recognized quote suffix (supported: %s)",
		pair, strings.Join(quoteSuffixes, ", "))
}

// ValidateInstruments validates a slice of instrument identifiers and
// enforces a quantity limit.
func ValidateInstruments(pairs []string, maxAllowed int) error {
	if len(pairs) == 0 {
		return ErrNoInstruments
	}

	if maxAllowed > 0 && len(pairs) > maxAllowed {
		return fmt.Errorf("%w: configured %d instruments, maximum allowed %d",
			ErrTooManyInstruments, len(pairs), maxAllowed)
	}

	for i, pair := range pairs {
		if err := ValidateInstrument(pair); err != nil {
			return fmt.Errorf("invalid instrument at index %d: %w", i, err)
		}
	}

	return nil
}

// BaseSymbol extracts the uppercase base currency code from an
// instrument identifier, e.g. "btcusd" -> "BTC".
//
// The quote suffix is trimmed when recognized; otherwise the last
// three characters are assumed to be the quote, matching the
// exchange's dominant pair format.
func BaseSymbol(pair string) string {
	for _, quote := range quoteSuffixes {
		if strings.HasSuffix(pair, quote) && len(pair) > len(quote) {
			return strings.ToUpper(strings.TrimSuffix(pair, quote))
		}
	}

	if len(pair) > 3 {
		return strings.ToUpper(pair[:len(pair)-3])
	}

	return strings.ToUpper(pair)
}
