// Package symbol turns user input into the canonical instrument symbol used
// as the history cache key.
package symbol

import (
	"errors"
	"fmt"
	"strings"
)

// Market is the exchange group the user picked for an input symbol
type Market string

const (
	MarketCN    Market = "cn"
	MarketHK    Market = "hk"
	MarketUS    Market = "us"
	MarketOther Market = "other"
)

const hkPrefix = "hk"

// ErrEmptySymbol is returned when the trimmed input is empty
var ErrEmptySymbol = errors.New("symbol is empty")

// ParseMarket parses a market name, case-insensitively
func ParseMarket(s string) (Market, error) {
	switch m := Market(strings.ToLower(strings.TrimSpace(s))); m {
	case MarketCN, MarketHK, MarketUS, MarketOther:
		return m, nil
	default:
		return "", fmt.Errorf("unknown market %q", s)
	}
}

// Normalize returns the canonical symbol for raw under market.
// Hong Kong symbols get an "hk" prefix; everything else passes through and
// prefix resolution for A-shares is left to the remote service.
func Normalize(raw string, market Market) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptySymbol
	}

	if market == MarketHK && !strings.HasPrefix(s, hkPrefix) {
		s = hkPrefix + s
	}
	return s, nil
}
