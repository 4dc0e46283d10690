package adhoc

import (
	"regexp"
	"strings"

	"github.com/aristath/marketgps/internal/domain"
)

// suffixScope maps exchange suffixes to the market scope they belong
// to.
var suffixScope = map[string]domain.MarketScope{
	"US":    domain.ScopeUSEU,
	"LSE":   domain.ScopeUSEU,
	"L":     domain.ScopeUSEU,
	"PA":    domain.ScopeUSEU,
	"XETRA": domain.ScopeUSEU,
	"DE":    domain.ScopeUSEU,
	"F":     domain.ScopeUSEU,
	"AS":    domain.ScopeUSEU,
	"BR":    domain.ScopeUSEU,
	"MI":    domain.ScopeUSEU,
	"MC":    domain.ScopeUSEU,
	"SW":    domain.ScopeUSEU,
	"VI":    domain.ScopeUSEU,
	"ST":    domain.ScopeUSEU,
	"CO":    domain.ScopeUSEU,
	"OL":    domain.ScopeUSEU,
	"HE":    domain.ScopeUSEU,
	"CC":    domain.ScopeUSEU,
	"FOREX": domain.ScopeUSEU,
	"COMM":  domain.ScopeUSEU,

	"JSE": domain.ScopeAfrica,
	"NG":  domain.ScopeAfrica,
	"KE":  domain.ScopeAfrica,
	"EG":  domain.ScopeAfrica,
	"GH":  domain.ScopeAfrica,
	"BW":  domain.ScopeAfrica,
	"TZ":  domain.ScopeAfrica,
	"UG":  domain.ScopeAfrica,
	"MA":  domain.ScopeAfrica,
	"TN":  domain.ScopeAfrica,
	"ZM":  domain.ScopeAfrica,
}

// cryptoQuotes are the quote currencies recognized in hyphenated
// crypto pairs like BTC-USD.
var cryptoQuotes = map[string]bool{
	"USD": true, "USDT": true, "EUR": true, "BTC": true, "ETH": true,
}

// isoCurrencies backs FX pair detection: a six-letter ticker made of
// two known currency codes is an FX cross.
var isoCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true,
	"AUD": true, "CAD": true, "NZD": true, "ZAR": true, "NGN": true,
	"KES": true, "EGP": true, "GHS": true, "MAD": true, "CNY": true,
	"SEK": true, "NOK": true, "DKK": true, "PLN": true, "TRY": true,
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9_\-]+$`)

// Resolved is the canonical identity inferred from a raw ticker.
type Resolved struct {
	AssetID     string
	Symbol      string
	Exchange    string
	AssetType   domain.AssetType
	MarketScope domain.MarketScope
}

// Resolve turns a raw user-supplied ticker into a canonical asset
// identity. Exchange preference: the explicit
// argument, then a suffix embedded in the input, then the default
// exchange. Asset type preference: the explicit argument, then suffix
// pattern classification, else EQUITY.
func Resolve(raw, explicitExchange string, explicitType domain.AssetType, defaultExchange string) (Resolved, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	if ticker == "" {
		return Resolved{}, false
	}

	symbol := ticker
	exchange := strings.ToUpper(explicitExchange)
	if idx := strings.LastIndex(ticker, "."); idx > 0 && idx < len(ticker)-1 {
		symbol = ticker[:idx]
		if exchange == "" {
			exchange = ticker[idx+1:]
		}
	}

	assetType := explicitType
	if assetType == "" || assetType == domain.AssetUnknown {
		assetType = classify(symbol, exchange)
	}

	if exchange == "" {
		switch assetType {
		case domain.AssetCrypto:
			exchange = "CC"
		case domain.AssetFX:
			exchange = "FOREX"
		case domain.AssetCommodity, domain.AssetFuture:
			exchange = "COMM"
		default:
			exchange = strings.ToUpper(defaultExchange)
			if exchange == "" {
				exchange = "US"
			}
		}
	}

	if !tickerPattern.MatchString(symbol) {
		return Resolved{}, false
	}

	scope, ok := suffixScope[exchange]
	if !ok {
		scope = domain.ScopeUSEU
	}

	return Resolved{
		AssetID:     domain.BuildAssetID(symbol, exchange),
		Symbol:      symbol,
		Exchange:    exchange,
		AssetType:   assetType,
		MarketScope: scope,
	}, true
}

func classify(symbol, exchange string) domain.AssetType {
	switch exchange {
	case "CC":
		return domain.AssetCrypto
	case "FOREX":
		return domain.AssetFX
	case "COMM":
		return domain.AssetCommodity
	}

	if base, quote, ok := strings.Cut(symbol, "-"); ok && base != "" && cryptoQuotes[quote] {
		return domain.AssetCrypto
	}

	if len(symbol) == 6 && isoCurrencies[symbol[:3]] && isoCurrencies[symbol[3:]] {
		return domain.AssetFX
	}

	return domain.AssetEquity
}
