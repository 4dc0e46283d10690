package domain

import (
	"regexp"
	"strings"
	"time"
)

// AssetType is the closed set of instrument classes the scoring engine
// recognizes. It determines which pillars apply to an asset.
type AssetType string

const (
	AssetEquity    AssetType = "EQUITY"
	AssetETF       AssetType = "ETF"
	AssetCrypto    AssetType = "CRYPTO"
	AssetFX        AssetType = "FX"
	AssetFuture    AssetType = "FUTURE"
	AssetOption    AssetType = "OPTION"
	AssetBond      AssetType = "BOND"
	AssetIndex     AssetType = "INDEX"
	AssetFund      AssetType = "FUND"
	AssetCommodity AssetType = "COMMODITY"
	AssetUnknown   AssetType = "UNKNOWN"
)

// HasValuePillar reports whether this asset type carries a Value pillar.
// Only equities and funds do; ETFs and the alternative asset classes
// (FX/crypto/commodity/bond/option/future) use a momentum+safety-only
// model.
func (t AssetType) HasValuePillar() bool {
	return t == AssetEquity || t == AssetFund
}

// IsAlternative reports whether t belongs to the alternative-asset family
// that never carries fundamentals (FX, crypto, commodity, bond, option,
// future).
func (t AssetType) IsAlternative() bool {
	switch t {
	case AssetFX, AssetCrypto, AssetCommodity, AssetBond, AssetOption, AssetFuture:
		return true
	default:
		return false
	}
}

// Tier is the liquidity class assigned by the UniverseBuilder. Tier 1 is
// the most liquid / highest priority; tier 4 the least, and inactive by
// default.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
	Tier4 Tier = 4
)

// Asset is a single tradable instrument, identified by asset_id =
// "<symbol>.<exchange>".
type Asset struct {
	AssetID        string
	Symbol         string
	Name           string
	AssetType      AssetType
	MarketScope    MarketScope
	MarketCode     string
	ExchangeCode   string
	Currency       string
	Country        string
	Sector         string
	Industry       string
	Tier           Tier
	PriorityLevel  int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// assetIDPattern is the asset_id grammar: symbol is [A-Z0-9_-]+
// (crypto may carry a hyphenated quote suffix like BTC-USD), exchange
// is a short alphanumeric code.
var assetIDPattern = regexp.MustCompile(`^[A-Z0-9_\-]+\.[A-Z0-9]{1,8}$`)

// ValidAssetID reports whether id conforms to the asset_id grammar.
func ValidAssetID(id string) bool {
	return assetIDPattern.MatchString(strings.ToUpper(id))
}

// SplitAssetID splits "<symbol>.<exchange>" into its two parts. The last
// dot is the separator, so crypto pairs like "BTC-USD.CC" split cleanly.
func SplitAssetID(id string) (symbol, exchange string, ok bool) {
	idx := strings.LastIndex(id, ".")
	if idx <= 0 || idx == len(id)-1 {
		return "", "", false
	}
	return id[:idx], id[idx+1:], true
}

// BuildAssetID joins a symbol and exchange code into canonical asset_id
// form.
func BuildAssetID(symbol, exchange string) string {
	return strings.ToUpper(symbol) + "." + strings.ToUpper(exchange)
}
