package provider

import (
	"fmt"
	"strings"

	"github.com/aristath/marketgps/internal/domain"
)

// PrimarySymbol translates an internal asset ID (TICKER.EXCHANGE) into
// the symbol shape the primary provider (an EODHD-style exchange-code
// API) expects, which is the identity transform: EODHD already indexes
// by TICKER.EXCHANGE.
func PrimarySymbol(asset domain.Asset) string {
	return asset.AssetID
}

// FallbackSymbol translates an internal asset ID into the symbol shape
// the free fallback provider (a Yahoo-Finance-style ticker API)
// expects. Each asset type has its own convention:
//
//   - EQUITY/ETF: ticker with exchange suffix mapped to Yahoo's suffix
//     table (US has no suffix).
//   - FX: "{base}{quote}=X" (e.g. EURUSD=X).
//   - CRYPTO: "{ticker}-USD".
//   - FUTURE: "{ticker}=F".
//   - BOND: unsupported by the fallback; callers should route bonds to
//     FRED-style lookups instead.
func FallbackSymbol(asset domain.Asset) (string, error) {
	ticker, exchange, ok := domain.SplitAssetID(asset.AssetID)
	if !ok {
		return "", fmt.Errorf("provider: malformed asset id %q", asset.AssetID)
	}

	switch asset.AssetType {
	case domain.AssetEquity, domain.AssetETF:
		if exchange == "US" {
			return ticker, nil
		}
		if suffix, ok := yahooExchangeSuffix[exchange]; ok {
			return ticker + suffix, nil
		}
		return ticker + "." + exchange, nil

	case domain.AssetFX:
		pair := strings.ToUpper(ticker)
		if len(pair) != 6 {
			return "", fmt.Errorf("provider: malformed FX ticker %q", ticker)
		}
		return pair[:3] + pair[3:] + "=X", nil

	case domain.AssetCrypto:
		return strings.ToUpper(ticker) + "-USD", nil

	case domain.AssetFuture:
		return strings.ToUpper(ticker) + "=F", nil

	case domain.AssetBond:
		return "", fmt.Errorf("provider: fallback does not support bonds (asset %s)", asset.AssetID)

	default:
		return ticker, nil
	}
}

// yahooExchangeSuffix maps our internal exchange codes to the ticker
// suffix the Yahoo-style fallback expects.
var yahooExchangeSuffix = map[string]string{
	"GR": ".AT", // Athens
	"DE": ".DE",
	"UK": ".L",
	"FR": ".PA",
	"NL": ".AS",
	"JP": ".T",
	"HK": ".HK",
	"ZA": ".JO",
	"LSE": ".L",
	"XETRA": ".DE",
	"JSE": ".JO",
	"NG": ".LG",
	"KE": ".NR",
	"EG": ".CA",
}
