package domain

import "fmt"

// LiquidityTier is the institutional-facing liquidity grade exposed by
// asset search filters.
type LiquidityTier string

const (
	LiquidityTierA LiquidityTier = "A"
	LiquidityTierB LiquidityTier = "B"
	LiquidityTierC LiquidityTier = "C"
	LiquidityTierD LiquidityTier = "D"
)

// SortField is the whitelist of fields asset search may sort by.
type SortField string

const (
	SortScoreTotal SortField = "score_total"
	SortSymbol     SortField = "symbol"
	SortName       SortField = "name"
	SortUpdatedAt  SortField = "updated_at"
)

var validSortFields = map[SortField]bool{
	SortScoreTotal: true,
	SortSymbol:     true,
	SortName:       true,
	SortUpdatedAt:  true,
}

// AssetSearchFilter is the single source of truth for all asset listings.
// Zero values mean "unset" for every optional field.
type AssetSearchFilter struct {
	MarketScope       MarketScope
	MarketCode        string // US_EU only
	Region            string // AFRICA only
	Country           string // AFRICA only, must belong to Region
	AssetType         AssetType
	OnlyScored        bool
	MinScore          *float64
	MaxScore          *float64
	MinLiquidityTier  LiquidityTier
	ExcludeFlagged    bool
	MinHorizonYears   *float64
	Query             string
	Sort              SortField
	Page              int
	PageSize          int
}

// africaRegions maps AFRICA regions to the countries that belong to them,
// used to validate Country against Region.
var africaRegions = map[string][]string{
	"WEST_AFRICA":  {"NG", "GH", "CI", "SN"},
	"EAST_AFRICA":  {"KE", "TZ", "UG", "RW"},
	"SOUTHERN_AFRICA": {"ZA", "BW", "NA", "ZM"},
	"NORTH_AFRICA": {"EG", "MA", "TN"},
}

// Validate enforces the filter-set invariants: market_code is
// US_EU-only, region/country are AFRICA-only with country-in-region
// validation, and sort must come from the whitelist.
func (f AssetSearchFilter) Validate() error {
	if f.MarketScope != "" && !f.MarketScope.Valid() {
		return fmt.Errorf("invalid market_scope %q", f.MarketScope)
	}
	if f.MarketCode != "" && f.MarketScope == ScopeAfrica {
		return fmt.Errorf("market_code is not valid for scope AFRICA")
	}
	if (f.Region != "" || f.Country != "") && f.MarketScope == ScopeUSEU {
		return fmt.Errorf("region/country are not valid for scope US_EU")
	}
	if f.Region != "" && f.Country != "" {
		countries, ok := africaRegions[f.Region]
		if !ok {
			return fmt.Errorf("unknown region %q", f.Region)
		}
		found := false
		for _, c := range countries {
			if c == f.Country {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("country %q does not belong to region %q", f.Country, f.Region)
		}
	}
	if f.Sort != "" && !validSortFields[f.Sort] {
		return fmt.Errorf("invalid sort field %q", f.Sort)
	}
	if f.MinScore != nil && (*f.MinScore < 0 || *f.MinScore > 100) {
		return fmt.Errorf("min_score out of range")
	}
	if f.MaxScore != nil && (*f.MaxScore < 0 || *f.MaxScore > 100) {
		return fmt.Errorf("max_score out of range")
	}
	if f.MinScore != nil && f.MaxScore != nil && *f.MinScore > *f.MaxScore {
		return fmt.Errorf("min_score must be <= max_score")
	}
	return nil
}

// RegionCountries returns the country codes belonging to an AFRICA
// region, or nil for an unknown region.
func RegionCountries(region string) []string {
	return africaRegions[region]
}

// SearchResult is the paginated response of an asset search.
type SearchResult struct {
	Results []SecurityWithScore
	Total   int
}

// SecurityWithScore combines an Asset with its latest Score, if any.
type SecurityWithScore struct {
	Asset Asset
	Score *Score
}

// Fundamentals is the optional company-health data set used by the
// Value pillar. All fields are optional because free-tier
// providers may not expose them.
type Fundamentals struct {
	AssetID       string
	PERatio       *float64
	ForwardPE     *float64
	PEGRatio      *float64
	PriceToBook   *float64
	ProfitMargin  *float64
	OperatingMargin *float64
	ROE           *float64
	DebtToEquity  *float64
	CurrentRatio  *float64
	RevenueGrowth *float64
	MarketCap     *int64
	DividendYield *float64
}
