package universe

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/marketgps/internal/domain"
)

// LoadFromCSV reads a universe seed file with header
// asset_id,symbol,name,asset_type,currency,country,tier,active —
// the operator path for bootstrapping a scope without provider calls.
func LoadFromCSV(path string, scope domain.MarketScope, asOf time.Time) ([]domain.Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("universe: open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("universe: read csv header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"asset_id", "symbol", "asset_type"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("universe: csv missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var assets []domain.Asset
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("universe: read csv row: %w", err)
		}

		assetID := strings.ToUpper(field(row, "asset_id"))
		if !domain.ValidAssetID(assetID) {
			return nil, fmt.Errorf("universe: invalid asset_id %q in csv", assetID)
		}
		_, exchange, _ := domain.SplitAssetID(assetID)

		tier := domain.Tier3
		if raw := field(row, "tier"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= 4 {
				tier = domain.Tier(n)
			}
		}
		active := tier <= domain.Tier2
		if raw := field(row, "active"); raw != "" {
			active, _ = strconv.ParseBool(raw)
		}

		assets = append(assets, domain.Asset{
			AssetID:       assetID,
			Symbol:        strings.ToUpper(field(row, "symbol")),
			Name:          field(row, "name"),
			AssetType:     domain.AssetType(strings.ToUpper(field(row, "asset_type"))),
			MarketScope:   scope,
			ExchangeCode:  exchange,
			Currency:      strings.ToUpper(field(row, "currency")),
			Country:       strings.ToUpper(field(row, "country")),
			Tier:          tier,
			PriorityLevel: int(tier),
			Active:        active,
			CreatedAt:     asOf,
			UpdatedAt:     asOf,
		})
	}
	return assets, nil
}
