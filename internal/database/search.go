package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/marketgps/internal/domain"
)

// liquidityTierMinADV maps the institutional liquidity grades of the
// search filter set to published-liquidity floors.
var liquidityTierMinADV = map[domain.LiquidityTier]float64{
	domain.LiquidityTierA: 5_000_000,
	domain.LiquidityTierB: 1_000_000,
	domain.LiquidityTierC: 250_000,
	domain.LiquidityTierD: 0,
}

// SearchAssets is the single source of truth for all asset listings
//: filter, sort from the
// whitelist, paginate, and return the total before pagination.
func (s *Store) SearchAssets(ctx context.Context, f domain.AssetSearchFilter) (domain.SearchResult, error) {
	if err := f.Validate(); err != nil {
		return domain.SearchResult{}, err
	}

	var where []string
	var args []interface{}

	add := func(cond string, vals ...interface{}) {
		where = append(where, cond)
		args = append(args, vals...)
	}

	if f.MarketScope != "" {
		add("u.market_scope = ?", string(f.MarketScope))
	}
	if f.MarketCode != "" {
		add("u.market_code = ?", f.MarketCode)
	}
	if f.Country != "" {
		add("u.country = ?", f.Country)
	} else if f.Region != "" {
		countries := domain.RegionCountries(f.Region)
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(countries)), ",")
		vals := make([]interface{}, len(countries))
		for i, c := range countries {
			vals[i] = c
		}
		add("u.country IN ("+placeholders+")", vals...)
	}
	if f.AssetType != "" {
		add("u.asset_type = ?", string(f.AssetType))
	}
	if f.OnlyScored {
		add("sl.score_total IS NOT NULL")
	}
	if f.MinScore != nil {
		add("sl.score_total >= ?", *f.MinScore)
	}
	if f.MaxScore != nil {
		add("sl.score_total <= ?", *f.MaxScore)
	}
	if f.MinLiquidityTier != "" {
		add("COALESCE(g.liquidity, 0) >= ?", liquidityTierMinADV[f.MinLiquidityTier])
	}
	if f.ExcludeFlagged {
		add("(g.eligible IS NULL OR g.eligible = 1)")
	}
	if f.MinHorizonYears != nil {
		add("COALESCE(g.history_days, 0) >= ?", int(*f.MinHorizonYears*252))
	}
	if f.Query != "" {
		q := "%" + strings.ToUpper(f.Query) + "%"
		add("(UPPER(u.symbol) LIKE ? OR UPPER(u.name) LIKE ?)", q, q)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	base := `
		FROM universe u
		LEFT JOIN scores_latest sl ON sl.asset_id = u.asset_id
		LEFT JOIN gating_status g ON g.asset_id = u.asset_id
		` + whereClause

	var total int
	if err := s.db.Conn().GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return domain.SearchResult{}, fmt.Errorf("database: search count: %w", err)
	}

	orderBy := "u.symbol ASC"
	switch f.Sort {
	case domain.SortScoreTotal:
		orderBy = "sl.score_total DESC"
	case domain.SortName:
		orderBy = "u.name ASC"
	case domain.SortUpdatedAt:
		orderBy = "u.updated_at DESC"
	}

	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT u.asset_id %s ORDER BY %s LIMIT %d OFFSET %d`,
		base, orderBy, pageSize, offset)

	var ids []string
	if err := s.db.Conn().SelectContext(ctx, &ids, query, args...); err != nil {
		return domain.SearchResult{}, fmt.Errorf("database: search select: %w", err)
	}

	results := make([]domain.SecurityWithScore, 0, len(ids))
	for _, id := range ids {
		asset, err := s.GetAsset(ctx, id)
		if err != nil {
			return domain.SearchResult{}, err
		}
		score, err := s.GetScore(ctx, id)
		if err != nil {
			return domain.SearchResult{}, err
		}
		results = append(results, domain.SecurityWithScore{Asset: asset, Score: score})
	}

	return domain.SearchResult{Results: results, Total: total}, nil
}
