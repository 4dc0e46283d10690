package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketgps/internal/coreerrors"
	"github.com/aristath/marketgps/internal/domain"
)

// YahooFallbackClient is the free fallback provider: an unauthenticated
// Yahoo-Finance-style quote API with no bulk-EOD or exchange listings
// support. Symbol translation per asset type lives in normalize.go.
type YahooFallbackClient struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// NewYahooFallbackClient builds a fallback-provider client.
func NewYahooFallbackClient(log zerolog.Logger) *YahooFallbackClient {
	return &YahooFallbackClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("client", "yahoo_fallback").Logger(),
	}
}

func (c *YahooFallbackClient) Name() string { return "yahoo_fallback" }

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

func (c *YahooFallbackClient) chart(ctx context.Context, yahooSymbol, rangeParam, interval string) (*yahooChartResponse, error) {
	reqURL := fmt.Sprintf(
		"https://query1.finance.yahoo.com/v8/finance/chart/%s?range=%s&interval=%s",
		url.PathEscape(yahooSymbol), rangeParam, interval,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo_fallback: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "chart", Err: fmt.Errorf("%w: %v", coreerrors.ErrTransientProvider, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "chart", Err: fmt.Errorf("%w: %v", coreerrors.ErrTransientProvider, err)}
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "chart", Err: coreerrors.ErrRateLimited}
	default:
		return nil, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "chart", Err: fmt.Errorf("%w: status %d", coreerrors.ErrTransientProvider, resp.StatusCode)}
	}

	var out yahooChartResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "chart", Err: fmt.Errorf("%w: decode: %v", coreerrors.ErrTransientProvider, err)}
	}
	if out.Chart.Error != nil {
		return nil, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "chart", Err: fmt.Errorf("%w: %v", coreerrors.ErrTransientProvider, out.Chart.Error)}
	}
	if len(out.Chart.Result) == 0 {
		return nil, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "chart", Err: coreerrors.ErrInsufficientData}
	}
	return &out, nil
}

func (c *YahooFallbackClient) EOD(ctx context.Context, asset domain.Asset, from, to time.Time) (domain.BarSeries, error) {
	symbol, err := FallbackSymbol(asset)
	if err != nil {
		return domain.BarSeries{}, err
	}

	days := int(to.Sub(from).Hours()/24) + 5
	rangeParam := "1y"
	switch {
	case days > 365*5:
		rangeParam = "10y"
	case days > 365:
		rangeParam = "5y"
	}

	resp, err := c.chart(ctx, symbol, rangeParam, "1d")
	if err != nil {
		return domain.BarSeries{}, err
	}

	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return domain.BarSeries{}, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "EOD", Err: coreerrors.ErrInsufficientData}
	}
	q := result.Indicators.Quote[0]

	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		date := time.Unix(ts, 0).UTC()
		day := date.Format("2006-01-02")
		if day < from.Format("2006-01-02") || day > to.Format("2006-01-02") {
			continue
		}
		var vol int64
		if i < len(q.Volume) {
			vol = q.Volume[i]
		}
		bars = append(bars, domain.Bar{
			Date:   date,
			Open:   valueAt(q.Open, i),
			High:   valueAt(q.High, i),
			Low:    valueAt(q.Low, i),
			Close:  valueAt(q.Close, i),
			Volume: vol,
		})
	}
	return domain.BarSeries{AssetID: asset.AssetID, Bars: bars}, nil
}

func (c *YahooFallbackClient) Intraday(ctx context.Context, asset domain.Asset, interval string, lookback time.Duration) (domain.BarSeries, error) {
	symbol, err := FallbackSymbol(asset)
	if err != nil {
		return domain.BarSeries{}, err
	}
	resp, err := c.chart(ctx, symbol, "5d", interval)
	if err != nil {
		return domain.BarSeries{}, err
	}
	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return domain.BarSeries{}, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "Intraday", Err: coreerrors.ErrInsufficientData}
	}
	q := result.Indicators.Quote[0]
	cutoff := time.Now().Add(-lookback).Unix()

	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if ts < cutoff {
			continue
		}
		var vol int64
		if i < len(q.Volume) {
			vol = q.Volume[i]
		}
		bars = append(bars, domain.Bar{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   valueAt(q.Open, i),
			High:   valueAt(q.High, i),
			Low:    valueAt(q.Low, i),
			Close:  valueAt(q.Close, i),
			Volume: vol,
		})
	}
	return domain.BarSeries{AssetID: asset.AssetID, Bars: bars}, nil
}

func valueAt(s []float64, i int) float64 {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

type yahooQuoteSummary struct {
	QuoteSummary struct {
		Result []struct {
			DefaultKeyStatistics struct {
				ForwardPE *struct {
					Raw float64 `json:"raw"`
				} `json:"forwardPE"`
				PegRatio *struct {
					Raw float64 `json:"raw"`
				} `json:"pegRatio"`
			} `json:"defaultKeyStatistics"`
			FinancialData struct {
				ProfitMargins *struct {
					Raw float64 `json:"raw"`
				} `json:"profitMargins"`
				ReturnOnEquity *struct {
					Raw float64 `json:"raw"`
				} `json:"returnOnEquity"`
			} `json:"financialData"`
			SummaryDetail struct {
				TrailingPE *struct {
					Raw float64 `json:"raw"`
				} `json:"trailingPE"`
			} `json:"summaryDetail"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

// Fundamentals fetches a reduced fundamentals set from Yahoo's
// quoteSummary endpoint. Free tier, so coverage is best-effort.
func (c *YahooFallbackClient) Fundamentals(ctx context.Context, asset domain.Asset) (*domain.Fundamentals, error) {
	if !asset.AssetType.HasValuePillar() {
		return nil, nil
	}
	symbol, err := FallbackSymbol(asset)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf(
		"https://query2.finance.yahoo.com/v10/finance/quoteSummary/%s?modules=defaultKeyStatistics,financialData,summaryDetail",
		url.PathEscape(symbol),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo_fallback: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "Fundamentals", Err: fmt.Errorf("%w: %v", coreerrors.ErrTransientProvider, err)}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "Fundamentals", Err: fmt.Errorf("%w: %v", coreerrors.ErrTransientProvider, err)}
	}

	var raw yahooQuoteSummary
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "Fundamentals", Err: fmt.Errorf("%w: decode: %v", coreerrors.ErrTransientProvider, err)}
	}
	if len(raw.QuoteSummary.Result) == 0 {
		return nil, coreerrors.ErrInsufficientData
	}
	r := raw.QuoteSummary.Result[0]

	out := &domain.Fundamentals{AssetID: asset.AssetID}
	if r.SummaryDetail.TrailingPE != nil {
		v := r.SummaryDetail.TrailingPE.Raw
		out.PERatio = &v
	}
	if r.DefaultKeyStatistics.ForwardPE != nil {
		v := r.DefaultKeyStatistics.ForwardPE.Raw
		out.ForwardPE = &v
	}
	if r.DefaultKeyStatistics.PegRatio != nil {
		v := r.DefaultKeyStatistics.PegRatio.Raw
		out.PEGRatio = &v
	}
	if r.FinancialData.ProfitMargins != nil {
		v := r.FinancialData.ProfitMargins.Raw * 100
		out.ProfitMargin = &v
	}
	if r.FinancialData.ReturnOnEquity != nil {
		v := r.FinancialData.ReturnOnEquity.Raw * 100
		out.ROE = &v
	}
	return out, nil
}

// Health probes the chart endpoint for a liquid reference ticker with
// a short deadline.
func (c *YahooFallbackClient) Health(ctx context.Context) HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.chart(probeCtx, "AAPL", "5d", "1d")
	latency := time.Since(start)

	status := HealthStatus{Provider: c.Name(), Latency: latency}
	switch {
	case err != nil:
		status.State = Down
	case latency > 2*time.Second:
		status.State = Degraded
	default:
		status.State = Healthy
	}
	return status
}

// Listings is unsupported by the free fallback.
func (c *YahooFallbackClient) Listings(ctx context.Context, scope domain.MarketScope, exchange string) ([]ListingEntry, error) {
	return nil, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "Listings", Err: fmt.Errorf("%w: listings unsupported", coreerrors.ErrTransientProvider)}
}

// Search falls back to returning the query as a single best-guess
// asset when it already looks like a valid asset ID.
func (c *YahooFallbackClient) Search(ctx context.Context, scope domain.MarketScope, query string) ([]ListingEntry, error) {
	if !domain.ValidAssetID(query) {
		return nil, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "Search", Err: fmt.Errorf("%w: search unsupported", coreerrors.ErrTransientProvider)}
	}
	symbol, exchange, _ := domain.SplitAssetID(query)
	return []ListingEntry{{AssetID: query, Symbol: symbol, Exchange: exchange}}, nil
}

// BulkEOD is unsupported by the free fallback.
func (c *YahooFallbackClient) BulkEOD(ctx context.Context, scope domain.MarketScope, exchange, date string) (map[string]domain.Bar, error) {
	return nil, &coreerrors.ProviderError{Provider: "yahoo_fallback", Op: "BulkEOD", Err: fmt.Errorf("%w: bulk EOD unsupported", coreerrors.ErrTransientProvider)}
}
