package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketgps/internal/coreerrors"
	"github.com/aristath/marketgps/internal/domain"
)

// EODHDClient is the primary market-data provider: a paid,
// quota-limited exchange-code API (EODHD-shaped) covering the full
// Provider surface, bulk endpoints included.
type EODHDClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	log        zerolog.Logger
}

// NewEODHDClient builds a primary-provider client.
func NewEODHDClient(apiKey, baseURL string, log zerolog.Logger) *EODHDClient {
	if baseURL == "" {
		baseURL = "https://eodhd.com/api"
	}
	return &EODHDClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		baseURL:    baseURL,
		log:        log.With().Str("client", "eodhd").Logger(),
	}
}

func (c *EODHDClient) Name() string { return "eodhd" }

func (c *EODHDClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("eodhd: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &coreerrors.ProviderError{Provider: "eodhd", Op: path, Err: fmt.Errorf("%w: %v", coreerrors.ErrTransientProvider, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &coreerrors.ProviderError{Provider: "eodhd", Op: path, Err: fmt.Errorf("%w: %v", coreerrors.ErrTransientProvider, err)}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &coreerrors.ProviderError{Provider: "eodhd", Op: path, Err: coreerrors.ErrAuthFailure}
	case http.StatusPaymentRequired:
		return nil, &coreerrors.ProviderError{Provider: "eodhd", Op: path, Err: coreerrors.ErrQuotaExhausted}
	case http.StatusTooManyRequests:
		return nil, &coreerrors.ProviderError{Provider: "eodhd", Op: path, Err: coreerrors.ErrRateLimited}
	default:
		return nil, &coreerrors.ProviderError{Provider: "eodhd", Op: path, Err: fmt.Errorf("%w: status %d: %s", coreerrors.ErrTransientProvider, resp.StatusCode, string(body))}
	}
}

type eodhdBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

func (c *EODHDClient) EOD(ctx context.Context, asset domain.Asset, from, to time.Time) (domain.BarSeries, error) {
	symbol := PrimarySymbol(asset)
	params := url.Values{
		"from": {from.Format("2006-01-02")},
		"to":   {to.Format("2006-01-02")},
	}
	body, err := c.get(ctx, "/eod/"+symbol, params)
	if err != nil {
		return domain.BarSeries{}, err
	}

	var raw []eodhdBar
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.BarSeries{}, &coreerrors.ProviderError{Provider: "eodhd", Op: "EOD", Err: fmt.Errorf("%w: decode: %v", coreerrors.ErrTransientProvider, err)}
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, b := range raw {
		date, perr := time.Parse("2006-01-02", b.Date)
		if perr != nil {
			continue
		}
		bars = append(bars, domain.Bar{
			Date:   date,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return domain.BarSeries{AssetID: asset.AssetID, Bars: bars}, nil
}

func (c *EODHDClient) Intraday(ctx context.Context, asset domain.Asset, interval string, lookback time.Duration) (domain.BarSeries, error) {
	symbol := PrimarySymbol(asset)
	params := url.Values{
		"interval": {interval},
		"from":     {strconv.FormatInt(time.Now().Add(-lookback).Unix(), 10)},
	}
	body, err := c.get(ctx, "/intraday/"+symbol, params)
	if err != nil {
		return domain.BarSeries{}, err
	}
	var raw []eodhdBar
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.BarSeries{}, &coreerrors.ProviderError{Provider: "eodhd", Op: "Intraday", Err: fmt.Errorf("%w: decode: %v", coreerrors.ErrTransientProvider, err)}
	}
	bars := make([]domain.Bar, 0, len(raw))
	for _, b := range raw {
		ts, perr := time.Parse(time.RFC3339, b.Date)
		if perr != nil {
			ts, perr = time.Parse("2006-01-02 15:04:05", b.Date)
			if perr != nil {
				continue
			}
		}
		bars = append(bars, domain.Bar{Date: ts, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume})
	}
	return domain.BarSeries{AssetID: asset.AssetID, Bars: bars}, nil
}

type eodhdFundamentals struct {
	Highlights struct {
		PERatio      *float64 `json:"PERatio"`
		ProfitMargin *float64 `json:"ProfitMargin"`
		ReturnOnEquityTTM *float64 `json:"ReturnOnEquityTTM"`
		MarketCap    *int64   `json:"MarketCapitalization"`
		DividendYield *float64 `json:"DividendYield"`
	} `json:"Highlights"`
	Valuation struct {
		ForwardPE   *float64 `json:"ForwardPE"`
		PEGRatio    *float64 `json:"PEGRatio"`
		PriceBookMRQ *float64 `json:"PriceBookMRQ"`
	} `json:"Valuation"`
}

func (c *EODHDClient) Fundamentals(ctx context.Context, asset domain.Asset) (*domain.Fundamentals, error) {
	if !asset.AssetType.HasValuePillar() {
		return nil, nil
	}
	symbol := PrimarySymbol(asset)
	body, err := c.get(ctx, "/fundamentals/"+symbol, nil)
	if err != nil {
		return nil, err
	}
	var raw eodhdFundamentals
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &coreerrors.ProviderError{Provider: "eodhd", Op: "Fundamentals", Err: fmt.Errorf("%w: decode: %v", coreerrors.ErrTransientProvider, err)}
	}
	return &domain.Fundamentals{
		AssetID:       asset.AssetID,
		PERatio:       raw.Highlights.PERatio,
		ForwardPE:     raw.Valuation.ForwardPE,
		PEGRatio:      raw.Valuation.PEGRatio,
		PriceToBook:   raw.Valuation.PriceBookMRQ,
		ProfitMargin:  raw.Highlights.ProfitMargin,
		ROE:           raw.Highlights.ReturnOnEquityTTM,
		MarketCap:     raw.Highlights.MarketCap,
		DividendYield: raw.Highlights.DividendYield,
	}, nil
}

type eodhdListing struct {
	Code     string `json:"Code"`
	Name     string `json:"Name"`
	Country  string `json:"Country"`
	Exchange string `json:"Exchange"`
	Currency string `json:"Currency"`
	Type     string `json:"Type"`
	ISIN     string `json:"Isin"`
}

func (c *EODHDClient) Listings(ctx context.Context, scope domain.MarketScope, exchange string) ([]ListingEntry, error) {
	body, err := c.get(ctx, "/exchange-symbol-list/"+exchange, nil)
	if err != nil {
		return nil, err
	}
	var raw []eodhdListing
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &coreerrors.ProviderError{Provider: "eodhd", Op: "Listings", Err: fmt.Errorf("%w: decode: %v", coreerrors.ErrTransientProvider, err)}
	}
	out := make([]ListingEntry, 0, len(raw))
	for _, l := range raw {
		out = append(out, ListingEntry{
			AssetID:   domain.BuildAssetID(l.Code, exchange),
			Symbol:    l.Code,
			Name:      l.Name,
			Exchange:  l.Exchange,
			Country:   l.Country,
			AssetType: mapEODHDType(l.Type),
			Currency:  l.Currency,
			ISIN:      l.ISIN,
		})
	}
	return out, nil
}

func (c *EODHDClient) Search(ctx context.Context, scope domain.MarketScope, query string) ([]ListingEntry, error) {
	body, err := c.get(ctx, "/search/"+url.PathEscape(query), nil)
	if err != nil {
		return nil, err
	}
	var raw []eodhdListing
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &coreerrors.ProviderError{Provider: "eodhd", Op: "Search", Err: fmt.Errorf("%w: decode: %v", coreerrors.ErrTransientProvider, err)}
	}
	out := make([]ListingEntry, 0, len(raw))
	for _, l := range raw {
		out = append(out, ListingEntry{
			AssetID:   domain.BuildAssetID(l.Code, l.Exchange),
			Symbol:    l.Code,
			Name:      l.Name,
			Exchange:  l.Exchange,
			Country:   l.Country,
			AssetType: mapEODHDType(l.Type),
			Currency:  l.Currency,
			ISIN:      l.ISIN,
		})
	}
	return out, nil
}

func (c *EODHDClient) BulkEOD(ctx context.Context, scope domain.MarketScope, exchange, date string) (map[string]domain.Bar, error) {
	params := url.Values{"date": {date}}
	body, err := c.get(ctx, "/eod-bulk-last-day/"+exchange, params)
	if err != nil {
		return nil, err
	}
	var rawNamed []struct {
		eodhdBar
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &rawNamed); err != nil {
		return nil, &coreerrors.ProviderError{Provider: "eodhd", Op: "BulkEOD", Err: fmt.Errorf("%w: decode: %v", coreerrors.ErrTransientProvider, err)}
	}
	out := make(map[string]domain.Bar, len(rawNamed))
	for _, r := range rawNamed {
		assetID := domain.BuildAssetID(r.Code, exchange)
		ts, perr := time.Parse("2006-01-02", r.Date)
		if perr != nil {
			continue
		}
		out[assetID] = domain.Bar{Date: ts, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume}
	}
	return out, nil
}

// Health probes the exchanges-list endpoint with a short deadline.
func (c *EODHDClient) Health(ctx context.Context) HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.get(probeCtx, "/exchanges-list/", nil)
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

func mapEODHDType(t string) domain.AssetType {
	switch t {
	case "Common Stock", "Preferred Stock":
		return domain.AssetEquity
	case "ETF":
		return domain.AssetETF
	case "FUND":
		return domain.AssetFund
	case "Bond":
		return domain.AssetBond
	case "Currency":
		return domain.AssetFX
	default:
		return domain.AssetEquity
	}
}
