package marketdata

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

	"github.com/aristath/riskengine/internal/models"
	"github.com/aristath/riskengine/internal/retry"
)

// YahooProvider implements Provider against Yahoo Finance's unofficial
// query endpoints: v7/finance/quote for spot/dividend yield and
// v8/finance/chart for OHLCV history. It never manages credentials of
// its own; CachingSource is responsible for retry/backoff and fallback.
type YahooProvider struct {
	client *http.Client
	log    zerolog.Logger
}

// NewYahooProvider builds a Yahoo Finance-backed Provider.
func NewYahooProvider(log zerolog.Logger) *YahooProvider {
	return &YahooProvider{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.With().Str("provider", "yahoo").Logger(),
	}
}

// FetchLatestPrice returns symbol's current or last regular-market price.
func (p *YahooProvider) FetchLatestPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	info, err := p.quote(ctx, symbol)
	if err != nil {
		return 0, time.Time{}, err
	}

	if price := floatField(info, "currentPrice"); price != nil && *price > 0 {
		return *price, time.Now(), nil
	}
	if price := floatField(info, "regularMarketPrice"); price != nil && *price > 0 {
		return *price, time.Now(), nil
	}
	return 0, time.Time{}, fmt.Errorf("yahoo: no valid price for %s", symbol)
}

// FetchHistory returns daily OHLCV bars for symbol within [start, end]
// using Yahoo's chart endpoint (1d interval).
func (p *YahooProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.MarketDataPoint, error) {
	reqURL := fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d",
		url.PathEscape(symbol), start.Unix(), end.Unix())

	body, err := p.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo: decode chart response: %w", err)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no chart data for %s", symbol)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no quote series for %s", symbol)
	}
	quote := result.Indicators.Quote[0]

	points := make([]models.MarketDataPoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		point := models.MarketDataPoint{
			Symbol: symbol,
			Date:   time.Unix(ts, 0).UTC().Format(dateLayout),
			Close:  *quote.Close[i],
		}
		if i < len(quote.Open) && quote.Open[i] != nil {
			point.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			point.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			point.Low = *quote.Low[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			point.Volume = *quote.Volume[i]
		}
		points = append(points, point)
	}
	return points, nil
}

// FetchDividendYield returns symbol's trailing dividend yield as a fraction.
func (p *YahooProvider) FetchDividendYield(ctx context.Context, symbol string) (float64, error) {
	info, err := p.quote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if yield := floatField(info, "dividendYield"); yield != nil {
		return *yield / 100, nil
	}
	return 0, fmt.Errorf("yahoo: no dividend yield for %s", symbol)
}

// FetchRiskFreeRate returns the 10-year Treasury yield (symbol ^TNX) as a
// fraction for date, the conventional proxy for the risk-free rate.
func (p *YahooProvider) FetchRiskFreeRate(ctx context.Context, date time.Time) (float64, error) {
	start := date.AddDate(0, 0, -7)
	history, err := p.FetchHistory(ctx, "^TNX", start, date)
	if err != nil {
		return 0, err
	}
	if len(history) == 0 {
		return 0, fmt.Errorf("yahoo: no treasury yield data available")
	}
	return history[len(history)-1].Close / 100, nil
}

func (p *YahooProvider) quote(ctx context.Context, symbol string) (map[string]interface{}, error) {
	params := url.Values{}
	params.Add("symbols", symbol)
	params.Add("fields", "symbol,regularMarketPrice,currentPrice,dividendYield")
	reqURL := "https://query1.finance.yahoo.com/v7/finance/quote?" + params.Encode()

	body, err := p.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var parsed quoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("yahoo: decode quote response: %w", err)
	}
	if len(parsed.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no quote result for %s", symbol)
	}
	return parsed.QuoteResponse.Result[0], nil
}

func (p *YahooProvider) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("yahoo: request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("yahoo: status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retry.Transient(statusErr)
		}
		return nil, statusErr
	}
	return body, nil
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []map[string]interface{} `json:"result"`
	} `json:"quoteResponse"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

func floatField(info map[string]interface{}, key string) *float64 {
	v, ok := info[key]
	if !ok || v == nil {
		return nil
	}
	switch val := v.(type) {
	case float64:
		return &val
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return &f
		}
	}
	return nil
}
