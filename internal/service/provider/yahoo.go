package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"StockCast/internal/domain/models"

	"github.com/go-resty/resty/v2"
)

// YahooClient fetches daily bars from a Yahoo-Finance-style chart API.
// B3 tickers (suffix 3, 4 or 11) are mapped to their ".SA" symbols.
type YahooClient struct {
	client *resty.Client
}

// NewYahooClient creates a chart-API client against baseURL.
func NewYahooClient(baseURL string, timeout time.Duration) *YahooClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0")
	// retrying is owned by the Fetcher, not the transport
	c.SetRetryCount(0)
	return &YahooClient{client: c}
}

// yahooSymbol maps an internal instrument code to the provider ticker.
func yahooSymbol(instrument string) string {
	up := strings.ToUpper(instrument)
	if strings.HasSuffix(up, ".SA") {
		return up
	}
	if strings.HasSuffix(up, "3") || strings.HasSuffix(up, "4") || strings.HasSuffix(up, "11") {
		return up + ".SA"
	}
	return up
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
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// DailyBars fetches raw daily bars for the half-open range [from, to).
// Transport failures map to ErrSourceUnavailable, provider throttling to
// ErrRateLimited, and an empty payload to ErrEmptyResult.
func (y *YahooClient) DailyBars(ctx context.Context, instrument string, from, to time.Time) ([]models.Bar, error) {
	resp, err := y.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"interval": "1d",
			"period1":  strconv.FormatInt(from.UTC().Unix(), 10),
			"period2":  strconv.FormatInt(to.UTC().Unix(), 10),
		}).
		Get("/v8/finance/chart/" + url.PathEscape(yahooSymbol(instrument)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrSourceUnavailable, instrument, err)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", models.ErrRateLimited, instrument)
	case resp.StatusCode() != http.StatusOK:
		return nil, fmt.Errorf("%w: %s: status %d", models.ErrSourceUnavailable, instrument, resp.StatusCode())
	}

	var chart chartResponse
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", models.ErrSourceUnavailable, instrument, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s", models.ErrSourceUnavailable, instrument, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrEmptyResult, instrument)
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	now := time.Now().UTC()

	bars := make([]models.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, c := deref(quote.Open, i), deref(quote.High, i), deref(quote.Low, i), deref(quote.Close, i)
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // null bars (holidays etc.)
		}
		day := time.Unix(ts, 0).UTC()
		bars = append(bars, models.Bar{
			Instrument: instrument,
			Date:       time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
			Open:       o,
			High:       h,
			Low:        l,
			Close:      c,
			Volume:     deref(quote.Volume, i),
			FetchedAt:  now,
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrEmptyResult, instrument)
	}
	return bars, nil
}

func deref(xs []*float64, i int) float64 {
	if i >= len(xs) || xs[i] == nil {
		return 0
	}
	return *xs[i]
}
