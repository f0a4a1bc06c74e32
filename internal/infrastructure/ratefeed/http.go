package ratefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"washdesk/internal/domain"
)

// HTTPFeed polls a JSON endpoint returning
// {"buy": "...", "sell": "...", "average": "...", "source": "...", "last_updated": "RFC3339"}.
type HTTPFeed struct {
	url    string
	base   domain.Currency
	quote  domain.Currency
	client *http.Client
}

type feedResponse struct {
	Buy         decimal.Decimal `json:"buy"`
	Sell        decimal.Decimal `json:"sell"`
	Average     decimal.Decimal `json:"average"`
	Source      string          `json:"source"`
	LastUpdated time.Time       `json:"last_updated"`
}

func NewHTTPFeed(url string, base, quote domain.Currency, client *http.Client) *HTTPFeed {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFeed{url: url, base: base, quote: quote, client: client}
}

func (f *HTTPFeed) Fetch(ctx context.Context) (domain.RateSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return domain.RateSnapshot{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.RateSnapshot{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.RateSnapshot{}, fmt.Errorf("unexpected status: %d, body: %s", resp.StatusCode, string(body))
	}

	var res feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return domain.RateSnapshot{}, fmt.Errorf("decode response: %w", err)
	}

	avg := res.Average
	if avg.IsZero() && res.Buy.IsPositive() && res.Sell.IsPositive() {
		avg = res.Buy.Add(res.Sell).Div(decimal.NewFromInt(2))
	}
	updated := res.LastUpdated
	if updated.IsZero() {
		updated = time.Now()
	}
	source := res.Source
	if source == "" {
		source = req.URL.Host
	}

	return domain.RateSnapshot{
		Base:        f.base,
		Quote:       f.quote,
		Buy:         res.Buy,
		Sell:        res.Sell,
		Average:     avg,
		Source:      source,
		LastUpdated: updated,
	}, nil
}
