package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateSnapshot is an immutable exchange rate reading, quoted as units of
// Quote per one unit of Base.
type RateSnapshot struct {
	Base        Currency        `json:"base"`
	Quote       Currency        `json:"quote"`
	Buy         decimal.Decimal `json:"buy"`
	Sell        decimal.Decimal `json:"sell"`
	Average     decimal.Decimal `json:"average"`
	Source      string          `json:"source"`
	LastUpdated time.Time       `json:"last_updated"`
}

func (s RateSnapshot) Pair() string {
	return string(s.Base) + "/" + string(s.Quote)
}

func (s RateSnapshot) Valid() bool {
	return s.Average.IsPositive()
}

// Age is how old the reading is relative to now.
func (s RateSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.LastUpdated)
}
