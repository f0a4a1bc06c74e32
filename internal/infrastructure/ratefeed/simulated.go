package ratefeed

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"washdesk/internal/domain"
)

// SimulatedFeed stands in for the external feed during development. It
// drifts around a base rate and fails a share of calls so the fallback
// path gets exercised.
type SimulatedFeed struct {
	mu        sync.Mutex
	base      domain.Currency
	quote     domain.Currency
	average   float64
	spread    float64
	failRatio int
	latency   time.Duration
	rnd       *rand.Rand
}

var ErrFeedUnavailable = errors.New("simulated feed unavailable")

func NewSimulatedFeed(base, quote domain.Currency, average float64, failPercent int) *SimulatedFeed {
	return &SimulatedFeed{
		base:      base,
		quote:     quote,
		average:   average,
		spread:    0.005,
		failRatio: failPercent,
		latency:   20 * time.Millisecond,
		rnd:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 42)),
	}
}

func (f *SimulatedFeed) Fetch(ctx context.Context) (domain.RateSnapshot, error) {
	f.mu.Lock()
	chance := f.rnd.IntN(100)
	drift := 1 + (f.rnd.Float64()-0.5)*0.01
	f.average *= drift
	avg := f.average
	spread := f.spread
	f.mu.Unlock()

	select {
	case <-time.After(f.latency):
	case <-ctx.Done():
		return domain.RateSnapshot{}, ctx.Err()
	}

	if chance < f.failRatio {
		return domain.RateSnapshot{}, ErrFeedUnavailable
	}

	average := decimal.NewFromFloat(avg).Round(4)
	half := average.Mul(decimal.NewFromFloat(spread / 2)).Round(4)
	return domain.RateSnapshot{
		Base:        f.base,
		Quote:       f.quote,
		Buy:         average.Sub(half),
		Sell:        average.Add(half),
		Average:     average,
		Source:      "simulated",
		LastUpdated: time.Now(),
	}, nil
}
