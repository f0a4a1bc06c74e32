package rate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"washdesk/internal/domain"
)

// Fetcher reads the current rate from the external feed.
type Fetcher interface {
	Fetch(ctx context.Context) (domain.RateSnapshot, error)
}

// Store keeps the last known good snapshot across restarts.
type Store interface {
	Save(ctx context.Context, snap domain.RateSnapshot) error
	Load(ctx context.Context, pair string) (domain.RateSnapshot, bool, error)
}

// Provider serves the cached snapshot to payment recording. Readers never
// wait on a refresh once a snapshot exists; only a cold cache fetches
// inline, bounded by the fetch timeout.
type Provider struct {
	fetcher      Fetcher
	store        Store
	pair         string
	fetchTimeout time.Duration
	staleAfter   time.Duration
	logger       *zap.Logger
	now          func() time.Time

	current     atomic.Pointer[domain.RateSnapshot]
	invalidated atomic.Bool
	group       singleflight.Group
}

type Options struct {
	Pair         string
	FetchTimeout time.Duration
	// StaleAfter is the age past which a snapshot is reported stale.
	StaleAfter time.Duration
}

// NewProvider builds a provider; store may be nil.
func NewProvider(fetcher Fetcher, store Store, opts Options, logger *zap.Logger) *Provider {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 10 * time.Minute
	}
	return &Provider{
		fetcher:      fetcher,
		store:        store,
		pair:         opts.Pair,
		fetchTimeout: opts.FetchTimeout,
		staleAfter:   opts.StaleAfter,
		logger:       logger,
		now:          time.Now,
	}
}

// Current returns the snapshot to use for a payment. ErrRateUnavailable
// means no snapshot has ever been obtained.
func (p *Provider) Current(ctx context.Context) (domain.RateSnapshot, error) {
	if snap := p.current.Load(); snap != nil {
		return *snap, nil
	}

	// Waiters share the flight, so one caller going away must not fail it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := p.group.Do("cold", func() (any, error) {
		if snap := p.current.Load(); snap != nil {
			return *snap, nil
		}
		if err := p.Refresh(shared); err == nil {
			return *p.current.Load(), nil
		}
		if snap, ok := p.loadStored(shared); ok {
			return snap, nil
		}
		return nil, domain.ErrRateUnavailable
	})
	if err != nil {
		return domain.RateSnapshot{}, err
	}
	return v.(domain.RateSnapshot), nil
}

// Refresh fetches a new snapshot. On failure the previous snapshot stays.
func (p *Provider) Refresh(ctx context.Context) error {
	_, err, _ := p.group.Do("refresh", func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()

		snap, err := p.fetcher.Fetch(fetchCtx)
		if err == nil && !snap.Valid() {
			err = fmt.Errorf("non-positive average %s", snap.Average)
		}
		if err != nil {
			p.logger.Warn("rate fetch failed, keeping last known snapshot",
				zap.String("pair", p.pair), zap.Error(err))
			return nil, err
		}

		p.current.Store(&snap)
		p.invalidated.Store(false)
		p.logger.Info("rate refreshed",
			zap.String("pair", snap.Pair()),
			zap.String("average", snap.Average.String()),
			zap.String("source", snap.Source))

		if p.store != nil {
			saveCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
			defer cancel()
			if err := p.store.Save(saveCtx, snap); err != nil {
				p.logger.Warn("rate snapshot not persisted", zap.Error(err))
			}
		}
		return nil, nil
	})
	return err
}

// Warm primes the cache at startup, falling back to the stored snapshot.
func (p *Provider) Warm(ctx context.Context) error {
	if err := p.Refresh(ctx); err == nil {
		return nil
	}
	if _, ok := p.loadStored(ctx); ok {
		return nil
	}
	return domain.ErrRateUnavailable
}

// Invalidate marks the snapshot for replacement. It keeps being served
// until a refresh succeeds.
func (p *Provider) Invalidate() {
	p.invalidated.Store(true)
	go p.refreshDetached()
}

// Stale reports whether snap is older than the configured threshold.
func (p *Provider) Stale(snap domain.RateSnapshot) bool {
	return p.invalidated.Load() || snap.Age(p.now()) > p.staleAfter
}

func (p *Provider) refreshDetached() {
	ctx, cancel := context.WithTimeout(context.Background(), p.fetchTimeout)
	defer cancel()
	_ = p.Refresh(ctx)
}

func (p *Provider) loadStored(ctx context.Context) (domain.RateSnapshot, bool) {
	if p.store == nil {
		return domain.RateSnapshot{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()
	snap, ok, err := p.store.Load(ctx, p.pair)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Warn("stored rate snapshot unreadable", zap.Error(err))
		}
		return domain.RateSnapshot{}, false
	}
	if !ok || !snap.Valid() {
		return domain.RateSnapshot{}, false
	}
	// Another goroutine may have fetched meanwhile; keep the newer one.
	p.current.CompareAndSwap(nil, &snap)
	p.logger.Info("using stored rate snapshot", zap.String("pair", snap.Pair()), zap.Time("last_updated", snap.LastUpdated))
	return *p.current.Load(), true
}
