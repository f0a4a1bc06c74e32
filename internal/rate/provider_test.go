package rate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"washdesk/internal/domain"
)

type fakeFetcher struct {
	mu    sync.Mutex
	snap  domain.RateSnapshot
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context) (domain.RateSnapshot, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.RateSnapshot{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.err
}

func (f *fakeFetcher) set(snap domain.RateSnapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap, f.err = snap, err
}

type memoryStore struct {
	mu    sync.Mutex
	snaps map[string]domain.RateSnapshot
}

func newMemoryStore() *memoryStore {
	return &memoryStore{snaps: make(map[string]domain.RateSnapshot)}
}

func (m *memoryStore) Save(ctx context.Context, snap domain.RateSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.Pair()] = snap
	return nil
}

func (m *memoryStore) Load(ctx context.Context, pair string) (domain.RateSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[pair]
	return snap, ok, nil
}

func withAverage(avg string) domain.RateSnapshot {
	s := sampleSnapshot()
	s.Average = decimal.RequireFromString(avg)
	return s
}

func newTestProvider(f Fetcher, s Store) *Provider {
	return NewProvider(f, s, Options{Pair: "USD/VES", FetchTimeout: time.Second, StaleAfter: 10 * time.Minute}, zap.NewNop())
}

func TestProvider_ColdFetch(t *testing.T) {
	f := &fakeFetcher{snap: withAverage("240")}
	store := newMemoryStore()
	p := newTestProvider(f, store)

	snap, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Average.Equal(decimal.NewFromInt(240)))

	_, ok, _ := store.Load(context.Background(), "USD/VES")
	assert.True(t, ok, "fresh snapshot is persisted")
}

func TestProvider_UnavailableWhenNeverObtained(t *testing.T) {
	f := &fakeFetcher{err: errors.New("feed down")}
	p := newTestProvider(f, nil)

	_, err := p.Current(context.Background())
	assert.ErrorIs(t, err, domain.ErrRateUnavailable)
	assert.ErrorIs(t, p.Warm(context.Background()), domain.ErrRateUnavailable)
}

func TestProvider_FallsBackToLastKnownGood(t *testing.T) {
	f := &fakeFetcher{snap: withAverage("240")}
	p := newTestProvider(f, nil)
	require.NoError(t, p.Refresh(context.Background()))

	f.set(domain.RateSnapshot{}, errors.New("timeout"))
	assert.Error(t, p.Refresh(context.Background()))

	snap, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Average.Equal(decimal.NewFromInt(240)))
}

func TestProvider_ColdFallsBackToStore(t *testing.T) {
	store := newMemoryStore()
	require.NoError(t, store.Save(context.Background(), withAverage("250")))
	f := &fakeFetcher{err: errors.New("feed down")}
	p := newTestProvider(f, store)

	require.NoError(t, p.Warm(context.Background()))
	snap, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Average.Equal(decimal.NewFromInt(250)))
}

func TestProvider_RejectsInvalidFeedValue(t *testing.T) {
	f := &fakeFetcher{snap: withAverage("0")}
	p := newTestProvider(f, nil)

	assert.Error(t, p.Refresh(context.Background()))
	_, err := p.Current(context.Background())
	assert.ErrorIs(t, err, domain.ErrRateUnavailable)
}

func TestProvider_ColdFetchIsCollapsed(t *testing.T) {
	f := &fakeFetcher{snap: withAverage("240"), delay: 50 * time.Millisecond}
	p := newTestProvider(f, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Current(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestProvider_ColdFetchSurvivesCancelledCaller(t *testing.T) {
	f := &fakeFetcher{snap: withAverage("240"), delay: 200 * time.Millisecond}
	p := newTestProvider(f, nil)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Current(first)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	snap, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Average.Equal(decimal.RequireFromString("240")))
	assert.NoError(t, <-firstErr)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestProvider_ReadersDoNotWaitForRefresh(t *testing.T) {
	f := &fakeFetcher{snap: withAverage("240")}
	p := newTestProvider(f, nil)
	require.NoError(t, p.Refresh(context.Background()))

	f.delay = 300 * time.Millisecond
	f.set(withAverage("260"), nil)
	go p.Refresh(context.Background())
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	snap, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.True(t, snap.Average.Equal(decimal.NewFromInt(240)))
}

func TestProvider_Invalidate(t *testing.T) {
	f := &fakeFetcher{snap: withAverage("240")}
	p := newTestProvider(f, nil)
	require.NoError(t, p.Refresh(context.Background()))

	f.set(withAverage("245"), nil)
	p.Invalidate()

	assert.Eventually(t, func() bool {
		snap, err := p.Current(context.Background())
		return err == nil && snap.Average.Equal(decimal.NewFromInt(245))
	}, time.Second, 10*time.Millisecond)
}

func TestProvider_Stale(t *testing.T) {
	p := newTestProvider(&fakeFetcher{}, nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	snap := sampleSnapshot()
	assert.False(t, p.Stale(snap))
	p.now = func() time.Time { return fixed.Add(11 * time.Minute) }
	assert.True(t, p.Stale(snap))
}
