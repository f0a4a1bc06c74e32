package rate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"washdesk/internal/domain"
)

func sampleSnapshot() domain.RateSnapshot {
	return domain.RateSnapshot{
		Base:        domain.CurrencyCanonical,
		Quote:       domain.CurrencyLocal,
		Buy:         decimal.RequireFromString("239.5"),
		Sell:        decimal.RequireFromString("240.5"),
		Average:     decimal.RequireFromString("240"),
		Source:      "test-feed",
		LastUpdated: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRedisStore_Save(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "")

	snap := sampleSnapshot()
	payload, err := json.Marshal(snap)
	require.NoError(t, err)
	mock.ExpectSet("washdesk:rate:USD/VES", payload, 0).SetVal("OK")

	require.NoError(t, store.Save(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Load(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "")

	payload, err := json.Marshal(sampleSnapshot())
	require.NoError(t, err)
	mock.ExpectGet("washdesk:rate:USD/VES").SetVal(string(payload))

	snap, ok, err := store.Load(context.Background(), "USD/VES")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, snap.Average.Equal(decimal.RequireFromString("240")))
	assert.Equal(t, "test-feed", snap.Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_LoadMissing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "x:")
	mock.ExpectGet("x:USD/VES").RedisNil()

	_, ok, err := store.Load(context.Background(), "USD/VES")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_LoadError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "")
	mock.ExpectGet("washdesk:rate:USD/VES").SetErr(errors.New("connection refused"))

	_, _, err := store.Load(context.Background(), "USD/VES")
	assert.Error(t, err)
}
