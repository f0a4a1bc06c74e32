package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	o := newOrder(t)
	require.NoError(t, store.CreateOrder(ctx, o))

	got, err := store.FindOrder(ctx, o.ID)
	require.NoError(t, err)
	got.Items[0].ServiceName = "tampered"
	got.Status = "BOGUS"

	again, err := store.FindOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "exterior", again.Items[0].ServiceName)
	assert.NotEqual(t, "BOGUS", string(again.Status))
}
