package conversation

import (
	"context"
	"testing"
	"time"

	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/services"
	"crypto-exchange-bot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeRoundTrip(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Load(ctx, 5)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	q := sampleQuote()
	in := Session{
		UserID:        5,
		State:         StateAwaitingFinalConfirm,
		Action:        models.ActionSell,
		Asset:         models.AssetBTC,
		Unit:          services.UnitAsset,
		Quote:         &q,
		PaymentMethod: models.PaymentOperator,
		Requisites:    "+7 999, Tinkoff",
	}
	require.NoError(t, store.Save(ctx, in))

	out, err := store.Load(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, in.State, out.State)
	assert.Equal(t, in.Requisites, out.Requisites)
	assert.Equal(t, in.PaymentMethod, out.PaymentMethod)
	require.NotNil(t, out.Quote)
	assert.True(t, q.SettlementTotal.Equal(out.Quote.SettlementTotal))
	assert.False(t, out.UpdatedAt.IsZero())

	// overwrite
	require.NoError(t, store.Save(ctx, out.Reset()))
	out, err = store.Load(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, out.State)
	assert.Nil(t, out.Quote)

	require.NoError(t, store.Delete(ctx, 5))
	_, err = store.Load(ctx, 5)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore(t *testing.T) {
	storeRoundTrip(t, NewMemoryStore())
}

func TestGormStore(t *testing.T) {
	storeRoundTrip(t, NewGormStore(testutil.NewDB(t)))
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, NewSession(1)))
	require.NoError(t, store.Save(ctx, NewSession(2)))

	removed, remaining := store.Sweep(time.Now().Add(-time.Hour))
	assert.Equal(t, 0, removed)
	assert.Equal(t, 2, remaining)

	removed, remaining = store.Sweep(time.Now().Add(time.Second))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, remaining)
}

func TestGormStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(testutil.NewDB(t))
	require.NoError(t, store.Save(ctx, NewSession(1)))

	n, err := store.Sweep(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.Sweep(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
