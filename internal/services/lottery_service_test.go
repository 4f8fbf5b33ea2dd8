package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crypto-exchange-bot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrizeTableDraw(t *testing.T) {
	table, err := NewPrizeTable(DefaultPrizes)
	require.NoError(t, err)

	cases := []struct {
		r    float64
		want string
	}{
		{0, "1"},
		{0.7999, "1"},
		{0.8001, "3"},
		{0.8999, "3"},
		{0.9001, "7"},
		{0.975, "10"},
		{0.99998, "10"},
		{0.999995, "100"},
		{0.9999999999, "100"},
	}
	for _, tc := range cases {
		assertDecimal(t, tc.want, table.Draw(tc.r), "r=%v", tc.r)
	}
}

func TestPrizeTableRelativeWeights(t *testing.T) {
	table, err := NewPrizeTable([]Prize{
		{Amount: decimal.NewFromInt(5), Weight: 1},
		{Amount: decimal.NewFromInt(0), Weight: 0},
		{Amount: decimal.NewFromInt(50), Weight: 3},
	})
	require.NoError(t, err)
	assert.Len(t, table.Prizes(), 2)
	assertDecimal(t, "5", table.Draw(0.2))
	assertDecimal(t, "50", table.Draw(0.25))

	_, err = NewPrizeTable(nil)
	assert.Error(t, err)
	_, err = NewPrizeTable([]Prize{{Amount: decimal.NewFromInt(1), Weight: -1}})
	assert.Error(t, err)
}

func TestLoadPrizeTableFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prizes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prizes:\n  - amount: \"2.5\"\n    weight: 1\n  - amount: \"25\"\n    weight: 1\n"), 0o600))

	table, err := LoadPrizeTable(path)
	require.NoError(t, err)
	assertDecimal(t, "2.5", table.Draw(0.1))
	assertDecimal(t, "25", table.Draw(0.9))

	table, err = LoadPrizeTable("")
	require.NoError(t, err)
	assert.Len(t, table.Prizes(), len(DefaultPrizes))

	_, err = ParsePrizeTable([]byte("prizes:\n  - amount: lots\n    weight: 1\n"))
	assert.Error(t, err)
}

func newLotteryFixture(t *testing.T) (*storeFixture, *LotteryService, *time.Time) {
	t.Helper()
	f := newStoreFixture(t)
	table, err := NewPrizeTable(DefaultPrizes)
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := NewLotteryService(f.db, table)
	svc.now = func() time.Time { return now }
	svc.random = func() (float64, error) { return 0.85, nil }
	return f, svc, &now
}

func TestPlayWithoutTicketDoesNotMutate(t *testing.T) {
	f, svc, _ := newLotteryFixture(t)
	f.user(t, 1, nil)

	_, err := svc.Play(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrNoTicket))

	u := f.reload(t, 1)
	assert.Nil(t, u.LastPlay)
	assertDecimal(t, "0", u.ReferralBalance)
}

func TestPlayCreditsBalanceAndStartsCooldown(t *testing.T) {
	f, svc, now := newLotteryFixture(t)
	f.user(t, 1, nil)

	status, err := svc.MaybeGrantTicket(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, status.TicketGranted)
	assert.True(t, status.CanPlay)

	prize, err := svc.Play(context.Background(), 1)
	require.NoError(t, err)
	assertDecimal(t, "3", prize)
	played := f.reload(t, 1)
	assertDecimal(t, "3", played.ReferralBalance)
	require.NotNil(t, played.LastPlay)

	*now = now.Add(time.Hour)
	_, err = svc.Play(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrLotteryCooldown))
	after := f.reload(t, 1)
	assertDecimal(t, "3", after.ReferralBalance)
	require.NotNil(t, after.LastPlay)
	assert.True(t, played.LastPlay.Equal(*after.LastPlay))

	status, err = svc.Status(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, status.CanPlay)
	assert.Equal(t, 23*time.Hour, status.NextPlayIn)
}

func TestTicketGrantedOncePerWindow(t *testing.T) {
	f, svc, now := newLotteryFixture(t)
	f.user(t, 1, nil)

	status, err := svc.MaybeGrantTicket(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, status.TicketGranted)

	*now = now.Add(23 * time.Hour)
	status, err = svc.MaybeGrantTicket(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, status.TicketGranted)
	assert.True(t, status.HasTicket)

	*now = now.Add(2 * time.Hour)
	status, err = svc.Status(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, status.HasTicket)

	_, err = svc.Play(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrNoTicket))

	status, err = svc.MaybeGrantTicket(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, status.TicketGranted)
}

func TestPlayAgainAfterWindow(t *testing.T) {
	f, svc, now := newLotteryFixture(t)
	f.user(t, 1, nil)

	_, err := svc.MaybeGrantTicket(context.Background(), 1)
	require.NoError(t, err)
	_, err = svc.Play(context.Background(), 1)
	require.NoError(t, err)

	*now = now.Add(LotteryWindow + time.Minute)
	_, err = svc.MaybeGrantTicket(context.Background(), 1)
	require.NoError(t, err)
	_, err = svc.Play(context.Background(), 1)
	require.NoError(t, err)

	assertDecimal(t, "6", f.reload(t, 1).ReferralBalance)
	var plays int64
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ? AND last_play IS NOT NULL", 1).Count(&plays).Error)
	assert.Equal(t, int64(1), plays)
}
