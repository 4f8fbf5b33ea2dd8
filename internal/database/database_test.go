package database_test

import (
	"errors"
	"testing"

	"crypto-exchange-bot/internal/database"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newOrder(userID int64, status models.OrderStatus) *models.Order {
	return &models.Order{
		UserID:          userID,
		Action:          models.ActionBuy,
		Asset:           models.AssetBTC,
		AssetAmount:     decimal.RequireFromString("0.01"),
		Rate:            decimal.NewFromInt(5000000),
		FiatAmount:      decimal.NewFromInt(50000),
		SettlementTotal: decimal.NewFromInt(56290),
		Status:          status,
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, database.Migrate(db))

	for _, table := range []string{"users", "orders", "promo_codes", "used_promo_codes",
		"referral_earnings", "withdrawal_requests", "settings", "admin_logs", "conversation_sessions"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasColumn(&models.Order{}, "TxLink"))
}

func TestOneProcessingOrderPerUserIndex(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Create(&models.User{ID: 1}).Error)

	require.NoError(t, db.Create(newOrder(1, models.OrderStatusProcessing)).Error)

	err := db.Create(newOrder(1, models.OrderStatusProcessing)).Error
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)

	// terminal orders are not covered by the partial index
	require.NoError(t, db.Create(newOrder(1, models.OrderStatusCompleted)).Error)
	require.NoError(t, db.Create(newOrder(1, models.OrderStatusRejected)).Error)
}
