package services

import (
	"context"
	"testing"

	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/testutil"
)

func seedReferrals(b *testing.B, f *storeFixture, referrerID int64, count int) {
	b.Helper()
	users := []models.User{{ID: referrerID}}
	earnings := make([]models.ReferralEarning, 0, count)
	for i := 0; i < count; i++ {
		id := referrerID + int64(i) + 1
		users = append(users, models.User{ID: id, ReferrerID: &referrerID})
		earnings = append(earnings, models.ReferralEarning{
			ReferrerID: referrerID,
			ReferralID: id,
			OrderID:    uint(i + 1),
			Amount:     dec("12.50"),
		})
	}
	if err := f.db.CreateInBatches(users, 200).Error; err != nil {
		b.Fatalf("seed users: %v", err)
	}
	if err := f.db.CreateInBatches(earnings, 200).Error; err != nil {
		b.Fatalf("seed earnings: %v", err)
	}
}

func BenchmarkGetReferralStats(b *testing.B) {
	db := testutil.NewDB(b)
	f := &storeFixture{db: db, referral: NewReferralService(db, testExchange)}
	seedReferrals(b, f, 1, 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.referral.GetReferralStats(context.Background(), 1); err != nil {
			b.Fatal(err)
		}
	}
}
