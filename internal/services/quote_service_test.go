package services

import (
	"context"
	"errors"
	"testing"

	"crypto-exchange-bot/internal/config"
	"crypto-exchange-bot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFees = FeeSchedule{
	ServiceCommissionPercent: decimal.NewFromInt(12),
	NetworkFee:               decimal.NewFromInt(290),
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, expected string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(expected).Equal(got), append([]interface{}{"expected %s, got %s", expected, got.String()}, msgAndArgs...)...)
}

type stubRates struct {
	rate decimal.Decimal
	err  error
}

func (s stubRates) GetRate(ctx context.Context, asset string) (decimal.Decimal, error) {
	return s.rate, s.err
}

func TestComputeQuoteSellWithoutPromo(t *testing.T) {
	q, err := ComputeQuote(QuoteRequest{
		Action: models.ActionSell,
		Asset:  models.AssetBTC,
		Amount: dec("0.01"),
		Unit:   UnitAsset,
	}, dec("5000000"), testFees)
	require.NoError(t, err)

	assertDecimal(t, "0.01", q.AssetAmount)
	assertDecimal(t, "50000", q.FiatAmount)
	assertDecimal(t, "6000", q.ServiceFee)
	assertDecimal(t, "290", q.NetworkFee)
	assertDecimal(t, "43710", q.SettlementTotal)
	assert.False(t, q.PromoApplied)
}

func TestComputeQuoteBuyFiatInputWithPromo(t *testing.T) {
	q, err := ComputeQuote(QuoteRequest{
		Action:      models.ActionBuy,
		Asset:       models.AssetBTC,
		Amount:      dec("10000"),
		Unit:        UnitFiat,
		PromoActive: true,
	}, dec("5000000"), testFees)
	require.NoError(t, err)

	assertDecimal(t, "0.002", q.AssetAmount)
	assertDecimal(t, "10000", q.FiatAmount)
	assertDecimal(t, "0", q.ServiceFee)
	assertDecimal(t, "0", q.NetworkFee)
	assertDecimal(t, "10000", q.SettlementTotal)
}

func TestComputeQuoteFeeDirection(t *testing.T) {
	amounts := []string{"0.0001", "0.01", "1", "250", "10000", "123456.78"}
	for _, unit := range []AmountUnit{UnitAsset, UnitFiat} {
		for _, amount := range amounts {
			for _, promo := range []bool{false, true} {
				sell, err := ComputeQuote(QuoteRequest{Action: models.ActionSell, Asset: "LTC", Amount: dec(amount), Unit: unit, PromoActive: promo}, dec("7321.55"), testFees)
				require.NoError(t, err)
				buy, err := ComputeQuote(QuoteRequest{Action: models.ActionBuy, Asset: "LTC", Amount: dec(amount), Unit: unit, PromoActive: promo}, dec("7321.55"), testFees)
				require.NoError(t, err)

				assert.True(t, sell.SettlementTotal.LessThanOrEqual(sell.FiatAmount), "sell %s %s", amount, unit)
				assert.True(t, buy.SettlementTotal.GreaterThanOrEqual(buy.FiatAmount), "buy %s %s", amount, unit)
				assert.False(t, sell.SettlementTotal.IsNegative())

				if promo {
					assert.True(t, sell.SettlementTotal.Equal(sell.FiatAmount), "promo sell %s %s", amount, unit)
					assert.True(t, buy.SettlementTotal.Equal(buy.FiatAmount), "promo buy %s %s", amount, unit)
				}
			}
		}
	}
}

func TestComputeQuoteClampsSellToZero(t *testing.T) {
	q, err := ComputeQuote(QuoteRequest{Action: models.ActionSell, Asset: "TRX", Amount: dec("10"), Unit: UnitFiat}, dec("20"), testFees)
	require.NoError(t, err)
	assertDecimal(t, "0", q.SettlementTotal)
}

func TestComputeQuoteSymmetry(t *testing.T) {
	rate := dec("5123456.78")
	tolerance := rate.Mul(dec("0.00000001")) // one satoshi worth of fiat

	for _, fiat := range []string{"1000", "10000", "99999.99", "2500000"} {
		byFiat, err := ComputeQuote(QuoteRequest{Action: models.ActionBuy, Asset: "BTC", Amount: dec(fiat), Unit: UnitFiat}, rate, testFees)
		require.NoError(t, err)

		byAsset, err := ComputeQuote(QuoteRequest{Action: models.ActionBuy, Asset: "BTC", Amount: byFiat.AssetAmount, Unit: UnitAsset}, rate, testFees)
		require.NoError(t, err)

		diff := byAsset.FiatAmount.Sub(byFiat.FiatAmount).Abs()
		assert.True(t, diff.LessThanOrEqual(tolerance), "fiat %s drifted by %s", fiat, diff)
	}

	for _, asset := range []string{"0.00012345", "0.5", "3"} {
		byAsset, err := ComputeQuote(QuoteRequest{Action: models.ActionSell, Asset: "BTC", Amount: dec(asset), Unit: UnitAsset}, rate, testFees)
		require.NoError(t, err)

		byFiat, err := ComputeQuote(QuoteRequest{Action: models.ActionSell, Asset: "BTC", Amount: byAsset.FiatAmount, Unit: UnitFiat}, rate, testFees)
		require.NoError(t, err)

		diff := byFiat.AssetAmount.Sub(byAsset.AssetAmount).Abs()
		assert.True(t, diff.LessThanOrEqual(dec("0.00000001")), "asset %s drifted by %s", asset, diff)
	}
}

func TestComputeQuoteRejectsBadInput(t *testing.T) {
	_, err := ComputeQuote(QuoteRequest{Action: models.ActionBuy, Asset: "BTC", Amount: dec("0"), Unit: UnitAsset}, dec("1"), testFees)
	assert.True(t, errors.Is(err, ErrInvalidAmount))

	_, err = ComputeQuote(QuoteRequest{Action: models.ActionBuy, Asset: "BTC", Amount: dec("1"), Unit: UnitAsset}, decimal.Zero, testFees)
	assert.True(t, errors.Is(err, ErrRateUnavailable))

	_, err = ComputeQuote(QuoteRequest{Action: "swap", Asset: "BTC", Amount: dec("1"), Unit: UnitAsset}, dec("1"), testFees)
	assert.Error(t, err)
}

func TestQuoteServiceStopsWhenRateUnavailable(t *testing.T) {
	svc := NewQuoteService(stubRates{err: ErrRateUnavailable}, config.ExchangeConfig{
		ServiceCommissionPercent: dec("12"),
		NetworkFee:               dec("290"),
	})

	_, err := svc.Quote(context.Background(), QuoteRequest{Action: models.ActionBuy, Asset: "BTC", Amount: dec("1"), Unit: UnitAsset})
	assert.True(t, errors.Is(err, ErrRateUnavailable))
}

func TestQuoteServiceUsesOracleRate(t *testing.T) {
	svc := NewQuoteService(stubRates{rate: dec("5000000")}, config.ExchangeConfig{
		ServiceCommissionPercent: dec("12"),
		NetworkFee:               dec("290"),
	})

	q, err := svc.Quote(context.Background(), QuoteRequest{Action: models.ActionSell, Asset: "BTC", Amount: dec("0.01"), Unit: UnitAsset})
	require.NoError(t, err)
	assertDecimal(t, "43710", q.SettlementTotal)
}
