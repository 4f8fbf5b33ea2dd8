package services

import (
	"context"
	"fmt"

	"crypto-exchange-bot/internal/config"
	"crypto-exchange-bot/internal/metrics"
	"crypto-exchange-bot/internal/models"

	"github.com/shopspring/decimal"
)

// AmountUnit tells which side of the pair the user typed the amount in
type AmountUnit string

const (
	UnitAsset AmountUnit = "asset"
	UnitFiat  AmountUnit = "fiat"
)

// Other returns the opposite unit
func (u AmountUnit) Other() AmountUnit {
	if u == UnitFiat {
		return UnitAsset
	}
	return UnitFiat
}

const (
	assetPlaces = 8
	fiatPlaces  = 2
)

var hundred = decimal.NewFromInt(100)

// FeeSchedule holds the fee knobs applied to every quote
type FeeSchedule struct {
	ServiceCommissionPercent decimal.Decimal
	NetworkFee               decimal.Decimal
}

// QuoteRequest is what the user asked for
type QuoteRequest struct {
	Action      models.OrderAction
	Asset       string
	Amount      decimal.Decimal
	Unit        AmountUnit
	PromoActive bool
}

// Quote is a priced request. FiatAmount is the pre-fee base.
type Quote struct {
	Action          models.OrderAction `json:"action"`
	Asset           string             `json:"asset"`
	Unit            AmountUnit         `json:"unit"`
	Rate            decimal.Decimal    `json:"rate"`
	AssetAmount     decimal.Decimal    `json:"asset_amount"`
	FiatAmount      decimal.Decimal    `json:"fiat_amount"`
	ServiceFee      decimal.Decimal    `json:"service_fee"`
	NetworkFee      decimal.Decimal    `json:"network_fee"`
	SettlementTotal decimal.Decimal    `json:"settlement_total"`
	PromoApplied    bool               `json:"promo_applied"`
}

// ComputeQuote prices a request at the given rate. Sell payouts are net of
// fees, buy payments are gross of fees; an active promo waives both fees.
func ComputeQuote(req QuoteRequest, rate decimal.Decimal, fees FeeSchedule) (Quote, error) {
	if !req.Action.Valid() {
		return Quote{}, fmt.Errorf("unknown action %q", req.Action)
	}
	if !rate.IsPositive() {
		return Quote{}, ErrRateUnavailable
	}
	if !req.Amount.IsPositive() {
		return Quote{}, ErrInvalidAmount
	}

	q := Quote{
		Action:       req.Action,
		Asset:        req.Asset,
		Unit:         req.Unit,
		Rate:         rate,
		PromoApplied: req.PromoActive,
	}

	if req.Unit == UnitFiat {
		q.FiatAmount = req.Amount.Round(fiatPlaces)
		q.AssetAmount = req.Amount.Div(rate).Round(assetPlaces)
	} else {
		q.AssetAmount = req.Amount.Round(assetPlaces)
		q.FiatAmount = req.Amount.Mul(rate).Round(fiatPlaces)
	}

	if req.PromoActive {
		q.ServiceFee = decimal.Zero
		q.NetworkFee = decimal.Zero
	} else {
		q.ServiceFee = q.FiatAmount.Mul(fees.ServiceCommissionPercent).Div(hundred).Round(fiatPlaces)
		q.NetworkFee = fees.NetworkFee.Round(fiatPlaces)
	}

	totalFees := q.ServiceFee.Add(q.NetworkFee)
	if req.Action == models.ActionSell {
		q.SettlementTotal = q.FiatAmount.Sub(totalFees)
	} else {
		q.SettlementTotal = q.FiatAmount.Add(totalFees)
	}
	if q.SettlementTotal.IsNegative() {
		q.SettlementTotal = decimal.Zero
	}
	return q, nil
}

// QuoteService prices requests against the live rate oracle
type QuoteService struct {
	rates RateSource
	fees  FeeSchedule
}

func NewQuoteService(rates RateSource, cfg config.ExchangeConfig) *QuoteService {
	return &QuoteService{
		rates: rates,
		fees: FeeSchedule{
			ServiceCommissionPercent: cfg.ServiceCommissionPercent,
			NetworkFee:               cfg.NetworkFee,
		},
	}
}

// Rate exposes the oracle so prompts can show the current price
func (s *QuoteService) Rate(ctx context.Context, asset string) (decimal.Decimal, error) {
	return s.rates.GetRate(ctx, asset)
}

// Fees returns the configured fee schedule
func (s *QuoteService) Fees() FeeSchedule {
	return s.fees
}

// Quote resolves the rate first and fails without quoting when it is unavailable
func (s *QuoteService) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if !models.IsSupportedAsset(req.Asset) {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnsupportedAsset, req.Asset)
	}
	rate, err := s.rates.GetRate(ctx, req.Asset)
	if err != nil {
		return Quote{}, err
	}
	q, err := ComputeQuote(req, rate, s.fees)
	if err != nil {
		return Quote{}, err
	}
	metrics.Exchange().ObserveQuote(string(req.Action), req.Asset)
	return q, nil
}
