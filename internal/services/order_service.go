package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-exchange-bot/internal/config"
	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/metrics"
	"crypto-exchange-bot/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderDraft is a confirmed conversation ready to become an order
type OrderDraft struct {
	UserID        int64
	Quote         Quote
	PaymentMethod models.PaymentMethod
	Requisites    string
}

// TransitionResult describes what a status transition did
type TransitionResult struct {
	Order         *models.Order
	Earning       *models.ReferralEarning
	PromoConsumed bool
	PromoRefunded bool
}

// OrderFilter narrows admin order listings
type OrderFilter struct {
	Status models.OrderStatus
	UserID int64
	Limit  int
	Offset int
}

// OrderService owns the order status machine and its ledger side effects
type OrderService struct {
	db              *gorm.DB
	fees            FeeSchedule
	referralPercent decimal.Decimal
	now             func() time.Time
}

func NewOrderService(db *gorm.DB, cfg config.ExchangeConfig) *OrderService {
	return &OrderService{
		db: db,
		fees: FeeSchedule{
			ServiceCommissionPercent: cfg.ServiceCommissionPercent,
			NetworkFee:               cfg.NetworkFee,
		},
		referralPercent: cfg.ReferralPercentage,
		now:             time.Now,
	}
}

// CreateOrder inserts a processing order. The user's live promo is moved onto
// the order and cleared in the same transaction, and the "one processing
// order per user" rule is re-checked right before the insert.
func (s *OrderService) CreateOrder(ctx context.Context, draft OrderDraft) (*models.Order, error) {
	var order models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, draft.UserID)
		if err != nil {
			return err
		}

		var active int64
		if err := tx.Model(&models.Order{}).
			Where("user_id = ? AND status = ?", draft.UserID, models.OrderStatusProcessing).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrActiveOrderExists
		}

		quote := draft.Quote
		hasPromo := user.ActivePromo != nil
		if quote.PromoApplied != hasPromo {
			// The promo slot changed after the quote was shown; reprice at the same rate.
			quote, err = ComputeQuote(QuoteRequest{
				Action:      quote.Action,
				Asset:       quote.Asset,
				Amount:      quoteInputAmount(quote),
				Unit:        quote.Unit,
				PromoActive: hasPromo,
			}, quote.Rate, s.fees)
			if err != nil {
				return err
			}
			logger.Log.Warn("promo slot changed before order creation, quote repriced",
				zap.Int64("user_id", draft.UserID), zap.Bool("promo", hasPromo))
		}

		method := draft.PaymentMethod
		if method == "" {
			method = models.PaymentSBP
		}

		order = models.Order{
			UserID:          draft.UserID,
			Action:          quote.Action,
			Asset:           quote.Asset,
			AssetAmount:     quote.AssetAmount,
			Rate:            quote.Rate,
			FiatAmount:      quote.FiatAmount,
			ServiceFee:      quote.ServiceFee,
			NetworkFee:      quote.NetworkFee,
			SettlementTotal: quote.SettlementTotal,
			PaymentMethod:   method,
			Requisites:      strings.TrimSpace(draft.Requisites),
			Status:          models.OrderStatusProcessing,
		}
		if hasPromo {
			code := *user.ActivePromo
			order.PromoCode = &code
		}

		if err := tx.Create(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrActiveOrderExists
			}
			return err
		}

		if hasPromo {
			if err := tx.Model(&models.User{}).Where("id = ?", draft.UserID).
				Update("active_promo", nil).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrActiveOrderExists) || errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	metrics.Exchange().ObserveOrderCreated(string(order.Action), order.Asset)
	logger.Log.Info("order created",
		zap.Uint("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("action", string(order.Action)),
		zap.String("asset", order.Asset),
		zap.String("settlement_total", order.SettlementTotal.String()),
	)
	return &order, nil
}

func quoteInputAmount(q Quote) decimal.Decimal {
	if q.Unit == UnitFiat {
		return q.FiatAmount
	}
	return q.AssetAmount
}

// Complete marks an order completed, consuming its promo snapshot and crediting the referrer
func (s *OrderService) Complete(ctx context.Context, orderID uint) (*TransitionResult, error) {
	return s.Transition(ctx, orderID, models.OrderStatusCompleted)
}

// Reject marks an order rejected and refunds its promo snapshot
func (s *OrderService) Reject(ctx context.Context, orderID uint) (*TransitionResult, error) {
	return s.Transition(ctx, orderID, models.OrderStatusRejected)
}

// CancelByUser lets the owner withdraw a processing order
func (s *OrderService) CancelByUser(ctx context.Context, userID int64, orderID uint) (*TransitionResult, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	return s.Transition(ctx, orderID, models.OrderStatusCancelledByUser)
}

// Transition moves a processing order into a terminal status. A non-processing
// order is left untouched and ErrAlreadyFinalized is returned together with
// the current order. All side effects commit or roll back with the status.
func (s *OrderService) Transition(ctx context.Context, orderID uint, to models.OrderStatus) (*TransitionResult, error) {
	if !to.Terminal() {
		return nil, fmt.Errorf("invalid target status %q", to)
	}

	result := &TransitionResult{}
	var current models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if current.Status != models.OrderStatusProcessing {
			return ErrAlreadyFinalized
		}

		now := s.now()
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", orderID, models.OrderStatusProcessing).
			Updates(map[string]interface{}{
				"status":       to,
				"finalized_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyFinalized
		}

		order := current
		order.Status = to
		order.FinalizedAt = &now
		result.Order = &order

		if to == models.OrderStatusCompleted {
			return s.applyCompletion(tx, &order, result)
		}
		return s.applyRefund(tx, &order, result)
	})

	m := metrics.Exchange()
	if err != nil {
		if errors.Is(err, ErrAlreadyFinalized) {
			m.ObserveTransition(string(to), "noop")
			return &TransitionResult{Order: &current}, ErrAlreadyFinalized
		}
		if errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		logger.Log.Error("order transition failed",
			zap.Uint("order_id", orderID), zap.Int64("user_id", current.UserID),
			zap.String("status", string(to)), zap.Error(err))
		return nil, fmt.Errorf("failed to transition order %d: %w", orderID, err)
	}

	m.ObserveTransition(string(to), "applied")
	logger.Log.Info("order finalized",
		zap.Uint("order_id", orderID),
		zap.Int64("user_id", result.Order.UserID),
		zap.String("status", string(to)),
		zap.Bool("promo_consumed", result.PromoConsumed),
		zap.Bool("promo_refunded", result.PromoRefunded),
	)
	return result, nil
}

func (s *OrderService) applyCompletion(tx *gorm.DB, order *models.Order, result *TransitionResult) error {
	if order.PromoCode != nil {
		used := models.UsedPromoCode{
			UserID:  order.UserID,
			Code:    *order.PromoCode,
			OrderID: order.ID,
		}
		if err := tx.Create(&used).Error; err != nil {
			return fmt.Errorf("record used promo: %w", err)
		}
		if err := tx.Model(&models.PromoCode{}).
			Where("code = ? AND uses_left > 0", *order.PromoCode).
			Update("uses_left", gorm.Expr("uses_left - 1")).Error; err != nil {
			return fmt.Errorf("decrement promo uses: %w", err)
		}
		result.PromoConsumed = true
	}

	user, err := lockUser(tx, order.UserID)
	if err != nil {
		return err
	}
	if user.ReferrerID == nil || !s.referralPercent.IsPositive() {
		return nil
	}

	amount := order.FiatAmount.Mul(s.referralPercent).Div(hundred).Round(fiatPlaces)
	if !amount.IsPositive() {
		return nil
	}

	earning := models.ReferralEarning{
		ReferrerID: *user.ReferrerID,
		ReferralID: user.ID,
		OrderID:    order.ID,
		Amount:     amount,
	}
	if err := tx.Create(&earning).Error; err != nil {
		return fmt.Errorf("record referral earning: %w", err)
	}
	if err := tx.Model(&models.User{}).Where("id = ?", *user.ReferrerID).
		Update("referral_balance", gorm.Expr("referral_balance + ?", amount)).Error; err != nil {
		return fmt.Errorf("credit referrer: %w", err)
	}
	result.Earning = &earning
	return nil
}

func (s *OrderService) applyRefund(tx *gorm.DB, order *models.Order, result *TransitionResult) error {
	if order.PromoCode == nil {
		return nil
	}
	code := *order.PromoCode

	del := tx.Where("order_id = ?", order.ID).Delete(&models.UsedPromoCode{})
	if del.Error != nil {
		return fmt.Errorf("reverse used promo: %w", del.Error)
	}
	if del.RowsAffected > 0 {
		if err := tx.Model(&models.PromoCode{}).
			Where("code = ? AND uses_left < total_uses", code).
			Update("uses_left", gorm.Expr("uses_left + 1")).Error; err != nil {
			return fmt.Errorf("restore promo uses: %w", err)
		}
	}

	// Only refill an empty slot; a promo activated meanwhile wins.
	res := tx.Model(&models.User{}).
		Where("id = ? AND active_promo IS NULL", order.UserID).
		Update("active_promo", code)
	if res.Error != nil {
		return fmt.Errorf("restore promo slot: %w", res.Error)
	}
	result.PromoRefunded = res.RowsAffected > 0
	return nil
}

// GetOrder retrieves an order by id
func (s *OrderService) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetActiveOrder returns the user's processing order or ErrNoActiveOrder
func (s *OrderService) GetActiveOrder(ctx context.Context, userID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.OrderStatusProcessing).
		Order("id DESC").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveOrder
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByRelayChannel finds the order owning a relay channel
func (s *OrderService) GetByRelayChannel(ctx context.Context, channelID int) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Where("relay_channel_id = ?", channelID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SetRelayChannel records the channel opened for an order. A channel is
// bound once and never reassigned.
func (s *OrderService) SetRelayChannel(ctx context.Context, orderID uint, channelID int) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND relay_channel_id IS NULL", orderID).
		Update("relay_channel_id", channelID)
	if res.Error != nil {
		return fmt.Errorf("failed to bind relay channel: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %d already has a relay channel or does not exist", orderID)
	}
	return nil
}

// AttachTxLink stores the user's blockchain transaction link on a processing order
func (s *OrderService) AttachTxLink(ctx context.Context, userID int64, orderID uint, link string) (*models.Order, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, fmt.Errorf("empty transaction link")
	}

	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND user_id = ? AND status = ?", orderID, userID, models.OrderStatusProcessing).
		Update("tx_link", link)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to save transaction link: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNoActiveOrder
	}
	return s.GetOrder(ctx, orderID)
}

// List returns orders newest first with the total matching count
func (s *OrderService) List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var orders []models.Order
	if err := query.Order("id DESC").Limit(limit).Offset(filter.Offset).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListStale returns processing orders created before the cutoff
func (s *OrderService) ListStale(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderStatusProcessing, cutoff).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}
