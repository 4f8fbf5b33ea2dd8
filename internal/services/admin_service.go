package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-exchange-bot/internal/config"
	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/messenger"
	"crypto-exchange-bot/internal/metrics"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// broadcastAttempts bounds immediate retries per recipient
const broadcastAttempts = 3

// OrderChannels is the operator-side surface touched when an order or
// withdrawal is resolved
type OrderChannels interface {
	MarkFinal(ctx context.Context, order *models.Order, owner string) error
	NotifyChannel(ctx context.Context, channelID int, text string) error
}

type requestIDKey struct{}

// WithRequestID tags ctx so audit rows can be correlated with API requests
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Stats is the admin dashboard summary
type Stats struct {
	Users              int64                        `json:"users"`
	OrdersByStatus     map[models.OrderStatus]int64 `json:"orders_by_status"`
	CompletedVolume    decimal.Decimal              `json:"completed_volume"`
	ActivePromos       int64                        `json:"active_promos"`
	PendingWithdrawals int64                        `json:"pending_withdrawals"`
	ReferralPaid       decimal.Decimal              `json:"referral_paid"`
}

// BroadcastResult reports a finished broadcast
type BroadcastResult struct {
	ID        string `json:"id"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
}

// AdminService runs operator actions: order resolution, broadcasts, promo
// issuance, withdrawals and reporting. Every action lands in admin_logs.
type AdminService struct {
	db       *gorm.DB
	orders   *OrderService
	users    *UserService
	promos   *PromoService
	referral *ReferralService
	msg      messenger.Messenger
	channels OrderChannels
	limiter  *rate.Limiter
}

func NewAdminService(db *gorm.DB, orders *OrderService, users *UserService, promos *PromoService,
	referral *ReferralService, msg messenger.Messenger, channels OrderChannels, cfg config.BroadcastConfig) *AdminService {
	return &AdminService{
		db:       db,
		orders:   orders,
		users:    users,
		promos:   promos,
		referral: referral,
		msg:      msg,
		channels: channels,
		limiter:  rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst),
	}
}

// ConfirmOrder completes a processing order. A second confirm returns the
// stored order with ErrAlreadyFinalized and touches nothing.
func (s *AdminService) ConfirmOrder(ctx context.Context, adminID int64, orderID uint) (*TransitionResult, error) {
	result, err := s.orders.Complete(ctx, orderID)
	if err != nil {
		return result, err
	}

	order := result.Order
	s.notifyUser(ctx, order.UserID, fmt.Sprintf("✅ Your order #%d has been completed. Thank you!", utils.OrderNumber(order.ID)))
	if result.Earning != nil {
		s.notifyUser(ctx, result.Earning.ReferrerID, fmt.Sprintf(
			"🎉 You received %s RUB from a referral's order. It is now on your referral balance.",
			utils.FormatFiat(result.Earning.Amount)))
	}
	s.finalizeChannel(ctx, order, fmt.Sprintf("✅ Order confirmed by admin %d.", adminID))

	s.logAction(ctx, adminID, "CONFIRM_ORDER", "ORDER", &order.ID, map[string]interface{}{
		"user_id":        order.UserID,
		"promo_consumed": result.PromoConsumed,
	})
	return result, nil
}

// RejectOrder rejects a processing order and refunds its promo snapshot
func (s *AdminService) RejectOrder(ctx context.Context, adminID int64, orderID uint) (*TransitionResult, error) {
	result, err := s.orders.Reject(ctx, orderID)
	if err != nil {
		return result, err
	}

	order := result.Order
	text := fmt.Sprintf("❌ Your order #%d has been rejected. Contact support if you have questions.", utils.OrderNumber(order.ID))
	if result.PromoRefunded {
		text += "\nYour promo code has been returned and is active again."
	}
	s.notifyUser(ctx, order.UserID, text)
	s.finalizeChannel(ctx, order, fmt.Sprintf("❌ Order rejected by admin %d.", adminID))

	s.logAction(ctx, adminID, "REJECT_ORDER", "ORDER", &order.ID, map[string]interface{}{
		"user_id":        order.UserID,
		"promo_refunded": result.PromoRefunded,
	})
	return result, nil
}

// CancelOrderForUser runs the user-initiated cancellation and tells the
// operators about it
func (s *AdminService) CancelOrderForUser(ctx context.Context, userID int64, orderID uint) (*TransitionResult, error) {
	result, err := s.orders.CancelByUser(ctx, userID, orderID)
	if err != nil {
		return result, err
	}
	s.finalizeChannel(ctx, result.Order, "🚫 The user cancelled this order.")
	return result, nil
}

func (s *AdminService) finalizeChannel(ctx context.Context, order *models.Order, note string) {
	if order.RelayChannelID == nil || s.channels == nil {
		return
	}

	owner := fmt.Sprintf("user %d", order.UserID)
	if user, err := s.users.GetUserByID(ctx, order.UserID); err == nil {
		owner = utils.DisplayName(user.ID, user.Username, user.FullName)
	}
	if err := s.channels.MarkFinal(ctx, order, owner); err != nil {
		logger.Log.Warn("failed to rename relay channel",
			zap.Uint("order_id", order.ID), zap.Int64("user_id", order.UserID), zap.Error(err))
	}
	if err := s.channels.NotifyChannel(ctx, *order.RelayChannelID, note); err != nil {
		logger.Log.Warn("failed to post channel note",
			zap.Uint("order_id", order.ID), zap.Int64("user_id", order.UserID), zap.Error(err))
	}
}

func (s *AdminService) notifyUser(ctx context.Context, userID int64, text string) {
	if _, err := s.msg.Send(ctx, userID, 0, text, nil); err != nil {
		logger.Log.Warn("failed to notify user", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// ResolveWithdrawal marks a payout request paid or declined and tells the user
func (s *AdminService) ResolveWithdrawal(ctx context.Context, adminID int64, withdrawalID uint, paid bool) (*models.WithdrawalRequest, error) {
	w, err := s.referral.ResolveWithdrawal(ctx, withdrawalID, paid)
	if err != nil {
		return nil, err
	}

	if paid {
		s.notifyUser(ctx, w.UserID, fmt.Sprintf("💸 Your withdrawal of %s RUB has been paid.", utils.FormatFiat(w.Amount)))
	} else {
		s.notifyUser(ctx, w.UserID, fmt.Sprintf("❌ Your withdrawal of %s RUB was declined. The amount is back on your balance.", utils.FormatFiat(w.Amount)))
	}
	if w.RelayChannelID != nil && s.channels != nil {
		if err := s.channels.NotifyChannel(ctx, *w.RelayChannelID, fmt.Sprintf("Withdrawal marked %s by admin %d.", w.Status, adminID)); err != nil {
			logger.Log.Warn("failed to post withdrawal note", zap.Uint("withdrawal_id", w.ID), zap.Error(err))
		}
	}

	s.logAction(ctx, adminID, "RESOLVE_WITHDRAWAL", "WITHDRAWAL", &w.ID, map[string]interface{}{
		"user_id": w.UserID,
		"status":  w.Status,
		"amount":  w.Amount.String(),
	})
	return w, nil
}

// Broadcast sends text to every known user, throttled by the limiter. Each
// recipient gets a few immediate attempts; failures are counted, not queued.
func (s *AdminService) Broadcast(ctx context.Context, adminID int64, text string) (*BroadcastResult, error) {
	if text == "" {
		return nil, fmt.Errorf("broadcast text is empty")
	}

	ids, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}

	result := &BroadcastResult{ID: uuid.NewString()}
	m := metrics.Exchange()
	logger.Log.Info("broadcast started", zap.String("broadcast_id", result.ID), zap.Int("recipients", len(ids)))

	for _, userID := range ids {
		var sendErr error
		for attempt := 0; attempt < broadcastAttempts; attempt++ {
			if err := s.limiter.Wait(ctx); err != nil {
				return result, err
			}
			if _, sendErr = s.msg.Send(ctx, userID, 0, text, nil); sendErr == nil {
				break
			}
		}
		if sendErr != nil {
			result.Failed++
			m.ObserveBroadcast("failed")
			logger.Log.Warn("broadcast delivery failed",
				zap.String("broadcast_id", result.ID),
				zap.Int64("user_id", userID),
				zap.Error(sendErr))
			continue
		}
		result.Delivered++
		m.ObserveBroadcast("delivered")
	}

	s.logAction(ctx, adminID, "BROADCAST", "BROADCAST", nil, map[string]interface{}{
		"broadcast_id": result.ID,
		"delivered":    result.Delivered,
		"failed":       result.Failed,
	})
	logger.Log.Info("broadcast finished",
		zap.String("broadcast_id", result.ID),
		zap.Int("delivered", result.Delivered),
		zap.Int("failed", result.Failed))
	return result, nil
}

// CreatePromo issues a promo code on behalf of an admin
func (s *AdminService) CreatePromo(ctx context.Context, adminID int64, code string, uses int) (*models.PromoCode, error) {
	promo, err := s.promos.CreatePromo(ctx, code, uses)
	if err != nil {
		return nil, err
	}
	s.logAction(ctx, adminID, "CREATE_PROMO", "PROMO", &promo.ID, map[string]interface{}{
		"code": promo.Code,
		"uses": uses,
	})
	return promo, nil
}

// Stats computes the dashboard summary
func (s *AdminService) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	stats := &Stats{OrdersByStatus: map[models.OrderStatus]int64{}}

	if err := db.Model(&models.User{}).Count(&stats.Users).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		Status models.OrderStatus
		Count  int64
	}
	if err := db.Model(&models.Order{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.OrdersByStatus[r.Status] = r.Count
	}

	var volume, paid decimal.NullDecimal
	if err := db.Model(&models.Order{}).Where("status = ?", models.OrderStatusCompleted).
		Select("COALESCE(SUM(fiat_amount), 0)").Row().Scan(&volume); err != nil {
		return nil, fmt.Errorf("sum completed volume: %w", err)
	}
	if err := db.Model(&models.ReferralEarning{}).
		Select("COALESCE(SUM(amount), 0)").Row().Scan(&paid); err != nil {
		return nil, fmt.Errorf("sum referral earnings: %w", err)
	}
	stats.CompletedVolume = volume.Decimal
	stats.ReferralPaid = paid.Decimal

	if err := db.Model(&models.PromoCode{}).Where("is_active = ? AND uses_left > 0", true).Count(&stats.ActivePromos).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.WithdrawalRequest{}).Where("status = ?", models.WithdrawalPending).Count(&stats.PendingWithdrawals).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// LogAdminAction logs an admin action
func (s *AdminService) LogAdminAction(ctx context.Context, adminID int64, action string, resourceType string,
	resourceID *uint, details map[string]interface{}) error {

	adminLog := models.AdminLog{
		AdminID:      adminID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    requestID(ctx),
		Details:      models.JSONB(details),
		CreatedAt:    time.Now(),
	}
	return s.db.WithContext(ctx).Create(&adminLog).Error
}

func (s *AdminService) logAction(ctx context.Context, adminID int64, action, resourceType string, resourceID *uint, details map[string]interface{}) {
	if err := s.LogAdminAction(ctx, adminID, action, resourceType, resourceID, details); err != nil {
		logger.Log.Error("failed to write admin log",
			zap.Int64("admin_id", adminID), zap.String("action", action), zap.Error(err))
	}
}

// GetAdminLogs returns admin activity logs
func (s *AdminService) GetAdminLogs(ctx context.Context, limit int, offset int) ([]models.AdminLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var logs []models.AdminLog
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// IsConflict reports whether err is a user-visible, non-retryable rejection
func IsConflict(err error) bool {
	for _, target := range []error{
		ErrActiveOrderExists, ErrAlreadyFinalized, ErrNotOrderOwner, ErrNoActiveOrder,
		ErrPromoAlreadyActive, ErrPromoAlreadyRedeemed, ErrPromoInvalid, ErrPromoExists,
		ErrInsufficientBalance, ErrWithdrawalNotPending, ErrNoTicket, ErrLotteryCooldown,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
