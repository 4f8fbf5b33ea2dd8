package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-exchange-bot/internal/config"
	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferralStats is the profile view of a user's referral program
type ReferralStats struct {
	Referrals   int64           `json:"referrals"`
	TotalEarned decimal.Decimal `json:"total_earned"`
	Balance     decimal.Decimal `json:"balance"`
	Withdrawals int64           `json:"withdrawals"`
}

type ReferralService struct {
	db            *gorm.DB
	minWithdrawal decimal.Decimal
	now           func() time.Time
}

func NewReferralService(db *gorm.DB, cfg config.ExchangeConfig) *ReferralService {
	return &ReferralService{
		db:            db,
		minWithdrawal: cfg.MinWithdrawalAmount,
		now:           time.Now,
	}
}

// MinWithdrawal returns the configured minimum withdrawal amount
func (s *ReferralService) MinWithdrawal() decimal.Decimal {
	return s.minWithdrawal
}

// GetReferralStats returns referral statistics for a user
func (s *ReferralService) GetReferralStats(ctx context.Context, userID int64) (*ReferralStats, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	stats := &ReferralStats{Balance: user.ReferralBalance}
	if err := db.Model(&models.User{}).Where("referrer_id = ?", userID).Count(&stats.Referrals).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.WithdrawalRequest{}).Where("user_id = ?", userID).Count(&stats.Withdrawals).Error; err != nil {
		return nil, err
	}

	var total decimal.NullDecimal
	row := db.Model(&models.ReferralEarning{}).Where("referrer_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").Row()
	if err := row.Scan(&total); err != nil {
		return nil, fmt.Errorf("sum referral earnings: %w", err)
	}
	stats.TotalEarned = total.Decimal
	return stats, nil
}

// GetReferralEarnings returns all earnings credited to a referrer
func (s *ReferralService) GetReferralEarnings(ctx context.Context, userID int64) ([]models.ReferralEarning, error) {
	var earnings []models.ReferralEarning
	if err := s.db.WithContext(ctx).Where("referrer_id = ?", userID).Order("created_at DESC").Find(&earnings).Error; err != nil {
		return nil, err
	}
	return earnings, nil
}

// RequestWithdrawal snapshots the whole referral balance into a pending
// request and zeroes the balance in the same transaction.
func (s *ReferralService) RequestWithdrawal(ctx context.Context, userID int64) (*models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		if user.ReferralBalance.LessThan(s.minWithdrawal) || !user.ReferralBalance.IsPositive() {
			return ErrInsufficientBalance
		}

		request = models.WithdrawalRequest{
			UserID: userID,
			Amount: user.ReferralBalance,
			Status: models.WithdrawalPending,
		}
		if err := tx.Create(&request).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).
			Update("referral_balance", decimal.Zero).Error
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	logger.Log.Info("withdrawal requested",
		zap.Uint("withdrawal_id", request.ID),
		zap.Int64("user_id", userID),
		zap.String("amount", request.Amount.String()))
	return &request, nil
}

// SetWithdrawalChannel records the relay channel opened for a withdrawal
func (s *ReferralService) SetWithdrawalChannel(ctx context.Context, withdrawalID uint, channelID int) error {
	return s.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Where("id = ?", withdrawalID).
		Update("relay_channel_id", channelID).Error
}

// ResolveWithdrawal marks a pending request paid, or rejected with the
// amount credited back to the balance.
func (s *ReferralService) ResolveWithdrawal(ctx context.Context, withdrawalID uint, paid bool) (*models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&request, withdrawalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWithdrawalNotFound
			}
			return err
		}
		if request.Status != models.WithdrawalPending {
			return ErrWithdrawalNotPending
		}

		status := models.WithdrawalPaid
		if !paid {
			status = models.WithdrawalRejected
		}
		now := s.now()
		if err := tx.Model(&request).Updates(map[string]interface{}{
			"status":      status,
			"resolved_at": now,
		}).Error; err != nil {
			return err
		}
		request.Status = status
		request.ResolvedAt = &now

		if !paid {
			return tx.Model(&models.User{}).Where("id = ?", request.UserID).
				Update("referral_balance", gorm.Expr("referral_balance + ?", request.Amount)).Error
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrWithdrawalNotFound) || errors.Is(err, ErrWithdrawalNotPending) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve withdrawal %d: %w", withdrawalID, err)
	}

	logger.Log.Info("withdrawal resolved",
		zap.Uint("withdrawal_id", request.ID),
		zap.Int64("user_id", request.UserID),
		zap.String("status", string(request.Status)))
	return &request, nil
}

// ListWithdrawals returns requests newest first, optionally by status
func (s *ReferralService) ListWithdrawals(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error) {
	query := s.db.WithContext(ctx).Order("id DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var requests []models.WithdrawalRequest
	if err := query.Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}
