package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PromoService issues promo codes and manages the user's single live promo slot
type PromoService struct {
	db *gorm.DB
}

func NewPromoService(db *gorm.DB) *PromoService {
	return &PromoService{db: db}
}

// NormalizeCode canonicalizes user-typed codes
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreatePromo issues a code with the given number of uses. An empty code
// gets a generated one.
func (s *PromoService) CreatePromo(ctx context.Context, code string, uses int) (*models.PromoCode, error) {
	if uses < 1 {
		return nil, fmt.Errorf("uses must be at least 1")
	}

	code = NormalizeCode(code)
	if code == "" {
		generated, err := utils.GeneratePromoCode()
		if err != nil {
			return nil, err
		}
		code = generated
	}
	if len(code) > 64 || strings.ContainsAny(code, " \t\n,") {
		return nil, fmt.Errorf("invalid promo code %q", code)
	}

	promo := models.PromoCode{
		Code:      code,
		TotalUses: uses,
		UsesLeft:  uses,
		IsActive:  true,
	}
	if err := s.db.WithContext(ctx).Create(&promo).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrPromoExists
		}
		return nil, fmt.Errorf("failed to create promo code: %w", err)
	}

	logger.Log.Info("promo code created", zap.String("code", code), zap.Int("uses", uses))
	return &promo, nil
}

// Activate puts a code into the user's live promo slot. Checks run in order:
// slot occupied, code already used by this user, code unusable.
func (s *PromoService) Activate(ctx context.Context, userID int64, code string) (*models.PromoCode, error) {
	code = NormalizeCode(code)
	var promo models.PromoCode

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		if user.ActivePromo != nil {
			return ErrPromoAlreadyActive
		}

		var used int64
		if err := tx.Model(&models.UsedPromoCode{}).
			Where("user_id = ? AND code = ?", userID, code).
			Count(&used).Error; err != nil {
			return err
		}
		if used == 0 {
			// a processing order holding the same code counts as a redemption in flight
			if err := tx.Model(&models.Order{}).
				Where("user_id = ? AND promo_code = ? AND status = ?", userID, code, models.OrderStatusProcessing).
				Count(&used).Error; err != nil {
				return err
			}
		}
		if used > 0 {
			return ErrPromoAlreadyRedeemed
		}

		if err := tx.Where("code = ?", code).First(&promo).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPromoInvalid
			}
			return err
		}
		if !promo.IsActive || promo.UsesLeft < 1 {
			return ErrPromoInvalid
		}

		return tx.Model(&models.User{}).Where("id = ?", userID).Update("active_promo", code).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrPromoAlreadyActive), errors.Is(err, ErrPromoAlreadyRedeemed),
			errors.Is(err, ErrPromoInvalid), errors.Is(err, ErrUserNotFound):
			return nil, err
		}
		return nil, fmt.Errorf("failed to activate promo: %w", err)
	}

	logger.Log.Info("promo activated", zap.Int64("user_id", userID), zap.String("code", code))
	return &promo, nil
}

// Deactivate stops a code from being activated; existing snapshots still resolve
func (s *PromoService) Deactivate(ctx context.Context, code string) error {
	res := s.db.WithContext(ctx).Model(&models.PromoCode{}).
		Where("code = ?", NormalizeCode(code)).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPromoInvalid
	}
	return nil
}

// List returns all codes, newest first
func (s *PromoService) List(ctx context.Context) ([]models.PromoCode, error) {
	var promos []models.PromoCode
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&promos).Error; err != nil {
		return nil, err
	}
	return promos, nil
}
