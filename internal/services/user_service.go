package services

import (
	"context"
	"errors"
	"fmt"

	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserProfile is the identity the transport reports for a sender
type UserProfile struct {
	ID       int64
	Username string
	FullName string
}

// UserService handles user-related business logic
type UserService struct {
	db *gorm.DB
}

// NewUserService creates a new UserService
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// EnsureUser creates the user on first contact or refreshes display fields.
// The referrer is only recorded at creation and never changes afterwards.
func (s *UserService) EnsureUser(ctx context.Context, profile UserProfile, referrerID *int64) (*models.User, bool, error) {
	var (
		user    models.User
		created bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", profile.ID).Error
		if err == nil {
			return tx.Model(&user).Updates(map[string]interface{}{
				"username":  profile.Username,
				"full_name": profile.FullName,
			}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		user = models.User{
			ID:       profile.ID,
			Username: profile.Username,
			FullName: profile.FullName,
		}
		if referrerID != nil && *referrerID != profile.ID {
			var count int64
			if err := tx.Model(&models.User{}).Where("id = ?", *referrerID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				ref := *referrerID
				user.ReferrerID = &ref
			}
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to save user %d: %w", profile.ID, err)
	}

	if created {
		fields := []zap.Field{zap.Int64("user_id", user.ID)}
		if user.ReferrerID != nil {
			fields = append(fields, zap.Int64("referrer_id", *user.ReferrerID))
		}
		logger.Log.Info("new user registered", fields...)
	}
	return &user, created, nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ListUserIDs returns every known user id, oldest first
func (s *UserService) ListUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// lockUser loads a user row for update inside a transaction
func lockUser(tx *gorm.DB, userID int64) (*models.User, error) {
	var user models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
