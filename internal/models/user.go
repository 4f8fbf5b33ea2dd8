package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a messaging-platform user; ID is the platform user id
type User struct {
	ID              int64           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Username        string          `gorm:"size:64;index" json:"username"`
	FullName        string          `gorm:"size:255" json:"full_name"`
	ReferrerID      *int64          `gorm:"index" json:"referrer_id,omitempty"`
	ReferralBalance decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"referral_balance"`
	ActivePromo     *string         `gorm:"size:64" json:"active_promo,omitempty"`
	LastTicket      *time.Time      `json:"last_ticket,omitempty"`
	LastPlay        *time.Time      `json:"last_play,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
