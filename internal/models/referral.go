package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralEarning is credited to a referrer when a referred user's order completes
type ReferralEarning struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	ReferrerID int64           `gorm:"not null;index" json:"referrer_id"`
	ReferralID int64           `gorm:"not null;index" json:"referral_id"`
	OrderID    uint            `gorm:"not null;uniqueIndex" json:"order_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (ReferralEarning) TableName() string {
	return "referral_earnings"
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalPaid     WithdrawalStatus = "paid"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

// WithdrawalRequest snapshots the referral balance a user asked to withdraw
type WithdrawalRequest struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	UserID         int64            `gorm:"not null;index" json:"user_id"`
	User           *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Amount         decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"amount"`
	Status         WithdrawalStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	RelayChannelID *int             `json:"relay_channel_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}
