package models

import "time"

// PromoCode is an issued code that waives fees on one order per user
type PromoCode struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"uniqueIndex;size:64;not null" json:"code"`
	TotalUses int       `gorm:"not null" json:"total_uses"`
	UsesLeft  int       `gorm:"not null" json:"uses_left"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (PromoCode) TableName() string {
	return "promo_codes"
}

// UsedPromoCode records a promo consumed by a completed order
type UsedPromoCode struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	UserID  int64     `gorm:"not null;index:idx_used_promo_user_code" json:"user_id"`
	Code    string    `gorm:"size:64;not null;index:idx_used_promo_user_code" json:"code"`
	OrderID uint      `gorm:"not null;uniqueIndex" json:"order_id"`
	UsedAt  time.Time `gorm:"autoCreateTime" json:"used_at"`
}

func (UsedPromoCode) TableName() string {
	return "used_promo_codes"
}
