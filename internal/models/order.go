package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderAction string

const (
	ActionBuy  OrderAction = "buy"
	ActionSell OrderAction = "sell"
)

func (a OrderAction) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

type OrderStatus string

const (
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusCancelledByUser OrderStatus = "cancelled_by_user"
)

// Terminal reports whether no further transition is allowed
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusRejected || s == OrderStatusCancelledByUser
}

type PaymentMethod string

const (
	PaymentSBP      PaymentMethod = "sbp"
	PaymentOperator PaymentMethod = "operator"
)

// Supported asset codes
const (
	AssetBTC  = "BTC"
	AssetLTC  = "LTC"
	AssetTRX  = "TRX"
	AssetUSDT = "USDT"
)

// SupportedAssets lists assets in menu order
var SupportedAssets = []string{AssetBTC, AssetLTC, AssetTRX, AssetUSDT}

// IsSupportedAsset reports whether code is one of SupportedAssets
func IsSupportedAsset(code string) bool {
	for _, a := range SupportedAssets {
		if a == code {
			return true
		}
	}
	return false
}

// Order is one exchange request. FiatAmount is the pre-fee base;
// SettlementTotal is what the user pays (buy) or receives (sell).
type Order struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          int64           `gorm:"not null;index;uniqueIndex:idx_one_processing_per_user,where:status = 'processing'" json:"user_id"`
	User            *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action          OrderAction     `gorm:"size:8;not null" json:"action"`
	Asset           string          `gorm:"size:10;not null" json:"asset"`
	AssetAmount     decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"asset_amount"`
	Rate            decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"rate"`
	FiatAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"fiat_amount"`
	ServiceFee      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"service_fee"`
	NetworkFee      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"network_fee"`
	SettlementTotal decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"settlement_total"`
	PaymentMethod   PaymentMethod   `gorm:"size:16;not null;default:sbp" json:"payment_method"`
	Requisites      string          `gorm:"type:text" json:"requisites"`
	RelayChannelID  *int            `gorm:"index" json:"relay_channel_id,omitempty"`
	PromoCode       *string         `gorm:"size:64" json:"promo_code,omitempty"`
	TxLink          *string         `gorm:"type:text" json:"tx_link,omitempty"`
	Status          OrderStatus     `gorm:"size:20;not null;default:processing;index" json:"status"`
	FinalizedAt     *time.Time      `json:"finalized_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Order model
func (Order) TableName() string {
	return "orders"
}
