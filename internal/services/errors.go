package services

import "errors"

var (
	ErrRateUnavailable  = errors.New("exchange rate unavailable")
	ErrUnsupportedAsset = errors.New("unsupported asset")
	ErrInvalidAmount    = errors.New("amount must be a positive number")

	ErrOrderNotFound     = errors.New("order not found")
	ErrActiveOrderExists = errors.New("user already has a processing order")
	ErrAlreadyFinalized  = errors.New("order already finalized")
	ErrNotOrderOwner     = errors.New("order belongs to another user")
	ErrNoActiveOrder     = errors.New("no active order")

	ErrPromoAlreadyActive   = errors.New("a promo code is already active")
	ErrPromoAlreadyRedeemed = errors.New("promo code already redeemed")
	ErrPromoInvalid         = errors.New("promo code invalid or expired")
	ErrPromoExists          = errors.New("promo code already exists")

	ErrUserNotFound         = errors.New("user not found")
	ErrInsufficientBalance  = errors.New("referral balance below minimum withdrawal")
	ErrWithdrawalNotFound   = errors.New("withdrawal request not found")
	ErrWithdrawalNotPending = errors.New("withdrawal request already resolved")
	ErrNoTicket             = errors.New("no valid lottery ticket")
	ErrLotteryCooldown      = errors.New("lottery already played in the last 24 hours")
	ErrUnknownSetting       = errors.New("unknown setting key")
)
