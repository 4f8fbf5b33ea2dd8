package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"crypto-exchange-bot/internal/config"
	"crypto-exchange-bot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	SettingSBPPhone   = "sbp_phone"
	SettingSBPBank    = "sbp_bank"
	SettingWalletBTC  = "wallet_btc"
	SettingWalletLTC  = "wallet_ltc"
	SettingWalletTRX  = "wallet_trx"
	SettingWalletUSDT = "wallet_usdt"
)

// SettingsService serves admin-editable values with config fallbacks
type SettingsService struct {
	db       *gorm.DB
	defaults map[string]string
}

func NewSettingsService(db *gorm.DB, cfg config.ExchangeConfig) *SettingsService {
	defaults := map[string]string{
		SettingSBPPhone: cfg.SBPPhone,
		SettingSBPBank:  cfg.SBPBank,
	}
	for _, asset := range models.SupportedAssets {
		defaults[WalletSettingKey(asset)] = cfg.Wallets[asset]
	}
	return &SettingsService{db: db, defaults: defaults}
}

// WalletSettingKey returns the settings key holding an asset's deposit address
func WalletSettingKey(asset string) string {
	return "wallet_" + strings.ToLower(asset)
}

// Keys lists the editable keys in stable order
func (s *SettingsService) Keys() []string {
	keys := make([]string, 0, len(s.defaults))
	for k := range s.defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	fallback, ok := s.defaults[key]
	if !ok {
		return "", ErrUnknownSetting
	}

	var setting models.Setting
	err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// All returns every editable key with its effective value
func (s *SettingsService) All(ctx context.Context) (map[string]string, error) {
	var rows []models.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[string]string, len(s.defaults))
	for k, v := range s.defaults {
		out[k] = v
	}
	for _, row := range rows {
		if _, ok := s.defaults[row.Key]; ok {
			out[row.Key] = row.Value
		}
	}
	return out, nil
}

func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	if _, ok := s.defaults[key]; !ok {
		return ErrUnknownSetting
	}

	setting := models.Setting{Key: key, Value: strings.TrimSpace(value), UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// Wallet returns the deposit address for an asset
func (s *SettingsService) Wallet(ctx context.Context, asset string) (string, error) {
	return s.Get(ctx, WalletSettingKey(asset))
}

// SBP returns the phone and bank used for SBP payments
func (s *SettingsService) SBP(ctx context.Context) (phone, bank string, err error) {
	if phone, err = s.Get(ctx, SettingSBPPhone); err != nil {
		return "", "", err
	}
	if bank, err = s.Get(ctx, SettingSBPBank); err != nil {
		return "", "", err
	}
	return phone, bank, nil
}
