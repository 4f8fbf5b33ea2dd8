package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	App       AppConfig
	Bot       BotConfig
	Exchange  ExchangeConfig
	Rates     RatesConfig
	Lottery   LotteryConfig
	Broadcast BroadcastConfig
	Sessions  SessionConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string // postgres or sqlite
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

// ServerConfig holds admin HTTP API settings
type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret       string
	LogLevel        string
	LogFile         string
	StaleOrderAfter time.Duration
}

// BotConfig holds messaging transport settings
type BotConfig struct {
	Token          string
	AdminIDs       []int64
	SupportGroupID int64
}

// ExchangeConfig holds fee and payout knobs
type ExchangeConfig struct {
	ServiceCommissionPercent decimal.Decimal
	NetworkFee               decimal.Decimal
	ReferralPercentage       decimal.Decimal
	MinWithdrawalAmount      decimal.Decimal
	SBPPhone                 string
	SBPBank                  string
	Wallets                  map[string]string // asset code -> deposit address
}

// RatesConfig holds price feed settings
type RatesConfig struct {
	BaseURL    string
	VsCurrency string
	CacheTTL   time.Duration
	Timeout    time.Duration
	MaxRetries int
}

// LotteryConfig holds lottery settings
type LotteryConfig struct {
	PrizesFile string
}

// BroadcastConfig holds broadcast throttling settings
type BroadcastConfig struct {
	PerSecond float64
	Burst     int
}

// SessionConfig selects the conversation session store
type SessionConfig struct {
	Store   string // memory or database
	IdleTTL time.Duration
}

type envConfig struct {
	DBDriver   string `env:"DB_DRIVER" env-default:"postgres"`
	DBHost     string `env:"DB_HOST" env-default:"localhost"`
	DBPort     string `env:"DB_PORT" env-default:"5432"`
	DBUser     string `env:"DB_USER" env-default:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" env-default:"crypto_exchange"`
	SQLitePath string `env:"SQLITE_PATH" env-default:"exchange.db"`

	ServerPort     string   `env:"SERVER_PORT" env-default:"8080"`
	AllowedOrigins []string `env:"CORS_ORIGINS" env-default:"http://localhost:3000" env-separator:","`

	JWTSecret       string        `env:"JWT_SECRET"`
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info"`
	LogFile         string        `env:"LOG_FILE"`
	StaleOrderAfter time.Duration `env:"STALE_ORDER_AFTER" env-default:"2h"`

	BotToken       string  `env:"BOT_TOKEN"`
	AdminIDs       []int64 `env:"ADMIN_IDS" env-separator:","`
	SupportGroupID int64   `env:"SUPPORT_GROUP_ID"`

	ServiceCommissionPercent string `env:"SERVICE_COMMISSION_PERCENT" env-default:"12"`
	NetworkFee               string `env:"NETWORK_FEE" env-default:"290"`
	ReferralPercentage       string `env:"REFERRAL_PERCENTAGE" env-default:"1"`
	MinWithdrawalAmount      string `env:"MIN_WITHDRAWAL_AMOUNT" env-default:"1000"`
	SBPPhone                 string `env:"SBP_PHONE"`
	SBPBank                  string `env:"SBP_BANK"`
	WalletBTC                string `env:"WALLET_BTC"`
	WalletLTC                string `env:"WALLET_LTC"`
	WalletTRX                string `env:"WALLET_TRX"`
	WalletUSDT               string `env:"WALLET_USDT"`

	RatesBaseURL    string        `env:"RATES_BASE_URL" env-default:"https://api.coingecko.com/api/v3"`
	RatesVsCurrency string        `env:"RATES_VS_CURRENCY" env-default:"rub"`
	RateCacheTTL    time.Duration `env:"RATE_CACHE_TTL" env-default:"120s"`
	RateTimeout     time.Duration `env:"RATE_TIMEOUT" env-default:"10s"`
	RateMaxRetries  int           `env:"RATE_MAX_RETRIES" env-default:"3"`

	LotteryPrizesFile string `env:"LOTTERY_PRIZES_FILE"`

	BroadcastPerSecond float64 `env:"BROADCAST_PER_SECOND" env-default:"25"`
	BroadcastBurst     int     `env:"BROADCAST_BURST" env-default:"5"`

	SessionStore   string        `env:"SESSION_STORE" env-default:"memory"`
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" env-default:"24h"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return nil, fmt.Errorf("couldn't read environment variables: %w", err)
	}

	return fromEnv(env)
}

func fromEnv(env envConfig) (*Config, error) {
	commission, err := parseDecimal("SERVICE_COMMISSION_PERCENT", env.ServiceCommissionPercent)
	if err != nil {
		return nil, err
	}
	networkFee, err := parseDecimal("NETWORK_FEE", env.NetworkFee)
	if err != nil {
		return nil, err
	}
	referralPct, err := parseDecimal("REFERRAL_PERCENTAGE", env.ReferralPercentage)
	if err != nil {
		return nil, err
	}
	minWithdrawal, err := parseDecimal("MIN_WITHDRAWAL_AMOUNT", env.MinWithdrawalAmount)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Database: DatabaseConfig{
			Driver:     strings.ToLower(env.DBDriver),
			Host:       env.DBHost,
			Port:       env.DBPort,
			User:       env.DBUser,
			Password:   env.DBPassword,
			DBName:     env.DBName,
			SQLitePath: env.SQLitePath,
		},
		Server: ServerConfig{
			Port:           env.ServerPort,
			AllowedOrigins: env.AllowedOrigins,
		},
		App: AppConfig{
			JWTSecret:       env.JWTSecret,
			LogLevel:        env.LogLevel,
			LogFile:         env.LogFile,
			StaleOrderAfter: env.StaleOrderAfter,
		},
		Bot: BotConfig{
			Token:          env.BotToken,
			AdminIDs:       env.AdminIDs,
			SupportGroupID: env.SupportGroupID,
		},
		Exchange: ExchangeConfig{
			ServiceCommissionPercent: commission,
			NetworkFee:               networkFee,
			ReferralPercentage:       referralPct,
			MinWithdrawalAmount:      minWithdrawal,
			SBPPhone:                 env.SBPPhone,
			SBPBank:                  env.SBPBank,
			Wallets: map[string]string{
				"BTC":  env.WalletBTC,
				"LTC":  env.WalletLTC,
				"TRX":  env.WalletTRX,
				"USDT": env.WalletUSDT,
			},
		},
		Rates: RatesConfig{
			BaseURL:    strings.TrimRight(env.RatesBaseURL, "/"),
			VsCurrency: strings.ToLower(env.RatesVsCurrency),
			CacheTTL:   env.RateCacheTTL,
			Timeout:    env.RateTimeout,
			MaxRetries: env.RateMaxRetries,
		},
		Lottery: LotteryConfig{
			PrizesFile: env.LotteryPrizesFile,
		},
		Broadcast: BroadcastConfig{
			PerSecond: env.BroadcastPerSecond,
			Burst:     env.BroadcastBurst,
		},
		Sessions: SessionConfig{
			Store:   strings.ToLower(env.SessionStore),
			IdleTTL: env.SessionIdleTTL,
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.App.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Bot.Token == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if len(c.Bot.AdminIDs) == 0 {
		return fmt.Errorf("ADMIN_IDS must list at least one admin")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Sessions.Store != "memory" && c.Sessions.Store != "database" {
		return fmt.Errorf("unsupported SESSION_STORE %q", c.Sessions.Store)
	}
	if c.Exchange.ServiceCommissionPercent.IsNegative() || c.Exchange.ServiceCommissionPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("SERVICE_COMMISSION_PERCENT must be in [0, 100)")
	}
	if c.Exchange.NetworkFee.IsNegative() {
		return fmt.Errorf("NETWORK_FEE must not be negative")
	}
	if c.Exchange.ReferralPercentage.IsNegative() {
		return fmt.Errorf("REFERRAL_PERCENTAGE must not be negative")
	}
	if c.Rates.MaxRetries < 1 {
		return fmt.Errorf("RATE_MAX_RETRIES must be at least 1")
	}
	if c.Broadcast.PerSecond <= 0 {
		return fmt.Errorf("BROADCAST_PER_SECOND must be positive")
	}
	return nil
}

// IsAdmin reports whether the platform user id is listed in ADMIN_IDS
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Bot.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

func parseDecimal(key, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s is not a number: %w", key, err)
	}
	return d, nil
}
