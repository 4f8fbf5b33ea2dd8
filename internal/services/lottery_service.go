package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/metrics"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// LotteryWindow is both the ticket validity and the play cooldown
const LotteryWindow = 24 * time.Hour

// Prize is one row of the prize table; weights are relative
type Prize struct {
	Amount decimal.Decimal
	Weight float64
}

// DefaultPrizes is used when no prize file is configured
var DefaultPrizes = []Prize{
	{Amount: decimal.NewFromInt(1), Weight: 80},
	{Amount: decimal.NewFromInt(3), Weight: 10},
	{Amount: decimal.NewFromInt(7), Weight: 7},
	{Amount: decimal.NewFromInt(10), Weight: 2.999},
	{Amount: decimal.NewFromInt(100), Weight: 0.001},
}

// PrizeTable samples prizes by cumulative weight
type PrizeTable struct {
	prizes     []Prize
	cumulative []float64
	total      float64
}

func NewPrizeTable(prizes []Prize) (*PrizeTable, error) {
	if len(prizes) == 0 {
		return nil, fmt.Errorf("prize table is empty")
	}

	t := &PrizeTable{
		prizes:     make([]Prize, 0, len(prizes)),
		cumulative: make([]float64, 0, len(prizes)),
	}
	for _, p := range prizes {
		if p.Weight < 0 || p.Amount.IsNegative() {
			return nil, fmt.Errorf("invalid prize %s with weight %v", p.Amount, p.Weight)
		}
		if p.Weight == 0 {
			continue
		}
		t.total += p.Weight
		t.prizes = append(t.prizes, p)
		t.cumulative = append(t.cumulative, t.total)
	}
	if t.total <= 0 {
		return nil, fmt.Errorf("prize table has no positive weights")
	}
	return t, nil
}

// Draw maps r in [0,1) onto a prize
func (t *PrizeTable) Draw(r float64) decimal.Decimal {
	target := r * t.total
	i := sort.Search(len(t.cumulative), func(i int) bool { return t.cumulative[i] > target })
	if i >= len(t.prizes) {
		i = len(t.prizes) - 1
	}
	return t.prizes[i].Amount
}

// Prizes returns a copy of the table rows
func (t *PrizeTable) Prizes() []Prize {
	out := make([]Prize, len(t.prizes))
	copy(out, t.prizes)
	return out
}

type prizeFile struct {
	Prizes []struct {
		Amount string  `yaml:"amount"`
		Weight float64 `yaml:"weight"`
	} `yaml:"prizes"`
}

// LoadPrizeTable reads a YAML prize table, or returns the default table
// when path is empty.
func LoadPrizeTable(path string) (*PrizeTable, error) {
	if path == "" {
		return NewPrizeTable(DefaultPrizes)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prize file: %w", err)
	}
	return ParsePrizeTable(raw)
}

// ParsePrizeTable decodes the YAML prize document
func ParsePrizeTable(raw []byte) (*PrizeTable, error) {
	var doc prizeFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse prize file: %w", err)
	}

	prizes := make([]Prize, 0, len(doc.Prizes))
	for _, p := range doc.Prizes {
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid prize amount %q: %w", p.Amount, err)
		}
		prizes = append(prizes, Prize{Amount: amount, Weight: p.Weight})
	}
	return NewPrizeTable(prizes)
}

// LotteryStatus is what the lottery menu renders
type LotteryStatus struct {
	TicketGranted bool          `json:"ticket_granted"`
	HasTicket     bool          `json:"has_ticket"`
	CanPlay       bool          `json:"can_play"`
	NextPlayIn    time.Duration `json:"next_play_in"`
}

type LotteryService struct {
	db     *gorm.DB
	prizes *PrizeTable
	now    func() time.Time
	random func() (float64, error)
}

func NewLotteryService(db *gorm.DB, prizes *PrizeTable) *LotteryService {
	return &LotteryService{
		db:     db,
		prizes: prizes,
		now:    time.Now,
		random: utils.SecureFloat64,
	}
}

func ticketValid(user *models.User, now time.Time) bool {
	return user.LastTicket != nil && now.Sub(*user.LastTicket) <= LotteryWindow
}

func cooldownOver(user *models.User, now time.Time) bool {
	return user.LastPlay == nil || now.Sub(*user.LastPlay) > LotteryWindow
}

// MaybeGrantTicket issues a new ticket when the previous one is older than
// the window. The returned status reflects the row after the grant.
func (s *LotteryService) MaybeGrantTicket(ctx context.Context, userID int64) (*LotteryStatus, error) {
	now := s.now()
	status := &LotteryStatus{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		if user.LastTicket == nil || now.Sub(*user.LastTicket) > LotteryWindow {
			if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("last_ticket", now).Error; err != nil {
				return err
			}
			user.LastTicket = &now
			status.TicketGranted = true
		}
		fillStatus(status, user, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// Status reports the gates without granting anything
func (s *LotteryService) Status(ctx context.Context, userID int64) (*LotteryStatus, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	status := &LotteryStatus{}
	fillStatus(status, &user, s.now())
	return status, nil
}

func fillStatus(status *LotteryStatus, user *models.User, now time.Time) {
	status.HasTicket = ticketValid(user, now)
	status.CanPlay = status.HasTicket && cooldownOver(user, now)
	if user.LastPlay != nil && !cooldownOver(user, now) {
		status.NextPlayIn = user.LastPlay.Add(LotteryWindow).Sub(now)
	}
}

// Play draws a prize and credits it to the referral balance. Both gates are
// checked again on the locked row.
func (s *LotteryService) Play(ctx context.Context, userID int64) (decimal.Decimal, error) {
	now := s.now()
	var prize decimal.Decimal

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		if !ticketValid(user, now) {
			return ErrNoTicket
		}
		if !cooldownOver(user, now) {
			return ErrLotteryCooldown
		}

		r, err := s.random()
		if err != nil {
			return err
		}
		prize = s.prizes.Draw(r)

		return tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"referral_balance": gorm.Expr("referral_balance + ?", prize),
			"last_play":        now,
		}).Error
	})
	if err != nil {
		if errors.Is(err, ErrNoTicket) || errors.Is(err, ErrLotteryCooldown) || errors.Is(err, ErrUserNotFound) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("lottery play failed: %w", err)
	}

	metrics.Exchange().ObserveLotteryPlay()
	logger.Log.Info("lottery played",
		zap.Int64("user_id", userID),
		zap.String("prize", prize.String()))
	return prize, nil
}
