package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/services"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// State is a node of the per-user dialogue
type State string

const (
	StateIdle                  State = "idle"
	StateAssetActionChosen     State = "asset_action_chosen"
	StateAwaitingAmount        State = "awaiting_amount"
	StateAwaitingRequisites    State = "awaiting_requisites"
	StateAwaitingFinalConfirm  State = "awaiting_final_confirm"
	StateAwaitingOperatorReply State = "awaiting_operator_reply"
	StateAwaitingPromoCode     State = "awaiting_promo_code"
	StateAwaitingTxLink        State = "awaiting_tx_link"
)

// Session is everything the dialogue remembers about one user
type Session struct {
	UserID        int64                `json:"user_id"`
	State         State                `json:"state"`
	Action        models.OrderAction   `json:"action,omitempty"`
	Asset         string               `json:"asset,omitempty"`
	Unit          services.AmountUnit  `json:"unit,omitempty"`
	Quote         *services.Quote      `json:"quote,omitempty"`
	PaymentMethod models.PaymentMethod `json:"payment_method,omitempty"`
	Requisites    string               `json:"requisites,omitempty"`
	OrderID       uint                 `json:"order_id,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// NewSession returns an idle session
func NewSession(userID int64) Session {
	return Session{UserID: userID, State: StateIdle}
}

// Reset discards all in-progress data
func (s Session) Reset() Session {
	return NewSession(s.UserID)
}

// ErrSessionNotFound is returned by stores for unknown users
var ErrSessionNotFound = errors.New("session not found")

// Store keeps sessions keyed by user id
type Store interface {
	Load(ctx context.Context, userID int64) (Session, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context, userID int64) error
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]Session)}
}

func (m *MemoryStore) Load(ctx context.Context, userID int64) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemoryStore) Save(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = time.Now()
	m.sessions[s.UserID] = s
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// Sweep drops sessions untouched since before cutoff and returns how many
// were removed and how many remain
func (m *MemoryStore) Sweep(cutoff time.Time) (removed, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, len(m.sessions)
}

// GormStore keeps sessions in the conversation_sessions table so several
// bot processes can share them
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) Load(ctx context.Context, userID int64) (Session, error) {
	var row models.ConversationSession
	err := g.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}

	var s Session
	if err := json.Unmarshal([]byte(row.Data), &s); err != nil {
		return Session{}, fmt.Errorf("corrupt session for user %d: %w", userID, err)
	}
	return s, nil
}

func (g *GormStore) Save(ctx context.Context, s Session) error {
	s.UpdatedAt = time.Now()
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	row := models.ConversationSession{UserID: s.UserID, Data: string(data), UpdatedAt: s.UpdatedAt}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
}

func (g *GormStore) Delete(ctx context.Context, userID int64) error {
	return g.db.WithContext(ctx).Delete(&models.ConversationSession{}, "user_id = ?", userID).Error
}

// Sweep deletes rows untouched since before cutoff
func (g *GormStore) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	res := g.db.WithContext(ctx).Where("updated_at < ?", cutoff).Delete(&models.ConversationSession{})
	return res.RowsAffected, res.Error
}
