package jobs

import (
	"context"
	"time"

	"crypto-exchange-bot/internal/conversation"
	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/metrics"

	"go.uber.org/zap"
)

// SessionSweeper drops conversation sessions idle for longer than idleTTL.
// Exactly one of memory or db is expected to be set.
type SessionSweeper struct {
	memory  *conversation.MemoryStore
	db      *conversation.GormStore
	idleTTL time.Duration
	now     func() time.Time
}

func NewSessionSweeper(store conversation.Store, idleTTL time.Duration) *SessionSweeper {
	s := &SessionSweeper{idleTTL: idleTTL, now: time.Now}
	switch st := store.(type) {
	case *conversation.MemoryStore:
		s.memory = st
	case *conversation.GormStore:
		s.db = st
	}
	return s
}

func (s *SessionSweeper) Run(ctx context.Context) error {
	cutoff := s.now().Add(-s.idleTTL)

	if s.memory != nil {
		removed, remaining := s.memory.Sweep(cutoff)
		metrics.Exchange().SetActiveSessions(remaining)
		if removed > 0 {
			logger.Log.Info("idle sessions swept", zap.Int("removed", removed), zap.Int("remaining", remaining))
		}
		return nil
	}

	if s.db != nil {
		removed, err := s.db.Sweep(ctx, cutoff)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Log.Info("idle sessions swept", zap.Int64("removed", removed))
		}
	}
	return nil
}
