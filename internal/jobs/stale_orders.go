package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/utils"

	"go.uber.org/zap"
)

// StaleLister finds processing orders older than a cutoff
type StaleLister interface {
	ListStale(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}

// ChannelNotifier posts into an order's relay channel
type ChannelNotifier interface {
	NotifyChannel(ctx context.Context, channelID int, text string) error
}

// StaleOrderReminder nudges operators about orders left processing for too
// long. An order is reminded at most once per `after` window.
type StaleOrderReminder struct {
	orders   StaleLister
	channels ChannelNotifier
	after    time.Duration
	now      func() time.Time

	mu       sync.Mutex
	reminded map[uint]time.Time
}

func NewStaleOrderReminder(orders StaleLister, channels ChannelNotifier, after time.Duration) *StaleOrderReminder {
	return &StaleOrderReminder{
		orders:   orders,
		channels: channels,
		after:    after,
		now:      time.Now,
		reminded: make(map[uint]time.Time),
	}
}

func (r *StaleOrderReminder) Run(ctx context.Context) error {
	now := r.now()
	stale, err := r.orders.ListStale(ctx, now.Add(-r.after))
	if err != nil {
		return fmt.Errorf("failed to list stale orders: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[uint]struct{}, len(stale))
	for _, order := range stale {
		seen[order.ID] = struct{}{}
		if order.RelayChannelID == nil {
			continue
		}
		if last, ok := r.reminded[order.ID]; ok && now.Sub(last) < r.after {
			continue
		}

		text := fmt.Sprintf("⏰ Order #%d has been processing for %s.",
			utils.OrderNumber(order.ID), now.Sub(order.CreatedAt).Truncate(time.Minute))
		if err := r.channels.NotifyChannel(ctx, *order.RelayChannelID, text); err != nil {
			logger.Log.Warn("failed to post stale order reminder", zap.Uint("order_id", order.ID), zap.Error(err))
			continue
		}
		r.reminded[order.ID] = now
	}

	// finalized orders drop out of the list
	for id := range r.reminded {
		if _, ok := seen[id]; !ok {
			delete(r.reminded, id)
		}
	}
	return nil
}
