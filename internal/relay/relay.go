// Package relay bridges user conversations and operators. Every order gets
// its own channel in the operator group; messages are routed by the order
// that owns the channel.
package relay

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"crypto-exchange-bot/internal/callback"
	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/messenger"
	"crypto-exchange-bot/internal/metrics"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/services"
	"crypto-exchange-bot/internal/utils"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// maxTitleLen is the platform limit on channel titles
const maxTitleLen = 128

// OrderLookup is the slice of the order store the relay needs
type OrderLookup interface {
	GetActiveOrder(ctx context.Context, userID int64) (*models.Order, error)
	GetByRelayChannel(ctx context.Context, channelID int) (*models.Order, error)
	SetRelayChannel(ctx context.Context, orderID uint, channelID int) error
}

// WithdrawalBinder records channels opened for withdrawal requests
type WithdrawalBinder interface {
	SetWithdrawalChannel(ctx context.Context, withdrawalID uint, channelID int) error
}

// Sender identifies who wrote a relayed message
type Sender struct {
	UserID   int64
	Username string
	FullName string
}

func (s Sender) display() string {
	return utils.DisplayName(s.UserID, s.Username, s.FullName)
}

type Relay struct {
	msg         messenger.Messenger
	orders      OrderLookup
	withdrawals WithdrawalBinder
	groupID     int64
}

func New(msg messenger.Messenger, orders OrderLookup, withdrawals WithdrawalBinder, groupID int64) *Relay {
	return &Relay{
		msg:         msg,
		orders:      orders,
		withdrawals: withdrawals,
		groupID:     groupID,
	}
}

// GroupID is the operator group hosting the channels
func (r *Relay) GroupID() int64 {
	return r.groupID
}

// ChannelTitle builds a channel title like "10007-sell-btc-ivan". A status
// marker is prepended once the order is final.
func ChannelTitle(order *models.Order, owner string) string {
	base := slug.Make(fmt.Sprintf("%d %s %s %s", utils.OrderNumber(order.ID), order.Action, order.Asset, strings.TrimPrefix(owner, "@")))
	if marker := statusMarker(order.Status); marker != "" {
		base = marker + " " + base
	}
	if len(base) > maxTitleLen {
		base = base[:maxTitleLen]
	}
	return base
}

func statusMarker(status models.OrderStatus) string {
	switch status {
	case models.OrderStatusCompleted:
		return "✅"
	case models.OrderStatusRejected:
		return "❌"
	case models.OrderStatusCancelledByUser:
		return "🚫"
	}
	return ""
}

// OpenOrderChannel creates the order's channel, binds it to the order and
// posts the order card with confirm/reject buttons.
func (r *Relay) OpenOrderChannel(ctx context.Context, order *models.Order, owner Sender) (int, error) {
	channelID, err := r.msg.CreateChannel(ctx, r.groupID, ChannelTitle(order, owner.display()))
	if err != nil {
		return 0, fmt.Errorf("failed to create relay channel for order %d: %w", order.ID, err)
	}
	if err := r.orders.SetRelayChannel(ctx, order.ID, channelID); err != nil {
		return 0, err
	}
	order.RelayChannelID = &channelID

	kb := messenger.NewKeyboard(messenger.Row(
		messenger.Button{Text: "✅ Confirm", Data: callback.WithID(callback.KindAdminConfirm, order.ID)},
		messenger.Button{Text: "❌ Reject", Data: callback.WithID(callback.KindAdminReject, order.ID)},
	))
	if _, err := r.msg.Send(ctx, r.groupID, channelID, OrderCard(order, owner.display()), kb); err != nil {
		// The channel is bound; operators can still work the order from it.
		logger.Log.Error("failed to post order card",
			zap.Uint("order_id", order.ID),
			zap.Int64("user_id", order.UserID),
			zap.Error(err))
	}

	logger.Log.Info("relay channel opened",
		zap.Uint("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.Int("channel_id", channelID))
	return channelID, nil
}

// OpenWithdrawalChannel creates a channel for a referral payout request
func (r *Relay) OpenWithdrawalChannel(ctx context.Context, w *models.WithdrawalRequest, owner Sender) (int, error) {
	title := slug.Make(fmt.Sprintf("withdrawal %d %s", w.ID, strings.TrimPrefix(owner.display(), "@")))
	channelID, err := r.msg.CreateChannel(ctx, r.groupID, title)
	if err != nil {
		return 0, fmt.Errorf("failed to create withdrawal channel %d: %w", w.ID, err)
	}
	if err := r.withdrawals.SetWithdrawalChannel(ctx, w.ID, channelID); err != nil {
		return 0, err
	}
	w.RelayChannelID = &channelID

	text := fmt.Sprintf("💸 <b>Withdrawal request #%d</b>\nUser: %s (<code>%d</code>)\nAmount: <b>%s RUB</b>",
		w.ID, html.EscapeString(owner.display()), w.UserID, utils.FormatFiat(w.Amount))
	kb := messenger.NewKeyboard(messenger.Row(
		messenger.Button{Text: "✅ Paid", Data: callback.WithID(callback.KindAdminPaid, w.ID)},
		messenger.Button{Text: "❌ Decline", Data: callback.WithID(callback.KindAdminDecline, w.ID)},
	))
	if _, err := r.msg.Send(ctx, r.groupID, channelID, text, kb); err != nil {
		logger.Log.Error("failed to post withdrawal card", zap.Uint("withdrawal_id", w.ID), zap.Error(err))
	}
	return channelID, nil
}

// OrderCard is the operator-facing summary of an order
func OrderCard(order *models.Order, owner string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🆕 <b>Order #%d</b>\n", utils.OrderNumber(order.ID))
	fmt.Fprintf(&b, "User: %s (<code>%d</code>)\n", html.EscapeString(owner), order.UserID)
	fmt.Fprintf(&b, "Action: <b>%s %s</b>\n", strings.ToUpper(string(order.Action)), order.Asset)
	fmt.Fprintf(&b, "Amount: %s %s\n", utils.FormatAsset(order.AssetAmount), order.Asset)
	fmt.Fprintf(&b, "Rate: %s RUB\n", utils.FormatFiat(order.Rate))
	fmt.Fprintf(&b, "Amount in RUB: %s\n", utils.FormatFiat(order.FiatAmount))
	fmt.Fprintf(&b, "Fees: %s + %s\n", utils.FormatFiat(order.ServiceFee), utils.FormatFiat(order.NetworkFee))
	fmt.Fprintf(&b, "Total: <b>%s RUB</b>\n", utils.FormatFiat(order.SettlementTotal))
	fmt.Fprintf(&b, "Payment: %s\n", order.PaymentMethod)
	if order.PromoCode != nil {
		fmt.Fprintf(&b, "Promo: <code>%s</code>\n", html.EscapeString(*order.PromoCode))
	}
	fmt.Fprintf(&b, "Requisites:\n<code>%s</code>", html.EscapeString(order.Requisites))
	return b.String()
}

// ReplyKeyboard is attached to operator messages delivered to a user
func ReplyKeyboard(orderID uint) *messenger.Keyboard {
	return messenger.NewKeyboard(messenger.Row(
		messenger.Button{Text: "✍️ Reply to operator", Data: callback.WithID(callback.KindReply, orderID)},
	))
}

// RouteUserToOperator posts a user's message into the channel of their
// processing order. Text messages are attributed inline; anything else is
// announced and copied so attachments survive. Returns the order the message
// went to, or services.ErrNoActiveOrder.
func (r *Relay) RouteUserToOperator(ctx context.Context, from Sender, chatID int64, messageID int, text string) (*models.Order, error) {
	order, err := r.orders.GetActiveOrder(ctx, from.UserID)
	if err != nil {
		return nil, err
	}
	if order.RelayChannelID == nil {
		return nil, services.ErrNoActiveOrder
	}
	channelID := *order.RelayChannelID

	header := fmt.Sprintf("💬 <b>Message from %s:</b>", html.EscapeString(from.display()))
	if text != "" {
		_, err = r.msg.Send(ctx, r.groupID, channelID, header+"\n\n"+html.EscapeString(text), nil)
	} else {
		if _, err = r.msg.Send(ctx, r.groupID, channelID, header, nil); err == nil {
			_, err = r.msg.Copy(ctx, r.groupID, channelID, chatID, messageID, nil)
		}
	}
	if err != nil {
		logger.Log.Error("failed to relay user message",
			zap.Uint("order_id", order.ID),
			zap.Int64("user_id", from.UserID),
			zap.Error(err))
		return nil, fmt.Errorf("relay to operator: %w", err)
	}

	metrics.Exchange().ObserveRelay("to_operator")
	return order, nil
}

// RouteOperatorToUser copies an operator message from a channel to the
// order's user. Messages in channels no order owns are ignored and reported
// as not delivered without error.
func (r *Relay) RouteOperatorToUser(ctx context.Context, channelID int, messageID int) (bool, error) {
	order, err := r.orders.GetByRelayChannel(ctx, channelID)
	if errors.Is(err, services.ErrOrderNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := r.msg.Copy(ctx, order.UserID, 0, r.groupID, messageID, ReplyKeyboard(order.ID)); err != nil {
		logger.Log.Error("failed to relay operator reply",
			zap.Uint("order_id", order.ID),
			zap.Int64("user_id", order.UserID),
			zap.Error(err))
		notice := fmt.Sprintf("⚠️ Could not deliver the message to user %d. They may have blocked the bot.", order.UserID)
		if _, nerr := r.msg.Send(ctx, r.groupID, channelID, notice, nil); nerr != nil {
			logger.Log.Warn("failed to post delivery notice", zap.Uint("order_id", order.ID), zap.Error(nerr))
		}
		return false, fmt.Errorf("relay to user: %w", err)
	}

	metrics.Exchange().ObserveRelay("to_user")
	return true, nil
}

// NotifyChannel posts a service message into an order channel
func (r *Relay) NotifyChannel(ctx context.Context, channelID int, text string) error {
	_, err := r.msg.Send(ctx, r.groupID, channelID, text, nil)
	return err
}

// MarkFinal renames the order channel with its terminal status marker
func (r *Relay) MarkFinal(ctx context.Context, order *models.Order, owner string) error {
	if order.RelayChannelID == nil {
		return nil
	}
	return r.msg.RenameChannel(ctx, r.groupID, *order.RelayChannelID, ChannelTitle(order, owner))
}
