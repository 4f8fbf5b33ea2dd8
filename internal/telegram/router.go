package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"crypto-exchange-bot/internal/auth"
	"crypto-exchange-bot/internal/callback"
	"crypto-exchange-bot/internal/conversation"
	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/messenger"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/relay"
	"crypto-exchange-bot/internal/services"
	"crypto-exchange-bot/internal/utils"

	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Inbound is the part of an update the router acts on
type Inbound struct {
	ChatID    int64
	Private   bool
	ThreadID  int
	MessageID int
	From      services.UserProfile
	Text      string
	// Service is set for topic created/edited notices
	Service bool

	CallbackID   string
	CallbackData string
}

// FromUpdate extracts an Inbound; ok is false for update kinds the bot ignores
func FromUpdate(u *tgmodels.Update) (Inbound, bool) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		in := Inbound{
			From:         profileOf(&q.From),
			CallbackID:   q.ID,
			CallbackData: q.Data,
		}
		if m := q.Message.Message; m != nil {
			in.ChatID = m.Chat.ID
			in.Private = m.Chat.Type == tgmodels.ChatTypePrivate
			in.ThreadID = m.MessageThreadID
			in.MessageID = m.ID
		}
		return in, true

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.From.IsBot {
			return Inbound{}, false
		}
		in := Inbound{
			ChatID:    m.Chat.ID,
			Private:   m.Chat.Type == tgmodels.ChatTypePrivate,
			MessageID: m.ID,
			From:      profileOf(m.From),
			Text:      m.Text,
			Service:   m.ForumTopicCreated != nil || m.ForumTopicEdited != nil,
		}
		if m.IsTopicMessage {
			in.ThreadID = m.MessageThreadID
		}
		return in, true
	}
	return Inbound{}, false
}

func profileOf(u *tgmodels.User) services.UserProfile {
	return services.UserProfile{
		ID:       u.ID,
		Username: u.Username,
		FullName: strings.TrimSpace(u.FirstName + " " + u.LastName),
	}
}

// CallbackAnswerer acknowledges button presses
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Router dispatches inbound updates
type Router struct {
	engine  *conversation.Engine
	relay   *relay.Relay
	admin   *services.AdminService
	msg     messenger.Messenger
	answers CallbackAnswerer
	admins  auth.AdminSet
	groupID int64
	queue   *dispatcher
}

func NewRouter(engine *conversation.Engine, rl *relay.Relay, admin *services.AdminService,
	msg messenger.Messenger, answers CallbackAnswerer, admins auth.AdminSet) *Router {
	return &Router{
		engine:  engine,
		relay:   rl,
		admin:   admin,
		msg:     msg,
		answers: answers,
		admins:  admins,
		groupID: rl.GroupID(),
		queue:   newDispatcher(),
	}
}

// HandleUpdate is the bot's update handler. Updates of one sender are
// handled in arrival order; different senders are handled concurrently.
func (r *Router) HandleUpdate(ctx context.Context, u *tgmodels.Update) {
	in, ok := FromUpdate(u)
	if !ok {
		return
	}
	r.queue.Dispatch(in.From.ID, func() {
		if err := r.Handle(ctx, in); err != nil {
			logger.Log.Error("failed to handle update",
				zap.Int64("user_id", in.From.ID),
				zap.Int64("chat_id", in.ChatID),
				zap.Error(err))
		}
	})
}

// Drain waits for every dispatched update to finish
func (r *Router) Drain() {
	r.queue.Wait()
}

func (r *Router) Handle(ctx context.Context, in Inbound) error {
	switch {
	case in.CallbackID != "":
		return r.onCallback(ctx, in)
	case in.ChatID == r.groupID:
		return r.onGroupMessage(ctx, in)
	case in.Private:
		return r.onPrivateMessage(ctx, in)
	}
	return nil
}

func (r *Router) onPrivateMessage(ctx context.Context, in Inbound) error {
	name, args := ParseCommand(in.Text)
	if name != "" && r.admins.Contains(in.From.ID) {
		if handled, err := r.adminCommand(ctx, in, name, args); handled {
			return err
		}
	}

	var ev conversation.Event
	switch name {
	case "start":
		ev = conversation.Start{ReferrerID: ParseReferral(args)}
	case "menu":
		ev = conversation.OpenMenu{}
	case "cancel":
		ev = conversation.Cancel{}
	case "profile":
		ev = conversation.Profile{}
	case "promo":
		ev = conversation.OpenPromo{}
	case "lottery":
		ev = conversation.Lottery{}
	default:
		ev = conversation.Text{ChatID: in.ChatID, MessageID: in.MessageID, Text: in.Text}
	}
	return r.engine.Handle(ctx, in.From, in.ChatID, ev)
}

func (r *Router) onGroupMessage(ctx context.Context, in Inbound) error {
	if in.Service {
		return nil
	}
	if name, args := ParseCommand(in.Text); name != "" && r.admins.Contains(in.From.ID) {
		if handled, err := r.adminCommand(ctx, in, name, args); handled {
			return err
		}
	}
	if in.ThreadID == 0 {
		return nil
	}
	_, err := r.relay.RouteOperatorToUser(ctx, in.ThreadID, in.MessageID)
	return err
}

func (r *Router) onCallback(ctx context.Context, in Inbound) error {
	cb, err := callback.Parse(in.CallbackData)
	if err == nil && isAdminKind(cb.Kind) {
		if !r.admins.Contains(in.From.ID) {
			r.answer(ctx, in.CallbackID, "⛔ Admins only")
			return nil
		}
		r.answer(ctx, in.CallbackID, "")
		r.respond(ctx, in, r.adminAction(ctx, in.From.ID, cb))
		return nil
	}

	r.answer(ctx, in.CallbackID, "")
	if !in.Private {
		return nil
	}
	return r.engine.Handle(ctx, in.From, in.ChatID, conversation.FromCallback(in.CallbackData))
}

func (r *Router) answer(ctx context.Context, id, text string) {
	if r.answers == nil {
		return
	}
	if err := r.answers.AnswerCallback(ctx, id, text); err != nil {
		logger.Log.Debug("failed to answer callback", zap.Error(err))
	}
}

// respond replies where the admin acted, inside the same topic
func (r *Router) respond(ctx context.Context, in Inbound, text string) {
	if _, err := r.msg.Send(ctx, in.ChatID, in.ThreadID, text, nil); err != nil {
		logger.Log.Warn("failed to answer admin", zap.Int64("admin_id", in.From.ID), zap.Error(err))
	}
}

func isAdminKind(k callback.Kind) bool {
	switch k {
	case callback.KindAdminConfirm, callback.KindAdminReject, callback.KindAdminPaid, callback.KindAdminDecline:
		return true
	}
	return false
}

func (r *Router) adminAction(ctx context.Context, adminID int64, cb callback.Callback) string {
	switch cb.Kind {
	case callback.KindAdminConfirm:
		return r.resolveOrder(ctx, adminID, cb.ID, true)
	case callback.KindAdminReject:
		return r.resolveOrder(ctx, adminID, cb.ID, false)
	case callback.KindAdminPaid, callback.KindAdminDecline:
		w, err := r.admin.ResolveWithdrawal(ctx, adminID, cb.ID, cb.Kind == callback.KindAdminPaid)
		switch {
		case errors.Is(err, services.ErrWithdrawalNotPending):
			return fmt.Sprintf("ℹ️ Withdrawal #%d is already resolved.", cb.ID)
		case errors.Is(err, services.ErrWithdrawalNotFound):
			return fmt.Sprintf("❌ Withdrawal #%d not found.", cb.ID)
		case err != nil:
			logger.Log.Error("withdrawal resolution failed", zap.Uint("withdrawal_id", cb.ID), zap.Int64("admin_id", adminID), zap.Error(err))
			return "❌ Failed to resolve the withdrawal."
		}
		return fmt.Sprintf("✅ Withdrawal #%d marked %s.", w.ID, w.Status)
	}
	return ""
}

func (r *Router) resolveOrder(ctx context.Context, adminID int64, orderID uint, confirm bool) string {
	var (
		result *services.TransitionResult
		err    error
	)
	if confirm {
		result, err = r.admin.ConfirmOrder(ctx, adminID, orderID)
	} else {
		result, err = r.admin.RejectOrder(ctx, adminID, orderID)
	}

	number := utils.OrderNumber(orderID)
	switch {
	case errors.Is(err, services.ErrAlreadyFinalized):
		return fmt.Sprintf("ℹ️ Order #%d is already %s. Nothing changed.", number, result.Order.Status)
	case errors.Is(err, services.ErrOrderNotFound):
		return fmt.Sprintf("❌ Order #%d not found.", number)
	case err != nil:
		logger.Log.Error("order resolution failed",
			zap.Uint("order_id", orderID), zap.Int64("admin_id", adminID), zap.Bool("confirm", confirm), zap.Error(err))
		return fmt.Sprintf("❌ Failed to update order #%d. Nothing was changed.", number)
	}

	if confirm {
		text := fmt.Sprintf("✅ Order #%d completed.", number)
		if result.Earning != nil {
			text += fmt.Sprintf(" Referrer %d earned %s %s.", result.Earning.ReferrerID, utils.FormatFiat(result.Earning.Amount), "RUB")
		}
		return text
	}
	text := fmt.Sprintf("❌ Order #%d rejected.", number)
	if result.PromoRefunded {
		text += " Promo returned to the user."
	}
	return text
}

// adminCommand runs an operator command; handled is false for names that
// are not admin commands so user commands still work for admins
func (r *Router) adminCommand(ctx context.Context, in Inbound, name, args string) (handled bool, err error) {
	var text string
	switch name {
	case "confirm", "reject":
		orderID, perr := ParseOrderNumber(args)
		if perr != nil {
			text = fmt.Sprintf("Usage: /%s ORDER_NUMBER", name)
			break
		}
		text = r.resolveOrder(ctx, in.From.ID, orderID, name == "confirm")

	case "broadcast":
		if args == "" {
			text = "Usage: /broadcast TEXT"
			break
		}
		res, berr := r.admin.Broadcast(ctx, in.From.ID, args)
		if berr != nil {
			logger.Log.Error("broadcast failed", zap.Int64("admin_id", in.From.ID), zap.Error(berr))
			text = "❌ Broadcast failed: " + html.EscapeString(berr.Error())
			if res != nil {
				text += fmt.Sprintf("\nDelivered before failure: %d", res.Delivered)
			}
			break
		}
		text = fmt.Sprintf("📣 Broadcast %s done. Delivered: %d, failed: %d.", res.ID, res.Delivered, res.Failed)

	case "addpromo":
		code, uses, perr := ParsePromoArgs(args)
		if perr != nil {
			text = "Usage: /addpromo CODE,USES"
			break
		}
		promo, cerr := r.admin.CreatePromo(ctx, in.From.ID, code, uses)
		switch {
		case errors.Is(cerr, services.ErrPromoExists):
			text = "⚠️ This promo code already exists."
		case cerr != nil:
			logger.Log.Error("promo creation failed", zap.Int64("admin_id", in.From.ID), zap.Error(cerr))
			text = "❌ Failed to create the promo code."
		default:
			text = fmt.Sprintf("🎟 Promo <code>%s</code> created with %d uses.", html.EscapeString(promo.Code), promo.UsesLeft)
		}

	case "stats":
		stats, serr := r.admin.Stats(ctx)
		if serr != nil {
			return true, serr
		}
		text = StatsText(stats)

	case "token":
		if !in.Private {
			text = "Request the token in a private chat with the bot."
			break
		}
		token, terr := auth.GenerateToken(in.From.ID)
		if terr != nil {
			return true, terr
		}
		text = fmt.Sprintf("🔑 Admin API token (valid %s):\n<code>%s</code>", auth.TokenTTL, token)

	default:
		return false, nil
	}

	r.respond(ctx, in, text)
	return true, nil
}

// StatsText renders the /stats report
func StatsText(s *services.Stats) string {
	var b strings.Builder
	b.WriteString("📊 <b>Statistics</b>\n\n")
	fmt.Fprintf(&b, "👥 Users: %d\n", s.Users)
	for _, st := range []models.OrderStatus{
		models.OrderStatusProcessing, models.OrderStatusCompleted,
		models.OrderStatusRejected, models.OrderStatusCancelledByUser,
	} {
		fmt.Fprintf(&b, "📦 %s: %d\n", st, s.OrdersByStatus[st])
	}
	fmt.Fprintf(&b, "💰 Completed volume: %s RUB\n", utils.FormatFiat(s.CompletedVolume))
	fmt.Fprintf(&b, "🤝 Referral paid: %s RUB\n", utils.FormatFiat(s.ReferralPaid))
	fmt.Fprintf(&b, "🎟 Active promos: %d\n", s.ActivePromos)
	fmt.Fprintf(&b, "💸 Pending withdrawals: %d", s.PendingWithdrawals)
	return b.String()
}
