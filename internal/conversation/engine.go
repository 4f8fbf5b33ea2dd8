package conversation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sync"

	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/messenger"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/relay"
	"crypto-exchange-bot/internal/services"
	"crypto-exchange-bot/internal/utils"

	"go.uber.org/zap"
)

// maxSteps bounds effect feedback so a buggy transition cannot loop forever
const maxSteps = 8

// Deps are the collaborators the engine runs effects against
type Deps struct {
	Store     Store
	Messenger messenger.Messenger
	Users     *services.UserService
	Quotes    *services.QuoteService
	Orders    *services.OrderService
	Promos    *services.PromoService
	Referral  *services.ReferralService
	Lottery   *services.LotteryService
	Settings  *services.SettingsService
	Admin     *services.AdminService
	Relay     *relay.Relay

	// BotUsername builds referral links; links are omitted when empty
	BotUsername string
}

// Engine drives Transition for every user. Events of one user are handled
// one at a time; different users proceed concurrently.
type Engine struct {
	Deps

	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewEngine(deps Deps) *Engine {
	return &Engine{Deps: deps, locks: make(map[int64]*userLock)}
}

func (e *Engine) lock(userID int64) func() {
	e.mu.Lock()
	l, ok := e.locks[userID]
	if !ok {
		l = &userLock{}
		e.locks[userID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, userID)
		}
		e.mu.Unlock()
	}
}

// Handle processes one inbound event from a private chat
func (e *Engine) Handle(ctx context.Context, from services.UserProfile, chatID int64, ev Event) error {
	unlock := e.lock(from.ID)
	defer unlock()

	s, err := e.Store.Load(ctx, from.ID)
	fresh := false
	switch {
	case errors.Is(err, ErrSessionNotFound):
		s, fresh = NewSession(from.ID), true
	case err != nil:
		// An unreadable session is dropped rather than blocking the user.
		logger.Log.Error("failed to load session, starting over", zap.Int64("user_id", from.ID), zap.Error(err))
		s, fresh = NewSession(from.ID), true
	}

	if start, ok := ev.(Start); ok || fresh {
		if _, _, err := e.Users.EnsureUser(ctx, from, start.ReferrerID); err != nil {
			e.send(ctx, chatID, textGenericFailure, mainMenu())
			return fmt.Errorf("ensure user %d: %w", from.ID, err)
		}
	}

	ev, err = e.enrich(ctx, from.ID, ev)
	if err != nil {
		e.send(ctx, chatID, textGenericFailure, mainMenu())
		return err
	}

	queue := []Event{ev}
	for step := 0; len(queue) > 0; step++ {
		if step == maxSteps {
			logger.Log.Error("conversation did not settle", zap.Int64("user_id", from.ID), zap.String("state", string(s.State)))
			s = s.Reset()
			break
		}
		next := queue[0]
		queue = queue[1:]

		var effects []Effect
		s, effects = Transition(s, next)
		for _, eff := range effects {
			if feedback := e.run(ctx, from, chatID, eff); feedback != nil {
				queue = append(queue, feedback)
			}
		}
	}

	if err := e.Store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session for user %d: %w", from.ID, err)
	}
	return nil
}

// enrich fills store facts the pure transition needs
func (e *Engine) enrich(ctx context.Context, userID int64, ev Event) (Event, error) {
	switch v := ev.(type) {
	case ChooseAction:
		id, err := e.activeOrderID(ctx, userID)
		v.ActiveOrderID = id
		return v, err
	case Text:
		id, err := e.activeOrderID(ctx, userID)
		v.ActiveOrderID = id
		return v, err
	case StartReply:
		id, err := e.activeOrderID(ctx, userID)
		v.ActiveOrderID = id
		return v, err
	case RequestTxLink:
		id, err := e.activeOrderID(ctx, userID)
		v.ActiveOrderID = id
		return v, err
	}
	return ev, nil
}

func (e *Engine) activeOrderID(ctx context.Context, userID int64) (uint, error) {
	order, err := e.Orders.GetActiveOrder(ctx, userID)
	if errors.Is(err, services.ErrNoActiveOrder) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return order.ID, nil
}

func (e *Engine) send(ctx context.Context, chatID int64, text string, kb *messenger.Keyboard) {
	if _, err := e.Messenger.Send(ctx, chatID, 0, text, kb); err != nil {
		logger.Log.Warn("failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func sender(from services.UserProfile) relay.Sender {
	return relay.Sender{UserID: from.ID, Username: from.Username, FullName: from.FullName}
}

// run executes one effect and returns the event reporting its outcome, if any
func (e *Engine) run(ctx context.Context, from services.UserProfile, chatID int64, eff Effect) Event {
	switch x := eff.(type) {
	case Reply:
		e.send(ctx, chatID, x.Text, x.Keyboard)

	case LogContractError:
		logger.Log.Warn("conversation contract error", zap.Int64("user_id", from.ID), zap.String("detail", x.Detail))

	case FetchRate:
		rate, err := e.Quotes.Rate(ctx, x.Asset)
		if err != nil {
			return PromptFailed{Err: err}
		}
		return PromptReady{Rate: rate}

	case ComputeQuote:
		user, err := e.Users.GetUserByID(ctx, from.ID)
		if err != nil {
			return QuoteFailed{Err: err}
		}
		req := x.Request
		req.PromoActive = user.ActivePromo != nil
		q, err := e.Quotes.Quote(ctx, req)
		if err != nil {
			return QuoteFailed{Err: err}
		}
		return QuoteComputed{Quote: q}

	case FetchPaymentDetails:
		return PaymentDetailsReady{Text: e.paymentDetails(ctx, x)}

	case CreateOrder:
		return e.createOrder(ctx, from, x.Draft)

	case ForwardToOperator:
		e.forward(ctx, from, chatID, x)

	case CancelOrderEffect:
		e.cancelOrder(ctx, from.ID, chatID, x.OrderID)

	case ActivatePromo:
		e.activatePromo(ctx, from.ID, chatID, x.Code)

	case ShowProfile:
		e.showProfile(ctx, from.ID, chatID)

	case ShowLottery:
		status, err := e.Lottery.MaybeGrantTicket(ctx, from.ID)
		if err != nil {
			logger.Log.Error("failed to load lottery status", zap.Int64("user_id", from.ID), zap.Error(err))
			e.send(ctx, chatID, textGenericFailure, mainMenu())
			return nil
		}
		text, kb := LotteryText(status)
		e.send(ctx, chatID, text, kb)

	case PlayLotteryEffect:
		e.playLottery(ctx, from.ID, chatID)

	case RequestWithdrawal:
		e.requestWithdrawal(ctx, from, chatID)

	case AttachTxLink:
		e.attachTxLink(ctx, from.ID, chatID, x)

	default:
		logger.Log.Error("unknown effect", zap.String("type", fmt.Sprintf("%T", eff)))
	}
	return nil
}

func (e *Engine) paymentDetails(ctx context.Context, x FetchPaymentDetails) string {
	var wallet, phone, bank string
	var err error
	if x.Action == models.ActionSell {
		wallet, err = e.Settings.Wallet(ctx, x.Asset)
	} else {
		phone, bank, err = e.Settings.SBP(ctx)
	}
	if err != nil {
		logger.Log.Error("failed to read payment settings", zap.String("asset", x.Asset), zap.Error(err))
	}
	return PaymentDetails(x.Action, x.Asset, x.Method, wallet, phone, bank)
}

func (e *Engine) createOrder(ctx context.Context, from services.UserProfile, draft services.OrderDraft) Event {
	order, err := e.Orders.CreateOrder(ctx, draft)
	if err != nil {
		failed := OrderFailed{Err: err}
		if errors.Is(err, services.ErrActiveOrderExists) {
			failed.ActiveOrderID, _ = e.activeOrderID(ctx, from.ID)
		} else {
			logger.Log.Error("order creation failed", zap.Int64("user_id", from.ID), zap.Error(err))
		}
		return failed
	}

	if _, err := e.Relay.OpenOrderChannel(ctx, order, sender(from)); err != nil {
		logger.Log.Error("order created without relay channel",
			zap.Uint("order_id", order.ID),
			zap.Int64("user_id", from.ID),
			zap.Error(err))
	}
	return OrderCreated{Order: order}
}

func (e *Engine) forward(ctx context.Context, from services.UserProfile, chatID int64, x ForwardToOperator) {
	order, err := e.Relay.RouteUserToOperator(ctx, sender(from), x.ChatID, x.MessageID, x.Text)
	switch {
	case errors.Is(err, services.ErrNoActiveOrder):
		e.send(ctx, chatID, textNoActiveOrder, mainMenu())
	case err != nil:
		e.send(ctx, chatID, "❌ Could not deliver your message. Please try again.", messenger.NewKeyboard(messenger.Row(endReplyButton())))
	default:
		e.send(ctx, chatID, "📨 Sent to the operator.", orderKeyboard(order))
	}
}

func (e *Engine) cancelOrder(ctx context.Context, userID, chatID int64, orderID uint) {
	result, err := e.Admin.CancelOrderForUser(ctx, userID, orderID)
	switch {
	case errors.Is(err, services.ErrAlreadyFinalized):
		e.send(ctx, chatID, fmt.Sprintf("ℹ️ Order #%d is already closed.", utils.OrderNumber(orderID)), mainMenu())
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrNotOrderOwner):
		e.send(ctx, chatID, textNoActiveOrder, mainMenu())
	case err != nil:
		logger.Log.Error("user cancellation failed", zap.Uint("order_id", orderID), zap.Int64("user_id", userID), zap.Error(err))
		e.send(ctx, chatID, textGenericFailure, mainMenu())
	default:
		text := fmt.Sprintf("🚫 Order #%d cancelled.", utils.OrderNumber(orderID))
		if result.PromoRefunded {
			text += "\n🎟 Your promo code is active again."
		}
		e.send(ctx, chatID, text, mainMenu())
	}
}

func (e *Engine) activatePromo(ctx context.Context, userID, chatID int64, code string) {
	_, err := e.Promos.Activate(ctx, userID, code)
	var text string
	switch {
	case err == nil:
		text = fmt.Sprintf("✅ Promo code <code>%s</code> activated. Your next exchange is fee-free.", html.EscapeString(services.NormalizeCode(code)))
	case errors.Is(err, services.ErrPromoAlreadyActive):
		text = "⚠️ You already have an active promo code. Use it on an exchange first."
	case errors.Is(err, services.ErrPromoAlreadyRedeemed):
		text = "⚠️ You have already used this promo code."
	case errors.Is(err, services.ErrPromoInvalid):
		text = "❌ Promo code is invalid or expired."
	default:
		logger.Log.Error("promo activation failed", zap.Int64("user_id", userID), zap.Error(err))
		text = textGenericFailure
	}
	e.send(ctx, chatID, text, mainMenu())
}

func (e *Engine) showProfile(ctx context.Context, userID, chatID int64) {
	user, err := e.Users.GetUserByID(ctx, userID)
	if err != nil {
		logger.Log.Error("failed to load profile", zap.Int64("user_id", userID), zap.Error(err))
		e.send(ctx, chatID, textGenericFailure, mainMenu())
		return
	}
	stats, err := e.Referral.GetReferralStats(ctx, userID)
	if err != nil {
		logger.Log.Error("failed to load referral stats", zap.Int64("user_id", userID), zap.Error(err))
		e.send(ctx, chatID, textGenericFailure, mainMenu())
		return
	}

	var link string
	if e.BotUsername != "" {
		link = fmt.Sprintf("https://t.me/%s?start=ref_%d", e.BotUsername, userID)
	}
	text, kb := ProfileText(user, stats, link, e.Referral.MinWithdrawal())
	e.send(ctx, chatID, text, kb)
}

func (e *Engine) playLottery(ctx context.Context, userID, chatID int64) {
	prize, err := e.Lottery.Play(ctx, userID)
	var text string
	switch {
	case errors.Is(err, services.ErrNoTicket):
		text = "🎟 You have no valid ticket. Open the lottery menu to get today's ticket."
	case errors.Is(err, services.ErrLotteryCooldown):
		text = "⏳ You have already played in the last 24 hours."
	case err != nil:
		logger.Log.Error("lottery play failed", zap.Int64("user_id", userID), zap.Error(err))
		text = textGenericFailure
	case prize.IsZero():
		text = "🙁 No luck this time. Try again tomorrow!"
	default:
		text = fmt.Sprintf("🎉 You won <b>%s %s</b>! It has been added to your balance.", utils.FormatFiat(prize), fiatCode)
	}
	e.send(ctx, chatID, text, mainMenu())
}

func (e *Engine) requestWithdrawal(ctx context.Context, from services.UserProfile, chatID int64) {
	w, err := e.Referral.RequestWithdrawal(ctx, from.ID)
	switch {
	case errors.Is(err, services.ErrInsufficientBalance):
		e.send(ctx, chatID, fmt.Sprintf("⚠️ Minimum withdrawal is %s %s.", utils.FormatFiat(e.Referral.MinWithdrawal()), fiatCode), menuOnly())
		return
	case err != nil:
		logger.Log.Error("withdrawal request failed", zap.Int64("user_id", from.ID), zap.Error(err))
		e.send(ctx, chatID, textGenericFailure, mainMenu())
		return
	}

	if _, err := e.Relay.OpenWithdrawalChannel(ctx, w, sender(from)); err != nil {
		logger.Log.Error("withdrawal created without relay channel",
			zap.Uint("withdrawal_id", w.ID), zap.Int64("user_id", from.ID), zap.Error(err))
	}
	e.send(ctx, chatID, fmt.Sprintf("✅ Withdrawal of <b>%s %s</b> requested. An operator will contact you.",
		utils.FormatFiat(w.Amount), fiatCode), mainMenu())
}

func (e *Engine) attachTxLink(ctx context.Context, userID, chatID int64, x AttachTxLink) {
	order, err := e.Orders.AttachTxLink(ctx, userID, x.OrderID, x.Link)
	if errors.Is(err, services.ErrNoActiveOrder) {
		e.send(ctx, chatID, textNoActiveOrder, mainMenu())
		return
	}
	if err != nil {
		logger.Log.Error("failed to attach tx link", zap.Uint("order_id", x.OrderID), zap.Int64("user_id", userID), zap.Error(err))
		e.send(ctx, chatID, textGenericFailure, mainMenu())
		return
	}

	if order.RelayChannelID != nil {
		note := "🔗 Transaction link: " + html.EscapeString(x.Link)
		if err := e.Relay.NotifyChannel(ctx, *order.RelayChannelID, note); err != nil {
			logger.Log.Warn("failed to post tx link", zap.Uint("order_id", order.ID), zap.Error(err))
		}
	}
	e.send(ctx, chatID, "✅ Transaction link sent to the operator.", orderKeyboard(order))
}
