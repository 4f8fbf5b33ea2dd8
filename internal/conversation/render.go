package conversation

import (
	"fmt"
	"html"
	"strings"

	"crypto-exchange-bot/internal/callback"
	"crypto-exchange-bot/internal/messenger"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/services"
	"crypto-exchange-bot/internal/utils"

	"github.com/shopspring/decimal"
)

const fiatCode = "RUB"

const (
	textWelcome        = "👋 Welcome! Buy or sell crypto for rubles in a few steps.\nChoose an action:"
	textMenu           = "Choose an action:"
	textCancelled      = "Operation cancelled."
	textStartOver      = "⚠️ Something went wrong. Let's start over."
	textGenericFailure = "❌ Could not complete the request. Please try again later."
	textAmountFormat   = "❌ Invalid amount. Enter a positive number, for example 0.01 or 1500,50."
	textRateDown       = "⚠️ Exchange rate is temporarily unavailable. Try again in a minute."
	textNoActiveOrder  = "⚠️ You have no active order. It may already be closed."
	textUseMenu        = "Please use the menu buttons."
	textReplyPrompt    = "✍️ Type your message for the operator. Everything you send is forwarded until you end the chat."
	textReplyEnded     = "✅ Chat with the operator ended."
	textPromoPrompt    = "🎟 Send your promo code:"
	textTxLinkPrompt   = "📎 Send the link to your transaction in the blockchain explorer."
	textEmptyInput     = "Please send a text message."
)

func mainMenu() *messenger.Keyboard {
	return messenger.NewKeyboard(
		messenger.Row(
			messenger.Button{Text: "🟢 Buy", Data: callback.Action(string(models.ActionBuy))},
			messenger.Button{Text: "🔴 Sell", Data: callback.Action(string(models.ActionSell))},
		),
		messenger.Row(
			messenger.Button{Text: "👤 Profile", Data: callback.Simple(callback.KindProfile)},
			messenger.Button{Text: "🎟 Promo code", Data: callback.Simple(callback.KindPromo)},
		),
		messenger.Row(
			messenger.Button{Text: "🎰 Daily lottery", Data: callback.Simple(callback.KindLottery)},
		),
	)
}

func cancelButton() messenger.Button {
	return messenger.Button{Text: "✖️ Cancel", Data: callback.Simple(callback.KindCancel)}
}

func menuButton() messenger.Button {
	return messenger.Button{Text: "🏠 Menu", Data: callback.Simple(callback.KindMenu)}
}

func menuOnly() *messenger.Keyboard {
	return messenger.NewKeyboard(messenger.Row(menuButton()))
}

func assetMenu() *messenger.Keyboard {
	kb := &messenger.Keyboard{}
	var row []messenger.Button
	for _, asset := range models.SupportedAssets {
		row = append(row, messenger.Button{Text: asset, Data: callback.Asset(asset)})
		if len(row) == 2 {
			kb.Rows = append(kb.Rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb.Rows = append(kb.Rows, row)
	}
	kb.Rows = append(kb.Rows, messenger.Row(cancelButton()))
	return kb
}

func actionVerb(action models.OrderAction) string {
	if action == models.ActionBuy {
		return "buy"
	}
	return "sell"
}

func unitCode(unit services.AmountUnit, asset string) string {
	if unit == services.UnitFiat {
		return fiatCode
	}
	return asset
}

func assetPrompt(action models.OrderAction) string {
	return fmt.Sprintf("Which currency do you want to %s?", actionVerb(action))
}

func amountPrompt(s Session, rate decimal.Decimal) (string, *messenger.Keyboard) {
	text := fmt.Sprintf("💱 Rate: 1 %s = %s %s\n\nEnter the amount to %s in <b>%s</b>:",
		s.Asset, utils.FormatFiat(rate), fiatCode, actionVerb(s.Action), unitCode(s.Unit, s.Asset))
	other := unitCode(s.Unit.Other(), s.Asset)
	kb := messenger.NewKeyboard(
		messenger.Row(messenger.Button{Text: "🔁 Enter in " + other, Data: callback.Simple(callback.KindSwitchUnit)}),
		messenger.Row(cancelButton()),
	)
	return text, kb
}

func quoteLines(q services.Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💎 Amount: <b>%s %s</b>\n", utils.FormatAsset(q.AssetAmount), q.Asset)
	fmt.Fprintf(&b, "💱 Rate: %s %s\n", utils.FormatFiat(q.Rate), fiatCode)
	fmt.Fprintf(&b, "💰 Amount in %s: %s\n", fiatCode, utils.FormatFiat(q.FiatAmount))
	if q.PromoApplied {
		b.WriteString("🎟 Promo applied: no fees\n")
	} else {
		fmt.Fprintf(&b, "🧾 Service fee: %s %s\n", utils.FormatFiat(q.ServiceFee), fiatCode)
		fmt.Fprintf(&b, "⛽ Network fee: %s %s\n", utils.FormatFiat(q.NetworkFee), fiatCode)
	}
	if q.Action == models.ActionBuy {
		fmt.Fprintf(&b, "✅ You pay: <b>%s %s</b>", utils.FormatFiat(q.SettlementTotal), fiatCode)
	} else {
		fmt.Fprintf(&b, "✅ You receive: <b>%s %s</b>", utils.FormatFiat(q.SettlementTotal), fiatCode)
	}
	return b.String()
}

func quoteSummary(q services.Quote) (string, *messenger.Keyboard) {
	text := fmt.Sprintf("📋 <b>%s %s</b>\n━━━━━━━━━━━━━━━━━━━━\n%s\n\nChoose how to pay:",
		actionTitle(q.Action), q.Asset, quoteLines(q))
	kb := messenger.NewKeyboard(
		messenger.Row(
			messenger.Button{Text: "📱 SBP", Data: callback.Payment(string(models.PaymentSBP))},
			messenger.Button{Text: "👨‍💼 Operator", Data: callback.Payment(string(models.PaymentOperator))},
		),
		messenger.Row(cancelButton()),
	)
	return text, kb
}

// PaymentDetails renders the payment instructions and the requisites request
// for a chosen payment method
func PaymentDetails(action models.OrderAction, asset string, method models.PaymentMethod, wallet, sbpPhone, sbpBank string) string {
	var b strings.Builder
	if method == models.PaymentOperator {
		b.WriteString("👨‍💼 An operator will guide you through the payment.\n\n")
	}

	switch action {
	case models.ActionSell:
		if method == models.PaymentSBP {
			if wallet != "" {
				fmt.Fprintf(&b, "📤 Send %s to:\n<code>%s</code>\n\n", asset, html.EscapeString(wallet))
			} else {
				fmt.Fprintf(&b, "📤 %s deposits are temporarily unavailable. An operator will send you the address.\n\n", asset)
			}
		}
		b.WriteString("Send your phone number and bank to receive rubles.\nExample: +79999999999, Sberbank")
	default:
		if method == models.PaymentSBP {
			fmt.Fprintf(&b, "📱 Pay by SBP:\nPhone: <code>%s</code>\nBank: %s\n\n", html.EscapeString(sbpPhone), html.EscapeString(sbpBank))
		}
		fmt.Fprintf(&b, "Send the address of your %s wallet to receive the coins.", asset)
	}
	return b.String()
}

func finalSummary(s Session) (string, *messenger.Keyboard) {
	text := fmt.Sprintf("🔎 <b>Check your order</b>\n━━━━━━━━━━━━━━━━━━━━\n%s\n💳 Payment: %s\n📝 Requisites: <code>%s</code>\n\nConfirm?",
		quoteLines(*s.Quote), paymentLabel(s.PaymentMethod), html.EscapeString(s.Requisites))
	kb := messenger.NewKeyboard(messenger.Row(
		messenger.Button{Text: "✅ Confirm", Data: callback.Simple(callback.KindConfirm)},
		cancelButton(),
	))
	return text, kb
}

func paymentLabel(m models.PaymentMethod) string {
	if m == models.PaymentOperator {
		return "via operator"
	}
	return "SBP"
}

func orderCreated(order *models.Order) (string, *messenger.Keyboard) {
	text := fmt.Sprintf("✅ Order <b>#%d</b> created.\nTotal: <b>%s %s</b>\n\nAn operator will contact you here. Messages you send now go straight to the operator.",
		utils.OrderNumber(order.ID), utils.FormatFiat(order.SettlementTotal), fiatCode)
	return text, orderKeyboard(order)
}

func orderKeyboard(order *models.Order) *messenger.Keyboard {
	kb := &messenger.Keyboard{}
	if order.Action == models.ActionSell {
		kb.Rows = append(kb.Rows, messenger.Row(
			messenger.Button{Text: "📎 Send transaction link", Data: callback.WithID(callback.KindTxLink, order.ID)},
		))
	}
	kb.Rows = append(kb.Rows,
		messenger.Row(messenger.Button{Text: "🚫 Cancel order", Data: callback.WithID(callback.KindCancelOrder, order.ID)}),
		messenger.Row(endReplyButton()),
	)
	return kb
}

func endReplyButton() messenger.Button {
	return messenger.Button{Text: "🔚 End chat", Data: callback.Simple(callback.KindEndReply)}
}

func conflict(activeOrderID uint) (string, *messenger.Keyboard) {
	text := fmt.Sprintf("⚠️ You already have an active order #%d. Finish it before starting a new exchange.",
		utils.OrderNumber(activeOrderID))
	kb := messenger.NewKeyboard(
		messenger.Row(messenger.Button{Text: "✍️ Reply to active order", Data: callback.WithID(callback.KindReply, activeOrderID)}),
		messenger.Row(menuButton()),
	)
	return text, kb
}

// ProfileText renders the profile screen
func ProfileText(user *models.User, stats *services.ReferralStats, refLink string, minWithdrawal decimal.Decimal) (string, *messenger.Keyboard) {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 <b>%s</b>\n", html.EscapeString(utils.DisplayName(user.ID, user.Username, user.FullName)))
	fmt.Fprintf(&b, "🆔 <code>%d</code>\n\n", user.ID)
	if user.ActivePromo != nil {
		fmt.Fprintf(&b, "🎟 Active promo: <code>%s</code>\n", html.EscapeString(*user.ActivePromo))
	}
	fmt.Fprintf(&b, "👥 Referrals: %d\n", stats.Referrals)
	fmt.Fprintf(&b, "💵 Earned: %s %s\n", utils.FormatFiat(stats.TotalEarned), fiatCode)
	fmt.Fprintf(&b, "💰 Balance: <b>%s %s</b>\n", utils.FormatFiat(stats.Balance), fiatCode)
	if refLink != "" {
		fmt.Fprintf(&b, "\n🔗 Your referral link:\n%s\n", html.EscapeString(refLink))
	}
	fmt.Fprintf(&b, "\nMinimum withdrawal: %s %s", utils.FormatFiat(minWithdrawal), fiatCode)

	kb := &messenger.Keyboard{}
	if stats.Balance.GreaterThanOrEqual(minWithdrawal) && stats.Balance.IsPositive() {
		kb.Rows = append(kb.Rows, messenger.Row(messenger.Button{Text: "💸 Withdraw", Data: callback.Simple(callback.KindWithdraw)}))
	}
	kb.Rows = append(kb.Rows, messenger.Row(menuButton()))
	return b.String(), kb
}

// LotteryText renders the lottery menu
func LotteryText(status *services.LotteryStatus) (string, *messenger.Keyboard) {
	var b strings.Builder
	b.WriteString("🎰 <b>Daily lottery</b>\n\n")
	if status.TicketGranted {
		b.WriteString("🎟 You received today's free ticket!\n")
	}
	switch {
	case status.CanPlay:
		b.WriteString("Press the button to try your luck. Winnings go to your referral balance.")
	case status.NextPlayIn > 0:
		fmt.Fprintf(&b, "⏳ Next game in %s", utils.FormatCountdown(status.NextPlayIn))
	default:
		b.WriteString("No valid ticket right now. Come back tomorrow.")
	}

	kb := &messenger.Keyboard{}
	if status.CanPlay {
		kb.Rows = append(kb.Rows, messenger.Row(messenger.Button{Text: "🍀 Try my luck", Data: callback.Simple(callback.KindLotteryPlay)}))
	}
	kb.Rows = append(kb.Rows, messenger.Row(menuButton()))
	return b.String(), kb
}

func actionTitle(action models.OrderAction) string {
	if action == models.ActionBuy {
		return "Buy"
	}
	return "Sell"
}
