package conversation

import (
	"errors"
	"fmt"
	"strings"

	"crypto-exchange-bot/internal/callback"
	"crypto-exchange-bot/internal/messenger"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/services"
)

// Transition is the dialogue: given the current session and an event it
// returns the next session and the effects to run. It performs no I/O.
func Transition(s Session, ev Event) (Session, []Effect) {
	switch e := ev.(type) {
	case Start:
		return s.Reset(), reply(textWelcome, mainMenu())
	case OpenMenu:
		return s.Reset(), reply(textMenu, mainMenu())
	case Cancel:
		return s.Reset(), reply(textCancelled, mainMenu())
	case Malformed:
		return s.Reset(), []Effect{
			LogContractError{Detail: fmt.Sprintf("malformed callback %q in state %s", e.Payload, s.State)},
			Reply{Text: textStartOver, Keyboard: mainMenu()},
		}

	case ChooseAction:
		if e.ActiveOrderID != 0 {
			return s.Reset(), reply(conflict(e.ActiveOrderID))
		}
		if !e.Action.Valid() {
			return contractError(s, fmt.Sprintf("unknown action %q", e.Action))
		}
		next := s.Reset()
		next.State = StateAssetActionChosen
		next.Action = e.Action
		return next, reply(assetPrompt(e.Action), assetMenu())

	case ChooseAsset:
		if s.State != StateAssetActionChosen && s.State != StateAwaitingAmount {
			return stale(s)
		}
		if !models.IsSupportedAsset(e.Asset) {
			return contractError(s, fmt.Sprintf("unsupported asset %q", e.Asset))
		}
		s.State = StateAwaitingAmount
		s.Asset = e.Asset
		s.Unit = services.UnitAsset
		s.Quote = nil
		return s, []Effect{FetchRate{Asset: e.Asset}}

	case SwitchUnit:
		if s.State != StateAwaitingAmount {
			return stale(s)
		}
		s.Unit = s.Unit.Other()
		return s, []Effect{FetchRate{Asset: s.Asset}}

	case PromptReady:
		if s.State != StateAwaitingAmount {
			return s, nil
		}
		return s, reply(amountPrompt(s, e.Rate))

	case PromptFailed:
		s.State = StateAssetActionChosen
		s.Asset = ""
		return s, reply(textRateDown+"\n\n"+assetPrompt(s.Action), assetMenu())

	case Text:
		return onText(s, e)

	case QuoteComputed:
		if s.State != StateAwaitingAmount {
			return s, nil
		}
		q := e.Quote
		s.Quote = &q
		s.State = StateAwaitingRequisites
		s.PaymentMethod = ""
		return s, reply(quoteSummary(q))

	case QuoteFailed:
		switch {
		case errors.Is(e.Err, services.ErrRateUnavailable):
			return s, reply(textRateDown, messenger.NewKeyboard(messenger.Row(cancelButton())))
		case errors.Is(e.Err, services.ErrInvalidAmount):
			return s, reply(textAmountFormat, nil)
		}
		return s.Reset(), reply(textGenericFailure, mainMenu())

	case ChoosePaymentMethod:
		if s.State != StateAwaitingRequisites {
			return stale(s)
		}
		if s.Quote == nil {
			return contractError(s, "payment method chosen without a quote")
		}
		if e.Method != models.PaymentSBP && e.Method != models.PaymentOperator {
			return contractError(s, fmt.Sprintf("unknown payment method %q", e.Method))
		}
		s.PaymentMethod = e.Method
		return s, []Effect{FetchPaymentDetails{Action: s.Action, Asset: s.Asset, Method: e.Method}}

	case PaymentDetailsReady:
		if s.State != StateAwaitingRequisites {
			return s, nil
		}
		return s, reply(e.Text, messenger.NewKeyboard(messenger.Row(cancelButton())))

	case Confirm:
		if s.State != StateAwaitingFinalConfirm {
			return stale(s)
		}
		if s.Quote == nil || s.Requisites == "" {
			return contractError(s, "confirm without a complete draft")
		}
		return s, []Effect{CreateOrder{Draft: services.OrderDraft{
			UserID:        s.UserID,
			Quote:         *s.Quote,
			PaymentMethod: s.PaymentMethod,
			Requisites:    s.Requisites,
		}}}

	case OrderCreated:
		next := s.Reset()
		next.State = StateAwaitingOperatorReply
		next.OrderID = e.Order.ID
		return next, reply(orderCreated(e.Order))

	case OrderFailed:
		if errors.Is(e.Err, services.ErrActiveOrderExists) && e.ActiveOrderID != 0 {
			return s.Reset(), reply(conflict(e.ActiveOrderID))
		}
		return s.Reset(), reply(textGenericFailure, mainMenu())

	case StartReply:
		if e.ActiveOrderID == 0 || e.ActiveOrderID != e.OrderID {
			return s.Reset(), reply(textNoActiveOrder, mainMenu())
		}
		next := s.Reset()
		next.State = StateAwaitingOperatorReply
		next.OrderID = e.OrderID
		return next, reply(textReplyPrompt, messenger.NewKeyboard(messenger.Row(endReplyButton())))

	case EndReply:
		return s.Reset(), reply(textReplyEnded, mainMenu())

	case CancelOrder:
		return s.Reset(), []Effect{CancelOrderEffect{OrderID: e.OrderID}}

	case RequestTxLink:
		if e.ActiveOrderID == 0 || e.ActiveOrderID != e.OrderID {
			return s.Reset(), reply(textNoActiveOrder, mainMenu())
		}
		next := s.Reset()
		next.State = StateAwaitingTxLink
		next.OrderID = e.OrderID
		back := messenger.Button{Text: "↩️ Back", Data: callback.WithID(callback.KindReply, e.OrderID)}
		return next, reply(textTxLinkPrompt, messenger.NewKeyboard(messenger.Row(back)))

	case OpenPromo:
		next := s.Reset()
		next.State = StateAwaitingPromoCode
		return next, reply(textPromoPrompt, messenger.NewKeyboard(messenger.Row(cancelButton())))
	case Profile:
		return s.Reset(), []Effect{ShowProfile{}}
	case Lottery:
		return s.Reset(), []Effect{ShowLottery{}}
	case PlayLottery:
		return s.Reset(), []Effect{PlayLotteryEffect{}}
	case Withdraw:
		return s.Reset(), []Effect{RequestWithdrawal{}}
	}

	return contractError(s, fmt.Sprintf("unhandled event %T", ev))
}

func onText(s Session, e Text) (Session, []Effect) {
	input := strings.TrimSpace(e.Text)

	switch s.State {
	case StateAssetActionChosen:
		return s, reply(assetPrompt(s.Action), assetMenu())

	case StateAwaitingAmount:
		if e.ActiveOrderID != 0 {
			return s.Reset(), reply(conflict(e.ActiveOrderID))
		}
		amount, err := ParseAmount(input)
		if err != nil {
			return s, reply(textAmountFormat, nil)
		}
		return s, []Effect{ComputeQuote{Request: services.QuoteRequest{
			Action: s.Action,
			Asset:  s.Asset,
			Amount: amount,
			Unit:   s.Unit,
		}}}

	case StateAwaitingRequisites:
		if s.Quote == nil {
			return contractError(s, "requisites without a quote")
		}
		if input == "" {
			return s, reply(textEmptyInput, nil)
		}
		if s.PaymentMethod == "" {
			s.PaymentMethod = models.PaymentSBP
		}
		s.Requisites = input
		s.State = StateAwaitingFinalConfirm
		return s, reply(finalSummary(s))

	case StateAwaitingFinalConfirm:
		if s.Quote == nil {
			return contractError(s, "final confirm without a quote")
		}
		return s, reply(finalSummary(s))

	case StateAwaitingOperatorReply:
		if e.ActiveOrderID == 0 {
			return s.Reset(), reply(textNoActiveOrder, mainMenu())
		}
		return s, []Effect{ForwardToOperator{ChatID: e.ChatID, MessageID: e.MessageID, Text: e.Text}}

	case StateAwaitingPromoCode:
		if input == "" {
			return s, reply(textPromoPrompt, messenger.NewKeyboard(messenger.Row(cancelButton())))
		}
		return s.Reset(), []Effect{ActivatePromo{Code: input}}

	case StateAwaitingTxLink:
		if e.ActiveOrderID == 0 || e.ActiveOrderID != s.OrderID {
			return s.Reset(), reply(textNoActiveOrder, mainMenu())
		}
		if input == "" {
			return s, reply(textTxLinkPrompt, nil)
		}
		orderID := s.OrderID
		next := s.Reset()
		next.State = StateAwaitingOperatorReply
		next.OrderID = orderID
		return next, []Effect{AttachTxLink{OrderID: orderID, Link: input}}
	}

	if e.ActiveOrderID != 0 {
		return s.Reset(), reply(conflict(e.ActiveOrderID))
	}
	return s.Reset(), reply(textUseMenu, mainMenu())
}

func reply(text string, kb *messenger.Keyboard) []Effect {
	return []Effect{Reply{Text: text, Keyboard: kb}}
}

// stale handles a button pressed on an old message whose step is over
func stale(s Session) (Session, []Effect) {
	if s.State == StateIdle {
		return s, reply(textMenu, mainMenu())
	}
	return s, reply(textUseMenu, nil)
}

func contractError(s Session, detail string) (Session, []Effect) {
	return s.Reset(), []Effect{
		LogContractError{Detail: detail},
		Reply{Text: textStartOver, Keyboard: mainMenu()},
	}
}
