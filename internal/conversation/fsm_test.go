package conversation

import (
	"errors"
	"testing"

	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuote() services.Quote {
	return services.Quote{
		Action:          models.ActionSell,
		Asset:           models.AssetBTC,
		Unit:            services.UnitAsset,
		Rate:            decimal.NewFromInt(5000000),
		AssetAmount:     decimal.RequireFromString("0.01"),
		FiatAmount:      decimal.NewFromInt(50000),
		ServiceFee:      decimal.NewFromInt(6000),
		NetworkFee:      decimal.NewFromInt(290),
		SettlementTotal: decimal.NewFromInt(43710),
	}
}

func onlyReply(t *testing.T, effects []Effect) Reply {
	t.Helper()
	require.Len(t, effects, 1)
	r, ok := effects[0].(Reply)
	require.True(t, ok, "expected Reply, got %T", effects[0])
	return r
}

func TestHappyPathToOrder(t *testing.T) {
	s := NewSession(42)

	s, effects := Transition(s, ChooseAction{Action: models.ActionSell})
	assert.Equal(t, StateAssetActionChosen, s.State)
	assert.Contains(t, onlyReply(t, effects).Text, "sell")

	s, effects = Transition(s, ChooseAsset{Asset: models.AssetBTC})
	assert.Equal(t, StateAwaitingAmount, s.State)
	assert.Equal(t, services.UnitAsset, s.Unit)
	assert.Equal(t, []Effect{FetchRate{Asset: models.AssetBTC}}, effects)

	s, effects = Transition(s, PromptReady{Rate: decimal.NewFromInt(5000000)})
	assert.Contains(t, onlyReply(t, effects).Text, "5 000 000")

	s, effects = Transition(s, Text{Text: "0,01"})
	require.Len(t, effects, 1)
	cq, ok := effects[0].(ComputeQuote)
	require.True(t, ok)
	assert.True(t, cq.Request.Amount.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, models.ActionSell, cq.Request.Action)
	assert.Equal(t, StateAwaitingAmount, s.State)

	s, effects = Transition(s, QuoteComputed{Quote: sampleQuote()})
	assert.Equal(t, StateAwaitingRequisites, s.State)
	require.NotNil(t, s.Quote)
	assert.Contains(t, onlyReply(t, effects).Text, "43 710")

	s, effects = Transition(s, ChoosePaymentMethod{Method: models.PaymentSBP})
	assert.Equal(t, []Effect{FetchPaymentDetails{Action: models.ActionSell, Asset: models.AssetBTC, Method: models.PaymentSBP}}, effects)

	s, effects = Transition(s, Text{Text: "  +79990001122, Sberbank "})
	assert.Equal(t, StateAwaitingFinalConfirm, s.State)
	assert.Equal(t, "+79990001122, Sberbank", s.Requisites)
	assert.Contains(t, onlyReply(t, effects).Text, "Sberbank")

	s, effects = Transition(s, Confirm{})
	require.Len(t, effects, 1)
	co, ok := effects[0].(CreateOrder)
	require.True(t, ok)
	assert.Equal(t, int64(42), co.Draft.UserID)
	assert.Equal(t, models.PaymentSBP, co.Draft.PaymentMethod)
	assert.Equal(t, "+79990001122, Sberbank", co.Draft.Requisites)

	s, effects = Transition(s, OrderCreated{Order: &models.Order{ID: 7, Action: models.ActionSell, SettlementTotal: decimal.NewFromInt(43710)}})
	assert.Equal(t, StateAwaitingOperatorReply, s.State)
	assert.Equal(t, uint(7), s.OrderID)
	assert.Nil(t, s.Quote)
	assert.Contains(t, onlyReply(t, effects).Text, "#10006")
}

func TestSwitchUnitKeepsSelection(t *testing.T) {
	s := Session{UserID: 1, State: StateAwaitingAmount, Action: models.ActionBuy, Asset: models.AssetLTC, Unit: services.UnitAsset}

	s, effects := Transition(s, SwitchUnit{})
	assert.Equal(t, services.UnitFiat, s.Unit)
	assert.Equal(t, models.ActionBuy, s.Action)
	assert.Equal(t, models.AssetLTC, s.Asset)
	assert.Equal(t, []Effect{FetchRate{Asset: models.AssetLTC}}, effects)

	s, effects = Transition(s, PromptReady{Rate: decimal.NewFromInt(7000)})
	assert.Contains(t, onlyReply(t, effects).Text, "<b>RUB</b>")

	s, _ = Transition(s, SwitchUnit{})
	assert.Equal(t, services.UnitAsset, s.Unit)
}

func TestInvalidAmountStaysInState(t *testing.T) {
	base := Session{UserID: 1, State: StateAwaitingAmount, Action: models.ActionSell, Asset: models.AssetBTC, Unit: services.UnitAsset}

	for _, input := range []string{"", "abc", "0", "-5", "1,000.5", "1e3"} {
		s, effects := Transition(base, Text{Text: input})
		assert.Equal(t, base, s, input)
		assert.Equal(t, textAmountFormat, onlyReply(t, effects).Text, input)
	}
}

func TestActiveOrderBlocksNewFlow(t *testing.T) {
	s, effects := Transition(NewSession(1), ChooseAction{Action: models.ActionBuy, ActiveOrderID: 3})
	assert.Equal(t, StateIdle, s.State)
	r := onlyReply(t, effects)
	assert.Contains(t, r.Text, "#10002")
	require.NotNil(t, r.Keyboard)
	assert.Equal(t, "reply:3", r.Keyboard.Rows[0][0].Data)

	// an order created from another device while the amount prompt was open
	inFlow := Session{UserID: 1, State: StateAwaitingAmount, Action: models.ActionBuy, Asset: models.AssetBTC, Unit: services.UnitFiat}
	s, effects = Transition(inFlow, Text{Text: "1000", ActiveOrderID: 3})
	assert.Equal(t, StateIdle, s.State)
	assert.Contains(t, onlyReply(t, effects).Text, "active order")
}

func TestCancelFromAnyStateDiscardsDraft(t *testing.T) {
	q := sampleQuote()
	for _, st := range []State{StateAssetActionChosen, StateAwaitingAmount, StateAwaitingRequisites, StateAwaitingFinalConfirm, StateAwaitingPromoCode} {
		s := Session{UserID: 9, State: st, Action: models.ActionSell, Asset: models.AssetBTC, Quote: &q, Requisites: "x"}
		next, effects := Transition(s, Cancel{})
		assert.Equal(t, NewSession(9), next, st)
		assert.Equal(t, textCancelled, onlyReply(t, effects).Text)
	}
}

func TestConfirmOutsideFinalStepIsIgnored(t *testing.T) {
	s := Session{UserID: 1, State: StateAwaitingOperatorReply, OrderID: 4}
	next, effects := Transition(s, Confirm{})
	assert.Equal(t, s, next)
	for _, eff := range effects {
		_, isCreate := eff.(CreateOrder)
		assert.False(t, isCreate)
	}
}

func TestConfirmWithoutDraftIsContractError(t *testing.T) {
	s := Session{UserID: 1, State: StateAwaitingFinalConfirm}
	next, effects := Transition(s, Confirm{})
	assert.Equal(t, StateIdle, next.State)
	require.Len(t, effects, 2)
	assert.IsType(t, LogContractError{}, effects[0])
	assert.Equal(t, textStartOver, effects[1].(Reply).Text)
}

func TestQuoteFailures(t *testing.T) {
	s := Session{UserID: 1, State: StateAwaitingAmount, Action: models.ActionSell, Asset: models.AssetBTC, Unit: services.UnitAsset}

	next, effects := Transition(s, QuoteFailed{Err: services.ErrRateUnavailable})
	assert.Equal(t, s, next)
	assert.Equal(t, textRateDown, onlyReply(t, effects).Text)

	next, effects = Transition(s, QuoteFailed{Err: errors.New("db down")})
	assert.Equal(t, StateIdle, next.State)
	assert.Equal(t, textGenericFailure, onlyReply(t, effects).Text)
}

func TestPromptFailedReturnsToAssetChoice(t *testing.T) {
	s := Session{UserID: 1, State: StateAwaitingAmount, Action: models.ActionBuy, Asset: models.AssetTRX}
	next, effects := Transition(s, PromptFailed{Err: services.ErrRateUnavailable})
	assert.Equal(t, StateAssetActionChosen, next.State)
	assert.Empty(t, next.Asset)
	assert.Equal(t, models.ActionBuy, next.Action)
	assert.Contains(t, onlyReply(t, effects).Text, "temporarily unavailable")
}

func TestOrderFailedConflict(t *testing.T) {
	q := sampleQuote()
	s := Session{UserID: 1, State: StateAwaitingFinalConfirm, Quote: &q, Requisites: "r"}

	next, effects := Transition(s, OrderFailed{Err: services.ErrActiveOrderExists, ActiveOrderID: 5})
	assert.Equal(t, StateIdle, next.State)
	assert.Contains(t, onlyReply(t, effects).Text, "#10004")

	next, effects = Transition(s, OrderFailed{Err: errors.New("tx failed")})
	assert.Equal(t, StateIdle, next.State)
	assert.Equal(t, textGenericFailure, onlyReply(t, effects).Text)
}

func TestReplySessionIsSticky(t *testing.T) {
	s, effects := Transition(NewSession(1), StartReply{OrderID: 5, ActiveOrderID: 5})
	assert.Equal(t, StateAwaitingOperatorReply, s.State)
	onlyReply(t, effects)

	for i := 0; i < 3; i++ {
		s, effects = Transition(s, Text{ChatID: 1, MessageID: 10 + i, Text: "hello", ActiveOrderID: 5})
		assert.Equal(t, StateAwaitingOperatorReply, s.State)
		assert.Equal(t, []Effect{ForwardToOperator{ChatID: 1, MessageID: 10 + i, Text: "hello"}}, effects)
	}

	s, effects = Transition(s, EndReply{})
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, textReplyEnded, onlyReply(t, effects).Text)
}

func TestReplyToClosedOrder(t *testing.T) {
	s, effects := Transition(NewSession(1), StartReply{OrderID: 5})
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, textNoActiveOrder, onlyReply(t, effects).Text)

	s = Session{UserID: 1, State: StateAwaitingOperatorReply, OrderID: 5}
	s, effects = Transition(s, Text{Text: "still there?"})
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, textNoActiveOrder, onlyReply(t, effects).Text)
}

func TestPromoEntry(t *testing.T) {
	s, _ := Transition(NewSession(1), OpenPromo{})
	assert.Equal(t, StateAwaitingPromoCode, s.State)

	s, effects := Transition(s, Text{Text: " welcome10 "})
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, []Effect{ActivatePromo{Code: "welcome10"}}, effects)
}

func TestTxLinkEntry(t *testing.T) {
	s, _ := Transition(NewSession(1), RequestTxLink{OrderID: 2, ActiveOrderID: 2})
	assert.Equal(t, StateAwaitingTxLink, s.State)

	s, effects := Transition(s, Text{Text: "https://explorer/tx/abc", ActiveOrderID: 2})
	assert.Equal(t, StateAwaitingOperatorReply, s.State)
	assert.Equal(t, uint(2), s.OrderID)
	assert.Equal(t, []Effect{AttachTxLink{OrderID: 2, Link: "https://explorer/tx/abc"}}, effects)
}

func TestRequisitesDefaultToSBP(t *testing.T) {
	q := sampleQuote()
	s := Session{UserID: 1, State: StateAwaitingRequisites, Action: q.Action, Asset: q.Asset, Quote: &q}
	s, _ = Transition(s, Text{Text: "+7000"})
	assert.Equal(t, models.PaymentSBP, s.PaymentMethod)
	assert.Equal(t, StateAwaitingFinalConfirm, s.State)
}

func TestMalformedResetsSession(t *testing.T) {
	q := sampleQuote()
	s := Session{UserID: 1, State: StateAwaitingRequisites, Quote: &q}
	next, effects := Transition(s, FromCallback("garbage:::"))
	assert.Equal(t, NewSession(1), next)
	require.Len(t, effects, 2)
	assert.IsType(t, LogContractError{}, effects[0])
}

func TestUnsupportedAssetIsContractError(t *testing.T) {
	s := Session{UserID: 1, State: StateAssetActionChosen, Action: models.ActionBuy}
	next, effects := Transition(s, ChooseAsset{Asset: "DOGE"})
	assert.Equal(t, StateIdle, next.State)
	assert.IsType(t, LogContractError{}, effects[0])
}

func TestFromCallback(t *testing.T) {
	cases := map[string]Event{
		"menu":            OpenMenu{},
		"action:buy":      ChooseAction{Action: models.ActionBuy},
		"asset:USDT":      ChooseAsset{Asset: models.AssetUSDT},
		"unit":            SwitchUnit{},
		"pay:operator":    ChoosePaymentMethod{Method: models.PaymentOperator},
		"confirm":         Confirm{},
		"cancel":          Cancel{},
		"reply:12":        StartReply{OrderID: 12},
		"endreply":        EndReply{},
		"cancelorder:3":   CancelOrder{OrderID: 3},
		"txlink:3":        RequestTxLink{OrderID: 3},
		"lotteryplay":     PlayLottery{},
		"admin:confirm:3": Malformed{Payload: "admin:confirm:3"},
		"reply:abc":       Malformed{Payload: "reply:abc"},
	}
	for data, want := range cases {
		assert.Equal(t, want, FromCallback(data), data)
	}
}
