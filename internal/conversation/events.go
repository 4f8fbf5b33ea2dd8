package conversation

import (
	"crypto-exchange-bot/internal/messenger"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/services"

	"github.com/shopspring/decimal"
)

// Event is an input to Transition. Fields named ActiveOrderID are filled by
// the Engine from the order store before the transition runs.
type Event interface {
	event()
}

type (
	// Start is the /start command, optionally carrying a referral payload
	Start struct {
		ReferrerID *int64
	}
	// OpenMenu returns to the main menu
	OpenMenu     struct{}
	ChooseAction struct {
		Action        models.OrderAction
		ActiveOrderID uint
	}
	ChooseAsset struct {
		Asset string
	}
	SwitchUnit struct{}
	// Text is a plain message typed by the user
	Text struct {
		ChatID        int64
		MessageID     int
		Text          string
		ActiveOrderID uint
	}
	ChoosePaymentMethod struct {
		Method models.PaymentMethod
	}
	Confirm struct{}
	Cancel  struct{}
	// StartReply opens a chat session with the operator of an order
	StartReply struct {
		OrderID       uint
		ActiveOrderID uint
	}
	EndReply    struct{}
	CancelOrder struct {
		OrderID uint
	}
	RequestTxLink struct {
		OrderID       uint
		ActiveOrderID uint
	}
	OpenPromo   struct{}
	Profile     struct{}
	Lottery     struct{}
	PlayLottery struct{}
	Withdraw    struct{}
	// Malformed is a callback payload that could not be decoded
	Malformed struct {
		Payload string
	}

	// Results of effects, fed back by the Engine

	PromptReady struct {
		Rate decimal.Decimal
	}
	PromptFailed struct {
		Err error
	}
	QuoteComputed struct {
		Quote services.Quote
	}
	QuoteFailed struct {
		Err error
	}
	PaymentDetailsReady struct {
		Text string
	}
	OrderCreated struct {
		Order *models.Order
	}
	OrderFailed struct {
		Err           error
		ActiveOrderID uint
	}
)

func (Start) event()               {}
func (OpenMenu) event()            {}
func (ChooseAction) event()        {}
func (ChooseAsset) event()         {}
func (SwitchUnit) event()          {}
func (Text) event()                {}
func (ChoosePaymentMethod) event() {}
func (Confirm) event()             {}
func (Cancel) event()              {}
func (StartReply) event()          {}
func (EndReply) event()            {}
func (CancelOrder) event()         {}
func (RequestTxLink) event()       {}
func (OpenPromo) event()           {}
func (Profile) event()             {}
func (Lottery) event()             {}
func (PlayLottery) event()         {}
func (Withdraw) event()            {}
func (Malformed) event()           {}
func (PromptReady) event()         {}
func (PromptFailed) event()        {}
func (QuoteComputed) event()       {}
func (QuoteFailed) event()         {}
func (PaymentDetailsReady) event() {}
func (OrderCreated) event()        {}
func (OrderFailed) event()         {}

// Effect is work the Engine performs after a transition
type Effect interface {
	effect()
}

type (
	Reply struct {
		Text     string
		Keyboard *messenger.Keyboard
	}
	FetchRate struct {
		Asset string
	}
	ComputeQuote struct {
		Request services.QuoteRequest
	}
	FetchPaymentDetails struct {
		Action models.OrderAction
		Asset  string
		Method models.PaymentMethod
	}
	CreateOrder struct {
		Draft services.OrderDraft
	}
	ForwardToOperator struct {
		ChatID    int64
		MessageID int
		Text      string
	}
	CancelOrderEffect struct {
		OrderID uint
	}
	ActivatePromo struct {
		Code string
	}
	ShowProfile       struct{}
	ShowLottery       struct{}
	PlayLotteryEffect struct{}
	RequestWithdrawal struct{}
	AttachTxLink      struct {
		OrderID uint
		Link    string
	}
	// LogContractError records a malformed input before the session is reset
	LogContractError struct {
		Detail string
	}
)

func (Reply) effect()               {}
func (FetchRate) effect()           {}
func (ComputeQuote) effect()        {}
func (FetchPaymentDetails) effect() {}
func (CreateOrder) effect()         {}
func (ForwardToOperator) effect()   {}
func (CancelOrderEffect) effect()   {}
func (ActivatePromo) effect()       {}
func (ShowProfile) effect()         {}
func (ShowLottery) effect()         {}
func (PlayLotteryEffect) effect()   {}
func (RequestWithdrawal) effect()   {}
func (AttachTxLink) effect()        {}
func (LogContractError) effect()    {}
