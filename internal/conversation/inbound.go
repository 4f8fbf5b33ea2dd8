package conversation

import (
	"crypto-exchange-bot/internal/callback"
	"crypto-exchange-bot/internal/models"
)

// FromCallback maps a button payload to a user event. Admin payloads and
// anything undecodable become Malformed; admin buttons are routed by the
// transport before they get here.
func FromCallback(data string) Event {
	cb, err := callback.Parse(data)
	if err != nil {
		return Malformed{Payload: data}
	}

	switch cb.Kind {
	case callback.KindMenu:
		return OpenMenu{}
	case callback.KindAction:
		return ChooseAction{Action: models.OrderAction(cb.Arg)}
	case callback.KindAsset:
		return ChooseAsset{Asset: cb.Arg}
	case callback.KindSwitchUnit:
		return SwitchUnit{}
	case callback.KindPayment:
		return ChoosePaymentMethod{Method: models.PaymentMethod(cb.Arg)}
	case callback.KindConfirm:
		return Confirm{}
	case callback.KindCancel:
		return Cancel{}
	case callback.KindReply:
		return StartReply{OrderID: cb.ID}
	case callback.KindEndReply:
		return EndReply{}
	case callback.KindCancelOrder:
		return CancelOrder{OrderID: cb.ID}
	case callback.KindTxLink:
		return RequestTxLink{OrderID: cb.ID}
	case callback.KindPromo:
		return OpenPromo{}
	case callback.KindProfile:
		return Profile{}
	case callback.KindLottery:
		return Lottery{}
	case callback.KindLotteryPlay:
		return PlayLottery{}
	case callback.KindWithdraw:
		return Withdraw{}
	}
	return Malformed{Payload: data}
}
