// Package callback encodes and decodes inline button payloads.
package callback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies what a button does
type Kind string

const (
	KindMenu         Kind = "menu"
	KindAction       Kind = "action"
	KindAsset        Kind = "asset"
	KindSwitchUnit   Kind = "unit"
	KindPayment      Kind = "pay"
	KindConfirm      Kind = "confirm"
	KindCancel       Kind = "cancel"
	KindReply        Kind = "reply"
	KindEndReply     Kind = "endreply"
	KindCancelOrder  Kind = "cancelorder"
	KindTxLink       Kind = "txlink"
	KindPromo        Kind = "promo"
	KindProfile      Kind = "profile"
	KindLottery      Kind = "lottery"
	KindLotteryPlay  Kind = "lotteryplay"
	KindWithdraw     Kind = "withdraw"
	KindAdminConfirm Kind = "admin:confirm"
	KindAdminReject  Kind = "admin:reject"
	KindAdminPaid    Kind = "admin:paid"
	KindAdminDecline Kind = "admin:decline"
)

// ErrMalformed is returned for payloads this package did not produce
var ErrMalformed = errors.New("malformed callback payload")

// Callback is a decoded payload. Arg carries a string argument (action,
// asset, payment method) and ID a numeric one (order or withdrawal id).
type Callback struct {
	Kind Kind
	Arg  string
	ID   uint
}

var noArg = map[Kind]bool{
	KindMenu: true, KindSwitchUnit: true, KindConfirm: true, KindCancel: true,
	KindEndReply: true, KindPromo: true, KindProfile: true, KindLottery: true,
	KindLotteryPlay: true, KindWithdraw: true,
}

var withArg = map[Kind]bool{
	KindAction: true, KindAsset: true, KindPayment: true,
}

var withID = map[Kind]bool{
	KindReply: true, KindCancelOrder: true, KindTxLink: true,
	KindAdminConfirm: true, KindAdminReject: true, KindAdminPaid: true, KindAdminDecline: true,
}

// Parse decodes a payload
func Parse(data string) (Callback, error) {
	data = strings.TrimSpace(data)
	if noArg[Kind(data)] {
		return Callback{Kind: Kind(data)}, nil
	}

	i := strings.LastIndexByte(data, ':')
	if i <= 0 || i == len(data)-1 {
		return Callback{}, fmt.Errorf("%w: %q", ErrMalformed, data)
	}
	kind, arg := Kind(data[:i]), data[i+1:]

	switch {
	case withArg[kind]:
		return Callback{Kind: kind, Arg: arg}, nil
	case withID[kind]:
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil || id == 0 {
			return Callback{}, fmt.Errorf("%w: %q", ErrMalformed, data)
		}
		return Callback{Kind: kind, ID: uint(id)}, nil
	}
	return Callback{}, fmt.Errorf("%w: %q", ErrMalformed, data)
}

// String encodes the callback back into its payload
func (c Callback) String() string {
	switch {
	case withArg[c.Kind]:
		return string(c.Kind) + ":" + c.Arg
	case withID[c.Kind]:
		return string(c.Kind) + ":" + strconv.FormatUint(uint64(c.ID), 10)
	}
	return string(c.Kind)
}

func Simple(kind Kind) string { return Callback{Kind: kind}.String() }

func Action(action string) string { return Callback{Kind: KindAction, Arg: action}.String() }

func Asset(asset string) string { return Callback{Kind: KindAsset, Arg: asset}.String() }

func Payment(method string) string { return Callback{Kind: KindPayment, Arg: method}.String() }

func WithID(kind Kind, id uint) string { return Callback{Kind: kind, ID: id}.String() }
