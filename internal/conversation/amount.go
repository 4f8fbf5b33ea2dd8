package conversation

import (
	"strings"

	"crypto-exchange-bot/internal/services"

	"github.com/shopspring/decimal"
)

// ParseAmount reads a positive decimal typed by a user. Both "." and ","
// are accepted as the decimal separator; spaces used for grouping are ignored.
func ParseAmount(input string) (decimal.Decimal, error) {
	s := strings.TrimSpace(input)
	s = strings.NewReplacer(" ", "", " ", "", "_", "").Replace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	if s == "" || strings.ContainsAny(s, ",eE") {
		return decimal.Zero, services.ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, services.ErrInvalidAmount
	}
	return d, nil
}
