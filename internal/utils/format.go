package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// orderNumberOffset keeps user-facing order numbers from starting at 1
const orderNumberOffset = 9999

// OrderNumber is the number shown to users and operators for an order id
func OrderNumber(id uint) uint {
	return id + orderNumberOffset
}

// OrderIDFromNumber reverses OrderNumber; ok is false for numbers that
// cannot belong to an order
func OrderIDFromNumber(number uint) (uint, bool) {
	if number <= orderNumberOffset {
		return 0, false
	}
	return number - orderNumberOffset, true
}

// DisplayName renders a user for operators: @username, full name, or the id
func DisplayName(id int64, username, fullName string) string {
	if username = strings.TrimPrefix(strings.TrimSpace(username), "@"); username != "" {
		return "@" + username
	}
	if fullName = strings.TrimSpace(fullName); fullName != "" {
		return fullName
	}
	return fmt.Sprintf("user %d", id)
}

// FormatCountdown renders a remaining duration as "HH:MM:SS"
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatFiat renders a fiat amount with two decimals and thin grouping, e.g. "43 710.00"
func FormatFiat(d decimal.Decimal) string {
	return groupThousands(d.StringFixed(2))
}

// FormatAsset renders an asset amount with up to 8 decimals, trailing zeros trimmed
func FormatAsset(d decimal.Decimal) string {
	s := d.StringFixed(8)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + frac
}
