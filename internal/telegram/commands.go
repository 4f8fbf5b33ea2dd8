package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"crypto-exchange-bot/internal/utils"
)

var errUsage = errors.New("bad command arguments")

// ParseCommand splits "/cmd@bot args" into its lowercase name and the
// trimmed remainder. name is empty for plain text.
func ParseCommand(text string) (name, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	// multi-line broadcasts keep their layout
	if j := strings.IndexByte(head, '\n'); j >= 0 {
		rest = head[j+1:] + " " + rest
		head = head[:j]
	}
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

// ParseReferral reads the "ref_<id>" deep-link payload of /start
func ParseReferral(payload string) *int64 {
	raw, ok := strings.CutPrefix(strings.TrimSpace(payload), "ref_")
	if !ok {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

// ParseOrderNumber turns the number operators see into an order id
func ParseOrderNumber(args string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(args), "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: order number expected", errUsage)
	}
	id, ok := utils.OrderIDFromNumber(uint(n))
	if !ok {
		return 0, fmt.Errorf("%w: no order has number %d", errUsage, n)
	}
	return id, nil
}

// ParsePromoArgs reads "CODE,USES". An empty code asks for a generated one.
func ParsePromoArgs(args string) (code string, uses int, err error) {
	rawCode, rawUses, found := strings.Cut(args, ",")
	if !found {
		return "", 0, fmt.Errorf("%w: expected CODE,USES", errUsage)
	}
	uses, err = strconv.Atoi(strings.TrimSpace(rawUses))
	if err != nil || uses < 1 {
		return "", 0, fmt.Errorf("%w: uses must be a positive integer", errUsage)
	}
	return strings.TrimSpace(rawCode), uses, nil
}
