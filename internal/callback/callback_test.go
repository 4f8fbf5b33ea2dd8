package callback

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKnownPayloads(t *testing.T) {
	cases := map[string]Callback{
		"menu":            {Kind: KindMenu},
		"action:buy":      {Kind: KindAction, Arg: "buy"},
		"asset:USDT":      {Kind: KindAsset, Arg: "USDT"},
		"unit":            {Kind: KindSwitchUnit},
		"pay:sbp":         {Kind: KindPayment, Arg: "sbp"},
		"reply:42":        {Kind: KindReply, ID: 42},
		"cancelorder:7":   {Kind: KindCancelOrder, ID: 7},
		"admin:confirm:7": {Kind: KindAdminConfirm, ID: 7},
		"admin:decline:3": {Kind: KindAdminDecline, ID: 3},
		"lotteryplay":     {Kind: KindLotteryPlay},
		"  endreply  ":    {Kind: KindEndReply},
	}
	for payload, want := range cases {
		got, err := Parse(payload)
		require.NoError(t, err, payload)
		assert.Equal(t, want, got, payload)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, payload := range []string{"", "bogus", "reply:", "reply:abc", "reply:0", "admin:confirm:-1", "asset", "unknown:1", ":x"} {
		_, err := Parse(payload)
		assert.True(t, errors.Is(err, ErrMalformed), payload)
	}
}

func TestBuildersRoundTrip(t *testing.T) {
	for _, payload := range []string{
		Action("sell"), Asset("BTC"), Payment("operator"),
		WithID(KindReply, 10), WithID(KindAdminReject, 99), Simple(KindConfirm),
	} {
		c, err := Parse(payload)
		require.NoError(t, err)
		assert.Equal(t, payload, c.String())
	}
}

func TestPayloadsFitButtonLimit(t *testing.T) {
	assert.LessOrEqual(t, len(WithID(KindAdminDecline, ^uint(0)>>1)), 64)
}
