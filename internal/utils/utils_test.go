package utils

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderNumberRoundTrip(t *testing.T) {
	assert.Equal(t, uint(10006), OrderNumber(7))

	id, ok := OrderIDFromNumber(10006)
	require.True(t, ok)
	assert.Equal(t, uint(7), id)

	_, ok = OrderIDFromNumber(9999)
	assert.False(t, ok)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "@alice", DisplayName(1, "alice", "Alice A"))
	assert.Equal(t, "@bob", DisplayName(1, "@bob", ""))
	assert.Equal(t, "Carol C", DisplayName(1, "", " Carol C "))
	assert.Equal(t, "user 42", DisplayName(42, "", ""))
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "23:59:59", FormatCountdown(24*time.Hour-time.Second))
	assert.Equal(t, "00:00:00", FormatCountdown(-time.Minute))
	assert.Equal(t, "01:02:03", FormatCountdown(time.Hour+2*time.Minute+3*time.Second))
}

func TestFormatAmounts(t *testing.T) {
	assert.Equal(t, "43 710.00", FormatFiat(decimal.NewFromInt(43710)))
	assert.Equal(t, "1 234 567.50", FormatFiat(decimal.RequireFromString("1234567.5")))
	assert.Equal(t, "999.00", FormatFiat(decimal.NewFromInt(999)))
	assert.Equal(t, "0.002", FormatAsset(decimal.RequireFromString("0.00200000")))
	assert.Equal(t, "3", FormatAsset(decimal.NewFromInt(3)))
}

func TestGeneratePromoCode(t *testing.T) {
	code, err := GeneratePromoCode()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z]+\d{4}$`), code)
}

func TestSecureFloat64Range(t *testing.T) {
	for i := 0; i < 1000; i++ {
		f, err := SecureFloat64()
		require.NoError(t, err)
		assert.True(t, f >= 0 && f < 1)
	}
}
