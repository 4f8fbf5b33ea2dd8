package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"crypto-exchange-bot/internal/config"
	"crypto-exchange-bot/internal/messenger/messengertest"
	"crypto-exchange-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannels struct {
	renamed []string
	notes   []string
}

func (r *recordingChannels) MarkFinal(ctx context.Context, order *models.Order, owner string) error {
	r.renamed = append(r.renamed, string(order.Status)+" "+owner)
	return nil
}

func (r *recordingChannels) NotifyChannel(ctx context.Context, channelID int, text string) error {
	r.notes = append(r.notes, text)
	return nil
}

type adminFixture struct {
	*storeFixture
	admin    *AdminService
	fake     *messengertest.Fake
	channels *recordingChannels
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	f := newStoreFixture(t)
	fake := messengertest.New()
	channels := &recordingChannels{}
	admin := NewAdminService(f.db, f.orders, f.users, f.promos, f.referral, fake, channels,
		config.BroadcastConfig{PerSecond: 1000, Burst: 10})
	return &adminFixture{storeFixture: f, admin: admin, fake: fake, channels: channels}
}

func TestConfirmOrderNotifiesAndAudits(t *testing.T) {
	f := newAdminFixture(t)
	f.user(t, 100, nil)
	ref := int64(100)
	f.user(t, 1, &ref)
	o := f.order(t, 1, false)
	require.NoError(t, f.orders.SetRelayChannel(context.Background(), o.ID, 77))

	result, err := f.admin.ConfirmOrder(context.Background(), 9, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Order.Status)

	require.Len(t, f.fake.SentTo(1), 1)
	assert.Contains(t, f.fake.SentTo(1)[0].Text, "#10000")
	require.Len(t, f.fake.SentTo(100), 1)
	assert.Contains(t, f.fake.SentTo(100)[0].Text, "500.00")
	assert.Equal(t, []string{"completed @u"}, f.channels.renamed)
	require.Len(t, f.channels.notes, 1)

	logs, err := f.admin.GetAdminLogs(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "CONFIRM_ORDER", logs[0].Action)
	assert.Equal(t, int64(9), logs[0].AdminID)
	assert.NotEmpty(t, logs[0].RequestID)
}

func TestConfirmCompletedOrderIsNoop(t *testing.T) {
	f := newAdminFixture(t)
	f.user(t, 100, nil)
	ref := int64(100)
	f.user(t, 1, &ref)
	o := f.order(t, 1, false)

	_, err := f.admin.ConfirmOrder(context.Background(), 9, o.ID)
	require.NoError(t, err)
	sent := len(f.fake.Sent)

	result, err := f.admin.ConfirmOrder(context.Background(), 9, o.ID)
	assert.True(t, errors.Is(err, ErrAlreadyFinalized))
	require.NotNil(t, result)
	assert.Equal(t, models.OrderStatusCompleted, result.Order.Status)
	assert.Len(t, f.fake.Sent, sent)
	assert.Equal(t, int64(1), f.count(t, &models.ReferralEarning{}, "order_id = ?", o.ID))
	assert.Equal(t, int64(1), f.count(t, &models.AdminLog{}, "action = ?", "CONFIRM_ORDER"))
}

func TestRejectOrderMentionsRefundedPromo(t *testing.T) {
	f := newAdminFixture(t)
	f.user(t, 1, nil)
	_, err := f.admin.CreatePromo(context.Background(), 9, "GIFT", 1)
	require.NoError(t, err)
	f.activatePromo(t, 1, "GIFT")
	o := f.order(t, 1, true)

	result, err := f.admin.RejectOrder(context.Background(), 9, o.ID)
	require.NoError(t, err)
	assert.True(t, result.PromoRefunded)
	assert.Contains(t, f.fake.SentTo(1)[0].Text, "promo code has been returned")
	// no relay channel bound, nothing to rename
	assert.Empty(t, f.channels.renamed)
}

func TestCancelOrderForUserMarksChannel(t *testing.T) {
	f := newAdminFixture(t)
	f.user(t, 1, nil)
	o := f.order(t, 1, false)
	require.NoError(t, f.orders.SetRelayChannel(context.Background(), o.ID, 5))

	_, err := f.admin.CancelOrderForUser(context.Background(), 1, o.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cancelled_by_user @u"}, f.channels.renamed)
	assert.True(t, strings.Contains(f.channels.notes[0], "cancelled"))
}

func TestBroadcastCountsFailures(t *testing.T) {
	f := newAdminFixture(t)
	for id := int64(1); id <= 3; id++ {
		f.user(t, id, nil)
	}
	f.fake.FailSend[2] = errors.New("blocked")

	result, err := f.admin.Broadcast(context.Background(), 9, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, f.fake.SentTo(1), 1)
	assert.Len(t, f.fake.SentTo(3), 1)

	_, err = f.admin.Broadcast(context.Background(), 9, "")
	assert.Error(t, err)
}

func TestResolveWithdrawalNotifiesUser(t *testing.T) {
	f := newAdminFixture(t)
	f.user(t, 1, nil)
	f.setBalance(t, 1, "1200")
	w, err := f.referral.RequestWithdrawal(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, f.referral.SetWithdrawalChannel(context.Background(), w.ID, 8))

	resolved, err := f.admin.ResolveWithdrawal(context.Background(), 9, w.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPaid, resolved.Status)
	assert.Contains(t, f.fake.SentTo(1)[0].Text, "1 200.00")
	require.Len(t, f.channels.notes, 1)
}

func TestStats(t *testing.T) {
	f := newAdminFixture(t)
	f.user(t, 100, nil)
	ref := int64(100)
	f.user(t, 1, &ref)
	f.user(t, 2, nil)
	o := f.order(t, 1, false)
	_, err := f.admin.ConfirmOrder(context.Background(), 9, o.ID)
	require.NoError(t, err)
	f.order(t, 2, false)
	_, err = f.promos.CreatePromo(context.Background(), "LIVE", 2)
	require.NoError(t, err)

	stats, err := f.admin.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Users)
	assert.Equal(t, int64(1), stats.OrdersByStatus[models.OrderStatusCompleted])
	assert.Equal(t, int64(1), stats.OrdersByStatus[models.OrderStatusProcessing])
	assertDecimal(t, "50000", stats.CompletedVolume)
	assertDecimal(t, "500", stats.ReferralPaid)
	assert.Equal(t, int64(1), stats.ActivePromos)
}

func TestLogAdminActionUsesRequestID(t *testing.T) {
	f := newAdminFixture(t)
	ctx := WithRequestID(context.Background(), "req-123")

	require.NoError(t, f.admin.LogAdminAction(ctx, 1, "UPDATE_SETTING", "SETTING", nil, map[string]interface{}{"key": "sbp_bank"}))

	logs, err := f.admin.GetAdminLogs(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "req-123", logs[0].RequestID)
	assert.Equal(t, "sbp_bank", logs[0].Details["key"])
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(ErrAlreadyFinalized))
	assert.True(t, IsConflict(errors.Join(errors.New("ctx"), ErrPromoInvalid)))
	assert.False(t, IsConflict(ErrRateUnavailable))
	assert.False(t, IsConflict(errors.New("db down")))
}
