package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"crypto-exchange-bot/internal/auth"
	"crypto-exchange-bot/internal/config"
	"crypto-exchange-bot/internal/messenger/messengertest"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/services"
	"crypto-exchange-bot/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testAdmin int64 = 1

type apiFixture struct {
	router   *gin.Engine
	db       *gorm.DB
	fake     *messengertest.Fake
	users    *services.UserService
	orders   *services.OrderService
	referral *services.ReferralService
	token    string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth.InitJWT("handler-test")

	db := testutil.NewDB(t)
	cfg := config.ExchangeConfig{
		ServiceCommissionPercent: decimal.NewFromInt(12),
		NetworkFee:               decimal.NewFromInt(290),
		ReferralPercentage:       decimal.NewFromInt(1),
		MinWithdrawalAmount:      decimal.NewFromInt(1000),
		SBPPhone:                 "+70000000000",
		SBPBank:                  "Bank",
	}
	fake := messengertest.New()
	users := services.NewUserService(db)
	orders := services.NewOrderService(db, cfg)
	promos := services.NewPromoService(db)
	referral := services.NewReferralService(db, cfg)
	settings := services.NewSettingsService(db, cfg)
	prizes, err := services.NewPrizeTable(services.DefaultPrizes)
	require.NoError(t, err)
	lottery := services.NewLotteryService(db, prizes)
	admin := services.NewAdminService(db, orders, users, promos, referral, fake, nil,
		config.BroadcastConfig{PerSecond: 1000, Burst: 10})

	router := NewRouter(
		RouterConfig{AllowedOrigins: []string{"http://localhost:3000"}, Admins: auth.NewAdminSet([]int64{testAdmin})},
		NewAdminHandler(admin, orders, promos, settings),
		NewUserHandler(users, referral, lottery),
		NewReferralHandler(referral, admin),
	)

	token, err := auth.GenerateToken(testAdmin)
	require.NoError(t, err)
	return &apiFixture{
		router:   router,
		db:       db,
		fake:     fake,
		users:    users,
		orders:   orders,
		referral: referral,
		token:    token,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (f *apiFixture) order(t *testing.T, userID int64) *models.Order {
	t.Helper()
	ctx := context.Background()
	_, _, err := f.users.EnsureUser(ctx, services.UserProfile{ID: userID, Username: "client"}, nil)
	require.NoError(t, err)
	q, err := services.ComputeQuote(services.QuoteRequest{
		Action: models.ActionSell,
		Asset:  models.AssetBTC,
		Amount: decimal.RequireFromString("0.01"),
		Unit:   services.UnitAsset,
	}, decimal.NewFromInt(5000000), services.FeeSchedule{})
	require.NoError(t, err)
	order, err := f.orders.CreateOrder(ctx, services.OrderDraft{UserID: userID, Quote: q, Requisites: "card"})
	require.NoError(t, err)
	return order
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	f := newAPIFixture(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	f := newAPIFixture(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	outsider, err := auth.GenerateToken(42)
	require.NoError(t, err)
	f.token = outsider
	w, _ = f.do(t, http.MethodGet, "/api/admin/stats", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetStats(t *testing.T) {
	f := newAPIFixture(t)
	f.order(t, 10)

	w, body := f.do(t, http.MethodGet, "/api/admin/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["users"])
	assert.Equal(t, float64(1), data["orders_by_status"].(map[string]interface{})["processing"])
}

func TestGetOrdersFiltersByStatus(t *testing.T) {
	f := newAPIFixture(t)
	first := f.order(t, 10)
	f.order(t, 11)
	_, err := f.orders.Reject(context.Background(), first.ID)
	require.NoError(t, err)

	w, body := f.do(t, http.MethodGet, "/api/admin/orders?status=processing", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["total"])
	assert.Len(t, body["data"], 1)

	w, _ = f.do(t, http.MethodGet, "/api/admin/orders?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/admin/orders/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfirmOrderOnceThenConflict(t *testing.T) {
	f := newAPIFixture(t)
	order := f.order(t, 10)
	path := fmt.Sprintf("/api/admin/orders/%d/confirm", order.ID)

	w, body := f.do(t, http.MethodPost, path, nil, requestIDHeader, "req-123")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
	assert.Equal(t, "completed", body["data"].(map[string]interface{})["status"])

	sent := f.fake.SentTo(10)
	require.NotEmpty(t, sent)
	assert.Contains(t, sent[len(sent)-1].Text, "completed")

	var log models.AdminLog
	require.NoError(t, f.db.Where("action = ?", "CONFIRM_ORDER").First(&log).Error)
	assert.Equal(t, "req-123", log.RequestID)
	assert.Equal(t, testAdmin, log.AdminID)

	w, _ = f.do(t, http.MethodPost, fmt.Sprintf("/api/admin/orders/%d/reject", order.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/admin/orders/abc/confirm", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPromoLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/admin/promos", gin.H{"code": "spring", "uses": 3})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "SPRING", body["data"].(map[string]interface{})["code"])

	w, _ = f.do(t, http.MethodPost, "/api/admin/promos", gin.H{"code": "SPRING", "uses": 3})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/admin/promos", gin.H{"code": "AUTUMN", "uses": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodDelete, "/api/admin/promos/spring", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body = f.do(t, http.MethodGet, "/api/admin/promos", nil)
	require.Equal(t, http.StatusOK, w.Code)
	promos := body["data"].([]interface{})
	require.Len(t, promos, 1)
	assert.Equal(t, false, promos[0].(map[string]interface{})["is_active"])

	w, _ = f.do(t, http.MethodDelete, "/api/admin/promos/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettingsEditor(t *testing.T) {
	f := newAPIFixture(t)

	w, body := f.do(t, http.MethodGet, "/api/admin/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "+70000000000", body["data"].(map[string]interface{})["sbp_phone"])

	w, _ = f.do(t, http.MethodPut, "/api/admin/settings/sbp_phone", gin.H{"value": " +79990000000 "})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = f.do(t, http.MethodGet, "/api/admin/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "+79990000000", body["data"].(map[string]interface{})["sbp_phone"])

	w, _ = f.do(t, http.MethodPut, "/api/admin/settings/favourite_color", gin.H{"value": "red"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBroadcastEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	for _, id := range []int64{20, 21} {
		_, _, err := f.users.EnsureUser(ctx, services.UserProfile{ID: id}, nil)
		require.NoError(t, err)
	}

	w, _ := f.do(t, http.MethodPost, "/api/admin/broadcast", gin.H{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := f.do(t, http.MethodPost, "/api/admin/broadcast", gin.H{"text": "Maintenance tonight"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["data"].(map[string]interface{})["delivered"])
	assert.Len(t, f.fake.SentTo(21), 1)
}

func TestWithdrawalResolution(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	_, _, err := f.users.EnsureUser(ctx, services.UserProfile{ID: 30}, nil)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", 30).
		Update("referral_balance", decimal.NewFromInt(1500)).Error)
	request, err := f.referral.RequestWithdrawal(ctx, 30)
	require.NoError(t, err)

	w, body := f.do(t, http.MethodGet, "/api/admin/withdrawals?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)

	path := fmt.Sprintf("/api/admin/withdrawals/%d/resolve", request.ID)
	w, _ = f.do(t, http.MethodPost, path, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = f.do(t, http.MethodPost, path, gin.H{"paid": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paid", body["data"].(map[string]interface{})["status"])

	w, _ = f.do(t, http.MethodPost, path, gin.H{"paid": false})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetUser(t *testing.T) {
	f := newAPIFixture(t)
	_, _, err := f.users.EnsureUser(context.Background(), services.UserProfile{ID: 40, Username: "alice"}, nil)
	require.NoError(t, err)

	w, body := f.do(t, http.MethodGet, "/api/admin/users/40", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "@alice", data["display_name"])
	assert.Equal(t, float64(0), data["referrals"].(map[string]interface{})["referrals"])

	w, _ = f.do(t, http.MethodGet, "/api/admin/users/41", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = f.do(t, http.MethodGet, "/api/admin/users/40/earnings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["data"])
}
