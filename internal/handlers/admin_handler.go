package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"crypto-exchange-bot/internal/auth"
	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler serves the operator dashboard endpoints
type AdminHandler struct {
	adminService    *services.AdminService
	orderService    *services.OrderService
	promoService    *services.PromoService
	settingsService *services.SettingsService
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(admin *services.AdminService, orders *services.OrderService,
	promos *services.PromoService, settings *services.SettingsService) *AdminHandler {
	return &AdminHandler{
		adminService:    admin,
		orderService:    orders,
		promoService:    promos,
		settingsService: settings,
	}
}

// GetStats returns the dashboard summary
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.adminService.Stats(c.Request.Context())
	if err != nil {
		logger.Log.Error("failed to compute stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// GetOrders lists orders with optional status and user filters
func (h *AdminHandler) GetOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	userID, _ := strconv.ParseInt(c.Query("user_id"), 10, 64)

	filter := services.OrderFilter{
		Status: models.OrderStatus(c.Query("status")),
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	}
	if filter.Status != "" && !filter.Status.Terminal() && filter.Status != models.OrderStatusProcessing {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown order status"})
		return
	}

	orders, total, err := h.orderService.List(c.Request.Context(), filter)
	if err != nil {
		logger.Log.Error("failed to list orders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetOrder returns one order by id
func (h *AdminHandler) GetOrder(c *gin.Context) {
	orderID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err, "Failed to fetch order")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// ConfirmOrder completes a processing order
func (h *AdminHandler) ConfirmOrder(c *gin.Context) {
	h.resolveOrder(c, h.adminService.ConfirmOrder)
}

// RejectOrder rejects a processing order
func (h *AdminHandler) RejectOrder(c *gin.Context) {
	h.resolveOrder(c, h.adminService.RejectOrder)
}

type resolveFunc func(ctx context.Context, adminID int64, orderID uint) (*services.TransitionResult, error)

func (h *AdminHandler) resolveOrder(c *gin.Context, resolve resolveFunc) {
	adminID, exists := auth.GetAdminID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	orderID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	result, err := resolve(c.Request.Context(), adminID, orderID)
	if errors.Is(err, services.ErrAlreadyFinalized) && result != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Order is already " + string(result.Order.Status),
			"data":  result.Order,
		})
		return
	}
	if err != nil {
		respondError(c, err, "Failed to update order")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"data":           result.Order,
		"promo_consumed": result.PromoConsumed,
		"promo_refunded": result.PromoRefunded,
	})
}

// GetPromos lists every promo code
func (h *AdminHandler) GetPromos(c *gin.Context) {
	promos, err := h.promoService.List(c.Request.Context())
	if err != nil {
		logger.Log.Error("failed to list promos", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch promo codes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    promos,
	})
}

// CreatePromo issues a promo code. An empty code gets a generated one.
func (h *AdminHandler) CreatePromo(c *gin.Context) {
	adminID, exists := auth.GetAdminID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		Code string `json:"code"`
		Uses int    `json:"uses" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	promo, err := h.adminService.CreatePromo(c.Request.Context(), adminID, req.Code, req.Uses)
	if err != nil {
		respondError(c, err, "Failed to create promo code")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    promo,
	})
}

// DeactivatePromo stops a code from being activated
func (h *AdminHandler) DeactivatePromo(c *gin.Context) {
	adminID, exists := auth.GetAdminID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	code := services.NormalizeCode(c.Param("code"))
	if err := h.promoService.Deactivate(c.Request.Context(), code); err != nil {
		if errors.Is(err, services.ErrPromoInvalid) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Promo code not found"})
			return
		}
		respondError(c, err, "Failed to deactivate promo code")
		return
	}

	_ = h.adminService.LogAdminAction(c.Request.Context(), adminID, "DEACTIVATE_PROMO", "PROMO", nil, map[string]interface{}{
		"code": code,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Promo code deactivated",
	})
}

// Broadcast sends a message to every user. The request blocks until the
// last delivery attempt so the counts are final.
func (h *AdminHandler) Broadcast(c *gin.Context) {
	adminID, exists := auth.GetAdminID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Broadcast text is empty"})
		return
	}

	result, err := h.adminService.Broadcast(c.Request.Context(), adminID, text)
	if err != nil {
		logger.Log.Error("broadcast failed", zap.Int64("admin_id", adminID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Broadcast failed", "data": result})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// GetSettings returns every editable setting with its effective value
func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingsService.All(c.Request.Context())
	if err != nil {
		logger.Log.Error("failed to read settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    settings,
	})
}

// UpdateSetting overrides one setting
func (h *AdminHandler) UpdateSetting(c *gin.Context) {
	adminID, exists := auth.GetAdminID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := c.Param("key")
	value := strings.TrimSpace(req.Value)
	if err := h.settingsService.Set(c.Request.Context(), key, value); err != nil {
		if errors.Is(err, services.ErrUnknownSetting) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown setting", "keys": h.settingsService.Keys()})
			return
		}
		logger.Log.Error("failed to update setting", zap.String("key", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update setting"})
		return
	}

	_ = h.adminService.LogAdminAction(c.Request.Context(), adminID, "UPDATE_SETTING", "SETTING", nil, map[string]interface{}{
		"key":   key,
		"value": value,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"key": key, "value": value},
	})
}

// GetAdminLogs returns admin activity logs
func (h *AdminHandler) GetAdminLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	logs, err := h.adminService.GetAdminLogs(c.Request.Context(), limit, offset)
	if err != nil {
		logger.Log.Error("failed to fetch admin logs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    logs,
		"limit":   limit,
		"offset":  offset,
	})
}
