package handlers

import (
	"net/http"

	"crypto-exchange-bot/internal/auth"
	"crypto-exchange-bot/internal/models"
	"crypto-exchange-bot/internal/services"

	"github.com/gin-gonic/gin"
)

type ReferralHandler struct {
	referralService *services.ReferralService
	adminService    *services.AdminService
}

func NewReferralHandler(referral *services.ReferralService, admin *services.AdminService) *ReferralHandler {
	return &ReferralHandler{
		referralService: referral,
		adminService:    admin,
	}
}

// GetReferralEarnings returns the earnings credited to a referrer
func (h *ReferralHandler) GetReferralEarnings(c *gin.Context) {
	userID, ok := int64Param(c, "id")
	if !ok {
		return
	}

	earnings, err := h.referralService.GetReferralEarnings(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to fetch referral earnings")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    earnings,
	})
}

// GetWithdrawals lists payout requests, optionally by status
func (h *ReferralHandler) GetWithdrawals(c *gin.Context) {
	status := models.WithdrawalStatus(c.Query("status"))
	switch status {
	case "", models.WithdrawalPending, models.WithdrawalPaid, models.WithdrawalRejected:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown withdrawal status"})
		return
	}

	requests, err := h.referralService.ListWithdrawals(c.Request.Context(), status)
	if err != nil {
		respondError(c, err, "Failed to fetch withdrawals")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    requests,
	})
}

// ResolveWithdrawal marks a pending request paid or declined
func (h *ReferralHandler) ResolveWithdrawal(c *gin.Context) {
	adminID, exists := auth.GetAdminID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	withdrawalID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Paid *bool `json:"paid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	w, err := h.adminService.ResolveWithdrawal(c.Request.Context(), adminID, withdrawalID, *req.Paid)
	if err != nil {
		respondError(c, err, "Failed to resolve withdrawal")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    w,
	})
}
