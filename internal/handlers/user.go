package handlers

import (
	"net/http"

	"crypto-exchange-bot/internal/services"
	"crypto-exchange-bot/internal/utils"

	"github.com/gin-gonic/gin"
)

// UserHandler exposes bot users to the dashboard
type UserHandler struct {
	userService     *services.UserService
	referralService *services.ReferralService
	lotteryService  *services.LotteryService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users *services.UserService, referral *services.ReferralService, lottery *services.LotteryService) *UserHandler {
	return &UserHandler{
		userService:     users,
		referralService: referral,
		lotteryService:  lottery,
	}
}

// GetUser returns a user's profile with referral and lottery state
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	user, err := h.userService.GetUserByID(ctx, userID)
	if err != nil {
		respondError(c, err, "Failed to fetch user")
		return
	}

	stats, err := h.referralService.GetReferralStats(ctx, userID)
	if err != nil {
		respondError(c, err, "Failed to fetch referral stats")
		return
	}

	lottery, err := h.lotteryService.Status(ctx, userID)
	if err != nil {
		respondError(c, err, "Failed to fetch lottery status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"id":               user.ID,
			"display_name":     utils.DisplayName(user.ID, user.Username, user.FullName),
			"username":         user.Username,
			"full_name":        user.FullName,
			"referrer_id":      user.ReferrerID,
			"referral_balance": user.ReferralBalance,
			"active_promo":     user.ActivePromo,
			"created_at":       user.CreatedAt,
			"referrals":        stats,
			"lottery":          lottery,
		},
	})
}
