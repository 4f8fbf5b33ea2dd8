package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps service errors onto HTTP statuses. Anything that is not
// a known rejection is logged and hidden behind fallback.
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrWithdrawalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrPromoExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case services.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Log.Error(fallback,
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// uintParam reads a positive numeric path parameter, answering 400 itself
// when it is malformed
func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}
