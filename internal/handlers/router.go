package handlers

import (
	"net/http"
	"time"

	"crypto-exchange-bot/internal/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries what the admin API needs besides its handlers
type RouterConfig struct {
	AllowedOrigins []string
	Admins         auth.AdminSet
}

// NewRouter assembles the admin HTTP API
func NewRouter(cfg RouterConfig, admin *AdminHandler, users *UserHandler, referral *ReferralHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/admin")
	api.Use(auth.AuthMiddleware(cfg.Admins))
	{
		api.GET("/stats", admin.GetStats)
		api.GET("/logs", admin.GetAdminLogs)

		api.GET("/orders", admin.GetOrders)
		api.GET("/orders/:id", admin.GetOrder)
		api.POST("/orders/:id/confirm", admin.ConfirmOrder)
		api.POST("/orders/:id/reject", admin.RejectOrder)

		api.GET("/promos", admin.GetPromos)
		api.POST("/promos", admin.CreatePromo)
		api.DELETE("/promos/:code", admin.DeactivatePromo)

		api.POST("/broadcast", admin.Broadcast)

		api.GET("/settings", admin.GetSettings)
		api.PUT("/settings/:key", admin.UpdateSetting)

		api.GET("/users/:id", users.GetUser)
		api.GET("/users/:id/earnings", referral.GetReferralEarnings)

		api.GET("/withdrawals", referral.GetWithdrawals)
		api.POST("/withdrawals/:id/resolve", referral.ResolveWithdrawal)
	}

	return router
}
