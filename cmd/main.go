package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"crypto-exchange-bot/internal/auth"
	"crypto-exchange-bot/internal/config"
	"crypto-exchange-bot/internal/conversation"
	"crypto-exchange-bot/internal/database"
	"crypto-exchange-bot/internal/handlers"
	"crypto-exchange-bot/internal/jobs"
	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/relay"
	"crypto-exchange-bot/internal/services"
	"crypto-exchange-bot/internal/telegram"

	"github.com/gin-gonic/gin"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		logger.Log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		logger.Log.Fatal("failed to run migrations", zap.Error(err))
	}
	db := database.GetDB()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The bot delivers updates to the router, which needs the bot's messenger
	// to exist first
	var router *telegram.Router
	b, err := telegram.NewBot(cfg.Bot.Token, func(ctx context.Context, update *tgmodels.Update) {
		router.HandleUpdate(ctx, update)
	})
	if err != nil {
		logger.Log.Fatal("failed to create bot", zap.Error(err))
	}
	me, err := b.GetMe(ctx)
	if err != nil {
		logger.Log.Fatal("failed to reach the Bot API", zap.Error(err))
	}
	msg := telegram.NewMessenger(b)

	// Initialize services
	prices := services.NewPriceService(cfg.Rates)
	prizes, err := services.LoadPrizeTable(cfg.Lottery.PrizesFile)
	if err != nil {
		logger.Log.Fatal("failed to load prize table", zap.Error(err))
	}
	userService := services.NewUserService(db)
	orderService := services.NewOrderService(db, cfg.Exchange)
	promoService := services.NewPromoService(db)
	referralService := services.NewReferralService(db, cfg.Exchange)
	settingsService := services.NewSettingsService(db, cfg.Exchange)
	lotteryService := services.NewLotteryService(db, prizes)
	quoteService := services.NewQuoteService(prices, cfg.Exchange)

	rl := relay.New(msg, orderService, referralService, cfg.Bot.SupportGroupID)
	adminService := services.NewAdminService(db, orderService, userService, promoService,
		referralService, msg, rl, cfg.Broadcast)

	var sessions conversation.Store = conversation.NewMemoryStore()
	if cfg.Sessions.Store == "database" {
		sessions = conversation.NewGormStore(db)
	}

	engine := conversation.NewEngine(conversation.Deps{
		Store:       sessions,
		Messenger:   msg,
		Users:       userService,
		Quotes:      quoteService,
		Orders:      orderService,
		Promos:      promoService,
		Referral:    referralService,
		Lottery:     lotteryService,
		Settings:    settingsService,
		Admin:       adminService,
		Relay:       rl,
		BotUsername: me.Username,
	})
	admins := auth.NewAdminSet(cfg.Bot.AdminIDs)
	router = telegram.NewRouter(engine, rl, adminService, msg, msg, admins)

	// Scheduled jobs
	scheduler, err := jobs.NewScheduler()
	if err != nil {
		logger.Log.Fatal("failed to create scheduler", zap.Error(err))
	}
	mustSchedule := func(name string, every time.Duration, task func(context.Context) error) {
		if err := scheduler.Every(name, every, task); err != nil {
			logger.Log.Fatal("failed to schedule job", zap.String("job", name), zap.Error(err))
		}
	}
	mustSchedule("rate-prefetch", cfg.Rates.CacheTTL, jobs.NewRatePrefetcher(prices).Run)
	mustSchedule("session-sweep", time.Hour, jobs.NewSessionSweeper(sessions, cfg.Sessions.IdleTTL).Run)
	mustSchedule("stale-orders", 15*time.Minute, jobs.NewStaleOrderReminder(orderService, rl, cfg.App.StaleOrderAfter).Run)
	scheduler.Start()

	// Admin HTTP API
	if cfg.App.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	api := handlers.NewRouter(
		handlers.RouterConfig{AllowedOrigins: cfg.Server.AllowedOrigins, Admins: admins},
		handlers.NewAdminHandler(adminService, orderService, promoService, settingsService),
		handlers.NewUserHandler(userService, referralService, lotteryService),
		handlers.NewReferralHandler(referralService, adminService),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("admin API starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Log.Info("bot started",
		zap.String("username", me.Username),
		zap.Int64("support_group", cfg.Bot.SupportGroupID),
		zap.String("session_store", cfg.Sessions.Store))

	// Start blocks until ctx is cancelled by a signal
	b.Start(ctx)

	logger.Log.Info("shutting down")
	router.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("server forced to shutdown", zap.Error(err))
	}
	if err := scheduler.Shutdown(); err != nil {
		logger.Log.Error("scheduler shutdown failed", zap.Error(err))
	}

	logger.Log.Info("exited")
}
