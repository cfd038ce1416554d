package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/config"
	"github.com/servicehub/booking-engine/internal/database"
	"github.com/servicehub/booking-engine/internal/handlers"
	"github.com/servicehub/booking-engine/internal/middleware"
	"github.com/servicehub/booking-engine/internal/models"
	"github.com/servicehub/booking-engine/internal/queue"
	"github.com/servicehub/booking-engine/internal/services"
	"github.com/servicehub/booking-engine/pkg/idgen"
	"github.com/servicehub/booking-engine/pkg/jwt"
	"github.com/servicehub/booking-engine/pkg/notifier"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting ServiceHub booking engine")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Redis backs both the notification fan-out and the matching queue
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	publisher := notifier.NewRedisPublisher(redisClient, cfg.Redis.ChannelPrefix)

	// Repositories
	bookingRepo := database.NewBookingRepository(db.DB, cfg.Booking.Currency)
	partnerRepo := database.NewPartnerRepository(db.DB)
	businessRepo := database.NewBusinessPartnerRepository(db.DB)
	serviceRepo := database.NewServiceRepository(db.DB)
	userRepo := database.NewUserRepository(db.DB)
	walletRepo := database.NewWalletRepository(db.DB, cfg.Booking.Currency)
	notificationRepo := database.NewNotificationRepository(db.DB)

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	notificationService := services.NewNotificationService(notificationRepo, publisher, logger)
	walletService := services.NewWalletService(walletRepo, notificationService, logger)
	partnerService := services.NewPartnerService(partnerRepo, logger)
	matchingService := services.NewMatchingService(partnerRepo, cfg.Matching.MaxCandidates, logger)

	policy := services.BookingPolicyFromConfig(cfg.Booking)
	settlementService := services.NewSettlementService(
		partnerRepo,
		businessRepo,
		userRepo,
		policy.PlatformCommission,
		cfg.Booking.PlatformWalletUserID,
		logger,
	)

	ids, err := idgen.NewGenerator(cfg.Server.NodeID)
	if err != nil {
		logger.Fatalf("Failed to create id generator: %v", err)
	}

	var payments services.PaymentProvider
	switch cfg.Payment.Provider {
	case "stripe":
		payments = services.NewStripeRefundProvider(cfg.Payment.StripeSecretKey, logger)
		logger.Info("Refunds via Stripe")
	default:
		payments = services.NewManualRefundProvider(logger)
		logger.Info("Refunds recorded for manual processing")
	}

	// Matching dispatcher: asynq in production, in-process goroutines otherwise
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	var (
		dispatcher services.MatchDispatcher
		asynqDisp  *queue.AsynqDispatcher
		inlineDisp *queue.InlineDispatcher
	)
	if cfg.Matching.Dispatcher == "asynq" {
		asynqDisp = queue.NewAsynqDispatcher(redisOpt, cfg.Matching.MaxRetry, logger)
		dispatcher = asynqDisp
	} else {
		inlineDisp = queue.NewInlineDispatcher(time.Minute, logger)
		dispatcher = inlineDisp
	}

	bookingService, err := services.NewBookingService(services.BookingServiceDeps{
		Bookings:   bookingRepo,
		Partners:   partnerRepo,
		Businesses: businessRepo,
		Catalog:    serviceRepo,
		Matching:   matchingService,
		Settlement: settlementService,
		Payments:   payments,
		Dispatcher: dispatcher,
		Notifier:   notificationService,
		IDs:        ids,
		Policy:     policy,
		Currency:   cfg.Booking.Currency,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create booking service: %v", err)
	}

	var worker *queue.MatchWorker
	if asynqDisp != nil {
		worker = queue.NewMatchWorker(redisOpt, cfg.Matching.Concurrency, bookingService, logger)
		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start matching worker: %v", err)
		}
		logger.Info("✓ Matching worker started (asynq)")
	} else {
		inlineDisp.Attach(bookingService)
		logger.Info("✓ Matching runs in-process")
	}

	// Scheduled sweeps
	var cronService *services.CronService
	if cfg.Cron.Enabled {
		cronService = services.NewCronService(bookingService, cfg.Cron, logger)
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
		logger.Info("✓ Cron service started - abandoned booking reaper and stale search sweep enabled")
	}

	// Handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	partnerHandler := handlers.NewPartnerHandler(partnerService, logger)
	walletHandler := handlers.NewWalletHandler(walletService, logger)
	notificationHandler := handlers.NewNotificationHandler(notificationService, logger)
	var sweeps handlers.SweepRunner
	if cronService != nil {
		sweeps = cronService
	}
	adminHandler := handlers.NewAdminHandler(partnerService, walletService, sweeps, logger)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Security.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db, publisher))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(jwtService, logger))
	{
		bookings := v1.Group("/bookings")
		{
			bookings.POST("", middleware.RequireRole(models.RoleCustomer), bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.POST("/:id/assign", middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin, models.RoleBusinessPartner), bookingHandler.AssignPartner)
			bookings.POST("/:id/reject", bookingHandler.RejectBooking)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
			bookings.POST("/:id/rate", middleware.RequireRole(models.RoleCustomer), bookingHandler.RateBooking)
			bookings.POST("/:id/retry-matching", bookingHandler.RetryMatching)
			bookings.POST("/:id/payment", middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin), bookingHandler.MarkPaid)

			// Field work requires a verified partner
			field := bookings.Group("/:id")
			field.Use(middleware.RequireRole(models.RolePartner), middleware.RequireApprovedPartner(partnerRepo, logger))
			{
				field.POST("/claim", bookingHandler.ClaimBooking)
				field.POST("/accept", bookingHandler.AcceptBooking)
				field.POST("/arrive", bookingHandler.MarkArrived)
				field.POST("/photos/before", bookingHandler.UploadBeforePhotos)
				field.POST("/photos/after", bookingHandler.UploadAfterPhotos)
				field.POST("/start", bookingHandler.StartService)
				field.POST("/verify-completion", bookingHandler.VerifyCompletion)
			}
		}

		partners := v1.Group("/partners/me")
		partners.Use(middleware.RequireRole(models.RolePartner))
		{
			partners.GET("", partnerHandler.GetProfile)
			partners.PUT("/availability", partnerHandler.UpdateAvailability)
			partners.PUT("/location", partnerHandler.UpdateLocation)
			partners.GET("/jobs", middleware.RequireApprovedPartner(partnerRepo, logger), bookingHandler.ListClaimableJobs)
		}

		wallet := v1.Group("/wallet")
		{
			wallet.GET("", walletHandler.GetWallet)
			wallet.GET("/transactions", walletHandler.ListTransactions)
			wallet.POST("/withdrawals", middleware.RequireRole(models.RolePartner, models.RoleBusinessPartner), walletHandler.RequestWithdrawal)
			wallet.GET("/withdrawals/:id", walletHandler.GetWithdrawal)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", notificationHandler.ListNotifications)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin))
		{
			admin.PUT("/partners/:id/kyc", adminHandler.UpdatePartnerKYC)
			admin.POST("/bookings/:id/complete", bookingHandler.CompleteService)
			admin.POST("/users/:id/wallet/top-up", adminHandler.TopUpWallet)
			admin.GET("/withdrawals", adminHandler.ListWithdrawals)
			admin.POST("/withdrawals/:id/complete", adminHandler.CompleteWithdrawal)
			admin.POST("/withdrawals/:id/reject", adminHandler.RejectWithdrawal)
			admin.GET("/jobs", adminHandler.GetJobStatus)
			admin.POST("/jobs/:name/run", adminHandler.RunJob)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	if cronService != nil {
		cronService.Stop()
	}
	if worker != nil {
		worker.Shutdown()
	}
	if asynqDisp != nil {
		if err := asynqDisp.Close(); err != nil {
			logger.Errorf("Failed to close matching queue client: %v", err)
		}
	}
	if inlineDisp != nil {
		inlineDisp.Wait()
	}

	logger.Info("Server exited")
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB, publisher *notifier.RedisPublisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		redisStatus := "healthy"
		if err := publisher.Ping(ctx); err != nil {
			redisStatus = "degraded"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"redis":     redisStatus,
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
