package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/cache"
	"github.com/travelcraft/booking-backend/internal/config"
	"github.com/travelcraft/booking-backend/internal/database"
	"github.com/travelcraft/booking-backend/internal/handlers"
	"github.com/travelcraft/booking-backend/internal/kafka"
	"github.com/travelcraft/booking-backend/internal/middleware"
	"github.com/travelcraft/booking-backend/internal/services"
	"github.com/travelcraft/booking-backend/pkg/jwt"
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

	logger.Info("Starting TravelCraft booking backend")
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

	// Redis backs the plan store, read caches and the promo limiter
	redisCache := cache.NewRedisCache(cfg.Redis, logger)
	defer redisCache.Close()
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisCache.Ping(pingCtx); err != nil {
		logger.WithError(err).Warn("Redis unreachable at startup; caches will fall back to the database")
	}
	pingCancel()

	// Messaging
	var (
		dispatcher services.Dispatcher
		events     services.Publisher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
		defer producer.Close()
		dispatcher = services.NewKafkaDispatcher(producer, cfg.Kafka.NotificationsTopic)
		events = producer
		logger.WithField("brokers", cfg.Kafka.Brokers).Info("Kafka producer initialized")
	} else {
		dispatcher = services.NewLogDispatcher(logger)
		logger.Info("No Kafka brokers configured; notifications are logged only")
	}

	// Payment gateway
	var gateway services.PaymentGateway
	switch cfg.Payment.Gateway {
	case "placeholder":
		logger.Warn("Using placeholder payment gateway - no money will move")
		gateway = services.NewPlaceholderGateway(cfg.Server.PublicBaseURL, logger)
	default:
		gateway = services.NewPAYableGateway(cfg.Payment, logger)
	}
	logger.WithField("gateway", gateway.Name()).Info("Payment gateway initialized")

	// Repositories
	logger.Info("Initializing services...")
	catalogRepo := database.NewCatalogRepository(db)
	availabilityRepo := database.NewAvailabilityRepository(db)
	promoRepo := database.NewPromoRepository(db)
	tripRepo := database.NewCustomTripRepository(db)
	bookingRepo := database.NewBookingRepository(db, logger)
	invoiceRepo := database.NewInvoiceRepository(db)
	auditRepo := database.NewPaymentAuditRepository(db, logger)

	// Services
	catalogService := services.NewCatalogService(catalogRepo, redisCache, logger)
	availabilityService := services.NewAvailabilityService(availabilityRepo, redisCache, logger)
	promoService := services.NewPromoService(promoRepo, redisCache, cfg.Promo, logger)
	itineraryService := services.NewItineraryService(redisCache, catalogService, tripRepo, logger)
	invoiceService := services.NewInvoiceService(invoiceRepo, bookingRepo, cfg.Invoice, cfg.Server.PublicBaseURL, logger)
	notificationService := services.NewNotificationService(dispatcher, cfg.Notification, logger)

	workflowConfig := services.DefaultBookingWorkflowConfig()
	workflowConfig.MaxTravelers = cfg.Booking.MaxTravelers
	workflowConfig.PaymentTTL = cfg.Booking.PaymentTTL
	workflowConfig.Currency = cfg.Booking.Currency
	workflowConfig.EventsTopic = cfg.Kafka.BookingEventsTopic

	workflowService := services.NewBookingWorkflowService(
		bookingRepo,
		catalogService,
		tripRepo,
		availabilityService,
		promoService,
		gateway,
		invoiceService,
		notificationService,
		auditRepo,
		events,
		workflowConfig,
		logger,
	)

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)
	logger.Info("Services initialized")

	// Background jobs
	expirationService := services.NewBookingExpirationService(workflowService, cfg.Scheduler.ExpirationInterval, logger)
	expirationService.Start()

	cronService := services.NewCronService(workflowService, invoiceService, cfg.Scheduler.ReconcileSpec, cfg.Scheduler.DocumentRetrySpec, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("✓ Cron service started - reconciliation and receipt retry enabled")

	// Handlers
	catalogHandler := handlers.NewCatalogHandler(catalogService, availabilityService, logger)
	itineraryHandler := handlers.NewItineraryHandler(itineraryService, logger)
	promoHandler := handlers.NewPromoHandler(promoService, logger)
	bookingHandler := handlers.NewBookingHandler(workflowService, logger)
	invoiceHandler := handlers.NewInvoiceHandler(invoiceService, logger)
	adminHandler := handlers.NewAdminHandler(availabilityService, promoService, bookingRepo, auditRepo, cronService, logger)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "ETag"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthCheckHandler(db, redisCache))

	v1 := router.Group("/api/v1")
	{
		// Public catalog
		catalog := v1.Group("/catalog")
		{
			catalog.GET("/stops", catalogHandler.ListStops)
			catalog.GET("/stops/:id", catalogHandler.GetStop)
			catalog.GET("/stops/:id/availability", catalogHandler.GetAvailability)
			catalog.GET("/stops/:id/availability/check", catalogHandler.CheckAvailability)
			catalog.GET("/services", catalogHandler.ListAddons)
		}

		// Gateway callback, authenticated by server-side verification
		v1.POST("/payments/webhook", bookingHandler.Webhook)

		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(jwtService, logger))
		{
			itinerary := authed.Group("/itinerary")
			{
				itinerary.GET("", itineraryHandler.GetPlan)
				itinerary.DELETE("", itineraryHandler.Clear)
				itinerary.POST("/stops", itineraryHandler.AddStop)
				itinerary.DELETE("/stops/:stop_id", itineraryHandler.RemoveStop)
				itinerary.POST("/reorder", itineraryHandler.Reorder)
				itinerary.POST("/save", itineraryHandler.Save)
			}

			trips := authed.Group("/trips")
			{
				trips.GET("", itineraryHandler.ListTrips)
				trips.GET("/:id", itineraryHandler.GetTrip)
				trips.PATCH("/:id/status", itineraryHandler.UpdateTripStatus)
			}

			authed.POST("/promos/validate", promoHandler.Validate)

			bookings := authed.Group("/bookings")
			{
				bookings.POST("",
					middleware.RateLimit(redisCache, "booking-submit", cfg.Booking.SubmitLimit, cfg.Booking.SubmitWindow, logger),
					bookingHandler.Submit)
				bookings.GET("", bookingHandler.ListBookings)
				bookings.GET("/:id", bookingHandler.GetBooking)
				bookings.DELETE("/:id", bookingHandler.Abandon)
				bookings.POST("/:id/authorization", bookingHandler.RecordAuthorization)
				bookings.POST("/:id/verify", bookingHandler.Verify)
				bookings.POST("/:id/retry", bookingHandler.Retry)
			}

			invoices := authed.Group("/invoices")
			{
				invoices.GET("/:number", invoiceHandler.GetInvoice)
				invoices.GET("/:number/document", invoiceHandler.GetDocument)
			}

			admin := authed.Group("/admin")
			admin.Use(middleware.RequireRole(middleware.RoleAdmin))
			{
				admin.PUT("/availability/:program_id", adminHandler.UpsertAvailability)
				admin.POST("/promos", adminHandler.CreatePromo)
				admin.PATCH("/trips/:id/status", itineraryHandler.UpdateTripStatus)
				admin.GET("/bookings/:id/payments", adminHandler.GetBookingPayments)
				admin.GET("/payments/:order_id", adminHandler.GetPaymentByOrder)
				admin.GET("/jobs", adminHandler.GetJobs)
				admin.POST("/jobs/:name/run", adminHandler.RunJob)
			}
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	expirationService.Stop()
	cronService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Let in-flight notifications and booking events finish
	notificationService.Wait()
	workflowService.Wait()

	logger.Info("Server exited successfully")
}

// healthCheckHandler reports database and cache health. Redis is degraded, not fatal.
func healthCheckHandler(db *sqlx.DB, redisCache *cache.RedisCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := database.HealthCheck(ctx, db); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		cacheStatus := "healthy"
		if err := redisCache.Ping(ctx); err != nil {
			cacheStatus = "degraded"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"cache":     cacheStatus,
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
