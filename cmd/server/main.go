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
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rideshare/seat-booking-backend/internal/config"
	"github.com/rideshare/seat-booking-backend/internal/database"
	"github.com/rideshare/seat-booking-backend/internal/handlers"
	"github.com/rideshare/seat-booking-backend/internal/middleware"
	"github.com/rideshare/seat-booking-backend/internal/services"
	"github.com/rideshare/seat-booking-backend/internal/tasks"
	"github.com/rideshare/seat-booking-backend/pkg/email"
	"github.com/rideshare/seat-booking-backend/pkg/events"
	"github.com/rideshare/seat-booking-backend/pkg/jwt"
	"github.com/rideshare/seat-booking-backend/pkg/sms"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting seat booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	location, err := time.LoadLocation(cfg.Booking.Timezone)
	if err != nil {
		logger.Fatalf("Invalid BOOKING_TIMEZONE %q: %v", cfg.Booking.Timezone, err)
	}

	ctx := context.Background()

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		migrator, err := database.NewMigrator(db, logger)
		if err != nil {
			logger.Fatalf("Failed to prepare migrations: %v", err)
		}
		if err := migrator.Up(ctx); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
	}

	// Redis backs the per-user rate limiter and delayed abandonment tasks.
	// Without it the periodic sweep alone reclaims timed out bookings.
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		logger.Info("Redis connection established")
	} else {
		logger.Warn("REDIS_ADDR not set, rate limiting and delayed abandonment disabled")
	}

	// Repositories
	scheduleRepo := database.NewScheduleRepository(db.DB)
	bookingRepo := database.NewBookingRepository(db.DB)
	routeRepo := database.NewRouteRepository(db.DB)
	auditRepo := database.NewPaymentAuditRepository(db.DB, logger)

	// Collaborators
	var publisher events.Publisher = events.NewLogPublisher(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			logger.Fatalf("Failed to create Kafka publisher: %v", err)
		}
		publisher = kafkaPublisher
		logger.WithField("topic", cfg.Kafka.Topic).Info("Publishing booking events to Kafka")
	}
	defer publisher.Close()

	var smsGateway sms.Gateway = sms.NewLogGateway(logger)
	if cfg.SMS.Mode == "production" {
		smsGateway = sms.NewHTTPGateway(cfg.SMS.APIURL, cfg.SMS.APIKey, cfg.SMS.Sender)
	}
	logger.WithField("gateway", smsGateway.GetName()).Info("SMS gateway initialized")

	var mailer email.Sender
	if cfg.Email.Host != "" {
		mailer = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
	}

	notifier := services.NewNotificationService(smsGateway, mailer, logger)
	gateway := services.NewRazorpayService(&cfg.Payment, logger)
	distances := services.NewDistanceService(cfg.Routing, logger)

	// Services
	reservationService := services.NewReservationService(scheduleRepo, bookingRepo, routeRepo, gateway, auditRepo, notifier, publisher, cfg.Booking, logger)
	reconciliationService := services.NewReconciliationService(scheduleRepo, bookingRepo, gateway, auditRepo, notifier, publisher, logger)
	sweeperService := services.NewSweeperService(scheduleRepo, bookingRepo, auditRepo, publisher, cfg.Booking.SweepBatchSize, logger)
	bookingService := services.NewBookingService(scheduleRepo, bookingRepo, bookingRepo, routeRepo, auditRepo, notifier, publisher, logger)
	scheduleService := services.NewScheduleService(scheduleRepo, routeRepo, location, logger)
	fleetService := services.NewFleetService(routeRepo, distances, logger)
	searchService := services.NewSearchService(scheduleRepo, distances, location, logger)
	rateLimitService := services.NewRateLimitService(redisClient, logger)

	var worker *tasks.Worker
	if redisClient != nil {
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		taskClient := asynq.NewClient(redisOpt)
		defer taskClient.Close()
		reservationService.SetAbandonmentScheduler(tasks.NewScheduler(taskClient, logger))

		if cfg.Server.RunWorker {
			worker = tasks.NewWorker(redisOpt, sweeperService, 0, logger)
			if err := worker.Start(); err != nil {
				logger.Fatalf("Failed to start task worker: %v", err)
			}
		}
	}

	cronService := services.NewCronService(sweeperService, cfg.Booking.SweepSchedule, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	searchHandler := handlers.NewSearchHandler(searchService, logger)
	bookingHandler := handlers.NewBookingHandler(reservationService, reconciliationService, bookingService, logger)
	adminHandler := handlers.NewAdminHandler(fleetService, scheduleService, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: !containsWildcard(cfg.CORS.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db, redisClient, cronService))

	authMiddleware := middleware.AuthMiddleware(jwtService, logger)
	ipLimit := middleware.IPRateLimit(cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second, logger)

	v1 := router.Group("/api/v1")
	{
		// Gateway callbacks are authenticated by their HMAC signature
		v1.POST("/payments/webhook", bookingHandler.PaymentWebhook)

		public := v1.Group("", ipLimit)
		{
			public.POST("/bookings/search", searchHandler.Search)
			public.GET("/schedules/:id/seats", bookingHandler.GetAvailableSeats)
		}

		bookings := v1.Group("/bookings", authMiddleware)
		{
			bookings.POST("",
				middleware.UserRateLimit(rateLimitService, "reserve", cfg.Booking.ReserveRequests, cfg.Booking.ReserveWindow),
				bookingHandler.Reserve,
			)
			bookings.POST("/confirm-payment", bookingHandler.ConfirmPayment)
			bookings.GET("/my", bookingHandler.GetMyBookings)
			bookings.GET("/:id", bookingHandler.GetBooking)
		}

		admin := v1.Group("/admin", authMiddleware, middleware.RequireRole(jwt.RoleAdmin))
		{
			admin.POST("/cars", adminHandler.CreateCar)
			admin.GET("/cars", adminHandler.ListCars)
			admin.POST("/routes", adminHandler.CreateRoute)
			admin.GET("/routes", adminHandler.ListRoutes)
			admin.GET("/routes/:id/schedules", adminHandler.ListSchedules)
			admin.POST("/schedules", adminHandler.CreateSchedules)
			admin.PATCH("/schedules/:id", adminHandler.UpdateSchedule)
			admin.DELETE("/schedules/:id", adminHandler.DeleteSchedule)
			admin.GET("/bookings", bookingHandler.GetAdminBookings)
			admin.POST("/bookings/:id/cancel", bookingHandler.CancelBooking)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	cronService.Stop()
	if worker != nil {
		worker.Shutdown()
	}
	notifier.Wait()

	logger.Info("Server exited successfully")
}

// healthCheckHandler reports database and Redis reachability
func healthCheckHandler(db database.DB, redisClient *redis.Client, cronService *services.CronService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		body := gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
			"jobs":      cronService.GetJobStatus(),
		}

		if err := db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["database"] = "unhealthy"
		}

		if redisClient != nil {
			body["redis"] = "healthy"
			if err := redisClient.Ping(ctx).Err(); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "unhealthy"
				body["redis"] = "unhealthy"
			}
		}

		c.JSON(status, body)
	}
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
