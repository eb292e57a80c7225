package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rideshare/seat-booking-backend/internal/config"
	"github.com/rideshare/seat-booking-backend/internal/database"
	"github.com/rideshare/seat-booking-backend/internal/services"
	"github.com/rideshare/seat-booking-backend/pkg/events"
	"github.com/sirupsen/logrus"
)

// sweep-abandoned releases the seats of every pending booking whose payment
// window has closed, then exits. Safe to run alongside the server.
func main() {
	var (
		dbURLFlag string
		batchSize int
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.IntVar(&batchSize, "batch", 100, "bookings released per batch")
	flag.Parse()

	// Only the database is needed, so the full app config is not loaded
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	publisher := events.NewLogPublisher(logger)
	sweeper := services.NewSweeperService(
		database.NewScheduleRepository(db.DB),
		database.NewBookingRepository(db.DB),
		database.NewPaymentAuditRepository(db.DB, logger),
		publisher,
		batchSize,
		logger,
	)

	released, err := sweeper.SweepAbandoned(ctx)
	if err != nil {
		log.Fatalf("sweep failed after releasing %d bookings: %v", released, err)
	}

	fmt.Printf("Released %d abandoned bookings.\n", released)
}
