package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/rideshare/seat-booking-backend/pkg/email"
	"github.com/rideshare/seat-booking-backend/pkg/sms"
	"github.com/rideshare/seat-booking-backend/pkg/validator"
	"github.com/sirupsen/logrus"
)

// NotificationService messages passengers by SMS and email. Sends happen in
// the background and failures are only logged.
type NotificationService struct {
	sms     sms.Gateway
	mailer  email.Sender // nil disables email
	phones  *validator.PhoneValidator
	logger  *logrus.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(gateway sms.Gateway, mailer email.Sender, logger *logrus.Logger) *NotificationService {
	return &NotificationService{
		sms:     gateway,
		mailer:  mailer,
		phones:  validator.NewPhoneValidator(),
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// BookingReserved tells each passenger their seat is held until payment
func (s *NotificationService) BookingReserved(ctx context.Context, booking *models.Booking) {
	s.notify(ctx, booking, "Seat reserved", func(b *models.Booking, p models.Passenger, seat string) string {
		return fmt.Sprintf("Hi %s, seat %s is held for booking %s. Complete payment of Rs %.0f by %s to confirm.",
			p.Name, seat, shortID(b), b.AdvanceAmount, b.PaymentTimeout.Format("15:04"))
	})
}

// BookingConfirmed tells each passenger their booking is confirmed
func (s *NotificationService) BookingConfirmed(ctx context.Context, booking *models.Booking) {
	s.notify(ctx, booking, "Booking confirmed", func(b *models.Booking, p models.Passenger, seat string) string {
		return fmt.Sprintf("Hi %s, booking %s is confirmed. Seat %s. Paid Rs %.0f, balance Rs %.0f due at boarding.",
			p.Name, shortID(b), seat, b.PaidAmount, b.RemainingAmount)
	})
}

// BookingCancelled tells each passenger their booking was cancelled
func (s *NotificationService) BookingCancelled(ctx context.Context, booking *models.Booking) {
	s.notify(ctx, booking, "Booking cancelled", func(b *models.Booking, p models.Passenger, seat string) string {
		return fmt.Sprintf("Hi %s, booking %s (seat %s) has been cancelled by the operator.",
			p.Name, shortID(b), seat)
	})
}

// Wait blocks until queued notifications are sent
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) notify(ctx context.Context, booking *models.Booking, subject string, render func(*models.Booking, models.Passenger, string) string) {
	snapshot := *booking
	snapshot.Passengers = append(models.Passengers(nil), booking.Passengers...)
	snapshot.SelectedSeats = append(models.SeatNumbers(nil), booking.SelectedSeats...)
	bctx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(bctx, s.timeout)
		defer cancel()

		for i, p := range snapshot.Passengers {
			seat := ""
			if i < len(snapshot.SelectedSeats) {
				seat = snapshot.SelectedSeats[i]
			}
			message := render(&snapshot, p, seat)
			log := s.logger.WithFields(logrus.Fields{
				"booking_id": snapshot.ID,
				"subject":    subject,
			})

			if phone, err := s.phones.E164(p.Phone); err == nil {
				if _, err := s.sms.Send(ctx, phone, message); err != nil {
					log.WithError(err).Warn("SMS notification failed")
				}
			}
			if s.mailer != nil && strings.TrimSpace(p.Email) != "" {
				if err := s.mailer.Send(ctx, p.Email, subject, message); err != nil {
					log.WithError(err).Warn("Email notification failed")
				}
			}
		}
	}()
}

func shortID(booking *models.Booking) string {
	return strings.ToUpper(booking.ID.String()[:8])
}
