package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/rideshare/seat-booking-backend/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepBooking_LeavesOpenWindowAlone(t *testing.T) {
	f := newFixture(t)
	resp := f.mustReserve("A1")

	released, err := f.sweeper.SweepBooking(context.Background(), resp.Booking.ID)
	require.NoError(t, err)
	assert.False(t, released)
	assert.Equal(t, models.BookingStatusPending, f.booking(resp.Booking.ID).Status)
	assert.Equal(t, 9, f.available())
}

func TestSweepBooking_AbandonsTimedOut(t *testing.T) {
	f := newFixture(t)
	resp := f.mustReserve("A1", "A2")
	f.now = f.now.Add(15*time.Minute + time.Second)

	released, err := f.sweeper.SweepBooking(context.Background(), resp.Booking.ID)
	require.NoError(t, err)
	assert.True(t, released)

	booking := f.booking(resp.Booking.ID)
	assert.Equal(t, models.BookingStatusAbandoned, booking.Status)
	assert.Equal(t, models.PaymentStatusFailed, booking.PaymentStatus)
	assert.Equal(t, 10, f.available())
	assert.Equal(t, 1, f.audits.count(models.PaymentEventBookingAbandoned))

	// A second sweep is a no-op
	released, err = f.sweeper.SweepBooking(context.Background(), resp.Booking.ID)
	require.NoError(t, err)
	assert.False(t, released)
	assert.Equal(t, 10, f.available())
}

func TestSweepBooking_SkipsConfirmed(t *testing.T) {
	f := newFixture(t)
	resp := f.mustReserve("A1")
	_, err := f.reconciliation.Confirm(context.Background(), f.pay(resp, PaymentStatusCaptured))
	require.NoError(t, err)
	f.now = f.now.Add(time.Hour)

	released, err := f.sweeper.SweepBooking(context.Background(), resp.Booking.ID)
	require.NoError(t, err)
	assert.False(t, released)
	assert.Equal(t, models.BookingStatusConfirmed, f.booking(resp.Booking.ID).Status)
	assert.Equal(t, 9, f.available())
}

func TestSweepBooking_UnknownBooking(t *testing.T) {
	f := newFixture(t)

	released, err := f.sweeper.SweepBooking(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, released)
}

func TestSweepAbandoned_ReleasesAllBatches(t *testing.T) {
	f := newFixture(t)
	for _, seat := range []string{"A1", "A2", "A3", "A4", "A5"} {
		f.mustReserve(seat)
	}
	f.now = f.now.Add(30 * time.Minute)
	kept := f.mustReserve("A6")

	count, err := f.sweeper.SweepAbandoned(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, count)
	assert.Equal(t, 9, f.available())
	assert.Equal(t, models.BookingStatusPending, f.booking(kept.Booking.ID).Status)

	abandoned := 0
	for _, eventType := range f.publisher.types() {
		if eventType == events.TypeBookingAbandoned {
			abandoned++
		}
	}
	assert.Equal(t, 5, abandoned)
}

func TestSweepAbandoned_NothingToDo(t *testing.T) {
	f := newFixture(t)
	f.mustReserve("A1")

	count, err := f.sweeper.SweepAbandoned(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSweepAbandoned_StopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.mustReserve("A1")
	f.mustReserve("A2")
	f.now = f.now.Add(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	count, err := f.sweeper.SweepAbandoned(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, count)
	assert.Equal(t, 8, f.available())
}

func TestCronService_SchedulesSweep(t *testing.T) {
	f := newFixture(t)
	cron := NewCronService(f.sweeper, "", quietLogger())

	require.NoError(t, cron.Start())
	defer cron.Stop()

	status := cron.GetJobStatus()
	assert.Equal(t, true, status["running"])
	assert.Equal(t, 1, status["job_count"])
}

func TestCronService_RejectsBadSpec(t *testing.T) {
	f := newFixture(t)
	cron := NewCronService(f.sweeper, "not a cron spec", quietLogger())

	assert.Error(t, cron.Start())
}
