package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// TypeBookingAbandon releases a booking whose payment window closed
const TypeBookingAbandon = "booking:abandon"

// AbandonPayload identifies the booking to sweep
type AbandonPayload struct {
	BookingID uuid.UUID `json:"booking_id"`
}

// NewAbandonTask builds a task that fires at the booking's payment timeout.
// The task id is derived from the booking so re-arming is a no-op.
func NewAbandonTask(bookingID uuid.UUID, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(AbandonPayload{BookingID: bookingID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeBookingAbandon, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.TaskID("abandon:" + bookingID.String()),
		asynq.MaxRetry(5),
		asynq.Retention(time.Hour),
	}
	return task, opts, nil
}

// enqueuer is the part of asynq.Client the scheduler uses
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler arms delayed abandonment tasks
type Scheduler struct {
	client enqueuer
	logger *logrus.Logger
}

// NewScheduler creates a Scheduler on an asynq client
func NewScheduler(client *asynq.Client, logger *logrus.Logger) *Scheduler {
	return &Scheduler{client: client, logger: logger}
}

// ScheduleAbandon enqueues the sweep of bookingID at the given time
func (s *Scheduler) ScheduleAbandon(ctx context.Context, bookingID uuid.UUID, at time.Time) error {
	task, opts, err := NewAbandonTask(bookingID, at)
	if err != nil {
		return err
	}
	info, err := s.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue abandonment task: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"task_id":    info.ID,
		"fire_at":    at,
	}).Debug("Abandonment task scheduled")
	return nil
}

// BookingSweeper abandons a single timed out booking
type BookingSweeper interface {
	SweepBooking(ctx context.Context, bookingID uuid.UUID) (bool, error)
}

// HandleAbandonTask returns the handler for TypeBookingAbandon
func HandleAbandonTask(sweeper BookingSweeper, logger *logrus.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p AbandonPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.WithError(err).Error("Invalid abandonment task payload")
			return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
		}

		released, err := sweeper.SweepBooking(ctx, p.BookingID)
		if err != nil {
			logger.WithError(err).WithField("booking_id", p.BookingID).Error("Abandonment task failed")
			return err
		}
		logger.WithFields(logrus.Fields{
			"booking_id": p.BookingID,
			"released":   released,
		}).Debug("Abandonment task processed")
		return nil
	}
}

// Worker processes abandonment tasks
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *logrus.Logger
}

// NewWorker creates a worker on the given Redis connection
func NewWorker(redisOpt asynq.RedisClientOpt, sweeper BookingSweeper, concurrency int, logger *logrus.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 10
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 1,
		},
		Logger:   logger,
		LogLevel: asynq.WarnLevel,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBookingAbandon, HandleAbandonTask(sweeper, logger))

	return &Worker{server: server, mux: mux, logger: logger}
}

// Start begins processing in the background
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start task worker: %w", err)
	}
	w.logger.Info("Abandonment task worker started")
	return nil
}

// Shutdown stops the worker, waiting for in-flight tasks
func (w *Worker) Shutdown() {
	w.server.Shutdown()
	w.logger.Info("Abandonment task worker stopped")
}
