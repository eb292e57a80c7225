package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

type fakeSweeper struct {
	swept []uuid.UUID
	err   error
}

func (f *fakeSweeper) SweepBooking(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	f.swept = append(f.swept, bookingID)
	return f.err == nil, f.err
}

func TestNewAbandonTask(t *testing.T) {
	id := uuid.New()
	task, opts, err := NewAbandonTask(id, time.Now().Add(15*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, TypeBookingAbandon, task.Type())
	var p AbandonPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, id, p.BookingID)

	var taskID string
	for _, opt := range opts {
		if opt.Type() == asynq.TaskIDOpt {
			taskID = opt.Value().(string)
		}
	}
	assert.Equal(t, "abandon:"+id.String(), taskID)
}

func TestScheduleAbandon(t *testing.T) {
	client := &fakeEnqueuer{}
	scheduler := &Scheduler{client: client, logger: quietLogger()}

	require.NoError(t, scheduler.ScheduleAbandon(context.Background(), uuid.New(), time.Now().Add(time.Minute)))
	assert.Len(t, client.tasks, 1)
}

func TestScheduleAbandon_DuplicateIsNotAnError(t *testing.T) {
	scheduler := &Scheduler{client: &fakeEnqueuer{err: asynq.ErrTaskIDConflict}, logger: quietLogger()}

	assert.NoError(t, scheduler.ScheduleAbandon(context.Background(), uuid.New(), time.Now()))
}

func TestScheduleAbandon_EnqueueFailure(t *testing.T) {
	scheduler := &Scheduler{client: &fakeEnqueuer{err: errors.New("redis down")}, logger: quietLogger()}

	assert.Error(t, scheduler.ScheduleAbandon(context.Background(), uuid.New(), time.Now()))
}

func TestHandleAbandonTask(t *testing.T) {
	sweeper := &fakeSweeper{}
	handler := HandleAbandonTask(sweeper, quietLogger())
	id := uuid.New()
	task, _, err := NewAbandonTask(id, time.Now())
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	assert.Equal(t, []uuid.UUID{id}, sweeper.swept)
}

func TestHandleAbandonTask_Errors(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	handler := HandleAbandonTask(sweeper, quietLogger())

	task, _, err := NewAbandonTask(uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Error(t, handler(context.Background(), task))

	err = handler(context.Background(), asynq.NewTask(TypeBookingAbandon, []byte("{bad")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
