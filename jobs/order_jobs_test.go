package jobs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manulynx/gestores/jobs"
)

type stubCanceller struct {
	cancelled []int64
	err       error
}

func (s *stubCanceller) CancelExpired(ctx context.Context, orderID int64) error {
	if s.err != nil {
		return s.err
	}
	s.cancelled = append(s.cancelled, orderID)
	return nil
}

type stubSweeper struct {
	cutoff time.Time
	count  int
}

func (s *stubSweeper) CancelStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.cutoff = cutoff
	return s.count, nil
}

func TestAutoCancelHandler(t *testing.T) {
	canceller := &stubCanceller{}
	handler := jobs.NewAutoCancelHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), canceller)

	task, err := jobs.NewOrderAutoCancelTask(42)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskOrderAutoCancel, task.Type())

	require.NoError(t, handler.Handle(context.Background(), task))
	assert.Equal(t, []int64{42}, canceller.cancelled)
}

func TestAutoCancelHandlerPropagatesErrorForRetry(t *testing.T) {
	canceller := &stubCanceller{err: errors.New("db down")}
	handler := jobs.NewAutoCancelHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), canceller)

	task, err := jobs.NewOrderAutoCancelTask(42)
	require.NoError(t, err)
	require.Error(t, handler.Handle(context.Background(), task))
}

func TestAutoCancelHandlerSkipsMalformedPayload(t *testing.T) {
	canceller := &stubCanceller{}
	handler := jobs.NewAutoCancelHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), canceller)

	bad := asynq.NewTask(jobs.TaskOrderAutoCancel, []byte("{"))
	err := handler.Handle(context.Background(), bad)
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, canceller.cancelled)
}

func TestSweepHandlerAppliesThreshold(t *testing.T) {
	sweeper := &stubSweeper{count: 3}
	handler := jobs.NewSweepHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), sweeper, 24*time.Hour)

	task, err := jobs.NewOrderSweepTask(time.Now())
	require.NoError(t, err)

	before := time.Now().Add(-24 * time.Hour)
	require.NoError(t, handler.Handle(context.Background(), task))
	after := time.Now().Add(-24 * time.Hour)

	assert.False(t, sweeper.cutoff.Before(before))
	assert.False(t, sweeper.cutoff.After(after))
}
