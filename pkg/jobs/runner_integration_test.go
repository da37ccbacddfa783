//go:build integration

package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/registrar/internal/testkit"
	"github.com/iota-uz/registrar/pkg/jobs"
)

func TestRunner_Integration_Outcomes(t *testing.T) {
	env := testkit.NewPostgres(t)

	reg := jobs.NewRegistry()
	require.NoError(t, reg.Register(jobs.Task{Slug: "ok", Handle: func(context.Context, jobs.Job) (any, error) {
		return map[string]string{"status": "created"}, nil
	}}))
	require.NoError(t, reg.Register(jobs.Task{Slug: "flaky", Retries: 2, Handle: func(context.Context, jobs.Job) (any, error) {
		return nil, errors.New("registry timeout")
	}}))
	require.NoError(t, reg.Register(jobs.Task{Slug: "blocked", Handle: func(context.Context, jobs.Job) (any, error) {
		return nil, jobs.Suspend("ambiguous")
	}}))
	require.NoError(t, reg.Register(jobs.Task{Slug: "cleanup", DeleteOnSuccess: true, Handle: func(context.Context, jobs.Job) (any, error) {
		return nil, nil
	}}))

	queue := jobs.NewPgQueue()
	enq := jobs.NewEnqueuer(queue, reg)
	ok, err := enq.Enqueue(env.Ctx, "ok", nil)
	require.NoError(t, err)
	flaky, err := enq.Enqueue(env.Ctx, "flaky", nil)
	require.NoError(t, err)
	blocked, err := enq.Enqueue(env.Ctx, "blocked", nil)
	require.NoError(t, err)
	cleanup, err := enq.Enqueue(env.Ctx, "cleanup", nil)
	require.NoError(t, err)

	runner, err := jobs.NewRunner(env.Pool, reg, jobs.RunnerOptions{BaseBackoff: time.Hour, MaxBackoff: time.Hour})
	require.NoError(t, err)

	n, err := runner.ProcessOnce(env.Ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	got, err := queue.Get(env.Ctx, ok.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusCompleted, got.Status)
	require.JSONEq(t, `{"status":"created"}`, string(got.Output))

	got, err = queue.Get(env.Ctx, flaky.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusQueued, got.Status)
	require.Equal(t, 1, got.Attempts)
	require.True(t, got.AvailableAt.After(time.Now().Add(30*time.Minute)))
	require.NotNil(t, got.LastError)

	got, err = queue.Get(env.Ctx, blocked.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusSuspended, got.Status)

	_, err = queue.Get(env.Ctx, cleanup.ID)
	require.ErrorIs(t, err, jobs.ErrJobNotFound)

	// Nothing else is due: the flaky job waits for its backoff.
	n, err = runner.ProcessOnce(env.Ctx, nil)
	require.NoError(t, err)
	require.Zero(t, n)

	count, err := queue.CountRunnableOrActive(env.Ctx, jobs.CountParams{TaskSlug: "flaky"})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
