package registration

import (
	"context"
	"errors"

	"github.com/iota-uz/registrar/modules/registration/services"
	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/jobs"
)

const (
	stepRetries = 3
	// Every two hours, on the hour.
	approvalCheckCron = "0 */2 * * *"
)

type taskSet struct {
	workflow *services.RegistrationWorkflow
	checker  *services.ApprovalChecker
}

// permanent stops retries for errors another attempt cannot fix.
func permanent(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, services.ErrInvalidInput) || errors.Is(err, configuration.ErrMissingRegistrySetting) {
		return jobs.Permanent(err)
	}
	return err
}

func (t *taskSet) tasks() []jobs.Task {
	return []jobs.Task{
		{
			Slug:    services.RegistrationWorkflowSlug,
			Retries: stepRetries,
			Handle: func(ctx context.Context, job jobs.Job) (any, error) {
				out, err := t.workflow.Run(ctx, job.ID, job.Input)
				return out, permanent(err)
			},
		},
		{
			Slug:    services.GroupMembershipSlug,
			Retries: stepRetries,
			Handle: func(ctx context.Context, job jobs.Job) (any, error) {
				out, err := t.workflow.EnsureGroupMembership(ctx, job.ID, job.Input)
				return out, permanent(err)
			},
		},
		{
			Slug:    services.EventMembershipSlug,
			Retries: stepRetries,
			Handle: func(ctx context.Context, job jobs.Job) (any, error) {
				out, err := t.workflow.EnsureEventMembership(ctx, job.Input)
				return out, permanent(err)
			},
		},
		{
			Slug:            services.ApprovalCheckSlug,
			Retries:         0,
			DeleteOnSuccess: true,
			Handle: func(ctx context.Context, _ jobs.Job) (any, error) {
				sum, err := t.checker.Run(ctx)
				return sum, permanent(err)
			},
		},
	}
}

func registerTasks(registry *jobs.Registry, queue jobs.Queue, t *taskSet) error {
	for _, task := range t.tasks() {
		if err := registry.Register(task); err != nil {
			return err
		}
	}
	return registry.AddSchedule(jobs.Schedule{
		TaskSlug:       services.ApprovalCheckSlug,
		Cron:           approvalCheckCron,
		Queue:          jobs.DefaultQueue,
		BeforeSchedule: jobs.SkipWhilePending(queue, jobs.DefaultQueue, services.ApprovalCheckSlug),
	})
}
