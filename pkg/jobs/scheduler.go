package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/pkg/logging"
)

// Scheduler enqueues registered schedules on their cron expressions. Each
// firing consults the schedule's BeforeSchedule hook first.
type Scheduler struct {
	registry *Registry
	enqueuer *Enqueuer
	opts     SchedulerOptions
	m        *metrics
}

func NewScheduler(registry *Registry, enqueuer *Enqueuer, opts SchedulerOptions) (*Scheduler, error) {
	if registry == nil || enqueuer == nil {
		return nil, invalidConfig("registry and enqueuer are required")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	for _, s := range registry.Schedules() {
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			return nil, invalidConfig("schedule %q has invalid cron %q: %v", s.TaskSlug, s.Cron, err)
		}
	}
	return &Scheduler{registry: registry, enqueuer: enqueuer, opts: opts, m: getMetrics()}, nil
}

// Run blocks until ctx is done, then waits for in-flight firings.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	for _, sched := range s.registry.Schedules() {
		slug := sched.TaskSlug
		if _, err := c.AddFunc(sched.Cron, func() {
			if _, err := s.Fire(ctx, slug); err != nil {
				s.opts.Logger.WithError(err).WithField("task", slug).Error("jobs: scheduled firing failed")
			}
		}); err != nil {
			return invalidConfig("schedule %q: %v", slug, err)
		}
		s.opts.Logger.WithFields(logrus.Fields{"task": slug, "cron": sched.Cron}).Info("jobs: schedule registered")
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// Fire evaluates one schedule immediately. It reports whether a job was
// enqueued.
func (s *Scheduler) Fire(ctx context.Context, slug string) (bool, error) {
	sched, ok := s.registry.Schedule(slug)
	if !ok {
		return false, fmt.Errorf("%w: no schedule for %s", ErrUnknownTask, slug)
	}

	decision := ScheduleDecision{ShouldSchedule: true}
	if sched.BeforeSchedule != nil {
		var err error
		decision, err = sched.BeforeSchedule(ctx)
		if err != nil {
			s.m.scheduleTotal.WithLabelValues(slug, "error").Inc()
			return false, fmt.Errorf("before schedule %s: %w", slug, err)
		}
	}
	if !decision.ShouldSchedule {
		s.m.scheduleTotal.WithLabelValues(slug, "skipped").Inc()
		s.opts.Logger.WithField("task", slug).Debug("jobs: schedule skipped")
		return false, nil
	}

	job, err := s.enqueuer.EnqueueParams(ctx, EnqueueParams{
		Queue:     sched.Queue,
		TaskSlug:  slug,
		Input:     decision.Input,
		Scheduled: true,
	})
	if err != nil {
		s.m.scheduleTotal.WithLabelValues(slug, "error").Inc()
		return false, err
	}
	s.m.scheduleTotal.WithLabelValues(slug, "enqueued").Inc()
	s.opts.Logger.WithFields(logrus.Fields{"task": slug, "job_id": job.ID.String()}).Info("jobs: scheduled job enqueued")
	return true, nil
}

// SkipWhilePending is a BeforeSchedule hook that declines to schedule while a
// scheduled job for the same task is still queued or running.
func SkipWhilePending(queue Queue, queueName, slug string) func(context.Context) (ScheduleDecision, error) {
	return func(ctx context.Context) (ScheduleDecision, error) {
		n, err := queue.CountRunnableOrActive(ctx, CountParams{Queue: queueName, TaskSlug: slug, OnlyScheduled: true})
		if err != nil {
			return ScheduleDecision{}, err
		}
		return ScheduleDecision{ShouldSchedule: n == 0}, nil
	}
}
