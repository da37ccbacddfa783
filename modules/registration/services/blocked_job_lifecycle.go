package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/modules/registration/domain/blockedjob"
	"github.com/iota-uz/registrar/pkg/jobs"
	"github.com/iota-uz/registrar/pkg/logging"
)

var blockedTotal = sync.OnceValue(func() *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "registrar",
		Subsystem: "blocked_jobs",
		Name:      "created_total",
		Help:      "Workflow runs parked for review, by reason.",
	}, []string{"workflow", "reason"})
})

// BlockedJobLifecycle carries out the effects of blocked-job status changes.
// It runs inside the publisher's transaction, so a failed effect rolls back
// the status change as well.
type BlockedJobLifecycle struct {
	repo  blockedjob.Repository
	queue JobQueue
	log   *logrus.Entry
}

func NewBlockedJobLifecycle(repo blockedjob.Repository, queue JobQueue, log *logrus.Entry) *BlockedJobLifecycle {
	if log == nil {
		log = logging.Nop()
	}
	return &BlockedJobLifecycle{repo: repo, queue: queue, log: log.WithField("component", "blocked_job_lifecycle")}
}

func (l *BlockedJobLifecycle) OnCreated(_ context.Context, ev blockedjob.Created) error {
	blockedTotal().WithLabelValues(ev.Job.WorkflowSlug, ev.Job.Reason).Inc()
	return nil
}

func (l *BlockedJobLifecycle) OnStatusChanged(ctx context.Context, ev blockedjob.StatusChanged) error {
	effects, err := blockedjob.Transition(ev.Previous, ev.Current.Status, ev.Current)
	if err != nil {
		return err
	}
	log := l.log.WithField("blocked_job_id", ev.Current.ID.String())

	for _, effect := range effects {
		switch e := effect.(type) {
		case blockedjob.Requeue:
			job, err := l.queue.Enqueue(ctx, e.Slug, e.Input)
			if err != nil {
				return errors.Wrapf(err, "requeue %s", e.Slug)
			}
			log.WithFields(logrus.Fields{"workflow": e.Slug, "job_id": job.ID.String()}).Info("workflow requeued")
		case blockedjob.DeleteOriginal:
			err := l.queue.Queue().Delete(ctx, e.JobID)
			if errors.Is(err, jobs.ErrJobNotFound) {
				log.WithField("job_id", e.JobID.String()).Debug("original job already gone")
				continue
			}
			if err != nil {
				return errors.Wrap(err, "delete original job")
			}
		case blockedjob.DeleteBlockedJob:
			deleted, err := l.repo.Delete(ctx, e.ID)
			if err != nil {
				return errors.Wrap(err, "delete blocked job")
			}
			if !deleted {
				log.Debug("blocked job already deleted")
			}
		case blockedjob.NoOp:
		default:
			return fmt.Errorf("unknown blocked job effect %T", effect)
		}
	}
	return nil
}
