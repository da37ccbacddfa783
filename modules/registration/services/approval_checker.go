package services

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/modules/registration/domain/blockedjob"
	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/logging"
)

const approvalCheckBatch = 100

type CheckSummary struct {
	Checked  int `json:"checked"`
	Resolved int `json:"resolved"`
	Waiting  int `json:"waiting"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// ApprovalChecker resolves blocked registrations whose person meanwhile got
// an active role in the helper group. Resolving requeues the workflow.
type ApprovalChecker struct {
	clients ClientsFunc
	blocked *BlockedJobService
	log     *logrus.Entry
}

func NewApprovalChecker(clients ClientsFunc, blocked *BlockedJobService, log *logrus.Entry) *ApprovalChecker {
	if log == nil {
		log = logging.Nop()
	}
	return &ApprovalChecker{clients: clients, blocked: blocked, log: log.WithField("component", "approval_checker")}
}

// Run pages through every pending approval-required registration. Per-job
// failures are logged and counted; only configuration and listing errors are
// returned.
func (a *ApprovalChecker) Run(ctx context.Context) (CheckSummary, error) {
	var sum CheckSummary

	c, err := a.clients()
	if err != nil {
		return sum, err
	}
	if err := c.Config.Require(configuration.SettingHelperGroupID); err != nil {
		return sum, err
	}

	offset := 0
	for {
		page, err := a.blocked.List(ctx, blockedjob.FindParams{
			WorkflowSlug: RegistrationWorkflowSlug,
			Status:       blockedjob.StatusPending,
			Reason:       blockedjob.ReasonApprovalRequired,
			Limit:        approvalCheckBatch,
			Offset:       offset,
		})
		if err != nil {
			return sum, err
		}

		resolved := 0
		for _, doc := range page {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			if a.check(ctx, c, doc, &sum) {
				resolved++
			}
		}
		if len(page) < approvalCheckBatch {
			break
		}
		// resolved records are deleted, which shifts the rest forward
		offset += len(page) - resolved
	}

	a.log.WithFields(logrus.Fields{
		"checked":  sum.Checked,
		"resolved": sum.Resolved,
		"waiting":  sum.Waiting,
		"skipped":  sum.Skipped,
		"failed":   sum.Failed,
	}).Info("approval check finished")
	return sum, nil
}

// check reports whether doc was resolved.
func (a *ApprovalChecker) check(ctx context.Context, c *Clients, doc *blockedjob.BlockedJob, sum *CheckSummary) bool {
	sum.Checked++
	log := a.log.WithField("blocked_job_id", doc.ID.String())

	var in struct {
		ResolvedUserID string `json:"resolvedUserId"`
	}
	if err := json.Unmarshal(doc.Input, &in); err != nil || in.ResolvedUserID == "" {
		log.Warn("blocked job has no resolved person; skipping")
		sum.Skipped++
		return false
	}
	log = log.WithField("person_id", in.ResolvedUserID)

	_, active, err := c.Groups.CheckActiveRole(ctx, in.ResolvedUserID, c.Config.HelperGroupID)
	if err != nil {
		log.WithError(err).Error("approval check failed")
		sum.Failed++
		return false
	}
	if !active {
		sum.Waiting++
		return false
	}

	outcome, err := a.blocked.Resolve(ctx, doc.ID, nil)
	if err != nil {
		log.WithError(err).Error("resolving approved registration failed")
		sum.Failed++
		return false
	}
	if !outcome.Applied {
		return false
	}
	log.Info("helper group approval found; registration resumed")
	sum.Resolved++
	return true
}
