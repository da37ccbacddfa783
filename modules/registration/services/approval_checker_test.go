package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/registrar/modules/registration/domain/blockedjob"
	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/jobs"
)

func (h *harness) blockRun(t *testing.T, input, reason string) *blockedjob.BlockedJob {
	t.Helper()
	original := h.suspendedJob(GroupMembershipSlug, input)
	doc, err := h.blocked.Block(context.Background(), BlockParams{
		OriginalJobID: original.ID,
		WorkflowSlug:  RegistrationWorkflowSlug,
		Input:         json.RawMessage(input),
		Reason:        reason,
	})
	require.NoError(t, err)
	return doc
}

func TestApprovalChecker_ResolvesApprovedRuns(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.blockRun(t, `{"firstName":"Anna","lastName":"Muster","resolvedUserId":"42"}`, blockedjob.ReasonApprovalRequired)
	h.blockRun(t, `{"firstName":"Ben","lastName":"Berg","resolvedUserId":"43"}`, blockedjob.ReasonApprovalRequired)
	h.blockRun(t, `{"firstName":"Cleo","lastName":"Chen"}`, blockedjob.ReasonAmbiguousMatch)
	h.groups.setActive("42", "9")

	sum, err := h.checker.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, CheckSummary{Checked: 2, Resolved: 1, Waiting: 1}, sum)

	requeued := h.queue.BySlug(RegistrationWorkflowSlug)
	require.Len(t, requeued, 1)
	require.JSONEq(t, `{"firstName":"Anna","lastName":"Muster","resolvedUserId":"42"}`, string(requeued[0].Input))
	require.Len(t, h.queue.BySlug(GroupMembershipSlug), 2)
	require.Equal(t, 2, h.repo.Len())

	// A second pass finds nothing new to resolve.
	sum, err = h.checker.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, sum.Resolved)
	require.Len(t, h.queue.BySlug(RegistrationWorkflowSlug), 1)
}

func TestApprovalChecker_ReachesApprovalsBehindManualReviews(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for i := 0; i < approvalCheckBatch+5; i++ {
		h.blockRun(t, `{"firstName":"Cleo","lastName":"Chen"}`, blockedjob.ReasonAmbiguousMatch)
	}
	for i := 0; i < approvalCheckBatch; i++ {
		h.blockRun(t, `{"firstName":"Ben","lastName":"Berg","resolvedUserId":"43"}`, blockedjob.ReasonApprovalRequired)
	}
	h.blockRun(t, `{"firstName":"Anna","lastName":"Muster","resolvedUserId":"42"}`, blockedjob.ReasonApprovalRequired)
	h.groups.setActive("42", "9")

	sum, err := h.checker.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, CheckSummary{Checked: approvalCheckBatch + 1, Resolved: 1, Waiting: approvalCheckBatch}, sum)

	requeued := h.queue.BySlug(RegistrationWorkflowSlug)
	require.Len(t, requeued, 1)
	require.JSONEq(t, `{"firstName":"Anna","lastName":"Muster","resolvedUserId":"42"}`, string(requeued[0].Input))
}

func TestApprovalChecker_SkipsApprovalWithoutPerson(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.blockRun(t, `{"firstName":"Anna","lastName":"Muster"}`, blockedjob.ReasonApprovalRequired)

	sum, err := h.checker.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, CheckSummary{Checked: 1, Skipped: 1}, sum)
	require.Equal(t, 1, h.repo.Len())
}

func TestApprovalChecker_ContinuesAfterLookupFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.blockRun(t, `{"resolvedUserId":"42"}`, blockedjob.ReasonApprovalRequired)
	h.blockRun(t, `{"resolvedUserId":"43"}`, blockedjob.ReasonApprovalRequired)
	h.groups.checkErr = errors.New("registry timeout")

	sum, err := h.checker.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, CheckSummary{Checked: 2, Failed: 2}, sum)
	require.Equal(t, 2, h.repo.Len())
}

func TestApprovalChecker_RequiresHelperGroup(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.cfg.HelperGroupID = ""

	_, err := h.checker.Run(context.Background())
	require.ErrorIs(t, err, configuration.ErrMissingRegistrySetting)
}

func TestApprovalChecker_ScheduleSkipsWhileRunPending(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	gate := jobs.SkipWhilePending(h.queue, jobs.DefaultQueue, ApprovalCheckSlug)

	decision, err := gate(ctx)
	require.NoError(t, err)
	require.True(t, decision.ShouldSchedule)

	// A manually enqueued run does not hold back the schedule.
	_, err = h.enqueuer.Enqueue(ctx, ApprovalCheckSlug, nil)
	require.NoError(t, err)
	decision, err = gate(ctx)
	require.NoError(t, err)
	require.True(t, decision.ShouldSchedule)

	_, err = h.enqueuer.EnqueueParams(ctx, jobs.EnqueueParams{TaskSlug: ApprovalCheckSlug, Scheduled: true})
	require.NoError(t, err)
	decision, err = gate(ctx)
	require.NoError(t, err)
	require.False(t, decision.ShouldSchedule)
}
