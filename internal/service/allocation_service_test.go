package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/notification"
	"github.com/dipr-ads/be-release-orders/internal/repository"
)

func TestBulkApprovalNotifiesOncePerAdvertisement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.vendors(t, "v1", "v2", "v3")
	f.store.SeedJobLogic(1, v...)

	first, err := f.ads.AutomaticAllocationSendToDeputy(ctx, &AllocateRequest{AdvertisementID: f.submittedAd(t, "u1").ID, NumOfVendors: 2})
	require.NoError(t, err)
	second, err := f.ads.AutomaticAllocationSendToDeputy(ctx, &AllocateRequest{AdvertisementID: f.submittedAd(t, "u1").ID, NumOfVendors: 1})
	require.NoError(t, err)
	f.notifier.reset()

	ids := []string{
		"NewspaperJobAllocation/" + first.Allocations[0].ID,
		first.Allocations[1].ID,
		second.Allocations[0].ID,
	}
	updated, err := f.allocations.UpdateApproveCvAndTimeAllotment(ctx, &ApproveAllocationsRequest{DocumentIDs: ids})
	require.NoError(t, err)
	require.Len(t, updated, 3)
	for _, a := range updated {
		assert.True(t, a.ApprovedCW)
	}

	assert.Len(t, f.notifier.byTemplate(notification.TemplateReleaseOrder), 3)
	assert.Len(t, f.notifier.byTemplate(notification.TemplateApprovedTDCase), 2)
	assert.Len(t, f.notifier.byTemplate(notification.TemplateInformDept), 2)
	require.Len(t, f.logsFor(repository.ActionBulkApproveAllocations), 1)
}

func TestBulkApprovalRejectsUnknownIDs(t *testing.T) {
	f := newFixture(t)

	_, err := f.allocations.UpdateApproveCvAndTimeAllotment(context.Background(), &ApproveAllocationsRequest{DocumentIDs: []string{"nope"}})
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))

	_, err = f.allocations.UpdateApproveCvAndTimeAllotment(context.Background(), &ApproveAllocationsRequest{})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
	assert.Empty(t, f.notifier.byTemplate(notification.TemplateReleaseOrder))
}

func TestVendorAcknowledgeAndComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.vendors(t, "v1", "v2")
	_, jobs := f.allocatedAd(t, v[0])
	job := jobs[0]

	_, err := f.allocations.Complete(ctx, job.ID, &VendorActionRequest{VendorRef: v[0]})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	_, err = f.allocations.Acknowledge(ctx, job.ID, &VendorActionRequest{VendorRef: v[1]})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	acked, err := f.allocations.Acknowledge(ctx, job.ID, &VendorActionRequest{VendorRef: "Users/" + v[0]})
	require.NoError(t, err)
	assert.True(t, acked.Acknowledged)
	assert.NotNil(t, acked.AcknowledgedAt)

	accepting := f.notifier.byTemplate(notification.TemplateAccepting)
	require.Len(t, accepting, 1)
	assert.Equal(t, testMailboxes.Department, accepting[0].To)
	assert.Equal(t, "v1", accepting[0].Body["newspaper"])
	assert.Equal(t, job.RONumber, accepting[0].Body["ronumber"])

	_, err = f.allocations.Reject(ctx, job.ID, &VendorActionRequest{VendorRef: v[0]})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	done, err := f.allocations.Complete(ctx, job.ID, &VendorActionRequest{VendorRef: v[0]})
	require.NoError(t, err)
	assert.True(t, done.Completed)
	require.Len(t, f.logsFor(repository.ActionVendorComplete), 2)
}

func TestVendorCannotAnswerUnapprovedAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.vendors(t, "v1")
	res, err := f.ads.ManualAllocationSendToDeputy(ctx, &AllocateRequest{AdvertisementID: f.submittedAd(t, "u1").ID, Vendors: v})
	require.NoError(t, err)

	_, err = f.allocations.Acknowledge(ctx, res.Allocations[0].ID, &VendorActionRequest{VendorRef: v[0]})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
}

func TestVendorReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.vendors(t, "v1")
	ad, jobs := f.allocatedAd(t, v[0])

	rejected, err := f.allocations.Reject(ctx, jobs[0].ID, &VendorActionRequest{VendorRef: v[0], Feedback: "no space"})
	require.NoError(t, err)
	assert.True(t, rejected.Rejected)
	assert.Equal(t, "no space", rejected.VendorFeedback)

	status := f.notifier.byTemplate(notification.TemplateROStatus)
	require.Len(t, status, 1)
	assert.Equal(t, "no space", status[0].Body["feedback"])
	assert.Equal(t, ad.ID, *status[0].AdvertiseRef)

	_, err = f.allocations.Acknowledge(ctx, jobs[0].ID, &VendorActionRequest{VendorRef: v[0]})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
}
