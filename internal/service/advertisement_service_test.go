package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/notification"
	"github.com/dipr-ads/be-release-orders/internal/repository"
	"github.com/dipr-ads/be-release-orders/internal/requestinfo"
)

func TestCreateAdvertisementWritesTwoAuditRecords(t *testing.T) {
	f := newFixture(t)
	applicant := f.user(t, "applicant", "department")
	ctx := requestinfo.With(context.Background(), requestinfo.Info{IP: "10.0.0.7", Platform: "web", Path: "/advertisement/createReleaseOrder"})

	ad, err := f.ads.CreateAdvertisement(ctx, &CreateAdvertisementRequest{
		Subject:        "  Tender notice ",
		DepartmentName: "PWD",
		UserRef:        "Users/" + applicant.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, "Tender notice", ad.Subject)
	assert.Equal(t, applicant.ID, *ad.UserRef)
	assert.Equal(t, repository.CaseworkerSubmitted, ad.StatusCaseworker)
	assert.Equal(t, repository.StatusNotReached, ad.StatusDeputy)
	assert.True(t, ad.IsCaseWorker)
	assert.NotNil(t, ad.DateOfApplication)

	created := f.logsFor(repository.ActionCreateAdvertisement)
	require.Len(t, created, 1)
	assert.Equal(t, repository.LogSuccess, created[0].Status)
	assert.Equal(t, "10.0.0.7", created[0].IP)
	assert.Equal(t, "web", created[0].Platform)
	assert.Equal(t, ad.ID, *created[0].AdvertiseRef)
	assert.NotEmpty(t, created[0].After)
	require.Len(t, f.logsFor(repository.ActionCreateAdvertisementDone), 1)
}

func TestCreateAdvertisementValidationFailureIsAudited(t *testing.T) {
	f := newFixture(t)

	_, err := f.ads.CreateAdvertisement(context.Background(), &CreateAdvertisementRequest{
		DepartmentName: "PWD",
		UserRef:        "Users/u1",
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Subject", appErr.Field)

	logs := f.logsFor(repository.ActionCreateAdvertisement)
	require.Len(t, logs, 1)
	assert.Equal(t, repository.LogFailed, logs[0].Status)
	assert.Empty(t, f.logsFor(repository.ActionCreateAdvertisementDone))
}

func TestCreateAdvertisementRejectsForeignReference(t *testing.T) {
	f := newFixture(t)

	_, err := f.ads.CreateAdvertisement(context.Background(), &CreateAdvertisementRequest{
		Subject:        "Tender",
		DepartmentName: "PWD",
		UserRef:        "Advertisement/abc",
	})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestAdvertisementDateRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ad, err := f.ads.CreateAdvertisement(ctx, &CreateAdvertisementRequest{
		Subject:           "Tender",
		DepartmentName:    "PWD",
		UserRef:           "u1",
		DateOfApplication: "2024-03-15T10:30:00.123+05:30",
	})
	require.NoError(t, err)

	got, err := f.ads.GetAdvertisement(ctx, ad.ID)
	require.NoError(t, err)
	want := time.Date(2024, 3, 15, 5, 0, 0, 123000000, time.UTC)
	assert.True(t, got.DateOfApplication.Equal(want), "got %s", got.DateOfApplication)

	_, err = f.ads.CreateAdvertisement(ctx, &CreateAdvertisementRequest{
		Subject: "Tender", DepartmentName: "PWD", UserRef: "u1", DateOfApplication: "15/03/2024",
	})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestDraftLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.ads.SaveDraft(ctx, &CreateAdvertisementRequest{UserRef: "Users/u1"})
	require.NoError(t, err)
	assert.True(t, draft.IsDraft)
	assert.Equal(t, repository.StatusNotReached, draft.StatusCaseworker)

	// Submitting without a subject is refused and leaves the draft intact.
	_, err = f.ads.UpdateDraft(ctx, draft.ID, &UpdateAdvertisementRequest{Submit: true})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	subject, dept := "Road works", "PWD"
	submitted, err := f.ads.UpdateDraft(ctx, draft.ID, &UpdateAdvertisementRequest{
		Subject:        &subject,
		DepartmentName: &dept,
		Submit:         true,
	})
	require.NoError(t, err)
	assert.False(t, submitted.IsDraft)
	assert.Equal(t, repository.CaseworkerSubmitted, submitted.StatusCaseworker)
	assert.Equal(t, "Road works", submitted.Subject)

	_, err = f.ads.UpdateDraft(ctx, draft.ID, &UpdateAdvertisementRequest{Subject: &subject})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
}

func TestAutomaticAllocationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.vendors(t, "v1", "v2", "v3", "v4")
	f.store.SeedJobLogic(10, v...)
	ad := f.submittedAd(t, "u1")

	res, err := f.ads.AutomaticAllocationSendToNewspaper(ctx, &AllocateRequest{
		AdvertisementID: "Advertisement/" + ad.ID,
		NumOfVendors:    3,
	})
	require.NoError(t, err)

	require.Len(t, res.Allocations, 3)
	for i, a := range res.Allocations {
		assert.Equal(t, fmt.Sprintf("DIPR/ARN/%d", 10+i), a.RONumber)
		assert.Equal(t, v[i], a.VendorRef)
		assert.True(t, a.ApprovedCW)
		assert.Equal(t, 19, a.DueTime.In(ist).Hour())
	}

	jl, err := f.admin.GetJobLogic(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(13), jl.RONumbers)
	assert.Equal(t, []string{v[3], v[0], v[1], v[2]}, jl.WaitingQueue)

	assert.Equal(t, "DIPR/ARN/10", res.Advertisement.ReleaseOrderNo)
	assert.Equal(t, v[:3], res.Advertisement.AllotedNewspapers)
	assert.Equal(t, repository.CaseworkerSentToNewspaper, res.Advertisement.StatusCaseworker)
	assert.False(t, res.Advertisement.ManuallyAllotted)

	releaseOrders := f.notifier.byTemplate(notification.TemplateReleaseOrder)
	require.Len(t, releaseOrders, 3)
	assert.Equal(t, "v1@example.test", releaseOrders[0].To)
	assert.Equal(t, "DIPR/ARN/10", releaseOrders[0].Body["ronumber"])
	informed := f.notifier.byTemplate(notification.TemplateInformDept)
	require.Len(t, informed, 1)
	assert.Equal(t, testMailboxes.Department, informed[0].To)
	assert.Equal(t, "v1, v2, v3", informed[0].Body["newspapers"])

	// A second allocation while the first is in flight is refused.
	_, err = f.ads.AutomaticAllocationSendToNewspaper(ctx, &AllocateRequest{AdvertisementID: ad.ID, NumOfVendors: 1})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	jl, _ = f.admin.GetJobLogic(ctx)
	assert.Equal(t, int64(13), jl.RONumbers)
}

func TestAutomaticAllocationWrapsShortQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.vendors(t, "v1", "v2")
	f.store.SeedJobLogic(5, v...)
	ad := f.submittedAd(t, "u1")

	res, err := f.ads.AutomaticAllocationSendToNewspaper(ctx, &AllocateRequest{AdvertisementID: ad.ID, NumOfVendors: 3})
	require.NoError(t, err)

	require.Len(t, res.Allocations, 3)
	wantVendors := []string{v[0], v[1], v[0]}
	for i, a := range res.Allocations {
		assert.Equal(t, fmt.Sprintf("DIPR/ARN/%d", 5+i), a.RONumber)
		assert.Equal(t, wantVendors[i], a.VendorRef)
	}

	jl, err := f.admin.GetJobLogic(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), jl.RONumbers)
	assert.Equal(t, []string{v[1], v[0]}, jl.WaitingQueue)
	assert.Len(t, f.notifier.byTemplate(notification.TemplateReleaseOrder), 3)
}

func TestAutomaticAllocationNeedsVendors(t *testing.T) {
	f := newFixture(t)
	ad := f.submittedAd(t, "u1")

	_, err := f.ads.AutomaticAllocationSendToNewspaper(context.Background(), &AllocateRequest{AdvertisementID: ad.ID, NumOfVendors: 1})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	_, err = f.ads.AutomaticAllocationSendToNewspaper(context.Background(), &AllocateRequest{AdvertisementID: ad.ID})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	failed := f.logsFor(repository.ActionAllocateToNewspaper)
	require.Len(t, failed, 2)
	assert.Equal(t, repository.LogFailed, failed[1].Status)
}

func TestConcurrentAllocationsNeverDuplicateReleaseOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.vendors(t, "v1", "v2", "v3")
	f.store.SeedJobLogic(1, v...)

	const workers = 20
	ads := make([]*repository.Advertisement, workers)
	for i := range ads {
		ads[i] = f.submittedAd(t, "u1")
	}

	var wg sync.WaitGroup
	results := make([]*AllocationResult, workers)
	errs := make([]error, workers)
	for i := range ads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.ads.AutomaticAllocationSendToNewspaper(ctx, &AllocateRequest{
				AdvertisementID: ads[i].ID,
				NumOfVendors:    2,
			})
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, res := range results {
		require.NoError(t, errs[i])
		for _, a := range res.Allocations {
			assert.False(t, seen[a.RONumber], "duplicate %s", a.RONumber)
			seen[a.RONumber] = true
		}
	}
	assert.Len(t, seen, workers*2)

	jl, err := f.admin.GetJobLogic(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1+workers*2), jl.RONumbers)
}

func TestManualAllocationMovesChosenVendorsToTail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.vendors(t, "v1", "v2", "v3", "v4")
	outsider := f.vendors(t, "outsider")[0]
	f.store.SeedJobLogic(50, v...)
	ad := f.submittedAd(t, "u1")

	res, err := f.ads.ManualAllocationSendToNewspaper(ctx, &AllocateRequest{
		AdvertisementID: ad.ID,
		Vendors:         []string{"Users/" + v[2], outsider},
	})
	require.NoError(t, err)

	require.Len(t, res.Allocations, 2)
	assert.Equal(t, "DIPR/ARN/50", res.Allocations[0].RONumber)
	assert.Equal(t, "DIPR/ARN/51", res.Allocations[1].RONumber)
	assert.True(t, res.Advertisement.ManuallyAllotted)

	jl, err := f.admin.GetJobLogic(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(52), jl.RONumbers)
	assert.Equal(t, []string{v[0], v[1], v[3], v[2]}, jl.WaitingQueue)

	_, err = f.ads.ManualAllocationSendToNewspaper(ctx, &AllocateRequest{
		AdvertisementID: f.submittedAd(t, "u1").ID,
		Vendors:         []string{v[0], "Users/" + v[0]},
	})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestDeputyApprovePullBackAndReapprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.vendors(t, "v1", "v2", "v3")
	f.store.SeedJobLogic(7, v...)
	ad := f.submittedAd(t, "u1")

	res, err := f.ads.AutomaticAllocationSendToDeputy(ctx, &AllocateRequest{AdvertisementID: ad.ID, NumOfVendors: 2})
	require.NoError(t, err)
	assert.Equal(t, v[:2], res.Advertisement.CaseworkerDraftNewspapers)
	assert.Empty(t, res.Advertisement.AllotedNewspapers)
	assert.True(t, res.Advertisement.IsRequestPending)
	assert.Equal(t, repository.DeputyPending, res.Advertisement.StatusDeputy)
	for _, a := range res.Allocations {
		assert.False(t, a.ApprovedCW)
	}
	assert.Empty(t, f.notifier.byTemplate(notification.TemplateReleaseOrder))
	pending := f.notifier.byTemplate(notification.TemplateInformDept)
	require.Len(t, pending, 1)
	assert.Equal(t, testMailboxes.Deputy, pending[0].To)

	approved, err := f.ads.DeputyApproveAdvertisement(ctx, &DeputyDecisionRequest{AdvertisementID: ad.ID, UserRef: "deputy-1"})
	require.NoError(t, err)
	assert.Equal(t, v[:2], approved.AllotedNewspapers)
	assert.Equal(t, v[:2], approved.ApprovedNewspapersLocal)
	assert.Empty(t, approved.CaseworkerDraftNewspapers)
	assert.Equal(t, repository.DeputyApproved, approved.StatusDeputy)
	assert.False(t, approved.IsRequestPending)
	assert.NotNil(t, approved.DateOfApproval)

	allocations, err := f.allocations.ListByAdvertisement(ctx, ad.ID)
	require.NoError(t, err)
	for _, a := range allocations {
		assert.True(t, a.ApprovedCW)
	}
	assert.Len(t, f.notifier.byTemplate(notification.TemplateReleaseOrder), 2)
	assert.Len(t, f.notifier.byTemplate(notification.TemplateApprovedTDCase), 1)
	assert.Len(t, f.notifier.byTemplate(notification.TemplateROStatus), 1)

	pulled, err := f.ads.DeputyPullBackAction(ctx, &DeputyDecisionRequest{AdvertisementID: ad.ID})
	require.NoError(t, err)
	assert.Equal(t, v[:2], pulled.CaseworkerDraftNewspapers)
	assert.Empty(t, pulled.AllotedNewspapers)
	assert.Equal(t, repository.DeputyPending, pulled.StatusDeputy)
	assert.True(t, pulled.IsRequestPending)
	allocations, _ = f.allocations.ListByAdvertisement(ctx, ad.ID)
	for _, a := range allocations {
		assert.False(t, a.ApprovedCW)
	}

	_, err = f.ads.DeputyPullBackAction(ctx, &DeputyDecisionRequest{AdvertisementID: ad.ID})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	again, err := f.ads.DeputyApproveAdvertisement(ctx, &DeputyDecisionRequest{AdvertisementID: ad.ID})
	require.NoError(t, err)
	assert.Equal(t, v[:2], again.AllotedNewspapers)

	require.Len(t, f.logsFor(repository.ActionDeputyApprove), 2)
	require.Len(t, f.logsFor(repository.ActionDeputyPullBack), 2)
}

func TestDeputyRejectIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.vendors(t, "v1", "v2")
	f.store.SeedJobLogic(1, v...)
	ad := f.submittedAd(t, "u1")

	_, err := f.ads.DeputyRejectAdvertisement(ctx, &DeputyDecisionRequest{AdvertisementID: ad.ID})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	_, err = f.ads.ManualAllocationSendToDeputy(ctx, &AllocateRequest{AdvertisementID: ad.ID, Vendors: v[:1]})
	require.NoError(t, err)

	rejected, err := f.ads.DeputyRejectAdvertisement(ctx, &DeputyDecisionRequest{AdvertisementID: ad.ID, Feedback: "wrong rates"})
	require.NoError(t, err)
	assert.Equal(t, repository.DeputyRejected, rejected.StatusDeputy)
	assert.Equal(t, "wrong rates", rejected.DeputyFeedback)
	assert.NotNil(t, rejected.DateOfRejection)

	status := f.notifier.byTemplate(notification.TemplateROStatus)
	require.Len(t, status, 1)
	assert.Equal(t, "rejected", status[0].Body["status"])

	_, err = f.ads.DeputyApproveAdvertisement(ctx, &DeputyDecisionRequest{AdvertisementID: ad.ID})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	_, err = f.ads.AutomaticAllocationSendToNewspaper(ctx, &AllocateRequest{AdvertisementID: ad.ID, NumOfVendors: 1})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	subject := "new"
	_, err = f.ads.EditAdvertisement(ctx, ad.ID, &UpdateAdvertisementRequest{Subject: &subject})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
}

func TestListAdvertisementsPaginates(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.submittedAd(t, "u1")
	}
	f.submittedAd(t, "u2")

	page, total, err := f.ads.ListAdvertisements(context.Background(), repository.AdvertisementFilter{UserRef: strPtr("u1")}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, page, 2)
}
