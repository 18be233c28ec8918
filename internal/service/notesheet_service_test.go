package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/notification"
	"github.com/dipr-ads/be-release-orders/internal/repository"
)

// pendingNoteSheet creates a note sheet over two approved invoices of one
// vendor, totalling 1500.
func (f *fixture) pendingNoteSheet(t *testing.T) *repository.NoteSheet {
	t.Helper()
	v := f.vendors(t, "vendor")
	assistant := f.user(t, "assistant", "assistant")
	ad, jobs := f.allocatedAdN(t, v[0], 2)
	f.approvedInvoice(t, v[0], assistant.ID, ad[0], jobs[0], "1000")
	f.approvedInvoice(t, v[0], assistant.ID, ad[1], jobs[1], "500")

	ns, err := f.noteSheets.CreateNoteSheet(context.Background(), &CreateNoteSheetRequest{
		UserRef:   assistant.ID,
		VendorRef: v[0],
	})
	require.NoError(t, err)
	return ns
}

// allocatedAdN releases n advertisements to the same vendor.
func (f *fixture) allocatedAdN(t *testing.T, vendor string, n int) ([]*repository.Advertisement, []*repository.NewspaperJobAllocation) {
	t.Helper()
	var ads []*repository.Advertisement
	var jobs []*repository.NewspaperJobAllocation
	for i := 0; i < n; i++ {
		ad, allocated := f.allocatedAd(t, vendor)
		ads = append(ads, ad)
		jobs = append(jobs, allocated[0])
	}
	return ads, jobs
}

func (f *fixture) acknowledge(t *testing.T, ns *repository.NoteSheet, roles ...Role) *repository.NoteSheet {
	t.Helper()
	for _, r := range roles {
		var err error
		ns, err = f.noteSheets.Acknowledge(context.Background(), r, &NoteSheetDecisionRequest{NoteSheetID: ns.ID, Feedback: "ok " + string(r)})
		require.NoError(t, err, "acknowledge as %s", r)
	}
	return ns
}

func TestCreateNoteSheetAdvancesCounter(t *testing.T) {
	f := newFixture(t)
	f.store.SeedAdmin(decimal.NewFromInt(10000), 7)

	ns := f.pendingNoteSheet(t)

	assert.Equal(t, int64(8), ns.NoteSheetNo)
	assert.Equal(t, "NS/DIPR-8", ns.NoteSheetString)
	assert.Equal(t, repository.NoteSheetApproved, ns.AssistantStatus)
	assert.Equal(t, repository.NoteSheetPending, ns.DeputyStatus)
	for _, s := range []int{ns.DirectorStatus, ns.UnderSecretaryStatus, ns.SecretaryStatus, ns.FaoStatus} {
		assert.Equal(t, repository.StatusNotReached, s)
	}
	assert.True(t, ns.IsPending)
	assert.True(t, decimal.NewFromInt(1500).Equal(ns.TotalAmount))
	assert.Len(t, ns.AddData, 2)
	require.Len(t, ns.Details, 1)
	assert.Equal(t, "assistant", ns.Details[0].UserRole)

	admin, err := f.admin.GetAdminData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), admin.NoteSheetNo)
	assert.True(t, decimal.NewFromInt(10000).Equal(admin.Budget))

	items, err := f.noteSheets.Worklist(context.Background(), ns.CreatedBy, nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	ledger, err := f.noteSheets.Ledger(context.Background(), ns.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, repository.LedgerNoteSheetCreated, ledger[0].Kind)

	created := f.notifier.byTemplate(notification.TemplateNoteSheetCreate)
	require.Len(t, created, 1)
	assert.Equal(t, testMailboxes.Department, created[0].To)
	assert.Equal(t, "NS/DIPR-8", created[0].Body["notesheet"])
}

func TestCreateNoteSheetWithoutWorklistFails(t *testing.T) {
	f := newFixture(t)
	f.store.SeedAdmin(decimal.NewFromInt(100), 3)

	_, err := f.noteSheets.CreateNoteSheet(context.Background(), &CreateNoteSheetRequest{UserRef: "a1", VendorRef: "v1"})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	admin, err := f.admin.GetAdminData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), admin.NoteSheetNo)
}

func TestCreateNoteSheetUsesSuppliedTotal(t *testing.T) {
	f := newFixture(t)
	v := f.vendors(t, "vendor")
	assistant := f.user(t, "assistant", "assistant")
	ad, jobs := f.allocatedAd(t, v[0])
	f.approvedInvoice(t, v[0], assistant.ID, ad, jobs[0], "1000")

	total := decimal.RequireFromString("990.25")
	ns, err := f.noteSheets.CreateNoteSheet(context.Background(), &CreateNoteSheetRequest{
		UserRef:     assistant.ID,
		VendorRef:   v[0],
		TotalAmount: &total,
	})
	require.NoError(t, err)
	assert.True(t, total.Equal(ns.TotalAmount))
}

func TestApprovalChainDeductsBudgetOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SeedAdmin(decimal.NewFromInt(10000), 0)
	ns := f.pendingNoteSheet(t)

	// The director cannot act before the deputy.
	_, err := f.noteSheets.Acknowledge(ctx, RoleDirector, &NoteSheetDecisionRequest{NoteSheetID: ns.ID})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	ns = f.acknowledge(t, ns, RoleDeputy)
	assert.Equal(t, repository.NoteSheetApproved, ns.DeputyStatus)
	assert.Equal(t, repository.NoteSheetPending, ns.DirectorStatus)
	require.Len(t, f.notifier.byTemplate(notification.TemplateDirectorNoteSheet), 1)

	ns = f.acknowledge(t, ns, RoleDirector, RoleUnderSecretary)
	fao := f.notifier.byTemplate(notification.TemplateFaoNoteSheet)
	require.Len(t, fao, 2)
	assert.Equal(t, testMailboxes.UnderSecretary, fao[0].To)
	assert.Equal(t, testMailboxes.Secretary, fao[1].To)

	admin, _ := f.admin.GetAdminData(ctx)
	assert.True(t, decimal.NewFromInt(10000).Equal(admin.Budget))

	ns = f.acknowledge(t, ns, RoleSecretary)
	assert.True(t, ns.IsApproved)
	assert.False(t, ns.IsPending)
	assert.True(t, ns.BudgetDeducted)
	assert.Equal(t, repository.NoteSheetPending, ns.FaoStatus)
	assert.NotNil(t, ns.ApprovedAt)
	assert.Len(t, ns.Details, 5)

	admin, _ = f.admin.GetAdminData(ctx)
	assert.True(t, decimal.NewFromInt(8500).Equal(admin.Budget), "budget %s", admin.Budget)
	ledger, err := f.noteSheets.Ledger(ctx, ns.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, repository.LedgerDeduction, ledger[1].Kind)
	assert.True(t, decimal.NewFromInt(8500).Equal(ledger[1].BudgetAfter))
	require.Len(t, f.logsFor(repository.ActionBudgetDeduction), 1)

	assert.Len(t, f.notifier.byTemplate(notification.TemplateApprovedTFao), 1)
	sanction := f.notifier.byTemplate(notification.TemplateUploadSanction)
	require.Len(t, sanction, 1)
	assert.Equal(t, testMailboxes.Assistant, sanction[0].To)

	_, err = f.noteSheets.Acknowledge(ctx, RoleSecretary, &NoteSheetDecisionRequest{NoteSheetID: ns.ID})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	admin, _ = f.admin.GetAdminData(ctx)
	assert.True(t, decimal.NewFromInt(8500).Equal(admin.Budget))
}

func TestRejectResetsToAssistant(t *testing.T) {
	for _, role := range []Role{RoleDeputy, RoleDirector, RoleUnderSecretary, RoleSecretary, RoleFao} {
		t.Run(string(role), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			ns := f.pendingNoteSheet(t)

			// Walk the chain up to the rejecting role.
			for _, r := range approvalChain {
				if r == role {
					break
				}
				ns = f.acknowledge(t, ns, r)
			}

			rejected, err := f.noteSheets.Reject(ctx, role, &NoteSheetDecisionRequest{NoteSheetID: ns.ID, Feedback: "recheck"})
			require.NoError(t, err)

			assert.Equal(t, repository.NoteSheetReturned, rejected.AssistantStatus)
			assert.Equal(t, repository.NoteSheetPending, rejected.DeputyStatus)
			assert.Equal(t, repository.StatusNotReached, rejected.DirectorStatus)
			assert.Equal(t, repository.StatusNotReached, rejected.UnderSecretaryStatus)
			assert.Equal(t, repository.StatusNotReached, rejected.SecretaryStatus)
			assert.Equal(t, repository.StatusNotReached, rejected.FaoStatus)
			assert.True(t, rejected.IsPending)
			assert.False(t, rejected.IsApproved)
			assert.Equal(t, string(role), rejected.Details[len(rejected.Details)-1].UserRole)

			notices := f.notifier.byTemplate(notification.TemplateNoteSheetRejected)
			require.Len(t, notices, 1)
			assert.Equal(t, testMailboxes.Assistant, notices[0].To)
		})
	}
}

func TestRejectRequiresPendingRole(t *testing.T) {
	f := newFixture(t)
	ns := f.pendingNoteSheet(t)

	_, err := f.noteSheets.Reject(context.Background(), RoleSecretary, &NoteSheetDecisionRequest{NoteSheetID: ns.ID})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	_, err = f.noteSheets.Reject(context.Background(), RoleAssistant, &NoteSheetDecisionRequest{NoteSheetID: ns.ID})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	rejected := f.logsFor(repository.ActionRejectNoteSheet)
	require.Len(t, rejected, 1)
	assert.Equal(t, repository.LogFailed, rejected[0].Status)
}

func TestRejectRefusesReturnedNoteSheet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ns := f.pendingNoteSheet(t)

	rejected, err := f.noteSheets.Reject(ctx, RoleDeputy, &NoteSheetDecisionRequest{NoteSheetID: ns.ID, Feedback: "recheck"})
	require.NoError(t, err)
	require.Len(t, rejected.Details, 2)

	// The deputy slot reads pending again, but the sheet is back with the assistant.
	_, err = f.noteSheets.Reject(ctx, RoleDeputy, &NoteSheetDecisionRequest{NoteSheetID: ns.ID, Feedback: "again"})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	_, err = f.noteSheets.Acknowledge(ctx, RoleDeputy, &NoteSheetDecisionRequest{NoteSheetID: ns.ID})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	stored, err := f.noteSheets.GetNoteSheet(ctx, ns.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Details, 2)
	assert.Len(t, f.notifier.byTemplate(notification.TemplateNoteSheetRejected), 1)

	// After resubmission the deputy may decide again.
	_, err = f.noteSheets.ResubmitNoteSheet(ctx, &NoteSheetDecisionRequest{NoteSheetID: ns.ID})
	require.NoError(t, err)
	_, err = f.noteSheets.Reject(ctx, RoleDeputy, &NoteSheetDecisionRequest{NoteSheetID: ns.ID})
	require.NoError(t, err)
}

func TestFaoRejectionRefundsBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SeedAdmin(decimal.NewFromInt(2000), 0)
	ns := f.pendingNoteSheet(t)
	ns = f.acknowledge(t, ns, approvalChain...)

	admin, _ := f.admin.GetAdminData(ctx)
	require.True(t, decimal.NewFromInt(500).Equal(admin.Budget))

	rejected, err := f.noteSheets.Reject(ctx, RoleFao, &NoteSheetDecisionRequest{NoteSheetID: ns.ID})
	require.NoError(t, err)
	assert.False(t, rejected.BudgetDeducted)
	assert.Nil(t, rejected.ApprovedAt)

	admin, _ = f.admin.GetAdminData(ctx)
	assert.True(t, decimal.NewFromInt(2000).Equal(admin.Budget))
	ledger, _ := f.noteSheets.Ledger(ctx, ns.ID)
	require.Len(t, ledger, 3)
	assert.Equal(t, repository.LedgerRefund, ledger[2].Kind)
	require.Len(t, f.logsFor(repository.ActionBudgetRefund), 1)

	// Resubmission and a second full approval deduct again.
	resubmitted, err := f.noteSheets.ResubmitNoteSheet(ctx, &NoteSheetDecisionRequest{NoteSheetID: ns.ID})
	require.NoError(t, err)
	assert.Equal(t, repository.NoteSheetApproved, resubmitted.AssistantStatus)
	assert.Equal(t, repository.NoteSheetPending, resubmitted.DeputyStatus)
	f.acknowledge(t, resubmitted, approvalChain...)

	admin, _ = f.admin.GetAdminData(ctx)
	assert.True(t, decimal.NewFromInt(500).Equal(admin.Budget))
}

func TestResubmitRequiresReturnedNoteSheet(t *testing.T) {
	f := newFixture(t)
	ns := f.pendingNoteSheet(t)

	_, err := f.noteSheets.ResubmitNoteSheet(context.Background(), &NoteSheetDecisionRequest{NoteSheetID: ns.ID})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
}

func TestConcurrentSecretaryApprovalsKeepEveryDeduction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SeedAdmin(decimal.NewFromInt(100000), 0)

	const sheets = 8
	ready := make([]*repository.NoteSheet, sheets)
	for i := range ready {
		ns := f.pendingNoteSheet(t)
		ready[i] = f.acknowledge(t, ns, RoleDeputy, RoleDirector, RoleUnderSecretary)
	}

	var wg sync.WaitGroup
	for _, ns := range ready {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.noteSheets.Acknowledge(ctx, RoleSecretary, &NoteSheetDecisionRequest{NoteSheetID: ns.ID})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	admin, err := f.admin.GetAdminData(ctx)
	require.NoError(t, err)
	want := decimal.NewFromInt(100000 - sheets*1500)
	assert.True(t, want.Equal(admin.Budget), "budget %s, want %s", admin.Budget, want)
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{
		"deputy":          RoleDeputy,
		"Director":        RoleDirector,
		"under-secretary": RoleUnderSecretary,
		"UnderSecratory":  RoleUnderSecretary,
		"secretary":       RoleSecretary,
		"FAO":             RoleFao,
	} {
		got, err := ParseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRole("assistant")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
	_, err = ParseRole("janitor")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestCountApprovedAddByYear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SeedAdmin(decimal.NewFromInt(100000), 0)

	march := time.Date(2024, 3, 31, 20, 0, 0, 0, time.UTC) // 1 April in IST
	f.noteSheets.now = func() time.Time { return march }
	ns := f.pendingNoteSheet(t)
	f.acknowledge(t, ns, approvalChain...)

	counts, err := f.stats.CountApprovedAddByYear(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, counts, 12)
	for i, c := range counts {
		assert.Equal(t, i+1, c.Month)
		if c.Month == 4 {
			assert.Equal(t, int64(1), c.Count)
		} else {
			assert.Zero(t, c.Count, "month %d", c.Month)
		}
	}

	_, err = f.stats.CountApprovedAddByYear(ctx, 24)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}
