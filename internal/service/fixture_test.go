package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dipr-ads/be-release-orders/internal/config"
	"github.com/dipr-ads/be-release-orders/internal/logger"
	"github.com/dipr-ads/be-release-orders/internal/notification"
	"github.com/dipr-ads/be-release-orders/internal/repository"
	"github.com/dipr-ads/be-release-orders/internal/repository/memstore"
)

var testMailboxes = config.Mailboxes{
	Department:         "department@dipr.test",
	Deputy:             "deputy@dipr.test",
	TechnicalAssistant: "ta@dipr.test",
	Assistant:          "assistant@dipr.test",
	Director:           "director@dipr.test",
	UnderSecretary:     "us@dipr.test",
	Secretary:          "secretary@dipr.test",
	FAO:                "fao@dipr.test",
}

var testRouting = config.InvoiceRoutingConfig{
	DefaultMailbox: "assistant@dipr.test",
	Rules: []config.RoutingRule{
		{Mailbox: "hindi-desk@dipr.test", Vendors: []string{"Dainik Bhaskar"}},
	},
}

// recordingNotifier keeps every enqueued notification.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (r *recordingNotifier) Enqueue(_ context.Context, n notification.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) byTemplate(template string) []notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notification.Notification
	for _, n := range r.sent {
		if n.Template == template {
			out = append(out, n)
		}
	}
	return out
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type fixture struct {
	store    *memstore.Store
	notifier *recordingNotifier

	ads         *AdvertisementService
	invoices    *InvoiceService
	noteSheets  *NoteSheetService
	allocations *AllocationService
	admin       *AdminService
	actionLogs  *ActionLogService
	stats       *StatsService
	reports     *ReportService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	notifier := &recordingNotifier{}
	log := logger.Nop()
	audit := NewAuditor(store.ActionLogs, log)

	return &fixture{
		store:    store,
		notifier: notifier,
		ads: NewAdvertisementService(
			store.Advertisements, store.Allocations, store.Users, audit, notifier, testMailboxes, log,
		),
		invoices: NewInvoiceService(
			store.Invoices, store.Advertisements, store.Allocations, store.Worklist, store.Users,
			audit, notifier, testMailboxes, testRouting, log,
		),
		noteSheets: NewNoteSheetService(
			store.NoteSheets, store.Worklist, store.Users, audit, notifier, testMailboxes, log,
		),
		allocations: NewAllocationService(
			store.Allocations, store.Advertisements, store.Users, audit, notifier, testMailboxes, log,
		),
		admin:      NewAdminService(store.JobLogic, store.Admin, store.Users, audit, log),
		actionLogs: NewActionLogService(store.ActionLogs, audit, log),
		stats:      NewStatsService(store.NoteSheets),
		reports:    NewReportService(store.Advertisements, store.Users, log),
	}
}

func (f *fixture) user(t *testing.T, name, role string) *repository.User {
	t.Helper()
	u := &repository.User{DisplayName: name, Email: name + "@example.test", Role: role}
	require.NoError(t, f.store.Users.Upsert(context.Background(), u))
	return u
}

// vendors creates n vendors and returns their ids in creation order.
func (f *fixture) vendors(t *testing.T, names ...string) []string {
	t.Helper()
	ids := make([]string, len(names))
	for i, name := range names {
		ids[i] = f.user(t, name, "vendor").ID
	}
	return ids
}

func (f *fixture) submittedAd(t *testing.T, applicant string) *repository.Advertisement {
	t.Helper()
	ad, err := f.ads.CreateAdvertisement(context.Background(), &CreateAdvertisementRequest{
		Subject:        "Tender notice",
		DepartmentName: "PWD",
		BearingNo:      "PWD/2024/17",
		UserRef:        "Users/" + applicant,
	})
	require.NoError(t, err)
	return ad
}

// logsFor returns the audit records with the given action code.
func (f *fixture) logsFor(action int) []*repository.ActionLog {
	var out []*repository.ActionLog
	for _, l := range f.store.Logs() {
		if l.Action == action {
			out = append(out, l)
		}
	}
	return out
}
