package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dipr-ads/be-release-orders/internal/notification"
	"github.com/dipr-ads/be-release-orders/internal/repository"
)

// The services depend on these contracts. The pgx repositories implement them
// in production and internal/repository/memstore in tests.

// AdvertisementStore persists advertisements.
type AdvertisementStore interface {
	Create(ctx context.Context, ad *repository.Advertisement) error
	GetByID(ctx context.Context, id string) (*repository.Advertisement, error)
	List(ctx context.Context, f repository.AdvertisementFilter) ([]*repository.Advertisement, int64, error)
	ListApprovedBetween(ctx context.Context, from, to time.Time) ([]*repository.Advertisement, error)
	Update(ctx context.Context, id string, approvedCW *bool, fn func(ad *repository.Advertisement) error) (*repository.Advertisement, *repository.Advertisement, error)
}

// AllocationStore persists newspaper job allocations.
type AllocationStore interface {
	Allocate(ctx context.Context, adID string, plan repository.AllocationPlanner) (*repository.Advertisement, *repository.Advertisement, []*repository.NewspaperJobAllocation, error)
	GetByID(ctx context.Context, id string) (*repository.NewspaperJobAllocation, error)
	ListByAdvertisement(ctx context.Context, adID string) ([]*repository.NewspaperJobAllocation, error)
	Update(ctx context.Context, id string, fn func(a *repository.NewspaperJobAllocation) error) (*repository.NewspaperJobAllocation, *repository.NewspaperJobAllocation, error)
	SetApproved(ctx context.Context, ids []string, approved bool) ([]*repository.NewspaperJobAllocation, error)
}

// JobLogicStore reads and edits the allocation singleton.
type JobLogicStore interface {
	Get(ctx context.Context) (*repository.JobLogic, error)
	SetWaitingQueue(ctx context.Context, queue []string) (*repository.JobLogic, error)
}

// InvoiceStore persists invoice requests.
type InvoiceStore interface {
	Create(ctx context.Context, inv *repository.InvoiceRequest) error
	GetByID(ctx context.Context, id string) (*repository.InvoiceRequest, error)
	List(ctx context.Context, f repository.InvoiceFilter) ([]*repository.InvoiceRequest, int64, error)
	Update(ctx context.Context, id string, fn func(inv *repository.InvoiceRequest) error) (*repository.InvoiceRequest, *repository.InvoiceRequest, error)
}

// WorklistStore persists assistant worklists.
type WorklistStore interface {
	Add(ctx context.Context, item *repository.WorklistItem) error
	// Tracked reports whether the invoice sits in the user's worklist or has
	// already been carried into a note sheet.
	Tracked(ctx context.Context, userRef, invoiceRef string) (bool, error)
	ListByUser(ctx context.Context, userRef string, vendorRef *string) ([]*repository.WorklistItem, error)
}

// NoteSheetStore persists note sheets and the budget ledger.
type NoteSheetStore interface {
	Create(ctx context.Context, userRef, vendorRef string, build repository.NoteSheetBuilder) (*repository.NoteSheet, error)
	GetByID(ctx context.Context, id string) (*repository.NoteSheet, error)
	List(ctx context.Context, f repository.NoteSheetFilter) ([]*repository.NoteSheet, int64, error)
	Transition(ctx context.Context, id string, fn repository.NoteSheetTransition) (*repository.NoteSheet, *repository.NoteSheet, *repository.BudgetEntry, error)
	CountApprovedBetween(ctx context.Context, from, to time.Time) (int64, error)
	Ledger(ctx context.Context, noteSheetID string) ([]*repository.BudgetEntry, error)
}

// AdminStore reads and edits the admin singleton.
type AdminStore interface {
	Get(ctx context.Context) (*repository.AdminData, error)
	SetBudget(ctx context.Context, budget decimal.Decimal) (*repository.AdminData, error)
}

// UserStore persists users and vendors.
type UserStore interface {
	Upsert(ctx context.Context, u *repository.User) error
	GetByID(ctx context.Context, id string) (*repository.User, error)
	List(ctx context.Context, role *string) ([]*repository.User, error)
}

// ActionLogStore persists audit records.
type ActionLogStore interface {
	Append(ctx context.Context, entry *repository.ActionLog) error
	GetByID(ctx context.Context, id string) (*repository.ActionLog, error)
	List(ctx context.Context, f repository.ActionLogFilter) ([]*repository.ActionLog, int64, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Notifier accepts post-commit notifications. Enqueue never fails the caller.
type Notifier interface {
	Enqueue(ctx context.Context, n notification.Notification)
}
