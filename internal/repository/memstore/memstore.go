// Package memstore is an in-memory implementation of the repository contracts
// used by service and handler tests. One mutex stands in for database
// transactions, so every callback runs with the whole store locked.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/repository"
)

// Store holds every table in memory.
type Store struct {
	mu sync.Mutex

	ads         map[string]*repository.Advertisement
	allocations map[string]*repository.NewspaperJobAllocation
	invoices    map[string]*repository.InvoiceRequest
	worklist    map[string]*repository.WorklistItem
	noteSheets  map[string]*repository.NoteSheet
	ledger      []*repository.BudgetEntry
	users       map[string]*repository.User
	logs        []*repository.ActionLog
	jobLogic    repository.JobLogic
	admin       repository.AdminData

	now func() time.Time

	Advertisements *Advertisements
	Allocations    *Allocations
	JobLogic       *JobLogic
	Invoices       *Invoices
	Worklist       *Worklist
	NoteSheets     *NoteSheets
	Admin          *Admin
	Users          *Users
	ActionLogs     *ActionLogs
}

// New returns an empty store with the job logic and admin singletons seeded.
func New() *Store {
	s := &Store{
		ads:         make(map[string]*repository.Advertisement),
		allocations: make(map[string]*repository.NewspaperJobAllocation),
		invoices:    make(map[string]*repository.InvoiceRequest),
		worklist:    make(map[string]*repository.WorklistItem),
		noteSheets:  make(map[string]*repository.NoteSheet),
		users:       make(map[string]*repository.User),
		jobLogic:    repository.JobLogic{ID: repository.SingletonID, RONumbers: 1, WaitingQueue: []string{}},
		admin:       repository.AdminData{ID: repository.SingletonID, Budget: decimal.Zero},
		now:         time.Now,
	}
	s.Advertisements = &Advertisements{s}
	s.Allocations = &Allocations{s}
	s.JobLogic = &JobLogic{s}
	s.Invoices = &Invoices{s}
	s.Worklist = &Worklist{s}
	s.NoteSheets = &NoteSheets{s}
	s.Admin = &Admin{s}
	s.Users = &Users{s}
	s.ActionLogs = &ActionLogs{s}
	return s
}

// SeedJobLogic sets the RO counter and waiting queue.
func (s *Store) SeedJobLogic(roNumbers int64, queue ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobLogic.RONumbers = roNumbers
	s.jobLogic.WaitingQueue = append([]string{}, queue...)
}

// SeedAdmin sets the budget and note sheet counter.
func (s *Store) SeedAdmin(budget decimal.Decimal, noteSheetNo int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admin.Budget = budget
	s.admin.NoteSheetNo = noteSheetNo
}

// Logs returns a copy of every audit record in insertion order.
func (s *Store) Logs() []*repository.ActionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*repository.ActionLog, len(s.logs))
	for i, l := range s.logs {
		c := *l
		out[i] = &c
	}
	return out
}

// LedgerEntries returns a copy of the whole budget ledger.
func (s *Store) LedgerEntries() []*repository.BudgetEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*repository.BudgetEntry, len(s.ledger))
	for i, e := range s.ledger {
		c := *e
		out[i] = &c
	}
	return out
}

func newID() string {
	return uuid.NewString()
}

// ── Advertisements ───────────────────────────────────────────────────────────

// Advertisements is the in-memory advertisement table.
type Advertisements struct{ s *Store }

func (r *Advertisements) Create(_ context.Context, ad *repository.Advertisement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	ad.ID = newID()
	if ad.AdvertisementID == "" {
		ad.AdvertisementID = ad.ID
	}
	ad.CreatedAt, ad.UpdatedAt = now, now
	if ad.Metadata != nil {
		// Match the JSON round trip the database applies to metadata.
		data, err := json.Marshal(ad.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal metadata")
		}
		ad.Metadata = nil
		if err := json.Unmarshal(data, &ad.Metadata); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal metadata")
		}
	}
	r.s.ads[ad.ID] = ad.Clone()
	return nil
}

func (r *Advertisements) GetByID(_ context.Context, id string) (*repository.Advertisement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ad, ok := r.s.ads[id]
	if !ok {
		return nil, errors.NotFound("advertisement", id)
	}
	return ad.Clone(), nil
}

func (r *Advertisements) List(_ context.Context, f repository.AdvertisementFilter) ([]*repository.Advertisement, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*repository.Advertisement
	for _, ad := range r.s.ads {
		if f.UserRef != nil && (ad.UserRef == nil || *ad.UserRef != *f.UserRef) {
			continue
		}
		if f.DepartmentName != nil && ad.DepartmentName != *f.DepartmentName {
			continue
		}
		if f.IsDraft != nil && ad.IsDraft != *f.IsDraft {
			continue
		}
		if f.StatusDeputy != nil && ad.StatusDeputy != *f.StatusDeputy {
			continue
		}
		out = append(out, ad.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Limit, f.Offset), int64(len(out)), nil
}

func (r *Advertisements) ListApprovedBetween(_ context.Context, from, to time.Time) ([]*repository.Advertisement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*repository.Advertisement
	for _, ad := range r.s.ads {
		if ad.StatusDeputy != repository.DeputyApproved && ad.StatusCaseworker != repository.CaseworkerSentToNewspaper {
			continue
		}
		at := ad.DateOfApproval
		if at == nil {
			at = ad.RODate
		}
		if at == nil || at.Before(from) || !at.Before(to) {
			continue
		}
		out = append(out, ad.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return approvalTime(out[i]).Before(approvalTime(out[j])) })
	return out, nil
}

func approvalTime(ad *repository.Advertisement) time.Time {
	if ad.DateOfApproval != nil {
		return *ad.DateOfApproval
	}
	return *ad.RODate
}

func (r *Advertisements) Update(_ context.Context, id string, approvedCW *bool, fn func(ad *repository.Advertisement) error) (*repository.Advertisement, *repository.Advertisement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.ads[id]
	if !ok {
		return nil, nil, errors.NotFound("advertisement", id)
	}
	ad := stored.Clone()
	if err := fn(ad); err != nil {
		return nil, nil, err
	}
	now := r.s.now()
	ad.UpdatedAt = now
	r.s.ads[id] = ad.Clone()
	if approvedCW != nil {
		for _, a := range r.s.allocations {
			if a.AdRef == id {
				a.ApprovedCW = *approvedCW
				a.UpdatedAt = now
			}
		}
	}
	return stored.Clone(), ad, nil
}

// ── Allocations ──────────────────────────────────────────────────────────────

// Allocations is the in-memory allocation table.
type Allocations struct{ s *Store }

func (r *Allocations) Allocate(_ context.Context, adID string, plan repository.AllocationPlanner) (*repository.Advertisement, *repository.Advertisement, []*repository.NewspaperJobAllocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.ads[adID]
	if !ok {
		return nil, nil, nil, errors.NotFound("advertisement", adID)
	}
	ad := stored.Clone()
	jl := r.s.jobLogic
	jl.WaitingQueue = append([]string{}, r.s.jobLogic.WaitingQueue...)

	allocations, err := plan(ad, &jl)
	if err != nil {
		return nil, nil, nil, err
	}

	seen := make(map[string]bool)
	for _, a := range r.s.allocations {
		seen[a.RONumber] = true
	}
	now := r.s.now()
	for _, a := range allocations {
		if seen[a.RONumber] {
			return nil, nil, nil, errors.Conflict("duplicate release order number " + a.RONumber)
		}
		seen[a.RONumber] = true
		a.ID = newID()
		a.CreatedAt, a.UpdatedAt = now, now
	}
	for _, a := range allocations {
		r.s.allocations[a.ID] = a.Clone()
	}
	jl.UpdatedAt = now
	r.s.jobLogic = jl
	ad.UpdatedAt = now
	r.s.ads[adID] = ad.Clone()
	return stored.Clone(), ad, allocations, nil
}

func (r *Allocations) GetByID(_ context.Context, id string) (*repository.NewspaperJobAllocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.allocations[id]
	if !ok {
		return nil, errors.NotFound("allocation", id)
	}
	return a.Clone(), nil
}

func (r *Allocations) ListByAdvertisement(_ context.Context, adID string) ([]*repository.NewspaperJobAllocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*repository.NewspaperJobAllocation, 0)
	for _, a := range r.s.allocations {
		if a.AdRef == adID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TimeOfAllotment.Equal(out[j].TimeOfAllotment) {
			return out[i].TimeOfAllotment.Before(out[j].TimeOfAllotment)
		}
		return out[i].RONumber < out[j].RONumber
	})
	return out, nil
}

func (r *Allocations) Update(_ context.Context, id string, fn func(a *repository.NewspaperJobAllocation) error) (*repository.NewspaperJobAllocation, *repository.NewspaperJobAllocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.allocations[id]
	if !ok {
		return nil, nil, errors.NotFound("allocation", id)
	}
	a := stored.Clone()
	if err := fn(a); err != nil {
		return nil, nil, err
	}
	a.UpdatedAt = r.s.now()
	r.s.allocations[id] = a.Clone()
	return stored.Clone(), a, nil
}

func (r *Allocations) SetApproved(_ context.Context, ids []string, approved bool) ([]*repository.NewspaperJobAllocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		if _, ok := r.s.allocations[id]; !ok {
			return nil, errors.NotFound("allocation", id)
		}
	}
	now := r.s.now()
	out := make([]*repository.NewspaperJobAllocation, 0, len(ids))
	for _, id := range ids {
		a := r.s.allocations[id]
		a.ApprovedCW = approved
		a.UpdatedAt = now
		out = append(out, a.Clone())
	}
	return out, nil
}

// ── JobLogic ─────────────────────────────────────────────────────────────────

// JobLogic is the in-memory job logic singleton.
type JobLogic struct{ s *Store }

func (r *JobLogic) Get(_ context.Context) (*repository.JobLogic, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	jl := r.s.jobLogic
	jl.WaitingQueue = append([]string{}, r.s.jobLogic.WaitingQueue...)
	return &jl, nil
}

func (r *JobLogic) SetWaitingQueue(_ context.Context, queue []string) (*repository.JobLogic, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.jobLogic.WaitingQueue = append([]string{}, queue...)
	r.s.jobLogic.UpdatedAt = r.s.now()
	jl := r.s.jobLogic
	jl.WaitingQueue = append([]string{}, queue...)
	return &jl, nil
}

// ── Invoices ─────────────────────────────────────────────────────────────────

// Invoices is the in-memory invoice request table.
type Invoices struct{ s *Store }

func (r *Invoices) Create(_ context.Context, inv *repository.InvoiceRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	inv.ID = newID()
	inv.CreatedAt, inv.UpdatedAt = now, now
	r.s.invoices[inv.ID] = inv.Clone()
	return nil
}

func (r *Invoices) GetByID(_ context.Context, id string) (*repository.InvoiceRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return nil, errors.NotFound("invoice request", id)
	}
	return inv.Clone(), nil
}

func (r *Invoices) List(_ context.Context, f repository.InvoiceFilter) ([]*repository.InvoiceRequest, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*repository.InvoiceRequest
	for _, inv := range r.s.invoices {
		if f.UserRef != nil && inv.UserRef != *f.UserRef {
			continue
		}
		if f.AdvertiseRef != nil && (inv.AdvertiseRef == nil || *inv.AdvertiseRef != *f.AdvertiseRef) {
			continue
		}
		if f.DeputyStatus != nil && inv.DeputyStatus != *f.DeputyStatus {
			continue
		}
		if f.AssistantStatus != nil && inv.AssistantStatus != *f.AssistantStatus {
			continue
		}
		out = append(out, inv.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Limit, f.Offset), int64(len(out)), nil
}

func (r *Invoices) Update(_ context.Context, id string, fn func(inv *repository.InvoiceRequest) error) (*repository.InvoiceRequest, *repository.InvoiceRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.invoices[id]
	if !ok {
		return nil, nil, errors.NotFound("invoice request", id)
	}
	inv := stored.Clone()
	if err := fn(inv); err != nil {
		return nil, nil, err
	}
	inv.UpdatedAt = r.s.now()
	r.s.invoices[id] = inv.Clone()
	return stored.Clone(), inv, nil
}

// ── Worklist ─────────────────────────────────────────────────────────────────

// Worklist is the in-memory approval worklist.
type Worklist struct{ s *Store }

func (r *Worklist) Add(_ context.Context, item *repository.WorklistItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.worklist {
		if existing.UserRef == item.UserRef && existing.InvoiceRef == item.InvoiceRef {
			item.ID, item.CreatedAt = existing.ID, existing.CreatedAt
			return nil
		}
	}
	item.ID = newID()
	item.CreatedAt = r.s.now()
	c := *item
	r.s.worklist[item.ID] = &c
	return nil
}

func (r *Worklist) Tracked(_ context.Context, userRef, invoiceRef string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.worklist {
		if item.UserRef == userRef && item.InvoiceRef == invoiceRef {
			return true, nil
		}
	}
	for _, ns := range r.s.noteSheets {
		for _, item := range ns.AddData {
			if item.InvoiceRef == invoiceRef {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *Worklist) ListByUser(_ context.Context, userRef string, vendorRef *string) ([]*repository.WorklistItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.worklistFor(userRef, vendorRef), nil
}

func (s *Store) worklistFor(userRef string, vendorRef *string) []*repository.WorklistItem {
	out := make([]*repository.WorklistItem, 0)
	for _, item := range s.worklist {
		if item.UserRef != userRef || (vendorRef != nil && item.VendorRef != *vendorRef) {
			continue
		}
		c := *item
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ── NoteSheets ───────────────────────────────────────────────────────────────

// NoteSheets is the in-memory note sheet table and budget ledger.
type NoteSheets struct{ s *Store }

func (r *NoteSheets) Create(_ context.Context, userRef, vendorRef string, build repository.NoteSheetBuilder) (*repository.NoteSheet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := r.s.worklistFor(userRef, &vendorRef)
	admin := r.s.admin

	ns, err := build(items, &admin)
	if err != nil {
		return nil, err
	}
	for _, existing := range r.s.noteSheets {
		if existing.NoteSheetString == ns.NoteSheetString {
			return nil, errors.Conflict("duplicate note sheet number " + ns.NoteSheetString)
		}
	}

	now := r.s.now()
	ns.ID = newID()
	ns.CreatedAt, ns.UpdatedAt = now, now
	r.s.noteSheets[ns.ID] = ns.Clone()
	for _, item := range items {
		delete(r.s.worklist, item.ID)
	}
	admin.UpdatedAt = now
	r.s.admin = admin
	r.s.ledger = append(r.s.ledger, &repository.BudgetEntry{
		ID:           newID(),
		NoteSheetRef: ns.ID,
		Kind:         repository.LedgerNoteSheetCreated,
		Amount:       ns.TotalAmount,
		BudgetAfter:  admin.Budget,
		CreatedAt:    now,
	})
	return ns, nil
}

func (r *NoteSheets) GetByID(_ context.Context, id string) (*repository.NoteSheet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ns, ok := r.s.noteSheets[id]
	if !ok {
		return nil, errors.NotFound("note sheet", id)
	}
	return ns.Clone(), nil
}

func (r *NoteSheets) List(_ context.Context, f repository.NoteSheetFilter) ([]*repository.NoteSheet, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*repository.NoteSheet
	for _, ns := range r.s.noteSheets {
		if f.VendorRef != nil && ns.VendorRef != *f.VendorRef {
			continue
		}
		if f.IsPending != nil && ns.IsPending != *f.IsPending {
			continue
		}
		if f.IsApproved != nil && ns.IsApproved != *f.IsApproved {
			continue
		}
		out = append(out, ns.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NoteSheetNo > out[j].NoteSheetNo })
	return page(out, f.Limit, f.Offset), int64(len(out)), nil
}

func (r *NoteSheets) Transition(_ context.Context, id string, fn repository.NoteSheetTransition) (*repository.NoteSheet, *repository.NoteSheet, *repository.BudgetEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.noteSheets[id]
	if !ok {
		return nil, nil, nil, errors.NotFound("note sheet", id)
	}
	ns := stored.Clone()
	admin := r.s.admin

	entry, err := fn(ns, &admin)
	if err != nil {
		return nil, nil, nil, err
	}

	now := r.s.now()
	ns.UpdatedAt = now
	r.s.noteSheets[id] = ns.Clone()
	if entry != nil {
		admin.UpdatedAt = now
		r.s.admin = admin
		entry.ID = newID()
		entry.NoteSheetRef = id
		entry.BudgetAfter = admin.Budget
		entry.CreatedAt = now
		c := *entry
		r.s.ledger = append(r.s.ledger, &c)
	}
	return stored.Clone(), ns, entry, nil
}

func (r *NoteSheets) CountApprovedBetween(_ context.Context, from, to time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, ns := range r.s.noteSheets {
		if ns.IsApproved && ns.ApprovedAt != nil && !ns.ApprovedAt.Before(from) && ns.ApprovedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *NoteSheets) Ledger(_ context.Context, noteSheetID string) ([]*repository.BudgetEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*repository.BudgetEntry, 0)
	for _, e := range r.s.ledger {
		if e.NoteSheetRef == noteSheetID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// ── Admin ────────────────────────────────────────────────────────────────────

// Admin is the in-memory admin data singleton.
type Admin struct{ s *Store }

func (r *Admin) Get(_ context.Context) (*repository.AdminData, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	admin := r.s.admin
	return &admin, nil
}

func (r *Admin) SetBudget(_ context.Context, budget decimal.Decimal) (*repository.AdminData, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.admin.Budget = budget
	r.s.admin.UpdatedAt = r.s.now()
	admin := r.s.admin
	return &admin, nil
}

// ── Users ────────────────────────────────────────────────────────────────────

// Users is the in-memory user table.
type Users struct{ s *Store }

func (r *Users) Upsert(_ context.Context, u *repository.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	if u.ID == "" {
		u.ID = newID()
	}
	if existing, ok := r.s.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	c := *u
	r.s.users[u.ID] = &c
	return nil
}

func (r *Users) GetByID(_ context.Context, id string) (*repository.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (r *Users) List(_ context.Context, role *string) ([]*repository.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*repository.User, 0)
	for _, u := range r.s.users {
		if role != nil && u.Role != *role {
			continue
		}
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

// ── ActionLogs ───────────────────────────────────────────────────────────────

// ActionLogs is the in-memory audit table.
type ActionLogs struct{ s *Store }

func (r *ActionLogs) Append(_ context.Context, entry *repository.ActionLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry.ID = newID()
	entry.CreatedAt = r.s.now()
	c := *entry
	r.s.logs = append(r.s.logs, &c)
	return nil
}

func (r *ActionLogs) GetByID(_ context.Context, id string) (*repository.ActionLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.logs {
		if l.ID == id {
			c := *l
			return &c, nil
		}
	}
	return nil, errors.NotFound("action log", id)
}

func (r *ActionLogs) List(_ context.Context, f repository.ActionLogFilter) ([]*repository.ActionLog, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*repository.ActionLog
	for i := len(r.s.logs) - 1; i >= 0; i-- {
		l := r.s.logs[i]
		if f.ActorRef != nil && (l.ActorRef == nil || *l.ActorRef != *f.ActorRef) {
			continue
		}
		if f.Action != nil && l.Action != *f.Action {
			continue
		}
		if f.Status != nil && l.Status != *f.Status {
			continue
		}
		if f.AdvertiseRef != nil && (l.AdvertiseRef == nil || *l.AdvertiseRef != *f.AdvertiseRef) {
			continue
		}
		if f.InvoiceRef != nil && (l.InvoiceRef == nil || *l.InvoiceRef != *f.InvoiceRef) {
			continue
		}
		if f.NoteSheetRef != nil && (l.NoteSheetRef == nil || *l.NoteSheetRef != *f.NoteSheetRef) {
			continue
		}
		if f.From != nil && l.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !l.CreatedAt.Before(*f.To) {
			continue
		}
		c := *l
		out = append(out, &c)
	}
	return page(out, f.Limit, f.Offset), int64(len(out)), nil
}

func (r *ActionLogs) Purge(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.logs[:0]
	var removed int64
	for _, l := range r.s.logs {
		if l.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	r.s.logs = kept
	return removed, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
