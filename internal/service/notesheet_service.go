package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dipr-ads/be-release-orders/internal/config"
	"github.com/dipr-ads/be-release-orders/internal/docref"
	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/logger"
	"github.com/dipr-ads/be-release-orders/internal/notification"
	"github.com/dipr-ads/be-release-orders/internal/repository"
)

// Role is a reviewer in the note sheet chain.
type Role string

const (
	RoleAssistant      Role = "assistant"
	RoleDeputy         Role = "deputy"
	RoleDirector       Role = "director"
	RoleUnderSecretary Role = "undersecretary"
	RoleSecretary      Role = "secretary"
	RoleFao            Role = "fao"
)

// approvalChain is the acknowledgement order after the assistant.
var approvalChain = []Role{RoleDeputy, RoleDirector, RoleUnderSecretary, RoleSecretary}

var roleAliases = map[string]Role{
	"assistant":      RoleAssistant,
	"deputy":         RoleDeputy,
	"director":       RoleDirector,
	"undersecretary": RoleUnderSecretary,
	"undersecratory": RoleUnderSecretary,
	"secretary":      RoleSecretary,
	"issc":           RoleSecretary,
	"sc":             RoleSecretary,
	"fao":            RoleFao,
}

// ParseRole resolves a role name from a route, case-insensitively.
func ParseRole(s string) (Role, error) {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	if r, ok := roleAliases[key]; ok && r != RoleAssistant {
		return r, nil
	}
	return "", errors.InvalidInput("role", "unknown reviewer role "+s)
}

// roleStatus returns the status field a role owns.
func roleStatus(ns *repository.NoteSheet, r Role) *int {
	switch r {
	case RoleAssistant:
		return &ns.AssistantStatus
	case RoleDeputy:
		return &ns.DeputyStatus
	case RoleDirector:
		return &ns.DirectorStatus
	case RoleUnderSecretary:
		return &ns.UnderSecretaryStatus
	case RoleSecretary:
		return &ns.SecretaryStatus
	case RoleFao:
		return &ns.FaoStatus
	}
	return nil
}

// previousRole returns the role whose approval gates r.
func previousRole(r Role) Role {
	for i, c := range approvalChain {
		if c == r {
			if i == 0 {
				return RoleAssistant
			}
			return approvalChain[i-1]
		}
	}
	return ""
}

// reviewGate returns the role whose approval must precede a decision by r.
func reviewGate(r Role) Role {
	if r == RoleFao {
		return RoleSecretary
	}
	return previousRole(r)
}

func nextRole(r Role) Role {
	for i, c := range approvalChain {
		if c == r && i+1 < len(approvalChain) {
			return approvalChain[i+1]
		}
	}
	return ""
}

// NoteSheetService runs the note sheet approval chain and its budget ledger.
type NoteSheetService struct {
	noteSheets NoteSheetStore
	worklist   WorklistStore
	audit      *Auditor
	mail       *mailFanout
	log        *logger.Logger
	now        func() time.Time
}

// NewNoteSheetService creates a new note sheet service.
func NewNoteSheetService(
	noteSheets NoteSheetStore,
	worklist WorklistStore,
	users UserStore,
	audit *Auditor,
	notifier Notifier,
	mailboxes config.Mailboxes,
	log *logger.Logger,
) *NoteSheetService {
	log = log.Component("notesheet")
	return &NoteSheetService{
		noteSheets: noteSheets,
		worklist:   worklist,
		audit:      audit,
		mail:       &mailFanout{users: users, notifier: notifier, mailboxes: mailboxes, log: log},
		log:        log,
		now:        time.Now,
	}
}

// CreateNoteSheetRequest turns an assistant's worklist for one vendor into a
// note sheet.
type CreateNoteSheetRequest struct {
	UserRef     string           `json:"userRef" validate:"required"`
	VendorRef   string           `json:"vendorRef" validate:"required"`
	TotalAmount *decimal.Decimal `json:"totalamount"`
	Feedback    string           `json:"feedback"`
}

// NoteSheetDecisionRequest carries a reviewer's decision on a note sheet.
type NoteSheetDecisionRequest struct {
	NoteSheetID string `json:"notesheetId" validate:"required"`
	UserRef     string `json:"userRef"`
	Feedback    string `json:"feedback"`
}

// ── Creation ──────────────────────────────────────────────────────────────────

// CreateNoteSheet consumes the assistant's worklist rows for the vendor. The
// counter increment, insert, worklist cleanup and ledger row are one
// transaction.
func (s *NoteSheetService) CreateNoteSheet(ctx context.Context, req *CreateNoteSheetRequest) (*repository.NoteSheet, error) {
	step := &Step{Action: repository.ActionCreateNoteSheet}
	var ns *repository.NoteSheet

	err := s.audit.Step(ctx, step, func() error {
		if err := validateRequest(req); err != nil {
			return err
		}
		user, err := docref.Parse(docref.Users, "userRef", req.UserRef)
		if err != nil {
			return err
		}
		step.ActorRef = strPtr(user.ID)
		vendor, err := docref.Parse(docref.Users, "vendorRef", req.VendorRef)
		if err != nil {
			return err
		}
		if req.TotalAmount != nil && req.TotalAmount.IsNegative() {
			return errors.InvalidInput("totalamount", "cannot be negative")
		}

		now := s.now()
		created, err := s.noteSheets.Create(ctx, user.ID, vendor.ID, func(items []*repository.WorklistItem, admin *repository.AdminData) (*repository.NoteSheet, error) {
			if len(items) == 0 {
				return nil, errors.InvalidInput("vendorRef", "no approved invoices are waiting for a note sheet")
			}
			admin.NoteSheetNo++

			total := decimal.Zero
			lines := make([]repository.NoteSheetItem, 0, len(items))
			for _, it := range items {
				total = total.Add(it.InvoiceAmount)
				lines = append(lines, repository.NoteSheetItem{
					InvoiceRef:    it.InvoiceRef,
					AdvertiseRef:  it.AdvertiseRef,
					RONumber:      it.RONumber,
					BillNo:        it.BillNo,
					InvoiceAmount: it.InvoiceAmount,
				})
			}
			if req.TotalAmount != nil {
				total = *req.TotalAmount
			}

			return &repository.NoteSheet{
				NoteSheetNo:          admin.NoteSheetNo,
				NoteSheetString:      fmt.Sprintf("NS/DIPR-%d", admin.NoteSheetNo),
				VendorRef:            vendor.ID,
				CreatedBy:            user.ID,
				AddData:              lines,
				AssistantStatus:      repository.NoteSheetApproved,
				DeputyStatus:         repository.NoteSheetPending,
				DirectorStatus:       repository.StatusNotReached,
				UnderSecretaryStatus: repository.StatusNotReached,
				SecretaryStatus:      repository.StatusNotReached,
				FaoStatus:            repository.StatusNotReached,
				TotalAmount:          total,
				Details:              []repository.NoteSheetDetail{detail(now, req.Feedback, RoleAssistant)},
				IsPending:            true,
			}, nil
		})
		if err != nil {
			return err
		}
		ns = created
		step.NoteSheetRef = strPtr(ns.ID)
		step.After = ns
		step.Message = "note sheet " + ns.NoteSheetString + " created"
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mail.toMailbox(ctx, s.mail.mailboxes.Department, notification.TemplateNoteSheetCreate, noteSheetBody(ns), noteSheetNotification(ns, step.ActorRef))

	s.log.Info().
		Str("notesheet_id", ns.ID).
		Str("notesheet", ns.NoteSheetString).
		Str("total_amount", ns.TotalAmount.String()).
		Int("lines", len(ns.AddData)).
		Msg("Note sheet created")
	return ns, nil
}

// ── Chain ─────────────────────────────────────────────────────────────────────

// Acknowledge approves the note sheet at role and hands it to the next role.
// The secretary's acknowledgement also deducts the total from the budget in the
// same transaction.
func (s *NoteSheetService) Acknowledge(ctx context.Context, role Role, req *NoteSheetDecisionRequest) (*repository.NoteSheet, error) {
	if previousRole(role) == "" {
		return nil, errors.InvalidInput("role", "role "+string(role)+" does not acknowledge note sheets")
	}

	ns, entry, actor, err := s.transition(ctx, repository.ActionAcknowledgeNoteSheet, req, func(ns *repository.NoteSheet, admin *repository.AdminData) (*repository.BudgetEntry, error) {
		if *roleStatus(ns, role) != repository.NoteSheetPending {
			return nil, errors.Conflict("note sheet is not pending " + string(role) + " review")
		}
		if *roleStatus(ns, previousRole(role)) != repository.NoteSheetApproved {
			return nil, errors.Conflict("note sheet has not been approved by the " + string(previousRole(role)))
		}
		now := s.now()
		*roleStatus(ns, role) = repository.NoteSheetApproved
		ns.Details = append(ns.Details, detail(now, req.Feedback, role))

		if n := nextRole(role); n != "" {
			*roleStatus(ns, n) = repository.NoteSheetPending
			return nil, nil
		}

		ns.IsApproved = true
		ns.IsPending = false
		ns.FaoStatus = repository.NoteSheetPending
		ns.ApprovedAt = &now
		if ns.BudgetDeducted {
			return nil, nil
		}
		admin.Budget = admin.Budget.Sub(ns.TotalAmount)
		ns.BudgetDeducted = true
		return &repository.BudgetEntry{Kind: repository.LedgerDeduction, Amount: ns.TotalAmount}, nil
	})
	if err != nil {
		return nil, err
	}

	if entry != nil {
		s.audit.Record(ctx, &Step{
			Action:       repository.ActionBudgetDeduction,
			ActorRef:     actor,
			NoteSheetRef: strPtr(ns.ID),
			After:        entry,
			Message:      fmt.Sprintf("deducted %s for %s, budget now %s", entry.Amount.StringFixed(2), ns.NoteSheetString, entry.BudgetAfter.StringFixed(2)),
		}, nil)
		if entry.BudgetAfter.IsNegative() {
			s.log.Warn().Str("notesheet_id", ns.ID).Str("budget", entry.BudgetAfter.String()).Msg("Budget is overdrawn")
		}
	}

	body := noteSheetBody(ns)
	n := noteSheetNotification(ns, actor)
	switch role {
	case RoleDeputy:
		s.mail.toMailbox(ctx, s.mail.mailboxes.Director, notification.TemplateDirectorNoteSheet, body, n)
	case RoleDirector:
		s.mail.toMailbox(ctx, s.mail.mailboxes.UnderSecretary, notification.TemplateFaoNoteSheet, body, n)
	case RoleUnderSecretary:
		s.mail.toMailbox(ctx, s.mail.mailboxes.Secretary, notification.TemplateFaoNoteSheet, body, n)
	case RoleSecretary:
		s.mail.toMailbox(ctx, s.mail.mailboxes.FAO, notification.TemplateApprovedTFao, body, n)
		s.mail.toMailbox(ctx, s.mail.mailboxes.Assistant, notification.TemplateUploadSanction, noteSheetBody(ns), n)
	}

	s.log.Info().
		Str("notesheet_id", ns.ID).
		Str("role", string(role)).
		Bool("approved", ns.IsApproved).
		Msg("Note sheet acknowledged")
	return ns, nil
}

// Reject sends the note sheet back to the assistant. A FAO rejection after the
// budget was deducted refunds it.
func (s *NoteSheetService) Reject(ctx context.Context, role Role, req *NoteSheetDecisionRequest) (*repository.NoteSheet, error) {
	if roleStatus(&repository.NoteSheet{}, role) == nil || role == RoleAssistant {
		return nil, errors.InvalidInput("role", "role "+string(role)+" does not review note sheets")
	}

	ns, entry, actor, err := s.transition(ctx, repository.ActionRejectNoteSheet, req, func(ns *repository.NoteSheet, admin *repository.AdminData) (*repository.BudgetEntry, error) {
		if *roleStatus(ns, role) != repository.NoteSheetPending {
			return nil, errors.Conflict("note sheet is not pending " + string(role) + " review")
		}
		if gate := reviewGate(role); *roleStatus(ns, gate) != repository.NoteSheetApproved {
			return nil, errors.Conflict("note sheet has not been approved by the " + string(gate))
		}
		ns.AssistantStatus = repository.NoteSheetReturned
		ns.DeputyStatus = repository.NoteSheetPending
		ns.DirectorStatus = repository.StatusNotReached
		ns.UnderSecretaryStatus = repository.StatusNotReached
		ns.SecretaryStatus = repository.StatusNotReached
		ns.FaoStatus = repository.StatusNotReached
		ns.IsPending = true
		ns.IsApproved = false
		ns.ApprovedAt = nil
		ns.Details = append(ns.Details, detail(s.now(), req.Feedback, role))

		if !ns.BudgetDeducted {
			return nil, nil
		}
		admin.Budget = admin.Budget.Add(ns.TotalAmount)
		ns.BudgetDeducted = false
		return &repository.BudgetEntry{Kind: repository.LedgerRefund, Amount: ns.TotalAmount}, nil
	})
	if err != nil {
		return nil, err
	}

	if entry != nil {
		s.audit.Record(ctx, &Step{
			Action:       repository.ActionBudgetRefund,
			ActorRef:     actor,
			NoteSheetRef: strPtr(ns.ID),
			After:        entry,
			Message:      fmt.Sprintf("refunded %s for %s, budget now %s", entry.Amount.StringFixed(2), ns.NoteSheetString, entry.BudgetAfter.StringFixed(2)),
		}, nil)
	}

	body := noteSheetBody(ns)
	body["feedback"] = req.Feedback
	body["rejectedBy"] = string(role)
	s.mail.toMailbox(ctx, s.mail.mailboxes.Assistant, notification.TemplateNoteSheetRejected, body, noteSheetNotification(ns, actor))

	s.log.Info().
		Str("notesheet_id", ns.ID).
		Str("role", string(role)).
		Bool("refunded", entry != nil).
		Msg("Note sheet rejected")
	return ns, nil
}

// ResubmitNoteSheet returns a rejected note sheet to the deputy.
func (s *NoteSheetService) ResubmitNoteSheet(ctx context.Context, req *NoteSheetDecisionRequest) (*repository.NoteSheet, error) {
	ns, _, actor, err := s.transition(ctx, repository.ActionResubmitNoteSheet, req, func(ns *repository.NoteSheet, _ *repository.AdminData) (*repository.BudgetEntry, error) {
		if ns.AssistantStatus != repository.NoteSheetReturned {
			return nil, errors.Conflict("note sheet was not returned to the assistant")
		}
		ns.AssistantStatus = repository.NoteSheetApproved
		ns.DeputyStatus = repository.NoteSheetPending
		ns.Details = append(ns.Details, detail(s.now(), req.Feedback, RoleAssistant))
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	s.mail.toMailbox(ctx, s.mail.mailboxes.Deputy, notification.TemplateNoteSheetCreate, noteSheetBody(ns), noteSheetNotification(ns, actor))

	s.log.Info().Str("notesheet_id", ns.ID).Msg("Note sheet resubmitted")
	return ns, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetNoteSheet returns one note sheet.
func (s *NoteSheetService) GetNoteSheet(ctx context.Context, id string) (*repository.NoteSheet, error) {
	return s.noteSheets.GetByID(ctx, id)
}

// ListNoteSheets lists note sheets, highest number first.
func (s *NoteSheetService) ListNoteSheets(ctx context.Context, f repository.NoteSheetFilter, page, pageSize int) ([]*repository.NoteSheet, int64, error) {
	f.Limit, f.Offset = offset(page, pageSize)
	return s.noteSheets.List(ctx, f)
}

// Ledger returns the budget ledger rows of one note sheet.
func (s *NoteSheetService) Ledger(ctx context.Context, id string) ([]*repository.BudgetEntry, error) {
	if _, err := s.noteSheets.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.noteSheets.Ledger(ctx, id)
}

// Worklist returns the user's approved invoices waiting for a note sheet.
func (s *NoteSheetService) Worklist(ctx context.Context, userRef string, vendorRef *string) ([]*repository.WorklistItem, error) {
	user, err := docref.Parse(docref.Users, "userRef", userRef)
	if err != nil {
		return nil, err
	}
	if vendorRef != nil {
		vendor, err := docref.Parse(docref.Users, "vendorRef", *vendorRef)
		if err != nil {
			return nil, err
		}
		vendorRef = strPtr(vendor.ID)
	}
	return s.worklist.ListByUser(ctx, user.ID, vendorRef)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (s *NoteSheetService) transition(
	ctx context.Context,
	action int,
	req *NoteSheetDecisionRequest,
	fn repository.NoteSheetTransition,
) (*repository.NoteSheet, *repository.BudgetEntry, *string, error) {
	step := &Step{Action: action}
	var after *repository.NoteSheet
	var entry *repository.BudgetEntry

	err := s.audit.Step(ctx, step, func() error {
		if err := validateRequest(req); err != nil {
			return err
		}
		ref, err := docref.Parse(docref.NoteSheet, "notesheetId", req.NoteSheetID)
		if err != nil {
			return err
		}
		step.NoteSheetRef = strPtr(ref.ID)
		actor, err := docref.ParseOptional(docref.Users, "userRef", req.UserRef)
		if err != nil {
			return err
		}
		step.ActorRef = docref.ID(actor)

		before, updated, e, err := s.noteSheets.Transition(ctx, ref.ID, fn)
		if err != nil {
			return err
		}
		step.Before, step.After = before, updated
		after, entry = updated, e
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return after, entry, step.ActorRef, nil
}

func detail(at time.Time, feedback string, r Role) repository.NoteSheetDetail {
	return repository.NoteSheetDetail{CreatedDate: at, Feedback: feedback, UserRole: string(r)}
}

func noteSheetBody(ns *repository.NoteSheet) map[string]any {
	return map[string]any{
		"notesheet":   ns.NoteSheetString,
		"totalamount": ns.TotalAmount.StringFixed(2),
		"invoices":    len(ns.AddData),
	}
}

func noteSheetNotification(ns *repository.NoteSheet, actor *string) notification.Notification {
	return notification.Notification{ActorRef: actor, NoteSheetRef: strPtr(ns.ID)}
}
