package service

import (
	"context"
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

// InvoiceRouter picks the assistant mailbox for a vendor's invoices.
type InvoiceRouter interface {
	MailboxFor(vendorName string) string
}

// InvoiceService handles vendor invoice requests through deputy and assistant
// review.
type InvoiceService struct {
	invoices    InvoiceStore
	ads         AdvertisementStore
	allocations AllocationStore
	worklist    WorklistStore
	router      InvoiceRouter
	audit       *Auditor
	mail        *mailFanout
	log         *logger.Logger
}

// NewInvoiceService creates a new invoice service.
func NewInvoiceService(
	invoices InvoiceStore,
	ads AdvertisementStore,
	allocations AllocationStore,
	worklist WorklistStore,
	users UserStore,
	audit *Auditor,
	notifier Notifier,
	mailboxes config.Mailboxes,
	router InvoiceRouter,
	log *logger.Logger,
) *InvoiceService {
	log = log.Component("invoice")
	return &InvoiceService{
		invoices:    invoices,
		ads:         ads,
		allocations: allocations,
		worklist:    worklist,
		router:      router,
		audit:       audit,
		mail:        &mailFanout{users: users, notifier: notifier, mailboxes: mailboxes, log: log},
		log:         log,
	}
}

// CreateInvoiceRequest represents a vendor's invoice submission.
type CreateInvoiceRequest struct {
	RONumber      string           `json:"Ronumber" validate:"required"`
	InvoiceURL    string           `json:"InvoiceUrl" validate:"required"`
	UserRef       string           `json:"Userref" validate:"required"`
	AdvertiseRef  string           `json:"advertiseRef"`
	JobRef        string           `json:"jobref"`
	BillNo        string           `json:"billno"`
	InvoiceAmount *decimal.Decimal `json:"invoiceamount"`
}

// EditInvoiceRequest is a sparse invoice update; nil fields are left unchanged.
type EditInvoiceRequest struct {
	InvoiceID     string           `json:"invoiceId" validate:"required"`
	RONumber      *string          `json:"Ronumber"`
	InvoiceURL    *string          `json:"InvoiceUrl"`
	AdvertiseRef  *string          `json:"advertiseRef"`
	JobRef        *string          `json:"jobref"`
	BillNo        *string          `json:"billno"`
	InvoiceAmount *decimal.Decimal `json:"invoiceamount"`
}

// InvoiceDecisionRequest carries a reviewer's decision on an invoice.
type InvoiceDecisionRequest struct {
	InvoiceID string `json:"invoiceId" validate:"required"`
	UserRef   string `json:"userRef"`
	Feedback  string `json:"feedback"`
}

// AssistantApproveRequest approves an invoice into the assistant's worklist.
type AssistantApproveRequest struct {
	InvoiceID string `json:"invoiceId" validate:"required"`
	UserRef   string `json:"userRef" validate:"required"`
}

// ── Vendor ────────────────────────────────────────────────────────────────────

// CreateInvoice stores a vendor invoice and runs the link cascades. Cascade
// failures are audited and logged but do not fail the request.
func (s *InvoiceService) CreateInvoice(ctx context.Context, req *CreateInvoiceRequest) (*repository.InvoiceRequest, error) {
	step := &Step{Action: repository.ActionCreateInvoice}
	var inv *repository.InvoiceRequest

	err := s.audit.Step(ctx, step, func() error {
		if err := validateRequest(req); err != nil {
			return err
		}
		vendor, err := docref.Parse(docref.Users, "Userref", req.UserRef)
		if err != nil {
			return err
		}
		step.ActorRef = strPtr(vendor.ID)
		ad, err := docref.ParseOptional(docref.Advertisement, "advertiseRef", req.AdvertiseRef)
		if err != nil {
			return err
		}
		job, err := docref.ParseOptional(docref.NewspaperJobAllocation, "jobref", req.JobRef)
		if err != nil {
			return err
		}
		amount := decimal.Zero
		if req.InvoiceAmount != nil {
			if req.InvoiceAmount.IsNegative() {
				return errors.InvalidInput("invoiceamount", "cannot be negative")
			}
			amount = *req.InvoiceAmount
		}

		built := &repository.InvoiceRequest{
			RONumber:        strings.TrimSpace(req.RONumber),
			InvoiceURL:      strings.TrimSpace(req.InvoiceURL),
			UserRef:         vendor.ID,
			AdvertiseRef:    docref.ID(ad),
			JobRef:          docref.ID(job),
			AssistantStatus: repository.StatusNotReached,
			DeputyStatus:    repository.InvoicePending,
			BillNo:          req.BillNo,
			InvoiceAmount:   amount,
		}
		if err := s.invoices.Create(ctx, built); err != nil {
			return err
		}
		inv = built
		step.InvoiceRef = strPtr(inv.ID)
		step.AdvertiseRef = inv.AdvertiseRef
		step.After = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cascade(ctx, inv)

	s.log.Info().
		Str("invoice_id", inv.ID).
		Str("ronumber", inv.RONumber).
		Str("vendor_id", inv.UserRef).
		Str("amount", inv.InvoiceAmount.String()).
		Msg("Invoice request created")

	return inv, nil
}

// EditInvoice applies a sparse update. A sent-back invoice is resubmitted to
// the deputy, and the link cascades run again.
func (s *InvoiceService) EditInvoice(ctx context.Context, req *EditInvoiceRequest) (*repository.InvoiceRequest, error) {
	step := &Step{Action: repository.ActionEditInvoice}
	var after *repository.InvoiceRequest

	err := s.audit.Step(ctx, step, func() error {
		if err := validateRequest(req); err != nil {
			return err
		}
		ref, err := docref.Parse(docref.InvoiceRequest, "invoiceId", req.InvoiceID)
		if err != nil {
			return err
		}
		step.InvoiceRef = strPtr(ref.ID)

		before, updated, err := s.invoices.Update(ctx, ref.ID, func(inv *repository.InvoiceRequest) error {
			if inv.DeputyStatus == repository.InvoicePutUp || inv.DeputyStatus == repository.InvoiceSentForward {
				return errors.Conflict("invoice was already approved by the deputy")
			}
			if err := applyInvoiceEdit(inv, req); err != nil {
				return err
			}
			if inv.DeputyStatus == repository.InvoiceSentBack {
				inv.DeputyStatus = repository.InvoicePending
				inv.SendAgain = false
			}
			return nil
		})
		if err != nil {
			return err
		}
		step.ActorRef = strPtr(updated.UserRef)
		step.AdvertiseRef = updated.AdvertiseRef
		step.Before, step.After = before, updated
		after = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cascade(ctx, after)

	s.log.Info().Str("invoice_id", after.ID).Msg("Invoice request edited")
	return after, nil
}

func applyInvoiceEdit(inv *repository.InvoiceRequest, req *EditInvoiceRequest) error {
	if req.RONumber != nil {
		if strings.TrimSpace(*req.RONumber) == "" {
			return errors.InvalidInput("Ronumber", "cannot be empty")
		}
		inv.RONumber = strings.TrimSpace(*req.RONumber)
	}
	if req.InvoiceURL != nil {
		if strings.TrimSpace(*req.InvoiceURL) == "" {
			return errors.InvalidInput("InvoiceUrl", "cannot be empty")
		}
		inv.InvoiceURL = strings.TrimSpace(*req.InvoiceURL)
	}
	if req.AdvertiseRef != nil {
		ref, err := docref.ParseOptional(docref.Advertisement, "advertiseRef", *req.AdvertiseRef)
		if err != nil {
			return err
		}
		inv.AdvertiseRef = docref.ID(ref)
	}
	if req.JobRef != nil {
		ref, err := docref.ParseOptional(docref.NewspaperJobAllocation, "jobref", *req.JobRef)
		if err != nil {
			return err
		}
		inv.JobRef = docref.ID(ref)
	}
	if req.BillNo != nil {
		inv.BillNo = *req.BillNo
	}
	if req.InvoiceAmount != nil {
		if req.InvoiceAmount.IsNegative() {
			return errors.InvalidInput("invoiceamount", "cannot be negative")
		}
		inv.InvoiceAmount = *req.InvoiceAmount
	}
	return nil
}

// cascade links the invoice to its advertisement and allocation and tells the
// deputy. Each link is its own audited step; missing refs skip the step.
func (s *InvoiceService) cascade(ctx context.Context, inv *repository.InvoiceRequest) {
	actor := strPtr(inv.UserRef)

	if inv.AdvertiseRef != nil {
		step := &Step{Action: repository.ActionInvoiceLinkAdvertisement, ActorRef: actor, AdvertiseRef: inv.AdvertiseRef, InvoiceRef: strPtr(inv.ID)}
		err := s.audit.Step(ctx, step, func() error {
			before, after, err := s.ads.Update(ctx, *inv.AdvertiseRef, nil, func(ad *repository.Advertisement) error {
				if !containsString(ad.InvoiceRefs, inv.ID) {
					ad.InvoiceRefs = append(ad.InvoiceRefs, inv.ID)
				}
				ad.InvoiceDeputy = repository.InvoiceDeputyPending
				return nil
			})
			step.Before, step.After = before, after
			return err
		})
		if err != nil {
			s.log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("Failed to link invoice to advertisement")
		}
	}

	if inv.JobRef != nil {
		step := &Step{Action: repository.ActionInvoiceLinkAllocation, ActorRef: actor, AllocationRef: inv.JobRef, InvoiceRef: strPtr(inv.ID)}
		err := s.audit.Step(ctx, step, func() error {
			before, after, err := s.allocations.Update(ctx, *inv.JobRef, func(a *repository.NewspaperJobAllocation) error {
				a.InvoiceRaised = true
				return nil
			})
			step.Before, step.After = before, after
			return err
		})
		if err != nil {
			s.log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("Failed to link invoice to allocation")
		}
	}

	s.mail.toMailbox(ctx, s.mail.mailboxes.Deputy, notification.TemplateBillResubmittedDD, s.invoiceBody(ctx, inv), s.invoiceNotification(inv, actor))
}

// ── Deputy ────────────────────────────────────────────────────────────────────

// DeputyInvoiceSendBack returns a pending invoice to the vendor for resubmission.
func (s *InvoiceService) DeputyInvoiceSendBack(ctx context.Context, req *InvoiceDecisionRequest) (*repository.InvoiceRequest, error) {
	inv, actor, err := s.transition(ctx, repository.ActionInvoiceSendBack, req.InvoiceID, req.UserRef, req, func(inv *repository.InvoiceRequest) error {
		if inv.DeputyStatus != repository.InvoicePending {
			return errors.Conflict("invoice is not pending deputy review")
		}
		inv.DeputyStatus = repository.InvoiceSentBack
		inv.SendAgain = true
		inv.DeputyFeedback = req.Feedback
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.setInvoiceDeputy(ctx, inv, actor, repository.InvoiceDeputyPending)

	body := s.invoiceBody(ctx, inv)
	body["status"] = "sent back"
	body["feedback"] = req.Feedback
	s.mail.toUser(ctx, inv.UserRef, notification.TemplateROStatus, body, s.invoiceNotification(inv, actor))

	s.log.Info().Str("invoice_id", inv.ID).Msg("Invoice request sent back by deputy")
	return inv, nil
}

// DeputyApproveInvoiceRequestPutUp approves an invoice for the assistant
// without forwarding it.
func (s *InvoiceService) DeputyApproveInvoiceRequestPutUp(ctx context.Context, req *InvoiceDecisionRequest) (*repository.InvoiceRequest, error) {
	return s.deputyApprove(ctx, repository.ActionInvoicePutUp, req, repository.InvoicePutUp, false, repository.InvoiceDeputyPutUp)
}

// DeputyApproveInvoiceRequestSendForward approves an invoice and forwards it
// to the assistant.
func (s *InvoiceService) DeputyApproveInvoiceRequestSendForward(ctx context.Context, req *InvoiceDecisionRequest) (*repository.InvoiceRequest, error) {
	return s.deputyApprove(ctx, repository.ActionInvoiceSendForward, req, repository.InvoiceSentForward, true, repository.InvoiceDeputySentForward)
}

func (s *InvoiceService) deputyApprove(ctx context.Context, action int, req *InvoiceDecisionRequest, status int, forward bool, adStatus int) (*repository.InvoiceRequest, error) {
	inv, actor, err := s.transition(ctx, action, req.InvoiceID, req.UserRef, req, func(inv *repository.InvoiceRequest) error {
		if inv.DeputyStatus != repository.InvoicePending {
			return errors.Conflict("invoice is not pending deputy review")
		}
		inv.DeputyStatus = status
		inv.IsSendForward = forward
		inv.AssistantStatus = repository.AssistantPending
		inv.DeputyFeedback = req.Feedback
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.setInvoiceDeputy(ctx, inv, actor, adStatus)

	vendorName := ""
	if u := s.mail.user(ctx, inv.UserRef); u != nil {
		vendorName = u.DisplayName
	}
	mailbox := s.router.MailboxFor(vendorName)
	body := s.invoiceBody(ctx, inv)
	body["newspaper"] = vendorName
	s.mail.toMailbox(ctx, mailbox, notification.TemplateAssistantBill, body, s.invoiceNotification(inv, actor))

	s.log.Info().
		Str("invoice_id", inv.ID).
		Bool("send_forward", forward).
		Str("mailbox", mailbox).
		Msg("Invoice request approved by deputy")
	return inv, nil
}

// setInvoiceDeputy mirrors the deputy's invoice decision on the advertisement.
func (s *InvoiceService) setInvoiceDeputy(ctx context.Context, inv *repository.InvoiceRequest, actor *string, status int) {
	if inv.AdvertiseRef == nil {
		return
	}
	step := &Step{Action: repository.ActionInvoiceLinkAdvertisement, ActorRef: actor, AdvertiseRef: inv.AdvertiseRef, InvoiceRef: strPtr(inv.ID)}
	err := s.audit.Step(ctx, step, func() error {
		before, after, err := s.ads.Update(ctx, *inv.AdvertiseRef, nil, func(ad *repository.Advertisement) error {
			ad.InvoiceDeputy = status
			return nil
		})
		step.Before, step.After = before, after
		return err
	})
	if err != nil {
		s.log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("Failed to update advertisement invoice status")
	}
}

// ── Assistant ─────────────────────────────────────────────────────────────────

// AssistantApproveInvoiceRequest approves a deputy-approved invoice and adds it
// to the approving assistant's worklist.
func (s *InvoiceService) AssistantApproveInvoiceRequest(ctx context.Context, req *AssistantApproveRequest) (*repository.InvoiceRequest, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	user, err := docref.Parse(docref.Users, "userRef", req.UserRef)
	if err != nil {
		return nil, err
	}

	step := &Step{Action: repository.ActionInvoiceAssistantApprove, ActorRef: strPtr(user.ID)}
	var after *repository.InvoiceRequest

	err = s.audit.Step(ctx, step, func() error {
		ref, err := docref.Parse(docref.InvoiceRequest, "invoiceId", req.InvoiceID)
		if err != nil {
			return err
		}
		step.InvoiceRef = strPtr(ref.ID)

		// An approval whose worklist row was never written is repeated, not refused.
		tracked, err := s.worklist.Tracked(ctx, user.ID, ref.ID)
		if err != nil {
			return err
		}

		before, updated, err := s.invoices.Update(ctx, ref.ID, func(inv *repository.InvoiceRequest) error {
			if inv.DeputyStatus != repository.InvoicePutUp && inv.DeputyStatus != repository.InvoiceSentForward {
				return errors.Conflict("invoice has not been approved by the deputy")
			}
			resume := inv.AssistantStatus == repository.AssistantApproved &&
				inv.ApprovedBy != nil && *inv.ApprovedBy == user.ID && !tracked
			if inv.AssistantStatus != repository.AssistantPending && !resume {
				return errors.Conflict("invoice is not pending assistant approval")
			}
			inv.AssistantStatus = repository.AssistantApproved
			inv.ApprovedBy = strPtr(user.ID)
			return nil
		})
		if err != nil {
			return err
		}
		step.AdvertiseRef = updated.AdvertiseRef
		step.Before, step.After = before, updated
		after = updated

		return s.worklist.Add(ctx, &repository.WorklistItem{
			UserRef:       user.ID,
			VendorRef:     updated.UserRef,
			InvoiceRef:    updated.ID,
			AdvertiseRef:  updated.AdvertiseRef,
			RONumber:      updated.RONumber,
			BillNo:        updated.BillNo,
			InvoiceAmount: updated.InvoiceAmount,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("invoice_id", after.ID).
		Str("assistant_id", user.ID).
		Msg("Invoice request approved by assistant")
	return after, nil
}

// AssistantSubmitInvoiceRequest clears the read, complete and forward flags.
// Repeating it has no further effect.
func (s *InvoiceService) AssistantSubmitInvoiceRequest(ctx context.Context, req *InvoiceDecisionRequest) (*repository.InvoiceRequest, error) {
	inv, _, err := s.transition(ctx, repository.ActionInvoiceAssistantSubmit, req.InvoiceID, req.UserRef, req, func(inv *repository.InvoiceRequest) error {
		inv.IsCompleted = false
		inv.IsSendForward = false
		inv.IsRead = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("invoice_id", inv.ID).Msg("Invoice request submitted by assistant")
	return inv, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetInvoice returns one invoice request.
func (s *InvoiceService) GetInvoice(ctx context.Context, id string) (*repository.InvoiceRequest, error) {
	return s.invoices.GetByID(ctx, id)
}

// ListInvoices lists invoice requests newest first.
func (s *InvoiceService) ListInvoices(ctx context.Context, f repository.InvoiceFilter, page, pageSize int) ([]*repository.InvoiceRequest, int64, error) {
	f.Limit, f.Offset = offset(page, pageSize)
	return s.invoices.List(ctx, f)
}

// ── helpers ───────────────────────────────────────────────────────────────────

// transition runs one audited invoice update.
func (s *InvoiceService) transition(
	ctx context.Context,
	action int,
	invoiceID, userRef string,
	req any,
	fn func(inv *repository.InvoiceRequest) error,
) (*repository.InvoiceRequest, *string, error) {
	step := &Step{Action: action}
	var after *repository.InvoiceRequest

	err := s.audit.Step(ctx, step, func() error {
		if err := validateRequest(req); err != nil {
			return err
		}
		ref, err := docref.Parse(docref.InvoiceRequest, "invoiceId", invoiceID)
		if err != nil {
			return err
		}
		step.InvoiceRef = strPtr(ref.ID)
		actor, err := docref.ParseOptional(docref.Users, "userRef", userRef)
		if err != nil {
			return err
		}
		step.ActorRef = docref.ID(actor)

		before, updated, err := s.invoices.Update(ctx, ref.ID, fn)
		if err != nil {
			return err
		}
		step.AdvertiseRef = updated.AdvertiseRef
		step.Before, step.After = before, updated
		after = updated
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return after, step.ActorRef, nil
}

func (s *InvoiceService) invoiceBody(ctx context.Context, inv *repository.InvoiceRequest) map[string]any {
	body := map[string]any{
		"ronumber":      inv.RONumber,
		"billno":        inv.BillNo,
		"invoiceurl":    inv.InvoiceURL,
		"invoiceamount": inv.InvoiceAmount.StringFixed(2),
		"date":          time.Now().In(ist).Format("02-01-2006"),
	}
	if inv.AdvertiseRef != nil {
		if ad, err := s.ads.GetByID(ctx, *inv.AdvertiseRef); err == nil {
			body["subject"] = ad.Subject
			body["releaseOrderNo"] = ad.ReleaseOrderNo
		}
	}
	return body
}

func (s *InvoiceService) invoiceNotification(inv *repository.InvoiceRequest, actor *string) notification.Notification {
	return notification.Notification{
		ActorRef:      actor,
		InvoiceRef:    strPtr(inv.ID),
		AdvertiseRef:  inv.AdvertiseRef,
		AllocationRef: inv.JobRef,
	}
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
