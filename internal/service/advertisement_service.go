package service

import (
	"context"
	"strings"
	"time"

	"github.com/dipr-ads/be-release-orders/internal/config"
	"github.com/dipr-ads/be-release-orders/internal/docref"
	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/logger"
	"github.com/dipr-ads/be-release-orders/internal/notification"
	"github.com/dipr-ads/be-release-orders/internal/repository"
)

// AdvertisementService handles the release-order application lifecycle:
// creation, drafts, allocation to vendors and the deputy decision.
type AdvertisementService struct {
	ads         AdvertisementStore
	allocations AllocationStore
	audit       *Auditor
	mail        *mailFanout
	log         *logger.Logger
	now         func() time.Time
}

// NewAdvertisementService creates a new advertisement service.
func NewAdvertisementService(
	ads AdvertisementStore,
	allocations AllocationStore,
	users UserStore,
	audit *Auditor,
	notifier Notifier,
	mailboxes config.Mailboxes,
	log *logger.Logger,
) *AdvertisementService {
	log = log.Component("advertisement")
	return &AdvertisementService{
		ads:         ads,
		allocations: allocations,
		audit:       audit,
		mail:        &mailFanout{users: users, notifier: notifier, mailboxes: mailboxes, log: log},
		log:         log,
		now:         time.Now,
	}
}

// CreateAdvertisementRequest is the applicant's release-order application.
type CreateAdvertisementRequest struct {
	Subject           string         `json:"Subject" validate:"required"`
	AddressTo         string         `json:"AddressTo"`
	DepartmentName    string         `json:"Department_name" validate:"required"`
	BearingNo         string         `json:"Bearingno"`
	UserRef           string         `json:"Userref" validate:"required"`
	DateOfApplication string         `json:"DateOfApplication"`
	Metadata          map[string]any `json:"metadata"`
}

// UpdateAdvertisementRequest is a sparse update; nil fields are left unchanged.
type UpdateAdvertisementRequest struct {
	Subject           *string        `json:"Subject"`
	AddressTo         *string        `json:"AddressTo"`
	DepartmentName    *string        `json:"Department_name"`
	BearingNo         *string        `json:"Bearingno"`
	UserRef           *string        `json:"Userref"`
	DateOfApplication *string        `json:"DateOfApplication"`
	Metadata          map[string]any `json:"metadata"`
	// Submit promotes a draft to a submitted application.
	Submit bool `json:"submit"`
}

// AllocateRequest starts an allocation. Automatic mode reads NumOfVendors,
// manual mode reads Vendors.
type AllocateRequest struct {
	AdvertisementID string   `json:"advertisementId" validate:"required"`
	NumOfVendors    int      `json:"numOfVendors"`
	Vendors         []string `json:"vendors"`
	UserRef         string   `json:"userRef"`
}

// AllocationResult is the outcome of an allocation transaction.
type AllocationResult struct {
	Advertisement *repository.Advertisement            `json:"advertisement"`
	Allocations   []*repository.NewspaperJobAllocation `json:"allocations"`
}

// DeputyDecisionRequest carries a deputy's decision on an advertisement.
type DeputyDecisionRequest struct {
	AdvertisementID string `json:"advertisementId" validate:"required"`
	UserRef         string `json:"userRef"`
	Feedback        string `json:"feedback"`
}

// ── Creation and drafts ───────────────────────────────────────────────────────

// CreateAdvertisement validates and stores a submitted application. It writes
// a create record and, on success, a create-complete record.
func (s *AdvertisementService) CreateAdvertisement(ctx context.Context, req *CreateAdvertisementRequest) (*repository.Advertisement, error) {
	step := &Step{Action: repository.ActionCreateAdvertisement}
	var ad *repository.Advertisement

	err := s.audit.Step(ctx, step, func() error {
		if err := validateRequest(req); err != nil {
			return err
		}
		built, err := s.buildAdvertisement(req)
		if err != nil {
			return err
		}
		step.ActorRef = built.UserRef
		if built.DateOfApplication == nil {
			now := s.now()
			built.DateOfApplication = &now
		}
		built.StatusCaseworker = repository.CaseworkerSubmitted
		built.IsCaseWorker = true

		if err := s.ads.Create(ctx, built); err != nil {
			return err
		}
		ad = built
		step.AdvertiseRef = strPtr(ad.ID)
		step.After = ad
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &Step{
		Action:       repository.ActionCreateAdvertisementDone,
		ActorRef:     ad.UserRef,
		AdvertiseRef: strPtr(ad.ID),
		Message:      "advertisement " + ad.AdvertisementID + " submitted",
	}, nil)

	s.log.Info().
		Str("advertisement_id", ad.ID).
		Str("department", ad.DepartmentName).
		Msg("Advertisement created")

	return ad, nil
}

// SaveDraft stores an application as a draft. Only the applicant is required.
func (s *AdvertisementService) SaveDraft(ctx context.Context, req *CreateAdvertisementRequest) (*repository.Advertisement, error) {
	step := &Step{Action: repository.ActionSaveDraft}
	var ad *repository.Advertisement

	err := s.audit.Step(ctx, step, func() error {
		if err := validateRequest(req, "UserRef"); err != nil {
			return err
		}
		built, err := s.buildAdvertisement(req)
		if err != nil {
			return err
		}
		step.ActorRef = built.UserRef
		built.IsDraft = true
		built.StatusCaseworker = repository.StatusNotReached

		if err := s.ads.Create(ctx, built); err != nil {
			return err
		}
		ad = built
		step.AdvertiseRef = strPtr(ad.ID)
		step.After = ad
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("advertisement_id", ad.ID).Msg("Advertisement draft saved")
	return ad, nil
}

// UpdateDraft applies a sparse update to a draft. With Submit set, the draft is
// validated as a full application and submitted.
func (s *AdvertisementService) UpdateDraft(ctx context.Context, id string, req *UpdateAdvertisementRequest) (*repository.Advertisement, error) {
	step := &Step{Action: repository.ActionUpdateDraft, AdvertiseRef: strPtr(id)}
	var after *repository.Advertisement

	err := s.audit.Step(ctx, step, func() error {
		before, updated, err := s.ads.Update(ctx, id, nil, func(ad *repository.Advertisement) error {
			if !ad.IsDraft {
				return errors.Conflict("advertisement is no longer a draft")
			}
			if err := applyAdvertisementUpdate(ad, req); err != nil {
				return err
			}
			if !req.Submit {
				return nil
			}
			if err := checkSubmittable(ad); err != nil {
				return err
			}
			ad.IsDraft = false
			ad.StatusCaseworker = repository.CaseworkerSubmitted
			ad.IsCaseWorker = true
			if ad.DateOfApplication == nil {
				now := s.now()
				ad.DateOfApplication = &now
			}
			return nil
		})
		if err != nil {
			return err
		}
		step.ActorRef = updated.UserRef
		step.Before, step.After = before, updated
		after = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("advertisement_id", id).
		Bool("submitted", req.Submit).
		Msg("Advertisement draft updated")
	return after, nil
}

// EditAdvertisement applies a sparse update to applicant metadata. Rejected
// applications are frozen.
func (s *AdvertisementService) EditAdvertisement(ctx context.Context, id string, req *UpdateAdvertisementRequest) (*repository.Advertisement, error) {
	step := &Step{Action: repository.ActionEditAdvertisement, AdvertiseRef: strPtr(id)}
	var after *repository.Advertisement

	err := s.audit.Step(ctx, step, func() error {
		before, updated, err := s.ads.Update(ctx, id, nil, func(ad *repository.Advertisement) error {
			if ad.StatusDeputy == repository.DeputyRejected {
				return errors.Conflict("rejected advertisements cannot be edited")
			}
			return applyAdvertisementUpdate(ad, req)
		})
		if err != nil {
			return err
		}
		step.ActorRef = updated.UserRef
		step.Before, step.After = before, updated
		after = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("advertisement_id", id).Msg("Advertisement edited")
	return after, nil
}

// GetAdvertisement returns one advertisement.
func (s *AdvertisementService) GetAdvertisement(ctx context.Context, id string) (*repository.Advertisement, error) {
	return s.ads.GetByID(ctx, id)
}

// ListAdvertisements lists advertisements newest first.
func (s *AdvertisementService) ListAdvertisements(ctx context.Context, f repository.AdvertisementFilter, page, pageSize int) ([]*repository.Advertisement, int64, error) {
	f.Limit, f.Offset = offset(page, pageSize)
	return s.ads.List(ctx, f)
}

func (s *AdvertisementService) buildAdvertisement(req *CreateAdvertisementRequest) (*repository.Advertisement, error) {
	user, err := docref.ParseOptional(docref.Users, "Userref", req.UserRef)
	if err != nil {
		return nil, err
	}
	applied, err := parseDate("DateOfApplication", req.DateOfApplication)
	if err != nil {
		return nil, err
	}
	return &repository.Advertisement{
		Subject:                   strings.TrimSpace(req.Subject),
		AddressTo:                 req.AddressTo,
		DepartmentName:            strings.TrimSpace(req.DepartmentName),
		BearingNo:                 req.BearingNo,
		UserRef:                   docref.ID(user),
		StatusCaseworker:          repository.CaseworkerSubmitted,
		StatusDeputy:              repository.StatusNotReached,
		StatusFao:                 repository.StatusNotReached,
		StatusVendor:              repository.StatusNotReached,
		InvoiceDeputy:             repository.StatusNotReached,
		AllotedNewspapers:         []string{},
		CaseworkerDraftNewspapers: []string{},
		ApprovedNewspapersLocal:   []string{},
		InvoiceRefs:               []string{},
		DateOfApplication:         applied,
		Metadata:                  req.Metadata,
	}, nil
}

func applyAdvertisementUpdate(ad *repository.Advertisement, req *UpdateAdvertisementRequest) error {
	if req.Subject != nil {
		ad.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.AddressTo != nil {
		ad.AddressTo = *req.AddressTo
	}
	if req.DepartmentName != nil {
		ad.DepartmentName = strings.TrimSpace(*req.DepartmentName)
	}
	if req.BearingNo != nil {
		ad.BearingNo = *req.BearingNo
	}
	if req.UserRef != nil {
		ref, err := docref.Parse(docref.Users, "Userref", *req.UserRef)
		if err != nil {
			return err
		}
		ad.UserRef = strPtr(ref.ID)
	}
	if req.DateOfApplication != nil {
		t, err := parseDate("DateOfApplication", *req.DateOfApplication)
		if err != nil {
			return err
		}
		ad.DateOfApplication = t
	}
	if req.Metadata != nil {
		if ad.Metadata == nil {
			ad.Metadata = make(map[string]any, len(req.Metadata))
		}
		for k, v := range req.Metadata {
			ad.Metadata[k] = v
		}
	}
	return nil
}

func checkSubmittable(ad *repository.Advertisement) error {
	switch {
	case ad.Subject == "":
		return errors.InvalidInput("Subject", "is required")
	case ad.DepartmentName == "":
		return errors.InvalidInput("Department_name", "is required")
	case ad.UserRef == nil:
		return errors.InvalidInput("Userref", "is required")
	}
	return nil
}

// ── Allocation ────────────────────────────────────────────────────────────────

// AutomaticAllocationSendToNewspaper allocates round-robin from the waiting
// queue and releases the order to the selected vendors.
func (s *AdvertisementService) AutomaticAllocationSendToNewspaper(ctx context.Context, req *AllocateRequest) (*AllocationResult, error) {
	return s.Allocate(ctx, AllocationAutomatic, TargetNewspaper, req)
}

// ManualAllocationSendToNewspaper releases the order to explicitly chosen vendors.
func (s *AdvertisementService) ManualAllocationSendToNewspaper(ctx context.Context, req *AllocateRequest) (*AllocationResult, error) {
	return s.Allocate(ctx, AllocationManual, TargetNewspaper, req)
}

// AutomaticAllocationSendToDeputy allocates round-robin pending deputy sign-off.
func (s *AdvertisementService) AutomaticAllocationSendToDeputy(ctx context.Context, req *AllocateRequest) (*AllocationResult, error) {
	return s.Allocate(ctx, AllocationAutomatic, TargetDeputy, req)
}

// ManualAllocationSendToDeputy allocates chosen vendors pending deputy sign-off.
func (s *AdvertisementService) ManualAllocationSendToDeputy(ctx context.Context, req *AllocateRequest) (*AllocationResult, error) {
	return s.Allocate(ctx, AllocationManual, TargetDeputy, req)
}

// Allocate runs one allocation transaction: allocations, RO counter and queue
// rotation commit together. Notifications are enqueued after commit.
func (s *AdvertisementService) Allocate(ctx context.Context, mode AllocationMode, target AllocationTarget, req *AllocateRequest) (*AllocationResult, error) {
	action := repository.ActionAllocateToNewspaper
	if target == TargetDeputy {
		action = repository.ActionAllocateToDeputy
	}
	step := &Step{Action: action}
	var result *AllocationResult

	err := s.audit.Step(ctx, step, func() error {
		if err := validateRequest(req); err != nil {
			return err
		}
		ad, err := docref.Parse(docref.Advertisement, "advertisementId", req.AdvertisementID)
		if err != nil {
			return err
		}
		step.AdvertiseRef = strPtr(ad.ID)
		actor, err := docref.ParseOptional(docref.Users, "userRef", req.UserRef)
		if err != nil {
			return err
		}
		step.ActorRef = docref.ID(actor)

		plan := allocationPlan{mode: mode, target: target, count: req.NumOfVendors, now: s.now()}
		switch mode {
		case AllocationAutomatic:
			if req.NumOfVendors < 1 {
				return errors.InvalidInput("numOfVendors", "must be at least 1")
			}
		case AllocationManual:
			if len(req.Vendors) == 0 {
				return errors.InvalidInput("vendors", "is required")
			}
			vendors, err := docref.ParseList(docref.Users, "vendors", req.Vendors)
			if err != nil {
				return err
			}
			plan.vendors = docref.IDs(vendors)
		default:
			return errors.InvalidInput("mode", "must be automatic or manual")
		}

		before, after, allocations, err := s.allocations.Allocate(ctx, ad.ID, plan.planner())
		if err != nil {
			return err
		}
		step.Before, step.After = before, after
		step.Message = "allocated " + after.ReleaseOrderNo + " to " + string(target)
		result = &AllocationResult{Advertisement: after, Allocations: allocations}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ad := result.Advertisement
	if target == TargetNewspaper {
		vendors := s.mail.releaseOrders(ctx, step.ActorRef, ad, result.Allocations)
		s.mail.summary(ctx, step.ActorRef, ad, s.mail.mailboxes.Department, notification.TemplateInformDept, vendors, nil)
	} else {
		s.mail.summary(ctx, step.ActorRef, ad, s.mail.mailboxes.Deputy, notification.TemplateInformDept, nil, map[string]any{
			"pendingApproval": true,
		})
	}

	s.log.Info().
		Str("advertisement_id", ad.ID).
		Str("mode", string(mode)).
		Str("target", string(target)).
		Str("release_order_no", ad.ReleaseOrderNo).
		Int("vendors", len(result.Allocations)).
		Msg("Advertisement allocated")

	return result, nil
}

// ── Deputy decisions ──────────────────────────────────────────────────────────

// DeputyApproveAdvertisement promotes the case worker's draft allocation and
// releases the order to the vendors.
func (s *AdvertisementService) DeputyApproveAdvertisement(ctx context.Context, req *DeputyDecisionRequest) (*repository.Advertisement, error) {
	after, actor, err := s.deputyTransition(ctx, repository.ActionDeputyApprove, req, boolPtr(true), func(ad *repository.Advertisement) error {
		if ad.StatusDeputy != repository.DeputyPending || !ad.IsRequestPending {
			return errors.Conflict("advertisement is not awaiting deputy approval")
		}
		now := s.now()
		ad.AllotedNewspapers = append([]string{}, ad.CaseworkerDraftNewspapers...)
		ad.ApprovedNewspapersLocal = append([]string{}, ad.CaseworkerDraftNewspapers...)
		ad.CaseworkerDraftNewspapers = []string{}
		ad.StatusDeputy = repository.DeputyApproved
		ad.StatusCaseworker = repository.CaseworkerSentToNewspaper
		ad.StatusVendor = repository.VendorAllocated
		ad.IsVendor = true
		ad.IsRequestPending = false
		ad.DateOfApproval = &now
		ad.DeputyFeedback = req.Feedback
		return nil
	})
	if err != nil {
		return nil, err
	}

	allocations, err := s.allocations.ListByAdvertisement(ctx, after.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("advertisement_id", after.ID).Msg("Failed to load allocations for notification")
	}
	vendors := s.mail.releaseOrders(ctx, actor, after, allocations)
	s.mail.summary(ctx, actor, after, s.mail.mailboxes.TechnicalAssistant, notification.TemplateApprovedTDCase, vendors, nil)
	s.mail.summary(ctx, actor, after, s.mail.mailboxes.Department, notification.TemplateROStatus, vendors, map[string]any{
		"status":   "approved",
		"feedback": req.Feedback,
	})

	s.log.Info().Str("advertisement_id", after.ID).Msg("Advertisement approved by deputy")
	return after, nil
}

// DeputyPullBackAction reverses an approval back to pending deputy review.
func (s *AdvertisementService) DeputyPullBackAction(ctx context.Context, req *DeputyDecisionRequest) (*repository.Advertisement, error) {
	after, _, err := s.deputyTransition(ctx, repository.ActionDeputyPullBack, req, boolPtr(false), func(ad *repository.Advertisement) error {
		if ad.StatusDeputy != repository.DeputyApproved {
			return errors.Conflict("only approved advertisements can be pulled back")
		}
		ad.CaseworkerDraftNewspapers = append([]string{}, ad.AllotedNewspapers...)
		ad.AllotedNewspapers = []string{}
		ad.ApprovedNewspapersLocal = []string{}
		ad.StatusDeputy = repository.DeputyPending
		ad.StatusCaseworker = repository.CaseworkerForwarded
		ad.StatusVendor = repository.StatusNotReached
		ad.IsVendor = false
		ad.IsRequestPending = true
		ad.DateOfApproval = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("advertisement_id", after.ID).Msg("Advertisement pulled back by deputy")
	return after, nil
}

// DeputyRejectAdvertisement rejects a pending allocation. Rejection is terminal.
func (s *AdvertisementService) DeputyRejectAdvertisement(ctx context.Context, req *DeputyDecisionRequest) (*repository.Advertisement, error) {
	after, actor, err := s.deputyTransition(ctx, repository.ActionDeputyReject, req, nil, func(ad *repository.Advertisement) error {
		if ad.StatusDeputy != repository.DeputyPending || !ad.IsRequestPending {
			return errors.Conflict("advertisement is not awaiting deputy approval")
		}
		now := s.now()
		ad.StatusDeputy = repository.DeputyRejected
		ad.DateOfRejection = &now
		ad.DeputyFeedback = req.Feedback
		ad.IsRequestPending = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mail.summary(ctx, actor, after, s.mail.mailboxes.Department, notification.TemplateROStatus, nil, map[string]any{
		"status":   "rejected",
		"feedback": req.Feedback,
	})

	s.log.Info().Str("advertisement_id", after.ID).Msg("Advertisement rejected by deputy")
	return after, nil
}

func (s *AdvertisementService) deputyTransition(
	ctx context.Context,
	action int,
	req *DeputyDecisionRequest,
	approvedCW *bool,
	fn func(ad *repository.Advertisement) error,
) (*repository.Advertisement, *string, error) {
	step := &Step{Action: action}
	var after *repository.Advertisement

	err := s.audit.Step(ctx, step, func() error {
		if err := validateRequest(req); err != nil {
			return err
		}
		ref, err := docref.Parse(docref.Advertisement, "advertisementId", req.AdvertisementID)
		if err != nil {
			return err
		}
		step.AdvertiseRef = strPtr(ref.ID)
		actor, err := docref.ParseOptional(docref.Users, "userRef", req.UserRef)
		if err != nil {
			return err
		}
		step.ActorRef = docref.ID(actor)

		before, updated, err := s.ads.Update(ctx, ref.ID, approvedCW, fn)
		if err != nil {
			return err
		}
		step.Before, step.After = before, updated
		after = updated
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return after, step.ActorRef, nil
}
