package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dipr-ads/be-release-orders/internal/config"
	"github.com/dipr-ads/be-release-orders/internal/docref"
	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/logger"
	"github.com/dipr-ads/be-release-orders/internal/notification"
	"github.com/dipr-ads/be-release-orders/internal/repository"
)

// AllocationService handles vendor-side allocation actions and the bulk case
// worker approval of allocations.
type AllocationService struct {
	allocations AllocationStore
	ads         AdvertisementStore
	audit       *Auditor
	mail        *mailFanout
	log         *logger.Logger
	now         func() time.Time
}

// NewAllocationService creates a new allocation service.
func NewAllocationService(
	allocations AllocationStore,
	ads AdvertisementStore,
	users UserStore,
	audit *Auditor,
	notifier Notifier,
	mailboxes config.Mailboxes,
	log *logger.Logger,
) *AllocationService {
	log = log.Component("allocation")
	return &AllocationService{
		allocations: allocations,
		ads:         ads,
		audit:       audit,
		mail:        &mailFanout{users: users, notifier: notifier, mailboxes: mailboxes, log: log},
		log:         log,
		now:         time.Now,
	}
}

// ApproveAllocationsRequest lists allocations the case worker signs off.
type ApproveAllocationsRequest struct {
	DocumentIDs []string `json:"documentIds" validate:"required,min=1"`
	UserRef     string   `json:"userRef"`
}

// VendorActionRequest carries a vendor's answer to an allocation.
type VendorActionRequest struct {
	VendorRef string `json:"vendorRef" validate:"required"`
	Feedback  string `json:"feedback"`
}

// UpdateApproveCvAndTimeAllotment marks the allocations approved in one batch
// and sends the release orders. Vendors, the technical assistant and the
// department are notified once per advertisement.
func (s *AllocationService) UpdateApproveCvAndTimeAllotment(ctx context.Context, req *ApproveAllocationsRequest) ([]*repository.NewspaperJobAllocation, error) {
	step := &Step{Action: repository.ActionBulkApproveAllocations}
	var updated []*repository.NewspaperJobAllocation

	err := s.audit.Step(ctx, step, func() error {
		if err := validateRequest(req); err != nil {
			return err
		}
		actor, err := docref.ParseOptional(docref.Users, "userRef", req.UserRef)
		if err != nil {
			return err
		}
		step.ActorRef = docref.ID(actor)
		refs, err := docref.ParseList(docref.NewspaperJobAllocation, "documentIds", req.DocumentIDs)
		if err != nil {
			return err
		}

		updated, err = s.allocations.SetApproved(ctx, docref.IDs(refs), true)
		if err != nil {
			return err
		}
		step.After = updated
		step.Message = fmt.Sprintf("approved %d allocations", len(updated))
		return nil
	})
	if err != nil {
		return nil, err
	}

	byAd := make(map[string][]*repository.NewspaperJobAllocation)
	order := make([]string, 0)
	for _, a := range updated {
		if _, ok := byAd[a.AdRef]; !ok {
			order = append(order, a.AdRef)
		}
		byAd[a.AdRef] = append(byAd[a.AdRef], a)
	}

	for _, adID := range order {
		ad, err := s.ads.GetByID(ctx, adID)
		if err != nil {
			s.log.Warn().Err(err).Str("advertisement_id", adID).Msg("Failed to load advertisement for notification")
			continue
		}
		vendors := s.mail.releaseOrders(ctx, step.ActorRef, ad, byAd[adID])
		s.mail.summary(ctx, step.ActorRef, ad, s.mail.mailboxes.TechnicalAssistant, notification.TemplateApprovedTDCase, vendors, nil)
		s.mail.summary(ctx, step.ActorRef, ad, s.mail.mailboxes.Department, notification.TemplateInformDept, vendors, nil)
	}

	s.log.Info().
		Int("allocations", len(updated)).
		Int("advertisements", len(order)).
		Msg("Allocations approved")
	return updated, nil
}

// Acknowledge records the vendor accepting an approved allocation.
func (s *AllocationService) Acknowledge(ctx context.Context, id string, req *VendorActionRequest) (*repository.NewspaperJobAllocation, error) {
	after, err := s.vendorTransition(ctx, repository.ActionVendorAcknowledge, id, req, func(a *repository.NewspaperJobAllocation) error {
		if a.Rejected {
			return errors.Conflict("allocation was rejected by the vendor")
		}
		if a.Acknowledged {
			return errors.Conflict("allocation is already acknowledged")
		}
		now := s.now()
		a.Acknowledged = true
		a.AcknowledgedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyDepartment(ctx, after, notification.TemplateAccepting, map[string]any{"status": "accepted"})
	s.log.Info().Str("allocation_id", after.ID).Str("ronumber", after.RONumber).Msg("Allocation acknowledged")
	return after, nil
}

// Reject records the vendor declining an approved allocation.
func (s *AllocationService) Reject(ctx context.Context, id string, req *VendorActionRequest) (*repository.NewspaperJobAllocation, error) {
	after, err := s.vendorTransition(ctx, repository.ActionVendorReject, id, req, func(a *repository.NewspaperJobAllocation) error {
		if a.Acknowledged || a.Rejected {
			return errors.Conflict("allocation was already answered")
		}
		a.Rejected = true
		a.VendorFeedback = req.Feedback
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyDepartment(ctx, after, notification.TemplateROStatus, map[string]any{
		"status":   "rejected by vendor",
		"feedback": req.Feedback,
	})
	s.log.Info().Str("allocation_id", after.ID).Str("ronumber", after.RONumber).Msg("Allocation rejected by vendor")
	return after, nil
}

// Complete marks an acknowledged allocation as published.
func (s *AllocationService) Complete(ctx context.Context, id string, req *VendorActionRequest) (*repository.NewspaperJobAllocation, error) {
	after, err := s.vendorTransition(ctx, repository.ActionVendorComplete, id, req, func(a *repository.NewspaperJobAllocation) error {
		if !a.Acknowledged {
			return errors.Conflict("allocation must be acknowledged before completion")
		}
		if a.Completed {
			return errors.Conflict("allocation is already completed")
		}
		a.Completed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("allocation_id", after.ID).Str("ronumber", after.RONumber).Msg("Allocation completed")
	return after, nil
}

// Get returns one allocation.
func (s *AllocationService) Get(ctx context.Context, id string) (*repository.NewspaperJobAllocation, error) {
	ref, err := docref.Parse(docref.NewspaperJobAllocation, "id", id)
	if err != nil {
		return nil, err
	}
	return s.allocations.GetByID(ctx, ref.ID)
}

// ListByAdvertisement returns the allocations of an advertisement in RO order.
func (s *AllocationService) ListByAdvertisement(ctx context.Context, adID string) ([]*repository.NewspaperJobAllocation, error) {
	ref, err := docref.Parse(docref.Advertisement, "id", adID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ads.GetByID(ctx, ref.ID); err != nil {
		return nil, err
	}
	return s.allocations.ListByAdvertisement(ctx, ref.ID)
}

// vendorTransition applies fn to an approved allocation owned by the vendor.
func (s *AllocationService) vendorTransition(
	ctx context.Context,
	action int,
	id string,
	req *VendorActionRequest,
	fn func(a *repository.NewspaperJobAllocation) error,
) (*repository.NewspaperJobAllocation, error) {
	step := &Step{Action: action}
	var after *repository.NewspaperJobAllocation

	err := s.audit.Step(ctx, step, func() error {
		if err := validateRequest(req); err != nil {
			return err
		}
		ref, err := docref.Parse(docref.NewspaperJobAllocation, "id", id)
		if err != nil {
			return err
		}
		step.AllocationRef = strPtr(ref.ID)
		vendor, err := docref.Parse(docref.Users, "vendorRef", req.VendorRef)
		if err != nil {
			return err
		}
		step.ActorRef = strPtr(vendor.ID)

		before, updated, err := s.allocations.Update(ctx, ref.ID, func(a *repository.NewspaperJobAllocation) error {
			if a.VendorRef != vendor.ID {
				return errors.Conflict("allocation belongs to another vendor")
			}
			if !a.ApprovedCW {
				return errors.Conflict("allocation is not approved yet")
			}
			return fn(a)
		})
		if err != nil {
			return err
		}
		step.AdvertiseRef = strPtr(updated.AdRef)
		step.Before, step.After = before, updated
		after = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

func (s *AllocationService) notifyDepartment(ctx context.Context, a *repository.NewspaperJobAllocation, template string, extra map[string]any) {
	ad, err := s.ads.GetByID(ctx, a.AdRef)
	if err != nil {
		s.log.Warn().Err(err).Str("advertisement_id", a.AdRef).Msg("Failed to load advertisement for notification")
		return
	}
	body := advertisementBody(ad)
	body["ronumber"] = a.RONumber
	if v := s.mail.user(ctx, a.VendorRef); v != nil {
		body["newspaper"] = v.DisplayName
	}
	for k, v := range extra {
		body[k] = v
	}
	s.mail.toMailbox(ctx, s.mail.mailboxes.Department, template, body, notification.Notification{
		ActorRef:      strPtr(a.VendorRef),
		AdvertiseRef:  strPtr(ad.ID),
		AllocationRef: strPtr(a.ID),
	})
}
