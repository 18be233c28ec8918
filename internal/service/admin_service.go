package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dipr-ads/be-release-orders/internal/docref"
	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/logger"
	"github.com/dipr-ads/be-release-orders/internal/repository"
)

// AdminService edits the office singletons and the user directory.
type AdminService struct {
	jobLogic JobLogicStore
	admin    AdminStore
	users    UserStore
	audit    *Auditor
	log      *logger.Logger
}

// NewAdminService creates a new admin service.
func NewAdminService(
	jobLogic JobLogicStore,
	admin AdminStore,
	users UserStore,
	audit *Auditor,
	log *logger.Logger,
) *AdminService {
	return &AdminService{
		jobLogic: jobLogic,
		admin:    admin,
		users:    users,
		audit:    audit,
		log:      log.Component("admin"),
	}
}

// WaitingQueueRequest replaces the round-robin vendor queue.
type WaitingQueueRequest struct {
	Vendors []string `json:"waitingquuelist" validate:"required"`
	UserRef string   `json:"userRef"`
}

// BudgetRequest sets the office budget.
type BudgetRequest struct {
	Budget  decimal.Decimal `json:"Budget"`
	UserRef string          `json:"userRef"`
}

// UpsertUserRequest creates or updates a user. An empty id creates one.
type UpsertUserRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Role        string `json:"role" validate:"required"`
}

// ── Job logic ─────────────────────────────────────────────────────────────────

// GetJobLogic returns the RO counter and vendor queue.
func (s *AdminService) GetJobLogic(ctx context.Context) (*repository.JobLogic, error) {
	return s.jobLogic.Get(ctx)
}

// SetWaitingQueue replaces the vendor queue. Every entry must be a known
// vendor and appear once.
func (s *AdminService) SetWaitingQueue(ctx context.Context, req *WaitingQueueRequest) (*repository.JobLogic, error) {
	step := &Step{Action: repository.ActionUpdateWaitingQueue}
	var after *repository.JobLogic

	err := s.audit.Step(ctx, step, func() error {
		if err := validateRequest(req); err != nil {
			return err
		}
		actor, err := docref.ParseOptional(docref.Users, "userRef", req.UserRef)
		if err != nil {
			return err
		}
		step.ActorRef = docref.ID(actor)
		refs, err := docref.ParseList(docref.Users, "waitingquuelist", req.Vendors)
		if err != nil {
			return err
		}
		queue := docref.IDs(refs)
		for _, id := range queue {
			u, err := s.users.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if u.Role != "vendor" {
				return errors.InvalidInput("waitingquuelist", "user "+id+" is not a vendor")
			}
		}

		before, err := s.jobLogic.Get(ctx)
		if err != nil {
			return err
		}
		step.Before = before
		after, err = s.jobLogic.SetWaitingQueue(ctx, queue)
		if err != nil {
			return err
		}
		step.After = after
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int("vendors", len(after.WaitingQueue)).Msg("Waiting queue updated")
	return after, nil
}

// ── Admin data ────────────────────────────────────────────────────────────────

// GetAdminData returns the budget and note sheet counter.
func (s *AdminService) GetAdminData(ctx context.Context) (*repository.AdminData, error) {
	return s.admin.Get(ctx)
}

// SetBudget overwrites the office budget.
func (s *AdminService) SetBudget(ctx context.Context, req *BudgetRequest) (*repository.AdminData, error) {
	step := &Step{Action: repository.ActionSetBudget}
	var after *repository.AdminData

	err := s.audit.Step(ctx, step, func() error {
		if req.Budget.IsNegative() {
			return errors.InvalidInput("Budget", "cannot be negative")
		}
		actor, err := docref.ParseOptional(docref.Users, "userRef", req.UserRef)
		if err != nil {
			return err
		}
		step.ActorRef = docref.ID(actor)

		before, err := s.admin.Get(ctx)
		if err != nil {
			return err
		}
		step.Before = before
		after, err = s.admin.SetBudget(ctx, req.Budget)
		if err != nil {
			return err
		}
		step.After = after
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("budget", after.Budget.String()).Msg("Budget updated")
	return after, nil
}

// ── Users ─────────────────────────────────────────────────────────────────────

// UpsertUser creates or updates a user.
func (s *AdminService) UpsertUser(ctx context.Context, req *UpsertUserRequest) (*repository.User, error) {
	step := &Step{Action: repository.ActionUpsertUser}
	var u *repository.User

	err := s.audit.Step(ctx, step, func() error {
		if err := validateRequest(req); err != nil {
			return err
		}
		u = &repository.User{
			DisplayName: strings.TrimSpace(req.DisplayName),
			Email:       strings.TrimSpace(req.Email),
			Role:        strings.ToLower(strings.TrimSpace(req.Role)),
		}
		if req.ID != "" {
			ref, err := docref.Parse(docref.Users, "id", req.ID)
			if err != nil {
				return err
			}
			u.ID = ref.ID
			if before, err := s.users.GetByID(ctx, ref.ID); err == nil {
				step.Before = before
			}
		}
		if err := s.users.Upsert(ctx, u); err != nil {
			return err
		}
		step.ActorRef = strPtr(u.ID)
		step.After = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", u.ID).Str("role", u.Role).Msg("User saved")
	return u, nil
}

// GetUser returns one user.
func (s *AdminService) GetUser(ctx context.Context, id string) (*repository.User, error) {
	ref, err := docref.Parse(docref.Users, "id", id)
	if err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, ref.ID)
}

// ListUsers lists users, optionally of one role.
func (s *AdminService) ListUsers(ctx context.Context, role string) ([]*repository.User, error) {
	var r *string
	if role != "" {
		r = strPtr(strings.ToLower(role))
	}
	return s.users.List(ctx, r)
}
