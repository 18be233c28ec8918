package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dipr-ads/be-release-orders/internal/docref"
	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/logger"
	"github.com/dipr-ads/be-release-orders/internal/repository"
	"github.com/dipr-ads/be-release-orders/internal/requestinfo"
)

// ActionLogService exposes the audit trail.
type ActionLogService struct {
	logs  ActionLogStore
	audit *Auditor
	log   *logger.Logger
	now   func() time.Time
}

// NewActionLogService creates a new action log service.
func NewActionLogService(logs ActionLogStore, audit *Auditor, log *logger.Logger) *ActionLogService {
	return &ActionLogService{logs: logs, audit: audit, log: log.Component("actionlog"), now: time.Now}
}

// ActionLogQuery is the string form of a listing request.
type ActionLogQuery struct {
	ActorRef     string
	Action       string
	Status       string
	AdvertiseRef string
	InvoiceRef   string
	NoteSheetRef string
	From         string
	To           string
	Page         int
	PageSize     int
}

// ClientLogRequest is an audit entry reported by a client application.
type ClientLogRequest struct {
	UserRef       string          `json:"userRef"`
	Message       string          `json:"message" validate:"required"`
	Status        string          `json:"status" validate:"omitempty,oneof=Success Failed"`
	Before        json.RawMessage `json:"before"`
	After         json.RawMessage `json:"after"`
	AdvertiseRef  string          `json:"advertiseRef"`
	InvoiceRef    string          `json:"invoiceRef"`
	AllocationRef string          `json:"allocationRef"`
	NoteSheetRef  string          `json:"notesheetRef"`
}

// List returns audit records newest first.
func (s *ActionLogService) List(ctx context.Context, q ActionLogQuery) ([]*repository.ActionLog, int64, error) {
	var f repository.ActionLogFilter
	var err error

	if f.ActorRef, err = optionalID(docref.Users, "actorRef", q.ActorRef); err != nil {
		return nil, 0, err
	}
	if f.AdvertiseRef, err = optionalID(docref.Advertisement, "advertiseRef", q.AdvertiseRef); err != nil {
		return nil, 0, err
	}
	if f.InvoiceRef, err = optionalID(docref.InvoiceRequest, "invoiceRef", q.InvoiceRef); err != nil {
		return nil, 0, err
	}
	if f.NoteSheetRef, err = optionalID(docref.NoteSheet, "notesheetRef", q.NoteSheetRef); err != nil {
		return nil, 0, err
	}
	if q.Action != "" {
		action, err := strconv.Atoi(q.Action)
		if _, known := actionNames[action]; err != nil || !known {
			return nil, 0, errors.InvalidInput("action", "unknown action code "+q.Action)
		}
		f.Action = &action
	}
	if q.Status != "" {
		if q.Status != repository.LogSuccess && q.Status != repository.LogFailed {
			return nil, 0, errors.InvalidInput("status", "must be Success or Failed")
		}
		f.Status = strPtr(q.Status)
	}
	if f.From, err = parseDate("from", q.From); err != nil {
		return nil, 0, err
	}
	if f.To, err = parseDate("to", q.To); err != nil {
		return nil, 0, err
	}

	f.Limit, f.Offset = offset(q.Page, q.PageSize)
	return s.logs.List(ctx, f)
}

// Get returns one audit record.
func (s *ActionLogService) Get(ctx context.Context, id string) (*repository.ActionLog, error) {
	return s.logs.GetByID(ctx, id)
}

// CreateClientEntry stores an audit record reported by a client. The request
// origin comes from the HTTP request, not the body.
func (s *ActionLogService) CreateClientEntry(ctx context.Context, req *ClientLogRequest) (*repository.ActionLog, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	entry := &repository.ActionLog{
		Action:  repository.ActionClientEntry,
		Status:  req.Status,
		Message: req.Message,
		Before:  req.Before,
		After:   req.After,
	}
	if entry.Status == "" {
		entry.Status = repository.LogSuccess
	}

	var err error
	if entry.ActorRef, err = optionalID(docref.Users, "userRef", req.UserRef); err != nil {
		return nil, err
	}
	if entry.AdvertiseRef, err = optionalID(docref.Advertisement, "advertiseRef", req.AdvertiseRef); err != nil {
		return nil, err
	}
	if entry.InvoiceRef, err = optionalID(docref.InvoiceRequest, "invoiceRef", req.InvoiceRef); err != nil {
		return nil, err
	}
	if entry.AllocationRef, err = optionalID(docref.NewspaperJobAllocation, "allocationRef", req.AllocationRef); err != nil {
		return nil, err
	}
	if entry.NoteSheetRef, err = optionalID(docref.NoteSheet, "notesheetRef", req.NoteSheetRef); err != nil {
		return nil, err
	}

	origin := requestinfo.From(ctx)
	entry.IP, entry.Platform, entry.RequestPath = origin.IP, origin.Platform, origin.Path

	if err := s.logs.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Purge deletes audit records older than before. It is the only deletion path.
func (s *ActionLogService) Purge(ctx context.Context, before string, userRef string) (int64, error) {
	step := &Step{Action: repository.ActionPurgeLogs}
	var removed int64

	err := s.audit.Step(ctx, step, func() error {
		cutoff, err := parseDate("before", before)
		if err != nil {
			return err
		}
		if cutoff == nil {
			return errors.InvalidInput("before", "is required")
		}
		if cutoff.After(s.now()) {
			return errors.InvalidInput("before", "cannot be in the future")
		}
		if step.ActorRef, err = optionalID(docref.Users, "userRef", userRef); err != nil {
			return err
		}

		removed, err = s.logs.Purge(ctx, *cutoff)
		if err != nil {
			return err
		}
		step.Message = fmt.Sprintf("purged %d action logs before %s", removed, cutoff.Format(time.RFC3339))
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().Int64("removed", removed).Msg("Action logs purged")
	return removed, nil
}

func optionalID(collection, field, s string) (*string, error) {
	ref, err := docref.ParseOptional(collection, field, s)
	if err != nil {
		return nil, err
	}
	return docref.ID(ref), nil
}
