package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/logger"
	"github.com/dipr-ads/be-release-orders/internal/metrics"
	"github.com/dipr-ads/be-release-orders/internal/repository"
	"github.com/dipr-ads/be-release-orders/internal/requestinfo"
)

var actionNames = map[int]string{
	repository.ActionCreateAdvertisement:      "create_advertisement",
	repository.ActionCreateAdvertisementDone:  "create_advertisement_complete",
	repository.ActionSaveDraft:                "save_draft",
	repository.ActionUpdateDraft:              "update_draft",
	repository.ActionEditAdvertisement:        "edit_advertisement",
	repository.ActionAllocateToNewspaper:      "allocate_to_newspaper",
	repository.ActionAllocateToDeputy:         "allocate_to_deputy",
	repository.ActionDeputyApprove:            "deputy_approve",
	repository.ActionDeputyPullBack:           "deputy_pull_back",
	repository.ActionDeputyReject:             "deputy_reject",
	repository.ActionCreateInvoice:            "create_invoice",
	repository.ActionEditInvoice:              "edit_invoice",
	repository.ActionInvoiceLinkAdvertisement: "invoice_link_advertisement",
	repository.ActionInvoiceLinkAllocation:    "invoice_link_allocation",
	repository.ActionInvoiceSendBack:          "invoice_send_back",
	repository.ActionInvoicePutUp:             "invoice_put_up",
	repository.ActionInvoiceSendForward:       "invoice_send_forward",
	repository.ActionInvoiceAssistantApprove:  "invoice_assistant_approve",
	repository.ActionInvoiceAssistantSubmit:   "invoice_assistant_submit",
	repository.ActionCreateNoteSheet:          "create_notesheet",
	repository.ActionAcknowledgeNoteSheet:     "acknowledge_notesheet",
	repository.ActionRejectNoteSheet:          "reject_notesheet",
	repository.ActionResubmitNoteSheet:        "resubmit_notesheet",
	repository.ActionBudgetDeduction:          "budget_deduction",
	repository.ActionBudgetRefund:             "budget_refund",
	repository.ActionBulkApproveAllocations:   "bulk_approve_allocations",
	repository.ActionVendorAcknowledge:        "vendor_acknowledge",
	repository.ActionVendorReject:             "vendor_reject",
	repository.ActionVendorComplete:           "vendor_complete",
	repository.ActionEmailDelivery:            "email_delivery",
	repository.ActionClientEntry:              "client_entry",
	repository.ActionPurgeLogs:                "purge_action_logs",
	repository.ActionUpdateWaitingQueue:       "update_waiting_queue",
	repository.ActionSetBudget:                "set_budget",
	repository.ActionUpsertUser:               "upsert_user",
}

// ActionName returns the metric label of an action code.
func ActionName(action int) string {
	if name, ok := actionNames[action]; ok {
		return name
	}
	return fmt.Sprintf("action_%d", action)
}

// Step describes one audited unit of work. The function run by Auditor.Step
// may fill in refs and snapshots as it learns them.
type Step struct {
	Action        int
	ActorRef      *string
	AdvertiseRef  *string
	InvoiceRef    *string
	AllocationRef *string
	NoteSheetRef  *string
	Message       string
	Before        any
	After         any
}

// Auditor writes action log records. Write failures are logged and never
// returned.
type Auditor struct {
	logs ActionLogStore
	log  *logger.Logger
}

// NewAuditor creates an Auditor.
func NewAuditor(logs ActionLogStore, log *logger.Logger) *Auditor {
	return &Auditor{logs: logs, log: log.Component("audit")}
}

// Step runs fn and records its outcome as one Success or Failed entry. fn's
// error is returned unchanged.
func (a *Auditor) Step(ctx context.Context, step *Step, fn func() error) error {
	err := fn()
	metrics.RecordTransition(ActionName(step.Action), err)
	a.Record(ctx, step, err)
	return err
}

// Record appends the entry for step. A non-nil err marks it Failed.
func (a *Auditor) Record(ctx context.Context, step *Step, err error) {
	origin := requestinfo.From(ctx)

	status := repository.LogSuccess
	message := step.Message
	if message == "" {
		message = ActionName(step.Action) + " succeeded"
	}
	if err != nil {
		status = repository.LogFailed
		message = ActionName(step.Action) + " failed: " + errors.Message(err)
	}

	entry := &repository.ActionLog{
		ActorRef:      step.ActorRef,
		Action:        step.Action,
		Before:        a.snapshot(step.Before),
		After:         a.snapshot(step.After),
		Status:        status,
		Platform:      origin.Platform,
		IP:            origin.IP,
		Message:       message,
		RequestPath:   origin.Path,
		AdvertiseRef:  step.AdvertiseRef,
		InvoiceRef:    step.InvoiceRef,
		AllocationRef: step.AllocationRef,
		NoteSheetRef:  step.NoteSheetRef,
	}

	// The entry outlives a cancelled request.
	if err := a.logs.Append(context.WithoutCancel(ctx), entry); err != nil {
		a.log.Warn().Err(err).
			Int("action", step.Action).
			Str("status", status).
			Msg("Failed to write action log entry")
	}
}

func (a *Auditor) snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to marshal audit snapshot")
		return nil
	}
	if string(data) == "null" {
		return nil
	}
	return data
}
