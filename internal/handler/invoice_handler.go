package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dipr-ads/be-release-orders/internal/docref"
	"github.com/dipr-ads/be-release-orders/internal/repository"
	"github.com/dipr-ads/be-release-orders/internal/service"
)

// ── Invoice requests ──────────────────────────────────────────────────────────

// CreateInvoice handles POST /advertisement/create/invoiceRequest/byVendor
func (h *HTTPHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req service.CreateInvoiceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.svc.Invoices.CreateInvoice(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, "Invoice request created", inv)
}

// EditInvoice handles PUT /advertisement/edit/invoiceRequest/byVendor
func (h *HTTPHandler) EditInvoice(w http.ResponseWriter, r *http.Request) {
	var req service.EditInvoiceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.svc.Invoices.EditInvoice(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Invoice request updated", inv)
}

// invoiceDecision adapts a deputy or assistant decision to an HTTP handler.
func (h *HTTPHandler) invoiceDecision(
	fn func(ctx context.Context, req *service.InvoiceDecisionRequest) (*repository.InvoiceRequest, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.InvoiceDecisionRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		inv, err := fn(r.Context(), &req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ok(w, "Invoice request updated", inv)
	}
}

// AssistantApproveInvoice handles PATCH /advertisement/approve/invoiceRequest/byAssistant
func (h *HTTPHandler) AssistantApproveInvoice(w http.ResponseWriter, r *http.Request) {
	var req service.AssistantApproveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.svc.Invoices.AssistantApproveInvoiceRequest(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Invoice request approved", inv)
}

// GetInvoice handles GET /advertisement/invoiceRequest/{id}
func (h *HTTPHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	ref, err := docref.Parse(docref.InvoiceRequest, "id", mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.svc.Invoices.GetInvoice(r.Context(), ref.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Invoice request fetched", inv)
}

// ListInvoices handles GET /advertisement/invoiceRequests
func (h *HTTPHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	var f repository.InvoiceFilter
	var err error
	if f.UserRef, err = refParam(r, docref.Users, "userRef"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.AdvertiseRef, err = refParam(r, docref.Advertisement, "advertiseRef"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.DeputyStatus, err = queryInt(r, "deputyStatus"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.AssistantStatus, err = queryInt(r, "assistantStatus"); err != nil {
		writeError(w, r, err)
		return
	}

	p, size := pagination(r)
	invoices, total, err := h.svc.Invoices.ListInvoices(r.Context(), f, p, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Invoice requests fetched", page{Items: invoices, Total: total, Page: p, PageSize: size})
}

// ── Note sheets ───────────────────────────────────────────────────────────────

// CreateNoteSheet handles POST /advertisement/create/notesheet
func (h *HTTPHandler) CreateNoteSheet(w http.ResponseWriter, r *http.Request) {
	var req service.CreateNoteSheetRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ns, err := h.svc.NoteSheets.CreateNoteSheet(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, "Note sheet created", ns)
}

// AcknowledgeNoteSheet handles PATCH /advertisement/notesheet/acknowledge/{role}
func (h *HTTPHandler) AcknowledgeNoteSheet(w http.ResponseWriter, r *http.Request) {
	h.noteSheetDecision(w, r, h.svc.NoteSheets.Acknowledge, "Note sheet acknowledged")
}

// RejectNoteSheet handles PATCH /advertisement/notesheet/reject/{role}
func (h *HTTPHandler) RejectNoteSheet(w http.ResponseWriter, r *http.Request) {
	h.noteSheetDecision(w, r, h.svc.NoteSheets.Reject, "Note sheet rejected")
}

func (h *HTTPHandler) noteSheetDecision(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, role service.Role, req *service.NoteSheetDecisionRequest) (*repository.NoteSheet, error),
	message string,
) {
	role, err := service.ParseRole(mux.Vars(r)["role"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req service.NoteSheetDecisionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ns, err := fn(r.Context(), role, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, message, ns)
}

// ResubmitNoteSheet handles PATCH /advertisement/notesheet/resubmit
func (h *HTTPHandler) ResubmitNoteSheet(w http.ResponseWriter, r *http.Request) {
	var req service.NoteSheetDecisionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ns, err := h.svc.NoteSheets.ResubmitNoteSheet(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Note sheet resubmitted", ns)
}

// GetNoteSheet handles GET /advertisement/notesheet/{id}
func (h *HTTPHandler) GetNoteSheet(w http.ResponseWriter, r *http.Request) {
	ref, err := docref.Parse(docref.NoteSheet, "id", mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	ns, err := h.svc.NoteSheets.GetNoteSheet(r.Context(), ref.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Note sheet fetched", ns)
}

// NoteSheetLedger handles GET /advertisement/notesheet/{id}/ledger
func (h *HTTPHandler) NoteSheetLedger(w http.ResponseWriter, r *http.Request) {
	ref, err := docref.Parse(docref.NoteSheet, "id", mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.svc.NoteSheets.Ledger(r.Context(), ref.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Budget ledger fetched", entries)
}

// ListNoteSheets handles GET /advertisement/notesheets
func (h *HTTPHandler) ListNoteSheets(w http.ResponseWriter, r *http.Request) {
	var f repository.NoteSheetFilter
	var err error
	if f.VendorRef, err = refParam(r, docref.Users, "vendorRef"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.IsPending, err = queryBool(r, "isPending"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.IsApproved, err = queryBool(r, "isApproved"); err != nil {
		writeError(w, r, err)
		return
	}

	p, size := pagination(r)
	sheets, total, err := h.svc.NoteSheets.ListNoteSheets(r.Context(), f, p, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Note sheets fetched", page{Items: sheets, Total: total, Page: p, PageSize: size})
}

// Worklist handles GET /users/{id}/worklist?vendorRef=
func (h *HTTPHandler) Worklist(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.NoteSheets.Worklist(r.Context(), mux.Vars(r)["id"], queryString(r, "vendorRef"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Worklist fetched", items)
}
