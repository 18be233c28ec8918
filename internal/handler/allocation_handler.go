package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dipr-ads/be-release-orders/internal/repository"
	"github.com/dipr-ads/be-release-orders/internal/service"
)

// ── Newspaper job allocations ─────────────────────────────────────────────────

// ApproveAllocations handles POST /newsPaperJobAllocation/updateApproveCvAndTimeAllotment
func (h *HTTPHandler) ApproveAllocations(w http.ResponseWriter, r *http.Request) {
	var req service.ApproveAllocationsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.svc.Allocations.UpdateApproveCvAndTimeAllotment(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Allocations approved", updated)
}

// ListAllocations handles GET /newsPaperJobAllocation/byAdvertisement/{id}
func (h *HTTPHandler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	allocations, err := h.svc.Allocations.ListByAdvertisement(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Allocations fetched", allocations)
}

// GetAllocation handles GET /newsPaperJobAllocation/{id}
func (h *HTTPHandler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Allocations.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Allocation fetched", a)
}

// vendorAction adapts a vendor answer on /newsPaperJobAllocation/{verb}/{id}.
func (h *HTTPHandler) vendorAction(
	fn func(ctx context.Context, id string, req *service.VendorActionRequest) (*repository.NewspaperJobAllocation, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.VendorActionRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		a, err := fn(r.Context(), mux.Vars(r)["id"], &req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ok(w, "Allocation updated", a)
	}
}

// ── Action logs ───────────────────────────────────────────────────────────────

// ListActionLogs handles GET /actionLogs
func (h *HTTPHandler) ListActionLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, size := pagination(r)
	logs, total, err := h.svc.ActionLogs.List(r.Context(), service.ActionLogQuery{
		ActorRef:     q.Get("actorRef"),
		Action:       q.Get("action"),
		Status:       q.Get("status"),
		AdvertiseRef: q.Get("advertiseRef"),
		InvoiceRef:   q.Get("invoiceRef"),
		NoteSheetRef: q.Get("notesheetRef"),
		From:         q.Get("from"),
		To:           q.Get("to"),
		Page:         p,
		PageSize:     size,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Action logs fetched", page{Items: logs, Total: total, Page: p, PageSize: size})
}

// GetActionLog handles GET /actionLogs/{id}
func (h *HTTPHandler) GetActionLog(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.ActionLogs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Action log fetched", entry)
}

// CreateActionLog handles POST /actionLogs
func (h *HTTPHandler) CreateActionLog(w http.ResponseWriter, r *http.Request) {
	var req service.ClientLogRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := h.svc.ActionLogs.CreateClientEntry(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, "Action log recorded", entry)
}

// PurgeActionLogs handles DELETE /actionLogs?before=&userRef=
func (h *HTTPHandler) PurgeActionLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	removed, err := h.svc.ActionLogs.Purge(r.Context(), q.Get("before"), q.Get("userRef"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Action logs purged", map[string]int64{"removed": removed})
}

// ── Administration ────────────────────────────────────────────────────────────

// GetJobLogic handles GET /jobLogic
func (h *HTTPHandler) GetJobLogic(w http.ResponseWriter, r *http.Request) {
	jl, err := h.svc.Admin.GetJobLogic(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Job logic fetched", jl)
}

// SetWaitingQueue handles PUT /jobLogic/waitingQueue
func (h *HTTPHandler) SetWaitingQueue(w http.ResponseWriter, r *http.Request) {
	var req service.WaitingQueueRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	jl, err := h.svc.Admin.SetWaitingQueue(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Waiting queue updated", jl)
}

// GetAdminData handles GET /adminData
func (h *HTTPHandler) GetAdminData(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Admin.GetAdminData(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Admin data fetched", data)
}

// SetBudget handles PATCH /adminData/budget
func (h *HTTPHandler) SetBudget(w http.ResponseWriter, r *http.Request) {
	var req service.BudgetRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.svc.Admin.SetBudget(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Budget updated", data)
}

// UpsertUser handles POST /users
func (h *HTTPHandler) UpsertUser(w http.ResponseWriter, r *http.Request) {
	var req service.UpsertUserRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.svc.Admin.UpsertUser(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "User saved", u)
}

// ListUsers handles GET /users?role=
func (h *HTTPHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Admin.ListUsers(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Users fetched", users)
}

// GetUser handles GET /users/{id}
func (h *HTTPHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Admin.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "User fetched", u)
}
