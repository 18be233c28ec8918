package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/dipr-ads/be-release-orders/internal/docref"
	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/repository"
	"github.com/dipr-ads/be-release-orders/internal/service"
)

// CreateAdvertisement handles POST /advertisement/createReleaseOrder
func (h *HTTPHandler) CreateAdvertisement(w http.ResponseWriter, r *http.Request) {
	var req service.CreateAdvertisementRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ad, err := h.svc.Advertisements.CreateAdvertisement(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, "Advertisement created", ad)
}

// SaveDraft handles POST /advertisement/saveDraftAdvertisement
func (h *HTTPHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var req service.CreateAdvertisementRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ad, err := h.svc.Advertisements.SaveDraft(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, "Draft saved", ad)
}

// UpdateDraft handles PUT /advertisement/updateDraftAdvertisement/{id}
func (h *HTTPHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateAdvertisementRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ad, err := h.svc.Advertisements.UpdateDraft(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Draft updated", ad)
}

// EditAdvertisement handles PUT /advertisement/editAdvertisement/{id}
func (h *HTTPHandler) EditAdvertisement(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateAdvertisementRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ad, err := h.svc.Advertisements.EditAdvertisement(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Advertisement updated", ad)
}

// GetAdvertisement handles GET /advertisement/getAdvertisements/byId/{id}
func (h *HTTPHandler) GetAdvertisement(w http.ResponseWriter, r *http.Request) {
	ref, err := docref.Parse(docref.Advertisement, "id", mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	ad, err := h.svc.Advertisements.GetAdvertisement(r.Context(), ref.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Advertisement fetched", ad)
}

// ListAdvertisements handles GET /advertisement/getAdvertisements
func (h *HTTPHandler) ListAdvertisements(w http.ResponseWriter, r *http.Request) {
	var f repository.AdvertisementFilter
	var err error
	if f.UserRef, err = refParam(r, docref.Users, "userRef"); err != nil {
		writeError(w, r, err)
		return
	}
	f.DepartmentName = queryString(r, "department")
	if f.IsDraft, err = queryBool(r, "isDraft"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.StatusDeputy, err = queryInt(r, "statusDeputy"); err != nil {
		writeError(w, r, err)
		return
	}

	p, size := pagination(r)
	ads, total, err := h.svc.Advertisements.ListAdvertisements(r.Context(), f, p, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Advertisements fetched", page{Items: ads, Total: total, Page: p, PageSize: size})
}

// allocate handles POST /advertisement/allocation/{mode}/sendTo{Newspaper,Deputy}
func (h *HTTPHandler) allocate(target service.AllocationTarget) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.AllocateRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		mode := service.AllocationMode(mux.Vars(r)["mode"])
		res, err := h.svc.Advertisements.Allocate(r.Context(), mode, target, &req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		created(w, "Advertisement allocated", res)
	}
}

// DeputyApprove handles PATCH /advertisement/approve/byDeputy
func (h *HTTPHandler) DeputyApprove(w http.ResponseWriter, r *http.Request) {
	h.deputyDecision(w, r, h.svc.Advertisements.DeputyApproveAdvertisement, "Advertisement approved")
}

// DeputyPullBack handles PATCH /advertisement/pullBack/byDeputy
func (h *HTTPHandler) DeputyPullBack(w http.ResponseWriter, r *http.Request) {
	h.deputyDecision(w, r, h.svc.Advertisements.DeputyPullBackAction, "Advertisement pulled back")
}

// DeputyReject handles PATCH /advertisement/reject/byDeputy
func (h *HTTPHandler) DeputyReject(w http.ResponseWriter, r *http.Request) {
	h.deputyDecision(w, r, h.svc.Advertisements.DeputyRejectAdvertisement, "Advertisement rejected")
}

func (h *HTTPHandler) deputyDecision(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, req *service.DeputyDecisionRequest) (*repository.Advertisement, error),
	message string,
) {
	var req service.DeputyDecisionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ad, err := fn(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, message, ad)
}

// ApprovedReport handles GET /advertisement/report/approved?from=&to=
// and streams an XLSX workbook. A date-only "to" includes that whole day.
func (h *HTTPHandler) ApprovedReport(w http.ResponseWriter, r *http.Request) {
	from, err := timeParam(r, "from", false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := timeParam(r, "to", true)
	if err != nil {
		writeError(w, r, err)
		return
	}

	buf, filename, err := h.svc.Reports.ApprovedAdvertisementsReport(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// CountApprovedByYear handles GET /advertisement/stats/approvedAdd/count/year/{year}
func (h *HTTPHandler) CountApprovedByYear(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil {
		writeError(w, r, errors.InvalidInput("year", "must be a number"))
		return
	}
	counts, err := h.svc.Stats.CountApprovedAddByYear(r.Context(), year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Approved note sheets counted", counts)
}

// refParam reads an optional document reference query parameter and returns
// its bare id.
func refParam(r *http.Request, collection, key string) (*string, error) {
	v := queryString(r, key)
	if v == nil {
		return nil, nil
	}
	ref, err := docref.Parse(collection, key, *v)
	if err != nil {
		return nil, err
	}
	return &ref.ID, nil
}

// timeParam parses a required RFC 3339 or YYYY-MM-DD query parameter. Dates
// are IST midnights; endOfDay moves a date to the following midnight.
func timeParam(r *http.Request, key string, endOfDay bool) (time.Time, error) {
	v := queryString(r, key)
	if v == nil {
		return time.Time{}, errors.InvalidInput(key, "is required")
	}
	if t, err := time.Parse(time.RFC3339Nano, *v); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(*v), ist)
	if err != nil {
		return time.Time{}, errors.InvalidInput(key, "invalid date format, expected RFC 3339 or YYYY-MM-DD")
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1)
	}
	return d, nil
}

var ist = time.FixedZone("IST", 5*60*60+30*60)
