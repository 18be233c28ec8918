package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"

	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/logger"
	"github.com/dipr-ads/be-release-orders/internal/metrics"
	"github.com/dipr-ads/be-release-orders/internal/service"
)

// Services bundles the workflow services the transports call.
type Services struct {
	Advertisements *service.AdvertisementService
	Invoices       *service.InvoiceService
	NoteSheets     *service.NoteSheetService
	Allocations    *service.AllocationService
	ActionLogs     *service.ActionLogService
	Admin          *service.AdminService
	Stats          *service.StatsService
	Reports        *service.ReportService
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	svc    Services
	health HealthCheck
	log    *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(svc Services, health HealthCheck, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:    svc,
		health: health,
		log:    log.Component("http"),
	}
}

// Router registers every route on a new gorilla/mux router.
func (h *HTTPHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errors.New(errors.ErrCodeNotFound, "route not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Success: false, Message: "method not allowed"})
	})

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	ad := r.PathPrefix("/advertisement").Subrouter()
	ad.HandleFunc("/createReleaseOrder", h.CreateAdvertisement).Methods(http.MethodPost)
	ad.HandleFunc("/getAdvertisements", h.ListAdvertisements).Methods(http.MethodGet)
	ad.HandleFunc("/getAdvertisements/byId/{id}", h.GetAdvertisement).Methods(http.MethodGet)
	ad.HandleFunc("/saveDraftAdvertisement", h.SaveDraft).Methods(http.MethodPost)
	ad.HandleFunc("/updateDraftAdvertisement/{id}", h.UpdateDraft).Methods(http.MethodPut)
	ad.HandleFunc("/editAdvertisement/{id}", h.EditAdvertisement).Methods(http.MethodPut)
	ad.HandleFunc("/allocation/{mode:automatic|manual}/sendToNewspaper", h.allocate(service.TargetNewspaper)).Methods(http.MethodPost)
	ad.HandleFunc("/allocation/{mode:automatic|manual}/sendToDeputy", h.allocate(service.TargetDeputy)).Methods(http.MethodPost)
	ad.HandleFunc("/approve/byDeputy", h.DeputyApprove).Methods(http.MethodPatch)
	ad.HandleFunc("/pullBack/byDeputy", h.DeputyPullBack).Methods(http.MethodPatch)
	ad.HandleFunc("/reject/byDeputy", h.DeputyReject).Methods(http.MethodPatch)
	ad.HandleFunc("/report/approved", h.ApprovedReport).Methods(http.MethodGet)
	ad.HandleFunc("/stats/approvedAdd/count/year/{year:[0-9]+}", h.CountApprovedByYear).Methods(http.MethodGet)

	ad.HandleFunc("/create/invoiceRequest/byVendor", h.CreateInvoice).Methods(http.MethodPost)
	ad.HandleFunc("/edit/invoiceRequest/byVendor", h.EditInvoice).Methods(http.MethodPut)
	ad.HandleFunc("/sendAgain/invoiceRequest/byDeputy", h.invoiceDecision(h.svc.Invoices.DeputyInvoiceSendBack)).Methods(http.MethodPatch)
	ad.HandleFunc("/approve/putup/invoiceRequest/byDeputy", h.invoiceDecision(h.svc.Invoices.DeputyApproveInvoiceRequestPutUp)).Methods(http.MethodPatch)
	ad.HandleFunc("/approve/sendForward/invoiceRequest/byDeputy", h.invoiceDecision(h.svc.Invoices.DeputyApproveInvoiceRequestSendForward)).Methods(http.MethodPatch)
	ad.HandleFunc("/approve/invoiceRequest/byAssistant", h.AssistantApproveInvoice).Methods(http.MethodPatch)
	ad.HandleFunc("/submit/invoiceRequest/byAssistant", h.invoiceDecision(h.svc.Invoices.AssistantSubmitInvoiceRequest)).Methods(http.MethodPatch)
	ad.HandleFunc("/invoiceRequest/{id}", h.GetInvoice).Methods(http.MethodGet)
	ad.HandleFunc("/invoiceRequests", h.ListInvoices).Methods(http.MethodGet)

	ad.HandleFunc("/create/notesheet", h.CreateNoteSheet).Methods(http.MethodPost)
	ad.HandleFunc("/notesheet/acknowledge/{role}", h.AcknowledgeNoteSheet).Methods(http.MethodPatch)
	ad.HandleFunc("/notesheet/reject/{role}", h.RejectNoteSheet).Methods(http.MethodPatch)
	ad.HandleFunc("/notesheet/resubmit", h.ResubmitNoteSheet).Methods(http.MethodPatch)
	ad.HandleFunc("/notesheet/{id}/ledger", h.NoteSheetLedger).Methods(http.MethodGet)
	ad.HandleFunc("/notesheet/{id}", h.GetNoteSheet).Methods(http.MethodGet)
	ad.HandleFunc("/notesheets", h.ListNoteSheets).Methods(http.MethodGet)

	jobs := r.PathPrefix("/newsPaperJobAllocation").Subrouter()
	jobs.HandleFunc("/updateApproveCvAndTimeAllotment", h.ApproveAllocations).Methods(http.MethodPost)
	jobs.HandleFunc("/byAdvertisement/{id}", h.ListAllocations).Methods(http.MethodGet)
	jobs.HandleFunc("/acknowledge/{id}", h.vendorAction(h.svc.Allocations.Acknowledge)).Methods(http.MethodPatch)
	jobs.HandleFunc("/reject/{id}", h.vendorAction(h.svc.Allocations.Reject)).Methods(http.MethodPatch)
	jobs.HandleFunc("/complete/{id}", h.vendorAction(h.svc.Allocations.Complete)).Methods(http.MethodPatch)
	jobs.HandleFunc("/{id}", h.GetAllocation).Methods(http.MethodGet)

	r.HandleFunc("/actionLogs", h.ListActionLogs).Methods(http.MethodGet)
	r.HandleFunc("/actionLogs", h.CreateActionLog).Methods(http.MethodPost)
	r.HandleFunc("/actionLogs", h.PurgeActionLogs).Methods(http.MethodDelete)
	r.HandleFunc("/actionLogs/{id}", h.GetActionLog).Methods(http.MethodGet)

	r.HandleFunc("/jobLogic", h.GetJobLogic).Methods(http.MethodGet)
	r.HandleFunc("/jobLogic/waitingQueue", h.SetWaitingQueue).Methods(http.MethodPut)
	r.HandleFunc("/adminData", h.GetAdminData).Methods(http.MethodGet)
	r.HandleFunc("/adminData/budget", h.SetBudget).Methods(http.MethodPatch)
	r.HandleFunc("/users", h.UpsertUser).Methods(http.MethodPost)
	r.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", h.GetUser).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/worklist", h.Worklist).Methods(http.MethodGet)

	return r
}

// Health reports liveness and, when configured, database reachability.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Message: "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "healthy"})
}

// ── envelope ──────────────────────────────────────────────────────────────────

type envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    any        `json:"data,omitempty"`
	Error   *errorInfo `json:"error,omitempty"`
}

type errorInfo struct {
	Code  errors.Code `json:"code"`
	Field string      `json:"field,omitempty"`
}

type page struct {
	Items    any   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func created(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: message, Data: data})
}

// httpStatus maps an error code to its HTTP status. Precondition conflicts are
// client errors.
func httpStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidInput, errors.ErrCodeConflict:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a failure envelope. Internal causes are logged, never
// returned to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	status := httpStatus(code)
	info := &errorInfo{Code: code}

	message := errors.Message(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		message = "internal server error"
	} else {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			info.Field = appErr.Field
		}
	}
	writeJSON(w, status, envelope{Success: false, Message: message, Error: info})
}

// ── request helpers ───────────────────────────────────────────────────────────

func decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.InvalidInput("body", "is required")
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return errors.InvalidInput("body", "invalid JSON: "+err.Error())
	}
	return nil
}

func pagination(r *http.Request) (int, int) {
	q := r.URL.Query()
	p, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	if p < 1 {
		p = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 200 {
		size = 200
	}
	return p, size
}

func queryString(r *http.Request, key string) *string {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil
	}
	return &v
}

func queryBool(r *http.Request, key string) (*bool, error) {
	v := queryString(r, key)
	if v == nil {
		return nil, nil
	}
	b, err := strconv.ParseBool(*v)
	if err != nil {
		return nil, errors.InvalidInput(key, "must be true or false")
	}
	return &b, nil
}

func queryInt(r *http.Request, key string) (*int, error) {
	v := queryString(r, key)
	if v == nil {
		return nil, nil
	}
	n, err := strconv.Atoi(*v)
	if err != nil {
		return nil, errors.InvalidInput(key, "must be an integer")
	}
	return &n, nil
}
