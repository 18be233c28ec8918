package repository

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ── Status codes ─────────────────────────────────────────────────────────────

// StatusNotReached marks a role the document has not reached yet.
const StatusNotReached = 10

// Advertisement.StatusCaseworker
const (
	CaseworkerSubmitted       = 0
	CaseworkerForwarded       = 1
	CaseworkerSentToNewspaper = 2
)

// Advertisement.StatusDeputy
const (
	DeputyPending  = 0
	DeputyApproved = 1
	DeputyRejected = 2
)

// Advertisement.StatusVendor
const VendorAllocated = 0

// Advertisement.InvoiceDeputy
const (
	InvoiceDeputyPending     = 0
	InvoiceDeputyPutUp       = 1
	InvoiceDeputySentForward = 2
)

// InvoiceRequest.DeputyStatus
const (
	InvoicePending     = 0
	InvoicePutUp       = 1
	InvoiceSentForward = 2
	InvoiceSentBack    = 10
)

// InvoiceRequest.AssistantStatus
const (
	AssistantPending  = 0
	AssistantApproved = 1
)

// NoteSheet role statuses
const (
	NoteSheetPending  = 0
	NoteSheetReturned = 1
	NoteSheetApproved = 2
)

// Action log statuses
const (
	LogSuccess = "Success"
	LogFailed  = "Failed"
)

// Budget ledger kinds
const (
	LedgerNoteSheetCreated = "notesheet_created"
	LedgerDeduction        = "deduction"
	LedgerRefund           = "refund"
)

// Action log codes
const (
	ActionCreateAdvertisement      = 1
	ActionCreateAdvertisementDone  = 2
	ActionSaveDraft                = 3
	ActionUpdateDraft              = 4
	ActionEditAdvertisement        = 5
	ActionAllocateToNewspaper      = 6
	ActionAllocateToDeputy         = 7
	ActionDeputyApprove            = 8
	ActionDeputyPullBack           = 9
	ActionDeputyReject             = 10
	ActionCreateInvoice            = 11
	ActionEditInvoice              = 12
	ActionInvoiceLinkAdvertisement = 13
	ActionInvoiceLinkAllocation    = 14
	ActionInvoiceSendBack          = 15
	ActionInvoicePutUp             = 16
	ActionInvoiceSendForward       = 17
	ActionInvoiceAssistantApprove  = 18
	ActionInvoiceAssistantSubmit   = 19
	ActionCreateNoteSheet          = 20
	ActionAcknowledgeNoteSheet     = 21
	ActionRejectNoteSheet          = 22
	ActionResubmitNoteSheet        = 23
	ActionBudgetDeduction          = 24
	ActionBudgetRefund             = 25
	ActionBulkApproveAllocations   = 26
	ActionVendorAcknowledge        = 27
	ActionVendorReject             = 28
	ActionVendorComplete           = 29
	ActionEmailDelivery            = 30
	ActionClientEntry              = 31
	ActionPurgeLogs                = 32
	ActionUpdateWaitingQueue       = 33
	ActionSetBudget                = 34
	ActionUpsertUser               = 35
)

// SingletonID is the well-known id of the job logic and admin data rows.
const SingletonID = "default"

// ── Domain types ─────────────────────────────────────────────────────────────

// Advertisement is a release-order application and its allocation state.
type Advertisement struct {
	ID                        string         `json:"id"`
	AdvertisementID           string         `json:"AdvertisementId"`
	Subject                   string         `json:"Subject"`
	AddressTo                 string         `json:"AddressTo"`
	DepartmentName            string         `json:"Department_name"`
	BearingNo                 string         `json:"Bearingno"`
	UserRef                   *string        `json:"Userref"`
	StatusCaseworker          int            `json:"Status_Caseworker"`
	StatusDeputy              int            `json:"Status_Deputy"`
	StatusFao                 int            `json:"Status_Fao"`
	StatusVendor              int            `json:"Status_Vendor"`
	InvoiceDeputy             int            `json:"Invoice_deputy"`
	IsCaseWorker              bool           `json:"Is_CaseWorker"`
	IsDeputy                  bool           `json:"Is_Deputy"`
	IsFao                     bool           `json:"Is_fao"`
	IsVendor                  bool           `json:"Is_Vendor"`
	IsDraft                   bool           `json:"isDarft"`
	AllotedNewspapers         []string       `json:"allotednewspapers"`
	CaseworkerDraftNewspapers []string       `json:"caseworkerdraftnewspapers"`
	ApprovedNewspapersLocal   []string       `json:"approvednewspaperslocal"`
	DateOfApplication         *time.Time     `json:"DateOfApplication"`
	DateOfApproval            *time.Time     `json:"DateOfApproval"`
	DateOfRejection           *time.Time     `json:"DateOfRejection"`
	RODate                    *time.Time     `json:"RODATE"`
	ReleaseOrderNo            string         `json:"Release_order_no"`
	IsRequestPending          bool           `json:"IsrequesPending"`
	ManuallyAllotted          bool           `json:"manuallyallotted"`
	InvoiceRefs               []string       `json:"invoicerefList"`
	DeputyFeedback            string         `json:"DeputyFeedback"`
	Metadata                  map[string]any `json:"metadata,omitempty"`
	CreatedAt                 time.Time      `json:"CreatedAt"`
	UpdatedAt                 time.Time      `json:"UpdatedAt"`
}

// Clone returns a deep copy used for before/after snapshots.
func (a *Advertisement) Clone() *Advertisement {
	if a == nil {
		return nil
	}
	c := *a
	c.UserRef = cloneString(a.UserRef)
	c.AllotedNewspapers = cloneStrings(a.AllotedNewspapers)
	c.CaseworkerDraftNewspapers = cloneStrings(a.CaseworkerDraftNewspapers)
	c.ApprovedNewspapersLocal = cloneStrings(a.ApprovedNewspapersLocal)
	c.InvoiceRefs = cloneStrings(a.InvoiceRefs)
	c.DateOfApplication = cloneTime(a.DateOfApplication)
	c.DateOfApproval = cloneTime(a.DateOfApproval)
	c.DateOfRejection = cloneTime(a.DateOfRejection)
	c.RODate = cloneTime(a.RODate)
	if a.Metadata != nil {
		c.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// NewspaperJobAllocation is one vendor's assignment for an advertisement.
type NewspaperJobAllocation struct {
	ID              string     `json:"id"`
	AdRef           string     `json:"adref"`
	VendorRef       string     `json:"newspaperrefuserref"`
	RONumber        string     `json:"ronumber"`
	TimeOfAllotment time.Time  `json:"timeofallotment"`
	DueTime         time.Time  `json:"duetime"`
	Acknowledged    bool       `json:"acknowledgedboolean"`
	AcknowledgedAt  *time.Time `json:"acknowledgedAt,omitempty"`
	Rejected        bool       `json:"rejected"`
	VendorFeedback  string     `json:"vendorFeedback,omitempty"`
	ApprovedCW      bool       `json:"aprovedcw"`
	Completed       bool       `json:"completed"`
	InvoiceRaised   bool       `json:"invoiceraised"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Clone returns a copy of the allocation.
func (a *NewspaperJobAllocation) Clone() *NewspaperJobAllocation {
	if a == nil {
		return nil
	}
	c := *a
	c.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
	return &c
}

// JobLogic is the allocation counter and round-robin vendor queue.
type JobLogic struct {
	ID           string    `json:"id"`
	RONumbers    int64     `json:"ronumbers"`
	WaitingQueue []string  `json:"waitingquuelist"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// InvoiceRequest is a vendor invoice for an allocation.
type InvoiceRequest struct {
	ID              string          `json:"id"`
	RONumber        string          `json:"Ronumber"`
	InvoiceURL      string          `json:"InvoiceUrl"`
	UserRef         string          `json:"Userref"`
	AdvertiseRef    *string         `json:"advertiseRef"`
	JobRef          *string         `json:"jobref"`
	AssistantStatus int             `json:"Assitanttatus"`
	DeputyStatus    int             `json:"deputyDirector_status"`
	IsSendForward   bool            `json:"isSendForward"`
	SendAgain       bool            `json:"sendAgain"`
	IsRead          bool            `json:"isRead"`
	IsCompleted     bool            `json:"isCompleted"`
	BillNo          string          `json:"billno"`
	InvoiceAmount   decimal.Decimal `json:"invoiceamount"`
	DeputyFeedback  string          `json:"deputyFeedback,omitempty"`
	ApprovedBy      *string         `json:"approvedBy,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Clone returns a copy of the invoice.
func (i *InvoiceRequest) Clone() *InvoiceRequest {
	if i == nil {
		return nil
	}
	c := *i
	c.AdvertiseRef = cloneString(i.AdvertiseRef)
	c.JobRef = cloneString(i.JobRef)
	c.ApprovedBy = cloneString(i.ApprovedBy)
	return &c
}

// WorklistItem is an assistant-approved invoice waiting for a note sheet.
type WorklistItem struct {
	ID            string          `json:"id"`
	UserRef       string          `json:"userRef"`
	VendorRef     string          `json:"vendorRef"`
	InvoiceRef    string          `json:"invoiceRef"`
	AdvertiseRef  *string         `json:"advertiseRef,omitempty"`
	RONumber      string          `json:"Ronumber"`
	BillNo        string          `json:"billno"`
	InvoiceAmount decimal.Decimal `json:"invoiceamount"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// NoteSheetItem is one approved invoice line carried by a note sheet.
type NoteSheetItem struct {
	InvoiceRef    string          `json:"invoiceRef"`
	AdvertiseRef  *string         `json:"advertiseRef,omitempty"`
	RONumber      string          `json:"Ronumber"`
	BillNo        string          `json:"billno"`
	InvoiceAmount decimal.Decimal `json:"invoiceamount"`
}

// NoteSheetDetail is one entry of a note sheet's feedback trail.
type NoteSheetDetail struct {
	CreatedDate time.Time `json:"createddate"`
	Feedback    string    `json:"feedback"`
	UserRole    string    `json:"userrole"`
}

// NoteSheet is a budget note awaiting the approval chain.
type NoteSheet struct {
	ID                   string            `json:"id"`
	NoteSheetNo          int64             `json:"notesheetno"`
	NoteSheetString      string            `json:"notesheetString"`
	VendorRef            string            `json:"vendorRef"`
	CreatedBy            string            `json:"createdBy"`
	AddData              []NoteSheetItem   `json:"adddata"`
	AssistantStatus      int               `json:"assitantStattus"`
	DeputyStatus         int               `json:"deputyStatus"`
	DirectorStatus       int               `json:"directorStatus"`
	UnderSecretaryStatus int               `json:"statusUnderSecretary"`
	SecretaryStatus      int               `json:"statusSecretary"`
	FaoStatus            int               `json:"FaoStatus"`
	TotalAmount          decimal.Decimal   `json:"TotalAmount"`
	Details              []NoteSheetDetail `json:"notesheetdetails"`
	IsPending            bool              `json:"ispending"`
	IsApproved           bool              `json:"isaprroved"`
	BudgetDeducted       bool              `json:"budgetDeducted"`
	ApprovedAt           *time.Time        `json:"approvedAt,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
	UpdatedAt            time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy used for before/after snapshots.
func (n *NoteSheet) Clone() *NoteSheet {
	if n == nil {
		return nil
	}
	c := *n
	c.AddData = append([]NoteSheetItem(nil), n.AddData...)
	c.Details = append([]NoteSheetDetail(nil), n.Details...)
	c.ApprovedAt = cloneTime(n.ApprovedAt)
	return &c
}

// AdminData holds the office budget and the note sheet counter.
type AdminData struct {
	ID          string          `json:"id"`
	Budget      decimal.Decimal `json:"Budget"`
	NoteSheetNo int64           `json:"notesheetno"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// BudgetEntry is one budget ledger event.
type BudgetEntry struct {
	ID           string          `json:"id"`
	NoteSheetRef string          `json:"notesheetRef"`
	Kind         string          `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	BudgetAfter  decimal.Decimal `json:"budgetAfter"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// User is an office user or vendor.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ActionLog is one immutable audit record.
type ActionLog struct {
	ID            string          `json:"id"`
	ActorRef      *string         `json:"actorRef,omitempty"`
	Action        int             `json:"action"`
	Before        json.RawMessage `json:"before,omitempty"`
	After         json.RawMessage `json:"after,omitempty"`
	Status        string          `json:"status"`
	Platform      string          `json:"platform"`
	IP            string          `json:"ip"`
	Message       string          `json:"message"`
	RequestPath   string          `json:"requestPath"`
	AdvertiseRef  *string         `json:"advertiseRef,omitempty"`
	InvoiceRef    *string         `json:"invoiceRef,omitempty"`
	AllocationRef *string         `json:"allocationRef,omitempty"`
	NoteSheetRef  *string         `json:"notesheetRef,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ── Filters ──────────────────────────────────────────────────────────────────

// AdvertisementFilter narrows advertisement listings.
type AdvertisementFilter struct {
	UserRef        *string
	DepartmentName *string
	IsDraft        *bool
	StatusDeputy   *int
	Limit          int
	Offset         int
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	UserRef         *string
	AdvertiseRef    *string
	DeputyStatus    *int
	AssistantStatus *int
	Limit           int
	Offset          int
}

// NoteSheetFilter narrows note sheet listings.
type NoteSheetFilter struct {
	VendorRef  *string
	IsPending  *bool
	IsApproved *bool
	Limit      int
	Offset     int
}

// ActionLogFilter narrows action log listings.
type ActionLogFilter struct {
	ActorRef     *string
	Action       *int
	Status       *string
	AdvertiseRef *string
	InvoiceRef   *string
	NoteSheetRef *string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// ── Transaction callbacks ────────────────────────────────────────────────────

// AllocationPlanner runs inside the allocation transaction with the advertisement
// and job logic locked. It mutates both in place and returns the allocations to
// insert.
type AllocationPlanner func(ad *Advertisement, jl *JobLogic) ([]*NewspaperJobAllocation, error)

// NoteSheetBuilder runs inside the creation transaction with admin data locked.
// It advances admin.NoteSheetNo and builds the note sheet from the worklist rows
// being consumed.
type NoteSheetBuilder func(items []*WorklistItem, admin *AdminData) (*NoteSheet, error)

// NoteSheetTransition mutates a locked note sheet. When it changes the budget it
// updates admin.Budget and returns the ledger entry to record.
type NoteSheetTransition func(ns *NoteSheet, admin *AdminData) (*BudgetEntry, error)

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneStrings(ss []string) []string {
	if ss == nil {
		return nil
	}
	return append([]string(nil), ss...)
}
