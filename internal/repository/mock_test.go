package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dipr-ads/be-release-orders/internal/database"
)

var (
	mockCreated = time.Date(2024, 3, 15, 4, 30, 0, 0, time.UTC)
	mockUpdated = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
)

func newMockDB(t *testing.T) (*database.DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return database.NewWithPool(mock), mock
}

// columnNames splits one of the column list constants.
func columnNames(list string) []string {
	parts := strings.Split(list, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// anyArgs returns n wildcard arguments; callers pin the ones they check.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func advertisementRows(ad *Advertisement) *pgxmock.Rows {
	return pgxmock.NewRows(columnNames(advertisementColumns)).AddRow(
		ad.ID,
		ad.AdvertisementID,
		ad.Subject,
		ad.AddressTo,
		ad.DepartmentName,
		ad.BearingNo,
		ad.UserRef,
		ad.StatusCaseworker,
		ad.StatusDeputy,
		ad.StatusFao,
		ad.StatusVendor,
		ad.InvoiceDeputy,
		ad.IsCaseWorker,
		ad.IsDeputy,
		ad.IsFao,
		ad.IsVendor,
		ad.IsDraft,
		ad.AllotedNewspapers,
		ad.CaseworkerDraftNewspapers,
		ad.ApprovedNewspapersLocal,
		ad.DateOfApplication,
		ad.DateOfApproval,
		ad.DateOfRejection,
		ad.RODate,
		ad.ReleaseOrderNo,
		ad.IsRequestPending,
		ad.ManuallyAllotted,
		ad.InvoiceRefs,
		ad.DeputyFeedback,
		[]byte("{}"),
		mockCreated,
		mockUpdated,
	)
}

func submittedAdvertisement(id string) *Advertisement {
	user := "u1"
	return &Advertisement{
		ID:                        id,
		AdvertisementID:           "ADV-1",
		Subject:                   "Tender notice",
		DepartmentName:            "Public Works",
		UserRef:                   &user,
		StatusCaseworker:          StatusNotReached,
		StatusDeputy:              StatusNotReached,
		StatusFao:                 StatusNotReached,
		StatusVendor:              StatusNotReached,
		AllotedNewspapers:         []string{},
		CaseworkerDraftNewspapers: []string{},
		ApprovedNewspapersLocal:   []string{},
		InvoiceRefs:               []string{},
	}
}

func jobLogicRows(roNumbers int64, queue ...string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "ro_numbers", "waiting_queue", "updated_at"}).
		AddRow(SingletonID, roNumbers, queue, mockUpdated)
}

func adminRows(budget int64, noteSheetNo int64) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "budget", "notesheet_no", "updated_at"}).
		AddRow(SingletonID, decimal.NewFromInt(budget), noteSheetNo, mockUpdated)
}

func updatedAtRow() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"updated_at"}).AddRow(mockUpdated)
}
