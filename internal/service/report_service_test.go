package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dipr-ads/be-release-orders/internal/errors"
)

func TestApprovedAdvertisementsReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.vendors(t, "Rajasthan Patrika", "Dainik Bhaskar")
	ad, _ := f.allocatedAd(t, v...)
	f.submittedAd(t, "u1") // never allocated

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)
	buf, name, err := f.reports.ApprovedAdvertisementsReport(ctx, from, to)
	require.NoError(t, err)
	assert.Contains(t, name, "approved_advertisements_")

	wb, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows(reportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, approvedReportHeaders, rows[0])
	assert.Equal(t, ad.AdvertisementID, rows[1][0])
	assert.Equal(t, ad.ReleaseOrderNo, rows[1][4])
	assert.Equal(t, "Rajasthan Patrika, Dainik Bhaskar", rows[1][7])
	assert.Equal(t, "Yes", rows[1][8])
	assert.Equal(t, "Total", rows[2][0])
	assert.Equal(t, "1", rows[2][1])
}

func TestApprovedAdvertisementsReportRejectsEmptyWindow(t *testing.T) {
	f := newFixture(t)
	now := time.Now()

	_, _, err := f.reports.ApprovedAdvertisementsReport(context.Background(), now, now)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}
