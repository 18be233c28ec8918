package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/logger"
	"github.com/dipr-ads/be-release-orders/internal/repository"
)

const reportSheet = "Approved"

var approvedReportHeaders = []string{
	"Advertisement ID", "Subject", "Department", "Bearing No", "Release Order No",
	"RO Date", "Date of Approval", "Newspapers", "Manually Allotted", "Deputy Status",
}

// ReportService renders workbook exports of the advertisement register.
type ReportService struct {
	ads   AdvertisementStore
	users UserStore
	log   *logger.Logger
}

// NewReportService creates a new report service.
func NewReportService(ads AdvertisementStore, users UserStore, log *logger.Logger) *ReportService {
	return &ReportService{ads: ads, users: users, log: log.Component("report")}
}

// ApprovedAdvertisementsReport builds an XLSX workbook with one row per
// advertisement approved or released to newspapers in [from, to). It returns
// the workbook bytes and a download file name.
func (s *ReportService) ApprovedAdvertisementsReport(ctx context.Context, from, to time.Time) (*bytes.Buffer, string, error) {
	if !to.After(from) {
		return nil, "", errors.InvalidInput("to", "must be after from")
	}
	ads, err := s.ads.ListApprovedBetween(ctx, from, to)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeInternal, "failed to create report sheet")
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range approvedReportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(reportSheet, cell, h)
		f.SetCellStyle(reportSheet, cell, cell, headerStyle)
	}

	names := make(map[string]string)
	for i, ad := range ads {
		row := i + 2
		values := []any{
			ad.AdvertisementID,
			ad.Subject,
			ad.DepartmentName,
			ad.BearingNo,
			ad.ReleaseOrderNo,
			reportDate(ad.RODate),
			reportDate(ad.DateOfApproval),
			strings.Join(s.vendorNames(ctx, names, ad.AllotedNewspapers), ", "),
			yesNo(ad.ManuallyAllotted),
			deputyStatusLabel(ad.StatusDeputy),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(reportSheet, cell, v)
		}
	}

	summaryRow := len(ads) + 2
	summaryStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellValue(reportSheet, fmt.Sprintf("A%d", summaryRow), "Total")
	f.SetCellValue(reportSheet, fmt.Sprintf("B%d", summaryRow), len(ads))
	f.SetCellStyle(reportSheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("J%d", summaryRow), summaryStyle)

	f.SetColWidth(reportSheet, "A", "A", 22)
	f.SetColWidth(reportSheet, "B", "B", 40)
	f.SetColWidth(reportSheet, "C", "G", 18)
	f.SetColWidth(reportSheet, "H", "H", 40)
	f.SetColWidth(reportSheet, "I", "J", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeInternal, "failed to write report")
	}

	filename := fmt.Sprintf("approved_advertisements_%s_%s.xlsx",
		from.In(ist).Format("20060102"), to.In(ist).Format("20060102"))

	s.log.Info().
		Time("from", from).
		Time("to", to).
		Int("rows", len(ads)).
		Msg("Approved advertisements report generated")
	return buf, filename, nil
}

// vendorNames resolves vendor display names, caching lookups across rows.
func (s *ReportService) vendorNames(ctx context.Context, cache map[string]string, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		name, ok := cache[id]
		if !ok {
			name = id
			if u, err := s.users.GetByID(ctx, id); err == nil {
				name = u.DisplayName
			}
			cache[id] = name
		}
		out = append(out, name)
	}
	return out
}

func reportDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(ist).Format("02-01-2006")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func deputyStatusLabel(status int) string {
	switch status {
	case repository.DeputyPending:
		return "Pending"
	case repository.DeputyApproved:
		return "Approved"
	case repository.DeputyRejected:
		return "Rejected"
	default:
		return "Not required"
	}
}
