package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dipr-ads/be-release-orders/internal/errors"
)

// MonthCount is the number of note sheets approved in one calendar month.
type MonthCount struct {
	Month int   `json:"month"`
	Count int64 `json:"count"`
}

// StatsService answers dashboard counters.
type StatsService struct {
	noteSheets NoteSheetStore
}

// NewStatsService creates a new stats service.
func NewStatsService(noteSheets NoteSheetStore) *StatsService {
	return &StatsService{noteSheets: noteSheets}
}

// CountApprovedAddByYear counts approved note sheets per IST calendar month of
// year. Months are counted concurrently and returned January first.
func (s *StatsService) CountApprovedAddByYear(ctx context.Context, year int) ([]MonthCount, error) {
	if year < 2000 || year > 9999 {
		return nil, errors.InvalidInput("year", "must be a four digit year")
	}

	counts := make([]MonthCount, 12)
	g, gctx := errgroup.WithContext(ctx)
	for i := range counts {
		month := time.Month(i + 1)
		from := time.Date(year, month, 1, 0, 0, 0, 0, ist)
		to := from.AddDate(0, 1, 0)
		g.Go(func() error {
			n, err := s.noteSheets.CountApprovedBetween(gctx, from, to)
			if err != nil {
				return err
			}
			counts[i] = MonthCount{Month: int(month), Count: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}
