package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipr-ads/be-release-orders/internal/errors"
)

func TestAllocateWritesAllocationsJobLogicAndAdvertisement(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAllocationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM advertisements WHERE id = \$1 FOR UPDATE`).
		WithArgs("ad-1").
		WillReturnRows(advertisementRows(submittedAdvertisement("ad-1")))
	mock.ExpectQuery(`FROM job_logic WHERE id = \$1 FOR UPDATE`).
		WithArgs(SingletonID).
		WillReturnRows(jobLogicRows(5, "v1", "v2", "v3"))
	for i, vendor := range []string{"v1", "v2"} {
		mock.ExpectQuery(`INSERT INTO newspaper_job_allocations`).
			WithArgs("ad-1", vendor, []string{"5", "6"}[i], pgxmock.AnyArg(), pgxmock.AnyArg(), true).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow([]string{"al-1", "al-2"}[i], mockCreated, mockCreated))
	}
	mock.ExpectQuery(`UPDATE job_logic`).
		WithArgs(SingletonID, int64(7), []string{"v3", "v1", "v2"}).
		WillReturnRows(updatedAtRow())
	adArgs := anyArgs(29)
	adArgs[0] = "ad-1"
	adArgs[6] = CaseworkerSentToNewspaper
	adArgs[16] = []string{"v1", "v2"}
	adArgs[23] = "5"
	mock.ExpectQuery(`UPDATE advertisements`).
		WithArgs(adArgs...).
		WillReturnRows(updatedAtRow())
	mock.ExpectCommit()

	plan := func(ad *Advertisement, jl *JobLogic) ([]*NewspaperJobAllocation, error) {
		now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
		var out []*NewspaperJobAllocation
		for i, vendor := range jl.WaitingQueue[:2] {
			out = append(out, &NewspaperJobAllocation{
				AdRef:           ad.ID,
				VendorRef:       vendor,
				RONumber:        []string{"5", "6"}[i],
				TimeOfAllotment: now,
				DueTime:         now.Add(48 * time.Hour),
				ApprovedCW:      true,
			})
		}
		ad.AllotedNewspapers = []string{"v1", "v2"}
		ad.ReleaseOrderNo = "5"
		ad.StatusCaseworker = CaseworkerSentToNewspaper
		jl.RONumbers = 7
		jl.WaitingQueue = []string{"v3", "v1", "v2"}
		return out, nil
	}

	before, after, created, err := repo.Allocate(context.Background(), "ad-1", plan)

	require.NoError(t, err)
	assert.Empty(t, before.AllotedNewspapers)
	assert.Equal(t, []string{"v1", "v2"}, after.AllotedNewspapers)
	assert.Equal(t, mockUpdated, after.UpdatedAt)
	require.Len(t, created, 2)
	assert.Equal(t, "al-1", created[0].ID)
	assert.Equal(t, "al-2", created[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocateRollsBackWhenPlannerFails(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAllocationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM advertisements WHERE id = \$1 FOR UPDATE`).
		WithArgs("ad-1").
		WillReturnRows(advertisementRows(submittedAdvertisement("ad-1")))
	mock.ExpectQuery(`FROM job_logic WHERE id = \$1 FOR UPDATE`).
		WithArgs(SingletonID).
		WillReturnRows(jobLogicRows(5))
	mock.ExpectRollback()

	plan := func(*Advertisement, *JobLogic) ([]*NewspaperJobAllocation, error) {
		return nil, errors.Conflict("waiting queue is empty")
	}

	_, _, created, err := repo.Allocate(context.Background(), "ad-1", plan)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))
	assert.Nil(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocateUnknownAdvertisement(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAllocationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM advertisements WHERE id = \$1 FOR UPDATE`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(columnNames(advertisementColumns)))
	mock.ExpectRollback()

	called := false
	_, _, _, err := repo.Allocate(context.Background(), "missing", func(*Advertisement, *JobLogic) ([]*NewspaperJobAllocation, error) {
		called = true
		return nil, nil
	})

	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetApprovedReportsMissingAllocation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAllocationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE id = ANY\(\$1\)`).
		WithArgs([]string{"al-1", "al-9"}, true).
		WillReturnRows(pgxmock.NewRows(columnNames(allocationColumns)).AddRow(
			"al-1", "ad-1", "v1", "5", mockCreated, mockCreated.Add(48*time.Hour),
			false, (*time.Time)(nil), false, "",
			true, false, false, mockCreated, mockUpdated,
		))
	mock.ExpectRollback()

	updated, err := repo.SetApproved(context.Background(), []string{"al-1", "al-9"}, true)

	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	assert.Contains(t, err.Error(), "al-9")
	assert.Nil(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
