package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipr-ads/be-release-orders/internal/errors"
)

func TestUpdateAdvertisementSyncsAllocationApproval(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAdvertisementRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM advertisements WHERE id = \$1 FOR UPDATE`).
		WithArgs("ad-1").
		WillReturnRows(advertisementRows(submittedAdvertisement("ad-1")))
	args := anyArgs(29)
	args[0] = "ad-1"
	args[7] = DeputyApproved
	mock.ExpectQuery(`UPDATE advertisements`).
		WithArgs(args...).
		WillReturnRows(updatedAtRow())
	mock.ExpectExec(`UPDATE newspaper_job_allocations`).
		WithArgs("ad-1", true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	approved := true
	before, after, err := repo.Update(context.Background(), "ad-1", &approved, func(ad *Advertisement) error {
		ad.StatusDeputy = DeputyApproved
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, StatusNotReached, before.StatusDeputy)
	assert.Equal(t, DeputyApproved, after.StatusDeputy)
	assert.Equal(t, mockUpdated, after.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAdvertisementLeavesAllocationsAlone(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAdvertisementRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM advertisements WHERE id = \$1 FOR UPDATE`).
		WithArgs("ad-1").
		WillReturnRows(advertisementRows(submittedAdvertisement("ad-1")))
	mock.ExpectQuery(`UPDATE advertisements`).
		WithArgs(anyArgs(29)...).
		WillReturnRows(updatedAtRow())
	mock.ExpectCommit()

	_, after, err := repo.Update(context.Background(), "ad-1", nil, func(ad *Advertisement) error {
		ad.Subject = "Corrigendum"
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Corrigendum", after.Subject)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAdvertisementRollsBackOnRefusal(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAdvertisementRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM advertisements WHERE id = \$1 FOR UPDATE`).
		WithArgs("ad-1").
		WillReturnRows(advertisementRows(submittedAdvertisement("ad-1")))
	mock.ExpectRollback()

	_, _, err := repo.Update(context.Background(), "ad-1", nil, func(*Advertisement) error {
		return errors.Conflict("advertisement is a draft")
	})

	assert.True(t, errors.Is(err, errors.ErrCodeConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAdvertisementNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAdvertisementRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM advertisements WHERE id = \$1 FOR UPDATE`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := repo.Update(context.Background(), "missing", nil, func(*Advertisement) error {
		t.Fatal("fn must not run for a missing advertisement")
		return nil
	})

	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
