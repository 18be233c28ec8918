package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dipr-ads/be-release-orders/internal/database"
	"github.com/dipr-ads/be-release-orders/internal/errors"
)

const allocationColumns = `
	id, ad_ref, vendor_ref, ro_number, time_of_allotment, due_time,
	acknowledged, acknowledged_at, rejected, vendor_feedback,
	approved_cw, completed, invoice_raised, created_at, updated_at`

// AllocationRepository handles newspaper job allocations. Allocation runs in one
// transaction with the advertisement and the job logic row locked.
type AllocationRepository struct {
	db *database.DB
}

// NewAllocationRepository creates a new allocation repository
func NewAllocationRepository(db *database.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// Allocate locks the advertisement and job logic, lets plan decide the
// allocations, and persists the advertisement, the job logic and the new
// allocations together.
func (r *AllocationRepository) Allocate(ctx context.Context, adID string, plan AllocationPlanner) (*Advertisement, *Advertisement, []*NewspaperJobAllocation, error) {
	var before, after *Advertisement
	var created []*NewspaperJobAllocation

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		ad, err := lockAdvertisement(ctx, tx, adID)
		if err != nil {
			return err
		}
		jl, err := lockJobLogic(ctx, tx)
		if err != nil {
			return err
		}
		before = ad.Clone()

		allocations, err := plan(ad, jl)
		if err != nil {
			return err
		}

		insertQuery := `
			INSERT INTO newspaper_job_allocations (ad_ref, vendor_ref, ro_number, time_of_allotment,
			                                       due_time, approved_cw)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at
		`
		for _, a := range allocations {
			err := tx.QueryRow(ctx, insertQuery,
				a.AdRef,
				a.VendorRef,
				a.RONumber,
				a.TimeOfAllotment,
				a.DueTime,
				a.ApprovedCW,
			).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create allocation")
			}
		}

		if err := writeJobLogic(ctx, tx, jl); err != nil {
			return err
		}
		if err := writeAdvertisement(ctx, tx, ad); err != nil {
			return err
		}

		after = ad
		created = allocations
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return before, after, created, nil
}

// GetByID retrieves an allocation by ID
func (r *AllocationRepository) GetByID(ctx context.Context, id string) (*NewspaperJobAllocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM newspaper_job_allocations WHERE id = $1`

	a, err := scanAllocation(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("allocation", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get allocation")
	}
	return a, nil
}

// ListByAdvertisement returns every allocation of an advertisement ordered by RO number.
func (r *AllocationRepository) ListByAdvertisement(ctx context.Context, adID string) ([]*NewspaperJobAllocation, error) {
	query := `SELECT ` + allocationColumns + `
		FROM newspaper_job_allocations
		WHERE ad_ref = $1
		ORDER BY time_of_allotment, ro_number`

	rows, err := r.db.Query(ctx, query, adID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list allocations")
	}
	defer rows.Close()

	return scanAllocations(rows)
}

// Update locks the allocation, applies fn and persists the vendor-facing flags.
func (r *AllocationRepository) Update(ctx context.Context, id string, fn func(a *NewspaperJobAllocation) error) (*NewspaperJobAllocation, *NewspaperJobAllocation, error) {
	var before, after *NewspaperJobAllocation

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + allocationColumns + ` FROM newspaper_job_allocations WHERE id = $1 FOR UPDATE`
		a, err := scanAllocation(tx.QueryRow(ctx, query, id))
		if err == pgx.ErrNoRows {
			return errors.NotFound("allocation", id)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock allocation")
		}
		before = a.Clone()

		if err := fn(a); err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			UPDATE newspaper_job_allocations
			SET acknowledged = $2, acknowledged_at = $3, rejected = $4, vendor_feedback = $5,
			    approved_cw = $6, completed = $7, invoice_raised = $8, updated_at = now()
			WHERE id = $1
			RETURNING updated_at`,
			a.ID,
			a.Acknowledged,
			a.AcknowledgedAt,
			a.Rejected,
			a.VendorFeedback,
			a.ApprovedCW,
			a.Completed,
			a.InvoiceRaised,
		).Scan(&a.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update allocation")
		}

		after = a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// SetApproved sets the case-worker approval flag on every listed allocation in
// one statement. Unknown ids are reported as NotFound and nothing is changed.
func (r *AllocationRepository) SetApproved(ctx context.Context, ids []string, approved bool) ([]*NewspaperJobAllocation, error) {
	var updated []*NewspaperJobAllocation

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE newspaper_job_allocations
			SET approved_cw = $2, updated_at = now()
			WHERE id = ANY($1)
			RETURNING ` + allocationColumns

		rows, err := tx.Query(ctx, query, ids, approved)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to approve allocations")
		}
		updated, err = scanAllocations(rows)
		rows.Close()
		if err != nil {
			return err
		}

		if missing := missingIDs(ids, updated); len(missing) > 0 {
			return errors.NotFound("allocation", missing[0])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func missingIDs(ids []string, found []*NewspaperJobAllocation) []string {
	seen := make(map[string]bool, len(found))
	for _, a := range found {
		seen[a.ID] = true
	}
	var missing []string
	for _, id := range ids {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func scanAllocations(rows pgx.Rows) ([]*NewspaperJobAllocation, error) {
	allocations := make([]*NewspaperJobAllocation, 0)
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan allocation")
		}
		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read allocations")
	}
	return allocations, nil
}

func scanAllocation(sc rowScanner) (*NewspaperJobAllocation, error) {
	a := &NewspaperJobAllocation{}
	err := sc.Scan(
		&a.ID,
		&a.AdRef,
		&a.VendorRef,
		&a.RONumber,
		&a.TimeOfAllotment,
		&a.DueTime,
		&a.Acknowledged,
		&a.AcknowledgedAt,
		&a.Rejected,
		&a.VendorFeedback,
		&a.ApprovedCW,
		&a.Completed,
		&a.InvoiceRaised,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}
