package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dipr-ads/be-release-orders/internal/database"
	"github.com/dipr-ads/be-release-orders/internal/errors"
)

// AdminRepository reads and maintains the budget singleton.
type AdminRepository struct {
	db *database.DB
}

// NewAdminRepository creates a new admin data repository
func NewAdminRepository(db *database.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// Get returns the admin data singleton.
func (r *AdminRepository) Get(ctx context.Context) (*AdminData, error) {
	admin := &AdminData{}
	err := r.db.QueryRow(ctx, `
		SELECT id, budget, notesheet_no, updated_at
		FROM admin_data WHERE id = $1`, SingletonID,
	).Scan(&admin.ID, &admin.Budget, &admin.NoteSheetNo, &admin.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("admin data", SingletonID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get admin data")
	}
	return admin, nil
}

// SetBudget replaces the available budget.
func (r *AdminRepository) SetBudget(ctx context.Context, budget decimal.Decimal) (*AdminData, error) {
	var admin *AdminData
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		locked, err := lockAdminData(ctx, tx)
		if err != nil {
			return err
		}
		locked.Budget = budget
		if err := writeAdminData(ctx, tx, locked); err != nil {
			return err
		}
		admin = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return admin, nil
}

func lockAdminData(ctx context.Context, tx pgx.Tx) (*AdminData, error) {
	admin := &AdminData{}
	err := tx.QueryRow(ctx, `
		SELECT id, budget, notesheet_no, updated_at
		FROM admin_data WHERE id = $1 FOR UPDATE`, SingletonID,
	).Scan(&admin.ID, &admin.Budget, &admin.NoteSheetNo, &admin.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("admin data", SingletonID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to lock admin data")
	}
	return admin, nil
}

func writeAdminData(ctx context.Context, tx pgx.Tx, admin *AdminData) error {
	err := tx.QueryRow(ctx, `
		UPDATE admin_data
		SET budget = $2, notesheet_no = $3, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		admin.ID, admin.Budget, admin.NoteSheetNo,
	).Scan(&admin.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update admin data")
	}
	return nil
}

func insertBudgetEntry(ctx context.Context, tx pgx.Tx, entry *BudgetEntry) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO budget_details (notesheet_ref, kind, amount, budget_after)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		entry.NoteSheetRef, entry.Kind, entry.Amount, entry.BudgetAfter,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to record budget entry")
	}
	return nil
}
