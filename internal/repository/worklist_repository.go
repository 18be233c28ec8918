package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dipr-ads/be-release-orders/internal/database"
	"github.com/dipr-ads/be-release-orders/internal/errors"
)

const worklistColumns = `
	id, user_ref, vendor_ref, invoice_ref, advertise_ref, ro_number, bill_no,
	invoice_amount, created_at`

// WorklistRepository stores assistant-approved invoices awaiting a note sheet.
type WorklistRepository struct {
	db *database.DB
}

// NewWorklistRepository creates a new worklist repository
func NewWorklistRepository(db *database.DB) *WorklistRepository {
	return &WorklistRepository{db: db}
}

// Add records an approved invoice for the user. Adding the same invoice twice
// for a user keeps the first row.
func (r *WorklistRepository) Add(ctx context.Context, item *WorklistItem) error {
	query := `
		INSERT INTO approval_worklist (user_ref, vendor_ref, invoice_ref, advertise_ref,
		                               ro_number, bill_no, invoice_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_ref, invoice_ref) DO UPDATE SET user_ref = EXCLUDED.user_ref
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		item.UserRef,
		item.VendorRef,
		item.InvoiceRef,
		item.AdvertiseRef,
		item.RONumber,
		item.BillNo,
		item.InvoiceAmount,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to add worklist item")
	}
	return nil
}

// Tracked reports whether the invoice is queued for the user or already carried
// by a note sheet.
func (r *WorklistRepository) Tracked(ctx context.Context, userRef, invoiceRef string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM approval_worklist WHERE user_ref = $1 AND invoice_ref = $2
		) OR EXISTS (
			SELECT 1 FROM note_sheets
			WHERE add_data @> jsonb_build_array(jsonb_build_object('invoiceRef', $2::text))
		)
	`

	var tracked bool
	if err := r.db.QueryRow(ctx, query, userRef, invoiceRef).Scan(&tracked); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check worklist")
	}
	return tracked, nil
}

// ListByUser returns the user's pending worklist, optionally for one vendor.
func (r *WorklistRepository) ListByUser(ctx context.Context, userRef string, vendorRef *string) ([]*WorklistItem, error) {
	query := `SELECT ` + worklistColumns + `
		FROM approval_worklist
		WHERE user_ref = $1 AND ($2::text IS NULL OR vendor_ref = $2)
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, userRef, vendorRef)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list worklist")
	}
	defer rows.Close()

	return scanWorklist(rows)
}

func scanWorklist(rows pgx.Rows) ([]*WorklistItem, error) {
	items := make([]*WorklistItem, 0)
	for rows.Next() {
		item := &WorklistItem{}
		err := rows.Scan(
			&item.ID,
			&item.UserRef,
			&item.VendorRef,
			&item.InvoiceRef,
			&item.AdvertiseRef,
			&item.RONumber,
			&item.BillNo,
			&item.InvoiceAmount,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan worklist item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read worklist")
	}
	return items, nil
}
