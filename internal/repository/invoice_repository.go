package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dipr-ads/be-release-orders/internal/database"
	"github.com/dipr-ads/be-release-orders/internal/errors"
)

const invoiceColumns = `
	id, ro_number, invoice_url, user_ref, advertise_ref, job_ref,
	assistant_status, deputy_status, is_send_forward, send_again, is_read, is_completed,
	bill_no, invoice_amount, deputy_feedback, approved_by, created_at, updated_at`

// InvoiceRepository handles invoice request data operations
type InvoiceRepository struct {
	db *database.DB
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *database.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create inserts a new invoice request
func (r *InvoiceRepository) Create(ctx context.Context, inv *InvoiceRequest) error {
	query := `
		INSERT INTO invoice_requests (ro_number, invoice_url, user_ref, advertise_ref, job_ref,
		                              assistant_status, deputy_status, is_send_forward, send_again,
		                              is_read, is_completed, bill_no, invoice_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		inv.RONumber,
		inv.InvoiceURL,
		inv.UserRef,
		inv.AdvertiseRef,
		inv.JobRef,
		inv.AssistantStatus,
		inv.DeputyStatus,
		inv.IsSendForward,
		inv.SendAgain,
		inv.IsRead,
		inv.IsCompleted,
		inv.BillNo,
		inv.InvoiceAmount,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create invoice request")
	}
	return nil
}

// GetByID retrieves an invoice request by ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*InvoiceRequest, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoice_requests WHERE id = $1`

	inv, err := scanInvoice(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("invoice request", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get invoice request")
	}
	return inv, nil
}

// List retrieves invoice requests with filtering and pagination
func (r *InvoiceRepository) List(ctx context.Context, f InvoiceFilter) ([]*InvoiceRequest, int64, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 1

	if f.UserRef != nil {
		where += fmt.Sprintf(" AND user_ref = $%d", argCount)
		args = append(args, *f.UserRef)
		argCount++
	}
	if f.AdvertiseRef != nil {
		where += fmt.Sprintf(" AND advertise_ref = $%d", argCount)
		args = append(args, *f.AdvertiseRef)
		argCount++
	}
	if f.DeputyStatus != nil {
		where += fmt.Sprintf(" AND deputy_status = $%d", argCount)
		args = append(args, *f.DeputyStatus)
		argCount++
	}
	if f.AssistantStatus != nil {
		where += fmt.Sprintf(" AND assistant_status = $%d", argCount)
		args = append(args, *f.AssistantStatus)
		argCount++
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM invoice_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count invoice requests")
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoice_requests` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)

	rows, err := r.db.Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list invoice requests")
	}
	defer rows.Close()

	invoices := make([]*InvoiceRequest, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan invoice request")
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to read invoice requests")
	}
	return invoices, total, nil
}

// Update locks the invoice request, applies fn and persists the result.
func (r *InvoiceRepository) Update(ctx context.Context, id string, fn func(inv *InvoiceRequest) error) (*InvoiceRequest, *InvoiceRequest, error) {
	var before, after *InvoiceRequest

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + invoiceColumns + ` FROM invoice_requests WHERE id = $1 FOR UPDATE`
		inv, err := scanInvoice(tx.QueryRow(ctx, query, id))
		if err == pgx.ErrNoRows {
			return errors.NotFound("invoice request", id)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock invoice request")
		}
		before = inv.Clone()

		if err := fn(inv); err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			UPDATE invoice_requests
			SET ro_number = $2, invoice_url = $3, user_ref = $4, advertise_ref = $5, job_ref = $6,
			    assistant_status = $7, deputy_status = $8, is_send_forward = $9, send_again = $10,
			    is_read = $11, is_completed = $12, bill_no = $13, invoice_amount = $14,
			    deputy_feedback = $15, approved_by = $16, updated_at = now()
			WHERE id = $1
			RETURNING updated_at`,
			inv.ID,
			inv.RONumber,
			inv.InvoiceURL,
			inv.UserRef,
			inv.AdvertiseRef,
			inv.JobRef,
			inv.AssistantStatus,
			inv.DeputyStatus,
			inv.IsSendForward,
			inv.SendAgain,
			inv.IsRead,
			inv.IsCompleted,
			inv.BillNo,
			inv.InvoiceAmount,
			inv.DeputyFeedback,
			inv.ApprovedBy,
		).Scan(&inv.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update invoice request")
		}

		after = inv
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func scanInvoice(sc rowScanner) (*InvoiceRequest, error) {
	inv := &InvoiceRequest{}
	err := sc.Scan(
		&inv.ID,
		&inv.RONumber,
		&inv.InvoiceURL,
		&inv.UserRef,
		&inv.AdvertiseRef,
		&inv.JobRef,
		&inv.AssistantStatus,
		&inv.DeputyStatus,
		&inv.IsSendForward,
		&inv.SendAgain,
		&inv.IsRead,
		&inv.IsCompleted,
		&inv.BillNo,
		&inv.InvoiceAmount,
		&inv.DeputyFeedback,
		&inv.ApprovedBy,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inv, nil
}
