package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dipr-ads/be-release-orders/internal/database"
	"github.com/dipr-ads/be-release-orders/internal/errors"
)

const noteSheetColumns = `
	id, notesheet_no, notesheet_string, vendor_ref, created_by, add_data,
	assistant_status, deputy_status, director_status, under_secretary_status,
	secretary_status, fao_status, total_amount, details,
	is_pending, is_approved, budget_deducted, approved_at, created_at, updated_at`

// NoteSheetRepository manages note sheets, the approval worklist they consume
// and the budget ledger. Every status transition locks the note sheet and the
// admin data row.
type NoteSheetRepository struct {
	db *database.DB
}

// NewNoteSheetRepository creates a new note sheet repository
func NewNoteSheetRepository(db *database.DB) *NoteSheetRepository {
	return &NoteSheetRepository{db: db}
}

// Create consumes the user's worklist rows for the vendor and inserts the note
// sheet built from them, advancing the note sheet counter and recording a
// ledger entry in the same transaction.
func (r *NoteSheetRepository) Create(ctx context.Context, userRef, vendorRef string, build NoteSheetBuilder) (*NoteSheet, error) {
	var created *NoteSheet

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		admin, err := lockAdminData(ctx, tx)
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `SELECT `+worklistColumns+`
			FROM approval_worklist
			WHERE user_ref = $1 AND vendor_ref = $2
			ORDER BY created_at
			FOR UPDATE`, userRef, vendorRef)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to read worklist")
		}
		items, err := scanWorklist(rows)
		rows.Close()
		if err != nil {
			return err
		}

		ns, err := build(items, admin)
		if err != nil {
			return err
		}

		addData, details, err := marshalNoteSheetJSON(ns)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO note_sheets (notesheet_no, notesheet_string, vendor_ref, created_by, add_data,
			                         assistant_status, deputy_status, director_status,
			                         under_secretary_status, secretary_status, fao_status,
			                         total_amount, details, is_pending, is_approved)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING id, created_at, updated_at`,
			ns.NoteSheetNo,
			ns.NoteSheetString,
			ns.VendorRef,
			ns.CreatedBy,
			addData,
			ns.AssistantStatus,
			ns.DeputyStatus,
			ns.DirectorStatus,
			ns.UnderSecretaryStatus,
			ns.SecretaryStatus,
			ns.FaoStatus,
			ns.TotalAmount,
			details,
			ns.IsPending,
			ns.IsApproved,
		).Scan(&ns.ID, &ns.CreatedAt, &ns.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create note sheet")
		}

		ids := make([]string, len(items))
		for i, item := range items {
			ids[i] = item.ID
		}
		if _, err := tx.Exec(ctx, `DELETE FROM approval_worklist WHERE id = ANY($1)`, ids); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to consume worklist")
		}

		if err := writeAdminData(ctx, tx, admin); err != nil {
			return err
		}
		entry := &BudgetEntry{
			NoteSheetRef: ns.ID,
			Kind:         LedgerNoteSheetCreated,
			Amount:       ns.TotalAmount,
			BudgetAfter:  admin.Budget,
		}
		if err := insertBudgetEntry(ctx, tx, entry); err != nil {
			return err
		}

		created = ns
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetByID retrieves a note sheet by ID
func (r *NoteSheetRepository) GetByID(ctx context.Context, id string) (*NoteSheet, error) {
	query := `SELECT ` + noteSheetColumns + ` FROM note_sheets WHERE id = $1`

	ns, err := scanNoteSheet(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("note sheet", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get note sheet")
	}
	return ns, nil
}

// List retrieves note sheets with filtering and pagination
func (r *NoteSheetRepository) List(ctx context.Context, f NoteSheetFilter) ([]*NoteSheet, int64, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 1

	if f.VendorRef != nil {
		where += fmt.Sprintf(" AND vendor_ref = $%d", argCount)
		args = append(args, *f.VendorRef)
		argCount++
	}
	if f.IsPending != nil {
		where += fmt.Sprintf(" AND is_pending = $%d", argCount)
		args = append(args, *f.IsPending)
		argCount++
	}
	if f.IsApproved != nil {
		where += fmt.Sprintf(" AND is_approved = $%d", argCount)
		args = append(args, *f.IsApproved)
		argCount++
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM note_sheets`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count note sheets")
	}

	query := `SELECT ` + noteSheetColumns + ` FROM note_sheets` + where +
		fmt.Sprintf(" ORDER BY notesheet_no DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)

	rows, err := r.db.Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list note sheets")
	}
	defer rows.Close()

	sheets := make([]*NoteSheet, 0)
	for rows.Next() {
		ns, err := scanNoteSheet(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan note sheet")
		}
		sheets = append(sheets, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to read note sheets")
	}
	return sheets, total, nil
}

// Transition locks the note sheet and admin data, applies fn and persists the
// note sheet. A ledger entry returned by fn is recorded with the new budget.
func (r *NoteSheetRepository) Transition(ctx context.Context, id string, fn NoteSheetTransition) (*NoteSheet, *NoteSheet, *BudgetEntry, error) {
	var before, after *NoteSheet
	var ledger *BudgetEntry

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + noteSheetColumns + ` FROM note_sheets WHERE id = $1 FOR UPDATE`
		ns, err := scanNoteSheet(tx.QueryRow(ctx, query, id))
		if err == pgx.ErrNoRows {
			return errors.NotFound("note sheet", id)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock note sheet")
		}
		admin, err := lockAdminData(ctx, tx)
		if err != nil {
			return err
		}
		before = ns.Clone()

		entry, err := fn(ns, admin)
		if err != nil {
			return err
		}

		addData, details, err := marshalNoteSheetJSON(ns)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			UPDATE note_sheets
			SET add_data = $2, assistant_status = $3, deputy_status = $4, director_status = $5,
			    under_secretary_status = $6, secretary_status = $7, fao_status = $8,
			    total_amount = $9, details = $10, is_pending = $11, is_approved = $12,
			    budget_deducted = $13, approved_at = $14, updated_at = now()
			WHERE id = $1
			RETURNING updated_at`,
			ns.ID,
			addData,
			ns.AssistantStatus,
			ns.DeputyStatus,
			ns.DirectorStatus,
			ns.UnderSecretaryStatus,
			ns.SecretaryStatus,
			ns.FaoStatus,
			ns.TotalAmount,
			details,
			ns.IsPending,
			ns.IsApproved,
			ns.BudgetDeducted,
			ns.ApprovedAt,
		).Scan(&ns.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update note sheet")
		}

		if entry != nil {
			if err := writeAdminData(ctx, tx, admin); err != nil {
				return err
			}
			entry.NoteSheetRef = ns.ID
			entry.BudgetAfter = admin.Budget
			if err := insertBudgetEntry(ctx, tx, entry); err != nil {
				return err
			}
		}

		after = ns
		ledger = entry
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return before, after, ledger, nil
}

// CountApprovedBetween counts note sheets approved in [from, to).
func (r *NoteSheetRepository) CountApprovedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM note_sheets
		WHERE is_approved AND approved_at >= $1 AND approved_at < $2`, from, to,
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count approved note sheets")
	}
	return count, nil
}

// Ledger returns the budget ledger of a note sheet oldest-first.
func (r *NoteSheetRepository) Ledger(ctx context.Context, noteSheetID string) ([]*BudgetEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, notesheet_ref, kind, amount, budget_after, created_at
		FROM budget_details
		WHERE notesheet_ref = $1
		ORDER BY created_at`, noteSheetID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read budget ledger")
	}
	defer rows.Close()

	entries := make([]*BudgetEntry, 0)
	for rows.Next() {
		e := &BudgetEntry{}
		if err := rows.Scan(&e.ID, &e.NoteSheetRef, &e.Kind, &e.Amount, &e.BudgetAfter, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan budget entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read budget ledger")
	}
	return entries, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func scanNoteSheet(sc rowScanner) (*NoteSheet, error) {
	ns := &NoteSheet{}
	var addData, details []byte

	err := sc.Scan(
		&ns.ID,
		&ns.NoteSheetNo,
		&ns.NoteSheetString,
		&ns.VendorRef,
		&ns.CreatedBy,
		&addData,
		&ns.AssistantStatus,
		&ns.DeputyStatus,
		&ns.DirectorStatus,
		&ns.UnderSecretaryStatus,
		&ns.SecretaryStatus,
		&ns.FaoStatus,
		&ns.TotalAmount,
		&details,
		&ns.IsPending,
		&ns.IsApproved,
		&ns.BudgetDeducted,
		&ns.ApprovedAt,
		&ns.CreatedAt,
		&ns.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(addData) > 0 {
		if err := json.Unmarshal(addData, &ns.AddData); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal note sheet items")
		}
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &ns.Details); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal note sheet details")
		}
	}
	return ns, nil
}

func marshalNoteSheetJSON(ns *NoteSheet) ([]byte, []byte, error) {
	items := ns.AddData
	if items == nil {
		items = []NoteSheetItem{}
	}
	addData, err := json.Marshal(items)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal note sheet items")
	}

	trail := ns.Details
	if trail == nil {
		trail = []NoteSheetDetail{}
	}
	details, err := json.Marshal(trail)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal note sheet details")
	}
	return addData, details, nil
}
