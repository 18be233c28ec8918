package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dipr-ads/be-release-orders/internal/database"
	"github.com/dipr-ads/be-release-orders/internal/errors"
)

const actionLogColumns = `
	id, actor_ref, action, before, after, status, platform, ip, message, request_path,
	advertise_ref, invoice_ref, allocation_ref, notesheet_ref, created_at`

// ActionLogRepository appends and reads audit records. Workflows only append;
// Purge is the retention path.
type ActionLogRepository struct {
	db *database.DB
}

// NewActionLogRepository creates a new ActionLogRepository.
func NewActionLogRepository(db *database.DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// Append inserts one audit record.
func (r *ActionLogRepository) Append(ctx context.Context, entry *ActionLog) error {
	query := `
		INSERT INTO action_logs
		    (actor_ref, action, before, after, status, platform, ip, message, request_path,
		     advertise_ref, invoice_ref, allocation_ref, notesheet_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
		        $10, $11, $12, $13)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.ActorRef,
		entry.Action,
		nullJSON(entry.Before),
		nullJSON(entry.After),
		entry.Status,
		entry.Platform,
		entry.IP,
		entry.Message,
		entry.RequestPath,
		entry.AdvertiseRef,
		entry.InvoiceRef,
		entry.AllocationRef,
		entry.NoteSheetRef,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append action log")
	}
	return nil
}

// GetByID returns one audit record.
func (r *ActionLogRepository) GetByID(ctx context.Context, id string) (*ActionLog, error) {
	query := `SELECT ` + actionLogColumns + ` FROM action_logs WHERE id = $1`

	entry, err := r.scanEntry(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("action log", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get action log")
	}
	return entry, nil
}

// List returns audit records newest-first.
func (r *ActionLogRepository) List(ctx context.Context, f ActionLogFilter) ([]*ActionLog, int64, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 1

	add := func(clause string, v any) {
		where += fmt.Sprintf(" AND "+clause, argCount)
		args = append(args, v)
		argCount++
	}
	if f.ActorRef != nil {
		add("actor_ref = $%d", *f.ActorRef)
	}
	if f.Action != nil {
		add("action = $%d", *f.Action)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.AdvertiseRef != nil {
		add("advertise_ref = $%d", *f.AdvertiseRef)
	}
	if f.InvoiceRef != nil {
		add("invoice_ref = $%d", *f.InvoiceRef)
	}
	if f.NoteSheetRef != nil {
		add("notesheet_ref = $%d", *f.NoteSheetRef)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM action_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count action logs")
	}

	query := `SELECT ` + actionLogColumns + ` FROM action_logs` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)

	rows, err := r.db.Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list action logs")
	}
	defer rows.Close()

	entries, err := r.scanRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Purge deletes audit records created before the cutoff and returns how many
// were removed.
func (r *ActionLogRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM action_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to purge action logs")
	}
	return tag.RowsAffected(), nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *ActionLogRepository) scanRows(rows pgx.Rows) ([]*ActionLog, error) {
	entries := make([]*ActionLog, 0)
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan action log")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read action logs")
	}
	return entries, nil
}

func (r *ActionLogRepository) scanEntry(sc rowScanner) (*ActionLog, error) {
	entry := &ActionLog{}
	var before, after []byte

	err := sc.Scan(
		&entry.ID,
		&entry.ActorRef,
		&entry.Action,
		&before,
		&after,
		&entry.Status,
		&entry.Platform,
		&entry.IP,
		&entry.Message,
		&entry.RequestPath,
		&entry.AdvertiseRef,
		&entry.InvoiceRef,
		&entry.AllocationRef,
		&entry.NoteSheetRef,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.Before = before
	entry.After = after
	return entry, nil
}

// nullJSON stores an empty snapshot as SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
