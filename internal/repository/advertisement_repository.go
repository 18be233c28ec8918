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

const advertisementColumns = `
	id, advertisement_id, subject, address_to, department_name, bearing_no, user_ref,
	status_caseworker, status_deputy, status_fao, status_vendor, invoice_deputy,
	is_caseworker, is_deputy, is_fao, is_vendor, is_draft,
	alloted_newspapers, caseworker_draft_newspapers, approved_newspapers_local,
	date_of_application, date_of_approval, date_of_rejection, ro_date,
	release_order_no, is_request_pending, manually_allotted, invoice_refs,
	deputy_feedback, metadata, created_at, updated_at`

// AdvertisementRepository handles advertisement data operations
type AdvertisementRepository struct {
	db *database.DB
}

// NewAdvertisementRepository creates a new advertisement repository
func NewAdvertisementRepository(db *database.DB) *AdvertisementRepository {
	return &AdvertisementRepository{db: db}
}

// Create inserts a new advertisement
func (r *AdvertisementRepository) Create(ctx context.Context, ad *Advertisement) error {
	metadataJSON, err := marshalMetadata(ad.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO advertisements (advertisement_id, subject, address_to, department_name, bearing_no,
		                            user_ref, status_caseworker, status_deputy, status_fao, status_vendor,
		                            invoice_deputy, is_caseworker, is_deputy, is_fao, is_vendor, is_draft,
		                            alloted_newspapers, caseworker_draft_newspapers, approved_newspapers_local,
		                            date_of_application, release_order_no, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		ad.AdvertisementID,
		ad.Subject,
		ad.AddressTo,
		ad.DepartmentName,
		ad.BearingNo,
		ad.UserRef,
		ad.StatusCaseworker,
		ad.StatusDeputy,
		ad.StatusFao,
		ad.StatusVendor,
		ad.InvoiceDeputy,
		ad.IsCaseWorker,
		ad.IsDeputy,
		ad.IsFao,
		ad.IsVendor,
		ad.IsDraft,
		nonNil(ad.AllotedNewspapers),
		nonNil(ad.CaseworkerDraftNewspapers),
		nonNil(ad.ApprovedNewspapersLocal),
		ad.DateOfApplication,
		ad.ReleaseOrderNo,
		metadataJSON,
	).Scan(&ad.ID, &ad.CreatedAt, &ad.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create advertisement")
	}

	if ad.AdvertisementID == "" {
		ad.AdvertisementID = ad.ID
		if _, err := r.db.Exec(ctx, `UPDATE advertisements SET advertisement_id = id WHERE id = $1`, ad.ID); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to set advertisement id")
		}
	}
	return nil
}

// GetByID retrieves an advertisement by ID
func (r *AdvertisementRepository) GetByID(ctx context.Context, id string) (*Advertisement, error) {
	query := `SELECT ` + advertisementColumns + ` FROM advertisements WHERE id = $1`

	ad, err := scanAdvertisement(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("advertisement", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get advertisement")
	}
	return ad, nil
}

// List retrieves advertisements with filtering and pagination
func (r *AdvertisementRepository) List(ctx context.Context, f AdvertisementFilter) ([]*Advertisement, int64, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 1

	if f.UserRef != nil {
		where += fmt.Sprintf(" AND user_ref = $%d", argCount)
		args = append(args, *f.UserRef)
		argCount++
	}
	if f.DepartmentName != nil {
		where += fmt.Sprintf(" AND department_name = $%d", argCount)
		args = append(args, *f.DepartmentName)
		argCount++
	}
	if f.IsDraft != nil {
		where += fmt.Sprintf(" AND is_draft = $%d", argCount)
		args = append(args, *f.IsDraft)
		argCount++
	}
	if f.StatusDeputy != nil {
		where += fmt.Sprintf(" AND status_deputy = $%d", argCount)
		args = append(args, *f.StatusDeputy)
		argCount++
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM advertisements`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count advertisements")
	}

	query := `SELECT ` + advertisementColumns + ` FROM advertisements` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)

	rows, err := r.db.Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list advertisements")
	}
	defer rows.Close()

	ads, err := scanAdvertisements(rows)
	if err != nil {
		return nil, 0, err
	}
	return ads, total, nil
}

// ListApprovedBetween returns advertisements approved by the deputy or sent to
// newspapers with a release order dated in [from, to).
func (r *AdvertisementRepository) ListApprovedBetween(ctx context.Context, from, to time.Time) ([]*Advertisement, error) {
	query := `SELECT ` + advertisementColumns + `
		FROM advertisements
		WHERE (status_deputy = $1 OR status_caseworker = $2)
		  AND COALESCE(date_of_approval, ro_date) >= $3
		  AND COALESCE(date_of_approval, ro_date) < $4
		ORDER BY COALESCE(date_of_approval, ro_date)`

	rows, err := r.db.Query(ctx, query, DeputyApproved, CaseworkerSentToNewspaper, from, to)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approved advertisements")
	}
	defer rows.Close()

	return scanAdvertisements(rows)
}

// Update locks the advertisement, applies fn and persists the result. When
// approvedCW is non-nil every allocation of the advertisement is set to it in
// the same transaction. It returns the state before and after fn.
func (r *AdvertisementRepository) Update(ctx context.Context, id string, approvedCW *bool, fn func(ad *Advertisement) error) (*Advertisement, *Advertisement, error) {
	var before, after *Advertisement

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		ad, err := lockAdvertisement(ctx, tx, id)
		if err != nil {
			return err
		}
		before = ad.Clone()

		if err := fn(ad); err != nil {
			return err
		}
		if err := writeAdvertisement(ctx, tx, ad); err != nil {
			return err
		}

		if approvedCW != nil {
			_, err := tx.Exec(ctx, `
				UPDATE newspaper_job_allocations
				SET approved_cw = $2, updated_at = now()
				WHERE ad_ref = $1`, id, *approvedCW)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to update allocations")
			}
		}

		after = ad
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// ── tx helpers ────────────────────────────────────────────────────────────────

func lockAdvertisement(ctx context.Context, tx pgx.Tx, id string) (*Advertisement, error) {
	query := `SELECT ` + advertisementColumns + ` FROM advertisements WHERE id = $1 FOR UPDATE`

	ad, err := scanAdvertisement(tx.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("advertisement", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to lock advertisement")
	}
	return ad, nil
}

func writeAdvertisement(ctx context.Context, tx pgx.Tx, ad *Advertisement) error {
	metadataJSON, err := marshalMetadata(ad.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE advertisements
		SET subject = $2, address_to = $3, department_name = $4, bearing_no = $5, user_ref = $6,
		    status_caseworker = $7, status_deputy = $8, status_fao = $9, status_vendor = $10,
		    invoice_deputy = $11, is_caseworker = $12, is_deputy = $13, is_fao = $14, is_vendor = $15,
		    is_draft = $16, alloted_newspapers = $17, caseworker_draft_newspapers = $18,
		    approved_newspapers_local = $19, date_of_application = $20, date_of_approval = $21,
		    date_of_rejection = $22, ro_date = $23, release_order_no = $24, is_request_pending = $25,
		    manually_allotted = $26, invoice_refs = $27, deputy_feedback = $28, metadata = $29,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err = tx.QueryRow(ctx, query,
		ad.ID,
		ad.Subject,
		ad.AddressTo,
		ad.DepartmentName,
		ad.BearingNo,
		ad.UserRef,
		ad.StatusCaseworker,
		ad.StatusDeputy,
		ad.StatusFao,
		ad.StatusVendor,
		ad.InvoiceDeputy,
		ad.IsCaseWorker,
		ad.IsDeputy,
		ad.IsFao,
		ad.IsVendor,
		ad.IsDraft,
		nonNil(ad.AllotedNewspapers),
		nonNil(ad.CaseworkerDraftNewspapers),
		nonNil(ad.ApprovedNewspapersLocal),
		ad.DateOfApplication,
		ad.DateOfApproval,
		ad.DateOfRejection,
		ad.RODate,
		ad.ReleaseOrderNo,
		ad.IsRequestPending,
		ad.ManuallyAllotted,
		nonNil(ad.InvoiceRefs),
		ad.DeputyFeedback,
		metadataJSON,
	).Scan(&ad.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update advertisement")
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdvertisements(rows pgx.Rows) ([]*Advertisement, error) {
	ads := make([]*Advertisement, 0)
	for rows.Next() {
		ad, err := scanAdvertisement(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan advertisement")
		}
		ads = append(ads, ad)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read advertisements")
	}
	return ads, nil
}

// scanAdvertisement returns the raw scan error so callers can detect pgx.ErrNoRows.
func scanAdvertisement(sc rowScanner) (*Advertisement, error) {
	ad := &Advertisement{}
	var metadataJSON []byte

	err := sc.Scan(
		&ad.ID,
		&ad.AdvertisementID,
		&ad.Subject,
		&ad.AddressTo,
		&ad.DepartmentName,
		&ad.BearingNo,
		&ad.UserRef,
		&ad.StatusCaseworker,
		&ad.StatusDeputy,
		&ad.StatusFao,
		&ad.StatusVendor,
		&ad.InvoiceDeputy,
		&ad.IsCaseWorker,
		&ad.IsDeputy,
		&ad.IsFao,
		&ad.IsVendor,
		&ad.IsDraft,
		&ad.AllotedNewspapers,
		&ad.CaseworkerDraftNewspapers,
		&ad.ApprovedNewspapersLocal,
		&ad.DateOfApplication,
		&ad.DateOfApproval,
		&ad.DateOfRejection,
		&ad.RODate,
		&ad.ReleaseOrderNo,
		&ad.IsRequestPending,
		&ad.ManuallyAllotted,
		&ad.InvoiceRefs,
		&ad.DeputyFeedback,
		&metadataJSON,
		&ad.CreatedAt,
		&ad.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &ad.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal advertisement metadata")
		}
	}
	return ad, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal metadata")
	}
	return data, nil
}

// nonNil keeps NOT NULL array columns from receiving SQL NULL.
func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
