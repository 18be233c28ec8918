package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dipr-ads/be-release-orders/internal/database"
	"github.com/dipr-ads/be-release-orders/internal/errors"
)

// JobLogicRepository reads and maintains the allocation singleton.
type JobLogicRepository struct {
	db *database.DB
}

// NewJobLogicRepository creates a new job logic repository
func NewJobLogicRepository(db *database.DB) *JobLogicRepository {
	return &JobLogicRepository{db: db}
}

// Get returns the job logic singleton.
func (r *JobLogicRepository) Get(ctx context.Context) (*JobLogic, error) {
	jl := &JobLogic{}
	err := r.db.QueryRow(ctx, `
		SELECT id, ro_numbers, waiting_queue, updated_at
		FROM job_logic WHERE id = $1`, SingletonID,
	).Scan(&jl.ID, &jl.RONumbers, &jl.WaitingQueue, &jl.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("job logic", SingletonID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get job logic")
	}
	return jl, nil
}

// SetWaitingQueue replaces the round-robin vendor queue.
func (r *JobLogicRepository) SetWaitingQueue(ctx context.Context, queue []string) (*JobLogic, error) {
	var jl *JobLogic
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		locked, err := lockJobLogic(ctx, tx)
		if err != nil {
			return err
		}
		locked.WaitingQueue = queue
		if err := writeJobLogic(ctx, tx, locked); err != nil {
			return err
		}
		jl = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jl, nil
}

func lockJobLogic(ctx context.Context, tx pgx.Tx) (*JobLogic, error) {
	jl := &JobLogic{}
	err := tx.QueryRow(ctx, `
		SELECT id, ro_numbers, waiting_queue, updated_at
		FROM job_logic WHERE id = $1 FOR UPDATE`, SingletonID,
	).Scan(&jl.ID, &jl.RONumbers, &jl.WaitingQueue, &jl.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("job logic", SingletonID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to lock job logic")
	}
	return jl, nil
}

func writeJobLogic(ctx context.Context, tx pgx.Tx, jl *JobLogic) error {
	err := tx.QueryRow(ctx, `
		UPDATE job_logic
		SET ro_numbers = $2, waiting_queue = $3, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		jl.ID, jl.RONumbers, nonNil(jl.WaitingQueue),
	).Scan(&jl.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update job logic")
	}
	return nil
}
