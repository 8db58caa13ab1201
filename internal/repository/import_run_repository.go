package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stwalsh4118/schoolmap/api/internal/database"
	"github.com/stwalsh4118/schoolmap/api/internal/models"
)

// ErrRunNotFound is returned by Status when no ledger row exists for the
// given id, distinguishing a missing run from a query failure.
var ErrRunNotFound = errors.New("import run not found")

// ImportRunRepository defines the interface for import ledger operations.
type ImportRunRepository interface {
	// Create inserts a new pending run and returns it.
	Create(ctx context.Context) (*models.ImportRun, error)

	// Get returns the run by id.
	// Returns nil, nil if no run is found (not an error).
	Get(ctx context.Context, id uuid.UUID) (*models.ImportRun, error)

	// Status reads only the run's status column. Used by the coordinator
	// for the cancellation check at each chunk boundary. Returns
	// ErrRunNotFound when no such run exists.
	Status(ctx context.Context, id uuid.UUID) (string, error)

	// Start transitions pending -> in_progress. Calling it on a run that
	// is already in progress is a no-op.
	Start(ctx context.Context, id uuid.UUID) error

	// MergeProgress applies one chunk's counter delta additively. The
	// merge happens entirely inside a single conditional UPDATE so it is
	// atomic at the database and only runs while the run is in progress.
	MergeProgress(ctx context.Context, id uuid.UUID, delta models.ProgressDelta) error

	// Complete transitions in_progress -> completed and stamps
	// completed_at. It can never overwrite a cancellation.
	Complete(ctx context.Context, id uuid.UUID) error

	// Fail transitions the run to failed and stamps completed_at.
	Fail(ctx context.Context, id uuid.UUID) error

	// Cancel marks a pending or in-progress run cancelled. Returns true
	// if the cancellation was applied, false if the run was already
	// terminal.
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
}

// importRunRepository is the concrete implementation of ImportRunRepository.
type importRunRepository struct {
	db *database.Database
}

// NewImportRunRepository creates a new instance of ImportRunRepository.
func NewImportRunRepository(db *database.Database) ImportRunRepository {
	return &importRunRepository{
		db: db,
	}
}

const importRunColumns = `
	id, status, rows_inserted, districts_processed, error_count,
	status_breakdown, state_breakdown, completed_at, created_at, updated_at
`

func (r *importRunRepository) Create(ctx context.Context) (*models.ImportRun, error) {
	query := `
		INSERT INTO import_runs (
			id, status, rows_inserted, districts_processed, error_count,
			status_breakdown, state_breakdown, created_at, updated_at
		) VALUES ($1, $2, 0, 0, 0, '{}'::jsonb, '{}'::jsonb, NOW(), NOW())
		RETURNING ` + importRunColumns

	row := r.db.Pool.QueryRow(ctx, query, uuid.New(), models.StatusPending)
	run, err := scanImportRun(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create import run: %w", err)
	}
	return run, nil
}

func (r *importRunRepository) Get(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	query := `SELECT ` + importRunColumns + ` FROM import_runs WHERE id = $1`

	run, err := scanImportRun(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query import run %s: %w", id, err)
	}
	return run, nil
}

func (r *importRunRepository) Status(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := r.db.Pool.QueryRow(ctx, "SELECT status FROM import_runs WHERE id = $1", id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return "", fmt.Errorf("failed to read status of import run %s: %w", id, err)
	}
	return status, nil
}

func (r *importRunRepository) Start(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE import_runs
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`
	if _, err := r.db.Pool.Exec(ctx, query, id, models.StatusInProgress, models.StatusPending); err != nil {
		return fmt.Errorf("failed to start import run %s: %w", id, err)
	}
	return nil
}

// MergeProgress folds the delta's breakdown maps into the stored jsonb by
// re-aggregating the union of entries, and bumps the scalar counters, all
// in one statement. The WHERE clause keeps a merge from ever touching a
// cancelled or completed run.
func (r *importRunRepository) MergeProgress(ctx context.Context, id uuid.UUID, delta models.ProgressDelta) error {
	query := `
		UPDATE import_runs SET
			rows_inserted = rows_inserted + $2,
			districts_processed = districts_processed + $3,
			error_count = error_count + $4,
			status_breakdown = (
				SELECT COALESCE(jsonb_object_agg(key, total), '{}'::jsonb)
				FROM (
					SELECT key, SUM(value::bigint) AS total
					FROM (
						SELECT * FROM jsonb_each_text(import_runs.status_breakdown)
						UNION ALL
						SELECT * FROM jsonb_each_text($5::jsonb)
					) entries
					GROUP BY key
				) merged
			),
			state_breakdown = (
				SELECT COALESCE(jsonb_object_agg(key, total), '{}'::jsonb)
				FROM (
					SELECT key, SUM(value::bigint) AS total
					FROM (
						SELECT * FROM jsonb_each_text(import_runs.state_breakdown)
						UNION ALL
						SELECT * FROM jsonb_each_text($6::jsonb)
					) entries
					GROUP BY key
				) merged
			),
			updated_at = NOW()
		WHERE id = $1 AND status = $7
	`

	statusBreakdown := delta.StatusBreakdown
	if statusBreakdown == nil {
		statusBreakdown = map[string]int{}
	}
	stateBreakdown := delta.StateBreakdown
	if stateBreakdown == nil {
		stateBreakdown = map[string]int{}
	}

	_, err := r.db.Pool.Exec(ctx, query,
		id,
		delta.RowsInserted,
		delta.DistrictsProcessed,
		delta.ErrorCount,
		statusBreakdown,
		stateBreakdown,
		models.StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to merge progress for import run %s: %w", id, err)
	}
	return nil
}

func (r *importRunRepository) Complete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE import_runs
		SET status = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3
	`
	if _, err := r.db.Pool.Exec(ctx, query, id, models.StatusCompleted, models.StatusInProgress); err != nil {
		return fmt.Errorf("failed to complete import run %s: %w", id, err)
	}
	return nil
}

func (r *importRunRepository) Fail(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE import_runs
		SET status = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
	`
	if _, err := r.db.Pool.Exec(ctx, query, id, models.StatusFailed, models.StatusPending, models.StatusInProgress); err != nil {
		return fmt.Errorf("failed to mark import run %s failed: %w", id, err)
	}
	return nil
}

func (r *importRunRepository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE import_runs
		SET status = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, models.StatusCancelled, models.StatusPending, models.StatusInProgress)
	if err != nil {
		return false, fmt.Errorf("failed to cancel import run %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// scanImportRun scans one ledger row. The breakdown jsonb columns decode
// straight into the Go maps via pgx's JSON codec.
func scanImportRun(row pgx.Row) (*models.ImportRun, error) {
	var run models.ImportRun
	err := row.Scan(
		&run.ID,
		&run.Status,
		&run.RowsInserted,
		&run.DistrictsProcessed,
		&run.ErrorCount,
		&run.StatusBreakdown,
		&run.StateBreakdown,
		&run.CompletedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
