package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stwalsh4118/schoolmap/api/internal/database"
	"github.com/stwalsh4118/schoolmap/api/internal/models"
)

// DistrictRepository defines the interface for district data access operations.
type DistrictRepository interface {
	// Upsert inserts or updates the given districts keyed on the external
	// NCES id. A conflict updates the name/state fields in place, so
	// re-running the same chunk is idempotent with respect to row count.
	Upsert(ctx context.Context, districts []models.DistrictData) error

	// IDMap returns the complete mapping from external NCES id to
	// internal district id. Callers re-read the full map per chunk rather
	// than patching incrementally, since districts may have been inserted
	// by a prior run or another chunk of the same upload.
	IDMap(ctx context.Context) (map[string]int64, error)
}

// districtRepository is the concrete implementation of DistrictRepository.
type districtRepository struct {
	db *database.Database
}

// NewDistrictRepository creates a new instance of DistrictRepository.
func NewDistrictRepository(db *database.Database) DistrictRepository {
	return &districtRepository{
		db: db,
	}
}

// Upsert writes all districts in one batched round trip.
func (r *districtRepository) Upsert(ctx context.Context, districts []models.DistrictData) error {
	if len(districts) == 0 {
		return nil
	}

	query := `
		INSERT INTO districts (nces_id, name, state, state_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (nces_id) DO UPDATE SET
			name = EXCLUDED.name,
			state = EXCLUDED.state,
			state_name = EXCLUDED.state_name,
			updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for _, d := range districts {
		batch.Queue(query, d.NCESID, d.Name, d.State, d.StateName)
	}

	results := r.db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, d := range districts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert district %s: %w", d.NCESID, err)
		}
	}

	return nil
}

// IDMap reads every district's nces_id -> id pair.
func (r *districtRepository) IDMap(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Pool.Query(ctx, "SELECT nces_id, id FROM districts")
	if err != nil {
		return nil, fmt.Errorf("failed to query district id map: %w", err)
	}
	defer rows.Close()

	idMap := make(map[string]int64)
	for rows.Next() {
		var ncesID string
		var id int64
		if err := rows.Scan(&ncesID, &id); err != nil {
			return nil, fmt.Errorf("failed to scan district id row: %w", err)
		}
		idMap[ncesID] = id
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating district id rows: %w", err)
	}

	return idMap, nil
}
