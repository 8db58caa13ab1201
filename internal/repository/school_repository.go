package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stwalsh4118/schoolmap/api/internal/database"
	"github.com/stwalsh4118/schoolmap/api/internal/models"
)

// SchoolInsert is one school row ready for persistence: the source record
// plus its resolved internal district id. A nil DistrictID is accepted —
// a school whose district never appeared in any chunk persists unlinked.
type SchoolInsert struct {
	Row        models.SchoolRow
	DistrictID *int64
}

// SchoolRepository defines the interface for school data access operations.
type SchoolRepository interface {
	// InsertBatch bulk-inserts the given schools. Plain insert, not
	// upsert: duplicate schools across runs are accepted as-is.
	InsertBatch(ctx context.Context, schools []SchoolInsert) error
}

// schoolRepository is the concrete implementation of SchoolRepository.
type schoolRepository struct {
	db *database.Database
}

// NewSchoolRepository creates a new instance of SchoolRepository.
func NewSchoolRepository(db *database.Database) SchoolRepository {
	return &schoolRepository{
		db: db,
	}
}

var schoolInsertColumns = []string{
	"nces_id", "name", "state", "state_name", "city", "address", "zip",
	"phone", "website", "level", "school_type", "operational_status",
	"district_id", "district_nces_id", "district_name", "county",
	"latitude", "longitude", "school_year", "sy_status", "charter_status",
	"magnet_status", "virtual_status", "title1_status",
}

// InsertBatch streams the rows with COPY, which is the cheapest way to
// land a few hundred rows per write call.
func (r *schoolRepository) InsertBatch(ctx context.Context, schools []SchoolInsert) error {
	if len(schools) == 0 {
		return nil
	}

	_, err := r.db.Pool.CopyFrom(
		ctx,
		pgx.Identifier{"schools"},
		schoolInsertColumns,
		pgx.CopyFromSlice(len(schools), func(i int) ([]interface{}, error) {
			s := schools[i]
			row := s.Row
			return []interface{}{
				nullableText(row.NCESID),
				row.Name,
				nullableText(row.State),
				nullableText(row.StateName),
				nullableText(row.City),
				nullableText(row.Address),
				nullableText(row.Zip),
				nullableText(row.Phone),
				nullableText(row.Website),
				nullableText(row.Level),
				nullableText(row.SchoolType),
				nullableText(row.OperationalStatus),
				s.DistrictID,
				nullableText(row.DistrictNCESID),
				nullableText(row.DistrictName),
				nullableText(row.County),
				row.Latitude,
				row.Longitude,
				nullableText(row.SchoolYear),
				nullableText(row.SYStatus),
				nullableText(row.CharterStatus),
				nullableText(row.MagnetStatus),
				nullableText(row.VirtualStatus),
				nullableText(row.Title1Status),
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %d schools: %w", len(schools), err)
	}

	return nil
}

// nullableText maps empty source fields to NULL instead of empty strings.
func nullableText(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
