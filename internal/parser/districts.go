package parser

import (
	"github.com/stwalsh4118/schoolmap/api/internal/models"
)

// DistrictOptions controls deduplication behavior in ExtractDistricts.
type DistrictOptions struct {
	// Overwrite makes a later row referencing an already-seen district id
	// replace the recorded name/state metadata. The default keeps the
	// first occurrence.
	Overwrite bool
}

// ExtractDistricts derives the de-duplicated set of parent districts
// referenced by the given rows, in first-seen order. Rows without a
// district id contribute nothing.
func ExtractDistricts(rows []models.SchoolRow, opts DistrictOptions) []models.DistrictData {
	districts := make([]models.DistrictData, 0)
	seen := make(map[string]int)

	for _, row := range rows {
		if row.DistrictNCESID == "" {
			continue
		}

		d := models.DistrictData{
			NCESID:    row.DistrictNCESID,
			Name:      row.DistrictName,
			State:     row.State,
			StateName: row.StateName,
		}

		if idx, ok := seen[row.DistrictNCESID]; ok {
			if opts.Overwrite {
				districts[idx] = d
			}
			continue
		}

		seen[row.DistrictNCESID] = len(districts)
		districts = append(districts, d)
	}

	return districts
}
