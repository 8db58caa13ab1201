package models

// DistrictData is the parent-district entity derived from school rows.
// It is keyed by the external NCES identifier; the internal database id
// only exists after the district has been upserted.
type DistrictData struct {
	NCESID    string `json:"nces_id"`
	Name      string `json:"name,omitempty"`
	State     string `json:"state,omitempty"`
	StateName string `json:"state_name,omitempty"`
}
