package models

// SchoolRow represents one school record as extracted from a source CSV,
// before persistence. All fields except Name are optional; empty strings
// mean the source column was absent or blank. Latitude/Longitude use
// pointers to distinguish missing coordinates from zero values.
type SchoolRow struct {
	NCESID            string   `json:"nces_id,omitempty"`
	Name              string   `json:"name"`
	State             string   `json:"state,omitempty"`
	StateName         string   `json:"state_name,omitempty"`
	City              string   `json:"city,omitempty"`
	Address           string   `json:"address,omitempty"`
	Zip               string   `json:"zip,omitempty"`
	Phone             string   `json:"phone,omitempty"`
	Website           string   `json:"website,omitempty"`
	Level             string   `json:"level,omitempty"`
	SchoolType        string   `json:"school_type,omitempty"`
	OperationalStatus string   `json:"operational_status,omitempty"`
	DistrictNCESID    string   `json:"district_nces_id,omitempty"`
	DistrictName      string   `json:"district_name,omitempty"`
	County            string   `json:"county,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	SchoolYear        string   `json:"school_year,omitempty"`
	SYStatus          string   `json:"sy_status,omitempty"`
	CharterStatus     string   `json:"charter_status,omitempty"`
	MagnetStatus      string   `json:"magnet_status,omitempty"`
	VirtualStatus     string   `json:"virtual_status,omitempty"`
	Title1Status      string   `json:"title1_status,omitempty"`
}

// StatusKey returns the key used for the ledger's status breakdown:
// the school-year status when present, then the operational status,
// then "Unknown".
func (r *SchoolRow) StatusKey() string {
	if r.SYStatus != "" {
		return r.SYStatus
	}
	if r.OperationalStatus != "" {
		return r.OperationalStatus
	}
	return "Unknown"
}

// StateKey returns the key used for the ledger's state breakdown,
// falling back to "Unknown" for rows without a state.
func (r *SchoolRow) StateKey() string {
	if r.State != "" {
		return r.State
	}
	return "Unknown"
}
