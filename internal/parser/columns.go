package parser

// positionalLayout names the fixed zero-based column indexes of the
// headerless export format. The mapping is a contract with the producer
// of those files; do not reorder without coordinating a schema version
// bump on their side.
type positionalLayout struct {
	SchoolYear        int
	StateName         int
	County            int
	State             int
	Name              int
	Level             int
	SchoolType        int
	OperationalStatus int
	DistrictName      int
	DistrictNCESID    int
	SYStatus          int
	NCESID            int
	CharterStatus     int
	MagnetStatus      int
	VirtualStatus     int
	Title1Status      int
	City              int
	Address           int
	Zip               int
	Phone             int
	Website           int
	Latitude          int
	Longitude         int
}

var positionalColumns = positionalLayout{
	SchoolYear:        0,
	StateName:         1,
	County:            2,
	State:             3,
	Name:              4,
	Level:             5,
	SchoolType:        6,
	OperationalStatus: 7,
	DistrictName:      8,
	DistrictNCESID:    9,
	SYStatus:          10,
	NCESID:            11,
	CharterStatus:     12,
	MagnetStatus:      13,
	VirtualStatus:     14,
	Title1Status:      15,
	City:              16,
	Address:           17,
	Zip:               18,
	Phone:             19,
	Website:           20,
	Latitude:          21,
	Longitude:         22,
}

// positionalMinColumns is the schema sniff for the headerless format: a
// first data line with fewer columns than this means the producer changed
// its layout, and the parse fails loudly instead of silently mis-mapping.
const positionalMinColumns = 17

// fieldAliases lists the recognized header names per logical field for the
// headered format, in priority order. Header cells are uppercased and
// trimmed before lookup, so aliases are listed uppercase.
var fieldAliases = struct {
	NCESID            []string
	Name              []string
	State             []string
	StateName         []string
	City              []string
	Address           []string
	Zip               []string
	Phone             []string
	Website           []string
	Level             []string
	SchoolType        []string
	OperationalStatus []string
	DistrictNCESID    []string
	DistrictName      []string
	County            []string
	Latitude          []string
	Longitude         []string
	SchoolYear        []string
	SYStatus          []string
	CharterStatus     []string
	MagnetStatus      []string
	VirtualStatus     []string
	Title1Status      []string
}{
	NCESID:            []string{"NCESSCH", "SCHOOLID", "SCHOOL_ID"},
	Name:              []string{"SCH_NAME", "SCHOOL_NAME", "NAME"},
	State:             []string{"ST", "STATE", "STABR", "LSTATE"},
	StateName:         []string{"STATE_NAME", "STATENAME", "ST_NAME"},
	City:              []string{"LCITY", "CITY", "MCITY"},
	Address:           []string{"LSTREET1", "ADDRESS", "STREET"},
	Zip:               []string{"LZIP", "ZIP", "ZIPCODE"},
	Phone:             []string{"PHONE", "LPHONE"},
	Website:           []string{"WEBSITE", "SCHOOL_URL", "URL"},
	Level:             []string{"LEVEL", "SCH_LEVEL", "SCHOOL_LEVEL"},
	SchoolType:        []string{"SCH_TYPE_TEXT", "SCH_TYPE", "SCHOOL_TYPE"},
	OperationalStatus: []string{"UPDATED_STATUS_TEXT", "UPDATED_STATUS", "OPSTATUS", "STATUS"},
	DistrictNCESID:    []string{"LEAID", "LEA_ID", "DISTRICT_ID"},
	DistrictName:      []string{"LEA_NAME", "DISTRICT_NAME", "DISTRICT"},
	County:            []string{"NMCNTY", "COUNTY", "COUNTY_NAME"},
	Latitude:          []string{"LAT", "LATITUDE", "LATCOD"},
	Longitude:         []string{"LON", "LONGITUDE", "LONCOD", "LONG"},
	SchoolYear:        []string{"SCHOOL_YEAR", "SY", "YEAR"},
	SYStatus:          []string{"SY_STATUS_TEXT", "SY_STATUS"},
	CharterStatus:     []string{"CHARTER_TEXT", "CHARTER"},
	MagnetStatus:      []string{"MAGNET_TEXT", "MAGNET"},
	VirtualStatus:     []string{"VIRTUAL_TEXT", "VIRTUAL"},
	Title1Status:      []string{"TITLEI_STATUS_TEXT", "TITLEI", "TITLE1"},
}
