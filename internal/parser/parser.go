package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/stwalsh4118/schoolmap/api/internal/models"
)

// Format labels returned by Parse.
const (
	FormatHeadered   = "headered"
	FormatPositional = "positional"
)

// minHeaderedTokens is the minimum token count for a data line on the
// headered path; shorter lines are treated as noise and skipped.
const minHeaderedTokens = 5

var (
	// schoolYearPattern detects the headerless format: its first line
	// starts with a school year like 2023-2024, optionally quoted.
	schoolYearPattern = regexp.MustCompile(`^"?\d{4}-\d{4}`)

	// sciNotationPattern matches identifiers that were round-tripped
	// through spreadsheet software, e.g. 2.91107E+11.
	sciNotationPattern = regexp.MustCompile(`(?i)^(\d+\.?\d*)E\+(\d+)$`)
)

// Parse turns raw CSV text into SchoolRow records. It detects which of
// the two physical layouts is present and returns the format label
// alongside the rows. Malformed, short, or nameless lines are dropped,
// never errored; the only error condition is a headerless file whose
// column count does not match the expected positional schema.
func Parse(text string) ([]models.SchoolRow, string, error) {
	lines := splitLines(text)
	if len(lines) == 0 {
		return []models.SchoolRow{}, FormatHeadered, nil
	}

	if schoolYearPattern.MatchString(lines[0]) {
		rows, err := parsePositional(lines)
		return rows, FormatPositional, err
	}

	return parseHeadered(lines), FormatHeadered, nil
}

// splitLines splits the input into non-blank lines, tolerating CRLF.
func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// splitCSVLine tokenizes one CSV line with a single left-to-right scan.
// It toggles quoting on '"', treats "" inside quotes as a literal quote,
// and only splits on commas outside quotes. Fields legitimately contain
// embedded commas, so a plain strings.Split is not an option here.
func splitCSVLine(line string) []string {
	fields := make([]string, 0, 24)
	var sb strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				sb.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == ',' && !inQuotes:
			fields = append(fields, sb.String())
			sb.Reset()
		default:
			sb.WriteByte(c)
		}
	}
	fields = append(fields, sb.String())

	return fields
}

// repairIdentifier trims a raw identifier field and converts
// scientific-notation values back to their full decimal integer string.
// Values not matching the pattern pass through unchanged after trimming.
func repairIdentifier(raw string) string {
	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))

	m := sciNotationPattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}

	base, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return s
	}
	exp, err := strconv.Atoi(m[2])
	if err != nil || exp > 300 {
		return s
	}

	return strconv.FormatFloat(math.Round(base*math.Pow(10, float64(exp))), 'f', -1, 64)
}

// parseCoordinate parses a latitude/longitude field tolerantly. Empty or
// non-numeric values yield nil, never NaN.
func parseCoordinate(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// parsePositional maps every line's tokens by fixed column index. The
// first data line is checked against the expected column count so a
// silent schema change by the producer fails loudly instead of
// mis-mapping fields.
func parsePositional(lines []string) ([]models.SchoolRow, error) {
	first := splitCSVLine(lines[0])
	if len(first) < positionalMinColumns {
		return nil, fmt.Errorf("positional format schema mismatch: expected at least %d columns, got %d", positionalMinColumns, len(first))
	}

	rows := make([]models.SchoolRow, 0, len(lines))
	for _, line := range lines {
		tokens := splitCSVLine(line)
		if len(tokens) < positionalMinColumns {
			continue
		}

		name := strings.TrimSpace(tokens[positionalColumns.Name])
		if name == "" {
			continue
		}

		cols := positionalColumns
		rows = append(rows, models.SchoolRow{
			NCESID:            repairIdentifier(tokenAt(tokens, cols.NCESID)),
			Name:              name,
			State:             strings.TrimSpace(tokenAt(tokens, cols.State)),
			StateName:         strings.TrimSpace(tokenAt(tokens, cols.StateName)),
			City:              strings.TrimSpace(tokenAt(tokens, cols.City)),
			Address:           strings.TrimSpace(tokenAt(tokens, cols.Address)),
			Zip:               strings.TrimSpace(tokenAt(tokens, cols.Zip)),
			Phone:             strings.TrimSpace(tokenAt(tokens, cols.Phone)),
			Website:           strings.TrimSpace(tokenAt(tokens, cols.Website)),
			Level:             strings.TrimSpace(tokenAt(tokens, cols.Level)),
			SchoolType:        strings.TrimSpace(tokenAt(tokens, cols.SchoolType)),
			OperationalStatus: strings.TrimSpace(tokenAt(tokens, cols.OperationalStatus)),
			DistrictNCESID:    repairIdentifier(tokenAt(tokens, cols.DistrictNCESID)),
			DistrictName:      strings.TrimSpace(tokenAt(tokens, cols.DistrictName)),
			County:            strings.TrimSpace(tokenAt(tokens, cols.County)),
			Latitude:          parseCoordinate(tokenAt(tokens, cols.Latitude)),
			Longitude:         parseCoordinate(tokenAt(tokens, cols.Longitude)),
			SchoolYear:        strings.TrimSpace(tokenAt(tokens, cols.SchoolYear)),
			SYStatus:          strings.TrimSpace(tokenAt(tokens, cols.SYStatus)),
			CharterStatus:     strings.TrimSpace(tokenAt(tokens, cols.CharterStatus)),
			MagnetStatus:      strings.TrimSpace(tokenAt(tokens, cols.MagnetStatus)),
			VirtualStatus:     strings.TrimSpace(tokenAt(tokens, cols.VirtualStatus)),
			Title1Status:      strings.TrimSpace(tokenAt(tokens, cols.Title1Status)),
		})
	}

	return rows, nil
}

// parseHeadered tokenizes the first line into a header→index map and
// pulls each subsequent line's fields by header name, trying the ordered
// alias list per logical field.
func parseHeadered(lines []string) []models.SchoolRow {
	header := buildHeaderIndex(splitCSVLine(lines[0]))

	rows := make([]models.SchoolRow, 0, len(lines)-1)
	for _, line := range lines[1:] {
		tokens := splitCSVLine(line)
		if len(tokens) < minHeaderedTokens {
			continue
		}

		name := lookupField(tokens, header, fieldAliases.Name)
		if name == "" {
			continue
		}

		rows = append(rows, models.SchoolRow{
			NCESID:            repairIdentifier(lookupField(tokens, header, fieldAliases.NCESID)),
			Name:              name,
			State:             lookupField(tokens, header, fieldAliases.State),
			StateName:         lookupField(tokens, header, fieldAliases.StateName),
			City:              lookupField(tokens, header, fieldAliases.City),
			Address:           lookupField(tokens, header, fieldAliases.Address),
			Zip:               lookupField(tokens, header, fieldAliases.Zip),
			Phone:             lookupField(tokens, header, fieldAliases.Phone),
			Website:           lookupField(tokens, header, fieldAliases.Website),
			Level:             lookupField(tokens, header, fieldAliases.Level),
			SchoolType:        lookupField(tokens, header, fieldAliases.SchoolType),
			OperationalStatus: lookupField(tokens, header, fieldAliases.OperationalStatus),
			DistrictNCESID:    repairIdentifier(lookupField(tokens, header, fieldAliases.DistrictNCESID)),
			DistrictName:      lookupField(tokens, header, fieldAliases.DistrictName),
			County:            lookupField(tokens, header, fieldAliases.County),
			Latitude:          parseCoordinate(lookupField(tokens, header, fieldAliases.Latitude)),
			Longitude:         parseCoordinate(lookupField(tokens, header, fieldAliases.Longitude)),
			SchoolYear:        lookupField(tokens, header, fieldAliases.SchoolYear),
			SYStatus:          lookupField(tokens, header, fieldAliases.SYStatus),
			CharterStatus:     lookupField(tokens, header, fieldAliases.CharterStatus),
			MagnetStatus:      lookupField(tokens, header, fieldAliases.MagnetStatus),
			VirtualStatus:     lookupField(tokens, header, fieldAliases.VirtualStatus),
			Title1Status:      lookupField(tokens, header, fieldAliases.Title1Status),
		})
	}

	return rows
}

// buildHeaderIndex maps uppercased, trimmed header names to their column
// index. The first occurrence of a duplicated header wins.
func buildHeaderIndex(headerTokens []string) map[string]int {
	index := make(map[string]int, len(headerTokens))
	for i, tok := range headerTokens {
		name := strings.ToUpper(strings.TrimSpace(strings.Trim(strings.TrimSpace(tok), `"`)))
		if name == "" {
			continue
		}
		if _, exists := index[name]; !exists {
			index[name] = i
		}
	}
	return index
}

// lookupField returns the trimmed value of the first alias present in the
// header map, or "" when none match or the line is too short.
func lookupField(tokens []string, header map[string]int, aliases []string) string {
	for _, alias := range aliases {
		idx, ok := header[alias]
		if !ok {
			continue
		}
		return strings.TrimSpace(tokenAt(tokens, idx))
	}
	return ""
}

// tokenAt returns tokens[idx] or "" when the line is too short.
func tokenAt(tokens []string, idx int) string {
	if idx < 0 || idx >= len(tokens) {
		return ""
	}
	return tokens[idx]
}
