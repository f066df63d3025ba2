package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/daniela2708/ganaderia/pkg/census"
	"github.com/daniela2708/ganaderia/pkg/names"
)

// Logical fields and the headers they are read from by default.
var animalColumns = map[string]string{
	"animal_type":       "TIPO ANIMAL",
	"department":        "DEPARTAMENTO",
	"municipality":      "MUNICIPIO",
	"municipality_code": "CODIGO MUNICIPIO",
	"year":              "AÑO",
	"is_calf":           "TERNERO",
	"sex":               "SEXO",
	"age_range":         "RANGO EDAD",
	"total_head_count":  "TOTAL BOVINOS",
}

var farmColumns = map[string]string{
	"type":              "TIPO",
	"department":        "DEPARTAMENTO",
	"municipality":      "MUNICIPIO",
	"municipality_code": "CODIGO MUNICIPIO",
	"year":              "AÑO",
	"farm_size":         "TAMAÑO FINCA",
	"total_farm_count":  "TOTAL FINCAS",
}

// ParseStats reports what one table parse did.
type ParseStats struct {
	Rows    int `json:"rows"`
	Skipped int `json:"skipped"`
	// Merged counts distinct raw spellings that the normalizer mapped onto a
	// different canonical name.
	Merged int `json:"merged"`
}

// table is a header-indexed CSV reader.
type table struct {
	r   *csv.Reader
	idx map[string]int
}

func openTable(src io.Reader, format FormatSpec, columns map[string]string, overrides map[string]string, required ...string) (*table, error) {
	if enc := format.Encoding; enc != "" && !isUTF8(enc) {
		e, err := htmlindex.Get(enc)
		if err != nil {
			return nil, fmt.Errorf("unsupported encoding %q: %w", enc, err)
		}
		src = transform.NewReader(src, e.NewDecoder())
	}

	r := csv.NewReader(src)
	if delim := format.Delimiter; delim != "" {
		r.Comma = []rune(delim)[0]
	}
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	byFold := make(map[string]int, len(header))
	for i, h := range header {
		if k := names.Fold(h); k != "" {
			if _, dup := byFold[k]; !dup {
				byFold[k] = i
			}
		}
	}

	t := &table{r: r, idx: make(map[string]int, len(columns))}
	for field, col := range columns {
		if o, ok := overrides[field]; ok && o != "" {
			col = o
		}
		if i, ok := byFold[names.Fold(col)]; ok {
			t.idx[field] = i
		}
	}
	for _, field := range required {
		if _, ok := t.idx[field]; !ok {
			col := columns[field]
			if o := overrides[field]; o != "" {
				col = o
			}
			return nil, fmt.Errorf("column %q not found in header %v", col, header)
		}
	}
	return t, nil
}

// next returns the following row, or io.EOF.
func (t *table) next() ([]string, error) {
	row, err := t.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read row: %w", err)
	}
	return row, nil
}

func (t *table) get(row []string, field string) string {
	i, ok := t.idx[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ParseCount coerces a numeric cell to a non-negative integer. Decimal
// values are truncated; anything unparseable counts as 0.
func ParseCount(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return max(n, 0)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}

// parseYear returns 0 for cells that are not a plausible census year.
func parseYear(s string) int {
	y := ParseCount(s)
	if y < 1900 || y > 9999 {
		return 0
	}
	return int(y)
}

// nameTracker normalizes names and counts raw spellings that merged into a
// different canonical form.
type nameTracker struct {
	set    names.Set
	merged map[string]struct{}
}

func newNameTracker(set names.Set) *nameTracker {
	return &nameTracker{set: set, merged: make(map[string]struct{})}
}

func (n *nameTracker) department(raw string) string {
	out := n.set.Department.Normalize(raw)
	n.track("d:", raw, out)
	return out
}

func (n *nameTracker) municipality(raw string) string {
	out := n.set.Municipality.Normalize(raw)
	n.track("m:", raw, out)
	return out
}

func (n *nameTracker) track(prefix, raw, out string) {
	if titled := names.TitleCase(raw); titled != "" && titled != out {
		n.merged[prefix+raw] = struct{}{}
	}
}

// ParseAnimals reads the consolidated animal table. Rows without a usable
// year are skipped; names are normalized with set.
func ParseAnimals(src io.Reader, m *Manifest, set names.Set) ([]census.AnimalRecord, ParseStats, error) {
	var stats ParseStats
	t, err := openTable(src, m.Format, animalColumns, m.Columns, "department", "year", "total_head_count")
	if err != nil {
		return nil, stats, err
	}
	nt := newNameTracker(set)
	out := make([]census.AnimalRecord, 0, 1024)
	for {
		row, err := t.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("line %d: %w", stats.Rows+stats.Skipped+2, err)
		}
		year := parseYear(t.get(row, "year"))
		if year == 0 {
			stats.Skipped++
			continue
		}
		out = append(out, census.AnimalRecord{
			AnimalType:       t.get(row, "animal_type"),
			Department:       nt.department(t.get(row, "department")),
			Municipality:     nt.municipality(t.get(row, "municipality")),
			MunicipalityCode: t.get(row, "municipality_code"),
			Year:             year,
			IsCalf:           t.get(row, "is_calf"),
			Sex:              names.Category(t.get(row, "sex")),
			AgeRange:         names.Category(t.get(row, "age_range")),
			TotalHeadCount:   ParseCount(t.get(row, "total_head_count")),
		})
		stats.Rows++
	}
	stats.Merged = len(nt.merged)
	return out, stats, nil
}

// ParseFarms reads the consolidated farm table.
func ParseFarms(src io.Reader, m *Manifest, set names.Set) ([]census.FarmRecord, ParseStats, error) {
	var stats ParseStats
	t, err := openTable(src, m.Format, farmColumns, m.Columns, "department", "year", "total_farm_count")
	if err != nil {
		return nil, stats, err
	}
	nt := newNameTracker(set)
	out := make([]census.FarmRecord, 0, 1024)
	for {
		row, err := t.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("line %d: %w", stats.Rows+stats.Skipped+2, err)
		}
		year := parseYear(t.get(row, "year"))
		if year == 0 {
			stats.Skipped++
			continue
		}
		out = append(out, census.FarmRecord{
			Type:             t.get(row, "type"),
			Department:       nt.department(t.get(row, "department")),
			Municipality:     nt.municipality(t.get(row, "municipality")),
			MunicipalityCode: t.get(row, "municipality_code"),
			Year:             year,
			FarmSizeBucket:   t.get(row, "farm_size"),
			TotalFarmCount:   ParseCount(t.get(row, "total_farm_count")),
		})
		stats.Rows++
	}
	stats.Merged = len(nt.merged)
	return out, stats, nil
}

func isUTF8(enc string) bool {
	e := strings.ToLower(strings.ReplaceAll(enc, "-", ""))
	return e == "utf8" || e == ""
}
