// Package census aggregates Colombian bovine census records into the
// grouped totals, shares, rankings and year-over-year deltas shown by the
// dashboard.
//
// Every function in this package is pure: inputs are never mutated, outputs
// are freshly allocated, and degenerate input (no records, zero totals)
// yields empty or zero results instead of errors. Callers may run several
// aggregations concurrently over the same slices.
package census

import "github.com/daniela2708/ganaderia/pkg/names"

// Sex values as they appear in the SEXO column.
const (
	Macho  = "MACHO"
	Hembra = "HEMBRA"
)

// Age ranges as they appear in the RANGO EDAD column, youngest first.
const (
	AgeUnder1 = "MENOR A 1 AÑO"
	Age1To2   = "1 - 2 AÑOS"
	Age2To3   = "2 - 3 AÑOS"
	AgeOver3  = "MAYOR A 3 AÑOS"
)

// AgeRanges is the display order of the known age ranges.
var AgeRanges = []string{AgeUnder1, Age1To2, Age2To3, AgeOver3}

// Sexes is the display order of the known sexes.
var Sexes = []string{Macho, Hembra}

// AnimalRecord is one row of the animal census (TOTAL BOVINOS per
// department, municipality, year, sex and age range). Several rows may share
// the same key; they are summed, never overwritten.
type AnimalRecord struct {
	AnimalType       string `json:"animal_type"`
	Department       string `json:"department"`
	Municipality     string `json:"municipality"`
	MunicipalityCode string `json:"municipality_code"`
	Year             int    `json:"year"`
	IsCalf           string `json:"is_calf"`
	Sex              string `json:"sex"`
	AgeRange         string `json:"age_range"`
	TotalHeadCount   int64  `json:"total_head_count"`
}

// FarmRecord is one row of the farm census (TOTAL FINCAS per department,
// municipality, year and farm size bucket).
type FarmRecord struct {
	Type             string `json:"type"`
	Department       string `json:"department"`
	Municipality     string `json:"municipality"`
	MunicipalityCode string `json:"municipality_code"`
	Year             int    `json:"year"`
	FarmSizeBucket   string `json:"farm_size_bucket"`
	TotalFarmCount   int64  `json:"total_farm_count"`
}

// Record is the common view the filters need over both record kinds.
type Record interface {
	RecordYear() int
	RecordDepartment() string
	RecordMunicipality() string
}

func (r AnimalRecord) RecordYear() int            { return r.Year }
func (r AnimalRecord) RecordDepartment() string   { return r.Department }
func (r AnimalRecord) RecordMunicipality() string { return r.Municipality }

func (r FarmRecord) RecordYear() int            { return r.Year }
func (r FarmRecord) RecordDepartment() string   { return r.Department }
func (r FarmRecord) RecordMunicipality() string { return r.Municipality }

// HeadCount is the measure of an animal record. Negative values, which the
// ingestion layer should never produce, count as zero.
func HeadCount(r AnimalRecord) int64 { return nonNegative(r.TotalHeadCount) }

// FarmCount is the measure of a farm record, clamped like HeadCount.
func FarmCount(r FarmRecord) int64 { return nonNegative(r.TotalFarmCount) }

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// GeoKey identifies a municipality within its department. Using a struct
// instead of a joined string keeps names containing separators distinct.
type GeoKey struct {
	Department   string
	Municipality string
}

// DepartmentOf returns the normalized department of a record.
func DepartmentOf[R Record](r R) string {
	return names.Department(r.RecordDepartment())
}

// MunicipalityKeyOf returns the normalized (department, municipality) key.
func MunicipalityKeyOf[R Record](r R) GeoKey {
	return GeoKey{
		Department:   names.Department(r.RecordDepartment()),
		Municipality: names.Municipality(r.RecordMunicipality()),
	}
}

// AgeRangeOf returns the canonical age range label of an animal record.
func AgeRangeOf(r AnimalRecord) string { return names.Category(r.AgeRange) }

// SexOf returns the canonical sex label of an animal record.
func SexOf(r AnimalRecord) string { return names.Category(r.Sex) }

// YearOf returns the census year of a record.
func YearOf[R Record](r R) int { return r.RecordYear() }

// GeoSummary is the composite view of one department or municipality within
// the current filter scope.
type GeoSummary struct {
	EntityName           string  `json:"entity_name"`
	ParentName           string  `json:"parent_name,omitempty"`
	TotalHeadCount       int64   `json:"total_head_count"`
	TotalFarmCount       int64   `json:"total_farm_count"`
	ParticipationPercent float64 `json:"participation_percent"`
	AverageHeadPerFarm   float64 `json:"average_head_per_farm"`
}

// AnnualTotal is the national (or regional) head count of one year.
// YearOverYearPercent is nil when the previous calendar year is absent or
// its total is zero.
type AnnualTotal struct {
	Year                int      `json:"year"`
	TotalHeadCount      int64    `json:"total_head_count"`
	YearOverYearPercent *float64 `json:"year_over_year_percent"`
}
