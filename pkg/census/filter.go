package census

import (
	"strconv"

	"github.com/daniela2708/ganaderia/pkg/names"
)

// FilterByYear keeps the records of one census year.
func FilterByYear[R Record](records []R, year int) []R {
	return keep(records, func(r R) bool { return r.RecordYear() == year })
}

// FilterByDepartment keeps the records whose normalized department equals the
// normalized form of department.
func FilterByDepartment[R Record](records []R, department string) []R {
	want := names.Department(department)
	return keep(records, func(r R) bool { return names.Department(r.RecordDepartment()) == want })
}

// FilterByMunicipality keeps the records whose normalized municipality equals
// the normalized form of municipality. Municipality names repeat across
// departments, so callers usually chain FilterByDepartment first.
func FilterByMunicipality[R Record](records []R, municipality string) []R {
	want := names.Municipality(municipality)
	return keep(records, func(r R) bool { return names.Municipality(r.RecordMunicipality()) == want })
}

func keep[R any](records []R, pred func(R) bool) []R {
	out := make([]R, 0)
	for _, r := range records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Filter is the dashboard selection. Zero fields do not constrain.
type Filter struct {
	Year         int    `json:"year,omitempty"`
	Department   string `json:"department,omitempty"`
	Municipality string `json:"municipality,omitempty"`
}

// Normalized returns f with its names in canonical form under the built-in
// tables.
func (f Filter) Normalized() Filter { return f.NormalizedWith(names.Default()) }

// NormalizedWith resolves the names of f through set. Records loaded with an
// extended set must be filtered with the same set, or a spelling that only
// the dataset's alias file knows would match nothing.
func (f Filter) NormalizedWith(set names.Set) Filter {
	if f.Department != "" {
		f.Department = set.Department.Normalize(f.Department)
	}
	if f.Municipality != "" {
		f.Municipality = set.Municipality.Normalize(f.Municipality)
	}
	return f
}

// Regional drops the year constraint, leaving only the region.
func (f Filter) Regional() Filter {
	f.Year = 0
	return f
}

// Key is an unambiguous string form of the normalized filter, usable as a
// cache key.
func (f Filter) Key() string {
	n := f.Normalized()
	return strconv.Itoa(n.Year) + "/" + strconv.Quote(n.Department) + "/" + strconv.Quote(n.Municipality)
}

// Apply chains the year, department and municipality filters.
func Apply[R Record](records []R, f Filter) []R {
	if f == (Filter{}) {
		return append(make([]R, 0, len(records)), records...)
	}
	out := records
	if f.Year != 0 {
		out = FilterByYear(out, f.Year)
	}
	if f.Department != "" {
		out = FilterByDepartment(out, f.Department)
	}
	if f.Municipality != "" {
		out = FilterByMunicipality(out, f.Municipality)
	}
	return out
}
