package census

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/daniela2708/ganaderia/pkg/names"
)

// KPIs are the headline figures of a filter scope.
type KPIs struct {
	TotalHeadCount     int64 `json:"total_head_count"`
	TotalFarmCount     int64 `json:"total_farm_count"`
	Departments        int   `json:"departments"`
	Municipalities     int   `json:"municipalities"`
	AverageHeadPerFarm int64 `json:"average_head_per_farm"`
}

// ComputeKPIs summarizes already filtered animal and farm records. Entity
// counts come from the animal records; municipalities are counted per
// department so homonyms in different departments stay distinct.
func ComputeKPIs(animals []AnimalRecord, farms []FarmRecord) KPIs {
	depts := HeadCountByDepartment(animals)
	munis := HeadCountByMunicipality(animals)
	k := KPIs{
		TotalHeadCount: depts.Sum(),
		TotalFarmCount: FarmCountByDepartment(farms).Sum(),
		Departments:    depts.Len(),
		Municipalities: munis.Len(),
	}
	k.AverageHeadPerFarm = int64(math.Round(Ratio(k.TotalHeadCount, k.TotalFarmCount)))
	return k
}

// AvailableYears returns the distinct years of both collections, ascending.
func AvailableYears(animals []AnimalRecord, farms []FarmRecord) []int {
	seen := make(map[int]struct{})
	for _, r := range animals {
		seen[r.Year] = struct{}{}
	}
	for _, r := range farms {
		seen[r.Year] = struct{}{}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	slices.Sort(years)
	return years
}

// LatestYear returns the most recent available year, or 0 without data.
func LatestYear(animals []AnimalRecord, farms []FarmRecord) int {
	years := AvailableYears(animals, farms)
	if len(years) == 0 {
		return 0
	}
	return years[len(years)-1]
}

// DepartmentOptions returns the distinct normalized departments, sorted.
func DepartmentOptions[R Record](records []R) []string {
	return sortedDistinct(records, func(r R) (string, bool) {
		return names.Department(r.RecordDepartment()), true
	})
}

// MunicipalityOptions returns the distinct normalized municipalities of one
// department, sorted.
func MunicipalityOptions[R Record](records []R, department string) []string {
	want := names.Department(department)
	return sortedDistinct(records, func(r R) (string, bool) {
		if names.Department(r.RecordDepartment()) != want {
			return "", false
		}
		return names.Municipality(r.RecordMunicipality()), true
	})
}

func sortedDistinct[R any](records []R, value func(R) (string, bool)) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range records {
		v, ok := value(r)
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b string) int {
		return cmp.Or(strings.Compare(names.Fold(a), names.Fold(b)), strings.Compare(a, b))
	})
	return out
}
