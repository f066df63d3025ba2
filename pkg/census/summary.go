package census

import "fmt"

// Level selects the geographic grouping of a summary.
type Level int

const (
	LevelDepartment Level = iota
	LevelMunicipality
)

func (l Level) String() string {
	switch l {
	case LevelDepartment:
		return "department"
	case LevelMunicipality:
		return "municipality"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Summarize builds one GeoSummary per entity at the given level. Both inputs
// are expected to be filtered to the same year and region already.
func Summarize(animals []AnimalRecord, farms []FarmRecord, level Level) []GeoSummary {
	if level == LevelMunicipality {
		return SummarizeMunicipalities(animals, farms)
	}
	return SummarizeDepartments(animals, farms)
}

// SummarizeDepartments builds one GeoSummary per normalized department.
func SummarizeDepartments(animals []AnimalRecord, farms []FarmRecord) []GeoSummary {
	return summarize(HeadCountByDepartment(animals), FarmCountByDepartment(farms),
		func(k string) (string, string) { return k, "" })
}

// SummarizeMunicipalities builds one GeoSummary per (department,
// municipality); ParentName carries the department.
func SummarizeMunicipalities(animals []AnimalRecord, farms []FarmRecord) []GeoSummary {
	return summarize(HeadCountByMunicipality(animals), FarmCountByMunicipality(farms),
		func(k GeoKey) (string, string) { return k.Municipality, k.Department })
}

// summarize joins head and farm totals on the same key. Entities without
// head count are dropped, including entities that only appear in farm data.
// Participation is the share of the positive grand total, so it sums to 100
// across the result.
func summarize[K comparable](heads, farms *Totals[K], label func(K) (string, string)) []GeoSummary {
	grand := heads.PositiveSum()
	out := make([]GeoSummary, 0, heads.Len())
	for _, g := range heads.Groups() {
		if g.Total <= 0 {
			continue
		}
		farmCount, _ := farms.Get(g.Key)
		entity, parent := label(g.Key)
		out = append(out, GeoSummary{
			EntityName:           entity,
			ParentName:           parent,
			TotalHeadCount:       g.Total,
			TotalFarmCount:       farmCount,
			ParticipationPercent: Percent(g.Total, grand),
			AverageHeadPerFarm:   Ratio(g.Total, farmCount),
		})
	}
	return out
}

// Percent returns 100*part/whole, or 0 when whole is not positive.
func Percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}

// Ratio returns a/b, or 0 when b is not positive.
func Ratio(a, b int64) float64 {
	if b <= 0 {
		return 0
	}
	return float64(a) / float64(b)
}
