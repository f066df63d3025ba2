package census

import (
	"cmp"
	"slices"
)

// Share is one slice of a proportion chart.
type Share struct {
	Label   string  `json:"label"`
	Total   int64   `json:"total"`
	Percent float64 `json:"percent"`
}

// Distribution sums head counts per label and expresses each label as a
// share of the overall total, largest first. Equal totals keep
// first-occurrence order.
func Distribution(records []AnimalRecord, label func(AnimalRecord) string) []Share {
	t := Aggregate(records, label, HeadCount)
	grand := t.Sum()
	out := make([]Share, 0, t.Len())
	for _, g := range t.Groups() {
		out = append(out, Share{Label: g.Key, Total: g.Total, Percent: Percent(g.Total, grand)})
	}
	slices.SortStableFunc(out, func(a, b Share) int { return cmp.Compare(b.Total, a.Total) })
	return out
}

// AgeDistribution is Distribution over age ranges.
func AgeDistribution(records []AnimalRecord) []Share {
	return Distribution(records, AgeRangeOf)
}

// SexDistribution is Distribution over sexes.
func SexDistribution(records []AnimalRecord) []Share {
	return Distribution(records, SexOf)
}

// AgeSexRow is one bar of the stacked age/sex chart. Each sex segment carries
// its percentage of the row total.
type AgeSexRow struct {
	AgeRange string  `json:"age_range"`
	Total    int64   `json:"total"`
	Segments []Share `json:"segments"`
}

// AgeSexBreakdown returns one row per age range: the four known ranges in
// their natural order (present even when empty), then any other range seen
// in the data. Segments list MACHO and HEMBRA first, then other sexes.
func AgeSexBreakdown(records []AnimalRecord) []AgeSexRow {
	cells := HeadCountByAgeRangeAndSex(records)
	ages := mergeOrder(AgeRanges, HeadCountByAgeRange(records).Keys())
	sexes := mergeOrder(Sexes, HeadCountBySex(records).Keys())

	rows := make([]AgeSexRow, 0, len(ages))
	for _, age := range ages {
		row := AgeSexRow{AgeRange: age, Segments: make([]Share, 0, len(sexes))}
		for _, sex := range sexes {
			v, _ := cells.Get(Pair[string, string]{First: age, Second: sex})
			row.Total += v
			row.Segments = append(row.Segments, Share{Label: sex, Total: v})
		}
		for i := range row.Segments {
			row.Segments[i].Percent = Percent(row.Segments[i].Total, row.Total)
		}
		rows = append(rows, row)
	}
	return rows
}

// mergeOrder returns fixed followed by the entries of seen not in fixed.
func mergeOrder(fixed, seen []string) []string {
	out := slices.Clone(fixed)
	for _, s := range seen {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
