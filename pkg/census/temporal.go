package census

import (
	"cmp"
	"slices"
)

// ComputeAnnualTotals sums head counts per year, ascending, and attaches the
// change against the immediately preceding calendar year. The input should
// be filtered by region but not by year.
//
// Years missing from the data are not filled in: the year after a gap has no
// comparator, and neither has a year whose predecessor totals zero.
func ComputeAnnualTotals(records []AnimalRecord) []AnnualTotal {
	byYear := HeadCountByYear(records)
	years := byYear.Keys()
	slices.SortFunc(years, cmp.Compare[int])

	out := make([]AnnualTotal, 0, len(years))
	for _, y := range years {
		total, _ := byYear.Get(y)
		out = append(out, AnnualTotal{
			Year:                y,
			TotalHeadCount:      total,
			YearOverYearPercent: yearOverYear(byYear, y, total),
		})
	}
	return out
}

func yearOverYear(byYear *Totals[int], year int, total int64) *float64 {
	prev, ok := byYear.Get(year - 1)
	if !ok || prev <= 0 {
		return nil
	}
	pct := 100 * float64(total-prev) / float64(prev)
	return &pct
}

// AnnualTotalsFromMap is ComputeAnnualTotals for totals that were already
// aggregated elsewhere.
func AnnualTotalsFromMap(totals map[int]int64) []AnnualTotal {
	t := newTotals[int]()
	years := make([]int, 0, len(totals))
	for y := range totals {
		years = append(years, y)
	}
	slices.Sort(years)
	for _, y := range years {
		t.add(y, totals[y])
	}
	out := make([]AnnualTotal, 0, len(years))
	for _, y := range years {
		out = append(out, AnnualTotal{
			Year:                y,
			TotalHeadCount:      totals[y],
			YearOverYearPercent: yearOverYear(t, y, totals[y]),
		})
	}
	return out
}
