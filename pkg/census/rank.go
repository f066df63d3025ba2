package census

import (
	"cmp"
	"slices"
)

// Default ranking windows used by the dashboard charts.
const (
	TopDepartments    = 15
	TopMunicipalities = 50
)

// Rank returns a copy of summaries sorted by TotalHeadCount descending. Equal
// totals keep their input order. When topN > 0 the result is truncated to
// the first topN entries after sorting.
func Rank(summaries []GeoSummary, topN int) []GeoSummary {
	out := slices.Clone(summaries)
	if out == nil {
		out = []GeoSummary{}
	}
	slices.SortStableFunc(out, func(a, b GeoSummary) int {
		return cmp.Compare(b.TotalHeadCount, a.TotalHeadCount)
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN:topN]
	}
	return out
}
