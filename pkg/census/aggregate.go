package census

// Group is one key of an aggregation with its summed measure.
type Group[K comparable] struct {
	Key   K     `json:"key"`
	Total int64 `json:"total"`
}

// Totals maps group keys to summed measures. Keys keep the order in which
// they were first seen; callers re-sort when they need another order.
type Totals[K comparable] struct {
	keys []K
	sums map[K]int64
}

func newTotals[K comparable]() *Totals[K] {
	return &Totals[K]{sums: make(map[K]int64)}
}

func (t *Totals[K]) add(k K, v int64) {
	if _, ok := t.sums[k]; !ok {
		t.keys = append(t.keys, k)
	}
	t.sums[k] += v
}

// Len returns the number of distinct keys.
func (t *Totals[K]) Len() int { return len(t.keys) }

// Get returns the total for k and whether k was seen.
func (t *Totals[K]) Get(k K) (int64, bool) {
	v, ok := t.sums[k]
	return v, ok
}

// Keys returns the keys in first-occurrence order.
func (t *Totals[K]) Keys() []K {
	return append([]K(nil), t.keys...)
}

// Groups returns every key with its total in first-occurrence order.
func (t *Totals[K]) Groups() []Group[K] {
	out := make([]Group[K], 0, len(t.keys))
	for _, k := range t.keys {
		out = append(out, Group[K]{Key: k, Total: t.sums[k]})
	}
	return out
}

// Sum returns the total over all keys.
func (t *Totals[K]) Sum() int64 {
	var s int64
	for _, v := range t.sums {
		s += v
	}
	return s
}

// PositiveSum returns the total over keys whose total is > 0.
func (t *Totals[K]) PositiveSum() int64 {
	var s int64
	for _, v := range t.sums {
		if v > 0 {
			s += v
		}
	}
	return s
}

// Aggregate groups records by key and sums measure per group. A nil measure
// counts every record as zero. No records yields an empty Totals.
func Aggregate[R any, K comparable](records []R, key func(R) K, measure func(R) int64) *Totals[K] {
	t := newTotals[K]()
	for _, r := range records {
		var v int64
		if measure != nil {
			v = measure(r)
		}
		t.add(key(r), v)
	}
	return t
}

// Pair is a two-level composite grouping key.
type Pair[A, B comparable] struct {
	First  A `json:"first"`
	Second B `json:"second"`
}

// Aggregate2 groups by two keys at once, e.g. age range then sex.
func Aggregate2[R any, A, B comparable](records []R, first func(R) A, second func(R) B, measure func(R) int64) *Totals[Pair[A, B]] {
	return Aggregate(records, func(r R) Pair[A, B] {
		return Pair[A, B]{First: first(r), Second: second(r)}
	}, measure)
}

// HeadCountByDepartment sums head counts per normalized department.
func HeadCountByDepartment(records []AnimalRecord) *Totals[string] {
	return Aggregate(records, DepartmentOf[AnimalRecord], HeadCount)
}

// FarmCountByDepartment sums farm counts per normalized department.
func FarmCountByDepartment(records []FarmRecord) *Totals[string] {
	return Aggregate(records, DepartmentOf[FarmRecord], FarmCount)
}

// HeadCountByMunicipality sums head counts per (department, municipality).
func HeadCountByMunicipality(records []AnimalRecord) *Totals[GeoKey] {
	return Aggregate(records, MunicipalityKeyOf[AnimalRecord], HeadCount)
}

// FarmCountByMunicipality sums farm counts per (department, municipality).
func FarmCountByMunicipality(records []FarmRecord) *Totals[GeoKey] {
	return Aggregate(records, MunicipalityKeyOf[FarmRecord], FarmCount)
}

// HeadCountByYear sums head counts per census year.
func HeadCountByYear(records []AnimalRecord) *Totals[int] {
	return Aggregate(records, YearOf[AnimalRecord], HeadCount)
}

// HeadCountByAgeRange sums head counts per canonical age range.
func HeadCountByAgeRange(records []AnimalRecord) *Totals[string] {
	return Aggregate(records, AgeRangeOf, HeadCount)
}

// HeadCountBySex sums head counts per canonical sex.
func HeadCountBySex(records []AnimalRecord) *Totals[string] {
	return Aggregate(records, SexOf, HeadCount)
}

// HeadCountByAgeRangeAndSex sums head counts per (age range, sex).
func HeadCountByAgeRangeAndSex(records []AnimalRecord) *Totals[Pair[string, string]] {
	return Aggregate2(records, AgeRangeOf, SexOf, HeadCount)
}
