// Package dashboard answers filtered census queries over the served dataset,
// memoizing results per dataset generation and filter.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/daniela2708/ganaderia/pkg/census"
	"github.com/daniela2708/ganaderia/pkg/dataset"
)

// DefaultTTL bounds how long an unused result stays cached.
const DefaultTTL = 10 * time.Minute

var cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ganaderia_dashboard_cache_requests_total",
	Help: "Dashboard query cache lookups by query and result",
}, []string{"query", "result"})

// Source provides the dataset currently served. *dataset.Store satisfies it.
type Source interface {
	Current() (*dataset.Dataset, uint64, error)
}

// Service runs dashboard queries. Results are cached by dataset generation
// and normalized filter, so a reload invalidates every entry implicitly.
// Returned slices are shared between callers and must not be modified.
type Service struct {
	src    Source
	cache  *cache.Cache
	flight singleflight.Group
	logger *slog.Logger
}

// New creates a Service. A non-positive ttl selects DefaultTTL.
func New(src Source, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		src:    src,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// CachedEntries returns the number of memoized results.
func (s *Service) CachedEntries() int { return s.cache.ItemCount() }

// Flush drops every memoized result.
func (s *Service) Flush() { s.cache.Flush() }

// memo returns the cached result for query+key under the current generation,
// computing it once when absent. Concurrent identical misses share a single
// computation.
func memo[T any](ctx context.Context, s *Service, query, key string, compute func(*dataset.Dataset) T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	d, gen, err := s.src.Current()
	if err != nil {
		return zero, err
	}
	k := strconv.FormatUint(gen, 10) + "|" + query + "|" + key
	if v, ok := s.cache.Get(k); ok {
		cacheRequests.WithLabelValues(query, "hit").Inc()
		return v.(T), nil
	}
	cacheRequests.WithLabelValues(query, "miss").Inc()

	v, _, _ := s.flight.Do(k, func() (any, error) {
		start := time.Now()
		out := compute(d)
		s.cache.SetDefault(k, out)
		s.logger.Debug("dashboard query computed", "query", query, "key", key, "generation", gen, "duration", time.Since(start))
		return out, nil
	})
	return v.(T), nil
}

// NormalizeFilter resolves the names of f with the normalizers the served
// records were built with, alias file included.
func (s *Service) NormalizeFilter(f census.Filter) (census.Filter, error) {
	d, _, err := s.src.Current()
	if err != nil {
		return f, err
	}
	return f.NormalizedWith(d.NameSet()), nil
}

// ResolveFilter normalizes f and substitutes the latest available year when
// no year is selected.
func (s *Service) ResolveFilter(ctx context.Context, f census.Filter) (census.Filter, error) {
	f, err := s.NormalizeFilter(f)
	if err != nil {
		return f, err
	}
	if f.Year != 0 {
		return f, nil
	}
	years, err := s.Years(ctx)
	if err != nil {
		return f, err
	}
	if len(years) > 0 {
		f.Year = years[len(years)-1]
	}
	return f, nil
}

// Years returns the available census years, ascending.
func (s *Service) Years(ctx context.Context) ([]int, error) {
	return memo(ctx, s, "years", "", func(d *dataset.Dataset) []int {
		return d.Years()
	})
}

// Departments returns every department with animal records, sorted.
func (s *Service) Departments(ctx context.Context) ([]string, error) {
	return memo(ctx, s, "departments", "", func(d *dataset.Dataset) []string {
		return census.DepartmentOptions(d.Animals)
	})
}

// Municipalities returns the municipalities of one department, sorted.
func (s *Service) Municipalities(ctx context.Context, department string) ([]string, error) {
	f, err := s.NormalizeFilter(census.Filter{Department: department})
	if err != nil {
		return nil, err
	}
	return memo(ctx, s, "municipalities", f.Key(), func(d *dataset.Dataset) []string {
		return census.MunicipalityOptions(d.Animals, f.Department)
	})
}

// KPIs returns the headline figures for f.
func (s *Service) KPIs(ctx context.Context, f census.Filter) (census.KPIs, error) {
	f, err := s.ResolveFilter(ctx, f)
	if err != nil {
		return census.KPIs{}, err
	}
	return memo(ctx, s, "kpis", f.Key(), func(d *dataset.Dataset) census.KPIs {
		return census.ComputeKPIs(census.Apply(d.Animals, f), census.Apply(d.Farms, f))
	})
}

// DepartmentRanking returns departments ranked by head count. top <= 0
// selects census.TopDepartments.
func (s *Service) DepartmentRanking(ctx context.Context, f census.Filter, top int) ([]census.GeoSummary, error) {
	return s.ranking(ctx, f, census.LevelDepartment, cmpOr(top, census.TopDepartments))
}

// MunicipalityRanking returns municipalities ranked by head count. top <= 0
// selects census.TopMunicipalities.
func (s *Service) MunicipalityRanking(ctx context.Context, f census.Filter, top int) ([]census.GeoSummary, error) {
	return s.ranking(ctx, f, census.LevelMunicipality, cmpOr(top, census.TopMunicipalities))
}

func (s *Service) ranking(ctx context.Context, f census.Filter, level census.Level, top int) ([]census.GeoSummary, error) {
	f, err := s.ResolveFilter(ctx, f)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s|%d", f.Key(), top)
	return memo(ctx, s, "ranking_"+level.String(), key, func(d *dataset.Dataset) []census.GeoSummary {
		summaries := census.Summarize(census.Apply(d.Animals, f), census.Apply(d.Farms, f), level)
		return census.Rank(summaries, top)
	})
}

// AnnualTotals returns the yearly head-count series of the region selected by
// f. The year of f is ignored.
func (s *Service) AnnualTotals(ctx context.Context, f census.Filter) ([]census.AnnualTotal, error) {
	f, err := s.NormalizeFilter(f.Regional())
	if err != nil {
		return nil, err
	}
	return memo(ctx, s, "annual", f.Key(), func(d *dataset.Dataset) []census.AnnualTotal {
		return census.ComputeAnnualTotals(census.Apply(d.Animals, f))
	})
}

// Breakdown is the age and sex composition of the selected herd.
type Breakdown struct {
	Ages   []census.Share     `json:"ages"`
	Sexes  []census.Share     `json:"sexes"`
	AgeSex []census.AgeSexRow `json:"age_sex"`
}

// Breakdown returns the age/sex composition for f.
func (s *Service) Breakdown(ctx context.Context, f census.Filter) (Breakdown, error) {
	f, err := s.ResolveFilter(ctx, f)
	if err != nil {
		return Breakdown{}, err
	}
	return memo(ctx, s, "breakdown", f.Key(), func(d *dataset.Dataset) Breakdown {
		animals := census.Apply(d.Animals, f)
		return Breakdown{
			Ages:   census.AgeDistribution(animals),
			Sexes:  census.SexDistribution(animals),
			AgeSex: census.AgeSexBreakdown(animals),
		}
	})
}

// Overview bundles every dashboard section for one filter.
type Overview struct {
	Filter         census.Filter        `json:"filter"`
	KPIs           census.KPIs          `json:"kpis"`
	Departments    []census.GeoSummary  `json:"departments"`
	Municipalities []census.GeoSummary  `json:"municipalities"`
	Annual         []census.AnnualTotal `json:"annual"`
	Breakdown      Breakdown            `json:"breakdown"`
}

// Overview computes all sections concurrently.
func (s *Service) Overview(ctx context.Context, f census.Filter) (*Overview, error) {
	f, err := s.ResolveFilter(ctx, f)
	if err != nil {
		return nil, err
	}
	out := &Overview{Filter: f}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.KPIs, err = s.KPIs(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		out.Departments, err = s.DepartmentRanking(gctx, f, 0)
		return err
	})
	g.Go(func() (err error) {
		out.Municipalities, err = s.MunicipalityRanking(gctx, f, 0)
		return err
	})
	g.Go(func() (err error) {
		out.Annual, err = s.AnnualTotals(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		out.Breakdown, err = s.Breakdown(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func cmpOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
