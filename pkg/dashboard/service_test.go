package dashboard

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/daniela2708/ganaderia/pkg/census"
	"github.com/daniela2708/ganaderia/pkg/dataset"
)

type fakeSource struct {
	mu  sync.Mutex
	d   *dataset.Dataset
	gen uint64
}

func (f *fakeSource) Current() (*dataset.Dataset, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.d == nil {
		return nil, 0, dataset.ErrNotLoaded
	}
	return f.d, f.gen, nil
}

func (f *fakeSource) set(d *dataset.Dataset) {
	f.mu.Lock()
	f.d = d
	f.gen++
	f.mu.Unlock()
}

func fixture() *dataset.Dataset {
	a := func(dept, muni string, year int, sex, age string, n int64) census.AnimalRecord {
		return census.AnimalRecord{Department: dept, Municipality: muni, Year: year, Sex: sex, AgeRange: age, TotalHeadCount: n}
	}
	return &dataset.Dataset{
		Manifest: dataset.DefaultManifest(),
		Animals: []census.AnimalRecord{
			a("Antioquia", "Medellin", 2022, census.Hembra, census.AgeOver3, 800),
			a("Antioquia", "Envigado", 2022, census.Macho, census.AgeUnder1, 200),
			a("Meta", "Granada", 2022, census.Hembra, census.AgeOver3, 500),
			a("Antioquia", "Medellin", 2023, census.Hembra, census.AgeOver3, 900),
			a("Meta", "Granada", 2023, census.Macho, census.Age1To2, 1100),
		},
		Farms: []census.FarmRecord{
			{Department: "Antioquia", Municipality: "Medellin", Year: 2023, TotalFarmCount: 30},
			{Department: "Meta", Municipality: "Granada", Year: 2023, TotalFarmCount: 10},
		},
	}
}

func newService(t *testing.T) (*Service, *fakeSource) {
	t.Helper()
	src := &fakeSource{}
	src.set(fixture())
	return New(src, 0, nil), src
}

func TestResolveFilter_DefaultsToLatestYear(t *testing.T) {
	s, _ := newService(t)
	f, err := s.ResolveFilter(context.Background(), census.Filter{Department: "META"})
	if err != nil {
		t.Fatal(err)
	}
	if want := (census.Filter{Year: 2023, Department: "Meta"}); f != want {
		t.Errorf("filter = %+v, want %+v", f, want)
	}

	f, err = s.ResolveFilter(context.Background(), census.Filter{Year: 2022})
	if err != nil {
		t.Fatal(err)
	}
	if f.Year != 2022 {
		t.Errorf("explicit year replaced by %d", f.Year)
	}
}

func TestKPIs(t *testing.T) {
	s, _ := newService(t)
	k, err := s.KPIs(context.Background(), census.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if k.TotalHeadCount != 2000 || k.TotalFarmCount != 40 || k.AverageHeadPerFarm != 50 || k.Departments != 2 {
		t.Errorf("kpis = %+v", k)
	}
}

func TestDepartmentRanking(t *testing.T) {
	s, _ := newService(t)
	got, err := s.DepartmentRanking(context.Background(), census.Filter{Year: 2022}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].EntityName != "Antioquia" {
		t.Fatalf("ranking = %+v", got)
	}
	if math.Abs(got[0].ParticipationPercent-66.667) > 0.001 {
		t.Errorf("share = %f", got[0].ParticipationPercent)
	}

	top1, err := s.DepartmentRanking(context.Background(), census.Filter{Year: 2022}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top1) != 1 {
		t.Errorf("top 1 = %+v", top1)
	}
}

func TestMunicipalityRanking_WithinDepartment(t *testing.T) {
	s, _ := newService(t)
	got, err := s.MunicipalityRanking(context.Background(), census.Filter{Year: 2022, Department: "antioquia"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].EntityName != "Medellin" || got[0].ParentName != "Antioquia" {
		t.Fatalf("ranking = %+v", got)
	}
	if math.Abs(got[0].ParticipationPercent-80) > 1e-9 {
		t.Errorf("share = %f, want 80", got[0].ParticipationPercent)
	}
}

func TestAnnualTotals_IgnoresYear(t *testing.T) {
	s, _ := newService(t)
	got, err := s.AnnualTotals(context.Background(), census.Filter{Year: 2022, Department: "Meta"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].YearOverYearPercent != nil || got[1].YearOverYearPercent == nil {
		t.Fatalf("annual = %+v", got)
	}
	if v := *got[1].YearOverYearPercent; math.Abs(v-120) > 1e-9 {
		t.Errorf("change = %f, want 120", v)
	}
}

func TestOverview(t *testing.T) {
	s, _ := newService(t)
	ov, err := s.Overview(context.Background(), census.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if ov.Filter.Year != 2023 || ov.KPIs.TotalHeadCount != 2000 {
		t.Errorf("year=%d head=%d", ov.Filter.Year, ov.KPIs.TotalHeadCount)
	}
	if len(ov.Departments) != 2 || len(ov.Municipalities) != 2 || len(ov.Annual) != 2 {
		t.Errorf("sections: %d departments, %d municipalities, %d years",
			len(ov.Departments), len(ov.Municipalities), len(ov.Annual))
	}
	if len(ov.Breakdown.AgeSex) != len(census.AgeRanges) {
		t.Errorf("age/sex rows = %d", len(ov.Breakdown.AgeSex))
	}
}

func TestCache_ReusedAndInvalidatedByGeneration(t *testing.T) {
	s, src := newService(t)
	ctx := context.Background()

	kpis := func(f census.Filter) census.KPIs {
		t.Helper()
		k, err := s.KPIs(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		return k
	}

	kpis(census.Filter{Year: 2023})
	n := s.CachedEntries()
	kpis(census.Filter{Year: 2023})
	if s.CachedEntries() != n {
		t.Error("identical query missed the cache")
	}

	// Equivalent spellings share one entry.
	kpis(census.Filter{Year: 2023, Department: "ANTIOQUIA"})
	m := s.CachedEntries()
	kpis(census.Filter{Year: 2023, Department: "antioquia"})
	if s.CachedEntries() != m {
		t.Error("respelled department missed the cache")
	}

	d := fixture()
	d.Animals = d.Animals[:1]
	src.set(d)
	if k := kpis(census.Filter{Year: 2022}); k.TotalHeadCount != 800 {
		t.Errorf("served %d head from the previous generation", k.TotalHeadCount)
	}

	s.Flush()
	if n := s.CachedEntries(); n != 0 {
		t.Errorf("%d entries after Flush", n)
	}
}

func TestConcurrentQueries(t *testing.T) {
	s, _ := newService(t)
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			year := 2022 + i%2
			if _, err := s.Overview(context.Background(), census.Filter{Year: year}); err != nil {
				t.Errorf("%d: %v", year, err)
			}
		}()
	}
	wg.Wait()
}

func TestNotLoaded(t *testing.T) {
	s := New(&fakeSource{}, 0, nil)
	if _, err := s.Overview(context.Background(), census.Filter{Year: 2020}); !errors.Is(err, dataset.ErrNotLoaded) {
		t.Errorf("Overview: %v", err)
	}
	if _, err := s.Years(context.Background()); !errors.Is(err, dataset.ErrNotLoaded) {
		t.Errorf("Years: %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	s, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Departments(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestOptions(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	depts, err := s.Departments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(depts, []string{"Antioquia", "Meta"}) {
		t.Errorf("departments = %v", depts)
	}

	munis, err := s.Municipalities(ctx, "ANTIOQUIA")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(munis, []string{"Envigado", "Medellin"}) {
		t.Errorf("municipalities = %v", munis)
	}

	years, err := s.Years(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(years, []int{2022, 2023}) {
		t.Errorf("years = %v", years)
	}
}

// aliasedStore loads a dataset directory whose alias file folds a misspelled
// department into its canonical name.
func aliasedStore(t *testing.T) *dataset.Store {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		dataset.ManifestFile:       "aliases_file: aliases.yaml\n",
		"aliases.yaml":             "departments:\n  - canonical: Cundinamarca\n    variants: [\"Cundinamarka\"]\n",
		dataset.DefaultAnimalsFile: "DEPARTAMENTO,MUNICIPIO,AÑO,TOTAL BOVINOS\nCUNDINAMARCA,Zipaquira,2024,100\nCundinamarka,Zipaquira,2024,50\n",
		dataset.DefaultFarmsFile:   "DEPARTAMENTO,AÑO,TOTAL FINCAS\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store := dataset.NewStore(dir, nil)
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return store
}

func TestAliasFileVariantInFilter(t *testing.T) {
	s := New(aliasedStore(t), 0, nil)
	ctx := context.Background()

	for _, dept := range []string{"Cundinamarca", "Cundinamarka", "CUNDINAMARKA"} {
		f := census.Filter{Year: 2024, Department: dept}

		nf, err := s.NormalizeFilter(f)
		if err != nil {
			t.Fatal(err)
		}
		if nf.Department != "Cundinamarca" {
			t.Errorf("%s: normalized to %q", dept, nf.Department)
		}

		k, err := s.KPIs(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		if k.TotalHeadCount != 150 || k.Departments != 1 {
			t.Errorf("%s: kpis = %+v", dept, k)
		}

		ranking, err := s.MunicipalityRanking(ctx, f, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(ranking) != 1 || ranking[0].TotalHeadCount != 150 {
			t.Errorf("%s: ranking = %+v", dept, ranking)
		}

		annual, err := s.AnnualTotals(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		if len(annual) != 1 || annual[0].TotalHeadCount != 150 {
			t.Errorf("%s: annual = %+v", dept, annual)
		}

		munis, err := s.Municipalities(ctx, dept)
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(munis, []string{"Zipaquira"}) {
			t.Errorf("%s: municipalities = %v", dept, munis)
		}
	}
}
