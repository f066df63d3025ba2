package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/daniela2708/ganaderia/pkg/census"
	"github.com/daniela2708/ganaderia/pkg/dashboard"
	"github.com/daniela2708/ganaderia/pkg/dataset"
	"github.com/daniela2708/ganaderia/pkg/kit"
)

// Shared request/response types used by both HTTP and MCP transports.

// ErrInvalidQuery wraps every request validation failure.
var ErrInvalidQuery = errors.New("invalid query")

var validate *validator.Validate

func init() {
	validate = validator.New()
	// Report json names ("year") rather than Go field names ("Year").
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
}

// Query is the filter tuple accepted by every filtered endpoint. Zero values
// do not constrain; a zero Year selects the latest census year.
type Query struct {
	Year         int    `json:"year,omitempty" validate:"omitempty,min=1900,max=2100"`
	Department   string `json:"department,omitempty" validate:"max=120"`
	Municipality string `json:"municipality,omitempty" validate:"max=120"`
	Top          int    `json:"top,omitempty" validate:"omitempty,min=1,max=2000"`
}

func (q *Query) check() error {
	err := validate.Struct(q)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param()))
		case "max":
			if fe.Kind() == reflect.String {
				msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
			} else {
				msgs = append(msgs, fmt.Sprintf("%s must be <= %s", fe.Field(), fe.Param()))
			}
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidQuery, strings.Join(msgs, "; "))
}

func (q *Query) filter() census.Filter {
	return census.Filter{Year: q.Year, Department: q.Department, Municipality: q.Municipality}
}

// Dataset is the reloadable data source behind the endpoints.
// *dataset.Store satisfies it.
type Dataset interface {
	Reload() error
	Info() (dataset.Info, error)
}

type healthResponse struct {
	Status  string        `json:"status"`
	Dataset *dataset.Info `json:"dataset,omitempty"`
}

type yearsResponse struct {
	Years  []int `json:"years"`
	Latest int   `json:"latest"`
}

type departmentsResponse struct {
	Departments []string `json:"departments"`
}

type municipalitiesResponse struct {
	Department     string   `json:"department"`
	Municipalities []string `json:"municipalities"`
}

type kpisResponse struct {
	Filter census.Filter `json:"filter"`
	KPIs   census.KPIs   `json:"kpis"`
}

type rankingResponse struct {
	Filter census.Filter       `json:"filter"`
	Level  string              `json:"level"`
	Top    int                 `json:"top"`
	Items  []census.GeoSummary `json:"items"`
}

type annualResponse struct {
	Filter census.Filter        `json:"filter"`
	Series []census.AnnualTotal `json:"series"`
}

type breakdownResponse struct {
	Filter census.Filter `json:"filter"`
	dashboard.Breakdown
}

type reloadResponse struct {
	Status  string       `json:"status"`
	Dataset dataset.Info `json:"dataset"`
}

// Endpoints are the transport-agnostic actions of the dashboard API.
type Endpoints struct {
	Health              kit.Endpoint
	Years               kit.Endpoint
	Departments         kit.Endpoint
	Municipalities      kit.Endpoint
	KPIs                kit.Endpoint
	DepartmentRanking   kit.Endpoint
	MunicipalityRanking kit.Endpoint
	Annual              kit.Endpoint
	Breakdown           kit.Endpoint
	Overview            kit.Endpoint
	Reload              kit.Endpoint
}

// NewEndpoints builds every endpoint over svc and ds, wrapped with logging
// and latency metrics.
func NewEndpoints(svc *dashboard.Service, ds Dataset, logger *slog.Logger) *Endpoints {
	if logger == nil {
		logger = slog.Default()
	}
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.Logging(logger, name), kit.Instrument(name))(ep)
	}
	return &Endpoints{
		Health:              wrap("health", healthEndpoint(ds)),
		Years:               wrap("years", yearsEndpoint(svc)),
		Departments:         wrap("departments", departmentsEndpoint(svc)),
		Municipalities:      wrap("municipalities", municipalitiesEndpoint(svc)),
		KPIs:                wrap("kpis", kpisEndpoint(svc)),
		DepartmentRanking:   wrap("department_ranking", rankingEndpoint(svc, census.LevelDepartment)),
		MunicipalityRanking: wrap("municipality_ranking", rankingEndpoint(svc, census.LevelMunicipality)),
		Annual:              wrap("annual", annualEndpoint(svc)),
		Breakdown:           wrap("breakdown", breakdownEndpoint(svc)),
		Overview:            wrap("overview", overviewEndpoint(svc)),
		Reload:              wrap("reload", reloadEndpoint(svc, ds)),
	}
}

// query extracts and validates the request of a filtered endpoint.
func query(request any) (*Query, error) {
	q, _ := request.(*Query)
	if q == nil {
		q = &Query{}
	}
	if err := q.check(); err != nil {
		return nil, err
	}
	return q, nil
}

func healthEndpoint(ds Dataset) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		info, err := ds.Info()
		if errors.Is(err, dataset.ErrNotLoaded) {
			return healthResponse{Status: "loading"}, nil
		}
		if err != nil {
			return nil, err
		}
		return healthResponse{Status: "ok", Dataset: &info}, nil
	}
}

func yearsEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		years, err := svc.Years(ctx)
		if err != nil {
			return nil, err
		}
		resp := yearsResponse{Years: years}
		if len(years) > 0 {
			resp.Latest = years[len(years)-1]
		}
		return resp, nil
	}
}

func departmentsEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		depts, err := svc.Departments(ctx)
		if err != nil {
			return nil, err
		}
		return departmentsResponse{Departments: depts}, nil
	}
}

func municipalitiesEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		q, err := query(request)
		if err != nil {
			return nil, err
		}
		if q.Department == "" {
			return nil, fmt.Errorf("%w: department is required", ErrInvalidQuery)
		}
		f, err := svc.NormalizeFilter(q.filter())
		if err != nil {
			return nil, err
		}
		munis, err := svc.Municipalities(ctx, f.Department)
		if err != nil {
			return nil, err
		}
		return municipalitiesResponse{Department: f.Department, Municipalities: munis}, nil
	}
}

func kpisEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		q, err := query(request)
		if err != nil {
			return nil, err
		}
		f, err := svc.ResolveFilter(ctx, q.filter())
		if err != nil {
			return nil, err
		}
		k, err := svc.KPIs(ctx, f)
		if err != nil {
			return nil, err
		}
		return kpisResponse{Filter: f, KPIs: k}, nil
	}
}

func rankingEndpoint(svc *dashboard.Service, level census.Level) kit.Endpoint {
	rank := svc.DepartmentRanking
	def := census.TopDepartments
	if level == census.LevelMunicipality {
		rank = svc.MunicipalityRanking
		def = census.TopMunicipalities
	}
	return func(ctx context.Context, request any) (any, error) {
		q, err := query(request)
		if err != nil {
			return nil, err
		}
		f, err := svc.ResolveFilter(ctx, q.filter())
		if err != nil {
			return nil, err
		}
		top := q.Top
		if top <= 0 {
			top = def
		}
		items, err := rank(ctx, f, top)
		if err != nil {
			return nil, err
		}
		return rankingResponse{Filter: f, Level: level.String(), Top: top, Items: items}, nil
	}
}

func annualEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		q, err := query(request)
		if err != nil {
			return nil, err
		}
		f, err := svc.NormalizeFilter(q.filter().Regional())
		if err != nil {
			return nil, err
		}
		series, err := svc.AnnualTotals(ctx, f)
		if err != nil {
			return nil, err
		}
		return annualResponse{Filter: f, Series: series}, nil
	}
}

func breakdownEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		q, err := query(request)
		if err != nil {
			return nil, err
		}
		f, err := svc.ResolveFilter(ctx, q.filter())
		if err != nil {
			return nil, err
		}
		b, err := svc.Breakdown(ctx, f)
		if err != nil {
			return nil, err
		}
		return breakdownResponse{Filter: f, Breakdown: b}, nil
	}
}

func overviewEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		q, err := query(request)
		if err != nil {
			return nil, err
		}
		return svc.Overview(ctx, q.filter())
	}
}

func reloadEndpoint(svc *dashboard.Service, ds Dataset) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		if err := ds.Reload(); err != nil {
			return nil, fmt.Errorf("reload: %w", err)
		}
		// Entries of older generations are unreachable; free them now.
		svc.Flush()
		info, err := ds.Info()
		if err != nil {
			return nil, err
		}
		return reloadResponse{Status: "reloaded", Dataset: info}, nil
	}
}
