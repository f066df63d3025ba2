package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/daniela2708/ganaderia/pkg/dashboard"
	"github.com/daniela2708/ganaderia/pkg/dataset"
)

const testAnimals = `TIPO ANIMAL,DEPARTAMENTO,MUNICIPIO,CODIGO MUNICIPIO,AÑO,TERNERO,SEXO,RANGO EDAD,TOTAL BOVINOS
BOVINO,ANTIOQUIA,MEDELLIN,05001,2023,NO,HEMBRA,MAYOR A 3 AÑOS,1000
BOVINO,antioquia,Envigado,05266,2023,SI,MACHO,MENOR A 1 AÑO,500
BOVINO,VALLE DEL CAUCA,CALI,76001,2023,NO,HEMBRA,MAYOR A 3 AÑOS,300
BOVINO,ANTIOQUIA,MEDELLIN,05001,2024,NO,HEMBRA,MAYOR A 3 AÑOS,1800
`

const testFarms = `TIPO,DEPARTAMENTO,MUNICIPIO,CODIGO MUNICIPIO,AÑO,TAMAÑO FINCA,TOTAL FINCAS
FINCA,ANTIOQUIA,MEDELLIN,05001,2023,1 A 50,50
FINCA,ANTIOQUIA,MEDELLIN,05001,2024,1 A 50,60
`

type testEnv struct {
	dir    string
	store  *dataset.Store
	eps    *Endpoints
	server *httptest.Server
}

func setup(t *testing.T, rateLimit float64) *testEnv {
	t.Helper()
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, dataset.DefaultAnimalsFile), []byte(testAnimals), 0o644)
	os.WriteFile(filepath.Join(dir, dataset.DefaultFarmsFile), []byte(testFarms), 0o644)

	store := dataset.NewStore(dir, nil)
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	eps := NewEndpoints(dashboard.New(store, 0, nil), store, nil)
	srv := httptest.NewServer(NewRouter(RouterConfig{Endpoints: eps, RateLimit: rateLimit, Burst: 1}))
	t.Cleanup(srv.Close)
	return &testEnv{dir: dir, store: store, eps: eps, server: srv}
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := setup(t, 0)
	var body struct {
		Status  string       `json:"status"`
		Dataset dataset.Info `json:"dataset"`
	}
	if code := getJSON(t, env.server.URL+"/v1/health", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Status != "ok" || body.Dataset.Animals != 4 || body.Dataset.Farms != 2 {
		t.Errorf("health = %+v", body)
	}
}

func TestYears(t *testing.T) {
	env := setup(t, 0)
	var body yearsResponse
	getJSON(t, env.server.URL+"/v1/years", &body)
	if len(body.Years) != 2 || body.Latest != 2024 {
		t.Errorf("years = %+v", body)
	}
}

func TestDepartmentRanking(t *testing.T) {
	env := setup(t, 0)
	var body rankingResponse
	code := getJSON(t, env.server.URL+"/v1/ranking/departments?year=2023", &body)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Top != 15 || body.Level != "department" {
		t.Errorf("top=%d level=%s", body.Top, body.Level)
	}
	if len(body.Items) != 2 {
		t.Fatalf("items = %+v", body.Items)
	}
	first := body.Items[0]
	if first.EntityName != "Antioquia" || first.TotalHeadCount != 1500 || first.TotalFarmCount != 50 {
		t.Errorf("first = %+v", first)
	}
	if p := first.ParticipationPercent; p < 83.33 || p > 83.34 {
		t.Errorf("participation = %v", p)
	}
	if body.Items[1].EntityName != "Valle Del Cauca" {
		t.Errorf("second = %+v", body.Items[1])
	}
}

func TestMunicipalityRanking_DefaultsToLatestYear(t *testing.T) {
	env := setup(t, 0)
	var body rankingResponse
	getJSON(t, env.server.URL+"/v1/ranking/municipalities?department=antioquia&top=1", &body)
	if body.Filter.Year != 2024 || body.Filter.Department != "Antioquia" {
		t.Errorf("filter = %+v", body.Filter)
	}
	if len(body.Items) != 1 || body.Items[0].EntityName != "Medellin" || body.Items[0].AverageHeadPerFarm != 30 {
		t.Errorf("items = %+v", body.Items)
	}
}

func TestMunicipalities(t *testing.T) {
	env := setup(t, 0)
	var body municipalitiesResponse
	getJSON(t, env.server.URL+"/v1/departments/ANTIOQUIA/municipalities", &body)
	if body.Department != "Antioquia" || strings.Join(body.Municipalities, ",") != "Envigado,Medellin" {
		t.Errorf("municipalities = %+v", body)
	}
}

func TestAnnual(t *testing.T) {
	env := setup(t, 0)
	var body annualResponse
	getJSON(t, env.server.URL+"/v1/annual?department=Antioquia&year=2023", &body)
	if body.Filter.Year != 0 {
		t.Errorf("annual filter kept the year: %+v", body.Filter)
	}
	if len(body.Series) != 2 || body.Series[0].YearOverYearPercent != nil {
		t.Fatalf("series = %+v", body.Series)
	}
	if yoy := body.Series[1].YearOverYearPercent; yoy == nil || *yoy != 20 {
		t.Errorf("yoy = %v, want 20", yoy)
	}
}

func TestKPIsAndBreakdownAndOverview(t *testing.T) {
	env := setup(t, 0)
	var k kpisResponse
	getJSON(t, env.server.URL+"/v1/kpis?year=2023", &k)
	if k.KPIs.TotalHeadCount != 1800 || k.KPIs.AverageHeadPerFarm != 36 || k.KPIs.Municipalities != 3 {
		t.Errorf("kpis = %+v", k.KPIs)
	}

	var b breakdownResponse
	getJSON(t, env.server.URL+"/v1/breakdown?year=2023", &b)
	if len(b.AgeSex) != 4 || len(b.Sexes) != 2 {
		t.Errorf("breakdown = %+v", b)
	}

	var ov dashboard.Overview
	if code := getJSON(t, env.server.URL+"/v1/overview", &ov); code != http.StatusOK {
		t.Fatalf("overview status = %d", code)
	}
	if ov.Filter.Year != 2024 || len(ov.Annual) != 2 {
		t.Errorf("overview = %+v", ov)
	}
}

func TestEmptyResultIsNotAnError(t *testing.T) {
	env := setup(t, 0)
	var body rankingResponse
	if code := getJSON(t, env.server.URL+"/v1/ranking/departments?year=1999", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Items == nil || len(body.Items) != 0 {
		t.Errorf("items = %#v, want empty list", body.Items)
	}
}

func TestInvalidQuery(t *testing.T) {
	env := setup(t, 0)
	tests := []struct {
		path string
		want string
	}{
		{"/v1/kpis?year=abc", "year must be an integer"},
		{"/v1/kpis?year=1500", "year must be >= 1900"},
		{"/v1/ranking/departments?top=-2", "top must be >= 1"},
		{"/v1/ranking/municipalities?top=99999", "top must be <= 2000"},
		{"/v1/kpis?department=" + strings.Repeat("x", 200), "department must be at most 120 characters"},
	}
	for _, tt := range tests {
		var body map[string]string
		code := getJSON(t, env.server.URL+tt.path, &body)
		if code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", tt.path, code)
		}
		if !strings.Contains(body["error"], tt.want) {
			t.Errorf("%s: error = %q, want %q", tt.path, body["error"], tt.want)
		}
	}
}

func TestReload(t *testing.T) {
	env := setup(t, 0)
	os.WriteFile(filepath.Join(env.dir, dataset.DefaultAnimalsFile),
		[]byte(testAnimals+"BOVINO,META,GRANADA,50313,2025,NO,MACHO,1 - 2 AÑOS,10\n"), 0o644)

	resp, err := http.Post(env.server.URL+"/v1/reload", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body reloadResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || body.Dataset.Generation != 2 {
		t.Fatalf("reload = %d %+v", resp.StatusCode, body)
	}

	var years yearsResponse
	getJSON(t, env.server.URL+"/v1/years", &years)
	if years.Latest != 2025 {
		t.Errorf("latest after reload = %d", years.Latest)
	}

	if code := getJSON(t, env.server.URL+"/v1/reload", nil); code != http.StatusMethodNotAllowed {
		t.Errorf("GET reload status = %d", code)
	}
}

func TestNotLoaded(t *testing.T) {
	store := dataset.NewStore(t.TempDir(), nil)
	eps := NewEndpoints(dashboard.New(store, 0, nil), store, nil)
	srv := httptest.NewServer(NewRouter(RouterConfig{Endpoints: eps}))
	defer srv.Close()

	var body map[string]string
	if code := getJSON(t, srv.URL+"/v1/kpis", &body); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", code)
	}
	var health healthResponse
	getJSON(t, srv.URL+"/v1/health", &health)
	if health.Status != "loading" {
		t.Errorf("health = %+v", health)
	}
}

func TestRequestIDAndCORS(t *testing.T) {
	env := setup(t, 0)
	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/v1/years", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}

	resp, err = http.Get(env.server.URL + "/v1/years")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(resp.Header.Get("X-Request-ID")) != 36 {
		t.Errorf("generated X-Request-ID = %q", resp.Header.Get("X-Request-ID"))
	}
}

func TestRateLimit(t *testing.T) {
	env := setup(t, 0.001)
	if code := getJSON(t, env.server.URL+"/v1/years", nil); code != http.StatusOK {
		t.Fatalf("first status = %d", code)
	}
	if code := getJSON(t, env.server.URL+"/v1/years", nil); code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setup(t, 0)
	getJSON(t, env.server.URL+"/v1/years", nil)
	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"ganaderia_http_requests_total", "ganaderia_endpoint_duration_seconds"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestMCPTools(t *testing.T) {
	env := setup(t, 0)
	srv := NewMCPServer(env.eps, "test")

	call := func(name string, args map[string]any) string {
		t.Helper()
		msg, _ := json.Marshal(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"method":  "tools/call",
			"params":  map[string]any{"name": name, "arguments": args},
		})
		resp := srv.HandleMessage(context.Background(), msg)
		out, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return string(out)
	}

	if out := call("list_years", nil); !strings.Contains(out, `\"latest\":2024`) {
		t.Errorf("list_years = %s", out)
	}
	if out := call("department_ranking", map[string]any{"year": 2023, "top": 1}); !strings.Contains(out, "Antioquia") || strings.Contains(out, "Valle") {
		t.Errorf("department_ranking = %s", out)
	}
	if out := call("annual_totals", map[string]any{"department": "ANTIOQUIA"}); !strings.Contains(out, `\"year_over_year_percent\":20`) {
		t.Errorf("annual_totals = %s", out)
	}
	if out := call("kpis", map[string]any{"year": "nope"}); !strings.Contains(out, "invalid arguments") {
		t.Errorf("kpis with bad year = %s", out)
	}
	if out := call("breakdown", map[string]any{"year": 1500}); !strings.Contains(out, "year must be") {
		t.Errorf("breakdown with old year = %s", out)
	}
}
