package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/daniela2708/ganaderia/pkg/dataset"
)

const animalsCSV = `TIPO ANIMAL,DEPARTAMENTO,MUNICIPIO,CODIGO MUNICIPIO,AÑO,TERNERO,SEXO,RANGO EDAD,TOTAL BOVINOS
BOVINO,ANTIOQUIA,MEDELLIN,05001,2024,NO,HEMBRA,MAYOR A 3 AÑOS,1000
BOVINO,antioquia,Envigado,05266,2024,SI,MACHO,MENOR A 1 AÑO,500
BOVINO,CORDOBA,MONTERIA,23001,,NO,HEMBRA,MAYOR A 3 AÑOS,300
`

const farmsCSV = `TIPO,DEPARTAMENTO,MUNICIPIO,CODIGO MUNICIPIO,AÑO,TAMAÑO FINCA,TOTAL FINCAS
FINCA,ANTIOQUIA,MEDELLIN,05001,2024,1 A 50,50
`

func serveBody(t *testing.T, body []byte) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	t.Cleanup(ts.Close)
	return ts.URL
}

func mustGet(t *testing.T, id string) Adapter {
	t.Helper()
	a, err := Get(id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return a
}

func TestRegistry(t *testing.T) {
	all := All()
	if len(all) < 2 || all[0].ID() != "ica-bovinos" || all[1].ID() != "ica-fincas" {
		t.Fatalf("registered adapters = %v", all)
	}
	if mustGet(t, "ica-fincas").Table() != TableFarms {
		t.Error("ica-fincas should produce the farm table")
	}
	if _, err := Get("insee-prenoms"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
}

func TestImportCSV(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	res, err := mustGet(t, "ica-bovinos").Import(ctx, serveBody(t, []byte(animalsCSV)), dir)
	if err != nil {
		t.Fatalf("Import animals: %v", err)
	}
	if res.Rows != 2 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 2 rows and 1 skipped", res)
	}
	if res.Path != filepath.Join(dir, dataset.DefaultAnimalsFile) {
		t.Errorf("Path = %q", res.Path)
	}

	if _, err := mustGet(t, "ica-fincas").Import(ctx, serveBody(t, []byte(farmsCSV)), dir); err != nil {
		t.Fatalf("Import farms: %v", err)
	}

	m, err := dataset.LoadManifest(filepath.Join(dir, dataset.ManifestFile))
	if err != nil {
		t.Fatalf("manifest should be written on first import: %v", err)
	}
	if m.SourceURL == "" || m.Version == "" {
		t.Errorf("manifest = %+v", m)
	}

	ds, err := dataset.Load(dir, nil)
	if err != nil {
		t.Fatalf("imported directory should load: %v", err)
	}
	if len(ds.Animals) != 2 || len(ds.Farms) != 1 {
		t.Errorf("loaded %d animals, %d farms", len(ds.Animals), len(ds.Farms))
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.IsDir() {
			t.Errorf("scratch dir %s left behind", e.Name())
		}
	}
}

func TestImportZip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("2024/censo_bovino.csv")
	w.Write([]byte(animalsCSV))
	zw.Close()

	dir := t.TempDir()
	res, err := mustGet(t, "ica-bovinos").Import(context.Background(), serveBody(t, buf.Bytes()), dir)
	if err != nil {
		t.Fatalf("Import zip: %v", err)
	}
	if res.Rows != 2 {
		t.Errorf("Rows = %d", res.Rows)
	}
}

func TestImportRejectsNonCensus(t *testing.T) {
	dir := t.TempDir()
	page := []byte("<html><body>Censos pecuarios</body></html>")

	_, err := mustGet(t, "ica-bovinos").Import(context.Background(), serveBody(t, page), dir)
	if err == nil {
		t.Fatal("expected an HTML page to be rejected")
	}
	if _, err := os.Stat(filepath.Join(dir, dataset.DefaultAnimalsFile)); !os.IsNotExist(err) {
		t.Error("rejected download must not be installed")
	}
}

func TestImportHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	header := []byte("TIPO,DEPARTAMENTO,MUNICIPIO,AÑO,TOTAL FINCAS\n")
	if _, err := mustGet(t, "ica-fincas").Import(context.Background(), serveBody(t, header), dir); err == nil {
		t.Fatal("expected error for a table without rows")
	}
}

func TestImportHonorsManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := "id: censo-test\nanimals_file: animales.csv\nversion: v1\n"
	os.WriteFile(filepath.Join(dir, dataset.ManifestFile), []byte(manifest), 0o644)

	res, err := mustGet(t, "ica-bovinos").Import(context.Background(), serveBody(t, []byte(animalsCSV)), dir)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if filepath.Base(res.Path) != "animales.csv" {
		t.Errorf("Path = %q, want the manifest's animals_file", res.Path)
	}
	data, _ := os.ReadFile(filepath.Join(dir, dataset.ManifestFile))
	if string(data) != manifest {
		t.Error("existing manifest must not be rewritten")
	}
}
