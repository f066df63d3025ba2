package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/daniela2708/ganaderia/pkg/dataset"
	"github.com/daniela2708/ganaderia/pkg/names"
)

// icaCensusPage is the ICA page publishing the yearly bovine census files.
// The consolidated CSV URL is set per source with `import -set-url`.
const icaCensusPage = "https://www.ica.gov.co/areas/pecuaria/servicios/epidemiologia-veterinaria/censos-2016/censo-2018"

func init() {
	Register(&icaTable{
		id:    "ica-bovinos",
		table: TableAnimals,
		desc:  "ICA bovine census, head count by municipality, sex and age range (2018-2025)",
	})
	Register(&icaTable{
		id:    "ica-fincas",
		table: TableFarms,
		desc:  "ICA bovine census, farm count by municipality and farm size (2018-2025)",
	})
}

// icaTable imports one consolidated ICA table, plain CSV or zipped.
type icaTable struct {
	id, table, desc string
}

func (a *icaTable) ID() string          { return a.id }
func (a *icaTable) Table() string       { return a.table }
func (a *icaTable) Description() string { return a.desc }
func (a *icaTable) DefaultURL() string  { return icaCensusPage }
func (a *icaTable) License() string     { return "Datos abiertos ICA" }

func (a *icaTable) Import(ctx context.Context, sourceURL, dataDir string) (Result, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return Result{}, err
	}
	m, err := dataset.ResolveManifest(dataDir)
	if err != nil {
		return Result{}, err
	}
	target := m.AnimalsFile
	if a.table == TableFarms {
		target = m.FarmsFile
	}

	// Dot-prefixed scratch dir: the dataset watcher ignores it.
	tmpDir, err := os.MkdirTemp(dataDir, ".import-"+a.id+"-")
	if err != nil {
		return Result{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	raw := filepath.Join(tmpDir, "download")
	if err := downloadFile(ctx, sourceURL, raw); err != nil {
		return Result{}, err
	}
	csvPath, err := extractCSV(raw, tmpDir)
	if err != nil {
		return Result{}, err
	}

	stats, err := a.validate(csvPath, m)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %s is not a usable census table: %w", a.id, sourceURL, err)
	}

	dest := filepath.Join(dataDir, target)
	if err := os.Rename(csvPath, dest); err != nil {
		return Result{}, fmt.Errorf("install %s: %w", dest, err)
	}

	if _, err := os.Stat(filepath.Join(dataDir, dataset.ManifestFile)); errors.Is(err, os.ErrNotExist) {
		m.SourceURL = sourceURL
		m.License = a.License()
		m.Version = time.Now().Format("2006-01")
		if err := writeManifest(dataDir, m); err != nil {
			return Result{}, err
		}
	}

	return Result{Path: dest, Rows: stats.Rows, Skipped: stats.Skipped, Merged: stats.Merged}, nil
}

// validate parses the whole file with the same reader the server uses.
func (a *icaTable) validate(path string, m *dataset.Manifest) (dataset.ParseStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataset.ParseStats{}, err
	}
	defer f.Close()

	var stats dataset.ParseStats
	if a.table == TableFarms {
		_, stats, err = dataset.ParseFarms(f, m, names.Default())
	} else {
		_, stats, err = dataset.ParseAnimals(f, m, names.Default())
	}
	if err != nil {
		return stats, err
	}
	if stats.Rows == 0 {
		return stats, errors.New("no data rows")
	}
	return stats, nil
}
