// Package dataset loads the consolidated cattle census tables into memory
// and keeps them available for the aggregation core.
package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/daniela2708/ganaderia/pkg/census"
	"github.com/daniela2708/ganaderia/pkg/names"
)

// Origin tells where a loaded dataset came from.
const (
	OriginCSV = "csv"
	OriginGob = "gob"
)

// Dataset is one loaded census: both record collections with their manifest.
// Records are never mutated after load, so a Dataset may be shared freely.
type Dataset struct {
	Manifest *Manifest             `json:"manifest"`
	Animals  []census.AnimalRecord `json:"-"`
	Farms    []census.FarmRecord   `json:"-"`
	Origin   string                `json:"origin"`
	Stats    LoadStats             `json:"stats"`
	// Names is the normalizer set the records were built with.
	Names names.Set `json:"-"`

	fingerprint string
}

// LoadStats aggregates the parse statistics of both tables.
type LoadStats struct {
	Animals ParseStats `json:"animals"`
	Farms   ParseStats `json:"farms"`
}

// Load reads a dataset directory. A data.gob snapshot takes priority over the
// CSV tables when it is at least as recent as both of them.
func Load(dir string, logger *slog.Logger) (*Dataset, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := ResolveManifest(dir)
	if err != nil {
		return nil, err
	}

	set := names.Default()
	if m.AliasesFile != "" {
		f, err := names.LoadAliasFile(filepath.Join(dir, m.AliasesFile))
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", m.ID, err)
		}
		if set, err = set.Extend(f); err != nil {
			return nil, fmt.Errorf("dataset %s: %w", m.ID, err)
		}
	}

	animalsPath := filepath.Join(dir, m.AnimalsFile)
	farmsPath := filepath.Join(dir, m.FarmsFile)
	gobPath := filepath.Join(dir, SnapshotFile)

	fp := fingerprint(dir, m)

	if snapshotFresh(gobPath, animalsPath, farmsPath) {
		d := &Dataset{Manifest: m, Origin: OriginGob, Names: set, fingerprint: fp}
		ok, err := d.loadGob(gobPath)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", m.ID, err)
		}
		if ok {
			d.Stats.Animals.Rows = len(d.Animals)
			d.Stats.Farms.Rows = len(d.Farms)
			return d, nil
		}
		logger.Info("snapshot built under another manifest or alias file, reading CSV", "dataset", m.ID)
	}

	d := &Dataset{Manifest: m, Origin: OriginCSV, Names: set, fingerprint: fp}
	if err := readFile(animalsPath, func(f *os.File) error {
		var err error
		d.Animals, d.Stats.Animals, err = ParseAnimals(f, m, set)
		return err
	}); err != nil {
		return nil, fmt.Errorf("dataset %s: animals: %w", m.ID, err)
	}
	if err := readFile(farmsPath, func(f *os.File) error {
		var err error
		d.Farms, d.Stats.Farms, err = ParseFarms(f, m, set)
		return err
	}); err != nil {
		return nil, fmt.Errorf("dataset %s: farms: %w", m.ID, err)
	}

	for _, s := range []struct {
		table string
		stats ParseStats
	}{{"animals", d.Stats.Animals}, {"farms", d.Stats.Farms}} {
		if s.stats.Skipped > 0 {
			logger.Warn("rows without a valid year skipped", "dataset", m.ID, "table", s.table, "skipped", s.stats.Skipped)
		}
		if s.stats.Merged > 0 {
			logger.Debug("name variants merged", "dataset", m.ID, "table", s.table, "variants", s.stats.Merged)
		}
	}
	return d, nil
}

func readFile(path string, fn func(*os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()
	return fn(f)
}

// snapshotFresh reports whether the gob snapshot exists and no CSV table is
// newer. Missing tables do not invalidate a snapshot.
func snapshotFresh(gobPath string, tables ...string) bool {
	gs, err := os.Stat(gobPath)
	if err != nil {
		return false
	}
	for _, p := range tables {
		if ts, err := os.Stat(p); err == nil && ts.ModTime().After(gs.ModTime()) {
			return false
		}
	}
	return true
}

// fingerprint hashes the manifest and alias file. Records normalized under
// one fingerprint must not be served under another.
func fingerprint(dir string, m *Manifest) string {
	h := sha256.New()
	for _, name := range []string{ManifestFile, m.AliasesFile} {
		if name == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		fmt.Fprintf(h, "%s:%d:", name, len(data))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NameSet returns the normalizers matching the records, the built-in ones
// for a Dataset assembled by hand.
func (d *Dataset) NameSet() names.Set {
	if d.Names.Department == nil || d.Names.Municipality == nil {
		return names.Default()
	}
	return d.Names
}

// Years returns the distinct census years in the dataset.
func (d *Dataset) Years() []int {
	return census.AvailableYears(d.Animals, d.Farms)
}

// Info is the public summary of a loaded dataset.
type Info struct {
	ID         string    `json:"id"`
	Version    string    `json:"version,omitempty"`
	Source     string    `json:"source"`
	SourceURL  string    `json:"source_url,omitempty"`
	Origin     string    `json:"origin"`
	Animals    int       `json:"animal_records"`
	Farms      int       `json:"farm_records"`
	Years      []int     `json:"years"`
	Generation uint64    `json:"generation"`
	LoadedAt   time.Time `json:"loaded_at"`
}
