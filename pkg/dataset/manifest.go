package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File names inside a dataset directory.
const (
	ManifestFile       = "dataset.yaml"
	SnapshotFile       = "data.gob"
	DefaultAnimalsFile = "censo_bovino_animales_consolidado.csv"
	DefaultFarmsFile   = "censo_bovino_fincas_consolidado.csv"
)

// Manifest describes a census dataset directory: where the two consolidated
// tables live and how to read them.
type Manifest struct {
	ID          string     `yaml:"id" json:"id"`
	Version     string     `yaml:"version" json:"version"`
	Source      string     `yaml:"source" json:"source"`
	SourceURL   string     `yaml:"source_url" json:"source_url,omitempty"`
	License     string     `yaml:"license" json:"license,omitempty"`
	AnimalsFile string     `yaml:"animals_file" json:"animals_file"`
	FarmsFile   string     `yaml:"farms_file" json:"farms_file"`
	AliasesFile string     `yaml:"aliases_file" json:"aliases_file,omitempty"`
	Format      FormatSpec `yaml:"format" json:"-"`
	// Columns overrides header names per logical field, e.g.
	// total_head_count: "TOTAL BOVINOS 2024".
	Columns map[string]string `yaml:"columns" json:"-"`
}

// FormatSpec describes the CSV layout shared by both tables.
type FormatSpec struct {
	Delimiter string `yaml:"delimiter"`
	Encoding  string `yaml:"encoding"`
}

// DefaultManifest is used when a directory has no dataset.yaml.
func DefaultManifest() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.ID == "" {
		m.ID = "censo-bovino"
	}
	if m.Source == "" {
		m.Source = "ICA - Censo Pecuario Nacional"
	}
	if m.AnimalsFile == "" {
		m.AnimalsFile = DefaultAnimalsFile
	}
	if m.FarmsFile == "" {
		m.FarmsFile = DefaultFarmsFile
	}
	if m.Format.Delimiter == "" {
		m.Format.Delimiter = ","
	}
}

// LoadManifest reads and parses a dataset.yaml file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if d := []rune(m.Format.Delimiter); len(d) > 1 {
		return nil, fmt.Errorf("manifest %s: delimiter %q must be a single character", path, m.Format.Delimiter)
	}
	m.applyDefaults()
	return &m, nil
}

// ResolveManifest loads dir/dataset.yaml, falling back to DefaultManifest
// when the file does not exist.
func ResolveManifest(dir string) (*Manifest, error) {
	m, err := LoadManifest(filepath.Join(dir, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultManifest(), nil
	}
	return m, err
}
