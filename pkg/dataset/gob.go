package dataset

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daniela2708/ganaderia/pkg/census"
)

// snapshot is the gob wire form. Names are stored already normalized, so
// Fingerprint records the manifest and aliases they were normalized under.
type snapshot struct {
	Fingerprint string
	Animals     []census.AnimalRecord
	Farms       []census.FarmRecord
}

// loadGob fills d from path. It reports false, leaving d empty, when the
// snapshot was written under a different fingerprint.
func (d *Dataset) loadGob(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open gob file: %w", err)
	}
	defer f.Close()

	var s snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return false, fmt.Errorf("decode gob: %w", err)
	}
	if s.Fingerprint != d.fingerprint {
		return false, nil
	}
	d.Animals, d.Farms = s.Animals, s.Farms
	return true, nil
}

// SaveGob writes the records of d to path. The file is written next to its
// destination and renamed so readers never see a partial snapshot.
func SaveGob(d *Dataset, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create gob file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(snapshot{Fingerprint: d.fingerprint, Animals: d.Animals, Farms: d.Farms}); err != nil {
		tmp.Close()
		return fmt.Errorf("encode gob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close gob file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename gob file: %w", err)
	}
	return nil
}
