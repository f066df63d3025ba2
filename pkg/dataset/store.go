package dataset

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNotLoaded is returned by Current before the first successful Load.
var ErrNotLoaded = errors.New("dataset not loaded")

// Store holds the currently served dataset. Reloads swap the whole dataset
// atomically; a failed reload keeps the previous one.
type Store struct {
	mu       sync.RWMutex
	dir      string
	logger   *slog.Logger
	current  *Dataset
	gen      uint64
	loadedAt time.Time
	// reload serializes Load calls so two concurrent reloads cannot
	// interleave their parse and swap.
	reload sync.Mutex
}

// NewStore creates an empty store for the given directory.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the dataset directory.
func (s *Store) Dir() string { return s.dir }

// Load parses the dataset directory and publishes the result.
func (s *Store) Load() error {
	s.reload.Lock()
	defer s.reload.Unlock()

	start := time.Now()
	d, err := Load(s.dir, s.logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = d
	s.gen++
	s.loadedAt = time.Now()
	gen := s.gen
	s.mu.Unlock()

	s.logger.Info("dataset loaded",
		"id", d.Manifest.ID,
		"origin", d.Origin,
		"animals", len(d.Animals),
		"farms", len(d.Farms),
		"generation", gen,
		"duration", time.Since(start),
	)
	return nil
}

// Reload reloads the dataset from disk (hot reload).
func (s *Store) Reload() error {
	return s.Load()
}

// Current returns the served dataset and its generation. The generation
// increases with every successful load.
func (s *Store) Current() (*Dataset, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, 0, ErrNotLoaded
	}
	return s.current, s.gen, nil
}

// Generation returns the current generation, 0 before the first load.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Info describes the served dataset.
func (s *Store) Info() (Info, error) {
	s.mu.RLock()
	d, gen, at := s.current, s.gen, s.loadedAt
	s.mu.RUnlock()
	if d == nil {
		return Info{}, ErrNotLoaded
	}
	return Info{
		ID:         d.Manifest.ID,
		Version:    d.Manifest.Version,
		Source:     d.Manifest.Source,
		SourceURL:  d.Manifest.SourceURL,
		Origin:     d.Origin,
		Animals:    len(d.Animals),
		Farms:      len(d.Farms),
		Years:      d.Years(),
		Generation: gen,
		LoadedAt:   at,
	}, nil
}
