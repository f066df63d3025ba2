package importer

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS census_sources (
	adapter_id     TEXT PRIMARY KEY,
	table_name     TEXT NOT NULL,
	description    TEXT NOT NULL,
	source_url     TEXT NOT NULL,
	license        TEXT NOT NULL DEFAULT '',
	checked_at     INTEGER,
	http_status    INTEGER,
	check_error    TEXT,
	last_modified  TEXT,
	imported_at    INTEGER,
	imported_rows  INTEGER,
	updated_at     INTEGER NOT NULL
)`

// Probe is the outcome of one availability check against a source URL.
type Probe struct {
	At     time.Time
	Status int // 0 when the request never got an answer
	Err    string
	// LastModified is the raw Last-Modified header, empty when absent.
	LastModified string
}

// OK reports a 2xx or 3xx answer.
func (p Probe) OK() bool { return p.Status >= 200 && p.Status < 400 }

// Source is a census table the importer knows how to fetch.
type Source struct {
	AdapterID   string
	Table       string
	Description string
	URL         string
	License     string
	UpdatedAt   time.Time

	LastProbe *Probe // nil until the checker has run

	ImportedAt   time.Time // zero when never imported
	ImportedRows int
}

// SourceDB persists per-source URLs, probe results and import history.
type SourceDB struct {
	db *sql.DB
}

// OpenSourceDB opens or creates the SQLite file at path.
func OpenSourceDB(path string) (*SourceDB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open source db: %w", err)
	}
	// Probes run in parallel; one connection serializes their write transactions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create census_sources: %w", err)
	}
	return &SourceDB{db: db}, nil
}

func (s *SourceDB) Close() error { return s.db.Close() }

// Seed adds a row for each adapter that has none. A URL set with SetURL is
// never reset.
func (s *SourceDB) Seed(adapters []Adapter) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO census_sources
		(adapter_id, table_name, description, source_url, license, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, a := range adapters {
		if _, err := stmt.Exec(a.ID(), a.Table(), a.Description(), a.DefaultURL(), a.License(), now); err != nil {
			return fmt.Errorf("seed %s: %w", a.ID(), err)
		}
	}
	return tx.Commit()
}

func (s *SourceDB) GetURL(adapterID string) (string, error) {
	var url string
	err := s.db.QueryRow(`SELECT source_url FROM census_sources WHERE adapter_id = ?`, adapterID).Scan(&url)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, adapterID)
	}
	if err != nil {
		return "", fmt.Errorf("get url for %s: %w", adapterID, err)
	}
	return url, nil
}

// SetURL points an adapter at a new file.
func (s *SourceDB) SetURL(adapterID, url string) error {
	return s.update(adapterID, `UPDATE census_sources SET source_url = ?, updated_at = ? WHERE adapter_id = ?`,
		url, time.Now().Unix(), adapterID)
}

// RecordProbe stores p and reports whether Last-Modified moved since the
// previous probe. A missing header on either side never counts as a change.
func (s *SourceDB) RecordProbe(adapterID string, p Probe) (changed bool, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var prev sql.NullString
	err = tx.QueryRow(`SELECT last_modified FROM census_sources WHERE adapter_id = ?`, adapterID).Scan(&prev)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("%w: %q", ErrUnknownSource, adapterID)
	}
	if err != nil {
		return false, fmt.Errorf("read probe for %s: %w", adapterID, err)
	}

	lastModified := prev
	if p.LastModified != "" {
		changed = prev.Valid && prev.String != p.LastModified
		lastModified = sql.NullString{String: p.LastModified, Valid: true}
	}
	_, err = tx.Exec(`UPDATE census_sources
		SET checked_at = ?, http_status = ?, check_error = ?, last_modified = ?
		WHERE adapter_id = ?`,
		p.At.Unix(), p.Status, nullString(p.Err), lastModified, adapterID)
	if err != nil {
		return false, fmt.Errorf("record probe for %s: %w", adapterID, err)
	}
	return changed, tx.Commit()
}

// RecordImport stores when a table was last installed and its row count.
func (s *SourceDB) RecordImport(adapterID string, rows int) error {
	return s.update(adapterID, `UPDATE census_sources SET imported_at = ?, imported_rows = ? WHERE adapter_id = ?`,
		time.Now().Unix(), rows, adapterID)
}

func (s *SourceDB) update(adapterID, q string, args ...any) error {
	res, err := s.db.Exec(q, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", adapterID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q not in census_sources", ErrUnknownSource, adapterID)
	}
	return nil
}

// ListSources returns every row, sorted by adapter ID.
func (s *SourceDB) ListSources() ([]Source, error) {
	rows, err := s.db.Query(`SELECT adapter_id, table_name, description, source_url, license, updated_at,
		checked_at, http_status, check_error, last_modified, imported_at, imported_rows
		FROM census_sources ORDER BY adapter_id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var (
			src                       Source
			updated                   int64
			checked, status, imported sql.NullInt64
			importedRows              sql.NullInt64
			checkErr, lastModified    sql.NullString
		)
		if err := rows.Scan(&src.AdapterID, &src.Table, &src.Description, &src.URL, &src.License, &updated,
			&checked, &status, &checkErr, &lastModified, &imported, &importedRows); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		src.UpdatedAt = time.Unix(updated, 0)
		if checked.Valid {
			src.LastProbe = &Probe{
				At:           time.Unix(checked.Int64, 0),
				Status:       int(status.Int64),
				Err:          checkErr.String,
				LastModified: lastModified.String,
			}
		}
		if imported.Valid {
			src.ImportedAt = time.Unix(imported.Int64, 0)
			src.ImportedRows = int(importedRows.Int64)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
