// Package store is the read-only CVE/CWE database the core queries: CVE
// descriptions, CWE descriptions, the mapping between them, and the
// unified-diff file changes each CVE carries. No schema is created or
// migrated here — the sqlite file is a prebuilt artifact, opened read-only.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Cwe is one weakness classification row.
type Cwe struct {
	ID          string
	Name        string
	Description string
}

// Cve is one CVE description row.
type Cve struct {
	ID          string
	Description string
}

// FileChange is one unified-diff change associated with a CVE: the raw
// diff text and the language tag used to pick a Tokenizer Variant.
type FileChange struct {
	ID       int64
	CveID    string
	Language string
	Diff     string
}

// Report is a joined view: one file change's CVE description plus every
// CWE it is classified under.
type Report struct {
	CveID       string
	Description string
	Diff        string
	Cwes        []Cwe
}

// Store wraps a read-only connection to the CVEfixes-style sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens path read-only. The core never creates or migrates this file —
// it is expected to already exist as a prebuilt data artifact.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open cve database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open cve database %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// ListCves returns every CVE id and description in the store.
func (s *Store) ListCves(ctx context.Context) ([]Cve, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cve_id, description FROM cve ORDER BY cve_id`)
	if err != nil {
		return nil, fmt.Errorf("list cves: %w", err)
	}
	defer rows.Close()

	var out []Cve
	for rows.Next() {
		var c Cve
		if err := rows.Scan(&c.ID, &c.Description); err != nil {
			return nil, fmt.Errorf("list cves: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCwes returns every CWE id, name and description in the store.
func (s *Store) ListCwes(ctx context.Context) ([]Cwe, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cwe_id, cwe_name, description FROM cwe ORDER BY cwe_id`)
	if err != nil {
		return nil, fmt.Errorf("list cwes: %w", err)
	}
	defer rows.Close()

	var out []Cwe
	for rows.Next() {
		var c Cwe
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("list cwes: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChangesByCve returns every file_change row for one CVE id.
func (s *Store) GetChangesByCve(ctx context.Context, cveID string) ([]FileChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cve_id, language, diff FROM file_change WHERE cve_id = ?`, cveID)
	if err != nil {
		return nil, fmt.Errorf("get changes for %s: %w", cveID, err)
	}
	defer rows.Close()
	return scanChanges(rows)
}

// GetChangesByLanguage returns every file_change row for one language tag.
// A request for "C++" also includes "C" changes, treating C as a subset
// dialect of C++ for matching purposes.
func (s *Store) GetChangesByLanguage(ctx context.Context, lang string) ([]FileChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cve_id, language, diff FROM file_change WHERE language = ?`, lang)
	if err != nil {
		return nil, fmt.Errorf("get changes for language %s: %w", lang, err)
	}
	defer rows.Close()
	out, err := scanChanges(rows)
	if err != nil {
		return nil, err
	}

	if lang == "C++" {
		more, err := s.GetChangesByLanguage(ctx, "C")
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}
	return out, nil
}

func scanChanges(rows *sql.Rows) ([]FileChange, error) {
	var out []FileChange
	for rows.Next() {
		var c FileChange
		if err := rows.Scan(&c.ID, &c.CveID, &c.Language, &c.Diff); err != nil {
			return nil, fmt.Errorf("scan file_change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CvesByCwe returns every CVE id classified under cweID.
func (s *Store) CvesByCwe(ctx context.Context, cweID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cve_id FROM cve_cwe WHERE cwe_id = ?`, cweID)
	if err != nil {
		return nil, fmt.Errorf("cves for cwe %s: %w", cweID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("cves for cwe %s: scan: %w", cweID, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CveReportByCveID joins a CVE's description, the diffs of all its
// file_change rows (joined by newlines, in row id order) and every CWE it is
// classified under, keyed directly by CVE id rather than by a file_change
// row — the shape a match result (which only carries a CVE id) needs for
// reporting.
func (s *Store) CveReportByCveID(ctx context.Context, cveID string) (*Report, error) {
	var r Report
	r.CveID = cveID
	row := s.db.QueryRowContext(ctx, `SELECT description FROM cve WHERE cve_id = ?`, cveID)
	if err := row.Scan(&r.Description); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("cve report: no cve %s", cveID)
		}
		return nil, fmt.Errorf("cve report: %w", err)
	}

	changes, err := s.GetChangesByCve(ctx, cveID)
	if err != nil {
		return nil, fmt.Errorf("cve report: %w", err)
	}
	for i, c := range changes {
		if i > 0 {
			r.Diff += "\n"
		}
		r.Diff += c.Diff
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cwe.cwe_id, cwe.cwe_name, cwe.description
		FROM cwe
		JOIN cve_cwe ON cve_cwe.cwe_id = cwe.cwe_id
		WHERE cve_cwe.cve_id = ?`, cveID)
	if err != nil {
		return nil, fmt.Errorf("cve report: cwes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Cwe
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("cve report: cwes: scan: %w", err)
		}
		r.Cwes = append(r.Cwes, c)
	}
	return &r, rows.Err()
}

// CveReport joins one file change's CVE description with every CWE it is
// classified under, for a per-match detail report keyed by file_change id.
func (s *Store) CveReport(ctx context.Context, fileChangeID int64) (*Report, error) {
	var r Report
	row := s.db.QueryRowContext(ctx, `
		SELECT cve.cve_id, cve.description, fc.diff
		FROM file_change fc
		JOIN cve ON cve.cve_id = fc.cve_id
		WHERE fc.id = ?`, fileChangeID)
	if err := row.Scan(&r.CveID, &r.Description, &r.Diff); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("cve report: no file_change with id %d", fileChangeID)
		}
		return nil, fmt.Errorf("cve report: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cwe.cwe_id, cwe.cwe_name, cwe.description
		FROM cwe
		JOIN cve_cwe ON cve_cwe.cwe_id = cwe.cwe_id
		WHERE cve_cwe.cve_id = ?`, r.CveID)
	if err != nil {
		return nil, fmt.Errorf("cve report: cwes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Cwe
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("cve report: cwes: scan: %w", err)
		}
		r.Cwes = append(r.Cwes, c)
	}
	return &r, rows.Err()
}
