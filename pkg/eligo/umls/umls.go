// Package umls keeps the SNOMED vocabulary lookup table: a one-time
// import from the tab-separated distribution file into SQLite, read-only
// thereafter.
package umls

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"

	_ "modernc.org/sqlite"
)

// SNOMEDLookup resolves SNOMED concept identifiers to preferred terms.
type SNOMEDLookup struct {
	db *sql.DB
}

// Open opens (and if needed creates) the vocabulary database.
func Open(ctx context.Context, path string) (*SNOMEDLookup, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS snomed (
	concept_id INTEGER PRIMARY KEY,
	lang TEXT,
	term TEXT
);
`); err != nil {
		db.Close()
		return nil, err
	}

	return &SNOMEDLookup{db: db}, nil
}

// Close closes the database connection.
func (l *SNOMEDLookup) Close() error {
	return l.db.Close()
}

// LookupCode returns the term for the given SNOMED code, or "" when
// unknown.
func (l *SNOMEDLookup) LookupCode(ctx context.Context, code string) string {
	var term string
	err := l.db.QueryRowContext(ctx, `SELECT term FROM snomed WHERE concept_id = ?`, code).Scan(&term)
	if err != nil {
		return ""
	}
	return term
}

// ImportIfNecessary reads the tab-separated SNOMED description file and
// fills the lookup table. A non-empty table skips the import.
func (l *SNOMEDLookup) ImportIfNecessary(ctx context.Context, descriptionFile string) error {
	var existing int64
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snomed`).Scan(&existing); err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	f, err := os.Open(descriptionFile)
	if err != nil {
		return fmt.Errorf("opening SNOMED file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("reading SNOMED file: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO snomed (concept_id, lang, term) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	imported := 0
	for i, row := range rows {
		if i == 0 || len(row) < 8 {
			// header row or short row
			continue
		}
		conceptID, err := strconv.ParseInt(row[4], 10, 64)
		if err != nil {
			continue
		}
		if _, err := stmt.ExecContext(ctx, conceptID, row[5], row[7]); err != nil {
			return fmt.Errorf("inserting concept %d: %w", conceptID, err)
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("umls: imported %d SNOMED concepts", imported)
	return nil
}
