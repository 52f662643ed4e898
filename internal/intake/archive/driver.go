// Package archive reads `.uhc` packages: a single-file embedded-relational
// container produced by field-collection devices. Grounded on
// untoldecay-BeadsLog's use of github.com/ncruces/go-sqlite3 as a pure-Go,
// cgo-free SQLite driver, so archive fixtures in tests run without a C
// toolchain and without a separate system SQLite dependency.
package archive

import (
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// RequiredTables is the closed table set a `.uhc` archive must carry
// (SPEC_FULL.md §6).
var RequiredTables = []string{
	"manifest",
	"buildings",
	"property_units",
	"persons",
	"households",
	"person_property_relations",
	"evidences",
	"surveys",
	"claims",
	"documents",
	"referrals",
	"attachment_blobs",
}

// DataTables is RequiredTables minus "manifest" — the tables the checksum
// canonicalization hashes over (SPEC_FULL.md §4.1 step 4).
var DataTables = RequiredTables[1:]

// Open opens a `.uhc` file read-only. The caller must Close the returned
// handle.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&immutable=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return db, nil
}

// VerifyTables confirms every required table is present, the cheapest
// structural check that an archive is not truncated or the wrong format.
func VerifyTables(db *sql.DB) error {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan table name: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range RequiredTables {
		if !present[t] {
			return fmt.Errorf("missing required table %q", t)
		}
	}
	return nil
}
