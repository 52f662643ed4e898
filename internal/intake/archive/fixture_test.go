package archive

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// newFixtureArchive creates a `.uhc`-shaped SQLite file with every required
// table (empty except manifest) for tests that only need to exercise the
// driver/manifest/checksum plumbing, not realistic entity data.
func newFixtureArchive(t *testing.T, manifestRow map[string]any) (*sql.DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.uhc")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE manifest (
		package_id TEXT, schema_version TEXT, created_utc TEXT, exported_date_utc TEXT,
		exported_by_user_id TEXT, device_id TEXT, total_record_count INTEGER,
		total_attachment_size_bytes INTEGER, vocabulary_versions_json TEXT,
		checksum TEXT, digital_signature TEXT,
		building_count INTEGER, property_unit_count INTEGER, person_count INTEGER,
		household_count INTEGER, person_property_relation_count INTEGER,
		evidence_count INTEGER, survey_count INTEGER, claim_count INTEGER,
		document_count INTEGER, referral_count INTEGER
	);
	CREATE TABLE buildings (id TEXT PRIMARY KEY, building_code TEXT);
	CREATE TABLE property_units (id TEXT PRIMARY KEY, unit_id TEXT);
	CREATE TABLE persons (id TEXT PRIMARY KEY, national_id TEXT);
	CREATE TABLE households (id TEXT PRIMARY KEY);
	CREATE TABLE person_property_relations (id TEXT PRIMARY KEY);
	CREATE TABLE evidences (id TEXT PRIMARY KEY);
	CREATE TABLE surveys (id TEXT PRIMARY KEY);
	CREATE TABLE claims (id TEXT PRIMARY KEY);
	CREATE TABLE documents (id TEXT PRIMARY KEY);
	CREATE TABLE referrals (id TEXT PRIMARY KEY);
	CREATE TABLE attachment_blobs (id TEXT PRIMARY KEY);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create fixture schema: %v", err)
	}

	cols := make([]string, 0, len(manifestRow))
	placeholders := make([]string, 0, len(manifestRow))
	args := make([]any, 0, len(manifestRow))
	for col, val := range manifestRow {
		cols = append(cols, col)
		placeholders = append(placeholders, "?")
		args = append(args, val)
	}
	insert := "INSERT INTO manifest (" + joinColumns(cols) + ") VALUES (" + joinColumns(placeholders) + ")"
	if _, err := db.Exec(insert, args...); err != nil {
		t.Fatalf("insert manifest row: %v", err)
	}

	return db, path
}
