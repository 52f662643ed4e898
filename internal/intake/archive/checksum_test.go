package archive

import (
	"testing"

	"github.com/google/uuid"
)

func TestComputeChecksumIsStableAcrossRuns(t *testing.T) {
	db, _ := newFixtureArchive(t, map[string]any{
		"package_id":          uuid.New().String(),
		"exported_by_user_id": uuid.New().String(),
		"created_utc":         "2026-01-01T00:00:00Z",
		"exported_date_utc":   "2026-01-01T00:00:00Z",
	})
	if _, err := db.Exec(`INSERT INTO buildings (id, building_code) VALUES ('b1', 'BLD-001')`); err != nil {
		t.Fatalf("seed building: %v", err)
	}

	first, err := ComputeChecksum(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ComputeChecksum(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected checksum to be stable, got %s then %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected a 64-character hex SHA-256 digest, got %q", first)
	}
}

func TestComputeChecksumChangesWhenDataChanges(t *testing.T) {
	db, _ := newFixtureArchive(t, map[string]any{
		"package_id":          uuid.New().String(),
		"exported_by_user_id": uuid.New().String(),
		"created_utc":         "2026-01-01T00:00:00Z",
		"exported_date_utc":   "2026-01-01T00:00:00Z",
	})

	before, err := ComputeChecksum(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO buildings (id, building_code) VALUES ('b1', 'BLD-001')`); err != nil {
		t.Fatalf("seed building: %v", err)
	}

	after, err := ComputeChecksum(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before == after {
		t.Fatal("expected checksum to change after inserting a row")
	}
}
