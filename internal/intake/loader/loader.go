// Package loader implements the Staging Loader (SPEC_FULL.md §4.2): it
// streams each entity table out of an opened `.uhc` archive, in the fixed
// topological order the commit DAG later reuses, and bulk-inserts the rows
// into the per-package staging schema.
package loader

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/ports"
)

// tableForKind maps an EntityKind to its archive table name.
var tableForKind = map[model.EntityKind]string{
	model.EntityBuilding:               "buildings",
	model.EntityPropertyUnit:           "property_units",
	model.EntityPerson:                 "persons",
	model.EntityHousehold:              "households",
	model.EntityPersonPropertyRelation: "person_property_relations",
	model.EntityEvidence:               "evidences",
	model.EntitySurvey:                 "surveys",
	model.EntityClaim:                  "claims",
	model.EntityDocument:               "documents",
}

// batchSize caps the number of rows handed to StagingStore.BulkInsert per
// call, bounding memory the way the teacher's CSV upload batches rows
// before a pgx.CopyFrom (internal/core/upload.go's insertWithCopy).
const batchSize = 1000

// Loader copies archive rows into the staging schema.
type Loader struct {
	staging ports.StagingStore
}

// New builds a Loader over the given staging store.
func New(staging ports.StagingStore) *Loader {
	return &Loader{staging: staging}
}

// Report tallies how many rows were loaded per entity kind.
type Report struct {
	Counts model.EntityCounts
}

// LoadPackage truncates and reloads every staged entity kind from db, in
// model.LoadOrder, making repeated calls for the same importPackageID
// idempotent (SPEC_FULL.md §4.2).
func (l *Loader) LoadPackage(ctx context.Context, importPackageID uuid.UUID, db *sql.DB) (Report, error) {
	report := Report{Counts: model.EntityCounts{}}

	for _, kind := range model.LoadOrder {
		table, ok := tableForKind[kind]
		if !ok {
			continue
		}

		if err := l.staging.TruncateForReload(ctx, importPackageID, kind); err != nil {
			return report, fmt.Errorf("truncate staging for %s: %w", kind, err)
		}

		n, err := l.loadTable(ctx, importPackageID, kind, table, db)
		if err != nil {
			return report, fmt.Errorf("load %s from %s: %w", kind, table, err)
		}
		report.Counts[kind] = n
	}

	return report, nil
}

func (l *Loader) loadTable(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind, table string, db *sql.DB) (int, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT * FROM %s", table))
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("read %s columns: %w", table, err)
	}

	batch := make([]*model.StagingRow, 0, batchSize)
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := l.staging.BulkInsert(ctx, importPackageID, kind, batch); err != nil {
			return fmt.Errorf("bulk insert %s batch: %w", table, err)
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return total, fmt.Errorf("scan %s row: %w", table, err)
		}

		row, err := toStagingRow(importPackageID, kind, columns, values)
		if err != nil {
			return total, fmt.Errorf("decode %s row: %w", table, err)
		}

		batch = append(batch, row)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return total, fmt.Errorf("iterate %s rows: %w", table, err)
	}
	if err := flush(); err != nil {
		return total, err
	}

	return total, nil
}

// toStagingRow assembles a StagingRow from one archive row. The archive's
// primary-key column is conventionally "id" and carries the original
// device-assigned UUID.
func toStagingRow(importPackageID uuid.UUID, kind model.EntityKind, columns []string, values []any) (*model.StagingRow, error) {
	fields := make(map[string]any, len(columns))
	var originalID uuid.UUID

	for i, col := range columns {
		v := normalizeSQLiteValue(values[i])
		fields[col] = v
		if col == "id" {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("id column is not a string")
			}
			parsed, err := uuid.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("id column is not a UUID: %w", err)
			}
			originalID = parsed
		}
	}

	return &model.StagingRow{
		ID:               uuid.New(),
		ImportPackageID:  importPackageID,
		OriginalEntityID: originalID,
		EntityKind:       kind,
		Fields:           fields,
		ValidationStatus: model.ValidationPending,
	}, nil
}

// normalizeSQLiteValue converts database/sql's driver-returned []byte for
// TEXT columns into string, so downstream Fields map lookups (FieldString,
// FieldUUID, validator struct decoding) never have to type-switch on
// []byte themselves.
func normalizeSQLiteValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
