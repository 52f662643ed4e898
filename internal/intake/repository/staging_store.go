package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/pgconv"
)

// stagingTableForKind names the per-entity-kind table in the isolated
// staging schema (SPEC_FULL.md §3). Business fields are held as a single
// jsonb column since their shape varies per device schema revision; the
// envelope columns around it are what the Validator, Duplicate Detector,
// and Commit Engine actually query on.
var stagingTableForKind = map[model.EntityKind]string{
	model.EntityBuilding:               "staging_buildings",
	model.EntityPropertyUnit:           "staging_property_units",
	model.EntityPerson:                 "staging_persons",
	model.EntityHousehold:              "staging_households",
	model.EntityPersonPropertyRelation: "staging_person_property_relations",
	model.EntityEvidence:               "staging_evidences",
	model.EntitySurvey:                 "staging_surveys",
	model.EntityClaim:                  "staging_claims",
	model.EntityDocument:               "staging_documents",
}

// StagingStore is the pgx-backed ports.StagingStore adapter.
type StagingStore struct {
	pool *pgxpool.Pool
}

// NewStagingStore builds a StagingStore over pool.
func NewStagingStore(pool *pgxpool.Pool) *StagingStore {
	return &StagingStore{pool: pool}
}

func (s *StagingStore) TruncateForReload(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind) error {
	table, ok := stagingTableForKind[kind]
	if !ok {
		return fmt.Errorf("no staging table for entity kind %s", kind)
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE import_package_id = $1`, quoteIdentifier(table)), pgconv.UUID(importPackageID))
	if err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	return nil
}

// DeleteForPackage removes importPackageID's staging rows from every
// entity-kind table, the cleanupStaging path of Cancel (SPEC_FULL.md
// §4.7).
func (s *StagingStore) DeleteForPackage(ctx context.Context, importPackageID uuid.UUID) error {
	for kind, table := range stagingTableForKind {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE import_package_id = $1`, quoteIdentifier(table)), pgconv.UUID(importPackageID)); err != nil {
			return fmt.Errorf("delete staging %s rows: %w", kind, err)
		}
	}
	return nil
}

// BulkInsert loads rows via pgx.CopyFrom, the same bulk path the teacher's
// insertWithCopy takes for CSV tables (internal/core/upload.go), falling
// back to a savepoint-guarded row-by-row insert when COPY rejects the whole
// batch (e.g. one row that violates a table constraint). A row whose fields
// do not marshal to JSON fails the call before COPY runs.
func (s *StagingStore) BulkInsert(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind, rows []*model.StagingRow) (int, error) {
	table, ok := stagingTableForKind[kind]
	if !ok {
		return 0, fmt.Errorf("no staging table for entity kind %s", kind)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	columns := []string{"id", "import_package_id", "original_entity_id", "entity_kind", "fields", "validation_status"}

	copyRows := make([][]any, 0, len(rows))
	for _, r := range rows {
		fieldsJSON, err := json.Marshal(r.Fields)
		if err != nil {
			return 0, fmt.Errorf("marshal fields for %s row %s: %w", kind, r.OriginalEntityID, err)
		}
		copyRows = append(copyRows, []any{
			pgconv.UUID(r.ID), pgconv.UUID(importPackageID), pgconv.UUID(r.OriginalEntityID),
			string(kind), fieldsJSON, string(r.ValidationStatus),
		})
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(copyRows))
	if err == nil {
		return int(n), nil
	}

	// COPY is atomic per batch; on failure fall back to inserting rows one
	// at a time inside their own subtransaction so a single malformed row
	// does not sink the whole batch.
	return s.insertRowByRow(ctx, table, columns, rows, importPackageID, kind)
}

func (s *StagingStore) insertRowByRow(ctx context.Context, table string, columns []string, rows []*model.StagingRow, importPackageID uuid.UUID, kind model.EntityKind) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin row-by-row insert: %w", err)
	}
	defer tx.Rollback(ctx)

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	insertSQL := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, quoteIdentifier(table), strings.Join(quoteColumns(columns), ", "), strings.Join(placeholders, ", "))

	inserted := 0
	for i, r := range rows {
		fieldsJSON, err := json.Marshal(r.Fields)
		if err != nil {
			continue
		}
		savepoint := fmt.Sprintf("staging_row_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
			return inserted, fmt.Errorf("create savepoint: %w", err)
		}
		_, err = tx.Exec(ctx, insertSQL,
			pgconv.UUID(r.ID), pgconv.UUID(importPackageID), pgconv.UUID(r.OriginalEntityID),
			string(kind), fieldsJSON, string(r.ValidationStatus),
		)
		if err != nil {
			tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint)
			continue
		}
		tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint)
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return inserted, fmt.Errorf("commit row-by-row insert: %w", err)
	}
	return inserted, nil
}

func (s *StagingStore) UpdateValidation(ctx context.Context, row *model.StagingRow) error {
	table, ok := stagingTableForKind[row.EntityKind]
	if !ok {
		return fmt.Errorf("no staging table for entity kind %s", row.EntityKind)
	}
	errorsJSON, _ := json.Marshal(row.ValidationErrors)
	warningsJSON, _ := json.Marshal(row.ValidationWarnings)

	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET validation_status = $1, validation_errors = $2, validation_warnings = $3 WHERE id = $4`,
		quoteIdentifier(table),
	), string(row.ValidationStatus), errorsJSON, warningsJSON, pgconv.UUID(row.ID))
	if err != nil {
		return fmt.Errorf("update validation for %s row %s: %w", row.EntityKind, row.ID, err)
	}
	return nil
}

func (s *StagingStore) UpdateCommitState(ctx context.Context, row *model.StagingRow) error {
	table, ok := stagingTableForKind[row.EntityKind]
	if !ok {
		return fmt.Errorf("no staging table for entity kind %s", row.EntityKind)
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET validation_status = $1, committed_entity_id = $2 WHERE id = $3`,
		quoteIdentifier(table),
	), string(row.ValidationStatus), pgconv.UUIDPtr(row.CommittedEntityID), pgconv.UUID(row.ID))
	if err != nil {
		return fmt.Errorf("update commit state for %s row %s: %w", row.EntityKind, row.ID, err)
	}
	return nil
}

func (s *StagingStore) ListByKind(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind) ([]*model.StagingRow, error) {
	return s.listWhere(ctx, importPackageID, kind, "")
}

func (s *StagingStore) ListApprovedByKind(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind) ([]*model.StagingRow, error) {
	return s.listWhere(ctx, importPackageID, kind, fmt.Sprintf(" AND validation_status IN ('%s', '%s', '%s')", model.ValidationValid, model.ValidationWarning, model.ValidationSkipped))
}

func (s *StagingStore) listWhere(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind, extra string) ([]*model.StagingRow, error) {
	table, ok := stagingTableForKind[kind]
	if !ok {
		return nil, fmt.Errorf("no staging table for entity kind %s", kind)
	}
	query := fmt.Sprintf(
		`SELECT id, original_entity_id, fields, validation_status, committed_entity_id FROM %s WHERE import_package_id = $1%s ORDER BY original_entity_id`,
		quoteIdentifier(table), extra,
	)
	rows, err := s.pool.Query(ctx, query, pgconv.UUID(importPackageID))
	if err != nil {
		return nil, fmt.Errorf("list %s staging rows: %w", kind, err)
	}
	defer rows.Close()

	var out []*model.StagingRow
	for rows.Next() {
		r, err := scanStagingRow(rows, importPackageID, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *StagingStore) Get(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind, originalEntityID uuid.UUID) (*model.StagingRow, error) {
	table, ok := stagingTableForKind[kind]
	if !ok {
		return nil, fmt.Errorf("no staging table for entity kind %s", kind)
	}
	query := fmt.Sprintf(
		`SELECT id, original_entity_id, fields, validation_status, committed_entity_id FROM %s WHERE import_package_id = $1 AND original_entity_id = $2`,
		quoteIdentifier(table),
	)
	row := s.pool.QueryRow(ctx, query, pgconv.UUID(importPackageID), pgconv.UUID(originalEntityID))
	return scanStagingRow(row, importPackageID, kind)
}

func (s *StagingStore) CountByStatus(ctx context.Context, importPackageID uuid.UUID) (map[model.EntityKind]map[model.ValidationStatus]int, error) {
	result := make(map[model.EntityKind]map[model.ValidationStatus]int)
	for kind, table := range stagingTableForKind {
		rows, err := s.pool.Query(ctx, fmt.Sprintf(
			`SELECT validation_status, COUNT(*) FROM %s WHERE import_package_id = $1 GROUP BY validation_status`,
			quoteIdentifier(table),
		), pgconv.UUID(importPackageID))
		if err != nil {
			return nil, fmt.Errorf("count %s by status: %w", kind, err)
		}
		counts := make(map[model.ValidationStatus]int)
		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s status count: %w", kind, err)
			}
			counts[model.ValidationStatus(status)] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		result[kind] = counts
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStagingRow(rs rowScanner, importPackageID uuid.UUID, kind model.EntityKind) (*model.StagingRow, error) {
	var (
		id, originalEntityID pgtype.UUID
		fieldsJSON           []byte
		status               string
		committedEntityID    pgtype.UUID
	)
	if err := rs.Scan(&id, &originalEntityID, &fieldsJSON, &status, &committedEntityID); err != nil {
		return nil, fmt.Errorf("scan %s staging row: %w", kind, err)
	}

	var fields map[string]any
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
			return nil, fmt.Errorf("unmarshal %s fields: %w", kind, err)
		}
	}

	var committedPtr *uuid.UUID
	if committedEntityID.Valid {
		v := pgconv.ToUUID(committedEntityID)
		committedPtr = &v
	}

	return &model.StagingRow{
		ID:                pgconv.ToUUID(id),
		ImportPackageID:   importPackageID,
		OriginalEntityID:  pgconv.ToUUID(originalEntityID),
		EntityKind:        kind,
		Fields:            fields,
		ValidationStatus:  model.ValidationStatus(status),
		CommittedEntityID: committedPtr,
	}, nil
}
