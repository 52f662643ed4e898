package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/pgconv"
	"github.com/landtenure/intake/internal/intake/ports"
)

// productionTableForKind names the live tenure-claims table an entity kind
// commits into.
var productionTableForKind = map[model.EntityKind]string{
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

// blockingColumnForType names the column duplicate candidates are narrowed
// by before Arabic-name/building-code scoring runs client-side, the same
// blocking-key-then-score split the duplicate package expects.
var blockingColumnForType = map[model.ConflictEntityType]string{
	model.ConflictEntityPerson:       "national_id",
	model.ConflictEntityBuilding:     "building_code",
	model.ConflictEntityPropertyUnit: "unit_id",
}

var tableForConflictType = map[model.ConflictEntityType]string{
	model.ConflictEntityPerson:       "persons",
	model.ConflictEntityBuilding:     "buildings",
	model.ConflictEntityPropertyUnit: "property_units",
}

// ProductionStore is the pgx-backed ports.ProductionStore adapter. A value
// scoped to a single transaction is handed to callers via WithTx so the
// whole-package commit is all-or-nothing (SPEC_FULL.md §4.6).
type ProductionStore struct {
	db dbtx
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, mirroring the
// teacher's db.DBTX seam (internal/database) that lets core code run
// unchanged inside or outside a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewProductionStore builds a ProductionStore over pool.
func NewProductionStore(pool *pgxpool.Pool) *ProductionStore {
	return &ProductionStore{db: pool}
}

func (p *ProductionStore) CandidatesByBlockingKey(ctx context.Context, kind model.ConflictEntityType, blockingKey string) ([]ports.ProductionCandidate, error) {
	table, ok := tableForConflictType[kind]
	if !ok {
		return nil, fmt.Errorf("no production table for conflict entity type %s", kind)
	}
	col, ok := blockingColumnForType[kind]
	if !ok {
		return nil, fmt.Errorf("no blocking column for conflict entity type %s", kind)
	}

	rows, err := p.db.Query(ctx, fmt.Sprintf(`SELECT id, fields FROM %s WHERE %s = $1`, quoteIdentifier(table), quoteIdentifier(col)), blockingKey)
	if err != nil {
		return nil, fmt.Errorf("query %s candidates: %w", table, err)
	}
	defer rows.Close()

	var out []ports.ProductionCandidate
	for rows.Next() {
		var id pgtype.UUID
		var fieldsJSON []byte
		if err := rows.Scan(&id, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("scan %s candidate: %w", table, err)
		}
		var fields map[string]any
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
				return nil, fmt.Errorf("unmarshal %s candidate fields: %w", table, err)
			}
		}
		out = append(out, ports.ProductionCandidate{ID: pgconv.ToUUID(id), Fields: fields})
	}
	return out, rows.Err()
}

// InsertEntity inserts a committed row. Production tables carry a denormalized
// `fields` jsonb column alongside the indexed blocking columns (national_id,
// building_code, unit_id) so CandidatesByBlockingKey and commit-time inserts
// share one row shape; fkFields are merged in as their own typed columns.
func (p *ProductionStore) InsertEntity(ctx context.Context, kind model.EntityKind, originalEntityID uuid.UUID, fields map[string]any, fkFields map[string]uuid.UUID) (uuid.UUID, error) {
	table, ok := productionTableForKind[kind]
	if !ok {
		return uuid.Nil, fmt.Errorf("no production table for entity kind %s", kind)
	}

	id := uuid.New()
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal %s fields: %w", kind, err)
	}

	columns := []string{"id", "original_entity_id", "fields"}
	args := []any{pgconv.UUID(id), pgconv.UUID(originalEntityID), fieldsJSON}
	for col, fk := range fkFields {
		columns = append(columns, strings.ToLower(col))
		args = append(args, pgconv.UUID(fk))
	}
	if col, ok := blockingColumnForType[blockingTypeForKind(kind)]; ok {
		if v, ok := fields[blockingFieldNameForColumn(col)]; ok {
			columns = append(columns, col)
			args = append(args, v)
		}
	}

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, quoteIdentifier(table), strings.Join(quoteColumns(columns), ", "), strings.Join(placeholders, ", "))
	if _, err := p.db.Exec(ctx, insertSQL, args...); err != nil {
		return uuid.Nil, fmt.Errorf("insert %s: %w", kind, err)
	}
	return id, nil
}

func blockingTypeForKind(kind model.EntityKind) model.ConflictEntityType {
	switch kind {
	case model.EntityPerson:
		return model.ConflictEntityPerson
	case model.EntityBuilding:
		return model.ConflictEntityBuilding
	case model.EntityPropertyUnit:
		return model.ConflictEntityPropertyUnit
	default:
		return ""
	}
}

func blockingFieldNameForColumn(col string) string {
	switch col {
	case "national_id":
		return "NationalID"
	case "building_code":
		return "BuildingCode"
	case "unit_id":
		return "UnitID"
	default:
		return ""
	}
}

// ResolveProductionID looks up the production id previously assigned to
// originalEntityID in entityType's table, if a commit has already written a
// row under that archive id.
func (p *ProductionStore) ResolveProductionID(ctx context.Context, entityType model.ConflictEntityType, originalEntityID uuid.UUID) (uuid.UUID, bool, error) {
	table, ok := tableForConflictType[entityType]
	if !ok {
		return uuid.Nil, false, fmt.Errorf("no production table for conflict entity type %s", entityType)
	}

	var id pgtype.UUID
	err := p.db.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE original_entity_id = $1`, quoteIdentifier(table)), pgconv.UUID(originalEntityID)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("resolve production id for %s: %w", originalEntityID, err)
	}
	return pgconv.ToUUID(id), true, nil
}

func (p *ProductionStore) RepointForeignKeys(ctx context.Context, entityType model.ConflictEntityType, discardedID, masterID uuid.UUID) ([]string, error) {
	tables, ok := repointTablesForType[entityType]
	if !ok {
		return nil, fmt.Errorf("no repoint table set for conflict entity type %s", entityType)
	}

	touched := make([]string, 0, len(tables))
	for table, fkColumn := range tables {
		tag, err := p.db.Exec(ctx, fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2`, quoteIdentifier(table), quoteIdentifier(fkColumn), quoteIdentifier(fkColumn)),
			pgconv.UUID(masterID), pgconv.UUID(discardedID))
		if err != nil {
			return touched, fmt.Errorf("repoint %s.%s: %w", table, fkColumn, err)
		}
		if tag.RowsAffected() > 0 {
			touched = append(touched, table)
		}
	}
	return touched, nil
}

// repointTablesForType lists every production table/column pair that may
// reference a discarded duplicate, per SPEC_FULL.md §4.5.
var repointTablesForType = map[model.ConflictEntityType]map[string]string{
	model.ConflictEntityPerson: {
		"person_property_relations": "person_id",
		"households":                "head_of_household_id",
		"claims":                    "primary_claimant_id",
		"evidences":                 "submitted_by_person_id",
	},
	model.ConflictEntityBuilding: {
		"surveys":        "building_id",
		"property_units": "building_id",
	},
	model.ConflictEntityPropertyUnit: {
		"claims":                     "property_unit_id",
		"person_property_relations": "property_unit_id",
	},
}

func (p *ProductionStore) AssignClaimNumber(ctx context.Context, claimID uuid.UUID, claimNumber string) error {
	_, err := p.db.Exec(ctx, `UPDATE claims SET claim_number = $1 WHERE id = $2`, claimNumber, pgconv.UUID(claimID))
	if err != nil {
		return fmt.Errorf("assign claim number to %s: %w", claimID, err)
	}
	return nil
}

func (p *ProductionStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.ProductionStore) error) error {
	pool, ok := p.db.(*pgxpool.Pool)
	if !ok {
		// Already inside a transaction; run fn against this same store.
		return fn(ctx, p)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin production transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &ProductionStore{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
