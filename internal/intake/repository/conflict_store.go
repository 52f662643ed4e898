package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/landtenure/intake/internal/intake/errtax"
	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/pgconv"
)

// ConflictStore is the pgx-backed ports.ConflictStore adapter, backing the
// `intake_conflict_resolutions` table.
type ConflictStore struct {
	pool *pgxpool.Pool
}

// NewConflictStore builds a ConflictStore over pool.
func NewConflictStore(pool *pgxpool.Pool) *ConflictStore {
	return &ConflictStore{pool: pool}
}

func (s *ConflictStore) Create(ctx context.Context, c *model.ConflictResolution) error {
	candidates, err := json.Marshal(c.Candidates)
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO intake_conflict_resolutions (
			id, import_package_id, entity_type, staging_original_entity_id,
			candidates, suggested_master_id, score,
			decision, chosen_master_id, reviewer_id, decided_at,
			justification, repoint_audit, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		pgconv.UUID(c.ID), pgconv.UUID(c.ImportPackageID), string(c.EntityType), pgconv.UUID(c.StagingOriginalEntityID),
		candidates, pgconv.UUID(c.SuggestedMasterID), c.Score,
		string(c.Decision), pgconv.UUIDPtr(c.ChosenMasterID), pgconv.UUIDPtr(c.ReviewerID), pgconv.TimestamptzPtr(c.DecidedAt),
		pgconv.Text(c.Justification), pgconv.Text(c.RepointAudit), pgconv.Timestamptz(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert conflict resolution: %w", err)
	}
	return nil
}

func (s *ConflictStore) Update(ctx context.Context, c *model.ConflictResolution) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE intake_conflict_resolutions SET
			decision = $1, chosen_master_id = $2, reviewer_id = $3, decided_at = $4,
			justification = $5, repoint_audit = $6
		WHERE id = $7
	`,
		string(c.Decision), pgconv.UUIDPtr(c.ChosenMasterID), pgconv.UUIDPtr(c.ReviewerID), pgconv.TimestamptzPtr(c.DecidedAt),
		pgconv.Text(c.Justification), pgconv.Text(c.RepointAudit), pgconv.UUID(c.ID),
	)
	if err != nil {
		return fmt.Errorf("update conflict resolution %s: %w", c.ID, err)
	}
	return nil
}

func (s *ConflictStore) Get(ctx context.Context, id uuid.UUID) (*model.ConflictResolution, error) {
	row := s.pool.QueryRow(ctx, baseConflictSelect+` WHERE id = $1`, pgconv.UUID(id))
	c, err := scanConflict(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errtax.ErrNotFound
	}
	return c, err
}

func (s *ConflictStore) ListByPackage(ctx context.Context, importPackageID uuid.UUID) ([]*model.ConflictResolution, error) {
	rows, err := s.pool.Query(ctx, baseConflictSelect+` WHERE import_package_id = $1 ORDER BY created_at ASC`, pgconv.UUID(importPackageID))
	if err != nil {
		return nil, fmt.Errorf("list conflicts for package %s: %w", importPackageID, err)
	}
	defer rows.Close()

	var out []*model.ConflictResolution
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ConflictStore) CountUnresolved(ctx context.Context, importPackageID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM intake_conflict_resolutions
		WHERE import_package_id = $1 AND decision = $2
	`, pgconv.UUID(importPackageID), string(model.DecisionUnresolved)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unresolved conflicts for package %s: %w", importPackageID, err)
	}
	return n, nil
}

// DeleteByPackage removes every conflict resolution row for
// importPackageID, the cleanupStaging path of Cancel (SPEC_FULL.md §4.7).
func (s *ConflictStore) DeleteByPackage(ctx context.Context, importPackageID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM intake_conflict_resolutions WHERE import_package_id = $1`, pgconv.UUID(importPackageID))
	if err != nil {
		return fmt.Errorf("delete conflicts for package %s: %w", importPackageID, err)
	}
	return nil
}

const baseConflictSelect = `
	SELECT id, import_package_id, entity_type, staging_original_entity_id,
		candidates, suggested_master_id, score,
		decision, chosen_master_id, reviewer_id, decided_at,
		justification, repoint_audit, created_at
	FROM intake_conflict_resolutions`

func scanConflict(rs rowScanner) (*model.ConflictResolution, error) {
	var (
		id, importPackageID, stagingOriginalEntityID pgtype.UUID
		suggestedMasterID, chosenMasterID, reviewerID pgtype.UUID
		entityType, decision                          string
		candidatesJSON                                []byte
		score                                          int
		decidedAt                                      pgtype.Timestamptz
		justification, repointAudit                    pgtype.Text
		createdAt                                      pgtype.Timestamptz
	)

	if err := rs.Scan(
		&id, &importPackageID, &entityType, &stagingOriginalEntityID,
		&candidatesJSON, &suggestedMasterID, &score,
		&decision, &chosenMasterID, &reviewerID, &decidedAt,
		&justification, &repointAudit, &createdAt,
	); err != nil {
		return nil, fmt.Errorf("scan conflict resolution: %w", err)
	}

	c := &model.ConflictResolution{
		ID:                      pgconv.ToUUID(id),
		ImportPackageID:         pgconv.ToUUID(importPackageID),
		EntityType:              model.ConflictEntityType(entityType),
		StagingOriginalEntityID: pgconv.ToUUID(stagingOriginalEntityID),
		SuggestedMasterID:       pgconv.ToUUID(suggestedMasterID),
		Score:                   score,
		Decision:                model.ConflictDecision(decision),
		Justification:           pgconv.ToText(justification),
		RepointAudit:            pgconv.ToText(repointAudit),
		CreatedAt:               createdAt.Time,
		DecidedAt:               pgconv.ToTime(decidedAt),
	}
	if chosenMasterID.Valid {
		v := pgconv.ToUUID(chosenMasterID)
		c.ChosenMasterID = &v
	}
	if reviewerID.Valid {
		v := pgconv.ToUUID(reviewerID)
		c.ReviewerID = &v
	}
	if len(candidatesJSON) > 0 {
		_ = json.Unmarshal(candidatesJSON, &c.Candidates)
	}

	return c, nil
}
