// Package commit implements the Commit Engine (SPEC_FULL.md §4.6):
// transactional insertion of approved staging rows into production, in
// dependency-DAG order, with FK resolution through an in-memory id map,
// attachment dedup, and business-identifier assignment. Commit does not
// archive the source `.uhc` container: the ArchiveWriter passed to New is
// held on the Engine but never called.
package commit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/clock"
	"github.com/landtenure/intake/internal/intake/errtax"
	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/ports"
)

// fkResolution is one staging FK field on an entity kind, pointing at
// another entity kind's staging row, resolved at commit time through the
// id map (SPEC_FULL.md §4.6 "FK resolution").
type fkResolution struct {
	stagingField string // the field on the staging row carrying an OriginalEntityID
	prodField    string // the field name to set on the production insert
	targetKind   model.EntityKind
}

// fkResolutionsByKind lists every staging FK an entity kind carries.
var fkResolutionsByKind = map[model.EntityKind][]fkResolution{
	model.EntityPropertyUnit: {
		{"OriginalBuildingID", "BuildingID", model.EntityBuilding},
	},
	model.EntityPersonPropertyRelation: {
		{"OriginalPersonID", "PersonID", model.EntityPerson},
		{"OriginalPropertyUnitID", "PropertyUnitID", model.EntityPropertyUnit},
	},
	model.EntityClaim: {
		{"OriginalPersonID", "PrimaryClaimantID", model.EntityPerson},
		{"OriginalPropertyUnitID", "PropertyUnitID", model.EntityPropertyUnit},
	},
	model.EntityEvidence: {
		{"OriginalClaimID", "ClaimID", model.EntityClaim},
	},
	model.EntityDocument: {
		{"OriginalClaimID", "ClaimID", model.EntityClaim},
	},
	model.EntitySurvey: {
		{"OriginalPropertyUnitID", "PropertyUnitID", model.EntityPropertyUnit},
	},
}

// Engine runs the commit for one package.
type Engine struct {
	staging   ports.StagingStore
	claimNums ports.ClaimNumberGenerator
	blobs     ports.BlobStore
	archive   ports.ArchiveWriter
	clock     clock.Clock
}

// New builds an Engine over the given collaborators.
func New(staging ports.StagingStore, claimNums ports.ClaimNumberGenerator, blobs ports.BlobStore, archive ports.ArchiveWriter, c clock.Clock) *Engine {
	return &Engine{staging: staging, claimNums: claimNums, blobs: blobs, archive: archive, clock: c}
}

// Commit runs the whole-package transactional commit (SPEC_FULL.md §4.6).
// prod must already be scoped to a single transaction (the caller opens it
// via ports.ProductionStore.WithTx); Commit never opens its own.
func (e *Engine) Commit(ctx context.Context, importPackageID uuid.UUID, year int, prod ports.ProductionStore) (*model.CommitReport, error) {
	report := &model.CommitReport{
		ImportPackageID: importPackageID,
		StartedAt:       e.clock.Now(),
	}

	// idMap translates a staging OriginalEntityID to its production id,
	// whether freshly inserted or resolved via LinkToExisting/Merge.
	idMap := make(map[uuid.UUID]uuid.UUID)

	for _, kind := range model.CommitOrder {
		summary, err := e.commitKind(ctx, importPackageID, kind, prod, idMap, year, report)
		report.Summaries = append(report.Summaries, summary)
		if err != nil {
			report.FinishedAt = e.clock.Now()
			report.Recalculate()
			return report, fmt.Errorf("commit %s: %w", kind, err)
		}
	}

	report.FinishedAt = e.clock.Now()
	report.Recalculate()
	return report, nil
}

func (e *Engine) commitKind(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind, prod ports.ProductionStore, idMap map[uuid.UUID]uuid.UUID, year int, report *model.CommitReport) (model.EntityCommitSummary, error) {
	summary := model.EntityCommitSummary{Kind: kind, IDMapping: map[uuid.UUID]uuid.UUID{}}

	// Referral rows are not staged; they are created directly against
	// production as part of post-commit follow-up workflows, so the commit
	// DAG has nothing to insert for this kind.
	if kind == model.EntityReferral {
		return summary, nil
	}

	rows, err := e.staging.ListApprovedByKind(ctx, importPackageID, kind)
	if err != nil {
		return summary, fmt.Errorf("list approved %s rows: %w", kind, err)
	}
	sortByOriginalID(rows)

	for _, row := range rows {
		summary.Approved++

		if row.ValidationStatus == model.ValidationSkipped {
			// Already resolved via LinkToExisting/Merge in the resolver.
			if row.CommittedEntityID != nil {
				idMap[row.OriginalEntityID] = *row.CommittedEntityID
				summary.IDMapping[row.OriginalEntityID] = *row.CommittedEntityID
			}
			summary.Skipped++
			continue
		}

		fields, err := e.resolveFields(ctx, row, kind, idMap, prod, year)
		if err != nil {
			summary.Failed++
			report.Errors = append(report.Errors, model.CommitError{Kind: kind, OriginalEntityID: row.OriginalEntityID, Message: err.Error()})
			return summary, err
		}

		if kind == model.EntityEvidence || kind == model.EntityDocument {
			if err := e.dedupAttachment(ctx, row, report); err != nil {
				summary.Failed++
				report.Errors = append(report.Errors, model.CommitError{Kind: kind, OriginalEntityID: row.OriginalEntityID, Message: err.Error()})
				return summary, err
			}
		}

		prodID, err := prod.InsertEntity(ctx, kind, row.OriginalEntityID, row.Fields, fields)
		if err != nil {
			summary.Failed++
			report.Errors = append(report.Errors, model.CommitError{Kind: kind, OriginalEntityID: row.OriginalEntityID, Message: err.Error()})
			return summary, fmt.Errorf("insert %s row %s: %w", kind, row.OriginalEntityID, err)
		}

		idMap[row.OriginalEntityID] = prodID
		summary.IDMapping[row.OriginalEntityID] = prodID
		summary.Committed++

		row.CommittedEntityID = &prodID
		if err := e.staging.UpdateCommitState(ctx, row); err != nil {
			return summary, fmt.Errorf("persist commit state for %s row %s: %w", kind, row.OriginalEntityID, err)
		}
	}

	return summary, nil
}

// resolveFields translates every staging FK for this row through idMap, and
// applies entity-specific commit-time overrides (claim number assignment,
// domain-lifecycle override). Attachment dedup is done separately, by
// dedupAttachment.
func (e *Engine) resolveFields(ctx context.Context, row *model.StagingRow, kind model.EntityKind, idMap map[uuid.UUID]uuid.UUID, prod ports.ProductionStore, year int) (map[string]uuid.UUID, error) {
	resolved := make(map[string]uuid.UUID)

	for _, fk := range fkResolutionsByKind[kind] {
		originalID, ok := row.FieldUUID(fk.stagingField)
		if !ok {
			continue
		}
		prodID, ok := idMap[originalID]
		if !ok {
			return nil, fmt.Errorf("%w: %s row %s references unresolved %s %s", errtax.ErrFKUnresolvable, kind, row.OriginalEntityID, fk.targetKind, originalID)
		}
		resolved[fk.prodField] = prodID
	}

	switch kind {
	case model.EntityClaim:
		claimNumber, err := e.claimNums.NextClaimNumber(ctx, year)
		if err != nil {
			return nil, fmt.Errorf("assign claim number: %w", err)
		}
		row.Fields["ClaimNumber"] = claimNumber
		// Per SPEC_FULL.md §4.3 Level 6, field-device claims always commit
		// as DraftPendingSubmission regardless of the manifest value.
		row.Fields["ClaimStatus"] = "DraftPendingSubmission"
	}

	return resolved, nil
}

// dedupAttachment probes the blob store by the staged attachment's SHA-256
// before the row is written, tallying savings on the report when the blob
// already exists (SPEC_FULL.md §4.6 "Attachment dedup").
func (e *Engine) dedupAttachment(ctx context.Context, row *model.StagingRow, report *model.CommitReport) error {
	sha, ok := row.FieldString("BlobSHA256")
	if !ok || sha == "" {
		return nil
	}
	exists, err := e.blobs.Exists(ctx, sha)
	if err != nil {
		return fmt.Errorf("probe blob store: %w", err)
	}
	if !exists {
		return nil
	}
	report.DeduplicatedBlobCount++
	report.DeduplicationBytesSaved += fieldInt64(row.Fields, "BlobSizeBytes")
	return nil
}

func fieldInt64(f map[string]any, key string) int64 {
	switch v := f[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func sortByOriginalID(rows []*model.StagingRow) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j].OriginalEntityID.String() < rows[j-1].OriginalEntityID.String(); j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
}
