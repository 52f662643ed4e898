// Package resolver implements the Conflict Resolver (SPEC_FULL.md §4.5):
// the four terminal decisions (Merge, LinkToExisting, KeepSeparate,
// CreateNew) a reviewer applies to a ConflictResolution.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/clock"
	"github.com/landtenure/intake/internal/intake/errtax"
	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/ports"
)

// repointTables lists, per conflict entity type, which production tables
// the Merge decision must repoint from a discarded id to the master id
// (SPEC_FULL.md §4.5).
var repointTables = map[model.ConflictEntityType][]string{
	model.ConflictEntityPerson: {
		"person_property_relations", "households", "claims", "evidences", "certificates",
	},
	model.ConflictEntityBuilding: {
		"surveys", "property_units",
	},
	model.ConflictEntityPropertyUnit: {
		"claims", "person_property_relations",
	},
}

// Resolver applies reviewer decisions to conflicts.
type Resolver struct {
	staging ports.StagingStore
	prod    ports.ProductionStore
	clock   clock.Clock
}

// New builds a Resolver over the given collaborators.
func New(staging ports.StagingStore, prod ports.ProductionStore, c clock.Clock) *Resolver {
	return &Resolver{staging: staging, prod: prod, clock: c}
}

// Input is the reviewer's decision for one conflict.
type Input struct {
	ConflictID     uuid.UUID
	Decision       model.ConflictDecision
	ChosenMasterID *uuid.UUID // required for Merge and LinkToExisting
	ReviewerID     uuid.UUID
	Justification  string
}

// Resolve applies a reviewer's decision to an already-loaded conflict. The
// caller is responsible for loading/persisting the ConflictResolution
// record (kept outside this package since it belongs to the
// ImportPackageStore-adjacent repository, not business logic).
func (r *Resolver) Resolve(ctx context.Context, conflict *model.ConflictResolution, stagingRow *model.StagingRow, in Input) error {
	if conflict.IsTerminal() {
		return errtax.ErrConflictAlreadyResolved
	}
	if in.Justification == "" {
		return fmt.Errorf("%w: justification is mandatory", errtax.ErrValidationFailed)
	}

	switch in.Decision {
	case model.DecisionMerge:
		if in.ChosenMasterID == nil {
			return errors.New("merge requires a chosen master id")
		}
		if err := r.merge(ctx, conflict, stagingRow, *in.ChosenMasterID); err != nil {
			return err
		}
	case model.DecisionLinkToExisting:
		if in.ChosenMasterID == nil {
			return errors.New("link to existing requires a chosen master id")
		}
		r.linkToExisting(stagingRow, *in.ChosenMasterID)
	case model.DecisionKeepSeparate, model.DecisionCreateNew:
		// Staging row remains Valid and commits as a new production row;
		// nothing to mutate here beyond the conflict's decision fields.
	default:
		return fmt.Errorf("unsupported conflict decision %q", in.Decision)
	}

	now := r.clock.Now()
	conflict.Decision = in.Decision
	conflict.ChosenMasterID = in.ChosenMasterID
	conflict.ReviewerID = &in.ReviewerID
	conflict.DecidedAt = &now
	conflict.Justification = in.Justification

	return nil
}

func (r *Resolver) merge(ctx context.Context, conflict *model.ConflictResolution, stagingRow *model.StagingRow, masterID uuid.UUID) error {
	// Production FK columns only ever hold surrogate ids minted at insert
	// time, never the archive's OriginalEntityID, so a repoint only makes
	// sense when this original entity was already committed by an earlier
	// package under its own production id.
	discardedID, ok, err := r.prod.ResolveProductionID(ctx, conflict.EntityType, stagingRow.OriginalEntityID)
	if err != nil {
		return fmt.Errorf("resolve prior production id: %w", err)
	}

	var tablesRepointed []string
	if ok {
		tablesRepointed, err = r.prod.RepointForeignKeys(ctx, conflict.EntityType, discardedID, masterID)
		if err != nil {
			return fmt.Errorf("repoint foreign keys: %w", err)
		}
	}

	audit := model.MergePerformed{
		EntityType:      conflict.EntityType,
		DiscardedID:     stagingRow.OriginalEntityID,
		MasterID:        masterID,
		TablesRepointed: tablesRepointed,
	}
	auditJSON, err := json.Marshal(audit)
	if err != nil {
		return fmt.Errorf("marshal merge audit: %w", err)
	}
	conflict.RepointAudit = string(auditJSON)

	r.linkToExisting(stagingRow, masterID)
	return nil
}

func (r *Resolver) linkToExisting(stagingRow *model.StagingRow, masterID uuid.UUID) {
	stagingRow.ValidationStatus = model.ValidationSkipped
	stagingRow.CommittedEntityID = &masterID
}
