package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/clock"
	"github.com/landtenure/intake/internal/intake/errtax"
	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/ports"
)

type fakeProd struct {
	repointedTables []string

	// priorProductionID maps an archive OriginalEntityID to the production
	// id it was committed under by an earlier package, if any.
	priorProductionID map[uuid.UUID]uuid.UUID

	repointCalls []repointCall
}

type repointCall struct {
	discarded, master uuid.UUID
}

func (f *fakeProd) CandidatesByBlockingKey(ctx context.Context, kind model.ConflictEntityType, key string) ([]ports.ProductionCandidate, error) {
	return nil, nil
}
func (f *fakeProd) InsertEntity(ctx context.Context, kind model.EntityKind, originalEntityID uuid.UUID, fields map[string]any, fk map[string]uuid.UUID) (uuid.UUID, error) {
	return uuid.Nil, nil
}
func (f *fakeProd) ResolveProductionID(ctx context.Context, t model.ConflictEntityType, originalEntityID uuid.UUID) (uuid.UUID, bool, error) {
	id, ok := f.priorProductionID[originalEntityID]
	return id, ok, nil
}
func (f *fakeProd) RepointForeignKeys(ctx context.Context, t model.ConflictEntityType, discarded, master uuid.UUID) ([]string, error) {
	f.repointCalls = append(f.repointCalls, repointCall{discarded: discarded, master: master})
	return f.repointedTables, nil
}
func (f *fakeProd) AssignClaimNumber(ctx context.Context, claimID uuid.UUID, claimNumber string) error {
	return nil
}
func (f *fakeProd) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.ProductionStore) error) error {
	return fn(ctx, f)
}

func TestResolveMergeRepointsUsingPriorProductionID(t *testing.T) {
	originalID := uuid.New()
	priorProdID := uuid.New()
	prod := &fakeProd{
		repointedTables:   []string{"person_property_relations", "claims"},
		priorProductionID: map[uuid.UUID]uuid.UUID{originalID: priorProdID},
	}
	r := New(nil, prod, clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})

	master := uuid.New()
	conflict := &model.ConflictResolution{EntityType: model.ConflictEntityPerson, Decision: model.DecisionUnresolved}
	row := &model.StagingRow{OriginalEntityID: originalID}

	err := r.Resolve(context.Background(), conflict, row, Input{
		Decision:       model.DecisionMerge,
		ChosenMasterID: &master,
		ReviewerID:     uuid.New(),
		Justification:  "same national id",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.ValidationStatus != model.ValidationSkipped {
		t.Fatalf("expected staging row to be Skipped, got %v", row.ValidationStatus)
	}
	if row.CommittedEntityID == nil || *row.CommittedEntityID != master {
		t.Fatalf("expected committed entity id to be master")
	}
	if conflict.RepointAudit == "" {
		t.Fatal("expected repoint audit JSON to be recorded")
	}
	if conflict.Decision != model.DecisionMerge {
		t.Fatalf("expected decision recorded as Merge, got %v", conflict.Decision)
	}

	if len(prod.repointCalls) != 1 {
		t.Fatalf("expected exactly one RepointForeignKeys call, got %d", len(prod.repointCalls))
	}
	if prod.repointCalls[0].discarded != priorProdID {
		t.Fatalf("expected repoint to use the prior production id %s, got %s", priorProdID, prod.repointCalls[0].discarded)
	}
	if prod.repointCalls[0].master != master {
		t.Fatalf("expected repoint master to be %s, got %s", master, prod.repointCalls[0].master)
	}
}

func TestResolveMergeSkipsRepointWhenNoPriorProductionRow(t *testing.T) {
	prod := &fakeProd{repointedTables: []string{"claims"}}
	r := New(nil, prod, clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})

	master := uuid.New()
	conflict := &model.ConflictResolution{EntityType: model.ConflictEntityPerson, Decision: model.DecisionUnresolved}
	row := &model.StagingRow{OriginalEntityID: uuid.New()}

	err := r.Resolve(context.Background(), conflict, row, Input{
		Decision:       model.DecisionMerge,
		ChosenMasterID: &master,
		ReviewerID:     uuid.New(),
		Justification:  "same national id, never committed before",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prod.repointCalls) != 0 {
		t.Fatalf("expected no RepointForeignKeys call when no prior production row exists, got %d", len(prod.repointCalls))
	}
	if row.CommittedEntityID == nil || *row.CommittedEntityID != master {
		t.Fatalf("expected committed entity id to be master")
	}
}

func TestResolveRejectsAlreadyTerminalConflict(t *testing.T) {
	r := New(nil, &fakeProd{}, clock.Real{})
	conflict := &model.ConflictResolution{Decision: model.DecisionKeepSeparate}
	row := &model.StagingRow{}

	err := r.Resolve(context.Background(), conflict, row, Input{
		Decision:      model.DecisionCreateNew,
		ReviewerID:    uuid.New(),
		Justification: "x",
	})
	if err != errtax.ErrConflictAlreadyResolved {
		t.Fatalf("expected ErrConflictAlreadyResolved, got %v", err)
	}
}

func TestResolveRequiresJustification(t *testing.T) {
	r := New(nil, &fakeProd{}, clock.Real{})
	conflict := &model.ConflictResolution{Decision: model.DecisionUnresolved}
	row := &model.StagingRow{}

	err := r.Resolve(context.Background(), conflict, row, Input{
		Decision:   model.DecisionKeepSeparate,
		ReviewerID: uuid.New(),
	})
	if err == nil {
		t.Fatal("expected error for missing justification")
	}
}

func TestResolveKeepSeparateLeavesStagingRowUntouched(t *testing.T) {
	r := New(nil, &fakeProd{}, clock.Real{})
	conflict := &model.ConflictResolution{Decision: model.DecisionUnresolved}
	row := &model.StagingRow{ValidationStatus: model.ValidationValid}

	err := r.Resolve(context.Background(), conflict, row, Input{
		Decision:      model.DecisionKeepSeparate,
		ReviewerID:    uuid.New(),
		Justification: "distinct individuals",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.ValidationStatus != model.ValidationValid {
		t.Fatalf("expected staging row to remain Valid, got %v", row.ValidationStatus)
	}
}
