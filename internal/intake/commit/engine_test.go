package commit

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/clock"
	"github.com/landtenure/intake/internal/intake/errtax"
	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/ports"
)

type fakeStaging struct {
	rows    map[model.EntityKind][]*model.StagingRow
	updated []*model.StagingRow
}

func (f *fakeStaging) TruncateForReload(ctx context.Context, id uuid.UUID, kind model.EntityKind) error {
	return nil
}
func (f *fakeStaging) BulkInsert(ctx context.Context, id uuid.UUID, kind model.EntityKind, rows []*model.StagingRow) (int, error) {
	return 0, nil
}
func (f *fakeStaging) UpdateValidation(ctx context.Context, row *model.StagingRow) error { return nil }
func (f *fakeStaging) UpdateCommitState(ctx context.Context, row *model.StagingRow) error {
	f.updated = append(f.updated, row)
	return nil
}
func (f *fakeStaging) ListByKind(ctx context.Context, id uuid.UUID, kind model.EntityKind) ([]*model.StagingRow, error) {
	return f.rows[kind], nil
}
func (f *fakeStaging) ListApprovedByKind(ctx context.Context, id uuid.UUID, kind model.EntityKind) ([]*model.StagingRow, error) {
	return f.rows[kind], nil
}
func (f *fakeStaging) Get(ctx context.Context, id uuid.UUID, kind model.EntityKind, originalID uuid.UUID) (*model.StagingRow, error) {
	return nil, nil
}
func (f *fakeStaging) CountByStatus(ctx context.Context, id uuid.UUID) (map[model.EntityKind]map[model.ValidationStatus]int, error) {
	return nil, nil
}
func (f *fakeStaging) DeleteForPackage(ctx context.Context, id uuid.UUID) error {
	return nil
}

type fakeProd struct {
	nextID func() uuid.UUID
}

func (f *fakeProd) CandidatesByBlockingKey(ctx context.Context, kind model.ConflictEntityType, key string) ([]ports.ProductionCandidate, error) {
	return nil, nil
}
func (f *fakeProd) InsertEntity(ctx context.Context, kind model.EntityKind, originalEntityID uuid.UUID, fields map[string]any, fk map[string]uuid.UUID) (uuid.UUID, error) {
	return f.nextID(), nil
}
func (f *fakeProd) ResolveProductionID(ctx context.Context, t model.ConflictEntityType, originalEntityID uuid.UUID) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}
func (f *fakeProd) RepointForeignKeys(ctx context.Context, t model.ConflictEntityType, discarded, master uuid.UUID) ([]string, error) {
	return nil, nil
}
func (f *fakeProd) AssignClaimNumber(ctx context.Context, claimID uuid.UUID, claimNumber string) error {
	return nil
}
func (f *fakeProd) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.ProductionStore) error) error {
	return fn(ctx, f)
}

type fakeClaimNumbers struct{ n int }

func (f *fakeClaimNumbers) NextClaimNumber(ctx context.Context, year int) (string, error) {
	f.n++
	return "CLM-TEST", nil
}

type fakeBlobs struct{ existing map[string]bool }

func (f *fakeBlobs) Put(ctx context.Context, r io.Reader) (ports.BlobHandle, bool, error) {
	return ports.BlobHandle{}, false, nil
}
func (f *fakeBlobs) Open(ctx context.Context, sha string) (io.ReadCloser, error) {
	return nil, nil
}
func (f *fakeBlobs) Exists(ctx context.Context, sha string) (bool, error) {
	return f.existing[sha], nil
}

func TestCommitOrdersByEntityKindAndAssignsProductionIDs(t *testing.T) {
	buildingOriginal := uuid.New()
	unitOriginal := uuid.New()

	staging := &fakeStaging{rows: map[model.EntityKind][]*model.StagingRow{
		model.EntityBuilding: {
			{OriginalEntityID: buildingOriginal, EntityKind: model.EntityBuilding, Fields: map[string]any{}},
		},
		model.EntityPropertyUnit: {
			{OriginalEntityID: unitOriginal, EntityKind: model.EntityPropertyUnit, Fields: map[string]any{
				"OriginalBuildingID": buildingOriginal.String(),
			}},
		},
	}}

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	i := 0
	prod := &fakeProd{nextID: func() uuid.UUID {
		id := ids[i]
		i++
		return id
	}}

	eng := New(staging, &fakeClaimNumbers{}, &fakeBlobs{existing: map[string]bool{}}, nil, clock.Fixed{At: time.Unix(0, 0)})
	report, err := eng.Commit(context.Background(), uuid.New(), 2026, prod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalCommitted != 2 {
		t.Fatalf("expected 2 committed rows, got %d", report.TotalCommitted)
	}
	if report.TotalFailed != 0 {
		t.Fatalf("expected 0 failures, got %d", report.TotalFailed)
	}
}

func TestCommitFailsRowWithUnresolvableForeignKey(t *testing.T) {
	danglingBuilding := uuid.New()
	unitOriginal := uuid.New()

	staging := &fakeStaging{rows: map[model.EntityKind][]*model.StagingRow{
		model.EntityPropertyUnit: {
			{OriginalEntityID: unitOriginal, EntityKind: model.EntityPropertyUnit, Fields: map[string]any{
				"OriginalBuildingID": danglingBuilding.String(),
			}},
		},
	}}

	prod := &fakeProd{nextID: func() uuid.UUID { return uuid.New() }}
	eng := New(staging, &fakeClaimNumbers{}, &fakeBlobs{existing: map[string]bool{}}, nil, clock.Fixed{At: time.Unix(0, 0)})

	report, err := eng.Commit(context.Background(), uuid.New(), 2026, prod)
	if !errors.Is(err, errtax.ErrFKUnresolvable) {
		t.Fatalf("expected ErrFKUnresolvable, got %v", err)
	}
	if report.TotalFailed != 1 {
		t.Fatalf("expected 1 failed row for unresolvable FK, got %d", report.TotalFailed)
	}
}

func TestCommitSkipsResolvedRowsAndMapsTheirID(t *testing.T) {
	master := uuid.New()
	original := uuid.New()

	staging := &fakeStaging{rows: map[model.EntityKind][]*model.StagingRow{
		model.EntityPerson: {
			{OriginalEntityID: original, EntityKind: model.EntityPerson, ValidationStatus: model.ValidationSkipped, CommittedEntityID: &master, Fields: map[string]any{}},
		},
	}}

	prod := &fakeProd{nextID: func() uuid.UUID { return uuid.New() }}
	eng := New(staging, &fakeClaimNumbers{}, &fakeBlobs{existing: map[string]bool{}}, nil, clock.Fixed{At: time.Unix(0, 0)})

	report, err := eng.Commit(context.Background(), uuid.New(), 2026, prod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalSkipped != 1 {
		t.Fatalf("expected 1 skipped row, got %d", report.TotalSkipped)
	}
	if report.TotalCommitted != 0 {
		t.Fatalf("expected 0 committed rows for already-resolved entity, got %d", report.TotalCommitted)
	}
}
