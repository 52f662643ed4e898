package validator

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/ports"
)

type fakeVocab struct {
	valid map[string]map[string]bool
}

func (f fakeVocab) CurrentVersion(ctx context.Context, domain string) (string, bool) { return "", false }
func (f fakeVocab) IsValidCode(ctx context.Context, domain, code string) bool {
	return f.valid[domain][code]
}
func (f fakeVocab) Domains(ctx context.Context) []string { return nil }

type fakeProd struct{}

func (fakeProd) CandidatesByBlockingKey(ctx context.Context, kind model.ConflictEntityType, key string) ([]ports.ProductionCandidate, error) {
	return nil, nil
}
func (fakeProd) InsertEntity(ctx context.Context, kind model.EntityKind, originalEntityID uuid.UUID, fields map[string]any, fk map[string]uuid.UUID) (uuid.UUID, error) {
	return uuid.Nil, nil
}
func (fakeProd) ResolveProductionID(ctx context.Context, t model.ConflictEntityType, originalEntityID uuid.UUID) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}
func (fakeProd) RepointForeignKeys(ctx context.Context, t model.ConflictEntityType, discarded, master uuid.UUID) ([]string, error) {
	return nil, nil
}
func (fakeProd) AssignClaimNumber(ctx context.Context, claimID uuid.UUID, claimNumber string) error {
	return nil
}
func (fakeProd) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.ProductionStore) error) error {
	return fn(ctx, fakeProd{})
}

func newValidator() *Validator {
	return New(nil, fakeVocab{valid: map[string]map[string]bool{
		"gender": {"Male": true, "Female": true},
	}}, fakeProd{})
}

func TestValidateStructuralRejectsMissingRequiredField(t *testing.T) {
	v := newValidator()
	row := &model.StagingRow{
		EntityKind: model.EntityBuilding,
		Fields: map[string]any{
			"BuildingCode": "",
			"Governorate":  "Amman",
			"District":     "Al-Jubeiha",
		},
	}
	v.validateStructural(row)
	if !row.HasBlockingDiagnostic() {
		t.Fatal("expected blocking diagnostic for missing building code")
	}
}

func TestValidateStructuralAcceptsWellFormedBuilding(t *testing.T) {
	v := newValidator()
	row := &model.StagingRow{
		EntityKind: model.EntityBuilding,
		Fields: map[string]any{
			"BuildingCode": "12345678901234567",
			"Governorate":  "Amman",
			"District":     "Al-Jubeiha",
		},
	}
	v.validateStructural(row)
	if row.HasBlockingDiagnostic() {
		t.Fatalf("expected no diagnostics, got %+v", row.ValidationErrors)
	}
}

func TestValidateHouseholdSizeMismatchIsBlocking(t *testing.T) {
	v := newValidator()
	row := &model.StagingRow{
		EntityKind: model.EntityHousehold,
		Fields: map[string]any{
			"HouseholdSize": 10,
			"InfantCount":   1,
			"ChildCount":    1,
			"AdultCount":    1,
			"ElderlyCount":  1,
		},
	}
	v.validateSemanticCrossField(row)
	if !row.HasBlockingDiagnostic() {
		t.Fatal("expected blocking diagnostic for household size mismatch")
	}
}

func TestValidateHouseholdSizeWithinToleranceIsAccepted(t *testing.T) {
	v := newValidator()
	row := &model.StagingRow{
		EntityKind: model.EntityHousehold,
		Fields: map[string]any{
			"HouseholdSize": 5,
			"InfantCount":   1,
			"ChildCount":    1,
			"AdultCount":    2,
			"ElderlyCount":  1,
		},
	}
	v.validateSemanticCrossField(row)
	if row.HasBlockingDiagnostic() {
		t.Fatal("expected no diagnostic within +/-1 tolerance")
	}
}

func TestValidateVocabularyRejectsUnknownCode(t *testing.T) {
	v := newValidator()
	row := &model.StagingRow{
		EntityKind: model.EntityPerson,
		Fields:     map[string]any{"Gender": "Unknown"},
	}
	v.validateVocabulary(context.Background(), row, nil)
	if !row.HasBlockingDiagnostic() {
		t.Fatal("expected blocking diagnostic for unrecognized gender code")
	}
}

func TestValidateVocabularyMinorDifferenceDowngradesToAdvisory(t *testing.T) {
	v := newValidator()
	row := &model.StagingRow{
		EntityKind: model.EntityPerson,
		Fields:     map[string]any{"Gender": "Unknown"},
	}
	v.validateVocabulary(context.Background(), row, map[string]bool{"gender": true})
	if row.HasBlockingDiagnostic() {
		t.Fatal("expected advisory-only diagnostic under MinorDifference")
	}
	if len(row.ValidationWarnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(row.ValidationWarnings))
	}
}

func TestValidateIntraBatchReferencesCatchesDanglingFK(t *testing.T) {
	v := newValidator()
	missingBuilding := uuid.New()
	row := &model.StagingRow{
		EntityKind: model.EntityPropertyUnit,
		Fields:     map[string]any{"OriginalBuildingID": missingBuilding.String()},
	}
	presence := map[model.EntityKind]map[uuid.UUID]bool{
		model.EntityBuilding: {},
	}
	v.validateIntraBatchReferences(row, presence)
	if !row.HasBlockingDiagnostic() {
		t.Fatal("expected blocking diagnostic for dangling building reference")
	}
}

func TestValidateIntraBatchReferencesAcceptsResolvableFK(t *testing.T) {
	v := newValidator()
	buildingID := uuid.New()
	row := &model.StagingRow{
		EntityKind: model.EntityPropertyUnit,
		Fields:     map[string]any{"OriginalBuildingID": buildingID.String()},
	}
	presence := map[model.EntityKind]map[uuid.UUID]bool{
		model.EntityBuilding: {buildingID: true},
	}
	v.validateIntraBatchReferences(row, presence)
	if row.HasBlockingDiagnostic() {
		t.Fatal("expected no diagnostic for resolvable reference")
	}
}

func TestValidateDomainLifecycleFlagsOverrideAsAdvisory(t *testing.T) {
	v := newValidator()
	row := &model.StagingRow{
		EntityKind: model.EntityClaim,
		Fields:     map[string]any{"ClaimStatus": "Submitted"},
	}
	v.validateDomainLifecycle(row)
	if row.HasBlockingDiagnostic() {
		t.Fatal("expected advisory-only diagnostic, not blocking")
	}
	if len(row.ValidationWarnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(row.ValidationWarnings))
	}
}
