// Package duplicate implements the Duplicate Detector (SPEC_FULL.md §4.4):
// person candidates are blocked by national ID or year-of-birth +
// gender + family-name prefix and scored with weighted Arabic-name
// Levenshtein similarity (internal/intake/similarity); property candidates
// are blocked by building code + unit identifier.
package duplicate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/landtenure/intake/internal/intake/clock"
	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/ports"
	"github.com/landtenure/intake/internal/intake/similarity"
)

const (
	personConflictThreshold   = 70
	personCandidateFloor      = 55
	propertyNearMatchDistance = 2
	propertyNearMatchScore    = 70
)

// Detector runs duplicate detection for one package.
type Detector struct {
	staging ports.StagingStore
	prod    ports.ProductionStore
	clock   clock.Clock
}

// New builds a Detector over the given collaborators.
func New(staging ports.StagingStore, prod ports.ProductionStore, c clock.Clock) *Detector {
	return &Detector{staging: staging, prod: prod, clock: c}
}

// Report is the outcome of DetectPackage.
type Report struct {
	ConflictsCreated []*model.ConflictResolution
	Counts           map[model.ConflictEntityType]int
}

// DetectPackage scores every approved Person and PropertyUnit staging row
// against production candidates and returns the conflicts that require
// human review (SPEC_FULL.md §4.4). Rows that produce no conflict are left
// untouched; the caller advances the package to ReadyToCommit directly when
// Report.ConflictsCreated is empty.
func (d *Detector) DetectPackage(ctx context.Context, importPackageID uuid.UUID) (Report, error) {
	report := Report{Counts: map[model.ConflictEntityType]int{}}

	var personConflicts, propertyConflicts []*model.ConflictResolution

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		personConflicts, err = d.detectPersons(gctx, importPackageID)
		if err != nil {
			return fmt.Errorf("detect person duplicates: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		propertyConflicts, err = d.detectPropertyUnits(gctx, importPackageID)
		if err != nil {
			return fmt.Errorf("detect property unit duplicates: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return report, err
	}

	report.ConflictsCreated = append(report.ConflictsCreated, personConflicts...)
	report.Counts[model.ConflictEntityPerson] = len(personConflicts)
	report.ConflictsCreated = append(report.ConflictsCreated, propertyConflicts...)
	report.Counts[model.ConflictEntityPropertyUnit] = len(propertyConflicts)

	return report, nil
}

func (d *Detector) detectPersons(ctx context.Context, importPackageID uuid.UUID) ([]*model.ConflictResolution, error) {
	rows, err := d.staging.ListApprovedByKind(ctx, importPackageID, model.EntityPerson)
	if err != nil {
		return nil, err
	}

	var conflicts []*model.ConflictResolution
	for _, row := range rows {
		candidates, err := d.personCandidates(ctx, row)
		if err != nil {
			return nil, err
		}
		scored := scorePersonCandidates(row, candidates)
		if len(scored) == 0 {
			continue
		}

		best := scored[0]
		if best.Score < personConflictThreshold {
			continue
		}

		var kept []model.CandidateMatch
		for _, c := range scored {
			if c.Score >= personCandidateFloor {
				kept = append(kept, c)
			}
		}

		conflicts = append(conflicts, &model.ConflictResolution{
			ID:                      uuid.New(),
			ImportPackageID:         importPackageID,
			EntityType:              model.ConflictEntityPerson,
			StagingOriginalEntityID: row.OriginalEntityID,
			Candidates:              kept,
			SuggestedMasterID:       best.ProductionID,
			Score:                   best.Score,
			Decision:                model.DecisionUnresolved,
			CreatedAt:               d.clock.Now(),
		})
	}
	return conflicts, nil
}

func (d *Detector) personCandidates(ctx context.Context, row *model.StagingRow) ([]ports.ProductionCandidate, error) {
	seen := make(map[uuid.UUID]ports.ProductionCandidate)

	if nationalID, ok := row.FieldString("NationalID"); ok && nationalID != "" {
		byID, err := d.prod.CandidatesByBlockingKey(ctx, model.ConflictEntityPerson, nationalID)
		if err != nil {
			return nil, err
		}
		for _, c := range byID {
			seen[c.ID] = c
		}
	}

	yob, _ := row.FieldString("YearOfBirth")
	gender, _ := row.FieldString("Gender")
	family, _ := row.FieldString("FamilyNameArabic")
	familyPrefix := string([]rune(similarity.NormalizeArabicName(family))[:min(3, len([]rune(similarity.NormalizeArabicName(family))))])
	if yob != "" && gender != "" && familyPrefix != "" {
		key := fmt.Sprintf("yob_gender_family:%s:%s:%s", yob, gender, familyPrefix)
		byBlock, err := d.prod.CandidatesByBlockingKey(ctx, model.ConflictEntityPerson, key)
		if err != nil {
			return nil, err
		}
		for _, c := range byBlock {
			seen[c.ID] = c
		}
	}

	out := make([]ports.ProductionCandidate, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	return out, nil
}

func scorePersonCandidates(row *model.StagingRow, candidates []ports.ProductionCandidate) []model.CandidateMatch {
	rowNationalID, _ := row.FieldString("NationalID")
	rowTriple := similarity.NameTriple{
		First:  similarity.NormalizeArabicName(strVal(row.Fields, "FirstNameArabic")),
		Father: similarity.NormalizeArabicName(strVal(row.Fields, "FatherNameArabic")),
		Family: similarity.NormalizeArabicName(strVal(row.Fields, "FamilyNameArabic")),
	}
	rowDOB := strVal(row.Fields, "DateOfBirth")
	rowGender := strVal(row.Fields, "Gender")

	matches := make([]model.CandidateMatch, 0, len(candidates))
	for _, cand := range candidates {
		score := 0

		candNationalID := strVal(cand.Fields, "NationalID")
		if rowNationalID != "" && candNationalID != "" && rowNationalID == candNationalID {
			score += 60
		}

		candTriple := similarity.NameTriple{
			First:  similarity.NormalizeArabicName(strVal(cand.Fields, "FirstNameArabic")),
			Father: similarity.NormalizeArabicName(strVal(cand.Fields, "FatherNameArabic")),
			Family: similarity.NormalizeArabicName(strVal(cand.Fields, "FamilyNameArabic")),
		}
		nameScore := similarity.WeightedNameSimilarity(rowTriple, candTriple)
		score += int(nameScore * 0.40 / 100 * 100) // scaled to 40 points

		candDOB := strVal(cand.Fields, "DateOfBirth")
		switch {
		case rowDOB != "" && candDOB != "" && rowDOB == candDOB:
			score += 15
		case len(rowDOB) >= 4 && len(candDOB) >= 4 && rowDOB[:4] == candDOB[:4]:
			score += 8
		}

		candGender := strVal(cand.Fields, "Gender")
		if rowGender != "" && candGender != "" && rowGender == candGender {
			score += 5
		}

		if score > 100 {
			score = 100
		}

		matches = append(matches, model.CandidateMatch{ProductionID: cand.ID, Score: score})
	}

	sortByScoreDesc(matches)
	return matches
}

func (d *Detector) detectPropertyUnits(ctx context.Context, importPackageID uuid.UUID) ([]*model.ConflictResolution, error) {
	rows, err := d.staging.ListApprovedByKind(ctx, importPackageID, model.EntityPropertyUnit)
	if err != nil {
		return nil, err
	}

	var conflicts []*model.ConflictResolution
	for _, row := range rows {
		buildingCode := normalizeKey(strVal(row.Fields, "BuildingCode"))
		unitID := normalizeKey(strVal(row.Fields, "UnitIdentifier"))
		if buildingCode == "" || unitID == "" {
			continue
		}

		candidates, err := d.prod.CandidatesByBlockingKey(ctx, model.ConflictEntityPropertyUnit, buildingCode)
		if err != nil {
			return nil, err
		}

		var matches []model.CandidateMatch
		for _, cand := range candidates {
			candUnitID := normalizeKey(strVal(cand.Fields, "UnitIdentifier"))
			switch {
			case candUnitID == unitID:
				matches = append(matches, model.CandidateMatch{ProductionID: cand.ID, Score: 100})
			case similarity.Levenshtein(candUnitID, unitID) <= propertyNearMatchDistance:
				matches = append(matches, model.CandidateMatch{ProductionID: cand.ID, Score: propertyNearMatchScore})
			}
		}
		if len(matches) == 0 {
			continue
		}
		sortByScoreDesc(matches)

		conflicts = append(conflicts, &model.ConflictResolution{
			ID:                      uuid.New(),
			ImportPackageID:         importPackageID,
			EntityType:              model.ConflictEntityPropertyUnit,
			StagingOriginalEntityID: row.OriginalEntityID,
			Candidates:              matches,
			SuggestedMasterID:       matches[0].ProductionID,
			Score:                   matches[0].Score,
			Decision:                model.DecisionUnresolved,
			CreatedAt:               d.clock.Now(),
		})
	}
	return conflicts, nil
}

func strVal(f map[string]any, key string) string {
	s, _ := f[key].(string)
	return s
}

func normalizeKey(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

func sortByScoreDesc(matches []model.CandidateMatch) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Score > matches[j-1].Score; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
}

