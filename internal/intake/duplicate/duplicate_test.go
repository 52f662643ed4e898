package duplicate

import (
	"testing"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/ports"
)

func TestScorePersonCandidatesNationalIDExactMatchCapsAtHigh(t *testing.T) {
	row := &model.StagingRow{Fields: map[string]any{
		"NationalID":       "12345",
		"FirstNameArabic":  "احمد",
		"FatherNameArabic": "محمد",
		"FamilyNameArabic": "العلي",
		"DateOfBirth":      "1990-01-01",
		"Gender":           "Male",
	}}
	candID := uuid.New()
	candidates := []ports.ProductionCandidate{{
		ID: candID,
		Fields: map[string]any{
			"NationalID":       "12345",
			"FirstNameArabic":  "احمد",
			"FatherNameArabic": "محمد",
			"FamilyNameArabic": "العلي",
			"DateOfBirth":      "1990-01-01",
			"Gender":           "Male",
		},
	}}
	scored := scorePersonCandidates(row, candidates)
	if len(scored) != 1 {
		t.Fatalf("expected 1 scored candidate, got %d", len(scored))
	}
	if scored[0].Score != 100 {
		t.Fatalf("expected exact match score of 100, got %d", scored[0].Score)
	}
}

func TestScorePersonCandidatesNameOnlyBelowThreshold(t *testing.T) {
	row := &model.StagingRow{Fields: map[string]any{
		"FirstNameArabic":  "احمد",
		"FatherNameArabic": "محمد",
		"FamilyNameArabic": "العلي",
	}}
	candidates := []ports.ProductionCandidate{{
		ID: uuid.New(),
		Fields: map[string]any{
			"FirstNameArabic":  "خالد",
			"FatherNameArabic": "سالم",
			"FamilyNameArabic": "الحسن",
		},
	}}
	scored := scorePersonCandidates(row, candidates)
	if len(scored) != 1 {
		t.Fatalf("expected 1 scored candidate, got %d", len(scored))
	}
	if scored[0].Score >= personConflictThreshold {
		t.Fatalf("expected dissimilar names to score below threshold, got %d", scored[0].Score)
	}
}

func TestSortByScoreDescOrdersHighestFirst(t *testing.T) {
	matches := []model.CandidateMatch{{Score: 10}, {Score: 90}, {Score: 50}}
	sortByScoreDesc(matches)
	if matches[0].Score != 90 || matches[1].Score != 50 || matches[2].Score != 10 {
		t.Fatalf("expected descending order, got %+v", matches)
	}
}

func TestNormalizeKeyCollapsesWhitespaceAndCase(t *testing.T) {
	if got := normalizeKey(" ab 12 "); got != "AB12" {
		t.Fatalf("got %q, want AB12", got)
	}
}
