package web

import (
	"time"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/model"
)

// envelope is the structured result every mutating endpoint returns
// (spec.md §7's "success flag, updated package snapshot, errors,
// warnings"), the JSON-API analog of the teacher's UploadResultResponse
// (internal/web/handlers_common.go).
type envelope struct {
	Success  bool            `json:"success"`
	Package  *packageView    `json:"package,omitempty"`
	Errors   []string        `json:"errors,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// packageView is the JSON-friendly projection of model.ImportPackage.
type packageView struct {
	ID            uuid.UUID `json:"id"`
	PackageID     uuid.UUID `json:"package_id"`
	PackageNumber string    `json:"package_number"`
	FileName      string    `json:"file_name"`
	SizeBytes     int64     `json:"size_bytes"`
	Status        string    `json:"status"`

	IsChecksumValid  bool `json:"is_checksum_valid"`
	IsSignatureValid bool `json:"is_signature_valid"`

	ManifestCounts map[string]int `json:"manifest_counts,omitempty"`
	StagingCounts  map[string]int `json:"staging_counts,omitempty"`

	ValidationErrorCount   int `json:"validation_error_count"`
	ValidationWarningCount int `json:"validation_warning_count"`

	DuplicateCounts      map[string]int `json:"duplicate_counts,omitempty"`
	ConflictCount        int            `json:"conflict_count"`
	AreConflictsResolved bool           `json:"are_conflicts_resolved"`

	CommittedCounts map[string]int `json:"committed_counts,omitempty"`
	FailedCounts    map[string]int `json:"failed_counts,omitempty"`
	SkippedCounts   map[string]int `json:"skipped_counts,omitempty"`

	QuarantineReason   string `json:"quarantine_reason,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	CommittedDate *time.Time `json:"committed_date,omitempty"`
}

func toPackageView(pkg *model.ImportPackage) *packageView {
	if pkg == nil {
		return nil
	}
	return &packageView{
		ID: pkg.ID, PackageID: pkg.PackageID, PackageNumber: pkg.PackageNumber,
		FileName: pkg.FileName, SizeBytes: pkg.SizeBytes, Status: string(pkg.Status),
		IsChecksumValid: pkg.IsChecksumValid, IsSignatureValid: pkg.IsSignatureValid,
		ManifestCounts: countsToStringMap(pkg.ManifestCounts), StagingCounts: countsToStringMap(pkg.StagingCounts),
		ValidationErrorCount: pkg.ValidationErrorCount, ValidationWarningCount: pkg.ValidationWarningCount,
		DuplicateCounts: conflictCountsToStringMap(pkg.DuplicateCounts), ConflictCount: pkg.ConflictCount,
		AreConflictsResolved: pkg.AreConflictsResolved,
		CommittedCounts: countsToStringMap(pkg.CommittedCounts), FailedCounts: countsToStringMap(pkg.FailedCounts),
		SkippedCounts: countsToStringMap(pkg.SkippedCounts),
		QuarantineReason: pkg.QuarantineReason, CancellationReason: pkg.CancellationReason,
		CreatedAt: pkg.CreatedAt, UpdatedAt: pkg.UpdatedAt, CommittedDate: pkg.CommittedDate,
	}
}

func countsToStringMap(counts model.EntityCounts) map[string]int {
	if len(counts) == 0 {
		return nil
	}
	out := make(map[string]int, len(counts))
	for kind, n := range counts {
		out[string(kind)] = n
	}
	return out
}

func conflictCountsToStringMap(counts map[model.ConflictEntityType]int) map[string]int {
	if len(counts) == 0 {
		return nil
	}
	out := make(map[string]int, len(counts))
	for kind, n := range counts {
		out[string(kind)] = n
	}
	return out
}

// stagingRowView is the JSON projection of a staged entity row.
type stagingRowView struct {
	OriginalEntityID    uuid.UUID        `json:"original_entity_id"`
	EntityKind          string           `json:"entity_kind"`
	Fields              map[string]any   `json:"fields"`
	ValidationStatus    string           `json:"validation_status"`
	IsApprovedForCommit bool             `json:"is_approved_for_commit"`
	CommittedEntityID   *uuid.UUID       `json:"committed_entity_id,omitempty"`
	Errors              []diagnosticView `json:"errors,omitempty"`
	Warnings            []diagnosticView `json:"warnings,omitempty"`
}

type diagnosticView struct {
	Code     string `json:"code"`
	Path     string `json:"path"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Level    int    `json:"level"`
}

func toStagingRowView(row *model.StagingRow) stagingRowView {
	v := stagingRowView{
		OriginalEntityID: row.OriginalEntityID, EntityKind: string(row.EntityKind),
		Fields: row.Fields, ValidationStatus: string(row.ValidationStatus),
		IsApprovedForCommit: row.IsApprovedForCommit, CommittedEntityID: row.CommittedEntityID,
	}
	for _, d := range row.ValidationErrors {
		v.Errors = append(v.Errors, toDiagnosticView(d))
	}
	for _, d := range row.ValidationWarnings {
		v.Warnings = append(v.Warnings, toDiagnosticView(d))
	}
	return v
}

func toDiagnosticView(d model.Diagnostic) diagnosticView {
	return diagnosticView{Code: d.Code, Path: d.Path, Message: d.Message, Severity: string(d.Severity), Level: d.Level}
}

// conflictView is the JSON projection of a conflict resolution.
type conflictView struct {
	ID                      uuid.UUID  `json:"id"`
	ImportPackageID         uuid.UUID  `json:"import_package_id"`
	EntityType              string     `json:"entity_type"`
	StagingOriginalEntityID uuid.UUID  `json:"staging_original_entity_id"`
	SuggestedMasterID       uuid.UUID  `json:"suggested_master_id"`
	Score                   int        `json:"score"`
	Decision                string     `json:"decision"`
	ChosenMasterID          *uuid.UUID `json:"chosen_master_id,omitempty"`
	ReviewerID              *uuid.UUID `json:"reviewer_id,omitempty"`
	Justification           string     `json:"justification,omitempty"`
}

func toConflictView(c *model.ConflictResolution) conflictView {
	return conflictView{
		ID: c.ID, ImportPackageID: c.ImportPackageID, EntityType: string(c.EntityType),
		StagingOriginalEntityID: c.StagingOriginalEntityID, SuggestedMasterID: c.SuggestedMasterID,
		Score: c.Score, Decision: string(c.Decision), ChosenMasterID: c.ChosenMasterID,
		ReviewerID: c.ReviewerID, Justification: c.Justification,
	}
}
