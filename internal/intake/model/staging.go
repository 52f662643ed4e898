package model

import "github.com/google/uuid"

// Diagnostic is a single structured validation finding attached to a
// staging row (SPEC_FULL.md §4.3).
type Diagnostic struct {
	Code     string // e.g. "VAL-L2-OWNERSHIP-RANGE"
	Path     string // field path within the row, e.g. "OwnershipSharePercent"
	Message  string
	Severity DiagnosticSeverity
	Level    int // 1..6, the Validator level that raised it
}

// StagingRow is the common envelope every per-entity staging table shares
// on top of its business fields (SPEC_FULL.md §3).
type StagingRow struct {
	ID               uuid.UUID
	ImportPackageID  uuid.UUID
	OriginalEntityID uuid.UUID // the UUID as it appears in the archive
	EntityKind       EntityKind

	Fields map[string]any // business fields, keyed by archive column name

	ValidationStatus   ValidationStatus
	ValidationErrors   []Diagnostic
	ValidationWarnings []Diagnostic

	IsApprovedForCommit bool

	// CommittedEntityID is write-once: set after a successful commit insert,
	// or after a LinkToExisting/Merge resolution points this row at an
	// existing production row.
	CommittedEntityID *uuid.UUID
}

// HasBlockingDiagnostic reports whether any recorded diagnostic is
// severity Blocking, which per SPEC_FULL.md §4.3 marks the row Invalid.
func (r *StagingRow) HasBlockingDiagnostic() bool {
	for _, d := range r.ValidationErrors {
		if d.Severity == SeverityBlocking {
			return true
		}
	}
	return false
}

// AddDiagnostic records a diagnostic and routes it to Errors or Warnings by
// severity.
func (r *StagingRow) AddDiagnostic(d Diagnostic) {
	if d.Severity == SeverityBlocking {
		r.ValidationErrors = append(r.ValidationErrors, d)
	} else {
		r.ValidationWarnings = append(r.ValidationWarnings, d)
	}
}

// Resolve derives the row's terminal ValidationStatus from its recorded
// diagnostics, per SPEC_FULL.md §4.3: any Blocking diagnostic -> Invalid;
// only Advisory diagnostics -> Warning; none -> Valid. Does not overwrite
// an already-Skipped row (reserved for the Duplicate Detector).
func (r *StagingRow) Resolve() {
	if r.ValidationStatus == ValidationSkipped {
		return
	}
	switch {
	case r.HasBlockingDiagnostic():
		r.ValidationStatus = ValidationInvalid
	case len(r.ValidationWarnings) > 0:
		r.ValidationStatus = ValidationWarning
	default:
		r.ValidationStatus = ValidationValid
	}
}

// FieldUUID reads a UUID-valued field, returning (uuid.Nil, false) when the
// field is absent or not a parseable UUID.
func (r *StagingRow) FieldUUID(name string) (uuid.UUID, bool) {
	v, ok := r.Fields[name]
	if !ok {
		return uuid.Nil, false
	}
	switch t := v.(type) {
	case uuid.UUID:
		return t, true
	case string:
		parsed, err := uuid.Parse(t)
		if err != nil {
			return uuid.Nil, false
		}
		return parsed, true
	default:
		return uuid.Nil, false
	}
}

// FieldString reads a string-valued field.
func (r *StagingRow) FieldString(name string) (string, bool) {
	v, ok := r.Fields[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
