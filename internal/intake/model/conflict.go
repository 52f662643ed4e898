package model

import "time"

import "github.com/google/uuid"

// CandidateMatch is one production candidate surfaced by the Duplicate
// Detector, scored 0-100 (SPEC_FULL.md §4.4).
type CandidateMatch struct {
	ProductionID uuid.UUID
	Score        int
}

// ConflictResolution is a candidate duplicate pair between a staging row
// and one or more production candidates, requiring a human decision
// (SPEC_FULL.md §3, §4.4, §4.5).
type ConflictResolution struct {
	ID              uuid.UUID
	ImportPackageID uuid.UUID
	EntityType      ConflictEntityType

	StagingOriginalEntityID uuid.UUID

	Candidates       []CandidateMatch
	SuggestedMasterID uuid.UUID // the highest-scoring candidate
	Score             int       // the suggested master's score

	Decision       ConflictDecision
	ChosenMasterID *uuid.UUID // set for Merge / LinkToExisting

	ReviewerID *uuid.UUID
	DecidedAt  *time.Time

	Justification string

	// RepointAudit is a JSON blob recording which production rows were
	// repointed to the chosen master during Merge resolution.
	RepointAudit string

	CreatedAt time.Time
}

// IsTerminal reports whether a decision has already been made; a second
// resolve attempt on a terminal conflict must fail with
// errtax.ErrConflictAlreadyResolved.
func (c *ConflictResolution) IsTerminal() bool {
	return c.Decision != DecisionUnresolved && c.Decision != ""
}
