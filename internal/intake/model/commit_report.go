package model

import "time"

import "github.com/google/uuid"

// EntityCommitSummary is the per-entity-type tally in a CommitReport
// (SPEC_FULL.md §3, §4.6).
type EntityCommitSummary struct {
	Kind      EntityKind
	Approved  int
	Committed int
	Failed    int
	Skipped   int

	// IDMapping maps each committed staging row's OriginalEntityID to the
	// production id it was written under (or the existing id it was
	// resolved to via LinkToExisting/Merge).
	IDMapping map[uuid.UUID]uuid.UUID
}

// CommitError records one row-level failure encountered during commit.
type CommitError struct {
	Kind             EntityKind
	OriginalEntityID uuid.UUID
	Message          string
}

// MergePerformed records one FK-repoint merge executed during commit (when
// resolution-time merges are deferred to commit — see SPEC_FULL.md §5).
type MergePerformed struct {
	EntityType   ConflictEntityType
	DiscardedID  uuid.UUID
	MasterID     uuid.UUID
	TablesRepointed []string
}

// CommitReport is the per-package summary produced by the Commit Engine
// (SPEC_FULL.md §3, §4.6).
type CommitReport struct {
	ImportPackageID uuid.UUID

	Summaries []EntityCommitSummary
	Errors    []CommitError
	Merges    []MergePerformed

	DeduplicationBytesSaved int64
	DeduplicatedBlobCount   int

	StartedAt time.Time
	FinishedAt time.Time
	Duration  time.Duration

	TotalApproved  int
	TotalCommitted int
	TotalFailed    int
	TotalSkipped   int
}

// SuccessRate returns the fraction of approved rows that committed
// successfully. Returns 1.0 when nothing was approved.
func (r *CommitReport) SuccessRate() float64 {
	if r.TotalApproved == 0 {
		return 1.0
	}
	return float64(r.TotalCommitted) / float64(r.TotalApproved)
}

// FullySuccessful reports whether the commit produced zero errors and zero
// failed rows, per SPEC_FULL.md §4.6.
func (r *CommitReport) FullySuccessful() bool {
	return len(r.Errors) == 0 && r.TotalFailed == 0
}

// Recalculate derives the report's aggregate totals from its per-entity
// summaries. Call after appending all summaries.
func (r *CommitReport) Recalculate() {
	r.TotalApproved, r.TotalCommitted, r.TotalFailed, r.TotalSkipped = 0, 0, 0, 0
	for _, s := range r.Summaries {
		r.TotalApproved += s.Approved
		r.TotalCommitted += s.Committed
		r.TotalFailed += s.Failed
		r.TotalSkipped += s.Skipped
	}
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
}
