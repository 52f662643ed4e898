// Package model holds the intake pipeline's domain types: the ImportPackage
// aggregate, per-entity staging rows, conflict resolutions, and commit
// reports. It has no database or HTTP dependencies so it can be imported by
// every component without pulling in pgx or chi.
package model

// ImportStatus is the lifecycle state of an ImportPackage, per the state
// machine in SPEC_FULL.md §4.8.
type ImportStatus string

const (
	StatusPending             ImportStatus = "Pending"
	StatusValidating          ImportStatus = "Validating"
	StatusValidated           ImportStatus = "Validated"
	StatusInvalid             ImportStatus = "Invalid"
	StatusDetectingDuplicates ImportStatus = "DetectingDuplicates"
	StatusReviewingConflicts  ImportStatus = "ReviewingConflicts"
	StatusReadyToCommit       ImportStatus = "ReadyToCommit"
	StatusCommitting          ImportStatus = "Committing"
	StatusCompleted           ImportStatus = "Completed"
	StatusPartiallyCompleted  ImportStatus = "PartiallyCompleted"
	StatusCommitFailed        ImportStatus = "CommitFailed"
	StatusQuarantined         ImportStatus = "Quarantined"
	StatusCancelled           ImportStatus = "Cancelled"
)

// Terminal reports whether the status accepts no further stage transitions
// other than CommitFailed's retry path and Cancelled's idempotent re-entry.
func (s ImportStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartiallyCompleted, StatusCancelled, StatusQuarantined:
		return true
	default:
		return false
	}
}

// ImportMethod records how a package reached the server.
type ImportMethod string

const (
	ImportMethodManual       ImportMethod = "Manual"
	ImportMethodNetworkSync  ImportMethod = "NetworkSync"
	ImportMethodWatchedFolder ImportMethod = "WatchedFolder"
)

// ValidationStatus is the per-staging-row outcome of the Validator.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "Pending"
	ValidationValid   ValidationStatus = "Valid"
	ValidationInvalid ValidationStatus = "Invalid"
	ValidationWarning ValidationStatus = "Warning"
	ValidationSkipped ValidationStatus = "Skipped"
)

// DiagnosticSeverity distinguishes blocking validation failures from
// advisory ones (SPEC_FULL.md §4.3).
type DiagnosticSeverity string

const (
	SeverityBlocking DiagnosticSeverity = "Blocking"
	SeverityAdvisory DiagnosticSeverity = "Advisory"
)

// ConflictEntityType is the closed set of duplicate-detectable entity kinds.
type ConflictEntityType string

const (
	ConflictEntityPerson       ConflictEntityType = "Person"
	ConflictEntityBuilding     ConflictEntityType = "Building"
	ConflictEntityPropertyUnit ConflictEntityType = "PropertyUnit"
)

// ConflictDecision is the terminal outcome a reviewer picks for a conflict.
type ConflictDecision string

const (
	DecisionUnresolved     ConflictDecision = "Unresolved"
	DecisionMerge          ConflictDecision = "Merge"
	DecisionLinkToExisting ConflictDecision = "LinkToExisting"
	DecisionKeepSeparate   ConflictDecision = "KeepSeparate"
	DecisionCreateNew      ConflictDecision = "CreateNew"
)

// VocabularyCompatibilityLevel is the per-domain semver comparison outcome
// computed by the Receiver (SPEC_FULL.md §4.1 step 6).
type VocabularyCompatibilityLevel string

const (
	VocabIdentical        VocabularyCompatibilityLevel = "Identical"
	VocabPatchDifference   VocabularyCompatibilityLevel = "PatchDifference"
	VocabMinorDifference   VocabularyCompatibilityLevel = "MinorDifference"
	VocabMajorDifference   VocabularyCompatibilityLevel = "MajorDifference"
	VocabUnknownDomain     VocabularyCompatibilityLevel = "UnknownDomain"
)

// Compatible reports whether a domain at this level still allows the
// package to be staged.
func (l VocabularyCompatibilityLevel) Compatible() bool {
	return l != VocabMajorDifference && l != VocabUnknownDomain
}

// EntityKind enumerates the staging/production entity types the pipeline
// moves through the commit DAG, in SPEC_FULL.md §4.6's insertion order.
type EntityKind string

const (
	EntityBuilding              EntityKind = "Building"
	EntityPropertyUnit          EntityKind = "PropertyUnit"
	EntityPerson                EntityKind = "Person"
	EntityHousehold             EntityKind = "Household"
	EntityPersonPropertyRelation EntityKind = "PersonPropertyRelation"
	EntityEvidence              EntityKind = "Evidence"
	EntitySurvey                EntityKind = "Survey"
	EntityClaim                 EntityKind = "Claim"
	EntityDocument              EntityKind = "Document"
	EntityReferral              EntityKind = "Referral"
)

// CommitOrder is the fixed dependency-DAG insertion order from
// SPEC_FULL.md §4.6. The Loader uses the same order (minus Referral, which
// the archive format does not stage ahead of commit-time creation).
var CommitOrder = []EntityKind{
	EntityBuilding,
	EntityPropertyUnit,
	EntityPerson,
	EntityHousehold,
	EntityPersonPropertyRelation,
	EntityEvidence,
	EntitySurvey,
	EntityClaim,
	EntityDocument,
	EntityReferral,
}

// LoadOrder is the Staging Loader's fixed topological order (SPEC_FULL.md
// §4.2), which excludes Referral since referrals are not part of the
// archive's staged entity set.
var LoadOrder = []EntityKind{
	EntityBuilding,
	EntityPropertyUnit,
	EntityPerson,
	EntityHousehold,
	EntityPersonPropertyRelation,
	EntityEvidence,
	EntitySurvey,
	EntityClaim,
	EntityDocument,
}
