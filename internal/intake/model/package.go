package model

import (
	"time"

	"github.com/google/uuid"
)

// VocabularyVersions maps a controlled-vocabulary domain name (e.g.
// "claim_status", "tenure_type") to the semver string the data was
// produced against.
type VocabularyVersions map[string]string

// VocabularyDomainResult is the per-domain verdict computed while checking
// an archive's vocabulary versions against the server's current ones.
type VocabularyDomainResult struct {
	Domain        string
	ArchiveVersion string
	ServerVersion  string
	Level          VocabularyCompatibilityLevel
}

// VocabularyCompatibility is the overall result of SPEC_FULL.md §4.1 step 6.
type VocabularyCompatibility struct {
	Domains           []VocabularyDomainResult
	IsCompatible      bool // no domain is MajorDifference or UnknownDomain
	IsFullyCompatible bool // every domain is Identical
}

// EntityCounts is a per-entity-kind integer tally, reused for manifest
// counts, staging counts, and commit counts.
type EntityCounts map[EntityKind]int

// ImportPackage is the aggregate root of one intake run (SPEC_FULL.md §3).
type ImportPackage struct {
	ID uuid.UUID // surrogate id

	PackageID     uuid.UUID // copied from the manifest; globally unique, enforces idempotency
	PackageNumber string    // "PKG-YYYY-NNNN", assigned by the Receiver

	FileName string
	SizeBytes int64
	Checksum  string // lowercase hex SHA-256
	Signature string // base64, optional

	ImportMethod ImportMethod

	ManifestCounts EntityCounts

	VocabularyVersions      VocabularyVersions
	VocabularyCompatibility VocabularyCompatibility

	IsChecksumValid bool
	IsSignatureValid bool

	SchemaVersion string
	SchemaValid   bool

	ValidationErrorCount   int
	ValidationWarningCount int

	StagingCounts EntityCounts

	DuplicateCounts      map[ConflictEntityType]int
	ConflictCount        int
	AreConflictsResolved bool

	CommittedCounts EntityCounts
	FailedCounts    EntityCounts
	SkippedCounts   EntityCounts

	ArchivePath string
	IsArchived  bool
	ArchivedDate *time.Time

	Status ImportStatus

	QuarantineReason string

	CreatedBy uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time

	CommittedDate *time.Time

	CancellationReason string
	CancelledAt        *time.Time
}

// NewImportPackage builds a freshly-received ImportPackage with zeroed
// counters. Callers still set Status after running the integrity gate.
func NewImportPackage(packageID uuid.UUID, fileName string, sizeBytes int64, importMethod ImportMethod, createdBy uuid.UUID, now time.Time) *ImportPackage {
	return &ImportPackage{
		ID:             uuid.New(),
		PackageID:      packageID,
		FileName:       fileName,
		SizeBytes:      sizeBytes,
		ImportMethod:   importMethod,
		ManifestCounts: EntityCounts{},
		StagingCounts:  EntityCounts{},
		DuplicateCounts: map[ConflictEntityType]int{},
		CommittedCounts: EntityCounts{},
		FailedCounts:    EntityCounts{},
		SkippedCounts:   EntityCounts{},
		CreatedBy:       createdBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Manifest is the single metadata record carried inside a `.uhc` archive
// (SPEC_FULL.md §6).
type Manifest struct {
	PackageID            uuid.UUID
	SchemaVersion        string
	CreatedUtc           time.Time
	ExportedDateUtc      time.Time
	ExportedByUserID     uuid.UUID
	DeviceID             string
	TotalRecordCount     int
	EntityCounts         EntityCounts
	TotalAttachmentSizeBytes int64
	VocabularyVersions   VocabularyVersions
	Checksum             string // lowercase hex SHA-256, empty if not computed
	DigitalSignature     string // base64, empty if unsigned
}
