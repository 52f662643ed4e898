// Package ports declares the collaborator interfaces every pipeline
// component is built against (SPEC_FULL.md §6), the same separation the
// teacher draws between internal/core's service layer and the sqlc-backed
// internal/database package it calls through core.DBTX. Concrete adapters
// live in internal/intake/repository, internal/intake/blobstore,
// internal/intake/audit, and internal/intake/clock.
package ports

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/model"
)

// ImportPackageStore persists ImportPackage aggregates and enforces
// PackageID idempotency (SPEC_FULL.md §4.1 step 2).
type ImportPackageStore interface {
	Create(ctx context.Context, pkg *model.ImportPackage) error
	Update(ctx context.Context, pkg *model.ImportPackage) error
	Get(ctx context.Context, id uuid.UUID) (*model.ImportPackage, error)
	FindByPackageID(ctx context.Context, packageID uuid.UUID) (*model.ImportPackage, error)
	List(ctx context.Context, status model.ImportStatus, limit, offset int) ([]*model.ImportPackage, error)
	NextPackageNumber(ctx context.Context, year int) (string, error)
}

// StagingStore manages the isolated per-package staging schema
// (SPEC_FULL.md §4.2, §4.3).
type StagingStore interface {
	// TruncateForReload deletes any existing staging rows for this package
	// and entity kind, making the Loader idempotent across retries.
	TruncateForReload(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind) error

	// BulkInsert loads rows in a single bulk-copy operation, per
	// SPEC_FULL.md §4.2's pgx.CopyFrom-based bulk insert.
	BulkInsert(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind, rows []*model.StagingRow) (inserted int, err error)

	UpdateValidation(ctx context.Context, row *model.StagingRow) error
	UpdateCommitState(ctx context.Context, row *model.StagingRow) error

	ListByKind(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind) ([]*model.StagingRow, error)
	ListApprovedByKind(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind) ([]*model.StagingRow, error)
	Get(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind, originalEntityID uuid.UUID) (*model.StagingRow, error)

	CountByStatus(ctx context.Context, importPackageID uuid.UUID) (map[model.EntityKind]map[model.ValidationStatus]int, error)

	// DeleteForPackage removes every staging row for importPackageID across
	// all entity kinds, the cleanupStaging path of Cancel (SPEC_FULL.md
	// §4.7).
	DeleteForPackage(ctx context.Context, importPackageID uuid.UUID) error
}

// ProductionCandidate is a minimal projection of a production row used for
// duplicate scoring, avoiding a full entity load for every blocking-key hit.
type ProductionCandidate struct {
	ID     uuid.UUID
	Fields map[string]any
}

// ProductionStore is the read/write gateway into the live tenure-claims
// schema (SPEC_FULL.md §4.4, §4.5, §4.6).
type ProductionStore interface {
	// CandidatesByBlockingKey returns production rows sharing a blocking key
	// (e.g. national ID fragment, building code) for duplicate scoring.
	CandidatesByBlockingKey(ctx context.Context, kind model.ConflictEntityType, blockingKey string) ([]ProductionCandidate, error)

	// InsertEntity inserts one committed row and returns its production id.
	// originalEntityID is the archive id the row was staged under; it is
	// persisted alongside the surrogate production id so a later package
	// committing the same real-world entity can find it again (see
	// ResolveProductionID). fkFields carries already-resolved foreign keys
	// (production ids) by field name, overriding any staged value with the
	// same name.
	InsertEntity(ctx context.Context, kind model.EntityKind, originalEntityID uuid.UUID, fields map[string]any, fkFields map[string]uuid.UUID) (uuid.UUID, error)

	// ResolveProductionID looks up the production id previously assigned to
	// originalEntityID, if this entity (or an earlier version of it from a
	// different package) has already been committed. Returns ok=false when
	// no such row exists yet.
	ResolveProductionID(ctx context.Context, entityType model.ConflictEntityType, originalEntityID uuid.UUID) (productionID uuid.UUID, ok bool, err error)

	// RepointForeignKeys rewrites every table referencing discardedID to
	// reference masterID instead, for Merge resolutions (SPEC_FULL.md §4.5).
	// discardedID must be a production id, not an archive OriginalEntityID
	// (resolve it with ResolveProductionID first). Returns the names of the
	// tables touched, for ConflictResolution.RepointAudit.
	RepointForeignKeys(ctx context.Context, entityType model.ConflictEntityType, discardedID, masterID uuid.UUID) (tablesRepointed []string, err error)

	// AssignClaimNumber allocates and writes a human-facing claim number for
	// a freshly-committed Claim row.
	AssignClaimNumber(ctx context.Context, claimID uuid.UUID, claimNumber string) error

	// WithTx runs fn inside a single production transaction; SPEC_FULL.md
	// §4.6 requires the whole commit to be all-or-nothing per package.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx ProductionStore) error) error
}

// BlobHandle identifies a stored attachment by its content hash.
type BlobHandle struct {
	SHA256      string
	SizeBytes   int64
	StoragePath string
}

// BlobStore is the content-addressed attachment store (SPEC_FULL.md §4.6).
type BlobStore interface {
	// Put stores content, returning a handle. If content already exists
	// under its hash, Put returns the existing handle and Deduplicated=true
	// without rewriting the file.
	Put(ctx context.Context, r io.Reader) (handle BlobHandle, deduplicated bool, err error)
	Open(ctx context.Context, sha256Hex string) (io.ReadCloser, error)
	Exists(ctx context.Context, sha256Hex string) (bool, error)
}

// ConflictStore persists ConflictResolution rows surfaced by the Duplicate
// Detector and mutated by the Conflict Resolver (SPEC_FULL.md §4.4, §4.5;
// the "ConflictResolutions" table named in spec.md §6's persisted-state
// layout).
type ConflictStore interface {
	Create(ctx context.Context, conflict *model.ConflictResolution) error
	Update(ctx context.Context, conflict *model.ConflictResolution) error
	Get(ctx context.Context, id uuid.UUID) (*model.ConflictResolution, error)
	ListByPackage(ctx context.Context, importPackageID uuid.UUID) ([]*model.ConflictResolution, error)
	CountUnresolved(ctx context.Context, importPackageID uuid.UUID) (int, error)

	// DeleteByPackage removes every conflict resolution row for
	// importPackageID, the cleanupStaging path of Cancel (SPEC_FULL.md
	// §4.7).
	DeleteByPackage(ctx context.Context, importPackageID uuid.UUID) error
}

// ClaimNumberGenerator allocates the human-facing claim-number sequence
// (SPEC_FULL.md §3, §4.6). Package numbers come from
// ImportPackageStore.NextPackageNumber instead.
type ClaimNumberGenerator interface {
	NextClaimNumber(ctx context.Context, year int) (string, error)
}

// Clock abstracts wall-clock time so tests can fix "now" deterministically,
// generalizing the teacher's implicit time.Now() calls into an injectable
// seam.
type Clock interface {
	Now() time.Time
}

// CurrentUser resolves the authenticated operator driving a request, the
// generalized replacement for the teacher's IP/UserAgent-only audit context.
type CurrentUser interface {
	UserID(ctx context.Context) (uuid.UUID, bool)
}

// AuditEvent is one immutable audit log entry (SPEC_FULL.md §4.7).
type AuditEvent struct {
	ImportPackageID uuid.UUID
	UserID          uuid.UUID
	Action          string
	Detail          string
	OccurredAt      time.Time
}

// AuditSink records audit events, generalizing the teacher's
// internal/core/audit.go AuditLog/AuditService pattern to arbitrary pipeline
// actions instead of upload-only events.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// VocabularyRegistry resolves the server's current controlled-vocabulary
// semver per domain, consulted during the Receiver's compatibility check
// (SPEC_FULL.md §4.1 step 6) and the Validator's Level 4/5 lookups.
type VocabularyRegistry interface {
	CurrentVersion(ctx context.Context, domain string) (string, bool)
	IsValidCode(ctx context.Context, domain, code string) bool
	Domains(ctx context.Context) []string
}

// ArchiveWriter moves a completed package's source archive to long-term
// storage (SPEC_FULL.md §4.6 step 6), generalizing the teacher's
// ArchiveConfig-driven scheduler.
type ArchiveWriter interface {
	Archive(ctx context.Context, importPackageID uuid.UUID, sourcePath string) (archivePath string, err error)
}
