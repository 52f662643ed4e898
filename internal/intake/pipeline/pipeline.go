// Package pipeline wires the Receiver, Staging Loader, Validator, Duplicate
// Detector, Conflict Resolver, Commit Engine, and the state machine into the
// single collaborator the HTTP layer calls per package, the same role the
// teacher's internal/core.Service plays between its HTTP handlers and the
// CSV upload/table machinery (internal/core/service.go), generalized from a
// background-goroutine-plus-progress-channel shape to package-lifecycle
// stage calls that each run to completion before returning.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/archive"
	"github.com/landtenure/intake/internal/intake/clock"
	"github.com/landtenure/intake/internal/intake/commit"
	"github.com/landtenure/intake/internal/intake/duplicate"
	"github.com/landtenure/intake/internal/intake/errtax"
	"github.com/landtenure/intake/internal/intake/loader"
	"github.com/landtenure/intake/internal/intake/lock"
	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/ports"
	"github.com/landtenure/intake/internal/intake/receiver"
	"github.com/landtenure/intake/internal/intake/resolver"
	"github.com/landtenure/intake/internal/intake/statemachine"
	"github.com/landtenure/intake/internal/intake/validator"
)

// Service orchestrates the full package lifecycle. Each stage method
// acquires the package's advisory lock for its duration, so two requests
// racing the same package one gets errtax.ErrPackageBusy rather than
// corrupting shared staging state.
type Service struct {
	packages  ports.ImportPackageStore
	staging   ports.StagingStore
	conflicts ports.ConflictStore
	prod      ports.ProductionStore
	audit     ports.AuditSink
	clock     clock.Clock
	locker    *lock.PackageLocker

	receiver  *receiver.Receiver
	loadr     *loader.Loader
	validatr  *validator.Validator
	detector  *duplicate.Detector
	resolvr   *resolver.Resolver
	committer *commit.Engine
}

// New builds a Service over the given collaborators. locker is shared with
// the HTTP server's graceful-shutdown drain.
func New(
	packages ports.ImportPackageStore,
	staging ports.StagingStore,
	conflicts ports.ConflictStore,
	prod ports.ProductionStore,
	audit ports.AuditSink,
	c clock.Clock,
	locker *lock.PackageLocker,
	recv *receiver.Receiver,
	ld *loader.Loader,
	val *validator.Validator,
	det *duplicate.Detector,
	res *resolver.Resolver,
	eng *commit.Engine,
) *Service {
	return &Service{
		packages: packages, staging: staging, conflicts: conflicts, prod: prod,
		audit: audit, clock: c, locker: locker,
		receiver: recv, loadr: ld, validatr: val, detector: det, resolvr: res, committer: eng,
	}
}

// withLock runs fn while holding the package's advisory lock, translating a
// lock-acquire timeout into errtax.ErrPackageBusy.
func (s *Service) withLock(ctx context.Context, packageID uuid.UUID, fn func() error) error {
	release, err := s.locker.Acquire(ctx, packageID)
	if err != nil {
		return fmt.Errorf("%w: %v", errtax.ErrPackageBusy, err)
	}
	defer release()
	return fn()
}

// Receive runs the Receiver's integrity gate and, for a package that lands
// in Pending, immediately loads its staged rows — the archive's temp file
// and its opened sqlite handle belong to this one call, so there is no
// later point at which the Loader could still read them.
func (s *Service) Receive(ctx context.Context, fileName string, fileData io.Reader, importMethod model.ImportMethod, createdBy uuid.UUID) (*model.ImportPackage, error) {
	result, err := s.receiver.Receive(ctx, fileName, fileData, importMethod, createdBy)
	if err != nil {
		return nil, err
	}
	pkg := result.Package

	if pkg.Status != model.StatusPending || result.StagedPath == "" {
		return pkg, nil
	}

	if err := s.withLock(ctx, pkg.ID, func() error {
		db, err := archive.Open(result.StagedPath)
		if err != nil {
			return fmt.Errorf("%w: %v", errtax.ErrManifestInvalid, err)
		}
		defer db.Close()

		report, err := s.loadr.LoadPackage(ctx, pkg.ID, db)
		if err != nil {
			return fmt.Errorf("load staged rows: %w", err)
		}
		pkg.StagingCounts = report.Counts
		pkg.UpdatedAt = s.clock.Now()
		return s.packages.Update(ctx, pkg)
	}); err != nil {
		return nil, err
	}

	return pkg, nil
}

// Validate runs the Validator over every staged row and advances the
// package to Validated or Invalid (SPEC_FULL.md §4.3, §4.8).
func (s *Service) Validate(ctx context.Context, packageID uuid.UUID) (*model.ImportPackage, validator.Report, error) {
	var (
		pkg *model.ImportPackage
		rep validator.Report
	)
	err := s.withLock(ctx, packageID, func() error {
		var err error
		pkg, err = s.packages.Get(ctx, packageID)
		if err != nil {
			return err
		}
		if err := statemachine.RequireStatus(pkg.Status, model.StatusPending, model.StatusInvalid); err != nil {
			return err
		}
		pkg.Status, err = statemachine.Apply(pkg.Status, model.StatusValidating)
		if err != nil {
			return err
		}

		minorDomains := minorDifferenceDomains(pkg.VocabularyCompatibility)
		rep, err = s.validatr.ValidatePackage(ctx, packageID, minorDomains)
		if err != nil {
			return fmt.Errorf("validate package: %w", err)
		}

		pkg.ValidationErrorCount = rep.ErrorCount
		pkg.ValidationWarningCount = rep.WarningCount
		next := model.StatusValidated
		if rep.AnyInvalid {
			next = model.StatusInvalid
		}
		pkg.Status, err = statemachine.Apply(pkg.Status, next)
		if err != nil {
			return err
		}
		pkg.UpdatedAt = s.clock.Now()
		return s.packages.Update(ctx, pkg)
	})
	return pkg, rep, err
}

// DetectDuplicates runs the Duplicate Detector, persists any surfaced
// conflicts, and advances the package to ReviewingConflicts (or bypasses
// straight to ReadyToCommit when none are found, per the state machine).
func (s *Service) DetectDuplicates(ctx context.Context, packageID uuid.UUID) (*model.ImportPackage, duplicate.Report, error) {
	var (
		pkg *model.ImportPackage
		rep duplicate.Report
	)
	err := s.withLock(ctx, packageID, func() error {
		var err error
		pkg, err = s.packages.Get(ctx, packageID)
		if err != nil {
			return err
		}
		if err := statemachine.RequireStatus(pkg.Status, model.StatusValidated); err != nil {
			return err
		}
		pkg.Status, err = statemachine.Apply(pkg.Status, model.StatusDetectingDuplicates)
		if err != nil {
			return err
		}

		rep, err = s.detector.DetectPackage(ctx, packageID)
		if err != nil {
			return fmt.Errorf("detect duplicates: %w", err)
		}
		for _, c := range rep.ConflictsCreated {
			if err := s.conflicts.Create(ctx, c); err != nil {
				return fmt.Errorf("persist conflict: %w", err)
			}
		}

		pkg.DuplicateCounts = rep.Counts
		pkg.ConflictCount = len(rep.ConflictsCreated)
		pkg.AreConflictsResolved = pkg.ConflictCount == 0

		next := model.StatusReviewingConflicts
		if pkg.ConflictCount == 0 {
			next = model.StatusReadyToCommit
		}
		pkg.Status, err = statemachine.Apply(pkg.Status, next)
		if err != nil {
			return err
		}
		pkg.UpdatedAt = s.clock.Now()
		return s.packages.Update(ctx, pkg)
	})
	return pkg, rep, err
}

// ListStagedEntities returns every staged row for one entity kind.
func (s *Service) ListStagedEntities(ctx context.Context, packageID uuid.UUID, kind model.EntityKind) ([]*model.StagingRow, error) {
	return s.staging.ListByKind(ctx, packageID, kind)
}

// ListConflicts returns every conflict surfaced for a package.
func (s *Service) ListConflicts(ctx context.Context, packageID uuid.UUID) ([]*model.ConflictResolution, error) {
	return s.conflicts.ListByPackage(ctx, packageID)
}

// ResolveConflict applies a reviewer's decision to one conflict. When it was
// the package's last unresolved conflict, the package advances to
// ReadyToCommit.
func (s *Service) ResolveConflict(ctx context.Context, conflictID uuid.UUID, in resolver.Input) (*model.ConflictResolution, error) {
	conflict, err := s.conflicts.Get(ctx, conflictID)
	if err != nil {
		return nil, err
	}

	var result *model.ConflictResolution
	err = s.withLock(ctx, conflict.ImportPackageID, func() error {
		pkg, err := s.packages.Get(ctx, conflict.ImportPackageID)
		if err != nil {
			return err
		}
		if err := statemachine.RequireStatus(pkg.Status, model.StatusReviewingConflicts); err != nil {
			return err
		}

		stagingRow, err := s.staging.Get(ctx, conflict.ImportPackageID, entityKindForConflict(conflict.EntityType), conflict.StagingOriginalEntityID)
		if err != nil {
			return fmt.Errorf("load staging row for conflict: %w", err)
		}

		if err := s.resolvr.Resolve(ctx, conflict, stagingRow, in); err != nil {
			return err
		}
		if err := s.staging.UpdateCommitState(ctx, stagingRow); err != nil {
			return fmt.Errorf("persist resolved staging row: %w", err)
		}
		if err := s.conflicts.Update(ctx, conflict); err != nil {
			return fmt.Errorf("persist resolved conflict: %w", err)
		}

		remaining, err := s.conflicts.CountUnresolved(ctx, pkg.ID)
		if err != nil {
			return fmt.Errorf("count unresolved conflicts: %w", err)
		}
		if remaining == 0 {
			pkg.AreConflictsResolved = true
			pkg.Status, err = statemachine.Apply(pkg.Status, model.StatusReadyToCommit)
			if err != nil {
				return err
			}
			pkg.UpdatedAt = s.clock.Now()
			if err := s.packages.Update(ctx, pkg); err != nil {
				return err
			}
		}

		result = conflict
		return nil
	})
	return result, err
}

// Commit runs the whole-package transactional commit and advances the
// package to Completed, PartiallyCompleted, or CommitFailed.
func (s *Service) Commit(ctx context.Context, packageID uuid.UUID) (*model.ImportPackage, *model.CommitReport, error) {
	var (
		pkg *model.ImportPackage
		rep *model.CommitReport
	)
	err := s.withLock(ctx, packageID, func() error {
		var err error
		pkg, err = s.packages.Get(ctx, packageID)
		if err != nil {
			return err
		}
		if err := statemachine.RequireStatus(pkg.Status, model.StatusReadyToCommit, model.StatusCommitFailed); err != nil {
			return err
		}
		if !pkg.AreConflictsResolved {
			return errtax.ErrConflictUnresolved
		}
		pkg.Status, err = statemachine.Apply(pkg.Status, model.StatusCommitting)
		if err != nil {
			return err
		}

		txErr := s.prod.WithTx(ctx, func(ctx context.Context, tx ports.ProductionStore) error {
			var commitErr error
			rep, commitErr = s.committer.Commit(ctx, packageID, s.clock.Now().Year(), tx)
			return commitErr
		})

		next := model.StatusCompleted
		switch {
		case txErr != nil:
			next = model.StatusCommitFailed
			pkg.CancellationReason = fmt.Sprintf("commit failed: %v", txErr)
		case rep != nil && !rep.FullySuccessful():
			next = model.StatusPartiallyCompleted
		}
		pkg.Status, err = statemachine.Apply(pkg.Status, next)
		if err != nil {
			return err
		}
		if rep != nil {
			pkg.CommittedCounts, pkg.FailedCounts, pkg.SkippedCounts = summaryCounts(rep.Summaries)
		}
		if next == model.StatusCompleted || next == model.StatusPartiallyCompleted {
			now := s.clock.Now()
			pkg.CommittedDate = &now
		}
		pkg.UpdatedAt = s.clock.Now()
		if err := s.packages.Update(ctx, pkg); err != nil {
			return err
		}
		return txErr
	})
	return pkg, rep, err
}

// Cancel withdraws a non-terminal package from the pipeline. When
// cleanupStaging is true, every staging row and conflict resolution for the
// package is deleted; cleanup failures are logged to the audit trail but do
// not fail the cancellation itself (SPEC_FULL.md §4.7).
func (s *Service) Cancel(ctx context.Context, packageID uuid.UUID, reason string, cleanupStaging bool, actorID uuid.UUID) (*model.ImportPackage, error) {
	var pkg *model.ImportPackage
	err := s.withLock(ctx, packageID, func() error {
		var err error
		pkg, err = s.packages.Get(ctx, packageID)
		if err != nil {
			return err
		}
		if !statemachine.CanCancel(pkg.Status) {
			return fmt.Errorf("%w: package %s is in terminal status %s", errtax.ErrStateTransitionInvalid, packageID, pkg.Status)
		}
		pkg.Status = model.StatusCancelled
		pkg.CancellationReason = reason
		now := s.clock.Now()
		pkg.CancelledAt = &now
		pkg.UpdatedAt = now
		if err := s.packages.Update(ctx, pkg); err != nil {
			return err
		}
		if s.audit != nil {
			_ = s.audit.Record(ctx, ports.AuditEvent{
				ImportPackageID: pkg.ID,
				UserID:          actorID,
				Action:          "package_cancelled",
				Detail:          reason,
				OccurredAt:      now,
			})
		}

		if cleanupStaging {
			cleanupErr := s.staging.DeleteForPackage(ctx, packageID)
			if cleanupErr != nil && s.audit != nil {
				_ = s.audit.Record(ctx, ports.AuditEvent{
					ImportPackageID: pkg.ID,
					UserID:          actorID,
					Action:          "package_cleanup_failed",
					Detail:          fmt.Sprintf("staging cleanup: %v", cleanupErr),
					OccurredAt:      s.clock.Now(),
				})
			}
			if err := s.conflicts.DeleteByPackage(ctx, packageID); err != nil && s.audit != nil {
				_ = s.audit.Record(ctx, ports.AuditEvent{
					ImportPackageID: pkg.ID,
					UserID:          actorID,
					Action:          "package_cleanup_failed",
					Detail:          fmt.Sprintf("conflict cleanup: %v", err),
					OccurredAt:      s.clock.Now(),
				})
			}
		}

		return nil
	})
	return pkg, err
}

// Get returns the current state of one package.
func (s *Service) Get(ctx context.Context, packageID uuid.UUID) (*model.ImportPackage, error) {
	return s.packages.Get(ctx, packageID)
}

func minorDifferenceDomains(compat model.VocabularyCompatibility) map[string]bool {
	out := make(map[string]bool, len(compat.Domains))
	for _, d := range compat.Domains {
		if d.Level == model.VocabMinorDifference {
			out[d.Domain] = true
		}
	}
	return out
}

// entityKindForConflict maps a conflict's entity type back to the staging
// EntityKind it was detected against (duplicate.Detector only ever raises
// conflicts for Person and PropertyUnit rows).
func entityKindForConflict(t model.ConflictEntityType) model.EntityKind {
	switch t {
	case model.ConflictEntityPerson:
		return model.EntityPerson
	case model.ConflictEntityPropertyUnit:
		return model.EntityPropertyUnit
	case model.ConflictEntityBuilding:
		return model.EntityBuilding
	default:
		return model.EntityKind(t)
	}
}

func summaryCounts(summaries []model.EntityCommitSummary) (committed, failed, skipped model.EntityCounts) {
	committed = model.EntityCounts{}
	failed = model.EntityCounts{}
	skipped = model.EntityCounts{}
	for _, s := range summaries {
		committed[s.Kind] = s.Committed
		failed[s.Kind] = s.Failed
		skipped[s.Kind] = s.Skipped
	}
	return committed, failed, skipped
}
