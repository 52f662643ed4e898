// Package receiver implements the Package Receiver (SPEC_FULL.md §4.1): the
// intake pipeline's entry point. It stages an uploaded `.uhc` archive to a
// temp file, reads its manifest, and runs the integrity gate — idempotency,
// checksum, signature, and vocabulary compatibility — before an ImportPackage
// record is allowed to progress past Pending.
package receiver

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/archive"
	"github.com/landtenure/intake/internal/intake/clock"
	"github.com/landtenure/intake/internal/intake/errtax"
	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/ports"
)

// SignaturePolicy controls whether an unsigned archive is acceptable.
type SignaturePolicy struct {
	Required  bool
	PublicKey ed25519.PublicKey // ignored when Required is false and the archive is unsigned
}

// VocabularyTolerance names how strictly the integrity gate treats a
// vocabulary version drift between the archive's manifest and the server's
// current per-domain versions.
type VocabularyTolerance string

const (
	// ToleranceMinor quarantines only on MajorDifference/UnknownDomain,
	// same as CompareVocabulary's IsCompatible — the default.
	ToleranceMinor VocabularyTolerance = "minor"
	// ToleranceStrict quarantines on any domain that is not Identical.
	ToleranceStrict VocabularyTolerance = "strict"
)

// Receiver runs the integrity gate over an uploaded archive.
type Receiver struct {
	packages  ports.ImportPackageStore
	vocab     ports.VocabularyRegistry
	audit     ports.AuditSink
	clock     clock.Clock
	stageDir  string
	sig       SignaturePolicy
	tolerance VocabularyTolerance
}

// New builds a Receiver. stageDir is where uploaded streams are written
// before the archive driver opens them; it must be writable and on the same
// filesystem as the eventual ArchiveWriter root for a cheap rename.
func New(packages ports.ImportPackageStore, vocab ports.VocabularyRegistry, audit ports.AuditSink, c clock.Clock, stageDir string, sig SignaturePolicy) *Receiver {
	return &Receiver{packages: packages, vocab: vocab, audit: audit, clock: c, stageDir: stageDir, sig: sig, tolerance: ToleranceMinor}
}

// WithVocabularyTolerance overrides the default MinorDifference tolerance,
// set from config.IntakeConfig.VocabularyTolerance at startup.
func (r *Receiver) WithVocabularyTolerance(t VocabularyTolerance) *Receiver {
	r.tolerance = t
	return r
}

// Result is what the Receiver hands back to the caller (an HTTP handler or
// the watched-folder poller) once the integrity gate has run.
type Result struct {
	Package    *model.ImportPackage
	StagedPath string // temp file holding the archive bytes; Loader reads from here next
}

// Receive stages fileData, runs the integrity gate, and persists the
// resulting ImportPackage. A quarantine verdict is not an error: it is a
// valid terminal outcome recorded on the package itself.
func (r *Receiver) Receive(ctx context.Context, fileName string, fileData io.Reader, importMethod model.ImportMethod, createdBy uuid.UUID) (*Result, error) {
	stagedPath, sizeBytes, sha256Hex, err := r.stage(fileData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errtax.ErrTransport, err)
	}

	db, err := archive.Open(stagedPath)
	if err != nil {
		os.Remove(stagedPath)
		return nil, fmt.Errorf("%w: %v", errtax.ErrManifestInvalid, err)
	}
	defer db.Close()

	if err := archive.VerifyTables(db); err != nil {
		return r.quarantine(ctx, fileName, sizeBytes, importMethod, createdBy, stagedPath, uuid.Nil, fmt.Sprintf("%v", err))
	}

	manifest, err := archive.ReadManifest(db)
	if err != nil {
		return r.quarantine(ctx, fileName, sizeBytes, importMethod, createdBy, stagedPath, uuid.Nil, fmt.Sprintf("manifest: %v", err))
	}

	pkg := model.NewImportPackage(manifest.PackageID, fileName, sizeBytes, importMethod, createdBy, r.clock.Now())
	pkg.ManifestCounts = manifest.EntityCounts
	pkg.VocabularyVersions = manifest.VocabularyVersions
	pkg.SchemaVersion = manifest.SchemaVersion
	pkg.Checksum = sha256Hex

	if existing, err := r.packages.FindByPackageID(ctx, manifest.PackageID); err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	} else if existing != nil {
		// Re-upload of a package already on file: hand back the existing
		// record rather than staging a duplicate import run.
		os.Remove(stagedPath)
		return &Result{Package: existing}, nil
	}

	if err := r.runIntegrityGate(ctx, db, pkg, manifest, stagedPath); err != nil {
		return nil, err
	}

	number, err := r.packages.NextPackageNumber(ctx, r.clock.Now().Year())
	if err != nil {
		return nil, fmt.Errorf("allocate package number: %w", err)
	}
	pkg.PackageNumber = number

	if err := r.packages.Create(ctx, pkg); err != nil {
		return nil, fmt.Errorf("persist import package: %w", err)
	}

	r.recordAudit(ctx, pkg, audit(pkg))

	return &Result{Package: pkg, StagedPath: stagedPath}, nil
}

// runIntegrityGate checks checksum, signature, and vocabulary compatibility
// in the order SPEC_FULL.md §4.1 lists them, quarantining on the first
// blocking failure. A vocabulary MinorDifference does not quarantine: it is
// carried forward for the Validator to downgrade Level 3 diagnostics to
// Advisory.
func (r *Receiver) runIntegrityGate(ctx context.Context, db *sql.DB, pkg *model.ImportPackage, manifest *model.Manifest, stagedPath string) error {
	computed, err := archive.ComputeChecksum(db)
	if err != nil {
		return fmt.Errorf("compute checksum: %w", err)
	}
	pkg.IsChecksumValid = manifest.Checksum == "" || computed == manifest.Checksum
	if !pkg.IsChecksumValid {
		pkg.Status = model.StatusQuarantined
		pkg.QuarantineReason = fmt.Sprintf("%v: recomputed %s, manifest declared %s", errtax.ErrChecksumMismatch, computed, manifest.Checksum)
		return nil
	}

	if r.sig.Required || manifest.DigitalSignature != "" {
		archiveBytes, readErr := os.ReadFile(stagedPath)
		if readErr != nil {
			return fmt.Errorf("read archive for signature check: %w", readErr)
		}
		valid, wasSigned, sigErr := archive.VerifySignature(archiveBytes, manifest.DigitalSignature, r.sig.PublicKey)
		if sigErr != nil {
			return fmt.Errorf("verify signature: %w", sigErr)
		}
		pkg.IsSignatureValid = valid || (!wasSigned && !r.sig.Required)
		if !pkg.IsSignatureValid {
			pkg.Status = model.StatusQuarantined
			pkg.QuarantineReason = errtax.ErrSignatureInvalid.Error()
			return nil
		}
	} else {
		pkg.IsSignatureValid = true
	}

	compat := archive.CompareVocabulary(manifest.VocabularyVersions, func(domain string) (string, bool) {
		return r.vocab.CurrentVersion(ctx, domain)
	})
	pkg.VocabularyCompatibility = compat
	blocked := !compat.IsCompatible
	if r.tolerance == ToleranceStrict {
		blocked = !compat.IsFullyCompatible
	}
	if blocked {
		pkg.Status = model.StatusQuarantined
		pkg.QuarantineReason = errtax.ErrVocabularyIncompatible.Error()
		return nil
	}

	pkg.SchemaValid = true
	pkg.Status = model.StatusPending
	return nil
}

func (r *Receiver) quarantine(ctx context.Context, fileName string, sizeBytes int64, importMethod model.ImportMethod, createdBy uuid.UUID, stagedPath string, packageID uuid.UUID, reason string) (*Result, error) {
	pkg := model.NewImportPackage(packageID, fileName, sizeBytes, importMethod, createdBy, r.clock.Now())
	pkg.Status = model.StatusQuarantined
	pkg.QuarantineReason = reason

	if err := r.packages.Create(ctx, pkg); err != nil {
		return nil, fmt.Errorf("persist quarantined package: %w", err)
	}
	r.recordAudit(ctx, pkg, "package_quarantined")

	return &Result{Package: pkg, StagedPath: stagedPath}, nil
}

func (r *Receiver) recordAudit(ctx context.Context, pkg *model.ImportPackage, action string) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Record(ctx, ports.AuditEvent{
		ImportPackageID: pkg.ID,
		UserID:          pkg.CreatedBy,
		Action:          action,
		Detail:          pkg.QuarantineReason,
		OccurredAt:      r.clock.Now(),
	}); err != nil {
		slog.Error("record intake audit event", "package_id", pkg.ID, "action", action, "error", err)
	}
}

func audit(pkg *model.ImportPackage) string {
	if pkg.Status == model.StatusQuarantined {
		return "package_quarantined"
	}
	return "package_received"
}

// stage copies fileData to a temp file under r.stageDir, hashing as it
// streams so the Receiver never buffers a whole archive in memory.
func (r *Receiver) stage(fileData io.Reader) (path string, sizeBytes int64, sha256Hex string, err error) {
	tmp, err := os.CreateTemp(r.stageDir, "intake-*.uhc")
	if err != nil {
		return "", 0, "", fmt.Errorf("create staging file: %w", err)
	}
	defer tmp.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), fileData)
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, "", fmt.Errorf("write staging file: %w", err)
	}

	return tmp.Name(), n, hex.EncodeToString(h.Sum(nil)), nil
}
