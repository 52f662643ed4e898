// Package errtax defines the intake pipeline's error taxonomy
// (SPEC_FULL.md §7). Each fault the spec names is a sentinel error that
// callers can test with errors.Is; components wrap a sentinel with
// %w-formatted context rather than inventing ad-hoc error strings, so the
// HTTP layer can map a fault to a status code with an ordered errors.Is
// lookup instead of pattern-matching driver messages.
package errtax

import "errors"

var (
	// ErrTransport is returned when the uploaded stream cannot be read.
	ErrTransport = errors.New("transport error")

	// ErrManifestInvalid is returned when an archive cannot be opened or
	// its manifest is missing/malformed.
	ErrManifestInvalid = errors.New("manifest invalid")

	// ErrChecksumMismatch is recorded (not thrown past the Receiver) when
	// the recomputed content hash disagrees with the manifest's.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrSignatureInvalid is recorded when signature verification fails.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrVocabularyIncompatible is recorded when any domain is
	// MajorDifference or UnknownDomain.
	ErrVocabularyIncompatible = errors.New("vocabulary incompatible")

	// ErrValidationFailed indicates blocking validation diagnostics exist;
	// outcome is the Invalid state, never an exception past the Validator.
	ErrValidationFailed = errors.New("validation failed")

	// ErrConflictUnresolved is returned when commit is attempted while
	// open (Unresolved) conflicts remain.
	ErrConflictUnresolved = errors.New("conflicts unresolved")

	// ErrFKUnresolvable is returned when a staging row's original-id FK
	// cannot be translated to a production id during commit.
	ErrFKUnresolvable = errors.New("foreign key unresolvable")

	// ErrDuplicateBusinessIdentifier is returned when a commit-time
	// business identifier collides with an existing one.
	ErrDuplicateBusinessIdentifier = errors.New("duplicate business identifier")

	// ErrBlobStore is returned for infrastructure faults during
	// attachment dedup.
	ErrBlobStore = errors.New("blob store error")

	// ErrArchive is returned for infrastructure faults during archival.
	ErrArchive = errors.New("archive error")

	// ErrStateTransitionInvalid is returned when a stage is attempted
	// outside the state machine's transition graph.
	ErrStateTransitionInvalid = errors.New("invalid state transition")

	// ErrPackageBusy is returned when a stage is already in progress for
	// the package's advisory lock key.
	ErrPackageBusy = errors.New("package busy")

	// ErrConflictAlreadyResolved is returned on a second resolve attempt
	// against a terminal conflict.
	ErrConflictAlreadyResolved = errors.New("conflict already resolved")

	// ErrNotAuthenticated is returned when a mutating entry point is
	// called without a CurrentUser in context.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotFound is returned when a package, staging row, or conflict
	// lookup misses.
	ErrNotFound = errors.New("not found")
)
