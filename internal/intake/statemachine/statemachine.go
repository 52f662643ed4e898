// Package statemachine enforces the ImportPackage lifecycle transitions
// from SPEC_FULL.md §4.8 against a single transition table, the same
// "table, not scattered ifs" shape the teacher uses for UploadPhase
// progression (internal/core/types.go, internal/core/service_upload.go),
// generalized from a five-phase linear upload to the branching graph the
// intake pipeline requires.
package statemachine

import (
	"fmt"

	"github.com/landtenure/intake/internal/intake/errtax"
	"github.com/landtenure/intake/internal/intake/model"
)

// transitions maps each non-terminal status to the set of statuses a stage
// handler may move it to. Cancellation is handled separately by CanCancel
// since it is legal from every non-terminal status, not just the ones
// listed here.
var transitions = map[model.ImportStatus][]model.ImportStatus{
	model.StatusPending: {
		model.StatusValidating,
	},
	model.StatusValidating: {
		model.StatusValidated,
		model.StatusInvalid,
	},
	model.StatusValidated: {
		model.StatusDetectingDuplicates,
	},
	model.StatusInvalid: {
		// Invalid is recoverable by re-validation after the archive is
		// fixed and re-staged; in practice that means cancel + re-upload,
		// but the transition is allowed for completeness.
		model.StatusValidating,
	},
	model.StatusDetectingDuplicates: {
		model.StatusReviewingConflicts,
		model.StatusReadyToCommit, // bypass when zero conflicts are found
	},
	model.StatusReviewingConflicts: {
		model.StatusReadyToCommit,
	},
	model.StatusReadyToCommit: {
		model.StatusCommitting,
	},
	model.StatusCommitting: {
		model.StatusCompleted,
		model.StatusPartiallyCompleted,
		model.StatusCommitFailed,
	},
	model.StatusCommitFailed: {
		// Recoverable by re-commit.
		model.StatusCommitting,
	},
}

// CanTransition reports whether moving from `from` to `to` is legal per the
// graph in SPEC_FULL.md §4.8.
func CanTransition(from, to model.ImportStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Apply validates and performs a transition, returning
// errtax.ErrStateTransitionInvalid if the move is not in the graph.
func Apply(from, to model.ImportStatus) (model.ImportStatus, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", errtax.ErrStateTransitionInvalid, from, to)
	}
	return to, nil
}

// CanCancel reports whether a cancellation request may take effect from the
// given status. Per SPEC_FULL.md §4.7, this is any non-terminal status; an
// in-flight commit that has already reached Completed is not cancelled
// retroactively (the caller instead records a cancellation note on the
// completed package, which is not a state transition).
func CanCancel(from model.ImportStatus) bool {
	return !from.Terminal()
}

// RequireStatus returns errtax.ErrStateTransitionInvalid wrapped with
// context when the package is not in one of the expected statuses. Stage
// entry points use this to enforce their preconditions (e.g. the Loader
// requires Pending).
func RequireStatus(current model.ImportStatus, expected ...model.ImportStatus) error {
	for _, e := range expected {
		if current == e {
			return nil
		}
	}
	return fmt.Errorf("%w: expected one of %v, got %s", errtax.ErrStateTransitionInvalid, expected, current)
}
