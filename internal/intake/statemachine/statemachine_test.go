package statemachine

import (
	"errors"
	"testing"

	"github.com/landtenure/intake/internal/intake/errtax"
	"github.com/landtenure/intake/internal/intake/model"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from model.ImportStatus
		to   model.ImportStatus
		want bool
	}{
		{"pending to validating", model.StatusPending, model.StatusValidating, true},
		{"pending to committing skips stages", model.StatusPending, model.StatusCommitting, false},
		{"detecting duplicates bypass to ready", model.StatusDetectingDuplicates, model.StatusReadyToCommit, true},
		{"reviewing conflicts to ready", model.StatusReviewingConflicts, model.StatusReadyToCommit, true},
		{"ready to commit cannot skip to completed", model.StatusReadyToCommit, model.StatusCompleted, false},
		{"commit failed can retry", model.StatusCommitFailed, model.StatusCommitting, true},
		{"completed is terminal", model.StatusCompleted, model.StatusCommitting, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := CanTransition(c.from, c.to); got != c.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
			}
		})
	}
}

func TestApplyRejectsInvalidTransition(t *testing.T) {
	// Commit attempted from ReviewingConflicts must fail and leave the
	// caller free to keep the original status (SPEC_FULL.md property 6).
	_, err := Apply(model.StatusReviewingConflicts, model.StatusCommitting)
	if !errors.Is(err, errtax.ErrStateTransitionInvalid) {
		t.Fatalf("expected ErrStateTransitionInvalid, got %v", err)
	}
}

func TestCanCancelTerminalStates(t *testing.T) {
	for _, s := range []model.ImportStatus{model.StatusCompleted, model.StatusPartiallyCompleted, model.StatusCancelled, model.StatusQuarantined} {
		if CanCancel(s) {
			t.Errorf("expected CanCancel(%s) = false", s)
		}
	}
	for _, s := range []model.ImportStatus{model.StatusPending, model.StatusValidating, model.StatusReviewingConflicts, model.StatusCommitFailed} {
		if !CanCancel(s) {
			t.Errorf("expected CanCancel(%s) = true", s)
		}
	}
}

func TestRequireStatus(t *testing.T) {
	if err := RequireStatus(model.StatusPending, model.StatusPending, model.StatusValidating); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := RequireStatus(model.StatusInvalid, model.StatusPending); !errors.Is(err, errtax.ErrStateTransitionInvalid) {
		t.Fatalf("expected ErrStateTransitionInvalid, got %v", err)
	}
}
