// Package audit implements ports.AuditSink against Postgres, generalizing
// the teacher's AuditLog/AuditService (internal/core/audit.go) from
// CSV-table actions (upload, cell_edit, bulk_edit, ...) to intake pipeline
// actions.
package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/landtenure/intake/internal/intake/ports"
)

// Action is the closed set of intake audit actions, the domain replacement
// for the teacher's AuditAction enum.
type Action string

const (
	ActionPackageReceived   Action = "package_received"
	ActionPackageQuarantined Action = "package_quarantined"
	ActionPackageValidated  Action = "package_validated"
	ActionDuplicatesDetected Action = "duplicates_detected"
	ActionConflictResolved  Action = "conflict_resolved"
	ActionPackageCommitted  Action = "package_committed"
	ActionPackageArchived   Action = "package_archived"
	ActionPackageCancelled  Action = "package_cancelled"
)

// Severity mirrors the teacher's AuditSeverity grading, kept for operators
// filtering the audit stream by impact.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityFor mirrors the teacher's determineSeverity switch.
func severityFor(action Action) Severity {
	switch action {
	case ActionPackageCommitted, ActionPackageCancelled:
		return SeverityHigh
	case ActionConflictResolved:
		return SeverityMedium
	case ActionPackageQuarantined:
		return SeverityCritical
	default:
		return SeverityLow
	}
}

// DBTX is the minimal pgx surface the sink needs, shared with the
// repository package's copy of the teacher's core.DBTX interface.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}

// Sink is a Postgres-backed ports.AuditSink.
type Sink struct {
	db DBTX
}

// New builds a Sink over the given pool or transaction handle.
func New(db DBTX) *Sink {
	return &Sink{db: db}
}

var _ ports.AuditSink = (*Sink)(nil)

// Record inserts one audit entry, deriving severity from the action encoded
// in event.Action.
func (s *Sink) Record(ctx context.Context, event ports.AuditEvent) error {
	severity := severityFor(Action(event.Action))

	_, err := s.db.Exec(ctx, `
		INSERT INTO intake_audit_log
			(import_package_id, user_id, action, severity, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.ImportPackageID, event.UserID, event.Action, severity, event.Detail, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}
