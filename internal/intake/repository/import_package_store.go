package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/landtenure/intake/internal/intake/errtax"
	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/pgconv"
)

// ImportPackageStore is the pgx-backed ports.ImportPackageStore adapter,
// backing the `intake_import_packages` table.
type ImportPackageStore struct {
	pool *pgxpool.Pool
}

// NewImportPackageStore builds an ImportPackageStore over pool.
func NewImportPackageStore(pool *pgxpool.Pool) *ImportPackageStore {
	return &ImportPackageStore{pool: pool}
}

func (s *ImportPackageStore) Create(ctx context.Context, pkg *model.ImportPackage) error {
	manifestCounts, err := json.Marshal(pkg.ManifestCounts)
	if err != nil {
		return fmt.Errorf("marshal manifest counts: %w", err)
	}
	vocabVersions, err := json.Marshal(pkg.VocabularyVersions)
	if err != nil {
		return fmt.Errorf("marshal vocabulary versions: %w", err)
	}
	vocabCompat, err := json.Marshal(pkg.VocabularyCompatibility)
	if err != nil {
		return fmt.Errorf("marshal vocabulary compatibility: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO intake_import_packages (
			id, package_id, package_number, file_name, size_bytes, checksum, signature,
			import_method, manifest_counts, vocabulary_versions, vocabulary_compatibility,
			is_checksum_valid, is_signature_valid, schema_version, schema_valid,
			status, quarantine_reason, created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		pgconv.UUID(pkg.ID), pgconv.UUID(pkg.PackageID), pgconv.Text(pkg.PackageNumber), pkg.FileName, pkg.SizeBytes,
		pgconv.Text(pkg.Checksum), pgconv.Text(pkg.Signature), string(pkg.ImportMethod), manifestCounts, vocabVersions, vocabCompat,
		pkg.IsChecksumValid, pkg.IsSignatureValid, pgconv.Text(pkg.SchemaVersion), pkg.SchemaValid,
		string(pkg.Status), pgconv.Text(pkg.QuarantineReason), pgconv.UUID(pkg.CreatedBy), pgconv.Timestamptz(pkg.CreatedAt), pgconv.Timestamptz(pkg.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert import package: %w", err)
	}
	return nil
}

func (s *ImportPackageStore) Update(ctx context.Context, pkg *model.ImportPackage) error {
	stagingCounts, _ := json.Marshal(pkg.StagingCounts)
	committedCounts, _ := json.Marshal(pkg.CommittedCounts)
	failedCounts, _ := json.Marshal(pkg.FailedCounts)
	skippedCounts, _ := json.Marshal(pkg.SkippedCounts)
	duplicateCounts, _ := json.Marshal(pkg.DuplicateCounts)

	_, err := s.pool.Exec(ctx, `
		UPDATE intake_import_packages SET
			status = $1, quarantine_reason = $2, staging_counts = $3,
			validation_error_count = $4, validation_warning_count = $5,
			duplicate_counts = $6, conflict_count = $7, are_conflicts_resolved = $8,
			committed_counts = $9, failed_counts = $10, skipped_counts = $11,
			archive_path = $12, is_archived = $13, archived_date = $14,
			committed_date = $15, cancellation_reason = $16, cancelled_at = $17,
			updated_at = $18
		WHERE id = $19
	`,
		string(pkg.Status), pgconv.Text(pkg.QuarantineReason), stagingCounts,
		pkg.ValidationErrorCount, pkg.ValidationWarningCount,
		duplicateCounts, pkg.ConflictCount, pkg.AreConflictsResolved,
		committedCounts, failedCounts, skippedCounts,
		pgconv.Text(pkg.ArchivePath), pkg.IsArchived, pgconv.TimestamptzPtr(pkg.ArchivedDate),
		pgconv.TimestamptzPtr(pkg.CommittedDate), pgconv.Text(pkg.CancellationReason), pgconv.TimestamptzPtr(pkg.CancelledAt),
		pgconv.Timestamptz(pkg.UpdatedAt), pgconv.UUID(pkg.ID),
	)
	if err != nil {
		return fmt.Errorf("update import package %s: %w", pkg.ID, err)
	}
	return nil
}

func (s *ImportPackageStore) Get(ctx context.Context, id uuid.UUID) (*model.ImportPackage, error) {
	row := s.pool.QueryRow(ctx, baseImportPackageSelect+` WHERE id = $1`, pgconv.UUID(id))
	pkg, err := scanImportPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errtax.ErrNotFound
	}
	return pkg, err
}

func (s *ImportPackageStore) FindByPackageID(ctx context.Context, packageID uuid.UUID) (*model.ImportPackage, error) {
	row := s.pool.QueryRow(ctx, baseImportPackageSelect+` WHERE package_id = $1`, pgconv.UUID(packageID))
	pkg, err := scanImportPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return pkg, err
}

func (s *ImportPackageStore) List(ctx context.Context, status model.ImportStatus, limit, offset int) ([]*model.ImportPackage, error) {
	query := baseImportPackageSelect
	var args []any
	if status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = []any{string(status), limit, offset}
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = []any{limit, offset}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list import packages: %w", err)
	}
	defer rows.Close()

	var out []*model.ImportPackage
	for rows.Next() {
		pkg, err := scanImportPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pkg)
	}
	return out, rows.Err()
}

// NextPackageNumber allocates the next "PKG-YYYY-NNNN" number for the given
// year using an atomic upsert-and-return, avoiding the race a
// select-then-insert counter would have under concurrent receivers.
func (s *ImportPackageStore) NextPackageNumber(ctx context.Context, year int) (string, error) {
	var seq int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO intake_package_number_sequences (year, last_value)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = intake_package_number_sequences.last_value + 1
		RETURNING last_value
	`, year).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("allocate package number for %d: %w", year, err)
	}
	return fmt.Sprintf("PKG-%d-%04d", year, seq), nil
}

const baseImportPackageSelect = `
	SELECT id, package_id, package_number, file_name, size_bytes, checksum, signature,
		import_method, manifest_counts, vocabulary_versions, vocabulary_compatibility,
		is_checksum_valid, is_signature_valid, schema_version, schema_valid,
		validation_error_count, validation_warning_count, staging_counts,
		duplicate_counts, conflict_count, are_conflicts_resolved,
		committed_counts, failed_counts, skipped_counts,
		archive_path, is_archived, archived_date, status, quarantine_reason,
		created_by, created_at, updated_at, committed_date,
		cancellation_reason, cancelled_at
	FROM intake_import_packages`

func scanImportPackage(rs rowScanner) (*model.ImportPackage, error) {
	var (
		id, packageID, createdBy                                    pgtype.UUID
		packageNumber, checksum, signature, schemaVersion            pgtype.Text
		archivePath, quarantineReason, cancellationReason            pgtype.Text
		fileName                                                    string
		sizeBytes                                                   int64
		importMethod, status                                        string
		manifestCountsJSON, vocabVersionsJSON, vocabCompatJSON       []byte
		stagingCountsJSON, duplicateCountsJSON                      []byte
		committedCountsJSON, failedCountsJSON, skippedCountsJSON    []byte
		isChecksumValid, isSignatureValid, schemaValid              bool
		validationErrorCount, validationWarningCount, conflictCount int
		areConflictsResolved, isArchived                            bool
		archivedDate, createdAt, updatedAt, committedDate           pgtype.Timestamptz
		cancelledAt                                                 pgtype.Timestamptz
	)

	if err := rs.Scan(
		&id, &packageID, &packageNumber, &fileName, &sizeBytes, &checksum, &signature,
		&importMethod, &manifestCountsJSON, &vocabVersionsJSON, &vocabCompatJSON,
		&isChecksumValid, &isSignatureValid, &schemaVersion, &schemaValid,
		&validationErrorCount, &validationWarningCount, &stagingCountsJSON,
		&duplicateCountsJSON, &conflictCount, &areConflictsResolved,
		&committedCountsJSON, &failedCountsJSON, &skippedCountsJSON,
		&archivePath, &isArchived, &archivedDate, &status, &quarantineReason,
		&createdBy, &createdAt, &updatedAt, &committedDate,
		&cancellationReason, &cancelledAt,
	); err != nil {
		return nil, fmt.Errorf("scan import package: %w", err)
	}

	pkg := &model.ImportPackage{
		ID:                     pgconv.ToUUID(id),
		PackageID:              pgconv.ToUUID(packageID),
		PackageNumber:          pgconv.ToText(packageNumber),
		FileName:               fileName,
		SizeBytes:              sizeBytes,
		Checksum:               pgconv.ToText(checksum),
		Signature:              pgconv.ToText(signature),
		ImportMethod:           model.ImportMethod(importMethod),
		IsChecksumValid:        isChecksumValid,
		IsSignatureValid:       isSignatureValid,
		SchemaVersion:          pgconv.ToText(schemaVersion),
		SchemaValid:            schemaValid,
		ValidationErrorCount:   validationErrorCount,
		ValidationWarningCount: validationWarningCount,
		ConflictCount:          conflictCount,
		AreConflictsResolved:   areConflictsResolved,
		ArchivePath:            pgconv.ToText(archivePath),
		IsArchived:             isArchived,
		Status:                 model.ImportStatus(status),
		QuarantineReason:       pgconv.ToText(quarantineReason),
		CreatedBy:              pgconv.ToUUID(createdBy),
		CreatedAt:              createdAt.Time,
		UpdatedAt:              updatedAt.Time,
		ArchivedDate:           pgconv.ToTime(archivedDate),
		CommittedDate:          pgconv.ToTime(committedDate),
		CancellationReason:     pgconv.ToText(cancellationReason),
		CancelledAt:            pgconv.ToTime(cancelledAt),
	}

	unmarshalInto(manifestCountsJSON, &pkg.ManifestCounts)
	unmarshalInto(vocabVersionsJSON, &pkg.VocabularyVersions)
	unmarshalInto(vocabCompatJSON, &pkg.VocabularyCompatibility)
	unmarshalInto(stagingCountsJSON, &pkg.StagingCounts)
	unmarshalInto(duplicateCountsJSON, &pkg.DuplicateCounts)
	unmarshalInto(committedCountsJSON, &pkg.CommittedCounts)
	unmarshalInto(failedCountsJSON, &pkg.FailedCounts)
	unmarshalInto(skippedCountsJSON, &pkg.SkippedCounts)

	return pkg, nil
}

func unmarshalInto(data []byte, v any) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, v)
}
