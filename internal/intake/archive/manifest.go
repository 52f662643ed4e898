package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/model"
)

// entityCountColumns maps the manifest's per-entity-count columns to the
// EntityKind they tally, in the archive's fixed column layout.
var entityCountColumns = []struct {
	column string
	kind   model.EntityKind
}{
	{"building_count", model.EntityBuilding},
	{"property_unit_count", model.EntityPropertyUnit},
	{"person_count", model.EntityPerson},
	{"household_count", model.EntityHousehold},
	{"person_property_relation_count", model.EntityPersonPropertyRelation},
	{"evidence_count", model.EntityEvidence},
	{"survey_count", model.EntitySurvey},
	{"claim_count", model.EntityClaim},
	{"document_count", model.EntityDocument},
	{"referral_count", model.EntityReferral},
}

// ReadManifest reads the single manifest row (SPEC_FULL.md §6). Returns
// errtax-classifiable ErrManifestInvalid-worthy errors on malformed data;
// callers wrap with errtax.ErrManifestInvalid.
func ReadManifest(db *sql.DB) (*model.Manifest, error) {
	cols := []string{
		"package_id", "schema_version", "created_utc", "exported_date_utc",
		"exported_by_user_id", "device_id", "total_record_count",
		"total_attachment_size_bytes", "vocabulary_versions_json",
		"checksum", "digital_signature",
	}
	for _, c := range entityCountColumns {
		cols = append(cols, c.column)
	}

	query := "SELECT " + joinColumns(cols) + " FROM manifest LIMIT 1"
	row := db.QueryRow(query)

	var (
		packageIDStr, schemaVersion, createdUTC, exportedUTC string
		exportedByStr, deviceID                              string
		totalRecordCount                                     int
		totalAttachmentSize                                  int64
		vocabJSON                                             string
		checksum                                              sql.NullString
		signature                                             sql.NullString
	)
	counts := make([]sql.NullInt64, len(entityCountColumns))
	dest := []any{
		&packageIDStr, &schemaVersion, &createdUTC, &exportedUTC,
		&exportedByStr, &deviceID, &totalRecordCount,
		&totalAttachmentSize, &vocabJSON, &checksum, &signature,
	}
	for i := range counts {
		dest = append(dest, &counts[i])
	}

	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("manifest table is empty")
		}
		return nil, fmt.Errorf("read manifest row: %w", err)
	}

	packageID, err := uuid.Parse(packageIDStr)
	if err != nil {
		return nil, fmt.Errorf("manifest package_id is not a valid UUID: %w", err)
	}
	exportedBy, err := uuid.Parse(exportedByStr)
	if err != nil {
		return nil, fmt.Errorf("manifest exported_by_user_id is not a valid UUID: %w", err)
	}

	created, err := parseManifestTime(createdUTC)
	if err != nil {
		return nil, fmt.Errorf("manifest created_utc: %w", err)
	}
	exported, err := parseManifestTime(exportedUTC)
	if err != nil {
		return nil, fmt.Errorf("manifest exported_date_utc: %w", err)
	}

	var vocab model.VocabularyVersions
	if vocabJSON != "" {
		if err := json.Unmarshal([]byte(vocabJSON), &vocab); err != nil {
			return nil, fmt.Errorf("manifest vocabulary_versions_json: %w", err)
		}
	} else {
		vocab = model.VocabularyVersions{}
	}

	entityCounts := model.EntityCounts{}
	for i, c := range entityCountColumns {
		if counts[i].Valid {
			entityCounts[c.kind] = int(counts[i].Int64)
		}
	}

	return &model.Manifest{
		PackageID:                packageID,
		SchemaVersion:            schemaVersion,
		CreatedUtc:               created,
		ExportedDateUtc:          exported,
		ExportedByUserID:         exportedBy,
		DeviceID:                 deviceID,
		TotalRecordCount:         totalRecordCount,
		EntityCounts:             entityCounts,
		TotalAttachmentSizeBytes: totalAttachmentSize,
		VocabularyVersions:       vocab,
		Checksum:                 checksum.String,
		DigitalSignature:         signature.String,
	}, nil
}

func parseManifestTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
