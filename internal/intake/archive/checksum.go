package archive

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// tag bytes disambiguate cell encodings inside the canonical hash stream.
const (
	tagNull   byte = 0
	tagInt    byte = 1
	tagFloat  byte = 2
	tagText   byte = 3
	tagBlob   byte = 4
)

// ComputeChecksum recomputes the archive's content hash per SPEC_FULL.md
// §4.1 step 4: hashed over every data table except the manifest, rows
// sorted by primary key, fields serialized in schema-declared order,
// little-endian binary for scalars, UTF-8 NFC for strings, SHA-256
// lowercase hex digest.
func ComputeChecksum(db *sql.DB) (string, error) {
	h := sha256.New()

	for _, table := range DataTables {
		pkCol, columns, err := tableSchema(db, table)
		if err != nil {
			return "", fmt.Errorf("schema for table %q: %w", table, err)
		}

		h.Write([]byte(table))
		h.Write([]byte{0})

		if err := hashTableRows(db, h, table, pkCol, columns); err != nil {
			return "", fmt.Errorf("hash table %q: %w", table, err)
		}
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// tableSchema returns the primary-key column (falling back to the first
// declared column when the table has no explicit single-column PK) and the
// full schema-declared column order.
func tableSchema(db *sql.DB, table string) (pkCol string, columns []string, err error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return "", nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			dfltValue  sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return "", nil, err
		}
		columns = append(columns, name)
		if pk == 1 {
			pkCol = name
		}
	}
	if err := rows.Err(); err != nil {
		return "", nil, err
	}
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("table has no columns")
	}
	if pkCol == "" {
		pkCol = columns[0]
	}
	return pkCol, columns, nil
}

func hashTableRows(db *sql.DB, h interface{ Write([]byte) (int, error) }, table, pkCol string, columns []string) error {
	query := fmt.Sprintf(`SELECT %s FROM %q ORDER BY %q ASC`, strings.Join(quoteAll(columns), ", "), table, pkCol)
	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		for _, v := range vals {
			if err := writeCanonicalCell(h, v); err != nil {
				return err
			}
		}
	}
	return rows.Err()
}

func writeCanonicalCell(h interface{ Write([]byte) (int, error) }, v any) error {
	switch t := v.(type) {
	case nil:
		_, err := h.Write([]byte{tagNull})
		return err
	case int64:
		buf := make([]byte, 9)
		buf[0] = tagInt
		binary.LittleEndian.PutUint64(buf[1:], uint64(t))
		_, err := h.Write(buf)
		return err
	case float64:
		buf := make([]byte, 9)
		buf[0] = tagFloat
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(t))
		_, err := h.Write(buf)
		return err
	case string:
		return writeLengthPrefixed(h, tagText, []byte(norm.NFC.String(t)))
	case []byte:
		return writeLengthPrefixed(h, tagBlob, t)
	default:
		return fmt.Errorf("unsupported cell type %T", v)
	}
}

func writeLengthPrefixed(h interface{ Write([]byte) (int, error) }, tag byte, content []byte) error {
	header := make([]byte, 5)
	header[0] = tag
	binary.LittleEndian.PutUint32(header[1:], uint32(len(content)))
	if _, err := h.Write(header); err != nil {
		return err
	}
	_, err := h.Write(content)
	return err
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = fmt.Sprintf("%q", n)
	}
	return out
}
