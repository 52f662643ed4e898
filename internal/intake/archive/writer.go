package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/clock"
	"github.com/landtenure/intake/internal/intake/ports"
)

// DiskWriter implements ports.ArchiveWriter, moving a completed package's
// source `.uhc` file to archives/YYYY/MM/<PackageId>.uhc (SPEC_FULL.md §4.6
// step 6, §6 persisted-state layout).
type DiskWriter struct {
	root  string
	clock clock.Clock
}

// NewDiskWriter creates a writer rooted at root, using c to stamp the
// year/month directory.
func NewDiskWriter(root string, c clock.Clock) *DiskWriter {
	return &DiskWriter{root: root, clock: c}
}

var _ ports.ArchiveWriter = (*DiskWriter)(nil)

// Archive moves sourcePath into the archive tree, keyed by year/month of
// the call time and the package id.
func (w *DiskWriter) Archive(ctx context.Context, importPackageID uuid.UUID, sourcePath string) (string, error) {
	now := w.clock.Now()
	dir := filepath.Join(w.root, fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", now.Month()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	dst := filepath.Join(dir, importPackageID.String()+".uhc")
	if err := moveFile(sourcePath, dst); err != nil {
		return "", fmt.Errorf("move archive into place: %w", err)
	}
	return dst, nil
}

// moveFile renames src to dst, falling back to copy-then-remove across
// filesystem boundaries, the same defensive pattern blobstore.Disk uses.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
