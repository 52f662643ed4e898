// Package blobstore implements a content-addressed, local-disk BlobStore
// (SPEC_FULL.md §6): attachments are stored under
// sha256[0:2]/sha256[2:4]/sha256 so identical attachment content uploaded
// by two different packages is written to disk exactly once.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/landtenure/intake/internal/intake/ports"
)

// Disk is a local-filesystem BlobStore rooted at a configured directory.
type Disk struct {
	root string
}

// New creates a Disk store rooted at root, creating it if necessary.
func New(root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Disk{root: root}, nil
}

var _ ports.BlobStore = (*Disk)(nil)

// Put streams r to a temp file while hashing it, then moves it into its
// content-addressed path. If a blob with the same hash already exists, the
// temp file is discarded and Put reports deduplicated=true. The Commit
// Engine's attachment dedup does not call Put; it probes Exists.
func (d *Disk) Put(ctx context.Context, r io.Reader) (ports.BlobHandle, bool, error) {
	tmp, err := os.CreateTemp(d.root, "incoming-*.tmp")
	if err != nil {
		return ports.BlobHandle{}, false, fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	closeErr := tmp.Close()
	if err != nil {
		return ports.BlobHandle{}, false, fmt.Errorf("write temp blob: %w", err)
	}
	if closeErr != nil {
		return ports.BlobHandle{}, false, fmt.Errorf("close temp blob: %w", closeErr)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	finalPath := d.pathFor(sum)

	if _, err := os.Stat(finalPath); err == nil {
		return ports.BlobHandle{SHA256: sum, SizeBytes: size, StoragePath: finalPath}, true, nil
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return ports.BlobHandle{}, false, fmt.Errorf("create blob shard dir: %w", err)
	}

	if err := moveFile(tmpPath, finalPath); err != nil {
		return ports.BlobHandle{}, false, fmt.Errorf("move blob into place: %w", err)
	}

	return ports.BlobHandle{SHA256: sum, SizeBytes: size, StoragePath: finalPath}, false, nil
}

// Open opens an existing blob for reading.
func (d *Disk) Open(ctx context.Context, sha256Hex string) (io.ReadCloser, error) {
	return os.Open(d.pathFor(sha256Hex))
}

// Exists reports whether a blob with the given hash is already stored.
func (d *Disk) Exists(ctx context.Context, sha256Hex string) (bool, error) {
	_, err := os.Stat(d.pathFor(sha256Hex))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (d *Disk) pathFor(sha256Hex string) string {
	if len(sha256Hex) < 4 {
		return filepath.Join(d.root, sha256Hex)
	}
	return filepath.Join(d.root, sha256Hex[0:2], sha256Hex[2:4], sha256Hex)
}

// moveFile renames src to dst, falling back to copy-then-remove when the
// rename fails across filesystem boundaries (os.Rename returns
// syscall.EXDEV on Linux in that case).
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
