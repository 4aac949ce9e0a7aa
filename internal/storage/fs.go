package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
)

const (
	fileExt    = ".md"
	tempPrefix = ".quire-tmp-"
)

// FS implements Provider on a flat directory: one <uuid>.md file per
// externally stored note, raw text with no header.
type FS struct {
	root string // absolute path to the content directory
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute content directory.
func (f *FS) Root() string {
	return f.root
}

// Path derives the content file location from the note identity. The
// canonical UUID string is fixed-width lowercase hex, so the mapping is
// injective and stable across runs.
func (f *FS) Path(id uuid.UUID) string {
	return filepath.Join(f.root, id.String()+fileExt)
}

// IdentityFromPath is the inverse of Path. It reports false for temp files
// and anything that is not a content file directly under root.
func (f *FS) IdentityFromPath(p string) (uuid.UUID, bool) {
	if filepath.Dir(p) != f.root {
		return uuid.Nil, false
	}
	return identityFromName(filepath.Base(p))
}

func identityFromName(name string) (uuid.UUID, bool) {
	if strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, fileExt) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSuffix(name, fileExt))
	if err != nil {
		return uuid.Nil, false
	}
	// uuid.Parse accepts braces and urn prefixes; only the canonical
	// form names a content file.
	if id.String()+fileExt != name {
		return uuid.Nil, false
	}
	return id, true
}

// Read returns the content of the file for id.
func (f *FS) Read(id uuid.UUID) (string, error) {
	data, err := os.ReadFile(f.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("storage: read %s: %w", id, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("storage: read %s: %w: %w", id, apperr.ErrIOFailure, err)
	}
	return string(data), nil
}

// Write atomically writes content: tmp file → fsync → rename → fsync dir.
func (f *FS) Write(id uuid.UUID, text string) error {
	target := f.Path(id)

	tmp, err := os.CreateTemp(f.root, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w: %w", apperr.ErrIOFailure, err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(text); err != nil {
		return fmt.Errorf("storage: write temp: %w: %w", apperr.ErrIOFailure, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w: %w", apperr.ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w: %w", apperr.ErrIOFailure, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("storage: rename: %w: %w", apperr.ErrIOFailure, err)
	}
	success = true

	// The rename is only durable once the directory entry is flushed.
	if dir, err := os.Open(f.root); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}

// Delete removes the content file for id.
func (f *FS) Delete(id uuid.UUID) error {
	if err := os.Remove(f.Path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w: %w", id, apperr.ErrIOFailure, err)
	}
	return nil
}

// Exists reports whether the content file for id is present.
func (f *FS) Exists(id uuid.UUID) (bool, error) {
	_, err := os.Stat(f.Path(id))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("storage: stat %s: %w: %w", id, apperr.ErrIOFailure, err)
	}
}

// List returns the identities of all content files in the root. Leftover
// temp files and foreign names are skipped.
func (f *FS) List() ([]uuid.UUID, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w: %w", apperr.ErrIOFailure, err)
	}
	var out []uuid.UUID
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := identityFromName(e.Name()); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// RemoveStaleTemps deletes temp files left behind by a crash mid-write.
// It returns how many were removed.
func (f *FS) RemoveStaleTemps() (int, error) {
	matches, err := filepath.Glob(filepath.Join(f.root, tempPrefix+"*"))
	if err != nil {
		return 0, fmt.Errorf("storage: glob temps: %w", err)
	}
	n := 0
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			n++
		}
	}
	return n, nil
}
